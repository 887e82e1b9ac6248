// Package netmon implements the Interface Monitor: it enumerates IPv4
// interfaces and publishes InterfaceUp/InterfaceDown events, retrying
// enumeration failures with exponential backoff.
//
// The portable implementation here polls net.Interfaces(); platforms with a
// faster, event-driven path (Linux netlink) layer it on top — see
// netmon_linux.go — but the poller alone already satisfies the monitor's
// contract ("every interface carrying an IPv4 address is announced at
// least once, transitions reported in order").
package netmon

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mayara-project/mayara/internal/monitoring"
)

var logf = monitoring.Tagged("netmon")

// Event is an interface state transition.
type Event struct {
	Name    string
	Up      bool
	Addr    string // CIDR, e.g. "192.168.1.10/24"
	Netmask string
}

// Monitor publishes interface up/down events on Events(). Call Run once;
// it blocks until ctx is cancelled.
type Monitor struct {
	pollInterval time.Duration

	mu    sync.Mutex
	known map[string]string // iface name -> CIDR last announced as up

	events chan Event
	driver driver
}

// driver is the OS-specific fast path; nil means poll-only.
type driver interface {
	// run sends on wake whenever the OS reports a link/address change,
	// until ctx is done or it gives up (in which case polling alone
	// remains the source of truth). It never surfaces a fatal error to the
	// caller — failures are logged and treated as "no fast path
	// available".
	run(ctx context.Context, wake chan<- struct{})
}

// New creates a Monitor that polls every pollInterval; 1s keeps the
// "announced at least once" contract responsive without hammering the OS.
func New(pollInterval time.Duration) *Monitor {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Monitor{
		pollInterval: pollInterval,
		known:        make(map[string]string),
		events:       make(chan Event, 32),
		driver:       newPlatformDriver(),
	}
}

// Events returns the channel new transitions are published on.
func (m *Monitor) Events() <-chan Event { return m.events }

// Run blocks, publishing events until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	wake := make(chan struct{}, 1)
	if m.driver != nil {
		go m.driver.run(ctx, wake)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // retry forever; enumeration errors are never fatal

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	// Announce the initial state immediately rather than waiting a full
	// tick, so callers see interfaces without an artificial startup delay.
	m.poll(b)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(b)
		case <-wake:
			m.poll(b)
		}
	}
}

func (m *Monitor) poll(b *backoff.ExponentialBackOff) {
	current, err := enumerate()
	if err != nil {
		d := b.NextBackOff()
		logf("interface enumeration failed, retrying in %s: %v", d, err)
		return
	}
	b.Reset()

	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cidr := current[name]
		if prev, ok := m.known[name]; !ok || prev != cidr {
			m.known[name] = cidr
			m.publish(Event{Name: name, Up: true, Addr: cidr})
		}
	}
	for name := range m.known {
		if _, stillUp := current[name]; !stillUp {
			delete(m.known, name)
			m.publish(Event{Name: name, Up: false})
		}
	}
}

func (m *Monitor) publish(e Event) {
	select {
	case m.events <- e:
	default:
		logf("event channel full, dropping %+v", e)
	}
}

// enumerate snapshots every interface carrying an IPv4 address, returning
// name -> first IPv4 CIDR.
func enumerate() (map[string]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make(map[string]string)
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ipnet.IP.To4() == nil {
				continue
			}
			out[ifi.Name] = ipnet.String()
			break
		}
	}
	return out, nil
}
