// Package locator implements the per-vendor discovery loops: for each
// vendor, join its multicast beacon group on every active interface,
// validate incoming datagrams with the vendor decoder's DecodeBeacon, and
// emit a deduplicated RadarDiscovered event. The read loop uses a
// context-driven read loop with a short read deadline to notice
// cancellation, running one such loop per (vendor, interface) pair and
// reacting to internal/netmon interface up/down events rather than a
// static configuration.
package locator

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/mayara-project/mayara/internal/mcast"
	"github.com/mayara-project/mayara/internal/model"
	"github.com/mayara-project/mayara/internal/monitoring"
	"github.com/mayara-project/mayara/internal/netmon"
	"github.com/mayara-project/mayara/internal/vendor"
)

// BeaconDecoder is the narrow slice of vendor.Decoder a locator needs; any
// vendor.Decoder satisfies it structurally.
type BeaconDecoder interface {
	DecodeBeacon(payload []byte) (vendor.DiscoveredRadar, bool)
}

// EventSource is the subset of *netmon.Monitor a Locator needs: a stream of
// interface up/down transitions. Satisfied directly by *netmon.Monitor, or
// by a fan-out view the engine hands out when one interface monitor feeds
// several vendor locators — each locator needs every transition, not one
// each off a shared channel, since net.Interfaces() events are not
// broadcast by nature.
type EventSource interface {
	Events() <-chan netmon.Event
}

// Discovered is emitted once per distinct radar, already deduplicated by
// (brand, serial-or-MAC, data endpoint).
type Discovered struct {
	Key  model.Key
	Info vendor.DiscoveredRadar
}

// Locator runs the discovery loop for one vendor's beacon group across
// every currently-up interface.
type Locator struct {
	brand   model.Brand
	group   string
	port    int
	decoder BeaconDecoder
	monitor EventSource

	events chan Discovered

	mu      sync.Mutex
	seen    map[string]seenEntry // dedup key -> last-seen bookkeeping
	active  map[string]context.CancelFunc
	ifAddrs map[string]string // iface name -> CIDR, for BestInterface
}

type seenEntry struct {
	dataAddr string
	lastIf   string
	lastSeen time.Time
}

// dedupWindow bounds how long a (serial, dataAddr) stays "seen" for the
// purpose of preferring the subnet-matching interface; beyond it, a fresh
// beacon is treated as a new discovery (e.g. after a long interface flap).
const dedupWindow = 30 * time.Second

// New creates a Locator for one vendor. monitor supplies interface
// up/down events; decoder validates beacons for this vendor.
func New(brand model.Brand, group string, port int, decoder BeaconDecoder, monitor EventSource) *Locator {
	return &Locator{
		brand:   brand,
		group:   group,
		port:    port,
		decoder: decoder,
		monitor: monitor,
		events:  make(chan Discovered, 16),
		seen:    make(map[string]seenEntry),
		active:  make(map[string]context.CancelFunc),
		ifAddrs: make(map[string]string),
	}
}

// Events returns the channel RadarDiscovered events are published on.
func (l *Locator) Events() <-chan Discovered { return l.events }

func (l *Locator) logf(format string, v ...interface{}) {
	monitoring.Tagged("locator:" + string(l.brand))(format, v...)
}

// Run blocks, starting/stopping per-interface listeners as netmon reports
// transitions, until ctx is cancelled.
func (l *Locator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.stopAll()
			return
		case ev, ok := <-l.monitor.Events():
			if !ok {
				return
			}
			if ev.Up {
				l.startOn(ctx, ev.Name, ev.Addr)
			} else {
				l.stopOn(ev.Name)
			}
		}
	}
}

func (l *Locator) startOn(parent context.Context, ifaceName, addr string) {
	l.mu.Lock()
	if _, ok := l.active[ifaceName]; ok {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	l.active[ifaceName] = cancel
	l.ifAddrs[ifaceName] = addr
	l.mu.Unlock()

	go l.listen(ctx, ifaceName)
}

func (l *Locator) stopOn(ifaceName string) {
	l.mu.Lock()
	cancel, ok := l.active[ifaceName]
	delete(l.active, ifaceName)
	delete(l.ifAddrs, ifaceName)
	l.mu.Unlock()
	if ok {
		cancel()
	}
}

func (l *Locator) stopAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for name, cancel := range l.active {
		cancel()
		delete(l.active, name)
	}
}

func (l *Locator) listen(ctx context.Context, ifaceName string) {
	conn, err := mcast.Join(l.group, l.port, ifaceName)
	if err != nil {
		l.logf("join %s:%d on %s failed: %v", l.group, l.port, ifaceName, err)
		return
	}
	defer conn.Close()
	l.logf("joined %s:%d on %s", l.group, l.port, ifaceName)

	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
			n, src, err := conn.ReadFromUDP(buf)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				l.logf("read error on %s: %v", ifaceName, err)
				continue
			}
			l.handleBeacon(buf[:n], ifaceName, src.IP.String())
		}
	}
}

func (l *Locator) handleBeacon(payload []byte, ifaceName, sourceIP string) {
	info, ok := l.decoder.DecodeBeacon(payload)
	if !ok {
		// Unknown packet shape: the datagram is dropped without being
		// counted or logged, and never propagated as an error.
		return
	}
	info.Endpoints.SourceIface = ifaceName
	info.Endpoints.SourceIP = sourceIP

	serialKey := info.Serial + info.Suffix
	dedupKey := string(l.brand) + "|" + serialKey + "|" + info.Endpoints.DataAddr

	l.mu.Lock()
	prev, existed := l.seen[dedupKey]
	stale := existed && time.Since(prev.lastSeen) > dedupWindow
	l.seen[dedupKey] = seenEntry{dataAddr: info.Endpoints.DataAddr, lastIf: ifaceName, lastSeen: time.Now()}
	candidates := make(map[string]string, len(l.ifAddrs))
	for k, v := range l.ifAddrs {
		candidates[k] = v
	}
	l.mu.Unlock()

	if existed && !stale {
		// Already known from some interface; only re-announce if this is a
		// better (subnet-matching) interface than the one we're using.
		best := mcast.BestInterface(sourceIP, candidates)
		if best == prev.lastIf {
			return
		}
	}

	key := model.Key{Brand: l.brand, SerialOrMAC: serialKey, DataEndpoint: info.Endpoints.DataAddr}
	select {
	case l.events <- Discovered{Key: key, Info: info}:
	default:
		l.logf("discovery event channel full, dropping a %s beacon", l.brand)
	}
}
