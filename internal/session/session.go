// Package session implements the per-radar state machine and the three
// long-lived tasks: a data receiver, a report receiver, and a command
// sender. The receive loops use a context-driven read loop with short read
// deadlines so cancellation is noticed promptly, the same idiom
// internal/locator and internal/netmon use. A session never holds a
// reference to its subscribers, only to the two buses it owns, handing its
// output to the rest of the engine through the arena/bus design.
package session

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mayara-project/mayara/internal/bus"
	"github.com/mayara-project/mayara/internal/mcast"
	"github.com/mayara-project/mayara/internal/model"
	"github.com/mayara-project/mayara/internal/monitoring"
	"github.com/mayara-project/mayara/internal/vendor"
)

// Delta is one control-value update published on a session's delta bus.
type Delta struct {
	ControlID string
	Value     model.ControlValue
}

// deltaBusCapacity is the per-subscriber queue capacity of the delta bus.
// The spoke bus is sized in New from the decoder's SpokesPerRevolution
// (one full revolution), or 2048 when that is unset.
const deltaBusCapacity = 64

// protocolViolationThreshold and protocolViolationWindow: repeated
// malformed packets exceeding this threshold within this window
// transitions the session to Lost.
const (
	protocolViolationThreshold = 100
	protocolViolationWindow    = 10 * time.Second
)

// commandRateLimit is the minimum spacing between outgoing commands for
// the same controlId: at most one outgoing command per (radarId,
// controlId) per ~50ms, collapsing duplicates.
const commandRateLimit = 50 * time.Millisecond

// Identifier is satisfied by vendor decoders whose model/firmware
// identification happens as a handshake over the TCP report connection
// itself rather than via the beacon (the Furuno TCP $N96 query). The
// report task writes IdentificationQuery() once immediately
// after dialing and feeds the first line back through
// DecodeIdentificationResponse before normal report parsing begins.
type Identifier interface {
	IdentificationQuery() string
	DecodeIdentificationResponse(line string) (model string, serial string, ok bool)
}

// SettingsSink persists installation-category control values, keyed by a
// stable radar key rather than the (possibly reused) session id.
type SettingsSink interface {
	Get(ctx context.Context, radarKey string) (map[string]float64, error)
	Put(ctx context.Context, radarKey, controlID string, value float64) error
}

// command is one queued client set-request.
type command struct {
	controlID string
	value     model.ControlValue
}

// Session owns one radar's RadarState and lifecycle. A Session is created
// by the engine on discovery and registered in the arena; it is never
// shared between two radars.
type Session struct {
	id        string
	key       model.Key
	decoder   vendor.Decoder
	endpoints model.Endpoints
	playback  bool // true for a recording-backed virtual radar; rejects writes

	state *model.RadarState

	spokeBus *bus.Bus[model.Spoke]
	deltaBus *bus.Bus[Delta]

	lifecycle atomic.Value // model.State

	stats struct {
		packetsReceived uint64
		spokesEmitted   uint64
		decodeErrors    uint64
	}

	violationsMu sync.Mutex
	violations   []time.Time

	lastRange int

	commands   chan command
	lastSentMu sync.Mutex
	lastSent   map[string]time.Time

	settings       SettingsSink
	settingsApplied atomic.Bool
	onRawData      func([]byte)
	onRawReport    func([]byte)

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Session for a discovered radar. id is the stable,
// URL-safe identifier the HTTP layer uses; key is the radar's dedup
// identity.
func New(id string, key model.Key, decoder vendor.Decoder, endpoints model.Endpoints, settings SettingsSink) *Session {
	caps := decoder.Characteristics()
	spokeCapacity := caps.SpokesPerRevolution
	if spokeCapacity <= 0 {
		spokeCapacity = 2048
	}

	s := &Session{
		id:        id,
		key:       key,
		decoder:   decoder,
		endpoints: endpoints,
		state:     model.NewRadarState(),
		spokeBus:  bus.New[model.Spoke](spokeCapacity, bus.DropOldest[model.Spoke]),
		deltaBus: bus.New[Delta](deltaBusCapacity, bus.CoalesceByKey(func(d Delta) string {
			return d.ControlID
		})),
		commands: make(chan command, 32),
		lastSent: make(map[string]time.Time),
		settings: settings,
		done:     make(chan struct{}),
	}
	s.lifecycle.Store(model.StateSearching)
	return s
}

// ID satisfies arena.Session.
func (s *Session) ID() string { return s.id }

// Key returns the radar's dedup/persistence identity.
func (s *Session) Key() model.Key { return s.key }

// State returns the current lifecycle state.
func (s *Session) State() model.State { return s.lifecycle.Load().(model.State) }

func (s *Session) setState(st model.State) {
	s.lifecycle.Store(st)
}

// IsPlayback reports whether this session is a virtual, recording-backed
// radar; controls on a playback radar are read-only.
func (s *Session) IsPlayback() bool { return s.playback }

// MarkPlayback flags this session as playback-only; used by the player
// when it synthesises a playback-* session.
func (s *Session) MarkPlayback() { s.playback = true }

// Endpoints returns the radar's network addressing, as discovered. Used by
// the recorder to stamp a .mrr header with the original endpoint tuple.
func (s *Session) Endpoints() model.Endpoints { return s.endpoints }

// Capabilities returns the decoder's current capability descriptor.
func (s *Session) Capabilities() model.Capabilities { return s.decoder.Characteristics() }

// StateSnapshot returns the current control-value map.
func (s *Session) StateSnapshot() map[string]model.ControlValue { return s.state.Snapshot() }

// SpokeBus returns the session's spoke distribution bus.
func (s *Session) SpokeBus() *bus.Bus[model.Spoke] { return s.spokeBus }

// DeltaBus returns the session's control-delta distribution bus.
func (s *Session) DeltaBus() *bus.Bus[Delta] { return s.deltaBus }

// Stats returns a snapshot of diagnostic counters.
func (s *Session) Stats() model.Stats {
	return model.Stats{
		PacketsReceived: atomic.LoadUint64(&s.stats.packetsReceived),
		SpokesEmitted:   atomic.LoadUint64(&s.stats.spokesEmitted),
		DecodeErrors:    atomic.LoadUint64(&s.stats.decodeErrors),
		SpokesDropped:   0,
	}
}

// SetRecorderHooks installs callbacks the recorder uses to capture raw
// payloads before decoding, attaching to the raw socket layer ahead of
// the decode pipeline. Passing nil for either disables that hook.
func (s *Session) SetRecorderHooks(onRawData, onRawReport func([]byte)) {
	s.onRawData = onRawData
	s.onRawReport = onRawReport
}

func (s *Session) logf(format string, v ...interface{}) {
	monitoring.Tagged("session:" + s.id)(format, v...)
}

// Run starts the data, report, and command-sender tasks and blocks until
// ctx is cancelled or the session transitions to Lost. Cancellation
// propagates to all three tasks and the state is set to Lost within
// 250ms.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer close(s.done)
	defer s.setState(model.StateLost)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); s.runData(ctx) }()

	if s.endpoints.ReportAddr != "" {
		wg.Add(1)
		go func() { defer wg.Done(); s.runReport(ctx) }()
	}

	wg.Add(1)
	go func() { defer wg.Done(); s.runCommandSender(ctx) }()

	heartbeat := time.NewTimer(s.decoder.HeartbeatTimeout())
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-heartbeat.C:
			s.logf("heartbeat window elapsed with no report, marking lost")
			cancel()
			wg.Wait()
			return
		}
	}
}

// Stop cancels the session's context, triggering the Lost transition.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

// FeedData feeds a raw data payload directly into the decode pipeline,
// bypassing the socket read loop. Used by the recording player to drive a
// playback-backed virtual radar from a .mrr file.
func (s *Session) FeedData(payload []byte) {
	atomic.AddUint64(&s.stats.packetsReceived, 1)
	s.handleData(payload)
}

// FeedReport is FeedData's report-channel counterpart.
func (s *Session) FeedReport(payload []byte) {
	s.handleReport(payload)
}

// RunPlayback is Run's counterpart for a playback session: no sockets are
// opened, since the player feeds payloads directly through FeedData and
// FeedReport, but the lifecycle still observes cancellation and reaches
// Lost, so the arena and buses treat live and virtual radars uniformly.
func (s *Session) RunPlayback(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer close(s.done)
	defer s.setState(model.StateLost)
	s.setState(model.StateActive)
	<-ctx.Done()
}

func (s *Session) runData(ctx context.Context) {
	conn, err := mcast.Join(groupOf(s.endpoints.DataAddr), portOf(s.endpoints.DataAddr), s.endpoints.SourceIface)
	if err != nil {
		s.logf("data socket join failed: %v", err)
		return
	}
	defer conn.Close()

	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			atomic.AddUint64(&s.stats.packetsReceived, 1)
			payload := append([]byte(nil), buf[:n]...)
			if s.onRawData != nil {
				s.onRawData(payload)
			}
			s.handleData(payload)
		}
	}
}

func (s *Session) handleData(payload []byte) {
	spokes, err := s.decoder.DecodeData(payload)
	if err != nil {
		s.noteDecodeError(err)
		return
	}
	for _, sp := range spokes {
		atomic.AddUint64(&s.stats.spokesEmitted, 1)
		s.spokeBus.Publish(sp)

		if sp.Range > 0 && sp.Range != s.lastRange {
			s.lastRange = sp.Range
			s.publishDelta(model.ControlRange, model.ControlValue{Value: float64(sp.Range), Units: "m"})
		}
	}
	if len(spokes) > 0 && s.State() == model.StateSearching {
		s.setState(model.StateIdentifying)
	}
}

func (s *Session) runReport(ctx context.Context) {
	if s.endpoints.ReportTransport == "tcp" {
		s.runReportTCP(ctx)
		return
	}
	s.runReportUDP(ctx)
}

func (s *Session) runReportUDP(ctx context.Context) {
	conn, err := mcast.Join(groupOf(s.endpoints.ReportAddr), portOf(s.endpoints.ReportAddr), s.endpoints.SourceIface)
	if err != nil {
		s.logf("report socket join failed: %v", err)
		return
	}
	defer conn.Close()

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			payload := append([]byte(nil), buf[:n]...)
			if s.onRawReport != nil {
				s.onRawReport(payload)
			}
			s.handleReport(payload)
		}
	}
}

// runReportTCP dials the report endpoint with reconnect/backoff: TCP
// control connections (Furuno) reconnect with exponential backoff
// (500ms -> 30s, reset on success).
func (s *Session) runReportTCP(ctx context.Context) {
	backoffDur := 500 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := net.DialTimeout("tcp", s.endpoints.ReportAddr, 5*time.Second)
		if err != nil {
			s.logf("report TCP dial failed: %v, retrying in %s", err, backoffDur)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoffDur):
			}
			backoffDur *= 2
			if backoffDur > maxBackoff {
				backoffDur = maxBackoff
			}
			continue
		}

		backoffDur = 500 * time.Millisecond
		br := bufio.NewReader(conn)
		if idr, ok := s.decoder.(Identifier); ok {
			if err := s.performIdentification(conn, br, idr); err != nil {
				s.logf("identification handshake failed: %v", err)
				conn.Close()
				continue
			}
		}
		s.readReportStream(ctx, conn, br)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
	}
}

// performIdentification writes the decoder's handshake query and feeds the
// first response line back through DecodeIdentificationResponse, so
// Characteristics() reflects the identified model before any report is
// applied to RadarState: the transition from Identifying to Active
// happens only after the vendor-specific model/firmware handshake.
func (s *Session) performIdentification(conn net.Conn, br *bufio.Reader, idr Identifier) error {
	if _, err := conn.Write([]byte(idr.IdentificationQuery())); err != nil {
		return fmt.Errorf("write query: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := br.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if modelName, serial, ok := idr.DecodeIdentificationResponse(line); ok {
		s.logf("identified as %s/%s", modelName, serial)
	}
	return nil
}

func (s *Session) readReportStream(ctx context.Context, conn net.Conn, br *bufio.Reader) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
			n, err := br.Read(buf)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				return
			}
			payload := append([]byte(nil), buf[:n]...)
			if s.onRawReport != nil {
				s.onRawReport(payload)
			}
			s.handleReport(payload)
		}
	}
}

func (s *Session) handleReport(payload []byte) {
	updates, err := s.decoder.DecodeReport(payload)
	if err != nil {
		s.noteDecodeError(err)
		return
	}
	for _, u := range updates {
		s.state.Set(u.ControlID, u.Value)
		s.publishDelta(u.ControlID, u.Value)
	}
	if len(updates) > 0 {
		switch s.State() {
		case model.StateSearching, model.StateIdentifying:
			s.setState(model.StateActive)
			s.applyPersistedSettings()
		}
	}
}

// applyPersistedSettings re-applies installation-category control values
// from the settings sink after identification completes: on next
// discovery of the same radarKey, the session re-applies persisted
// installation settings once identification completes. Runs at most once
// per session, best-effort (sink failures are logged only).
func (s *Session) applyPersistedSettings() {
	if s.settings == nil || s.playback {
		return
	}
	if !s.settingsApplied.CompareAndSwap(false, true) {
		return
	}

	values, err := s.settings.Get(context.Background(), s.key.String())
	if err != nil {
		s.logf("installation settings lookup failed: %v", err)
		return
	}
	caps := s.decoder.Characteristics()
	for controlID, value := range values {
		desc, ok := caps.Controls[controlID]
		if !ok || desc.Category != model.CategoryInstallation {
			continue
		}
		s.Set(controlID, model.ControlValue{Value: value})
	}
}

func (s *Session) publishDelta(controlID string, v model.ControlValue) {
	s.deltaBus.Publish(Delta{ControlID: controlID, Value: v})
}

// noteDecodeError counts a decode error per-radar, logs it (the logger
// has no debug level, so every decode error is printed),
// drops the packet, and escalates to Lost if the protocol-violation
// threshold is exceeded.
func (s *Session) noteDecodeError(err error) {
	atomic.AddUint64(&s.stats.decodeErrors, 1)
	s.logf("decode error: %v", err)

	now := time.Now()
	s.violationsMu.Lock()
	s.violations = append(s.violations, now)
	cutoff := now.Add(-protocolViolationWindow)
	i := 0
	for ; i < len(s.violations); i++ {
		if s.violations[i].After(cutoff) {
			break
		}
	}
	s.violations = s.violations[i:]
	exceeded := len(s.violations) > protocolViolationThreshold
	s.violationsMu.Unlock()

	if exceeded {
		s.logf("protocol violation threshold exceeded, marking lost")
		if s.cancel != nil {
			s.cancel()
		}
	}
}

// Set queues a client control change; SetRangeMeters applies the range-selection
// algorithm before queuing. Playback sessions reject every write (checked
// by the HTTP layer via engineerr.ErrPlaybackReadOnly before this is even
// called, but enforced here too as a safety net).
func (s *Session) Set(controlID string, value model.ControlValue) bool {
	if s.playback {
		return false
	}

	if desc, ok := s.decoder.Characteristics().Controls[controlID]; ok && desc.Category == model.CategoryInstallation && s.settings != nil {
		if err := s.settings.Put(context.Background(), s.key.String(), controlID, value.Value); err != nil {
			s.logf("installation settings persist failed for %s: %v", controlID, err)
		}
	}

	select {
	case s.commands <- command{controlID: controlID, value: value}:
		return true
	default:
		return false
	}
}

// SetRangeMeters applies the range-selection algorithm (round up to the
// next supported range) before queuing the command.
func (s *Session) SetRangeMeters(requested int) bool {
	caps := s.decoder.Characteristics()
	rounded := caps.NextSupportedRange(requested)
	return s.Set(model.ControlRange, model.ControlValue{Value: float64(rounded), Units: "m"})
}

func (s *Session) runCommandSender(ctx context.Context) {
	var conn *net.UDPConn
	if s.endpoints.SendAddr != "" {
		addr, err := net.ResolveUDPAddr("udp4", s.endpoints.SendAddr)
		if err == nil {
			conn, _ = net.DialUDP("udp4", nil, addr)
		}
	}
	if conn != nil {
		defer conn.Close()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.commands:
			s.sendCommand(conn, cmd)
		}
	}
}

func (s *Session) sendCommand(conn *net.UDPConn, cmd command) {
	s.lastSentMu.Lock()
	last, ok := s.lastSent[cmd.controlID]
	if ok && time.Since(last) < commandRateLimit {
		s.lastSentMu.Unlock()
		return
	}
	s.lastSent[cmd.controlID] = time.Now()
	s.lastSentMu.Unlock()

	packets, err := s.decoder.EncodeCommand(cmd.controlID, cmd.value)
	if err != nil {
		s.logf("encode command %s failed: %v", cmd.controlID, err)
		return
	}
	if conn == nil {
		return
	}
	for _, p := range packets {
		if _, err := conn.Write(p); err != nil {
			s.logf("send command %s failed: %v", cmd.controlID, err)
			return
		}
	}
}

func groupOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func portOf(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	var port int
	for _, c := range portStr {
		if c < '0' || c > '9' {
			return 0
		}
		port = port*10 + int(c-'0')
	}
	return port
}
