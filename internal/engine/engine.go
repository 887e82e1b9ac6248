// Package engine wires together every layer into one running process: the
// interface monitor feeds every enabled vendor's locator, each discovery
// creates a session registered in the arena, and the HTTP/WebSocket surface
// (internal/httpapi) is driven entirely off the arena and a thin Engine
// facade for recording/playback and interface status.
//
// This is the top-level orchestrator tying discovery, the arena, the
// distribution buses, and the recorder into one pipeline, using the same
// context-plus-cancellation-token idiom as internal/netmon, internal/locator
// and internal/session.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mayara-project/mayara/internal/arena"
	"github.com/mayara-project/mayara/internal/config"
	"github.com/mayara-project/mayara/internal/httpapi"
	"github.com/mayara-project/mayara/internal/locator"
	"github.com/mayara-project/mayara/internal/model"
	"github.com/mayara-project/mayara/internal/monitoring"
	"github.com/mayara-project/mayara/internal/netmon"
	"github.com/mayara-project/mayara/internal/recorder"
	"github.com/mayara-project/mayara/internal/session"
	"github.com/mayara-project/mayara/internal/vendor"
	"github.com/mayara-project/mayara/internal/vendor/furuno"
	"github.com/mayara-project/mayara/internal/vendor/garmin"
	"github.com/mayara-project/mayara/internal/vendor/navico"
	"github.com/mayara-project/mayara/internal/vendor/raymarine"
)

var logf = monitoring.Tagged("engine")

// vendorEntry binds one vendor's beacon addressing to its decoder
// constructor; New() is called once per discovered radar, since a Decoder
// carries per-radar identification state.
type vendorEntry struct {
	brand      model.Brand
	group      string
	port       int
	newDecoder func() vendor.Decoder
}

var vendorRegistry = []vendorEntry{
	{model.BrandNavico, navico.BeaconGroup, navico.BeaconPort, func() vendor.Decoder { return navico.New() }},
	{model.BrandFuruno, furuno.BeaconGroup, furuno.BeaconPort, func() vendor.Decoder { return furuno.New() }},
	{model.BrandGarmin, garmin.BeaconGroup, garmin.BeaconPort, func() vendor.Decoder { return garmin.New() }},
	{model.BrandRaymarine, raymarine.BeaconGroup, raymarine.BeaconPort, func() vendor.Decoder { return raymarine.New() }},
}

// SettingsSink is internal/session.SettingsSink, re-exported so callers
// assembling an Engine don't need to import internal/session directly.
type SettingsSink = session.SettingsSink

// Engine is the top-level process: it owns the interface monitor, every
// enabled vendor's locator, the session arena, and the recording manager.
type Engine struct {
	cfg      config.Config
	arena    *arena.Arena
	monitor  *netmon.Monitor
	settings SettingsSink
	recMgr   *recorder.Manager

	httpServer *http.Server

	mu          sync.Mutex
	ifaceAddrs  map[string]string // iface name -> CIDR, for /v2/api/interfaces
	recordingID string            // radar id currently being recorded, "" if none
	playbacks   map[string]func() // playback radar id -> cancel func
	sessionsWG  sync.WaitGroup
	rootCtx     context.Context
}

// New builds an Engine from cfg. settings may be nil, in which case
// installation-category controls are never persisted; the sink is treated
// as best-effort.
func New(cfg config.Config, settings SettingsSink) *Engine {
	return &Engine{
		cfg:        cfg,
		arena:      arena.New(),
		monitor:    netmon.New(time.Second),
		settings:   settings,
		recMgr:     recorder.NewManager(),
		ifaceAddrs: make(map[string]string),
		playbacks:  make(map[string]func()),
	}
}

// Arena satisfies httpapi.Engine.
func (e *Engine) Arena() *arena.Arena { return e.arena }

// Run starts the interface monitor and every enabled vendor's locator, and
// blocks until ctx is cancelled. A global shutdown cancels every session,
// flushes any active recording, and returns within a bounded window.
func (e *Engine) Run(ctx context.Context) {
	e.rootCtx = ctx

	fan := newFanout(e.monitor.Events())
	go fan.run(ctx)
	go e.monitor.Run(ctx)
	go e.trackInterfaces(ctx, fan.subscribe(8))

	if e.cfg.Replay != "" {
		if _, err := e.StartPlayback(e.cfg.Replay, 100, false); err != nil {
			logf("startup replay of %s failed: %v", e.cfg.Replay, err)
		}
	}

	var wg sync.WaitGroup
	for _, v := range vendorRegistry {
		if !e.cfg.BrandEnabled(string(v.brand)) {
			continue
		}
		v := v
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runLocator(ctx, v, fan.subscribe(16))
		}()
	}

	e.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", e.cfg.HTTPPort),
		Handler: e.HTTPHandler(),
	}
	go func() {
		if err := e.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logf("http listener stopped: %v", err)
		}
	}()

	<-ctx.Done()
	e.shutdown(&wg)
}

// shutdown waits (bounded) for locators to unwind and flushes any active
// recording, honouring a bounded global-shutdown budget.
func (e *Engine) shutdown(locators *sync.WaitGroup) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if e.httpServer != nil {
		_ = e.httpServer.Shutdown(shutdownCtx)
	}

	done := make(chan struct{})
	go func() {
		locators.Wait()
		e.sessionsWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		logf("shutdown exceeded 2s budget, proceeding anyway")
	}

	if _, active := e.recMgr.Active(); active {
		if _, err := e.recMgr.Stop(); err != nil {
			logf("failed to flush active recording on shutdown: %v", err)
		}
	}
}

func (e *Engine) runLocator(ctx context.Context, v vendorEntry, events <-chan netmon.Event) {
	sharedDecoder := v.newDecoder()
	l := locator.New(v.brand, v.group, v.port, sharedDecoder, channelEventSource{events})
	go func() {
		for ev := range l.Events() {
			e.onDiscovered(ctx, v, ev)
		}
	}()
	l.Run(ctx)
}

// channelEventSource adapts a plain <-chan netmon.Event (one locator's
// fan-out subscription) to locator.EventSource.
type channelEventSource struct{ ch <-chan netmon.Event }

func (c channelEventSource) Events() <-chan netmon.Event { return c.ch }

// radarID derives the stable, URL-safe identifier from a dedup key.
func radarID(key model.Key) string {
	serial := key.SerialOrMAC
	if serial == "" {
		serial = sanitizeID(key.DataEndpoint)
	}
	return fmt.Sprintf("%s-%s", key.Brand, sanitizeID(serial))
}

func sanitizeID(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}

func (e *Engine) onDiscovered(ctx context.Context, v vendorEntry, ev locator.Discovered) {
	id := radarID(ev.Key)

	if existing, ok := e.arena.Get(id); ok {
		if s, ok := existing.(*session.Session); ok && s.State() != model.StateLost {
			return // already tracked; duplicate beacon or re-announcement
		}
	}

	endpoints := ev.Info.Endpoints
	if v.brand == model.BrandFuruno && endpoints.ReportAddr == "" && endpoints.SourceIP != "" {
		endpoints.ReportAddr = fmt.Sprintf("%s:%d", endpoints.SourceIP, furuno.ReportPort)
		endpoints.ReportTransport = "tcp"
	}

	sess := session.New(id, ev.Key, v.newDecoder(), endpoints, e.settings)
	e.arena.Put(sess)
	logf("discovered %s radar %s at %s", v.brand, id, endpoints.DataAddr)

	e.sessionsWG.Add(1)
	go func() {
		defer e.sessionsWG.Done()
		defer e.arena.Remove(id)
		sess.Run(ctx)
	}()
}

// Interfaces satisfies httpapi.Engine: GET /v2/api/interfaces.
func (e *Engine) Interfaces() []httpapi.InterfaceStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]httpapi.InterfaceStatus, 0, len(e.ifaceAddrs))
	for name, addr := range e.ifaceAddrs {
		brands := make(map[string]string)
		for _, v := range vendorRegistry {
			if e.cfg.BrandEnabled(string(v.brand)) {
				brands[string(v.brand)] = "Listening"
			}
		}
		out = append(out, httpapi.InterfaceStatus{Name: name, Addr: addr, Brands: brands})
	}
	return out
}

func (e *Engine) trackInterfaces(ctx context.Context, events <-chan netmon.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.mu.Lock()
			if ev.Up {
				e.ifaceAddrs[ev.Name] = ev.Addr
			} else {
				delete(e.ifaceAddrs, ev.Name)
			}
			e.mu.Unlock()
		}
	}
}

// StartRecording satisfies httpapi.Engine: POST /v2/api/recordings.
func (e *Engine) StartRecording(path, radarID string) (recorder.Summary, error) {
	raw, ok := e.arena.Get(radarID)
	if !ok {
		return recorder.Summary{}, fmt.Errorf("engine: unknown radar %q", radarID)
	}
	sess, ok := raw.(*session.Session)
	if !ok || sess.IsPlayback() {
		return recorder.Summary{}, fmt.Errorf("engine: radar %q cannot be recorded", radarID)
	}

	rec, err := e.recMgr.Start(path, sess.Key().Brand, radarID, sess.Endpoints())
	if err != nil {
		return recorder.Summary{}, err
	}

	sess.SetRecorderHooks(
		func(payload []byte) { _ = rec.WriteFrame(recorder.SourceData, payload) },
		func(payload []byte) { _ = rec.WriteFrame(recorder.SourceReport, payload) },
	)

	e.mu.Lock()
	e.recordingID = radarID
	e.mu.Unlock()

	return recorder.Summary{Path: rec.Path()}, nil
}

// StopRecording satisfies httpapi.Engine: DELETE /v2/api/recordings.
func (e *Engine) StopRecording() (recorder.Summary, error) {
	summary, err := e.recMgr.Stop()
	if err != nil {
		return recorder.Summary{}, err
	}

	e.mu.Lock()
	id := e.recordingID
	e.recordingID = ""
	e.mu.Unlock()

	if raw, ok := e.arena.Get(id); ok {
		if sess, ok := raw.(*session.Session); ok {
			sess.SetRecorderHooks(nil, nil)
		}
	}
	return summary, nil
}

// ActiveRecordingPath satisfies httpapi.Engine: GET /v2/api/recordings.
func (e *Engine) ActiveRecordingPath() (string, bool) {
	rec, ok := e.recMgr.Active()
	if !ok {
		return "", false
	}
	return rec.Path(), true
}

// newDecoderForBrand looks up the decoder constructor for a vendor, used by
// StartPlayback to rebuild the decoder a recording's header names.
func newDecoderForBrand(brand model.Brand) (vendor.Decoder, bool) {
	for _, v := range vendorRegistry {
		if v.brand == brand {
			return v.newDecoder(), true
		}
	}
	return nil, false
}

// StartPlayback satisfies httpapi.Engine: POST /v2/api/recordings/playback.
// It synthesises a virtual, read-only "playback-*" radar fed
// from the .mrr file's payloads re-injected into the same decode pipeline a
// live radar of that vendor would use.
func (e *Engine) StartPlayback(path string, speedPercent int, loop bool) (string, error) {
	player, err := recorder.Open(path)
	if err != nil {
		return "", err
	}

	header := player.Header()
	decoder, ok := newDecoderForBrand(header.Brand)
	if !ok {
		player.Close()
		return "", fmt.Errorf("engine: unsupported playback brand %q", header.Brand)
	}

	id := "playback-" + uuid.NewString()
	key := model.Key{Brand: header.Brand, SerialOrMAC: id, DataEndpoint: header.Endpoints.DataAddr}
	sess := session.New(id, key, decoder, header.Endpoints, nil)
	sess.MarkPlayback()
	e.arena.Put(sess)

	parent := e.rootCtx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	e.mu.Lock()
	e.playbacks[id] = cancel
	e.mu.Unlock()

	speed := float64(speedPercent) / 100.0
	if speed <= 0 {
		speed = 1.0
	}

	e.sessionsWG.Add(1)
	go func() {
		defer e.sessionsWG.Done()
		defer cancel()
		defer e.arena.Remove(id)
		sess.RunPlayback(ctx)
	}()

	go func() {
		defer player.Close()
		if err := player.Run(ctx, 0, speed, loop, sess.FeedData, sess.FeedReport); err != nil {
			logf("playback %s ended: %v", id, err)
		}
		cancel()
	}()

	return id, nil
}

// HTTPHandler builds the net/http handler for this engine's external API
// wired through internal/httpapi.
func (e *Engine) HTTPHandler() http.Handler {
	return httpapi.New(e)
}
