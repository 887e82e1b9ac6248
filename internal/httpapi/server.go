// Package httpapi implements the external HTTP/WebSocket surface: the REST
// endpoints over radar capabilities/state/controls, the binary spoke
// WebSocket, the Signal K delta stream, interface status, and
// recording/playback control. Handlers are plain net/http methods on a
// Server struct, JSON in/out, with github.com/coder/websocket for the two
// WebSocket endpoints. 4xx responses use internal/engineerr's taxonomy so
// every client-visible error carries the same machine-readable code
// regardless of which handler produced it.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/mayara-project/mayara/internal/arena"
	"github.com/mayara-project/mayara/internal/bus"
	"github.com/mayara-project/mayara/internal/engineerr"
	"github.com/mayara-project/mayara/internal/model"
	"github.com/mayara-project/mayara/internal/monitoring"
	"github.com/mayara-project/mayara/internal/recorder"
	"github.com/mayara-project/mayara/internal/session"
	"github.com/mayara-project/mayara/internal/wire/spokepb"
)

var logf = monitoring.Tagged("httpapi")

// RadarSession is the subset of session.Session's API the HTTP layer
// needs. internal/session.Session satisfies it structurally; kept as a
// local interface so this package can be tested against a fake.
type RadarSession interface {
	ID() string
	Key() model.Key
	State() model.State
	IsPlayback() bool
	Capabilities() model.Capabilities
	StateSnapshot() map[string]model.ControlValue
	Stats() model.Stats
	SpokeBus() *bus.Bus[model.Spoke]
	DeltaBus() *bus.Bus[session.Delta]
	Set(controlID string, value model.ControlValue) bool
	SetRangeMeters(meters int) bool
}

// InterfaceStatus describes one interface's per-vendor listener state, for
// GET /v2/api/interfaces.
type InterfaceStatus struct {
	Name   string            `json:"name"`
	Addr   string            `json:"addr"`
	Brands map[string]string `json:"brands"` // brand -> "Listening"
}

// Engine is the subset of the top-level engine the HTTP layer drives:
// recording/playback control and interface status, which don't belong to
// any single radar session.
type Engine interface {
	Arena() *arena.Arena
	Interfaces() []InterfaceStatus
	StartRecording(path, radarID string) (recorder.Summary, error)
	StopRecording() (recorder.Summary, error)
	StartPlayback(path string, speedPercent int, loop bool) (string, error)
	ActiveRecordingPath() (string, bool)
}

// Server is the HTTP handler for the gateway's external API.
type Server struct {
	mux    *http.ServeMux
	engine Engine
}

// New builds a Server wired to engine and registers every route.
func New(engine Engine) *Server {
	s := &Server{mux: http.NewServeMux(), engine: engine}
	s.mux.HandleFunc("GET /v2/api/radars", s.handleListRadars)
	s.mux.HandleFunc("GET /v2/api/radars/{id}/capabilities", s.handleCapabilities)
	s.mux.HandleFunc("GET /v2/api/radars/{id}/state", s.handleState)
	s.mux.HandleFunc("PUT /v2/api/radars/{id}/controls/{controlId}", s.handleSetControl)
	s.mux.HandleFunc("GET /v2/api/radars/{id}/spokes", s.handleSpokesWS)
	s.mux.HandleFunc("GET /v3/api/stream", s.handleSignalKStream)
	s.mux.HandleFunc("GET /v2/api/interfaces", s.handleInterfaces)
	s.mux.HandleFunc("POST /v2/api/recordings", s.handleStartRecording)
	s.mux.HandleFunc("GET /v2/api/recordings", s.handleGetRecording)
	s.mux.HandleFunc("DELETE /v2/api/recordings", s.handleStopRecording)
	s.mux.HandleFunc("POST /v2/api/recordings/playback", s.handleStartPlayback)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) radar(id string) (RadarSession, bool) {
	raw, ok := s.engine.Arena().Get(id)
	if !ok {
		return nil, false
	}
	rs, ok := raw.(RadarSession)
	return rs, ok
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeClientError(w http.ResponseWriter, err *engineerr.ClientError) {
	writeJSON(w, engineerr.HTTPStatus(err.Code), map[string]string{
		"code":    string(err.Code),
		"message": err.Message,
	})
}

func summaryOf(rs RadarSession) model.Summary {
	caps := rs.Capabilities()
	return model.Summary{
		ID:           rs.ID(),
		Brand:        rs.Key().Brand,
		Model:        caps.Model,
		State:        rs.State(),
		SerialNumber: caps.SerialNumber,
	}
}

func (s *Server) handleListRadars(w http.ResponseWriter, r *http.Request) {
	sessions := s.engine.Arena().All()
	out := make(map[string]model.Summary, len(sessions))
	for _, raw := range sessions {
		if rs, ok := raw.(RadarSession); ok {
			out[rs.ID()] = summaryOf(rs)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	rs, ok := s.radar(r.PathValue("id"))
	if !ok {
		writeClientError(w, engineerr.ErrUnknownRadar)
		return
	}
	writeJSON(w, http.StatusOK, rs.Capabilities())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	rs, ok := s.radar(r.PathValue("id"))
	if !ok {
		writeClientError(w, engineerr.ErrUnknownRadar)
		return
	}
	writeJSON(w, http.StatusOK, rs.StateSnapshot())
}

// controlWriteBody is the PUT body shape: { value, auto?, enabled?,
// autoValue? }.
type controlWriteBody struct {
	Value     float64  `json:"value"`
	Auto      *bool    `json:"auto,omitempty"`
	Enabled   *bool    `json:"enabled,omitempty"`
	AutoValue *float64 `json:"autoValue,omitempty"`
}

func (s *Server) handleSetControl(w http.ResponseWriter, r *http.Request) {
	rs, ok := s.radar(r.PathValue("id"))
	if !ok {
		writeClientError(w, engineerr.ErrUnknownRadar)
		return
	}
	controlID := r.PathValue("controlId")

	if rs.IsPlayback() {
		writeClientError(w, engineerr.ErrPlaybackReadOnly)
		return
	}

	desc, ok := rs.Capabilities().Controls[controlID]
	if !ok {
		writeClientError(w, engineerr.ErrUnknownControl)
		return
	}
	if desc.ReadOnly {
		writeClientError(w, engineerr.ErrReadOnlyControl)
		return
	}

	var body controlWriteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeClientError(w, engineerr.ErrInvalidValue)
		return
	}
	if desc.Range != nil && (body.Value < desc.Range.Min || body.Value > desc.Range.Max) {
		writeClientError(w, engineerr.ErrOutOfRange)
		return
	}

	value := model.ControlValue{Value: body.Value, Auto: body.Auto, Enabled: body.Enabled, AutoValue: body.AutoValue}

	var accepted bool
	if controlID == model.ControlRange {
		accepted = rs.SetRangeMeters(int(body.Value))
	} else {
		accepted = rs.Set(controlID, value)
	}
	if !accepted {
		http.Error(w, "command queue full", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSpokesWS(w http.ResponseWriter, r *http.Request) {
	rs, ok := s.radar(r.PathValue("id"))
	if !ok {
		writeClientError(w, engineerr.ErrUnknownRadar)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	sub := rs.SpokeBus().Subscribe()
	defer sub.Unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client disconnected")
			return
		case sp, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "radar lost")
				return
			}
			frame := spokepb.EncodeRadarMessage([]model.Spoke{sp})
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageBinary, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// signalKDelta is a minimal Signal K delta message carrying one radar
// control update, delivered over the Signal K delta stream as
// radars.<id>.controls.<controlId> updates.
type signalKDelta struct {
	Context string `json:"context"`
	Updates []struct {
		Timestamp string `json:"timestamp"`
		Values    []struct {
			Path  string      `json:"path"`
			Value interface{} `json:"value"`
		} `json:"values"`
	} `json:"updates"`
}

func newSignalKDelta(radarID, controlID string, v model.ControlValue) signalKDelta {
	d := signalKDelta{Context: "vessels.self"}
	d.Updates = []struct {
		Timestamp string `json:"timestamp"`
		Values    []struct {
			Path  string      `json:"path"`
			Value interface{} `json:"value"`
		} `json:"values"`
	}{{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Values: []struct {
			Path  string      `json:"path"`
			Value interface{} `json:"value"`
		}{{
			Path:  "radars." + radarID + ".controls." + controlID,
			Value: v.Effective(),
		}},
	}}
	return d
}

func (s *Server) handleSignalKStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	out := make(chan signalKDelta, 64)

	// Every currently active radar's delta bus is fanned into one
	// outgoing channel; a radar discovered after the connection opens is
	// deliberately not picked up, matching the snapshot-subscription
	// semantics of the spoke WebSocket.
	var unsubs []func()
	for _, raw := range s.engine.Arena().All() {
		rs, ok := raw.(RadarSession)
		if !ok {
			continue
		}
		sub := rs.DeltaBus().Subscribe()
		unsubs = append(unsubs, sub.Unsubscribe)
		go func(radarID string, c <-chan session.Delta) {
			for {
				select {
				case <-ctx.Done():
					return
				case delta, ok := <-c:
					if !ok {
						return
					}
					select {
					case out <- newSignalKDelta(radarID, delta.ControlID, delta.Value):
					default:
						logf("signalk stream backpressure, dropping a delta for %s", radarID)
					}
				}
			}
		}(rs.ID(), sub.C)
	}
	defer func() {
		for _, u := range unsubs {
			u()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client disconnected")
			return
		case d := <-out:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, mustJSON(d))
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func (s *Server) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Interfaces())
}

type startRecordingBody struct {
	RadarID string `json:"radarId"`
	Path    string `json:"path"`
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	var body startRecordingBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RadarID == "" || body.Path == "" {
		http.Error(w, "radarId and path are required", http.StatusBadRequest)
		return
	}
	summary, err := s.engine.StartRecording(body.Path, body.RadarID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	path, active := s.engine.ActiveRecordingPath()
	writeJSON(w, http.StatusOK, map[string]interface{}{"active": active, "path": path})
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.StopRecording()
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStartPlayback(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}
	speedPercent, loop := playbackQuery(r)
	radarID, err := s.engine.StartPlayback(path, speedPercent, loop)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"radarId": radarID})
}

// playbackQuery parses ?speed=<percent>&loop=<bool> for a playback start.
// Playback speed ranges 0.25x-4x, expressed here as an integer percentage
// so the query string stays free of decimal-point escaping concerns.
func playbackQuery(r *http.Request) (speedPercent int, loop bool) {
	speedPercent = 100
	if v := r.URL.Query().Get("speed"); v != "" {
		var parsed int
		for _, c := range v {
			if c < '0' || c > '9' {
				return 100, strings.EqualFold(r.URL.Query().Get("loop"), "true")
			}
			parsed = parsed*10 + int(c-'0')
		}
		speedPercent = parsed
	}
	loop = strings.EqualFold(r.URL.Query().Get("loop"), "true")
	return speedPercent, loop
}
