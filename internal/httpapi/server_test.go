package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/mayara-project/mayara/internal/arena"
	"github.com/mayara-project/mayara/internal/bus"
	"github.com/mayara-project/mayara/internal/model"
	"github.com/mayara-project/mayara/internal/recorder"
	"github.com/mayara-project/mayara/internal/session"
)

// fakeRadarSession implements RadarSession (and arena.Session via ID) with
// just enough behavior for the handlers under test.
type fakeRadarSession struct {
	id    string
	key   model.Key
	state model.State
	caps  model.Capabilities
}

func (f *fakeRadarSession) ID() string                       { return f.id }
func (f *fakeRadarSession) Key() model.Key                   { return f.key }
func (f *fakeRadarSession) State() model.State               { return f.state }
func (f *fakeRadarSession) IsPlayback() bool                 { return false }
func (f *fakeRadarSession) Capabilities() model.Capabilities { return f.caps }
func (f *fakeRadarSession) StateSnapshot() map[string]model.ControlValue { return nil }
func (f *fakeRadarSession) Stats() model.Stats { return model.Stats{} }
func (f *fakeRadarSession) SpokeBus() *bus.Bus[model.Spoke] {
	return bus.New[model.Spoke](1, bus.DropOldest[model.Spoke])
}
func (f *fakeRadarSession) DeltaBus() *bus.Bus[session.Delta] {
	return bus.New[session.Delta](1, bus.DropOldest[session.Delta])
}
func (f *fakeRadarSession) Set(controlID string, value model.ControlValue) bool { return true }
func (f *fakeRadarSession) SetRangeMeters(meters int) bool                      { return true }

type fakeEngine struct {
	arena *arena.Arena
}

func (e *fakeEngine) Arena() *arena.Arena { return e.arena }
func (e *fakeEngine) Interfaces() []InterfaceStatus { return nil }
func (e *fakeEngine) StartRecording(path, radarID string) (recorder.Summary, error) {
	return recorder.Summary{}, nil
}
func (e *fakeEngine) StopRecording() (recorder.Summary, error) { return recorder.Summary{}, nil }
func (e *fakeEngine) StartPlayback(path string, speedPercent int, loop bool) (string, error) {
	return "", nil
}
func (e *fakeEngine) ActiveRecordingPath() (string, bool) { return "", false }

func TestHandleListRadarsEmptyEngineReturnsEmptyObject(t *testing.T) {
	eng := &fakeEngine{arena: arena.New()}
	s := New(eng)

	req := httptest.NewRequest("GET", "/v2/api/radars", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Body.String(); got != "{}\n" {
		t.Fatalf("body = %q, want empty JSON object", got)
	}
}

func TestHandleListRadarsReturnsObjectKeyedByID(t *testing.T) {
	a := arena.New()
	a.Put(&fakeRadarSession{id: "r1", key: model.Key{Brand: model.BrandNavico}, state: model.StateActive})
	a.Put(&fakeRadarSession{id: "r2", key: model.Key{Brand: model.BrandFuruno}, state: model.StateSearching})
	eng := &fakeEngine{arena: a}
	s := New(eng)

	req := httptest.NewRequest("GET", "/v2/api/radars", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}

	var out map[string]model.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	r1, ok := out["r1"]
	if !ok {
		t.Fatalf("missing entry for r1: %+v", out)
	}
	if r1.ID != "r1" || r1.State != model.StateActive {
		t.Errorf("r1 summary = %+v", r1)
	}
	r2, ok := out["r2"]
	if !ok {
		t.Fatalf("missing entry for r2: %+v", out)
	}
	if r2.ID != "r2" || r2.State != model.StateSearching {
		t.Errorf("r2 summary = %+v", r2)
	}
}
