package recorder

import (
	"fmt"
	"sync"

	"github.com/mayara-project/mayara/internal/model"
)

// Manager enforces the invariant that only one recording may be active at
// a time; starting a new one while recording fails. The engine holds a
// single Manager for the whole process.
type Manager struct {
	mu     sync.Mutex
	active *Recorder
}

// NewManager returns an idle Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Start begins a new recording at path. It returns an error if a recording
// is already active.
func (m *Manager) Start(path string, brand model.Brand, radarID string, endpoints model.Endpoints) (*Recorder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return nil, fmt.Errorf("recorder: a recording is already active at %s", m.active.Path())
	}
	r, err := Create(path, brand, radarID, endpoints)
	if err != nil {
		return nil, err
	}
	m.active = r
	return r, nil
}

// Active returns the in-progress recording, if any.
func (m *Manager) Active() (*Recorder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.active != nil
}

// Stop finalises the active recording, if any, and clears it.
func (m *Manager) Stop() (Summary, error) {
	m.mu.Lock()
	r := m.active
	m.active = nil
	m.mu.Unlock()

	if r == nil {
		return Summary{}, fmt.Errorf("recorder: no recording is active")
	}
	return r.Close()
}
