// Package state aggregates subsystem readiness and the active mode.
package state

import (
	"sync"

	"github.com/hubenschmidt/interview-assistant/internal/mode"
)

// Snapshot is an immutable copy of the system state.
type Snapshot struct {
	AsrReady bool      `json:"asrReady"`
	LlmReady bool      `json:"llmReady"`
	DbReady  bool      `json:"dbReady"`
	Mode     mode.Mode `json:"mode"`
}

// System holds readiness flags and the current mode. Only the orchestrator
// mutates it; readers take snapshots.
type System struct {
	mu   sync.RWMutex
	snap Snapshot
}

// New starts with every flag false and discovery mode.
func New() *System {
	return &System{snap: Snapshot{Mode: mode.Discovery}}
}

func (s *System) UpdateAsrReady(ready bool) {
	s.mu.Lock()
	s.snap.AsrReady = ready
	s.mu.Unlock()
}

func (s *System) UpdateLlmReady(ready bool) {
	s.mu.Lock()
	s.snap.LlmReady = ready
	s.mu.Unlock()
}

func (s *System) UpdateDbReady(ready bool) {
	s.mu.Lock()
	s.snap.DbReady = ready
	s.mu.Unlock()
}

func (s *System) SetMode(m mode.Mode) {
	s.mu.Lock()
	s.snap.Mode = m
	s.mu.Unlock()
}

// Snapshot returns a copy; callers never share state by reference.
func (s *System) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}
