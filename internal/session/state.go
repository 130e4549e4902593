// Package session holds the application state for research sessions: a
// reducer that owns every state transition and a manager that binds the
// reducer to persistence and sync.
package session

import (
	"fieldwork/internal/models"
)

// State is the complete application state. It is treated as immutable:
// Reduce never modifies a State it was given, so two snapshots can always
// be compared by pointer.
type State struct {
	// Session is the currently loaded session, or nil.
	Session *models.Session
	// SessionLoading is true while a session load is in flight.
	SessionLoading bool
	// Sync is the connectivity and pending-work view.
	Sync models.SyncStatus
}

// NewState returns the initial state: no session, not loading, offline
// until a probe says otherwise.
func NewState() *State {
	return &State{
		Sync: models.SyncStatus{IsOnline: false},
	}
}
