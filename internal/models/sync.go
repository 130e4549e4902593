package models

import "time"

// SyncStatus is the process-wide view of backend reconciliation state.
// It is never persisted.
type SyncStatus struct {
	IsOnline     bool       `json:"is_online"`
	PendingSyncs int        `json:"pending_syncs"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	SyncError    string     `json:"sync_error,omitempty"`
}

// SyncStatusPatch is a partial update of a SyncStatus. Nil fields are left
// unchanged; a pointer to the empty string clears SyncError.
type SyncStatusPatch struct {
	IsOnline     *bool
	PendingSyncs *int
	LastSyncAt   *time.Time
	SyncError    *string
}

// Merge returns the status with the patch's non-nil fields applied.
// PendingSyncs never goes below zero.
func (s SyncStatus) Merge(p SyncStatusPatch) SyncStatus {
	if p.IsOnline != nil {
		s.IsOnline = *p.IsOnline
	}
	if p.PendingSyncs != nil {
		s.PendingSyncs = max(0, *p.PendingSyncs)
	}
	if p.LastSyncAt != nil {
		t := *p.LastSyncAt
		s.LastSyncAt = &t
	}
	if p.SyncError != nil {
		s.SyncError = *p.SyncError
	}
	return s
}

// Equal compares two statuses by value, including the optional timestamp.
func (s SyncStatus) Equal(o SyncStatus) bool {
	if s.IsOnline != o.IsOnline || s.PendingSyncs != o.PendingSyncs || s.SyncError != o.SyncError {
		return false
	}
	switch {
	case s.LastSyncAt == nil && o.LastSyncAt == nil:
		return true
	case s.LastSyncAt == nil || o.LastSyncAt == nil:
		return false
	default:
		return s.LastSyncAt.Equal(*o.LastSyncAt)
	}
}
