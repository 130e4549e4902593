package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"fieldwork/internal/models"
)

// Key namespaces. Session records live under "session/<id>", single-value
// settings under "meta/<name>".
const (
	sessionPrefix     = "session/"
	metaPrefix        = "meta/"
	currentSessionKey = metaPrefix + "current_session"
)

func sessionKey(id string) string {
	return sessionPrefix + id
}

// SessionRecord is the persisted envelope around a session: the session
// itself plus local sync bookkeeping that never travels over the wire.
type SessionRecord struct {
	Session models.Session `json:"session"`
	Dirty   bool           `json:"dirty"`
	SavedAt time.Time      `json:"saved_at"`
}

// NeedsSync reports whether the record must be pushed to the backend.
func (r *SessionRecord) NeedsSync() bool {
	return r.Dirty || r.Session.IsLocal
}

// PutSession persists a snapshot of the session. dirty marks the record as
// having local changes the backend has not seen yet.
func (s *Store) PutSession(ctx context.Context, sess *models.Session, dirty bool) error {
	if sess == nil || sess.SessionID == "" {
		return fmt.Errorf("put session: missing session_id")
	}
	rec := SessionRecord{
		Session: *sess.Clone(),
		Dirty:   dirty,
		SavedAt: time.Now().UTC(),
	}
	return s.Put(ctx, sessionKey(sess.SessionID), rec)
}

// GetSession loads one session. The returned record's session is normalized
// and validated; a record that does not validate is surfaced as ErrCorrupt.
func (s *Store) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	var rec SessionRecord
	if err := s.Get(ctx, sessionKey(id), &rec); err != nil {
		return nil, err
	}

	rec.Session.Normalize()
	if err := rec.Session.Validate(); err != nil {
		slog.Error("stored session does not validate", "session_id", id, "error", err)
		return nil, fmt.Errorf("get session %s: %w: %s", id, ErrCorrupt, err)
	}
	return &rec, nil
}

// DeleteSession removes the session record. The current-session pointer is
// cleared if it referenced the deleted session.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if err := s.Delete(ctx, sessionKey(id)); err != nil {
		return err
	}

	current, err := s.CurrentSessionID(ctx)
	if err != nil {
		return err
	}
	if current == id {
		return s.SetCurrentSessionID(ctx, "")
	}
	return nil
}

// ListSessions returns all stored sessions, newest first. Corrupt records
// are logged and skipped so one bad row cannot hide the rest.
func (s *Store) ListSessions(ctx context.Context) ([]*models.Session, error) {
	records, err := s.listRecords(ctx)
	if err != nil {
		return nil, err
	}

	sessions := make([]*models.Session, 0, len(records))
	for _, rec := range records {
		sess := rec.Session
		sessions = append(sessions, &sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// PendingRecords returns the records that still need a push to the backend,
// oldest update first so the sweep replays changes in order.
func (s *Store) PendingRecords(ctx context.Context) ([]*SessionRecord, error) {
	records, err := s.listRecords(ctx)
	if err != nil {
		return nil, err
	}

	pending := records[:0]
	for _, rec := range records {
		if rec.NeedsSync() {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Session.UpdatedAt.Before(pending[j].Session.UpdatedAt)
	})
	return pending, nil
}

// CountPending returns how many sessions still need a push.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	pending, err := s.PendingRecords(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

func (s *Store) listRecords(ctx context.Context) ([]*SessionRecord, error) {
	keys, err := s.ListKeys(ctx, sessionPrefix)
	if err != nil {
		return nil, err
	}

	records := make([]*SessionRecord, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, sessionPrefix)
		rec, err := s.GetSession(ctx, id)
		if err != nil {
			if errors.Is(err, ErrCorrupt) {
				slog.Error("skipping corrupt session record", "session_id", id, "error", err)
				continue
			}
			if errors.Is(err, ErrNotFound) {
				// Deleted between list and get.
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// MarkSynced records that the backend has accepted the session as of asOf.
// The local flag is always cleared; the dirty flag survives if the stored
// session changed again after the push started.
func (s *Store) MarkSynced(ctx context.Context, id string, asOf time.Time) error {
	rec, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}

	rec.Session.IsLocal = false
	if !rec.Session.UpdatedAt.After(asOf) {
		rec.Dirty = false
	} else {
		slog.Debug("session changed during push, keeping dirty", "session_id", id)
	}
	return s.Put(ctx, sessionKey(id), rec)
}

// CurrentSessionID returns the id of the session the app last had loaded,
// or "" if none is set.
func (s *Store) CurrentSessionID(ctx context.Context) (string, error) {
	var id string
	err := s.Get(ctx, currentSessionKey, &id)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// SetCurrentSessionID stores the current-session pointer. An empty id
// clears it.
func (s *Store) SetCurrentSessionID(ctx context.Context, id string) error {
	if id == "" {
		return s.Delete(ctx, currentSessionKey)
	}
	return s.Put(ctx, currentSessionKey, id)
}
