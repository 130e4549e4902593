package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fieldwork/internal/models"
	"fieldwork/internal/store"
	"fieldwork/internal/syncer"
)

// ErrNoSession is returned by operations that need a loaded session when
// none is loaded.
var ErrNoSession = errors.New("no session loaded")

// ErrSuperseded is returned by LoadSession when a newer load for the same
// session started before this one finished.
var ErrSuperseded = errors.New("load superseded")

// Options configures the manager.
type Options struct {
	// SaveDebounce is how long the state must stay quiet after a content
	// change before the auto-save writes it to the store. Defaults to 2s.
	SaveDebounce time.Duration
}

// Manager is the app-scoped state owner. Every mutation goes through
// Dispatch, content changes arm a debounced auto-save into the store, and
// each completed save is handed to the sync orchestrator. Sync progress
// flows back into the state through the orchestrator's callbacks.
type Manager struct {
	store *store.Store
	orch  *syncer.Orchestrator
	save  *syncer.Debouncer

	mu       sync.Mutex
	state    *State
	unsaved  bool
	loadSeq  map[string]int
	loadStop context.CancelFunc
}

// NewManager wires the state owner to its store and orchestrator. The
// orchestrator may be nil for purely local use.
func NewManager(st *store.Store, orch *syncer.Orchestrator, opts Options) *Manager {
	if opts.SaveDebounce <= 0 {
		opts.SaveDebounce = 2 * time.Second
	}
	m := &Manager{
		store:   st,
		orch:    orch,
		save:    syncer.NewDebouncer(opts.SaveDebounce),
		state:   NewState(),
		loadSeq: make(map[string]int),
	}
	if orch != nil {
		orch.OnStatus = func(patch models.SyncStatusPatch) {
			m.Dispatch(UpdateSyncStatus{Patch: patch})
		}
		orch.OnSessionSynced = func(id string, _ time.Time) {
			m.Dispatch(MarkSessionSynced{SessionID: id})
		}
	}
	return m
}

// Dispatch runs the action through the reducer and applies its side
// effects: content changes re-arm the debounced auto-save, a reset drops
// any pending save. It returns the resulting state.
func (m *Manager) Dispatch(action Action) *State {
	m.mu.Lock()
	prev := m.state
	next := Reduce(prev, action)
	m.state = next
	if next != prev {
		switch action.(type) {
		case AddMessage, UpdateBusinessContext, SetQuestionnaire, SetSessionStatus:
			m.unsaved = true
		case ResetState:
			m.unsaved = false
		}
	}
	m.mu.Unlock()

	if next == prev {
		return next
	}
	slog.Debug("action applied", "action", action.Name())

	switch action.(type) {
	case AddMessage, UpdateBusinessContext, SetQuestionnaire, SetSessionStatus:
		m.save.Debounce(func() {
			m.saveCurrent(context.Background())
		})
	case ResetState:
		m.save.Cancel()
	}
	return next
}

// saveCurrent writes the loaded session to the store and hands it to the
// orchestrator. One quiet period produces exactly one store write.
func (m *Manager) saveCurrent(ctx context.Context) {
	m.mu.Lock()
	sess := m.state.Session
	m.unsaved = false
	m.mu.Unlock()
	if sess == nil {
		return
	}

	if err := m.store.PutSession(ctx, sess, true); err != nil {
		slog.Error("auto-save failed", "session_id", sess.SessionID, "error", err)
		msg := fmt.Sprintf("save failed: %s", err)
		m.Dispatch(UpdateSyncStatus{Patch: models.SyncStatusPatch{SyncError: &msg}})
		return
	}
	slog.Debug("session saved", "session_id", sess.SessionID, "messages", sess.MessageCount)

	if m.orch != nil {
		if err := m.orch.SyncSession(ctx, sess.SessionID); err != nil {
			slog.Warn("post-save sync failed, will retry on next trigger",
				"session_id", sess.SessionID, "error", err)
		}
	}
}

// flush writes unsaved state out, bypassing the debounce window.
func (m *Manager) flush(ctx context.Context) {
	m.mu.Lock()
	pending := m.unsaved
	m.mu.Unlock()
	if !pending {
		m.save.Cancel()
		return
	}
	m.save.Immediate(func() {
		m.saveCurrent(ctx)
	})
}

// Close flushes unsaved work and drops any armed auto-save.
func (m *Manager) Close(ctx context.Context) {
	m.flush(ctx)
	m.save.Cancel()
}

// ============================================================================
// SESSION LIFECYCLE
// ============================================================================

// CreateSession starts a new local session, persists it immediately and
// makes it current. A session with no messages yet is still worth saving.
func (m *Manager) CreateSession(ctx context.Context, bc models.BusinessContext) (*models.Session, error) {
	sess := models.NewSession(bc)
	if err := m.store.PutSession(ctx, sess, false); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := m.store.SetCurrentSessionID(ctx, sess.SessionID); err != nil {
		slog.Warn("failed to store current-session pointer", "session_id", sess.SessionID, "error", err)
	}
	m.Dispatch(SetSession{Session: sess})
	slog.Info("session created", "session_id", sess.SessionID, "industry", sess.BusinessContext.Industry)

	if m.orch != nil {
		if err := m.orch.SyncSession(ctx, sess.SessionID); err != nil {
			slog.Warn("initial sync failed, will retry on next trigger",
				"session_id", sess.SessionID, "error", err)
		}
	}
	return m.Current(), nil
}

// LoadSession makes the stored session current, reconciling with the
// backend copy when one is reachable. Concurrent loads of the same session
// are serialized by a sequence number: only the newest load may land, and
// the in-flight requests of superseded loads are canceled.
func (m *Manager) LoadSession(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("load session: missing session id")
	}

	m.mu.Lock()
	m.loadSeq[id]++
	seq := m.loadSeq[id]
	if m.loadStop != nil {
		m.loadStop()
	}
	lctx, cancel := context.WithCancel(ctx)
	m.loadStop = cancel
	m.mu.Unlock()
	defer cancel()

	m.Dispatch(SetSessionLoading{Loading: true})

	sess, err := m.resolveSession(lctx, id)

	m.mu.Lock()
	stale := m.loadSeq[id] != seq
	m.mu.Unlock()
	if stale {
		slog.Debug("discarding superseded load", "session_id", id)
		return nil, ErrSuperseded
	}

	if err != nil {
		m.Dispatch(SetSessionLoading{Loading: false})
		return nil, err
	}

	m.Dispatch(SetSession{Session: sess})
	m.Dispatch(SetSessionLoading{Loading: false})
	if err := m.store.SetCurrentSessionID(ctx, id); err != nil {
		slog.Warn("failed to store current-session pointer", "session_id", id, "error", err)
	}
	return m.Current(), nil
}

// resolveSession picks the freshest copy of the session: local, backend,
// or whichever of the two carries the later updated_at (last write wins).
// When the backend copy wins the store is brought in step with it.
func (m *Manager) resolveSession(ctx context.Context, id string) (*models.Session, error) {
	var local *models.Session
	rec, err := m.store.GetSession(ctx, id)
	switch {
	case err == nil:
		local = &rec.Session
	case errors.Is(err, store.ErrNotFound):
		// fall through to the backend
	default:
		return nil, err
	}

	if m.orch == nil {
		if local == nil {
			return nil, fmt.Errorf("load session %s: %w", id, store.ErrNotFound)
		}
		return local, nil
	}

	remote, err := m.orch.Fetch(ctx, id)
	if err != nil {
		if local != nil {
			if !errors.Is(err, syncer.ErrOffline) {
				slog.Warn("backend fetch failed, using local copy", "session_id", id, "error", err)
			}
			return local, nil
		}
		if errors.Is(err, syncer.ErrOffline) {
			return nil, fmt.Errorf("load session %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	if local != nil && local.NewerThan(remote) {
		return local, nil
	}

	if err := m.store.PutSession(ctx, remote, false); err != nil {
		slog.Error("failed to cache backend session", "session_id", id, "error", err)
	}
	return remote, nil
}

// Resume loads the session the app last had open, if any. A stale pointer
// to a session that no longer exists anywhere is cleared.
func (m *Manager) Resume(ctx context.Context) (*models.Session, error) {
	id, err := m.store.CurrentSessionID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	sess, err := m.LoadSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("clearing stale current-session pointer", "session_id", id)
		if cerr := m.store.SetCurrentSessionID(ctx, ""); cerr != nil {
			slog.Warn("failed to clear current-session pointer", "error", cerr)
		}
		return nil, nil
	}
	return sess, err
}

// DeleteSession removes the session locally and, when the backend is known
// to have a copy, best-effort remotely. Deleting the loaded session resets
// the state.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	knownRemote := false
	rec, err := m.store.GetSession(ctx, id)
	switch {
	case err == nil:
		knownRemote = !rec.Session.IsLocal
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrCorrupt):
		// Nothing usable locally; the delete below still cleans up.
	default:
		return err
	}

	if err := m.store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	slog.Info("session deleted", "session_id", id)

	if knownRemote && m.orch != nil {
		if err := m.orch.Delete(ctx, id); err != nil {
			slog.Warn("backend delete failed, local copy already removed", "session_id", id, "error", err)
		}
	}

	m.mu.Lock()
	isCurrent := m.state.Session != nil && m.state.Session.SessionID == id
	m.mu.Unlock()
	if isCurrent {
		m.Dispatch(ResetState{})
		if m.orch != nil {
			// The reset wiped connectivity; reseed it from the live source.
			st := m.orch.Status()
			m.Dispatch(UpdateSyncStatus{Patch: models.SyncStatusPatch{
				IsOnline:     &st.IsOnline,
				PendingSyncs: &st.PendingSyncs,
				LastSyncAt:   st.LastSyncAt,
				SyncError:    &st.SyncError,
			}})
		}
	}

	if m.orch != nil {
		m.orch.Recount(ctx)
	}
	return nil
}

// ============================================================================
// SESSION CONTENT
// ============================================================================

// Say appends one conversation turn to the loaded session.
func (m *Manager) Say(role models.Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("invalid message role %q", role)
	}
	if content == "" {
		return fmt.Errorf("message content is empty")
	}
	if !m.hasSession() {
		return ErrNoSession
	}
	m.Dispatch(AddMessage{Message: models.NewMessage(role, content)})
	return nil
}

// PatchBusinessContext merges the patch into the loaded session's business
// context.
func (m *Manager) PatchBusinessContext(patch models.BusinessContextPatch) error {
	if !m.hasSession() {
		return ErrNoSession
	}
	m.Dispatch(UpdateBusinessContext{Patch: patch})
	return nil
}

// ApplyQuestionnaire replaces the loaded session's questionnaire wholesale.
func (m *Manager) ApplyQuestionnaire(q models.Questionnaire) error {
	if !m.hasSession() {
		return ErrNoSession
	}
	m.Dispatch(SetQuestionnaire{Questionnaire: q})
	return nil
}

// SetStatus moves the loaded session to the given status.
func (m *Manager) SetStatus(status models.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid session status %q", status)
	}
	if !m.hasSession() {
		return ErrNoSession
	}
	m.Dispatch(SetSessionStatus{Status: status})
	return nil
}

// ============================================================================
// SYNC
// ============================================================================

// ForceSync flushes unsaved state and pushes everything pending right away.
func (m *Manager) ForceSync(ctx context.Context) error {
	m.flush(ctx)
	if m.orch == nil {
		return nil
	}
	return m.orch.Sweep(ctx)
}

// ============================================================================
// READ ACCESS
// ============================================================================

// Snapshot returns a copy of the state safe for concurrent readers.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *m.state
	s.Session = s.Session.Clone()
	return s
}

// Current returns a copy of the loaded session, or nil when none is loaded.
func (m *Manager) Current() *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Session.Clone()
}

// ListSessions returns all locally stored sessions, newest first.
func (m *Manager) ListSessions(ctx context.Context) ([]*models.Session, error) {
	return m.store.ListSessions(ctx)
}

func (m *Manager) hasSession() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Session != nil
}
