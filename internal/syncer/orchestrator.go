package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fieldwork/internal/client"
	"fieldwork/internal/metrics"
	"fieldwork/internal/models"
	"fieldwork/internal/store"
)

// ErrOffline is returned when an operation needs the backend while the
// orchestrator believes it is unreachable.
var ErrOffline = errors.New("backend offline")

// Backend is the remote side of the sync loop. *client.Client satisfies it.
type Backend interface {
	CreateSession(ctx context.Context, sess *models.Session) (*models.Session, error)
	UpdateSession(ctx context.Context, sess *models.Session) (*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	Health(ctx context.Context) error
}

// Options configures the orchestrator.
type Options struct {
	// ReconnectDebounce is how long connectivity must stay up before the
	// reconnect sweep runs. A flapping link causes one sweep, not many.
	ReconnectDebounce time.Duration
	// ProbeInterval is how often RunProbeLoop checks backend health.
	ProbeInterval time.Duration
}

// Orchestrator pushes pending sessions to the backend and tracks
// connectivity. It starts offline; a health probe or an explicit SetOnline
// brings it up.
type Orchestrator struct {
	store   *store.Store
	backend Backend
	metrics *metrics.Collector
	opts    Options

	reconnect *Debouncer

	mu       sync.Mutex
	status   models.SyncStatus
	sweeping bool

	// OnStatus is invoked with a patch whenever the sync status changes.
	OnStatus func(models.SyncStatusPatch)
	// OnSessionSynced is invoked after the backend accepts a session, with
	// the updated_at of the snapshot that was pushed.
	OnSessionSynced func(sessionID string, asOf time.Time)
}

// New creates an orchestrator. The collector may be nil.
func New(st *store.Store, backend Backend, collector *metrics.Collector, opts Options) *Orchestrator {
	if opts.ReconnectDebounce <= 0 {
		opts.ReconnectDebounce = 2 * time.Second
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = 30 * time.Second
	}
	return &Orchestrator{
		store:     st,
		backend:   backend,
		metrics:   collector,
		opts:      opts,
		reconnect: NewDebouncer(opts.ReconnectDebounce),
		status:    models.SyncStatus{IsOnline: false},
	}
}

// Online reports the current connectivity belief.
func (o *Orchestrator) Online() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status.IsOnline
}

// Status returns a copy of the current sync status.
func (o *Orchestrator) Status() models.SyncStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// notifyStatus merges the patch into the cached status and forwards it to
// the listener when something actually changed.
func (o *Orchestrator) notifyStatus(p models.SyncStatusPatch) {
	o.mu.Lock()
	merged := o.status.Merge(p)
	changed := !merged.Equal(o.status)
	o.status = merged
	cb := o.OnStatus
	o.mu.Unlock()

	if changed && cb != nil {
		cb(p)
	}
}

// SetOnline records a connectivity transition. Going from offline to online
// arms the debounced reconnect sweep; going offline cancels it.
func (o *Orchestrator) SetOnline(online bool) {
	o.mu.Lock()
	was := o.status.IsOnline
	o.mu.Unlock()
	if was == online {
		return
	}

	slog.Info("connectivity changed", "online", online)
	o.notifyStatus(models.SyncStatusPatch{IsOnline: &online})

	if online {
		o.reconnect.Debounce(func() {
			if err := o.Sweep(context.Background()); err != nil && !errors.Is(err, ErrOffline) {
				slog.Warn("reconnect sweep failed", "error", err)
			}
		})
	} else {
		o.reconnect.Cancel()
	}
}

// Probe checks backend health once and feeds the result into SetOnline.
func (o *Orchestrator) Probe(ctx context.Context) bool {
	err := o.backend.Health(ctx)
	if err != nil {
		slog.Debug("health probe failed", "error", err)
	}
	o.SetOnline(err == nil)
	return err == nil
}

// RunProbeLoop probes immediately and then on every tick until ctx is
// canceled.
func (o *Orchestrator) RunProbeLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("probe loop panicked", "panic", r)
		}
	}()

	ticker := time.NewTicker(o.opts.ProbeInterval)
	defer ticker.Stop()

	o.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Probe(ctx)
		}
	}
}

// RunSweepLoop pushes pending work on every tick until ctx is canceled.
// The reconnect sweep only runs on connectivity transitions; a long-running
// process uses this loop to drain work that arrives while already online.
func (o *Orchestrator) RunSweepLoop(ctx context.Context, interval time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sweep loop panicked", "panic", r)
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.Sweep(ctx); err != nil && !errors.Is(err, ErrOffline) {
				slog.Warn("periodic sweep failed", "error", err)
			}
		}
	}
}

// Sweep pushes every pending session: still-local sessions are created,
// dirty ones updated. A failed push leaves its session pending for the next
// trigger and does not stop the rest of the pass.
func (o *Orchestrator) Sweep(ctx context.Context) error {
	if !o.Online() {
		o.Recount(ctx)
		return ErrOffline
	}

	o.mu.Lock()
	if o.sweeping {
		o.mu.Unlock()
		return nil
	}
	o.sweeping = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.sweeping = false
		o.mu.Unlock()
	}()

	start := time.Now()
	pending, err := o.store.PendingRecords(ctx)
	if err != nil {
		o.observe(metrics.OpSyncSweep, start, err)
		return err
	}

	var firstErr error
	pushed := 0
	for _, rec := range pending {
		if ctx.Err() != nil {
			o.observe(metrics.OpSyncSweep, start, ctx.Err())
			return ctx.Err()
		}
		if err := o.push(ctx, &rec.Session); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if client.IsTransient(err) {
				slog.Warn("sync push failed, will retry on next trigger",
					"session_id", rec.Session.SessionID, "error", err)
			} else {
				slog.Error("sync push failed permanently",
					"session_id", rec.Session.SessionID, "error", err)
			}
			continue
		}
		pushed++
	}
	o.observe(metrics.OpSyncSweep, start, firstErr)

	o.publishResult(ctx, firstErr)
	slog.Info("sync sweep finished", "pushed", pushed, "failed", len(pending)-pushed)
	return firstErr
}

// SyncSession pushes a single session immediately when online. Offline it
// only refreshes the pending count; the reconnect sweep picks the session
// up later.
func (o *Orchestrator) SyncSession(ctx context.Context, id string) error {
	if !o.Online() {
		o.Recount(ctx)
		return nil
	}

	rec, err := o.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if !rec.NeedsSync() {
		return nil
	}

	pushErr := o.push(ctx, &rec.Session)
	o.publishResult(ctx, pushErr)
	return pushErr
}

// push sends one session to the backend. Local sessions are created, with a
// fallback to update when the id already exists; known sessions are
// updated, with a fallback to create when the backend lost them.
func (o *Orchestrator) push(ctx context.Context, sess *models.Session) error {
	start := time.Now()

	var err error
	if sess.IsLocal {
		_, err = o.backend.CreateSession(ctx, sess)
		if errors.Is(err, client.ErrConflict) {
			_, err = o.backend.UpdateSession(ctx, sess)
		}
	} else {
		_, err = o.backend.UpdateSession(ctx, sess)
		if errors.Is(err, client.ErrNotFound) {
			_, err = o.backend.CreateSession(ctx, sess)
		}
	}
	if err != nil {
		o.observe(metrics.OpSyncPush, start, err)
		return err
	}
	o.observe(metrics.OpSyncPush, start, nil)

	if err := o.store.MarkSynced(ctx, sess.SessionID, sess.UpdatedAt); err != nil {
		// The push landed; the record stays pending and the next pass
		// repeats an idempotent update.
		slog.Error("failed to mark session synced", "session_id", sess.SessionID, "error", err)
		return err
	}

	slog.Debug("session synced", "session_id", sess.SessionID)
	if o.OnSessionSynced != nil {
		o.OnSessionSynced(sess.SessionID, sess.UpdatedAt)
	}
	return nil
}

// publishResult refreshes the pending count and records the outcome of a
// push pass in the shared status.
func (o *Orchestrator) publishResult(ctx context.Context, pushErr error) {
	patch := models.SyncStatusPatch{}

	count, err := o.store.CountPending(ctx)
	if err != nil {
		slog.Error("failed to count pending sessions", "error", err)
	} else {
		patch.PendingSyncs = &count
	}

	if pushErr != nil {
		msg := fmt.Sprintf("sync failed: %s", pushErr)
		patch.SyncError = &msg
	} else {
		now := time.Now().UTC()
		empty := ""
		patch.SyncError = &empty
		patch.LastSyncAt = &now
	}
	o.notifyStatus(patch)
}

// Recount refreshes the pending count in the published status.
func (o *Orchestrator) Recount(ctx context.Context) {
	count, err := o.store.CountPending(ctx)
	if err != nil {
		slog.Error("failed to count pending sessions", "error", err)
		return
	}
	o.notifyStatus(models.SyncStatusPatch{PendingSyncs: &count})
}

// Fetch retrieves the backend copy of a session.
func (o *Orchestrator) Fetch(ctx context.Context, id string) (*models.Session, error) {
	if !o.Online() {
		return nil, ErrOffline
	}
	return o.backend.GetSession(ctx, id)
}

// Pull caches every backend session the store does not hold a newer copy
// of. The same last-write-wins rule as the push side applies: a local copy
// updated more recently than the backend's stays untouched.
func (o *Orchestrator) Pull(ctx context.Context) (int, error) {
	if !o.Online() {
		return 0, ErrOffline
	}

	start := time.Now()
	remote, err := o.backend.ListSessions(ctx)
	if err != nil {
		o.observe(metrics.OpSyncPull, start, err)
		return 0, err
	}

	var firstErr error
	adopted := 0
	for _, sess := range remote {
		if ctx.Err() != nil {
			o.observe(metrics.OpSyncPull, start, ctx.Err())
			return adopted, ctx.Err()
		}

		rec, err := o.store.GetSession(ctx, sess.SessionID)
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrCorrupt):
			// Unknown or unreadable locally; adopt the backend copy.
		case err != nil:
			if firstErr == nil {
				firstErr = err
			}
			continue
		case rec.Session.NewerThan(sess):
			continue
		}

		if err := o.store.PutSession(ctx, sess, false); err != nil {
			slog.Error("failed to cache pulled session", "session_id", sess.SessionID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		adopted++
	}
	o.observe(metrics.OpSyncPull, start, firstErr)

	slog.Info("pull finished", "backend_sessions", len(remote), "adopted", adopted)
	o.Recount(ctx)
	return adopted, firstErr
}

// Delete removes the backend copy of a session. A session the backend
// never had counts as deleted.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	if !o.Online() {
		return ErrOffline
	}
	err := o.backend.DeleteSession(ctx, id)
	if errors.Is(err, client.ErrNotFound) {
		return nil
	}
	return err
}

// Close drops any pending debounced sweep.
func (o *Orchestrator) Close() {
	o.reconnect.Cancel()
}

func (o *Orchestrator) observe(op string, start time.Time, err error) {
	if o.metrics == nil {
		return
	}
	if err != nil {
		o.metrics.RecordFailure(op, time.Since(start))
		return
	}
	o.metrics.RecordTiming(op, time.Since(start))
}
