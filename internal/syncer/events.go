package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fieldwork/internal/client"
	"fieldwork/internal/store"
)

// Subscriber is the push side of the backend. *client.Client satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, onEvent func(client.Event) error) error
}

// RunEventLoop consumes backend push events until ctx is canceled,
// reconnecting with backoff when the stream drops.
func (o *Orchestrator) RunEventLoop(ctx context.Context, sub Subscriber) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event loop panicked", "panic", r)
		}
	}()

	const (
		initialBackoff = time.Second
		maxBackoff     = 30 * time.Second
	)

	backoff := initialBackoff
	for {
		err := sub.Subscribe(ctx, func(ev client.Event) error {
			o.HandleEvent(ctx, ev)
			return nil
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("event stream dropped, reconnecting", "error", err, "retry_in", backoff)
		} else {
			backoff = initialBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// HandleEvent applies one backend push event to the local store.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev client.Event) {
	switch ev.Type {
	case client.EventSessionUpdated:
		o.adoptRemote(ctx, ev.SessionID)
	case client.EventSessionDeleted:
		o.dropDeleted(ctx, ev.SessionID)
	case client.EventAnalysisInvalidated:
		dropped, err := o.store.InvalidatePersonaImages(ctx)
		if err != nil {
			slog.Error("failed to invalidate persona images", "error", err)
			return
		}
		if dropped > 0 {
			slog.Info("persona images invalidated", "dropped", dropped, "analysis_id", ev.AnalysisID)
		}
	default:
		slog.Debug("ignoring event", "type", ev.Type)
	}
}

// adoptRemote caches the backend copy of an updated session unless the
// local copy is newer. A newer local copy stays pending and wins on the
// next push.
func (o *Orchestrator) adoptRemote(ctx context.Context, id string) {
	if id == "" {
		return
	}

	remote, err := o.Fetch(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrOffline) {
			slog.Warn("failed to fetch updated session", "session_id", id, "error", err)
		}
		return
	}

	rec, err := o.store.GetSession(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrCorrupt):
		// Unknown or unreadable locally; the remote copy is all we have.
	case err != nil:
		slog.Error("failed to read local session", "session_id", id, "error", err)
		return
	case rec.Session.NewerThan(remote):
		slog.Debug("local copy newer than remote update, keeping", "session_id", id)
		return
	}

	if err := o.store.PutSession(ctx, remote, false); err != nil {
		slog.Error("failed to cache remote session", "session_id", id, "error", err)
		return
	}
	slog.Info("adopted remote session update", "session_id", id)
	o.Recount(ctx)
}

// dropDeleted removes the local copy of a session deleted on the backend.
// Pending local edits survive; the next sweep recreates the session.
func (o *Orchestrator) dropDeleted(ctx context.Context, id string) {
	if id == "" {
		return
	}

	rec, err := o.store.GetSession(ctx, id)
	if err != nil && !errors.Is(err, store.ErrCorrupt) {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("failed to read local session", "session_id", id, "error", err)
		}
		return
	}
	if rec != nil && rec.NeedsSync() {
		slog.Info("backend deleted session with pending local edits, keeping",
			"session_id", id)
		return
	}

	if err := o.store.DeleteSession(ctx, id); err != nil {
		slog.Error("failed to drop deleted session", "session_id", id, "error", err)
		return
	}
	slog.Info("dropped remotely deleted session", "session_id", id)
	o.Recount(ctx)
}
