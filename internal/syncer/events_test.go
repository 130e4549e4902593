package syncer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"fieldwork/internal/client"
	"fieldwork/internal/models"
	"fieldwork/internal/store"
	"fieldwork/internal/syncer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEventOrchestrator uses a reconnect debounce far beyond the test run so
// going online never triggers a sweep behind the assertions.
func newEventOrchestrator(t *testing.T, st *store.Store, backend syncer.Backend) *syncer.Orchestrator {
	t.Helper()
	orch := syncer.New(st, backend, nil, syncer.Options{
		ReconnectDebounce: time.Hour,
	})
	t.Cleanup(orch.Close)
	return orch
}

func TestHandleEventAdoptsNewerRemote(t *testing.T) {
	st := newTestStore(t)
	backend := newFakeBackend()
	orch := newEventOrchestrator(t, st, backend)
	ctx := context.Background()

	local := models.NewSession(models.BusinessContext{BusinessIdea: "meal kit delivery"})
	local.IsLocal = false
	require.NoError(t, st.PutSession(ctx, local, false))

	remote := local.Clone()
	remote.Messages = append(remote.Messages, models.NewMessage(models.RoleUser, "added on another device"))
	remote.UpdatedAt = local.UpdatedAt.Add(time.Hour)
	backend.sessions[remote.SessionID] = remote

	orch.SetOnline(true)
	orch.HandleEvent(ctx, client.Event{Type: client.EventSessionUpdated, SessionID: local.SessionID})

	rec, err := st.GetSession(ctx, local.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Session.MessageCount, "remote message should be adopted")
	assert.False(t, rec.Dirty, "adopted copy is in sync with the backend")
}

func TestHandleEventKeepsNewerLocal(t *testing.T) {
	st := newTestStore(t)
	backend := newFakeBackend()
	orch := newEventOrchestrator(t, st, backend)
	ctx := context.Background()

	local := models.NewSession(models.BusinessContext{BusinessIdea: "meal kit delivery"})
	local.IsLocal = false
	local.Messages = append(local.Messages, models.NewMessage(models.RoleUser, "local edit"))
	local.Normalize()
	require.NoError(t, st.PutSession(ctx, local, true))

	stale := local.Clone()
	stale.Messages = nil
	stale.CreatedAt = local.CreatedAt.Add(-time.Hour)
	stale.UpdatedAt = local.UpdatedAt.Add(-time.Hour)
	backend.sessions[stale.SessionID] = stale

	orch.SetOnline(true)
	orch.HandleEvent(ctx, client.Event{Type: client.EventSessionUpdated, SessionID: local.SessionID})

	rec, err := st.GetSession(ctx, local.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Session.MessageCount, "newer local copy must survive the event")
	assert.True(t, rec.Dirty, "local edits should stay pending")
}

func TestHandleEventAdoptsUnknownSession(t *testing.T) {
	st := newTestStore(t)
	backend := newFakeBackend()
	orch := newEventOrchestrator(t, st, backend)
	ctx := context.Background()

	remote := models.NewSession(models.BusinessContext{BusinessIdea: "created elsewhere"})
	remote.IsLocal = false
	backend.sessions[remote.SessionID] = remote

	orch.SetOnline(true)
	orch.HandleEvent(ctx, client.Event{Type: client.EventSessionUpdated, SessionID: remote.SessionID})

	rec, err := st.GetSession(ctx, remote.SessionID)
	require.NoError(t, err, "session new to this device should be cached")
	assert.False(t, rec.NeedsSync())
}

func TestHandleEventOfflineLeavesStoreAlone(t *testing.T) {
	st := newTestStore(t)
	backend := newFakeBackend()
	orch := newEventOrchestrator(t, st, backend)
	ctx := context.Background()

	remote := models.NewSession(models.BusinessContext{BusinessIdea: "unreachable"})
	backend.sessions[remote.SessionID] = remote

	orch.HandleEvent(ctx, client.Event{Type: client.EventSessionUpdated, SessionID: remote.SessionID})

	_, err := st.GetSession(ctx, remote.SessionID)
	assert.ErrorIs(t, err, store.ErrNotFound, "offline events must not fetch")
}

func TestHandleEventDropsRemotelyDeleted(t *testing.T) {
	st := newTestStore(t)
	backend := newFakeBackend()
	orch := newEventOrchestrator(t, st, backend)
	ctx := context.Background()

	sess := models.NewSession(models.BusinessContext{BusinessIdea: "retired idea"})
	sess.IsLocal = false
	require.NoError(t, st.PutSession(ctx, sess, false))

	orch.HandleEvent(ctx, client.Event{Type: client.EventSessionDeleted, SessionID: sess.SessionID})

	_, err := st.GetSession(ctx, sess.SessionID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleEventKeepsPendingEditsOnRemoteDelete(t *testing.T) {
	st := newTestStore(t)
	backend := newFakeBackend()
	orch := newEventOrchestrator(t, st, backend)
	ctx := context.Background()

	sess := models.NewSession(models.BusinessContext{BusinessIdea: "still being edited"})
	sess.IsLocal = false
	require.NoError(t, st.PutSession(ctx, sess, true))

	orch.HandleEvent(ctx, client.Event{Type: client.EventSessionDeleted, SessionID: sess.SessionID})

	rec, err := st.GetSession(ctx, sess.SessionID)
	require.NoError(t, err, "pending local edits must survive a remote delete")
	assert.True(t, rec.Dirty)
}

func TestHandleEventInvalidatesPersonaCache(t *testing.T) {
	st := newTestStore(t)
	backend := newFakeBackend()
	orch := newEventOrchestrator(t, st, backend)
	ctx := context.Background()

	require.NoError(t, st.PutPersonaImage(ctx, models.PersonaImage{
		Name:       "Jane",
		Role:       "commuter",
		AnalysisID: "a1",
		ImageURL:   "https://img.example/jane.png",
	}))

	orch.HandleEvent(ctx, client.Event{Type: client.EventAnalysisInvalidated, AnalysisID: "a2"})

	images, err := st.ListPersonaImages(ctx)
	require.NoError(t, err)
	assert.Empty(t, images, "a new analysis epoch drops every cached image")

	id, err := st.AnalysisID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
}

// scriptedFeed replays a fixed batch of events, then blocks until the
// context ends.
type scriptedFeed struct {
	mu     sync.Mutex
	events []client.Event
}

func (s *scriptedFeed) Subscribe(ctx context.Context, onEvent func(client.Event) error) error {
	s.mu.Lock()
	batch := s.events
	s.events = nil
	s.mu.Unlock()

	for _, ev := range batch {
		if err := onEvent(ev); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunEventLoopAppliesEventsAndStopsOnCancel(t *testing.T) {
	st := newTestStore(t)
	backend := newFakeBackend()
	orch := newEventOrchestrator(t, st, backend)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := models.NewSession(models.BusinessContext{BusinessIdea: "pushed from the feed"})
	sess.IsLocal = false
	require.NoError(t, st.PutSession(ctx, sess, false))

	feed := &scriptedFeed{events: []client.Event{
		{Type: client.EventSessionDeleted, SessionID: sess.SessionID},
	}}

	done := make(chan struct{})
	go func() {
		orch.RunEventLoop(ctx, feed)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, err := st.GetSession(context.Background(), sess.SessionID)
		return err != nil
	}, time.Second, 10*time.Millisecond, "the feed's delete should be applied")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event loop did not stop on cancel")
	}
}
