package session_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldwork/internal/client"
	"fieldwork/internal/metrics"
	"fieldwork/internal/models"
	"fieldwork/internal/session"
	"fieldwork/internal/store"
	"fieldwork/internal/syncer"
)

// fakeServer is an in-memory session backend counting every write that
// reaches it.
type fakeServer struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	creates  int
	updates  int
	deletes  int

	// gate, when set, parks the first GET until the channel closes or the
	// request is canceled.
	gate   chan struct{}
	parked int32

	srv *httptest.Server
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{sessions: make(map[string]models.Session)}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var sess models.Session
		if err := json.NewDecoder(r.Body).Decode(&sess); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		if _, exists := f.sessions[sess.SessionID]; exists {
			f.mu.Unlock()
			w.WriteHeader(http.StatusConflict)
			return
		}
		sess.IsLocal = false
		f.sessions[sess.SessionID] = sess
		f.creates++
		f.mu.Unlock()
		writeJSON(w, sess)
	})
	mux.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/sessions/")
		switch r.Method {
		case http.MethodGet:
			if f.gate != nil && atomic.CompareAndSwapInt32(&f.parked, 0, 1) {
				select {
				case <-f.gate:
				case <-r.Context().Done():
				}
			}
			f.mu.Lock()
			sess, ok := f.sessions[id]
			f.mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeJSON(w, sess)
		case http.MethodPatch:
			var sess models.Session
			if err := json.NewDecoder(r.Body).Decode(&sess); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.mu.Lock()
			if _, ok := f.sessions[id]; !ok {
				f.mu.Unlock()
				w.WriteHeader(http.StatusNotFound)
				return
			}
			sess.IsLocal = false
			f.sessions[id] = sess
			f.updates++
			f.mu.Unlock()
			writeJSON(w, sess)
		case http.MethodDelete:
			f.mu.Lock()
			delete(f.sessions, id)
			f.deletes++
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeServer) counts() (creates, updates, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.updates, f.deletes
}

func (f *fakeServer) put(sess models.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sess.SessionID] = sess
}

func (f *fakeServer) get(id string) (models.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	return sess, ok
}

type fixture struct {
	mgr     *session.Manager
	orch    *syncer.Orchestrator
	st      *store.Store
	backend *fakeServer
	coll    *metrics.Collector
}

// newFixture wires a manager to a real store, a real client and the fake
// backend. The orchestrator starts offline.
func newFixture(t *testing.T, saveDebounce time.Duration) *fixture {
	t.Helper()

	backend := newFakeServer(t)
	coll := metrics.NewCollector()

	st, err := store.Open(filepath.Join(t.TempDir(), "fieldwork.db"), coll)
	require.NoError(t, err, "should open store")
	t.Cleanup(func() { _ = st.Close() })

	c := client.New(backend.srv.URL)
	c.SetMetrics(coll)

	orch := syncer.New(st, c, coll, syncer.Options{ReconnectDebounce: 30 * time.Millisecond})
	mgr := session.NewManager(st, orch, session.Options{SaveDebounce: saveDebounce})
	t.Cleanup(func() {
		mgr.Close(context.Background())
		orch.Close()
	})

	return &fixture{mgr: mgr, orch: orch, st: st, backend: backend, coll: coll}
}

func TestAutoSaveCoalescesRapidUpdates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 60*time.Millisecond)

	sess, err := f.mgr.CreateSession(ctx, models.BusinessContext{BusinessIdea: "bike rental analytics"})
	require.NoError(t, err, "should create session")

	base := f.coll.Count(metrics.OpStoreWrite)
	for i := 0; i < 5; i++ {
		tc := fmt.Sprintf("segment-%d", i)
		require.NoError(t, f.mgr.PatchBusinessContext(models.BusinessContextPatch{TargetCustomer: &tc}))
	}

	require.Eventually(t, func() bool {
		return f.coll.Count(metrics.OpStoreWrite) > base
	}, 2*time.Second, 10*time.Millisecond, "debounced save should fire after the quiet period")

	// Two more quiet windows must not produce further writes.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, base+1, f.coll.Count(metrics.OpStoreWrite), "rapid updates should coalesce into one write")

	rec, err := f.st.GetSession(ctx, sess.SessionID)
	require.NoError(t, err, "should load saved session")
	assert.Equal(t, "segment-4", rec.Session.BusinessContext.TargetCustomer, "the last update should win")
	assert.True(t, rec.Dirty, "offline save should stay dirty")

	creates, updates, _ := f.backend.counts()
	assert.Zero(t, creates, "offline saves must not reach the backend")
	assert.Zero(t, updates)
}

func TestOfflineWorkSyncsOnReconnect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 40*time.Millisecond)

	sess, err := f.mgr.CreateSession(ctx, models.BusinessContext{
		BusinessIdea:   "neighborhood carsharing",
		TargetCustomer: "car owners",
		Problem:        "cars sit idle most of the week",
	})
	require.NoError(t, err, "should create session")
	assert.Equal(t, models.DefaultIndustry, sess.BusinessContext.Industry)
	assert.True(t, sess.IsLocal)

	require.NoError(t, f.mgr.Say(models.RoleUser, "How often do you drive on weekdays?"))
	require.NoError(t, f.mgr.Say(models.RoleAssistant, "Mostly weekends, the car sits in the garage otherwise."))
	tc := "urban commuters"
	require.NoError(t, f.mgr.PatchBusinessContext(models.BusinessContextPatch{TargetCustomer: &tc}))

	require.Eventually(t, func() bool {
		rec, err := f.st.GetSession(ctx, sess.SessionID)
		return err == nil && rec.Dirty && rec.Session.MessageCount == 2 &&
			rec.Session.BusinessContext.TargetCustomer == "urban commuters"
	}, 2*time.Second, 10*time.Millisecond, "auto-save should persist the full offline state")

	creates, updates, _ := f.backend.counts()
	assert.Zero(t, creates, "offline work must not reach the backend")
	assert.Zero(t, updates)

	snap := f.mgr.Snapshot()
	assert.False(t, snap.Sync.IsOnline)
	assert.GreaterOrEqual(t, snap.Sync.PendingSyncs, 1, "offline mutations should count as pending")

	f.orch.SetOnline(true)

	require.Eventually(t, func() bool {
		creates, _, _ := f.backend.counts()
		return creates == 1
	}, 2*time.Second, 10*time.Millisecond, "reconnect sweep should push the pending session")

	require.Eventually(t, func() bool {
		snap := f.mgr.Snapshot()
		return snap.Sync.PendingSyncs == 0 && snap.Session != nil && !snap.Session.IsLocal
	}, 2*time.Second, 10*time.Millisecond, "sync bookkeeping should settle")

	// Give stray timers a chance to misfire before counting again.
	time.Sleep(100 * time.Millisecond)
	creates, updates, _ = f.backend.counts()
	assert.Equal(t, 1, creates, "the whole offline batch should arrive as a single upsert")
	assert.Zero(t, updates)

	pushed, ok := f.backend.get(sess.SessionID)
	require.True(t, ok, "backend should have the session")
	assert.Equal(t, 2, pushed.MessageCount)
	assert.Equal(t, "urban commuters", pushed.BusinessContext.TargetCustomer)
	assert.Equal(t, models.DefaultIndustry, pushed.BusinessContext.Industry)

	rec, err := f.st.GetSession(ctx, sess.SessionID)
	require.NoError(t, err, "should load session")
	assert.False(t, rec.NeedsSync(), "store record should be clean after the sweep")

	snap = f.mgr.Snapshot()
	assert.True(t, snap.Sync.IsOnline)
	assert.Empty(t, snap.Sync.SyncError)
	require.NotNil(t, snap.Sync.LastSyncAt, "successful sweep should stamp last_sync_at")
}

func TestLoadSessionLastWriteWins(t *testing.T) {
	ctx := context.Background()

	t.Run("newer local copy wins", func(t *testing.T) {
		f := newFixture(t, 40*time.Millisecond)

		sess := models.NewSession(models.BusinessContext{BusinessIdea: "dog walking marketplace"})
		sess.IsLocal = false
		require.NoError(t, f.st.PutSession(ctx, sess, false), "should store local copy")

		older := sess.Clone()
		older.CreatedAt = sess.CreatedAt.Add(-time.Hour)
		older.UpdatedAt = older.CreatedAt
		f.backend.put(*older)
		f.orch.SetOnline(true)

		loaded, err := f.mgr.LoadSession(ctx, sess.SessionID)
		require.NoError(t, err, "should load session")
		assert.True(t, loaded.UpdatedAt.Equal(sess.UpdatedAt), "newer local copy should win")
	})

	t.Run("newer backend copy wins and is cached", func(t *testing.T) {
		f := newFixture(t, 40*time.Millisecond)

		sess := models.NewSession(models.BusinessContext{BusinessIdea: "dog walking marketplace"})
		sess.IsLocal = false
		require.NoError(t, f.st.PutSession(ctx, sess, false), "should store local copy")

		newer := sess.Clone()
		newer.Messages = append(newer.Messages, models.NewMessage(models.RoleUser, "hi"))
		newer.MessageCount = 1
		newer.UpdatedAt = sess.UpdatedAt.Add(time.Hour)
		f.backend.put(*newer)
		f.orch.SetOnline(true)

		loaded, err := f.mgr.LoadSession(ctx, sess.SessionID)
		require.NoError(t, err, "should load session")
		assert.Equal(t, 1, loaded.MessageCount, "backend copy should win")

		rec, err := f.st.GetSession(ctx, sess.SessionID)
		require.NoError(t, err, "should load cached copy")
		assert.False(t, rec.NeedsSync(), "adopted backend copy should be cached clean")
		assert.True(t, rec.Session.UpdatedAt.Equal(newer.UpdatedAt))
	})
}

func TestLoadSessionFetchesFromBackend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 40*time.Millisecond)

	remote := models.NewSession(models.BusinessContext{BusinessIdea: "meal prep subscriptions"})
	remote.IsLocal = false
	f.backend.put(*remote)
	f.orch.SetOnline(true)

	loaded, err := f.mgr.LoadSession(ctx, remote.SessionID)
	require.NoError(t, err, "should load session from backend")
	assert.Equal(t, remote.SessionID, loaded.SessionID)
	assert.False(t, loaded.IsLocal)

	id, err := f.st.CurrentSessionID(ctx)
	require.NoError(t, err, "should read current-session pointer")
	assert.Equal(t, remote.SessionID, id, "loaded session should become current")
}

func TestLoadSessionMissing(t *testing.T) {
	ctx := context.Background()

	t.Run("online", func(t *testing.T) {
		f := newFixture(t, 40*time.Millisecond)
		f.orch.SetOnline(true)

		_, err := f.mgr.LoadSession(ctx, "no-such-id")
		require.Error(t, err, "missing session should fail")
		assert.ErrorIs(t, err, client.ErrNotFound)

		snap := f.mgr.Snapshot()
		assert.False(t, snap.SessionLoading, "loading flag should clear on failure")
	})

	t.Run("offline", func(t *testing.T) {
		f := newFixture(t, 40*time.Millisecond)

		_, err := f.mgr.LoadSession(ctx, "no-such-id")
		require.Error(t, err, "missing session should fail")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestLoadSessionSupersededByNewerLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 40*time.Millisecond)

	sess := models.NewSession(models.BusinessContext{BusinessIdea: "tool lending library"})
	sess.IsLocal = false
	f.backend.put(*sess)
	f.orch.SetOnline(true)
	f.backend.gate = make(chan struct{})

	errCh := make(chan error, 1)
	go func() {
		_, err := f.mgr.LoadSession(context.Background(), sess.SessionID)
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&f.backend.parked) == 1
	}, 2*time.Second, 5*time.Millisecond, "first load should reach the backend")

	loaded, err := f.mgr.LoadSession(ctx, sess.SessionID)
	require.NoError(t, err, "newest load should win")
	assert.Equal(t, sess.SessionID, loaded.SessionID)

	assert.ErrorIs(t, <-errCh, session.ErrSuperseded, "older load should be discarded")
	close(f.backend.gate)

	snap := f.mgr.Snapshot()
	assert.False(t, snap.SessionLoading)
	require.NotNil(t, snap.Session)
	assert.Equal(t, sess.SessionID, snap.Session.SessionID)
}

func TestDeleteCurrentSessionResetsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 40*time.Millisecond)
	f.orch.SetOnline(true)

	sess, err := f.mgr.CreateSession(ctx, models.BusinessContext{BusinessIdea: "event photo sharing"})
	require.NoError(t, err, "should create session")

	creates, _, _ := f.backend.counts()
	require.Equal(t, 1, creates, "online create should push immediately")

	require.NoError(t, f.mgr.DeleteSession(ctx, sess.SessionID), "should delete session")

	_, _, deletes := f.backend.counts()
	assert.Equal(t, 1, deletes, "backend copy should be deleted")

	_, err = f.st.GetSession(ctx, sess.SessionID)
	assert.ErrorIs(t, err, store.ErrNotFound, "local copy should be gone")

	id, err := f.st.CurrentSessionID(ctx)
	require.NoError(t, err, "should read current-session pointer")
	assert.Empty(t, id, "current-session pointer should be cleared")

	snap := f.mgr.Snapshot()
	assert.Nil(t, snap.Session, "deleting the loaded session should reset the state")
	assert.True(t, snap.Sync.IsOnline, "connectivity should survive the reset")
	assert.Zero(t, snap.Sync.PendingSyncs)
}

func TestDeleteLocalOnlySessionSkipsBackend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 40*time.Millisecond)

	sess, err := f.mgr.CreateSession(ctx, models.BusinessContext{BusinessIdea: "plant care reminders"})
	require.NoError(t, err, "should create session")

	require.NoError(t, f.mgr.DeleteSession(ctx, sess.SessionID), "should delete session")

	creates, updates, deletes := f.backend.counts()
	assert.Zero(t, creates)
	assert.Zero(t, updates)
	assert.Zero(t, deletes, "a never-synced session needs no backend delete")

	snap := f.mgr.Snapshot()
	assert.Nil(t, snap.Session)
	assert.Zero(t, snap.Sync.PendingSyncs, "pending count should drop with the deleted session")
}

func TestCloseFlushesUnsavedWork(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10*time.Second)

	sess, err := f.mgr.CreateSession(ctx, models.BusinessContext{BusinessIdea: "loud mechanical keyboards"})
	require.NoError(t, err, "should create session")
	require.NoError(t, f.mgr.Say(models.RoleUser, "quick note before quitting"))

	f.mgr.Close(ctx)

	rec, err := f.st.GetSession(ctx, sess.SessionID)
	require.NoError(t, err, "should load saved session")
	assert.Equal(t, 1, rec.Session.MessageCount, "close should flush the unsaved message")
	assert.True(t, rec.Dirty)
}

func TestContentOpsRequireLoadedSession(t *testing.T) {
	f := newFixture(t, 40*time.Millisecond)
	tc := "anyone"

	assert.ErrorIs(t, f.mgr.Say(models.RoleUser, "hello"), session.ErrNoSession)
	assert.ErrorIs(t, f.mgr.PatchBusinessContext(models.BusinessContextPatch{TargetCustomer: &tc}), session.ErrNoSession)
	assert.ErrorIs(t, f.mgr.ApplyQuestionnaire(models.Questionnaire{}), session.ErrNoSession)
	assert.ErrorIs(t, f.mgr.SetStatus(models.StatusCompleted), session.ErrNoSession)

	assert.Error(t, f.mgr.Say("narrator", "x"), "unknown role should be rejected")
	assert.Error(t, f.mgr.Say(models.RoleUser, ""), "empty content should be rejected")
	assert.Error(t, f.mgr.SetStatus("bogus"), "unknown status should be rejected")
}

func TestQuestionnaireAndStatusPersist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30*time.Millisecond)

	sess, err := f.mgr.CreateSession(ctx, models.BusinessContext{BusinessIdea: "secondhand ski gear"})
	require.NoError(t, err, "should create session")

	now := time.Now().UTC()
	q := models.Questionnaire{
		Questions: models.QuestionSet{
			ProblemDiscovery:   []string{"How do you buy gear today?"},
			SolutionValidation: []string{"Would you trust a stranger's fitted boots?"},
			FollowUp:           []string{"Who else should we talk to?"},
		},
		Generated:   true,
		GeneratedAt: &now,
	}
	require.NoError(t, f.mgr.ApplyQuestionnaire(q))
	require.NoError(t, f.mgr.SetStatus(models.StatusCompleted))

	snap := f.mgr.Snapshot()
	require.NotNil(t, snap.Session)
	assert.True(t, snap.Session.Questionnaire.Generated)
	assert.Equal(t, models.StatusCompleted, snap.Session.Status)

	require.Eventually(t, func() bool {
		rec, err := f.st.GetSession(ctx, sess.SessionID)
		return err == nil && rec.Session.Status == models.StatusCompleted && rec.Session.Questionnaire.Generated
	}, 2*time.Second, 10*time.Millisecond, "auto-save should persist questionnaire and status")
}

func TestResumeReopensLastSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 40*time.Millisecond)

	sess, err := f.mgr.CreateSession(ctx, models.BusinessContext{BusinessIdea: "board game nights"})
	require.NoError(t, err, "should create session")
	f.mgr.Close(ctx)

	reopened := session.NewManager(f.st, nil, session.Options{})
	t.Cleanup(func() { reopened.Close(ctx) })

	resumed, err := reopened.Resume(ctx)
	require.NoError(t, err, "should resume")
	require.NotNil(t, resumed, "should find the last session")
	assert.Equal(t, sess.SessionID, resumed.SessionID)

	require.NoError(t, f.st.SetCurrentSessionID(ctx, "long-gone"))
	resumed, err = reopened.Resume(ctx)
	require.NoError(t, err, "stale pointer should not fail")
	assert.Nil(t, resumed, "stale pointer should resolve to no session")

	id, err := f.st.CurrentSessionID(ctx)
	require.NoError(t, err, "should read current-session pointer")
	assert.Empty(t, id, "stale pointer should be cleared")
}

func TestForceSyncFlushesAndSweeps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10*time.Second)
	f.orch.SetOnline(true)

	sess, err := f.mgr.CreateSession(ctx, models.BusinessContext{BusinessIdea: "community tool shed"})
	require.NoError(t, err, "should create session")
	require.NoError(t, f.mgr.Say(models.RoleUser, "What tools do you borrow most?"))

	require.NoError(t, f.mgr.ForceSync(ctx), "force sync should flush and push")

	pushed, ok := f.backend.get(sess.SessionID)
	require.True(t, ok, "backend should have the session")
	assert.Equal(t, 1, pushed.MessageCount, "flushed message should be part of the push")

	rec, err := f.st.GetSession(ctx, sess.SessionID)
	require.NoError(t, err, "should load session")
	assert.False(t, rec.NeedsSync(), "force-synced session should be clean")
}
