package batcher

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetconf/shepherd/pkg/components"
	"github.com/fleetconf/shepherd/pkg/filter"
	"github.com/fleetconf/shepherd/pkg/options"
	"github.com/fleetconf/shepherd/pkg/sessions"
	"github.com/fleetconf/shepherd/pkg/storage"
	"github.com/fleetconf/shepherd/pkg/types"
)

type testFixture struct {
	store   storage.Store
	engine  *components.Engine
	mgr     *sessions.Manager
	opts    *options.Cache
	batcher *Batcher
}

func newFixture(t *testing.T, batchSize, batchWindow int) *testFixture {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.PutOptions(&types.Options{
		BatchSize:   batchSize,
		BatchWindow: batchWindow,
	}))
	opts := options.NewCache(store)
	require.NoError(t, opts.Reload())

	require.NoError(t, store.PutConfiguration(&types.Configuration{
		Name:   "base",
		Layers: []types.Layer{{CloneURL: "https://git.example.com/a.git"}},
	}))

	engine := components.NewEngine(store, opts, nil)
	mgr := sessions.NewManager(store, opts, nil, nil)
	return &testFixture{
		store:   store,
		engine:  engine,
		mgr:     mgr,
		opts:    opts,
		batcher: NewBatcher(store, engine, mgr, opts),
	}
}

func (f *testFixture) addComponent(t *testing.T, c *types.Component) {
	t.Helper()
	_, err := f.engine.Upsert(c)
	require.NoError(t, err)
}

func (f *testFixture) listSessions(t *testing.T) []*types.Session {
	t.Helper()
	page, _, err := f.mgr.List(&filter.SessionFilter{}, 0, "")
	require.NoError(t, err)
	return page
}

func TestCycleFiresFullBatch(t *testing.T) {
	f := newFixture(t, 2, 3600)
	f.addComponent(t, &types.Component{ID: "node1", DesiredConfig: "base", Enabled: true})
	f.addComponent(t, &types.Component{ID: "node2", DesiredConfig: "base", Enabled: true})

	require.NoError(t, f.batcher.cycle())

	created := f.listSessions(t)
	require.Len(t, created, 1)
	sess := created[0]
	assert.True(t, strings.HasPrefix(sess.Name, "batcher-"))
	assert.Equal(t, "base", sess.Configuration)
	assert.Equal(t, types.TargetSpec, sess.Target.Definition)
	require.Len(t, sess.Target.Groups, 1)
	assert.Equal(t, "batch", sess.Target.Groups[0].Name)
	assert.ElementsMatch(t, []string{"node1", "node2"}, sess.Target.Groups[0].Members)

	// Members carry the session back-reference.
	for _, id := range []string{"node1", "node2"} {
		comp, err := f.engine.Get(id)
		require.NoError(t, err)
		assert.Equal(t, sess.Name, comp.Session)
	}
}

func TestCycleHoldsPartialBatchUntilWindow(t *testing.T) {
	f := newFixture(t, 10, 3600)
	f.addComponent(t, &types.Component{ID: "node1", DesiredConfig: "base", Enabled: true})

	require.NoError(t, f.batcher.cycle())
	assert.Empty(t, f.listSessions(t), "partial batch must wait for the window")

	// Age the pending batch past the window.
	f.batcher.pending["base"].created = time.Now().Add(-2 * time.Hour)
	require.NoError(t, f.batcher.cycle())

	created := f.listSessions(t)
	require.Len(t, created, 1)
	assert.Equal(t, []string{"node1"}, created[0].Target.Groups[0].Members)
}

func TestPendingBatchDeduplicatesAcrossCycles(t *testing.T) {
	f := newFixture(t, 10, 3600)
	f.addComponent(t, &types.Component{ID: "node1", DesiredConfig: "base", Enabled: true})

	require.NoError(t, f.batcher.cycle())
	require.NoError(t, f.batcher.cycle())
	require.NoError(t, f.batcher.cycle())

	assert.Equal(t, []string{"node1"}, f.batcher.pending["base"].members)
}

func TestComponentWithLiveSessionIsSkipped(t *testing.T) {
	f := newFixture(t, 1, 3600)
	f.addComponent(t, &types.Component{ID: "node1", DesiredConfig: "base", Enabled: true})

	require.NoError(t, f.batcher.cycle())
	require.Len(t, f.listSessions(t), 1)
	first := f.listSessions(t)[0].Name

	// The session is still pending, so no new batch forms.
	require.NoError(t, f.batcher.cycle())
	assert.Len(t, f.listSessions(t), 1)

	// Once the session completes, the component is eligible again.
	complete := types.SessionComplete
	_, err := f.mgr.Patch(first, &sessions.StatusPatch{Status: &complete})
	require.NoError(t, err)

	require.NoError(t, f.batcher.cycle())
	assert.Len(t, f.listSessions(t), 2)
}

func TestRetryBudget(t *testing.T) {
	f := newFixture(t, 1, 3600)

	// Default retry policy comes from options (1 attempt).
	f.addComponent(t, &types.Component{
		ID:            "exhausted",
		DesiredConfig: "base",
		Enabled:       true,
		ErrorCount:    1,
	})
	require.NoError(t, f.batcher.cycle())
	assert.Empty(t, f.listSessions(t))

	// A per-component override of -1 means unlimited attempts.
	unlimited := -1
	f.addComponent(t, &types.Component{
		ID:            "persistent",
		DesiredConfig: "base",
		Enabled:       true,
		ErrorCount:    100,
		RetryPolicy:   &unlimited,
	})
	require.NoError(t, f.batcher.cycle())
	created := f.listSessions(t)
	require.Len(t, created, 1)
	assert.Equal(t, []string{"persistent"}, created[0].Target.Groups[0].Members)
}

func TestDisabledAndUnconfiguredComponentsAreIgnored(t *testing.T) {
	f := newFixture(t, 1, 3600)
	f.addComponent(t, &types.Component{ID: "disabled", DesiredConfig: "base"})
	f.addComponent(t, &types.Component{ID: "no-config", Enabled: true})

	require.NoError(t, f.batcher.cycle())
	assert.Empty(t, f.listSessions(t))
}

func TestFireRechecksMembersAfterWindow(t *testing.T) {
	f := newFixture(t, 10, 3600)
	f.addComponent(t, &types.Component{ID: "node1", DesiredConfig: "base", Enabled: true})
	f.addComponent(t, &types.Component{ID: "node2", DesiredConfig: "base", Enabled: true})

	require.NoError(t, f.batcher.cycle())
	require.Empty(t, f.listSessions(t))

	// node1 converges while the batch waits out the window.
	_, err := f.engine.Patch("node1", &types.ComponentPatch{
		StateAppend: &types.LayerResult{
			CloneURL: "https://git.example.com/a.git",
			Playbook: "site.yml",
			Status:   types.LayerSuccess,
		},
	})
	require.NoError(t, err)

	f.batcher.pending["base"].created = time.Now().Add(-2 * time.Hour)
	require.NoError(t, f.batcher.cycle())

	created := f.listSessions(t)
	require.Len(t, created, 1)
	assert.Equal(t, []string{"node2"}, created[0].Target.Groups[0].Members)

	node1, err := f.engine.Get("node1")
	require.NoError(t, err)
	assert.Empty(t, node1.Session)
}

func TestFireSkipsBatchWithNoEligibleMembers(t *testing.T) {
	f := newFixture(t, 10, 3600)
	f.addComponent(t, &types.Component{ID: "node1", DesiredConfig: "base", Enabled: true})

	require.NoError(t, f.batcher.cycle())

	// Disabled while the batch waited; nothing left to run.
	enabled := false
	_, err := f.engine.Patch("node1", &types.ComponentPatch{Enabled: &enabled})
	require.NoError(t, err)

	f.batcher.pending["base"].created = time.Now().Add(-2 * time.Hour)
	require.NoError(t, f.batcher.cycle())
	assert.Empty(t, f.listSessions(t))
}

func TestCycleExpiresCompletedSessions(t *testing.T) {
	f := newFixture(t, 10, 3600)

	old := time.Now().Add(-8 * 24 * time.Hour)
	recent := time.Now().Add(-time.Hour)
	require.NoError(t, f.store.PutSession(&types.Session{
		Name:          "old-done",
		Configuration: "base",
		Status: types.SessionStatusInfo{
			Status:    types.SessionComplete,
			StartTime: &old,
		},
	}))
	require.NoError(t, f.store.PutSession(&types.Session{
		Name:          "fresh-done",
		Configuration: "base",
		Status: types.SessionStatusInfo{
			Status:    types.SessionComplete,
			StartTime: &recent,
		},
	}))
	require.NoError(t, f.store.PutSession(&types.Session{
		Name:          "old-running",
		Configuration: "base",
		Status: types.SessionStatusInfo{
			Status:    types.SessionRunning,
			StartTime: &old,
		},
	}))

	// Default session_ttl is 7d; only completed sessions past it go.
	require.NoError(t, f.batcher.cycle())

	remaining := f.listSessions(t)
	names := make([]string, 0, len(remaining))
	for _, s := range remaining {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"fresh-done", "old-running"}, names)
}

func TestBatchesGroupByConfiguration(t *testing.T) {
	f := newFixture(t, 2, 3600)
	require.NoError(t, f.store.PutConfiguration(&types.Configuration{
		Name:   "other",
		Layers: []types.Layer{{CloneURL: "https://git.example.com/b.git"}},
	}))

	f.addComponent(t, &types.Component{ID: "node1", DesiredConfig: "base", Enabled: true})
	f.addComponent(t, &types.Component{ID: "node2", DesiredConfig: "base", Enabled: true})
	f.addComponent(t, &types.Component{ID: "node3", DesiredConfig: "other", Enabled: true})

	require.NoError(t, f.batcher.cycle())

	created := f.listSessions(t)
	require.Len(t, created, 1, "only the full batch fires")
	assert.Equal(t, "base", created[0].Configuration)
	assert.Equal(t, []string{"node3"}, f.batcher.pending["other"].members)
}
