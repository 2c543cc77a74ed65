package sessions

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetconf/shepherd/pkg/filter"
	"github.com/fleetconf/shepherd/pkg/options"
	"github.com/fleetconf/shepherd/pkg/storage"
	"github.com/fleetconf/shepherd/pkg/types"
)

func newTestManager(t *testing.T) (*Manager, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.PutConfiguration(&types.Configuration{Name: "base"}))
	return NewManager(store, options.NewCache(store), nil, nil), store
}

func TestGenerateNameFitsStrictBound(t *testing.T) {
	name := GenerateName("batcher")
	assert.True(t, strings.HasPrefix(name, "batcher-"))
	assert.LessOrEqual(t, len(name), MaxNameLengthV3)
}

func TestCreateValidation(t *testing.T) {
	mgr, _ := newTestManager(t)

	tests := []struct {
		name string
		sess *types.Session
	}{
		{name: "missing name", sess: &types.Session{Configuration: "base"}},
		{
			name: "name too long",
			sess: &types.Session{Name: strings.Repeat("x", MaxNameLengthV3+1), Configuration: "base"},
		},
		{name: "missing configuration", sess: &types.Session{Name: "run1"}},
		{name: "unknown configuration", sess: &types.Session{Name: "run1", Configuration: "ghost"}},
		{
			name: "dynamic target with groups",
			sess: &types.Session{
				Name:          "run1",
				Configuration: "base",
				Target: types.SessionTarget{
					Definition: types.TargetDynamic,
					Groups:     []types.TargetGroup{{Name: "g", Members: []string{"a"}}},
				},
			},
		},
		{
			name: "spec target without groups",
			sess: &types.Session{
				Name:          "run1",
				Configuration: "base",
				Target:        types.SessionTarget{Definition: types.TargetSpec},
			},
		},
		{
			name: "spec target group without members",
			sess: &types.Session{
				Name:          "run1",
				Configuration: "base",
				Target: types.SessionTarget{
					Definition: types.TargetSpec,
					Groups:     []types.TargetGroup{{Name: "g"}},
				},
			},
		},
		{
			name: "image target member is not a UUID",
			sess: &types.Session{
				Name:          "run1",
				Configuration: "base",
				Target: types.SessionTarget{
					Definition: types.TargetImage,
					Groups:     []types.TargetGroup{{Name: "g", Members: []string{"not-a-uuid"}}},
				},
			},
		},
		{
			name: "unknown target definition",
			sess: &types.Session{
				Name:          "run1",
				Configuration: "base",
				Target:        types.SessionTarget{Definition: "cluster"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mgr.Create(tt.sess, MaxNameLengthV3)
			var verr *filter.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestCreateDefaultsAndConflict(t *testing.T) {
	mgr, _ := newTestManager(t)

	sess := &types.Session{Name: "run1", Configuration: "base"}
	created, err := mgr.Create(sess, MaxNameLengthV3)
	require.NoError(t, err)
	assert.Equal(t, types.TargetDynamic, created.Target.Definition)
	assert.Equal(t, types.SessionPending, created.Status.Status)
	assert.Equal(t, types.SucceededNone, created.Status.Succeeded)

	// A taken name is a conflict, not an upsert.
	_, err = mgr.Create(&types.Session{Name: "run1", Configuration: "base"}, MaxNameLengthV3)
	assert.ErrorIs(t, err, storage.ErrExists)
}

func TestCreateAcceptsLongerNameOnLegacyBound(t *testing.T) {
	mgr, _ := newTestManager(t)

	name := strings.Repeat("x", MaxNameLengthV2)
	_, err := mgr.Create(&types.Session{Name: name, Configuration: "base"}, MaxNameLengthV2)
	require.NoError(t, err)

	_, err = mgr.Create(&types.Session{Name: name + "y", Configuration: "base"}, MaxNameLengthV2)
	var verr *filter.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestPatchMonotonicStatus(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.Create(&types.Session{Name: "run1", Configuration: "base"}, MaxNameLengthV3)
	require.NoError(t, err)

	running := types.SessionRunning
	sess, err := mgr.Patch("run1", &StatusPatch{Status: &running})
	require.NoError(t, err)
	assert.Equal(t, types.SessionRunning, sess.Status.Status)
	require.NotNil(t, sess.Status.StartTime)
	started := *sess.Status.StartTime

	complete := types.SessionComplete
	trueVal := types.SucceededTrue
	sess, err = mgr.Patch("run1", &StatusPatch{Status: &complete, Succeeded: &trueVal})
	require.NoError(t, err)
	assert.Equal(t, types.SessionComplete, sess.Status.Status)
	assert.Equal(t, types.SucceededTrue, sess.Status.Succeeded)
	require.NotNil(t, sess.Status.CompletionTime)
	assert.Equal(t, started, *sess.Status.StartTime)

	// Regression attempts are rejected.
	pending := types.SessionPending
	_, err = mgr.Patch("run1", &StatusPatch{Status: &pending})
	var verr *filter.ValidationError
	require.ErrorAs(t, err, &verr)

	falseVal := types.SucceededFalse
	_, err = mgr.Patch("run1", &StatusPatch{Succeeded: &falseVal})
	require.ErrorAs(t, err, &verr)

	// Re-asserting the current value is allowed.
	_, err = mgr.Patch("run1", &StatusPatch{Status: &complete})
	require.NoError(t, err)
}

func TestPatchCompleteWithoutRunningSetsBothTimes(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.Create(&types.Session{Name: "run1", Configuration: "base"}, MaxNameLengthV3)
	require.NoError(t, err)

	complete := types.SessionComplete
	sess, err := mgr.Patch("run1", &StatusPatch{Status: &complete})
	require.NoError(t, err)
	require.NotNil(t, sess.Status.StartTime)
	require.NotNil(t, sess.Status.CompletionTime)
}

func TestPatchRejectsEmptyPatch(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.Patch("run1", &StatusPatch{})
	var verr *filter.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDeleteManyByFilter(t *testing.T) {
	mgr, store := newTestManager(t)

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-time.Hour)
	require.NoError(t, store.PutSession(&types.Session{
		Name:          "old-run",
		Configuration: "base",
		Status: types.SessionStatusInfo{
			Status:    types.SessionComplete,
			StartTime: &old,
		},
	}))
	require.NoError(t, store.PutSession(&types.Session{
		Name:          "recent-run",
		Configuration: "base",
		Status: types.SessionStatusInfo{
			Status:    types.SessionComplete,
			StartTime: &recent,
		},
	}))

	deleted, err := mgr.DeleteMany(&filter.SessionFilter{MinAge: 24 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, []string{"old-run"}, deleted)

	_, err = mgr.Get("recent-run")
	require.NoError(t, err)
	_, err = mgr.Get("old-run")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListPagingAndCursor(t *testing.T) {
	mgr, store := newTestManager(t)
	for _, name := range []string{"run-a", "run-b", "run-c"} {
		require.NoError(t, store.PutSession(&types.Session{Name: name, Configuration: "base"}))
	}

	f := &filter.SessionFilter{}
	page, next, err := mgr.List(f, 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)

	page, next, err = mgr.List(f, 2, next)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Empty(t, next)
	assert.Equal(t, "run-c", page[0].Name)

	// A cursor from one filter is rejected under another.
	_, cursor, err := mgr.List(f, 1, "")
	require.NoError(t, err)
	_, _, err = mgr.List(&filter.SessionFilter{NameContains: "run"}, 1, cursor)
	assert.ErrorIs(t, err, filter.ErrInvalidCursor)
}
