package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetconf/shepherd/pkg/components"
	"github.com/fleetconf/shepherd/pkg/options"
	"github.com/fleetconf/shepherd/pkg/registry"
	"github.com/fleetconf/shepherd/pkg/secrets"
	"github.com/fleetconf/shepherd/pkg/sessions"
	"github.com/fleetconf/shepherd/pkg/storage"
	"github.com/fleetconf/shepherd/pkg/types"
)

type testServer struct {
	*Server
	store  storage.Store
	engine *components.Engine
	opts   *options.Cache
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	opts := options.NewCache(store)
	require.NoError(t, opts.Reload())
	sm, err := secrets.NewManagerFromPassword(store, "test-password")
	require.NoError(t, err)

	engine := components.NewEngine(store, opts, nil)
	reg := registry.NewRegistry(store, sm, nil)
	mgr := sessions.NewManager(store, opts, nil, nil)

	return &testServer{
		Server: NewServer(engine, reg, mgr, opts),
		store:  store,
		engine: engine,
		opts:   opts,
	}
}

func (ts *testServer) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func seedConfiguration(t *testing.T, ts *testServer, name string) {
	t.Helper()
	require.NoError(t, ts.store.PutConfiguration(&types.Configuration{
		Name:   name,
		Layers: []types.Layer{{CloneURL: "https://git.example.com/a.git", Playbook: "site.yml"}},
	}))
}

func TestV3ComponentLifecycle(t *testing.T) {
	ts := newTestServer(t)
	seedConfiguration(t, ts, "base")

	w := ts.request(t, http.MethodPut, "/v3/components/node1", gin.H{
		"desired_config": "base",
		"enabled":        true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	assert.Equal(t, "node1", created["id"])
	assert.Equal(t, "pending", created["status"])
	assert.Contains(t, w.Body.String(), "desired_config")

	w = ts.request(t, http.MethodGet, "/v3/components/node1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.request(t, http.MethodPatch, "/v3/components/node1", gin.H{
		"state_append": gin.H{
			"clone_url": "https://git.example.com/a.git",
			"playbook":  "site.yml",
			"status":    "success",
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	patched := decode[map[string]any](t, w)
	assert.Equal(t, "success", patched["status"])

	w = ts.request(t, http.MethodDelete, "/v3/components/node1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = ts.request(t, http.MethodGet, "/v3/components/node1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	problem := decode[map[string]any](t, w)
	assert.Equal(t, float64(http.StatusNotFound), problem["status"])
	assert.Equal(t, "Not Found", problem["title"])
}

func TestV3ListComponentsPaging(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, ts.store.PutComponent(&types.Component{ID: fmt.Sprintf("node%d", i)}))
	}

	w := ts.request(t, http.MethodGet, "/v3/components?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Components []*types.Component `json:"components"`
		Next       string             `json:"next"`
	}](t, w)
	require.Len(t, page.Components, 2)
	require.NotEmpty(t, page.Next)

	w = ts.request(t, http.MethodGet, "/v3/components?limit=2&after="+page.Next, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[struct {
		Components []*types.Component `json:"components"`
		Next       string             `json:"next"`
	}](t, w)
	require.Len(t, page.Components, 1)
	assert.Empty(t, page.Next)

	// A cursor issued for one filter is invalid under another.
	w = ts.request(t, http.MethodGet, "/v3/components?limit=2&after="+page.Next+"&enabled=true", nil)
	require.Equal(t, http.StatusOK, w.Code) // empty cursor resets cleanly

	w = ts.request(t, http.MethodGet, "/v3/components?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestV3BulkComponentPatch(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.PutComponent(&types.Component{ID: "node1"}))

	w := ts.request(t, http.MethodPatch, "/v3/components", gin.H{
		"patch":   gin.H{"enabled": true},
		"filters": gin.H{"ids": "node1,ghost"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	outcome := decode[types.BulkOutcome](t, w)
	assert.Equal(t, []string{"node1"}, outcome.Succeeded)
	assert.Equal(t, map[string]string{"ghost": "component not found"}, outcome.Skipped)

	// ids cannot be combined with other criteria.
	w = ts.request(t, http.MethodPatch, "/v3/components", gin.H{
		"patch":   gin.H{"enabled": true},
		"filters": gin.H{"ids": "node1", "config_name": "base"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// patch and filters are both required.
	w = ts.request(t, http.MethodPatch, "/v3/components", gin.H{
		"patch": gin.H{"enabled": true},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestV2ComponentSurface(t *testing.T) {
	ts := newTestServer(t)
	seedConfiguration(t, ts, "base")
	require.NoError(t, ts.store.PutComponent(&types.Component{
		ID:            "node1",
		DesiredConfig: "base",
		Enabled:       true,
	}))

	w := ts.request(t, http.MethodGet, "/v2/components", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]map[string]any](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "base", list[0]["desiredConfig"])
	assert.Equal(t, "pending", list[0]["configurationStatus"])
	assert.NotContains(t, w.Body.String(), "desired_config")

	w = ts.request(t, http.MethodPatch, "/v2/components/node1", gin.H{
		"stateAppend": gin.H{
			"cloneUrl": "https://git.example.com/a.git",
			"playbook": "site.yml",
			"status":   "success",
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	patched := decode[map[string]any](t, w)
	assert.Equal(t, "success", patched["configurationStatus"])
}

func TestV2ListRejectsOverflow(t *testing.T) {
	ts := newTestServer(t)
	size := 1
	_, err := ts.opts.Update(&options.Patch{DefaultPageSize: &size})
	require.NoError(t, err)
	require.NoError(t, ts.store.PutComponent(&types.Component{ID: "node1"}))
	require.NoError(t, ts.store.PutComponent(&types.Component{ID: "node2"}))

	w := ts.request(t, http.MethodGet, "/v2/components", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestV2BulkPatchAllOrNothing(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.PutComponent(&types.Component{ID: "node1"}))

	w := ts.request(t, http.MethodPatch, "/v2/components", []gin.H{
		{"id": "node1", "enabled": true},
		{"id": "ghost", "enabled": true},
	})
	require.Equal(t, http.StatusNotFound, w.Code)

	// Nothing was changed.
	comp, err := ts.engine.Get("node1")
	require.NoError(t, err)
	assert.False(t, comp.Enabled)

	w = ts.request(t, http.MethodPatch, "/v2/components", []gin.H{
		{"id": "node1", "enabled": true},
	})
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]map[string]any](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, true, list[0]["enabled"])
}

func TestSessionCreateStatusCodes(t *testing.T) {
	ts := newTestServer(t)
	seedConfiguration(t, ts, "base")

	w := ts.request(t, http.MethodPost, "/v3/sessions", gin.H{
		"name":               "run-v3",
		"configuration_name": "base",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.request(t, http.MethodPost, "/v2/sessions", gin.H{
		"name":              "run-v2",
		"configurationName": "base",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	assert.Equal(t, "base", created["configurationName"])

	// Duplicate names conflict on both surfaces.
	w = ts.request(t, http.MethodPost, "/v3/sessions", gin.H{
		"name":               "run-v3",
		"configuration_name": "base",
	})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestBulkSessionDeleteStatusCodes(t *testing.T) {
	ts := newTestServer(t)
	seedConfiguration(t, ts, "base")
	for _, name := range []string{"run-a", "run-b"} {
		require.NoError(t, ts.store.PutSession(&types.Session{Name: name, Configuration: "base"}))
	}

	w := ts.request(t, http.MethodDelete, "/v3/sessions?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string][]string](t, w)
	assert.ElementsMatch(t, []string{"run-a", "run-b"}, body["session_ids"])

	for _, name := range []string{"run-a", "run-b"} {
		require.NoError(t, ts.store.PutSession(&types.Session{Name: name, Configuration: "base"}))
	}
	w = ts.request(t, http.MethodDelete, "/v2/sessions?status=pending", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestSessionPatchRegressionRejected(t *testing.T) {
	ts := newTestServer(t)
	seedConfiguration(t, ts, "base")
	require.NoError(t, ts.store.PutSession(&types.Session{
		Name:          "run1",
		Configuration: "base",
		Status:        types.SessionStatusInfo{Status: types.SessionComplete, Succeeded: types.SucceededTrue},
	}))

	w := ts.request(t, http.MethodPatch, "/v3/sessions/run1", gin.H{"status": "running"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfigurationRestoreEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPut, "/v3/configurations/base", gin.H{
		"layers": []gin.H{{"clone_url": "https://git.example.com/a.git"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.request(t, http.MethodDelete, "/v3/configurations/base", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = ts.request(t, http.MethodPost, "/v3/configurations/base/restore", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.request(t, http.MethodGet, "/v3/configurations/base", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSourceEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/v3/sources", gin.H{
		"name":      "vcs",
		"clone_url": "https://git.example.com/a.git",
		"credentials": gin.H{
			"authentication_method": "password",
			"username":              "bot",
			"password":              "hunter2",
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	assert.NotContains(t, w.Body.String(), "hunter2")
	creds := created["credentials"].(map[string]any)
	assert.NotEmpty(t, creds["secret_name"])

	w = ts.request(t, http.MethodPost, "/v3/sources", gin.H{
		"name":      "vcs",
		"clone_url": "https://git.example.com/b.git",
		"credentials": gin.H{
			"authentication_method": "password",
			"username":              "bot",
			"password":              "hunter2",
		},
	})
	require.Equal(t, http.StatusConflict, w.Code)

	w = ts.request(t, http.MethodDelete, "/v3/sources/vcs", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = ts.request(t, http.MethodPost, "/v3/sources/vcs/restore", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteInUseConfigurationConflicts(t *testing.T) {
	ts := newTestServer(t)
	seedConfiguration(t, ts, "base")
	require.NoError(t, ts.store.PutComponent(&types.Component{ID: "node1", DesiredConfig: "base"}))

	w := ts.request(t, http.MethodDelete, "/v3/configurations/base", nil)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestOptionsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodGet, "/v3/options", nil)
	require.Equal(t, http.StatusOK, w.Code)
	opts := decode[types.Options](t, w)
	assert.Equal(t, options.DefaultBatchSize, opts.BatchSize)

	w = ts.request(t, http.MethodPatch, "/v3/options", gin.H{"batch_size": 7})
	require.Equal(t, http.StatusOK, w.Code)
	opts = decode[types.Options](t, w)
	assert.Equal(t, 7, opts.BatchSize)

	w = ts.request(t, http.MethodPatch, "/v3/options", gin.H{"session_ttl": "soon"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.request(t, http.MethodPatch, "/v3/options", gin.H{"batch_size": 0})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// The legacy surface speaks camelCase.
	w = ts.request(t, http.MethodGet, "/v2/options", nil)
	require.Equal(t, http.StatusOK, w.Code)
	legacy := decode[map[string]any](t, w)
	assert.Equal(t, float64(7), legacy["batchSize"])

	w = ts.request(t, http.MethodPatch, "/v2/options", gin.H{"batchWindow": 30})
	require.Equal(t, http.StatusOK, w.Code)
	legacy = decode[map[string]any](t, w)
	assert.Equal(t, float64(30), legacy["batchWindow"])
}
