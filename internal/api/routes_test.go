package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduai-sync-service/internal/config"
	"eduai-sync-service/internal/notify"
	"eduai-sync-service/internal/store"
	"eduai-sync-service/internal/sync"
)

// stubRemote accepts every call; Select serves canned rows.
type stubRemote struct {
	rows map[string][]json.RawMessage
}

func (s *stubRemote) Insert(context.Context, string, json.RawMessage) error { return nil }
func (s *stubRemote) Update(context.Context, string, string, json.RawMessage) error {
	return nil
}
func (s *stubRemote) Upsert(context.Context, string, json.RawMessage) error { return nil }
func (s *stubRemote) Delete(context.Context, string, string) error          { return nil }
func (s *stubRemote) AutoGradeSubmission(context.Context, string) error     { return nil }
func (s *stubRemote) Health(context.Context) error                          { return nil }

func (s *stubRemote) Select(_ context.Context, table string, _ map[string]string) ([]json.RawMessage, error) {
	return s.rows[table], nil
}

func newTestServer(t *testing.T, authToken string) (*httptest.Server, *sync.Manager) {
	t.Helper()

	cfg := &config.Config{
		Store: config.StoreConfig{DataDir: t.TempDir()},
		Sync:  config.SyncConfig{PollInterval: "1h"},
	}
	rc := &stubRemote{rows: map[string][]json.RawMessage{
		"courses": {[]byte(`{"id":"c1","title":"Algebra"}`)},
	}}

	m, err := sync.NewManager(cfg, rc, notify.LogNotifier{})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	srv := httptest.NewServer(NewHandler(m, authToken).Routes())
	t.Cleanup(srv.Close)

	return srv, m
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWriteWhileOfflineQueues(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := postJSON(t, srv.URL+"/api/v1/write", map[string]any{
		"collection": "submissions",
		"operation":  "insert",
		"data":       json.RawMessage(`{"id":"s1","content":"essay"}`),
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// cached locally
	resp, err := http.Get(srv.URL + "/api/v1/cache/submissions")
	require.NoError(t, err)
	records := decodeBody[[]store.CachedRecord](t, resp)
	require.Len(t, records, 1)
	assert.Equal(t, "s1", records[0].ID)

	// and queued (manager not started, so the monitor reports offline)
	resp, err = http.Get(srv.URL + "/api/v1/queue")
	require.NoError(t, err)
	items := decodeBody[[]map[string]any](t, resp)
	assert.Len(t, items, 1)
}

func TestConnectivitySignalTriggersDrain(t *testing.T) {
	srv, m := newTestServer(t, "")

	resp := postJSON(t, srv.URL+"/api/v1/write", map[string]any{
		"collection": "submissions",
		"operation":  "insert",
		"data":       json.RawMessage(`{"id":"s1"}`),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/v1/connectivity", map[string]bool{"online": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		n, err := m.Queue().Len(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 5*time.Millisecond)

	// drain left a history row behind
	resp, err := http.Get(srv.URL + "/api/v1/sync/history")
	require.NoError(t, err)
	runs := decodeBody[[]*store.SyncRun](t, resp)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Synced)
}

func TestSyncStatus(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/api/v1/sync/status")
	require.NoError(t, err)
	status := decodeBody[sync.Status](t, resp)
	assert.False(t, status.Online)
	assert.False(t, status.Syncing)
	assert.Zero(t, status.Pending)
}

func TestRefreshCourses(t *testing.T) {
	srv, m := newTestServer(t, "")

	resp := postJSON(t, srv.URL+"/api/v1/cache/refresh/courses", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[map[string]int](t, resp)
	assert.Equal(t, 1, out["cached"])

	records, err := m.Store().GetAll(context.Background(), "courses")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestClearCache(t *testing.T) {
	srv, m := newTestServer(t, "")
	ctx := context.Background()

	require.NoError(t, m.Store().Put(ctx, "courses", "c1", []byte(`{"id":"c1"}`)))

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/cache", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	records, err := m.Store().GetAll(ctx, "courses")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	resp, err := http.Get(srv.URL + "/api/v1/sync/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/sync/status", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// health stays open
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
