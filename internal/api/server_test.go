package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/riptide-dl/riptide/internal/engine"
	"github.com/riptide-dl/riptide/internal/engine/state"
	"github.com/riptide-dl/riptide/internal/engine/types"
	"github.com/riptide-dl/riptide/internal/logging"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	store, err := state.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mgr, err := engine.New(store, t.TempDir(), logging.Nop())
	require.NoError(t, err)

	s := NewServer(mgr, logging.Nop())
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
		mgr.Shutdown(ctx)
	})
	return s, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestAddAndList(t *testing.T) {
	content := strings.Repeat("payload", 100)
	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, content)
	}))
	defer fileSrv.Close()

	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/downloads", map[string]string{"url": fileSrv.URL + "/file.bin"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]string
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created["id"])

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(ts.URL + "/api/downloads")
		require.NoError(t, err)
		var views []types.DownloadView
		decodeBody(t, resp, &views)
		if len(views) == 1 && views[0].Status == types.StatusCompleted {
			require.Equal(t, created["id"], views[0].ID)
			require.Equal(t, int64(len(content)), views[0].Progress.Downloaded)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("download never completed: %+v", views)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestListEmptyIsArray(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/downloads")
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	require.Equal(t, "[]", strings.TrimSpace(buf.String()))
}

func TestErrorMapping(t *testing.T) {
	_, ts := newTestServer(t)

	// validation
	resp := postJSON(t, ts.URL+"/api/downloads", map[string]string{"url": ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body struct {
		Error string          `json:"error"`
		Kind  types.ErrorKind `json:"kind"`
	}
	decodeBody(t, resp, &body)
	require.Equal(t, types.ErrValidation, body.Kind)

	// invalid-path
	resp = postJSON(t, ts.URL+"/api/downloads", map[string]string{
		"url": "http://host/file", "folder": "../escape",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	decodeBody(t, resp, &body)
	require.Equal(t, types.ErrInvalidPath, body.Kind)

	// not-found
	resp = postJSON(t, ts.URL+"/api/downloads/no-such-id/pause", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	decodeBody(t, resp, &body)
	require.Equal(t, types.ErrNotFound, body.Kind)
}

func TestInvalidStateMapsToConflict(t *testing.T) {
	_, ts := newTestServer(t)

	// global pause so the new download parks as paused
	resp := postJSON(t, ts.URL+"/api/pause-all", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/downloads", map[string]string{"url": "http://127.0.0.1:1/x"})
	var created map[string]string
	decodeBody(t, resp, &created)

	// pausing an already paused download is an invalid transition
	resp = postJSON(t, ts.URL+"/api/downloads/"+created["id"]+"/pause", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestCancelDeleteFileParam(t *testing.T) {
	_, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/downloads/some-id?delete_file=banana", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSettingsEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/settings/" + types.SettingMaxConcurrent)
	require.NoError(t, err)
	var setting map[string]string
	decodeBody(t, resp, &setting)
	require.Equal(t, "3", setting["value"])

	req, err := http.NewRequest(http.MethodPut,
		ts.URL+"/api/settings/"+types.SettingMaxConcurrent,
		strings.NewReader(`{"value":"5"}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/settings/" + types.SettingMaxConcurrent)
	require.NoError(t, err)
	decodeBody(t, resp, &setting)
	require.Equal(t, "5", setting["value"])

	resp, err = http.Get(ts.URL + "/api/settings/no_such_key")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPut,
		ts.URL+"/api/settings/"+types.SettingRateLimit,
		strings.NewReader(`{"value":"-1"}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	var body map[string]string
	decodeBody(t, resp, &body)
	require.Equal(t, "ok", body["status"])
}

func TestLoopbackOnlyMiddleware(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.5:44123"
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebSocketPush(t *testing.T) {
	_, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// subscription begins with an immediate snapshot
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg types.StatusMsg
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "status", msg.Type)

	// and then a periodic one without any prompting
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "status", msg.Type)
}
