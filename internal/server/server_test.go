package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/autodoc/internal/analyzer"
	"git.home.luguber.info/inful/autodoc/internal/config"
	"git.home.luguber.info/inful/autodoc/internal/events"
	"git.home.luguber.info/inful/autodoc/internal/health"
	"git.home.luguber.info/inful/autodoc/internal/renderer"
	"git.home.luguber.info/inful/autodoc/internal/scheduler"
	"git.home.luguber.info/inful/autodoc/internal/store"
	"git.home.luguber.info/inful/autodoc/internal/watcher"
)

type generateCalls struct {
	mu    sync.Mutex
	paths []string
	all   int
}

func (g *generateCalls) one(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paths = append(g.paths, path)
}

func (g *generateCalls) allFn(force bool) GenerateResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.all++
	if force {
		return GenerateResult{Queued: 5}
	}
	return GenerateResult{Queued: 2, Skipped: 3}
}

func seedArtifact(t *testing.T, st *store.Store) *store.DocumentArtifact {
	t.Helper()
	model := analyzer.Analyze("/apps/lights.py", []byte(`"""Light automation."""

class Lights:
    def initialize(self):
        pass
`))
	body := renderer.Render(model)
	artifact := &store.DocumentArtifact{
		Path:              "/apps/lights.py",
		Name:              model.Name,
		Model:             model,
		Markdown:          body.Markdown,
		Diagram:           body.Diagram,
		Outline:           body.Outline,
		Fingerprint:       body.Fingerprint,
		SourceFingerprint: "src-fp",
		Revision:          "abcd1234",
		GeneratedAt:       time.Now().UTC(),
	}
	require.NoError(t, st.Commit(artifact))
	return artifact
}

func testServer(t *testing.T) (*Server, *store.Store, *generateCalls, *events.Broadcaster) {
	t.Helper()
	st := store.New(t.TempDir())
	bus := events.NewBroadcaster()
	calls := &generateCalls{}
	cfg := config.Default()

	srv := New(Deps{
		Config:          cfg,
		Store:           st,
		Bus:             bus,
		SchedulerStatus: func() scheduler.Status { return scheduler.Status{QueueDepth: 1} },
		WatcherStatus:   func() watcher.Status { return watcher.Status{Running: true} },
		Health: func() health.Snapshot {
			return health.Compute(health.Inputs{InitialScanDone: true, TotalFiles: 1, Succeeded: 1})
		},
		Generate:    calls.one,
		GenerateAll: calls.allFn,
		Revision:    "abcd1234",
	})
	t.Cleanup(bus.Close)
	return srv, st, calls, bus
}

func TestListDocs(t *testing.T) {
	srv, st, _, _ := testServer(t)
	seedArtifact(t, st)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/docs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DocumentListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "lights", resp.Documents[0].Name)
}

func TestGetDocByName(t *testing.T) {
	srv, st, _, _ := testServer(t)
	seedArtifact(t, st)

	for _, name := range []string{"lights", "lights.md"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/docs/"+name, nil))

		require.Equal(t, http.StatusOK, rec.Code, "name %q", name)
		var resp DocumentResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "lights", resp.Name)
		assert.Contains(t, resp.Markdown, "# Lights")
		assert.Equal(t, "abcd1234", resp.Revision)
	}
}

func TestGetDocNotFound(t *testing.T) {
	srv, _, _, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/docs/nope", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, health.StatusHealthy, resp.Status)
}

func TestStatusEndpoint(t *testing.T) {
	srv, st, _, _ := testServer(t)
	seedArtifact(t, st)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Scheduler.QueueDepth)
	assert.True(t, resp.Watcher.Running)
	assert.Equal(t, 1, resp.Documents)
	assert.Equal(t, "*.py", resp.Config.Pattern)
}

func TestGenerateAll(t *testing.T) {
	srv, _, calls, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Queued)
	assert.Equal(t, 3, resp.Skipped)
	assert.Equal(t, 1, calls.all)
}

func TestGenerateAllForce(t *testing.T) {
	srv, _, _, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate?force=true", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Queued)
}

func TestGenerateOne(t *testing.T) {
	srv, st, calls, _ := testServer(t)
	seedArtifact(t, st)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate/lights", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"/apps/lights.py"}, calls.paths)
}

func TestGenerateOneUnknown(t *testing.T) {
	srv, _, calls, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate/ghost", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, calls.paths)
}

func TestMethodRouting(t *testing.T) {
	srv, _, _, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/docs", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEventStream(t *testing.T) {
	srv, _, _, bus := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, ": connected"))

	// Subscribers connect asynchronously; wait for registration.
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Positive(t, bus.SubscriberCount())

	bus.Publish(events.New(events.TypeGenerationSucceeded, "/apps/lights.py", map[string]string{"fingerprint": "fp"}))

	var data string
	for {
		l, rerr := reader.ReadString('\n')
		require.NoError(t, rerr)
		if strings.HasPrefix(l, "data: ") {
			data = strings.TrimPrefix(strings.TrimSpace(l), "data: ")
			break
		}
	}

	var evt events.Event
	require.NoError(t, json.Unmarshal([]byte(data), &evt))
	assert.Equal(t, events.TypeGenerationSucceeded, evt.Type)
	assert.Equal(t, "/apps/lights.py", evt.File)
}

func TestEventStreamAfterShutdownRefused(t *testing.T) {
	srv, _, _, _ := testServer(t)
	srv.events.close()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
