package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamgwallace/claude-web/internal/files"
	"github.com/liamgwallace/claude-web/internal/health"
	"github.com/liamgwallace/claude-web/internal/job"
	"github.com/liamgwallace/claude-web/internal/metrics"
	"github.com/liamgwallace/claude-web/internal/relay"
	"github.com/liamgwallace/claude-web/internal/requestid"
	"github.com/liamgwallace/claude-web/internal/runner"
	"github.com/liamgwallace/claude-web/internal/store"
)

// echoCollaborator replies "re: <message>" and hands out session ids.
type echoCollaborator struct {
	mu sync.Mutex
	n  int
}

func (e *echoCollaborator) Run(_ context.Context, _, message, session string) (*runner.Reply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.n++
	if session == "" {
		session = "sess-1"
	}
	return &runner.Reply{
		Text:       "re: " + message,
		SessionID:  session,
		Metadata:   []byte(`{"result":"re: ` + message + `"}`),
		Structured: true,
	}, nil
}

type testEnv struct {
	app      *fiber.App
	projects *store.ProjectStore
	threads  *store.ThreadStore
	engine   *job.Engine
	checker  *health.Checker
}

func newTestEnv(t *testing.T, queueSize int, start bool) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	projects, err := store.NewProjectStore(t.TempDir(), logger)
	require.NoError(t, err)
	threads := store.NewThreadStore(projects, logger)

	engine := job.NewEngine(job.Config{QueueSize: queueSize}, relay.New(threads, &echoCollaborator{}, logger), logger)
	if start {
		ctx, cancel := context.WithCancel(context.Background())
		engine.Start(ctx)
		t.Cleanup(engine.Stop)
		t.Cleanup(cancel)
	}

	checker := health.NewChecker(logger)
	checker.Register("data_dir", health.DataDirCheck(projects.Root()))

	srv := NewServer(ServerConfig{ListenAddr: ":0", CORSOrigins: "*"}, Deps{
		Projects: projects,
		Threads:  threads,
		Files:    files.NewService(projects, logger),
		Engine:   engine,
		Checker:  checker,
		Metrics:  metrics.New(),
	}, logger)

	return &testEnv{app: srv.App(), projects: projects, threads: threads, engine: engine, checker: checker}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *testEnv) createProject(t *testing.T, name string) string {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/project/new", `{"name":"`+name+`"}`)
	require.Equal(t, http.StatusCreated, code)
	return body["project_name"].(string)
}

func (e *testEnv) createThread(t *testing.T, project string) string {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/project/"+project+"/thread/new", `{}`)
	require.Equal(t, http.StatusCreated, code)
	return body["thread_id"].(string)
}

func (e *testEnv) waitJob(t *testing.T, id string) map[string]any {
	t.Helper()
	var body map[string]any
	require.Eventually(t, func() bool {
		_, body = e.do(t, http.MethodGet, "/status/"+id, "")
		s, _ := body["status"].(string)
		return s == string(job.StatusDone) || s == string(job.StatusFailed)
	}, 5*time.Second, 10*time.Millisecond)
	return body
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 10, false)

	code, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, ServiceName, body["service"])
	assert.Equal(t, map[string]any{"data_dir": "ok"}, body["checks"])
}

func TestReadiness(t *testing.T) {
	env := newTestEnv(t, 10, false)

	code, body := env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])

	env.checker.Register("broken", func(context.Context) health.Status { return health.StatusDown })
	code, body = env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, 10, false)
	env.do(t, http.MethodGet, "/projects", "")

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `claudeweb_http_requests_total{code="200",method="GET",route="/projects"} 1`)
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, 10, false)

	req, _ := http.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set(requestid.Header, "client-abc")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "client-abc", resp.Header.Get(requestid.Header))

	req, _ = http.NewRequest(http.MethodGet, "/projects", nil)
	resp, err = env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Len(t, resp.Header.Get(requestid.Header), 36)
}

func TestUnknownEndpoint(t *testing.T) {
	env := newTestEnv(t, 10, false)

	code, body := env.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Endpoint not found", body["error"])
}

func TestProjects_CreateListDelete(t *testing.T) {
	env := newTestEnv(t, 10, false)

	code, body := env.do(t, http.MethodPost, "/project/new", `{"name":"My App!"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "My-App", body["project_name"])
	assert.Equal(t, "My App!", body["original_name"])

	code, body = env.do(t, http.MethodPost, "/project/new", `{"name":"My App!"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "My-App-1", body["project_name"])

	code, body = env.do(t, http.MethodGet, "/projects", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["count"])

	code, body = env.do(t, http.MethodDelete, "/project/My-App", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Project My-App deleted successfully", body["message"])

	code, body = env.do(t, http.MethodDelete, "/project/My-App", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "My-App", body["project_name"])
}

func TestProjects_CreateValidation(t *testing.T) {
	env := newTestEnv(t, 10, false)

	code, body := env.do(t, http.MethodPost, "/project/new", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Project name is required", body["error"])

	code, _ = env.do(t, http.MethodPost, "/project/new", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = env.do(t, http.MethodPost, "/project/new", `{"name":"  "}`)
	assert.Equal(t, http.StatusCreated, code)
	assert.Regexp(t, `^project-[0-9a-f]{8}$`, body["project_name"])
	assert.Equal(t, "  ", body["original_name"])

	code, body = env.do(t, http.MethodPost, "/project/new", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid JSON body", body["error"])
}

func TestThreads_CreateListStatusDelete(t *testing.T) {
	env := newTestEnv(t, 10, false)
	project := env.createProject(t, "alpha")

	code, body := env.do(t, http.MethodPost, "/project/"+project+"/thread/new", `{"name":"Plan"}`)
	require.Equal(t, http.StatusCreated, code)
	threadID := body["thread_id"].(string)
	assert.Equal(t, "Plan", body["name"])
	assert.Len(t, threadID, 8)

	code, body = env.do(t, http.MethodGet, "/project/"+project+"/threads", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, body = env.do(t, http.MethodGet, "/project/"+project+"/thread/"+threadID+"/status", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, store.StatusReady, body["status"])
	assert.Equal(t, "No session started", body["session_id"])
	assert.Equal(t, float64(0), body["message_count"])
	assert.Equal(t, "Never", body["last_activity"])

	code, body = env.do(t, http.MethodDelete, "/project/"+project+"/thread/"+threadID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Thread "+threadID+" deleted successfully", body["message"])

	code, body = env.do(t, http.MethodDelete, "/project/"+project+"/thread/"+threadID, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, threadID, body["thread_id"])
}

func TestThreads_MissingProject(t *testing.T) {
	env := newTestEnv(t, 10, false)

	code, body := env.do(t, http.MethodPost, "/project/ghost/thread/new", `{}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Project ghost not found", body["error"])

	code, body = env.do(t, http.MethodGet, "/project/ghost/thread/abc/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, store.StatusProjectNotFound, body["status"])

	code, _ = env.do(t, http.MethodGet, "/project/ghost/thread/abc/messages", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestProjectDeleteCascadesToThreadStatus(t *testing.T) {
	env := newTestEnv(t, 10, false)
	project := env.createProject(t, "doomed")
	threadID := env.createThread(t, project)

	code, _ := env.do(t, http.MethodDelete, "/project/"+project, "")
	require.Equal(t, http.StatusOK, code)

	_, body := env.do(t, http.MethodGet, "/project/"+project+"/thread/"+threadID+"/status", "")
	assert.Equal(t, store.StatusProjectNotFound, body["status"])
}

func TestSendMessage_RoundTrip(t *testing.T) {
	env := newTestEnv(t, 10, true)
	project := env.createProject(t, "chat")
	threadID := env.createThread(t, project)
	base := "/project/" + project + "/thread/" + threadID

	code, body := env.do(t, http.MethodPost, base+"/message", `{"message":"hello"}`)
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "queued", body["status"])
	jobID := body["job_id"].(string)
	assert.True(t, strings.HasPrefix(jobID, "job_"))
	assert.True(t, strings.HasSuffix(jobID, "_"+project+"_"+threadID))

	final := env.waitJob(t, jobID)
	assert.Equal(t, true, final["success"])
	assert.Equal(t, "done", final["status"])
	assert.Equal(t, "re: hello", final["response"])
	assert.Equal(t, map[string]any{"result": "re: hello"}, final["metadata"])
	assert.NotEmpty(t, final["request_id"])

	code, body = env.do(t, http.MethodGet, base+"/messages", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["count"])
	msgs := body["messages"].([]any)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "re: hello", msgs[1].(map[string]any)["content"])

	_, body = env.do(t, http.MethodGet, base+"/status", "")
	assert.Equal(t, "sess-1", body["session_id"])
	assert.Equal(t, float64(1), body["message_count"])
}

func TestSendMessage_Validation(t *testing.T) {
	env := newTestEnv(t, 10, false)

	code, body := env.do(t, http.MethodPost, "/project/p/thread/t/message", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Message is required", body["error"])

	code, _ = env.do(t, http.MethodPost, "/project/p/thread/t/message", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, code)

	jobs, total := env.engine.List(job.Query{})
	assert.Empty(t, jobs)
	assert.Zero(t, total)
}

func TestSendMessage_MissingThreadFailsJob(t *testing.T) {
	env := newTestEnv(t, 10, true)
	project := env.createProject(t, "lonely")

	code, body := env.do(t, http.MethodPost, "/project/"+project+"/thread/missing/message", `{"message":"hi"}`)
	require.Equal(t, http.StatusAccepted, code)

	final := env.waitJob(t, body["job_id"].(string))
	assert.Equal(t, "failed", final["status"])
	assert.Equal(t, "Thread missing not found in project "+project, final["error"])
	assert.NotContains(t, final, "response")
}

func TestSendMessage_QueueFull(t *testing.T) {
	env := newTestEnv(t, 1, false)

	code, _ := env.do(t, http.MethodPost, "/project/p/thread/t/message", `{"message":"one"}`)
	require.Equal(t, http.StatusAccepted, code)

	code, body := env.do(t, http.MethodPost, "/project/p/thread/t/message", `{"message":"two"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "job queue is full", body["error"])
	require.NotEmpty(t, body["job_id"])

	_, status := env.do(t, http.MethodGet, "/status/"+body["job_id"].(string), "")
	assert.Equal(t, "failed", status["status"])
}

func TestJobStatus_NotFound(t *testing.T) {
	env := newTestEnv(t, 10, false)

	code, body := env.do(t, http.MethodGet, "/status/job_0_x_y", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Job not found", body["error"])
}

func TestListJobs(t *testing.T) {
	env := newTestEnv(t, 10, false)
	env.do(t, http.MethodPost, "/project/a/thread/t1/message", `{"message":"1"}`)
	env.do(t, http.MethodPost, "/project/b/thread/t2/message", `{"message":"2"}`)

	code, body := env.do(t, http.MethodGet, "/jobs?project=a", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(1), body["total"])

	_, body = env.do(t, http.MethodGet, "/jobs?limit=1&offset=1", "")
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(2), body["total"])
	stats := body["stats"].(map[string]any)
	assert.Equal(t, float64(2), stats["total"])

	code, _ = env.do(t, http.MethodGet, "/jobs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFiles_SaveReadTree(t *testing.T) {
	env := newTestEnv(t, 10, false)
	project := env.createProject(t, "code")

	code, body := env.do(t, http.MethodPost, "/project/"+project+"/file/src/main.go/save", `{"content":"package main\n"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "src/main.go", body["file_path"])
	assert.Equal(t, "File 'src/main.go' saved successfully", body["message"])

	code, body = env.do(t, http.MethodGet, "/project/"+project+"/file?path=src/main.go", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "package main\n", body["content"])
	assert.Equal(t, "go", body["language"])
	assert.Equal(t, float64(13), body["size"])

	code, body = env.do(t, http.MethodGet, "/project/"+project+"/files", "")
	require.Equal(t, http.StatusOK, code)
	tree := body["file_tree"].(map[string]any)
	assert.Equal(t, "directory", tree["type"])
	children := tree["children"].([]any)
	require.Len(t, children, 1)
	assert.Equal(t, "src", children[0].(map[string]any)["name"])
}

func TestFiles_Errors(t *testing.T) {
	env := newTestEnv(t, 10, false)
	project := env.createProject(t, "guarded")

	code, body := env.do(t, http.MethodGet, "/project/"+project+"/file", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "File path is required", body["error"])

	code, _ = env.do(t, http.MethodGet, "/project/"+project+"/file?path=nope.txt", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = env.do(t, http.MethodPost, "/project/"+project+"/file/a.txt/save", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Content is required", body["error"])

	code, body = env.do(t, http.MethodPost, "/project/"+project+"/file/.threads/evil.json/save", `{"content":"{}"}`)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Access denied: file path outside project directory", body["error"])

	code, _ = env.do(t, http.MethodPost, "/project/ghost/file/a.txt/save", `{"content":""}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodPost, "/project/"+project+"/file/a.txt", `{"content":""}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodGet, "/project/ghost/files", "")
	assert.Equal(t, http.StatusNotFound, code)
}
