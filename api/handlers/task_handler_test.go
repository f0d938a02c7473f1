package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/app"
	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// stubExtractor completes immediately with a fixed artifact. With hold set
// it blocks until the context is cancelled, keeping the task live.
type stubExtractor struct {
	hold bool
	err  error
}

func (e *stubExtractor) ExtractAndDownload(ctx context.Context, req domain.ExtractRequest, progress domain.ProgressFunc) (string, error) {
	if e.hold {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if e.err != nil {
		return "", e.err
	}
	path := filepath.Join(req.OutputDir, "video.mp4")
	if err := os.WriteFile(path, []byte("artifact"), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func newTestOrchestrator(t *testing.T, extractor domain.Extractor) *app.Orchestrator {
	t.Helper()
	cfg := domain.DefaultConfig()
	cfg.Download.BaseDir = t.TempDir()
	cfg.Download.PollInterval = 10 * time.Millisecond
	cfg.Download.CookieFile = ""
	cfg.Recovery = domain.RecoveryConfig{
		MaxRetries:  0,
		SettleDelay: time.Millisecond,
		BackoffStep: time.Millisecond,
		BackoffCap:  time.Millisecond,
	}

	store := app.NewTaskStore(nil)
	phases := app.NewPhaseTracker(nil)
	hooks := app.NewHookRegistry(0, nil)
	recovery := app.NewRecoveryCoordinator(cfg.Recovery, app.LexicalClassifier{}, store, hooks,
		nil, nil, "firefox", "", nil)

	o := app.NewOrchestrator(cfg, store, phases, hooks, recovery, nil, extractor, nil, nil, nil)
	t.Cleanup(o.Close)
	return o
}

func newTaskRouter(orch *app.Orchestrator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewTaskHandler(orch, zap.NewNop())
	router.POST("/api/v1/tasks", h.SubmitTask)
	router.GET("/api/v1/tasks", h.ListTasks)
	router.GET("/api/v1/tasks/:id", h.GetTask)
	router.POST("/api/v1/tasks/:id/transcode/cancel", h.CancelTranscode)
	router.DELETE("/api/v1/tasks/:id", h.DeleteTask)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
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
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func waitTaskStatus(t *testing.T, orch *app.Orchestrator, id string, want domain.TaskStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		task, ok := orch.GetStatus(id)
		return ok && task.Status == want
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSubmitTask_Created(t *testing.T) {
	orch := newTestOrchestrator(t, &stubExtractor{hold: true})
	router := newTaskRouter(orch)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/tasks", gin.H{
		"url": "https://www.youtube.com/watch?v=abc",
		"id":  "task-1",
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var task domain.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", task.URL)
	assert.NotEmpty(t, task.Format)
}

func TestSubmitTask_MissingURL(t *testing.T) {
	orch := newTestOrchestrator(t, &stubExtractor{})
	router := newTaskRouter(orch)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/tasks", gin.H{"format": "best"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestSubmitTask_DuplicateID(t *testing.T) {
	orch := newTestOrchestrator(t, &stubExtractor{hold: true})
	router := newTaskRouter(orch)

	first := doJSON(t, router, http.MethodPost, "/api/v1/tasks", gin.H{
		"url": "https://www.youtube.com/watch?v=abc",
		"id":  "dup",
	})
	require.Equal(t, http.StatusCreated, first.Code)

	second := doJSON(t, router, http.MethodPost, "/api/v1/tasks", gin.H{
		"url": "https://www.youtube.com/watch?v=def",
		"id":  "dup",
	})
	require.Equal(t, http.StatusConflict, second.Code)
	assert.Contains(t, second.Body.String(), "already exists")
}

func TestGetTask(t *testing.T) {
	orch := newTestOrchestrator(t, &stubExtractor{hold: true})
	router := newTaskRouter(orch)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/tasks", gin.H{
		"url": "https://www.youtube.com/watch?v=abc",
		"id":  "task-get",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	got := doJSON(t, router, http.MethodGet, "/api/v1/tasks/task-get", nil)
	require.Equal(t, http.StatusOK, got.Code)

	var task domain.Task
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &task))
	assert.Equal(t, "task-get", task.ID)

	missing := doJSON(t, router, http.MethodGet, "/api/v1/tasks/nope", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestListTasks_StatusFilter(t *testing.T) {
	orch := newTestOrchestrator(t, &stubExtractor{})
	router := newTaskRouter(orch)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/tasks", gin.H{
		"url": "https://www.youtube.com/watch?v=abc",
		"id":  "done-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	waitTaskStatus(t, orch, "done-1", domain.StatusCompleted)

	all := doJSON(t, router, http.MethodGet, "/api/v1/tasks", nil)
	require.Equal(t, http.StatusOK, all.Code)
	var tasks []domain.Task
	require.NoError(t, json.Unmarshal(all.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)

	completed := doJSON(t, router, http.MethodGet, "/api/v1/tasks?status=completed", nil)
	require.Equal(t, http.StatusOK, completed.Code)
	tasks = nil
	require.NoError(t, json.Unmarshal(completed.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.StatusCompleted, tasks[0].Status)

	failed := doJSON(t, router, http.MethodGet, "/api/v1/tasks?status=error", nil)
	require.Equal(t, http.StatusOK, failed.Code)
	tasks = nil
	require.NoError(t, json.Unmarshal(failed.Body.Bytes(), &tasks))
	assert.Empty(t, tasks)
}

func TestCancelTranscode_NoJob(t *testing.T) {
	orch := newTestOrchestrator(t, &stubExtractor{hold: true})
	router := newTaskRouter(orch)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/tasks/task-x/transcode/cancel", gin.H{
		"delete_input": true,
	})

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "transcode job not found")
}

func TestDeleteTask(t *testing.T) {
	orch := newTestOrchestrator(t, &stubExtractor{hold: true})
	router := newTaskRouter(orch)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/tasks", gin.H{
		"url": "https://www.youtube.com/watch?v=abc",
		"id":  "task-del",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	deleted := doJSON(t, router, http.MethodDelete, "/api/v1/tasks/task-del", nil)
	require.Equal(t, http.StatusOK, deleted.Code)

	gone := doJSON(t, router, http.MethodGet, "/api/v1/tasks/task-del", nil)
	assert.Equal(t, http.StatusNotFound, gone.Code)

	again := doJSON(t, router, http.MethodDelete, "/api/v1/tasks/task-del", nil)
	assert.Equal(t, http.StatusNotFound, again.Code)
}
