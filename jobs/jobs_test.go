package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/catalog"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

type fakeRunner struct {
	runID, source string
	report        catalog.Report
	err           error
}

func (f *fakeRunner) Run(_ context.Context, runID, sourceURL string) (catalog.Report, error) {
	f.runID, f.source = runID, sourceURL
	return f.report, f.err
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "task-" + task.Type(), Type: task.Type()}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

func jobRuns(t *testing.T, reg *prometheus.Registry, status string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "stockledger_jobs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" && l.GetValue() == status {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestCatalogImportTaskPayload(t *testing.T) {
	task, err := NewCatalogImportTask("https://feed.example/products")
	require.NoError(t, err)
	require.Equal(t, TaskCatalogImport, task.Type())

	var payload CatalogImportPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.NotEmpty(t, payload.RunID)
	require.Equal(t, "https://feed.example/products", payload.SourceURL)
}

func TestCatalogImportJobRunsImporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	runner := &fakeRunner{report: catalog.Report{Created: 2}}
	job := NewCatalogImportJob(runner, nil, jobmetrics.NewMetrics(reg))

	task, err := NewCatalogImportTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.NotEmpty(t, runner.runID)
	require.Equal(t, 1.0, jobRuns(t, reg, "success"))

	runner.err = errors.New("feed down")
	require.ErrorContains(t, job.Handle(context.Background(), task), "feed down")
	require.Equal(t, 1.0, jobRuns(t, reg, "failure"))
}

func TestScheduledCatalogImportGetsFreshRunIDs(t *testing.T) {
	task, err := NewScheduledCatalogImportTask()
	require.NoError(t, err)

	runner := &fakeRunner{}
	job := NewCatalogImportJob(runner, nil, nil)
	require.NoError(t, job.Handle(context.Background(), task))
	first := runner.runID
	require.NoError(t, job.Handle(context.Background(), task))
	require.NotEmpty(t, first)
	require.NotEqual(t, first, runner.runID)
	require.Empty(t, runner.source)
}

func TestCatalogImportJobSkipsWhenLocked(t *testing.T) {
	job := NewCatalogImportJob(&fakeRunner{err: shared.ErrLockHeld}, nil, nil)
	task, err := NewCatalogImportTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
}

func TestCatalogImportJobRejectsBadPayload(t *testing.T) {
	job := NewCatalogImportJob(&fakeRunner{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskCatalogImport, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeCleaner struct {
	retention time.Duration
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.retention = olderThan
	return 3, nil
}

func TestIdempotencyCleanupJob(t *testing.T) {
	cleaner := &fakeCleaner{}
	job := NewIdempotencyCleanupJob(cleaner, nil, nil)

	task, err := NewIdempotencyCleanupTask(24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 24*time.Hour, cleaner.retention)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, []byte(`{}`))))
	require.Equal(t, DefaultIdempotencyRetention, cleaner.retention)
}

func TestClientEnqueuesCatalogImport(t *testing.T) {
	enq := &recordingEnqueuer{}
	client := NewClientWith(enq, "https://feed.example")

	id, err := client.EnqueueCatalogImport(context.Background())
	require.NoError(t, err)
	require.Equal(t, "task-"+TaskCatalogImport, id)
	require.Len(t, enq.tasks, 1)

	var payload CatalogImportPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, "https://feed.example", payload.SourceURL)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestHealthEndpoint(t *testing.T) {
	serve := func(inspector QueueInspector) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		NewHandler(inspector, nil).MountRoutes(r)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		return rr
	}

	rr := serve(nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0}`, rr.Body.String())

	rr = serve(stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 4, Retry: 1}})
	require.Equal(t, http.StatusOK, rr.Code)
	var body QueueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 4, body.Pending)
	require.Equal(t, 1, body.Retry)

	rr = serve(stubInspector{err: errors.New("redis down")})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
