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
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/people-registry/registry/internal/jobs"
)

type fakeReconciler struct {
	expired    int64
	duplicates int64
	err        error
	calledAt   time.Time
	calls      int
}

func (f *fakeReconciler) Reconcile(ctx context.Context, now time.Time) (int64, int64, error) {
	f.calls++
	f.calledAt = now
	if f.err != nil {
		return 0, 0, f.err
	}
	return f.expired, f.duplicates, nil
}

func newTestMetrics(t *testing.T) (*jobmetrics.Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return jobmetrics.NewMetrics(reg), reg
}

func TestReconcileJobRunCountsDeactivations(t *testing.T) {
	store := &fakeReconciler{expired: 3, duplicates: 1}
	metrics, reg := newTestMetrics(t)
	job := NewReconcileJob(store, metrics, nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	expired, dups, err := job.Run(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), expired)
	assert.Equal(t, int64(1), dups)
	assert.Equal(t, fixed, store.calledAt)

	count, err := testutil.GatherAndCount(reg, "registry_role_assignments_reconciled_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = testutil.GatherAndCount(reg, "registry_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReconcileJobRunRecordsFailure(t *testing.T) {
	store := &fakeReconciler{err: errors.New("connection reset")}
	metrics, reg := newTestMetrics(t)
	job := NewReconcileJob(store, metrics, nil)

	_, _, err := job.Run(context.Background(), time.Now())
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "registry_jobs_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReconcileJobHandleUsesPayloadTime(t *testing.T) {
	store := &fakeReconciler{}
	job := NewReconcileJob(store, nil, nil)
	asOf := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)

	task, err := NewReconcileTask(ReconcilePayload{AsOf: asOf})
	require.NoError(t, err)
	assert.Equal(t, TaskRBACReconcile, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	assert.True(t, store.calledAt.Equal(asOf))
}

func TestReconcileJobHandleRejectsBadPayload(t *testing.T) {
	store := &fakeReconciler{}
	job := NewReconcileJob(store, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskRBACReconcile, []byte("{")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, store.calls)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

type fakeEnqueuer struct {
	err error
}

func (f fakeEnqueuer) EnqueueReconcile(ctx context.Context) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{ID: "task-1", Type: TaskRBACReconcile}, nil
}

func serveJobs(h *Handler, method, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandlerHealth(t *testing.T) {
	h := NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 2, Active: 1}}, nil, nil)
	rec := serveJobs(h, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Pending)
	assert.Equal(t, 1, body.Active)

	h = NewHandler(fakeInspector{err: errors.New("redis down")}, nil, nil)
	rec = serveJobs(h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerReconcile(t *testing.T) {
	rec := serveJobs(NewHandler(nil, fakeEnqueuer{}, nil), http.MethodPost, "/reconcile")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "task-1")

	rec = serveJobs(NewHandler(nil, fakeEnqueuer{err: asynq.ErrDuplicateTask}, nil), http.MethodPost, "/reconcile")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "already queued")

	rec = serveJobs(NewHandler(nil, nil, nil), http.MethodPost, "/reconcile")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
