package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/people-registry/registry/internal/jobs"
)

// AssignmentReconciler is the storage surface used by reconciliation.
type AssignmentReconciler interface {
	Reconcile(ctx context.Context, now time.Time) (expired, duplicates int64, err error)
}

// ReconcileJob retires expired role assignments and collapses duplicate
// active assignments of the same role, keeping the newest.
type ReconcileJob struct {
	store   AssignmentReconciler
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewReconcileJob builds a ReconcileJob. metrics may be nil.
func NewReconcileJob(store AssignmentReconciler, metrics *jobmetrics.Metrics, logger *slog.Logger) *ReconcileJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileJob{store: store, metrics: metrics, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Run performs one reconciliation pass.
func (j *ReconcileJob) Run(ctx context.Context, asOf time.Time) (expired, duplicates int64, err error) {
	tracker := j.metrics.Track(TaskRBACReconcile)
	defer func() { err = tracker.End(err) }()

	if asOf.IsZero() {
		asOf = j.now()
	}
	expired, duplicates, err = j.store.Reconcile(ctx, asOf)
	if err != nil {
		return 0, 0, err
	}
	j.metrics.AddReconciled("expired", expired)
	j.metrics.AddReconciled("duplicate", duplicates)
	j.logger.Info("rbac assignments reconciled",
		slog.String("job", TaskRBACReconcile),
		slog.Int64("expired", expired),
		slog.Int64("duplicates", duplicates),
	)
	return expired, duplicates, nil
}

// Handle processes TaskRBACReconcile tasks.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode reconcile payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, _, err := j.Run(ctx, payload.AsOf)
	if err != nil {
		j.logger.Error("rbac reconcile", slog.Any("error", err))
	}
	return err
}

// TaskHandler registers the job with a Worker.
func (j *ReconcileJob) TaskHandler() TaskHandler {
	return TaskHandler{Type: TaskRBACReconcile, Handler: j.Handle}
}
