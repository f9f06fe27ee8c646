package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRBACReconcile expires and deduplicates role assignments.
	TaskRBACReconcile = "rbac:reconcile"
)

// ReconcilePayload parameterises a reconciliation run. A zero AsOf means now.
type ReconcilePayload struct {
	AsOf time.Time `json:"as_of,omitempty"`
}

// NewReconcileTask constructs an Asynq task.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRBACReconcile, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Timeout(2*time.Minute)), nil
}
