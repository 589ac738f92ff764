package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCatalogImport upserts products from the external catalog feed.
	TaskCatalogImport = "catalog:import"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// CatalogImportPayload identifies one import run. An empty SourceURL selects
// the configured feed.
type CatalogImportPayload struct {
	RunID     string `json:"run_id"`
	SourceURL string `json:"source_url,omitempty"`
}

// NewCatalogImportTask constructs a catalog import task with a fresh run id.
// The run id doubles as the asynq task id so a run is never enqueued twice.
func NewCatalogImportTask(sourceURL string) (*asynq.Task, error) {
	payload := CatalogImportPayload{RunID: uuid.NewString(), SourceURL: sourceURL}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogImport, body,
		asynq.Queue(QueueDefault),
		asynq.TaskID(payload.RunID),
		asynq.MaxRetry(3),
		asynq.Timeout(15*time.Minute),
	), nil
}

// NewScheduledCatalogImportTask constructs the periodic import task. Each
// scheduled run is assigned its run id when it is handled.
func NewScheduledCatalogImportTask() (*asynq.Task, error) {
	body, err := json.Marshal(CatalogImportPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogImport, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(15*time.Minute),
	), nil
}

// IdempotencyCleanupPayload configures key retention.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
