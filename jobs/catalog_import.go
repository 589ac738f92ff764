package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/internal/catalog"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// CatalogRunner executes one catalog import run.
type CatalogRunner interface {
	Run(ctx context.Context, runID, sourceURL string) (catalog.Report, error)
}

// CatalogImportJob handles TaskCatalogImport.
type CatalogImportJob struct {
	Importer CatalogRunner
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewCatalogImportJob initialises the import handler.
func NewCatalogImportJob(importer CatalogRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogImportJob {
	return &CatalogImportJob{Importer: importer, Logger: logger, Metrics: metrics}
}

// Handle runs the import described by the task payload. A run that finds the
// import lock taken ends quietly; the holder is already doing the work.
func (j *CatalogImportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Importer == nil {
		return errors.New("catalog import: handler not configured")
	}
	var payload CatalogImportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("catalog import: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	if payload.RunID == "" {
		payload.RunID = uuid.NewString()
	}

	tracker := j.Metrics.Track(TaskCatalogImport)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("run_id", payload.RunID))
	report, err := j.Importer.Run(ctx, payload.RunID, payload.SourceURL)
	if errors.Is(err, shared.ErrLockHeld) {
		logger.Info("catalog import already running, skipping")
		return nil
	}
	if err != nil {
		resultErr = err
		logger.Error("catalog import failed", slog.Any("error", err))
		return resultErr
	}
	logger.Info("catalog import completed",
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("skipped", report.Skipped),
		slog.Duration("duration", report.Duration),
	)
	return nil
}

func (j *CatalogImportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
