package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/cashbook/internal/datasheet"
	jobmetrics "github.com/odyssey-erp/cashbook/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// DatasheetSyncer is the part of datasheet.Service the sync job drives.
type DatasheetSyncer interface {
	Sync(ctx context.Context) (datasheet.SyncResult, error)
	SaveAll(ctx context.Context) (int, error)
}

// DatasheetSyncJob refreshes the in-memory datasheet from the document store.
type DatasheetSyncJob struct {
	Service DatasheetSyncer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewDatasheetSyncJob wires dependencies for the sync handler.
func NewDatasheetSyncJob(service DatasheetSyncer, logger *slog.Logger, metrics *jobmetrics.Metrics) *DatasheetSyncJob {
	return &DatasheetSyncJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle processes datasheet sync tasks.
func (j *DatasheetSyncJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("datasheet sync: handler not configured")
	}
	var payload DatasheetSyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskDatasheetSync)
	defer func() { err = tracker.End(err) }()

	logger := j.logger()
	res, err := j.Service.Sync(ctx)
	if err != nil {
		logger.Error("datasheet sync failed", slog.Any("error", err))
		return err
	}
	metrics.AddMerged(res.Inserted, res.Updated)

	saved := 0
	if payload.SaveNew {
		if saved, err = j.Service.SaveAll(ctx); err != nil {
			logger.Error("datasheet save failed", slog.Int("saved", saved), slog.Any("error", err))
			return err
		}
	}
	logger.Info("datasheet sync completed",
		slog.Int("fetched", res.Fetched),
		slog.Int("inserted", res.Inserted),
		slog.Int("updated", res.Updated),
		slog.Int("saved", saved))
	return nil
}

func (j *DatasheetSyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDatasheetSync))
	}
	return slog.Default().With(slog.String("job", TaskDatasheetSync))
}
