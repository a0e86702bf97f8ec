package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/cashbook/internal/jobs"
	"github.com/odyssey-erp/cashbook/internal/ledger"
)

// LedgerLoader reloads ledger state from durable storage.
type LedgerLoader interface {
	Load(ctx context.Context) error
}

// ReportWarmer builds and caches every report of a month.
type ReportWarmer interface {
	Warm(ctx context.Context, month ledger.Month) error
}

// ReportWarmupJob reloads the ledger and pre-populates the report cache.
type ReportWarmupJob struct {
	Ledger  LedgerLoader
	Reports ReportWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReportWarmupJob wires dependencies for the warmup handler. loader may be
// nil when the worker shares memory with the API.
func NewReportWarmupJob(loader LedgerLoader, warmer ReportWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportWarmupJob {
	return &ReportWarmupJob{
		Ledger:  loader,
		Reports: warmer,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes report warmup tasks. The requested month and, when it
// differs, the current month are both warmed.
func (j *ReportWarmupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Reports == nil {
		return errors.New("report warmup: handler not configured")
	}
	var payload ReportWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	current := ledger.MonthFromTime(j.now())
	months := []ledger.Month{current}
	if payload.Month != "" {
		requested, perr := ledger.ParseMonth(payload.Month)
		if perr != nil {
			return asynq.SkipRetry
		}
		if requested != current {
			months = []ledger.Month{requested, current}
		}
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskReportWarmup)
	defer func() { err = tracker.End(err) }()

	logger := j.logger()
	if j.Ledger != nil {
		if err := j.Ledger.Load(ctx); err != nil {
			logger.Error("reload ledger", slog.Any("error", err))
			return err
		}
	}
	for _, month := range months {
		monthCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		err := j.Reports.Warm(monthCtx, month)
		cancel()
		if err != nil {
			logger.Error("warm reports", slog.String("month", string(month)), slog.Any("error", err))
			return err
		}
	}
	logger.Info("report warmup completed", slog.Int("months", len(months)))
	return nil
}

func (j *ReportWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportWarmup))
}

func (j *ReportWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
