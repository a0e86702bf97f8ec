package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/cashbook/internal/ledger"
)

// WarmupEnqueuer submits report warmup tasks.
type WarmupEnqueuer interface {
	EnqueueReportWarmup(ctx context.Context, month string) (*asynq.TaskInfo, error)
}

// WarmupNotifier schedules a report warmup for every month a ledger change
// touched. It implements ledger.Notifier.
type WarmupNotifier struct {
	client WarmupEnqueuer
	logger *slog.Logger
}

// NewWarmupNotifier wraps client.
func NewWarmupNotifier(client WarmupEnqueuer, logger *slog.Logger) *WarmupNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &WarmupNotifier{client: client, logger: logger}
}

// LedgerChanged enqueues one warmup per affected month. Account changes carry
// no month and warm the current one.
func (n *WarmupNotifier) LedgerChanged(ctx context.Context, change ledger.Change) {
	months := change.Months
	if len(months) == 0 {
		months = []ledger.Month{""}
	}
	for _, m := range months {
		_, err := n.client.EnqueueReportWarmup(ctx, string(m))
		if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
			n.logger.Warn("enqueue report warmup", slog.String("month", string(m)), slog.Any("error", err))
		}
	}
}
