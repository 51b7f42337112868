package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/craftline-erp/craftline-erp/internal/finance"
)

// OutboxDrainer applies a batch of pending finance outbox events.
type OutboxDrainer interface {
	Drain(ctx context.Context, batchSize int) (finance.DrainReport, error)
}

// HandleFinanceOutboxDrain wraps the finance drain as an Asynq handler.
// A pass that parked events dead still succeeds; dead events need operator
// attention, not retries of the whole batch.
func HandleFinanceOutboxDrain(drainer OutboxDrainer, batchSize int, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		report, err := drainer.Drain(ctx, batchSize)
		if err != nil {
			logger.Error("finance outbox drain failed", "error", err)
			return err
		}
		if report.Fetched > 0 {
			logger.Info("finance outbox drained",
				"fetched", report.Fetched, "synced", report.Synced,
				"failed", report.Failed, "dead", report.Dead)
		}
		return nil
	}
}
