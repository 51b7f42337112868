package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskFinanceOutboxDrain applies pending finance sync events.
	TaskFinanceOutboxDrain = "finance:outbox_drain"
	// TaskWarrantyExpirySweep lapses warranties past their end date.
	TaskWarrantyExpirySweep = "warranty:expiry_sweep"
	// TaskAMCExpirySweep lapses AMC contracts past their end date.
	TaskAMCExpirySweep = "amc:expiry_sweep"
	// TaskHoldExpirySweep releases expired inventory holds.
	TaskHoldExpirySweep = "holds:expiry_sweep"
	// TaskIdempotencyCleanup prunes settled idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// SweepPayload carries scheduling metadata for periodic sweeps.
type SweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSweepTask constructs a periodic sweep task of the given type.
func NewSweepTask(taskType string, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

// Sweeper expires lapsed documents and reports how many were touched.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Cleaner prunes aged idempotency keys.
type Cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// HandleSweep wraps a Sweeper as an Asynq handler.
func HandleSweep(name string, sweeper Sweeper, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		n, err := sweeper.SweepExpired(ctx)
		if err != nil {
			logger.Error("sweep failed", "task", name, "error", err)
			return err
		}
		if n > 0 {
			logger.Info("sweep done", "task", name, "expired", n)
		}
		return nil
	}
}

// HandleIdempotencyCleanup wraps the idempotency store cleanup.
func HandleIdempotencyCleanup(cleaner Cleaner, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := cleaner.Cleanup(ctx, retention); err != nil {
			logger.Error("idempotency cleanup failed", "error", err)
			return err
		}
		return nil
	}
}
