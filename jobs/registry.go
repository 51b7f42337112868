package jobs

import (
	"log/slog"
	"time"
)

// Services collects everything the background worker drives.
type Services struct {
	Finance     OutboxDrainer
	Warranties  Sweeper
	Contracts   Sweeper
	Holds       Sweeper
	Idempotency Cleaner
}

// RegistryConfig tunes the periodic jobs.
type RegistryConfig struct {
	OutboxBatchSize      int
	IdempotencyRetention time.Duration
}

// Registrations builds the standard handler and cron set for the worker.
// The outbox drains every minute; expiry sweeps run off-peak.
func Registrations(s Services, cfg RegistryConfig, logger *slog.Logger) ([]TaskHandler, []CronRegistration, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OutboxBatchSize <= 0 {
		cfg.OutboxBatchSize = 50
	}
	if cfg.IdempotencyRetention <= 0 {
		cfg.IdempotencyRetention = 7 * 24 * time.Hour
	}

	handlers := []TaskHandler{
		{Type: TaskFinanceOutboxDrain, Handler: HandleFinanceOutboxDrain(s.Finance, cfg.OutboxBatchSize, logger)},
		{Type: TaskWarrantyExpirySweep, Handler: HandleSweep("warranty", s.Warranties, logger)},
		{Type: TaskAMCExpirySweep, Handler: HandleSweep("amc", s.Contracts, logger)},
		{Type: TaskHoldExpirySweep, Handler: HandleSweep("holds", s.Holds, logger)},
		{Type: TaskIdempotencyCleanup, Handler: HandleIdempotencyCleanup(s.Idempotency, cfg.IdempotencyRetention, logger)},
	}

	now := time.Now().UTC()
	specs := []struct {
		spec     string
		taskType string
	}{
		{"* * * * *", TaskFinanceOutboxDrain},
		{"*/15 * * * *", TaskHoldExpirySweep},
		{"30 1 * * *", TaskWarrantyExpirySweep},
		{"45 1 * * *", TaskAMCExpirySweep},
		{"0 3 * * *", TaskIdempotencyCleanup},
	}
	cron := make([]CronRegistration, 0, len(specs))
	for _, entry := range specs {
		task, err := NewSweepTask(entry.taskType, now)
		if err != nil {
			return nil, nil, err
		}
		cron = append(cron, CronRegistration{Spec: entry.spec, Task: task})
	}
	return handlers, cron, nil
}
