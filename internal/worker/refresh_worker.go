package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Refresher refetches whatever the roster sessions currently display.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

// RefreshWorker polls the collection store so sessions converge on server
// state even without push notifications.
type RefreshWorker struct {
	refresher Refresher
	interval  time.Duration
	logger    *zap.Logger
}

// NewRefreshWorker builds a worker. A non-positive interval disables polling.
func NewRefreshWorker(refresher Refresher, interval time.Duration, logger *zap.Logger) *RefreshWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshWorker{refresher: refresher, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (w *RefreshWorker) Run(ctx context.Context) {
	if w.refresher == nil || w.interval <= 0 {
		w.logger.Info("roster polling disabled")
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("roster polling started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("roster polling stopped")
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, w.interval)
			if err := w.refresher.RefreshAll(tickCtx); err != nil && ctx.Err() == nil {
				w.logger.Warn("roster refresh tick failed", zap.Error(err))
			}
			cancel()
		}
	}
}
