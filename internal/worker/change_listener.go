package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/client-roster/internal/events"
	"github.com/spec-kit/client-roster/internal/roster"
)

// ChangeSink receives pushed client changes.
type ChangeSink interface {
	ApplyChange(ev roster.ChangeEvent)
}

// StartChangeListener consumes the Redis change channel into sink,
// resubscribing after failures until ctx is cancelled. A disabled bridge
// returns immediately and leaves polling as the only source of updates.
func StartChangeListener(ctx context.Context, bridge *events.RedisBridge, sink ChangeSink, retry time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !bridge.Enabled() {
		logger.Info("change channel disabled; relying on polling")
		return
	}
	if retry <= 0 {
		retry = time.Second
	}
	for {
		err := bridge.Listen(ctx, sink.ApplyChange)
		if ctx.Err() != nil || errors.Is(err, events.ErrBridgeDisabled) {
			return
		}
		logger.Warn("change channel dropped; resubscribing", zap.Error(err), zap.Duration("retry_in", retry))
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}
