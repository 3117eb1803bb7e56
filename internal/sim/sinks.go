package sim

import (
	"context"
	"log"
	"log/slog"

	"strategy-sim/internal/logger"
	"strategy-sim/internal/model"
)

// RunJournal consumes session events and journals fills and finished runs.
// It returns when ctx is cancelled or events is closed.
func RunJournal(ctx context.Context, events <-chan model.Event, rec model.RunRecorder) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			journal(ctx, ev, rec)
		}
	}
}

func journal(ctx context.Context, ev model.Event, rec model.RunRecorder) {
	lctx := logger.WithRunID(logger.WithSessionID(ctx, ev.Session), ev.RunID)
	switch {
	case ev.Kind == model.EventStep && ev.Trade != nil:
		if err := rec.RecordTrade(ctx, ev.RunID, *ev.Trade); err != nil {
			slog.Warn("journal trade failed", append(logger.LogWithSession(lctx), slog.Any("err", err))...)
		}
	case ev.Kind == model.EventAtEnd && ev.Run != nil:
		if err := rec.RecordRun(ctx, *ev.Run, nil, nil); err != nil {
			slog.Warn("journal run failed", append(logger.LogWithSession(lctx), slog.Any("err", err))...)
			return
		}
		slog.Info("run finished", append(logger.LogWithSession(lctx),
			slog.String("strategy", ev.Run.Strategy),
			slog.Float64("return_pct", ev.Run.ReturnPct),
			slog.Int("trades", ev.Run.Trades))...)
	}
}

// RunPublisher forwards session events to an external publisher. Publish
// errors are logged and never propagate back to the session.
func RunPublisher(ctx context.Context, events <-chan model.Event, pub model.EventPublisher) {
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := pub.Publish(ctx, ev); err != nil {
				failures++
				if failures == 1 || failures%100 == 0 {
					log.Printf("[sim] publish failed (%d so far): %v", failures, err)
				}
				continue
			}
			failures = 0
		}
	}
}
