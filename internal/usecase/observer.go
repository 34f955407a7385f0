package usecase

import (
	"context"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// ForegroundObserver resolves the current foreground application from a
// trailing window of telemetry. It keeps no state between calls.
type ForegroundObserver struct {
	source domain.TelemetrySource
	now    func() time.Time
	logger *zap.Logger
}

// NewForegroundObserver creates an observer over the given telemetry source.
func NewForegroundObserver(source domain.TelemetrySource, logger *zap.Logger) *ForegroundObserver {
	return NewForegroundObserverWithClock(source, time.Now, logger)
}

// NewForegroundObserverWithClock creates an observer with an injectable clock (for testing).
func NewForegroundObserverWithClock(source domain.TelemetrySource, now func() time.Time, logger *zap.Logger) *ForegroundObserver {
	return &ForegroundObserver{
		source: source,
		now:    now,
		logger: logger,
	}
}

// Resolve returns the application of the most recent MovedToForeground event
// in [now-window, now]. ok is false when the source is unavailable or the
// window holds no such event; callers must treat that as "no decision".
func (o *ForegroundObserver) Resolve(ctx context.Context, window time.Duration) (app domain.AppID, ok bool) {
	to := o.now()
	events, err := o.source.Query(ctx, to.Add(-window), to)
	if err != nil {
		if o.logger != nil {
			o.logger.Debug("telemetry query failed", zap.Error(err))
		}
		return "", false
	}
	return LastForeground(events)
}

// LastForeground folds a time-ordered event sequence down to the last
// MovedToForeground application.
func LastForeground(events iter.Seq[domain.ForegroundEvent]) (domain.AppID, bool) {
	var (
		last  domain.AppID
		found bool
	)
	for ev := range events {
		if ev.Kind != domain.EventMovedToForeground {
			continue
		}
		last, found = ev.App, true
	}
	return last, found
}
