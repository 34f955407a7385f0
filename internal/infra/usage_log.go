package infra

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// DefaultRetention bounds how long usage events are kept.
const DefaultRetention = 5 * time.Minute

// UsageEventLog is an in-memory, time-ordered usage event log. It is the
// telemetry source the watchdog queries.
type UsageEventLog struct {
	mu        sync.RWMutex
	events    []domain.ForegroundEvent
	retention time.Duration
	ready     bool
	now       func() time.Time
}

// NewUsageEventLog creates an empty log.
func NewUsageEventLog(retention time.Duration) *UsageEventLog {
	return NewUsageEventLogWithClock(retention, time.Now)
}

// NewUsageEventLogWithClock creates a log with an injectable clock (for testing).
func NewUsageEventLogWithClock(retention time.Duration, now func() time.Time) *UsageEventLog {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &UsageEventLog{retention: retention, now: now}
}

// Append records an event, keeping timestamp order, and prunes expired events.
func (l *UsageEventLog) Append(ev domain.ForegroundEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ready = true
	n := len(l.events)
	if n == 0 || !ev.Timestamp.Before(l.events[n-1].Timestamp) {
		l.events = append(l.events, ev)
	} else {
		i := sort.Search(n, func(i int) bool { return l.events[i].Timestamp.After(ev.Timestamp) })
		l.events = append(l.events, domain.ForegroundEvent{})
		copy(l.events[i+1:], l.events[i:])
		l.events[i] = ev
	}
	l.pruneLocked()
}

// MarkReady lets queries succeed before the first event arrives.
func (l *UsageEventLog) MarkReady() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ready = true
}

// Query returns a lazy sequence over a snapshot of events in [from, to].
func (l *UsageEventLog) Query(ctx context.Context, from, to time.Time) (iter.Seq[domain.ForegroundEvent], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	if !l.ready {
		l.mu.RUnlock()
		return nil, domain.ErrTelemetryUnavailable
	}
	lo := sort.Search(len(l.events), func(i int) bool { return !l.events[i].Timestamp.Before(from) })
	hi := sort.Search(len(l.events), func(i int) bool { return l.events[i].Timestamp.After(to) })
	var snapshot []domain.ForegroundEvent
	if lo < hi {
		snapshot = make([]domain.ForegroundEvent, hi-lo)
		copy(snapshot, l.events[lo:hi])
	}
	l.mu.RUnlock()

	return func(yield func(domain.ForegroundEvent) bool) {
		for _, ev := range snapshot {
			if !yield(ev) {
				return
			}
		}
	}, nil
}

// Len returns the number of retained events.
func (l *UsageEventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

func (l *UsageEventLog) pruneLocked() {
	cutoff := l.now().Add(-l.retention)
	i := sort.Search(len(l.events), func(i int) bool { return !l.events[i].Timestamp.Before(cutoff) })
	if i > 0 {
		l.events = append(l.events[:0], l.events[i:]...)
	}
}

// FocusProbe reports the currently focused application.
type FocusProbe interface {
	Current(ctx context.Context) (domain.AppID, error)
}

// DefaultRefresh re-records an unchanged foreground so it stays inside a
// 10 second trailing window.
const DefaultRefresh = 5 * time.Second

// FocusSampler turns focus probes into MovedToForeground events. It appends
// when the focused application changes, and again every refresh period
// while it stays the same.
type FocusSampler struct {
	probe    FocusProbe
	log      *UsageEventLog
	interval time.Duration
	refresh  time.Duration
	logger   *zap.Logger
	now      func() time.Time
	last     domain.AppID
	lastAt   time.Time
}

// NewFocusSampler creates a sampler.
func NewFocusSampler(probe FocusProbe, log *UsageEventLog, interval, refresh time.Duration, logger *zap.Logger) *FocusSampler {
	return NewFocusSamplerWithClock(probe, log, interval, refresh, time.Now, logger)
}

// NewFocusSamplerWithClock creates a sampler with an injectable clock (for testing).
func NewFocusSamplerWithClock(probe FocusProbe, log *UsageEventLog, interval, refresh time.Duration, now func() time.Time, logger *zap.Logger) *FocusSampler {
	if interval <= 0 {
		interval = time.Second
	}
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return &FocusSampler{
		probe:    probe,
		log:      log,
		interval: interval,
		refresh:  refresh,
		logger:   logger,
		now:      now,
	}
}

// Sample probes once. Probe failures append nothing.
func (s *FocusSampler) Sample(ctx context.Context) {
	app, err := s.probe.Current(ctx)
	if err != nil {
		s.logger.Debug("focus probe failed", zap.Error(err))
		return
	}
	s.log.MarkReady()

	now := s.now()
	changed := app != s.last
	if !changed && now.Sub(s.lastAt) < s.refresh {
		return
	}
	s.last, s.lastAt = app, now
	s.log.Append(domain.ForegroundEvent{
		Timestamp: now,
		App:       app,
		Kind:      domain.EventMovedToForeground,
	})
	if changed {
		s.logger.Debug("foreground changed", zap.String("app", string(app)))
	}
}

// Run samples on a ticker. Blocks until ctx is cancelled.
func (s *FocusSampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sample(ctx)
		}
	}
}

// Ensure UsageEventLog implements domain.TelemetrySource.
var _ domain.TelemetrySource = (*UsageEventLog)(nil)
