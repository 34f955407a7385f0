// Package daemon implements the enforcement loop and the long-lived kiosk owner.
package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// WatchdogConfig holds enforcement loop configuration.
type WatchdogConfig struct {
	Interval           time.Duration // Delay between the end of one tick and the next
	Window             time.Duration // Trailing telemetry window per tick
	InitialDelay       time.Duration // Delay before the first tick of the first Start
	SelfStopWhenLocked bool          // Stop polling once the OS lock holds and the locked app is in front
}

// DefaultWatchdogConfig returns default watchdog configuration.
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		Interval: 3 * time.Second,
		Window:   10 * time.Second,
	}
}

// Resolver resolves the current foreground application.
type Resolver interface {
	Resolve(ctx context.Context, window time.Duration) (domain.AppID, bool)
}

// Watchdog is the single enforcement loop. Each tick re-arms its own timer
// only after it completes, so ticks never overlap.
type Watchdog struct {
	config   WatchdogConfig
	observer Resolver
	policy   domain.AllowPolicy
	recovery domain.Recoverer
	state    domain.StateReader
	lock     domain.LockPrimitive
	instr    domain.Instrumentation
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	tickMu sync.Mutex // held for the whole of a tick

	mu       sync.Mutex
	running  bool
	started  bool   // a Start has happened at least once
	gen      uint64 // bumped by Start and Stop; stale timers compare and bail
	timer    *time.Timer
	memo     domain.AppID // last forbidden app a recovery was issued for
	failures int          // consecutive recovery failures
}

// NewWatchdog creates a stopped watchdog.
func NewWatchdog(
	config WatchdogConfig,
	observer Resolver,
	policy domain.AllowPolicy,
	recovery domain.Recoverer,
	state domain.StateReader,
	lock domain.LockPrimitive,
	logger *zap.Logger,
) *Watchdog {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watchdog{
		config:   config,
		observer: observer,
		policy:   policy,
		recovery: recovery,
		state:    state,
		lock:     lock,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetInstrumentation wires metrics. Optional.
func (w *Watchdog) SetInstrumentation(instr domain.Instrumentation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.instr = instr
}

// SetInitialDelay overrides the delay before the very first tick.
// Has no effect once the watchdog has been started.
func (w *Watchdog) SetInitialDelay(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config.InitialDelay = d
}

// Start schedules ticks. Calling it while running is a no-op.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running || w.ctx.Err() != nil {
		return
	}

	delay := time.Duration(0)
	if !w.started {
		delay = w.config.InitialDelay
		w.started = true
	}

	w.running = true
	w.gen++
	w.arm(w.gen, delay)

	w.logger.Info("watchdog started",
		zap.Duration("interval", w.config.Interval),
		zap.Duration("first_tick_in", delay))
}

// Stop cancels the pending tick. Safe before Start and from any goroutine,
// including while a tick is executing; that tick will not re-arm.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked("stopped")
}

// Close stops the watchdog for good and cancels any in-flight tick.
func (w *Watchdog) Close() {
	w.Stop()
	w.cancel()
}

// Running reports whether a tick is scheduled or executing.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// LastViolation returns the debounce memo.
func (w *Watchdog) LastViolation() domain.AppID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.memo
}

func (w *Watchdog) stopLocked(reason string) {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.gen++
	if w.running {
		w.running = false
		w.logger.Info("watchdog "+reason, zap.String("last_violation", string(w.memo)))
	}
}

// arm must be called with mu held.
func (w *Watchdog) arm(gen uint64, delay time.Duration) {
	w.timer = time.AfterFunc(delay, func() { w.fire(gen) })
}

func (w *Watchdog) fire(gen uint64) {
	if !w.current(gen) {
		return
	}

	ctx, cancel := context.WithTimeout(w.ctx, w.tickTimeout())
	w.Tick(ctx)
	cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running || gen != w.gen {
		return
	}
	w.arm(gen, w.config.Interval)
}

func (w *Watchdog) current(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running && gen == w.gen
}

func (w *Watchdog) tickTimeout() time.Duration {
	if w.config.Interval > time.Second {
		return w.config.Interval
	}
	return time.Second
}

// Tick runs one enforcement pass. Exported so tests and the integration
// suite can drive the loop without real timers. Ticks never run
// concurrently, even across a Stop and Start.
func (w *Watchdog) Tick(ctx context.Context) domain.TickOutcome {
	w.tickMu.Lock()
	defer w.tickMu.Unlock()

	outcome := w.tick(ctx)
	w.logger.Debug("watchdog tick", zap.String("outcome", string(outcome)))
	if instr := w.instrumentation(); instr != nil {
		instr.TickCompleted(outcome)
	}
	return outcome
}

func (w *Watchdog) tick(ctx context.Context) domain.TickOutcome {
	state := w.state.State()
	if state == domain.StateAdminOverride || state == domain.StateUnprivileged {
		return domain.TickSkipped
	}

	app, ok := w.observer.Resolve(ctx, w.config.Window)
	if !ok {
		return domain.TickUnavailable
	}

	if app == w.policy.Locked() {
		w.clearMemo()
		if w.config.SelfStopWhenLocked && state == domain.StateEnforced && w.lock != nil && w.lock.Held() {
			w.mu.Lock()
			w.stopLocked("self-stopped, lock primitive holds")
			w.mu.Unlock()
			return domain.TickSelfStopped
		}
		return domain.TickCompliant
	}

	if w.policy.IsPermittedIn(app, state) {
		w.clearMemo()
		return domain.TickAllowed
	}

	w.mu.Lock()
	repeat := app == w.memo
	w.mu.Unlock()
	if repeat {
		return domain.TickDebounced
	}

	w.logger.Info("forbidden app in foreground",
		zap.String("app", string(app)),
		zap.Stringer("state", state))

	_, err := w.recovery.Recover(ctx, app)
	if instr := w.instrumentation(); instr != nil {
		instr.RecoveryAttempted(err)
	}
	if err != nil {
		// Memo left unset so the next tick retries.
		w.mu.Lock()
		w.failures++
		failures := w.failures
		w.mu.Unlock()
		w.logger.Warn("recovery failed",
			zap.String("app", string(app)),
			zap.Int("consecutive_failures", failures),
			zap.Error(err))
		return domain.TickRecoveryFailed
	}

	w.mu.Lock()
	w.memo = app
	w.failures = 0
	w.mu.Unlock()
	return domain.TickRecovered
}

func (w *Watchdog) clearMemo() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.memo = ""
	w.failures = 0
}

func (w *Watchdog) instrumentation() domain.Instrumentation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.instr
}

// Ensure Watchdog implements domain.Watchdog.
var _ domain.Watchdog = (*Watchdog)(nil)
