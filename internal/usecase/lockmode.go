package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// Messages surfaced to the user.
const (
	MsgUnprivileged = "Kiosk mode unavailable: this device is not provisioned for lock-down"
	MsgAdminUnlock  = "Kiosk mode disabled by administrator"
)

type transitionKey struct {
	from  domain.LockState
	event domain.LockEvent
}

// transitions is the complete transition table. Pairs missing from the
// table leave the state unchanged.
var transitions = map[transitionKey]domain.LockState{
	{domain.StateEnforced, domain.LockEventExcursionStart}: domain.StateSuspended,
	{domain.StateEnforced, domain.LockEventResume}:         domain.StateEnforced,
	{domain.StateEnforced, domain.LockEventAdminUnlock}:    domain.StateAdminOverride,
	{domain.StateSuspended, domain.LockEventExcursionEnd}:  domain.StateEnforced,
	{domain.StateSuspended, domain.LockEventResume}:        domain.StateEnforced,
	{domain.StateSuspended, domain.LockEventAdminUnlock}:   domain.StateAdminOverride,
}

// NextState looks up the transition table.
func NextState(from domain.LockState, ev domain.LockEvent) (domain.LockState, bool) {
	to, ok := transitions[transitionKey{from, ev}]
	if !ok {
		return from, false
	}
	return to, true
}

// LockMachine is the only writer of LockState. Every trigger (resume
// signals, excursions, admin unlock) goes through Fire.
type LockMachine struct {
	mu        sync.Mutex
	state     domain.LockState
	policy    domain.AllowPolicy
	privilege domain.PrivilegeChecker
	lock      domain.LockPrimitive
	launcher  domain.Launcher
	notifier  domain.Notifier
	watchdog  domain.Watchdog
	instr     domain.Instrumentation
	logger    *zap.Logger
}

// NewLockMachine creates a machine in StateInitializing. AttachWatchdog must
// be called before Init.
func NewLockMachine(
	policy domain.AllowPolicy,
	privilege domain.PrivilegeChecker,
	lock domain.LockPrimitive,
	launcher domain.Launcher,
	notifier domain.Notifier,
	logger *zap.Logger,
) *LockMachine {
	return &LockMachine{
		state:     domain.StateInitializing,
		policy:    policy,
		privilege: privilege,
		lock:      lock,
		launcher:  launcher,
		notifier:  notifier,
		logger:    logger,
	}
}

// AttachWatchdog wires the enforcement loop the machine starts and stops.
func (m *LockMachine) AttachWatchdog(w domain.Watchdog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchdog = w
}

// SetInstrumentation wires metrics. Optional.
func (m *LockMachine) SetInstrumentation(instr domain.Instrumentation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instr = instr
}

// State returns the current lock state.
func (m *LockMachine) State() domain.LockState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Init derives the initial state from platform privilege. It runs once;
// later calls return the current state.
func (m *LockMachine) Init(ctx context.Context) domain.LockState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.StateInitializing {
		return m.state
	}

	if !m.privilege.IsPrivileged() {
		m.setState(domain.StateUnprivileged)
		m.logger.Warn("platform privilege unavailable, enforcement disabled",
			zap.Error(domain.ErrPrivilegeDenied))
		m.notify(ctx, MsgUnprivileged)
		return m.state
	}

	m.setState(domain.StateEnforced)
	m.assertLock(ctx)
	m.startWatchdog()
	return m.state
}

// Fire applies ev to the current state. It returns the resulting state and
// whether the event was in the transition table.
func (m *LockMachine) Fire(ctx context.Context, ev domain.LockEvent) (domain.LockState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	if from.Terminal() {
		m.logger.Debug("event ignored in terminal state",
			zap.Stringer("state", from),
			zap.Stringer("event", ev))
		return from, false
	}
	to, ok := NextState(from, ev)
	if !ok {
		m.logger.Debug("event ignored",
			zap.Stringer("state", from),
			zap.Stringer("event", ev))
		return from, false
	}

	m.setState(to)

	switch to {
	case domain.StateSuspended:
		m.releaseLock(ctx)
		m.startWatchdog()

	case domain.StateEnforced:
		// Covers Suspended->Enforced and the Enforced resume self-loop.
		m.assertLock(ctx)
		m.startWatchdog()

	case domain.StateAdminOverride:
		m.releaseLock(ctx)
		if m.watchdog != nil {
			m.watchdog.Stop()
		}
		if err := m.launcher.LaunchHome(ctx); err != nil {
			m.logger.Warn("failed to launch home", zap.Error(err))
		}
		m.notify(ctx, MsgAdminUnlock)
	}

	return to, true
}

// setState must be called with mu held.
func (m *LockMachine) setState(to domain.LockState) {
	from := m.state
	m.state = to
	if from == to {
		return
	}
	m.logger.Info("lock state changed",
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	if m.instr != nil {
		m.instr.StateChanged(from, to)
	}
}

// assertLock re-checks privilege before every assert; the OS may drop the
// lock silently so this runs on every transition into Enforced.
func (m *LockMachine) assertLock(ctx context.Context) {
	if !m.privilege.IsPrivileged() || !m.privilege.IsLockPrimitivePermitted() {
		m.logger.Warn("lock primitive not permitted, skipping assert",
			zap.Error(domain.ErrPrivilegeDenied))
		return
	}
	if err := m.lock.AssertLock(ctx, m.policy.Entries()); err != nil {
		m.logger.Warn("failed to assert lock", zap.Error(err))
		return
	}
	m.logger.Debug("lock asserted")
}

func (m *LockMachine) releaseLock(ctx context.Context) {
	if err := m.lock.ReleaseLock(ctx); err != nil {
		m.logger.Warn("failed to release lock", zap.Error(err))
	}
}

func (m *LockMachine) startWatchdog() {
	if m.watchdog != nil {
		m.watchdog.Start()
	}
}

func (m *LockMachine) notify(ctx context.Context, msg string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, msg); err != nil {
		m.logger.Warn("failed to notify user", zap.String("message", msg), zap.Error(err))
	}
}

// Ensure LockMachine implements domain.StateReader.
var _ domain.StateReader = (*LockMachine)(nil)
