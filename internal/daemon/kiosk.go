package daemon

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// Messages surfaced to the operator around the admin gesture.
const (
	MsgCredentialRejected  = "Incorrect PIN"
	MsgCredentialThrottled = "Too many attempts, try again later"
	MsgCredentialMissing   = "Administrator PIN is not configured"
	promptTitle            = "Administrator PIN"
)

// KeyPress is a physical key-down delivered to the kiosk owner.
type KeyPress struct {
	Key string
	At  time.Time
}

// Machine is the lock-mode state machine as seen by the owner.
type Machine interface {
	domain.StateReader
	Init(ctx context.Context) domain.LockState
	Fire(ctx context.Context, ev domain.LockEvent) (domain.LockState, bool)
}

// GestureDetector recognises the admin gesture.
type GestureDetector interface {
	OnPhysicalInput(key string, at time.Time) bool
}

// CredentialVerifier checks the admin credential.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) error
}

// Sanctioner temporarily permits an application in the foreground.
type Sanctioner interface {
	Sanction(id domain.AppID) (release func())
}

// Kiosk is the single long-lived owner of the enforcement loop. Other
// components reach it only through Signal and Press; it is the only
// caller of the state machine.
type Kiosk struct {
	machine  Machine
	watchdog domain.Watchdog
	gesture  GestureDetector
	verifier CredentialVerifier
	prompter domain.CredentialPrompter
	notifier domain.Notifier
	logger   *zap.Logger

	sanctions Sanctioner
	promptApp domain.AppID

	events chan domain.LockEvent
	keys   chan KeyPress
}

// NewKiosk creates the owner. gesture, verifier and prompter may be nil,
// which disables the admin gesture.
func NewKiosk(
	machine Machine,
	watchdog domain.Watchdog,
	gesture GestureDetector,
	verifier CredentialVerifier,
	prompter domain.CredentialPrompter,
	notifier domain.Notifier,
	logger *zap.Logger,
) *Kiosk {
	return &Kiosk{
		machine:  machine,
		watchdog: watchdog,
		gesture:  gesture,
		verifier: verifier,
		prompter: prompter,
		notifier: notifier,
		logger:   logger,
		events:   make(chan domain.LockEvent, 16),
		keys:     make(chan KeyPress, 64),
	}
}

// AllowDuringPrompt permits app in the foreground while the credential
// prompt is open. Call before Run.
func (k *Kiosk) AllowDuringPrompt(sanctions Sanctioner, app domain.AppID) {
	k.sanctions = sanctions
	k.promptApp = app
}

// Signal delivers a lifecycle event (excursion start/end, resume) to the owner.
func (k *Kiosk) Signal(ctx context.Context, ev domain.LockEvent) error {
	if ev == domain.LockEventAdminUnlock {
		return errors.New("admin unlock requires the gesture and credential")
	}
	select {
	case k.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Press delivers a physical key-down to the owner. It never blocks; presses
// beyond the buffer are dropped.
func (k *Kiosk) Press(key string, at time.Time) {
	select {
	case k.keys <- KeyPress{Key: key, At: at}:
	default:
		k.logger.Debug("key press dropped", zap.String("key", key))
	}
}

// State returns the current lock state.
func (k *Kiosk) State() domain.LockState {
	return k.machine.State()
}

// Run initialises the state machine and serves signals until ctx is done.
func (k *Kiosk) Run(ctx context.Context) error {
	state := k.machine.Init(ctx)
	k.logger.Info("kiosk started", zap.Stringer("state", state))

	defer k.watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("kiosk stopping", zap.Stringer("state", k.machine.State()))
			return nil

		case ev := <-k.events:
			to, ok := k.machine.Fire(ctx, ev)
			k.logger.Debug("signal handled",
				zap.Stringer("event", ev),
				zap.Stringer("state", to),
				zap.Bool("transitioned", ok))

		case kp := <-k.keys:
			if k.gesture == nil || !k.gesture.OnPhysicalInput(kp.Key, kp.At) {
				continue
			}
			k.handleGesture(ctx)
		}
	}
}

// handleGesture prompts for the credential and unlocks on success.
func (k *Kiosk) handleGesture(ctx context.Context) {
	state := k.machine.State()
	if state == domain.StateInitializing || state.Terminal() {
		return
	}
	if k.prompter == nil || k.verifier == nil {
		k.logger.Warn("admin gesture recognised but no credential prompt configured")
		return
	}

	k.logger.Info("admin gesture recognised")
	credential, err := k.prompt(ctx)
	if err != nil {
		k.logger.Info("admin prompt dismissed", zap.Error(err))
		return
	}

	if err := k.verifier.Verify(ctx, credential); err != nil {
		switch {
		case errors.Is(err, domain.ErrCredentialThrottled):
			k.notify(ctx, MsgCredentialThrottled)
		case errors.Is(err, domain.ErrCredentialNotConfigured):
			k.notify(ctx, MsgCredentialMissing)
		default:
			k.notify(ctx, MsgCredentialRejected)
		}
		return
	}

	k.machine.Fire(ctx, domain.LockEventAdminUnlock)
}

// prompt shows the credential prompt with its window sanctioned, so the
// watchdog does not recover away from it.
func (k *Kiosk) prompt(ctx context.Context) (string, error) {
	if k.sanctions != nil {
		release := k.sanctions.Sanction(k.promptApp)
		defer release()
	}
	return k.prompter.Prompt(ctx, promptTitle)
}

func (k *Kiosk) notify(ctx context.Context, msg string) {
	if k.notifier == nil {
		return
	}
	if err := k.notifier.Notify(ctx, msg); err != nil {
		k.logger.Warn("failed to notify user", zap.String("message", msg), zap.Error(err))
	}
}
