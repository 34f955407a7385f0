package domain

import (
	"context"
	"iter"
	"time"
)

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes whose name equals name (case-insensitive).
	FindByName(name string) ([]int, error)

	// NameOf returns the process name of a PID.
	NameOf(pid int) (string, error)

	// Kill terminates a process by PID (SIGKILL).
	Kill(pid int) error

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// TelemetrySource produces usage events for a trailing window.
// The returned sequence is finite, time-ordered and may be empty.
// ErrTelemetryUnavailable means the source cannot answer right now.
type TelemetrySource interface {
	Query(ctx context.Context, from, to time.Time) (iter.Seq[ForegroundEvent], error)
}

// AllowPolicy classifies applications as permitted or forbidden.
type AllowPolicy interface {
	// Locked returns the locked application. It is always permitted.
	Locked() AppID

	// IsPermitted applies the allow-list with sub-component prefix matching.
	IsPermitted(id AppID) bool

	// IsPermittedIn additionally permits excursion apps while Suspended.
	IsPermittedIn(id AppID, state LockState) bool

	// Entries returns the allow-list handed to the lock primitive.
	Entries() []AppID
}

// PrivilegeChecker answers the platform capability queries.
type PrivilegeChecker interface {
	IsPrivileged() bool
	IsLockPrimitivePermitted() bool
}

// LockPrimitive is the OS-level task-switch restriction.
type LockPrimitive interface {
	// AssertLock restricts task switching to the allowed identifiers. Idempotent.
	AssertLock(ctx context.Context, allowed []AppID) error

	// ReleaseLock lifts the restriction. Idempotent.
	ReleaseLock(ctx context.Context) error

	// Held reports whether the last assert succeeded and was not released.
	Held() bool
}

// Launcher brings applications to the foreground.
type Launcher interface {
	// BringToFront raises the target, collapsing to a single instance. Fire-and-forget.
	BringToFront(ctx context.Context, id AppID) error

	// LaunchHome hands control to the OS default launcher.
	LaunchHome(ctx context.Context) error
}

// Recoverer returns the device to the locked application.
type Recoverer interface {
	Recover(ctx context.Context, violator AppID) (*RecoveryResult, error)
}

// Watchdog is the control surface of the enforcement loop.
type Watchdog interface {
	// Start is idempotent.
	Start()

	// Stop is safe from any state, including before Start.
	Stop()

	// Running reports whether a tick is scheduled.
	Running() bool
}

// StateReader exposes the current lock state without allowing mutation.
type StateReader interface {
	State() LockState
}

// Notifier surfaces user-visible messages.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// CredentialPrompter asks the operator for the admin credential.
type CredentialPrompter interface {
	Prompt(ctx context.Context, title string) (string, error)
}

// Instrumentation receives enforcement core events for metrics.
type Instrumentation interface {
	TickCompleted(outcome TickOutcome)
	RecoveryAttempted(err error)
	StateChanged(from, to LockState)
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// SecretStore provides encrypted persistent storage for secrets.
type SecretStore interface {
	// GetSecret retrieves a secret by key. Missing keys return ErrNotFound.
	GetSecret(key string) (string, error)

	// SetSecret stores a secret.
	SetSecret(key, value string) error

	// DeleteSecret removes a secret. Missing keys are not an error.
	DeleteSecret(key string) error

	// Close releases resources (e.g., database connection).
	Close() error
}

// ActivationStore holds the single durable "first-activation-done" flag.
type ActivationStore interface {
	FirstActivationDone() (bool, error)
	MarkFirstActivationDone() error
}

// UpdateCheckStore persists when the update channel last answered.
type UpdateCheckStore interface {
	LastUpdateCheck() (time.Time, error)
	SetLastUpdateCheck(t time.Time) error
}

// OwnerRegistry guarantees a single authoritative session per host.
type OwnerRegistry interface {
	// Acquire claims ownership or returns ErrOwnerActive.
	Acquire(owner Owner) error

	// Release gives up ownership held by this process.
	Release() error

	// Current returns the recorded owner, or nil if none is recorded.
	Current() (*Owner, error)

	// Path returns the registry file path.
	Path() string
}

// UpdateChannel checks for a newer release. Callbacks run on the channel's goroutine.
type UpdateChannel interface {
	CheckForUpdate(ctx context.Context, force bool,
		onUpToDate func(current string),
		onUpdateAvailable func(release Release),
		onError func(err error))
}
