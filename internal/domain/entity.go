// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// AppID identifies a runnable application on the device (package name, WM_CLASS, etc).
// Equality is exact; prefix matching is a policy concern.
type AppID string

// EventKind classifies a telemetry event.
type EventKind int

const (
	EventOther EventKind = iota
	EventMovedToForeground
	EventMovedToBackground
)

func (k EventKind) String() string {
	switch k {
	case EventMovedToForeground:
		return "moved_to_foreground"
	case EventMovedToBackground:
		return "moved_to_background"
	default:
		return "other"
	}
}

// ForegroundEvent is a single usage-event record from the telemetry source.
type ForegroundEvent struct {
	Timestamp time.Time
	App       AppID
	Kind      EventKind
}

// LockState is the lock mode of the device for the lifetime of the process.
// It is never persisted; a restart re-derives privilege and starts over.
type LockState int

const (
	// StateInitializing is the zero value before Init has run.
	StateInitializing LockState = iota
	StateUnprivileged
	StateEnforced
	StateSuspended
	StateAdminOverride
)

func (s LockState) String() string {
	switch s {
	case StateUnprivileged:
		return "unprivileged"
	case StateEnforced:
		return "enforced"
	case StateSuspended:
		return "suspended"
	case StateAdminOverride:
		return "admin_override"
	default:
		return "initializing"
	}
}

// Terminal reports whether no further transitions are possible in this session.
func (s LockState) Terminal() bool {
	return s == StateUnprivileged || s == StateAdminOverride
}

// LockEvent is an input to the lock-mode state machine.
type LockEvent int

const (
	// LockEventExcursionStart is sent when a sanctioned excursion (document viewer) opens.
	LockEventExcursionStart LockEvent = iota + 1
	// LockEventExcursionEnd is sent when the excursion closes.
	LockEventExcursionEnd
	// LockEventResume is sent when the locked application regains focus.
	LockEventResume
	// LockEventAdminUnlock is sent after the admin credential was verified.
	LockEventAdminUnlock
)

func (e LockEvent) String() string {
	switch e {
	case LockEventExcursionStart:
		return "excursion_start"
	case LockEventExcursionEnd:
		return "excursion_end"
	case LockEventResume:
		return "resume"
	case LockEventAdminUnlock:
		return "admin_unlock"
	default:
		return "unknown"
	}
}

// ParseLockEvent maps a signal name to its event. Admin unlock is not
// reachable by name; it requires a verified credential.
func ParseLockEvent(name string) (LockEvent, bool) {
	switch name {
	case "excursion-start":
		return LockEventExcursionStart, true
	case "excursion-end":
		return LockEventExcursionEnd, true
	case "resume":
		return LockEventResume, true
	}
	return 0, false
}

// SignalName is the inverse of ParseLockEvent.
func (e LockEvent) SignalName() string {
	switch e {
	case LockEventExcursionStart:
		return "excursion-start"
	case LockEventExcursionEnd:
		return "excursion-end"
	case LockEventResume:
		return "resume"
	}
	return ""
}

// AdminGestureTracker holds the hidden-gesture counter.
type AdminGestureTracker struct {
	Count       int
	WindowStart time.Time
}

// TickOutcome is what a single watchdog tick decided.
type TickOutcome string

const (
	TickSkipped        TickOutcome = "skipped"
	TickUnavailable    TickOutcome = "unavailable"
	TickCompliant      TickOutcome = "compliant"
	TickAllowed        TickOutcome = "allowed"
	TickSelfStopped    TickOutcome = "self_stopped"
	TickRecovered      TickOutcome = "recovered"
	TickDebounced      TickOutcome = "debounced"
	TickRecoveryFailed TickOutcome = "recovery_failed"
)

// RecoveryResult captures what happened during a single recovery action.
type RecoveryResult struct {
	Violator   AppID
	Target     AppID
	KilledPIDs []int
	Errors     []error
	ExecutedAt time.Time
	DurationMs int64
}

// Owner is the record of the single authoritative kioskd session on the host.
type Owner struct {
	PID        int       `json:"pid"`
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	AppVersion string    `json:"app_version,omitempty"`
	Mode       string    `json:"mode,omitempty"` // "user" or "system"
}

// Release describes the latest published version on the update channel.
type Release struct {
	Version string // without the leading "v"
	TagName string
	URL     string
}
