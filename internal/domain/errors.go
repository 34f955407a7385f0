package domain

import "errors"

var (
	// ErrTelemetryUnavailable means no foreground decision can be made this tick.
	ErrTelemetryUnavailable = errors.New("telemetry unavailable")

	// ErrPrivilegeDenied means the platform privilege or lock primitive is not available.
	ErrPrivilegeDenied = errors.New("platform privilege denied")

	// ErrLockAssertFailed wraps failures of the OS lock primitive.
	ErrLockAssertFailed = errors.New("lock primitive assert failed")

	// ErrRecoveryFailed wraps failures to bring the locked application back.
	ErrRecoveryFailed = errors.New("recovery action failed")

	// ErrCredentialRejected means the admin credential did not match.
	ErrCredentialRejected = errors.New("credential rejected")

	// ErrCredentialThrottled means too many credential attempts were made recently.
	ErrCredentialThrottled = errors.New("too many credential attempts")

	// ErrCredentialNotConfigured means no admin credential hash is available.
	ErrCredentialNotConfigured = errors.New("admin credential not configured")

	// ErrOwnerActive means another kioskd session already owns enforcement.
	ErrOwnerActive = errors.New("another kioskd session is active")

	// ErrNotFound is returned by stores for missing keys.
	ErrNotFound = errors.New("not found")
)
