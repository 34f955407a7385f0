package infra

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// CommandLock implements domain.LockPrimitive by running site-provided
// commands. The assert command receives the allowed identifiers as
// trailing arguments.
type CommandLock struct {
	assertCmd  []string
	releaseCmd []string
	runner     CommandRunner
	logger     *zap.Logger

	mu   sync.Mutex
	held bool
}

// NewCommandLock creates a lock primitive from command templates.
func NewCommandLock(assertCmd, releaseCmd []string, logger *zap.Logger) *CommandLock {
	return NewCommandLockWithRunner(assertCmd, releaseCmd, &RealCommandRunner{}, logger)
}

// NewCommandLockWithRunner creates a lock primitive with an injectable runner (for testing).
func NewCommandLockWithRunner(assertCmd, releaseCmd []string, runner CommandRunner, logger *zap.Logger) *CommandLock {
	return &CommandLock{
		assertCmd:  assertCmd,
		releaseCmd: releaseCmd,
		runner:     runner,
		logger:     logger,
	}
}

// Configured reports whether an assert command is set.
func (l *CommandLock) Configured() bool {
	return len(l.assertCmd) > 0
}

// AssertLock runs the assert command with the allowed identifiers appended.
func (l *CommandLock) AssertLock(ctx context.Context, allowed []domain.AppID) error {
	if !l.Configured() {
		return fmt.Errorf("%w: no assert command configured", domain.ErrLockAssertFailed)
	}

	args := append([]string{}, l.assertCmd[1:]...)
	for _, id := range allowed {
		args = append(args, string(id))
	}

	if err := l.runner.Run(ctx, l.assertCmd[0], args...); err != nil {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
		return fmt.Errorf("%w: %w", domain.ErrLockAssertFailed, err)
	}

	l.mu.Lock()
	l.held = true
	l.mu.Unlock()
	l.logger.Info("lock asserted", zap.Int("allowed", len(allowed)))
	return nil
}

// ReleaseLock runs the release command. Without one it only clears Held.
func (l *CommandLock) ReleaseLock(ctx context.Context) error {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()

	if len(l.releaseCmd) == 0 {
		return nil
	}
	if err := l.runner.Run(ctx, l.releaseCmd[0], l.releaseCmd[1:]...); err != nil {
		return fmt.Errorf("lock release failed: %w", err)
	}
	l.logger.Info("lock released")
	return nil
}

// Held reports whether the last assert succeeded and was not released.
func (l *CommandLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// ErrLaunchNotConfigured is returned when a launch command is empty.
var ErrLaunchNotConfigured = errors.New("launch command not configured")

// CommandLauncher implements domain.Launcher with command templates.
// "{app}" in the bring-to-front template is replaced with the target.
type CommandLauncher struct {
	frontCmd []string
	homeCmd  []string
	runner   CommandRunner
	logger   *zap.Logger
}

// NewCommandLauncher creates a launcher from command templates.
func NewCommandLauncher(frontCmd, homeCmd []string, logger *zap.Logger) *CommandLauncher {
	return NewCommandLauncherWithRunner(frontCmd, homeCmd, &RealCommandRunner{}, logger)
}

// NewCommandLauncherWithRunner creates a launcher with an injectable runner (for testing).
func NewCommandLauncherWithRunner(frontCmd, homeCmd []string, runner CommandRunner, logger *zap.Logger) *CommandLauncher {
	return &CommandLauncher{
		frontCmd: frontCmd,
		homeCmd:  homeCmd,
		runner:   runner,
		logger:   logger,
	}
}

// BringToFront starts the bring-to-front command; it does not wait for it.
func (l *CommandLauncher) BringToFront(ctx context.Context, id domain.AppID) error {
	if len(l.frontCmd) == 0 {
		return ErrLaunchNotConfigured
	}
	argv := expandArgs(l.frontCmd, map[string]string{"app": string(id)})
	if err := l.runner.Start(argv[0], argv[1:]...); err != nil {
		return err
	}
	l.logger.Debug("bring to front issued", zap.String("app", string(id)))
	return nil
}

// LaunchHome starts the home command. Without one it is a no-op.
func (l *CommandLauncher) LaunchHome(ctx context.Context) error {
	if len(l.homeCmd) == 0 {
		l.logger.Info("no home command configured, leaving desktop as is")
		return nil
	}
	return l.runner.Start(l.homeCmd[0], l.homeCmd[1:]...)
}

// Ensure implementations satisfy the domain interfaces.
var (
	_ domain.LockPrimitive = (*CommandLock)(nil)
	_ domain.Launcher      = (*CommandLauncher)(nil)
)
