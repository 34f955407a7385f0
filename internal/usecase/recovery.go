// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// Recovery implements domain.Recoverer. It optionally terminates the
// violating application and then raises the locked application.
type Recovery struct {
	processManager    domain.ProcessManager
	launcher          domain.Launcher
	policy            domain.AllowPolicy
	terminateViolator bool
	logger            *zap.Logger
}

// NewRecovery creates a recovery action that only raises the locked application.
func NewRecovery(launcher domain.Launcher, policy domain.AllowPolicy, logger *zap.Logger) *Recovery {
	return &Recovery{
		launcher: launcher,
		policy:   policy,
		logger:   logger,
	}
}

// NewRecoveryWithTermination creates a recovery action that also kills the
// violator's processes before raising the locked application.
func NewRecoveryWithTermination(
	pm domain.ProcessManager,
	launcher domain.Launcher,
	policy domain.AllowPolicy,
	logger *zap.Logger,
) *Recovery {
	return &Recovery{
		processManager:    pm,
		launcher:          launcher,
		policy:            policy,
		terminateViolator: true,
		logger:            logger,
	}
}

// Recover returns the device to the locked application. Calling it while the
// locked application is already in front only re-raises it.
func (r *Recovery) Recover(ctx context.Context, violator domain.AppID) (*domain.RecoveryResult, error) {
	start := time.Now()
	target := r.policy.Locked()

	result := &domain.RecoveryResult{
		Violator:   violator,
		Target:     target,
		KilledPIDs: make([]int, 0),
		Errors:     make([]error, 0),
		ExecutedAt: start,
	}

	if r.terminateViolator && r.processManager != nil && violator != "" && !r.policy.IsPermitted(violator) {
		r.terminate(violator, result)
	}

	err := r.launcher.BringToFront(ctx, target)
	result.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Errors = append(result.Errors, err)
		r.logger.Warn("failed to bring locked app to front",
			zap.String("target", string(target)),
			zap.String("violator", string(violator)),
			zap.Error(err))
		return result, fmt.Errorf("%w: %w", domain.ErrRecoveryFailed, err)
	}

	r.logger.Info("recovered foreground",
		zap.String("target", string(target)),
		zap.String("violator", string(violator)),
		zap.Int("processes_killed", len(result.KilledPIDs)),
		zap.Int64("duration_ms", result.DurationMs))

	return result, nil
}

// terminate kills processes named like the violator. Kill failures are
// recorded but do not fail the recovery; raising the target is what matters.
func (r *Recovery) terminate(violator domain.AppID, result *domain.RecoveryResult) {
	pids, err := r.processManager.FindByName(string(violator))
	if err != nil {
		r.logger.Warn("failed to find violator processes",
			zap.String("violator", string(violator)),
			zap.Error(err))
		result.Errors = append(result.Errors, err)
		return
	}

	self := r.processManager.GetCurrentPID()
	for _, pid := range pids {
		if pid == self {
			continue
		}
		if err := r.processManager.Kill(pid); err != nil {
			r.logger.Warn("failed to kill process",
				zap.Int("pid", pid),
				zap.Error(err))
			result.Errors = append(result.Errors, err)
			continue
		}
		r.logger.Info("killed process",
			zap.String("violator", string(violator)),
			zap.Int("pid", pid))
		result.KilledPIDs = append(result.KilledPIDs, pid)
	}
}

// Ensure Recovery implements domain.Recoverer.
var _ domain.Recoverer = (*Recovery)(nil)
