package infra

import (
	"os"
	"path/filepath"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser runs as an unprivileged user (desktop session service)
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root (system service)
	ExecModeSystem ExecMode = "system"
)

// ExecModeConfig holds paths and settings based on execution mode.
type ExecModeConfig struct {
	Mode       ExecMode
	DataDir    string // Where the encrypted store, key and signals live
	ConfigPath string // Default configuration file
	IsRoot     bool   // Whether running as root
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	return execModeFor(os.Geteuid())
}

func execModeFor(euid int) *ExecModeConfig {
	if euid == 0 {
		return &ExecModeConfig{
			Mode:       ExecModeSystem,
			DataDir:    "/var/lib/kioskd",
			ConfigPath: "/etc/kioskd/config.yaml",
			IsRoot:     true,
		}
	}

	home, _ := os.UserHomeDir()
	return &ExecModeConfig{
		Mode:       ExecModeUser,
		DataDir:    filepath.Join(home, ".kioskd"),
		ConfigPath: filepath.Join(home, ".config", "kioskd", "config.yaml"),
		IsRoot:     false,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (non-root)"
	default:
		return "unknown"
	}
}

// PrivilegeProbe implements domain.PrivilegeChecker. The device counts as
// provisioned when kioskd runs as root (or privilege is explicitly granted
// for a user-session install) and the lock command resolves on PATH.
type PrivilegeProbe struct {
	mode       *ExecModeConfig
	grantUser  bool
	lockBinary string
	runner     CommandRunner
}

// NewPrivilegeProbe creates a probe. lockBinary is the executable of the
// lock assert command; empty means the lock primitive is unavailable.
func NewPrivilegeProbe(mode *ExecModeConfig, grantUser bool, lockBinary string) *PrivilegeProbe {
	return NewPrivilegeProbeWithRunner(mode, grantUser, lockBinary, &RealCommandRunner{})
}

// NewPrivilegeProbeWithRunner creates a probe with an injectable runner (for testing).
func NewPrivilegeProbeWithRunner(mode *ExecModeConfig, grantUser bool, lockBinary string, runner CommandRunner) *PrivilegeProbe {
	return &PrivilegeProbe{
		mode:       mode,
		grantUser:  grantUser,
		lockBinary: lockBinary,
		runner:     runner,
	}
}

// IsPrivileged reports whether kioskd may enforce on this host.
func (p *PrivilegeProbe) IsPrivileged() bool {
	return p.mode.IsRoot || p.grantUser
}

// IsLockPrimitivePermitted reports whether the lock command is usable.
func (p *PrivilegeProbe) IsLockPrimitivePermitted() bool {
	if p.lockBinary == "" {
		return false
	}
	_, err := p.runner.LookPath(p.lockBinary)
	return err == nil
}

// Ensure PrivilegeProbe implements domain.PrivilegeChecker.
var _ domain.PrivilegeChecker = (*PrivilegeProbe)(nil)
