package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

const (
	ownerFileName = "kioskd.owner"
	ownerLockName = "kioskd.lock"
)

// FileOwnerRegistry implements domain.OwnerRegistry with an exclusive flock
// held for the lifetime of the owning process, plus a JSON record of the
// owner for status reporting.
type FileOwnerRegistry struct {
	path           string
	lockPath       string
	processManager domain.ProcessManager

	mu       sync.Mutex
	lockFile *os.File
}

// NewFileOwnerRegistry creates a registry in dataDir.
func NewFileOwnerRegistry(dataDir string, pm domain.ProcessManager) *FileOwnerRegistry {
	return &FileOwnerRegistry{
		path:           filepath.Join(dataDir, ownerFileName),
		lockPath:       filepath.Join(dataDir, ownerLockName),
		processManager: pm,
	}
}

// Path returns the owner record path.
func (r *FileOwnerRegistry) Path() string {
	return r.path
}

// Acquire takes the owner lock without blocking and records owner.
func (r *FileOwnerRegistry) Acquire(owner domain.Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lockFile != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	lockFile, err := os.OpenFile(r.lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		lockFile.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return domain.ErrOwnerActive
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	if err := r.atomicWrite(owner); err != nil {
		_ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
		lockFile.Close()
		return err
	}

	r.lockFile = lockFile
	return nil
}

// Release drops the lock and removes the owner record.
func (r *FileOwnerRegistry) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lockFile == nil {
		return nil
	}
	_ = os.Remove(r.path)
	_ = syscall.Flock(int(r.lockFile.Fd()), syscall.LOCK_UN)
	err := r.lockFile.Close()
	r.lockFile = nil
	return err
}

// Current returns the recorded owner if its process is still running.
func (r *FileOwnerRegistry) Current() (*domain.Owner, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var owner domain.Owner
	if err := json.Unmarshal(data, &owner); err != nil {
		return nil, err
	}
	if r.processManager != nil && !r.processManager.IsRunning(owner.PID) {
		return nil, nil
	}
	return &owner, nil
}

// atomicWrite writes the owner record atomically (write + rename).
func (r *FileOwnerRegistry) atomicWrite(owner domain.Owner) error {
	data, err := json.Marshal(owner)
	if err != nil {
		return err
	}

	// Write to temp file first (unique per process to avoid race)
	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return err
	}
	return nil
}

// Ensure FileOwnerRegistry implements domain.OwnerRegistry.
var _ domain.OwnerRegistry = (*FileOwnerRegistry)(nil)
