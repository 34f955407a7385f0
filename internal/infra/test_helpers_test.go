package infra

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// mockProcessManager is a test double for ProcessManager
type mockProcessManager struct {
	runningPIDs map[int]bool
	names       map[int]string
	killedPIDs  []int
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: make(map[int]bool),
		names:       make(map[int]string),
	}
}

func (m *mockProcessManager) FindByName(name string) ([]int, error) {
	var pids []int
	for pid, n := range m.names {
		if strings.EqualFold(n, name) {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

func (m *mockProcessManager) NameOf(pid int) (string, error) {
	name, ok := m.names[pid]
	if !ok {
		return "", fmt.Errorf("process %d not found", pid)
	}
	return name, nil
}

func (m *mockProcessManager) Kill(pid int) error {
	m.killedPIDs = append(m.killedPIDs, pid)
	delete(m.runningPIDs, pid)
	return nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessManager) SetRunning(pid int, running bool) {
	m.runningPIDs[pid] = running
}

// mockCommandRunner records invocations and replays canned output keyed by
// the full command line.
type mockCommandRunner struct {
	mu       sync.Mutex
	calls    []string
	started  []string
	outputs  map[string]string
	errs     map[string]error
	paths    map[string]bool
	startErr error
}

func newMockCommandRunner() *mockCommandRunner {
	return &mockCommandRunner{
		outputs: make(map[string]string),
		errs:    make(map[string]error),
		paths:   make(map[string]bool),
	}
}

func cmdline(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

func (m *mockCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	line := cmdline(name, args...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, line)
	return m.errs[line]
}

func (m *mockCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	line := cmdline(name, args...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, line)
	if err := m.errs[line]; err != nil {
		return nil, err
	}
	return []byte(m.outputs[line]), nil
}

func (m *mockCommandRunner) Start(name string, args ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, cmdline(name, args...))
	return m.startErr
}

func (m *mockCommandRunner) LookPath(name string) (string, error) {
	if m.paths[name] {
		return "/usr/bin/" + name, nil
	}
	return "", fmt.Errorf("%s: not found", name)
}

// mockUpdateCheckStore is an in-memory domain.UpdateCheckStore.
type mockUpdateCheckStore struct {
	mu   sync.Mutex
	last time.Time
	sets int
}

func (m *mockUpdateCheckStore) LastUpdateCheck() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, nil
}

func (m *mockUpdateCheckStore) SetLastUpdateCheck(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = t
	m.sets++
	return nil
}

var _ domain.ProcessManager = (*mockProcessManager)(nil)
var _ CommandRunner = (*mockCommandRunner)(nil)
var _ domain.UpdateCheckStore = (*mockUpdateCheckStore)(nil)
