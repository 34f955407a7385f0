package usecase

import (
	"context"
	"errors"
	"iter"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// mockTelemetry implements domain.TelemetrySource for testing
type mockTelemetry struct {
	events   []domain.ForegroundEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
}

func (m *mockTelemetry) Query(ctx context.Context, from, to time.Time) (iter.Seq[domain.ForegroundEvent], error) {
	m.lastFrom, m.lastTo = from, to
	if m.err != nil {
		return nil, m.err
	}
	return slices.Values(m.events), nil
}

// mockProcessManager implements domain.ProcessManager for testing
type mockProcessManager struct {
	findResult map[string][]int
	findErr    error
	killErr    error
	killedPIDs []int
}

func (m *mockProcessManager) FindByName(name string) ([]int, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.findResult[name], nil
}

func (m *mockProcessManager) NameOf(pid int) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockProcessManager) Kill(pid int) error {
	if m.killErr != nil {
		return m.killErr
	}
	m.killedPIDs = append(m.killedPIDs, pid)
	return nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return false
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

// mockLauncher implements domain.Launcher for testing
type mockLauncher struct {
	mu        sync.Mutex
	fronted   []domain.AppID
	homeCalls int
	frontErr  error
	homeErr   error
}

func (m *mockLauncher) BringToFront(ctx context.Context, id domain.AppID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frontErr != nil {
		return m.frontErr
	}
	m.fronted = append(m.fronted, id)
	return nil
}

func (m *mockLauncher) LaunchHome(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.homeCalls++
	return m.homeErr
}

// mockPolicy implements domain.AllowPolicy for testing
type mockPolicy struct {
	locked  domain.AppID
	allowed map[domain.AppID]bool
}

func (m *mockPolicy) Locked() domain.AppID { return m.locked }

func (m *mockPolicy) IsPermitted(id domain.AppID) bool {
	return id == m.locked || m.allowed[id]
}

func (m *mockPolicy) IsPermittedIn(id domain.AppID, state domain.LockState) bool {
	return m.IsPermitted(id)
}

func (m *mockPolicy) Entries() []domain.AppID {
	return []domain.AppID{m.locked}
}

// mockPrivilege implements domain.PrivilegeChecker for testing
type mockPrivilege struct {
	privileged bool
	permitted  bool
}

func (m *mockPrivilege) IsPrivileged() bool             { return m.privileged }
func (m *mockPrivilege) IsLockPrimitivePermitted() bool { return m.permitted }

// mockLock implements domain.LockPrimitive for testing
type mockLock struct {
	asserts   int
	releases  int
	held      bool
	assertErr error
	allowed   []domain.AppID
}

func (m *mockLock) AssertLock(ctx context.Context, allowed []domain.AppID) error {
	m.asserts++
	if m.assertErr != nil {
		return m.assertErr
	}
	m.allowed = allowed
	m.held = true
	return nil
}

func (m *mockLock) ReleaseLock(ctx context.Context) error {
	m.releases++
	m.held = false
	return nil
}

func (m *mockLock) Held() bool { return m.held }

// mockWatchdog implements domain.Watchdog for testing
type mockWatchdog struct {
	starts  int
	stops   int
	running bool
}

func (m *mockWatchdog) Start() {
	m.starts++
	m.running = true
}

func (m *mockWatchdog) Stop() {
	m.stops++
	m.running = false
}

func (m *mockWatchdog) Running() bool { return m.running }

// mockNotifier implements domain.Notifier for testing
type mockNotifier struct {
	messages []string
}

func (m *mockNotifier) Notify(ctx context.Context, message string) error {
	m.messages = append(m.messages, message)
	return nil
}

// mockSecrets implements domain.SecretStore for testing
type mockSecrets struct {
	values map[string]string
	getErr error
}

func newMockSecrets() *mockSecrets {
	return &mockSecrets{values: make(map[string]string)}
}

func (m *mockSecrets) GetSecret(key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *mockSecrets) SetSecret(key, value string) error {
	m.values[key] = value
	return nil
}

func (m *mockSecrets) DeleteSecret(key string) error {
	delete(m.values, key)
	return nil
}

func (m *mockSecrets) Close() error { return nil }

// mockInstrumentation records state changes
type mockInstrumentation struct {
	changes [][2]domain.LockState
}

func (m *mockInstrumentation) TickCompleted(domain.TickOutcome) {}

func (m *mockInstrumentation) RecoveryAttempted(error) {}

func (m *mockInstrumentation) StateChanged(from, to domain.LockState) {
	m.changes = append(m.changes, [2]domain.LockState{from, to})
}
