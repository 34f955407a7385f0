package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// scriptedResolver replays a foreground sequence, one entry per Resolve.
// Past the end it keeps returning the last entry.
type scriptedResolver struct {
	mu        sync.Mutex
	apps      []domain.AppID
	calls     int
	block     chan struct{} // when set, Resolve waits on it
	active    int
	maxActive int // most Resolve calls seen in flight at once
}

func newScriptedResolver(apps ...domain.AppID) *scriptedResolver {
	return &scriptedResolver{apps: apps}
}

func (r *scriptedResolver) Resolve(ctx context.Context, window time.Duration) (domain.AppID, bool) {
	r.mu.Lock()
	block := r.block
	r.active++
	r.maxActive = max(r.maxActive, r.active)
	r.mu.Unlock()
	if block != nil {
		<-block
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active--
	if len(r.apps) == 0 {
		return "", false
	}
	i := r.calls
	if i >= len(r.apps) {
		i = len(r.apps) - 1
	}
	r.calls++
	return r.apps[i], r.apps[i] != ""
}

func (r *scriptedResolver) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *scriptedResolver) MaxActive() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxActive
}

func (r *scriptedResolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// mockRecoverer implements domain.Recoverer for testing
type mockRecoverer struct {
	mu        sync.Mutex
	violators []domain.AppID
	err       error
}

func (m *mockRecoverer) Recover(ctx context.Context, violator domain.AppID) (*domain.RecoveryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violators = append(m.violators, violator)
	return &domain.RecoveryResult{Violator: violator, ExecutedAt: time.Now()}, m.err
}

func (m *mockRecoverer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.violators)
}

func (m *mockRecoverer) Violators() []domain.AppID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AppID(nil), m.violators...)
}

// fixedState implements domain.StateReader for testing
type fixedState struct {
	mu    sync.Mutex
	state domain.LockState
}

func (s *fixedState) State() domain.LockState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fixedState) Set(state domain.LockState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// heldLock implements domain.LockPrimitive for testing
type heldLock struct {
	held bool
}

func (l *heldLock) AssertLock(ctx context.Context, allowed []domain.AppID) error {
	l.held = true
	return nil
}

func (l *heldLock) ReleaseLock(ctx context.Context) error {
	l.held = false
	return nil
}

func (l *heldLock) Held() bool { return l.held }

// countingInstrumentation implements domain.Instrumentation for testing
type countingInstrumentation struct {
	mu       sync.Mutex
	outcomes []domain.TickOutcome
}

func (c *countingInstrumentation) TickCompleted(outcome domain.TickOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

func (c *countingInstrumentation) RecoveryAttempted(error) {}

func (c *countingInstrumentation) StateChanged(from, to domain.LockState) {}

// mockMachine implements Machine for testing the kiosk owner
type mockMachine struct {
	mu     sync.Mutex
	state  domain.LockState
	inits  int
	events []domain.LockEvent
	onFire func(ev domain.LockEvent)
}

func (m *mockMachine) State() domain.LockState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockMachine) Init(ctx context.Context) domain.LockState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inits++
	m.state = domain.StateEnforced
	return m.state
}

func (m *mockMachine) Fire(ctx context.Context, ev domain.LockEvent) (domain.LockState, bool) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	if ev == domain.LockEventAdminUnlock {
		m.state = domain.StateAdminOverride
	}
	state, onFire := m.state, m.onFire
	m.mu.Unlock()
	if onFire != nil {
		onFire(ev)
	}
	return state, true
}

func (m *mockMachine) Events() []domain.LockEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LockEvent(nil), m.events...)
}

// stubWatchdog implements domain.Watchdog for testing
type stubWatchdog struct {
	mu    sync.Mutex
	stops int
}

func (w *stubWatchdog) Start() {}

func (w *stubWatchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stops++
}

func (w *stubWatchdog) Running() bool { return false }

// stubPrompter implements domain.CredentialPrompter for testing
type stubPrompter struct {
	mu       sync.Mutex
	answer   string
	err      error
	prompts  int
	onPrompt func() // runs while the prompt is open
}

func (p *stubPrompter) Prompt(ctx context.Context, title string) (string, error) {
	p.mu.Lock()
	p.prompts++
	answer, err, onPrompt := p.answer, p.err, p.onPrompt
	p.mu.Unlock()
	if onPrompt != nil {
		onPrompt()
	}
	return answer, err
}

func (p *stubPrompter) Prompts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts
}

// stubVerifier implements CredentialVerifier for testing
type stubVerifier struct {
	want string
	err  error
}

func (v *stubVerifier) Verify(ctx context.Context, credential string) error {
	if v.err != nil {
		return v.err
	}
	if credential != v.want {
		return domain.ErrCredentialRejected
	}
	return nil
}

// recordingNotifier implements domain.Notifier for testing
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}
