package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

type machineFixture struct {
	machine   *LockMachine
	privilege *mockPrivilege
	lock      *mockLock
	launcher  *mockLauncher
	notifier  *mockNotifier
	watchdog  *mockWatchdog
	instr     *mockInstrumentation
}

func newMachineFixture(privileged, permitted bool) *machineFixture {
	f := &machineFixture{
		privilege: &mockPrivilege{privileged: privileged, permitted: permitted},
		lock:      &mockLock{},
		launcher:  &mockLauncher{},
		notifier:  &mockNotifier{},
		watchdog:  &mockWatchdog{},
		instr:     &mockInstrumentation{},
	}
	f.machine = NewLockMachine(&mockPolicy{locked: "kiosk"}, f.privilege, f.lock, f.launcher, f.notifier, zap.NewNop())
	f.machine.AttachWatchdog(f.watchdog)
	f.machine.SetInstrumentation(f.instr)
	return f
}

// forceState drives the machine into a state through legal transitions.
func (f *machineFixture) forceState(t *testing.T, state domain.LockState) {
	t.Helper()
	ctx := context.Background()
	switch state {
	case domain.StateInitializing:
	case domain.StateUnprivileged:
		f.privilege.privileged = false
		f.machine.Init(ctx)
		f.privilege.privileged = true
	case domain.StateEnforced:
		f.machine.Init(ctx)
	case domain.StateSuspended:
		f.machine.Init(ctx)
		f.machine.Fire(ctx, domain.LockEventExcursionStart)
	case domain.StateAdminOverride:
		f.machine.Init(ctx)
		f.machine.Fire(ctx, domain.LockEventAdminUnlock)
	}
	require.Equal(t, state, f.machine.State())
}

func TestLockMachine_InitPrivileged(t *testing.T) {
	f := newMachineFixture(true, true)

	state := f.machine.Init(context.Background())

	assert.Equal(t, domain.StateEnforced, state)
	assert.Equal(t, 1, f.lock.asserts)
	assert.True(t, f.lock.held)
	assert.Equal(t, []domain.AppID{"kiosk"}, f.lock.allowed)
	assert.Equal(t, 1, f.watchdog.starts)
	assert.Empty(t, f.notifier.messages)
}

func TestLockMachine_InitUnprivileged(t *testing.T) {
	f := newMachineFixture(false, false)

	state := f.machine.Init(context.Background())

	assert.Equal(t, domain.StateUnprivileged, state)
	assert.Zero(t, f.lock.asserts)
	assert.Zero(t, f.watchdog.starts, "watchdog never starts without privilege")
	assert.Equal(t, []string{MsgUnprivileged}, f.notifier.messages)
}

func TestLockMachine_InitWithoutLockPermission(t *testing.T) {
	f := newMachineFixture(true, false)

	state := f.machine.Init(context.Background())

	assert.Equal(t, domain.StateEnforced, state)
	assert.Zero(t, f.lock.asserts, "assert skipped when the primitive is not permitted")
	assert.Equal(t, 1, f.watchdog.starts)
}

func TestLockMachine_InitRunsOnce(t *testing.T) {
	f := newMachineFixture(true, true)

	f.machine.Init(context.Background())
	f.machine.Init(context.Background())

	assert.Equal(t, 1, f.lock.asserts)
	assert.Equal(t, 1, f.watchdog.starts)
}

func TestLockMachine_AssertFailureIsNotFatal(t *testing.T) {
	f := newMachineFixture(true, true)
	f.lock.assertErr = errors.New("lock helper exited 1")

	state := f.machine.Init(context.Background())

	assert.Equal(t, domain.StateEnforced, state)
	assert.Equal(t, 1, f.watchdog.starts)
}

func TestLockMachine_ExcursionRoundTrip(t *testing.T) {
	f := newMachineFixture(true, true)
	ctx := context.Background()
	f.machine.Init(ctx)

	state, ok := f.machine.Fire(ctx, domain.LockEventExcursionStart)
	require.True(t, ok)
	assert.Equal(t, domain.StateSuspended, state)
	assert.False(t, f.lock.held)
	assert.Equal(t, 1, f.lock.releases)
	assert.True(t, f.watchdog.running, "watchdog keeps running during an excursion")

	state, ok = f.machine.Fire(ctx, domain.LockEventExcursionEnd)
	require.True(t, ok)
	assert.Equal(t, domain.StateEnforced, state)
	assert.True(t, f.lock.held)
	assert.Equal(t, 2, f.lock.asserts)
}

func TestLockMachine_ResumeReassertsLock(t *testing.T) {
	f := newMachineFixture(true, true)
	ctx := context.Background()
	f.machine.Init(ctx)

	// The OS dropped the lock behind our back.
	f.lock.held = false

	state, ok := f.machine.Fire(ctx, domain.LockEventResume)

	require.True(t, ok)
	assert.Equal(t, domain.StateEnforced, state)
	assert.Equal(t, 2, f.lock.asserts)
	assert.True(t, f.lock.held)
}

func TestLockMachine_ResumeRechecksPrivilege(t *testing.T) {
	f := newMachineFixture(true, true)
	ctx := context.Background()
	f.machine.Init(ctx)

	f.privilege.permitted = false
	f.machine.Fire(ctx, domain.LockEventResume)

	assert.Equal(t, 1, f.lock.asserts, "no assert while the primitive is not permitted")
	assert.Equal(t, domain.StateEnforced, f.machine.State())
}

func TestLockMachine_ResumeWhileSuspendedEndsExcursion(t *testing.T) {
	f := newMachineFixture(true, true)
	f.forceState(t, domain.StateSuspended)

	state, ok := f.machine.Fire(context.Background(), domain.LockEventResume)

	require.True(t, ok)
	assert.Equal(t, domain.StateEnforced, state)
	assert.True(t, f.lock.held)
}

func TestLockMachine_AdminUnlock(t *testing.T) {
	for _, from := range []domain.LockState{domain.StateEnforced, domain.StateSuspended} {
		t.Run(from.String(), func(t *testing.T) {
			f := newMachineFixture(true, true)
			f.forceState(t, from)
			f.lock.held = true

			state, ok := f.machine.Fire(context.Background(), domain.LockEventAdminUnlock)

			require.True(t, ok)
			assert.Equal(t, domain.StateAdminOverride, state)
			assert.False(t, f.lock.held)
			assert.False(t, f.watchdog.running)
			assert.Equal(t, 1, f.watchdog.stops)
			assert.Equal(t, 1, f.launcher.homeCalls)
			assert.Contains(t, f.notifier.messages, MsgAdminUnlock)
		})
	}
}

func TestLockMachine_AdminOverrideIsTerminal(t *testing.T) {
	f := newMachineFixture(true, true)
	f.forceState(t, domain.StateAdminOverride)
	asserts := f.lock.asserts
	starts := f.watchdog.starts

	for _, ev := range allEvents {
		state, ok := f.machine.Fire(context.Background(), ev)
		assert.False(t, ok, ev.String())
		assert.Equal(t, domain.StateAdminOverride, state)
	}
	assert.Equal(t, asserts, f.lock.asserts)
	assert.Equal(t, starts, f.watchdog.starts)
}

var allStates = []domain.LockState{
	domain.StateInitializing,
	domain.StateUnprivileged,
	domain.StateEnforced,
	domain.StateSuspended,
	domain.StateAdminOverride,
}

var allEvents = []domain.LockEvent{
	domain.LockEventExcursionStart,
	domain.LockEventExcursionEnd,
	domain.LockEventResume,
	domain.LockEventAdminUnlock,
}

// Every (state, event) pair outside the table leaves the state unchanged.
func TestLockMachine_Exhaustive(t *testing.T) {
	expected := map[domain.LockState]map[domain.LockEvent]domain.LockState{
		domain.StateEnforced: {
			domain.LockEventExcursionStart: domain.StateSuspended,
			domain.LockEventResume:         domain.StateEnforced,
			domain.LockEventAdminUnlock:    domain.StateAdminOverride,
		},
		domain.StateSuspended: {
			domain.LockEventExcursionEnd: domain.StateEnforced,
			domain.LockEventResume:       domain.StateEnforced,
			domain.LockEventAdminUnlock:  domain.StateAdminOverride,
		},
	}

	for _, from := range allStates {
		for _, ev := range allEvents {
			t.Run(from.String()+"/"+ev.String(), func(t *testing.T) {
				f := newMachineFixture(true, true)
				f.forceState(t, from)

				state, ok := f.machine.Fire(context.Background(), ev)

				want, listed := expected[from][ev]
				if !listed {
					want = from
				}
				assert.Equal(t, listed, ok)
				assert.Equal(t, want, state)
				assert.Equal(t, want, f.machine.State())
			})
		}
	}
}

func TestLockMachine_InstrumentationSeesTransitions(t *testing.T) {
	f := newMachineFixture(true, true)
	ctx := context.Background()

	f.machine.Init(ctx)
	f.machine.Fire(ctx, domain.LockEventExcursionStart)
	f.machine.Fire(ctx, domain.LockEventResume)

	assert.Equal(t, [][2]domain.LockState{
		{domain.StateInitializing, domain.StateEnforced},
		{domain.StateEnforced, domain.StateSuspended},
		{domain.StateSuspended, domain.StateEnforced},
	}, f.instr.changes)
}

func TestLockState_TerminalMatchesTable(t *testing.T) {
	for _, s := range allStates {
		if s == domain.StateInitializing {
			continue // left only through Init
		}
		outgoing := false
		for _, ev := range allEvents {
			if _, ok := NextState(s, ev); ok {
				outgoing = true
			}
		}
		assert.Equal(t, !outgoing, s.Terminal(), s.String())
	}
}
