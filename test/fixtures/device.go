// Package fixtures provides a scripted kiosk device for integration tests.
package fixtures

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
	"github.com/eliteGoblin/focusd/kioskd/internal/infra"
)

// Clock is a manually advanced clock shared by the usage log and observer.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock stopped at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Device stands in for the platform. Foreground changes go into a real
// UsageEventLog; the lock, launcher, notifier and prompter only record.
type Device struct {
	Clock *Clock
	Usage *infra.UsageEventLog

	mu            sync.Mutex
	privileged    bool
	lockPermitted bool
	held          bool
	asserts       int
	fronts        []domain.AppID
	homes         int
	messages      []string
	pin           string
	prompts       int
	onPrompt      func()
}

// NewDevice creates a privileged device whose lock primitive is permitted.
func NewDevice(clock *Clock) *Device {
	return &Device{
		Clock:         clock,
		Usage:         infra.NewUsageEventLogWithClock(time.Hour, clock.Now),
		privileged:    true,
		lockPermitted: true,
	}
}

// Foreground records app moving to the foreground, then advances the clock
// by one second.
func (d *Device) Foreground(app domain.AppID) {
	d.Usage.Append(domain.ForegroundEvent{
		Timestamp: d.Clock.Now(),
		App:       app,
		Kind:      domain.EventMovedToForeground,
	})
	d.Clock.Advance(time.Second)
}

// SetPrivileged changes the platform privilege answers.
func (d *Device) SetPrivileged(privileged, lockPermitted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.privileged = privileged
	d.lockPermitted = lockPermitted
}

// OnPrompt runs fn while the credential prompt is open.
func (d *Device) OnPrompt(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onPrompt = fn
}

// SetPIN sets what the operator types at the credential prompt.
func (d *Device) SetPIN(pin string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pin = pin
}

func (d *Device) IsPrivileged() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.privileged
}

func (d *Device) IsLockPrimitivePermitted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lockPermitted
}

func (d *Device) AssertLock(ctx context.Context, allowed []domain.AppID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.asserts++
	d.held = true
	return nil
}

func (d *Device) ReleaseLock(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.held = false
	return nil
}

func (d *Device) Held() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.held
}

func (d *Device) BringToFront(ctx context.Context, id domain.AppID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fronts = append(d.fronts, id)
	return nil
}

func (d *Device) LaunchHome(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.homes++
	return nil
}

func (d *Device) Notify(ctx context.Context, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, message)
	return nil
}

func (d *Device) Prompt(ctx context.Context, title string) (string, error) {
	d.mu.Lock()
	d.prompts++
	pin, onPrompt := d.pin, d.onPrompt
	d.mu.Unlock()

	if onPrompt != nil {
		onPrompt()
	}
	if pin == "" {
		return "", errors.New("prompt dismissed")
	}
	return pin, nil
}

// Fronts returns every BringToFront target in call order.
func (d *Device) Fronts() []domain.AppID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.AppID(nil), d.fronts...)
}

// Asserts returns how many times the lock was asserted.
func (d *Device) Asserts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.asserts
}

// Homes returns how many times the home launcher was invoked.
func (d *Device) Homes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.homes
}

// Messages returns every notification in order.
func (d *Device) Messages() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.messages...)
}

// Prompts returns how many times the credential prompt was shown.
func (d *Device) Prompts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prompts
}

var (
	_ domain.PrivilegeChecker   = (*Device)(nil)
	_ domain.LockPrimitive      = (*Device)(nil)
	_ domain.Launcher           = (*Device)(nil)
	_ domain.Notifier           = (*Device)(nil)
	_ domain.CredentialPrompter = (*Device)(nil)
)
