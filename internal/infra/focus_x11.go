package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// ErrNoActiveWindow means the X server reports no focused window.
var ErrNoActiveWindow = errors.New("no active window")

// X11FocusProbe resolves the focused application on an X11 session using xprop.
// The identifier is the WM_CLASS class (lower-cased), falling back to the
// process name of _NET_WM_PID.
type X11FocusProbe struct {
	runner CommandRunner
	pm     domain.ProcessManager
}

// NewX11FocusProbe creates a probe backed by real xprop invocations.
func NewX11FocusProbe(pm domain.ProcessManager) *X11FocusProbe {
	return NewX11FocusProbeWithDeps(&RealCommandRunner{}, pm)
}

// NewX11FocusProbeWithDeps creates a probe with injectable dependencies (for testing).
func NewX11FocusProbeWithDeps(runner CommandRunner, pm domain.ProcessManager) *X11FocusProbe {
	return &X11FocusProbe{runner: runner, pm: pm}
}

// Current returns the identifier of the focused application.
func (p *X11FocusProbe) Current(ctx context.Context) (domain.AppID, error) {
	out, err := p.runner.Output(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return "", fmt.Errorf("xprop failed (no X11?): %w", err)
	}
	windowID, err := parseActiveWindow(string(out))
	if err != nil {
		return "", err
	}

	out, err = p.runner.Output(ctx, "xprop", "-id", windowID, "WM_CLASS", "_NET_WM_PID")
	if err != nil {
		return "", fmt.Errorf("failed to query window %s: %w", windowID, err)
	}
	class, pid := parseWindowProps(string(out))
	if class != "" {
		return domain.AppID(class), nil
	}
	if pid > 0 && p.pm != nil {
		name, err := p.pm.NameOf(pid)
		if err == nil && name != "" {
			return domain.AppID(strings.ToLower(name)), nil
		}
	}
	return "", fmt.Errorf("window %s has no WM_CLASS or _NET_WM_PID", windowID)
}

// parseActiveWindow extracts the window id from
// "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x3a00007".
func parseActiveWindow(out string) (string, error) {
	fields := strings.Fields(out)
	if len(fields) < 5 {
		return "", errors.New("unexpected xprop output")
	}
	id := strings.TrimSuffix(fields[4], ",")
	if id == "0x0" {
		return "", ErrNoActiveWindow
	}
	return id, nil
}

// parseWindowProps reads WM_CLASS and _NET_WM_PID lines:
//
//	WM_CLASS(STRING) = "Navigator", "firefox"
//	_NET_WM_PID(CARDINAL) = 4242
func parseWindowProps(out string) (class string, pid int) {
	for _, line := range strings.Split(out, "\n") {
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		switch {
		case strings.HasPrefix(name, "WM_CLASS"):
			parts := strings.Split(value, ",")
			last := strings.Trim(strings.TrimSpace(parts[len(parts)-1]), `"`)
			class = strings.ToLower(last)
		case strings.HasPrefix(name, "_NET_WM_PID"):
			if n, err := strconv.Atoi(value); err == nil {
				pid = n
			}
		}
	}
	return class, pid
}
