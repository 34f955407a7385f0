package infra

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner abstracts command execution for testing.
type CommandRunner interface {
	// Run executes a command and waits for it to complete.
	Run(ctx context.Context, name string, args ...string) error

	// Output executes a command and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)

	// Start launches a command without waiting for it.
	Start(name string, args ...string) error

	// LookPath reports where an executable is found on PATH.
	LookPath(name string) (string, error)
}

// RealCommandRunner executes real system commands.
type RealCommandRunner struct{}

// Run executes a command and waits for it to complete. Stderr is folded into the error.
func (r *RealCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Output executes a command and returns its stdout.
func (r *RealCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Start launches a command detached from the caller's context and reaps it in the background.
func (r *RealCommandRunner) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// LookPath wraps exec.LookPath.
func (r *RealCommandRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// expandArgs substitutes {key} placeholders in a command template.
func expandArgs(template []string, vars map[string]string) []string {
	out := make([]string, len(template))
	for i, arg := range template {
		for k, v := range vars {
			arg = strings.ReplaceAll(arg, "{"+k+"}", v)
		}
		out[i] = arg
	}
	return out
}
