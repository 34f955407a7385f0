package infra

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// ErrPromptCancelled means the operator dismissed the credential prompt.
var ErrPromptCancelled = errors.New("prompt cancelled")

// CommandNotifier implements domain.Notifier. Every message is logged; when
// a command is configured the message is also appended to it as the last
// argument (e.g. notify-send).
type CommandNotifier struct {
	command []string
	runner  CommandRunner
	logger  *zap.Logger
}

// NewCommandNotifier creates a notifier.
func NewCommandNotifier(command []string, logger *zap.Logger) *CommandNotifier {
	return NewCommandNotifierWithRunner(command, &RealCommandRunner{}, logger)
}

// NewCommandNotifierWithRunner creates a notifier with an injectable runner (for testing).
func NewCommandNotifierWithRunner(command []string, runner CommandRunner, logger *zap.Logger) *CommandNotifier {
	return &CommandNotifier{command: command, runner: runner, logger: logger}
}

// Notify surfaces message to the user.
func (n *CommandNotifier) Notify(ctx context.Context, message string) error {
	n.logger.Info("user notice", zap.String("message", message))
	if len(n.command) == 0 {
		return nil
	}
	args := append(append([]string{}, n.command[1:]...), message)
	return n.runner.Run(ctx, n.command[0], args...)
}

// CommandPrompter implements domain.CredentialPrompter by running a dialog
// command (zenity --password by default) and reading stdout.
type CommandPrompter struct {
	command []string
	runner  CommandRunner
}

// NewCommandPrompter creates a prompter.
func NewCommandPrompter(command []string) *CommandPrompter {
	return NewCommandPrompterWithRunner(command, &RealCommandRunner{})
}

// NewCommandPrompterWithRunner creates a prompter with an injectable runner (for testing).
func NewCommandPrompterWithRunner(command []string, runner CommandRunner) *CommandPrompter {
	return &CommandPrompter{command: command, runner: runner}
}

// Prompt runs the dialog. "{title}" in the template is replaced with title.
// A non-zero exit (dialog closed) is reported as ErrPromptCancelled.
func (p *CommandPrompter) Prompt(ctx context.Context, title string) (string, error) {
	if len(p.command) == 0 {
		return "", errors.New("no prompt command configured")
	}
	argv := expandArgs(p.command, map[string]string{"title": title})
	out, err := p.runner.Output(ctx, argv[0], argv[1:]...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.Join(ErrPromptCancelled, err)
	}
	return strings.TrimRight(string(out), "\r\n"), nil
}

// Ensure implementations satisfy the domain interfaces.
var (
	_ domain.Notifier           = (*CommandNotifier)(nil)
	_ domain.CredentialPrompter = (*CommandPrompter)(nil)
)
