package notify

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/skycast/internal/observability"
)

// LogNotifier "shows" notifications by logging them. The permission answer is fixed at
// construction and stands in for the user's response to the prompt.
type LogNotifier struct {
	mu         sync.Mutex
	logger     *zap.Logger
	answer     Permission
	permission Permission
}

// NewLogNotifier creates a LogNotifier that grants permission when asked if grant is true.
func NewLogNotifier(logger *zap.Logger, grant bool) *LogNotifier {
	answer := PermissionDenied
	if grant {
		answer = PermissionGranted
	}
	return &LogNotifier{logger: observability.OrNop(logger), answer: answer, permission: PermissionDefault}
}

func (n *LogNotifier) Permission() Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.permission
}

func (n *LogNotifier) RequestPermission(ctx context.Context) (Permission, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.permission = n.answer
	return n.permission, nil
}

func (n *LogNotifier) Show(ctx context.Context, p Payload) error {
	n.logger.Info("notification",
		zap.String("title", p.Title),
		zap.String("body", p.Body),
		zap.String("tag", p.Tag))
	return nil
}

// ExecNotifier shows desktop notifications with a notify-send compatible command.
// Permission is granted when the command is on PATH.
type ExecNotifier struct {
	command string
	appName string
	run     func(ctx context.Context, name string, args ...string) error
}

// NewExecNotifier creates an ExecNotifier. An empty command means "notify-send".
func NewExecNotifier(command, appName string) *ExecNotifier {
	if command == "" {
		command = "notify-send"
	}
	return &ExecNotifier{command: command, appName: appName, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return nil
}

func (n *ExecNotifier) Permission() Permission {
	if _, err := exec.LookPath(n.command); err != nil {
		return PermissionDenied
	}
	return PermissionGranted
}

func (n *ExecNotifier) RequestPermission(ctx context.Context) (Permission, error) {
	return n.Permission(), nil
}

func (n *ExecNotifier) Show(ctx context.Context, p Payload) error {
	var args []string
	if n.appName != "" {
		args = append(args, "--app-name="+n.appName)
	}
	if p.Icon != "" {
		args = append(args, "--icon="+p.Icon)
	}
	if p.Tag != "" {
		args = append(args, "--hint=string:x-canonical-private-synchronous:"+p.Tag)
	}
	args = append(args, "--", p.Title, p.Body)
	return n.run(ctx, n.command, args...)
}
