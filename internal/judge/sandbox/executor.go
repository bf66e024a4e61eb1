package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// killGrace is how long a cancelled command has between SIGTERM and SIGKILL.
const killGrace = time.Second

// CommandResult is the outcome of a host command.
type CommandResult struct {
	Cmd      string
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandExecutor runs host commands. A non-zero exit is not an error.
type CommandExecutor interface {
	Run(ctx context.Context, stdin string, name string, args ...string) (CommandResult, error)
}

// ShellExecutor runs commands with os/exec.
type ShellExecutor struct{}

// Run starts the command and waits for it. Cancelling ctx sends SIGTERM and
// escalates to SIGKILL after killGrace.
func (ShellExecutor) Run(ctx context.Context, stdin string, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(unix.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	result := CommandResult{Cmd: cmd.String()}
	err := cmd.Run()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, nil
	}
	if err != nil {
		return result, err
	}
	return result, nil
}
