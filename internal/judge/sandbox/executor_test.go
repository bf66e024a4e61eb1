package sandbox_test

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"contestjudge/internal/judge/sandbox"
)

func TestShellExecutorExitCodeAndStdin(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	t.Parallel()

	res, err := sandbox.ShellExecutor{}.Run(context.Background(), "hello", "sh", "-c", "cat; echo oops >&2; exit 3")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code %d", res.ExitCode)
	}
	if res.Stdout != "hello" {
		t.Fatalf("stdout %q", res.Stdout)
	}
	if res.Stderr != "oops\n" {
		t.Fatalf("stderr %q", res.Stderr)
	}
}

func TestShellExecutorCancel(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := sandbox.ShellExecutor{}.Run(ctx, "", "sleep", "30")
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancel took %v", elapsed)
	}
}
