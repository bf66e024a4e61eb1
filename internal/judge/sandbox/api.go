// Package sandbox runs untrusted submissions inside throwaway containers.
package sandbox

import "context"

// Handle identifies one provisioned sandbox.
type Handle struct {
	Name string
}

// ExecRequest describes one command run inside a sandbox.
type ExecRequest struct {
	Command []string
	// Stdin is piped to the command.
	Stdin string
	// TimeLimitMs bounds wall-clock time. Zero means unbounded.
	TimeLimitMs int64
}

// Controller provisions sandboxes and runs commands in them.
// Exec returns the command's stdout; abnormal termination is reported as
// a timeout, an out-of-memory kill or an *ExecError.
type Controller interface {
	Create(ctx context.Context, image string, memoryLimitMB int64, name string) (Handle, error)
	Start(ctx context.Context, h Handle) error
	CopyIn(ctx context.Context, h Handle, sourceFile, destinationPath string) error
	Exec(ctx context.Context, h Handle, req ExecRequest) (string, error)
	Kill(ctx context.Context, h Handle) error
}
