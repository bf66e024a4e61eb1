package sandbox

import (
	"errors"
	"fmt"
	"strings"

	appErr "contestjudge/pkg/errors"
)

const (
	exitTimeout = 124
	exitSIGTERM = 143
	exitSIGKILL = 137
)

// oomMarkers are printed by language runtimes that die of memory exhaustion
// without being killed by the kernel.
var oomMarkers = []string{
	"java.lang.OutOfMemoryError",
	"MemoryError",
	"std::bad_alloc",
}

// ExecError is a non-zero exit that is neither a timeout nor an OOM kill.
type ExecError struct {
	ExitCode int
	Output   string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("command exited with code %d: %s", e.ExitCode, e.Output)
}

// IsTimeout reports whether err is a sandbox wall-clock timeout.
func IsTimeout(err error) bool {
	return appErr.Is(err, appErr.SandboxTimeout)
}

// IsOOM reports whether err is an out-of-memory termination.
func IsOOM(err error) bool {
	return appErr.Is(err, appErr.SandboxOOM)
}

// AsExecError extracts the unclassified exit from err.
func AsExecError(err error) (*ExecError, bool) {
	var e *ExecError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsProvision reports whether err came from creating, starting or filling a sandbox.
func IsProvision(err error) bool {
	return appErr.Is(err, appErr.SandboxProvisionFailed)
}

// classifyExit maps an exit status of a sandboxed command to an error.
func classifyExit(exitCode int, output string) error {
	switch exitCode {
	case 0:
		return nil
	case exitTimeout, exitSIGTERM:
		return appErr.New(appErr.SandboxTimeout)
	case exitSIGKILL:
		return appErr.New(appErr.SandboxOOM)
	}
	for _, marker := range oomMarkers {
		if strings.Contains(output, marker) {
			return appErr.New(appErr.SandboxOOM).WithDetail("marker", marker)
		}
	}
	return appErr.Wrap(&ExecError{ExitCode: exitCode, Output: output}, appErr.SandboxExecFailed)
}
