// Package sandbox provides the execution strategies for untrusted code:
// direct host processes for interpreted and JVM languages, and hardened
// containers for natively compiled code. Both strategies expose the same
// two operations: a collecting Run for build steps and a streaming Start
// for the program itself.
package sandbox

import (
	"fmt"
	"time"
)

// Stream tags an output chunk with its origin. Stdout and stderr are
// independent pipes with no cross-stream ordering guarantee.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// Chunk is one piece of process output, delivered in pipe order per stream.
type Chunk struct {
	Stream Stream
	Data   string
}

// ExitStatus is the final word from a supervised process.
type ExitStatus struct {
	Code int
	// Err is set when the process could not be waited on at all, not for
	// ordinary nonzero exits.
	Err error
}

// Handle is a live, streaming execution. The monitor consumes Output and
// Done as a race; WriteStdin feeds the program between rounds of an
// interactive session and never closes the pipe.
type Handle interface {
	// Output delivers stdout/stderr chunks as they are produced. The
	// channel closes when both pipes reach EOF.
	Output() <-chan Chunk
	// Done yields exactly one ExitStatus after the process exits.
	Done() <-chan ExitStatus
	// WriteStdin appends data to the program's stdin, leaving it open.
	WriteStdin(data string) error
	// Kill force-terminates the program and everything it spawned.
	// Untrusted code gets no graceful-shutdown courtesy.
	Kill()
	// Release frees pipes, pty pairs and container handles. Safe to call
	// more than once; must be called on every path.
	Release()
}

// RunResult is the outcome of a collecting (non-interactive) run.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// InfraError marks failures of the execution machinery itself (a missing
// toolchain, an unreachable container runtime) as opposed to anything
// wrong with the submitted code. Hint carries operator remediation detail
// that is only surfaced outside production.
type InfraError struct {
	Reason string
	Hint   string
}

func (e *InfraError) Error() string {
	if e.Hint == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (%s)", e.Reason, e.Hint)
}
