package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/codedeck/runner/internal/models"
	"github.com/creack/pty"
)

// Spec describes one command for the process backend.
type Spec struct {
	// Args is the argv; Args[0] is the program.
	Args []string
	// Dir is the working directory (the per-run workspace).
	Dir string
	// Terminal attaches stdin/stdout to a pseudo-terminal so runtime
	// prompts that skip the newline still get flushed. Stderr stays a
	// plain pipe so the two streams remain separable.
	Terminal bool
}

// ProcessBackend spawns the interpreter/compiler directly on the host with
// all three stdio streams pipe-connected, never inherited. Each process
// runs in its own process group so a kill takes its children with it.
type ProcessBackend struct{}

// NewProcessBackend creates the host-process execution strategy.
func NewProcessBackend() *ProcessBackend {
	return &ProcessBackend{}
}

// Run executes a command to completion, collecting capped output. Used for
// compile steps, which take no stdin. A timeout force-kills the process
// group and is reported through TimedOut with the 124 sentinel, not as an
// error. Errors are reserved for the machinery failing.
func (b *ProcessBackend) Run(ctx context.Context, spec Spec, timeout time.Duration, maxOutput int) (*RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = buildEnv(spec.Dir)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	stdout := NewOutputBuffer(maxOutput)
	stderr := NewOutputBuffer(maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := &RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = models.ExitCodeTimeout
		return result, nil
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, spawnError(spec.Args[0], runErr)
	}

	return result, nil
}

// Start launches a command for supervised, possibly interactive execution.
// The caller owns the returned handle and must Release it.
func (b *ProcessBackend) Start(spec Spec) (Handle, error) {
	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = buildEnv(spec.Dir)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	h := &processHandle{
		cmd:  cmd,
		out:  make(chan Chunk, 64),
		done: make(chan ExitStatus, 1),
	}

	var stdoutR io.Reader
	var stderrR io.Reader

	if spec.Terminal {
		ptmx, tty, err := pty.Open()
		if err != nil {
			return nil, spawnError(spec.Args[0], err)
		}
		cmd.Stdin = tty
		cmd.Stdout = tty
		stderrPipe, err := cmd.StderrPipe()
		if err != nil {
			_ = ptmx.Close()
			_ = tty.Close()
			return nil, spawnError(spec.Args[0], err)
		}
		if err := cmd.Start(); err != nil {
			_ = ptmx.Close()
			_ = tty.Close()
			return nil, spawnError(spec.Args[0], err)
		}
		// The child holds its own copy of the tty now.
		_ = tty.Close()
		h.ptmx = ptmx
		h.stdin = ptmx
		stdoutR = ptmx
		stderrR = stderrPipe
	} else {
		stdinPipe, err := cmd.StdinPipe()
		if err != nil {
			return nil, spawnError(spec.Args[0], err)
		}
		stdoutPipe, err := cmd.StdoutPipe()
		if err != nil {
			return nil, spawnError(spec.Args[0], err)
		}
		stderrPipe, err := cmd.StderrPipe()
		if err != nil {
			return nil, spawnError(spec.Args[0], err)
		}
		if err := cmd.Start(); err != nil {
			return nil, spawnError(spec.Args[0], err)
		}
		h.stdin = stdinPipe
		stdoutR = stdoutPipe
		stderrR = stderrPipe
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go h.readLoop(stdoutR, Stdout, &readers)
	go h.readLoop(stderrR, Stderr, &readers)

	go func() {
		readers.Wait()
		close(h.out)

		status := ExitStatus{}
		if err := cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				status.Code = exitErr.ExitCode()
			} else {
				status.Err = err
			}
		}
		h.done <- status
	}()

	return h, nil
}

type processHandle struct {
	cmd   *exec.Cmd
	stdin io.Writer
	ptmx  *os.File

	out  chan Chunk
	done chan ExitStatus

	killOnce    sync.Once
	releaseOnce sync.Once
}

func (h *processHandle) Output() <-chan Chunk {
	return h.out
}

func (h *processHandle) Done() <-chan ExitStatus {
	return h.done
}

func (h *processHandle) WriteStdin(data string) error {
	_, err := io.WriteString(h.stdin, data)
	return err
}

func (h *processHandle) Kill() {
	h.killOnce.Do(func() {
		if h.cmd.Process != nil {
			// Negative pid kills the whole process group.
			_ = syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL)
		}
	})
}

func (h *processHandle) Release() {
	h.releaseOnce.Do(func() {
		if c, ok := h.stdin.(io.Closer); ok {
			_ = c.Close()
		}
		if h.ptmx != nil && h.stdin != h.ptmx {
			_ = h.ptmx.Close()
		}
	})
}

func (h *processHandle) readLoop(r io.Reader, stream Stream, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.out <- Chunk{Stream: stream, Data: string(buf[:n])}
		}
		if err != nil {
			// A pty reports the child closing its side as EIO.
			return
		}
	}
}

// buildEnv gives the child a minimal environment. The host PATH is kept so
// configured toolchains resolve, but nothing else from the server process
// leaks through.
func buildEnv(workDir string) []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = "/usr/local/bin:/usr/bin:/bin"
	}
	return []string{
		"PATH=" + path,
		"HOME=" + workDir,
		"TMPDIR=" + workDir,
		"LANG=en_US.UTF-8",
		"TERM=dumb",
	}
}

func spawnError(program string, err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return &InfraError{
			Reason: fmt.Sprintf("toolchain not available: %s", program),
			Hint:   "install it or point the languages config at the right binary",
		}
	}
	return &InfraError{Reason: fmt.Sprintf("failed to start %s: %v", program, err)}
}
