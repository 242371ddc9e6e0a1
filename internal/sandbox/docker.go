package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"github.com/codedeck/runner/internal/config"
	"github.com/codedeck/runner/internal/models"
)

// ContainerSpec describes one command for the container backend.
type ContainerSpec struct {
	// Args is the argv executed inside the container.
	Args []string
	// Dir is the working directory inside the container.
	Dir string
	// WorkspaceHostDir is bind-mounted read-only at the workspace mount.
	WorkspaceHostDir string
	// ScratchHostDir is bind-mounted writable at the scratch mount, where
	// compile steps leave artifacts for the run step.
	ScratchHostDir string
	// OpenStdin keeps stdin attached for interactive runs.
	OpenStdin bool
}

// DockerBackend runs the compile+run pipeline inside hardened ephemeral
// containers: no network, read-only rootfs, dropped capabilities, hard
// memory/CPU/pids limits. Used for natively compiled code.
type DockerBackend struct {
	cfg *config.SandboxConfig
}

// NewDockerBackend creates the container execution strategy.
func NewDockerBackend(cfg *config.SandboxConfig) *DockerBackend {
	return &DockerBackend{cfg: cfg}
}

func (b *DockerBackend) getClient() (*client.Client, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

// Available reports whether the container runtime responds. A negative
// answer is an infrastructure condition, never a code error.
func (b *DockerBackend) Available(ctx context.Context) bool {
	cli, err := b.getClient()
	if err != nil {
		return false
	}
	defer func() { _ = cli.Close() }()

	_, err = cli.Ping(ctx)
	return err == nil
}

// Run executes one command to completion inside a fresh container,
// collecting capped output. Used for compile and link steps.
func (b *DockerBackend) Run(ctx context.Context, spec ContainerSpec, timeout time.Duration, maxOutput int) (*RunResult, error) {
	cli, err := b.getClient()
	if err != nil {
		return nil, unavailableError(err)
	}
	defer func() { _ = cli.Close() }()

	id, err := b.createContainer(ctx, cli, spec)
	if err != nil {
		return nil, err
	}
	defer b.removeContainer(cli, id)

	attach, err := cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, &InfraError{Reason: fmt.Sprintf("container attach failed: %v", err)}
	}
	defer attach.Close()

	stdout := NewOutputBuffer(maxOutput)
	stderr := NewOutputBuffer(maxOutput)
	copied := make(chan struct{})
	go func() {
		defer close(copied)
		_, _ = stdcopy.StdCopy(stdout, stderr, attach.Reader)
	}()

	start := time.Now()
	if err := cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return nil, &InfraError{Reason: fmt.Sprintf("container start failed: %v", err)}
	}

	waitCh, errCh := cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	result := &RunResult{}
	select {
	case resp := <-waitCh:
		result.ExitCode = int(resp.StatusCode)
	case err := <-errCh:
		return nil, unavailableError(err)
	case <-timer.C:
		b.killContainer(cli, id)
		result.TimedOut = true
		result.ExitCode = models.ExitCodeTimeout
	case <-ctx.Done():
		b.killContainer(cli, id)
		result.TimedOut = true
		result.ExitCode = models.ExitCodeTimeout
	}
	result.Duration = time.Since(start)

	// Let the demuxer drain whatever the container wrote before it died.
	select {
	case <-copied:
	case <-time.After(time.Second):
	}

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	return result, nil
}

// Start launches the run step with stdin attached for interactive
// programs. The caller owns the handle and must Release it.
func (b *DockerBackend) Start(ctx context.Context, spec ContainerSpec) (Handle, error) {
	cli, err := b.getClient()
	if err != nil {
		return nil, unavailableError(err)
	}

	spec.OpenStdin = true
	id, err := b.createContainer(ctx, cli, spec)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}

	attach, err := cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		b.removeContainer(cli, id)
		_ = cli.Close()
		return nil, &InfraError{Reason: fmt.Sprintf("container attach failed: %v", err)}
	}

	if err := cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		attach.Close()
		b.removeContainer(cli, id)
		_ = cli.Close()
		return nil, &InfraError{Reason: fmt.Sprintf("container start failed: %v", err)}
	}

	h := &dockerHandle{
		backend: b,
		cli:     cli,
		id:      id,
		attach:  attach,
		out:     make(chan Chunk, 64),
		done:    make(chan ExitStatus, 1),
	}

	go func() {
		defer close(h.out)
		_, _ = stdcopy.StdCopy(
			&chunkWriter{stream: Stdout, out: h.out},
			&chunkWriter{stream: Stderr, out: h.out},
			attach.Reader,
		)
	}()

	go func() {
		waitCh, errCh := cli.ContainerWait(context.Background(), id, container.WaitConditionNotRunning)
		select {
		case resp := <-waitCh:
			h.done <- ExitStatus{Code: int(resp.StatusCode)}
		case err := <-errCh:
			h.done <- ExitStatus{Err: err}
		}
	}()

	return h, nil
}

func (b *DockerBackend) createContainer(ctx context.Context, cli *client.Client, spec ContainerSpec) (string, error) {
	name := "runner-sbx-" + uuid.New().String()[:8]

	resp, err := cli.ContainerCreate(ctx,
		b.containerConfig(spec),
		b.hostConfig(spec),
		nil, nil, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", &InfraError{
				Reason: "sandbox image not available: " + b.cfg.CImage,
				Hint:   "build or pull the image configured under sandbox.c_image",
			}
		}
		return "", unavailableError(err)
	}
	return resp.ID, nil
}

// containerConfig builds the in-container process description.
func (b *DockerBackend) containerConfig(spec ContainerSpec) *container.Config {
	return &container.Config{
		Image:      b.cfg.CImage,
		Cmd:        strslice.StrSlice(spec.Args),
		WorkingDir: spec.Dir,
		Env: []string{
			"PATH=/usr/local/bin:/usr/bin:/bin",
			"HOME=/build",
			"LANG=en_US.UTF-8",
			"TERM=dumb",
		},
		OpenStdin:       spec.OpenStdin,
		AttachStdin:     spec.OpenStdin,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}
}

// hostConfig builds the isolation and resource limits: read-only rootfs,
// all capabilities dropped, no privilege escalation, memory hard limit
// with swap disabled, CPU and pids caps, and the two workspace mounts.
func (b *DockerBackend) hostConfig(spec ContainerSpec) *container.HostConfig {
	memory := int64(b.cfg.MemoryMB) * 1024 * 1024
	pids := int64(b.cfg.PidsLimit)

	return &container.HostConfig{
		Binds: []string{
			spec.WorkspaceHostDir + ":/workspace:ro",
			spec.ScratchHostDir + ":/build",
		},
		ReadonlyRootfs: true,
		CapDrop:        strslice.StrSlice{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		NetworkMode:    "none",
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=16m",
		},
		Resources: container.Resources{
			Memory:     memory,
			MemorySwap: memory, // same as memory = no swap, OOM kill on exceed
			NanoCPUs:   int64(b.cfg.CPUs * 1e9),
			PidsLimit:  &pids,
		},
	}
}

// killContainer force-kills; errors ignored, the remove is the backstop.
func (b *DockerBackend) killContainer(cli *client.Client, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = cli.ContainerKill(ctx, id, "KILL")
}

// removeContainer is best-effort cleanup so no container leaks, even after
// an OOM kill or timeout.
func (b *DockerBackend) removeContainer(cli *client.Client, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

type dockerHandle struct {
	backend *DockerBackend
	cli     *client.Client
	id      string
	attach  types.HijackedResponse

	out  chan Chunk
	done chan ExitStatus

	killOnce    sync.Once
	releaseOnce sync.Once
}

func (h *dockerHandle) Output() <-chan Chunk {
	return h.out
}

func (h *dockerHandle) Done() <-chan ExitStatus {
	return h.done
}

func (h *dockerHandle) WriteStdin(data string) error {
	_, err := h.attach.Conn.Write([]byte(data))
	return err
}

func (h *dockerHandle) Kill() {
	h.killOnce.Do(func() {
		h.backend.killContainer(h.cli, h.id)
	})
}

func (h *dockerHandle) Release() {
	h.releaseOnce.Do(func() {
		h.attach.Close()
		h.backend.removeContainer(h.cli, h.id)
		_ = h.cli.Close()
	})
}

// chunkWriter adapts a stdcopy demux target into chunk delivery.
type chunkWriter struct {
	stream Stream
	out    chan<- Chunk
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.out <- Chunk{Stream: w.stream, Data: string(p)}
	return len(p), nil
}

func unavailableError(err error) error {
	return &InfraError{
		Reason: "container runtime unavailable",
		Hint:   fmt.Sprintf("docker daemon unreachable: %v", err),
	}
}
