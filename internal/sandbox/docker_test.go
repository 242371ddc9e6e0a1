package sandbox

import (
	"testing"

	"github.com/codedeck/runner/internal/config"
)

func testSandboxConfig() *config.SandboxConfig {
	return &config.SandboxConfig{
		CImage:    "runner-c:latest",
		MemoryMB:  128,
		CPUs:      1.0,
		PidsLimit: 64,
	}
}

func TestContainerConfig(t *testing.T) {
	b := NewDockerBackend(testSandboxConfig())

	cfg := b.containerConfig(ContainerSpec{
		Args: []string{"gcc", "main.c", "-o", "/build/program"},
		Dir:  "/workspace",
	})

	if cfg.Image != "runner-c:latest" {
		t.Errorf("expected image runner-c:latest, got %s", cfg.Image)
	}
	if len(cfg.Cmd) != 4 || cfg.Cmd[0] != "gcc" {
		t.Errorf("unexpected cmd: %v", cfg.Cmd)
	}
	if cfg.WorkingDir != "/workspace" {
		t.Errorf("expected workdir /workspace, got %s", cfg.WorkingDir)
	}
	if !cfg.NetworkDisabled {
		t.Error("expected networking disabled")
	}
	if cfg.OpenStdin || cfg.AttachStdin {
		t.Error("stdin must stay closed for collecting runs")
	}
}

func TestContainerConfig_InteractiveStdin(t *testing.T) {
	b := NewDockerBackend(testSandboxConfig())

	cfg := b.containerConfig(ContainerSpec{
		Args:      []string{"/build/program"},
		Dir:       "/workspace",
		OpenStdin: true,
	})

	if !cfg.OpenStdin || !cfg.AttachStdin {
		t.Error("expected stdin open for interactive runs")
	}
}

func TestHostConfig_Hardening(t *testing.T) {
	b := NewDockerBackend(testSandboxConfig())

	hc := b.hostConfig(ContainerSpec{
		WorkspaceHostDir: "/tmp/run-1/src",
		ScratchHostDir:   "/tmp/run-1/build",
	})

	if !hc.ReadonlyRootfs {
		t.Error("expected read-only rootfs")
	}
	if len(hc.CapDrop) != 1 || hc.CapDrop[0] != "ALL" {
		t.Errorf("expected all capabilities dropped, got %v", hc.CapDrop)
	}
	if hc.NetworkMode != "none" {
		t.Errorf("expected network mode none, got %s", hc.NetworkMode)
	}
	if len(hc.SecurityOpt) != 1 || hc.SecurityOpt[0] != "no-new-privileges" {
		t.Errorf("unexpected security options: %v", hc.SecurityOpt)
	}
}

func TestHostConfig_Mounts(t *testing.T) {
	b := NewDockerBackend(testSandboxConfig())

	hc := b.hostConfig(ContainerSpec{
		WorkspaceHostDir: "/tmp/run-1/src",
		ScratchHostDir:   "/tmp/run-1/build",
	})

	if len(hc.Binds) != 2 {
		t.Fatalf("expected 2 binds, got %v", hc.Binds)
	}
	if hc.Binds[0] != "/tmp/run-1/src:/workspace:ro" {
		t.Errorf("workspace bind must be read-only, got %s", hc.Binds[0])
	}
	if hc.Binds[1] != "/tmp/run-1/build:/build" {
		t.Errorf("scratch bind must be writable, got %s", hc.Binds[1])
	}
}

func TestHostConfig_ResourceLimits(t *testing.T) {
	b := NewDockerBackend(testSandboxConfig())

	hc := b.hostConfig(ContainerSpec{})

	wantMem := int64(128) * 1024 * 1024
	if hc.Resources.Memory != wantMem {
		t.Errorf("expected memory %d, got %d", wantMem, hc.Resources.Memory)
	}
	if hc.Resources.MemorySwap != hc.Resources.Memory {
		t.Error("swap limit must equal memory limit to disable swap")
	}
	if hc.Resources.NanoCPUs != 1e9 {
		t.Errorf("expected 1 CPU in nanocpus, got %d", hc.Resources.NanoCPUs)
	}
	if hc.Resources.PidsLimit == nil || *hc.Resources.PidsLimit != 64 {
		t.Errorf("expected pids limit 64, got %v", hc.Resources.PidsLimit)
	}
}
