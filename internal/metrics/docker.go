package metrics

import (
	"context"

	"github.com/docker/docker/client"
)

// SandboxRuntimeStatus reports whether the container runtime backing the
// compiled-language sandbox is reachable. Unavailability here is an
// infrastructure condition, not a code error, and is surfaced to
// operators before a user ever hits it.
type SandboxRuntimeStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// GetSandboxRuntimeStatus probes the container runtime.
func GetSandboxRuntimeStatus(ctx context.Context) *SandboxRuntimeStatus {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return &SandboxRuntimeStatus{Error: err.Error()}
	}
	defer func() { _ = cli.Close() }()

	ping, err := cli.Ping(ctx)
	if err != nil {
		return &SandboxRuntimeStatus{Error: err.Error()}
	}

	return &SandboxRuntimeStatus{
		Available: true,
		Version:   ping.APIVersion,
	}
}
