// Package metrics collects the host and sandbox-runtime health data served
// by the operator endpoint.
package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSnapshot is the host's resource picture at one moment. Executions
// compete for these resources, so operators watch them alongside the
// session count.
type HostSnapshot struct {
	CPU     CPUStats    `json:"cpu"`
	Memory  MemoryStats `json:"memory"`
	LoadAvg []float64   `json:"load_avg"` // 1, 5, 15 min
	Uptime  int64       `json:"uptime"`   // seconds
	GOOS    string      `json:"os"`
	Arch    string      `json:"arch"`
}

// CPUStats is aggregate CPU usage.
type CPUStats struct {
	UsagePercent float64 `json:"usage_percent"`
	Cores        int     `json:"cores"`
}

// MemoryStats is physical memory usage.
type MemoryStats struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
}

// GetHostSnapshot collects the snapshot, running the slow probes in
// parallel. Individual probe failures leave their section zeroed rather
// than failing the whole snapshot.
func GetHostSnapshot(ctx context.Context) *HostSnapshot {
	snap := &HostSnapshot{
		GOOS: runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	wg.Add(1)
	go func() {
		defer wg.Done()
		if ctx.Err() != nil {
			return
		}
		percents, err := cpu.Percent(200*time.Millisecond, false)
		if err == nil && len(percents) > 0 {
			mu.Lock()
			snap.CPU.UsagePercent = percents[0]
			mu.Unlock()
		}
		if cores, err := cpu.Counts(true); err == nil {
			mu.Lock()
			snap.CPU.Cores = cores
			mu.Unlock()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if ctx.Err() != nil {
			return
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			mu.Lock()
			snap.Memory = MemoryStats{
				Total:       vm.Total,
				Used:        vm.Used,
				Available:   vm.Available,
				UsedPercent: vm.UsedPercent,
			}
			mu.Unlock()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if ctx.Err() != nil {
			return
		}
		if avg, err := load.Avg(); err == nil {
			mu.Lock()
			snap.LoadAvg = []float64{avg.Load1, avg.Load5, avg.Load15}
			mu.Unlock()
		}
		if up, err := host.Uptime(); err == nil {
			mu.Lock()
			snap.Uptime = int64(up)
			mu.Unlock()
		}
	}()

	wg.Wait()
	return snap
}
