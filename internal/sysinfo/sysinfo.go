// Package sysinfo reports the load of the machine the engine runs on.
package sysinfo

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

type Snapshot struct {
	Hostname         string    `json:"hostname"`
	OS               string    `json:"os"`
	UptimeSeconds    uint64    `json:"uptime_seconds"`
	CPUCores         int       `json:"cpu_cores"`
	CPUPercent       float64   `json:"cpu_percent"`
	Load1            float64   `json:"load1"`
	TotalMemoryBytes uint64    `json:"total_memory_bytes"`
	UsedMemoryBytes  uint64    `json:"used_memory_bytes"`
	TotalDiskBytes   uint64    `json:"total_disk_bytes"`
	UsedDiskBytes    uint64    `json:"used_disk_bytes"`
	CollectedAt      time.Time `json:"collected_at"`
}

type Collector struct {
	hostname string
	diskPath string
}

func NewCollector() (*Collector, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("get hostname: %w", err)
	}
	return &Collector{hostname: hostname, diskPath: "/"}, nil
}

// Collect samples the host. CPU percent is measured since the previous call,
// so the first sample may read zero.
func (c *Collector) Collect() (*Snapshot, error) {
	info, err := host.Info()
	if err != nil {
		return nil, fmt.Errorf("get host info: %w", err)
	}

	cores, err := cpu.Counts(true)
	if err != nil {
		return nil, fmt.Errorf("get cpu cores: %w", err)
	}

	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		return nil, fmt.Errorf("get cpu percent: %w", err)
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("get memory info: %w", err)
	}

	diskInfo, err := disk.Usage(c.diskPath)
	if err != nil {
		return nil, fmt.Errorf("get disk info: %w", err)
	}

	s := &Snapshot{
		Hostname:         c.hostname,
		OS:               fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion),
		UptimeSeconds:    info.Uptime,
		CPUCores:         cores,
		TotalMemoryBytes: memInfo.Total,
		UsedMemoryBytes:  memInfo.Used,
		TotalDiskBytes:   diskInfo.Total,
		UsedDiskBytes:    diskInfo.Used,
		CollectedAt:      time.Now().UTC(),
	}
	if len(cpuPercent) > 0 {
		s.CPUPercent = cpuPercent[0]
	}
	// Load averages are not available everywhere.
	if avg, err := load.Avg(); err == nil {
		s.Load1 = avg.Load1
	}
	return s, nil
}
