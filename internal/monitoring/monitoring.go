// Package monitoring collects host metrics for the health endpoint.
package monitoring

import (
	"context"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostMetrics contains system metrics of the portal host.
type HostMetrics struct {
	CPUUsage       float64 `json:"cpu_usage"`
	MemoryUsage    float64 `json:"memory_usage"`
	DiskUsage      float64 `json:"disk_usage"`
	DiskFreeBytes  int64   `json:"disk_free_bytes"`
	DiskTotalBytes int64   `json:"disk_total_bytes"`
	UptimeSeconds  int64   `json:"uptime_seconds"`
}

// Collector gathers host metrics. diskPath points at the volume
// attachments are stored on, so the health endpoint reflects the disk
// that actually fills up.
type Collector struct {
	startTime time.Time
	diskPath  string
}

// NewCollector creates a collector. diskPath may be empty; the root
// filesystem is monitored then.
func NewCollector(diskPath string) *Collector {
	if diskPath == "" {
		diskPath = "/"
		if runtime.GOOS == "windows" {
			diskPath = "C:\\"
		}
	}
	return &Collector{
		startTime: time.Now(),
		diskPath:  diskPath,
	}
}

// Collect gathers the current host metrics. Individual probes that
// fail leave their fields zero rather than failing the whole check.
func (c *Collector) Collect(ctx context.Context) *HostMetrics {
	m := &HostMetrics{
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
	}

	if cpuPercent, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(cpuPercent) > 0 {
		m.CPUUsage = cpuPercent[0]
	}

	if memStat, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		m.MemoryUsage = memStat.UsedPercent
	}

	if diskStat, err := disk.UsageWithContext(ctx, c.diskPath); err == nil {
		m.DiskUsage = diskStat.UsedPercent
		m.DiskFreeBytes = int64(diskStat.Free)
		m.DiskTotalBytes = int64(diskStat.Total)
	}

	return m
}

// HostInfo returns static information about the portal host.
func HostInfo() map[string]string {
	hostname, _ := os.Hostname()
	return map[string]string{
		"os":       runtime.GOOS,
		"arch":     runtime.GOARCH,
		"hostname": hostname,
		"version":  osVersion(),
	}
}

func osVersion() string {
	if runtime.GOOS != "linux" {
		return runtime.GOOS
	}
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return runtime.GOOS
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "PRETTY_NAME=") {
			return strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), "\"")
		}
	}
	return runtime.GOOS
}
