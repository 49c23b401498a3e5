package transcoder

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// Usage is a point-in-time resource sample of the ffmpeg process.
type Usage struct {
	PID        int     `json:"pid"`
	CPUPercent float64 `json:"cpuPercent"`
	RSSBytes   uint64  `json:"rssBytes"`
}

// sampleUsage reads CPU and memory figures for pid.
func sampleUsage(pid int) (Usage, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return Usage{}, fmt.Errorf("find process %d: %w", pid, err)
	}
	u := Usage{PID: pid}
	if cpu, err := proc.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return u, fmt.Errorf("memory info for %d: %w", pid, err)
	}
	if mem != nil {
		u.RSSBytes = mem.RSS
	}
	return u, nil
}
