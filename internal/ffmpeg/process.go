package ffmpeg

import (
	"context"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"
)

// IsAlive reports whether a process with the given pid exists. Signal 0
// probes existence without delivering anything; EPERM still means the
// process is there.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

// FindOrphans returns the pids of encoder processes whose command line
// contains the given output tag. Used by the force-kill sweep to catch
// strays that escaped their process group.
func FindOrphans(ctx context.Context, tag string) ([]int, error) {
	if tag == "" {
		return nil, nil
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var pids []int
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || !strings.Contains(name, "ffmpeg") {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(cmdline, tag) {
			pids = append(pids, int(p.Pid))
		}
	}
	return pids, nil
}

// ProcessUsage holds one resource reading for an encoder process.
type ProcessUsage struct {
	CPUPercent float64
	MemoryMB   float64
}

// SampleProcess reads CPU and resident memory for a pid. Errors (for a
// process that just exited) yield a zero reading, not a failure: the
// telemetry pump keeps running on partial data.
func SampleProcess(ctx context.Context, pid int) ProcessUsage {
	var usage ProcessUsage

	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return usage
	}

	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		usage.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		usage.MemoryMB = float64(mem.RSS) / (1024 * 1024)
	}
	return usage
}
