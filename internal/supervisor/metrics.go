package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/jmylchreest/encodarr/internal/events"
	"github.com/jmylchreest/encodarr/internal/models"
)

const defaultMetricsInterval = 5 * time.Second

// RunMetricsPublisher samples host CPU and memory on the configured
// interval and publishes the readings on the system.metrics topic.
// It blocks until the context is cancelled.
func (s *Supervisor) RunMetricsPublisher(ctx context.Context) {
	interval := s.cfg.MetricsInterval
	if interval <= 0 {
		interval = defaultMetricsInterval
	}

	// Prime the CPU delta so the first tick reports a real value.
	cpu.PercentWithContext(ctx, 0, false)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("host metrics publisher started",
		slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.bus.Publish(events.TopicSystemMetrics, models.ULID{}, s.sampleHost(ctx))
		}
	}
}

// sampleHost reads host CPU and memory. Errors yield zero readings.
func (s *Supervisor) sampleHost(ctx context.Context) events.MetricsPayload {
	payload := events.MetricsPayload{
		RunningJobs: s.RunningCount(),
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		payload.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		payload.MemoryPercent = vm.UsedPercent
		payload.MemoryUsedMB = float64(vm.Used) / 1024 / 1024
	}

	return payload
}
