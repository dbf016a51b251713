package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"gorm.io/gorm"

	"github.com/jmylchreest/encodarr/internal/supervisor"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
	sup       *supervisor.Supervisor
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the database connection for health checks.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// WithSupervisor sets the supervisor for running-job counts.
func (h *HealthHandler) WithSupervisor(sup *supervisor.Supervisor) *HealthHandler {
	h.sup = sup
	return h
}

// MemoryInfo describes host memory usage.
type MemoryInfo struct {
	TotalMB     float64 `json:"total_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// CPUInfo describes host CPU load.
type CPUInfo struct {
	Cores    int     `json:"cores"`
	Load1Min float64 `json:"load_1min"`
	Load5Min float64 `json:"load_5min"`
}

// DatabaseHealth describes database connectivity.
type DatabaseHealth struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status        string         `json:"status"`
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	CPU           CPUInfo        `json:"cpu"`
	Memory        MemoryInfo     `json:"memory"`
	Database      DatabaseHealth `json:"database"`
	RunningJobs   int            `json:"running_jobs"`
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/api/v1/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service including system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	dbHealth := h.databaseHealth(ctx)

	status := "healthy"
	if dbHealth.Status != "ok" {
		status = "degraded"
	}

	running := 0
	if h.sup != nil {
		running = h.sup.RunningCount()
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			CPU:           h.cpuInfo(ctx),
			Memory:        h.memoryInfo(ctx),
			Database:      dbHealth,
			RunningJobs:   running,
		},
	}, nil
}

// cpuInfo returns host CPU load. Errors yield zero readings, health
// never fails on a metrics hiccup.
func (h *HealthHandler) cpuInfo(ctx context.Context) CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		info.Load1Min = avg.Load1
		info.Load5Min = avg.Load5
	}
	return info
}

// memoryInfo returns host memory usage.
func (h *HealthHandler) memoryInfo(ctx context.Context) MemoryInfo {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryInfo{}
	}
	return MemoryInfo{
		TotalMB:     float64(vm.Total) / 1024 / 1024,
		UsedMB:      float64(vm.Used) / 1024 / 1024,
		UsedPercent: vm.UsedPercent,
	}
}

// databaseHealth pings the database and measures round-trip latency.
func (h *HealthHandler) databaseHealth(ctx context.Context) DatabaseHealth {
	if h.db == nil {
		return DatabaseHealth{Status: "not_configured"}
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		return DatabaseHealth{Status: "error", Error: err.Error()}
	}

	start := time.Now()
	if err := sqlDB.PingContext(ctx); err != nil {
		return DatabaseHealth{Status: "error", Error: err.Error()}
	}
	return DatabaseHealth{
		Status:    "ok",
		LatencyMs: time.Since(start).Milliseconds(),
	}
}
