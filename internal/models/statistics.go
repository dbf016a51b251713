package models

// StatisticsSample is one timestamped tuple of encoder progress metrics,
// parsed from a stderr progress burst and enriched with process CPU and
// memory readings. Samples are append-only per job.
type StatisticsSample struct {
	BaseModel

	// JobID is the owning job; samples cascade on job deletion.
	JobID ULID `gorm:"not null;index" json:"job_id"`

	// Timestamp is strictly monotonic per job.
	Timestamp Time `gorm:"not null;index" json:"timestamp"`

	// FPS is the current encoding frame rate.
	FPS float64 `json:"fps"`

	// BitrateBps is the current output bitrate in bits per second.
	BitrateBps int64 `json:"bitrate_bps"`

	// TotalFrames is the cumulative frame count.
	TotalFrames int64 `json:"total_frames"`

	// DroppedFrames is the cumulative dropped frame count.
	DroppedFrames int64 `json:"dropped_frames"`

	// DupFrames is the cumulative duplicated frame count.
	DupFrames int64 `json:"dup_frames"`

	// Speed is the encode speed multiplier relative to realtime.
	Speed float64 `json:"speed"`

	// CurrentTimeOffset is the encoded media position in seconds.
	CurrentTimeOffset float64 `json:"current_time_offset"`

	// OutputBytes is the cumulative output size in bytes.
	OutputBytes int64 `json:"output_bytes"`

	// CPUPercent is the encoder process CPU usage.
	CPUPercent float64 `json:"cpu_percent"`

	// MemoryMB is the encoder process resident set size in megabytes.
	MemoryMB float64 `json:"memory_mb"`

	// GPUPercent is the encoder GPU usage when known, else 0.
	GPUPercent float64 `json:"gpu_percent"`
}

// TableName returns the table name for StatisticsSample.
func (StatisticsSample) TableName() string {
	return "statistics"
}
