// Package handlers provides HTTP API handlers for encodarr.
package handlers

import (
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/encodarr/internal/compiler"
	"github.com/jmylchreest/encodarr/internal/models"
)

// Common response types

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Pagination contains pagination parameters for list requests.
type Pagination struct {
	Offset int `query:"offset" default:"0" minimum:"0" doc:"Offset for pagination"`
	Limit  int `query:"limit" default:"50" minimum:"1" maximum:"1000" doc:"Limit for pagination"`
}

// PaginationMeta contains pagination metadata in responses.
type PaginationMeta struct {
	Offset     int   `json:"offset"`
	Limit      int   `json:"limit"`
	TotalItems int64 `json:"total_items"`
}

// Job types

// JobResponse represents a job in API responses.
type JobResponse struct {
	ID              models.ULID      `json:"id"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Name            string           `json:"name"`
	Status          models.JobStatus `json:"status"`
	Priority        int              `json:"priority"`
	PID             *int             `json:"pid,omitempty"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	StoppedAt       *time.Time       `json:"stopped_at,omitempty"`
	FFmpegCommand   string           `json:"ffmpeg_command,omitempty"`
	CommandOverride string           `json:"command_override,omitempty"`
	ErrorMessage    string           `json:"error_message,omitempty"`
}

// JobFromModel converts a model to a response. The command field
// carries the effective command: the override when one is set.
func JobFromModel(j *models.Job) JobResponse {
	return JobResponse{
		ID:              j.ID,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		Name:            j.Name,
		Status:          j.Status,
		Priority:        j.Priority,
		PID:             j.PID,
		StartedAt:       j.StartedAt,
		StoppedAt:       j.StoppedAt,
		FFmpegCommand:   j.EffectiveCommand(),
		CommandOverride: j.CommandOverride,
		ErrorMessage:    j.ErrorMessage,
	}
}

// WarningResponse represents one non-fatal compile warning.
type WarningResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WarningsFromCompiler converts compile warnings to responses.
func WarningsFromCompiler(warnings []compiler.Warning) []WarningResponse {
	out := make([]WarningResponse, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, WarningResponse{
			Code:    string(w.Code),
			Message: w.Message,
		})
	}
	return out
}

// Archive types

// ArchivedJobResponse represents an archived job in API responses.
type ArchivedJobResponse struct {
	ID         models.ULID `json:"id"`
	Name       string      `json:"name"`
	ArchivedAt time.Time   `json:"archived_at"`
	Reason     string      `json:"reason,omitempty"`
}

// ArchivedJobFromModel converts a model to a response.
func ArchivedJobFromModel(a *models.ArchivedJob) ArchivedJobResponse {
	return ArchivedJobResponse{
		ID:         a.ID,
		Name:       a.Name,
		ArchivedAt: a.ArchivedAt,
		Reason:     a.Reason,
	}
}

// Statistics types

// StatisticsSampleResponse represents one telemetry sample.
type StatisticsSampleResponse struct {
	Timestamp         time.Time `json:"timestamp"`
	FPS               float64   `json:"fps"`
	BitrateBps        int64     `json:"bitrate_bps"`
	TotalFrames       int64     `json:"total_frames"`
	DroppedFrames     int64     `json:"dropped_frames"`
	DupFrames         int64     `json:"dup_frames"`
	Speed             float64   `json:"speed"`
	CurrentTimeOffset float64   `json:"current_time_offset"`
	OutputBytes       int64     `json:"output_bytes"`
	CPUPercent        float64   `json:"cpu_percent"`
	MemoryMB          float64   `json:"memory_mb"`
}

// StatisticsSampleFromModel converts a model to a response.
func StatisticsSampleFromModel(s *models.StatisticsSample) StatisticsSampleResponse {
	return StatisticsSampleResponse{
		Timestamp:         s.Timestamp,
		FPS:               s.FPS,
		BitrateBps:        s.BitrateBps,
		TotalFrames:       s.TotalFrames,
		DroppedFrames:     s.DroppedFrames,
		DupFrames:         s.DupFrames,
		Speed:             s.Speed,
		CurrentTimeOffset: s.CurrentTimeOffset,
		OutputBytes:       s.OutputBytes,
		CPUPercent:        s.CPUPercent,
		MemoryMB:          s.MemoryMB,
	}
}

// mapServiceError translates service sentinels into HTTP status errors.
// Unknown errors become 500s.
func mapServiceError(err error, action string) error {
	var problems models.ProblemList
	switch {
	case errors.As(err, &problems):
		details := make([]error, 0, len(problems))
		for _, p := range problems {
			details = append(details, &huma.ErrorDetail{
				Message:  p.Message,
				Location: "body." + p.Field,
			})
		}
		return huma.Error422UnprocessableEntity("invalid config", details...)
	case errors.Is(err, models.ErrJobNotFound),
		errors.Is(err, models.ErrArchiveNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, models.ErrDuplicateJobName),
		errors.Is(err, models.ErrJobRunning),
		errors.Is(err, models.ErrJobNotRunning),
		errors.Is(err, models.ErrIllegalTransition),
		errors.Is(err, models.ErrAtCapacity):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, models.ErrCommandNotFFmpeg):
		return huma.Error422UnprocessableEntity(err.Error())
	default:
		return huma.Error500InternalServerError(action, err)
	}
}
