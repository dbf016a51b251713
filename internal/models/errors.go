package models

import (
	"errors"
	"fmt"
)

// Problem describes one validation failure on a config field.
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (p Problem) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", p.Field, p.Message)
}

// ProblemList aggregates validation failures into a single error value.
type ProblemList []Problem

// Error implements the error interface.
func (pl ProblemList) Error() string {
	if len(pl) == 0 {
		return "validation failed"
	}
	if len(pl) == 1 {
		return pl[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", pl[0].Error(), len(pl)-1)
}

// Common errors for models and services.
var (
	// ErrJobNotFound indicates an unknown job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrArchiveNotFound indicates an unknown archived job id.
	ErrArchiveNotFound = errors.New("archived job not found")

	// ErrDuplicateJobName indicates a job with the same name already exists.
	ErrDuplicateJobName = errors.New("job name already exists")

	// ErrJobRunning indicates an operation that requires a non-running job.
	ErrJobRunning = errors.New("job is running")

	// ErrJobNotRunning indicates an operation that requires a running job.
	ErrJobNotRunning = errors.New("job is not running")

	// ErrAtCapacity indicates the concurrency cap rejected an admission.
	ErrAtCapacity = errors.New("busy: max concurrent jobs reached")

	// ErrIllegalTransition indicates a lifecycle operation not valid for
	// the job's current status.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrCommandNotFFmpeg indicates a command override that does not
	// invoke ffmpeg.
	ErrCommandNotFFmpeg = errors.New("command override must start with 'ffmpeg'")

	// ErrJobNameRequired indicates a required job name field is empty.
	ErrJobNameRequired = errors.New("job name is required")

	// ErrInputFileRequired indicates a required input file field is empty.
	ErrInputFileRequired = errors.New("input file is required")
)
