package models

import (
	"gorm.io/gorm"
)

// JobStatus represents the current status of an encoding job.
type JobStatus string

const (
	// JobStatusPending indicates the job is defined but not running.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the encoder process is live.
	JobStatusRunning JobStatus = "running"
	// JobStatusStopped indicates the job ended at user request.
	JobStatusStopped JobStatus = "stopped"
	// JobStatusError indicates the encoder failed or was lost.
	JobStatusError JobStatus = "error"
	// JobStatusCompleted indicates the encoder finished on its own with exit 0.
	JobStatusCompleted JobStatus = "completed"
)

// ValidJobStatuses is the set of all recognized job statuses.
var ValidJobStatuses = map[JobStatus]bool{
	JobStatusPending:   true,
	JobStatusRunning:   true,
	JobStatusStopped:   true,
	JobStatusError:     true,
	JobStatusCompleted: true,
}

// Job represents one encoding task: a unified configuration plus its
// runtime state. The serialized config on FullConfig is the source of
// truth; Command is a derived cache refreshed on compile.
type Job struct {
	BaseModel

	// Name is the unique human-readable job name.
	Name string `gorm:"not null;size:255;uniqueIndex" json:"name"`

	// Status indicates the current lifecycle state.
	Status JobStatus `gorm:"not null;default:'pending';size:20;index" json:"status"`

	// Priority determines display ordering (1..10, higher first).
	Priority int `gorm:"default:5" json:"priority"`

	// StartedAt is when the current (or last) run began.
	StartedAt *Time `json:"started_at,omitempty"`

	// StoppedAt is when the last run ended.
	StoppedAt *Time `json:"stopped_at,omitempty"`

	// PID is the encoder process id; non-nil only while running.
	PID *int `gorm:"column:pid" json:"pid,omitempty"`

	// Command is the last compiled argv joined for display. Cleared when
	// a config mutation invalidates it.
	Command string `gorm:"size:8192" json:"command,omitempty"`

	// CommandOverride is a user-edited command that replaces the compiled
	// one verbatim at spawn time. Empty means no override.
	CommandOverride string `gorm:"size:8192" json:"command_override,omitempty"`

	// ErrorMessage holds the failure diagnostic; non-empty only when
	// status is error.
	ErrorMessage string `gorm:"size:8192" json:"error_message,omitempty"`

	// FullConfig is the serialized UnifiedConfig owned by this job.
	FullConfig string `gorm:"type:text" json:"-"`
}

// TableName returns the table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// IsRunning returns true if the encoder process is live.
func (j *Job) IsRunning() bool {
	return j.Status == JobStatusRunning
}

// IsTerminal returns true if the last run has ended.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusStopped || j.Status == JobStatusError || j.Status == JobStatusCompleted
}

// CanStart returns true if a start attempt is legal from the current status.
func (j *Job) CanStart() bool {
	return !j.IsRunning()
}

// EffectiveCommand returns the override when set, otherwise the compiled
// command cache.
func (j *Job) EffectiveCommand() string {
	if j.CommandOverride != "" {
		return j.CommandOverride
	}
	return j.Command
}

// MarkRunning records a successful spawn.
func (j *Job) MarkRunning(pid int) {
	now := Now()
	j.Status = JobStatusRunning
	j.PID = &pid
	j.StartedAt = &now
	j.StoppedAt = nil
	j.ErrorMessage = ""
}

// MarkStopped records a user-requested termination.
func (j *Job) MarkStopped() {
	now := Now()
	j.Status = JobStatusStopped
	j.PID = nil
	j.StoppedAt = &now
}

// MarkCompleted records a clean unrequested exit.
func (j *Job) MarkCompleted() {
	now := Now()
	j.Status = JobStatusCompleted
	j.PID = nil
	j.StoppedAt = &now
}

// MarkError records a failed run with its diagnostic.
func (j *Job) MarkError(message string) {
	now := Now()
	j.Status = JobStatusError
	j.PID = nil
	j.StoppedAt = &now
	j.ErrorMessage = message
}

// ResetStatus moves a non-running job back to pending.
func (j *Job) ResetStatus() {
	j.Status = JobStatusPending
	j.PID = nil
	j.ErrorMessage = ""
}

// Validate performs basic validation on the job.
func (j *Job) Validate() error {
	if j.Name == "" {
		return ErrJobNameRequired
	}
	if j.Priority < 1 || j.Priority > 10 {
		return Problem{Field: "priority", Message: "must be between 1 and 10"}
	}
	if !ValidJobStatuses[j.Status] {
		return Problem{Field: "status", Message: "unknown status " + string(j.Status)}
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the job and generates its ULID.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.Status == "" {
		j.Status = JobStatusPending
	}
	if j.Priority == 0 {
		j.Priority = 5
	}
	if err := j.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return j.Validate()
}

// BeforeUpdate is a GORM hook that validates the job before update.
func (j *Job) BeforeUpdate(tx *gorm.DB) error {
	return j.Validate()
}
