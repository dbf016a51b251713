// Package repository defines data access interfaces for encodarr entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/encodarr/internal/models"
)

// JobRepository provides access to encoding job data.
type JobRepository interface {
	// Create creates a new job.
	Create(ctx context.Context, job *models.Job) error

	// GetByID retrieves a job by ID. Returns (nil, nil) when not found.
	GetByID(ctx context.Context, id models.ULID) (*models.Job, error)

	// GetByName retrieves a job by its unique name. Returns (nil, nil)
	// when not found.
	GetByName(ctx context.Context, name string) (*models.Job, error)

	// GetAll retrieves all jobs, newest first.
	GetAll(ctx context.Context) ([]*models.Job, error)

	// GetByStatus retrieves jobs in the given status, newest first.
	GetByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)

	// GetRunning retrieves all jobs currently marked running.
	GetRunning(ctx context.Context) ([]*models.Job, error)

	// GetABREnabled retrieves jobs whose stored config has the ABR ladder
	// switched on.
	GetABREnabled(ctx context.Context) ([]*models.Job, error)

	// List retrieves a page of jobs, optionally filtered by status, and
	// the total count for the filter.
	List(ctx context.Context, status *models.JobStatus, offset, limit int) ([]*models.Job, int64, error)

	// CountRunning returns the number of jobs marked running.
	CountRunning(ctx context.Context) (int64, error)

	// Update persists the full job record.
	Update(ctx context.Context, job *models.Job) error

	// UpdateRuntimeState persists only the runtime columns (status, pid,
	// timestamps, error message) in one write, skipping model hooks.
	UpdateRuntimeState(ctx context.Context, job *models.Job) error

	// UpdateCommand persists the compiled command cache for a job.
	UpdateCommand(ctx context.Context, id models.ULID, command string) error

	// Delete permanently removes a job and its statistics samples.
	Delete(ctx context.Context, id models.ULID) error
}

// StatisticsRepository provides access to encoder telemetry samples.
type StatisticsRepository interface {
	// CreateBatch inserts a batch of samples in one statement.
	CreateBatch(ctx context.Context, samples []*models.StatisticsSample) error

	// GetByJob retrieves samples for a job newer than since, oldest
	// first, capped at limit (0 means no cap).
	GetByJob(ctx context.Context, jobID models.ULID, since time.Time, limit int) ([]*models.StatisticsSample, error)

	// GetLatest retrieves the most recent sample for a job. Returns
	// (nil, nil) when the job has no samples.
	GetLatest(ctx context.Context, jobID models.ULID) (*models.StatisticsSample, error)

	// DeleteByJob removes all samples for a job.
	DeleteByJob(ctx context.Context, jobID models.ULID) (int64, error)

	// DeleteBefore removes samples older than the cutoff across all jobs.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArchiveRepository provides access to archived job snapshots.
type ArchiveRepository interface {
	// Create stores an archived job snapshot.
	Create(ctx context.Context, archived *models.ArchivedJob) error

	// GetByID retrieves an archived job by ID. Returns (nil, nil) when
	// not found.
	GetByID(ctx context.Context, id models.ULID) (*models.ArchivedJob, error)

	// List retrieves a page of archived jobs, most recently archived
	// first, and the total count.
	List(ctx context.Context, offset, limit int) ([]*models.ArchivedJob, int64, error)

	// Delete permanently removes an archived job snapshot.
	Delete(ctx context.Context, id models.ULID) error
}
