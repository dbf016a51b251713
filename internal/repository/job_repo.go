package repository

import (
	"context"
	"fmt"

	"github.com/jmylchreest/encodarr/internal/models"
	"gorm.io/gorm"
)

// jobRepo implements JobRepository using GORM.
type jobRepo struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *jobRepo {
	return &jobRepo{db: db}
}

// Create creates a new job.
func (r *jobRepo) Create(ctx context.Context, job *models.Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("creating job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by ID.
func (r *jobRepo) GetByID(ctx context.Context, id models.ULID) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job by ID: %w", err)
	}
	return &job, nil
}

// GetByName retrieves a job by its unique name.
func (r *jobRepo) GetByName(ctx context.Context, name string) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job by name: %w", err)
	}
	return &job, nil
}

// GetAll retrieves all jobs, newest first.
func (r *jobRepo) GetAll(ctx context.Context) ([]*models.Job, error) {
	var jobs []*models.Job
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting all jobs: %w", err)
	}
	return jobs, nil
}

// GetByStatus retrieves jobs by status, newest first. The query is
// served by the composite (status, created_at DESC) index.
func (r *jobRepo) GetByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	var jobs []*models.Job
	if err := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting jobs by status: %w", err)
	}
	return jobs, nil
}

// GetRunning retrieves all currently running jobs.
func (r *jobRepo) GetRunning(ctx context.Context) ([]*models.Job, error) {
	var jobs []*models.Job
	if err := r.db.WithContext(ctx).Where("status = ?", models.JobStatusRunning).Order("started_at ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting running jobs: %w", err)
	}
	return jobs, nil
}

// GetABREnabled retrieves jobs whose stored config enables the ABR
// ladder. On SQLite this uses the json_extract expression index.
func (r *jobRepo) GetABREnabled(ctx context.Context) ([]*models.Job, error) {
	var jobs []*models.Job
	if err := r.db.WithContext(ctx).
		Where("json_extract(full_config, '$.abrEnabled') = ?", true).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting ABR-enabled jobs: %w", err)
	}
	return jobs, nil
}

// List retrieves a page of jobs with an optional status filter.
func (r *jobRepo) List(ctx context.Context, status *models.JobStatus, offset, limit int) ([]*models.Job, int64, error) {
	var jobs []*models.Job
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Job{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting jobs: %w", err)
	}

	query = query.Order("created_at DESC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("listing jobs: %w", err)
	}

	return jobs, total, nil
}

// CountRunning returns the number of jobs marked running.
func (r *jobRepo) CountRunning(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("status = ?", models.JobStatusRunning).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting running jobs: %w", err)
	}
	return count, nil
}

// Update updates an existing job.
func (r *jobRepo) Update(ctx context.Context, job *models.Job) error {
	if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	return nil
}

// UpdateRuntimeState persists the runtime columns from the in-memory
// job in a single statement. Uses UpdateColumns to avoid triggering
// hooks and to keep status, pid, timestamps, and error message
// consistent in one write.
func (r *jobRepo) UpdateRuntimeState(ctx context.Context, job *models.Job) error {
	result := r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", job.ID).
		UpdateColumns(map[string]interface{}{
			"status":        job.Status,
			"pid":           job.PID,
			"started_at":    job.StartedAt,
			"stopped_at":    job.StoppedAt,
			"error_message": job.ErrorMessage,
			"updated_at":    models.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("updating job runtime state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// UpdateCommand persists the compiled command cache for a job.
func (r *jobRepo) UpdateCommand(ctx context.Context, id models.ULID, command string) error {
	result := r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"command":    command,
			"updated_at": models.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("updating job command: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// Delete permanently removes a job together with its statistics
// samples in one transaction.
func (r *jobRepo) Delete(ctx context.Context, id models.ULID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_id = ?", id).Delete(&models.StatisticsSample{}).Error; err != nil {
			return fmt.Errorf("deleting job statistics: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.Job{}).Error; err != nil {
			return fmt.Errorf("deleting job: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// Ensure jobRepo implements JobRepository at compile time.
var _ JobRepository = (*jobRepo)(nil)
