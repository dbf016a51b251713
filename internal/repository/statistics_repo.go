package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/encodarr/internal/models"
	"gorm.io/gorm"
)

// statisticsRepo implements StatisticsRepository using GORM.
type statisticsRepo struct {
	db *gorm.DB
}

// NewStatisticsRepository creates a new StatisticsRepository.
func NewStatisticsRepository(db *gorm.DB) *statisticsRepo {
	return &statisticsRepo{db: db}
}

// CreateBatch inserts a batch of samples in one statement. The
// telemetry pump calls this on every flush, so it must be one write.
func (r *statisticsRepo) CreateBatch(ctx context.Context, samples []*models.StatisticsSample) error {
	if len(samples) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(samples).Error; err != nil {
		return fmt.Errorf("inserting statistics batch: %w", err)
	}
	return nil
}

// GetByJob retrieves samples for a job newer than since, oldest first.
func (r *statisticsRepo) GetByJob(ctx context.Context, jobID models.ULID, since time.Time, limit int) ([]*models.StatisticsSample, error) {
	var samples []*models.StatisticsSample

	query := r.db.WithContext(ctx).Where("job_id = ?", jobID)
	if !since.IsZero() {
		query = query.Where("timestamp > ?", since)
	}
	query = query.Order("timestamp ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&samples).Error; err != nil {
		return nil, fmt.Errorf("getting statistics for job: %w", err)
	}
	return samples, nil
}

// GetLatest retrieves the most recent sample for a job.
func (r *statisticsRepo) GetLatest(ctx context.Context, jobID models.ULID) (*models.StatisticsSample, error) {
	var sample models.StatisticsSample
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("timestamp DESC").
		First(&sample).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting latest statistics sample: %w", err)
	}
	return &sample, nil
}

// DeleteByJob removes all samples for a job.
func (r *statisticsRepo) DeleteByJob(ctx context.Context, jobID models.ULID) (int64, error) {
	result := r.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&models.StatisticsSample{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting statistics for job: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteBefore removes samples older than the cutoff across all jobs.
// The retention sweep calls this on its schedule.
func (r *statisticsRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&models.StatisticsSample{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting statistics before cutoff: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure statisticsRepo implements StatisticsRepository at compile time.
var _ StatisticsRepository = (*statisticsRepo)(nil)
