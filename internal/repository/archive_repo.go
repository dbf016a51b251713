package repository

import (
	"context"
	"fmt"

	"github.com/jmylchreest/encodarr/internal/models"
	"gorm.io/gorm"
)

// archiveRepo implements ArchiveRepository using GORM.
type archiveRepo struct {
	db *gorm.DB
}

// NewArchiveRepository creates a new ArchiveRepository.
func NewArchiveRepository(db *gorm.DB) *archiveRepo {
	return &archiveRepo{db: db}
}

// Create stores an archived job snapshot.
func (r *archiveRepo) Create(ctx context.Context, archived *models.ArchivedJob) error {
	if err := r.db.WithContext(ctx).Create(archived).Error; err != nil {
		return fmt.Errorf("creating archived job: %w", err)
	}
	return nil
}

// GetByID retrieves an archived job by ID.
func (r *archiveRepo) GetByID(ctx context.Context, id models.ULID) (*models.ArchivedJob, error) {
	var archived models.ArchivedJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&archived).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting archived job by ID: %w", err)
	}
	return &archived, nil
}

// List retrieves a page of archived jobs, most recently archived first.
func (r *archiveRepo) List(ctx context.Context, offset, limit int) ([]*models.ArchivedJob, int64, error) {
	var archived []*models.ArchivedJob
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ArchivedJob{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting archived jobs: %w", err)
	}

	query = query.Order("archived_at DESC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&archived).Error; err != nil {
		return nil, 0, fmt.Errorf("listing archived jobs: %w", err)
	}

	return archived, total, nil
}

// Delete permanently removes an archived job snapshot.
func (r *archiveRepo) Delete(ctx context.Context, id models.ULID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ArchivedJob{})
	if result.Error != nil {
		return fmt.Errorf("deleting archived job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrArchiveNotFound
	}
	return nil
}

// Ensure archiveRepo implements ArchiveRepository at compile time.
var _ ArchiveRepository = (*archiveRepo)(nil)
