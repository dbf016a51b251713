package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jmylchreest/encodarr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSamples(t *testing.T, repo StatisticsRepository, jobID models.ULID, base time.Time, n int) {
	t.Helper()

	samples := make([]*models.StatisticsSample, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, &models.StatisticsSample{
			JobID:     jobID,
			Timestamp: base.Add(time.Duration(i) * time.Second),
			FPS:       float64(25 + i),
		})
	}
	require.NoError(t, repo.CreateBatch(context.Background(), samples))
}

func TestStatisticsRepo_CreateBatch_Empty(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStatisticsRepository(db)

	assert.NoError(t, repo.CreateBatch(context.Background(), nil))
}

func TestStatisticsRepo_GetByJob_Window(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStatisticsRepository(db)
	ctx := context.Background()

	job := makeJob(t, db, "cam1", "")
	base := time.Now().Add(-time.Minute).Truncate(time.Millisecond)
	seedSamples(t, repo, job.ID, base, 10)

	t.Run("all samples oldest first", func(t *testing.T) {
		samples, err := repo.GetByJob(ctx, job.ID, time.Time{}, 0)
		require.NoError(t, err)
		require.Len(t, samples, 10)
		assert.Equal(t, float64(25), samples[0].FPS)
		assert.Equal(t, float64(34), samples[9].FPS)
	})

	t.Run("since filter", func(t *testing.T) {
		samples, err := repo.GetByJob(ctx, job.ID, base.Add(5*time.Second), 0)
		require.NoError(t, err)
		assert.Len(t, samples, 4)
	})

	t.Run("limit", func(t *testing.T) {
		samples, err := repo.GetByJob(ctx, job.ID, time.Time{}, 3)
		require.NoError(t, err)
		assert.Len(t, samples, 3)
	})
}

func TestStatisticsRepo_GetLatest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStatisticsRepository(db)
	ctx := context.Background()

	job := makeJob(t, db, "cam1", "")

	latest, err := repo.GetLatest(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	base := time.Now().Add(-time.Minute).Truncate(time.Millisecond)
	seedSamples(t, repo, job.ID, base, 5)

	latest, err = repo.GetLatest(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, float64(29), latest.FPS)
}

func TestStatisticsRepo_DeleteByJob(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStatisticsRepository(db)
	ctx := context.Background()

	job := makeJob(t, db, "cam1", "")
	other := makeJob(t, db, "cam2", "")
	base := time.Now().Add(-time.Minute)
	seedSamples(t, repo, job.ID, base, 4)
	seedSamples(t, repo, other.ID, base, 2)

	deleted, err := repo.DeleteByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)

	kept, err := repo.GetByJob(ctx, other.ID, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, kept, 2)
}

func TestStatisticsRepo_DeleteBefore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStatisticsRepository(db)
	ctx := context.Background()

	job := makeJob(t, db, "cam1", "")
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	seedSamples(t, repo, job.ID, base, 6)

	cutoff := base.Add(3 * time.Second)
	deleted, err := repo.DeleteBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	remaining, err := repo.GetByJob(ctx, job.ID, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 3)
	for _, s := range remaining {
		assert.False(t, s.Timestamp.Before(cutoff))
	}
}
