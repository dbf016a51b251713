package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/encodarr/internal/database/migrations"
	"github.com/jmylchreest/encodarr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB returns a migrated in-memory database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	migrator := migrations.NewMigrator(db, nil)
	migrator.RegisterAll(migrations.AllMigrations())
	require.NoError(t, migrator.Up(context.Background()))

	return db
}

func makeJob(t *testing.T, db *gorm.DB, name string, status models.JobStatus) *models.Job {
	t.Helper()

	job := &models.Job{Name: name}
	repo := NewJobRepository(db)
	require.NoError(t, repo.Create(context.Background(), job))

	if status != "" && status != models.JobStatusPending {
		job.Status = status
		require.NoError(t, repo.Update(context.Background(), job))
	}
	return job
}

func TestJobRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := &models.Job{Name: "cam1", FullConfig: `{"jobName":"cam1"}`}
	require.NoError(t, repo.Create(ctx, job))
	assert.False(t, job.ID.IsZero())
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 5, job.Priority)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cam1", got.Name)
	assert.Equal(t, `{"jobName":"cam1"}`, got.FullConfig)
}

func TestJobRepo_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)

	got, err := repo.GetByID(context.Background(), models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestJobRepo_GetByName(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	makeJob(t, db, "cam1", "")

	got, err := repo.GetByName(ctx, "cam1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cam1", got.Name)

	got, err = repo.GetByName(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestJobRepo_Create_DuplicateName(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Job{Name: "cam1"}))
	err := repo.Create(ctx, &models.Job{Name: "cam1"})
	assert.Error(t, err, "unique index on name rejects duplicates")
}

func TestJobRepo_GetByStatus_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		makeJob(t, db, name, "")
		time.Sleep(2 * time.Millisecond)
	}
	makeJob(t, db, "d", models.JobStatusError)

	jobs, err := repo.GetByStatus(ctx, models.JobStatusPending)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "c", jobs[0].Name)
	assert.Equal(t, "a", jobs[2].Name)
}

func TestJobRepo_GetRunningAndCount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	makeJob(t, db, "idle", "")
	running := makeJob(t, db, "live", "")
	running.MarkRunning(4321)
	require.NoError(t, repo.UpdateRuntimeState(ctx, running))

	jobs, err := repo.GetRunning(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "live", jobs[0].Name)
	require.NotNil(t, jobs[0].PID)
	assert.Equal(t, 4321, *jobs[0].PID)

	count, err := repo.CountRunning(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestJobRepo_GetABREnabled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	plain := &models.Job{Name: "plain", FullConfig: `{"jobName":"plain","abrEnabled":false}`}
	ladder := &models.Job{Name: "ladder", FullConfig: `{"jobName":"ladder","abrEnabled":true}`}
	require.NoError(t, repo.Create(ctx, plain))
	require.NoError(t, repo.Create(ctx, ladder))

	jobs, err := repo.GetABREnabled(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "ladder", jobs[0].Name)
}

func TestJobRepo_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c", "d"} {
		makeJob(t, db, name, "")
		time.Sleep(2 * time.Millisecond)
	}
	errored := makeJob(t, db, "e", models.JobStatusError)

	t.Run("unfiltered with pagination", func(t *testing.T) {
		jobs, total, err := repo.List(ctx, nil, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		require.Len(t, jobs, 2)
		assert.Equal(t, "d", jobs[0].Name)
		assert.Equal(t, "c", jobs[1].Name)
	})

	t.Run("status filter", func(t *testing.T) {
		status := models.JobStatusError
		jobs, total, err := repo.List(ctx, &status, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, jobs, 1)
		assert.Equal(t, errored.ID, jobs[0].ID)
	})
}

func TestJobRepo_UpdateRuntimeState(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := makeJob(t, db, "cam1", "")
	job.MarkRunning(1234)
	require.NoError(t, repo.UpdateRuntimeState(ctx, job))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	require.NotNil(t, got.PID)
	assert.Equal(t, 1234, *got.PID)
	assert.NotNil(t, got.StartedAt)
	assert.Nil(t, got.StoppedAt)

	got.MarkError("encoder exited with code 1")
	require.NoError(t, repo.UpdateRuntimeState(ctx, got))

	got, err = repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusError, got.Status)
	assert.Nil(t, got.PID)
	assert.NotNil(t, got.StoppedAt)
	assert.Equal(t, "encoder exited with code 1", got.ErrorMessage)
}

func TestJobRepo_UpdateRuntimeState_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)

	ghost := &models.Job{}
	ghost.ID = models.NewULID()
	ghost.Status = models.JobStatusStopped

	err := repo.UpdateRuntimeState(context.Background(), ghost)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestJobRepo_UpdateCommand(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := makeJob(t, db, "cam1", "")
	require.NoError(t, repo.UpdateCommand(ctx, job.ID, "ffmpeg -i in.mp4 out.m3u8"))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg -i in.mp4 out.m3u8", got.Command)

	assert.ErrorIs(t, repo.UpdateCommand(ctx, models.NewULID(), "x"), models.ErrJobNotFound)
}

func TestJobRepo_Delete_CascadesStatistics(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepository(db)
	statsRepo := NewStatisticsRepository(db)
	ctx := context.Background()

	job := makeJob(t, db, "cam1", "")
	other := makeJob(t, db, "cam2", "")

	samples := []*models.StatisticsSample{
		{JobID: job.ID, Timestamp: models.Now(), FPS: 30},
		{JobID: job.ID, Timestamp: models.Now().Add(time.Second), FPS: 29},
		{JobID: other.ID, Timestamp: models.Now(), FPS: 25},
	}
	require.NoError(t, statsRepo.CreateBatch(ctx, samples))

	require.NoError(t, repo.Delete(ctx, job.ID))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	orphaned, err := statsRepo.GetByJob(ctx, job.ID, time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, orphaned)

	kept, err := statsRepo.GetByJob(ctx, other.ID, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}
