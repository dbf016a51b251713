package handlers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/encodarr/internal/config"
	"github.com/jmylchreest/encodarr/internal/database/migrations"
	"github.com/jmylchreest/encodarr/internal/events"
	"github.com/jmylchreest/encodarr/internal/models"
	"github.com/jmylchreest/encodarr/internal/repository"
	"github.com/jmylchreest/encodarr/internal/service"
	"github.com/jmylchreest/encodarr/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type handlerFixture struct {
	jobs     *JobHandler
	archives *ArchiveHandler
	svc      *service.JobService
	bus      *events.Bus
	db       *gorm.DB
	dir      string
}

func setupHandlers(t *testing.T) *handlerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	migrator := migrations.NewMigrator(db, nil)
	migrator.RegisterAll(migrations.AllMigrations())
	require.NoError(t, migrator.Up(context.Background()))

	dir := t.TempDir()
	binary := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	storage := config.StorageConfig{
		BaseDir:   dir,
		InputDir:  "input",
		OutputDir: "output",
		HLSDir:    "hls",
		LogDir:    "logs",
	}
	cfg := config.EncoderConfig{
		BinaryPath:        binary,
		MaxConcurrentJobs: 2,
		StopGrace:         time.Second,
		StartupDeadline:   5 * time.Second,
	}

	jobRepo := repository.NewJobRepository(db)
	statsRepo := repository.NewStatisticsRepository(db)
	archiveRepo := repository.NewArchiveRepository(db)
	bus := events.NewBus(nil)

	sup, err := supervisor.New(cfg, storage, jobRepo, statsRepo, bus, nil)
	require.NoError(t, err)
	svc := service.NewJobService(jobRepo, archiveRepo, statsRepo, sup)

	return &handlerFixture{
		jobs:     NewJobHandler(svc),
		archives: NewArchiveHandler(svc),
		svc:      svc,
		bus:      bus,
		db:       db,
		dir:      dir,
	}
}

func (f *handlerFixture) validConfig(name string) models.UnifiedConfig {
	return models.UnifiedConfig{
		JobName:      name,
		InputFile:    "/input/a.mp4",
		VideoCodec:   "h264",
		AudioCodec:   "aac",
		OutputFormat: "hls",
		OutputDir:    filepath.Join(f.dir, "hls", name),
	}
}

// statusOf extracts the HTTP status from a huma error.
func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se huma.StatusError
	require.True(t, errors.As(err, &se), "expected a status error, got %v", err)
	return se.GetStatus()
}

func TestJobHandler_Create(t *testing.T) {
	f := setupHandlers(t)

	out, err := f.jobs.Create(context.Background(), &CreateJobInput{Body: f.validConfig("cam1")})
	require.NoError(t, err)
	assert.False(t, out.Body.JobID.IsZero())
	assert.Contains(t, out.Body.FFmpegCommand, "ffmpeg")
	assert.Contains(t, out.Body.FFmpegCommand, "-hls_time 6")
	assert.Empty(t, out.Body.Warnings)
}

func TestJobHandler_CreateDuplicateConflict(t *testing.T) {
	f := setupHandlers(t)
	ctx := context.Background()

	_, err := f.jobs.Create(ctx, &CreateJobInput{Body: f.validConfig("cam1")})
	require.NoError(t, err)

	_, err = f.jobs.Create(ctx, &CreateJobInput{Body: f.validConfig("cam1")})
	assert.Equal(t, 409, statusOf(t, err))
}

func TestJobHandler_CreateInvalidConfig(t *testing.T) {
	f := setupHandlers(t)

	cfg := f.validConfig("bad")
	cfg.VideoCodec = ""
	_, err := f.jobs.Create(context.Background(), &CreateJobInput{Body: cfg})
	assert.Equal(t, 422, statusOf(t, err))
}

func TestJobHandler_GetByID(t *testing.T) {
	f := setupHandlers(t)
	ctx := context.Background()

	created, err := f.jobs.Create(ctx, &CreateJobInput{Body: f.validConfig("cam1")})
	require.NoError(t, err)

	out, err := f.jobs.GetByID(ctx, &GetJobInput{ID: created.Body.JobID.String()})
	require.NoError(t, err)
	assert.Equal(t, "cam1", out.Body.Name)
	assert.Equal(t, models.JobStatusPending, out.Body.Status)

	_, err = f.jobs.GetByID(ctx, &GetJobInput{ID: models.NewULID().String()})
	assert.Equal(t, 404, statusOf(t, err))

	_, err = f.jobs.GetByID(ctx, &GetJobInput{ID: "not-a-ulid"})
	assert.Equal(t, 400, statusOf(t, err))
}

func TestJobHandler_ConfigRoundTrip(t *testing.T) {
	f := setupHandlers(t)
	ctx := context.Background()

	created, err := f.jobs.Create(ctx, &CreateJobInput{Body: f.validConfig("cam1")})
	require.NoError(t, err)
	id := created.Body.JobID.String()

	got, err := f.jobs.GetConfig(ctx, &GetJobConfigInput{ID: id})
	require.NoError(t, err)
	assert.Equal(t, "cam1", got.Body.JobName)
	assert.Equal(t, "h264", got.Body.VideoCodec)

	updated := got.Body
	updated.VideoBitrate = "3M"
	out, err := f.jobs.UpdateConfig(ctx, &UpdateJobConfigInput{ID: id, Body: updated})
	require.NoError(t, err)
	assert.Contains(t, out.Body.Job.FFmpegCommand, "-b:v 3000k")
}

func TestJobHandler_UpdateCommand(t *testing.T) {
	f := setupHandlers(t)
	ctx := context.Background()

	created, err := f.jobs.Create(ctx, &CreateJobInput{Body: f.validConfig("cam1")})
	require.NoError(t, err)
	id := created.Body.JobID.String()

	input := &UpdateJobCommandInput{ID: id}
	input.Body.Command = "ffmpeg -i /input/a.mp4 -c copy /tmp/out.mp4"
	out, err := f.jobs.UpdateCommand(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, input.Body.Command, out.Body.CommandOverride)
	assert.Equal(t, input.Body.Command, out.Body.FFmpegCommand)

	bad := &UpdateJobCommandInput{ID: id}
	bad.Body.Command = "bash -c 'echo hi'"
	_, err = f.jobs.UpdateCommand(ctx, bad)
	assert.Equal(t, 422, statusOf(t, err))
}

func TestJobHandler_LifecycleConflicts(t *testing.T) {
	f := setupHandlers(t)
	ctx := context.Background()

	created, err := f.jobs.Create(ctx, &CreateJobInput{Body: f.validConfig("cam1")})
	require.NoError(t, err)
	id := created.Body.JobID.String()

	// Stopping a job that never started is a conflict.
	_, err = f.jobs.Stop(ctx, &JobActionInput{ID: id})
	assert.Equal(t, 409, statusOf(t, err))

	// Reset on a pending job is a no-op that succeeds.
	out, err := f.jobs.Reset(ctx, &JobActionInput{ID: id})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, out.Body.Status)
}

func TestJobHandler_StartAtCapacityConflicts(t *testing.T) {
	f := setupHandlers(t)
	ctx := context.Background()

	// Swap the fake encoder for one that stays alive so two slots fill.
	script := `#!/bin/sh
trap 'exit 0' TERM
while :; do sleep 0.1; done
`
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "ffmpeg"), []byte(script), 0o755))

	ids := make([]string, 3)
	for i, name := range []string{"cam1", "cam2", "cam3"} {
		created, err := f.jobs.Create(ctx, &CreateJobInput{Body: f.validConfig(name)})
		require.NoError(t, err)
		ids[i] = created.Body.JobID.String()
	}

	for _, id := range ids[:2] {
		_, err := f.jobs.Start(ctx, &JobActionInput{ID: id})
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		for _, id := range ids[:2] {
			f.jobs.Stop(ctx, &JobActionInput{ID: id})
		}
	})

	_, err := f.jobs.Start(ctx, &JobActionInput{ID: ids[2]})
	assert.Equal(t, 409, statusOf(t, err))
}

func TestJobHandler_Delete(t *testing.T) {
	f := setupHandlers(t)
	ctx := context.Background()

	created, err := f.jobs.Create(ctx, &CreateJobInput{Body: f.validConfig("cam1")})
	require.NoError(t, err)
	id := created.Body.JobID.String()

	out, err := f.jobs.Delete(ctx, &DeleteJobInput{ID: id})
	require.NoError(t, err)
	assert.True(t, out.Body.Deleted)

	_, err = f.jobs.Delete(ctx, &DeleteJobInput{ID: id})
	assert.Equal(t, 404, statusOf(t, err))
}

func TestJobHandler_GetLogEmpty(t *testing.T) {
	f := setupHandlers(t)
	ctx := context.Background()

	created, err := f.jobs.Create(ctx, &CreateJobInput{Body: f.validConfig("cam1")})
	require.NoError(t, err)

	out, err := f.jobs.GetLog(ctx, &GetJobLogInput{ID: created.Body.JobID.String(), Lines: 50})
	require.NoError(t, err)
	assert.NotNil(t, out.Body.Lines)
	assert.Empty(t, out.Body.Lines)
}

func TestJobHandler_GetStatistics(t *testing.T) {
	f := setupHandlers(t)
	ctx := context.Background()

	created, err := f.jobs.Create(ctx, &CreateJobInput{Body: f.validConfig("stats")})
	require.NoError(t, err)
	id := created.Body.JobID.String()

	jobID := models.MustParseULID(id)
	statsRepo := repository.NewStatisticsRepository(f.db)
	now := time.Now()
	require.NoError(t, statsRepo.CreateBatch(ctx, []*models.StatisticsSample{
		{JobID: jobID, Timestamp: now.Add(-2 * time.Hour), FPS: 25},
		{JobID: jobID, Timestamp: now.Add(-time.Minute), FPS: 30},
	}))

	t.Run("all samples", func(t *testing.T) {
		resp, err := f.jobs.GetStatistics(ctx, &GetJobStatisticsInput{ID: id, Limit: 100})
		require.NoError(t, err)
		assert.Len(t, resp.Body.Samples, 2)
	})

	t.Run("rfc3339 since", func(t *testing.T) {
		since := now.Add(-time.Hour).Format(time.RFC3339)
		resp, err := f.jobs.GetStatistics(ctx, &GetJobStatisticsInput{ID: id, Since: since, Limit: 100})
		require.NoError(t, err)
		assert.Len(t, resp.Body.Samples, 1)
	})

	t.Run("relative since", func(t *testing.T) {
		resp, err := f.jobs.GetStatistics(ctx, &GetJobStatisticsInput{ID: id, Since: "30 minutes ago", Limit: 100})
		require.NoError(t, err)
		assert.Len(t, resp.Body.Samples, 1)
	})

	t.Run("bad since", func(t *testing.T) {
		_, err := f.jobs.GetStatistics(ctx, &GetJobStatisticsInput{ID: id, Since: "yesterday-ish", Limit: 100})
		assert.Equal(t, 400, statusOf(t, err))
	})
}

func TestJobHandler_List(t *testing.T) {
	f := setupHandlers(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := f.jobs.Create(ctx, &CreateJobInput{Body: f.validConfig(name)})
		require.NoError(t, err)
	}

	out, err := f.jobs.List(ctx, &ListJobsInput{Pagination: Pagination{Offset: 0, Limit: 2}})
	require.NoError(t, err)
	assert.Len(t, out.Body.Jobs, 2)
	assert.Equal(t, int64(3), out.Body.Pagination.TotalItems)

	filtered, err := f.jobs.List(ctx, &ListJobsInput{
		Status:     "running",
		Pagination: Pagination{Offset: 0, Limit: 10},
	})
	require.NoError(t, err)
	assert.Empty(t, filtered.Body.Jobs)
}

func TestArchiveHandler_Flow(t *testing.T) {
	f := setupHandlers(t)
	ctx := context.Background()

	created, err := f.jobs.Create(ctx, &CreateJobInput{Body: f.validConfig("cam1")})
	require.NoError(t, err)

	archiveInput := &ArchiveJobInput{ID: created.Body.JobID.String()}
	archiveInput.Body.Reason = "winter break"
	archived, err := f.archives.Archive(ctx, archiveInput)
	require.NoError(t, err)
	assert.Equal(t, "cam1", archived.Body.Name)
	assert.Equal(t, "winter break", archived.Body.Reason)

	// Gone from the active set.
	_, err = f.jobs.GetByID(ctx, &GetJobInput{ID: created.Body.JobID.String()})
	assert.Equal(t, 404, statusOf(t, err))

	list, err := f.archives.List(ctx, &ListArchivesInput{Pagination: Pagination{Limit: 10}})
	require.NoError(t, err)
	require.Len(t, list.Body.Archives, 1)

	restored, err := f.archives.Restore(ctx, &RestoreArchiveInput{ID: archived.Body.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "cam1", restored.Body.Name)

	// Restore consumed the entry.
	_, err = f.archives.Restore(ctx, &RestoreArchiveInput{ID: archived.Body.ID.String()})
	assert.Equal(t, 404, statusOf(t, err))
}
