package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/encodarr/internal/compiler"
	"github.com/jmylchreest/encodarr/internal/models"
	"github.com/jmylchreest/encodarr/internal/repository"
	"github.com/jmylchreest/encodarr/internal/supervisor"
)

// DefaultLogTailLines is how many log lines TailLog returns when the
// caller does not say.
const DefaultLogTailLines = 100

// JobService provides high-level job management operations: config
// lifecycle, command overrides, process control, archival. It is the
// single write path for jobs; handlers never touch repositories
// directly.
type JobService struct {
	jobs     repository.JobRepository
	archives repository.ArchiveRepository
	stats    repository.StatisticsRepository
	sup      *supervisor.Supervisor
	logger   *slog.Logger
}

// NewJobService creates a new JobService.
func NewJobService(
	jobs repository.JobRepository,
	archives repository.ArchiveRepository,
	stats repository.StatisticsRepository,
	sup *supervisor.Supervisor,
) *JobService {
	return &JobService{
		jobs:     jobs,
		archives: archives,
		stats:    stats,
		sup:      sup,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *JobService) WithLogger(logger *slog.Logger) *JobService {
	s.logger = logger
	return s
}

// CreateUnified validates and compiles a config, then persists the new
// job with its compiled command cached. The returned warnings are
// non-fatal compile notes (hardware fallback and the like).
func (s *JobService) CreateUnified(ctx context.Context, cfg *models.UnifiedConfig) (*models.Job, []compiler.Warning, error) {
	cfg.Normalize()

	result, err := compiler.Compile(cfg, s.sup.Environment())
	if err != nil {
		return nil, nil, err
	}

	existing, err := s.jobs.GetByName(ctx, cfg.JobName)
	if err != nil {
		return nil, nil, fmt.Errorf("checking job name: %w", err)
	}
	if existing != nil {
		return nil, nil, models.ErrDuplicateJobName
	}

	serialized, err := cfg.Serialize()
	if err != nil {
		return nil, nil, fmt.Errorf("serializing config: %w", err)
	}

	job := &models.Job{
		Name:       cfg.JobName,
		Priority:   cfg.Priority,
		Command:    result.Command(),
		FullConfig: serialized,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("creating job: %w", err)
	}

	s.logger.Info("job created",
		slog.String("job_id", job.ID.String()),
		slog.String("name", job.Name))

	return job, result.Warnings, nil
}

// GetJob retrieves a job by ID.
func (s *JobService) GetJob(ctx context.Context, id models.ULID) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, models.ErrJobNotFound
	}
	return job, nil
}

// GetUnified retrieves a job together with its parsed config.
func (s *JobService) GetUnified(ctx context.Context, id models.ULID) (*models.Job, *models.UnifiedConfig, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := models.ParseUnifiedConfig(job.FullConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing stored config: %w", err)
	}
	return job, cfg, nil
}

// UpdateUnified replaces a job's config. Running jobs are immutable;
// the new config is recompiled and the command cache refreshed. An
// existing command override is left in place, it keeps winning until
// cleared explicitly.
func (s *JobService) UpdateUnified(ctx context.Context, id models.ULID, cfg *models.UnifiedConfig) (*models.Job, []compiler.Warning, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.IsRunning() || s.sup.IsRunning(id) {
		return nil, nil, models.ErrJobRunning
	}

	cfg.Normalize()

	result, err := compiler.Compile(cfg, s.sup.Environment())
	if err != nil {
		return nil, nil, err
	}

	if cfg.JobName != job.Name {
		existing, err := s.jobs.GetByName(ctx, cfg.JobName)
		if err != nil {
			return nil, nil, fmt.Errorf("checking job name: %w", err)
		}
		if existing != nil {
			return nil, nil, models.ErrDuplicateJobName
		}
	}

	serialized, err := cfg.Serialize()
	if err != nil {
		return nil, nil, fmt.Errorf("serializing config: %w", err)
	}

	job.Name = cfg.JobName
	job.Priority = cfg.Priority
	job.Command = result.Command()
	job.FullConfig = serialized
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("updating job: %w", err)
	}

	s.logger.Info("job config updated", slog.String("job_id", id.String()))

	return job, result.Warnings, nil
}

// UpdateCommand sets or clears a job's command override. A non-empty
// override must invoke ffmpeg; an empty string clears it and the
// compiled command takes over again.
func (s *JobService) UpdateCommand(ctx context.Context, id models.ULID, command string) (*models.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsRunning() || s.sup.IsRunning(id) {
		return nil, models.ErrJobRunning
	}

	command = strings.TrimSpace(command)
	if command != "" {
		args := compiler.SplitArgs(command)
		if len(args) == 0 || filepath.Base(args[0]) != "ffmpeg" {
			return nil, models.ErrCommandNotFFmpeg
		}
	}

	job.CommandOverride = command
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("updating job: %w", err)
	}

	s.logger.Info("command override updated",
		slog.String("job_id", id.String()),
		slog.Bool("cleared", command == ""))

	return job, nil
}

// Start launches the encoder for a job.
func (s *JobService) Start(ctx context.Context, id models.ULID) (*models.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.sup.Start(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Stop requests a graceful stop of a running job and waits for it.
func (s *JobService) Stop(ctx context.Context, id models.ULID) (*models.Job, error) {
	if _, err := s.GetJob(ctx, id); err != nil {
		return nil, err
	}
	if err := s.sup.Stop(ctx, id); err != nil {
		return nil, err
	}
	return s.GetJob(ctx, id)
}

// ForceKill kills the job's process group immediately and sweeps for
// orphaned encoder processes matching the job's output. Returns the
// number of processes killed.
func (s *JobService) ForceKill(ctx context.Context, id models.ULID) (int, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.sup.ForceKill(ctx, job)
}

// ResetStatus clears a non-running job's runtime state back to pending.
func (s *JobService) ResetStatus(ctx context.Context, id models.ULID) (*models.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsRunning() || s.sup.IsRunning(id) {
		return nil, models.ErrJobRunning
	}

	job.ResetStatus()
	if err := s.jobs.UpdateRuntimeState(ctx, job); err != nil {
		return nil, fmt.Errorf("resetting job: %w", err)
	}
	return job, nil
}

// Delete removes a non-running job and its statistics.
func (s *JobService) Delete(ctx context.Context, id models.ULID) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.IsRunning() || s.sup.IsRunning(id) {
		return models.ErrJobRunning
	}
	if err := s.jobs.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting job: %w", err)
	}

	s.logger.Info("job deleted", slog.String("job_id", id.String()))
	return nil
}

// Archive snapshots a non-running job's config into the archive and
// removes the job from the active set.
func (s *JobService) Archive(ctx context.Context, id models.ULID, reason string) (*models.ArchivedJob, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsRunning() || s.sup.IsRunning(id) {
		return nil, models.ErrJobRunning
	}

	archived := &models.ArchivedJob{
		Name:             job.Name,
		Reason:           reason,
		SerializedConfig: job.FullConfig,
	}
	if err := s.archives.Create(ctx, archived); err != nil {
		return nil, fmt.Errorf("archiving job: %w", err)
	}
	if err := s.jobs.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("removing archived job: %w", err)
	}

	s.logger.Info("job archived",
		slog.String("job_id", id.String()),
		slog.String("archive_id", archived.ID.String()),
		slog.String("name", job.Name))

	return archived, nil
}

// Restore creates a new active job from an archived snapshot and
// removes the archive entry. The restored job starts pending with a
// freshly compiled command.
func (s *JobService) Restore(ctx context.Context, archiveID models.ULID) (*models.Job, error) {
	archived, err := s.archives.GetByID(ctx, archiveID)
	if err != nil {
		return nil, err
	}
	if archived == nil {
		return nil, models.ErrArchiveNotFound
	}

	cfg, err := archived.Config()
	if err != nil {
		return nil, fmt.Errorf("parsing archived config: %w", err)
	}

	job, _, err := s.CreateUnified(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.archives.Delete(ctx, archiveID); err != nil {
		return nil, fmt.Errorf("removing archive entry: %w", err)
	}

	s.logger.Info("job restored",
		slog.String("archive_id", archiveID.String()),
		slog.String("job_id", job.ID.String()))

	return job, nil
}

// ListArchives retrieves archived jobs, most recent first.
func (s *JobService) ListArchives(ctx context.Context, offset, limit int) ([]*models.ArchivedJob, int64, error) {
	return s.archives.List(ctx, offset, limit)
}

// DeleteArchive permanently removes an archive entry.
func (s *JobService) DeleteArchive(ctx context.Context, id models.ULID) error {
	return s.archives.Delete(ctx, id)
}

// List retrieves jobs with optional status filter and pagination.
func (s *JobService) List(ctx context.Context, status *models.JobStatus, offset, limit int) ([]*models.Job, int64, error) {
	return s.jobs.List(ctx, status, offset, limit)
}

// GetStatistics retrieves a job's samples newer than since, oldest
// first.
func (s *JobService) GetStatistics(ctx context.Context, id models.ULID, since time.Time, limit int) ([]*models.StatisticsSample, error) {
	if _, err := s.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return s.stats.GetByJob(ctx, id, since, limit)
}

// GetLatestStatistics retrieves a job's most recent sample, or nil.
func (s *JobService) GetLatestStatistics(ctx context.Context, id models.ULID) (*models.StatisticsSample, error) {
	if _, err := s.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return s.stats.GetLatest(ctx, id)
}

// TailLog returns the last n lines of a job's encoder log. n <= 0
// means DefaultLogTailLines. A job that never ran has no log file and
// yields an empty slice.
func (s *JobService) TailLog(ctx context.Context, id models.ULID, n int) ([]string, error) {
	if _, err := s.GetJob(ctx, id); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = DefaultLogTailLines
	}

	data, err := os.ReadFile(s.sup.LogFilePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading job log: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
