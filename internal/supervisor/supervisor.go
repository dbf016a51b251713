// Package supervisor owns the encoder subprocess lifecycle: admission
// under a concurrency cap, spawning with process-group control,
// graceful stop with kill escalation, telemetry capture, and boot-time
// reconciliation of jobs the database believes are running.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/jmylchreest/encodarr/internal/compiler"
	"github.com/jmylchreest/encodarr/internal/config"
	"github.com/jmylchreest/encodarr/internal/events"
	"github.com/jmylchreest/encodarr/internal/ffmpeg"
	"github.com/jmylchreest/encodarr/internal/models"
	"github.com/jmylchreest/encodarr/internal/repository"
)

// errorMessageTailLines bounds how much stderr lands in error_message.
const errorMessageTailLines = 40

// runningJob is the supervisor's in-memory record of a live encoder.
type runningJob struct {
	job       *models.Job
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time

	// outputTag identifies this job's argv for the orphan sweep.
	outputTag string

	ring    *ffmpeg.StderrRing
	logFile *os.File

	mu               sync.Mutex
	stopRequested    bool
	deadlineExceeded bool

	// firstOutput is closed when the first stderr line arrives.
	firstOutput chan struct{}
	firstOnce   sync.Once

	// done is closed after the exit status has been persisted.
	done chan struct{}
}

func (rj *runningJob) requestStop() {
	rj.mu.Lock()
	rj.stopRequested = true
	rj.mu.Unlock()
}

func (rj *runningJob) wasStopRequested() bool {
	rj.mu.Lock()
	defer rj.mu.Unlock()
	return rj.stopRequested
}

func (rj *runningJob) markDeadlineExceeded() {
	rj.mu.Lock()
	rj.deadlineExceeded = true
	rj.mu.Unlock()
}

func (rj *runningJob) hadDeadlineExceeded() bool {
	rj.mu.Lock()
	defer rj.mu.Unlock()
	return rj.deadlineExceeded
}

// Supervisor manages encoder subprocesses for the job service.
type Supervisor struct {
	cfg     config.EncoderConfig
	storage config.StorageConfig
	jobs    repository.JobRepository
	stats   repository.StatisticsRepository
	bus     *events.Bus
	env     compiler.Environment
	logger  *slog.Logger

	// binary is the resolved encoder path, fixed at construction.
	binary string

	mu      sync.Mutex
	running map[models.ULID]*runningJob
}

// New creates a Supervisor. The encoder binary is resolved once; a
// missing binary is an error at construction, not at first start.
func New(cfg config.EncoderConfig, storage config.StorageConfig, jobs repository.JobRepository, stats repository.StatisticsRepository, bus *events.Bus, log *slog.Logger) (*Supervisor, error) {
	if log == nil {
		log = slog.Default()
	}

	binary, err := ffmpeg.ResolveBinary(cfg.BinaryPath)
	if err != nil {
		return nil, err
	}

	return &Supervisor{
		cfg:     cfg,
		storage: storage,
		jobs:    jobs,
		stats:   stats,
		bus:     bus,
		binary:  binary,
		logger:  log.With(slog.String("component", "supervisor")),
		env: compiler.Environment{
			HLSBaseDir:             storage.HLSPath(),
			FileBaseDir:            storage.OutputPath(),
			HLSBaseURL:             storage.HLSPublicURL,
			DefaultSegmentDuration: cfg.DefaultSegmentDur,
		},
		running: make(map[models.ULID]*runningJob),
	}, nil
}

// Environment returns the compile environment derived from storage
// configuration. The job service uses it for preview compilation.
func (s *Supervisor) Environment() compiler.Environment {
	return s.env
}

// IsRunning reports whether the supervisor owns a live process for the job.
func (s *Supervisor) IsRunning(id models.ULID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}

// RunningCount returns the number of supervised processes.
func (s *Supervisor) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// RunningIDs returns the ids of all supervised jobs.
func (s *Supervisor) RunningIDs() []models.ULID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]models.ULID, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	return ids
}

// Start admits the job under the concurrency cap, compiles its command
// (or takes the verbatim override), and spawns the encoder in its own
// process group. On success the job row reads running with the pid and
// start time in one write, and a running status event has been
// published before any stats for this run.
func (s *Supervisor) Start(ctx context.Context, job *models.Job) error {
	args, outputDir, tag, err := s.resolveCommand(job)
	if err != nil {
		return err
	}

	rj := &runningJob{
		job:         job,
		outputTag:   tag,
		ring:        ffmpeg.NewStderrRing(ffmpeg.DefaultRingSize),
		firstOutput: make(chan struct{}),
		done:        make(chan struct{}),
	}

	// Reserve the slot before spawning so two concurrent starts cannot
	// both pass the cap check.
	s.mu.Lock()
	if _, ok := s.running[job.ID]; ok {
		s.mu.Unlock()
		return models.ErrJobRunning
	}
	if len(s.running) >= s.cfg.MaxConcurrentJobs {
		s.mu.Unlock()
		return models.ErrAtCapacity
	}
	s.running[job.ID] = rj
	s.mu.Unlock()

	if err := s.spawn(ctx, rj, args, outputDir); err != nil {
		s.remove(job.ID)
		return err
	}
	return nil
}

// resolveCommand produces the argv for a job: the user override verbatim
// when set, otherwise a fresh compile of the stored config.
func (s *Supervisor) resolveCommand(job *models.Job) (args []string, outputDir, tag string, err error) {
	if job.CommandOverride != "" {
		args = compiler.SplitArgs(job.CommandOverride)
		if len(args) == 0 || filepath.Base(args[0]) != "ffmpeg" {
			return nil, "", "", models.ErrCommandNotFFmpeg
		}
		// The final argument is the destination in every command the
		// compiler emits; overrides follow the same shape.
		return args, "", args[len(args)-1], nil
	}

	cfg, err := models.ParseUnifiedConfig(job.FullConfig)
	if err != nil {
		return nil, "", "", fmt.Errorf("loading job config: %w", err)
	}

	res, err := compiler.Compile(cfg, s.env)
	if err != nil {
		return nil, "", "", err
	}

	switch res.Plan.Kind {
	case compiler.PlanKindHLS:
		outputDir = res.Plan.BaseDir
		tag = res.Plan.BaseDir
	case compiler.PlanKindFile:
		outputDir = filepath.Dir(res.Plan.OutputFilePath)
		tag = res.Plan.OutputFilePath
	default:
		tag = res.Plan.DestinationURL
	}
	return res.Args, outputDir, tag, nil
}

// spawn launches the encoder process and attaches the telemetry pump
// and exit watcher.
func (s *Supervisor) spawn(ctx context.Context, rj *runningJob, args []string, outputDir string) error {
	job := rj.job

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	if err := os.MkdirAll(s.storage.LogPath(), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	logFile, err := os.OpenFile(s.LogFilePath(job.ID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening job log: %w", err)
	}
	rj.logFile = logFile

	cmd := exec.Command(s.binary, args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = nil
	cmd.Stdout = logFile

	stderr, err := cmd.StderrPipe()
	if err != nil {
		logFile.Close()
		return fmt.Errorf("attaching stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("starting encoder: %w", err)
	}

	rj.cmd = cmd
	rj.pid = cmd.Process.Pid
	rj.startedAt = time.Now()

	job.MarkRunning(rj.pid)
	if err := s.jobs.UpdateRuntimeState(ctx, job); err != nil {
		// Roll back: the process is up but the row is not. Kill the
		// group and report the spawn as failed.
		s.logger.Error("persisting running state failed, killing process",
			slog.String("job_id", job.ID.String()), slog.String("error", err.Error()))
		syscall.Kill(-rj.pid, syscall.SIGKILL)
		cmd.Wait()
		logFile.Close()
		return fmt.Errorf("persisting running state: %w", err)
	}

	s.publishStatus(job)
	s.logger.Info("encoder started",
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name),
		slog.Int("pid", rj.pid),
	)

	pump := newTelemetryPump(job.ID, rj.pid, s.bus, s.stats, rj.ring, logFile, s.cfg, s.logger)

	go s.watchStartupDeadline(rj)
	go func() {
		pump.run(stderr, func() {
			rj.firstOnce.Do(func() { close(rj.firstOutput) })
		})
		s.finalize(rj)
	}()

	return nil
}

// watchStartupDeadline kills the process group if the encoder produces
// no output and does not exit within the configured deadline.
func (s *Supervisor) watchStartupDeadline(rj *runningJob) {
	deadline := s.cfg.StartupDeadline
	if deadline <= 0 {
		return
	}

	select {
	case <-rj.firstOutput:
	case <-rj.done:
	case <-time.After(deadline):
		s.logger.Warn("startup deadline exceeded, killing encoder",
			slog.String("job_id", rj.job.ID.String()),
			slog.Duration("deadline", deadline),
		)
		rj.markDeadlineExceeded()
		syscall.Kill(-rj.pid, syscall.SIGKILL)
	}
}

// finalize runs after the telemetry pump drains: it reaps the process,
// maps the exit to a terminal status, persists it, and publishes the
// terminal status event after the run's last stats event.
func (s *Supervisor) finalize(rj *runningJob) {
	job := rj.job
	err := rj.cmd.Wait()

	switch {
	case rj.hadDeadlineExceeded():
		job.MarkError(fmt.Sprintf("no output within startup deadline (%s)", s.cfg.StartupDeadline))
	case rj.wasStopRequested():
		job.MarkStopped()
	case err == nil:
		job.MarkCompleted()
	default:
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		msg := fmt.Sprintf("encoder exited with code %d", exitCode)
		if tail := rj.ring.TailString(errorMessageTailLines); tail != "" {
			msg += "\n" + tail
		}
		job.MarkError(msg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if updErr := s.jobs.UpdateRuntimeState(ctx, job); updErr != nil {
		s.logger.Error("persisting terminal state",
			slog.String("job_id", job.ID.String()), slog.String("error", updErr.Error()))
	}

	rj.logFile.Close()
	s.remove(job.ID)
	s.publishStatus(job)
	close(rj.done)

	s.logger.Info("encoder exited",
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name),
		slog.String("status", string(job.Status)),
	)
}

// Stop sends SIGTERM to the job's process group, waits out the grace
// period, then escalates to SIGKILL. It returns after the terminal
// status is persisted.
func (s *Supervisor) Stop(ctx context.Context, id models.ULID) error {
	s.mu.Lock()
	rj, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		return models.ErrJobNotRunning
	}

	rj.requestStop()
	if err := syscall.Kill(-rj.pid, syscall.SIGTERM); err != nil {
		s.logger.Warn("sigterm failed", slog.Int("pid", rj.pid), slog.String("error", err.Error()))
	}

	grace := s.cfg.StopGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}

	select {
	case <-rj.done:
		return nil
	case <-time.After(grace):
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Warn("grace period expired, killing process group",
		slog.String("job_id", id.String()), slog.Int("pid", rj.pid))
	syscall.Kill(-rj.pid, syscall.SIGKILL)

	select {
	case <-rj.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForceKill SIGKILLs the job's process group immediately, then sweeps
// for stray encoder processes still carrying the job's output tag.
// Returns the number of processes killed by the sweep.
func (s *Supervisor) ForceKill(ctx context.Context, job *models.Job) (int, error) {
	s.mu.Lock()
	rj, ok := s.running[job.ID]
	s.mu.Unlock()

	tag := ""
	if ok {
		tag = rj.outputTag
		rj.requestStop()
		syscall.Kill(-rj.pid, syscall.SIGKILL)
		select {
		case <-rj.done:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	} else {
		// Not supervised: derive the tag from the stored config so a
		// sweep can still clean up after a lost process.
		if _, _, t, err := s.resolveCommand(job); err == nil {
			tag = t
		}
	}

	killed := 0
	pids, err := ffmpeg.FindOrphans(ctx, tag)
	if err != nil {
		return killed, fmt.Errorf("scanning for orphans: %w", err)
	}
	for _, pid := range pids {
		if err := syscall.Kill(pid, syscall.SIGKILL); err == nil {
			killed++
			s.logger.Warn("killed orphan encoder",
				slog.String("job_id", job.ID.String()), slog.Int("pid", pid))
		}
	}

	if !ok && killed == 0 {
		return 0, models.ErrJobNotRunning
	}
	return killed, nil
}

// Reconcile repairs job state after a restart: any job the database
// records as running whose pid no longer exists is moved to error.
// Jobs whose process is still alive are left untouched. Returns the
// jobs that were marked lost, for optional auto-restart.
func (s *Supervisor) Reconcile(ctx context.Context) ([]*models.Job, error) {
	running, err := s.jobs.GetRunning(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading running jobs: %w", err)
	}

	var lost []*models.Job
	for _, job := range running {
		if s.IsRunning(job.ID) {
			continue
		}
		if job.PID != nil && ffmpeg.IsAlive(*job.PID) {
			s.logger.Warn("unclaimed live encoder process, leaving it alone",
				slog.String("job_id", job.ID.String()), slog.Int("pid", *job.PID))
			continue
		}

		job.MarkError("process missing on restart")
		if err := s.jobs.UpdateRuntimeState(ctx, job); err != nil {
			s.logger.Error("reconciling lost job",
				slog.String("job_id", job.ID.String()), slog.String("error", err.Error()))
			continue
		}
		s.publishStatus(job)
		lost = append(lost, job)

		s.logger.Info("reconciled lost job",
			slog.String("job_id", job.ID.String()),
			slog.String("job_name", job.Name),
		)
	}
	return lost, nil
}

// AutoRestart relaunches reconciled jobs sequentially under the
// admission cap. It stops at the first capacity rejection; other
// per-job failures are logged and skipped.
func (s *Supervisor) AutoRestart(ctx context.Context, jobs []*models.Job) {
	if !s.cfg.AutoRestartJobsOnBoot {
		return
	}

	for _, job := range jobs {
		job.ResetStatus()
		if err := s.jobs.UpdateRuntimeState(ctx, job); err != nil {
			s.logger.Error("resetting job for restart",
				slog.String("job_id", job.ID.String()), slog.String("error", err.Error()))
			continue
		}

		err := s.Start(ctx, job)
		if err == models.ErrAtCapacity {
			s.logger.Warn("auto-restart stopped at concurrency cap",
				slog.String("job_id", job.ID.String()))
			return
		}
		if err != nil {
			s.logger.Error("auto-restart failed",
				slog.String("job_id", job.ID.String()), slog.String("error", err.Error()))
		}
	}
}

// Shutdown stops every supervised job, used on daemon exit.
func (s *Supervisor) Shutdown(ctx context.Context) {
	for _, id := range s.RunningIDs() {
		if err := s.Stop(ctx, id); err != nil && err != models.ErrJobNotRunning {
			s.logger.Error("stopping job on shutdown",
				slog.String("job_id", id.String()), slog.String("error", err.Error()))
		}
	}
}

// LogFilePath returns the per-job encoder log location.
func (s *Supervisor) LogFilePath(id models.ULID) string {
	return filepath.Join(s.storage.LogPath(), id.String()+".log")
}

func (s *Supervisor) remove(id models.ULID) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

func (s *Supervisor) publishStatus(job *models.Job) {
	s.bus.Publish(events.TopicJobStatus, job.ID, events.StatusPayload{
		JobName:      job.Name,
		Status:       job.Status,
		PID:          job.PID,
		ErrorMessage: job.ErrorMessage,
	})
}
