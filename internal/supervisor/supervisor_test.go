package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/encodarr/internal/config"
	"github.com/jmylchreest/encodarr/internal/database/migrations"
	"github.com/jmylchreest/encodarr/internal/events"
	"github.com/jmylchreest/encodarr/internal/models"
	"github.com/jmylchreest/encodarr/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeEncoder writes a shell script named ffmpeg that stands in for
// the real encoder binary.
func fakeEncoder(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

type testHarness struct {
	sup  *Supervisor
	jobs repository.JobRepository
	bus  *events.Bus
	dir  string
}

func newHarness(t *testing.T, script string, maxJobs int, grace time.Duration) *testHarness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	migrator := migrations.NewMigrator(db, nil)
	migrator.RegisterAll(migrations.AllMigrations())
	require.NoError(t, migrator.Up(context.Background()))

	dir := t.TempDir()
	storage := config.StorageConfig{
		BaseDir:   dir,
		InputDir:  "input",
		OutputDir: "output",
		HLSDir:    "hls",
		LogDir:    "logs",
	}
	cfg := config.EncoderConfig{
		BinaryPath:         fakeEncoder(t, script),
		MaxConcurrentJobs:  maxJobs,
		StopGrace:          grace,
		StartupDeadline:    10 * time.Second,
		StatsBatchSize:     2,
		StatsFlushInterval: 100 * time.Millisecond,
	}

	jobs := repository.NewJobRepository(db)
	stats := repository.NewStatisticsRepository(db)
	bus := events.NewBus(nil)

	sup, err := New(cfg, storage, jobs, stats, bus, nil)
	require.NoError(t, err)

	return &testHarness{sup: sup, jobs: jobs, bus: bus, dir: dir}
}

func (h *testHarness) createJob(t *testing.T, name string) *models.Job {
	t.Helper()

	cfg := &models.UnifiedConfig{
		JobName:      name,
		InputFile:    "/input/a.mp4",
		VideoCodec:   "h264",
		AudioCodec:   "aac",
		OutputFormat: "hls",
		OutputDir:    filepath.Join(h.dir, "hls", name),
	}
	serialized, err := cfg.Serialize()
	require.NoError(t, err)

	job := &models.Job{Name: name, FullConfig: serialized}
	require.NoError(t, h.jobs.Create(context.Background(), job))
	return job
}

// waitForStatus polls until the job reaches the wanted status.
func (h *testHarness) waitForStatus(t *testing.T, id models.ULID, want models.JobStatus, timeout time.Duration) *models.Job {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := h.jobs.GetByID(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, job)
		if job.Status == want {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	job, _ := h.jobs.GetByID(context.Background(), id)
	t.Fatalf("job never reached %s, stuck at %s", want, job.Status)
	return nil
}

const progressScript = `echo "frame=  100 fps= 25.0 bitrate= 400.0kbits/s speed=1.0x" >&2
echo "frame=  200 fps= 25.0 bitrate= 410.0kbits/s speed=1.0x" >&2
sleep 0.3
exit 0
`

const longRunningScript = `trap 'exit 0' TERM
echo "frame=    1 fps= 25.0 speed=1.0x" >&2
while :; do sleep 0.1; done
`

const hungScript = `trap '' TERM
echo "frame=    1 fps= 25.0 speed=1.0x" >&2
while :; do sleep 0.1; done
`

const failingScript = `echo "[in#0] Error opening input: No such file or directory" >&2
exit 1
`

const silentScript = `exec sleep 60
`

func TestSupervisor_HappyPath(t *testing.T) {
	h := newHarness(t, progressScript, 2, time.Second)
	job := h.createJob(t, "s1")

	sub := h.bus.Subscribe(events.TopicJobStatus, events.TopicJobStats)
	defer h.bus.Unsubscribe(sub)

	require.NoError(t, h.sup.Start(context.Background(), job))
	assert.True(t, h.sup.IsRunning(job.ID))

	running, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, running.Status)
	require.NotNil(t, running.PID)
	assert.NotNil(t, running.StartedAt)

	final := h.waitForStatus(t, job.ID, models.JobStatusCompleted, 5*time.Second)
	assert.Nil(t, final.PID)
	assert.NotNil(t, final.StoppedAt)
	assert.False(t, h.sup.IsRunning(job.ID))

	// Running status arrives before the first stats sample; the
	// terminal status arrives after the last one.
	var sequence []events.Topic
	var statuses []models.JobStatus
	drain := time.After(2 * time.Second)
	for len(statuses) < 2 {
		select {
		case ev := <-sub.Events():
			sequence = append(sequence, ev.Topic)
			if ev.Topic == events.TopicJobStatus {
				statuses = append(statuses, ev.Data.(events.StatusPayload).Status)
			}
		case <-drain:
			t.Fatal("missing status events")
		}
	}
	assert.Equal(t, events.TopicJobStatus, sequence[0])
	assert.Equal(t, models.JobStatusRunning, statuses[0])
	assert.Equal(t, models.JobStatusCompleted, statuses[1])
	assert.Equal(t, events.TopicJobStatus, sequence[len(sequence)-1])
}

func TestSupervisor_StatsPersisted(t *testing.T) {
	h := newHarness(t, progressScript, 2, time.Second)
	job := h.createJob(t, "s1")

	require.NoError(t, h.sup.Start(context.Background(), job))
	h.waitForStatus(t, job.ID, models.JobStatusCompleted, 5*time.Second)

	db := h.sup.stats
	samples, err := db.GetByJob(context.Background(), job.ID, time.Time{}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, samples)
	assert.Equal(t, int64(200), samples[len(samples)-1].TotalFrames)

	// Strictly increasing timestamps.
	for i := 1; i < len(samples); i++ {
		assert.True(t, samples[i].Timestamp.After(samples[i-1].Timestamp))
	}
}

func TestSupervisor_GracefulStop(t *testing.T) {
	h := newHarness(t, longRunningScript, 2, 2*time.Second)
	job := h.createJob(t, "s1")

	require.NoError(t, h.sup.Start(context.Background(), job))
	h.waitForStatus(t, job.ID, models.JobStatusRunning, 2*time.Second)

	require.NoError(t, h.sup.Stop(context.Background(), job.ID))

	final, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusStopped, final.Status)
	assert.Nil(t, final.PID)
}

func TestSupervisor_StopEscalatesToKill(t *testing.T) {
	h := newHarness(t, hungScript, 2, 300*time.Millisecond)
	job := h.createJob(t, "s1")

	require.NoError(t, h.sup.Start(context.Background(), job))

	start := time.Now()
	require.NoError(t, h.sup.Stop(context.Background(), job.ID))
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond, "grace period observed")

	final, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusStopped, final.Status, "requested stop lands on stopped even after SIGKILL")
}

func TestSupervisor_StopNotRunning(t *testing.T) {
	h := newHarness(t, progressScript, 2, time.Second)
	job := h.createJob(t, "s1")

	err := h.sup.Stop(context.Background(), job.ID)
	assert.ErrorIs(t, err, models.ErrJobNotRunning)
}

func TestSupervisor_ExitErrorCapturesStderrTail(t *testing.T) {
	h := newHarness(t, failingScript, 2, time.Second)
	job := h.createJob(t, "s1")

	require.NoError(t, h.sup.Start(context.Background(), job))
	final := h.waitForStatus(t, job.ID, models.JobStatusError, 5*time.Second)

	assert.Contains(t, final.ErrorMessage, "exited with code 1")
	assert.Contains(t, final.ErrorMessage, "Error opening input")
}

func TestSupervisor_SilentProcessKilledAtStartupDeadline(t *testing.T) {
	h := newHarness(t, silentScript, 2, time.Second)
	h.sup.cfg.StartupDeadline = 300 * time.Millisecond
	job := h.createJob(t, "s1")

	require.NoError(t, h.sup.Start(context.Background(), job))
	final := h.waitForStatus(t, job.ID, models.JobStatusError, 5*time.Second)

	assert.Contains(t, final.ErrorMessage, "no output within startup deadline")
	assert.False(t, h.sup.IsRunning(job.ID))
}

func TestSupervisor_ConcurrencyCap(t *testing.T) {
	h := newHarness(t, longRunningScript, 2, 2*time.Second)
	j1 := h.createJob(t, "j1")
	j2 := h.createJob(t, "j2")
	j3 := h.createJob(t, "j3")

	ctx := context.Background()
	require.NoError(t, h.sup.Start(ctx, j1))
	require.NoError(t, h.sup.Start(ctx, j2))

	err := h.sup.Start(ctx, j3)
	assert.ErrorIs(t, err, models.ErrAtCapacity)

	// j3 was never started: still pending.
	got, err2 := h.jobs.GetByID(ctx, j3.ID)
	require.NoError(t, err2)
	assert.Equal(t, models.JobStatusPending, got.Status)

	// Freeing a slot lets the retry through.
	require.NoError(t, h.sup.Stop(ctx, j1.ID))
	require.NoError(t, h.sup.Start(ctx, j3))
	require.NoError(t, h.sup.Stop(ctx, j2.ID))
	require.NoError(t, h.sup.Stop(ctx, j3.ID))
}

func TestSupervisor_StartTwice(t *testing.T) {
	h := newHarness(t, longRunningScript, 2, 2*time.Second)
	job := h.createJob(t, "s1")

	ctx := context.Background()
	require.NoError(t, h.sup.Start(ctx, job))
	assert.ErrorIs(t, h.sup.Start(ctx, job), models.ErrJobRunning)
	require.NoError(t, h.sup.Stop(ctx, job.ID))
}

func TestSupervisor_Reconcile(t *testing.T) {
	h := newHarness(t, progressScript, 2, time.Second)
	job := h.createJob(t, "lost")

	// Simulate a stale running record from a previous boot.
	job.MarkRunning(1 << 22)
	require.NoError(t, h.jobs.UpdateRuntimeState(context.Background(), job))

	lost, err := h.sup.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, lost, 1)

	final, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusError, final.Status)
	assert.Contains(t, final.ErrorMessage, "process missing")
	assert.Nil(t, final.PID)
}

func TestSupervisor_WritesJobLog(t *testing.T) {
	h := newHarness(t, failingScript, 2, time.Second)
	job := h.createJob(t, "s1")

	require.NoError(t, h.sup.Start(context.Background(), job))
	h.waitForStatus(t, job.ID, models.JobStatusError, 5*time.Second)

	data, err := os.ReadFile(h.sup.LogFilePath(job.ID))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Error opening input")
}

func TestSupervisor_CommandOverrideMustBeFFmpeg(t *testing.T) {
	h := newHarness(t, progressScript, 2, time.Second)
	job := h.createJob(t, "s1")
	job.CommandOverride = "rm -rf /output"

	err := h.sup.Start(context.Background(), job)
	assert.ErrorIs(t, err, models.ErrCommandNotFFmpeg)
}

func TestScanEncoderLines_CarriageReturns(t *testing.T) {
	data := "line one\rline two\nline three"
	var lines []string
	rest := []byte(data)
	for {
		adv, tok, _ := scanEncoderLines(rest, true)
		if adv == 0 && tok == nil {
			break
		}
		if len(tok) > 0 {
			lines = append(lines, string(tok))
		}
		rest = rest[adv:]
		if len(rest) == 0 {
			break
		}
	}
	assert.Equal(t, []string{"line one", "line two", "line three"}, lines)
}
