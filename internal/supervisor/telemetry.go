package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/jmylchreest/encodarr/internal/config"
	"github.com/jmylchreest/encodarr/internal/events"
	"github.com/jmylchreest/encodarr/internal/ffmpeg"
	"github.com/jmylchreest/encodarr/internal/models"
	"github.com/jmylchreest/encodarr/internal/repository"
)

// Defaults for the stats write batcher.
const (
	defaultStatsBatchSize     = 10
	defaultStatsFlushInterval = time.Second
)

// telemetryPump consumes one encoder's stderr: progress bursts become
// statistics samples (published immediately, written to the database in
// batches), everything else is passed through as log events. All bus
// publishes for a run happen from this single goroutine, which keeps
// per-job event ordering.
type telemetryPump struct {
	jobID   models.ULID
	pid     int
	bus     *events.Bus
	stats   repository.StatisticsRepository
	ring    *ffmpeg.StderrRing
	logFile io.Writer
	logger  *slog.Logger

	batchSize     int
	flushInterval time.Duration

	progress ffmpeg.Progress
	batch    []*models.StatisticsSample
	lastTS   time.Time
}

func newTelemetryPump(jobID models.ULID, pid int, bus *events.Bus, stats repository.StatisticsRepository, ring *ffmpeg.StderrRing, logFile io.Writer, cfg config.EncoderConfig, log *slog.Logger) *telemetryPump {
	batchSize := cfg.StatsBatchSize
	if batchSize <= 0 {
		batchSize = defaultStatsBatchSize
	}
	flushInterval := cfg.StatsFlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultStatsFlushInterval
	}

	return &telemetryPump{
		jobID:         jobID,
		pid:           pid,
		bus:           bus,
		stats:         stats,
		ring:          ring,
		logFile:       logFile,
		logger:        log,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// scanEncoderLines splits on \n or \r: the encoder redraws its progress
// line with carriage returns, so plain line scanning would buffer the
// whole run as one line.
func scanEncoderLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// run drains the stderr reader until EOF. onFirstLine fires once, for
// the startup deadline watcher.
func (p *telemetryPump) run(stderr io.Reader, onFirstLine func()) {
	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stderr)
		scanner.Split(scanEncoderLines)
		scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				lines <- line
			}
		}
	}()

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	first := true
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				p.flush()
				return
			}
			if first {
				first = false
				onFirstLine()
			}
			p.handleLine(line)
		case <-ticker.C:
			p.flush()
		}
	}
}

// handleLine routes one stderr line: progress bursts become samples,
// the rest become log events. Every line lands in the ring and the
// per-job log file.
func (p *telemetryPump) handleLine(line string) {
	p.ring.Append(line)
	if p.logFile != nil {
		io.WriteString(p.logFile, line+"\n")
	}

	if !ffmpeg.ParseProgress(line, &p.progress) {
		p.bus.Publish(events.TopicJobLog, p.jobID, events.LogPayload{Line: line})
		return
	}

	sample := p.buildSample()
	p.bus.Publish(events.TopicJobStats, p.jobID, sample)

	p.batch = append(p.batch, sample)
	if len(p.batch) >= p.batchSize {
		p.flush()
	}
}

// buildSample snapshots the accumulated progress with a strictly
// monotonic timestamp and a process resource reading.
func (p *telemetryPump) buildSample() *models.StatisticsSample {
	ts := time.Now()
	if !ts.After(p.lastTS) {
		ts = p.lastTS.Add(time.Millisecond)
	}
	p.lastTS = ts

	usage := ffmpeg.SampleProcess(context.Background(), p.pid)

	return &models.StatisticsSample{
		JobID:             p.jobID,
		Timestamp:         ts,
		FPS:               p.progress.FPS,
		BitrateBps:        p.progress.BitrateBps,
		TotalFrames:       p.progress.Frame,
		DroppedFrames:     p.progress.DropFrames,
		DupFrames:         p.progress.DupFrames,
		Speed:             p.progress.Speed,
		CurrentTimeOffset: p.progress.Time.Seconds(),
		OutputBytes:       p.progress.TotalSize,
		CPUPercent:        usage.CPUPercent,
		MemoryMB:          usage.MemoryMB,
	}
}

// flush writes the pending batch in one statement.
func (p *telemetryPump) flush() {
	if len(p.batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.stats.CreateBatch(ctx, p.batch); err != nil {
		p.logger.Error("writing statistics batch",
			slog.String("job_id", p.jobID.String()),
			slog.Int("samples", len(p.batch)),
			slog.String("error", err.Error()),
		)
	}
	p.batch = p.batch[:0:0]
}
