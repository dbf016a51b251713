package ffmpeg

import (
	"regexp"
	"strconv"
	"time"
)

// Progress holds the metrics parsed from encoder stderr progress
// bursts. Fields are cumulative where the encoder reports them so.
type Progress struct {
	Frame      int64
	FPS        float64
	BitrateBps int64
	TotalSize  int64
	Time       time.Duration
	Speed      float64
	DupFrames  int64
	DropFrames int64
}

// Regex patterns for the encoder's stderr progress format:
// frame= 1234 fps= 30 q=28.0 size=    2048KiB time=00:00:41.16 bitrate= 407.6kbits/s dup=1 drop=2 speed=1.01x
var (
	frameRe   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	bitrateRe = regexp.MustCompile(`bitrate=\s*([\d.]+)\s*kbits/s`)
	sizeRe    = regexp.MustCompile(`size=\s*(\d+)\s*(?:KiB|kB)`)
	timeRe    = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
	speedRe   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
	dupRe     = regexp.MustCompile(`dup=\s*(\d+)`)
	dropRe    = regexp.MustCompile(`drop=\s*(\d+)`)
)

// ParseProgress updates p from one stderr line and reports whether the
// line was a progress burst. Non-burst lines leave p untouched.
func ParseProgress(line string, p *Progress) bool {
	matched := false

	if m := frameRe.FindStringSubmatch(line); len(m) > 1 {
		p.Frame, _ = strconv.ParseInt(m[1], 10, 64)
		matched = true
	}
	if m := fpsRe.FindStringSubmatch(line); len(m) > 1 {
		p.FPS, _ = strconv.ParseFloat(m[1], 64)
		matched = true
	}
	if m := bitrateRe.FindStringSubmatch(line); len(m) > 1 {
		kbits, _ := strconv.ParseFloat(m[1], 64)
		p.BitrateBps = int64(kbits * 1000)
		matched = true
	}
	if m := sizeRe.FindStringSubmatch(line); len(m) > 1 {
		kib, _ := strconv.ParseInt(m[1], 10, 64)
		p.TotalSize = kib * 1024
		matched = true
	}
	if m := timeRe.FindStringSubmatch(line); len(m) > 4 {
		hours, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		secs, _ := strconv.Atoi(m[3])
		centis, _ := strconv.Atoi(m[4])
		p.Time = time.Duration(hours)*time.Hour +
			time.Duration(mins)*time.Minute +
			time.Duration(secs)*time.Second +
			time.Duration(centis)*10*time.Millisecond
		matched = true
	}
	if m := speedRe.FindStringSubmatch(line); len(m) > 1 {
		p.Speed, _ = strconv.ParseFloat(m[1], 64)
		matched = true
	}
	if m := dupRe.FindStringSubmatch(line); len(m) > 1 {
		p.DupFrames, _ = strconv.ParseInt(m[1], 10, 64)
		matched = true
	}
	if m := dropRe.FindStringSubmatch(line); len(m) > 1 {
		p.DropFrames, _ = strconv.ParseInt(m[1], 10, 64)
		matched = true
	}

	return matched
}
