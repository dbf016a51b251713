package ffmpeg

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgress_Burst(t *testing.T) {
	line := "frame= 1234 fps= 29.9 q=28.0 size=    2048KiB time=00:00:41.16 bitrate= 407.6kbits/s dup=1 drop=2 speed=1.01x"

	var p Progress
	require.True(t, ParseProgress(line, &p))

	assert.Equal(t, int64(1234), p.Frame)
	assert.Equal(t, 29.9, p.FPS)
	assert.Equal(t, int64(407600), p.BitrateBps)
	assert.Equal(t, int64(2048*1024), p.TotalSize)
	assert.Equal(t, 41*time.Second+160*time.Millisecond, p.Time)
	assert.Equal(t, int64(1), p.DupFrames)
	assert.Equal(t, int64(2), p.DropFrames)
	assert.Equal(t, 1.01, p.Speed)
}

func TestParseProgress_LegacyKBUnit(t *testing.T) {
	var p Progress
	require.True(t, ParseProgress("size=     256kB time=00:01:00.00 bitrate=  34.9kbits/s", &p))
	assert.Equal(t, int64(256*1024), p.TotalSize)
	assert.Equal(t, time.Minute, p.Time)
	assert.Equal(t, int64(34900), p.BitrateBps)
}

func TestParseProgress_NonBurstLine(t *testing.T) {
	p := Progress{Frame: 10, FPS: 30}
	assert.False(t, ParseProgress("Press [q] to stop, [?] for help", &p))
	assert.False(t, ParseProgress("[hls @ 0x5591] Opening 'segment_001.ts' for writing", &p))

	// Untouched by non-burst lines.
	assert.Equal(t, int64(10), p.Frame)
	assert.Equal(t, 30.0, p.FPS)
}

func TestParseProgress_Cumulative(t *testing.T) {
	var p Progress
	require.True(t, ParseProgress("frame=  100 fps= 25.0 speed=1.0x", &p))
	require.True(t, ParseProgress("frame=  200 fps= 26.0 speed=1.1x", &p))

	assert.Equal(t, int64(200), p.Frame)
	assert.Equal(t, 26.0, p.FPS)
	assert.Equal(t, 1.1, p.Speed)
}

func TestStderrRing(t *testing.T) {
	ring := NewStderrRing(5)

	for i := 0; i < 3; i++ {
		ring.Append(fmt.Sprintf("line%d", i))
	}
	assert.Equal(t, 3, ring.Len())
	assert.Equal(t, []string{"line0", "line1", "line2"}, ring.Tail(0))

	for i := 3; i < 12; i++ {
		ring.Append(fmt.Sprintf("line%d", i))
	}
	assert.Equal(t, 5, ring.Len())
	assert.Equal(t, []string{"line7", "line8", "line9", "line10", "line11"}, ring.Tail(0))
	assert.Equal(t, []string{"line10", "line11"}, ring.Tail(2))
	assert.Equal(t, "line10\nline11", ring.TailString(2))
}

func TestStderrRing_TailLargerThanContent(t *testing.T) {
	ring := NewStderrRing(10)
	ring.Append("only")
	assert.Equal(t, []string{"only"}, ring.Tail(40))
}

func TestIsAlive(t *testing.T) {
	assert.True(t, IsAlive(os.Getpid()))
	assert.False(t, IsAlive(0))
	assert.False(t, IsAlive(-1))

	// A pid far above any default pid_max.
	assert.False(t, IsAlive(1<<22+12345))
}

func TestResolveBinary_ConfiguredMissing(t *testing.T) {
	_, err := ResolveBinary("/nonexistent/dir/ffmpeg")
	assert.Error(t, err)
}

func TestVersionPattern(t *testing.T) {
	out := "ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023 the FFmpeg developers"
	m := versionPattern.FindStringSubmatch(out)
	require.Len(t, m, 2)
	assert.Equal(t, "6.1.1-3ubuntu5", m[1])
}
