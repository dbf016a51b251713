package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_Validate(t *testing.T) {
	tests := []struct {
		name      string
		job       Job
		expectErr bool
	}{
		{"valid", Job{Name: "cam1", Status: JobStatusPending, Priority: 5}, false},
		{"empty name", Job{Status: JobStatusPending, Priority: 5}, true},
		{"priority too low", Job{Name: "cam1", Status: JobStatusPending, Priority: 0}, true},
		{"priority too high", Job{Name: "cam1", Status: JobStatusPending, Priority: 11}, true},
		{"unknown status", Job{Name: "cam1", Status: "paused", Priority: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJob_BeforeCreate_Defaults(t *testing.T) {
	j := &Job{Name: "cam1"}
	require.NoError(t, j.BeforeCreate(nil))

	assert.Equal(t, JobStatusPending, j.Status)
	assert.Equal(t, 5, j.Priority)
	assert.False(t, j.ID.IsZero())
}

func TestJob_Lifecycle(t *testing.T) {
	j := &Job{Name: "cam1", Status: JobStatusPending, Priority: 5}
	assert.True(t, j.CanStart())
	assert.False(t, j.IsRunning())
	assert.False(t, j.IsTerminal())

	j.MarkRunning(4242)
	assert.True(t, j.IsRunning())
	assert.False(t, j.CanStart())
	require.NotNil(t, j.PID)
	assert.Equal(t, 4242, *j.PID)
	require.NotNil(t, j.StartedAt)
	assert.Nil(t, j.StoppedAt)

	j.MarkStopped()
	assert.Equal(t, JobStatusStopped, j.Status)
	assert.Nil(t, j.PID)
	require.NotNil(t, j.StoppedAt)
	assert.True(t, j.IsTerminal())
	assert.False(t, j.StoppedAt.Before(*j.StartedAt), "stopped_at must not precede started_at")
}

func TestJob_MarkError(t *testing.T) {
	j := &Job{Name: "cam1", Status: JobStatusRunning, Priority: 5}
	pid := 99
	j.PID = &pid

	j.MarkError("exit status 1")
	assert.Equal(t, JobStatusError, j.Status)
	assert.Nil(t, j.PID)
	assert.Equal(t, "exit status 1", j.ErrorMessage)
}

func TestJob_ResetStatus(t *testing.T) {
	j := &Job{Name: "cam1", Status: JobStatusError, Priority: 5, ErrorMessage: "boom"}
	j.ResetStatus()
	assert.Equal(t, JobStatusPending, j.Status)
	assert.Empty(t, j.ErrorMessage)
}

func TestJob_EffectiveCommand(t *testing.T) {
	j := &Job{Command: "ffmpeg -i a.mp4 out.mp4"}
	assert.Equal(t, "ffmpeg -i a.mp4 out.mp4", j.EffectiveCommand())

	j.CommandOverride = "ffmpeg -i a.mp4 -t 10 out.mp4"
	assert.Equal(t, "ffmpeg -i a.mp4 -t 10 out.mp4", j.EffectiveCommand(), "override wins until cleared")
}
