package composer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, name string, args ...string) (string, error) {
	call := m.Called(name, args)
	return call.String(0), call.Error(1)
}

func (m *mockExecutor) ExecuteInDir(ctx context.Context, dir, name string, args ...string) (string, error) {
	call := m.Called(name, args)
	return call.String(0), call.Error(1)
}

func (m *mockExecutor) ExecuteWithInput(ctx context.Context, stdin io.Reader, name string, args ...string) (string, error) {
	call := m.Called(name, args)
	return call.String(0), call.Error(1)
}

func TestIsAvailable(t *testing.T) {
	exec := new(mockExecutor)
	exec.On("Execute", "/opt/ffmpeg", []string{"-version"}).Return("ffmpeg version 6.1", nil)
	exec.On("Execute", "/opt/ffprobe", []string{"-version"}).Return("ffprobe version 6.1", nil)
	assert.True(t, NewFFmpegEncoder(exec, "/opt/ffmpeg", "/opt/ffprobe").IsAvailable(context.Background()))

	exec = new(mockExecutor)
	exec.On("Execute", "ffmpeg", []string{"-version"}).Return("ffmpeg version 6.1", nil)
	exec.On("Execute", "ffprobe", []string{"-version"}).Return("", errors.New("executable file not found"))
	assert.False(t, NewFFmpegEncoder(exec, "", "").IsAvailable(context.Background()))
}

func TestDuration(t *testing.T) {
	exec := new(mockExecutor)
	exec.On("Execute", "ffprobe", mock.Anything).Return("12.480000\n", nil)

	d, err := NewFFmpegEncoder(exec, "", "").Duration(context.Background(), "a.mp3")
	require.NoError(t, err)
	assert.InDelta(t, 12.48, d, 0.0001)

	args := exec.Calls[0].Arguments.Get(1).([]string)
	assert.Equal(t, "a.mp3", args[len(args)-1])
}

func TestDurationErrors(t *testing.T) {
	tests := []struct {
		name string
		out  string
		err  error
	}{
		{"ffprobe fails", "", errors.New("exit status 1")},
		{"garbage", "N/A\n", nil},
		{"zero", "0.000000\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := new(mockExecutor)
			exec.On("Execute", "ffprobe", mock.Anything).Return(tt.out, tt.err)
			_, err := NewFFmpegEncoder(exec, "", "").Duration(context.Background(), "a.mp3")
			assert.Error(t, err)
		})
	}
}

func TestEncodeArgs(t *testing.T) {
	exec := new(mockExecutor)
	exec.On("Execute", "/usr/bin/ffmpeg", mock.Anything).Return("", nil)

	enc := NewFFmpegEncoder(exec, "/usr/bin/ffmpeg", "")
	err := enc.Encode(context.Background(), Segment{
		Image: "frame_1.png", Audio: "slide_1.mp3", Output: "segment_1.mp4",
		Duration: 3.2, FPS: 24, Width: 1280, Height: 720,
	})
	require.NoError(t, err)

	args := exec.Calls[0].Arguments.Get(1).([]string)
	assert.Subset(t, args, []string{"-loop", "1", "frame_1.png", "slide_1.mp3", "3.200", "libx264", "stillimage", "yuv420p", "aac"})
	assert.Contains(t, args, "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2,setsar=1")
	assert.Equal(t, "segment_1.mp4", args[len(args)-1])
}

func TestConcatArgs(t *testing.T) {
	exec := new(mockExecutor)
	exec.On("Execute", "ffmpeg", mock.Anything).Return("", errors.New("boom"))

	err := NewFFmpegEncoder(exec, "", "").Concat(context.Background(), "list.txt", "out.mp4")
	assert.ErrorContains(t, err, "ffmpeg concat")

	args := exec.Calls[0].Arguments.Get(1).([]string)
	assert.Subset(t, args, []string{"concat", "-safe", "0", "list.txt", "copy"})
}
