package composer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nikhilbhutani/slidecast/pkg/executor"
)

// Segment describes one still-image clip: Image shown for Duration seconds
// with Audio underneath.
type Segment struct {
	Image    string
	Audio    string
	Output   string
	Duration float64
	FPS      int
	Width    int
	Height   int
}

// Encoder is the video toolchain the composer drives.
type Encoder interface {
	Duration(ctx context.Context, audioPath string) (float64, error)
	Encode(ctx context.Context, seg Segment) error
	Concat(ctx context.Context, listPath, outPath string) error
}

// FFmpegEncoder shells out to ffmpeg and ffprobe.
type FFmpegEncoder struct {
	exec    executor.Executor
	ffmpeg  string
	ffprobe string
}

func NewFFmpegEncoder(runner executor.Executor, ffmpegPath, ffprobePath string) *FFmpegEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegEncoder{exec: runner, ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

// IsAvailable checks that both binaries run.
func (e *FFmpegEncoder) IsAvailable(ctx context.Context) bool {
	if _, err := e.exec.Execute(ctx, e.ffmpeg, "-version"); err != nil {
		return false
	}
	_, err := e.exec.Execute(ctx, e.ffprobe, "-version")
	return err == nil
}

func (e *FFmpegEncoder) Duration(ctx context.Context, audioPath string) (float64, error) {
	out, err := e.exec.Execute(ctx, e.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioPath,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(out), err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("audio %s has no duration", audioPath)
	}
	return d, nil
}

func (e *FFmpegEncoder) Encode(ctx context.Context, seg Segment) error {
	fps := strconv.Itoa(seg.FPS)
	// Letterbox into the canvas so every segment has identical geometry and
	// the concat step can stream-copy.
	vf := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		seg.Width, seg.Height, seg.Width, seg.Height)

	args := []string{
		"-y",
		"-loop", "1",
		"-framerate", fps,
		"-i", seg.Image,
		"-i", seg.Audio,
		"-t", strconv.FormatFloat(seg.Duration, 'f', 3, 64),
		"-r", fps,
		"-vf", vf,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "stillimage",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-ar", "44100",
		"-ac", "2",
		seg.Output,
	}
	if _, err := e.exec.Execute(ctx, e.ffmpeg, args...); err != nil {
		return fmt.Errorf("ffmpeg segment: %w", err)
	}
	return nil
}

func (e *FFmpegEncoder) Concat(ctx context.Context, listPath, outPath string) error {
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		outPath,
	}
	if _, err := e.exec.Execute(ctx, e.ffmpeg, args...); err != nil {
		return fmt.Errorf("ffmpeg concat: %w", err)
	}
	return nil
}
