// Package composer assembles slide images and narration audio into a single
// video.
package composer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nikhilbhutani/slidecast/internal/models"
	"github.com/nikhilbhutani/slidecast/pkg/datauri"
)

// OutputName is the file written into the scratch directory.
const OutputName = "presentation.mp4"

var ErrNoSegments = errors.New("no video segments were produced")

type Options struct {
	FPS     int
	Width   int
	Height  int
	Timeout time.Duration // whole composition
}

// Result describes a finished video.
type Result struct {
	Path     string
	Segments int
	Skipped  []int // slide numbers left out of the video
}

type Composer struct {
	enc    Encoder
	opts   Options
	logger *slog.Logger
}

func New(enc Encoder, opts Options, logger *slog.Logger) *Composer {
	if opts.FPS <= 0 {
		opts.FPS = 24
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1280, 720
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	return &Composer{enc: enc, opts: opts, logger: logger}
}

// Compose pairs slides[i] with audio[i]. Slides without a matching audio file,
// or whose segment fails to encode, are skipped. Intermediate files are
// removed on every path; only the final video is left in dir.
func (c *Composer) Compose(ctx context.Context, slides []models.SlideRecord, audio []string, dir string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var scratch []string
	defer func() {
		for _, p := range scratch {
			if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				c.logger.Warn("remove intermediate file", "path", p, "error", rmErr)
			}
		}
	}()

	res := &Result{}
	var segments []string

	for i, s := range slides {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("compose: %w", err)
		}
		if i >= len(audio) {
			c.logger.Warn("no audio for slide, skipping", "slide_number", s.SlideNumber)
			res.Skipped = append(res.Skipped, s.SlideNumber)
			continue
		}

		frame, err := c.writeFrame(s, dir)
		if frame != "" {
			scratch = append(scratch, frame)
		}
		if err != nil {
			c.logger.Error("write frame failed", "slide_number", s.SlideNumber, "error", err)
			res.Skipped = append(res.Skipped, s.SlideNumber)
			continue
		}

		seg := filepath.Join(dir, fmt.Sprintf("segment_%d.mp4", s.SlideNumber))
		scratch = append(scratch, seg)
		if err := c.encodeSegment(ctx, frame, audio[i], seg); err != nil {
			c.logger.Error("segment failed, skipping slide", "slide_number", s.SlideNumber, "error", err)
			res.Skipped = append(res.Skipped, s.SlideNumber)
			continue
		}
		segments = append(segments, seg)
	}

	if len(segments) == 0 {
		return nil, ErrNoSegments
	}

	list := filepath.Join(dir, "segments.txt")
	scratch = append(scratch, list)
	if err := writeConcatList(list, segments); err != nil {
		return nil, err
	}

	out := filepath.Join(dir, OutputName)
	if err := c.enc.Concat(ctx, list, out); err != nil {
		_ = os.Remove(out)
		return nil, fmt.Errorf("concatenate segments: %w", err)
	}

	res.Path = out
	res.Segments = len(segments)
	c.logger.Info("video composed", "path", out, "segments", res.Segments, "skipped", len(res.Skipped))
	return res, nil
}

func (c *Composer) encodeSegment(ctx context.Context, frame, audio, out string) error {
	dur, err := c.enc.Duration(ctx, audio)
	if err != nil {
		return err
	}
	return c.enc.Encode(ctx, Segment{
		Image:    frame,
		Audio:    audio,
		Output:   out,
		Duration: dur,
		FPS:      c.opts.FPS,
		Width:    c.opts.Width,
		Height:   c.opts.Height,
	})
}

// writeFrame writes the slide's first image, or a blank canvas when the slide
// has none or it cannot be decoded.
func (c *Composer) writeFrame(s models.SlideRecord, dir string) (string, error) {
	data, ext := c.frameImage(s)
	path := filepath.Join(dir, fmt.Sprintf("frame_%d%s", s.SlideNumber, ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return path, fmt.Errorf("write frame: %w", err)
	}
	return path, nil
}

func (c *Composer) frameImage(s models.SlideRecord) ([]byte, string) {
	uri, ok := s.FirstImage()
	if ok {
		mimeType, data, err := datauri.Decode(uri)
		if err == nil {
			if _, _, err = image.DecodeConfig(bytes.NewReader(data)); err == nil {
				return data, datauri.ExtensionFromMIME(mimeType)
			}
		}
		c.logger.Warn("slide image unusable, using placeholder", "slide_number", s.SlideNumber, "error", err)
	} else {
		c.logger.Warn("slide has no image, using placeholder", "slide_number", s.SlideNumber)
	}
	return Placeholder(c.opts.Width, c.opts.Height), ".png"
}

// Placeholder returns a black PNG of the given size.
func Placeholder(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// writeConcatList writes an ffmpeg concat demuxer script.
func writeConcatList(path string, segments []string) error {
	var b strings.Builder
	for _, seg := range segments {
		abs, err := filepath.Abs(seg)
		if err != nil {
			return fmt.Errorf("resolve segment path: %w", err)
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}
