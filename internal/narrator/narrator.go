// Package narrator turns slide scripts into audio files with a bounded pool
// of text-to-speech workers.
package narrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/slidecast/internal/models"
	"github.com/nikhilbhutani/slidecast/internal/multimodal/tts"
)

var (
	ErrNoAudio     = errors.New("no audio was generated")
	ErrEmptyScript = errors.New("empty script")
)

type Options struct {
	Workers  int
	Voice    string
	Language string
	Speed    float64
	Timeout  time.Duration // per synthesis call
}

// Failure records why one slide has no audio.
type Failure struct {
	SlideNumber int
	Err         error
}

func (f Failure) Error() string {
	return fmt.Sprintf("slide %d: %v", f.SlideNumber, f.Err)
}

// Report lists what was written, sorted by slide number.
type Report struct {
	Artifacts []models.AudioArtifact
	Failures  []Failure
}

type Narrator struct {
	provider tts.Provider
	opts     Options
	logger   *slog.Logger
}

// DefaultWorkers is min(8, NumCPU).
func DefaultWorkers() int {
	return min(8, runtime.NumCPU())
}

func New(provider tts.Provider, opts Options, logger *slog.Logger) *Narrator {
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	return &Narrator{provider: provider, opts: opts, logger: logger}
}

type result struct {
	artifact models.AudioArtifact
	err      error
}

// Narrate synthesizes every script into dir as slide_<n><ext>. It waits for all
// tasks before returning. A slide that fails is reported, never retried; the
// call only errors when nothing was produced or ctx was cancelled.
func (n *Narrator) Narrate(ctx context.Context, scripts []models.ScriptItem, dir string) (*Report, error) {
	results := make([]result, len(scripts))

	var eg errgroup.Group
	eg.SetLimit(n.opts.Workers)

	for i, item := range scripts {
		eg.Go(func() error {
			path, err := n.narrateOne(ctx, item, dir)
			results[i] = result{
				artifact: models.AudioArtifact{SlideNumber: item.SlideNumber, Path: path},
				err:      err,
			}
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("narrate: %w", err)
	}

	report := &Report{}
	for _, r := range results {
		if r.err != nil {
			report.Failures = append(report.Failures, Failure{SlideNumber: r.artifact.SlideNumber, Err: r.err})
			continue
		}
		report.Artifacts = append(report.Artifacts, r.artifact)
	}
	slices.SortFunc(report.Artifacts, func(a, b models.AudioArtifact) int {
		return a.SlideNumber - b.SlideNumber
	})

	n.logger.Info("narration finished",
		"generated", len(report.Artifacts),
		"failed", len(report.Failures),
		"workers", n.opts.Workers,
	)

	if len(report.Artifacts) == 0 {
		return report, ErrNoAudio
	}
	return report, nil
}

func (n *Narrator) narrateOne(ctx context.Context, item models.ScriptItem, dir string) (string, error) {
	if strings.TrimSpace(item.Script) == "" {
		n.logger.Warn("skipping empty script", "slide_number", item.SlideNumber)
		return "", ErrEmptyScript
	}

	ctx, cancel := context.WithTimeout(ctx, n.opts.Timeout)
	defer cancel()

	res, err := n.provider.Synthesize(ctx, tts.SynthesisRequest{
		Input:    item.Script,
		Voice:    n.opts.Voice,
		Speed:    n.opts.Speed,
		Language: n.opts.Language,
	})
	if err != nil {
		n.logger.Error("speech synthesis failed", "slide_number", item.SlideNumber, "provider", n.provider.Name(), "error", err)
		return "", fmt.Errorf("synthesize: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("slide_%d%s", item.SlideNumber, tts.Extension(res.ContentType)))
	if err := os.WriteFile(path, res.Audio, 0o644); err != nil {
		n.logger.Error("write audio failed", "slide_number", item.SlideNumber, "error", err)
		return "", fmt.Errorf("write audio: %w", err)
	}

	n.logger.Debug("audio written", "slide_number", item.SlideNumber, "path", path, "bytes", len(res.Audio))
	return path, nil
}

