// Package presentation runs the deck-to-video pipeline and owns the lifecycle
// of each presentation's scratch directory.
package presentation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/slidecast/internal/composer"
	"github.com/nikhilbhutani/slidecast/internal/llm"
	"github.com/nikhilbhutani/slidecast/internal/models"
	"github.com/nikhilbhutani/slidecast/internal/narrator"
	"github.com/nikhilbhutani/slidecast/internal/prompt"
	"github.com/nikhilbhutani/slidecast/internal/session"
)

var (
	ErrNotFound       = errors.New("presentation not found")
	ErrInvalidFile    = errors.New("invalid file type, expected a .pptx file")
	ErrInvalidRequest = errors.New("invalid request")
)

// Stage names a pipeline step in errors and logs.
type Stage string

const (
	StageExtract Stage = "extract"
	StageScript  Stage = "script"
	StageNarrate Stage = "narrate"
	StageCompose Stage = "compose"
)

// StageError reports which step of the pipeline failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type Extractor interface {
	Extract(ctx context.Context, data []byte, workDir string) ([]models.SlideRecord, error)
}

type ScriptWriter interface {
	Generate(ctx context.Context, slides []models.SlideRecord) ([]models.ScriptItem, error)
}

type Narrator interface {
	Narrate(ctx context.Context, scripts []models.ScriptItem, dir string) (*narrator.Report, error)
}

type Composer interface {
	Compose(ctx context.Context, slides []models.SlideRecord, audio []string, dir string) (*composer.Result, error)
}

// AnswerCache stores Q&A answers. Satisfied by *cache.Cache.
type AnswerCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type Deps struct {
	Extractor Extractor
	Scripts   ScriptWriter
	Narrator  Narrator
	Composer  Composer
	Gateway   llm.Gateway
	Prompts   *prompt.Library
	Store     *session.Store
	Cache     AnswerCache // optional
	Logger    *slog.Logger
}

type Options struct {
	ScratchRoot string        // parent of per-presentation dirs; empty means os.TempDir
	AnswerTTL   time.Duration // cache lifetime of Q&A answers
	AskTimeout  time.Duration
}

type Service struct {
	extractor Extractor
	scripts   ScriptWriter
	narrator  Narrator
	composer  Composer
	gateway   llm.Gateway
	prompts   *prompt.Library
	store     *session.Store
	cache     AnswerCache
	opts      Options
	logger    *slog.Logger
}

func NewService(deps Deps, opts Options) *Service {
	if opts.AnswerTTL <= 0 {
		opts.AnswerTTL = time.Hour
	}
	if opts.AskTimeout <= 0 {
		opts.AskTimeout = time.Minute
	}
	return &Service{
		extractor: deps.Extractor,
		scripts:   deps.Scripts,
		narrator:  deps.Narrator,
		composer:  deps.Composer,
		gateway:   deps.Gateway,
		prompts:   deps.Prompts,
		store:     deps.Store,
		cache:     deps.Cache,
		opts:      opts,
		logger:    deps.Logger,
	}
}

// CreateResult is returned to the client after a successful upload.
type CreateResult struct {
	PresentationID string               `json:"presentation_id"`
	Filename       string               `json:"filename"`
	Slides         []models.SlideRecord `json:"slides"`
	Scripts        []models.ScriptItem  `json:"scripts"`
	AudioFiles     []string             `json:"audio_files"`
}

// Create extracts, scripts and narrates the deck, then stores the session.
// The video is built later by Video.
func (s *Service) Create(ctx context.Context, filename string, data []byte) (*CreateResult, error) {
	sess, err := s.build(ctx, filename, data)
	if err != nil {
		return nil, err
	}
	s.store.Put(sess)

	s.logger.Info("presentation created",
		"presentation_id", sess.ID,
		"filename", sess.Filename,
		"slides", len(sess.Slides),
		"scripts", len(sess.Scripts),
		"audio", len(sess.Audio),
	)

	return &CreateResult{
		PresentationID: sess.ID,
		Filename:       sess.Filename,
		Slides:         sess.Slides,
		Scripts:        sess.Scripts,
		AudioFiles:     sess.AudioNames(),
	}, nil
}

// build runs extraction, scripting and narration in a fresh scratch dir. The
// dir is removed on every failure path, panics included.
func (s *Service) build(ctx context.Context, filename string, data []byte) (*session.Session, error) {
	filename = filepath.Base(filename)
	if !strings.EqualFold(filepath.Ext(filename), ".pptx") || len(data) == 0 {
		return nil, ErrInvalidFile
	}

	root := s.opts.ScratchRoot
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create scratch root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(root, "presentation-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	ok := false
	defer func() {
		if ok {
			return
		}
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			s.logger.Error("remove scratch dir", "dir", dir, "error", rmErr)
		}
	}()

	if err := os.WriteFile(filepath.Join(dir, "source.pptx"), data, 0o600); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	start := time.Now()
	slides, err := s.extractor.Extract(ctx, data, dir)
	if err == nil && len(slides) == 0 {
		err = errors.New("no content extracted")
	}
	if err != nil {
		return nil, s.stageFailed(StageExtract, filename, err)
	}
	s.logger.Debug("stage done", "stage", StageExtract, "slides", len(slides), "took", time.Since(start))

	start = time.Now()
	scripts, err := s.scripts.Generate(ctx, slides)
	if err == nil && len(scripts) == 0 {
		err = errors.New("no scripts generated")
	}
	if err != nil {
		return nil, s.stageFailed(StageScript, filename, err)
	}
	s.logger.Debug("stage done", "stage", StageScript, "scripts", len(scripts), "took", time.Since(start))

	start = time.Now()
	report, err := s.narrator.Narrate(ctx, scripts, dir)
	if err != nil {
		return nil, s.stageFailed(StageNarrate, filename, err)
	}
	for _, f := range report.Failures {
		s.logger.Warn("slide has no narration", "slide_number", f.SlideNumber, "error", f.Err)
	}
	s.logger.Debug("stage done", "stage", StageNarrate, "audio", len(report.Artifacts), "took", time.Since(start))

	ok = true
	return &session.Session{
		ID:       uuid.NewString(),
		Filename: filename,
		Slides:   slides,
		Scripts:  scripts,
		Audio:    report.Artifacts,
		Dir:      dir,
	}, nil
}

func (s *Service) stageFailed(stage Stage, filename string, err error) error {
	s.logger.Error("pipeline stage failed", "stage", stage, "filename", filename, "error", err)
	return &StageError{Stage: stage, Err: err}
}

// Delivery is a composed video. Release must be called once the file has been
// sent; it deletes the presentation's scratch directory.
type Delivery struct {
	Path     string
	Filename string
	Segments int
	Skipped  []int

	release func() error
}

func NewDelivery(path, filename string, release func() error) *Delivery {
	return &Delivery{Path: path, Filename: filename, release: release}
}

func (d *Delivery) Release() error {
	if d.release == nil {
		return nil
	}
	return d.release()
}

// Video composes the stored presentation. The session leaves the store for
// good once the video is built, so a second call for the same id is
// ErrNotFound. If composition fails the session is put back for a retry.
func (s *Service) Video(ctx context.Context, id string) (*Delivery, error) {
	sess, ok := s.store.Take(id)
	if !ok {
		return nil, ErrNotFound
	}

	res, err := s.compose(ctx, sess)
	if err != nil {
		s.logger.Error("pipeline stage failed", "stage", StageCompose, "presentation_id", id, "error", err)
		s.store.Put(sess)
		return nil, &StageError{Stage: StageCompose, Err: err}
	}

	s.logger.Info("video ready", "presentation_id", id, "segments", res.Segments, "skipped", res.Skipped)
	return &Delivery{
		Path:     res.Path,
		Filename: strings.TrimSuffix(sess.Filename, filepath.Ext(sess.Filename)) + ".mp4",
		Segments: res.Segments,
		Skipped:  res.Skipped,
		release: func() error {
			s.logger.Info("presentation delivered, removing", "presentation_id", id)
			return sess.Close()
		},
	}, nil
}

// compose pairs each slide with its narration by slide number so the lists
// handed to the composer line up by position.
func (s *Service) compose(ctx context.Context, sess *session.Session) (*composer.Result, error) {
	audioBySlide := make(map[int]string, len(sess.Audio))
	for _, a := range sess.Audio {
		audioBySlide[a.SlideNumber] = a.Path
	}

	slides := make([]models.SlideRecord, 0, len(sess.Slides))
	audio := make([]string, 0, len(sess.Audio))
	for _, sl := range sess.Slides {
		path, ok := audioBySlide[sl.SlideNumber]
		if !ok {
			s.logger.Warn("slide has no audio, leaving it out of the video", "presentation_id", sess.ID, "slide_number", sl.SlideNumber)
			continue
		}
		slides = append(slides, sl)
		audio = append(audio, path)
	}

	return s.composer.Compose(ctx, slides, audio, sess.Dir)
}

// AudioPath resolves one of the presentation's narration files. Only the
// base names returned by Create are served.
func (s *Service) AudioPath(id, filename string) (string, error) {
	sess, ok := s.store.Get(id)
	if !ok {
		return "", ErrNotFound
	}
	if filename == "" || filename != filepath.Base(filename) || !slices.Contains(sess.AudioNames(), filename) {
		return "", ErrNotFound
	}

	path := filepath.Join(sess.Dir, filename)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return path, nil
}

// Len reports how many presentations are waiting for their video.
func (s *Service) Len() int {
	return s.store.Len()
}
