package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/slidecast/internal/llm"
	"github.com/nikhilbhutani/slidecast/internal/models"
	"github.com/nikhilbhutani/slidecast/internal/prompt"
)

var (
	ErrInvalidResponse = errors.New("invalid script response")
	ErrNoValidSlides   = errors.New("no valid slides to script")
	ErrNoScripts       = errors.New("no scripts generated")
)

type Strategy string

const (
	// Batched sends every slide in one request and requires one script per slide.
	Batched Strategy = "batched"
	// PerSlide sends one request per slide and keeps whatever succeeds.
	PerSlide Strategy = "per-slide"
)

type Options struct {
	Strategy    Strategy
	Concurrency int           // per-slide only
	Timeout     time.Duration // per model call
	Model       string        // empty uses the gateway default
}

type Generator struct {
	gateway llm.Gateway
	prompts *prompt.Library
	opts    Options
	logger  *slog.Logger
}

func New(gw llm.Gateway, prompts *prompt.Library, opts Options, logger *slog.Logger) *Generator {
	if opts.Strategy == "" {
		opts.Strategy = Batched
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Generator{gateway: gw, prompts: prompts, opts: opts, logger: logger}
}

// Generate writes one narration script per usable slide.
func (g *Generator) Generate(ctx context.Context, slides []models.SlideRecord) ([]models.ScriptItem, error) {
	valid := ValidSlides(slides, g.logger)
	if len(valid) == 0 {
		return nil, ErrNoValidSlides
	}
	g.logger.Info("generating scripts", "slides", len(valid), "strategy", g.opts.Strategy)

	if g.opts.Strategy == PerSlide {
		return g.perSlide(ctx, valid)
	}
	return g.batched(ctx, valid)
}

// ValidSlides drops slides that cannot be scripted: a non-positive number or
// no content element carrying data.
func ValidSlides(slides []models.SlideRecord, logger *slog.Logger) []models.SlideRecord {
	valid := make([]models.SlideRecord, 0, len(slides))
	for i, s := range slides {
		switch {
		case s.SlideNumber <= 0:
			logger.Error("slide has invalid number", "index", i, "slide_number", s.SlideNumber)
		case !s.HasData():
			logger.Error("slide content is empty", "index", i, "slide_number", s.SlideNumber)
		default:
			valid = append(valid, s)
		}
	}
	return valid
}

func (g *Generator) batched(ctx context.Context, slides []models.SlideRecord) ([]models.ScriptItem, error) {
	system, err := g.prompts.Get(prompt.ScriptSystem)
	if err != nil {
		return nil, err
	}

	msgs := []llm.Message{{Role: "system", Content: system}}
	want := make([]int, 0, len(slides))
	for _, s := range slides {
		msg, err := g.slideMessage(s)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
		want = append(want, s.SlideNumber)
	}

	raw, err := g.chat(ctx, msgs)
	if err != nil {
		return nil, err
	}

	items, err := parseBatch(raw, want)
	if err != nil {
		g.logger.Error("rejected script response", "error", err, "raw", truncate(raw, 2000))
		return nil, err
	}

	g.logger.Info("generated scripts", "count", len(items))
	return items, nil
}

func (g *Generator) perSlide(ctx context.Context, slides []models.SlideRecord) ([]models.ScriptItem, error) {
	system, err := g.prompts.Get(prompt.ScriptSingleSystem)
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		items []models.ScriptItem
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Concurrency)

	for _, s := range slides {
		eg.Go(func() error {
			msg, err := g.slideMessage(s)
			if err != nil {
				return err
			}

			raw, err := g.chat(egCtx, []llm.Message{{Role: "system", Content: system}, msg})
			if err != nil {
				g.logger.Error("script call failed", "slide_number", s.SlideNumber, "error", err)
				return nil
			}
			item, err := parseSingle(raw, s.SlideNumber)
			if err != nil {
				g.logger.Error("rejected script response", "slide_number", s.SlideNumber, "error", err, "raw", truncate(raw, 500))
				return nil
			}

			mu.Lock()
			items = append(items, item)
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNoScripts
	}

	sort.Slice(items, func(i, j int) bool { return items[i].SlideNumber < items[j].SlideNumber })
	g.logger.Info("generated scripts", "count", len(items), "requested", len(slides))
	return items, nil
}

// slideMessage carries the slide's notes and text plus its first image.
func (g *Generator) slideMessage(s models.SlideRecord) (llm.Message, error) {
	notes := strings.TrimSpace(s.Notes)
	if notes == "" {
		notes = "N/A"
	}

	var texts []string
	for _, el := range s.Content {
		if el.Type != models.ContentImage && strings.TrimSpace(el.Data) != "" {
			texts = append(texts, el.Data)
		}
	}
	text := strings.Join(texts, "\n")
	if text == "" {
		text = "N/A"
	}

	content, err := g.prompts.Render(prompt.ScriptSlide, map[string]string{
		"slide_number": strconv.Itoa(s.SlideNumber),
		"notes":        notes,
		"text":         text,
	})
	if err != nil {
		return llm.Message{}, err
	}

	msg := llm.Message{Role: "user", Content: content}
	if img, ok := s.FirstImage(); ok {
		msg.Images = []string{img}
	}
	return msg, nil
}

func (g *Generator) chat(ctx context.Context, msgs []llm.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	resp, err := g.gateway.Chat(ctx, llm.ChatRequest{
		Model:    g.opts.Model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("script generation: %w", err)
	}
	return resp.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
