package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nikhilbhutani/slidecast/internal/models"
	"github.com/nikhilbhutani/slidecast/pkg/datauri"
	"github.com/nikhilbhutani/slidecast/pkg/pptx"
)

var (
	ErrInvalidDeck = errors.New("invalid presentation file")
	ErrNoSlides    = errors.New("presentation has no slides")
)

// Renderer turns a deck on disk into one PNG per slide, in slide order.
// Scratch files must stay under workDir.
type Renderer interface {
	Render(ctx context.Context, deckPath, workDir string) ([][]byte, error)
}

type Extractor struct {
	renderer Renderer
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates an Extractor. A nil renderer disables slide rendering and the
// first embedded picture of each slide becomes its visual.
func New(renderer Renderer, timeout time.Duration, logger *slog.Logger) *Extractor {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Extractor{renderer: renderer, timeout: timeout, logger: logger}
}

// Extract parses the deck and returns one record per slide. workDir is owned by
// the caller; the extractor only creates short-lived files beneath it.
func (e *Extractor) Extract(ctx context.Context, data []byte, workDir string) ([]models.SlideRecord, error) {
	deck, err := pptx.Open(data)
	if err != nil {
		e.logger.Error("parse presentation", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidDeck, err)
	}
	if len(deck.Slides) == 0 {
		return nil, ErrNoSlides
	}

	pages := e.render(ctx, data, workDir, len(deck.Slides))

	records := make([]models.SlideRecord, 0, len(deck.Slides))
	for i, s := range deck.Slides {
		var page []byte
		if pages != nil {
			page = pages[i]
		}
		records = append(records, toRecord(s, page))
	}

	e.logger.Info("extracted presentation", "slides", len(records), "rendered", pages != nil)
	return records, nil
}

// render returns nil when rendering is disabled, fails, or disagrees with the
// parsed slide count.
func (e *Extractor) render(ctx context.Context, data []byte, workDir string, slideCount int) [][]byte {
	if e.renderer == nil {
		return nil
	}

	dir, err := os.MkdirTemp(workDir, "render-*")
	if err != nil {
		e.logger.Warn("create render dir", "error", err)
		return nil
	}
	defer os.RemoveAll(dir)

	deckPath := filepath.Join(dir, "deck.pptx")
	if err := os.WriteFile(deckPath, data, 0o600); err != nil {
		e.logger.Warn("write deck for rendering", "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	pages, err := e.renderer.Render(ctx, deckPath, dir)
	if err != nil {
		e.logger.Warn("render slides, falling back to embedded pictures", "error", err)
		return nil
	}
	if len(pages) != slideCount {
		e.logger.Warn("rendered page count does not match slides, falling back to embedded pictures",
			"pages", len(pages), "slides", slideCount)
		return nil
	}
	return pages
}

// toRecord converts a parsed slide. The slide visual always comes first: the
// rendered page when there is one, otherwise the first embedded picture.
func toRecord(s pptx.Slide, page []byte) models.SlideRecord {
	content := make([]models.ContentElement, 0, len(s.Elements)+1)
	if len(page) > 0 {
		content = append(content, models.ContentElement{
			Type: models.ContentImage,
			Data: datauri.Encode("image/png", page),
		})
	}

	lead := -1
	if len(page) == 0 {
		for i, el := range s.Elements {
			if el.Kind == pptx.KindPicture {
				lead = i
				break
			}
		}
		if lead >= 0 {
			content = append(content, toElement(s.Elements[lead]))
		}
	}

	for i, el := range s.Elements {
		if i == lead {
			continue
		}
		content = append(content, toElement(el))
	}

	return models.SlideRecord{
		SlideNumber: s.Number,
		Content:     content,
		Notes:       s.Notes,
	}
}

func toElement(el pptx.Element) models.ContentElement {
	switch el.Kind {
	case pptx.KindPicture:
		return models.ContentElement{Type: models.ContentImage, Data: datauri.Encode(el.MIME, el.Data)}
	case pptx.KindTable:
		return models.ContentElement{Type: models.ContentTable, Data: el.Text}
	default:
		return models.ContentElement{Type: models.ContentText, Data: el.Text}
	}
}
