package extractor

import (
	"context"
	"errors"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/slidecast/internal/models"
	"github.com/nikhilbhutani/slidecast/pkg/datauri"
	"github.com/nikhilbhutani/slidecast/pkg/pptx/pptxtest"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeRenderer struct {
	pages   [][]byte
	err     error
	workDir string
}

func (f *fakeRenderer) Render(_ context.Context, deckPath, workDir string) ([][]byte, error) {
	f.workDir = workDir
	if _, err := os.Stat(deckPath); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(workDir, "scratch.pdf"), []byte("x"), 0o600); err != nil {
		return nil, err
	}
	return f.pages, f.err
}

func threeSlideDeck() []byte {
	return pptxtest.Build(
		pptxtest.Slide{Title: "Intro", Notes: "Say hello."},
		pptxtest.Slide{Title: "Chart", Image: pptxtest.PNG(2, 2, color.Black)},
		pptxtest.Slide{Title: "Numbers", Table: [][]string{{"a", "b"}, {"1", "2"}}},
	)
}

func TestExtractUsesRenderedPages(t *testing.T) {
	pages := [][]byte{
		pptxtest.PNG(4, 3, color.White),
		pptxtest.PNG(4, 3, color.White),
		pptxtest.PNG(4, 3, color.White),
	}
	r := &fakeRenderer{pages: pages}
	dir := t.TempDir()

	records, err := New(r, 0, discard).Extract(context.Background(), threeSlideDeck(), dir)
	require.NoError(t, err)
	require.Len(t, records, 3)

	for i, rec := range records {
		assert.Equal(t, i+1, rec.SlideNumber)
		require.NotEmpty(t, rec.Content)
		assert.Equal(t, models.ContentImage, rec.Content[0].Type)
		assert.Equal(t, datauri.Encode("image/png", pages[i]), rec.Content[0].Data)
	}
	assert.Equal(t, "Say hello.", records[0].Notes)

	// Slide 2 keeps its own picture after the rendered page.
	require.Len(t, records[1].Content, 3)
	assert.Equal(t, models.ContentImage, records[1].Content[2].Type)

	// Render scratch is gone, the caller's dir is not.
	assert.NoDirExists(t, r.workDir)
	assert.DirExists(t, dir)
}

func TestExtractFallsBackToEmbeddedPicture(t *testing.T) {
	r := &fakeRenderer{err: errors.New("soffice not installed")}

	records, err := New(r, 0, discard).Extract(context.Background(), threeSlideDeck(), t.TempDir())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, models.ContentText, records[0].Content[0].Type)

	// The picture is moved ahead of the title.
	require.Len(t, records[1].Content, 2)
	assert.Equal(t, models.ContentImage, records[1].Content[0].Type)
	assert.True(t, strings.HasPrefix(records[1].Content[0].Data, "data:image/png;base64,"))
	assert.Equal(t, "Chart", records[1].Content[1].Data)

	assert.Equal(t, models.ContentTable, records[2].Content[1].Type)
}

func TestExtractIgnoresMismatchedPageCount(t *testing.T) {
	r := &fakeRenderer{pages: [][]byte{pptxtest.PNG(1, 1, color.White)}}

	records, err := New(r, 0, discard).Extract(context.Background(), threeSlideDeck(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, models.ContentText, records[0].Content[0].Type)
}

func TestExtractWithoutRenderer(t *testing.T) {
	records, err := New(nil, 0, discard).Extract(context.Background(), threeSlideDeck(), t.TempDir())
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestExtractInvalidDeck(t *testing.T) {
	records, err := New(nil, 0, discard).Extract(context.Background(), []byte("nope"), t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidDeck)
	assert.Empty(t, records)
}

func TestExtractEmptyDeck(t *testing.T) {
	_, err := New(nil, 0, discard).Extract(context.Background(), pptxtest.Build(), t.TempDir())
	assert.ErrorIs(t, err, ErrNoSlides)
}
