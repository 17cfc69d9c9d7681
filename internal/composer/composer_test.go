package composer

import (
	"context"
	"errors"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/slidecast/internal/models"
	"github.com/nikhilbhutani/slidecast/pkg/datauri"
	"github.com/nikhilbhutani/slidecast/pkg/pptx/pptxtest"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeEncoder writes marker files instead of running ffmpeg.
type fakeEncoder struct {
	mu       sync.Mutex
	segments []Segment
	list     string
	failOn   map[string]bool // audio paths whose segment fails
}

func (f *fakeEncoder) Duration(ctx context.Context, audioPath string) (float64, error) {
	return 2.5, nil
}

func (f *fakeEncoder) Encode(ctx context.Context, seg Segment) error {
	f.mu.Lock()
	f.segments = append(f.segments, seg)
	f.mu.Unlock()
	if f.failOn[seg.Audio] {
		return errors.New("encoder crashed")
	}
	return os.WriteFile(seg.Output, []byte("segment"), 0o644)
}

func (f *fakeEncoder) Concat(ctx context.Context, listPath, outPath string) error {
	data, err := os.ReadFile(listPath)
	if err != nil {
		return err
	}
	f.list = string(data)
	return os.WriteFile(outPath, []byte("video"), 0o644)
}

func slideWithImage(n int) models.SlideRecord {
	return models.SlideRecord{
		SlideNumber: n,
		Content: []models.ContentElement{
			{Type: models.ContentImage, Data: datauri.Encode("image/png", pptxtest.PNG(4, 3, color.White))},
			{Type: models.ContentText, Data: "text"},
		},
	}
}

func audioFiles(t *testing.T, dir string, n int) []string {
	t.Helper()
	var paths []string
	for i := 1; i <= n; i++ {
		p := filepath.Join(dir, "slide_"+string(rune('0'+i))+".mp3")
		require.NoError(t, os.WriteFile(p, []byte("mp3"), 0o644))
		paths = append(paths, p)
	}
	return paths
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestComposeAllSlides(t *testing.T) {
	dir := t.TempDir()
	enc := &fakeEncoder{}
	c := New(enc, Options{}, discard)

	slides := []models.SlideRecord{slideWithImage(1), slideWithImage(2), slideWithImage(3)}
	res, err := c.Compose(context.Background(), slides, audioFiles(t, dir, 3), dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, OutputName), res.Path)
	assert.Equal(t, 3, res.Segments)
	assert.Empty(t, res.Skipped)

	require.Len(t, enc.segments, 3)
	for _, seg := range enc.segments {
		assert.Equal(t, 24, seg.FPS)
		assert.Equal(t, 1280, seg.Width)
		assert.Equal(t, 720, seg.Height)
		assert.InDelta(t, 2.5, seg.Duration, 0.001)
	}
	assert.Equal(t, 3, strings.Count(enc.list, "file '"))

	// Only the audio and the final video remain.
	assert.Equal(t, []string{OutputName, "slide_1.mp3", "slide_2.mp3", "slide_3.mp3"}, listDir(t, dir))
}

func TestComposeSkipsSlidesWithoutAudio(t *testing.T) {
	dir := t.TempDir()
	c := New(&fakeEncoder{}, Options{}, discard)

	slides := []models.SlideRecord{slideWithImage(1), slideWithImage(2), slideWithImage(3)}
	res, err := c.Compose(context.Background(), slides, audioFiles(t, dir, 2), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Segments)
	assert.Equal(t, []int{3}, res.Skipped)
}

func TestComposeSkipsFailedSegment(t *testing.T) {
	dir := t.TempDir()
	audio := audioFiles(t, dir, 3)
	enc := &fakeEncoder{failOn: map[string]bool{audio[1]: true}}
	c := New(enc, Options{}, discard)

	slides := []models.SlideRecord{slideWithImage(1), slideWithImage(2), slideWithImage(3)}
	res, err := c.Compose(context.Background(), slides, audio, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Segments)
	assert.Equal(t, []int{2}, res.Skipped)
	assert.NotContains(t, enc.list, "segment_2.mp4")
	assert.NotContains(t, listDir(t, dir), "segment_2.mp4")
}

func TestComposeNoSegments(t *testing.T) {
	dir := t.TempDir()
	c := New(&fakeEncoder{}, Options{}, discard)

	res, err := c.Compose(context.Background(), []models.SlideRecord{slideWithImage(1)}, nil, dir)
	assert.ErrorIs(t, err, ErrNoSegments)
	assert.Nil(t, res)
	assert.NoFileExists(t, filepath.Join(dir, OutputName))
	assert.Empty(t, listDir(t, dir))
}

func TestComposeUsesPlaceholderFrame(t *testing.T) {
	dir := t.TempDir()
	enc := &fakeEncoder{}
	c := New(enc, Options{Width: 64, Height: 36}, discard)

	slides := []models.SlideRecord{
		{SlideNumber: 1, Content: []models.ContentElement{{Type: models.ContentText, Data: "no picture"}}},
		{SlideNumber: 2, Content: []models.ContentElement{{Type: models.ContentImage, Data: datauri.Encode("image/png", []byte("not a png"))}}},
	}

	var frames [][]byte
	c.enc = &frameCapture{Encoder: enc, frames: &frames}

	_, err := c.Compose(context.Background(), slides, audioFiles(t, dir, 2), dir)
	require.NoError(t, err)

	require.Len(t, frames, 2)
	for _, f := range frames {
		assert.Equal(t, Placeholder(64, 36), f)
	}
}

// frameCapture records frame bytes before they are cleaned up.
type frameCapture struct {
	Encoder
	frames *[][]byte
}

func (f *frameCapture) Encode(ctx context.Context, seg Segment) error {
	data, err := os.ReadFile(seg.Image)
	if err != nil {
		return err
	}
	*f.frames = append(*f.frames, data)
	return f.Encoder.Encode(ctx, seg)
}

func TestWriteConcatListQuotes(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.txt")
	require.NoError(t, writeConcatList(list, []string{filepath.Join(dir, "it's.mp4")}))

	data, err := os.ReadFile(list)
	require.NoError(t, err)
	assert.Equal(t, "file '"+filepath.Join(dir, `it'\''s.mp4`)+"'\n", string(data))
}
