package presentation

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/slidecast/internal/cache"
	"github.com/nikhilbhutani/slidecast/internal/composer"
	"github.com/nikhilbhutani/slidecast/internal/extractor"
	"github.com/nikhilbhutani/slidecast/internal/llm"
	"github.com/nikhilbhutani/slidecast/internal/models"
	"github.com/nikhilbhutani/slidecast/internal/multimodal/tts"
	"github.com/nikhilbhutani/slidecast/internal/narrator"
	"github.com/nikhilbhutani/slidecast/internal/prompt"
	"github.com/nikhilbhutani/slidecast/internal/script"
	"github.com/nikhilbhutani/slidecast/internal/session"
	"github.com/nikhilbhutani/slidecast/pkg/pptx/pptxtest"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeGateway answers script requests with one script per "--- Slide N ---"
// marker it finds and everything else with a fixed answer.
type fakeGateway struct {
	calls atomic.Int32
	err   error
}

func (f *fakeGateway) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	var items []string
	for _, m := range req.Messages {
		var n int
		if _, err := fmt.Sscanf(m.Content, "--- Slide %d ---", &n); err == nil {
			items = append(items, fmt.Sprintf(`{"slide_number": %d, "script": "Narration for slide %d."}`, n, n))
		}
	}
	if len(items) == 0 {
		return &llm.ChatResponse{Content: "  It grew by ten percent.  "}, nil
	}
	return &llm.ChatResponse{Content: "```json\n[" + strings.Join(items, ",") + "]\n```"}, nil
}

func (f *fakeGateway) Provider(string) (llm.Provider, error) { return nil, errors.New("unused") }

type fakeTTS struct{ fail map[string]bool }

func (f *fakeTTS) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error) {
	if f.fail[req.Input] {
		return nil, errors.New("tts down")
	}
	return &tts.SynthesisResult{Audio: []byte(req.Input), ContentType: "audio/mpeg"}, nil
}

func (f *fakeTTS) Name() string { return "fake" }

type fakeEncoder struct {
	mu       sync.Mutex
	segments []composer.Segment
	fail     bool
}

func (f *fakeEncoder) Duration(context.Context, string) (float64, error) { return 1.5, nil }

func (f *fakeEncoder) Encode(ctx context.Context, seg composer.Segment) error {
	f.mu.Lock()
	f.segments = append(f.segments, seg)
	f.mu.Unlock()
	if f.fail {
		return errors.New("encoder crashed")
	}
	return os.WriteFile(seg.Output, []byte("seg"), 0o644)
}

func (f *fakeEncoder) Concat(ctx context.Context, list, out string) error {
	return os.WriteFile(out, []byte("mp4 video"), 0o644)
}

type memCache struct {
	mu   sync.Mutex
	data map[string]AskResponse
	err  error
}

func (m *memCache) Get(ctx context.Context, key string, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	v, ok := m.data[key]
	if !ok {
		return cache.ErrMiss
	}
	*dest.(*AskResponse) = v
	return nil
}

func (m *memCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = *value.(*AskResponse)
	return nil
}

type harness struct {
	svc     *Service
	gw      *fakeGateway
	tts     *fakeTTS
	enc     *fakeEncoder
	store   *session.Store
	scratch string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		gw:      &fakeGateway{},
		tts:     &fakeTTS{},
		enc:     &fakeEncoder{},
		store:   session.NewStore(discard),
		scratch: t.TempDir(),
	}
	h.svc = NewService(Deps{
		Extractor: extractor.New(nil, 0, discard),
		Scripts:   script.New(h.gw, prompt.Default(), script.Options{}, discard),
		Narrator:  narrator.New(h.tts, narrator.Options{Workers: 4}, discard),
		Composer:  composer.New(h.enc, composer.Options{}, discard),
		Gateway:   h.gw,
		Prompts:   prompt.Default(),
		Store:     h.store,
		Logger:    discard,
	}, Options{ScratchRoot: h.scratch})
	return h
}

func threeSlideDeck() []byte {
	return pptxtest.Build(
		pptxtest.Slide{Title: "Welcome", Body: "Agenda for today", Notes: "Greet the audience"},
		pptxtest.Slide{Title: "Revenue", Image: pptxtest.PNG(8, 6, color.RGBA{R: 200, A: 255})},
		pptxtest.Slide{Title: "Regions", Table: [][]string{{"Region", "Sales"}, {"EU", "10"}}},
	)
}

func scratchEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestEndToEndThreeSlides(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Create(ctx, "quarterly.pptx", threeSlideDeck())
	require.NoError(t, err)

	assert.NotEmpty(t, res.PresentationID)
	assert.Equal(t, "quarterly.pptx", res.Filename)
	require.Len(t, res.Slides, 3)
	require.Len(t, res.Scripts, 3)
	assert.Equal(t, []string{"slide_1.mp3", "slide_2.mp3", "slide_3.mp3"}, res.AudioFiles)
	for i, sc := range res.Scripts {
		assert.Equal(t, i+1, sc.SlideNumber)
	}
	assert.Equal(t, "Greet the audience", res.Slides[0].Notes)
	assert.EqualValues(t, 1, h.gw.calls.Load(), "batched strategy makes one model call")

	path, err := h.svc.AudioPath(res.PresentationID, "slide_2.mp3")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Narration for slide 2.", string(data))

	d, err := h.svc.Video(ctx, res.PresentationID)
	require.NoError(t, err)
	assert.Equal(t, "quarterly.mp4", d.Filename)
	assert.Equal(t, 3, d.Segments)
	video, err := os.ReadFile(d.Path)
	require.NoError(t, err)
	assert.Equal(t, "mp4 video", string(video))
	require.NoError(t, d.Release())

	_, err = h.svc.Video(ctx, res.PresentationID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.svc.AudioPath(res.PresentationID, "slide_1.mp3")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, scratchEntries(t, h.scratch))
}

func TestCreateRejectsWrongExtension(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Create(context.Background(), "notes.pdf", []byte("%PDF"))
	assert.ErrorIs(t, err, ErrInvalidFile)
	assert.Empty(t, scratchEntries(t, h.scratch))
}

func TestCreateRejectsEmptyUpload(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Create(context.Background(), "deck.pptx", nil)
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func TestCreateStageFailuresCleanUp(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		data  []byte
		stage Stage
	}{
		{
			name:  "extract",
			data:  []byte("not a zip"),
			stage: StageExtract,
		},
		{
			name:  "script",
			setup: func(h *harness) { h.gw.err = errors.New("quota") },
			stage: StageScript,
		},
		{
			name: "narrate",
			setup: func(h *harness) {
				h.tts.fail = map[string]bool{
					"Narration for slide 1.": true,
					"Narration for slide 2.": true,
					"Narration for slide 3.": true,
				}
			},
			stage: StageNarrate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}
			data := tt.data
			if data == nil {
				data = threeSlideDeck()
			}

			_, err := h.svc.Create(context.Background(), "deck.pptx", data)
			var se *StageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.stage, se.Stage)
			assert.Empty(t, scratchEntries(t, h.scratch))
			assert.Equal(t, 0, h.store.Len())
		})
	}
}

func TestCreateKeepsPartialNarration(t *testing.T) {
	h := newHarness(t)
	h.tts.fail = map[string]bool{"Narration for slide 2.": true}

	res, err := h.svc.Create(context.Background(), "deck.pptx", threeSlideDeck())
	require.NoError(t, err)
	assert.Equal(t, []string{"slide_1.mp3", "slide_3.mp3"}, res.AudioFiles)

	d, err := h.svc.Video(context.Background(), res.PresentationID)
	require.NoError(t, err)
	defer d.Release()

	// Slide 3 is paired with its own audio, not slide 2's position.
	require.Len(t, h.enc.segments, 2)
	assert.Equal(t, "slide_3.mp3", filepath.Base(h.enc.segments[1].Audio))
}

func TestVideoFailureRestoresSession(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Create(context.Background(), "deck.pptx", threeSlideDeck())
	require.NoError(t, err)

	h.enc.fail = true
	_, err = h.svc.Video(context.Background(), res.PresentationID)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageCompose, se.Stage)
	assert.ErrorIs(t, err, composer.ErrNoSegments)

	h.enc.fail = false
	d, err := h.svc.Video(context.Background(), res.PresentationID)
	require.NoError(t, err)
	require.NoError(t, d.Release())
}

func TestVideoConcurrentRequestsDeliverOnce(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Create(context.Background(), "deck.pptx", threeSlideDeck())
	require.NoError(t, err)

	var delivered, missing atomic.Int32
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := h.svc.Video(context.Background(), res.PresentationID)
			if errors.Is(err, ErrNotFound) {
				missing.Add(1)
				return
			}
			if assert.NoError(t, err) {
				delivered.Add(1)
				_ = d.Release()
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, delivered.Load())
	assert.EqualValues(t, 4, missing.Load())
}

func TestAudioPathRejectsTraversal(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Create(context.Background(), "deck.pptx", threeSlideDeck())
	require.NoError(t, err)
	id := res.PresentationID

	for _, name := range []string{"", ".", "..", "../slide_1.mp3", "source.pptx", "slide_9.mp3", "sub/slide_1.mp3"} {
		_, err := h.svc.AudioPath(id, name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
	_, err = h.svc.AudioPath("unknown", "slide_1.mp3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAsk(t *testing.T) {
	h := newHarness(t)
	ctx := []models.ScriptItem{{SlideNumber: 1, Script: "Sales rose."}}

	_, err := h.svc.Ask(context.Background(), AskRequest{Question: "Why?"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	resp, err := h.svc.Ask(context.Background(), AskRequest{Question: "   ", Context: ctx})
	require.NoError(t, err)
	assert.Equal(t, &AskResponse{Answer: "", Action: ActionNext}, resp)
	assert.EqualValues(t, 0, h.gw.calls.Load())

	resp, err = h.svc.Ask(context.Background(), AskRequest{Question: "How much?", Context: ctx})
	require.NoError(t, err)
	assert.Equal(t, &AskResponse{Answer: "It grew by ten percent.", Action: ActionWait}, resp)
	assert.EqualValues(t, 1, h.gw.calls.Load())
}

func TestAskUsesCache(t *testing.T) {
	h := newHarness(t)
	mc := &memCache{data: map[string]AskResponse{}}
	h.svc.cache = mc
	req := AskRequest{Question: "How much?", Context: []models.ScriptItem{{SlideNumber: 1, Script: "Sales rose."}}}

	first, err := h.svc.Ask(context.Background(), req)
	require.NoError(t, err)
	second, err := h.svc.Ask(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, h.gw.calls.Load())
}

func TestAskIgnoresCacheErrors(t *testing.T) {
	h := newHarness(t)
	h.svc.cache = &memCache{err: errors.New("redis down")}
	req := AskRequest{Question: "How much?", Context: []models.ScriptItem{{SlideNumber: 1, Script: "Sales rose."}}}

	resp, err := h.svc.Ask(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ActionWait, resp.Action)
}

func TestAnswerKeyDependsOnContext(t *testing.T) {
	a := answerKey([]models.ScriptItem{{SlideNumber: 1, Script: "x"}}, "q")
	b := answerKey([]models.ScriptItem{{SlideNumber: 2, Script: "x"}}, "q")
	c := answerKey([]models.ScriptItem{{SlideNumber: 1, Script: "x"}}, "q")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
	assert.Len(t, a, 64)
}

func TestRenderFile(t *testing.T) {
	h := newHarness(t)
	deck := filepath.Join(t.TempDir(), "talk.pptx")
	require.NoError(t, os.WriteFile(deck, threeSlideDeck(), 0o644))
	out := filepath.Join(t.TempDir(), "videos", "talk.mp4")

	res, err := h.svc.RenderFile(context.Background(), deck, out)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Slides)
	assert.Equal(t, 3, res.Segments)
	assert.FileExists(t, out)
	assert.Empty(t, scratchEntries(t, h.scratch))
	assert.Equal(t, 0, h.store.Len())
}
