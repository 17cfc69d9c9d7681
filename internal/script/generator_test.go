package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/slidecast/internal/llm"
	"github.com/nikhilbhutani/slidecast/internal/models"
	"github.com/nikhilbhutani/slidecast/internal/prompt"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeGateway struct {
	mu      sync.Mutex
	reqs    []llm.ChatRequest
	respond func(req llm.ChatRequest) (string, error)
}

func (f *fakeGateway) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	out, err := f.respond(req)
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{Content: out}, nil
}

func (f *fakeGateway) Provider(name string) (llm.Provider, error) { return nil, errors.New("unused") }

func slide(n int, text, notes string) models.SlideRecord {
	return models.SlideRecord{
		SlideNumber: n,
		Content:     []models.ContentElement{{Type: models.ContentText, Data: text}},
		Notes:       notes,
	}
}

func TestGenerateBatched(t *testing.T) {
	gw := &fakeGateway{respond: func(llm.ChatRequest) (string, error) {
		return "```json\n[{\"slide_number\":1,\"script\":\"Welcome.\"},{\"slide_number\":2,\"script\":\"Numbers.\"}]\n```", nil
	}}
	g := New(gw, prompt.Default(), Options{}, discard)

	s2 := slide(2, "Revenue", "")
	s2.Content = append([]models.ContentElement{{Type: models.ContentImage, Data: "data:image/png;base64,AAAA"}}, s2.Content...)

	items, err := g.Generate(context.Background(), []models.SlideRecord{slide(1, "Intro", "say hi"), s2})
	require.NoError(t, err)
	assert.Equal(t, []models.ScriptItem{{SlideNumber: 1, Script: "Welcome."}, {SlideNumber: 2, Script: "Numbers."}}, items)

	require.Len(t, gw.reqs, 1)
	msgs := gw.reqs[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "--- Slide 1 ---\nPresenter Notes: say hi\nSlide Text: Intro", msgs[1].Content)
	assert.Empty(t, msgs[1].Images)
	assert.Equal(t, "--- Slide 2 ---\nPresenter Notes: N/A\nSlide Text: Revenue", msgs[2].Content)
	assert.Equal(t, []string{"data:image/png;base64,AAAA"}, msgs[2].Images)
}

func TestGenerateBatchedRejectsPartialResponse(t *testing.T) {
	gw := &fakeGateway{respond: func(llm.ChatRequest) (string, error) {
		return `[{"slide_number":1,"script":"Only one."}]`, nil
	}}
	g := New(gw, prompt.Default(), Options{Strategy: Batched}, discard)

	_, err := g.Generate(context.Background(), []models.SlideRecord{slide(1, "a", ""), slide(2, "b", "")})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestGenerateSkipsInvalidSlides(t *testing.T) {
	gw := &fakeGateway{respond: func(llm.ChatRequest) (string, error) {
		return `[{"slide_number":3,"script":"Kept."}]`, nil
	}}
	g := New(gw, prompt.Default(), Options{}, discard)

	empty := models.SlideRecord{SlideNumber: 2, Content: []models.ContentElement{{Type: models.ContentText}}}
	items, err := g.Generate(context.Background(), []models.SlideRecord{slide(0, "zero", ""), empty, slide(3, "ok", "")})
	require.NoError(t, err)
	assert.Equal(t, []models.ScriptItem{{SlideNumber: 3, Script: "Kept."}}, items)
}

func TestGenerateNoValidSlides(t *testing.T) {
	gw := &fakeGateway{respond: func(llm.ChatRequest) (string, error) { return "", nil }}
	g := New(gw, prompt.Default(), Options{}, discard)

	_, err := g.Generate(context.Background(), []models.SlideRecord{{SlideNumber: 1}})
	assert.ErrorIs(t, err, ErrNoValidSlides)
	assert.Empty(t, gw.reqs)
}

func TestGenerateGatewayError(t *testing.T) {
	gw := &fakeGateway{respond: func(llm.ChatRequest) (string, error) { return "", errors.New("quota exceeded") }}
	g := New(gw, prompt.Default(), Options{}, discard)

	_, err := g.Generate(context.Background(), []models.SlideRecord{slide(1, "a", "")})
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestGeneratePerSlideKeepsSuccesses(t *testing.T) {
	gw := &fakeGateway{respond: func(req llm.ChatRequest) (string, error) {
		user := req.Messages[len(req.Messages)-1].Content
		switch {
		case strings.Contains(user, "Slide 2 "):
			return "", errors.New("timeout")
		case strings.Contains(user, "Slide 3 "):
			return "not json", nil
		}
		var n int
		_, _ = fmt.Sscanf(user, "--- Slide %d ---", &n)
		return fmt.Sprintf(`{"slide_number": %d, "script": "Script %d."}`, n, n), nil
	}}
	g := New(gw, prompt.Default(), Options{Strategy: PerSlide, Concurrency: 2}, discard)

	slides := []models.SlideRecord{slide(1, "a", ""), slide(2, "b", ""), slide(3, "c", ""), slide(4, "d", "")}
	items, err := g.Generate(context.Background(), slides)
	require.NoError(t, err)
	assert.Equal(t, []models.ScriptItem{
		{SlideNumber: 1, Script: "Script 1."},
		{SlideNumber: 4, Script: "Script 4."},
	}, items)
	assert.Len(t, gw.reqs, 4)
	for _, r := range gw.reqs {
		assert.Len(t, r.Messages, 2)
	}
}

func TestGeneratePerSlideAllFail(t *testing.T) {
	gw := &fakeGateway{respond: func(llm.ChatRequest) (string, error) { return "", errors.New("down") }}
	g := New(gw, prompt.Default(), Options{Strategy: PerSlide}, discard)

	_, err := g.Generate(context.Background(), []models.SlideRecord{slide(1, "a", "")})
	assert.ErrorIs(t, err, ErrNoScripts)
}
