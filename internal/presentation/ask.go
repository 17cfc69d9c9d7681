package presentation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nikhilbhutani/slidecast/internal/cache"
	"github.com/nikhilbhutani/slidecast/internal/llm"
	"github.com/nikhilbhutani/slidecast/internal/models"
	"github.com/nikhilbhutani/slidecast/internal/prompt"
)

// Actions returned with an answer, telling the player what to do next.
const (
	ActionNext = "next"
	ActionWait = "wait"
)

type AskRequest struct {
	PresentationID string              `json:"presentation_id"`
	Question       string              `json:"question"`
	Context        []models.ScriptItem `json:"context"`
}

type AskResponse struct {
	Answer string `json:"answer"`
	Action string `json:"action"`
}

// Ask answers a viewer's question from the supplied scripts. It does not
// consult the session store. A blank question means "carry on" and never
// reaches the model.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	if len(req.Context) == 0 {
		return nil, fmt.Errorf("%w: context is required", ErrInvalidRequest)
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return &AskResponse{Answer: "", Action: ActionNext}, nil
	}

	key := answerKey(req.Context, question)
	if s.cache != nil {
		var cached AskResponse
		err := s.cache.Get(ctx, key, &cached)
		switch {
		case err == nil:
			s.logger.Debug("answer cache hit", "presentation_id", req.PresentationID)
			return &cached, nil
		case !errors.Is(err, cache.ErrMiss):
			s.logger.Warn("answer cache read failed", "error", err)
		}
	}

	system, err := s.prompts.Get(prompt.AskSystem)
	if err != nil {
		return nil, err
	}
	user, err := s.prompts.Render(prompt.AskUser, map[string]string{
		"context":  formatContext(req.Context),
		"question": question,
	})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.AskTimeout)
	defer cancel()

	resp, err := s.gateway.Chat(callCtx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		s.logger.Error("answer question", "presentation_id", req.PresentationID, "error", err)
		return nil, fmt.Errorf("ask: %w", err)
	}

	answer := &AskResponse{Answer: strings.TrimSpace(resp.Content), Action: ActionWait}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, answer, s.opts.AnswerTTL); err != nil {
			s.logger.Warn("answer cache write failed", "error", err)
		}
	}
	return answer, nil
}

func formatContext(items []models.ScriptItem) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Slide ")
		b.WriteString(strconv.Itoa(it.SlideNumber))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(it.Script))
	}
	return b.String()
}

// answerKey hashes the question together with the scripts it is asked against.
func answerKey(items []models.ScriptItem, question string) string {
	h := sha256.New()
	for _, it := range items {
		fmt.Fprintf(h, "%d\x00%s\x00", it.SlideNumber, it.Script)
	}
	h.Write([]byte{0x1e})
	h.Write([]byte(question))
	return hex.EncodeToString(h.Sum(nil))
}
