package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/nikhilbhutani/slidecast/pkg/datauri"
)

type GeminiProvider struct {
	apiKey string
}

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Models() []string {
	return []string{
		"gemini-2.0-flash", "gemini-1.5-flash", "gemini-1.5-pro",
	}
}

// geminiContents maps chat messages onto Gemini turns. The system message
// becomes the system instruction and adjacent messages of the same role are
// merged, since Gemini expects user and model turns to alternate.
func geminiContents(msgs []Message) (*genai.Content, []*genai.Content, error) {
	var system *genai.Content
	var contents []*genai.Content

	for _, m := range msgs {
		if m.Role == "system" {
			system = genai.NewUserContent(genai.Text(m.Content))
			continue
		}

		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}

		var parts []genai.Part
		if m.Content != "" {
			parts = append(parts, genai.Text(m.Content))
		}
		for _, img := range m.Images {
			mimeType, data, err := datauri.Decode(img)
			if err != nil {
				return nil, nil, fmt.Errorf("gemini image: %w", err)
			}
			parts = append(parts, genai.Blob{MIMEType: mimeType, Data: data})
		}
		if len(parts) == 0 {
			continue
		}

		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	if len(contents) == 0 || contents[len(contents)-1].Role != "user" {
		return nil, nil, fmt.Errorf("gemini chat: last message must come from the user")
	}
	return system, contents, nil
}

func (p *GeminiProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	system, contents, err := geminiContents(req.Messages)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(req.Model)
	model.SystemInstruction = system
	if req.Temperature > 0 {
		model.SetTemperature(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.TopP > 0 {
		model.SetTopP(float32(req.TopP))
	}
	if len(req.Stop) > 0 {
		model.StopSequences = req.Stop
	}

	cs := model.StartChat()
	last := contents[len(contents)-1]
	cs.History = contents[:len(contents)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini chat: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini chat: no candidates returned")
	}

	var content strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			content.WriteString(string(txt))
		}
	}

	var inputTokens, outputTokens int
	if resp.UsageMetadata != nil {
		inputTokens = int(resp.UsageMetadata.PromptTokenCount)
		outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return &ChatResponse{
		Provider:     "gemini",
		Model:        req.Model,
		Content:      content.String(),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		CostUSD:      CalculateCost(req.Model, inputTokens, outputTokens),
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}
