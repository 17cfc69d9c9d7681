package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAITTSConfig holds configuration for the OpenAI TTS backend.
type OpenAITTSConfig struct {
	APIKey  string
	BaseURL string // empty uses the client default
	Model   string // default: "tts-1"
}

// OpenAITTS synthesizes MP3 narration through the speech endpoint.
type OpenAITTS struct {
	client *openai.Client
	model  openai.SpeechModel
}

func NewOpenAITTS(cfg OpenAITTSConfig) *OpenAITTS {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := openai.SpeechModel(cfg.Model)
	if model == "" {
		model = openai.TTSModel1
	}
	return &OpenAITTS{client: openai.NewClientWithConfig(clientCfg), model: model}
}

func (o *OpenAITTS) Name() string { return "openai-tts" }

// Synthesize always asks for MP3. The endpoint detects the spoken language
// from the input; only the gpt-4o speech models accept an explicit hint.
func (o *OpenAITTS) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	voice := openai.SpeechVoice(req.Voice)
	if voice == "" {
		voice = openai.VoiceAlloy
	}

	speechReq := openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          req.Input,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          req.Speed,
	}
	if req.Language != "" && strings.HasPrefix(string(o.model), "gpt-4o") {
		speechReq.Instructions = fmt.Sprintf("Speak in the language with ISO code %q.", req.Language)
	}

	resp, err := o.client.CreateSpeech(ctx, speechReq)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("tts returned no audio")
	}
	return &SynthesisResult{Audio: audio, ContentType: "audio/mpeg"}, nil
}
