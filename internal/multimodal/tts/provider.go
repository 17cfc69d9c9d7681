package tts

import (
	"context"
	"fmt"
	"mime"

	"github.com/nikhilbhutani/slidecast/internal/config"
	"github.com/nikhilbhutani/slidecast/pkg/executor"
)

// SynthesisRequest holds the parameters for text-to-speech generation.
type SynthesisRequest struct {
	Input    string  `json:"input"`
	Voice    string  `json:"voice,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Language string  `json:"language,omitempty"` // ISO 639-1, e.g. "en"
}

// SynthesisResult holds the generated audio and its content type.
type SynthesisResult struct {
	Audio       []byte
	ContentType string // "audio/mpeg" (OpenAI) or "audio/wav" (Piper)
}

// Provider is the interface for text-to-speech backends.
type Provider interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
	Name() string
}

// New returns the backend selected by cfg.Backend.
func New(cfg config.TTSConfig, exec executor.Executor) (Provider, error) {
	switch cfg.Backend {
	case "openai", "":
		return NewOpenAITTS(OpenAITTSConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}), nil
	case "local":
		return NewLocalTTS(LocalTTSConfig{
			PiperBinPath: cfg.LocalBinPath,
			ModelPath:    cfg.LocalModel,
		}, exec), nil
	default:
		return nil, fmt.Errorf("unknown tts backend %q", cfg.Backend)
	}
}

// Extension maps an audio content type to a file extension.
func Extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	switch mediaType {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/flac":
		return ".flac"
	case "audio/aac":
		return ".aac"
	default:
		return ".mp3"
	}
}
