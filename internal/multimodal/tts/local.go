package tts

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nikhilbhutani/slidecast/pkg/executor"
)

// LocalTTSConfig holds configuration for the local Piper TTS backend.
type LocalTTSConfig struct {
	PiperBinPath string // default: "piper"
	ModelPath    string // required: path to the .onnx voice model
}

// LocalTTS synthesizes speech using the Piper binary via subprocess.
// Voice and language are fixed by the model file; Speed maps to --length_scale.
type LocalTTS struct {
	cfg  LocalTTSConfig
	exec executor.Executor
}

// NewLocalTTS creates a LocalTTS backed by a local Piper binary.
func NewLocalTTS(cfg LocalTTSConfig, exec executor.Executor) *LocalTTS {
	if cfg.PiperBinPath == "" {
		cfg.PiperBinPath = "piper"
	}
	return &LocalTTS{cfg: cfg, exec: exec}
}

func (l *LocalTTS) Name() string { return "local-piper" }

// Synthesize pipes text into Piper via stdin. Piper writes a WAV file, which
// is read back and removed.
func (l *LocalTTS) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	if l.cfg.ModelPath == "" {
		return nil, fmt.Errorf("piper model path is required (set TTS_LOCAL_PIPER_MODEL)")
	}

	out, err := os.CreateTemp("", "piper-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create piper output: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	args := []string{"--model", l.cfg.ModelPath, "--output_file", outPath}
	if req.Speed > 0 {
		// length_scale is the inverse of speaking rate.
		args = append(args, "--length_scale", strconv.FormatFloat(1/req.Speed, 'f', 2, 64))
	}

	if _, err := l.exec.ExecuteWithInput(ctx, strings.NewReader(req.Input), l.cfg.PiperBinPath, args...); err != nil {
		return nil, fmt.Errorf("piper failed: %w", err)
	}

	audio, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read piper output: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("piper produced no audio")
	}

	return &SynthesisResult{
		Audio:       audio,
		ContentType: "audio/wav",
	}, nil
}
