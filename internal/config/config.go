package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Redis   RedisConfig   `yaml:"redis"`
	LLM     LLMConfig     `yaml:"llm"`
	Script  ScriptConfig  `yaml:"script"`
	TTS     TTSConfig     `yaml:"tts"`
	Render  RenderConfig  `yaml:"render"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	CORSOrigins    []string `yaml:"cors_origins"`
	MaxUploadMB    int      `yaml:"max_upload_mb"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

// RedisConfig configures the answer cache. An empty Addr disables it.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	AnswerTTL time.Duration `yaml:"answer_ttl"`
}

type LLMConfig struct {
	OpenAIKey        string        `yaml:"openai_key"`
	AnthropicKey     string        `yaml:"anthropic_key"`
	GeminiKey        string        `yaml:"gemini_key"`
	OllamaURL        string        `yaml:"ollama_url"`
	DefaultProvider  string        `yaml:"default_provider"`
	DefaultModel     string        `yaml:"default_model"`
	FallbackProvider string        `yaml:"fallback_provider"`
	MaxRetries       int           `yaml:"max_retries"`
	Timeout          time.Duration `yaml:"timeout"`
}

type ScriptConfig struct {
	Strategy    string `yaml:"strategy"` // "batched" or "per-slide"
	Concurrency int    `yaml:"concurrency"`
	PromptsFile string `yaml:"prompts_file"`
}

type TTSConfig struct {
	Backend       string        `yaml:"backend"` // "openai" or "local"
	OpenAIKey     string        `yaml:"openai_key"`
	OpenAIBaseURL string        `yaml:"openai_base_url"`
	OpenAIModel   string        `yaml:"openai_model"`
	LocalBinPath  string        `yaml:"local_bin_path"` // default: "piper"
	LocalModel    string        `yaml:"local_model"`    // required when backend=local
	Language      string        `yaml:"language"` // ISO 639-1; gpt-4o speech models only
	Voice         string        `yaml:"voice"`
	Workers       int           `yaml:"workers"`
	Timeout       time.Duration `yaml:"timeout"`
}

type RenderConfig struct {
	Slides      bool          `yaml:"slides"` // render slide images with LibreOffice
	SofficeBin  string        `yaml:"soffice_bin"`
	PdftoppmBin string        `yaml:"pdftoppm_bin"`
	FFmpegBin   string        `yaml:"ffmpeg_bin"`
	FFprobeBin  string        `yaml:"ffprobe_bin"`
	DPI         int           `yaml:"dpi"`
	FPS         int           `yaml:"fps"`
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	Timeout     time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	ScratchRoot   string        `yaml:"scratch_root"`
	MaxAge        time.Duration `yaml:"max_age"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "json" or "text"
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			CORSOrigins:    []string{"http://localhost:5173"},
			MaxUploadMB:    50,
			RateLimitRPS:   5,
			RateLimitBurst: 10,
		},
		Redis: RedisConfig{
			AnswerTTL: time.Hour,
		},
		LLM: LLMConfig{
			OllamaURL:       "http://localhost:11434",
			DefaultProvider: "gemini",
			DefaultModel:    "gemini-2.0-flash",
			MaxRetries:      3,
			Timeout:         2 * time.Minute,
		},
		Script: ScriptConfig{
			Strategy:    "batched",
			Concurrency: 4,
		},
		TTS: TTSConfig{
			Backend:      "openai",
			LocalBinPath: "piper",
			Workers:      min(8, runtime.NumCPU()),
			Timeout:      time.Minute,
		},
		Render: RenderConfig{
			Slides:     true,
			FFmpegBin:  "ffmpeg",
			FFprobeBin: "ffprobe",
			DPI:        96,
			FPS:        24,
			Width:      1280,
			Height:     720,
			Timeout:    5 * time.Minute,
		},
		Session: SessionConfig{
			MaxAge:        time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 7,
		},
	}
}

// Load reads .env (when present), then the YAML file named by CONFIG_FILE, then
// environment variables. Later sources win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	intVar := func(p *int, key string) {
		v, err := getEnvInt(key, *p)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*p = v
	}
	durationVar := func(p *time.Duration, key string) {
		v, err := getEnvDuration(key, *p)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*p = v
	}

	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	intVar(&c.Server.Port, "SERVER_PORT")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	intVar(&c.Server.MaxUploadMB, "MAX_UPLOAD_MB")
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err))
		} else {
			c.Server.RateLimitRPS = rps
		}
	}
	intVar(&c.Server.RateLimitBurst, "RATE_LIMIT_BURST")

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	intVar(&c.Redis.DB, "REDIS_DB")
	durationVar(&c.Redis.AnswerTTL, "ANSWER_CACHE_TTL")

	c.LLM.OpenAIKey = getEnv("OPENAI_API_KEY", c.LLM.OpenAIKey)
	c.LLM.AnthropicKey = getEnv("ANTHROPIC_API_KEY", c.LLM.AnthropicKey)
	c.LLM.GeminiKey = getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", c.LLM.GeminiKey))
	c.LLM.OllamaURL = getEnv("OLLAMA_URL", c.LLM.OllamaURL)
	c.LLM.DefaultProvider = getEnv("LLM_DEFAULT_PROVIDER", c.LLM.DefaultProvider)
	c.LLM.DefaultModel = getEnv("LLM_DEFAULT_MODEL", c.LLM.DefaultModel)
	c.LLM.FallbackProvider = getEnv("LLM_FALLBACK_PROVIDER", c.LLM.FallbackProvider)
	intVar(&c.LLM.MaxRetries, "LLM_MAX_RETRIES")
	durationVar(&c.LLM.Timeout, "LLM_TIMEOUT")

	c.Script.Strategy = getEnv("SCRIPT_STRATEGY", c.Script.Strategy)
	intVar(&c.Script.Concurrency, "SCRIPT_CONCURRENCY")
	c.Script.PromptsFile = getEnv("PROMPTS_FILE", c.Script.PromptsFile)

	c.TTS.Backend = getEnv("TTS_BACKEND", c.TTS.Backend)
	c.TTS.OpenAIKey = getEnv("TTS_OPENAI_API_KEY", getEnv("OPENAI_API_KEY", c.TTS.OpenAIKey))
	c.TTS.OpenAIBaseURL = getEnv("TTS_OPENAI_BASE_URL", c.TTS.OpenAIBaseURL)
	c.TTS.OpenAIModel = getEnv("TTS_OPENAI_MODEL", c.TTS.OpenAIModel)
	c.TTS.LocalBinPath = getEnv("TTS_LOCAL_PIPER_BIN", c.TTS.LocalBinPath)
	c.TTS.LocalModel = getEnv("TTS_LOCAL_PIPER_MODEL", c.TTS.LocalModel)
	c.TTS.Language = getEnv("TTS_LANGUAGE", c.TTS.Language)
	c.TTS.Voice = getEnv("TTS_VOICE", c.TTS.Voice)
	intVar(&c.TTS.Workers, "TTS_WORKERS")
	durationVar(&c.TTS.Timeout, "TTS_TIMEOUT")

	if v := os.Getenv("RENDER_SLIDES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid RENDER_SLIDES: %w", err))
		} else {
			c.Render.Slides = b
		}
	}
	c.Render.SofficeBin = getEnv("RENDER_SOFFICE_BIN", c.Render.SofficeBin)
	c.Render.PdftoppmBin = getEnv("RENDER_PDFTOPPM_BIN", c.Render.PdftoppmBin)
	c.Render.FFmpegBin = getEnv("RENDER_FFMPEG_BIN", c.Render.FFmpegBin)
	c.Render.FFprobeBin = getEnv("RENDER_FFPROBE_BIN", c.Render.FFprobeBin)
	intVar(&c.Render.DPI, "RENDER_DPI")
	intVar(&c.Render.FPS, "RENDER_FPS")
	intVar(&c.Render.Width, "RENDER_WIDTH")
	intVar(&c.Render.Height, "RENDER_HEIGHT")
	durationVar(&c.Render.Timeout, "RENDER_TIMEOUT")

	c.Session.ScratchRoot = getEnv("SCRATCH_ROOT", c.Session.ScratchRoot)
	durationVar(&c.Session.MaxAge, "SESSION_MAX_AGE")
	durationVar(&c.Session.SweepInterval, "SESSION_SWEEP_INTERVAL")

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)

	return errors.Join(errs...)
}

// HonorsLanguage reports whether the selected voice takes a language hint.
// tts-1 detects the language from the input and a Piper model speaks one
// language only.
func (c TTSConfig) HonorsLanguage() bool {
	model := c.OpenAIModel
	if model == "" {
		model = "tts-1"
	}
	return c.Backend == "openai" && strings.HasPrefix(model, "gpt-4o")
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var problems []string

	switch c.LLM.DefaultProvider {
	case "gemini":
		if c.LLM.GeminiKey == "" {
			problems = append(problems, "GEMINI_API_KEY is required for the gemini provider")
		}
	case "openai":
		if c.LLM.OpenAIKey == "" {
			problems = append(problems, "OPENAI_API_KEY is required for the openai provider")
		}
	case "anthropic":
		if c.LLM.AnthropicKey == "" {
			problems = append(problems, "ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	case "ollama":
		if c.LLM.OllamaURL == "" {
			problems = append(problems, "OLLAMA_URL is required for the ollama provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown LLM_DEFAULT_PROVIDER %q", c.LLM.DefaultProvider))
	}

	switch c.TTS.Backend {
	case "openai":
		if c.TTS.OpenAIKey == "" {
			problems = append(problems, "OPENAI_API_KEY is required for the openai TTS backend")
		}
	case "local":
		if c.TTS.LocalModel == "" {
			problems = append(problems, "TTS_LOCAL_PIPER_MODEL is required for the local TTS backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown TTS_BACKEND %q", c.TTS.Backend))
	}

	if c.TTS.Language != "" && !c.TTS.HonorsLanguage() {
		problems = append(problems, "TTS_LANGUAGE needs TTS_BACKEND=openai with a gpt-4o speech model; other voices speak the script's own language")
	}
	if c.Script.Strategy != "batched" && c.Script.Strategy != "per-slide" {
		problems = append(problems, fmt.Sprintf("unknown SCRIPT_STRATEGY %q", c.Script.Strategy))
	}
	if c.TTS.Workers < 1 {
		problems = append(problems, "TTS_WORKERS must be at least 1")
	}
	if c.Render.FPS < 1 || c.Render.Width < 2 || c.Render.Height < 2 {
		problems = append(problems, "RENDER_FPS, RENDER_WIDTH and RENDER_HEIGHT must be positive")
	}
	if c.Server.MaxUploadMB < 1 {
		problems = append(problems, "MAX_UPLOAD_MB must be at least 1")
	}
	if c.Server.RateLimitRPS <= 0 {
		problems = append(problems, "RATE_LIMIT_RPS must be positive")
	}
	if c.Server.RateLimitBurst < 1 {
		problems = append(problems, "RATE_LIMIT_BURST must be at least 1")
	}
	if c.Session.MaxAge <= 0 {
		problems = append(problems, "SESSION_MAX_AGE must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		problems = append(problems, "SESSION_SWEEP_INTERVAL must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
