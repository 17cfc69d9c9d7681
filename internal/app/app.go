// Package app assembles the pipeline from configuration. Both the HTTP server
// and the CLI start from here.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/slidecast/internal/cache"
	"github.com/nikhilbhutani/slidecast/internal/composer"
	"github.com/nikhilbhutani/slidecast/internal/config"
	"github.com/nikhilbhutani/slidecast/internal/extractor"
	"github.com/nikhilbhutani/slidecast/internal/llm"
	"github.com/nikhilbhutani/slidecast/internal/multimodal/tts"
	"github.com/nikhilbhutani/slidecast/internal/narrator"
	"github.com/nikhilbhutani/slidecast/internal/presentation"
	"github.com/nikhilbhutani/slidecast/internal/prompt"
	"github.com/nikhilbhutani/slidecast/internal/script"
	"github.com/nikhilbhutani/slidecast/internal/session"
	"github.com/nikhilbhutani/slidecast/pkg/executor"
)

const answerKeyPrefix = "slidecast:answer:"

type App struct {
	Service *presentation.Service
	Store   *session.Store
	Redis   *redis.Client // nil when no answer cache is configured
	Config  *config.Config
	Logger  *slog.Logger
}

// New builds every pipeline stage from cfg. Redis is optional: when it is not
// configured or does not answer, the service runs without an answer cache.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompts, err := prompt.Load(cfg.Script.PromptsFile)
	if err != nil {
		return nil, err
	}

	runner := executor.New()

	var renderer extractor.Renderer
	if cfg.Render.Slides {
		sr := extractor.NewSofficeRenderer(runner, cfg.Render.SofficeBin, cfg.Render.PdftoppmBin, cfg.Render.DPI)
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if sr.IsAvailable(checkCtx) {
			renderer = sr
		} else {
			logger.Warn("libreoffice not available, slides will use their embedded pictures")
		}
		cancel()
	}

	speech, err := tts.New(cfg.TTS, runner)
	if err != nil {
		return nil, err
	}

	gw := llm.NewGateway(cfg.LLM, logger)
	encoder := composer.NewFFmpegEncoder(runner, cfg.Render.FFmpegBin, cfg.Render.FFprobeBin)
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	encoding := encoder.IsAvailable(checkCtx)
	cancel()
	if !encoding {
		logger.Warn("ffmpeg or ffprobe not available, video requests will fail",
			"ffmpeg", cfg.Render.FFmpegBin, "ffprobe", cfg.Render.FFprobeBin)
	}
	store := session.NewStore(logger)

	a := &App{Store: store, Config: cfg, Logger: logger}

	var answers presentation.AnswerCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, running without answer cache", "error", err)
			rdb.Close()
		} else {
			a.Redis = rdb
			answers = cache.NewCache(rdb, answerKeyPrefix)
		}
	}

	a.Service = presentation.NewService(presentation.Deps{
		Extractor: extractor.New(renderer, cfg.Render.Timeout, logger),
		Scripts: script.New(gw, prompts, script.Options{
			Strategy:    script.Strategy(cfg.Script.Strategy),
			Concurrency: cfg.Script.Concurrency,
			Timeout:     cfg.LLM.Timeout,
		}, logger),
		Narrator: narrator.New(speech, narrator.Options{
			Workers:  cfg.TTS.Workers,
			Voice:    cfg.TTS.Voice,
			Language: cfg.TTS.Language,
			Timeout:  cfg.TTS.Timeout,
		}, logger),
		Composer: composer.New(encoder, composer.Options{
			FPS:     cfg.Render.FPS,
			Width:   cfg.Render.Width,
			Height:  cfg.Render.Height,
			Timeout: cfg.Render.Timeout,
		}, logger),
		Gateway: gw,
		Prompts: prompts,
		Store:   store,
		Cache:   answers,
		Logger:  logger,
	}, presentation.Options{
		ScratchRoot: cfg.Session.ScratchRoot,
		AnswerTTL:   cfg.Redis.AnswerTTL,
		AskTimeout:  cfg.LLM.Timeout,
	})

	logger.Info("pipeline ready",
		"llm_provider", cfg.LLM.DefaultProvider,
		"script_strategy", cfg.Script.Strategy,
		"tts_backend", speech.Name(),
		"tts_workers", cfg.TTS.Workers,
		"slide_rendering", renderer != nil,
		"video_encoding", encoding,
		"answer_cache", a.Redis != nil,
	)
	return a, nil
}

// Close tears down live sessions and the Redis client.
func (a *App) Close() error {
	a.Store.Close()
	if a.Redis != nil {
		return a.Redis.Close()
	}
	return nil
}
