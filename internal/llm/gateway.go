package llm

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/nikhilbhutani/slidecast/internal/config"
)

type gateway struct {
	providers        map[string]Provider
	defaultProvider  string
	defaultModel     string
	fallbackProvider string
	maxRetries       int
	logger           *slog.Logger
}

// NewGateway registers every provider that has credentials in cfg.
func NewGateway(cfg config.LLMConfig, logger *slog.Logger) Gateway {
	var providers []Provider
	if cfg.GeminiKey != "" {
		providers = append(providers, NewGeminiProvider(cfg.GeminiKey))
	}
	if cfg.OpenAIKey != "" {
		providers = append(providers, NewOpenAIProvider(cfg.OpenAIKey))
	}
	if cfg.AnthropicKey != "" {
		providers = append(providers, NewAnthropicProvider(cfg.AnthropicKey))
	}
	if cfg.OllamaURL != "" {
		providers = append(providers, NewOllamaProvider(cfg.OllamaURL))
	}
	return NewGatewayWithProviders(cfg, logger, providers...)
}

// NewGatewayWithProviders builds a gateway over an explicit provider set.
func NewGatewayWithProviders(cfg config.LLMConfig, logger *slog.Logger, providers ...Provider) Gateway {
	g := &gateway{
		providers:        make(map[string]Provider, len(providers)),
		defaultProvider:  cfg.DefaultProvider,
		defaultModel:     cfg.DefaultModel,
		fallbackProvider: cfg.FallbackProvider,
		maxRetries:       cfg.MaxRetries,
		logger:           logger,
	}
	for _, p := range providers {
		g.providers[p.Name()] = p
	}
	return g
}

func (g *gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

func (g *gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}

	resp, err := g.chatWithRetry(ctx, providerName, req)
	if err != nil && ctx.Err() == nil && g.fallbackProvider != "" && g.fallbackProvider != providerName {
		g.logger.Warn("primary provider failed, trying fallback",
			"primary", providerName,
			"fallback", g.fallbackProvider,
			"error", err,
		)
		return g.chatWithRetry(ctx, g.fallbackProvider, req)
	}
	return resp, err
}

func (g *gateway) chatWithRetry(ctx context.Context, providerName string, req ChatRequest) (*ChatResponse, error) {
	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}
	req.Model = g.modelFor(p, req.Model)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			g.logger.Debug("retrying LLM call", "provider", providerName, "attempt", attempt)
		}

		resp, err := p.ChatCompletion(ctx, req)
		if err == nil {
			g.logger.Info("llm call",
				"provider", resp.Provider,
				"model", resp.Model,
				"input_tokens", resp.InputTokens,
				"output_tokens", resp.OutputTokens,
				"cost_usd", resp.CostUSD,
				"latency_ms", resp.LatencyMs,
			)
			return resp, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("all retries exhausted for %s: %w", providerName, lastErr)
}

// modelFor keeps a requested model only if the provider can serve it, so a
// fallback provider is never handed the primary's model name.
func (g *gateway) modelFor(p Provider, requested string) string {
	if requested != "" && (p.Name() == g.defaultProvider || slices.Contains(p.Models(), requested)) {
		return requested
	}
	if p.Name() == g.defaultProvider && g.defaultModel != "" {
		return g.defaultModel
	}
	if models := p.Models(); len(models) > 0 {
		return models[0]
	}
	return requested
}
