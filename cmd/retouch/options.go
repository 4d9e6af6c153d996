package main

import (
	"fmt"
	"net/http"

	"github.com/gogpu/retouch"
	"github.com/gogpu/retouch/backend/httpbackend"
	"github.com/gogpu/retouch/document"
	"github.com/gogpu/retouch/generation"
	"github.com/gogpu/retouch/internal/config"
)

// openAIConfig maps the configured OpenAI-compatible endpoint.
func openAIConfig(cfg *config.Config) generation.OpenAIConfig {
	o := cfg.Generation.OpenAI
	return generation.OpenAIConfig{
		Endpoint: o.Endpoint,
		APIKey:   o.APIKey,
		Model:    o.Model,
		Prompt:   o.Prompt,
	}
}

// sessionOptions maps the configuration to session options.
func sessionOptions(cfg *config.Config, onSyncError func(error)) ([]retouch.Option, error) {
	color, err := cfg.BrushColor()
	if err != nil {
		return nil, err
	}
	effect := document.RenderEffect(cfg.Display.Effect)
	if !effect.Valid() {
		return nil, fmt.Errorf("unknown render effect %q", cfg.Display.Effect)
	}
	return []retouch.Option{
		retouch.WithBrush(cfg.Brush.Size, color),
		retouch.WithMaskDebounce(cfg.MaskDebounce()),
		retouch.WithFadeDuration(cfg.FadeDuration()),
		retouch.WithBitmapPool(cfg.Display.PoolSize),
		retouch.WithRenderEffect(effect),
		retouch.WithSyncErrorHandler(onSyncError),
		retouch.WithGeneration(
			generation.WithPoll(cfg.Generation.PollAttempts, cfg.PollInterval()),
			generation.WithOpenAI(openAIConfig(cfg)),
			generation.WithPreferredLanguage(cfg.Generation.Language),
			generation.WithHTTPClient(&http.Client{Timeout: cfg.BackendTimeout()}),
		),
	}, nil
}

// newBackend connects the HTTP backend described by cfg.
func newBackend(cfg *config.Config) (*httpbackend.Client, error) {
	opts := []httpbackend.Option{
		httpbackend.WithHTTPClient(&http.Client{Timeout: cfg.BackendTimeout()}),
	}
	for k, v := range cfg.Backend.Headers {
		opts = append(opts, httpbackend.WithHeader(k, v))
	}
	return httpbackend.New(cfg.Backend.URL, opts...)
}
