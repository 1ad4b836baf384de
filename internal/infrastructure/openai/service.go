package openai

import (
	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/sashabaranov/go-openai"
)

// Service holds the OpenAI client and the model replies are generated with.
// It is immutable once built.
type Service struct {
	client *openai.Client
	model  string
}

// NewService returns nil when no API key is configured. A non-empty baseURL
// points the client at an OpenAI-compatible gateway.
func NewService(key, model, baseURL string) *Service {
	l := logger.For(logger.OPENAI)

	if key == "" {
		l.Warn().Msg("OpenAI service not configured - OPENAI_KEY missing")
		return nil
	}

	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	l.Info().Str("model", model).Str("base_url", cfg.BaseURL).Msg("OpenAI service configured")
	return NewServiceWithConfig(cfg, model)
}

func NewServiceWithConfig(cfg openai.ClientConfig, model string) *Service {
	return &Service{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (s *Service) GetClient() *openai.Client {
	return s.client
}

func (s *Service) Model() string {
	return s.model
}
