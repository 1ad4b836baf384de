package services

import (
	"sync/atomic"
	"time"

	"github.com/deepgram/wayfinder/internal/config"
	"github.com/deepgram/wayfinder/internal/infrastructure/openai"
	"github.com/deepgram/wayfinder/internal/infrastructure/redis"
	"github.com/deepgram/wayfinder/internal/services/history"
	"github.com/deepgram/wayfinder/internal/services/responder"
	"github.com/deepgram/wayfinder/pkg/logger"
)

type Services struct {
	config           config.ServerConfig
	redisService     *redis.Service
	openAIService    *openai.Service
	historyService   *history.Service
	responderService responder.Responder

	started     time.Time
	connections atomic.Int64
}

// InitializeServices initializes all required services. Redis and OpenAI are
// optional; history falls back to memory and replies to echo.
func InitializeServices(cfg config.ServerConfig) (*Services, error) {
	l := logger.For(logger.SERVICE)
	l.Info().Msg("Initializing core services")

	redisService := redis.NewService(cfg.RedisURL, cfg.RedisPassword)
	l.Info().Bool("available", redisService != nil).Msg("Initializing Redis service")

	historyService := history.NewService(redisService)
	l.Info().Str("backend", historyService.Backend()).Msg("Initializing history service")

	openAIService := openai.NewService(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	responderService := responder.New(openAIService)
	l.Info().Str("responder", responderService.Name()).Msg("Initializing responder service")

	l.Info().Msg("All services initialized successfully")

	return &Services{
		config:           cfg,
		redisService:     redisService,
		openAIService:    openAIService,
		historyService:   historyService,
		responderService: responderService,
		started:          time.Now(),
	}, nil
}

// New assembles services from parts. It is used by tests.
func New(cfg config.ServerConfig, historyService *history.Service, responderService responder.Responder) *Services {
	return &Services{
		config:           cfg,
		historyService:   historyService,
		responderService: responderService,
		started:          time.Now(),
	}
}

func (s *Services) GetConfig() config.ServerConfig {
	return s.config
}

func (s *Services) GetHistoryService() *history.Service {
	return s.historyService
}

func (s *Services) GetResponder() responder.Responder {
	return s.responderService
}

// TrackConnection counts a live WebSocket. The returned function releases it.
func (s *Services) TrackConnection() func() {
	s.connections.Add(1)
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			s.connections.Add(-1)
		}
	}
}

func (s *Services) Connections() int {
	return int(s.connections.Load())
}

func (s *Services) Uptime() time.Duration {
	return time.Since(s.started)
}

// Close releases infrastructure connections.
func (s *Services) Close() error {
	if s.redisService != nil {
		return s.redisService.Close()
	}
	return nil
}
