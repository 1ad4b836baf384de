package config

import (
	"fmt"
	"time"

	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the full configuration consumed by the client core, the CLI and
// the reference backend.
type Config struct {
	Client    ClientConfig
	Transport TransportConfig
	Progress  ProgressConfig
	Server    ServerConfig
}

type ClientConfig struct {
	APIURL             string        `validate:"required,url"`
	WebSocketURL       string        `validate:"required,url"`
	AuthToken          string
	RequestTimeout     time.Duration `validate:"gt=0"`
	LongRequestTimeout time.Duration `validate:"gtefield=RequestTimeout"`
}

type TransportConfig struct {
	ReconnectAttempts int           `validate:"gte=0"`
	ReconnectDelay    time.Duration `validate:"gt=0"`
	ReconnectDelayMax time.Duration `validate:"gtefield=ReconnectDelay"`
	ReconnectJitter   float64       `validate:"gte=0,lte=1"`
	PingInterval      time.Duration `validate:"gt=0"`
	PongWait          time.Duration `validate:"gtfield=PingInterval"`
	WriteWait         time.Duration `validate:"gt=0"`
	HandshakeTimeout  time.Duration `validate:"gt=0"`
}

type ProgressConfig struct {
	SearchTimeout time.Duration `validate:"gt=0"`
	FinishDelay   time.Duration `validate:"gte=0"`
}

type ServerConfig struct {
	Port          string `validate:"required,numeric"`
	RedisURL      string
	RedisPassword string
	OpenAIKey     string
	OpenAIModel   string        `validate:"required"`
	OpenAIBaseURL string        `validate:"omitempty,url"`
	TokenLifetime time.Duration `validate:"gt=0"`
}

// Load reads an optional .env file, then builds and validates the
// configuration from the environment.
func Load() (*Config, error) {
	l := logger.For(logger.CONFIG)
	if err := godotenv.Load(); err != nil {
		l.Debug().Msg("No .env file found, using process environment")
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l.Info().
		Str("api_url", cfg.Client.APIURL).
		Str("ws_url", cfg.Client.WebSocketURL).
		Int("reconnect_attempts", cfg.Transport.ReconnectAttempts).
		Msg("Configuration loaded")
	return cfg, nil
}

// FromEnv builds a configuration from environment variables and documented
// defaults without validating it.
func FromEnv() *Config {
	return &Config{
		Client: ClientConfig{
			APIURL:             GetEnvOrDefault("WAYFINDER_API_URL", "http://localhost:8080"),
			WebSocketURL:       GetEnvOrDefault("WAYFINDER_WS_URL", "ws://localhost:8080/ws"),
			AuthToken:          GetEnvOrDefault("WAYFINDER_AUTH_TOKEN", ""),
			RequestTimeout:     parseEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
			LongRequestTimeout: parseEnvDuration("LONG_REQUEST_TIMEOUT", 600*time.Second),
		},
		Transport: TransportConfig{
			ReconnectAttempts: parseEnvInt("RECONNECT_ATTEMPTS", 5),
			ReconnectDelay:    parseEnvDuration("RECONNECT_DELAY", time.Second),
			ReconnectDelayMax: parseEnvDuration("RECONNECT_DELAY_MAX", 5*time.Second),
			ReconnectJitter:   parseEnvFloat("RECONNECT_JITTER", 0.5),
			PingInterval:      parseEnvDuration("PING_INTERVAL", 25*time.Second),
			PongWait:          parseEnvDuration("PONG_WAIT", 60*time.Second),
			WriteWait:         parseEnvDuration("WRITE_WAIT", 10*time.Second),
			HandshakeTimeout:  parseEnvDuration("HANDSHAKE_TIMEOUT", 20*time.Second),
		},
		Progress: ProgressConfig{
			SearchTimeout: parseEnvDuration("SEARCH_TIMEOUT", 600*time.Second),
			FinishDelay:   parseEnvDuration("PROGRESS_FINISH_DELAY", 500*time.Millisecond),
		},
		Server: ServerConfig{
			Port:          GetEnvOrDefault("PORT", "8080"),
			RedisURL:      GetEnvOrDefault("REDIS_URL", ""),
			RedisPassword: GetEnvOrDefault("REDIS_PASSWORD", ""),
			OpenAIKey:     GetEnvOrDefault("OPENAI_KEY", ""),
			OpenAIModel:   GetEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL: GetEnvOrDefault("OPENAI_BASE_URL", ""),
			TokenLifetime: parseEnvDuration("TOKEN_LIFETIME", 15*time.Minute),
		},
	}
}

// Validate checks every section against its struct constraints.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
