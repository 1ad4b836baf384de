package config

import (
	"time"

	"github.com/deepgram/wayfinder/pkg/logger"
)

type RateLimitConfig struct {
	Enabled bool
	MaxHits int
	Window  time.Duration
}

// rateLimits maps each named limit to its override variable and default
// requests per minute.
var rateLimits = map[string]struct {
	env       string
	perMinute int
}{
	"global":      {"RATELIMIT_GLOBAL", 1000},
	"oauth_token": {"RATELIMIT_OAUTH_TOKEN", 30},
	"chat":        {"RATELIMIT_CHAT", 120},
	"search":      {"RATELIMIT_SEARCH", 20},
}

// GetRateLimitConfig resolves a named limit. All limits are switched on and
// off together by RATELIMIT_ENABLED; unknown names are disabled.
func GetRateLimitConfig(key string) RateLimitConfig {
	limit, ok := rateLimits[key]
	if !ok {
		l := logger.For(logger.CONFIG)
		l.Warn().Str("key", key).Msg("No rate limit config found")
		return RateLimitConfig{}
	}

	return RateLimitConfig{
		Enabled: parseEnvBool("RATELIMIT_ENABLED", false),
		MaxHits: parseEnvInt(limit.env, limit.perMinute),
		Window:  time.Minute,
	}
}
