package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns default when env not set",
			key:          "WAYFINDER_TEST_KEY_1",
			defaultValue: "default",
			want:         "default",
		},
		{
			name:         "returns env value when set",
			key:          "WAYFINDER_TEST_KEY_2",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			if got := GetEnvOrDefault(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("GetEnvOrDefault() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     time.Duration
	}{
		{"unset uses default", "", 3 * time.Second},
		{"go duration", "1500ms", 1500 * time.Millisecond},
		{"bare integer is milliseconds", "600000", 600 * time.Second},
		{"garbage uses default", "soon", 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("WAYFINDER_TEST_DURATION", tt.envValue)
			} else {
				os.Unsetenv("WAYFINDER_TEST_DURATION")
			}
			assert.Equal(t, tt.want, parseEnvDuration("WAYFINDER_TEST_DURATION", 3*time.Second))
		})
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, 10*time.Second, cfg.Client.RequestTimeout)
	assert.Equal(t, 600*time.Second, cfg.Client.LongRequestTimeout)
	assert.Equal(t, 5, cfg.Transport.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.Transport.ReconnectDelay)
	assert.Equal(t, 600*time.Second, cfg.Progress.SearchTimeout)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("WAYFINDER_WS_URL", "wss://assistant.example.com/ws")
	t.Setenv("RECONNECT_ATTEMPTS", "2")
	t.Setenv("RECONNECT_DELAY", "250ms")
	t.Setenv("REQUEST_TIMEOUT", "5000")

	cfg := FromEnv()

	assert.Equal(t, "wss://assistant.example.com/ws", cfg.Client.WebSocketURL)
	assert.Equal(t, 2, cfg.Transport.ReconnectAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Transport.ReconnectDelay)
	assert.Equal(t, 5*time.Second, cfg.Client.RequestTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"missing websocket url", func(c *Config) { c.Client.WebSocketURL = "" }, true},
		{"negative reconnect attempts", func(c *Config) { c.Transport.ReconnectAttempts = -1 }, true},
		{"max delay below initial delay", func(c *Config) { c.Transport.ReconnectDelayMax = time.Millisecond }, true},
		{"pong wait shorter than ping interval", func(c *Config) { c.Transport.PongWait = time.Second }, true},
		{"jitter above one", func(c *Config) { c.Transport.ReconnectJitter = 1.5 }, true},
		{"long timeout below short timeout", func(c *Config) { c.Client.LongRequestTimeout = time.Second }, true},
		{"non numeric port", func(c *Config) { c.Server.Port = "http" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromEnv()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetRateLimitConfig(t *testing.T) {
	t.Setenv("RATELIMIT_ENABLED", "true")
	t.Setenv("RATELIMIT_CHAT", "7")

	chat := GetRateLimitConfig("chat")
	assert.True(t, chat.Enabled)
	assert.Equal(t, 7, chat.MaxHits)
	assert.Equal(t, time.Minute, chat.Window)

	unknown := GetRateLimitConfig("unknown")
	assert.False(t, unknown.Enabled)
}
