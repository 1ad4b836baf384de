package openai

import (
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceWithoutKey(t *testing.T) {
	assert.Nil(t, NewService("", "gpt-4o-mini", ""))
}

func TestNewService(t *testing.T) {
	s := NewService("sk-test", "gpt-4o-mini", "")
	require.NotNil(t, s)
	assert.NotNil(t, s.GetClient())
	assert.Equal(t, "gpt-4o-mini", s.Model())
}

func TestNewServiceWithGateway(t *testing.T) {
	s := NewService("sk-test", "local-model", "http://localhost:9999/v1")
	require.NotNil(t, s)
	assert.Equal(t, "local-model", s.Model())
}

func TestNewServiceWithConfig(t *testing.T) {
	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = "http://localhost:9999/v1"

	s := NewServiceWithConfig(cfg, "custom")
	assert.Equal(t, "custom", s.Model())
}
