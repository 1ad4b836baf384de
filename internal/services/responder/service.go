package responder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openaiinfra "github.com/deepgram/wayfinder/internal/infrastructure/openai"
	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/sashabaranov/go-openai"
)

// Responder produces assistant replies and search tips.
type Responder interface {
	// Stream calls onDelta for each piece of the reply to message and returns
	// the full reply.
	Stream(ctx context.Context, history []protocol.HistoryRecord, message string, onDelta func(string) error) (string, error)
	// Tips summarises a place search.
	Tips(ctx context.Context, req protocol.SearchRequest) (string, []string, error)
	Name() string
}

// New returns the OpenAI responder when the service is configured and the
// echo responder otherwise.
func New(openAIService *openaiinfra.Service) Responder {
	if openAIService == nil {
		return &Echo{}
	}
	return &OpenAI{service: openAIService}
}

type OpenAI struct {
	service *openaiinfra.Service
}

func (o *OpenAI) Name() string {
	return "openai"
}

func (o *OpenAI) Stream(ctx context.Context, history []protocol.HistoryRecord, message string, onDelta func(string) error) (string, error) {
	l := logger.For(logger.OPENAI)
	l.Debug().Int("history", len(history)).Msg("Streaming chat completion")

	messages := make([]openai.ChatCompletionMessage, 0, 2*len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: ChatPrompt().String(),
	})
	for _, r := range history {
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: r.UserMessage},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: r.AssistantMessage},
		)
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	stream, err := o.service.GetClient().CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    o.service.Model(),
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		l.Error().Err(err).Msg("Failed to start chat completion stream")
		return "", fmt.Errorf("failed to start chat completion: %w", err)
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return reply.String(), nil
		}
		if err != nil {
			l.Error().Err(err).Msg("Chat completion stream failed")
			return reply.String(), fmt.Errorf("chat completion stream failed: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}

		delta := resp.Choices[0].Delta.Content
		reply.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return reply.String(), err
		}
	}
}

type tipsResponse struct {
	Summary string   `json:"summary"`
	Tips    []string `json:"tips"`
}

func (o *OpenAI) Tips(ctx context.Context, req protocol.SearchRequest) (string, []string, error) {
	query := fmt.Sprintf("Search: %s", req.Query)
	if req.Latitude != 0 || req.Longitude != 0 {
		query += fmt.Sprintf("\nNear: %.5f, %.5f", req.Latitude, req.Longitude)
	}
	if req.RadiusKM > 0 {
		query += fmt.Sprintf("\nWithin: %.1f km", req.RadiusKM)
	}

	resp, err := o.service.GetClient().CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.service.Model(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SearchPrompt().String()},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to get search tips: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("no response choices returned")
	}

	var out tipsResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return "", nil, fmt.Errorf("malformed search tips: %w", err)
	}
	return out.Summary, out.Tips, nil
}

// Echo answers without a model. It streams the reply word by word.
type Echo struct {
	// Delay is the pause between streamed words.
	Delay time.Duration
}

func (e *Echo) Name() string {
	return "echo"
}

func (e *Echo) Stream(ctx context.Context, history []protocol.HistoryRecord, message string, onDelta func(string) error) (string, error) {
	reply := fmt.Sprintf("You said: %s", message)

	words := strings.SplitAfter(reply, " ")
	for _, w := range words {
		if e.Delay > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(e.Delay):
			}
		}
		if err := onDelta(w); err != nil {
			return "", err
		}
	}
	return reply, nil
}

func (e *Echo) Tips(ctx context.Context, req protocol.SearchRequest) (string, []string, error) {
	summary := fmt.Sprintf("Places matching %q", req.Query)
	tips := []string{
		"Check opening hours before you leave.",
		"Look at recent reviews for current quality.",
	}
	if req.RadiusKM > 0 {
		tips = append(tips, fmt.Sprintf("Everything suggested is within %.1f km.", req.RadiusKM))
	}
	return summary, tips, nil
}
