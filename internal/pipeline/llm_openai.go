package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/hubenschmidt/interview-assistant/internal/metrics"
)

// OpenAIChatClient talks to any OpenAI-compatible /v1/chat/completions
// server (llama.cpp, vLLM, LM Studio, Ollama's compatibility layer).
type OpenAIChatClient struct {
	client openai.Client
}

// NewOpenAIChatClient creates a chat completions client. An empty apiKey is
// replaced with a placeholder since local servers ignore it.
func NewOpenAIChatClient(baseURL, apiKey string, httpClient *http.Client) *OpenAIChatClient {
	if apiKey == "" {
		apiKey = "local"
	}
	return &OpenAIChatClient{
		client: openai.NewClient(
			option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/v1/"),
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(httpClient),
		),
	}
}

func (c *OpenAIChatClient) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	start := time.Now()

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
		TopP:        openai.Float(req.TopP),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return nil, fmt.Errorf("chat completions: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("unexpected response from chat completions: no choices")
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf("unexpected response from chat completions: empty content")
	}

	return &ChatResult{
		Text:      text,
		LatencyMs: float64(time.Since(start).Milliseconds()),
	}, nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
