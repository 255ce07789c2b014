package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hubenschmidt/interview-assistant/internal/metrics"
)

// ChatClient produces one non-streamed chat completion.
type ChatClient interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResult, error)
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries the sampling parameters for one call.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// ChatResult holds the trimmed completion text with timing.
type ChatResult struct {
	Text      string  `json:"text"`
	LatencyMs float64 `json:"latency_ms"`
}

// LLMRouter dispatches to the configured provider by name.
type LLMRouter struct {
	*Router[ChatClient]
}

// NewLLMRouter creates a router with registered providers and a fallback default.
func NewLLMRouter(backends map[string]ChatClient, fallback string) *LLMRouter {
	return &LLMRouter{Router: NewRouter(backends, fallback)}
}

// --- Ollama backend ---

// OllamaChatClient calls Ollama's /api/chat without streaming.
type OllamaChatClient struct {
	url    string
	client *http.Client
}

// NewOllamaChatClient creates an Ollama HTTP client.
func NewOllamaChatClient(url string, client *http.Client) *OllamaChatClient {
	return &OllamaChatClient{url: strings.TrimRight(url, "/"), client: client}
}

// Chat posts the messages and returns message.content, falling back to the
// last entry of messages[] for servers that reply with a transcript.
func (c *OllamaChatClient) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	start := time.Now()

	body, err := json.Marshal(ollamaRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.url+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("llm", "status").Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode, msg)
	}

	var out ollamaResponse
	if err = json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama: %s", out.Error)
	}

	text := out.Message.Content
	if text == "" && len(out.Messages) > 0 {
		text = out.Messages[len(out.Messages)-1].Content
	}
	if text == "" {
		return nil, fmt.Errorf("unexpected response from ollama: no message content")
	}

	return &ChatResult{
		Text:      strings.TrimSpace(text),
		LatencyMs: float64(time.Since(start).Milliseconds()),
	}, nil
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Message  Message   `json:"message"`
	Messages []Message `json:"messages"`
	Error    string    `json:"error"`
}
