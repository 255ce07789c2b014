package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"
)

// AgentChatClient runs each chat request as a single-turn agent through the
// openai-agents-go SDK. The first system message becomes the agent's
// instructions and the remaining messages are joined into its input.
type AgentChatClient struct {
	provider agents.ModelProvider
}

// NewAgentChatClient wraps an SDK model provider.
func NewAgentChatClient(provider agents.ModelProvider) *AgentChatClient {
	return &AgentChatClient{provider: provider}
}

// NewOpenAICompatProvider builds a chat-completions provider for a local
// OpenAI-compatible server.
func NewOpenAICompatProvider(baseURL, apiKey string) agents.ModelProvider {
	if apiKey == "" {
		apiKey = "local"
	}
	return agents.NewOpenAIProvider(agents.OpenAIProviderParams{
		BaseURL:      param.NewOpt(strings.TrimRight(baseURL, "/") + "/v1/"),
		APIKey:       param.NewOpt(apiKey),
		UseResponses: param.NewOpt(false),
	})
}

func (a *AgentChatClient) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	instructions, input := splitInstructions(req.Messages)

	settings := modelsettings.ModelSettings{
		Temperature: param.NewOpt(req.Temperature),
		TopP:        param.NewOpt(req.TopP),
	}
	if req.MaxTokens > 0 {
		settings.MaxTokens = param.NewOpt(int64(req.MaxTokens))
	}

	agent := agents.New("assistant").
		WithInstructions(instructions).
		WithModel(req.Model).
		WithModelSettings(settings)

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   a.provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	start := time.Now()

	events, errCh, err := runner.RunStreamedChan(ctx, agent, input)
	if err != nil {
		return nil, fmt.Errorf("llm stream start: %w", err)
	}

	var textBuf strings.Builder
	for ev := range events {
		collectDelta(ev, &textBuf)
	}

	if streamErr := <-errCh; streamErr != nil {
		return nil, fmt.Errorf("llm stream: %w", streamErr)
	}

	text := strings.TrimSpace(textBuf.String())
	if text == "" {
		return nil, fmt.Errorf("unexpected response from agent: empty output")
	}

	return &ChatResult{
		Text:      text,
		LatencyMs: float64(time.Since(start).Milliseconds()),
	}, nil
}

func collectDelta(ev agents.StreamEvent, textBuf *strings.Builder) {
	raw, ok := ev.(agents.RawResponsesStreamEvent)
	if !ok {
		return
	}
	if raw.Data.Type != "response.output_text.delta" {
		return
	}
	textBuf.WriteString(raw.Data.Delta)
}

func splitInstructions(msgs []Message) (string, string) {
	var instructions string
	parts := make([]string, 0, len(msgs))
	for i, m := range msgs {
		if i == 0 && m.Role == "system" {
			instructions = m.Content
			continue
		}
		parts = append(parts, m.Content)
	}
	return instructions, strings.Join(parts, "\n\n")
}
