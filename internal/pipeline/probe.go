package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/hubenschmidt/interview-assistant/internal/prompts"
)

// Probe asks model for the diagnostic keyword and fails unless the reply
// contains "online".
func Probe(ctx context.Context, client ChatClient, model string) error {
	res, err := client.Chat(ctx, ChatRequest{
		Model: model,
		Messages: []Message{
			{Role: "system", Content: prompts.ProbeSystem},
			{Role: "user", Content: prompts.ProbeUser},
		},
		MaxTokens: 16,
	})
	if err != nil {
		return fmt.Errorf("llm probe: %w", err)
	}
	if !strings.Contains(strings.ToLower(res.Text), "online") {
		return fmt.Errorf("llm probe: unexpected reply %q", res.Text)
	}
	return nil
}
