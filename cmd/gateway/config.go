package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hubenschmidt/interview-assistant/internal/asr"
	"github.com/hubenschmidt/interview-assistant/internal/config"
	"github.com/hubenschmidt/interview-assistant/internal/pipeline"
)

// loadConfig resolves the config file, overlays the environment and
// validates the result.
func loadConfig(explicit string) (config.Config, []config.Warning, error) {
	path, err := config.ResolvePath(explicit)
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg = config.ApplyEnv(cfg)
	warnings, err := cfg.Validate()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, warnings, nil
}

// newDialer picks the ASR transport named by cfg.Transport.
func newDialer(cfg config.ASRConfig) (asr.Dialer, error) {
	switch cfg.Transport {
	case "process":
		p := cfg.Process
		return asr.ProcessDialer{Config: asr.ProcessConfig{
			Binary:     p.Binary,
			Model:      p.Model,
			Device:     p.Device,
			ChunkMs:    p.ChunkMs,
			EndpointMs: p.EndpointMs,
			ExtraArgs:  p.ExtraArgs,
			Env:        p.Env,
		}}, nil
	case "socket":
		s := cfg.Socket
		return asr.SocketDialer{Config: asr.SocketConfig{
			URL:              s.URL,
			AuthToken:        s.AuthToken,
			ChunkMs:          s.ChunkMs,
			HandshakeTimeout: time.Duration(s.HandshakeTimeoutMs) * time.Millisecond,
		}}, nil
	default:
		return nil, fmt.Errorf("unknown asr transport %q", cfg.Transport)
	}
}

// newLLMRouter registers the configured provider. The OpenAI-compatible
// servers share one client implementation.
func newLLMRouter(cfg config.LLMConfig, httpClient *http.Client) *pipeline.LLMRouter {
	backends := map[string]pipeline.ChatClient{}
	switch cfg.Provider {
	case "ollama":
		backends["ollama"] = pipeline.NewOllamaChatClient(cfg.BaseURL, httpClient)
	case "lmstudio", "vllm", "generic":
		backends[cfg.Provider] = pipeline.NewOpenAIChatClient(cfg.BaseURL, cfg.APIKey, httpClient)
	case "agents":
		backends["agents"] = pipeline.NewAgentChatClient(pipeline.NewOpenAICompatProvider(cfg.BaseURL, cfg.APIKey))
	}
	slog.Info("llm provider", "provider", cfg.Provider, "base_url", cfg.BaseURL,
		"draft_model", cfg.Draft.Model, "refine_model", cfg.Refine.Model)
	return pipeline.NewLLMRouter(backends, cfg.Provider)
}
