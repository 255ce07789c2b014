package config

import "github.com/hubenschmidt/interview-assistant/internal/env"

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:  ServerConfig{Port: "8000", MaxClients: 16},
		Logging: LoggingConfig{Level: "info"},
		Audio: AudioConfig{
			TargetSampleRate: 16000,
			ChunkDurationMs:  512,
			ChunkQueue:       64,
			Capture:          "none",
			CaptureRate:      48000,
		},
		ASR: ASRConfig{
			Transport:      "process",
			ReadyTimeoutMs: 4000,
			Process: ProcessTransportCfg{
				Device:     "cuda:0",
				ChunkMs:    200,
				EndpointMs: 800,
			},
			Socket: SocketTransportCfg{HandshakeTimeoutMs: 5000},
		},
		LLM: LLMConfig{
			Provider:  "ollama",
			BaseURL:   "http://localhost:11434",
			TopP:      0.9,
			MaxTokens: 512,
			TimeoutMs: 60000,
			PoolSize:  8,
			Draft:     StageConfig{Model: "phi3:mini", Temperature: 0.2},
			Refine:    StageConfig{Model: "llama3.1:8b-instruct-q4_K_M", Temperature: 0.4},
		},
		Knowledge: KnowledgeConfig{Dir: "knowledge"},
		Store:     StoreConfig{Path: "interview-assistant.db"},
	}
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg Config) Config {
	cfg.Server.Port = env.Str("GATEWAY_PORT", cfg.Server.Port)
	cfg.Logging.Level = env.Str("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.File = env.Bool("LOG_FILE", cfg.Logging.File)

	cfg.Audio.Capture = env.Str("AUDIO_CAPTURE", cfg.Audio.Capture)

	cfg.ASR.Transport = env.Str("ASR_TRANSPORT", cfg.ASR.Transport)
	cfg.ASR.Language = env.Str("ASR_LANGUAGE", cfg.ASR.Language)
	cfg.ASR.AutoStart = env.Bool("ASR_AUTO_START", cfg.ASR.AutoStart)
	cfg.ASR.ModelDir = env.Str("ASR_MODEL_DIR", cfg.ASR.ModelDir)
	cfg.ASR.Process.Binary = env.Str("ASR_BINARY", cfg.ASR.Process.Binary)
	cfg.ASR.Process.Model = env.Str("ASR_MODEL", cfg.ASR.Process.Model)
	cfg.ASR.Process.Device = env.Str("ASR_DEVICE", cfg.ASR.Process.Device)
	cfg.ASR.Process.ExtraArgs = env.List("ASR_EXTRA_ARGS", cfg.ASR.Process.ExtraArgs)
	cfg.ASR.Socket.URL = env.Str("ASR_URL", cfg.ASR.Socket.URL)
	cfg.ASR.Socket.AuthToken = env.Str("ASR_AUTH_TOKEN", cfg.ASR.Socket.AuthToken)

	cfg.LLM.Provider = env.Str("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.BaseURL = env.Str("OLLAMA_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = env.Str("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.MaxTokens = env.Int("LLM_MAX_TOKENS", cfg.LLM.MaxTokens)
	cfg.LLM.Draft.Model = env.Str("LLM_DRAFT_MODEL", cfg.LLM.Draft.Model)
	cfg.LLM.Draft.Temperature = env.Float("LLM_DRAFT_TEMPERATURE", cfg.LLM.Draft.Temperature)
	cfg.LLM.Refine.Model = env.Str("LLM_REFINE_MODEL", cfg.LLM.Refine.Model)
	cfg.LLM.Refine.Temperature = env.Float("LLM_REFINE_TEMPERATURE", cfg.LLM.Refine.Temperature)

	cfg.Knowledge.Dir = env.Str("KNOWLEDGE_DIR", cfg.Knowledge.Dir)
	cfg.Store.Path = env.Str("STORE_PATH", cfg.Store.Path)
	return cfg
}
