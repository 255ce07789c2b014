// Package config loads the gateway configuration from YAML with environment
// overrides layered on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Audio     AudioConfig     `yaml:"audio"`
	ASR       ASRConfig       `yaml:"asr"`
	LLM       LLMConfig       `yaml:"llm"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Store     StoreConfig     `yaml:"store"`
}

// ServerConfig controls the HTTP listener and IPC admission.
type ServerConfig struct {
	Port       string `yaml:"port"`
	MaxClients int    `yaml:"max_clients"`
}

// LoggingConfig selects level and optional JSONL file output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  bool   `yaml:"file"`
}

// AudioConfig drives the chunker and the optional local capture.
type AudioConfig struct {
	TargetSampleRate int    `yaml:"target_sample_rate"`
	ChunkDurationMs  int    `yaml:"chunk_duration_ms"`
	ChunkQueue       int    `yaml:"chunk_queue"`
	Capture          string `yaml:"capture"` // "none" or "pulse"
	CaptureSource    string `yaml:"capture_source"`
	CaptureRate      int    `yaml:"capture_rate"`
}

// ASRConfig selects and configures the engine transport.
type ASRConfig struct {
	Transport      string              `yaml:"transport"` // "process" or "socket"
	Language       string              `yaml:"language"`
	ReadyTimeoutMs int                 `yaml:"ready_timeout_ms"`
	AutoStart      bool                `yaml:"auto_start"`
	ModelDir       string              `yaml:"model_dir"`
	Process        ProcessTransportCfg `yaml:"process"`
	Socket         SocketTransportCfg  `yaml:"socket"`
}

// ProcessTransportCfg describes a stdio engine binary.
type ProcessTransportCfg struct {
	Binary     string            `yaml:"binary"`
	Model      string            `yaml:"model"`
	Device     string            `yaml:"device"`
	ChunkMs    int               `yaml:"chunk_ms"`
	EndpointMs int               `yaml:"endpoint_ms"`
	ExtraArgs  []string          `yaml:"extra_args"`
	Env        map[string]string `yaml:"env"`
}

// SocketTransportCfg describes a WebSocket engine peer.
type SocketTransportCfg struct {
	URL                string `yaml:"url"`
	AuthToken          string `yaml:"auth_token"`
	ChunkMs            int    `yaml:"chunk_ms"`
	HandshakeTimeoutMs int    `yaml:"handshake_timeout_ms"`
}

// LLMConfig configures the provider and both suggestion stages.
type LLMConfig struct {
	Provider  string      `yaml:"provider"` // ollama, lmstudio, vllm, generic, agents
	BaseURL   string      `yaml:"base_url"`
	APIKey    string      `yaml:"api_key"`
	TopP      float64     `yaml:"top_p"`
	MaxTokens int         `yaml:"max_tokens"`
	TimeoutMs int         `yaml:"timeout_ms"`
	PoolSize  int         `yaml:"pool_size"`
	Probe     bool        `yaml:"probe"`
	Draft     StageConfig `yaml:"draft"`
	Refine    StageConfig `yaml:"refine"`
}

// StageConfig is one two-stage call.
type StageConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// KnowledgeConfig points at the knowledge root.
type KnowledgeConfig struct {
	Dir string `yaml:"dir"`
}

// StoreConfig points at the sqlite database. Empty disables persistence.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Warning is a soft validation finding that does not stop startup.
type Warning struct {
	Field   string
	Message string
}

func (w Warning) String() string {
	return w.Field + ": " + w.Message
}

// Load reads path and overlays it onto Default. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ResolvePath picks the explicit path, then the XDG default if it exists.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	path := filepath.Join(base, "interview-assistant", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return path, nil
}

// ReadyTimeout converts the configured milliseconds.
func (a ASRConfig) ReadyTimeout() time.Duration {
	return time.Duration(a.ReadyTimeoutMs) * time.Millisecond
}

// Timeout converts the configured milliseconds.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutMs) * time.Millisecond
}
