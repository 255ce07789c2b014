package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

var providers = map[string]bool{"ollama": true, "lmstudio": true, "vllm": true, "generic": true, "agents": true}

// Validate returns hard errors and soft warnings.
func (c Config) Validate() ([]Warning, error) {
	var warnings []Warning

	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("server.port must be between 1 and 65535, got %q", c.Server.Port)
	}
	if c.Audio.TargetSampleRate <= 0 {
		return nil, fmt.Errorf("audio.target_sample_rate must be positive, got %d", c.Audio.TargetSampleRate)
	}
	if c.Audio.ChunkDurationMs <= 0 {
		return nil, fmt.Errorf("audio.chunk_duration_ms must be positive, got %d", c.Audio.ChunkDurationMs)
	}
	switch c.Audio.Capture {
	case "", "none", "pulse":
	default:
		return nil, fmt.Errorf("audio.capture must be none or pulse, got %q", c.Audio.Capture)
	}

	switch c.ASR.Transport {
	case "process":
		if c.ASR.Process.Binary == "" {
			warnings = append(warnings, Warning{Field: "asr.process.binary", Message: "not set; ASR sessions will fail to start"})
		}
	case "socket":
		if c.ASR.Socket.URL == "" {
			warnings = append(warnings, Warning{Field: "asr.socket.url", Message: "not set; ASR sessions will fail to start"})
		}
	default:
		return nil, fmt.Errorf("asr.transport must be process or socket, got %q", c.ASR.Transport)
	}

	if !providers[c.LLM.Provider] {
		return nil, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	if c.LLM.Draft.Model == "" || c.LLM.Refine.Model == "" {
		return nil, fmt.Errorf("llm.draft.model and llm.refine.model are required")
	}
	if !isLoopback(c.LLM.BaseURL) {
		warnings = append(warnings, Warning{Field: "llm.base_url", Message: fmt.Sprintf("%q is not a loopback address; transcripts will leave this machine", c.LLM.BaseURL)})
	}
	if c.Store.Path == "" {
		warnings = append(warnings, Warning{Field: "store.path", Message: "empty; transcripts and suggestions are not persisted"})
	}
	return warnings, nil
}

func isLoopback(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
