package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.ASR.Process.Binary = "/usr/local/bin/asr-engine"

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, 16000, cfg.Audio.TargetSampleRate)
	require.Equal(t, 512, cfg.Audio.ChunkDurationMs)
	require.Equal(t, "phi3:mini", cfg.LLM.Draft.Model)
	require.Equal(t, "llama3.1:8b-instruct-q4_K_M", cfg.LLM.Refine.Model)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
asr:
  transport: socket
  socket:
    url: ws://127.0.0.1:9000/asr
llm:
  refine:
    temperature: 0.5
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "socket", cfg.ASR.Transport)
	require.Equal(t, "ws://127.0.0.1:9000/asr", cfg.ASR.Socket.URL)
	require.Equal(t, 5000, cfg.ASR.Socket.HandshakeTimeoutMs)
	require.InDelta(t, 0.5, cfg.LLM.Refine.Temperature, 1e-9)
	require.Equal(t, "llama3.1:8b-instruct-q4_K_M", cfg.LLM.Refine.Model)
	require.Equal(t, "8000", cfg.Server.Port)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("asr: [unterminated"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ASR_TRANSPORT", "socket")
	t.Setenv("ASR_URL", "ws://localhost:7000")
	t.Setenv("LLM_DRAFT_MODEL", "qwen2.5:1.5b")
	t.Setenv("GATEWAY_PORT", "9100")

	cfg := ApplyEnv(Default())
	require.Equal(t, "socket", cfg.ASR.Transport)
	require.Equal(t, "ws://localhost:7000", cfg.ASR.Socket.URL)
	require.Equal(t, "qwen2.5:1.5b", cfg.LLM.Draft.Model)
	require.Equal(t, "9100", cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		wantWarning string
	}{
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = "http" }, wantErr: true},
		{name: "unknown transport", mutate: func(c *Config) { c.ASR.Transport = "grpc" }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.Provider = "cloud" }, wantErr: true},
		{name: "zero chunk", mutate: func(c *Config) { c.Audio.ChunkDurationMs = 0 }, wantErr: true},
		{name: "missing binary warns", mutate: func(c *Config) { c.ASR.Process.Binary = "" }, wantWarning: "asr.process.binary"},
		{name: "remote llm warns", mutate: func(c *Config) { c.LLM.BaseURL = "https://api.example.com" }, wantWarning: "llm.base_url"},
		{name: "loopback ip ok", mutate: func(c *Config) { c.LLM.BaseURL = "http://127.0.0.1:1234" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.ASR.Process.Binary = "/bin/engine"
			tc.mutate(&cfg)

			warnings, err := cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tc.wantWarning == "" {
				require.Empty(t, warnings)
				return
			}
			require.Len(t, warnings, 1)
			require.Equal(t, tc.wantWarning, warnings[0].Field)
		})
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := ResolvePath("")
	require.NoError(t, err)
	require.Empty(t, path)

	want := filepath.Join(dir, "interview-assistant", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(want), 0o700))
	require.NoError(t, os.WriteFile(want, []byte("{}"), 0o600))

	path, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, want, path)

	path, err = ResolvePath("/etc/ia.yaml")
	require.NoError(t, err)
	require.Equal(t, "/etc/ia.yaml", path)
}
