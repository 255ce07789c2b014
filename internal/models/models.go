// Package models reports which LLM and ASR models are available locally and
// manages Ollama's loaded set.
package models

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ASRModel is one model file or model directory found on disk.
type ASRModel struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	SizeMB int    `json:"size_mb"`
	Active bool   `json:"active"`
}

var asrExtensions = map[string]bool{
	".bin":  true,
	".gguf": true,
	".onnx": true,
	".pt":   true,
}

// ListASRModels scans dir for model files and model directories. The entry
// matching active (a path or a bare name) is flagged. A missing dir yields
// an empty list.
func ListASRModels(dir, active string) []ASRModel {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []ASRModel{}
	}
	activeName := ParseModelName(active)

	out := make([]ASRModel, 0, len(entries))
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if !e.IsDir() && !asrExtensions[filepath.Ext(e.Name())] {
			continue
		}
		name := ParseModelName(e.Name())
		out = append(out, ASRModel{
			Name:   name,
			Path:   path,
			SizeMB: int(sizeOf(path) >> 20),
			Active: active != "" && (name == activeName || path == active),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sizeOf(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// ParseModelName extracts the model name from a path like
// "/path/to/ggml-large-v3.bin".
func ParseModelName(modelPath string) string {
	if modelPath == "" {
		return ""
	}
	base := filepath.Base(modelPath)
	if ext := filepath.Ext(base); asrExtensions[ext] {
		base = strings.TrimSuffix(base, ext)
	}
	return strings.TrimPrefix(base, "ggml-")
}

// ListLLMModels queries Ollama /api/tags and returns installed model names.
func ListLLMModels(ctx context.Context, ollamaURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", ollamaURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags status %d", resp.StatusCode)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(result.Models))
	for _, m := range result.Models {
		if !strings.Contains(m.Name, "embed") {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

// LoadedLLM describes a model currently loaded in Ollama.
type LoadedLLM struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ListLoadedLLMs returns the models Ollama currently holds in memory via /api/ps.
func ListLoadedLLMs(ctx context.Context, ollamaURL string) ([]LoadedLLM, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", ollamaURL+"/api/ps", nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama ps status %d", resp.StatusCode)
	}

	var result struct {
		Models []LoadedLLM `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Models, nil
}

// unloadPoll is how often UnloadLLM re-checks /api/ps.
var unloadPoll = 500 * time.Millisecond

// UnloadLLM asks Ollama to evict a model and waits until /api/ps no longer
// lists it, or ten seconds pass.
func UnloadLLM(ctx context.Context, ollamaURL, model string) error {
	if err := generate(ctx, ollamaURL, map[string]any{"model": model, "keep_alive": 0, "stream": false}, 30*time.Second); err != nil {
		return fmt.Errorf("ollama unload: %w", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		loaded, err := ListLoadedLLMs(ctx, ollamaURL)
		if err != nil {
			return nil // best-effort
		}
		if !contains(loaded, model) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(unloadPoll):
		}
	}
	return fmt.Errorf("model %s still loaded after timeout", model)
}

func contains(loaded []LoadedLLM, model string) bool {
	for _, m := range loaded {
		if m.Name == model {
			return true
		}
	}
	return false
}

// UnloadAllLLMs unloads every model Ollama currently holds.
func UnloadAllLLMs(ctx context.Context, ollamaURL string) error {
	loaded, err := ListLoadedLLMs(ctx, ollamaURL)
	if err != nil {
		return err
	}
	for _, m := range loaded {
		if err := UnloadLLM(ctx, ollamaURL, m.Name); err != nil {
			return fmt.Errorf("unload %s: %w", m.Name, err)
		}
	}
	return nil
}

// PreloadLLM loads a model and keeps it resident (keep_alive -1).
func PreloadLLM(ctx context.Context, ollamaURL, model string) error {
	if err := generate(ctx, ollamaURL, map[string]any{"model": model, "keep_alive": -1}, 10*time.Minute); err != nil {
		return fmt.Errorf("ollama preload: %w", err)
	}
	return nil
}

func generate(ctx context.Context, ollamaURL string, payload map[string]any, timeout time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", ollamaURL+"/api/generate", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
