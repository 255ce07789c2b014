// Package mode classifies transcript text into a conversation mode.
package mode

import (
	"fmt"
	"strings"
	"sync"
)

// Mode is the conversation framing used for prompts.
type Mode string

const (
	Discovery Mode = "discovery"
	Technical Mode = "technical"
)

// Parse accepts "discovery" or "technical" in any case.
func Parse(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Discovery, Technical:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

var technicalKeywords = []string{
	"api", "sdk", "framework", "backend", "frontend", "deploy", "testing",
	"ci", "cd", "docker", "kubernetes", "database", "schema", "redis",
	"queue", "grpc", "rest", "microservice", "pipeline", "integration",
}

var discoveryKeywords = []string{
	"idea", "plan", "scope", "budget", "timeline", "users", "success",
	"risk", "milestone", "goals", "vision", "stakeholder",
}

// Detector pins the last matched mode. Text matching neither keyword set
// keeps the pinned mode; there is no neutral state.
type Detector struct {
	mu   sync.Mutex
	last Mode
}

// NewDetector starts pinned to discovery.
func NewDetector() *Detector {
	return &Detector{last: Discovery}
}

// Detect classifies text by lowercase substring match, technical first.
func (d *Detector) Detect(text string) Mode {
	sentence := strings.ToLower(text)

	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case containsAny(sentence, technicalKeywords):
		d.last = Technical
	case containsAny(sentence, discoveryKeywords):
		d.last = Discovery
	}
	return d.last
}

// Override pins m until the next detection or override.
func (d *Detector) Override(m Mode) {
	d.mu.Lock()
	d.last = m
	d.mu.Unlock()
}

// Current returns the pinned mode.
func (d *Detector) Current() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
