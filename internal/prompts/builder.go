// Package prompts assembles the LLM context envelope from knowledge, mode and
// a finalized transcript segment.
package prompts

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hubenschmidt/interview-assistant/internal/knowledge"
	"github.com/hubenschmidt/interview-assistant/internal/mode"
	"github.com/hubenschmidt/interview-assistant/internal/transcript"
)

// Envelope is the prompt pair built once per finalized segment.
type Envelope struct {
	SystemPrompt string    `json:"system_prompt"`
	UserPrompt   string    `json:"user_prompt"`
	Mode         mode.Mode `json:"mode"`
	TxID         string    `json:"tx_id"`
}

// Assemble builds an envelope without I/O. A nil bundle renders the
// not-yet-loaded placeholder.
func Assemble(bundle *knowledge.Bundle, seg transcript.Segment, m mode.Mode) Envelope {
	header := SystemHeader + "\nACTIVE MODE: " + strings.ToUpper(string(m))
	user := strings.Join([]string{
		fmt.Sprintf("CLIENT INPUT [%s] (%s):", seg.ID, seg.Timestamp),
		`"` + seg.Text + `"`,
		responseShape,
	}, "\n")
	return Envelope{
		SystemPrompt: header + "\n" + knowledgeBlock(bundle),
		UserPrompt:   user,
		Mode:         m,
		TxID:         seg.ID,
	}
}

func knowledgeBlock(bundle *knowledge.Bundle) string {
	if bundle == nil {
		return knowledgeMissing
	}
	sections := []string{knowledgeTitle}
	for _, f := range bundle.Files() {
		sections = append(sections, "# "+f.Name+"\n"+f.Content)
	}
	return strings.Join(sections, "\n\n")
}

// Builder holds the primed knowledge bundle and classifies each segment
// through a mode detector.
type Builder struct {
	detector *mode.Detector

	mu     sync.RWMutex
	bundle *knowledge.Bundle
}

// NewBuilder creates an unprimed builder.
func NewBuilder(detector *mode.Detector) *Builder {
	return &Builder{detector: detector}
}

// Prime installs the knowledge bundle. Called once at startup.
func (b *Builder) Prime(bundle knowledge.Bundle) {
	b.mu.Lock()
	b.bundle = &bundle
	b.mu.Unlock()
}

// Primed reports whether Prime has been called.
func (b *Builder) Primed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bundle != nil
}

// Assemble detects the mode of seg and builds its envelope.
func (b *Builder) Assemble(seg transcript.Segment) Envelope {
	m := b.detector.Detect(seg.Text)
	b.mu.RLock()
	bundle := b.bundle
	b.mu.RUnlock()
	return Assemble(bundle, seg, m)
}
