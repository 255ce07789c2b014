package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hubenschmidt/interview-assistant/internal/failure"
	"github.com/hubenschmidt/interview-assistant/internal/metrics"
	"github.com/hubenschmidt/interview-assistant/internal/prompts"
)

const (
	draftInstruction  = "\nYou are stage A (draft). Produce 3 terse JSON suggestions as {\"suggestions\":[{\"summary\",\"next_line\",\"probe\",\"confidence\"}]}"
	refineRole        = "You are stage B (refiner). You receive draft suggestions and must return the top 3 ranked suggestions with reason codes."
	refineInstruction = "Return JSON: {\"suggestions\":[{\"summary\",\"next_line\",\"probe\",\"why\"}]}."
)

// StageConfig selects the model and temperature of one stage.
type StageConfig struct {
	Model       string
	Temperature float64
}

// EngineConfig configures a two-stage engine.
type EngineConfig struct {
	Draft     StageConfig
	Refine    StageConfig
	TopP      float64
	MaxTokens int
	Tracer    Tracer
	Logger    *slog.Logger
}

// SpanTrace is one timed stage of a run.
type SpanTrace struct {
	Name      string
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// RunTrace describes a finished two-stage run.
type RunTrace struct {
	TxID      string
	StartedAt time.Time
	Duration  time.Duration
	Spans     []SpanTrace
	Err       error
}

// Tracer receives one record per run. Implementations should return quickly.
type Tracer interface {
	RecordRun(RunTrace)
}

// Engine runs the draft and refine calls for one envelope. Safe for
// concurrent use; runs share nothing but the client.
type Engine struct {
	client ChatClient
	cfg    EngineConfig
	log    *slog.Logger
}

// NewEngine creates an engine over client.
func NewEngine(client ChatClient, cfg EngineConfig) *Engine {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{client: client, cfg: cfg, log: log}
}

// Run produces a ranked deck of at most three suggestions. A failure in
// either stage aborts the run; no partial deck is returned.
func (e *Engine) Run(ctx context.Context, env prompts.Envelope) (*Result, error) {
	start := time.Now()
	trace := RunTrace{TxID: env.TxID, StartedAt: start}

	res, err := e.run(ctx, env, &trace)

	trace.Duration = time.Since(start)
	trace.Err = err
	if e.cfg.Tracer != nil {
		e.cfg.Tracer.RecordRun(trace)
	}

	if err != nil {
		metrics.Errors.WithLabelValues("two_stage", failure.Label(err)).Inc()
		e.log.Warn("two-stage run failed", "tx_id", env.TxID, "error", err)
		return nil, err
	}

	metrics.StageDuration.WithLabelValues("two_stage").Observe(trace.Duration.Seconds())
	res.LatencyMs = float64(trace.Duration.Microseconds()) / 1000
	e.log.Debug("two-stage run complete",
		"tx_id", env.TxID,
		"mode", env.Mode,
		"suggestions", len(res.Suggestions),
		"latency_ms", res.LatencyMs,
	)
	return res, nil
}

func (e *Engine) run(ctx context.Context, env prompts.Envelope, trace *RunTrace) (*Result, error) {
	draftPrompt := strings.Join([]string{env.SystemPrompt, draftInstruction, env.UserPrompt}, "\n\n")
	draftRaw, err := e.stage(ctx, "draft", e.cfg.Draft, draftPrompt, trace)
	if err != nil {
		return nil, err
	}
	draft, err := parseDraft(draftRaw)
	if err != nil {
		return nil, err
	}

	refinePrompt := strings.Join([]string{
		env.SystemPrompt,
		refineRole,
		refineInstruction,
		fmt.Sprintf("Conversation mode: %s.", env.Mode),
		"Draft suggestions: " + draft,
		env.UserPrompt,
	}, "\n\n")
	refineRaw, err := e.stage(ctx, "refine", e.cfg.Refine, refinePrompt, trace)
	if err != nil {
		return nil, err
	}

	suggestions, err := parseRefine(refineRaw, envelopeRef{txID: env.TxID, mode: env.Mode}, time.Now().UnixMilli())
	if err != nil {
		return nil, err
	}

	return &Result{
		TxID:        env.TxID,
		Mode:        env.Mode,
		Suggestions: suggestions,
	}, nil
}

func (e *Engine) stage(ctx context.Context, name string, sc StageConfig, prompt string, trace *RunTrace) (string, error) {
	start := time.Now()
	res, err := e.client.Chat(ctx, ChatRequest{
		Model:       sc.Model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: sc.Temperature,
		TopP:        e.cfg.TopP,
		MaxTokens:   e.cfg.MaxTokens,
	})
	elapsed := time.Since(start)
	trace.Spans = append(trace.Spans, SpanTrace{Name: name, StartedAt: start, Duration: elapsed, Err: err})
	metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		return "", fmt.Errorf("%s stage: %w", name, err)
	}
	return res.Text, nil
}
