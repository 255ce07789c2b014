// Package orchestrator wires the ASR session, the audio chunker and the
// two-stage suggestion engine together. One Orchestrator is built at
// startup and handed to every surface that needs it.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hubenschmidt/interview-assistant/internal/asr"
	"github.com/hubenschmidt/interview-assistant/internal/audio"
	"github.com/hubenschmidt/interview-assistant/internal/failure"
	"github.com/hubenschmidt/interview-assistant/internal/ipc"
	"github.com/hubenschmidt/interview-assistant/internal/knowledge"
	"github.com/hubenschmidt/interview-assistant/internal/metrics"
	"github.com/hubenschmidt/interview-assistant/internal/mode"
	"github.com/hubenschmidt/interview-assistant/internal/pipeline"
	"github.com/hubenschmidt/interview-assistant/internal/prompts"
	"github.com/hubenschmidt/interview-assistant/internal/state"
	"github.com/hubenschmidt/interview-assistant/internal/transcript"
)

const (
	defaultChunkQueue = 64
	inboxSize         = 256
)

var errKnowledgeNotReady = errors.New("knowledge not ready")

// Runner executes one two-stage suggestion run.
type Runner interface {
	Run(ctx context.Context, env prompts.Envelope) (*pipeline.Result, error)
}

// Store persists finalized transcripts and suggestion decks.
type Store interface {
	SaveTranscript(ctx context.Context, seg transcript.Segment) error
	SaveSuggestions(ctx context.Context, deck []pipeline.Suggestion) error
}

// Config holds the collaborators. Store and Probe are optional.
type Config struct {
	Dialer     asr.Dialer
	Session    asr.Config
	Engine     Runner
	Store      Store
	Probe      func(ctx context.Context) error
	Chunker    audio.ChunkerConfig
	ChunkQueue int
	Logger     *slog.Logger
}

// Event is pushed to subscribers. Payload is JSON-encodable.
type Event struct {
	Channel ipc.Channel
	Payload any
}

// Listener receives events on the orchestration goroutine and must not block.
type Listener func(Event)

// SuggestionPayload is the autosuggest/result body. Stale results were
// overtaken by a newer segment and did not replace the deck.
type SuggestionPayload struct {
	TxID        string                `json:"txId"`
	Mode        mode.Mode             `json:"mode"`
	Suggestions []pipeline.Suggestion `json:"suggestions"`
	LatencyMs   float64               `json:"latencyMs"`
	Stale       bool                  `json:"stale,omitempty"`
}

type runResult struct {
	seq     uint64
	seg     transcript.Segment
	started time.Time
	res     *pipeline.Result
	err     error
}

// Orchestrator owns the session, the chunker, the mode detector, the
// prompt builder, the engine, system state and the current deck.
type Orchestrator struct {
	log      *slog.Logger
	state    *state.System
	detector *mode.Detector
	builder  *prompts.Builder
	engine   Runner
	store    Store
	probe    func(ctx context.Context) error
	session  *asr.Session

	chunkMu sync.Mutex
	chunker *audio.Chunker
	chunks  chan audio.Chunk

	inbox chan func(context.Context)
	done  chan struct{}
	once  sync.Once

	// Written only on the loop goroutine.
	finalSeq   uint64
	appliedSeq uint64

	mu        sync.RWMutex
	deck      []pipeline.Suggestion
	listeners map[int]Listener
	nextSub   int
}

// New builds an orchestrator. Nothing runs until Run is called.
func New(cfg Config) *Orchestrator {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.ChunkQueue <= 0 {
		cfg.ChunkQueue = defaultChunkQueue
	}
	if cfg.Session.Logger == nil {
		cfg.Session.Logger = log
	}

	detector := mode.NewDetector()
	o := &Orchestrator{
		log:       log,
		state:     state.New(),
		detector:  detector,
		builder:   prompts.NewBuilder(detector),
		engine:    cfg.Engine,
		store:     cfg.Store,
		probe:     cfg.Probe,
		chunks:    make(chan audio.Chunk, cfg.ChunkQueue),
		inbox:     make(chan func(context.Context), inboxSize),
		done:      make(chan struct{}),
		listeners: map[int]Listener{},
	}
	o.chunker = audio.NewChunker(cfg.Chunker, o.chunks)
	o.session = asr.NewSession(cfg.Dialer, cfg.Session, o.onSessionEvent)
	return o
}

// Run is the orchestration loop. It returns when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.once.Do(func() { close(o.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-o.chunks:
			o.session.SendAudioChunk(audio.EncodePCM16(c.Samples))
		case fn := <-o.inbox:
			fn(ctx)
		}
	}
}

// post queues fn for the loop. Returns false once the loop has exited.
func (o *Orchestrator) post(fn func(context.Context)) bool {
	select {
	case o.inbox <- fn:
		return true
	case <-o.done:
		return false
	}
}

// sync waits until everything posted before it has been handled.
func (o *Orchestrator) sync(ctx context.Context) {
	flushed := make(chan struct{})
	if !o.post(func(context.Context) { close(flushed) }) {
		return
	}
	select {
	case <-flushed:
	case <-ctx.Done():
	case <-o.done:
	}
}

// Boot primes the prompt builder with the knowledge bundle and runs the
// optional LLM probe.
func (o *Orchestrator) Boot(ctx context.Context, bundle knowledge.Bundle) {
	if o.store != nil {
		o.state.UpdateDbReady(true)
	}
	o.builder.Prime(bundle)
	o.log.Info("knowledge primed", "files", bundle.Len())

	if o.probe != nil {
		err := o.probe(ctx)
		if err != nil {
			o.log.Warn("llm probe failed", "error", err)
		}
		o.state.UpdateLlmReady(err == nil)
	}
	o.broadcastStatus()
}

// KnowledgeReady reports whether Boot has primed the builder.
func (o *Orchestrator) KnowledgeReady() error {
	if !o.builder.Primed() {
		return errKnowledgeNotReady
	}
	return nil
}

// StartASR starts (or restarts) the engine session. State reflects the
// outcome by the time it returns.
func (o *Orchestrator) StartASR(ctx context.Context, opts asr.StartOptions) error {
	err := o.session.Start(ctx, opts)
	o.sync(ctx)
	return err
}

// StopASR stops the engine session.
func (o *Orchestrator) StopASR(ctx context.Context) {
	o.session.Stop()
	o.sync(ctx)
}

// PushAudio feeds one capture buffer into the chunker. It never blocks on
// the session.
func (o *Orchestrator) PushAudio(channels [][]float32, nativeRate int) int {
	o.chunkMu.Lock()
	defer o.chunkMu.Unlock()
	return o.chunker.Process(channels, nativeRate)
}

// SendAudioChunk forwards already-chunked PCM straight to the session.
func (o *Orchestrator) SendAudioChunk(pcm []byte) bool {
	return o.session.SendAudioChunk(pcm)
}

// RequestStatus returns a copy of the system state.
func (o *Orchestrator) RequestStatus() state.Snapshot {
	return o.state.Snapshot()
}

// OverrideMode pins m until the next detection or override.
func (o *Orchestrator) OverrideMode(m mode.Mode) {
	o.detector.Override(m)
	o.state.SetMode(m)
	o.log.Info("mode override", "mode", m)
	o.broadcastStatus()
}

// SendHotkey returns the deck entry at index. Out of range is ignored.
func (o *Orchestrator) SendHotkey(index int) (pipeline.Suggestion, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if index < 0 || index >= len(o.deck) {
		o.log.Debug("hotkey out of range", "index", index, "deck", len(o.deck))
		return pipeline.Suggestion{}, false
	}
	sg := o.deck[index]
	o.log.Info("hotkey", "index", index, "id", sg.ID, "next_line", sg.NextLine)
	return sg, true
}

// Deck returns a copy of the current deck.
func (o *Orchestrator) Deck() []pipeline.Suggestion {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]pipeline.Suggestion, len(o.deck))
	copy(out, o.deck)
	return out
}

// Subscribe registers l and returns a func that removes it.
func (o *Orchestrator) Subscribe(l Listener) func() {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.listeners[id] = l
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

func (o *Orchestrator) broadcast(ch ipc.Channel, payload any) {
	o.mu.RLock()
	ls := make([]Listener, 0, len(o.listeners))
	for _, l := range o.listeners {
		ls = append(ls, l)
	}
	o.mu.RUnlock()

	ev := Event{Channel: ch, Payload: payload}
	for _, l := range ls {
		l(ev)
	}
}

func (o *Orchestrator) broadcastStatus() {
	o.broadcast(ipc.StatusSnapshot, o.state.Snapshot())
}

// onSessionEvent runs on transport goroutines and hands off to the loop.
func (o *Orchestrator) onSessionEvent(ev asr.Event) {
	o.post(func(ctx context.Context) { o.handleSessionEvent(ctx, ev) })
}

func (o *Orchestrator) handleSessionEvent(ctx context.Context, ev asr.Event) {
	switch e := ev.(type) {
	case asr.StatusEvent:
		o.handleStatus(e)
	case asr.TranscriptEvent:
		o.handleTranscript(ctx, e)
	}
}

func (o *Orchestrator) handleStatus(e asr.StatusEvent) {
	o.broadcast(ipc.ASRStatus, ipc.ASRStatusPayload{Status: string(e.Status), Message: e.Message})

	switch e.Status {
	case asr.StatusReady:
		o.state.UpdateAsrReady(true)
	case asr.StatusStopped:
		o.state.UpdateAsrReady(false)
	case asr.StatusError:
		// Malformed engine output does not take the session down.
		if errors.Is(e.Err, failure.ErrProtocol) {
			return
		}
		o.state.UpdateAsrReady(false)
	default:
		return
	}
	o.broadcastStatus()
}

func (o *Orchestrator) handleTranscript(ctx context.Context, e asr.TranscriptEvent) {
	confidence := 1.0
	if e.Confidence != nil {
		confidence = *e.Confidence
	}
	seg := transcript.New(e.Text, confidence, !e.IsFinal, time.Now())
	if e.LatencyMs != nil {
		seg.LatencyMs = *e.LatencyMs
	}

	if !e.IsFinal {
		o.broadcast(ipc.TranscriptPartial, seg)
		return
	}
	o.broadcast(ipc.TranscriptFinal, seg)
	o.handleFinalSegment(ctx, seg)
}

func (o *Orchestrator) handleFinalSegment(ctx context.Context, seg transcript.Segment) {
	if o.store != nil {
		if err := o.store.SaveTranscript(ctx, seg); err != nil {
			metrics.Errors.WithLabelValues("store", failure.Label(err)).Inc()
			o.log.Warn("save transcript failed", "tx_id", seg.ID, "error", err)
		}
	}

	env := o.builder.Assemble(seg)
	o.detector.Override(env.Mode)
	o.state.SetMode(env.Mode)
	o.broadcastStatus()

	if o.engine == nil {
		return
	}
	o.finalSeq++
	seq := o.finalSeq
	started := time.Now()
	go func() {
		res, err := o.engine.Run(ctx, env)
		o.post(func(ctx context.Context) {
			o.applyResult(ctx, runResult{seq: seq, seg: seg, started: started, res: res, err: err})
		})
	}()
}

func (o *Orchestrator) applyResult(ctx context.Context, r runResult) {
	defer o.broadcastStatus()

	if r.err != nil {
		o.state.UpdateLlmReady(false)
		o.log.Warn("suggestion run failed", "tx_id", r.seg.ID, "error", r.err)
		return
	}
	o.state.UpdateLlmReady(true)
	metrics.E2EDuration.Observe(time.Since(r.started).Seconds())

	stale := r.seq < o.appliedSeq
	if stale {
		metrics.StaleResults.Inc()
		o.log.Info("stale suggestion result", "tx_id", r.res.TxID, "seq", r.seq, "applied", o.appliedSeq)
	} else {
		o.appliedSeq = r.seq
		deck := make([]pipeline.Suggestion, len(r.res.Suggestions))
		copy(deck, r.res.Suggestions)
		o.mu.Lock()
		o.deck = deck
		o.mu.Unlock()
	}

	if o.store != nil {
		if err := o.store.SaveSuggestions(ctx, r.res.Suggestions); err != nil {
			metrics.Errors.WithLabelValues("store", failure.Label(err)).Inc()
			o.log.Warn("save suggestions failed", "tx_id", r.res.TxID, "error", err)
		}
	}

	o.broadcast(ipc.AutosuggestResult, SuggestionPayload{
		TxID:        r.res.TxID,
		Mode:        r.res.Mode,
		Suggestions: r.res.Suggestions,
		LatencyMs:   r.res.LatencyMs,
		Stale:       stale,
	})
}
