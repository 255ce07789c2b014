package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hubenschmidt/interview-assistant/internal/pipeline"
)

// Recorder writes two-stage run traces asynchronously via a buffered
// channel. All methods are nil-safe (no-op on nil receiver).
type Recorder struct {
	store *Store
	log   *slog.Logger
	ch    chan Run
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts the drain goroutine. Must call Close when done.
func NewRecorder(store *Store, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		store: store,
		log:   log,
		ch:    make(chan Run, 64),
		done:  make(chan struct{}),
	}
	go r.drain()
	return r
}

func (r *Recorder) drain() {
	defer close(r.done)
	for run := range r.ch {
		if err := r.store.CreateRun(context.Background(), run); err != nil {
			r.log.Warn("trace write failed", "run_id", run.ID, "tx_id", run.TxID, "error", err)
		}
	}
}

// RecordRun queues one run and its spans.
func (r *Recorder) RecordRun(t pipeline.RunTrace) {
	if r == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.ch <- toRun(t)
}

// Close drains pending writes and shuts down the background goroutine.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()
	<-r.done
}

func toRun(t pipeline.RunTrace) Run {
	run := Run{
		ID:         uuid.NewString(),
		TxID:       t.TxID,
		StartedAt:  t.StartedAt,
		DurationMs: ms(t.Duration.Microseconds()),
		Status:     status(t.Err),
		Error:      errText(t.Err),
	}
	for _, sp := range t.Spans {
		run.Spans = append(run.Spans, Span{
			ID:         uuid.NewString(),
			RunID:      run.ID,
			Name:       sp.Name,
			StartedAt:  sp.StartedAt,
			DurationMs: ms(sp.Duration.Microseconds()),
			Status:     status(sp.Err),
			Error:      errText(sp.Err),
		})
	}
	return run
}

func ms(us int64) float64 { return float64(us) / 1000 }

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
