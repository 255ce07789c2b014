package asr

import (
	"context"
	"errors"
	"sync"
)

var errWriterClosed = errors.New("asr writer closed")

type writeItem struct {
	frame Frame
	done  chan error // nil for audio
}

// writer serializes all transport writes through one goroutine so framed
// records never interleave. The queue is unbounded; audio is never dropped
// here.
type writer struct {
	send    func(Frame) error
	onError func(error)

	mu     sync.Mutex
	queue  []writeItem
	closed bool
	wake   chan struct{}
	stop   chan struct{}
	exited chan struct{}
}

func newWriter(send func(Frame) error, onError func(error)) *writer {
	w := &writer{
		send:    send,
		onError: onError,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writer) enqueue(item writeItem) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, item)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// audio queues a frame without waiting for its write.
func (w *writer) audio(f Frame) bool {
	return w.enqueue(writeItem{frame: f})
}

// control queues a frame and waits for its write to complete.
func (w *writer) control(ctx context.Context, f Frame) error {
	done := make(chan error, 1)
	if !w.enqueue(writeItem{frame: f, done: done}) {
		return errWriterClosed
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *writer) next() (writeItem, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return writeItem{}, false
	}
	item := w.queue[0]
	w.queue[0] = writeItem{}
	w.queue = w.queue[1:]
	return item, true
}

func (w *writer) run() {
	defer close(w.exited)
	for {
		select {
		case <-w.stop:
			return
		case <-w.wake:
		}
		for {
			item, ok := w.next()
			if !ok {
				break
			}
			err := w.send(item.frame)
			if item.done != nil {
				item.done <- err
				continue
			}
			if err != nil && w.onError != nil {
				w.onError(err)
			}
		}
	}
}

// close stops the writer and fails queued control writes.
func (w *writer) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	queued := w.queue
	w.queue = nil
	w.mu.Unlock()

	close(w.stop)
	<-w.exited
	for _, item := range queued {
		if item.done != nil {
			item.done <- errWriterClosed
		}
	}
}
