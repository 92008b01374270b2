package browser

import (
	"context"
	"io"
	"sync"
	"time"

	"aistudioproxy/pkg/utils"
)

// ResponseStream delivers incremental response fragments produced by an
// in-page mutation observer. Fragments arrive on a buffered channel and
// the stream is ended exactly once when generation finishes.
type ResponseStream struct {
	frags   chan string
	done    chan struct{}
	endOnce sync.Once

	// timeout bounds the wait for each individual fragment.
	timeout time.Duration

	// ended reports whether the page reached a terminal state; checked
	// before a fragment timeout is treated as an error.
	ended func(ctx context.Context) bool
}

// NewResponseStream creates a stream with the given per-fragment
// timeout. The ended probe may be nil when no terminal-state check is
// available.
func NewResponseStream(timeout time.Duration, ended func(ctx context.Context) bool) *ResponseStream {
	return &ResponseStream{
		frags:   make(chan string, 256),
		done:    make(chan struct{}),
		timeout: timeout,
		ended:   ended,
	}
}

// Push enqueues a fragment. Pushes after End are discarded.
func (s *ResponseStream) Push(frag string) {
	if frag == "" {
		return
	}
	select {
	case <-s.done:
	case s.frags <- frag:
	default:
		// Buffer full. Block until there is room or the stream ends so
		// no fragment is silently dropped mid-generation.
		select {
		case s.frags <- frag:
		case <-s.done:
		}
	}
}

// End marks the stream complete. Safe to call multiple times.
func (s *ResponseStream) End() {
	s.endOnce.Do(func() {
		close(s.done)
	})
}

// Next returns the next fragment. It returns io.EOF once the stream has
// ended and all buffered fragments have been drained, and a timeout
// error when no fragment arrives within the per-fragment deadline while
// generation is still in progress.
func (s *ResponseStream) Next(ctx context.Context) (string, error) {
	// Drain buffered fragments before consulting done so nothing
	// pushed before End is lost.
	select {
	case frag := <-s.frags:
		return frag, nil
	default:
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case frag := <-s.frags:
		return frag, nil
	case <-s.done:
		select {
		case frag := <-s.frags:
			return frag, nil
		default:
			return "", io.EOF
		}
	case <-timer.C:
		// The observer can miss the completion signal; treat a quiet
		// stream as finished when the page shows a terminal state.
		if s.ended != nil && s.ended(ctx) {
			s.End()
			return "", io.EOF
		}
		return "", utils.NewTimeoutError("timed out waiting for response fragment")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
