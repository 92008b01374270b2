package browser

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aistudioproxy/pkg/utils"
)

func collectStream(t *testing.T, s *ResponseStream) []string {
	t.Helper()
	var frags []string
	for {
		frag, err := s.Next(context.Background())
		if err == io.EOF {
			return frags
		}
		require.NoError(t, err)
		frags = append(frags, frag)
	}
}

func TestStreamEmitsDeltasInOrder(t *testing.T) {
	s := NewResponseStream(time.Second, nil)

	// Cumulative page text "Hel" -> "Hello" -> "Hello!" arrives as
	// deltas from the observer.
	s.Push("Hel")
	s.Push("lo")
	s.Push("!")
	s.End()

	assert.Equal(t, []string{"Hel", "lo", "!"}, collectStream(t, s))
}

func TestStreamDrainsBufferAfterEnd(t *testing.T) {
	s := NewResponseStream(time.Second, nil)
	s.Push("tail")
	s.End()

	frag, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tail", frag)

	_, err = s.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestStreamImmediateEnd(t *testing.T) {
	s := NewResponseStream(time.Second, nil)
	s.End()

	_, err := s.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestStreamEndIsIdempotent(t *testing.T) {
	s := NewResponseStream(time.Second, nil)
	s.End()
	s.End()

	_, err := s.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestStreamPushAfterEndDiscarded(t *testing.T) {
	s := NewResponseStream(time.Second, nil)
	s.End()
	s.Push("late")

	_, err := s.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestStreamTimeoutWhenGenerationStillActive(t *testing.T) {
	s := NewResponseStream(20*time.Millisecond, func(ctx context.Context) bool {
		return false
	})

	_, err := s.Next(context.Background())
	require.Error(t, err)
	assert.True(t, utils.IsTimeout(err))
}

func TestStreamTimeoutEndsCleanlyWhenGenerationDone(t *testing.T) {
	// The observer missed the completion signal but the page shows a
	// terminal state, so the timeout resolves to a clean EOF.
	s := NewResponseStream(20*time.Millisecond, func(ctx context.Context) bool {
		return true
	})

	_, err := s.Next(context.Background())
	assert.Equal(t, io.EOF, err)

	// Subsequent reads stay at EOF.
	_, err = s.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestStreamDeliversLateFragments(t *testing.T) {
	s := NewResponseStream(time.Second, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Push("delayed")
		s.End()
	}()

	frag, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "delayed", frag)

	_, err = s.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestStreamContextCancellation(t *testing.T) {
	s := NewResponseStream(time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamEmptyFragmentsIgnored(t *testing.T) {
	s := NewResponseStream(time.Second, nil)
	s.Push("")
	s.Push("real")
	s.End()

	assert.Equal(t, []string{"real"}, collectStream(t, s))
}
