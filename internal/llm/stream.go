package llm

import (
	"context"
	"strings"
)

const streamBuffer = 16

// StreamWriter emits deltas into a stream started by Pipe
type StreamWriter struct {
	ctx    context.Context
	ch     chan<- StreamEvent
	usage  *Usage
	finish string
}

// Delta sends a text fragment. Empty fragments are dropped.
func (w *StreamWriter) Delta(text string) error {
	if text == "" {
		return nil
	}
	select {
	case w.ch <- StreamEvent{Delta: text}:
		return nil
	case <-w.ctx.Done():
		return w.ctx.Err()
	}
}

// SetUsage records token usage for the terminal event
func (w *StreamWriter) SetUsage(u *Usage) {
	w.usage = u
}

// SetFinishReason records the upstream stop reason for the terminal event
func (w *StreamWriter) SetFinishReason(reason string) {
	w.finish = reason
}

// Pipe runs produce in its own goroutine and returns the resulting stream.
// Whatever produce does, the stream ends with exactly one Done event that
// carries produce's error, and the channel is closed afterwards.
func Pipe(ctx context.Context, produce func(w *StreamWriter) error) <-chan StreamEvent {
	ch := make(chan StreamEvent, streamBuffer)

	go func() {
		defer close(ch)

		w := &StreamWriter{ctx: ctx, ch: ch}
		err := produce(w)

		final := StreamEvent{Done: true, FinishReason: w.finish, Usage: w.usage, Err: err}
		select {
		case ch <- final:
		case <-ctx.Done():
			// consumer may be gone; deliver only if there is room
			select {
			case ch <- final:
			default:
			}
		}
	}()

	return ch
}

// Collect drains a stream into its full text
func Collect(events <-chan StreamEvent) (string, *Usage, error) {
	var sb strings.Builder
	var usage *Usage
	for ev := range events {
		if ev.Done {
			usage = ev.Usage
			if ev.Err != nil {
				return sb.String(), usage, ev.Err
			}
			continue
		}
		sb.WriteString(ev.Delta)
	}
	return sb.String(), usage, nil
}
