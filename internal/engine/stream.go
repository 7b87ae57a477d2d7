package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
)

// Stream is one live SSE session on a job. Events are delivered in wire
// order on Events until the server closes the stream, the connection
// fails, or Close is called; the channel is then closed and Err reports
// what ended the session (nil for a clean end).
type Stream struct {
	events chan StreamEvent

	ctx    context.Context
	cancel context.CancelFunc
	body   io.ReadCloser

	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func newStream(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser) *Stream {
	return &Stream{
		events: make(chan StreamEvent, 16),
		ctx:    ctx,
		cancel: cancel,
		body:   body,
	}
}

// Events returns the event channel. It is closed when the session ends.
func (s *Stream) Events() <-chan StreamEvent {
	return s.events
}

// Err reports why the session ended. It is meaningful only after Events
// is closed. A nil error means the server finished the stream or Close
// was called.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears down the session. It is safe to call more than once and
// safe to call concurrently with reads from Events.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.body.Close()
	})
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// read consumes SSE frames from the response body until it ends. Frames
// follow the "event: <name>\ndata: <payload>\n\n" form; lines starting
// with ':' are heartbeats and are discarded.
func (s *Stream) read() {
	defer close(s.events)
	defer s.Close()

	scanner := newStreamScanner(s.body)

	var eventName string
	var data bytes.Buffer

	dispatch := func() bool {
		if eventName == "" && data.Len() == 0 {
			return true
		}
		name := eventName
		if name == "" {
			name = EventMessage
		}
		ev := StreamEvent{Type: name}
		if data.Len() > 0 {
			ev.Data = json.RawMessage(append([]byte(nil), data.Bytes()...))
		}
		eventName = ""
		data.Reset()

		select {
		case s.events <- ev:
			return true
		case <-s.ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if !dispatch() {
				return
			}
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	// Flush a final frame that arrived without a trailing blank line.
	if eventName != "" || data.Len() > 0 {
		if !dispatch() {
			return
		}
	}

	if err := scanner.Err(); err != nil && s.ctx.Err() == nil {
		s.setErr(&TransportError{Op: "stream", Err: err})
	}
}
