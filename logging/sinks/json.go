package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"espnow-arena/node/logging"
)

// JSON emits newline-delimited structured events.
type JSON struct {
	mu        sync.Mutex
	writer    *bufio.Writer
	closer    io.Closer
	encoder   *json.Encoder
	autoFlush bool
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewJSON constructs a JSON sink writing to w. A non-positive flushInterval
// flushes after every event. If w is an io.Closer it is closed with the sink.
func NewJSON(w io.Writer, flushInterval time.Duration) *JSON {
	if w == nil {
		w = io.Discard
	}
	buf := bufio.NewWriter(w)
	sink := &JSON{
		writer:    buf,
		encoder:   json.NewEncoder(buf),
		autoFlush: flushInterval <= 0,
		stop:      make(chan struct{}),
	}
	if c, ok := w.(io.Closer); ok {
		sink.closer = c
	}
	if flushInterval > 0 {
		go sink.periodicFlush(flushInterval)
	}
	return sink
}

func (s *JSON) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wire := map[string]any{
		"type":     event.Type,
		"tick":     event.Tick,
		"time":     event.Time.Format(time.RFC3339Nano),
		"severity": event.Severity.String(),
		"category": event.Category,
		"actor":    event.Actor,
		"targets":  event.Targets,
		"payload":  event.Payload,
		"extra":    event.Extra,
		"traceId":  event.TraceID,
	}
	if err := s.encoder.Encode(wire); err != nil {
		return err
	}
	if s.autoFlush {
		return s.writer.Flush()
	}
	return nil
}

// Close flushes buffers and closes the underlying writer when it is closable.
func (s *JSON) Close(context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Flush(); err != nil {
		return err
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (s *JSON) periodicFlush(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.writer.Flush()
			s.mu.Unlock()
		}
	}
}
