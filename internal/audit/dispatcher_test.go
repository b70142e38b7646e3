package audit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, Event) error {
	<-s.gate
	return nil
}

type recordSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordSink) Emit(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &recordSink{})
	if d != nil {
		t.Fatalf("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Close()
	if d.Dropped() != 0 || d.Failed() != 0 {
		t.Fatalf("nil dispatcher must report zero counters")
	}
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := &recordSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16, Logger: quietLogger()}, sink)
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "login_success"})
	}
	d.Close()
	if sink.count() != 10 {
		t.Fatalf("expected 10 delivered events, got %d", sink.count())
	}
}

func TestDispatcherDropIfFullDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true, Logger: quietLogger()}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	start := time.Now()
	d.Emit(context.Background(), Event{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("expected non-blocking emit when DropIfFull is set")
	}
	if d.Dropped() == 0 {
		t.Fatalf("expected dropped counter to increment when queue is full")
	}
}

func TestDispatcherBlockingEmitHonoursContext(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, Logger: quietLogger()}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		d.Emit(ctx, Event{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected emit to give up when its context ends")
	}
	if d.Dropped() != 1 {
		t.Fatalf("expected one dropped event, got %d", d.Dropped())
	}
}

func TestDispatcherLogsSinkFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&log.JSONFormatter{})

	sink := &recordSink{err: errors.New("broker unreachable")}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, Logger: logger}, sink)
	d.Emit(context.Background(), Event{ID: "ev-1", EventType: "logout"})
	d.Close()

	if d.Failed() != 1 {
		t.Fatalf("expected one failed emit, got %d", d.Failed())
	}
	out := buf.String()
	if !strings.Contains(out, "broker unreachable") || !strings.Contains(out, `"event_type":"logout"`) {
		t.Fatalf("expected failure to be logged with the event type, got %q", out)
	}
}

func TestDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	sink := &recordSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, DropIfFull: true, Logger: quietLogger()}, sink)

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{EventType: "e2"})
	if sink.count() != 1 {
		t.Fatalf("expected only the event emitted before Close, got %d", sink.count())
	}
}

func TestJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	err := sink.Emit(context.Background(), Event{
		Timestamp: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		EventType: "login_success",
		UserID:    "u1",
		IP:        "127.0.0.1",
		Success:   true,
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	line := buf.String()
	if !strings.HasSuffix(line, "\n") || strings.Count(line, "\n") != 1 {
		t.Fatalf("expected one JSON line, got %q", line)
	}
	if !strings.Contains(line, `"user_id":"u1"`) || !strings.Contains(line, "login_success") {
		t.Fatalf("unexpected JSON line %q", line)
	}
}

func TestChannelSinkReportsCancelledContext(t *testing.T) {
	sink := NewChannelSink(1)
	if err := sink.Emit(context.Background(), Event{EventType: "e1"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.Emit(ctx, Event{EventType: "e2"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ev := <-sink.Events(); ev.EventType != "e1" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
