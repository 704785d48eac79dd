package logging_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"espnow-arena/node/logging"
	"espnow-arena/node/logging/sinks"
)

func TestRouterDeliversToEnabledSinksOnly(t *testing.T) {
	enabled := sinks.NewMemorySink()
	disabled := sinks.NewMemorySink()

	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"memory"}
	cfg.Fields = map[string]any{"node": "n-1"}
	router, err := logging.NewRouter(cfg, logging.ClockFunc(func() time.Time { return time.Unix(100, 0) }), log.New(io.Discard, "", 0), map[string]logging.Sink{
		"memory": enabled,
		"other":  disabled,
	})
	if err != nil {
		t.Fatalf("NewRouter returned error: %v", err)
	}

	router.Publish(context.Background(), logging.Event{Type: "test.info", Severity: logging.SeverityInfo})
	router.Publish(context.Background(), logging.Event{Type: "test.debug", Severity: logging.SeverityDebug})
	router.Publish(context.Background(), logging.Event{Severity: logging.SeverityError})

	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	events := enabled.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event past the severity filter, got %d", len(events))
	}
	if events[0].Type != "test.info" {
		t.Fatalf("unexpected event type %q", events[0].Type)
	}
	if events[0].Extra["node"] != "n-1" {
		t.Fatalf("static field not stamped: %+v", events[0].Extra)
	}
	if !events[0].Time.Equal(time.Unix(100, 0)) {
		t.Fatalf("clock not applied: %v", events[0].Time)
	}
	if len(disabled.Events()) != 0 {
		t.Fatalf("disabled sink received events")
	}
	if stats := router.Stats(); stats.EventsTotal != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestWithTraceKeepsExplicitTrace(t *testing.T) {
	var got []logging.Event
	base := logging.PublisherFunc(func(_ context.Context, e logging.Event) { got = append(got, e) })
	pub := logging.WithTrace(base, "round-1")

	pub.Publish(context.Background(), logging.Event{Type: "a"})
	pub.Publish(context.Background(), logging.Event{Type: "b", TraceID: "explicit"})

	if got[0].TraceID != "round-1" || got[1].TraceID != "explicit" {
		t.Fatalf("unexpected trace ids: %q %q", got[0].TraceID, got[1].TraceID)
	}
}

func TestMetricsAccumulate(t *testing.T) {
	var m logging.Metrics
	m.TelemetryAdd("packets_in", 2)
	m.TelemetryAdd("packets_in", 3)
	m.TelemetryStore("queue", 7)

	snap := m.Snapshot()
	if snap["packets_in"] != 5 || snap["queue"] != 7 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if keys := m.Keys(); len(keys) != 2 || keys[0] != "packets_in" {
		t.Fatalf("unexpected keys %v", keys)
	}
}
