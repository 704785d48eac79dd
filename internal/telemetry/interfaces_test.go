package telemetry

import (
	"bytes"
	"log"
	"testing"

	"espnow-arena/node/logging"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WrapLogger(log.New(&buf, "", 0))
		logger.Printf("peer %s unreachable", "a")
		if got := buf.String(); got != "peer a unreachable\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})

	t.Run("discard", func(t *testing.T) {
		Discard().Printf("nothing %d", 1)
	})
}

func TestWrapMetrics(t *testing.T) {
	metrics := logging.Metrics{}
	adapter := WrapMetrics(&metrics)

	adapter.Add(MetricPacketsIn, 2)
	adapter.Store(MetricInboundDepth, 5)
	adapter.Add(MetricPacketsIn, 3)

	snapshot := metrics.Snapshot()
	if got := snapshot[MetricPacketsIn]; got != 5 {
		t.Fatalf("unexpected counter value: %d", got)
	}
	if got := snapshot[MetricInboundDepth]; got != 5 {
		t.Fatalf("unexpected gauge value: %d", got)
	}

	nop := NopMetrics()
	nop.Add("ignored", 1)
	nop.Store("ignored", 1)
}
