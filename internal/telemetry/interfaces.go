package telemetry

import (
	"log"

	"espnow-arena/node/logging"
)

// Metric keys shared by the link, the inbound queue and the node.
const (
	MetricPacketsIn       = "link_packets_in_total"
	MetricPacketsOut      = "link_packets_out_total"
	MetricSendFailures    = "link_send_failures_total"
	MetricShortDropped    = "dispatch_short_dropped_total"
	MetricUnknownType     = "dispatch_unknown_type_total"
	MetricInboundOverflow = "inbound_overflow_total"
	MetricInboundDepth    = "inbound_queue_depth"
	MetricCellsDropped    = "engine_cells_dropped_total"
	MetricBombsRefused    = "engine_bombs_refused_total"
)

// Logger is the operator-facing text logger components write to.
type Logger interface {
	Printf(format string, args ...any)
}

type LoggerFunc func(format string, args ...any)

func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger. A nil logger discards output.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// StandardLogger exposes the wrapped logger.
func (l *loggerAdapter) StandardLogger() *log.Logger {
	return l.logger
}

// Discard returns a Logger that drops everything.
func Discard() Logger {
	return LoggerFunc(func(string, ...any) {})
}

// Metrics is the counter surface components report through.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// WrapMetrics adapts the logging metrics registry. A nil registry discards.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return &metricsAdapter{metrics: metrics}
}

type metricsAdapter struct {
	metrics *logging.Metrics
}

func (m *metricsAdapter) Add(key string, delta uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryAdd(key, delta)
}

func (m *metricsAdapter) Store(key string, value uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryStore(key, value)
}

// NopMetrics drops every measurement.
func NopMetrics() Metrics {
	return WrapMetrics(nil)
}
