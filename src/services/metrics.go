package services

import (
	"time"

	"github.com/square-key-labs/echogo-ai/src/logger"
)

// MetricsReporter receives latency measurements from services. The only
// measurement services report today is time-to-first-byte: the window opens
// when a request is sent and closes when the first payload for it arrives.
type MetricsReporter interface {
	// TTFBStart opens a latency window for the named service
	TTFBStart(service string)

	// TTFBStop closes the window with the measured latency
	TTFBStop(service string, elapsed time.Duration)

	// TTFBCancel abandons an open window without a measurement (e.g., the
	// request was interrupted before any payload arrived)
	TTFBCancel(service string)
}

// LogMetrics reports measurements to the default logger
type LogMetrics struct{}

func NewLogMetrics() *LogMetrics {
	return &LogMetrics{}
}

func (m *LogMetrics) TTFBStart(service string) {
	logger.Debug("[%s] TTFB window opened", service)
}

func (m *LogMetrics) TTFBStop(service string, elapsed time.Duration) {
	logger.Info("[%s] TTFB: %v", service, elapsed)
}

func (m *LogMetrics) TTFBCancel(service string) {
	logger.Debug("[%s] TTFB window cancelled", service)
}
