package processors

import (
	"context"
	"fmt"
	"reflect"

	"github.com/square-key-labs/echogo-ai/src/frames"
	"github.com/square-key-labs/echogo-ai/src/logger"
)

// FrameLogger is a processor that logs frame information for debugging
type FrameLogger struct {
	*BaseProcessor
	logger            *logger.Logger
	ignoredFrameTypes map[reflect.Type]bool
	logDirection      bool
}

// FrameLoggerConfig configures the frame logger
type FrameLoggerConfig struct {
	// Prefix for log messages (e.g., "Pipeline", "TTS")
	Prefix string

	// IgnoredFrameTypes are frame types to skip logging (e.g., high-frequency audio frames)
	IgnoredFrameTypes []frames.Frame

	// LogDirection includes frame direction (upstream/downstream) in logs
	LogDirection bool

	// Logger instance to use (if nil, uses default logger)
	Logger *logger.Logger
}

// NewFrameLogger creates a new frame logger processor
func NewFrameLogger(config FrameLoggerConfig) *FrameLogger {
	if config.Prefix == "" {
		config.Prefix = "Frame"
	}

	log := config.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	fl := &FrameLogger{
		logger:            log.WithPrefix(config.Prefix),
		ignoredFrameTypes: make(map[reflect.Type]bool),
		logDirection:      config.LogDirection,
	}

	for _, frameType := range config.IgnoredFrameTypes {
		fl.ignoredFrameTypes[reflect.TypeOf(frameType)] = true
	}

	fl.BaseProcessor = NewBaseProcessor("FrameLogger:"+config.Prefix, fl)
	return fl
}

// HandleFrame logs the frame and passes it through
func (fl *FrameLogger) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if frame == nil || reflect.ValueOf(frame).IsNil() {
		fl.logger.Warn("Received nil frame, skipping")
		return nil
	}

	if fl.ignoredFrameTypes[reflect.TypeOf(frame)] {
		return fl.PushFrame(frame, direction)
	}

	if fl.logger.IsLevelEnabled(logger.DEBUG) {
		fl.logger.Debug("%s", fl.formatFrameLog(frame, direction))
	}

	return fl.PushFrame(frame, direction)
}

func (fl *FrameLogger) formatFrameLog(frame frames.Frame, direction frames.FrameDirection) string {
	if !fl.logDirection {
		return frame.String()
	}

	arrow := "-> "
	if direction == frames.Upstream {
		arrow = "<- "
	}
	return fmt.Sprintf("%s%s", arrow, frame.String())
}
