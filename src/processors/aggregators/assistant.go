package aggregators

import (
	"context"
	"log"

	"github.com/square-key-labs/echogo-ai/src/frames"
	"github.com/square-key-labs/echogo-ai/src/services"
)

// LLMAssistantAggregator accumulates assistant responses into the shared
// conversation context. Placed after a TTS service that replays words
// aligned to audio playback, the accumulated text at any instant matches
// what has actually been spoken, so an interruption records only the part
// the user heard.
type LLMAssistantAggregator struct {
	*LLMContextAggregator

	started int // Nesting counter for LLM responses
}

// NewLLMAssistantAggregator creates a new assistant aggregator
func NewLLMAssistantAggregator(context *services.LLMContext) *LLMAssistantAggregator {
	a := &LLMAssistantAggregator{
		started: 0,
	}
	a.LLMContextAggregator = NewLLMContextAggregator("LLMAssistantAggregator", context, a)
	return a
}

// HandleFrame processes frames for assistant aggregation
func (a *LLMAssistantAggregator) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.InterruptionFrame:
		log.Printf("[%s] Interruption received - closing out partial response", a.Name())

		// Whatever accumulated so far is what was heard; record it
		if len(a.aggregation) > 0 {
			if err := a.pushAggregation(); err != nil {
				log.Printf("[%s] Error pushing aggregation on interruption: %v", a.Name(), err)
			}
		}

		if err := a.Reset(); err != nil {
			log.Printf("[%s] Error resetting on interruption: %v", a.Name(), err)
		}
		return a.PushFrame(frame, direction)

	case *frames.LLMFullResponseStartFrame:
		a.started++
		return a.PushFrame(frame, direction)

	case *frames.LLMFullResponseEndFrame:
		a.started--
		if a.started <= 0 {
			if err := a.pushAggregation(); err != nil {
				log.Printf("[%s] Error pushing aggregation: %v", a.Name(), err)
			}
		}
		return a.PushFrame(frame, direction)

	case *frames.TextFrame:
		if a.started > 0 {
			a.AppendToAggregation(f.Text)
		}
		return a.PushFrame(frame, direction)

	case *frames.LLMTextFrame:
		if a.started > 0 {
			a.AppendToAggregation(f.Text)
		}
		return a.PushFrame(frame, direction)
	}

	// Pass all other frames through
	return a.PushFrame(frame, direction)
}

// pushAggregation pushes the accumulated assistant response to context
func (a *LLMAssistantAggregator) pushAggregation() error {
	if len(a.aggregation) == 0 {
		return nil
	}

	text := a.AggregationString()
	log.Printf("[%s] Pushing aggregation: '%s'", a.Name(), text)

	if err := a.Reset(); err != nil {
		return err
	}

	if text != "" {
		a.GetContext().AddAssistantMessage(text)
	}

	return a.PushContextFrame(frames.Downstream)
}

// Reset overrides base Reset to also clear assistant aggregator state
func (a *LLMAssistantAggregator) Reset() error {
	a.started = 0
	return a.LLMContextAggregator.Reset()
}
