package aggregators

import (
	"strings"

	"github.com/square-key-labs/echogo-ai/src/frames"
	"github.com/square-key-labs/echogo-ai/src/processors"
	"github.com/square-key-labs/echogo-ai/src/services"
)

// LLMContextAggregator is the base for context aggregators: it owns the
// shared conversation context and a buffer of text fragments accumulated for
// the response in flight. Fragments are word frames from a TTS service, so
// they join with single spaces.
type LLMContextAggregator struct {
	*processors.BaseProcessor

	context     *services.LLMContext
	aggregation []string
}

// NewLLMContextAggregator creates a new base context aggregator
func NewLLMContextAggregator(name string, context *services.LLMContext, handler processors.ProcessHandler) *LLMContextAggregator {
	agg := &LLMContextAggregator{
		context:     context,
		aggregation: make([]string, 0),
	}
	agg.BaseProcessor = processors.NewBaseProcessor(name, handler)
	return agg
}

// Reset clears the aggregation state
func (a *LLMContextAggregator) Reset() error {
	a.aggregation = make([]string, 0)
	return nil
}

// AggregationString joins the accumulated fragments
func (a *LLMContextAggregator) AggregationString() string {
	return strings.Join(a.aggregation, " ")
}

// AppendToAggregation adds text to the aggregation buffer
func (a *LLMContextAggregator) AppendToAggregation(text string) {
	a.aggregation = append(a.aggregation, text)
}

// PushContextFrame pushes an LLMContextFrame carrying the shared context
func (a *LLMContextAggregator) PushContextFrame(direction frames.FrameDirection) error {
	return a.PushFrame(frames.NewLLMContextFrame(a.context), direction)
}

// GetContext returns the LLM context
func (a *LLMContextAggregator) GetContext() *services.LLMContext {
	return a.context
}
