package aggregators

import (
	"context"
	"sync"
	"testing"

	"github.com/square-key-labs/echogo-ai/src/frames"
	"github.com/square-key-labs/echogo-ai/src/processors"
	"github.com/square-key-labs/echogo-ai/src/services"
)

// frameSink captures pushed frames synchronously
type frameSink struct {
	mu  sync.Mutex
	got []frames.Frame
}

func (s *frameSink) ProcessFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	return nil
}

func (s *frameSink) QueueFrame(frame frames.Frame, direction frames.FrameDirection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, frame)
	return nil
}

func (s *frameSink) PushFrame(frame frames.Frame, direction frames.FrameDirection) error {
	return nil
}

func (s *frameSink) Link(next processors.FrameProcessor)    {}
func (s *frameSink) SetPrev(prev processors.FrameProcessor) {}
func (s *frameSink) Start(ctx context.Context) error        { return nil }
func (s *frameSink) Stop() error                            { return nil }
func (s *frameSink) Name() string                           { return "sink" }

func (s *frameSink) contextFrames() []*frames.LLMContextFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*frames.LLMContextFrame
	for _, f := range s.got {
		if cf, ok := f.(*frames.LLMContextFrame); ok {
			out = append(out, cf)
		}
	}
	return out
}

func push(t *testing.T, a *LLMAssistantAggregator, frame frames.Frame) {
	t.Helper()
	if err := a.ProcessFrame(context.Background(), frame, frames.Downstream); err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}
}

func TestAssistantAggregatesBetweenMarkers(t *testing.T) {
	llmContext := services.NewLLMContext("")
	a := NewLLMAssistantAggregator(llmContext)
	sink := &frameSink{}
	a.Link(sink)

	push(t, a, frames.NewLLMFullResponseStartFrame())
	push(t, a, frames.NewTextFrame("Hello"))
	push(t, a, frames.NewTextFrame("there"))
	push(t, a, frames.NewTextFrame("friend."))
	push(t, a, frames.NewLLMFullResponseEndFrame())

	if len(llmContext.Messages) != 1 {
		t.Fatalf("expected one assistant message, got %d", len(llmContext.Messages))
	}
	msg := llmContext.Messages[0]
	if msg.Role != "assistant" {
		t.Errorf("expected assistant role, got %q", msg.Role)
	}
	if msg.Content != "Hello there friend." {
		t.Errorf("expected joined text, got %q", msg.Content)
	}

	if len(sink.contextFrames()) != 1 {
		t.Errorf("expected one context frame pushed, got %d", len(sink.contextFrames()))
	}
}

func TestAssistantIgnoresTextOutsideResponse(t *testing.T) {
	llmContext := services.NewLLMContext("")
	a := NewLLMAssistantAggregator(llmContext)

	push(t, a, frames.NewTextFrame("stray"))
	push(t, a, frames.NewLLMFullResponseStartFrame())
	push(t, a, frames.NewLLMFullResponseEndFrame())

	if len(llmContext.Messages) != 0 {
		t.Errorf("expected no messages from stray text, got %d", len(llmContext.Messages))
	}
}

func TestAssistantHandlesNestedResponses(t *testing.T) {
	llmContext := services.NewLLMContext("")
	a := NewLLMAssistantAggregator(llmContext)

	push(t, a, frames.NewLLMFullResponseStartFrame())
	push(t, a, frames.NewLLMFullResponseStartFrame())
	push(t, a, frames.NewTextFrame("nested"))
	push(t, a, frames.NewLLMFullResponseEndFrame())

	if len(llmContext.Messages) != 0 {
		t.Fatal("inner end must not flush while the outer response is open")
	}

	push(t, a, frames.NewTextFrame("outer"))
	push(t, a, frames.NewLLMFullResponseEndFrame())

	if len(llmContext.Messages) != 1 {
		t.Fatalf("expected one message after outer end, got %d", len(llmContext.Messages))
	}
	if llmContext.Messages[0].Content != "nested outer" {
		t.Errorf("expected all text flushed together, got %q", llmContext.Messages[0].Content)
	}
}

func TestAssistantInterruptionRecordsPartial(t *testing.T) {
	llmContext := services.NewLLMContext("")
	a := NewLLMAssistantAggregator(llmContext)

	push(t, a, frames.NewLLMFullResponseStartFrame())
	push(t, a, frames.NewTextFrame("I"))
	push(t, a, frames.NewTextFrame("was"))
	push(t, a, frames.NewTextFrame("saying"))
	push(t, a, frames.NewInterruptionFrame())

	if len(llmContext.Messages) != 1 {
		t.Fatalf("expected the partial response recorded, got %d messages", len(llmContext.Messages))
	}
	if llmContext.Messages[0].Content != "I was saying" {
		t.Errorf("expected the heard words only, got %q", llmContext.Messages[0].Content)
	}

	// State fully reset: later text outside a response is ignored
	push(t, a, frames.NewTextFrame("leftover"))
	if len(llmContext.Messages) != 1 {
		t.Error("text after interruption must not accumulate without a new response")
	}
}

func TestAssistantInterruptionWithNothingHeard(t *testing.T) {
	llmContext := services.NewLLMContext("")
	a := NewLLMAssistantAggregator(llmContext)

	push(t, a, frames.NewLLMFullResponseStartFrame())
	push(t, a, frames.NewInterruptionFrame())

	if len(llmContext.Messages) != 0 {
		t.Errorf("expected no message when nothing was heard, got %d", len(llmContext.Messages))
	}
}
