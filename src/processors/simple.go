package processors

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/square-key-labs/echogo-ai/src/frames"
)

// TextGeneratorProcessor emits a scripted sequence of LLM text frames,
// bracketed by response start/end markers. Useful for exercising TTS
// pipelines without a live LLM.
type TextGeneratorProcessor struct {
	*BaseProcessor
	messages []string
	interval time.Duration
	started  bool
}

func NewTextGeneratorProcessor(messages []string) *TextGeneratorProcessor {
	tg := &TextGeneratorProcessor{
		messages: messages,
		interval: 200 * time.Millisecond,
	}
	tg.BaseProcessor = NewBaseProcessor("TextGenerator", tg)
	return tg
}

func (p *TextGeneratorProcessor) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	// When we receive StartFrame, begin generating text
	if _, ok := frame.(*frames.StartFrame); ok {
		if !p.started {
			p.started = true
			go p.generateText(ctx)
		}
		return p.PushFrame(frame, direction)
	}

	// Pass all other frames through
	return p.PushFrame(frame, direction)
}

func (p *TextGeneratorProcessor) generateText(ctx context.Context) {
	// Wait a moment for pipeline to be fully ready
	time.Sleep(100 * time.Millisecond)

	if err := p.PushFrame(frames.NewLLMFullResponseStartFrame(), frames.Downstream); err != nil {
		log.Printf("[%s] Error pushing response start: %v", p.name, err)
		return
	}

	for _, msg := range p.messages {
		select {
		case <-ctx.Done():
			return
		default:
			textFrame := frames.NewLLMTextFrame(msg)
			log.Printf("[%s] Generated: %s", p.name, msg)
			if err := p.PushFrame(textFrame, frames.Downstream); err != nil {
				log.Printf("[%s] Error pushing frame: %v", p.name, err)
				return
			}
			time.Sleep(p.interval)
		}
	}

	if err := p.PushFrame(frames.NewLLMFullResponseEndFrame(), frames.Downstream); err != nil {
		log.Printf("[%s] Error pushing response end: %v", p.name, err)
	}
}

// TextPrinterProcessor prints received text frames
type TextPrinterProcessor struct {
	*BaseProcessor
}

func NewTextPrinterProcessor() *TextPrinterProcessor {
	tp := &TextPrinterProcessor{}
	tp.BaseProcessor = NewBaseProcessor("TextPrinter", tp)
	return tp
}

func (p *TextPrinterProcessor) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if textFrame, ok := frame.(*frames.TextFrame); ok {
		fmt.Printf("[OUTPUT] %s\n", textFrame.Text)
	}

	// Pass all frames through
	return p.PushFrame(frame, direction)
}
