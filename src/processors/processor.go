package processors

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/square-key-labs/echogo-ai/src/frames"
)

const (
	systemQueueSize = 100
	dataQueueSize   = 1000
)

// FrameProcessor is the interface that all processors must implement
type FrameProcessor interface {
	// ProcessFrame processes a single frame
	ProcessFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error

	// QueueFrame adds a frame to this processor's queue
	QueueFrame(frame frames.Frame, direction frames.FrameDirection) error

	// PushFrame sends a frame to the next/previous processor
	PushFrame(frame frames.Frame, direction frames.FrameDirection) error

	// Link connects this processor to the next one in the chain
	Link(next FrameProcessor)

	// SetPrev sets the previous processor in the chain
	SetPrev(prev FrameProcessor)

	// Start begins processing frames
	Start(ctx context.Context) error

	// Stop gracefully stops the processor
	Stop() error

	// Name returns the processor name
	Name() string
}

// ProcessHandler is implemented by concrete processors; BaseProcessor calls
// it for every frame pulled off a queue
type ProcessHandler interface {
	HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error
}

type queuedFrame struct {
	frame     frames.Frame
	direction frames.FrameDirection
}

// BaseProcessor provides queuing, chaining and lifecycle for processors.
// Frames arrive on two queues: system frames (interruptions, shutdown) have
// their own queue and a dedicated handler goroutine, so they are never
// stuck behind a backlog of data frames.
type BaseProcessor struct {
	name string
	next FrameProcessor
	prev FrameProcessor

	systemQueue chan queuedFrame
	dataQueue   chan queuedFrame

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex

	handler ProcessHandler
}

// NewBaseProcessor creates a new BaseProcessor
func NewBaseProcessor(name string, handler ProcessHandler) *BaseProcessor {
	return &BaseProcessor{
		name:        name,
		systemQueue: make(chan queuedFrame, systemQueueSize),
		dataQueue:   make(chan queuedFrame, dataQueueSize),
		handler:     handler,
	}
}

func (p *BaseProcessor) Name() string {
	return p.name
}

func (p *BaseProcessor) Link(next FrameProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next = next
	if next != nil {
		next.SetPrev(p)
	}
}

func (p *BaseProcessor) SetPrev(prev FrameProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prev = prev
}

func (p *BaseProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		return fmt.Errorf("processor %s already started", p.name)
	}

	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(2)
	go p.drainQueue(p.systemQueue)
	go p.drainQueue(p.dataQueue)

	log.Printf("[%s] Started", p.name)
	return nil
}

func (p *BaseProcessor) Stop() error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()

	log.Printf("[%s] Stopped", p.name)
	return nil
}

// QueueFrame enqueues a frame for this processor. System frames go to the
// high-priority queue; everything else is processed in arrival order.
// Queuing before Start is allowed as long as the buffer has room.
func (p *BaseProcessor) QueueFrame(frame frames.Frame, direction frames.FrameDirection) error {
	queue := p.dataQueue
	if isSystemFrame(frame) {
		queue = p.systemQueue
	}

	p.mu.RLock()
	ctx := p.ctx
	p.mu.RUnlock()

	if ctx == nil {
		select {
		case queue <- queuedFrame{frame: frame, direction: direction}:
			return nil
		default:
			return fmt.Errorf("processor %s queue full before start", p.name)
		}
	}

	select {
	case queue <- queuedFrame{frame: frame, direction: direction}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *BaseProcessor) PushFrame(frame frames.Frame, direction frames.FrameDirection) error {
	p.mu.RLock()
	var target FrameProcessor
	if direction == frames.Downstream {
		target = p.next
	} else {
		target = p.prev
	}
	p.mu.RUnlock()

	if target == nil {
		// End of chain
		return nil
	}

	return target.QueueFrame(frame, direction)
}

func (p *BaseProcessor) ProcessFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if p.handler != nil {
		return p.handler.HandleFrame(ctx, frame, direction)
	}
	return p.PushFrame(frame, direction)
}

func (p *BaseProcessor) drainQueue(queue chan queuedFrame) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case qf := <-queue:
			if err := p.ProcessFrame(p.ctx, qf.frame, qf.direction); err != nil {
				log.Printf("[%s] Error processing frame %s: %v", p.name, qf.frame.Name(), err)
			}
		}
	}
}

func isSystemFrame(frame frames.Frame) bool {
	c, ok := frame.(frames.Categorizable)
	return ok && c.Category() == frames.SystemCategory
}
