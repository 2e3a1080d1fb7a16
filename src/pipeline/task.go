package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/square-key-labs/echogo-ai/src/frames"
)

// PipelineTaskConfig holds configuration for pipeline task
type PipelineTaskConfig struct {
	AllowInterruptions bool
}

// DefaultPipelineTaskConfig returns default configuration
func DefaultPipelineTaskConfig() *PipelineTaskConfig {
	return &PipelineTaskConfig{
		AllowInterruptions: true,
	}
}

// PipelineTask orchestrates the execution of a pipeline
type PipelineTask struct {
	pipeline *Pipeline
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// Configuration
	config *PipelineTaskConfig

	// Frame queuing
	userFrameQueue chan frames.Frame

	// Lifecycle tracking
	started  bool
	finished bool
	mu       sync.RWMutex

	// Event handlers
	onStarted  func()
	onFinished func()
	onError    func(error)
}

// NewPipelineTask creates a new pipeline task with default configuration
func NewPipelineTask(pipeline *Pipeline) *PipelineTask {
	return NewPipelineTaskWithConfig(pipeline, DefaultPipelineTaskConfig())
}

// NewPipelineTaskWithConfig creates a new pipeline task with custom configuration
func NewPipelineTaskWithConfig(pipeline *Pipeline, config *PipelineTaskConfig) *PipelineTask {
	task := &PipelineTask{
		pipeline:       pipeline,
		config:         config,
		userFrameQueue: make(chan frames.Frame, 100),
	}

	// Initialize the pipeline with this task
	pipeline.Initialize(task)

	return task
}

// OnStarted sets a callback for when the pipeline starts
func (t *PipelineTask) OnStarted(callback func()) {
	t.onStarted = callback
}

// OnFinished sets a callback for when the pipeline finishes
func (t *PipelineTask) OnFinished(callback func()) {
	t.onFinished = callback
}

// OnError sets a callback for errors
func (t *PipelineTask) OnError(callback func(error)) {
	t.onError = callback
}

// QueueFrame adds a frame to be processed by the pipeline
func (t *PipelineTask) QueueFrame(frame frames.Frame) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.started {
		return fmt.Errorf("pipeline not started")
	}

	if t.finished {
		return fmt.Errorf("pipeline already finished")
	}

	select {
	case t.userFrameQueue <- frame:
		return nil
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

// Run starts the pipeline and runs until completion
func (t *PipelineTask) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return fmt.Errorf("pipeline already started")
	}
	t.started = true
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	log.Printf("[PipelineTask] Starting pipeline")

	// Start the pipeline
	if err := t.pipeline.Start(t.ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	// Start frame processor
	t.wg.Add(1)
	go t.processUserFrames()

	// Send StartFrame to initialize the pipeline
	startFrame := frames.NewStartFrameWithConfig(t.config.AllowInterruptions)
	if err := t.pipeline.QueueFrame(startFrame); err != nil {
		return fmt.Errorf("failed to queue start frame: %w", err)
	}

	// Wait for completion
	t.wg.Wait()

	// Stop the pipeline
	if err := t.pipeline.Stop(); err != nil {
		log.Printf("[PipelineTask] Error stopping pipeline: %v", err)
	}

	log.Printf("[PipelineTask] Pipeline finished")
	return nil
}

// Cancel stops the pipeline immediately, without waiting for queued frames
// to flush. The CancelFrame travels the chain as a system frame so every
// processor sees the shutdown before the task tears down.
func (t *PipelineTask) Cancel() {
	t.mu.RLock()
	started := t.started
	t.mu.RUnlock()

	if !started {
		return
	}

	log.Printf("[PipelineTask] Cancelling pipeline")
	if err := t.pipeline.QueueFrame(frames.NewCancelFrame()); err != nil {
		log.Printf("[PipelineTask] Error queuing cancel frame: %v", err)
		t.shutdown()
	}
}

// shutdown cancels the task context, unblocking Run
func (t *PipelineTask) shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
}

// Interrupt broadcasts an interruption to all processors
func (t *PipelineTask) Interrupt() error {
	t.mu.RLock()
	allowed := t.config.AllowInterruptions
	t.mu.RUnlock()

	if !allowed {
		log.Printf("[PipelineTask] Interruption requested but interruptions are disabled")
		return nil
	}
	return t.pipeline.QueueFrame(frames.NewInterruptionFrame())
}

// processUserFrames processes frames queued by the user
func (t *PipelineTask) processUserFrames() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		case frame := <-t.userFrameQueue:
			if err := t.pipeline.QueueFrame(frame); err != nil {
				log.Printf("[PipelineTask] Error queuing user frame: %v", err)
				if t.onError != nil {
					t.onError(err)
				}
			}
		}
	}
}

// handleDownstreamFrame handles frames that reach the sink
func (t *PipelineTask) handleDownstreamFrame(frame frames.Frame) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		log.Printf("[PipelineTask] Pipeline started")
		if t.onStarted != nil {
			t.onStarted()
		}

	case *frames.EndFrame:
		log.Printf("[PipelineTask] End frame reached, finishing pipeline")
		t.markFinished()
		t.shutdown()

	case *frames.CancelFrame:
		log.Printf("[PipelineTask] Cancel frame reached, stopping immediately")
		t.markFinished()
		t.shutdown()

	case *frames.ErrorFrame:
		log.Printf("[PipelineTask] Error frame received: %v", f.Error)
		if t.onError != nil {
			t.onError(f.Error)
		}
	}

	return nil
}

// handleUpstreamFrame handles frames going back up the pipeline
func (t *PipelineTask) handleUpstreamFrame(frame frames.Frame) error {
	if errorFrame, ok := frame.(*frames.ErrorFrame); ok {
		if t.onError != nil {
			t.onError(errorFrame.Error)
		}
	}

	return nil
}

func (t *PipelineTask) markFinished() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.finished {
		t.finished = true
		if t.onFinished != nil {
			t.onFinished()
		}
	}
}
