package cartesia

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// timelineEntry is one pending emission in the replay timeline. Entries are
// either a word with its cumulative end offset, or a completion marker.
type timelineEntry struct {
	word       string
	endOffset  float64 // seconds since the first audio chunk of the context
	completion bool
}

// playbackState holds everything the receive loop, the replay loop and the
// request path share: the current context id, the playback clock origin, the
// buffered word timeline and the TTFB window. All fields live behind one
// mutex so the three paths never observe a half-updated utterance.
type playbackState struct {
	mu           sync.Mutex
	contextID    string
	startedAt    time.Time // when the first audio chunk of the context arrived
	timeline     []timelineEntry
	ttfbOpenedAt time.Time // zero when no latency window is open
	generation   uint64    // bumped by Reset; guards replay batches in flight
}

// OpenContext returns the current context id, allocating a fresh one if no
// context is open. Reports whether a new utterance was started.
func (p *playbackState) OpenContext() (id string, opened bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.contextID == "" {
		p.contextID = uuid.New().String()
		opened = true
	}
	return p.contextID, opened
}

// ContextOpen reports whether a context is currently open
func (p *playbackState) ContextOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contextID != ""
}

// ContextID returns the current context id ("" if none)
func (p *playbackState) ContextID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contextID
}

// Matches reports whether an inbound message's context id refers to the
// context currently being tracked. Messages from superseded or interrupted
// contexts must not touch current state.
func (p *playbackState) Matches(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return id != "" && id == p.contextID
}

// CompleteContext clears the context id and enqueues a completion entry.
// The start timestamp is deliberately kept: buffered audio for the finished
// context is likely still playing out and the replay clock must keep running
// until the timeline drains.
func (p *playbackState) CompleteContext() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.contextID = ""
	p.timeline = append(p.timeline, timelineEntry{completion: true})
}

// AppendWords buffers (word, end-offset) pairs in arrival order
func (p *playbackState) AppendWords(words []string, ends []float64) {
	n := len(words)
	if len(ends) < n {
		n = len(ends)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < n; i++ {
		p.timeline = append(p.timeline, timelineEntry{word: words[i], endOffset: ends[i]})
	}
}

// MarkFirstChunk records the playback clock origin if this is the first
// audio chunk of the context, and closes the TTFB window if one is open.
// Returns the measured latency and whether a window was closed.
func (p *playbackState) MarkFirstChunk(now time.Time) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.startedAt.IsZero() {
		p.startedAt = now
	}
	if p.ttfbOpenedAt.IsZero() {
		return 0, false
	}
	elapsed := now.Sub(p.ttfbOpenedAt)
	p.ttfbOpenedAt = time.Time{}
	return elapsed, true
}

// OpenTTFB opens a latency window if none is open. Returns whether a new
// window was opened.
func (p *playbackState) OpenTTFB(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ttfbOpenedAt.IsZero() {
		return false
	}
	p.ttfbOpenedAt = now
	return true
}

// PopDue removes and returns, in order, every timeline entry whose offset
// has been reached by the playback clock, along with the generation the
// batch belongs to. Completion entries carry no offset and become due as
// soon as they reach the front of the queue, but never ahead of the words
// buffered before them. Returns nil while no audio has arrived yet.
func (p *playbackState) PopDue(now time.Time) ([]timelineEntry, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.startedAt.IsZero() {
		return nil, p.generation
	}

	elapsed := now.Sub(p.startedAt).Seconds()
	var due []timelineEntry
	for len(p.timeline) > 0 && p.timeline[0].endOffset <= elapsed {
		due = append(due, p.timeline[0])
		p.timeline = p.timeline[1:]
	}
	return due, p.generation
}

// Generation returns the current utterance generation. A popped batch whose
// generation no longer matches was discarded by an interruption and must
// not be emitted.
func (p *playbackState) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// Reset discards the whole utterance: context id, playback clock, buffered
// timeline and any open TTFB window. Returns the discarded context id and
// whether a TTFB window was open, so the caller can cancel the measurement
// and tell the server to stop synthesizing.
func (p *playbackState) Reset() (contextID string, ttfbOpen bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	contextID = p.contextID
	ttfbOpen = !p.ttfbOpenedAt.IsZero()

	p.contextID = ""
	p.startedAt = time.Time{}
	p.timeline = nil
	p.ttfbOpenedAt = time.Time{}
	p.generation++
	return contextID, ttfbOpen
}

// Pending returns the number of buffered timeline entries
func (p *playbackState) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timeline)
}
