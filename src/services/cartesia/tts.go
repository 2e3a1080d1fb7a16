package cartesia

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gorilla/websocket"
	"github.com/square-key-labs/echogo-ai/src/frames"
	"github.com/square-key-labs/echogo-ai/src/processors"
	"github.com/square-key-labs/echogo-ai/src/services"
)

const (
	serviceName = "CartesiaTTS"

	defaultURL             = "wss://api.cartesia.ai/tts/websocket"
	defaultModel           = "sonic-english"
	defaultCartesiaVersion = "2024-06-10"
	defaultLanguage        = "en"
	defaultSampleRate      = 16000
	defaultEncoding        = "pcm_s16le"
	defaultContainer       = "raw"

	// Cadence of the timeline replay loop. Word emission can lag its true
	// due time by up to one tick.
	replayTickInterval = 100 * time.Millisecond
)

// connState tracks the lifecycle of the vendor socket
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// synthesisRequest is the client->server message asking for a text chunk to
// be synthesized under a context. A trailing space on the transcript plus
// Continue=true tells the server more text may follow in the same context.
type synthesisRequest struct {
	Transcript    string          `json:"transcript"`
	Continue      bool            `json:"continue"`
	ContextID     string          `json:"context_id"`
	ModelID       string          `json:"model_id"`
	Voice         voiceDescriptor `json:"voice"`
	OutputFormat  outputFormat    `json:"output_format"`
	Language      string          `json:"language"`
	AddTimestamps bool            `json:"add_timestamps"`
}

type voiceDescriptor struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type outputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// cancelRequest tells the server to stop synthesizing a context
type cancelRequest struct {
	ContextID string `json:"context_id"`
	Cancel    bool   `json:"cancel"`
}

// serverMessage is a tagged inbound record. Type is one of "chunk",
// "timestamps", "done" or "error"; every message carries the context id it
// belongs to.
type serverMessage struct {
	Type           string          `json:"type"`
	ContextID      string          `json:"context_id"`
	Data           string          `json:"data,omitempty"`
	Error          string          `json:"error,omitempty"`
	WordTimestamps *wordTimestamps `json:"word_timestamps,omitempty"`
}

type wordTimestamps struct {
	Words []string  `json:"words"`
	Start []float64 `json:"start"`
	End   []float64 `json:"end"`
}

// TTSService streams text to the Cartesia websocket API and re-emits the
// results into the pipeline: audio chunks immediately, word text frames at
// the moment the corresponding audio is heard.
//
// The server delivers word timestamps out-of-band and well ahead of real
// time, so words are buffered and replayed against a wall clock that starts
// with the first audio chunk of each context. That keeps downstream
// consumers (e.g. the assistant history aggregator) in sync with what is
// actually audible, which is what makes interruptions truncate cleanly.
type TTSService struct {
	*processors.BaseProcessor

	apiKey          string
	cartesiaVersion string
	url             string
	voiceID         string
	model           string
	language        string
	sampleRate      int
	encoding        string
	container       string

	aggregateSentences bool
	metrics            services.MetricsReporter

	// Socket ownership. connMu also serializes writes: the request path,
	// the flush path and the interruption path all send messages.
	connMu sync.Mutex
	conn   *websocket.Conn
	state  connState

	// Serializes dial attempts so concurrent callers (StartFrame on the
	// system goroutine, first text on the data goroutine) cannot open two
	// sockets
	dialMu sync.Mutex

	// Background loop lifecycle, one generation per connection
	loopCancel context.CancelFunc
	loopWG     *sync.WaitGroup

	// Shared utterance state (receive loop, replay loop, request path)
	playback playbackState

	// Sentence aggregation buffer
	bufMu      sync.Mutex
	textBuffer strings.Builder
}

// TTSConfig holds configuration for Cartesia TTS
type TTSConfig struct {
	APIKey          string
	VoiceID         string // e.g., "a0e99841-438c-4a64-b679-ae501e7d6091" (Barbershop Man)
	Model           string // e.g., "sonic-english"
	CartesiaVersion string // e.g., "2024-06-10"
	URL             string // websocket endpoint, defaults to the public API
	Language        string // e.g., "en"
	SampleRate      int    // e.g., 8000, 16000, 22050, 24000, 44100
	Encoding        string // e.g., "pcm_s16le", "pcm_mulaw", "pcm_alaw"
	Container       string // e.g., "raw"

	// DisableSentenceAggregation sends every text chunk immediately instead
	// of waiting for complete sentences. Aggregated sentences sound cleaner.
	DisableSentenceAggregation bool

	// Metrics receives TTFB measurements (nil disables reporting)
	Metrics services.MetricsReporter
}

// NewTTSService creates a new Cartesia TTS service
func NewTTSService(config TTSConfig) *TTSService {
	model := config.Model
	if model == "" {
		model = defaultModel
	}

	version := config.CartesiaVersion
	if version == "" {
		version = defaultCartesiaVersion
	}

	url := config.URL
	if url == "" {
		url = defaultURL
	}

	language := config.Language
	if language == "" {
		language = defaultLanguage
	}

	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}

	encoding := config.Encoding
	if encoding == "" {
		encoding = defaultEncoding
	}

	container := config.Container
	if container == "" {
		container = defaultContainer
	}

	s := &TTSService{
		apiKey:             config.APIKey,
		cartesiaVersion:    version,
		url:                url,
		voiceID:            config.VoiceID,
		model:              model,
		language:           language,
		sampleRate:         sampleRate,
		encoding:           encoding,
		container:          container,
		aggregateSentences: !config.DisableSentenceAggregation,
		metrics:            config.Metrics,
	}
	s.BaseProcessor = processors.NewBaseProcessor(serviceName, s)
	return s
}

func (s *TTSService) SetVoice(voiceID string) {
	s.voiceID = voiceID
}

func (s *TTSService) SetModel(model string) {
	s.model = model
}

func (s *TTSService) SetLanguage(language string) {
	s.language = language
}

// Initialize establishes the vendor connection and starts the background
// loops. Safe to skip: the service also connects lazily on first use.
func (s *TTSService) Initialize(ctx context.Context) error {
	return s.connect()
}

// Cleanup tears down the connection and resets all utterance state
func (s *TTSService) Cleanup() error {
	s.disconnect()
	return nil
}

// connect dials the vendor endpoint and spawns the receive and replay
// loops. On failure the handle stays nil and the next send retries. A
// caller arriving while another dial is in flight blocks on dialMu and then
// finds the connection already established.
func (s *TTSService) connect() error {
	s.dialMu.Lock()
	defer s.dialMu.Unlock()

	s.connMu.Lock()
	if s.state == stateConnected {
		s.connMu.Unlock()
		return nil
	}
	s.state = stateConnecting
	s.connMu.Unlock()

	wsURL := fmt.Sprintf("%s?api_key=%s&cartesia_version=%s", s.url, s.apiKey, s.cartesiaVersion)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()

	if err != nil {
		s.conn = nil
		s.state = stateDisconnected
		return fmt.Errorf("failed to connect to Cartesia: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}

	// A previous generation's replay loop may still be ticking after a
	// passive connection drop; stop it before installing the new one
	if s.loopCancel != nil {
		s.loopCancel()
	}

	s.conn = conn
	s.state = stateConnected
	s.loopCancel = cancel
	s.loopWG = wg

	wg.Add(2)
	go func() {
		defer wg.Done()
		s.receiveLoop(loopCtx, conn)
	}()
	go func() {
		defer wg.Done()
		s.replayLoop(loopCtx)
	}()

	log.Printf("[%s] Connected", serviceName)
	return nil
}

// disconnect is idempotent. It cancels both background loops, waits for
// them to exit, closes the handle if present and unconditionally resets all
// utterance state. Waiting before the reset matters: a replay tick must not
// pop from a timeline that is being cleared under it.
func (s *TTSService) disconnect() {
	s.connMu.Lock()
	cancel := s.loopCancel
	wg := s.loopWG
	conn := s.conn
	s.loopCancel = nil
	s.loopWG = nil
	s.conn = nil
	s.state = stateDisconnected
	s.connMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if wg != nil {
		wg.Wait()
	}

	_, ttfbOpen := s.playback.Reset()
	if ttfbOpen && s.metrics != nil {
		s.metrics.TTFBCancel(serviceName)
	}

	s.bufMu.Lock()
	s.textBuffer.Reset()
	s.bufMu.Unlock()

	log.Printf("[%s] Disconnected", serviceName)
}

// dropConn nulls the handle after a transport failure so the next send
// attempts a fresh connection. Only drops the connection it was given; a
// newer connection established meanwhile is left alone.
func (s *TTSService) dropConn(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == conn {
		s.conn = nil
		s.state = stateDisconnected
	}
}

func (s *TTSService) writeJSON(v interface{}) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	return s.conn.WriteJSON(v)
}

func (s *TTSService) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		if err := s.connect(); err != nil {
			// Not fatal: the next synthesis request reconnects lazily
			log.Printf("[%s] Initial connect failed: %v", serviceName, err)
		}
		return s.PushFrame(frame, direction)

	case *frames.EndFrame:
		log.Printf("[%s] Received EndFrame, cleaning up", serviceName)
		s.disconnect()
		return s.PushFrame(frame, direction)

	case *frames.InterruptionFrame:
		s.handleInterruption()
		return s.PushFrame(frame, direction)

	case *frames.TextFrame:
		return s.processTextInput(f.Text)

	case *frames.LLMTextFrame:
		return s.processTextInput(f.Text)

	case *frames.LLMFullResponseEndFrame:
		return s.handleResponseEnd(frame, direction)
	}

	// Pass all other frames through
	return s.PushFrame(frame, direction)
}

// processTextInput buffers incoming text and synthesizes complete sentences
func (s *TTSService) processTextInput(text string) error {
	if text == "" {
		return nil
	}

	if !s.aggregateSentences {
		return s.synthesizeText(text)
	}

	s.bufMu.Lock()
	s.textBuffer.WriteString(text)
	sentences, remainder := extractSentences(s.textBuffer.String())
	s.textBuffer.Reset()
	s.textBuffer.WriteString(remainder)
	s.bufMu.Unlock()

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if err := s.synthesizeText(sentence); err != nil {
			return err
		}
	}
	return nil
}

// synthesizeText sends one text chunk to the server under the current
// context, reconnecting first if the socket is gone. A send failure drops
// the request: the caller resubmits with the next text chunk, it is not
// retried here.
func (s *TTSService) synthesizeText(text string) error {
	if text == "" {
		return nil
	}

	log.Printf("[%s] Generating TTS: [%s]", serviceName, text)

	if err := s.ensureConnected(); err != nil {
		log.Printf("[%s] Connect failed, dropping text chunk: %v", serviceName, err)
		return nil
	}

	if s.playback.OpenTTFB(time.Now()) && s.metrics != nil {
		s.metrics.TTFBStart(serviceName)
	}

	contextID, opened := s.playback.OpenContext()
	if opened {
		if err := s.PushFrame(frames.NewTTSStartedFrame(), frames.Downstream); err != nil {
			log.Printf("[%s] Error pushing TTS started frame: %v", serviceName, err)
		}
	}

	req := synthesisRequest{
		Transcript:    text + " ",
		Continue:      true,
		ContextID:     contextID,
		ModelID:       s.model,
		Voice:         voiceDescriptor{Mode: "id", ID: s.voiceID},
		OutputFormat:  outputFormat{Container: s.container, Encoding: s.encoding, SampleRate: s.sampleRate},
		Language:      s.language,
		AddTimestamps: true,
	}

	if err := s.writeJSON(req); err != nil {
		log.Printf("[%s] Error sending message: %v", serviceName, err)
		s.disconnect()
		if cerr := s.connect(); cerr != nil {
			log.Printf("[%s] Reconnect failed: %v", serviceName, cerr)
		}
		return nil
	}
	return nil
}

func (s *TTSService) ensureConnected() error {
	s.connMu.Lock()
	connected := s.state == stateConnected
	s.connMu.Unlock()

	if connected {
		return nil
	}
	return s.connect()
}

// handleResponseEnd flushes any buffered partial sentence and asks the
// server to finalize the context. The upstream end marker itself is
// swallowed: the replay loop re-emits it once the server's "done" has been
// replayed in playback order, so downstream sees exactly one marker, timed
// to the audio.
func (s *TTSService) handleResponseEnd(frame frames.Frame, direction frames.FrameDirection) error {
	s.bufMu.Lock()
	remainder := strings.TrimSpace(s.textBuffer.String())
	s.textBuffer.Reset()
	s.bufMu.Unlock()

	if remainder != "" {
		log.Printf("[%s] Flushing remaining text: %s", serviceName, remainder)
		if err := s.synthesizeText(remainder); err != nil {
			log.Printf("[%s] Error synthesizing remaining text: %v", serviceName, err)
		}
	}

	if !s.playback.ContextOpen() {
		// Nothing was synthesized for this response, nothing to re-emit
		return s.PushFrame(frame, direction)
	}

	flush := synthesisRequest{
		Transcript:    "",
		Continue:      false,
		ContextID:     s.playback.ContextID(),
		ModelID:       s.model,
		Voice:         voiceDescriptor{Mode: "id", ID: s.voiceID},
		OutputFormat:  outputFormat{Container: s.container, Encoding: s.encoding, SampleRate: s.sampleRate},
		Language:      s.language,
		AddTimestamps: true,
	}
	if err := s.writeJSON(flush); err != nil {
		log.Printf("[%s] Error sending flush: %v", serviceName, err)
	}
	return nil
}

// handleInterruption discards the utterance in flight: the buffered words
// refer to audio that will no longer play. The forced end marker goes out
// immediately rather than through the scheduler so downstream aggregators
// can close out the truncated response now.
func (s *TTSService) handleInterruption() {
	log.Printf("[%s] Interruption received, resetting context", serviceName)

	oldContextID, ttfbOpen := s.playback.Reset()

	s.bufMu.Lock()
	s.textBuffer.Reset()
	s.bufMu.Unlock()

	if ttfbOpen && s.metrics != nil {
		s.metrics.TTFBCancel(serviceName)
	}

	if oldContextID != "" {
		if err := s.writeJSON(cancelRequest{ContextID: oldContextID, Cancel: true}); err != nil {
			log.Printf("[%s] Error cancelling context %s: %v", serviceName, oldContextID, err)
		}
	}

	if err := s.PushFrame(frames.NewLLMFullResponseEndFrame(), frames.Downstream); err != nil {
		log.Printf("[%s] Error pushing forced end marker: %v", serviceName, err)
	}

	// Speech was in flight; tell downstream it stopped
	if oldContextID != "" {
		if err := s.PushFrame(frames.NewTTSStoppedFrame(), frames.Downstream); err != nil {
			log.Printf("[%s] Error pushing TTS stopped frame: %v", serviceName, err)
		}
	}
}

// receiveLoop reads server messages for the lifetime of one connection.
// Transport failure ends the loop silently after nulling the handle; the
// next send notices and reconnects.
func (s *TTSService) receiveLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			log.Printf("[%s] Connection lost: %v", serviceName, err)
			s.dropConn(conn)
			conn.Close()
			return
		}
		s.handleServerMessage(message)
	}
}

// handleServerMessage demultiplexes one inbound record. Messages without a
// context id, or with a stale one, are dropped: they belong to a superseded
// or interrupted context and must not corrupt current state. Decode errors
// are logged and skipped.
func (s *TTSService) handleServerMessage(raw []byte) {
	var msg serverMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("[%s] Error parsing server message: %v", serviceName, err)
		return
	}

	if !s.playback.Matches(msg.ContextID) {
		return
	}

	switch msg.Type {
	case "done":
		// Clear the context id but keep the playback clock running: audio
		// already emitted is still playing out and the buffered words must
		// replay against it
		s.playback.CompleteContext()

	case "timestamps":
		if msg.WordTimestamps != nil {
			s.playback.AppendWords(msg.WordTimestamps.Words, msg.WordTimestamps.End)
		}

	case "chunk":
		audio, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			log.Printf("[%s] Error decoding audio chunk: %v", serviceName, err)
			return
		}

		if ttfb, closed := s.playback.MarkFirstChunk(time.Now()); closed && s.metrics != nil {
			s.metrics.TTFBStop(serviceName, ttfb)
		}

		audioFrame := frames.NewTTSAudioFrame(audio, s.sampleRate, 1)
		if err := s.PushFrame(audioFrame, frames.Downstream); err != nil {
			log.Printf("[%s] Error pushing audio frame: %v", serviceName, err)
		}

	case "error":
		log.Printf("[%s] Error from Cartesia: %s", serviceName, msg.Error)
		s.PushFrame(frames.NewErrorFrame(fmt.Errorf("cartesia error: %s", msg.Error)), frames.Upstream)

	default:
		log.Printf("[%s] Unknown message type: %s", serviceName, msg.Type)
	}
}

// replayLoop walks the buffered timeline against wall-clock elapsed time,
// emitting each word at the moment its audio is heard rather than when its
// metadata arrived.
func (s *TTSService) replayLoop(ctx context.Context) {
	ticker := time.NewTicker(replayTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.replayTick(time.Now())
		}
	}
}

// replayTick emits every timeline entry that has come due. A completion
// entry closes the response (end marker, then speech-stopped) and does not
// stop the scan. If an interruption resets the utterance while the popped
// batch is in flight, the rest of the batch is dropped: those entries were
// discarded and the interruption path already emitted the end marker.
func (s *TTSService) replayTick(now time.Time) {
	due, gen := s.playback.PopDue(now)
	for _, entry := range due {
		if s.playback.Generation() != gen {
			return
		}

		var err error
		if entry.completion {
			if err = s.PushFrame(frames.NewLLMFullResponseEndFrame(), frames.Downstream); err == nil {
				err = s.PushFrame(frames.NewTTSStoppedFrame(), frames.Downstream)
			}
		} else {
			err = s.PushFrame(frames.NewTextFrame(entry.word), frames.Downstream)
		}
		if err != nil {
			log.Printf("[%s] Error replaying timeline entry: %v", serviceName, err)
		}
	}
}

// extractSentences splits text into complete sentences and remainder
func extractSentences(text string) ([]string, string) {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)

		if !isSentenceEnder(r) {
			continue
		}
		// End of text, or followed by whitespace: treat as sentence end.
		// Abbreviations like "Dr." followed by a name slip through; the
		// synthesis quality cost is minor.
		if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}

	return sentences, current.String()
}

func isSentenceEnder(r rune) bool {
	switch r {
	case '.', '!', '?', ';':
		return true
	}
	return false
}
