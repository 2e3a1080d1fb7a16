package frames

// DataFrame is the base for ordered payload frames (text, audio)
type DataFrame struct {
	*BaseFrame
}

func (f *DataFrame) Category() FrameCategory {
	return DataCategory
}

// TextFrame carries a chunk of text. TTS services emit these word-by-word,
// aligned with audio playback time.
type TextFrame struct {
	*DataFrame
	Text string
}

func NewTextFrame(text string) *TextFrame {
	return &TextFrame{
		DataFrame: &DataFrame{
			BaseFrame: NewBaseFrame("TextFrame"),
		},
		Text: text,
	}
}

// LLMTextFrame carries a streamed token/chunk produced by an LLM
type LLMTextFrame struct {
	*DataFrame
	Text string
}

func NewLLMTextFrame(text string) *LLMTextFrame {
	return &LLMTextFrame{
		DataFrame: &DataFrame{
			BaseFrame: NewBaseFrame("LLMTextFrame"),
		},
		Text: text,
	}
}

// TTSAudioFrame carries synthesized speech audio
type TTSAudioFrame struct {
	*DataFrame
	Data        []byte
	SampleRate  int
	NumChannels int
}

func NewTTSAudioFrame(data []byte, sampleRate, numChannels int) *TTSAudioFrame {
	return &TTSAudioFrame{
		DataFrame: &DataFrame{
			BaseFrame: NewBaseFrame("TTSAudioFrame"),
		},
		Data:        data,
		SampleRate:  sampleRate,
		NumChannels: numChannels,
	}
}

// LLMContextFrame carries a conversation context snapshot. The payload is an
// interface{} to avoid an import cycle with the services package.
type LLMContextFrame struct {
	*DataFrame
	Context interface{}
}

func NewLLMContextFrame(context interface{}) *LLMContextFrame {
	return &LLMContextFrame{
		DataFrame: &DataFrame{
			BaseFrame: NewBaseFrame("LLMContextFrame"),
		},
		Context: context,
	}
}
