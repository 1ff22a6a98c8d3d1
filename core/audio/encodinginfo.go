package audio

const (
	// DefaultSampleRate matches the PCM format the conversation server expects
	// from user microphones.
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultFormat     = "pcm_16000"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Channels: DefaultChannels, Format: EncodingLinear16}
}

type EncodingInfo struct {
	SampleRate int
	Channels   int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// FrameSize returns the number of bytes in one frame (one sample per channel).
func (e EncodingInfo) FrameSize() int {
	channels := e.Channels
	if channels <= 0 {
		channels = 1
	}
	return e.Format.ByteSize() * channels
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)

// ParseOutputFormat maps the audio format names announced in conversation
// metadata (e.g. "pcm_16000", "ulaw_8000") to encoding info.
func ParseOutputFormat(name string) (EncodingInfo, bool) {
	switch name {
	case "pcm_8000":
		return EncodingInfo{SampleRate: 8000, Channels: 1, Format: EncodingLinear16}, true
	case "pcm_16000":
		return EncodingInfo{SampleRate: 16000, Channels: 1, Format: EncodingLinear16}, true
	case "pcm_22050":
		return EncodingInfo{SampleRate: 22050, Channels: 1, Format: EncodingLinear16}, true
	case "pcm_24000":
		return EncodingInfo{SampleRate: 24000, Channels: 1, Format: EncodingLinear16}, true
	case "pcm_44100":
		return EncodingInfo{SampleRate: 44100, Channels: 1, Format: EncodingLinear16}, true
	case "pcm_48000":
		return EncodingInfo{SampleRate: 48000, Channels: 1, Format: EncodingLinear16}, true
	case "ulaw_8000":
		return EncodingInfo{SampleRate: 8000, Channels: 1, Format: EncodingMulaw}, true
	}
	return EncodingInfo{}, false
}
