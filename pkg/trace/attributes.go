package trace

import "go.opentelemetry.io/otel/attribute"

// Attribute keys
const (
	AttrSessionID = "session.id"

	AttrLiveModel     = "live.model"
	AttrLiveVoice     = "live.voice"
	AttrLiveTransport = "live.transport"

	AttrAudioSampleRate = "audio.sample_rate"
	AttrAudioChannels   = "audio.channels"
	AttrAudioBlockSize  = "audio.block_size"

	// 字节数，不是字符数
	AttrTurnUserChars  = "turn.user_chars"
	AttrTurnModelChars = "turn.model_chars"

	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

func SessionAttrs(sessionID string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(AttrSessionID, sessionID)}
}

// LiveAttrs describes the model a session talks to.
func LiveAttrs(model, voice string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrLiveModel, model),
		attribute.String(AttrLiveVoice, voice),
	}
}

// AudioAttrs describes the outbound capture stream.
func AudioAttrs(sampleRate, channels, blockSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrAudioSampleRate, sampleRate),
		attribute.Int(AttrAudioChannels, channels),
		attribute.Int(AttrAudioBlockSize, blockSize),
	}
}

// TurnAttrs records the transcript sizes of a completed turn, not the text.
func TurnAttrs(user, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrTurnUserChars, len(user)),
		attribute.Int(AttrTurnModelChars, len(model)),
	}
}

func ErrorAttrs(kind, msg string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, kind),
		attribute.String(AttrErrorMessage, msg),
	}
}
