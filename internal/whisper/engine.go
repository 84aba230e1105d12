package whisper

import "context"

// BlankAudioToken is what whisper.cpp prints for audio without speech.
const BlankAudioToken = "[BLANK_AUDIO]"

type TranscriptionRequest struct {
	AudioPath string
	ModelPath string
	Language  string
	Threads   int
}

// Engine runs one inference. Implementations must be safe for concurrent use.
type Engine interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (string, error)
}
