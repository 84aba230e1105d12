package transcribe

import (
	"strings"

	"github.com/fmueller/voxapi/internal/whisper"
)

// cleanTranscript maps whisper's blank marker to an empty transcript and
// returns any other text unchanged.
func cleanTranscript(transcript string) string {
	if isBlankTranscript(transcript) {
		return ""
	}
	return transcript
}

func isBlankTranscript(transcript string) bool {
	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		return true
	}

	return strings.EqualFold(trimmed, whisper.BlankAudioToken)
}
