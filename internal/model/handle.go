package model

import (
	"context"
	"fmt"

	"github.com/fmueller/voxapi/internal/whisper"
	"golang.org/x/sync/semaphore"
)

// Handle is the loaded model shared read-only by all requests.
type Handle struct {
	Model    whisper.ResolvedModel
	Language string
	Threads  int

	engine whisper.Engine
	slots  *semaphore.Weighted
}

// NewHandle bounds concurrent engine runs to maxConcurrent (at least one).
func NewHandle(engine whisper.Engine, resolved whisper.ResolvedModel, language string, maxConcurrent int) *Handle {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Handle{
		Model:    resolved,
		Language: language,
		engine:   engine,
		slots:    semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Transcribe waits for a free engine slot, then runs inference on a
// canonical WAV file.
func (h *Handle) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for engine slot: %w", err)
	}
	defer h.slots.Release(1)

	return h.engine.Transcribe(ctx, whisper.TranscriptionRequest{
		AudioPath: audioPath,
		ModelPath: h.Model.Path,
		Language:  h.Language,
		Threads:   h.Threads,
	})
}
