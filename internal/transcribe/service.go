package transcribe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fmueller/voxapi/internal/audio"
	"github.com/fmueller/voxapi/internal/model"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Models hands out the shared model handle.
type Models interface {
	Acquire() (*model.Handle, error)
}

type Options struct {
	// ScratchDir holds per-request audio files; empty means os.TempDir.
	ScratchDir  string
	SilenceGate bool
	SilenceDBFS float64
	Logger      *zap.Logger
}

type Result struct {
	Text string
	// Silent is set when the silence gate answered without running whisper.
	Silent   bool
	Duration time.Duration
}

type Service struct {
	models Models
	opts   Options
	logger *zap.Logger
}

func NewService(models Models, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{models: models, opts: opts, logger: logger}
}

// Transcribe checks model readiness, decodes the payload, normalizes it to a
// canonical WAV and runs whisper on it. The canonical file is removed before
// Transcribe returns. Failures are *Error values.
func (s *Service) Transcribe(ctx context.Context, encoded string) (Result, error) {
	handle, err := s.models.Acquire()
	if err != nil {
		return Result{}, readinessError(err)
	}

	logger := s.logger
	if id := middleware.GetReqID(ctx); id != "" {
		logger = logger.With(zap.String("request_id", id))
	}

	data, err := DecodeBase64(encoded)
	if err != nil {
		var b64 *Base64Error
		errors.As(err, &b64)
		return Result{}, &Error{Kind: KindClientData, Detail: b64.Detail(), Err: err}
	}
	logger.Debug("decoded audio payload", zap.Int("encoded_chars", len(encoded)), zap.Int("bytes", len(data)))

	tmp, err := audio.Normalize(data, s.opts.ScratchDir)
	if err != nil {
		if !isClientAudioError(err) {
			logger.Warn("failed to stage canonical audio", zap.String("scratch_dir", s.opts.ScratchDir), zap.Error(err))
		}
		return Result{}, audioError(err)
	}
	defer func() {
		if err := tmp.Release(); err != nil {
			logger.Warn("failed to remove canonical audio file", zap.String("path", tmp.Path), zap.Error(err))
		}
	}()

	clip := tmp.Clip
	logger.Debug("normalized audio",
		zap.String("format", string(clip.Format)),
		zap.Int("sample_rate", clip.SampleRate),
		zap.Int("channels", clip.Channels),
		zap.Int("source_bit_depth", clip.BitDepth),
		zap.Duration("duration", clip.Duration()),
	)

	if s.opts.SilenceGate {
		if silent, metrics := audio.IsSilent(clip, s.opts.SilenceDBFS); silent {
			logger.Info("silence gate skipped transcription",
				zap.Float64("rms_dbfs", metrics.RMSdBFS),
				zap.Float64("peak_dbfs", metrics.PeakdBFS),
				zap.Float64("threshold_dbfs", s.opts.SilenceDBFS),
			)
			return Result{Silent: true, Duration: clip.Duration()}, nil
		}
	}

	started := time.Now()
	text, err := handle.Transcribe(ctx, tmp.Path)
	if err != nil {
		return Result{}, &Error{
			Kind:   KindTranscription,
			Detail: fmt.Sprintf("Transcription error: %v", err),
			Err:    err,
		}
	}
	logger.Info("transcription completed",
		zap.String("model", handle.Model.Label()),
		zap.Duration("audio", clip.Duration()),
		zap.Duration("elapsed", time.Since(started)),
	)

	return Result{Text: cleanTranscript(text), Duration: clip.Duration()}, nil
}

func readinessError(err error) error {
	if errors.Is(err, model.ErrLoadFailed) {
		return &Error{
			Kind:   KindLoadFailed,
			Detail: "Model failed to load. Please contact the administrator.",
			Err:    err,
		}
	}
	return &Error{
		Kind:   KindNotReady,
		Detail: "Model is still loading. Please try again in a few moments.",
		Err:    err,
	}
}

func isClientAudioError(err error) bool {
	return errors.Is(err, audio.ErrUnsupportedFormat) || errors.Is(err, audio.ErrInvalidAudio)
}

func audioError(err error) error {
	if isClientAudioError(err) {
		return &Error{Kind: KindClientData, Detail: fmt.Sprintf("Invalid audio format: %v", err), Err: err}
	}
	return &Error{Kind: KindClientData, Detail: fmt.Sprintf("Invalid audio data: %v", err), Err: err}
}
