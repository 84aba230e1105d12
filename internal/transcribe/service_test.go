package transcribe

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fmueller/voxapi/internal/audio"
	"github.com/fmueller/voxapi/internal/audio/audiotest"
	"github.com/fmueller/voxapi/internal/model"
	"github.com/fmueller/voxapi/internal/whisper"
	"github.com/fmueller/voxapi/internal/whisper/whispertest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func readyManager(t *testing.T, engine whisper.Engine) *model.Manager {
	t.Helper()

	m := model.NewManager(func(context.Context) (*model.Handle, error) {
		return model.NewHandle(engine, whisper.ResolvedModel{Name: "tiny", Path: "/models/ggml-tiny.bin"}, "auto", 1), nil
	}, nil)
	m.Start(context.Background())
	require.NoError(t, m.Wait(context.Background()))
	return m
}

func speechPayload() string {
	return base64.StdEncoding.EncodeToString(audiotest.PCM16(audiotest.Sine(440, 0.5, 16000, 16000), 16000, 1))
}

func silencePayload() string {
	return base64.StdEncoding.EncodeToString(audiotest.Silence(1, 16000))
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	te, ok := AsError(err)
	require.True(t, ok, "expected *Error, got %v", err)
	require.Equal(t, kind, te.Kind)
	return te
}

func TestServiceTranscribesCanonicalAudio(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	engine := &whispertest.Engine{Fn: func(_ context.Context, req whisper.TranscriptionRequest) (string, error) {
		data, err := os.ReadFile(req.AudioPath)
		if err != nil {
			return "", err
		}
		clip, err := audio.Decode(data)
		if err != nil {
			return "", err
		}
		if clip.BitDepth != audio.CanonicalBitDepth || clip.Frames() != 16000 || clip.SampleRate != 16000 {
			return "", errors.New("engine received non-canonical audio")
		}
		return " Hello world.", nil
	}}

	svc := NewService(readyManager(t, engine), Options{ScratchDir: scratch, SilenceGate: true, SilenceDBFS: -65})
	result, err := svc.Transcribe(context.Background(), speechPayload())
	require.NoError(t, err)
	require.Equal(t, " Hello world.", result.Text)
	require.False(t, result.Silent)
	require.Equal(t, "1s", result.Duration.String())

	requests := engine.Requests()
	require.Len(t, requests, 1)
	require.Equal(t, "/models/ggml-tiny.bin", requests[0].ModelPath)
	require.Equal(t, "auto", requests[0].Language)
	requireEmptyDir(t, scratch)
}

func TestServiceAcceptsUnpaddedPayload(t *testing.T) {
	t.Parallel()

	engine := &whispertest.Engine{Text: "ok"}
	svc := NewService(readyManager(t, engine), Options{ScratchDir: t.TempDir()})

	payload := base64.RawStdEncoding.EncodeToString(audiotest.Silence(0.01, 16000))
	result, err := svc.Transcribe(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, "ok", result.Text)
}

func TestServiceSilenceGateSkipsEngine(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	engine := &whispertest.Engine{Text: "should not run"}
	svc := NewService(readyManager(t, engine), Options{ScratchDir: scratch, SilenceGate: true, SilenceDBFS: -65})

	result, err := svc.Transcribe(context.Background(), silencePayload())
	require.NoError(t, err)
	require.Equal(t, "", result.Text)
	require.True(t, result.Silent)
	require.Empty(t, engine.Requests())
	requireEmptyDir(t, scratch)
}

func TestServiceMapsBlankAudioToEmptyText(t *testing.T) {
	t.Parallel()

	engine := &whispertest.Engine{Text: "[BLANK_AUDIO]\n"}
	svc := NewService(readyManager(t, engine), Options{ScratchDir: t.TempDir()})

	result, err := svc.Transcribe(context.Background(), silencePayload())
	require.NoError(t, err)
	require.Equal(t, "", result.Text)
	require.False(t, result.Silent)
	require.Len(t, engine.Requests(), 1)
}

func TestServiceReportsModelLoading(t *testing.T) {
	t.Parallel()

	m := model.NewManager(func(context.Context) (*model.Handle, error) { return nil, errors.New("unused") }, nil)
	svc := NewService(m, Options{ScratchDir: t.TempDir()})

	_, err := svc.Transcribe(context.Background(), "not base64 at all")
	te := requireKind(t, err, KindNotReady)
	require.Equal(t, "Model is still loading. Please try again in a few moments.", te.Detail)
	require.ErrorIs(t, err, model.ErrNotReady)
	require.True(t, te.Retryable())
}

func TestServiceReportsModelLoadFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("checksum mismatch")
	m := model.NewManager(func(context.Context) (*model.Handle, error) { return nil, cause }, nil)
	m.Start(context.Background())
	require.ErrorIs(t, m.Wait(context.Background()), cause)

	svc := NewService(m, Options{ScratchDir: t.TempDir()})
	_, err := svc.Transcribe(context.Background(), silencePayload())
	te := requireKind(t, err, KindLoadFailed)
	require.Equal(t, "Model failed to load. Please contact the administrator.", te.Detail)
	require.ErrorIs(t, err, cause)
}

func TestServiceRejectsInvalidBase64(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	engine := &whispertest.Engine{}
	svc := NewService(readyManager(t, engine), Options{ScratchDir: scratch})

	_, err := svc.Transcribe(context.Background(), "@@@@not-base64@@@@")
	te := requireKind(t, err, KindClientData)
	require.ErrorIs(t, err, ErrInvalidBase64)
	require.Contains(t, te.Detail, "Invalid base64 encoding: ")
	require.Contains(t, te.Detail, "First 50 chars of input: @@@@not-base64@@@@")
	require.Empty(t, engine.Requests())
	requireEmptyDir(t, scratch)
}

func TestServiceLogsScratchDirFailure(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	scratch := filepath.Join(t.TempDir(), "missing")
	engine := &whispertest.Engine{}
	svc := NewService(readyManager(t, engine), Options{ScratchDir: scratch, Logger: zap.New(core)})

	_, err := svc.Transcribe(context.Background(), speechPayload())
	te := requireKind(t, err, KindClientData)
	require.Contains(t, te.Detail, "Invalid audio data: ")
	require.Empty(t, engine.Requests())

	warnings := logs.FilterMessage("failed to stage canonical audio").All()
	require.Len(t, warnings, 1)
	require.Equal(t, scratch, warnings[0].ContextMap()["scratch_dir"])
}

func TestServiceRejectsInvalidAudio(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	engine := &whispertest.Engine{}
	svc := NewService(readyManager(t, engine), Options{ScratchDir: scratch})

	_, err := svc.Transcribe(context.Background(), base64.StdEncoding.EncodeToString([]byte("just some text")))
	te := requireKind(t, err, KindClientData)
	require.ErrorIs(t, err, audio.ErrUnsupportedFormat)
	require.Contains(t, te.Detail, "Invalid audio format: ")
	require.Empty(t, engine.Requests())
	requireEmptyDir(t, scratch)
}

func TestServiceEngineFailureRemovesTempFile(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	var seenPath string
	engine := &whispertest.Engine{Fn: func(_ context.Context, req whisper.TranscriptionRequest) (string, error) {
		seenPath = req.AudioPath
		return "", errors.New("whisper exited with status 3")
	}}
	svc := NewService(readyManager(t, engine), Options{ScratchDir: scratch})

	_, err := svc.Transcribe(context.Background(), speechPayload())
	te := requireKind(t, err, KindTranscription)
	require.Equal(t, "Transcription error: whisper exited with status 3", te.Detail)

	require.NotEmpty(t, seenPath)
	_, statErr := os.Stat(seenPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)
	requireEmptyDir(t, scratch)
}

func TestServiceHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	engine := &whispertest.Engine{Fn: func(ctx context.Context, _ whisper.TranscriptionRequest) (string, error) {
		return "", ctx.Err()
	}}
	svc := NewService(readyManager(t, engine), Options{ScratchDir: scratch})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Transcribe(ctx, speechPayload())
	requireKind(t, err, KindTranscription)
	require.ErrorIs(t, err, context.Canceled)
	requireEmptyDir(t, scratch)
}
