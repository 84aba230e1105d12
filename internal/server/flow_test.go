package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"testing"

	"github.com/fmueller/voxapi/internal/audio/audiotest"
	"github.com/fmueller/voxapi/internal/model"
	"github.com/fmueller/voxapi/internal/transcribe"
	"github.com/fmueller/voxapi/internal/whisper"
	"github.com/fmueller/voxapi/internal/whisper/whispertest"
	"github.com/stretchr/testify/require"
)

type stack struct {
	models  *model.Manager
	server  *Server
	scratch string
	release chan struct{}
}

// newStack wires the real manager and service around engine. The load task
// blocks until release is closed.
func newStack(t *testing.T, engine whisper.Engine, gate bool) *stack {
	t.Helper()

	release := make(chan struct{})
	models := model.NewManager(func(ctx context.Context) (*model.Handle, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return model.NewHandle(engine, whisper.ResolvedModel{Name: "base", Path: "/models/ggml-base.bin"}, "auto", 2), nil
	}, nil)

	scratch := t.TempDir()
	svc := transcribe.NewService(models, transcribe.Options{ScratchDir: scratch, SilenceGate: gate, SilenceDBFS: -65})
	return &stack{
		models:  models,
		server:  New(models, svc, Options{APIKey: testKey}),
		scratch: scratch,
		release: release,
	}
}

func (s *stack) load(t *testing.T) {
	t.Helper()
	s.models.Start(context.Background())
	close(s.release)
	require.NoError(t, s.models.Wait(context.Background()))
}

func transcribeBody(t *testing.T, wav []byte) string {
	t.Helper()
	body, err := json.Marshal(map[string]string{"audio_base64": base64.StdEncoding.EncodeToString(wav)})
	require.NoError(t, err)
	return string(body)
}

func requireScratchEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestFlowReturns503UntilModelLoads(t *testing.T) {
	t.Parallel()

	st := newStack(t, &whispertest.Engine{Text: " Hello."}, true)
	body := transcribeBody(t, audiotest.PCM16(audiotest.Sine(440, 0.5, 8000, 16000), 16000, 1))

	rec := doRequest(t, st.server.Handler(), http.MethodPost, "/transcribe/", body, withKey())
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "Model is still loading. Please try again in a few moments.", decodeBody(t, rec)["detail"])

	st.models.Start(context.Background())
	rec = doRequest(t, st.server.Handler(), http.MethodGet, "/", "", withKey())
	require.Equal(t, "loading", decodeBody(t, rec)["model_status"])

	close(st.release)
	require.NoError(t, st.models.Wait(context.Background()))

	rec = doRequest(t, st.server.Handler(), http.MethodPost, "/transcribe/", body, withKey())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, map[string]any{"status": "success", "text": " Hello."}, decodeBody(t, rec))

	rec = doRequest(t, st.server.Handler(), http.MethodGet, "/", "", withKey())
	require.Equal(t, "ready", decodeBody(t, rec)["model_status"])
	requireScratchEmpty(t, st.scratch)
}

func TestFlowFailedLoadReturns500(t *testing.T) {
	t.Parallel()

	models := model.NewManager(func(context.Context) (*model.Handle, error) {
		return nil, errors.New("whisper-cli not found")
	}, nil)
	svc := transcribe.NewService(models, transcribe.Options{ScratchDir: t.TempDir()})
	srv := New(models, svc, Options{APIKey: testKey})

	models.Start(context.Background())
	require.Error(t, models.Wait(context.Background()))

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/transcribe/", transcribeBody(t, audiotest.Silence(1, 16000)), withKey())
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Model failed to load. Please contact the administrator.", decodeBody(t, rec)["detail"])

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/", "", withKey())
	require.Equal(t, "failed", decodeBody(t, rec)["model_status"])
}

func TestFlowSilentClipTranscribesToEmptyText(t *testing.T) {
	t.Parallel()

	for _, gate := range []bool{true, false} {
		engine := &whispertest.Engine{Text: "[BLANK_AUDIO]"}
		st := newStack(t, engine, gate)
		st.load(t)

		rec := doRequest(t, st.server.Handler(), http.MethodPost, "/transcribe/", transcribeBody(t, audiotest.Silence(1, 16000)), withKey())
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, map[string]any{"status": "success", "text": ""}, decodeBody(t, rec))
		require.Equal(t, !gate, len(engine.Requests()) == 1, "gate=%v", gate)
		requireScratchEmpty(t, st.scratch)
	}
}

func TestFlowInvalidPayloadsReturn400AndLeaveNoFiles(t *testing.T) {
	t.Parallel()

	engine := &whispertest.Engine{Text: "unused"}
	st := newStack(t, engine, true)
	st.load(t)

	bodies := []string{
		`{"audio_base64":"%%%%"}`,
		`{"audio_base64":"Q"}`,
		`{"audio_base64":"aGVsbG8gd29ybGQ"}`,
		transcribeBody(t, []byte("RIFF\x00\x00\x00\x00WAVE")),
		transcribeBody(t, audiotest.WAV(0x55, 16, 1, 16000, []byte{1, 2})),
	}
	for _, body := range bodies {
		rec := doRequest(t, st.server.Handler(), http.MethodPost, "/transcribe/", body, withKey())
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		require.NotEmpty(t, decodeBody(t, rec)["detail"])
	}
	require.Empty(t, engine.Requests())
	requireScratchEmpty(t, st.scratch)
}

func TestFlowEngineFailureReturns500AndLeavesNoFiles(t *testing.T) {
	t.Parallel()

	engine := &whispertest.Engine{Fn: func(context.Context, whisper.TranscriptionRequest) (string, error) {
		return "", errors.New("whisper-cli exited: illegal instruction")
	}}
	st := newStack(t, engine, true)
	st.load(t)

	body := transcribeBody(t, audiotest.PCM16(audiotest.Sine(440, 0.5, 8000, 16000), 16000, 1))
	rec := doRequest(t, st.server.Handler(), http.MethodPost, "/transcribe/", body, withKey())
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Transcription error: whisper-cli exited: illegal instruction", decodeBody(t, rec)["detail"])
	requireScratchEmpty(t, st.scratch)
}

func TestFlowUnpaddedPayloadMatchesPadded(t *testing.T) {
	t.Parallel()

	engine := &whispertest.Engine{Text: " same"}
	st := newStack(t, engine, false)
	st.load(t)

	wav := audiotest.PCM16(make([]int16, 8001), 16000, 1)
	padded := base64.StdEncoding.EncodeToString(wav)
	unpadded := base64.RawStdEncoding.EncodeToString(wav)
	require.NotEqual(t, padded, unpadded)

	for _, encoded := range []string{padded, unpadded} {
		body, err := json.Marshal(map[string]string{"audio_base64": encoded})
		require.NoError(t, err)
		rec := doRequest(t, st.server.Handler(), http.MethodPost, "/transcribe/", string(body), withKey())
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, " same", decodeBody(t, rec)["text"])
	}
	require.Len(t, engine.Requests(), 2)
}
