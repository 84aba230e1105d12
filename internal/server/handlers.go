package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/fmueller/voxapi/internal/model"
	"github.com/fmueller/voxapi/internal/transcribe"
	"go.uber.org/zap"
)

const rootMessage = "Audio Transcription API is running. Use POST /transcribe/ to transcribe audio."

// retryAfter is the hint sent with 503 responses while the model loads.
const retryAfter = 5

type statusResponse struct {
	Message     string `json:"message"`
	ModelStatus string `json:"model_status"`
}

type transcribeRequest struct {
	AudioBase64 *string `json:"audio_base64"`
}

type transcribeResponse struct {
	Status string `json:"status"`
	Text   string `json:"text"`
}

type handlers struct {
	models       Models
	transcriber  Transcriber
	maxBodyBytes int64
	logger       *zap.Logger
}

func (h *handlers) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Message:     rootMessage,
		ModelStatus: modelStatus(h.models.State()),
	})
}

// modelStatus reports not_loaded as loading: the load task starts with the
// listener.
func modelStatus(state model.State) string {
	switch state {
	case model.Ready:
		return "ready"
	case model.Failed:
		return "failed"
	default:
		return "loading"
	}
}

func (h *handlers) transcribe(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req transcribeRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.writeError(w, r, requestBodyError(err, h.maxBodyBytes))
		return
	}
	if req.AudioBase64 == nil {
		h.writeError(w, r, &transcribe.Error{
			Kind:   transcribe.KindClientData,
			Detail: "Invalid request body: field audio_base64 is required",
		})
		return
	}

	result, err := h.transcriber.Transcribe(r.Context(), *req.AudioBase64)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, transcribeResponse{Status: "success", Text: result.Text})
}

func requestBodyError(err error, limit int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &transcribe.Error{
			Kind:   transcribe.KindClientData,
			Detail: fmt.Sprintf("Invalid audio data: request body exceeds %d bytes", limit),
			Err:    err,
		}
	}
	if errors.Is(err, io.EOF) {
		return &transcribe.Error{Kind: transcribe.KindClientData, Detail: "Invalid request body: empty body", Err: err}
	}
	return &transcribe.Error{
		Kind:   transcribe.KindClientData,
		Detail: fmt.Sprintf("Invalid request body: %v", err),
		Err:    err,
	}
}

// writeError renders err as {"detail": ...}. Unclassified errors are
// reported as invalid audio data.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	te, ok := transcribe.AsError(err)
	if !ok {
		te = &transcribe.Error{
			Kind:   transcribe.KindClientData,
			Detail: fmt.Sprintf("Invalid audio data: %v", err),
			Err:    err,
		}
	}

	status := te.HTTPStatus()
	if te.Retryable() {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}

	fields := []zap.Field{
		zap.Stringer("kind", te.Kind),
		zap.Int("status", status),
		zap.String("path", r.URL.Path),
	}
	if te.Err != nil {
		fields = append(fields, zap.Error(te.Err))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("transcription request failed", fields...)
	} else {
		h.logger.Debug("transcription request rejected", fields...)
	}

	writeDetail(w, status, te.Detail)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeDetail(w, http.StatusNotFound, "Not Found")
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
}
