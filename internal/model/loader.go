package model

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/fmueller/voxapi/internal/download"
	"github.com/fmueller/voxapi/internal/platform"
	"github.com/fmueller/voxapi/internal/whisper"
	"go.uber.org/zap"
)

type LoaderOptions struct {
	// Model is a registry name or a path to a ggml .bin file.
	Model         string
	ModelDir      string
	Language      string
	Threads       int
	WhisperPath   string
	AutoDownload  bool
	MaxConcurrent int
	NoProgress    bool
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// NewLoader returns the LoadFunc used at startup: make the model file
// available, locate the engine, and build the shared handle.
func NewLoader(opts LoaderOptions) LoadFunc {
	return func(ctx context.Context) (*Handle, error) {
		resolved, err := EnsureModel(ctx, opts)
		if err != nil {
			return nil, err
		}

		engine, err := whisper.NewBundledEngine(opts.WhisperPath, opts.log())
		if err != nil {
			return nil, err
		}

		handle := NewHandle(engine, resolved, opts.Language, opts.MaxConcurrent)
		handle.Threads = opts.Threads
		return handle, nil
	}
}

// EnsureModel resolves the configured model and downloads or repairs a
// named model file when needed.
func EnsureModel(ctx context.Context, opts LoaderOptions) (whisper.ResolvedModel, error) {
	modelDir, err := platform.ResolveModelDir(opts.ModelDir)
	if err != nil {
		return whisper.ResolvedModel{}, err
	}

	resolved, err := whisper.ResolveModel(opts.Model, modelDir)
	if err != nil {
		return whisper.ResolvedModel{}, err
	}
	if resolved.IsCustomPath {
		return resolved, nil
	}

	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return whisper.ResolvedModel{}, fmt.Errorf("create model directory %s: %w", modelDir, err)
	}

	logger := opts.log()
	if !resolved.NeedsDownload {
		err := download.VerifyFileChecksum(resolved.Path, resolved.SHA256)
		if err == nil {
			return resolved, nil
		}
		logger.Warn("model checksum verification failed; downloading fresh copy", zap.String("model", resolved.Name), zap.Error(err))
	}

	if !opts.AutoDownload {
		return whisper.ResolvedModel{}, fmt.Errorf("model %q is missing or corrupt at %s; run `voxapi setup --model %s` or enable auto download", resolved.Name, resolved.Path, resolved.Name)
	}

	var progress io.Writer
	if !opts.NoProgress {
		progress = download.TerminalProgress()
	}

	logger.Info("downloading model", zap.String("model", resolved.Name), zap.String("destination", resolved.Path))
	if err := download.DownloadFile(ctx, download.Options{
		URL:            resolved.URL,
		Destination:    resolved.Path,
		ExpectedSHA256: resolved.SHA256,
		Progress:       progress,
		HTTPClient:     opts.HTTPClient,
		Logger:         logger,
	}); err != nil {
		return whisper.ResolvedModel{}, fmt.Errorf("download model %q: %w", resolved.Name, err)
	}

	resolved.NeedsDownload = false
	return resolved, nil
}

func (o LoaderOptions) log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
