// Package whispertest provides stand-ins for the whisper engine.
package whispertest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/fmueller/voxapi/internal/whisper"
)

// FakeCLI writes a shell script that mimics whisper-cli: it prints
// transcript into the -of output file. Skips on Windows.
func FakeCLI(t *testing.T, transcript string) string {
	t.Helper()
	return writeScript(t, fmt.Sprintf(`out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-of" ]; then out="$2"; fi
  shift
done
printf '%%s' '%s' > "$out.txt"
`, transcript))
}

// FailingCLI mimics a whisper-cli crash that prints stderr and exits 3.
func FailingCLI(t *testing.T, stderr string) string {
	t.Helper()
	return writeScript(t, fmt.Sprintf("echo '%s' >&2\nexit 3\n", stderr))
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake whisper-cli requires a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "whisper-cli")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write fake whisper-cli: %v", err)
	}
	return path
}

// Engine is an in-process whisper.Engine recording every request.
type Engine struct {
	// Fn produces the transcript; nil returns Text.
	Fn   func(ctx context.Context, req whisper.TranscriptionRequest) (string, error)
	Text string

	mu       sync.Mutex
	requests []whisper.TranscriptionRequest
}

func (e *Engine) Transcribe(ctx context.Context, req whisper.TranscriptionRequest) (string, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	if e.Fn != nil {
		return e.Fn(ctx, req)
	}
	return e.Text, nil
}

func (e *Engine) Requests() []whisper.TranscriptionRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]whisper.TranscriptionRequest(nil), e.requests...)
}
