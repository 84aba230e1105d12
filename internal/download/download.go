package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const defaultUserAgent = "voxapi/1"

type Options struct {
	URL         string
	Destination string
	// ExpectedSHA256 is required; the file only lands at Destination when
	// its digest matches.
	ExpectedSHA256 string
	Retries        int
	// RetryDelay is multiplied by the attempt number between attempts.
	RetryDelay time.Duration
	// Progress receives a progress bar when set and the size is known.
	Progress   io.Writer
	UserAgent  string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

var errInvalidRequest = errors.New("invalid download request")

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

// retryable reports whether another attempt could succeed. Of the HTTP
// statuses only 5xx and 429 qualify.
func retryable(err error) bool {
	if errors.Is(err, errInvalidRequest) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError || se.code == http.StatusTooManyRequests
	}
	return true
}

// TerminalProgress returns stderr when it is a terminal, nil otherwise.
func TerminalProgress() io.Writer {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return os.Stderr
	}
	return nil
}

// DownloadFile fetches opts.URL into opts.Destination through a temporary
// file in the same directory, retrying transient failures.
func DownloadFile(ctx context.Context, opts Options) error {
	opts, expected, err := withDefaults(opts)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(opts.Destination), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		if attempt > 1 {
			opts.Logger.Warn("retrying download", zap.Int("attempt", attempt), zap.Int("max", opts.Retries), zap.String("url", opts.URL), zap.Error(lastErr))
			if err := sleepContext(ctx, time.Duration(attempt)*opts.RetryDelay); err != nil {
				return fmt.Errorf("download interrupted: %w (last error: %v)", err, lastErr)
			}
		}

		started := time.Now()
		lastErr = downloadOnce(ctx, opts, expected)
		if lastErr == nil {
			opts.Logger.Debug("download finished", zap.String("destination", opts.Destination), zap.Duration("elapsed", time.Since(started)))
			return nil
		}
		if ctx.Err() != nil || !retryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

func withDefaults(opts Options) (Options, string, error) {
	if opts.URL == "" {
		return opts, "", errors.New("download URL is required")
	}
	if opts.Destination == "" {
		return opts, "", errors.New("destination path is required")
	}
	expected := strings.ToLower(strings.TrimSpace(opts.ExpectedSHA256))
	if len(expected) != sha256.Size*2 {
		return opts, "", fmt.Errorf("expected sha256 must be %d hex characters", sha256.Size*2)
	}

	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 300 * time.Millisecond
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Minute}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return opts, expected, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// VerifyFileChecksum hashes path and compares it to expectedSHA256. An
// empty expectation always passes.
func VerifyFileChecksum(path, expectedSHA256 string) error {
	expected := strings.ToLower(strings.TrimSpace(expectedSHA256))
	if expected == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash file: %w", err)
	}
	return compareDigest(expected, h.Sum(nil))
}

func compareDigest(expected string, sum []byte) error {
	if actual := hex.EncodeToString(sum); actual != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}

func downloadOnce(ctx context.Context, opts Options, expected string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	req.Header.Set("User-Agent", opts.UserAgent)

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}

	out, err := os.CreateTemp(filepath.Dir(opts.Destination), filepath.Base(opts.Destination)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := out.Name()
	committed := false
	defer func() {
		_ = out.Close()
		if !committed {
			_ = os.Remove(tempPath)
		}
	}()

	hash := sha256.New()
	writer := io.MultiWriter(out, hash)
	bar := newProgressBar(opts.Progress, resp.ContentLength)
	if bar != nil {
		writer = io.MultiWriter(out, hash, bar)
	}

	if _, err := io.Copy(writer, resp.Body); err != nil {
		return fmt.Errorf("download body: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if err := compareDigest(expected, hash.Sum(nil)); err != nil {
		return err
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempPath, opts.Destination); err != nil {
		return fmt.Errorf("move temp file into destination: %w", err)
	}

	committed = true
	return nil
}

func newProgressBar(w io.Writer, contentLength int64) *progressbar.ProgressBar {
	if w == nil || contentLength <= 0 {
		return nil
	}
	return progressbar.NewOptions64(
		contentLength,
		progressbar.OptionSetDescription("downloading"),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(w),
		progressbar.OptionClearOnFinish(),
	)
}
