package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fmueller/voxapi/internal/config"
	"github.com/spf13/cobra"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()
	return execute(t, NewRootCmd(), args)
}

func execute(t *testing.T, cmd *cobra.Command, args []string) (string, string, error) {
	t.Helper()

	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return outBuf.String(), errBuf.String(), err
}

// capturingServe records the configuration serve would have started with.
type capturingServe struct {
	mu  sync.Mutex
	cfg *config.Config
}

func (c *capturingServe) serve(_ context.Context, cfg config.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = &cfg
	return nil
}

func (c *capturingServe) captured() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// newCapturingRoot builds the root command with serve replaced and no
// dotenv file.
func newCapturingRoot(t *testing.T) (*cobra.Command, *capturingServe) {
	t.Helper()

	capture := &capturingServe{}
	app := &appState{envFile: filepath.Join(t.TempDir(), "missing.env"), serveFn: capture.serve}
	return newRootCmd(app), capture
}
