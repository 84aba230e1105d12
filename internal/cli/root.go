package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fmueller/voxapi/internal/config"
	"github.com/fmueller/voxapi/internal/logging"
	"github.com/fmueller/voxapi/internal/version"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

const defaultEnvFile = ".env"

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool
	envFile    string

	logger *zap.Logger

	serveFn func(ctx context.Context, cfg config.Config) error
}

func NewRootCmd() *cobra.Command {
	app := &appState{envFile: defaultEnvFile}
	app.serveFn = app.serve
	return newRootCmd(app)
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "voxapi",
		Short:         "Serve whisper speech-to-text over an authenticated HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose, JSON: app.jsonLogs, Service: "voxapi"})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = app.log().Sync()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd)
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindEnvFileFlag(cmd, app)
	config.BindServerFlags(cmd.Flags())

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
}

func bindEnvFileFlag(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.envFile, "env-file", app.envFile, "Dotenv file read before the environment (ignored when missing)")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
