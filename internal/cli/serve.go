package cli

import (
	"context"
	"fmt"

	"github.com/fmueller/voxapi/internal/config"
	"github.com/fmueller/voxapi/internal/model"
	"github.com/fmueller/voxapi/internal/platform"
	"github.com/fmueller/voxapi/internal/server"
	"github.com/fmueller/voxapi/internal/transcribe"
	"github.com/fmueller/voxapi/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the transcription API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd)
		},
	}

	config.BindServerFlags(cmd.Flags())

	return cmd
}

func (a *appState) runServe(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags(), a.envFile)
	if err != nil {
		return err
	}

	serveFn := a.serveFn
	if serveFn == nil {
		serveFn = a.serve
	}
	return serveFn(cmd.Context(), cfg)
}

func (a *appState) serve(ctx context.Context, cfg config.Config) error {
	logger := a.log()
	if cfg.UsesDefaultAPIKey() {
		logger.Warn("API_KEY is not set; the built-in default key is in use and must be changed for production")
	}

	scratchDir, err := platform.ResolveScratchDir(cfg.ScratchDir)
	if err != nil {
		return fmt.Errorf("prepare scratch directory: %w", err)
	}

	models := model.NewManager(model.NewLoader(model.LoaderOptions{
		Model:         cfg.Model,
		ModelDir:      cfg.ModelDir,
		Language:      cfg.Language,
		Threads:       cfg.Threads,
		WhisperPath:   cfg.WhisperPath,
		AutoDownload:  cfg.AutoDownload,
		MaxConcurrent: cfg.MaxConcurrent,
		NoProgress:    true,
		Logger:        logger.Named("model"),
	}), logger.Named("model"))

	svc := transcribe.NewService(models, transcribe.Options{
		ScratchDir:  scratchDir,
		SilenceGate: cfg.SilenceGate,
		SilenceDBFS: cfg.SilenceDBFS,
		Logger:      logger.Named("transcribe"),
	})

	srv := server.New(models, svc, server.Options{
		APIKey:          cfg.APIKey,
		AllowedOrigins:  cfg.AllowedOrigins,
		MaxBodyBytes:    cfg.MaxBodyBytes,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
	})

	logger.Info("starting voxapi",
		zap.String("version", version.Resolve()),
		zap.String("addr", cfg.Addr()),
		zap.String("model", cfg.Model),
		zap.String("language", cfg.Language),
		zap.Int("max_concurrent", cfg.MaxConcurrent),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
	)
	return srv.ListenAndServe(ctx, cfg.Addr())
}
