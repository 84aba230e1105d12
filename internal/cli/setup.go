package cli

import (
	"fmt"

	"github.com/fmueller/voxapi/internal/config"
	"github.com/fmueller/voxapi/internal/download"
	"github.com/fmueller/voxapi/internal/model"
	"github.com/fmueller/voxapi/internal/platform"
	"github.com/fmueller/voxapi/internal/whisper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSetupCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Download and verify speech model assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags(), app.envFile)
			if err != nil {
				return err
			}

			modelDir, err := platform.ResolveModelDir(cfg.ModelDir)
			if err != nil {
				return err
			}
			resolved, err := whisper.ResolveModel(cfg.Model, modelDir)
			if err != nil {
				return err
			}
			if resolved.IsCustomPath {
				return fmt.Errorf("setup expects a named model; got custom path %s", resolved.Path)
			}

			if !resolved.NeedsDownload {
				stop := startSpinner(app.progressEnabled(), cmd.ErrOrStderr(), "Verifying "+resolved.Label())
				err := download.VerifyFileChecksum(resolved.Path, resolved.SHA256)
				stop()
				if err == nil {
					app.log().Info("model already present", zap.String("model", resolved.Name), zap.String("path", resolved.Path))
					fmt.Fprintf(cmd.OutOrStdout(), "Model %s already present at %s\n", resolved.Name, resolved.Path)
					app.checkEngine(cmd, cfg.WhisperPath)
					return nil
				}
			}

			installed, err := model.EnsureModel(cmd.Context(), model.LoaderOptions{
				Model:        cfg.Model,
				ModelDir:     cfg.ModelDir,
				AutoDownload: true,
				NoProgress:   !app.progressEnabled(),
				Logger:       app.log(),
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Model %s installed at %s\n", installed.Name, installed.Path)
			app.checkEngine(cmd, cfg.WhisperPath)
			return nil
		},
	}

	config.BindModelFlags(cmd.Flags())
	bindProgressFlag(cmd, app)

	return cmd
}

// checkEngine reports where whisper-cli was found. A missing engine is only
// a warning here; serve reports it as a failed model load.
func (a *appState) checkEngine(cmd *cobra.Command, override string) {
	engine, err := whisper.NewBundledEngine(override, a.log())
	if err != nil {
		a.log().Warn("whisper engine not found", zap.Error(err))
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Using whisper engine %s\n", engine.Executable)
}
