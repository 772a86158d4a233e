package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "creative-engine",
		Short: "Branded ad creative generator",
		Long: `Creative Engine turns a product description and a logo into a batch of
branded ad images with captions in several tones.

Images come from a synthetic renderer or the AI Horde, captions from an
offline template set or a text model. Any remote failure falls back to the
offline path, so a run always completes.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newConceptsCmd())

	return cmd
}
