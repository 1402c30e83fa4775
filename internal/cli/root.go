package cli

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emotion",
		Short: "Facial emotion recognition web app",
		Long: `Emotion serves an upload page that detects a face in a photo and
classifies its expression as one of seven emotions.

Offline commands inspect the training dataset, evaluate the model on a
split and export the prediction history.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDatasetCmd())
	cmd.AddCommand(newEvaluateCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

func setupLogging(level slog.Level) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}))
	slog.SetDefault(logger)
}
