package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Brownie44l1/fer-web/internal/config"
	"github.com/Brownie44l1/fer-web/internal/store"
	"github.com/parquet-go/parquet-go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// historyRow is the export layout of one logged prediction.
type historyRow struct {
	ID               int64   `parquet:"id" yaml:"id"`
	UserName         string  `parquet:"user_name" yaml:"user_name"`
	ImageFilename    string  `parquet:"image_filename" yaml:"image_filename"`
	PredictedEmotion string  `parquet:"predicted_emotion" yaml:"predicted_emotion"`
	ConfidenceScore  float64 `parquet:"confidence_score" yaml:"confidence_score"`
	Timestamp        string  `parquet:"timestamp" yaml:"timestamp"`
}

func newHistoryCmd() *cobra.Command {
	var (
		limit      int
		exportPath string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent predictions",
		Long: `Prints the most recent entries of the prediction log, newest first.

With --export the same rows are written to a .parquet or .yaml file.`,
		Example: `  emotion history --limit 50
  emotion history --limit 1000 --export predictions.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)

			records, err := store.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer records.Close()
			if err := records.EnsureSchema(cmd.Context()); err != nil {
				return err
			}

			preds, err := records.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			rows := toHistoryRows(preds)
			if exportPath != "" {
				if err := exportHistory(exportPath, rows); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d predictions to %s\n", len(rows), exportPath)
				return nil
			}
			return printHistory(cmd.OutOrStdout(), rows)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of predictions to show")
	cmd.Flags().StringVar(&exportPath, "export", "", "Write rows to a .parquet or .yaml file instead of printing")

	return cmd
}

func toHistoryRows(preds []store.Prediction) []historyRow {
	rows := make([]historyRow, len(preds))
	for i, p := range preds {
		rows[i] = historyRow{
			ID:               int64(p.ID),
			UserName:         p.UserName,
			ImageFilename:    p.ImageFilename,
			PredictedEmotion: p.PredictedEmotion,
			ConfidenceScore:  p.ConfidenceScore,
			Timestamp:        p.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	return rows
}

func exportHistory(path string, rows []historyRow) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".parquet":
		if err := parquet.WriteFile(path, rows); err != nil {
			return fmt.Errorf("failed to write parquet: %w", err)
		}
		return nil
	case ".yaml", ".yml":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer f.Close()
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return fmt.Errorf("failed to write yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported export format: %s (supported: .parquet, .yaml)", ext)
	}
}

func printHistory(out io.Writer, rows []historyRow) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tUSER\tEMOTION\tCONFIDENCE\tIMAGE")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%s\n",
			r.ID, r.Timestamp, r.UserName, r.PredictedEmotion, r.ConfidenceScore, r.ImageFilename)
	}
	return w.Flush()
}
