package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/Brownie44l1/fer-web/internal/config"
	"github.com/Brownie44l1/fer-web/internal/dataset"
	"github.com/Brownie44l1/fer-web/internal/evaluation"
	"github.com/spf13/cobra"
)

func newEvaluateCmd() *cobra.Command {
	var (
		split      string
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "evaluate <root>",
		Short: "Measure model accuracy on a dataset split",
		Long: `Runs every image of a dataset split through the same face detection,
normalization and classification used by the web interface and reports
accuracy, mean confidence and per-emotion precision and recall.`,
		Example: `  # Evaluate on the test split
  emotion evaluate ./data

  # Evaluate on validation and keep a YAML report
  emotion evaluate ./data --split validation --report validation.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)

			p := newPipeline(cfg)
			defer p.Close()
			if !p.service.ModelLoaded() {
				return fmt.Errorf("model not loaded from %s", cfg.ModelPath)
			}

			samples, err := dataset.NewLoader(args[0], p.service.Labels()).Load(split)
			if err != nil {
				return err
			}

			report, err := evaluation.Evaluate(cmd.Context(), p.service, samples, evaluation.Options{
				Split:    split,
				Progress: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}

			if err := printReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}

			if reportPath != "" {
				f, err := os.Create(reportPath)
				if err != nil {
					return fmt.Errorf("failed to create report: %w", err)
				}
				defer f.Close()
				return report.WriteYAML(f)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&split, "split", "test", "Dataset split to evaluate (train, validation, test)")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write the full report to this YAML file")

	return cmd
}

func printReport(out io.Writer, r *evaluation.Report) error {
	fmt.Fprintf(out, "\nsplit: %s  samples: %d  correct: %d  failures: %d\n", r.Split, r.Total, r.Correct, r.Failures)
	fmt.Fprintf(out, "accuracy: %.2f%%  mean confidence: %.2f%%\n\n", r.Accuracy*100, r.MeanConfidence)

	labels := make([]string, 0, len(r.PerLabel))
	for l := range r.PerLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMOTION\tSUPPORT\tPRECISION\tRECALL")
	for _, l := range labels {
		s := r.PerLabel[l]
		fmt.Fprintf(w, "%s\t%d\t%.3f\t%.3f\n", l, s.Support, s.Precision, s.Recall)
	}
	return w.Flush()
}
