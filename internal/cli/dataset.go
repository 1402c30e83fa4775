package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Brownie44l1/fer-web/internal/dataset"
	"github.com/Brownie44l1/fer-web/internal/model"
	"github.com/spf13/cobra"
)

func newDatasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset <root>",
		Short: "Count images per split and emotion",
		Long: `Scans a dataset laid out as root/{train,validation,test}/<emotion>/
and prints how many images each split holds per emotion.`,
		Example: `  emotion dataset ./data`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := dataset.NewLoader(args[0], model.DefaultMetadata().Classes).Stats()
			if err != nil {
				return err
			}
			return printSplitStats(cmd.OutOrStdout(), stats, model.DefaultMetadata().Classes)
		},
	}
	return cmd
}

func printSplitStats(out io.Writer, stats []dataset.SplitStats, labels []string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprint(w, "SPLIT")
	for _, l := range labels {
		fmt.Fprintf(w, "\t%s", l)
	}
	fmt.Fprintln(w, "\tTOTAL")

	for _, s := range stats {
		fmt.Fprint(w, s.Split)
		for _, l := range labels {
			fmt.Fprintf(w, "\t%d", s.ByLabel[l])
		}
		fmt.Fprintf(w, "\t%d\n", s.Total)
	}
	return w.Flush()
}
