package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/logguard/pkg/features"
	"github.com/hed1ad/logguard/pkg/io/csv"
	"github.com/hed1ad/logguard/pkg/synth"
)

func newInjectCmd(a *app) *cobra.Command {
	var (
		output string
		n      int
		seed   int64
	)

	cmd := &cobra.Command{
		Use:   "inject <features.csv>",
		Short: "Append synthetic attack rows with ground truth labels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := csv.ReadFile(args[0], features.HTTP)
			if err != nil {
				return err
			}
			mixed, err := synth.Inject(table, n, seed)
			if err != nil {
				return err
			}
			err = csv.CreateFile(output, func(w io.Writer) error {
				return csv.WriteTable(w, mixed)
			})
			if err != nil {
				return err
			}
			a.logger.Info("attacks injected",
				zap.Int("base", table.Len()),
				zap.Int("attacks", n),
				zap.Int64("seed", seed))
			fmt.Fprintf(cmd.OutOrStdout(), "Injected %d attacks into %d rows -> %s\n", n, table.Len(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "attack_test.csv", "feature CSV with ground_truth to write")
	cmd.Flags().IntVarP(&n, "count", "n", 5000, "number of attack rows")
	cmd.Flags().Int64Var(&seed, "seed", 42, "sampling seed")
	return cmd
}
