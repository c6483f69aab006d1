package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hed1ad/logguard/pkg/evaluate"
	"github.com/hed1ad/logguard/pkg/features"
	"github.com/hed1ad/logguard/pkg/heuristics"
	"github.com/hed1ad/logguard/pkg/io/csv"
)

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		output string
		policy string
	)

	cmd := &cobra.Command{
		Use:   "evaluate <report.csv>",
		Short: "Compare a scored HTTP report with heuristic labels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.pcfg.Policy
			if policy != "" {
				var err error
				if p, err = heuristics.ParsePolicy(policy); err != nil {
					return err
				}
			}
			l, err := heuristics.New(p, a.pcfg.Thresholds)
			if err != nil {
				return err
			}

			table, err := csv.ReadFile(args[0], features.HTTP)
			if err != nil {
				return err
			}
			flags, ok := table.Extra(features.AnomalyColumn)
			if !ok {
				return fmt.Errorf("%s: no %s column; run score first", args[0], features.AnomalyColumn)
			}
			var truth []int
			if gt, ok := table.Extra(features.GroundTruth); ok {
				truth = binary(gt)
			}

			r, err := evaluate.NewReport(string(p), l.LabelTable(table), binary(flags), truth)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = r.WriteTo(cmd.OutOrStdout())
				return err
			}
			if err := os.WriteFile(output, []byte(r.String()), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Evaluation report -> %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().StringVar(&policy, "policy", "", "heuristic policy (basic or strict); defaults to heuristics.policy")
	return cmd
}

func binary(col []float64) []int {
	out := make([]int, len(col))
	for i, v := range col {
		if v != 0 {
			out[i] = 1
		}
	}
	return out
}
