package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/logguard/pkg/features"
	lio "github.com/hed1ad/logguard/pkg/io"
	"github.com/hed1ad/logguard/pkg/io/csv"
	"github.com/hed1ad/logguard/pkg/io/sqlite"
	"github.com/hed1ad/logguard/pkg/pipeline"
)

func newScoreCmd(a *app) *cobra.Command {
	var (
		output     string
		schemaName string
	)

	cmd := &cobra.Command{
		Use:   "score <features.csv>",
		Short: "Score a feature table with the saved model and explain anomalies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scalerPath, modelPath := a.artifactPaths(schemaName)
			m, err := pipeline.Load(scalerPath, modelPath)
			if err != nil {
				return err
			}
			table, err := csv.ReadFile(args[0], m.Schema)
			if err != nil {
				return err
			}
			res, err := a.score(cmd.Context(), m, table, output)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "report.csv", "report CSV to write")
	cmd.Flags().StringVar(&schemaName, "schema", features.HTTP.Name, "which saved model to use (http or auth)")
	return cmd
}

// score runs m over table and writes the report to output and, when
// configured, to the SQLite store.
func (a *app) score(ctx context.Context, m *pipeline.Model, table *features.Table, output string) (*pipeline.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := pipeline.NewScorer(m, a.pcfg, a.pipelineOptions()...)
	if err != nil {
		return nil, err
	}
	res, err := s.Score(table)
	if err != nil {
		return nil, err
	}

	writers := make([]lio.ReportWriter, 0, 2)
	w, err := csv.CreateReport(output)
	if err != nil {
		return nil, err
	}
	writers = append(writers, w)
	if path := a.cfg.Report.SQLitePath; path != "" {
		st, err := sqlite.Open(path)
		if err != nil {
			w.Close()
			return nil, err
		}
		writers = append(writers, st)
	}

	for _, w := range writers {
		if err = w.WriteReport(ctx, res); err != nil {
			break
		}
	}
	for _, w := range writers {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return nil, err
	}
	a.logger.Info("report written", zap.String("output", output), zap.Int("anomalies", len(res.Anomalies())))
	return res, nil
}

func printSummary(out io.Writer, res *pipeline.Result) {
	s := res.Summarize()
	fmt.Fprintf(out, "Scored %d rows: %d anomalies (%.2f%%)\n", s.Total, s.Anomalies, 100*s.Rate)
	if len(s.Reasons) > 0 {
		fmt.Fprintln(out, "Top reasons:")
		for i, rc := range s.Reasons {
			if i == 5 {
				break
			}
			fmt.Fprintf(out, "  %5d  %s\n", rc.Count, rc.Reason)
		}
	}
	if s.HasGroundTruth {
		fmt.Fprintf(out, "Ground truth accuracy: %.4f\n", s.GroundTruthAccuracy)
	}
}
