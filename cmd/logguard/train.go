package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/logguard/pkg/features"
	"github.com/hed1ad/logguard/pkg/io/csv"
	"github.com/hed1ad/logguard/pkg/pipeline"
)

// authPrefix distinguishes auth artifacts from HTTP ones in the same
// directory.
const authPrefix = "auth_"

// artifactPaths returns the scaler and model paths for schema.
func (a *app) artifactPaths(schema string) (scalerPath, modelPath string) {
	if schema == features.Auth.Name {
		dir := a.cfg.Artifacts.Dir
		return filepath.Join(dir, authPrefix+a.cfg.Artifacts.Scaler), filepath.Join(dir, authPrefix+a.cfg.Artifacts.Model)
	}
	return a.cfg.ScalerPath(), a.cfg.ModelPath()
}

func (a *app) train(table *features.Table) (*pipeline.Model, error) {
	valid := table.DropInvalidTime()
	if dropped := table.Len() - valid.Len(); dropped > 0 {
		a.logger.Warn("rows with invalid timestamps excluded from training", zap.Int("rows", dropped))
	}
	m, err := pipeline.Train(valid, a.pcfg, a.pipelineOptions()...)
	if err != nil {
		return nil, err
	}
	scalerPath, modelPath := a.artifactPaths(m.Schema.Name)
	if err := m.Save(scalerPath, modelPath); err != nil {
		return nil, err
	}
	a.logger.Info("model saved",
		zap.String("run_id", m.RunID),
		zap.String("scaler", scalerPath),
		zap.String("model", modelPath))
	return m, nil
}

func newTrainCmd(a *app) *cobra.Command {
	var (
		schemaName string
		report     string
	)

	cmd := &cobra.Command{
		Use:   "train <features.csv>",
		Short: "Fit the scaler and isolation forest on a feature table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := features.Lookup(schemaName)
			if err != nil {
				return err
			}
			table, err := csv.ReadFile(args[0], schema)
			if err != nil {
				return err
			}
			m, err := a.train(table)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Trained %s model %s on %d rows\n", m.Schema.Name, m.RunID, m.Scaler.Rows)

			if schema.Name != features.HTTP.Name || report == "" {
				return nil
			}
			s, err := pipeline.NewScorer(m, a.pcfg, a.pipelineOptions()...)
			if err != nil {
				return err
			}
			res, err := s.Score(table.DropInvalidTime())
			if err != nil {
				return err
			}
			ev, err := res.Evaluation()
			if err != nil {
				return err
			}
			if err := os.WriteFile(report, []byte(ev.String()), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(out, "Evaluation report -> %s\n", report)
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaName, "schema", features.HTTP.Name, "feature schema (http or auth)")
	cmd.Flags().StringVar(&report, "report", "evaluation_report.txt", "evaluation report for the training data; empty disables")
	return cmd
}
