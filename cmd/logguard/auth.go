package main

import (
	"errors"
	"io/fs"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/logguard/pkg/features"
	"github.com/hed1ad/logguard/pkg/io/authlog"
	"github.com/hed1ad/logguard/pkg/pipeline"
)

func newAuthCmd(a *app) *cobra.Command {
	var (
		output  string
		retrain bool
	)

	cmd := &cobra.Command{
		Use:   "auth <events.jsonl>",
		Short: "Detect anomalous authentication events",
		Long: "Reads JSON-lines authentication events, trains the auth model when asked\n" +
			"to or when none is saved yet, and scores every event.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := authlog.ReadFile(cmd.Context(), args[0], authlog.WithLogger(a.logger))
			if err != nil {
				return err
			}

			start := time.Now()
			ext := features.NewExtractor(a.pcfg.Thresholds).ExtractAuth(events)
			a.metrics.ObserveStage(features.Auth.Name, "extract", len(events), time.Since(start))
			for _, e := range ext.Errors {
				a.logger.Warn("event kept with invalid time", zap.Error(e))
			}

			var m *pipeline.Model
			if !retrain {
				scalerPath, modelPath := a.artifactPaths(features.Auth.Name)
				m, err = pipeline.Load(scalerPath, modelPath)
				if errors.Is(err, fs.ErrNotExist) {
					a.logger.Info("no saved auth model, training one")
					err = nil
				}
				if err != nil {
					return err
				}
			}
			if m == nil {
				if m, err = a.train(ext.Valid()); err != nil {
					return err
				}
			}

			res, err := a.score(cmd.Context(), m, ext.Table, output)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "auth_report.csv", "report CSV to write")
	cmd.Flags().BoolVar(&retrain, "train", false, "train a new auth model on these events before scoring")
	return cmd
}
