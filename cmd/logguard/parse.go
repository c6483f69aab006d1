package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/logguard/pkg/features"
	"github.com/hed1ad/logguard/pkg/io/accesslog"
	"github.com/hed1ad/logguard/pkg/io/csv"
)

func newParseCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "parse <access.log>",
		Short: "Parse a Combined Log Format file into raw access records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := accesslog.Open(args[0], accesslog.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer r.Close()

			start := time.Now()
			recs, err := r.ReadRecords()
			if err != nil {
				return err
			}
			a.metrics.ObserveStage("raw", "parse", len(recs), time.Since(start))

			err = csv.CreateFile(output, func(w io.Writer) error {
				return csv.WriteRecords(w, recs)
			})
			if err != nil {
				return err
			}
			a.logger.Info("access log parsed",
				zap.String("input", args[0]),
				zap.String("output", output),
				zap.Int("records", len(recs)),
				zap.Int("skipped", r.Skipped()))
			fmt.Fprintf(cmd.OutOrStdout(), "Parsed %d records (%d lines skipped) -> %s\n", len(recs), r.Skipped(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "access_log.csv", "raw record CSV to write")
	return cmd
}

func newExtractCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "extract <access_log.csv>",
		Short: "Convert raw access records into HTTP features",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := csv.OpenRecords(args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			recs, err := r.ReadRecords()
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			start := time.Now()
			ext := features.NewExtractor(a.pcfg.Thresholds).Extract(recs)
			a.metrics.ObserveStage(features.HTTP.Name, "extract", len(recs), time.Since(start))
			for _, e := range ext.Errors {
				a.logger.Warn("record kept with invalid time", zap.Error(e))
			}

			err = csv.CreateFile(output, func(w io.Writer) error {
				return csv.WriteTable(w, ext.Table)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d rows (%d with invalid timestamps) -> %s\n",
				ext.Table.Len(), len(ext.Errors), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "features.csv", "feature CSV to write")
	return cmd
}
