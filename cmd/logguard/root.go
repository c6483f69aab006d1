package main

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/logguard/internal/config"
	"github.com/hed1ad/logguard/internal/logging"
	"github.com/hed1ad/logguard/internal/metrics"
	"github.com/hed1ad/logguard/pkg/pipeline"
)

// app carries state shared by all commands of one invocation.
type app struct {
	configPath string
	logLevel   string

	cfg      *config.Config
	pcfg     pipeline.Config
	logger   *zap.Logger
	closeLog func() error
	metrics  *metrics.Recorder

	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{stdout: out, stderr: errOut, logger: zap.NewNop()}

	cmd := &cobra.Command{
		Use:           "logguard",
		Short:         "Unsupervised anomaly detection for web access and authentication logs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown()
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML configuration file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	cmd.AddCommand(
		newParseCmd(a),
		newExtractCmd(a),
		newTrainCmd(a),
		newScoreCmd(a),
		newEvaluateCmd(a),
		newInjectCmd(a),
		newAuthCmd(a),
		newConfigCmd(a),
	)
	return cmd
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Check(); err != nil {
		return err
	}
	pcfg, err := cfg.Pipeline()
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Logging, logging.WithOutput(a.stderr))
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.pcfg = pcfg
	a.logger = logger
	a.closeLog = closeLog
	a.metrics = metrics.New()
	return nil
}

func (a *app) teardown() error {
	var err error
	if a.cfg != nil && a.cfg.Metrics.Textfile != "" {
		if err = a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			a.logger.Error("write metrics textfile", zap.String("path", a.cfg.Metrics.Textfile), zap.Error(err))
		}
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
	return err
}

func (a *app) pipelineOptions() []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithObserver(a.metrics),
	}
}
