package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hed1ad/logguard/pkg/artifact"
	"github.com/hed1ad/logguard/pkg/detectors"
	"github.com/hed1ad/logguard/pkg/detectors/iforest"
	"github.com/hed1ad/logguard/pkg/features"
	"github.com/hed1ad/logguard/pkg/scaler"
)

// Model is a fitted scaler and forest from one training run. It is
// read-only once built and may be shared by concurrent scorers.
type Model struct {
	RunID   string
	Schema  features.Schema
	Scaler  *scaler.Scaler
	Forest  *iforest.IsolationForest
	Created time.Time
}

// Train fits a model on a bounded sample of t. The scaler is fit once on
// the sample and the forest on the scaled sample; the full population is
// only ever transformed with those statistics at scoring time.
func Train(t *features.Table, cfg Config, opts ...Option) (*Model, error) {
	o := buildOptions(opts)
	if t == nil || t.Len() == 0 {
		return nil, ErrEmptyBatch
	}
	schema := t.Schema.Name
	seed := cfg.Detector.RandomSeed

	var sample *features.Table
	_ = o.stage(schema, "sample", t.Len(), func() error {
		sample = t.Sample(cfg.TrainSize, seed)
		return nil
	})
	o.logger.Info("training sample drawn",
		zap.String("schema", schema),
		zap.Int("population", t.Len()),
		zap.Int("sample", sample.Len()),
		zap.Int64("seed", seed))

	var (
		sc     *scaler.Scaler
		scaled *features.Table
	)
	err := o.stage(schema, "scale", sample.Len(), func() error {
		var err error
		if sc, err = scaler.Fit(sample, scaler.WithMaxRows(cfg.TrainSize), scaler.WithSeed(seed)); err != nil {
			return err
		}
		scaled, err = sc.Transform(sample)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}

	forest := iforest.New(iforest.WithConfig(cfg.Detector))
	err = o.stage(schema, "fit", scaled.Len(), func() error {
		return forest.Fit(scaled.Rows)
	})
	if err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	m := &Model{
		RunID:   artifact.NewRunID(),
		Schema:  t.Schema,
		Scaler:  sc,
		Forest:  forest,
		Created: time.Now().UTC(),
	}
	o.logger.Info("model trained",
		zap.String("run_id", m.RunID),
		zap.String("schema", schema),
		zap.Int("trees", cfg.Detector.Estimators),
		zap.Float64("contamination", cfg.Detector.Contamination),
		zap.Float64("offset", forest.Offset()))
	return m, nil
}

// Save writes the scaler and forest as a pair of artifacts.
func (m *Model) Save(scalerPath, forestPath string) error {
	scalerState, err := m.Scaler.Save()
	if err != nil {
		return fmt.Errorf("save scaler: %w", err)
	}
	forestState, err := m.Forest.Save()
	if err != nil {
		return fmt.Errorf("save forest: %w", err)
	}

	h := artifact.Header{RunID: m.RunID, Schema: m.Schema.Name, Created: m.Created}
	h.Kind = artifact.KindScaler
	if err := artifact.WriteFile(scalerPath, h, scalerState); err != nil {
		return err
	}
	h.Kind = artifact.KindForest
	return artifact.WriteFile(forestPath, h, forestState)
}

// Load reads a scaler and forest written by Save and verifies that they
// belong to the same training run.
func Load(scalerPath, forestPath string) (*Model, error) {
	sh, scalerState, err := artifact.ReadFile(scalerPath, artifact.KindScaler)
	if err != nil {
		return nil, err
	}
	fh, forestState, err := artifact.ReadFile(forestPath, artifact.KindForest)
	if err != nil {
		return nil, err
	}
	if err := artifact.CheckPair(sh, fh); err != nil {
		return nil, err
	}

	schema, err := features.Lookup(sh.Schema)
	if err != nil {
		return nil, err
	}
	sc, err := scaler.Load(scalerState)
	if err != nil {
		return nil, err
	}
	if err := schema.Check(sc.Columns); err != nil {
		return nil, fmt.Errorf("scaler columns: %w", err)
	}

	forest := iforest.New()
	if err := forest.Load(forestState); err != nil {
		return nil, err
	}
	if n := forest.NumFeatures(); n != schema.Len() {
		return nil, fmt.Errorf("forest fitted on %d features, %s schema has %d: %w",
			n, schema.Name, schema.Len(), features.ErrSchemaMismatch)
	}

	return &Model{
		RunID:   sh.RunID,
		Schema:  schema,
		Scaler:  sc,
		Forest:  forest,
		Created: sh.Created,
	}, nil
}

func (m *Model) ready() error {
	if m == nil || m.Scaler == nil || m.Forest == nil || !m.Forest.Trained() {
		return detectors.ErrUntrainedModel
	}
	return nil
}
