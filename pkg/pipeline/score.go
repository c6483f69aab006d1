package pipeline

import (
	"cmp"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/hed1ad/logguard/pkg/evaluate"
	"github.com/hed1ad/logguard/pkg/explain"
	"github.com/hed1ad/logguard/pkg/features"
	"github.com/hed1ad/logguard/pkg/heuristics"
)

// Verdict is the outcome for one row.
type Verdict struct {
	Anomaly bool
	// Score is the decision value; negative is anomalous.
	Score float64
	// Reason is set for anomalous rows only.
	Reason string
}

// Result is a scored batch. Table is the unscaled input.
type Result struct {
	RunID    string
	Table    *features.Table
	Verdicts []Verdict
	// Labels holds heuristic labels, or nil when the schema has no policy.
	Labels []int
	Policy heuristics.Policy
	// GroundTruth is set when the input carried a ground_truth column.
	GroundTruth []int
}

// Empty reports whether the batch had no rows.
func (r *Result) Empty() bool {
	return len(r.Verdicts) == 0
}

// Flags returns verdicts as 0/1.
func (r *Result) Flags() []int {
	out := make([]int, len(r.Verdicts))
	for i, v := range r.Verdicts {
		if v.Anomaly {
			out[i] = 1
		}
	}
	return out
}

// Anomalies returns the indices of anomalous rows.
func (r *Result) Anomalies() []int {
	var idx []int
	for i, v := range r.Verdicts {
		if v.Anomaly {
			idx = append(idx, i)
		}
	}
	return idx
}

// Evaluation compares the verdicts with the heuristic labels.
func (r *Result) Evaluation() (*evaluate.Report, error) {
	if r.Labels == nil {
		return nil, fmt.Errorf("%s batch has no heuristic labels", r.Table.Schema.Name)
	}
	return evaluate.NewReport(string(r.Policy), r.Labels, r.Flags(), r.GroundTruth)
}

// Scorer applies a loaded model to batches. It holds no per-batch state.
type Scorer struct {
	model     *Model
	explainer *explain.Engine
	labeler   *heuristics.Labeler
	opts      options
}

// NewScorer returns a scorer for m. HTTP batches are also labeled with the
// configured heuristic policy.
func NewScorer(m *Model, cfg Config, opts ...Option) (*Scorer, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	s := &Scorer{
		model:     m,
		explainer: explain.ForSchema(m.Schema, cfg.Thresholds),
		opts:      buildOptions(opts),
	}
	if m.Schema.Name == features.HTTP.Name {
		l, err := heuristics.New(cfg.Policy, cfg.Thresholds)
		if err != nil {
			return nil, err
		}
		s.labeler = l
	}
	return s, nil
}

// Score scales t with the model's fitted statistics, flags rows below the
// fitted threshold and explains each flagged row. An empty batch yields an
// empty result.
func (s *Scorer) Score(t *features.Table) (*Result, error) {
	schema := s.model.Schema.Name
	res := &Result{RunID: s.model.RunID, Table: t}
	if s.labeler != nil {
		res.Policy = s.labeler.Policy()
	}

	if t == nil || t.Len() == 0 {
		s.opts.logger.Info("empty batch, scoring skipped", zap.String("schema", schema))
		if t == nil {
			res.Table = features.NewTable(s.model.Schema, 0)
		}
		if s.labeler != nil {
			res.Labels = []int{}
		}
		return res, nil
	}

	var decision []float64
	err := s.opts.stage(schema, "score", t.Len(), func() error {
		scaled, err := s.model.Scaler.Transform(t)
		if err != nil {
			return err
		}
		decision, err = s.model.Forest.DecisionFunction(scaled.Rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	res.Verdicts = make([]Verdict, t.Len())
	_ = s.opts.stage(schema, "explain", t.Len(), func() error {
		for i, d := range decision {
			v := Verdict{Score: d, Anomaly: d < 0}
			if v.Anomaly {
				v.Reason = s.explainer.Explain(t.Row(i))
			}
			res.Verdicts[i] = v
		}
		return nil
	})

	if s.labeler != nil {
		res.Labels = s.labeler.LabelTable(t)
	}
	if gt, ok := t.Extra(features.GroundTruth); ok {
		res.GroundTruth = make([]int, len(gt))
		for i, v := range gt {
			if v != 0 {
				res.GroundTruth[i] = 1
			}
		}
	}

	flagged := len(res.Anomalies())
	s.opts.observer.ObserveVerdicts(schema, t.Len(), flagged)
	s.opts.logger.Info("batch scored",
		zap.String("schema", schema),
		zap.String("run_id", s.model.RunID),
		zap.Int("rows", t.Len()),
		zap.Int("anomalies", flagged))
	return res, nil
}

// ReasonCount is how many anomalies share a reason.
type ReasonCount struct {
	Reason string
	Count  int
}

// Summary condenses a result for display.
type Summary struct {
	Total     int
	Anomalies int
	Rate      float64
	// Reasons is sorted by count, descending.
	Reasons []ReasonCount
	// ByHour and ByDay count anomalies per calendar slot; invalid
	// timestamps are counted under InvalidTime.
	ByHour map[int]int
	ByDay  map[int]int
	// GroundTruthAccuracy is the share of rows where the verdict equals
	// the injected label. Only meaningful when HasGroundTruth.
	GroundTruthAccuracy float64
	HasGroundTruth      bool
}

// Summarize counts anomalies by reason and by calendar slot.
func (r *Result) Summarize() Summary {
	s := Summary{
		Total:  len(r.Verdicts),
		ByHour: make(map[int]int),
		ByDay:  make(map[int]int),
	}

	reasons := make(map[string]int)
	for i, v := range r.Verdicts {
		if !v.Anomaly {
			continue
		}
		s.Anomalies++
		reasons[v.Reason]++
		row := r.Table.Row(i)
		if h, ok := row.Get(features.Hour); ok {
			s.ByHour[int(h)]++
		}
		if d, ok := row.Get(features.Day); ok {
			s.ByDay[int(d)]++
		}
	}
	if s.Total > 0 {
		s.Rate = float64(s.Anomalies) / float64(s.Total)
	}

	for reason, n := range reasons {
		s.Reasons = append(s.Reasons, ReasonCount{Reason: reason, Count: n})
	}
	slices.SortFunc(s.Reasons, func(a, b ReasonCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Reason, b.Reason)
	})

	if r.GroundTruth != nil {
		if acc, err := evaluate.Agreement(r.GroundTruth, r.Flags()); err == nil {
			s.GroundTruthAccuracy = acc
			s.HasGroundTruth = true
		}
	}
	return s
}
