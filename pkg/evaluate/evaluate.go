// Package evaluate measures agreement between heuristic labels and model
// verdicts and renders the evaluation report.
package evaluate

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// ErrLengthMismatch is returned when label and prediction counts differ.
var ErrLengthMismatch = errors.New("labels and predictions differ in length")

// ClassMetrics are the per-class classification figures.
type ClassMetrics struct {
	Name      string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Metrics treats the reference labels as ground truth for a binary task.
type Metrics struct {
	Total int
	// Confusion is indexed [reference][predicted].
	Confusion   [2][2]int
	Accuracy    float64
	Classes     [2]ClassMetrics
	MacroAvg    ClassMetrics
	WeightedAvg ClassMetrics
}

// Compute builds metrics for reference labels against predictions. Values
// other than 0 are treated as 1.
func Compute(reference, predicted []int) (*Metrics, error) {
	if len(reference) != len(predicted) {
		return nil, fmt.Errorf("%w: %d labels, %d predictions", ErrLengthMismatch, len(reference), len(predicted))
	}

	m := &Metrics{Total: len(reference)}
	correct := 0
	for i := range reference {
		r, p := binary(reference[i]), binary(predicted[i])
		m.Confusion[r][p]++
		if r == p {
			correct++
		}
	}
	if m.Total > 0 {
		m.Accuracy = float64(correct) / float64(m.Total)
	}

	var precision, recall, f1, support [2]float64
	for c := 0; c < 2; c++ {
		tp := m.Confusion[c][c]
		predictedC := m.Confusion[0][c] + m.Confusion[1][c]
		actualC := m.Confusion[c][0] + m.Confusion[c][1]

		cm := ClassMetrics{Name: fmt.Sprint(c), Support: actualC}
		cm.Precision = ratio(tp, predictedC)
		cm.Recall = ratio(tp, actualC)
		if cm.Precision+cm.Recall > 0 {
			cm.F1 = 2 * cm.Precision * cm.Recall / (cm.Precision + cm.Recall)
		}
		m.Classes[c] = cm

		precision[c], recall[c], f1[c], support[c] = cm.Precision, cm.Recall, cm.F1, float64(actualC)
	}

	m.MacroAvg = ClassMetrics{
		Name:      "macro avg",
		Precision: stat.Mean(precision[:], nil),
		Recall:    stat.Mean(recall[:], nil),
		F1:        stat.Mean(f1[:], nil),
		Support:   m.Total,
	}
	m.WeightedAvg = ClassMetrics{Name: "weighted avg", Support: m.Total}
	if m.Total > 0 {
		m.WeightedAvg.Precision = stat.Mean(precision[:], support[:])
		m.WeightedAvg.Recall = stat.Mean(recall[:], support[:])
		m.WeightedAvg.F1 = stat.Mean(f1[:], support[:])
	}

	return m, nil
}

// Positives returns how many reference labels are 1.
func (m *Metrics) Positives() int {
	return m.Confusion[1][0] + m.Confusion[1][1]
}

// Detected returns how many predictions are 1.
func (m *Metrics) Detected() int {
	return m.Confusion[0][1] + m.Confusion[1][1]
}

// Agreement returns the fraction of rows where a and b agree, or 0 for
// empty input.
func Agreement(a, b []int) (float64, error) {
	m, err := Compute(a, b)
	if err != nil {
		return 0, err
	}
	return m.Accuracy, nil
}

func binary(v int) int {
	if v != 0 {
		return 1
	}
	return 0
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
