package evaluate

import (
	"fmt"
	"io"
	"strings"
)

// Caveat is printed with every report.
const Caveat = "Note: heuristic labels are rule-based approximations, not verified ground truth.\n" +
	"Accuracy here measures agreement with the heuristic policy, not detection quality."

// Report is the textual evaluation of one scored batch.
type Report struct {
	Title  string
	Policy string
	// Metrics compares heuristic labels (reference) with model verdicts.
	Metrics *Metrics
	// GroundTruth compares injected attack labels with model verdicts.
	// Nil when the batch carries no ground truth.
	GroundTruth *Metrics
}

// NewReport evaluates verdicts against heuristic labels and, when given,
// ground truth.
func NewReport(policy string, labels, verdicts, groundTruth []int) (*Report, error) {
	m, err := Compute(labels, verdicts)
	if err != nil {
		return nil, fmt.Errorf("heuristic labels: %w", err)
	}
	r := &Report{
		Title:   "SOC Log Anomaly Detection Evaluation Report",
		Policy:  policy,
		Metrics: m,
	}
	if groundTruth != nil {
		gt, err := Compute(groundTruth, verdicts)
		if err != nil {
			return nil, fmt.Errorf("ground truth: %w", err)
		}
		r.GroundTruth = gt
	}
	return r, nil
}

// String renders the report.
func (r *Report) String() string {
	var b strings.Builder
	m := r.Metrics

	fmt.Fprintf(&b, "%s\n%s\n\n", r.Title, strings.Repeat("=", 55))

	b.WriteString("Dataset Statistics:\n")
	fmt.Fprintf(&b, "Total samples: %d\n", m.Total)
	fmt.Fprintf(&b, "Heuristic policy: %s\n", r.Policy)
	fmt.Fprintf(&b, "Normal samples: %d (%.2f%%)\n", m.Total-m.Positives(), pct(m.Total-m.Positives(), m.Total))
	fmt.Fprintf(&b, "Suspicious samples (heuristic): %d (%.2f%%)\n\n", m.Positives(), pct(m.Positives(), m.Total))

	b.WriteString("Isolation Forest Results:\n")
	fmt.Fprintf(&b, "Detected anomalies: %d (%.2f%%)\n", m.Detected(), pct(m.Detected(), m.Total))
	fmt.Fprintf(&b, "Accuracy: %.4f\n\n", m.Accuracy)
	b.WriteString(m.ClassificationReport())

	if r.GroundTruth != nil {
		b.WriteString("\nGround Truth (synthetic attacks):\n")
		fmt.Fprintf(&b, "Injected attacks: %d\n", r.GroundTruth.Positives())
		fmt.Fprintf(&b, "Attack detection accuracy: %.4f\n\n", r.GroundTruth.Accuracy)
		b.WriteString(r.GroundTruth.ClassificationReport())
	}

	b.WriteString("\n")
	b.WriteString(Caveat)
	b.WriteString("\n")
	return b.String()
}

// WriteTo writes the rendered report to w.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, r.String())
	return int64(n), err
}

// ClassificationReport renders per-class precision, recall, F1 and support.
func (m *Metrics) ClassificationReport() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%12s %10s %10s %10s %10s\n\n", "", "precision", "recall", "f1-score", "support")
	for _, c := range m.Classes {
		writeRow(&b, c)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%12s %10s %10s %10.2f %10d\n", "accuracy", "", "", m.Accuracy, m.Total)
	writeRow(&b, m.MacroAvg)
	writeRow(&b, m.WeightedAvg)
	return b.String()
}

func writeRow(b *strings.Builder, c ClassMetrics) {
	fmt.Fprintf(b, "%12s %10.2f %10.2f %10.2f %10d\n", c.Name, c.Precision, c.Recall, c.F1, c.Support)
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}
