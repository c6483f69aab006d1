// Package detectors provides unsupervised anomaly detection algorithms.
package detectors

import "errors"

var (
	// ErrUntrainedModel is returned when scoring before Fit or Load.
	ErrUntrainedModel = errors.New("model not trained")
	// ErrEmptyData is returned when Fit receives no samples.
	ErrEmptyData = errors.New("empty training data")
)

// Detector is the common interface for all anomaly detection algorithms.
type Detector interface {
	// Fit trains the detector on a sample.
	// data is a 2D slice where each row is a sample and each column is a feature.
	Fit(data [][]float64) error

	// ScoreSamples returns one score per sample. Lower is more anomalous.
	ScoreSamples(data [][]float64) ([]float64, error)

	// DecisionFunction returns scores shifted by the fitted threshold.
	// Negative values are anomalous.
	DecisionFunction(data [][]float64) ([]float64, error)

	// Predict reports, per sample, whether it is anomalous.
	Predict(data [][]float64) ([]bool, error)

	// Save serializes the trained model to bytes.
	Save() ([]byte, error)

	// Load deserializes a trained model from bytes.
	Load(data []byte) error
}

// Config holds common configuration for detectors.
type Config struct {
	// Estimators is the ensemble size.
	Estimators int
	// MaxSamples bounds the subsample drawn for each estimator.
	MaxSamples int
	// Contamination is the expected proportion of anomalies in training data.
	Contamination float64
	// RandomSeed for reproducibility.
	RandomSeed int64
	// Workers bounds fit parallelism. Zero means GOMAXPROCS.
	Workers int
}

// DefaultConfig returns sensible defaults for detector configuration.
func DefaultConfig() Config {
	return Config{
		Estimators:    150,
		MaxSamples:    256,
		Contamination: 0.02,
		RandomSeed:    42,
	}
}
