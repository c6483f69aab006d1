// Package synth builds labeled test data by appending synthetic attack rows
// to a feature table.
package synth

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/hed1ad/logguard/pkg/features"
)

// ErrTooFewRows is returned when the table cannot supply n distinct rows.
var ErrTooFewRows = errors.New("not enough rows to sample attacks from")

// Profile bounds the values written into attack rows. Ranges are half-open.
type Profile struct {
	RequestsMin  int
	RequestsMax  int
	BytesMin     int
	BytesMax     int
	URLLengthMin int
	URLLengthMax int
	// ServerErrorRate is the share of attacks with is_server_error set.
	ServerErrorRate float64
}

// DefaultProfile is a brute-force and exfiltration pattern: heavy request
// volume against admin executables with large POST transfers.
func DefaultProfile() Profile {
	return Profile{
		RequestsMin:     3000,
		RequestsMax:     8000,
		BytesMin:        20000,
		BytesMax:        90000,
		URLLengthMin:    80,
		URLLengthMax:    200,
		ServerErrorRate: 0.3,
	}
}

// Inject samples n rows of t with seed, rewrites them with the default
// attack profile and returns t followed by the attacks. The result carries a
// ground_truth column: 0 for the original rows and 1 for the attacks.
func Inject(t *features.Table, n int, seed int64) (*features.Table, error) {
	return InjectProfile(t, n, seed, DefaultProfile())
}

// InjectProfile is Inject with an explicit profile.
func InjectProfile(t *features.Table, n int, seed int64, p Profile) (*features.Table, error) {
	if t.Schema.Name != features.HTTP.Name {
		return nil, fmt.Errorf("inject into %s table: %w", t.Schema.Name, features.ErrSchemaMismatch)
	}
	if n <= 0 || n > t.Len() {
		return nil, fmt.Errorf("%w: want %d of %d", ErrTooFewRows, n, t.Len())
	}

	rng := rand.New(rand.NewSource(seed))
	base := t.Subset(rng.Perm(t.Len())[:n])

	out := features.NewTable(t.Schema, t.Len()+n)
	out.Rows = append(out.Rows, t.Rows...)

	col := func(name string) int { return t.Schema.Index(name) }
	for _, src := range base.Rows {
		row := append([]float64(nil), src...)
		row[col(features.RequestsPerIP)] = float64(between(rng, p.RequestsMin, p.RequestsMax))
		row[col(features.IsAdmin)] = 1
		row[col(features.IsExe)] = 1
		row[col(features.IsPost)] = 1
		row[col(features.IsGet)] = 0
		row[col(features.Bytes)] = float64(between(rng, p.BytesMin, p.BytesMax))
		row[col(features.LargeTransfer)] = 1
		row[col(features.URLLength)] = float64(between(rng, p.URLLengthMin, p.URLLengthMax))
		serverErr := 0.0
		if rng.Float64() < p.ServerErrorRate {
			serverErr = 1
		}
		row[col(features.IsServerError)] = serverErr
		row[col(features.IsError)] = serverErr
		out.Rows = append(out.Rows, row)
	}

	for name, vals := range t.Extras {
		if name == features.GroundTruth {
			continue
		}
		if extra, ok := base.Extra(name); ok {
			out.SetExtra(name, append(append([]float64(nil), vals...), extra...))
		}
	}
	gt := make([]float64, out.Len())
	for i := t.Len(); i < len(gt); i++ {
		gt[i] = 1
	}
	out.SetExtra(features.GroundTruth, gt)
	return out, nil
}

func between(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo)
}
