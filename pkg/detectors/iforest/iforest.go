// Package iforest implements the Isolation Forest algorithm for anomaly detection.
package iforest

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/logguard/pkg/detectors"
)

// eulerGamma is the Euler-Mascheroni constant.
const eulerGamma = 0.5772156649

// autoOffset is the decision offset used when no contamination is declared.
const autoOffset = -0.5

var _ detectors.Detector = (*IsolationForest)(nil)

// IsolationForest implements unsupervised anomaly detection using isolation trees.
// A fitted forest is read-only and safe for concurrent scoring.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	sampleSize    int
	contamination float64
	seed          int64
	workers       int

	// Trained model
	trees     []tree
	psi       int
	nFeatures int
	offset    float64
	trained   bool
}

// tree is a flattened isolation tree. Fields are exported for gob.
type tree struct {
	Nodes []node
}

// node is an internal split or, when Left < 0, a leaf.
type node struct {
	Feature int
	Split   float64
	Left    int32
	Right   int32
	// Size is the number of samples that reached a leaf.
	Size int32
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies.
// Zero selects a fixed offset instead of a fitted one.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.seed = seed
	}
}

// WithWorkers bounds the number of trees built concurrently.
func WithWorkers(n int) Option {
	return func(f *IsolationForest) {
		f.workers = n
	}
}

// WithConfig applies a shared detector configuration.
func WithConfig(cfg detectors.Config) Option {
	return func(f *IsolationForest) {
		if cfg.Estimators > 0 {
			f.nTrees = cfg.Estimators
		}
		if cfg.MaxSamples > 0 {
			f.sampleSize = cfg.MaxSamples
		}
		f.contamination = cfg.Contamination
		f.seed = cfg.RandomSeed
		f.workers = cfg.Workers
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:        100,
		sampleSize:    256,
		contamination: 0.1,
		seed:          42,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fit trains the Isolation Forest on the provided data and sets the decision
// offset at the contamination quantile of the training scores. Trees are
// built in parallel, each from its own seed drawn in order from the forest
// seed, so the result does not depend on scheduling.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return detectors.ErrEmptyData
	}
	if f.nTrees <= 0 || f.sampleSize <= 0 {
		return fmt.Errorf("invalid forest size: %d trees of %d samples", f.nTrees, f.sampleSize)
	}
	if f.contamination < 0 || f.contamination > 0.5 {
		return fmt.Errorf("contamination %v outside [0, 0.5]", f.contamination)
	}

	nSamples := len(data)
	nFeatures := len(data[0])
	for i, row := range data {
		if len(row) != nFeatures {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), nFeatures)
		}
	}

	// Adjust sample size if needed
	psi := min(f.sampleSize, nSamples)
	maxDepth := 0
	if psi > 1 {
		maxDepth = int(math.Ceil(math.Log2(float64(psi))))
	}

	rng := rand.New(rand.NewSource(f.seed))
	seeds := make([]int64, f.nTrees)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	workers := f.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]tree, f.nTrees)
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range trees {
		i := i
		g.Go(func() error {
			r := rand.New(rand.NewSource(seeds[i]))
			// Sample without replacement
			idx := r.Perm(nSamples)[:psi]
			b := builder{data: data, nFeatures: nFeatures, maxDepth: maxDepth, rng: r}
			b.grow(idx, 0)
			trees[i] = tree{Nodes: b.nodes}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.trees = trees
	f.psi = psi
	f.nFeatures = nFeatures
	f.trained = true

	f.offset = autoOffset
	if f.contamination > 0 {
		scores := f.scoreSamples(data)
		f.offset = percentile(scores, 100*f.contamination)
	}

	return nil
}

// builder grows one tree over row indices of data.
type builder struct {
	data      [][]float64
	nFeatures int
	maxDepth  int
	rng       *rand.Rand
	nodes     []node
	spread    []int
}

func (b *builder) grow(idx []int, depth int) int32 {
	id := int32(len(b.nodes))
	b.nodes = append(b.nodes, node{Left: -1, Right: -1, Size: int32(len(idx))})

	// Terminal conditions
	if depth >= b.maxDepth || len(idx) <= 1 {
		return id
	}

	// Only features that vary among these samples can split them.
	b.spread = b.spread[:0]
	for j := 0; j < b.nFeatures; j++ {
		first := b.data[idx[0]][j]
		for _, i := range idx[1:] {
			if b.data[i][j] != first {
				b.spread = append(b.spread, j)
				break
			}
		}
	}
	if len(b.spread) == 0 {
		return id
	}

	// Random feature and split value
	feature := b.spread[b.rng.Intn(len(b.spread))]
	minVal, maxVal := b.data[idx[0]][feature], b.data[idx[0]][feature]
	for _, i := range idx[1:] {
		v := b.data[i][feature]
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	split := minVal + b.rng.Float64()*(maxVal-minVal)

	// Partition in place
	k := 0
	for j, i := range idx {
		if b.data[i][feature] < split {
			idx[k], idx[j] = idx[j], idx[k]
			k++
		}
	}

	left := b.grow(idx[:k], depth+1)
	right := b.grow(idx[k:], depth+1)
	b.nodes[id].Feature = feature
	b.nodes[id].Split = split
	b.nodes[id].Left = left
	b.nodes[id].Right = right
	return id
}

// pathLength returns the isolation depth of sample, extended at the leaf by
// the expected depth of the samples that remained there.
func (t *tree) pathLength(sample []float64) float64 {
	i, depth := int32(0), 0
	for {
		n := &t.Nodes[i]
		if n.Left < 0 {
			return float64(depth) + averagePathLength(float64(n.Size))
		}
		if sample[n.Feature] < n.Split {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, H(i) ~ ln(i) + gamma
	return 2*(math.Log(n-1)+eulerGamma) - 2*(n-1)/n
}

// ScoreSamples returns the negated isolation score 2^(-E[h(x)]/c(psi)) of
// each sample, in [-1, 0]. Lower is more anomalous.
func (f *IsolationForest) ScoreSamples(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.check(data); err != nil {
		return nil, err
	}
	return f.scoreSamples(data), nil
}

// DecisionFunction returns ScoreSamples minus the fitted offset. Negative
// values are anomalous.
func (f *IsolationForest) DecisionFunction(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.check(data); err != nil {
		return nil, err
	}
	scores := f.scoreSamples(data)
	for i := range scores {
		scores[i] -= f.offset
	}
	return scores, nil
}

// Predict reports whether each sample is anomalous.
func (f *IsolationForest) Predict(data [][]float64) ([]bool, error) {
	decision, err := f.DecisionFunction(data)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(decision))
	for i, d := range decision {
		out[i] = d < 0
	}
	return out, nil
}

func (f *IsolationForest) check(data [][]float64) error {
	if !f.trained {
		return detectors.ErrUntrainedModel
	}
	for i, row := range data {
		if len(row) != f.nFeatures {
			return fmt.Errorf("row %d has %d features, model expects %d", i, len(row), f.nFeatures)
		}
	}
	return nil
}

func (f *IsolationForest) scoreSamples(data [][]float64) []float64 {
	c := averagePathLength(float64(f.psi))
	scores := make([]float64, len(data))
	for i, sample := range data {
		// Average path length across all trees
		var total float64
		for t := range f.trees {
			total += f.trees[t].pathLength(sample)
		}
		avg := total / float64(len(f.trees))

		s := 1.0
		if c > 0 {
			s = math.Pow(2, -avg/c)
		}
		scores[i] = -s
	}
	return scores
}

// snapshot is the persisted form of a fitted forest.
type snapshot struct {
	NTrees        int
	SampleSize    int
	Contamination float64
	Seed          int64
	Psi           int
	NFeatures     int
	Offset        float64
	Trees         []tree
}

// Save serializes the trained model.
func (f *IsolationForest) Save() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, detectors.ErrUntrainedModel
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(snapshot{
		NTrees:        f.nTrees,
		SampleSize:    f.sampleSize,
		Contamination: f.contamination,
		Seed:          f.seed,
		Psi:           f.psi,
		NFeatures:     f.nFeatures,
		Offset:        f.offset,
		Trees:         f.trees,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load deserializes a trained model.
func (f *IsolationForest) Load(data []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return fmt.Errorf("decode forest: %w", err)
	}
	if len(s.Trees) == 0 || s.Psi <= 0 {
		return errors.New("decode forest: no trees")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nTrees = s.NTrees
	f.sampleSize = s.SampleSize
	f.contamination = s.Contamination
	f.seed = s.Seed
	f.psi = s.Psi
	f.nFeatures = s.NFeatures
	f.offset = s.Offset
	f.trees = s.Trees
	f.trained = true

	return nil
}

// Offset returns the fitted decision offset.
func (f *IsolationForest) Offset() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.offset
}

// Contamination returns the declared anomaly proportion.
func (f *IsolationForest) Contamination() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.contamination
}

// NumFeatures returns the sample width the forest was fitted on.
func (f *IsolationForest) NumFeatures() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.nFeatures
}

// Trained reports whether the forest has been fitted or loaded.
func (f *IsolationForest) Trained() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.trained
}

// percentile calculates the p-th percentile of the data with linear
// interpolation between closest ranks.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := slices.Clone(data)
	slices.Sort(sorted)

	rank := float64(len(sorted)-1) * p / 100
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (rank-float64(lo))*(sorted[hi]-sorted[lo])
}
