package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/logguard/pkg/features"
	"github.com/hed1ad/logguard/pkg/heuristics"
	lio "github.com/hed1ad/logguard/pkg/io"
	"github.com/hed1ad/logguard/pkg/pipeline"
)

var _ lio.ReportWriter = (*Store)(nil)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testResult(t *testing.T) *pipeline.Result {
	t.Helper()
	table := features.NewTable(features.HTTP, 4)
	for i := 0; i < 4; i++ {
		require.NoError(t, table.Append(make([]float64, features.HTTP.Len())))
	}
	return &pipeline.Result{
		RunID:  "3b7e1c56-8a4f-4c9e-9d8a-0f5b2a1c7e42",
		Table:  table,
		Policy: heuristics.Strict,
		Verdicts: []pipeline.Verdict{
			{Score: 0.12},
			{Anomaly: true, Score: -0.08, Reason: "Admin endpoint access"},
			{Score: 0.03},
			{Anomaly: true, Score: -0.21, Reason: "Admin endpoint access"},
		},
	}
}

func TestSaveBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.now = func() time.Time { return time.Date(2024, 3, 12, 14, 30, 0, 0, time.UTC) }

	id, err := s.SaveBatch(ctx, testResult(t))
	require.NoError(t, err)
	assert.Positive(t, id)

	batches, err := s.Batches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	b := batches[0]
	assert.Equal(t, id, b.ID)
	assert.Equal(t, features.HTTP.Name, b.Schema)
	assert.Equal(t, "strict", b.Policy)
	assert.Equal(t, 4, b.Rows)
	assert.Equal(t, 2, b.Anomalies)
	assert.True(t, b.ScoredAt.Equal(s.now()))

	anomalies, err := s.Anomalies(ctx, id)
	require.NoError(t, err)
	require.Len(t, anomalies, 2)
	assert.Equal(t, 1, anomalies[0].Row)
	assert.Equal(t, 3, anomalies[1].Row)
	assert.True(t, anomalies[1].Anomaly)
	assert.InDelta(t, -0.21, anomalies[1].Score, 1e-12)
	assert.Nil(t, anomalies[0].GroundTruth)

	reasons, err := s.ReasonSummary(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []ReasonCount{{Reason: "Admin endpoint access", Count: 2}}, reasons)
}

func TestGroundTruthStored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := testResult(t)
	res.GroundTruth = []int{0, 1, 0, 0}
	require.NoError(t, s.WriteReport(ctx, res))

	batches, err := s.Batches(ctx, 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	anomalies, err := s.Anomalies(ctx, batches[0].ID)
	require.NoError(t, err)
	require.Len(t, anomalies, 2)
	require.NotNil(t, anomalies[0].GroundTruth)
	assert.Equal(t, 1, *anomalies[0].GroundTruth)
	assert.Equal(t, 0, *anomalies[1].GroundTruth)
}

func TestBatchesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.SaveBatch(ctx, testResult(t))
	require.NoError(t, err)
	second, err := s.SaveBatch(ctx, testResult(t))
	require.NoError(t, err)

	batches, err := s.Batches(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, second, batches[0].ID)
	assert.Greater(t, second, first)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.SaveBatch(ctx, testResult(t))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	batches, err := s.Batches(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, batches, 1)
}

func TestInMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteReport(context.Background(), testResult(t)))
	batches, err := s.Batches(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, batches, 1)
}
