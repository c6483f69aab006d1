package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/logguard/pkg/features"
)

func baseTable(t *testing.T, n int) *features.Table {
	t.Helper()
	table := features.NewTable(features.HTTP, n)
	for i := 0; i < n; i++ {
		require.NoError(t, table.Append([]float64{
			float64(i % 24), float64(i % 7), 500, 0, 0, 0, 11, 3, 0, 1, 0, 0,
		}))
	}
	return table
}

func TestInject(t *testing.T) {
	table := baseTable(t, 200)
	out, err := Inject(table, 50, 42)
	require.NoError(t, err)
	require.Equal(t, 250, out.Len())

	gt, ok := out.Extra(features.GroundTruth)
	require.True(t, ok)

	serverErrors := 0
	for i := 0; i < out.Len(); i++ {
		row := out.Row(i)
		if i < 200 {
			assert.Equal(t, 0.0, gt[i])
			assert.Equal(t, table.Rows[i], out.Rows[i])
			continue
		}
		assert.Equal(t, 1.0, gt[i])
		for _, name := range []string{features.IsAdmin, features.IsExe, features.IsPost, features.LargeTransfer} {
			assert.True(t, row.Flag(name), "%s on row %d", name, i)
		}
		assert.False(t, row.Flag(features.IsGet))

		rpi, _ := row.Get(features.RequestsPerIP)
		assert.GreaterOrEqual(t, rpi, 3000.0)
		assert.Less(t, rpi, 8000.0)
		bytes, _ := row.Get(features.Bytes)
		assert.GreaterOrEqual(t, bytes, 20000.0)
		assert.Less(t, bytes, 90000.0)
		urlLen, _ := row.Get(features.URLLength)
		assert.GreaterOrEqual(t, urlLen, 80.0)
		assert.Less(t, urlLen, 200.0)

		se, _ := row.Get(features.IsServerError)
		e, _ := row.Get(features.IsError)
		assert.Equal(t, se, e)
		if se == 1 {
			serverErrors++
		}
	}
	assert.Greater(t, serverErrors, 0)
	assert.Less(t, serverErrors, 50)
}

func TestInjectKeepsSampledCalendar(t *testing.T) {
	table := baseTable(t, 30)
	out, err := Inject(table, 30, 1)
	require.NoError(t, err)

	seen := make(map[float64]bool)
	for i := 30; i < out.Len(); i++ {
		h, _ := out.Row(i).Get(features.Hour)
		seen[h] = true
	}
	assert.Len(t, seen, 24, "every source row is used once")
}

func TestInjectDeterministic(t *testing.T) {
	table := baseTable(t, 100)
	a, err := Inject(table, 10, 7)
	require.NoError(t, err)
	b, err := Inject(table, 10, 7)
	require.NoError(t, err)
	assert.Equal(t, a.Rows, b.Rows)

	c, err := Inject(table, 10, 8)
	require.NoError(t, err)
	assert.NotEqual(t, a.Rows[100:], c.Rows[100:])
}

func TestInjectDoesNotModifyInput(t *testing.T) {
	table := baseTable(t, 20)
	before := make([][]float64, len(table.Rows))
	for i, r := range table.Rows {
		before[i] = append([]float64(nil), r...)
	}
	_, err := Inject(table, 20, 3)
	require.NoError(t, err)
	assert.Equal(t, before, table.Rows)
}

func TestInjectErrors(t *testing.T) {
	table := baseTable(t, 5)
	_, err := Inject(table, 6, 1)
	assert.ErrorIs(t, err, ErrTooFewRows)
	_, err = Inject(table, 0, 1)
	assert.ErrorIs(t, err, ErrTooFewRows)

	auth := features.NewTable(features.Auth, 1)
	require.NoError(t, auth.Append([]float64{1, 1, 0, 0}))
	_, err = Inject(auth, 1, 1)
	assert.ErrorIs(t, err, features.ErrSchemaMismatch)
}
