package heuristics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/logguard/pkg/features"
)

// vec builds an HTTP vector from the named overrides; everything else is 0.
func vec(set map[string]float64) features.Vector {
	values := make([]float64, features.HTTP.Len())
	for name, v := range set {
		values[features.HTTP.Index(name)] = v
	}
	return features.Vector{Schema: features.HTTP, Values: values}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy(" Strict ")
	require.NoError(t, err)
	assert.Equal(t, Strict, p)

	p, err = ParsePolicy("basic")
	require.NoError(t, err)
	assert.Equal(t, Basic, p)

	_, err = ParsePolicy("paranoid")
	assert.Error(t, err)

	_, err = New(Policy("paranoid"), features.DefaultThresholds())
	assert.Error(t, err)
}

func TestBasicPolicy(t *testing.T) {
	l, err := New(Basic, features.DefaultThresholds())
	require.NoError(t, err)

	tests := []struct {
		name string
		v    features.Vector
		want int
	}{
		{"clean", vec(map[string]float64{features.RequestsPerIP: 20}), 0},
		{"server error", vec(map[string]float64{features.IsServerError: 1}), 1},
		{"large transfer", vec(map[string]float64{features.LargeTransfer: 1}), 1},
		{"volume at limit", vec(map[string]float64{features.RequestsPerIP: 500}), 0},
		{"volume above limit", vec(map[string]float64{features.RequestsPerIP: 501}), 1},
		{"admin is not basic", vec(map[string]float64{features.IsAdmin: 1}), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Label(tt.v))
		})
	}
}

func TestStrictPolicy(t *testing.T) {
	l, err := New(Strict, features.DefaultThresholds())
	require.NoError(t, err)

	tests := []struct {
		name string
		v    features.Vector
		want int
	}{
		{"clean", vec(nil), 0},
		{"server error", vec(map[string]float64{features.IsServerError: 1}), 1},
		{"large transfer alone", vec(map[string]float64{features.LargeTransfer: 1}), 0},
		{"large transfer high volume", vec(map[string]float64{features.LargeTransfer: 1, features.RequestsPerIP: 1001}), 1},
		{"high volume alone", vec(map[string]float64{features.RequestsPerIP: 5000}), 0},
		{"admin", vec(map[string]float64{features.IsAdmin: 1}), 1},
		{"exe", vec(map[string]float64{features.IsExe: 1}), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Label(tt.v))
		})
	}
}

func TestMissingFeaturesNeverMatch(t *testing.T) {
	l, err := New(Strict, features.DefaultThresholds())
	require.NoError(t, err)

	auth := features.Vector{Schema: features.Auth, Values: []float64{1, 1, 1, 1}}
	assert.Equal(t, 0, l.Label(auth))
}

func TestLabelTable(t *testing.T) {
	l, err := New(Basic, features.DefaultThresholds())
	require.NoError(t, err)

	tbl := features.NewTable(features.HTTP, 2)
	require.NoError(t, tbl.Append(vec(map[string]float64{features.IsServerError: 1}).Values))
	require.NoError(t, tbl.Append(vec(nil).Values))

	assert.Equal(t, []int{1, 0}, l.LabelTable(tbl))
	assert.Len(t, l.Rules(), 3)
	assert.Equal(t, Basic, l.Policy())
}
