package explain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hed1ad/logguard/pkg/features"
)

func httpVector(set map[string]float64) features.Vector {
	values := make([]float64, features.HTTP.Len())
	for name, v := range set {
		values[features.HTTP.Index(name)] = v
	}
	return features.Vector{Schema: features.HTTP, Values: values}
}

func TestExplainHTTP(t *testing.T) {
	e := ForHTTP(features.DefaultThresholds())

	tests := []struct {
		name string
		set  map[string]float64
		want string
	}{
		{
			name: "admin only",
			set: map[string]float64{
				features.IsAdmin: 1, features.IsExe: 0, features.RequestsPerIP: 50,
				features.IsServerError: 0, features.LargeTransfer: 0,
			},
			want: "Admin endpoint access",
		},
		{
			name: "nothing matched",
			set:  map[string]float64{features.RequestsPerIP: 3, features.Hour: 3},
			want: "Statistical anomaly",
		},
		{
			name: "volume at threshold does not match",
			set:  map[string]float64{features.RequestsPerIP: 1000},
			want: "Statistical anomaly",
		},
		{
			name: "all conditions in fixed order",
			set: map[string]float64{
				features.IsExe: 1, features.IsAdmin: 1, features.LargeTransfer: 1,
				features.IsServerError: 1, features.RequestsPerIP: 4000,
			},
			want: "High request volume, Server error response, Large data transfer, " +
				"Admin endpoint access, Executable file access",
		},
		{
			name: "server error and executable",
			set:  map[string]float64{features.IsExe: 1, features.IsServerError: 1},
			want: "Server error response, Executable file access",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Explain(httpVector(tt.set)))
		})
	}
}

func TestExplainOrderIsConditionOrder(t *testing.T) {
	e := New(
		Condition{Label: "b", Match: func(features.Vector) bool { return true }},
		Condition{Label: "a", Match: func(features.Vector) bool { return true }},
	)
	assert.Equal(t, "b, a", e.Explain(features.Vector{}))
	assert.Len(t, e.Conditions(), 2)
}

func TestExplainMissingFieldsDoNotMatch(t *testing.T) {
	e := ForHTTP(features.DefaultThresholds())
	auth := features.Vector{Schema: features.Auth, Values: []float64{1, 1, 1, 1}}
	assert.Equal(t, Fallback, e.Explain(auth))
}

func TestExplainAuth(t *testing.T) {
	e := ForSchema(features.Auth, features.DefaultThresholds())
	v := features.Vector{Schema: features.Auth, Values: []float64{2, 0, 1, 1}}
	assert.Equal(t, "Failed login, Repeated login attempts", e.Explain(v))

	v = features.Vector{Schema: features.Auth, Values: []float64{2, 0, 0, 0}}
	assert.Equal(t, Fallback, e.Explain(v))
}
