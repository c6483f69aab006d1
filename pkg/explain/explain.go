// Package explain annotates flagged records with the interpretable
// conditions they match. It never decides whether a record is anomalous.
package explain

import (
	"strings"

	"github.com/hed1ad/logguard/pkg/features"
)

// Separator joins matched condition labels.
const Separator = ", "

// Fallback is the reason for a flagged record matching no condition.
const Fallback = "Statistical anomaly"

// Condition labels.
const (
	HighRequestVolume = "High request volume"
	ServerError       = "Server error response"
	LargeTransfer     = "Large data transfer"
	AdminAccess       = "Admin endpoint access"
	ExecutableAccess  = "Executable file access"
	FailedLogin       = "Failed login"
	RepeatedAttempts  = "Repeated login attempts"
)

// Condition is one (predicate, label) pair.
type Condition struct {
	Label string
	Match func(v features.Vector) bool
}

// Engine evaluates its conditions in a fixed order.
type Engine struct {
	conditions []Condition
}

// New creates an engine over conditions, evaluated first to last.
func New(conditions ...Condition) *Engine {
	return &Engine{conditions: conditions}
}

// ForHTTP returns the web access conditions: request volume, server error,
// large transfer, admin access, executable access.
func ForHTTP(th features.Thresholds) *Engine {
	return New(
		Condition{Label: HighRequestVolume, Match: func(v features.Vector) bool {
			return v.Above(features.RequestsPerIP, th.HighRequestVolume)
		}},
		Condition{Label: ServerError, Match: flag(features.IsServerError)},
		Condition{Label: LargeTransfer, Match: flag(features.LargeTransfer)},
		Condition{Label: AdminAccess, Match: flag(features.IsAdmin)},
		Condition{Label: ExecutableAccess, Match: flag(features.IsExe)},
	)
}

// ForAuth returns the authentication conditions.
func ForAuth() *Engine {
	return New(
		Condition{Label: FailedLogin, Match: flag(features.FailedLogin)},
		Condition{Label: RepeatedAttempts, Match: flag(features.HighAttempts)},
	)
}

// ForSchema picks the engine matching s.
func ForSchema(s features.Schema, th features.Thresholds) *Engine {
	if s.Name == features.Auth.Name {
		return ForAuth()
	}
	return ForHTTP(th)
}

// Conditions returns the conditions in evaluation order.
func (e *Engine) Conditions() []Condition {
	return e.conditions
}

// Explain joins the labels of all matched conditions in evaluation order,
// or returns Fallback.
func (e *Engine) Explain(v features.Vector) string {
	var matched []string
	for _, c := range e.conditions {
		if c.Match(v) {
			matched = append(matched, c.Label)
		}
	}
	if len(matched) == 0 {
		return Fallback
	}
	return strings.Join(matched, Separator)
}

func flag(name string) func(features.Vector) bool {
	return func(v features.Vector) bool { return v.Flag(name) }
}
