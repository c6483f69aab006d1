// Package heuristics labels feature vectors as suspicious with fixed
// rule sets. The labels are evaluation oracles only and are never used to
// fit a model.
package heuristics

import (
	"fmt"
	"strings"

	"github.com/hed1ad/logguard/pkg/features"
)

// Policy selects a rule set.
type Policy string

// Recognized policies.
const (
	Basic  Policy = "basic"
	Strict Policy = "strict"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case Basic, Strict:
		return p, nil
	default:
		return "", fmt.Errorf("unknown heuristic policy %q (want %q or %q)", s, Basic, Strict)
	}
}

// Rule is one named predicate. A rule never fails: a feature the vector
// does not carry simply does not match.
type Rule struct {
	Name  string
	Match func(v features.Vector) bool
}

// Labeler applies a policy's rules as a disjunction.
type Labeler struct {
	policy Policy
	rules  []Rule
}

// New creates a labeler for policy using the shared thresholds.
func New(policy Policy, th features.Thresholds) (*Labeler, error) {
	var rules []Rule
	switch policy {
	case Basic:
		rules = []Rule{
			{Name: "server error", Match: flag(features.IsServerError)},
			{Name: "large transfer", Match: flag(features.LargeTransfer)},
			{Name: "request volume", Match: above(features.RequestsPerIP, th.BasicRequestLimit)},
		}
	case Strict:
		rules = []Rule{
			{Name: "server error", Match: flag(features.IsServerError)},
			{Name: "bulk transfer", Match: func(v features.Vector) bool {
				return v.Flag(features.LargeTransfer) && v.Above(features.RequestsPerIP, th.StrictRequestLimit)
			}},
			{Name: "admin access", Match: flag(features.IsAdmin)},
			{Name: "executable access", Match: flag(features.IsExe)},
		}
	default:
		return nil, fmt.Errorf("unknown heuristic policy %q", policy)
	}
	return &Labeler{policy: policy, rules: rules}, nil
}

// Policy returns the labeler's policy.
func (l *Labeler) Policy() Policy {
	return l.policy
}

// Rules returns the rules in evaluation order.
func (l *Labeler) Rules() []Rule {
	return l.rules
}

// Label returns 1 when any rule matches v.
func (l *Labeler) Label(v features.Vector) int {
	for _, r := range l.rules {
		if r.Match(v) {
			return 1
		}
	}
	return 0
}

// LabelTable labels every row of t.
func (l *Labeler) LabelTable(t *features.Table) []int {
	labels := make([]int, t.Len())
	for i := range t.Rows {
		labels[i] = l.Label(t.Row(i))
	}
	return labels
}

func flag(name string) func(features.Vector) bool {
	return func(v features.Vector) bool { return v.Flag(name) }
}

func above(name string, limit float64) func(features.Vector) bool {
	return func(v features.Vector) bool { return v.Above(name, limit) }
}
