// Package features defines the fixed feature schemas shared by extraction,
// training and scoring, and converts parsed log records into feature tables.
package features

import (
	"errors"
	"fmt"
	"strings"
)

// Canonical column names.
const (
	Hour          = "hour"
	Day           = "day"
	Bytes         = "bytes"
	IsError       = "is_error"
	IsServerError = "is_server_error"
	LargeTransfer = "large_transfer"
	URLLength     = "url_length"
	RequestsPerIP = "requests_per_ip"
	IsPost        = "is_post"
	IsGet         = "is_get"
	IsExe         = "is_exe"
	IsAdmin       = "is_admin"
	FailedLogin   = "failed_login"
	HighAttempts  = "high_attempts"
	GroundTruth   = "ground_truth"
	AnomalyColumn = "anomaly"
	ReasonColumn  = "reason"
)

// InvalidTime is the hour and day value of a record whose timestamp could
// not be parsed. It lies outside every valid calendar range.
const InvalidTime = -1

// ErrSchemaMismatch is returned when a table's feature columns are absent,
// unexpected or out of order.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Schema is an ordered, named set of feature columns.
type Schema struct {
	Name    string
	Columns []string
}

// HTTP is the 12-column web access schema.
var HTTP = Schema{
	Name: "http",
	Columns: []string{
		Hour, Day, Bytes,
		IsError, IsServerError,
		LargeTransfer, URLLength,
		RequestsPerIP,
		IsPost, IsGet,
		IsExe, IsAdmin,
	},
}

// Auth is the 4-column authentication event schema.
var Auth = Schema{
	Name:    "auth",
	Columns: []string{Hour, Day, FailedLogin, HighAttempts},
}

// Lookup returns the schema registered under name.
func Lookup(name string) (Schema, error) {
	switch strings.ToLower(name) {
	case HTTP.Name:
		return HTTP, nil
	case Auth.Name:
		return Auth, nil
	default:
		return Schema{}, fmt.Errorf("unknown schema %q (want %q or %q)", name, HTTP.Name, Auth.Name)
	}
}

// Len returns the number of columns.
func (s Schema) Len() int {
	return len(s.Columns)
}

// Index returns the position of col, or -1.
func (s Schema) Index(col string) int {
	for i, c := range s.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Check reports whether columns match the schema exactly, name and order.
func (s Schema) Check(columns []string) error {
	return CheckColumns(s.Name, s.Columns, columns)
}

// TrailingColumns are the non-feature columns a feature file may carry after
// the schema columns.
var TrailingColumns = []string{GroundTruth, AnomalyColumn, ReasonColumn}

// CheckHeader reports whether header starts with exactly the schema columns,
// name and order, followed only by columns named in TrailingColumns or in
// trailing.
func (s Schema) CheckHeader(header []string, trailing ...string) error {
	allowed := make(map[string]bool, len(TrailingColumns)+len(trailing))
	for _, c := range TrailingColumns {
		allowed[c] = true
	}
	for _, c := range trailing {
		allowed[c] = true
	}

	n := min(s.Len(), len(header))
	if equalColumns(s.Columns, header[:n]) && n == s.Len() {
		var unexpected []string
		for _, c := range header[n:] {
			if !allowed[c] {
				unexpected = append(unexpected, c)
			}
		}
		if len(unexpected) > 0 {
			return &SchemaMismatchError{Schema: s.Name, Unexpected: unexpected}
		}
		return nil
	}

	// Name what is wrong with the feature part, ignoring recognized trailing
	// columns wherever they appear.
	feats := make([]string, 0, len(header))
	for _, c := range header {
		if !allowed[c] {
			feats = append(feats, c)
		}
	}
	if err := CheckColumns(s.Name, s.Columns, feats); err != nil {
		return err
	}
	return &SchemaMismatchError{Schema: s.Name, Misordered: true}
}

// SchemaMismatchError names the columns that violate a schema.
type SchemaMismatchError struct {
	Schema     string
	Missing    []string
	Unexpected []string
	Misordered bool
}

func (e *SchemaMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing columns ["+strings.Join(e.Missing, ", ")+"]")
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected columns ["+strings.Join(e.Unexpected, ", ")+"]")
	}
	if e.Misordered {
		parts = append(parts, "columns out of canonical order")
	}
	if len(parts) == 0 {
		parts = append(parts, "column sets differ")
	}
	return fmt.Sprintf("%s features: %s", e.Schema, strings.Join(parts, "; "))
}

func (e *SchemaMismatchError) Unwrap() error {
	return ErrSchemaMismatch
}

// CheckColumns compares got against want by name and order.
func CheckColumns(schema string, want, got []string) error {
	if equalColumns(want, got) {
		return nil
	}

	have := make(map[string]bool, len(got))
	for _, c := range got {
		have[c] = true
	}
	expected := make(map[string]bool, len(want))
	for _, c := range want {
		expected[c] = true
	}

	e := &SchemaMismatchError{Schema: schema}
	for _, c := range want {
		if !have[c] {
			e.Missing = append(e.Missing, c)
		}
	}
	for _, c := range got {
		if !expected[c] {
			e.Unexpected = append(e.Unexpected, c)
		}
	}
	if len(e.Missing) == 0 && len(e.Unexpected) == 0 {
		e.Misordered = true
	}
	return e
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
