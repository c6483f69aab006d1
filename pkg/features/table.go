package features

import (
	"fmt"
	"math/rand"
)

// Table is a batch of feature vectors in schema order. Extras carries
// auxiliary numeric columns that travel with the rows but are never fed to
// the scaler or the model, such as ground_truth.
type Table struct {
	Schema Schema
	Rows   [][]float64
	Extras map[string][]float64
}

// NewTable returns an empty table with capacity for n rows.
func NewTable(s Schema, n int) *Table {
	return &Table{
		Schema: s,
		Rows:   make([][]float64, 0, n),
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Append adds a row. The row length must match the schema.
func (t *Table) Append(row []float64) error {
	if len(row) != t.Schema.Len() {
		return fmt.Errorf("row has %d values, %s schema has %d columns: %w",
			len(row), t.Schema.Name, t.Schema.Len(), ErrSchemaMismatch)
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, error) {
	i := t.Schema.Index(name)
	if i < 0 {
		return nil, &SchemaMismatchError{Schema: t.Schema.Name, Missing: []string{name}}
	}
	col := make([]float64, len(t.Rows))
	for r, row := range t.Rows {
		col[r] = row[i]
	}
	return col, nil
}

// Extra returns the named auxiliary column and whether it is present.
func (t *Table) Extra(name string) ([]float64, bool) {
	col, ok := t.Extras[name]
	return col, ok && len(col) == len(t.Rows)
}

// SetExtra attaches an auxiliary column.
func (t *Table) SetExtra(name string, col []float64) {
	if t.Extras == nil {
		t.Extras = make(map[string][]float64)
	}
	t.Extras[name] = col
}

// Row returns the i-th row as a named vector.
func (t *Table) Row(i int) Vector {
	return Vector{Schema: t.Schema, Values: t.Rows[i]}
}

// Subset returns a table holding the given rows, in the given order.
// Row slices are shared with t.
func (t *Table) Subset(idx []int) *Table {
	out := NewTable(t.Schema, len(idx))
	for _, i := range idx {
		out.Rows = append(out.Rows, t.Rows[i])
	}
	for name, col := range t.Extras {
		sub := make([]float64, len(idx))
		for j, i := range idx {
			sub[j] = col[i]
		}
		out.SetExtra(name, sub)
	}
	return out
}

// Sample draws up to n rows without replacement using seed. When the table
// holds n rows or fewer it is returned unchanged.
func (t *Table) Sample(n int, seed int64) *Table {
	if n <= 0 || n >= len(t.Rows) {
		return t
	}
	rng := rand.New(rand.NewSource(seed))
	return t.Subset(rng.Perm(len(t.Rows))[:n])
}

// DropInvalidTime returns the rows whose hour and day are set. Rows marked
// InvalidTime by extraction are left out; when none are, t is returned.
func (t *Table) DropInvalidTime() *Table {
	hour, day := t.Schema.Index(Hour), t.Schema.Index(Day)
	if hour < 0 || day < 0 {
		return t
	}
	idx := make([]int, 0, len(t.Rows))
	for i, row := range t.Rows {
		if row[hour] != InvalidTime && row[day] != InvalidTime {
			idx = append(idx, i)
		}
	}
	if len(idx) == len(t.Rows) {
		return t
	}
	return t.Subset(idx)
}

// Vector is one named feature vector.
type Vector struct {
	Schema Schema
	Values []float64
}

// Get returns the named feature. ok is false when the schema has no such
// column.
func (v Vector) Get(name string) (value float64, ok bool) {
	i := v.Schema.Index(name)
	if i < 0 || i >= len(v.Values) {
		return 0, false
	}
	return v.Values[i], true
}

// Flag reports whether the named binary feature is set. A missing feature
// is not set.
func (v Vector) Flag(name string) bool {
	val, ok := v.Get(name)
	return ok && val == 1
}

// Above reports whether the named feature exceeds limit. A missing feature
// does not.
func (v Vector) Above(name string, limit float64) bool {
	val, ok := v.Get(name)
	return ok && val > limit
}
