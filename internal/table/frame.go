// Package table holds the in-memory tables a rank-plot pipeline run works on:
// ranking tables, sparse abundance tables, and sample/feature metadata.
//
// Tables are immutable once built. Every operation that narrows a table
// returns a new table and leaves its receiver untouched.
package table

import (
	"math"
	"strconv"
	"strings"
)

// Frame is a raw identifier-indexed text table as read from disk, before its
// shape has been checked or its cells typed.
type Frame struct {
	// Name is the human-readable table kind used in error messages.
	Name string
	// IDHeader is the header of the identifier column (may be empty).
	IDHeader string
	RowIDs   []string
	Columns  []string
	// Cells is row-major and aligned with RowIDs and Columns.
	Cells [][]string
}

// ColumnCount returns the number of columns including the identifier column.
func (f *Frame) ColumnCount() int {
	return len(f.Columns) + 1
}

// Shape is a minimum table shape.
type Shape struct {
	MinRows    int
	MinColumns int
}

// Minimum shapes per table kind. Column counts include the identifier column.
var (
	RankShape            = Shape{MinRows: 1, MinColumns: 2}
	SampleMetadataShape  = Shape{MinRows: 1, MinColumns: 2}
	FeatureMetadataShape = Shape{MinRows: 0, MinColumns: 2}
)

// Validate checks a frame against a minimum shape and verifies that row
// identifiers and column names are unique.
func Validate(f *Frame, shape Shape) error {
	if n := len(f.RowIDs); n < shape.MinRows {
		return NewValidationError(f.Name, "must have at least %d row(s), found %d", shape.MinRows, n)
	}
	if n := f.ColumnCount(); n < shape.MinColumns {
		return NewValidationError(f.Name, "must have at least %d column(s), found %d", shape.MinColumns, n)
	}
	if dup, ok := firstDuplicate(f.RowIDs); ok {
		return NewValidationError(f.Name, "contains duplicate ID %q", dup)
	}
	names := f.Columns
	if f.IDHeader != "" {
		names = append([]string{f.IDHeader}, f.Columns...)
	}
	if dup, ok := firstDuplicate(names); ok {
		return NewValidationError(f.Name, "contains duplicate column name %q", dup)
	}
	return nil
}

func firstDuplicate(ids []string) (string, bool) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id, true
		}
		seen[id] = struct{}{}
	}
	return "", false
}

// RankTable converts a validated frame to a ranking table. Every cell must
// parse as a finite number.
func (f *Frame) RankTable() (*RankTable, error) {
	values := make([][]float64, len(f.RowIDs))
	for i, row := range f.Cells {
		if len(row) != len(f.Columns) {
			return nil, NewValidationError(f.Name, "row %q has %d value(s), expected %d", f.RowIDs[i], len(row), len(f.Columns))
		}
		values[i] = make([]float64, len(row))
		for j, cell := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, NewValidationError(f.Name, "non-numeric value %q for %q in column %q", cell, f.RowIDs[i], f.Columns[j])
			}
			values[i][j] = v
		}
	}
	return NewRankTable(f.RowIDs, f.Columns, values)
}

// MetadataTable converts a validated frame to a metadata table. Blank cells
// become missing values.
func (f *Frame) MetadataTable() (*MetadataTable, error) {
	values := make([][]Value, len(f.RowIDs))
	for i, row := range f.Cells {
		values[i] = make([]Value, len(f.Columns))
		for j := range f.Columns {
			// Short rows are padded with missing values.
			if j < len(row) {
				values[i][j] = ParseCell(row[j])
			}
		}
	}
	return NewMetadataTable(f.Name, f.RowIDs, f.Columns, values)
}
