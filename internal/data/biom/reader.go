// Package biom reads BIOM abundance tables into sparse abundance tables.
//
// Only the JSON-based BIOM 1.0 format is read. BIOM 2.x files are HDF5
// containers; they are recognised and rejected with ErrHDF5Unsupported.
package biom

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/atlasmap-sc/rankratio/internal/data/compress"
	"github.com/atlasmap-sc/rankratio/internal/table"
)

// ErrHDF5Unsupported is returned for BIOM 2.x (HDF5) input.
var ErrHDF5Unsupported = errors.New("BIOM 2.x (HDF5) tables are not supported; " +
	"convert with `biom convert -i table.biom -o table.json.biom --to-json`")

var hdf5Signature = []byte("\x89HDF\r\n\x1a\n")

// tableName prefixes validation errors.
const tableName = "abundance table"

// Matrix types.
const (
	Sparse = "sparse"
	Dense  = "dense"
)

type entry struct {
	ID string `json:"id"`
}

// document is the subset of a BIOM 1.0 document this reader uses.
type document struct {
	Format     string          `json:"format"`
	Type       string          `json:"type"`
	MatrixType string          `json:"matrix_type"`
	Shape      [2]int          `json:"shape"`
	Rows       []entry         `json:"rows"`
	Columns    []entry         `json:"columns"`
	Data       json.RawMessage `json:"data"`
}

// Load reads a BIOM table from disk. Compressed files are handled.
func Load(path string) (*table.AbundanceTable, error) {
	rc, err := compress.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open BIOM table: %w", err)
	}
	defer rc.Close()

	t, err := Read(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Read decodes a BIOM 1.0 table. Rows are features (observations) and
// columns are samples. Zero entries are not stored.
func Read(r io.Reader) (*table.AbundanceTable, error) {
	br := bufio.NewReader(r)
	if head, _ := br.Peek(len(hdf5Signature)); bytes.Equal(head, hdf5Signature) {
		return nil, ErrHDF5Unsupported
	}

	var doc document
	if err := json.NewDecoder(br).Decode(&doc); err != nil {
		return nil, table.NewValidationError(tableName, "is not valid BIOM JSON: %v", err)
	}

	features := make([]string, len(doc.Rows))
	for i, e := range doc.Rows {
		features[i] = e.ID
	}
	samples := make([]string, len(doc.Columns))
	for i, e := range doc.Columns {
		samples[i] = e.ID
	}
	if doc.Shape != [2]int{0, 0} && doc.Shape != [2]int{len(features), len(samples)} {
		return nil, table.NewValidationError(tableName, "BIOM shape %v does not match %d row(s) and %d column(s)",
			doc.Shape, len(features), len(samples))
	}

	b, err := table.NewAbundanceBuilder(features, samples)
	if err != nil {
		return nil, err
	}

	switch doc.MatrixType {
	case Sparse:
		err = fillSparse(b, doc.Data)
	case Dense:
		err = fillDense(b, doc.Data, len(features), len(samples))
	default:
		err = table.NewValidationError(tableName, "unknown BIOM matrix_type %q", doc.MatrixType)
	}
	if err != nil {
		return nil, err
	}
	return b.Build(), nil
}

func fillSparse(b *table.AbundanceBuilder, raw json.RawMessage) error {
	var data [][3]float64
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return table.NewValidationError(tableName, "failed to decode sparse BIOM data: %v", err)
		}
	}
	for _, d := range data {
		row, col := d[0], d[1]
		if row != math.Trunc(row) || col != math.Trunc(col) {
			return table.NewValidationError(tableName, "sparse BIOM entry has non-integer index (%v, %v)", row, col)
		}
		if err := b.SetAt(int(row), int(col), d[2]); err != nil {
			return table.NewValidationError(tableName, "sparse BIOM entry: %v", err)
		}
	}
	return nil
}

func fillDense(b *table.AbundanceBuilder, raw json.RawMessage, rows, cols int) error {
	var data [][]float64
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return table.NewValidationError(tableName, "failed to decode dense BIOM data: %v", err)
		}
	}
	if len(data) != rows {
		return table.NewValidationError(tableName, "dense BIOM data has %d row(s), expected %d", len(data), rows)
	}
	for i, row := range data {
		if len(row) != cols {
			return table.NewValidationError(tableName, "dense BIOM row %d has %d value(s), expected %d", i, len(row), cols)
		}
		for j, v := range row {
			if v == 0 {
				continue
			}
			if err := b.SetAt(i, j, v); err != nil {
				return err
			}
		}
	}
	return nil
}
