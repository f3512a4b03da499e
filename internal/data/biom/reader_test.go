package biom

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasmap-sc/rankratio/internal/data/compress"
	"github.com/atlasmap-sc/rankratio/internal/table"
)

const sparseDoc = `{
  "id": "test",
  "format": "Biological Observation Matrix 1.0.0",
  "type": "OTU table",
  "matrix_type": "sparse",
  "matrix_element_type": "float",
  "shape": [3, 2],
  "rows": [{"id": "F1", "metadata": null}, {"id": "F2", "metadata": null}, {"id": "F3", "metadata": null}],
  "columns": [{"id": "S1", "metadata": null}, {"id": "S2", "metadata": null}],
  "data": [[0, 0, 5.0], [0, 1, 1.0], [2, 1, 3.0], [1, 0, 0.0]]
}`

const denseDoc = `{
  "matrix_type": "dense",
  "shape": [2, 3],
  "rows": [{"id": "F1"}, {"id": "F2"}],
  "columns": [{"id": "S1"}, {"id": "S2"}, {"id": "S3"}],
  "data": [[0, 2, 0], [4, 0, 6]]
}`

func TestReadSparse(t *testing.T) {
	ab, err := Read(strings.NewReader(sparseDoc))
	require.NoError(t, err)

	assert.Equal(t, []string{"F1", "F2", "F3"}, ab.Features())
	assert.Equal(t, []string{"S1", "S2"}, ab.Samples())
	assert.Equal(t, 5.0, ab.Get("F1", "S1"))
	assert.Equal(t, 3.0, ab.Get("F3", "S2"))
	assert.Equal(t, 3, ab.NonZero())
}

func TestReadDense(t *testing.T) {
	ab, err := Read(strings.NewReader(denseDoc))
	require.NoError(t, err)

	assert.Equal(t, 3, ab.NonZero())
	assert.Equal(t, 6.0, ab.Get("F2", "S3"))
	assert.Zero(t, ab.Get("F1", "S1"))
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "shape mismatch",
			doc:     `{"matrix_type": "sparse", "shape": [5, 5], "rows": [{"id": "F1"}], "columns": [{"id": "S1"}], "data": []}`,
			wantErr: "does not match",
		},
		{
			name:    "index out of range",
			doc:     `{"matrix_type": "sparse", "rows": [{"id": "F1"}], "columns": [{"id": "S1"}], "data": [[1, 0, 2]]}`,
			wantErr: "out of range",
		},
		{
			name:    "unknown matrix type",
			doc:     `{"matrix_type": "coo", "rows": [], "columns": [], "data": []}`,
			wantErr: "unknown BIOM matrix_type",
		},
		{
			name:    "ragged dense row",
			doc:     `{"matrix_type": "dense", "rows": [{"id": "F1"}], "columns": [{"id": "S1"}, {"id": "S2"}], "data": [[1]]}`,
			wantErr: "expected 2",
		},
		{
			name:    "missing dense rows",
			doc:     `{"matrix_type": "dense", "rows": [{"id": "F1"}, {"id": "F2"}], "columns": [{"id": "S1"}], "data": [[1]]}`,
			wantErr: "has 1 row(s), expected 2",
		},
		{
			name:    "fractional sparse index",
			doc:     `{"matrix_type": "sparse", "rows": [{"id": "F1"}], "columns": [{"id": "S1"}], "data": [[0.5, 0, 2]]}`,
			wantErr: "non-integer index",
		},
		{
			name:    "not json",
			doc:     "Feature\tS1\n",
			wantErr: "is not valid BIOM JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, table.ErrValidation), "got %v", err)
			assert.Contains(t, err.Error(), "abundance table: ")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadDuplicateIDs(t *testing.T) {
	doc := `{"matrix_type": "sparse", "rows": [{"id": "F1"}, {"id": "F1"}], "columns": [{"id": "S1"}], "data": []}`
	_, err := Read(strings.NewReader(doc))
	assert.True(t, errors.Is(err, table.ErrValidation))
}

func TestReadRejectsHDF5(t *testing.T) {
	_, err := Read(strings.NewReader("\x89HDF\r\n\x1a\n\x00\x00\x00"))
	assert.ErrorIs(t, err, ErrHDF5Unsupported)
	assert.Contains(t, err.Error(), "--to-json")
}

func TestLoadCompressed(t *testing.T) {
	w, path, err := compress.Create(filepath.Join(t.TempDir(), "table.biom"), compress.Gzip)
	require.NoError(t, err)
	_, err = w.Write([]byte(sparseDoc))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	ab, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, ab.NonZero())

	plain := filepath.Join(t.TempDir(), "table.biom")
	require.NoError(t, os.WriteFile(plain, []byte(denseDoc), 0o644))
	ab, err = Load(plain)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2", "S3"}, ab.Samples())
}
