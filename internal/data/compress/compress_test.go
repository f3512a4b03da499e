package compress

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	payload := []byte("Feature\tRank 0\nF1\t1.5\nF2\t-0.25\n")

	for _, codec := range []Codec{None, Gzip, Zstd} {
		t.Run(string(codec), func(t *testing.T) {
			base := filepath.Join(t.TempDir(), "ranks.tsv")
			w, name, err := Create(base, codec)
			require.NoError(t, err)
			assert.Equal(t, base+codec.Ext(), name)

			_, err = w.Write(payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			raw, err := os.ReadFile(name)
			require.NoError(t, err)
			if codec != None {
				assert.NotEqual(t, payload, raw)
			}

			r, err := Open(name)
			require.NoError(t, err)
			defer r.Close()
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestParseCodec(t *testing.T) {
	for in, want := range map[string]Codec{"": None, "none": None, "GZIP": Gzip, " zstd ": Zstd} {
		got, err := ParseCodec(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCodec("bzip2")
	assert.Error(t, err)
}

func TestOpenShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}
