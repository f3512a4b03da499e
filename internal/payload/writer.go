package payload

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atlasmap-sc/rankratio/internal/data/compress"
)

// Output file names.
const (
	RankPlotFile   = "rank_plot.json"
	SamplePlotFile = "sample_plot.json"
	CountsFile     = "counts.json"
	ReportFile     = "report.json"
)

// WriteDir writes the bundle's payloads into dir, creating it if needed, and
// returns the paths written.
func WriteDir(dir string, b *Bundle, codec compress.Codec) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	files := []struct {
		name string
		v    any
	}{
		{RankPlotFile, b.RankPlot},
		{SamplePlotFile, b.SamplePlot},
		{CountsFile, b.Counts},
		{ReportFile, b.Report},
	}

	written := make([]string, 0, len(files))
	for _, f := range files {
		path, err := writeJSON(filepath.Join(dir, f.name), f.v, codec)
		if err != nil {
			return written, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func writeJSON(path string, v any, codec compress.Codec) (string, error) {
	w, name, err := compress.Create(path, codec)
	if err != nil {
		return "", err
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.Close()
		return "", err
	}
	return name, w.Close()
}

// Marshal encodes one payload for transport.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
