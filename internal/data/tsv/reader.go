// Package tsv reads the tab-separated inputs of a rank plot: feature
// rankings (plain tables or ordination files) and sample or feature metadata.
package tsv

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/atlasmap-sc/rankratio/internal/data/compress"
	"github.com/atlasmap-sc/rankratio/internal/table"
)

// Ranking file formats.
const (
	FormatAuto       = "auto"
	FormatTSV        = "tsv"
	FormatOrdination = "ordination"
)

// Table kinds used as frame names in error messages.
const (
	RanksName           = "feature ranks"
	SampleMetadataName  = "sample metadata"
	FeatureMetadataName = "feature metadata"
)

// InterceptColumn is the differentials column dropped by RankOptions.DropIntercept.
const InterceptColumn = "Intercept"

// RankOptions tune ranking file parsing.
type RankOptions struct {
	// Format is FormatAuto, FormatTSV or FormatOrdination.
	Format string
	// DropIntercept removes an "Intercept" column from tabular rankings.
	DropIntercept bool
}

// DefaultRankOptions returns auto-detection with the intercept dropped.
func DefaultRankOptions() RankOptions {
	return RankOptions{Format: FormatAuto, DropIntercept: true}
}

// LoadRanks reads a ranking file from disk. Compressed files are handled.
func LoadRanks(path string, opts RankOptions) (*table.Frame, error) {
	rc, err := compress.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature ranks: %w", err)
	}
	defer rc.Close()

	f, err := ReadRanks(rc, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// LoadMetadata reads a metadata file from disk. name is the table kind used
// in error messages.
func LoadMetadata(path, name string) (*table.Frame, error) {
	rc, err := compress.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer rc.Close()

	f, err := ReadMetadata(rc, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ReadRanks parses a ranking table. With FormatAuto, content starting with
// an "Eigvals" line is read as an ordination file.
func ReadRanks(r io.Reader, opts RankOptions) (*table.Frame, error) {
	br := bufio.NewReader(r)
	format := opts.Format
	switch format {
	case "", FormatAuto:
		format = FormatTSV
		if looksLikeOrdination(br) {
			format = FormatOrdination
		}
	case FormatTSV, FormatOrdination:
	default:
		return nil, fmt.Errorf("unknown ranks format %q", opts.Format)
	}

	if format == FormatOrdination {
		return ReadOrdination(br)
	}

	f, err := readFrame(br, RanksName)
	if err != nil {
		return nil, err
	}
	if opts.DropIntercept {
		dropColumn(f, InterceptColumn)
	}
	return f, nil
}

func looksLikeOrdination(br *bufio.Reader) bool {
	head, _ := br.Peek(len("Eigvals"))
	return string(head) == "Eigvals"
}

// ReadMetadata parses a metadata table. Lines starting with '#' (comments
// and "#q2:" directives) are skipped, except a "#SampleID"-style header.
// Blank cells become missing values once the frame is typed.
func ReadMetadata(r io.Reader, name string) (*table.Frame, error) {
	return readFrame(r, name)
}

// idHeaders are '#'-prefixed identifier headers that start a table rather
// than a comment.
var idHeaders = map[string]bool{
	"#sampleid":   true,
	"#sample id":  true,
	"#featureid":  true,
	"#feature id": true,
	"#otuid":      true,
	"#otu id":     true,
}

func readFrame(r io.Reader, name string) (*table.Frame, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	f := &table.Frame{Name: name}
	headerSeen := false
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, table.NewValidationError(name, "malformed line: %v", err)
		}

		first := strings.TrimSpace(rec[0])
		if strings.HasPrefix(first, "#") && (headerSeen || !idHeaders[strings.ToLower(first)]) {
			continue
		}
		if isBlank(rec) {
			continue
		}

		if !headerSeen {
			f.IDHeader = first
			f.Columns = trimAll(rec[1:])
			headerSeen = true
			continue
		}

		if len(rec)-1 > len(f.Columns) {
			return nil, table.NewValidationError(name, "row %q has %d value(s) but there are %d column(s)",
				first, len(rec)-1, len(f.Columns))
		}
		f.RowIDs = append(f.RowIDs, first)
		f.Cells = append(f.Cells, rec[1:])
	}
	if !headerSeen {
		return nil, table.NewValidationError(name, "file is empty")
	}
	return f, nil
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func dropColumn(f *table.Frame, column string) {
	idx := -1
	for i, c := range f.Columns {
		if c == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	f.Columns = append(f.Columns[:idx:idx], f.Columns[idx+1:]...)
	for i, row := range f.Cells {
		if idx < len(row) {
			f.Cells[i] = append(row[:idx:idx], row[idx+1:]...)
		}
	}
}

// ReadOrdination parses an ordination results file and returns its feature
// loadings ("Species" section) as a ranking frame with columns "Axis 1".."Axis n".
func ReadOrdination(r io.Reader) (*table.Frame, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for sc.Scan() {
		fields := strings.Split(strings.TrimRight(sc.Text(), "\r"), "\t")
		if fields[0] != "Species" {
			continue
		}
		if len(fields) != 3 {
			return nil, table.NewValidationError(RanksName, "malformed Species header %q", sc.Text())
		}
		rows, err1 := strconv.Atoi(strings.TrimSpace(fields[1]))
		cols, err2 := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err1 != nil || err2 != nil || rows < 0 || cols < 0 {
			return nil, table.NewValidationError(RanksName, "malformed Species header %q", sc.Text())
		}

		f := &table.Frame{Name: RanksName, IDHeader: "Feature ID"}
		for i := 1; i <= cols; i++ {
			f.Columns = append(f.Columns, "Axis "+strconv.Itoa(i))
		}
		for len(f.RowIDs) < rows {
			if !sc.Scan() {
				break
			}
			line := strings.TrimRight(sc.Text(), "\r")
			if strings.TrimSpace(line) == "" {
				break
			}
			rec := strings.Split(line, "\t")
			if len(rec)-1 != cols {
				return nil, table.NewValidationError(RanksName, "feature %q has %d loading(s), expected %d",
					rec[0], len(rec)-1, cols)
			}
			f.RowIDs = append(f.RowIDs, strings.TrimSpace(rec[0]))
			f.Cells = append(f.Cells, rec[1:])
		}
		if len(f.RowIDs) != rows {
			return nil, table.NewValidationError(RanksName, "Species section declares %d feature(s) but has %d", rows, len(f.RowIDs))
		}
		return f, nil
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ordination: %w", err)
	}
	return nil, table.NewValidationError(RanksName, "ordination file has no Species section")
}
