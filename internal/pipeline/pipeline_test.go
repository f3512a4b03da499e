package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasmap-sc/rankratio/internal/table"
)

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

func intPtr(v int) *int { return &v }

// newRanks builds a rank table from per-ranking columns.
func newRanks(t *testing.T, features []string, columns map[string][]float64, order ...string) *table.RankTable {
	t.Helper()
	values := make([][]float64, len(features))
	for i := range features {
		values[i] = make([]float64, len(order))
		for j, name := range order {
			values[i][j] = columns[name][i]
		}
	}
	r, err := table.NewRankTable(features, order, values)
	require.NoError(t, err)
	return r
}

func newSampleMetadata(t *testing.T, samples ...string) *table.MetadataTable {
	t.Helper()
	values := make([][]table.Value, len(samples))
	for i, s := range samples {
		values[i] = []table.Value{table.String("group-" + s)}
	}
	md, err := table.NewMetadataTable("sample metadata", samples, []string{"Group"}, values)
	require.NoError(t, err)
	return md
}

// grid builds an abundance table where entry (i, j) is rows[i][j].
func grid(t *testing.T, features, samples []string, rows [][]float64) *table.AbundanceTable {
	t.Helper()
	b, err := table.NewAbundanceBuilder(features, samples)
	require.NoError(t, err)
	for i, row := range rows {
		for j, v := range row {
			require.NoError(t, b.SetAt(i, j, v))
		}
	}
	return b.Build()
}

// arangeTable is 8 features x 5 samples with values 0..39 row-major, and
// sample S3 zeroed except for F4.
func arangeTable(t *testing.T) *table.AbundanceTable {
	t.Helper()
	rows := make([][]float64, 8)
	for i := range rows {
		rows[i] = make([]float64, 5)
		for j := range rows[i] {
			rows[i][j] = float64(5*i + j)
		}
		rows[i][2] = 0
	}
	rows[3][2] = 1
	return grid(t, ids("F", 8), ids("S", 5), rows)
}

func ascending(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func descending(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(n - i)
	}
	return out
}

func TestMatch(t *testing.T) {
	ab := grid(t, []string{"F1", "F2", "F3"}, []string{"S1", "S2"}, [][]float64{{1, 2}, {3, 4}, {5, 6}})
	ranks := newRanks(t, []string{"F2", "F3", "F9"}, map[string][]float64{"R": {1, 2, 3}}, "R")
	md := newSampleMetadata(t, "S2", "S7")

	m, err := Match(ab, ranks, md, MatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"F2", "F3"}, m.Abundance.Features())
	assert.Equal(t, []string{"S2"}, m.Abundance.Samples())
	assert.Equal(t, []string{"F2", "F3"}, m.Ranks.Features())
	assert.Equal(t, []string{"S2"}, m.SampleMetadata.IDs())
	assert.Equal(t, Unsupported{RankedFeatures: 1, TableFeatures: 1, MetadataSamples: 1, TableSamples: 1}, m.Unsupported)
	assert.Equal(t, 4.0, m.Abundance.Get("F2", "S2"))
}

func TestMatchFailures(t *testing.T) {
	ab := grid(t, []string{"F1", "F2"}, []string{"S1", "S2"}, [][]float64{{1, 2}, {3, 4}})

	t.Run("no shared features", func(t *testing.T) {
		ranks := newRanks(t, []string{"X1"}, map[string][]float64{"R": {1}}, "R")
		_, err := Match(ab, ranks, newSampleMetadata(t, "S1"), MatchOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, table.ErrMatch))
		assert.Contains(t, err.Error(), "no features in common")
	})

	t.Run("no shared samples", func(t *testing.T) {
		ranks := newRanks(t, []string{"F1"}, map[string][]float64{"R": {1}}, "R")
		_, err := Match(ab, ranks, newSampleMetadata(t, "Z1", "Z2"), MatchOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, table.ErrMatch))
		assert.Contains(t, err.Error(), "no samples in common")
	})

	t.Run("strict features", func(t *testing.T) {
		ranks := newRanks(t, []string{"F1", "X1", "X2"}, map[string][]float64{"R": {1, 2, 3}}, "R")
		_, err := Match(ab, ranks, newSampleMetadata(t, "S1"), MatchOptions{StrictFeatures: true})
		require.Error(t, err)
		assert.True(t, errors.Is(err, table.ErrMatch))
		assert.Equal(t, "2 ranked feature(s) were not present in the abundance table.", err.Error())
	})
}

func TestMatchAxisOrderIndependent(t *testing.T) {
	ab := grid(t, []string{"F1", "F2", "F3"}, []string{"S1", "S2", "S3"}, [][]float64{{1, 0, 2}, {0, 3, 0}, {4, 5, 6}})
	ranks := newRanks(t, []string{"F3", "F1"}, map[string][]float64{"R": {1, 2}}, "R")
	md := newSampleMetadata(t, "S3", "S1")

	m, err := Match(ab, ranks, md, MatchOptions{})
	require.NoError(t, err)

	// Restricting samples first, then features, gives the same table.
	other := ab.Restrict(nil, md.Has).Restrict(ranks.Has, nil)
	assert.Equal(t, other.Features(), m.Abundance.Features())
	assert.Equal(t, other.Samples(), m.Abundance.Samples())
	assert.Equal(t, Sparsify(other), Sparsify(m.Abundance))
}

func TestCheckExtremeCount(t *testing.T) {
	k, err := CheckExtremeCount(3.0)
	require.NoError(t, err)
	assert.Equal(t, 3, k)

	for _, v := range []float64{3.5, 0, -2} {
		_, err := CheckExtremeCount(v)
		assert.True(t, errors.Is(err, table.ErrParameter), "value %v", v)
	}

	got, err := ParseExtremeCount("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseExtremeCount(" 4 ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, *got)

	_, err = ParseExtremeCount("four")
	assert.True(t, errors.Is(err, table.ErrParameter))

	// Counts beyond 32 bits are legal as long as they fit in an int.
	k, err = CheckExtremeCount(5e9)
	require.NoError(t, err)
	assert.Equal(t, 5000000000, k)

	for _, v := range []float64{1e300, float64(math.MaxInt)} {
		_, err := CheckExtremeCount(v)
		assert.True(t, errors.Is(err, table.ErrParameter), "value %v", v)
	}

	got, err = ParseExtremeCount(strconv.Itoa(math.MaxInt))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, math.MaxInt, *got)

	_, err = ParseExtremeCount("-3")
	assert.True(t, errors.Is(err, table.ErrParameter))
}

func TestFilterExtremeFeatures(t *testing.T) {
	ab := arangeTable(t)
	ranks := newRanks(t, ids("F", 8), map[string][]float64{
		"Rank 0": ascending(8),
		"Rank 1": descending(8),
	}, "Rank 0", "Rank 1")

	f, err := FilterExtremeFeatures(ab, ranks, intPtr(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"F1", "F2", "F7", "F8"}, f.Ranks.Features())
	assert.Equal(t, []string{"F1", "F2", "F7", "F8"}, f.Abundance.Features())
	assert.Equal(t, ab.Samples(), f.Abundance.Samples())
	assert.Equal(t, 4, f.Removed)
	assert.Empty(t, f.Warning)
}

func TestFilterExtremeFeaturesUnionAcrossRankings(t *testing.T) {
	ab := grid(t, ids("F", 6), []string{"S1"}, [][]float64{{1}, {1}, {1}, {1}, {1}, {1}})
	ranks := newRanks(t, ids("F", 6), map[string][]float64{
		"A": {1, 2, 3, 4, 5, 6},
		"B": {3, 1, 6, 2, 4, 5},
	}, "A", "B")

	f, err := FilterExtremeFeatures(ab, ranks, intPtr(1))
	require.NoError(t, err)
	// A picks F1 and F6, B picks F2 and F3.
	assert.Equal(t, []string{"F1", "F2", "F3", "F6"}, f.Ranks.Features())
}

func TestFilterExtremeFeaturesTiesUseRowOrder(t *testing.T) {
	ab := grid(t, ids("F", 6), []string{"S1"}, [][]float64{{1}, {1}, {1}, {1}, {1}, {1}})
	ranks := newRanks(t, ids("F", 6), map[string][]float64{"R": {5, 5, 5, 5, 5, 5}}, "R")

	f, err := FilterExtremeFeatures(ab, ranks, intPtr(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"F1", "F2"}, f.Ranks.Features())
}

func TestFilterExtremeFeaturesNoop(t *testing.T) {
	ab := arangeTable(t)
	ranks := newRanks(t, ids("F", 8), map[string][]float64{"R": ascending(8)}, "R")

	t.Run("unset", func(t *testing.T) {
		f, err := FilterExtremeFeatures(ab, ranks, nil)
		require.NoError(t, err)
		assert.Same(t, ranks, f.Ranks)
		assert.Same(t, ab, f.Abundance)
		assert.Empty(t, f.Warning)
	})

	t.Run("count covers every feature", func(t *testing.T) {
		f, err := FilterExtremeFeatures(ab, ranks, intPtr(4))
		require.NoError(t, err)
		assert.Equal(t, 8, f.Ranks.Len())
		assert.Equal(t, 0, f.Removed)
		assert.Contains(t, f.Warning, "no features were filtered")
	})

	t.Run("count near the int limit", func(t *testing.T) {
		for _, k := range []int{math.MaxInt, math.MaxInt/2 + 1, 1 << 40} {
			f, err := FilterExtremeFeatures(ab, ranks, intPtr(k))
			require.NoError(t, err, "k=%d", k)
			assert.Same(t, ranks, f.Ranks)
			assert.Same(t, ab, f.Abundance)
			assert.Equal(t, 0, f.Removed)
			assert.Contains(t, f.Warning, "no features were filtered")
		}
	})

	t.Run("invalid count", func(t *testing.T) {
		_, err := FilterExtremeFeatures(ab, ranks, intPtr(0))
		assert.True(t, errors.Is(err, table.ErrParameter))
	})
}

func TestFilterExtremeFeaturesIdempotent(t *testing.T) {
	ab := arangeTable(t)
	ranks := newRanks(t, ids("F", 8), map[string][]float64{"R": ascending(8)}, "R")

	once, err := FilterExtremeFeatures(ab, ranks, intPtr(2))
	require.NoError(t, err)
	twice, err := FilterExtremeFeatures(once.Abundance, once.Ranks, intPtr(2))
	require.NoError(t, err)

	assert.Equal(t, once.Ranks.Features(), twice.Ranks.Features())
	assert.Equal(t, Sparsify(once.Abundance), Sparsify(twice.Abundance))
	assert.NotEmpty(t, twice.Warning)
}

func TestPruneEmpty(t *testing.T) {
	ab := grid(t, ids("F", 3), ids("S", 3), [][]float64{
		{1, 0, 0},
		{0, 0, 0},
		{2, 0, 3},
	})
	ranks := newRanks(t, ids("F", 3), map[string][]float64{"R": {1, 2, 3}}, "R")
	md := newSampleMetadata(t, ids("S", 3)...)

	p, err := PruneEmpty(ab, md, ranks)
	require.NoError(t, err)
	assert.Equal(t, []string{"F1", "F3"}, p.Abundance.Features())
	assert.Equal(t, []string{"S1", "S3"}, p.Abundance.Samples())
	assert.Equal(t, []string{"F1", "F3"}, p.Ranks.Features())
	assert.Equal(t, []string{"S1", "S3"}, p.SampleMetadata.IDs())
	assert.Equal(t, []string{"S2"}, p.RemovedSamples)
	assert.Equal(t, []string{"F2"}, p.RemovedFeatures)

	for f, total := range p.Abundance.FeatureTotals() {
		assert.NotZero(t, total, f)
	}
	for s, total := range p.Abundance.SampleTotals() {
		assert.NotZero(t, total, s)
	}
}

func TestPruneEmptyIsSinglePass(t *testing.T) {
	// S1 sums to 3 before pruning and to 0 once F1 (sum 0) is removed. A
	// single pass keeps it.
	ab := grid(t, ids("F", 3), ids("S", 3), [][]float64{
		{3, -3, 0},
		{2, 5, 0},
		{-2, 0, 4},
	})
	ranks := newRanks(t, ids("F", 3), map[string][]float64{"R": {1, 2, 3}}, "R")
	md := newSampleMetadata(t, ids("S", 3)...)

	p, err := PruneEmpty(ab, md, ranks)
	require.NoError(t, err)
	assert.Equal(t, []string{"F2", "F3"}, p.Abundance.Features())
	assert.Equal(t, []string{"S1", "S2", "S3"}, p.Abundance.Samples())
	assert.Zero(t, p.Abundance.SampleTotals()["S1"])
}

func TestPruneEmptyNoSamplesRemain(t *testing.T) {
	ab := grid(t, ids("F", 2), ids("S", 2), [][]float64{{0, 0}, {0, 0}})
	ranks := newRanks(t, ids("F", 2), map[string][]float64{"R": {1, 2}}, "R")

	_, err := PruneEmpty(ab, newSampleMetadata(t, ids("S", 2)...), ranks)
	require.Error(t, err)
	assert.True(t, errors.Is(err, table.ErrMatch))
	assert.Contains(t, err.Error(), "no samples remain")
}

func TestMergeFeatureMetadata(t *testing.T) {
	ranks := newRanks(t, ids("F", 3), map[string][]float64{"R": {1, 2, 3}}, "R")

	t.Run("absent", func(t *testing.T) {
		merged, cols, err := MergeFeatureMetadata(ranks, nil)
		require.NoError(t, err)
		assert.Same(t, ranks, merged)
		assert.Empty(t, cols)
	})

	t.Run("left join", func(t *testing.T) {
		fm, err := table.NewMetadataTable("feature metadata",
			[]string{"F3", "F1", "F9"},
			[]string{"Taxon", "Confidence"},
			[][]table.Value{
				{table.String("c"), table.Null()},
				{table.String("a"), table.String("0.9")},
				{table.String("z"), table.String("0.1")},
			})
		require.NoError(t, err)

		merged, cols, err := MergeFeatureMetadata(ranks, fm)
		require.NoError(t, err)
		assert.Equal(t, []string{"Taxon", "Confidence"}, cols)
		assert.Equal(t, ranks.Len(), merged.Len())
		assert.Equal(t, cols, merged.MetadataColumns())

		assert.Equal(t, []table.Value{table.String("a"), table.String("0.9")}, merged.MetadataRow(0))
		assert.Equal(t, []table.Value{table.Null(), table.Null()}, merged.MetadataRow(1))
		assert.Equal(t, []table.Value{table.String("c"), table.Null()}, merged.MetadataRow(2))
	})

	t.Run("collisions", func(t *testing.T) {
		for _, col := range []string{"R", ClassificationField, FeatureIDField} {
			fm, err := table.NewMetadataTable("feature metadata", []string{"F1"}, []string{col},
				[][]table.Value{{table.String("x")}})
			require.NoError(t, err)

			_, _, err = MergeFeatureMetadata(ranks, fm)
			require.Error(t, err, col)
			assert.True(t, errors.Is(err, table.ErrValidation), col)
			assert.Contains(t, err.Error(), strconv.Quote(col))
		}
	})
}

func TestSparsifyRoundTrip(t *testing.T) {
	ab := grid(t, ids("F", 3), ids("S", 3), [][]float64{
		{0, 2, 0},
		{0, 0, 0},
		{-1, 0, 7},
	})

	counts := Sparsify(ab)
	assert.Equal(t, Counts{
		"F1": {"S2": 2},
		"F3": {"S1": -1, "S3": 7},
	}, counts)

	for _, f := range ab.Features() {
		for _, s := range ab.Samples() {
			assert.Equal(t, ab.Get(f, s), counts[f][s], "%s/%s", f, s)
		}
	}
}

func frame(name, idHeader string, rowIDs, columns []string, cells [][]string) *table.Frame {
	return &table.Frame{Name: name, IDHeader: idHeader, RowIDs: rowIDs, Columns: columns, Cells: cells}
}

func endToEndInputs(t *testing.T) Inputs {
	t.Helper()
	features := ids("F", 8)
	rankCells := make([][]string, 8)
	for i := range rankCells {
		rankCells[i] = []string{strconv.Itoa(i + 1), strconv.Itoa(8 - i)}
	}
	sampleCells := make([][]string, 5)
	for i := range sampleCells {
		sampleCells[i] = []string{"g" + strconv.Itoa(i%2), ""}
	}
	return Inputs{
		Ranks:          frame("feature ranks", "Feature", features, []string{"Rank 0", "Rank 1"}, rankCells),
		SampleMetadata: frame("sample metadata", "Sample", ids("S", 5), []string{"Group", "Note"}, sampleCells),
		FeatureMetadata: frame("feature metadata", "Feature", []string{"F1", "F8"}, []string{"Taxonomy"},
			[][]string{{"k__Bacteria"}, {"k__Archaea"}}),
		Abundance: arangeTable(t),
	}
}

func TestProcessEndToEnd(t *testing.T) {
	p := NewProcessor(zerolog.Nop())

	res, err := p.Process(endToEndInputs(t), Options{ExtremeFeatureCount: intPtr(2)})
	require.NoError(t, err)

	assert.Equal(t, []string{"F1", "F2", "F7", "F8"}, res.Ranks.Features())
	assert.Equal(t, []string{"Rank 0", "Rank 1"}, res.RankingColumns)
	assert.Equal(t, []string{"Taxonomy"}, res.FeatureMetadataColumns)

	// S3 only had a count for F4, which the filter removed.
	assert.Equal(t, []string{"S1", "S2", "S4", "S5"}, res.Abundance.Samples())
	assert.Equal(t, []string{"S1", "S2", "S4", "S5"}, res.SampleMetadata.IDs())

	counts := res.Counts()
	for f, row := range counts {
		assert.NotEmpty(t, row, f)
		for s, v := range row {
			assert.NotZero(t, v, "%s/%s", f, s)
		}
	}
	assert.Equal(t, map[string]float64{"S2": 1, "S4": 3, "S5": 4}, counts.Feature("F1"))

	assert.Equal(t, 4, res.Report.ExtremeRemovedFeatures)
	assert.Equal(t, 1, res.Report.EmptyRemovedSamples)
	assert.Equal(t, 4, res.Report.Features)
	assert.Equal(t, 4, res.Report.Samples)
	assert.Len(t, res.Report.Warnings, 1)

	note, _ := res.SampleMetadata.Row("S1")
	assert.False(t, note[1].Valid())
}

func TestProcessWithoutFilter(t *testing.T) {
	p := NewProcessor(zerolog.Nop())

	res, err := p.Process(endToEndInputs(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, 8, res.Ranks.Len())
	assert.Equal(t, 5, res.SampleMetadata.Len())
	assert.Empty(t, res.Report.Warnings)
	assert.NotNil(t, res.Report.Warnings)
}

func TestProcessReportsUnsupported(t *testing.T) {
	p := NewProcessor(zerolog.Nop())
	in := endToEndInputs(t)
	in.Ranks.RowIDs = append(in.Ranks.RowIDs, "F99")
	in.Ranks.Cells = append(in.Ranks.Cells, []string{"0", "0"})
	in.SampleMetadata.RowIDs = in.SampleMetadata.RowIDs[:4]
	in.SampleMetadata.Cells = in.SampleMetadata.Cells[:4]

	res, err := p.Process(in, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.Unsupported.RankedFeatures)
	assert.Equal(t, 1, res.Report.Unsupported.TableSamples)
	assert.Len(t, res.Report.Warnings, 2)

	_, err = p.Process(in, Options{StrictFeatures: true})
	assert.True(t, errors.Is(err, table.ErrMatch))
}

func TestProcessRejectsReservedColumns(t *testing.T) {
	p := NewProcessor(zerolog.Nop())

	in := endToEndInputs(t)
	in.Ranks.Columns = []string{"Rank 0", ClassificationField}
	_, err := p.Process(in, Options{})
	assert.True(t, errors.Is(err, table.ErrValidation))

	in = endToEndInputs(t)
	in.SampleMetadata.Columns = []string{"Group", BalanceField}
	_, err = p.Process(in, Options{})
	assert.True(t, errors.Is(err, table.ErrValidation))
	assert.Contains(t, err.Error(), BalanceField)
}

func TestProcessValidatesShapes(t *testing.T) {
	p := NewProcessor(zerolog.Nop())

	in := endToEndInputs(t)
	in.Ranks.Columns = nil
	for i := range in.Ranks.Cells {
		in.Ranks.Cells[i] = nil
	}
	_, err := p.Process(in, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, table.ErrValidation))

	// Metadata tables need at least one field beyond the identifier.
	in = endToEndInputs(t)
	in.SampleMetadata.Columns = nil
	for i := range in.SampleMetadata.Cells {
		in.SampleMetadata.Cells[i] = nil
	}
	_, err = p.Process(in, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, table.ErrValidation))
	assert.Contains(t, err.Error(), "sample metadata")

	in = endToEndInputs(t)
	in.FeatureMetadata = frame("feature metadata", "Feature", []string{"F1", "F8"}, nil, [][]string{nil, nil})
	_, err = p.Process(in, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, table.ErrValidation))
	assert.Contains(t, err.Error(), "feature metadata")

	// An empty feature metadata table with a column is legal.
	in = endToEndInputs(t)
	in.FeatureMetadata = frame("feature metadata", "Feature", nil, []string{"Taxonomy"}, nil)
	res, err := p.Process(in, Options{})
	require.NoError(t, err)
	assert.Equal(t, []table.Value{table.Null()}, res.Ranks.MetadataRow(0))
}
