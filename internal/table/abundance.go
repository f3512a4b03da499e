package table

import "fmt"

// AbundanceTable is a sparse feature-by-sample count matrix. Only nonzero
// entries are stored.
type AbundanceTable struct {
	features   []string
	samples    []string
	featureIdx map[string]int
	sampleIdx  map[string]int
	entries    map[string]map[string]float64 // feature -> sample -> value
}

// AbundanceBuilder accumulates entries for a new AbundanceTable.
type AbundanceBuilder struct {
	t *AbundanceTable
}

// NewAbundanceBuilder starts a table over the given axes. Identifiers must be
// unique within each axis.
func NewAbundanceBuilder(features, samples []string) (*AbundanceBuilder, error) {
	if dup, ok := firstDuplicate(features); ok {
		return nil, NewValidationError("abundance table", "contains duplicate feature ID %q", dup)
	}
	if dup, ok := firstDuplicate(samples); ok {
		return nil, NewValidationError("abundance table", "contains duplicate sample ID %q", dup)
	}
	return &AbundanceBuilder{t: &AbundanceTable{
		features:   features,
		samples:    samples,
		featureIdx: indexOf(features),
		sampleIdx:  indexOf(samples),
		entries:    make(map[string]map[string]float64),
	}}, nil
}

// Set stores a value. Setting zero removes any stored entry.
func (b *AbundanceBuilder) Set(feature, sample string, v float64) error {
	if _, ok := b.t.featureIdx[feature]; !ok {
		return fmt.Errorf("unknown feature %q", feature)
	}
	if _, ok := b.t.sampleIdx[sample]; !ok {
		return fmt.Errorf("unknown sample %q", sample)
	}
	row := b.t.entries[feature]
	if v == 0 {
		if row != nil {
			delete(row, sample)
			if len(row) == 0 {
				delete(b.t.entries, feature)
			}
		}
		return nil
	}
	if row == nil {
		row = make(map[string]float64)
		b.t.entries[feature] = row
	}
	row[sample] = v
	return nil
}

// SetAt stores a value by axis position.
func (b *AbundanceBuilder) SetAt(featureIdx, sampleIdx int, v float64) error {
	if featureIdx < 0 || featureIdx >= len(b.t.features) {
		return fmt.Errorf("feature index %d out of range (%d features)", featureIdx, len(b.t.features))
	}
	if sampleIdx < 0 || sampleIdx >= len(b.t.samples) {
		return fmt.Errorf("sample index %d out of range (%d samples)", sampleIdx, len(b.t.samples))
	}
	return b.Set(b.t.features[featureIdx], b.t.samples[sampleIdx], v)
}

// Build returns the finished table. The builder must not be used afterwards.
func (b *AbundanceBuilder) Build() *AbundanceTable {
	t := b.t
	b.t = nil
	return t
}

// Features returns feature identifiers in order. The slice must not be modified.
func (t *AbundanceTable) Features() []string { return t.features }

// Samples returns sample identifiers in order. The slice must not be modified.
func (t *AbundanceTable) Samples() []string { return t.samples }

// HasFeature reports whether the feature is on the table's feature axis.
func (t *AbundanceTable) HasFeature(id string) bool {
	_, ok := t.featureIdx[id]
	return ok
}

// HasSample reports whether the sample is on the table's sample axis.
func (t *AbundanceTable) HasSample(id string) bool {
	_, ok := t.sampleIdx[id]
	return ok
}

// Get returns the value at (feature, sample); absent entries are zero.
func (t *AbundanceTable) Get(feature, sample string) float64 {
	return t.entries[feature][sample]
}

// NonZero returns the number of stored entries.
func (t *AbundanceTable) NonZero() int {
	n := 0
	for _, row := range t.entries {
		n += len(row)
	}
	return n
}

// Range calls fn for every stored entry. Iteration order is unspecified.
func (t *AbundanceTable) Range(fn func(feature, sample string, v float64)) {
	for f, row := range t.entries {
		for s, v := range row {
			fn(f, s, v)
		}
	}
}

// FeatureTotals returns the sum over samples for every feature on the axis.
func (t *AbundanceTable) FeatureTotals() map[string]float64 {
	totals := make(map[string]float64, len(t.features))
	for _, f := range t.features {
		totals[f] = 0
	}
	for f, row := range t.entries {
		for _, v := range row {
			totals[f] += v
		}
	}
	return totals
}

// SampleTotals returns the sum over features for every sample on the axis.
func (t *AbundanceTable) SampleTotals() map[string]float64 {
	totals := make(map[string]float64, len(t.samples))
	for _, s := range t.samples {
		totals[s] = 0
	}
	for _, row := range t.entries {
		for s, v := range row {
			totals[s] += v
		}
	}
	return totals
}

// Restrict returns a table limited to the kept features and samples, with
// axis order preserved. A nil predicate keeps the whole axis.
func (t *AbundanceTable) Restrict(keepFeature, keepSample func(id string) bool) *AbundanceTable {
	features := filterIDs(t.features, keepFeature)
	samples := filterIDs(t.samples, keepSample)
	out := &AbundanceTable{
		features:   features,
		samples:    samples,
		featureIdx: indexOf(features),
		sampleIdx:  indexOf(samples),
		entries:    make(map[string]map[string]float64),
	}
	for f, row := range t.entries {
		if _, ok := out.featureIdx[f]; !ok {
			continue
		}
		var kept map[string]float64
		for s, v := range row {
			if _, ok := out.sampleIdx[s]; !ok {
				continue
			}
			if kept == nil {
				kept = make(map[string]float64)
			}
			kept[s] = v
		}
		if kept != nil {
			out.entries[f] = kept
		}
	}
	return out
}

func filterIDs(ids []string, keep func(string) bool) []string {
	if keep == nil {
		return ids
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if keep(id) {
			out = append(out, id)
		}
	}
	return out
}
