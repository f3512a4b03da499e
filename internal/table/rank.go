package table

// RankTable holds one or more named numeric rankings per feature, plus any
// feature metadata columns merged in later. Row order is the order features
// appeared in the input and is preserved by every operation.
type RankTable struct {
	features []string
	index    map[string]int
	rankings []string
	values   [][]float64 // [row][ranking]

	metaColumns []string
	meta        [][]Value // [row][metaColumn]
}

// NewRankTable builds a ranking table from row-major values.
func NewRankTable(features, rankings []string, values [][]float64) (*RankTable, error) {
	if len(rankings) == 0 {
		return nil, NewValidationError("feature ranks", "must have at least one ranking column")
	}
	if len(values) != len(features) {
		return nil, NewValidationError("feature ranks", "%d row(s) of values for %d feature(s)", len(values), len(features))
	}
	if dup, ok := firstDuplicate(features); ok {
		return nil, NewValidationError("feature ranks", "contains duplicate ID %q", dup)
	}
	if dup, ok := firstDuplicate(rankings); ok {
		return nil, NewValidationError("feature ranks", "contains duplicate column name %q", dup)
	}
	for i, row := range values {
		if len(row) != len(rankings) {
			return nil, NewValidationError("feature ranks", "row %q has %d value(s), expected %d", features[i], len(row), len(rankings))
		}
	}
	return &RankTable{
		features: features,
		index:    indexOf(features),
		rankings: rankings,
		values:   values,
	}, nil
}

func indexOf(ids []string) map[string]int {
	idx := make(map[string]int, len(ids))
	for i, id := range ids {
		idx[id] = i
	}
	return idx
}

// Len returns the number of ranked features.
func (t *RankTable) Len() int { return len(t.features) }

// Features returns feature identifiers in row order. The slice must not be modified.
func (t *RankTable) Features() []string { return t.features }

// Rankings returns the ranking column names. The slice must not be modified.
func (t *RankTable) Rankings() []string { return t.rankings }

// MetadataColumns returns the merged feature metadata column names.
func (t *RankTable) MetadataColumns() []string { return t.metaColumns }

// Has reports whether the feature is ranked.
func (t *RankTable) Has(feature string) bool {
	_, ok := t.index[feature]
	return ok
}

// Row returns the ranking values of row i.
func (t *RankTable) Row(i int) []float64 { return t.values[i] }

// MetadataRow returns the merged metadata values of row i (nil if none merged).
func (t *RankTable) MetadataRow(i int) []Value {
	if t.meta == nil {
		return nil
	}
	return t.meta[i]
}

// Column returns one ranking column aligned with Features.
func (t *RankTable) Column(ranking string) ([]float64, bool) {
	col := -1
	for j, name := range t.rankings {
		if name == ranking {
			col = j
			break
		}
	}
	if col < 0 {
		return nil, false
	}
	out := make([]float64, len(t.features))
	for i, row := range t.values {
		out[i] = row[col]
	}
	return out, true
}

// Subset returns a table with only the features for which keep returns true,
// in the original row order.
func (t *RankTable) Subset(keep func(feature string) bool) *RankTable {
	out := &RankTable{
		rankings:    t.rankings,
		metaColumns: t.metaColumns,
	}
	for i, f := range t.features {
		if !keep(f) {
			continue
		}
		out.features = append(out.features, f)
		out.values = append(out.values, t.values[i])
		if t.meta != nil {
			out.meta = append(out.meta, t.meta[i])
		}
	}
	out.index = indexOf(out.features)
	return out
}

// WithMetadata returns a copy of the table carrying the given metadata
// columns. meta is row-major and aligned with Features.
func (t *RankTable) WithMetadata(columns []string, meta [][]Value) *RankTable {
	return &RankTable{
		features:    t.features,
		index:       t.index,
		rankings:    t.rankings,
		values:      t.values,
		metaColumns: columns,
		meta:        meta,
	}
}
