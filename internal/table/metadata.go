package table

// MetadataTable holds named string fields per identifier (sample or feature).
type MetadataTable struct {
	name    string
	ids     []string
	index   map[string]int
	columns []string
	values  [][]Value // [row][column]
}

// NewMetadataTable builds a metadata table. name is used in error messages.
func NewMetadataTable(name string, ids, columns []string, values [][]Value) (*MetadataTable, error) {
	if len(values) != len(ids) {
		return nil, NewValidationError(name, "%d row(s) of values for %d ID(s)", len(values), len(ids))
	}
	if dup, ok := firstDuplicate(ids); ok {
		return nil, NewValidationError(name, "contains duplicate ID %q", dup)
	}
	if dup, ok := firstDuplicate(columns); ok {
		return nil, NewValidationError(name, "contains duplicate column name %q", dup)
	}
	for i, row := range values {
		if len(row) != len(columns) {
			return nil, NewValidationError(name, "row %q has %d value(s), expected %d", ids[i], len(row), len(columns))
		}
	}
	return &MetadataTable{
		name:    name,
		ids:     ids,
		index:   indexOf(ids),
		columns: columns,
		values:  values,
	}, nil
}

// Name returns the table kind used in error messages.
func (t *MetadataTable) Name() string { return t.name }

// Len returns the number of rows.
func (t *MetadataTable) Len() int { return len(t.ids) }

// IDs returns the row identifiers in order. The slice must not be modified.
func (t *MetadataTable) IDs() []string { return t.ids }

// Columns returns the column names. The slice must not be modified.
func (t *MetadataTable) Columns() []string { return t.columns }

// Has reports whether the identifier has a row.
func (t *MetadataTable) Has(id string) bool {
	_, ok := t.index[id]
	return ok
}

// Row returns the values for id.
func (t *MetadataTable) Row(id string) ([]Value, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return t.values[i], true
}

// Subset returns a table with only the rows for which keep returns true.
func (t *MetadataTable) Subset(keep func(id string) bool) *MetadataTable {
	out := &MetadataTable{name: t.name, columns: t.columns}
	for i, id := range t.ids {
		if keep(id) {
			out.ids = append(out.ids, id)
			out.values = append(out.values, t.values[i])
		}
	}
	out.index = indexOf(out.ids)
	return out
}
