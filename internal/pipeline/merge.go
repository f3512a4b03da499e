package pipeline

import (
	"github.com/atlasmap-sc/rankratio/internal/table"
)

// MergeFeatureMetadata left-joins feature metadata columns onto the ranks by
// feature identifier and returns the injected column names. Ranked features
// without metadata get the missing value in every injected column; metadata
// rows for unranked features are ignored.
//
// A nil fm returns ranks unchanged and an empty column list. A metadata
// column named like a ranking column or a reserved field is a
// ValidationError.
func MergeFeatureMetadata(ranks *table.RankTable, fm *table.MetadataTable) (*table.RankTable, []string, error) {
	if fm == nil {
		return ranks, []string{}, nil
	}

	columns := fm.Columns()
	for _, c := range columns {
		for _, r := range ranks.Rankings() {
			if c == r {
				return nil, nil, table.NewValidationError(fm.Name(),
					"column %q has the same name as a ranking column; rename it", c)
			}
		}
	}
	if c, ok := firstReserved(columns, reservedRankColumns); ok {
		return nil, nil, table.NewValidationError(fm.Name(),
			"column %q uses a reserved name; rename it", c)
	}

	meta := make([][]table.Value, ranks.Len())
	for i, f := range ranks.Features() {
		if row, ok := fm.Row(f); ok {
			meta[i] = row
			continue
		}
		meta[i] = make([]table.Value, len(columns))
	}

	injected := make([]string, len(columns))
	copy(injected, columns)
	return ranks.WithMetadata(injected, meta), injected, nil
}
