package pipeline

import (
	"github.com/atlasmap-sc/rankratio/internal/table"
)

// Counts maps feature ID -> sample ID -> nonzero count.
type Counts map[string]map[string]float64

// Sparsify converts the abundance table to a nested mapping with every zero
// entry dropped. Nonzero values, negative ones included, are kept verbatim.
// Features with no nonzero entries are omitted.
func Sparsify(ab *table.AbundanceTable) Counts {
	out := make(Counts)
	ab.Range(func(feature, sample string, v float64) {
		if v == 0 {
			return
		}
		row, ok := out[feature]
		if !ok {
			row = make(map[string]float64)
			out[feature] = row
		}
		row[sample] = v
	})
	return out
}

// Feature returns one feature's counts, or nil.
func (c Counts) Feature(id string) map[string]float64 {
	return c[id]
}
