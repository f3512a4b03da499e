package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/atlasmap-sc/rankratio/internal/table"
)

// ExtremeCountParam is the parameter name used in errors.
const ExtremeCountParam = "extreme feature count"

// CheckExtremeCount converts a numeric extreme feature count to an int. It
// must be a positive integer; 3.0 is accepted, 3.5 is not.
func CheckExtremeCount(v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, table.NewParameterError(ExtremeCountParam, v, "must be an integer")
	}
	if v < 1 {
		return 0, table.NewParameterError(ExtremeCountParam, v, "must be at least 1")
	}
	// float64(math.MaxInt) rounds up to 2^63, which does not fit.
	if v >= float64(math.MaxInt) {
		return 0, table.NewParameterError(ExtremeCountParam, v, "is too large")
	}
	return int(v), nil
}

// ParseExtremeCount parses a textual extreme feature count. An empty string
// means unset and yields nil.
func ParseExtremeCount(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if k, err := strconv.Atoi(s); err == nil {
		if k < 1 {
			return nil, table.NewParameterError(ExtremeCountParam, k, "must be at least 1")
		}
		return &k, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, table.NewParameterError(ExtremeCountParam, s, "must be a number")
	}
	k, err := CheckExtremeCount(v)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// Filtered is the output of FilterExtremeFeatures.
type Filtered struct {
	Abundance *table.AbundanceTable
	Ranks     *table.RankTable
	// Removed is the number of features dropped.
	Removed int
	// Warning is set when a count was given but filtering was a no-op.
	Warning string
}

// FilterExtremeFeatures keeps only features that rank among the k lowest or
// k highest values of at least one ranking column. Ties are broken by row
// order. A nil k leaves the inputs unchanged. When 2k covers every ranked
// feature the inputs are returned unchanged with a warning.
//
// Empty samples are not removed here; pruning runs afterwards so that samples
// emptied by this filter are caught.
func FilterExtremeFeatures(ab *table.AbundanceTable, ranks *table.RankTable, k *int) (*Filtered, error) {
	if k == nil {
		return &Filtered{Abundance: ab, Ranks: ranks}, nil
	}
	if *k < 1 {
		return nil, table.NewParameterError(ExtremeCountParam, *k, "must be at least 1")
	}

	n := ranks.Len()
	if *k >= n-*k {
		return &Filtered{
			Abundance: ab,
			Ranks:     ranks,
			Warning: fmt.Sprintf(
				"extreme feature count %d is at least half of the %d ranked feature(s); no features were filtered",
				*k, n),
		}, nil
	}

	keep := make(map[string]struct{}, 2*(*k)*len(ranks.Rankings()))
	features := ranks.Features()
	order := make([]int, n)
	for _, name := range ranks.Rankings() {
		col, _ := ranks.Column(name)

		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return col[order[a]] < col[order[b]] })
		for _, i := range order[:*k] {
			keep[features[i]] = struct{}{}
		}

		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return col[order[a]] > col[order[b]] })
		for _, i := range order[:*k] {
			keep[features[i]] = struct{}{}
		}
	}

	inUnion := func(f string) bool {
		_, ok := keep[f]
		return ok
	}
	filteredRanks := ranks.Subset(inUnion)
	return &Filtered{
		Abundance: ab.Restrict(inUnion, nil),
		Ranks:     filteredRanks,
		Removed:   n - filteredRanks.Len(),
	}, nil
}
