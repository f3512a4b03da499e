package pipeline

// Field names the pipeline adds to its payload records. User-supplied ranking
// and metadata columns may not use them.
const (
	// ClassificationField carries each feature's log-ratio membership.
	ClassificationField = "rankratio_classification"
	// BalanceField carries each sample's log-ratio; it starts out null.
	BalanceField = "rankratio_balance"

	// FeatureIDField identifies each rank-plot record.
	FeatureIDField = "Feature ID"
	// SampleIDField identifies each sample-plot record.
	SampleIDField = "Sample ID"
)

// Classification values. Every feature starts as ClassNone; the others are
// assigned interactively downstream.
const (
	ClassNone        = "None"
	ClassNumerator   = "Numerator"
	ClassDenominator = "Denominator"
	ClassBoth        = "Both"
)

// Classifications lists the classification domain in display order.
var Classifications = []string{ClassNone, ClassNumerator, ClassDenominator, ClassBoth}

// reservedRankColumns may not appear among ranking or feature metadata columns.
var reservedRankColumns = []string{ClassificationField, BalanceField, FeatureIDField}

// reservedSampleColumns may not appear among sample metadata columns.
var reservedSampleColumns = []string{ClassificationField, BalanceField, SampleIDField}

func firstReserved(columns, reserved []string) (string, bool) {
	for _, c := range columns {
		for _, r := range reserved {
			if c == r {
				return c, true
			}
		}
	}
	return "", false
}
