package pipeline

import (
	"github.com/atlasmap-sc/rankratio/internal/table"
)

// Pruned is the output of PruneEmpty.
type Pruned struct {
	Abundance       *table.AbundanceTable
	SampleMetadata  *table.MetadataTable
	Ranks           *table.RankTable
	RemovedSamples  []string
	RemovedFeatures []string
}

// PruneEmpty removes samples and features whose total abundance is zero and
// restricts the sample metadata and ranks to what is left.
//
// Both axes are judged from the same snapshot of the table, in a single pass.
// With signed values, removing a feature can leave a sample whose remaining
// entries sum to zero (and vice versa); such entries survive. Iterating to a
// fixed point would change which samples and features are kept.
//
// Removing every sample is a MatchError.
func PruneEmpty(ab *table.AbundanceTable, md *table.MetadataTable, ranks *table.RankTable) (*Pruned, error) {
	featureTotals := ab.FeatureTotals()
	sampleTotals := ab.SampleTotals()

	var removedFeatures, removedSamples []string
	for _, f := range ab.Features() {
		if featureTotals[f] == 0 {
			removedFeatures = append(removedFeatures, f)
		}
	}
	for _, s := range ab.Samples() {
		if sampleTotals[s] == 0 {
			removedSamples = append(removedSamples, s)
		}
	}
	if len(removedSamples) == len(ab.Samples()) {
		return nil, table.NewMatchError("sample", "no samples remain after removing empty samples")
	}

	keepFeature := func(f string) bool { return featureTotals[f] != 0 }
	keepSample := func(s string) bool { return sampleTotals[s] != 0 }

	pruned := ab.Restrict(keepFeature, keepSample)
	return &Pruned{
		Abundance:       pruned,
		SampleMetadata:  md.Subset(pruned.HasSample),
		Ranks:           ranks.Subset(pruned.HasFeature),
		RemovedSamples:  removedSamples,
		RemovedFeatures: removedFeatures,
	}, nil
}
