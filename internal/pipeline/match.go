package pipeline

import (
	"github.com/atlasmap-sc/rankratio/internal/table"
)

// Unsupported counts identifiers dropped while matching tables.
type Unsupported struct {
	// RankedFeatures are ranked but absent from the abundance table.
	RankedFeatures int `json:"ranked_features"`
	// TableFeatures are in the abundance table but not ranked.
	TableFeatures int `json:"table_features"`
	// MetadataSamples have metadata but are absent from the abundance table.
	MetadataSamples int `json:"metadata_samples"`
	// TableSamples are in the abundance table but have no metadata.
	TableSamples int `json:"table_samples"`
}

// Matched is the abundance table, ranks, and sample metadata restricted to
// the shared identifiers on each axis.
type Matched struct {
	Abundance      *table.AbundanceTable
	Ranks          *table.RankTable
	SampleMetadata *table.MetadataTable
	Unsupported    Unsupported
}

// MatchOptions tunes Match.
type MatchOptions struct {
	// StrictFeatures fails the match when any ranked feature is absent from
	// the abundance table instead of dropping it.
	StrictFeatures bool
}

// Match intersects feature identifiers between the abundance table and the
// ranks, and sample identifiers between the abundance table and the sample
// metadata, then restricts all three tables to those intersections.
//
// An empty intersection on either axis is a MatchError. Features are checked
// first.
func Match(ab *table.AbundanceTable, ranks *table.RankTable, md *table.MetadataTable, opts MatchOptions) (*Matched, error) {
	var u Unsupported

	sharedFeatures := 0
	for _, f := range ranks.Features() {
		if ab.HasFeature(f) {
			sharedFeatures++
		} else {
			u.RankedFeatures++
		}
	}
	u.TableFeatures = len(ab.Features()) - sharedFeatures
	if sharedFeatures == 0 {
		return nil, table.NewMatchError("feature", "no features in common between the abundance table and the feature ranks")
	}
	if opts.StrictFeatures && u.RankedFeatures > 0 {
		return nil, table.NewMatchError("feature", "%d ranked feature(s) were not present in the abundance table.", u.RankedFeatures)
	}

	sharedSamples := 0
	for _, s := range md.IDs() {
		if ab.HasSample(s) {
			sharedSamples++
		} else {
			u.MetadataSamples++
		}
	}
	u.TableSamples = len(ab.Samples()) - sharedSamples
	if sharedSamples == 0 {
		return nil, table.NewMatchError("sample", "no samples in common between the abundance table and the sample metadata")
	}

	return &Matched{
		Abundance:      ab.Restrict(ranks.Has, md.Has),
		Ranks:          ranks.Subset(ab.HasFeature),
		SampleMetadata: md.Subset(ab.HasSample),
		Unsupported:    u,
	}, nil
}
