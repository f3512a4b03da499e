package pipeline

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/atlasmap-sc/rankratio/internal/table"
)

// Inputs are the raw tables for one run. FeatureMetadata may be nil.
type Inputs struct {
	Ranks           *table.Frame
	SampleMetadata  *table.Frame
	FeatureMetadata *table.Frame
	Abundance       *table.AbundanceTable
}

// Options tune one run.
type Options struct {
	// ExtremeFeatureCount enables the extreme feature filter when non-nil.
	ExtremeFeatureCount *int
	// StrictFeatures makes any ranked feature missing from the abundance
	// table a MatchError.
	StrictFeatures bool
}

// Report summarizes what a run dropped and why.
type Report struct {
	Unsupported            Unsupported `json:"unsupported"`
	ExtremeRemovedFeatures int         `json:"extreme_removed_features"`
	EmptyRemovedSamples    int         `json:"empty_removed_samples"`
	EmptyRemovedFeatures   int         `json:"empty_removed_features"`
	Features               int         `json:"features"`
	Samples                int         `json:"samples"`
	Warnings               []string    `json:"warnings"`
}

// Result is the consistent, filtered dataset produced by a run.
type Result struct {
	// Ranks carries ranking values and merged feature metadata.
	Ranks                  *table.RankTable
	RankingColumns         []string
	FeatureMetadataColumns []string
	SampleMetadata         *table.MetadataTable
	Abundance              *table.AbundanceTable
	Report                 Report
}

// Counts returns the sparsified abundance table.
func (r *Result) Counts() Counts {
	return Sparsify(r.Abundance)
}

// Processor runs the validate, match, filter, prune, merge sequence.
// A Processor holds no per-run state and may be shared.
type Processor struct {
	log zerolog.Logger
}

// NewProcessor creates a processor that logs through log.
func NewProcessor(log zerolog.Logger) *Processor {
	return &Processor{log: log.With().Str("component", "pipeline").Logger()}
}

// Process runs the pipeline over in. The first error stops the run.
func (p *Processor) Process(in Inputs, opts Options) (*Result, error) {
	if in.Ranks == nil || in.SampleMetadata == nil || in.Abundance == nil {
		return nil, fmt.Errorf("ranks, sample metadata and abundance table are required")
	}

	ranks, sampleMD, featureMD, err := p.load(in)
	if err != nil {
		return nil, err
	}
	p.log.Debug().
		Int("ranked_features", ranks.Len()).
		Int("rankings", len(ranks.Rankings())).
		Int("table_features", len(in.Abundance.Features())).
		Int("table_samples", len(in.Abundance.Samples())).
		Int("metadata_samples", sampleMD.Len()).
		Msg("inputs validated")

	var report Report

	matched, err := Match(in.Abundance, ranks, sampleMD, MatchOptions{StrictFeatures: opts.StrictFeatures})
	if err != nil {
		return nil, err
	}
	report.Unsupported = matched.Unsupported
	p.warnUnsupported(&report)

	filtered, err := FilterExtremeFeatures(matched.Abundance, matched.Ranks, opts.ExtremeFeatureCount)
	if err != nil {
		return nil, err
	}
	report.ExtremeRemovedFeatures = filtered.Removed
	if filtered.Warning != "" {
		p.warn(&report, filtered.Warning)
	}
	p.log.Debug().Int("removed", filtered.Removed).Msg("extreme feature filter done")

	pruned, err := PruneEmpty(filtered.Abundance, matched.SampleMetadata, filtered.Ranks)
	if err != nil {
		return nil, err
	}
	report.EmptyRemovedSamples = len(pruned.RemovedSamples)
	report.EmptyRemovedFeatures = len(pruned.RemovedFeatures)
	if n := len(pruned.RemovedSamples); n > 0 {
		p.warn(&report, fmt.Sprintf("%d sample(s) had no counts after filtering and were removed", n))
	}
	if n := len(pruned.RemovedFeatures); n > 0 {
		p.warn(&report, fmt.Sprintf("%d feature(s) had no counts after filtering and were removed", n))
	}

	merged, columns, err := MergeFeatureMetadata(pruned.Ranks, featureMD)
	if err != nil {
		return nil, err
	}

	report.Features = merged.Len()
	report.Samples = pruned.SampleMetadata.Len()
	if report.Warnings == nil {
		report.Warnings = []string{}
	}
	p.log.Info().
		Int("features", report.Features).
		Int("samples", report.Samples).
		Int("warnings", len(report.Warnings)).
		Msg("pipeline finished")

	return &Result{
		Ranks:                  merged,
		RankingColumns:         merged.Rankings(),
		FeatureMetadataColumns: columns,
		SampleMetadata:         pruned.SampleMetadata,
		Abundance:              pruned.Abundance,
		Report:                 report,
	}, nil
}

// load validates each frame and converts it to its typed table.
func (p *Processor) load(in Inputs) (*table.RankTable, *table.MetadataTable, *table.MetadataTable, error) {
	if err := table.Validate(in.Ranks, table.RankShape); err != nil {
		return nil, nil, nil, err
	}
	if c, ok := firstReserved(in.Ranks.Columns, reservedRankColumns); ok {
		return nil, nil, nil, table.NewValidationError(in.Ranks.Name, "column %q uses a reserved name; rename it", c)
	}
	ranks, err := in.Ranks.RankTable()
	if err != nil {
		return nil, nil, nil, err
	}

	if err := table.Validate(in.SampleMetadata, table.SampleMetadataShape); err != nil {
		return nil, nil, nil, err
	}
	if c, ok := firstReserved(in.SampleMetadata.Columns, reservedSampleColumns); ok {
		return nil, nil, nil, table.NewValidationError(in.SampleMetadata.Name, "column %q uses a reserved name; rename it", c)
	}
	sampleMD, err := in.SampleMetadata.MetadataTable()
	if err != nil {
		return nil, nil, nil, err
	}

	var featureMD *table.MetadataTable
	if in.FeatureMetadata != nil {
		if err := table.Validate(in.FeatureMetadata, table.FeatureMetadataShape); err != nil {
			return nil, nil, nil, err
		}
		featureMD, err = in.FeatureMetadata.MetadataTable()
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return ranks, sampleMD, featureMD, nil
}

func (p *Processor) warnUnsupported(r *Report) {
	u := r.Unsupported
	if u.RankedFeatures > 0 {
		p.warn(r, fmt.Sprintf("%d ranked feature(s) were not present in the abundance table and were dropped", u.RankedFeatures))
	}
	if u.TableFeatures > 0 {
		p.warn(r, fmt.Sprintf("%d feature(s) in the abundance table were not ranked and were dropped", u.TableFeatures))
	}
	if u.MetadataSamples > 0 {
		p.warn(r, fmt.Sprintf("%d sample(s) in the sample metadata were not present in the abundance table and were dropped", u.MetadataSamples))
	}
	if u.TableSamples > 0 {
		p.warn(r, fmt.Sprintf("%d sample(s) in the abundance table had no metadata and were dropped", u.TableSamples))
	}
}

func (p *Processor) warn(r *Report, msg string) {
	r.Warnings = append(r.Warnings, msg)
	p.log.Warn().Msg(msg)
}
