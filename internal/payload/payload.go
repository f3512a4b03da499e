// Package payload builds the JSON documents handed to the plotting layer:
// the rank plot, the sample plot and the sparse count mapping.
package payload

import (
	"sort"

	"github.com/atlasmap-sc/rankratio/internal/pipeline"
	"github.com/atlasmap-sc/rankratio/internal/table"
	"github.com/atlasmap-sc/rankratio/pkg/colormap"
)

// Record is one plotted row. Keys are column names; encoding/json writes
// them in sorted order, so output is deterministic.
type Record map[string]any

// RankPlot describes every ranked feature.
type RankPlot struct {
	RankingColumns         []string          `json:"ranking_columns"`
	FeatureMetadataColumns []string          `json:"feature_metadata_columns"`
	DefaultRanking         string            `json:"default_ranking"`
	ClassificationDomain   []string          `json:"classification_domain"`
	ClassificationColors   map[string]string `json:"classification_colors"`
	Records                []Record          `json:"records"`
}

// SamplePlot describes every sample. Its log-ratio field starts out null.
type SamplePlot struct {
	MetadataColumns       []string          `json:"metadata_columns"`
	DefaultMetadataColumn string            `json:"default_metadata_column"`
	CategoryColors        map[string]string `json:"category_colors"`
	RampColors            []string          `json:"ramp_colors"`
	Records               []Record          `json:"records"`
}

// Bundle holds the three payloads of one pipeline result.
type Bundle struct {
	RankPlot   *RankPlot
	SamplePlot *SamplePlot
	Counts     pipeline.Counts
	Report     pipeline.Report
}

// Build converts a pipeline result into its payloads.
func Build(res *pipeline.Result) *Bundle {
	return &Bundle{
		RankPlot:   BuildRankPlot(res.Ranks),
		SamplePlot: BuildSamplePlot(res.SampleMetadata),
		Counts:     res.Counts(),
		Report:     res.Report,
	}
}

// BuildRankPlot emits one record per feature in rank-table order. Each
// record carries the feature ID, ranking values, merged feature metadata,
// and the default classification.
func BuildRankPlot(ranks *table.RankTable) *RankPlot {
	rankings := ranks.Rankings()
	metaCols := ranks.MetadataColumns()
	if metaCols == nil {
		metaCols = []string{}
	}

	records := make([]Record, ranks.Len())
	for i, f := range ranks.Features() {
		rec := make(Record, len(rankings)+len(metaCols)+2)
		rec[pipeline.FeatureIDField] = f
		for j, v := range ranks.Row(i) {
			rec[rankings[j]] = v
		}
		for j, v := range ranks.MetadataRow(i) {
			rec[metaCols[j]] = v
		}
		rec[pipeline.ClassificationField] = pipeline.ClassNone
		records[i] = rec
	}

	return &RankPlot{
		RankingColumns:         rankings,
		FeatureMetadataColumns: metaCols,
		DefaultRanking:         rankings[0],
		ClassificationDomain:   pipeline.Classifications,
		ClassificationColors:   colormap.ClassificationHex(pipeline.Classifications),
		Records:                records,
	}
}

// BuildSamplePlot emits one record per sample sorted by sample ID. The first
// metadata column is the default; its distinct values get categorical
// colors.
func BuildSamplePlot(md *table.MetadataTable) *SamplePlot {
	columns := md.Columns()
	ids := append([]string(nil), md.IDs()...)
	sort.Strings(ids)

	p := &SamplePlot{
		MetadataColumns: columns,
		CategoryColors:  map[string]string{},
		RampColors:      colormap.Blues.Ramp(colormap.Blues.Len()),
		Records:         make([]Record, len(ids)),
	}
	if len(columns) > 0 {
		p.DefaultMetadataColumn = columns[0]
	}

	var categories []string
	seen := make(map[string]bool)
	for i, id := range ids {
		row, _ := md.Row(id)
		rec := make(Record, len(columns)+2)
		rec[pipeline.SampleIDField] = id
		for j, v := range row {
			rec[columns[j]] = v
		}
		rec[pipeline.BalanceField] = nil
		p.Records[i] = rec

		if len(row) > 0 {
			if s, ok := row[0].Str(); ok && !seen[s] {
				seen[s] = true
				categories = append(categories, s)
			}
		}
	}
	if len(categories) > 0 {
		sort.Strings(categories)
		p.CategoryColors = colormap.Tableau10.Assign(categories)
	}
	return p
}
