package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atlasmap-sc/rankratio/internal/config"
	"github.com/atlasmap-sc/rankratio/internal/data/compress"
	"github.com/atlasmap-sc/rankratio/internal/data/tsv"
	"github.com/atlasmap-sc/rankratio/internal/payload"
	"github.com/atlasmap-sc/rankratio/internal/pipeline"
	"github.com/atlasmap-sc/rankratio/internal/service"
)

type plotOptions struct {
	ranks               string
	ranksFormat         string
	keepIntercept       bool
	table               string
	sampleMetadata      string
	featureMetadata     string
	outputDir           string
	extremeFeatureCount string
	strictFeatures      bool
	compression         string
}

func (a *app) plotCommand() *cobra.Command {
	var opts plotOptions

	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Run the pipeline once and write the plot payloads",
		Example: `  # Unfiltered payloads
  rankratio plot --ranks ranks.tsv --table table.biom \
    --sample-metadata samples.tsv --output-dir out

  # Keep the 50 highest and 50 lowest features of each ranking
  rankratio plot --ranks ordination.txt --table table.biom.gz \
    --sample-metadata samples.tsv --feature-metadata taxonomy.tsv \
    --extreme-feature-count 50 --output-dir out --compression zstd`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runPlot(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.ranks, "ranks", "", "feature ranking file (TSV or ordination)")
	f.StringVar(&opts.ranksFormat, "ranks-format", tsv.FormatAuto, "ranking file format: auto, tsv, ordination")
	f.BoolVar(&opts.keepIntercept, "keep-intercept", false, "keep an \"Intercept\" ranking column")
	f.StringVar(&opts.table, "table", "", "BIOM abundance table (JSON)")
	f.StringVar(&opts.sampleMetadata, "sample-metadata", "", "sample metadata file")
	f.StringVar(&opts.featureMetadata, "feature-metadata", "", "optional feature metadata file")
	f.StringVar(&opts.outputDir, "output-dir", "", "directory for the payload files")
	f.StringVar(&opts.extremeFeatureCount, "extreme-feature-count", "", "keep only the k highest and k lowest features of each ranking")
	f.BoolVar(&opts.strictFeatures, "strict-features", false, "fail when a ranked feature is missing from the table")
	f.StringVar(&opts.compression, "compression", "", "payload compression: none, gzip, zstd (default from config)")
	for _, name := range []string{"ranks", "table", "sample-metadata", "output-dir"} {
		cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (a *app) runPlot(cmd *cobra.Command, opts plotOptions) error {
	k, err := pipeline.ParseExtremeCount(opts.extremeFeatureCount)
	if err != nil {
		return err
	}

	compression := opts.compression
	if compression == "" {
		compression = a.cfg.Output.Compression
	}
	codec, err := compress.ParseCodec(compression)
	if err != nil {
		return err
	}

	dropIntercept := !opts.keepIntercept
	ds := config.DatasetConfig{
		Ranks:           opts.ranks,
		RanksFormat:     opts.ranksFormat,
		DropIntercept:   &dropIntercept,
		Table:           opts.table,
		SampleMetadata:  opts.sampleMetadata,
		FeatureMetadata: opts.featureMetadata,
	}

	in, err := service.LoadInputs(ds)
	if err != nil {
		return err
	}

	res, err := pipeline.NewProcessor(a.log).Process(in, pipeline.Options{
		ExtremeFeatureCount: k,
		StrictFeatures:      opts.strictFeatures,
	})
	if err != nil {
		return err
	}

	files, err := payload.WriteDir(opts.outputDir, payload.Build(res), codec)
	if err != nil {
		return err
	}

	a.log.Info().
		Int("features", res.Report.Features).
		Int("samples", res.Report.Samples).
		Int("warnings", len(res.Report.Warnings)).
		Str("output_dir", opts.outputDir).
		Msg("wrote plot payloads")

	out := cmd.OutOrStdout()
	for _, path := range files {
		fmt.Fprintln(out, path)
	}
	return nil
}
