// Package service provides the per-dataset business logic of the server.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/atlasmap-sc/rankratio/internal/cache"
	"github.com/atlasmap-sc/rankratio/internal/config"
	"github.com/atlasmap-sc/rankratio/internal/data/biom"
	"github.com/atlasmap-sc/rankratio/internal/data/tsv"
	"github.com/atlasmap-sc/rankratio/internal/metrics"
	"github.com/atlasmap-sc/rankratio/internal/payload"
	"github.com/atlasmap-sc/rankratio/internal/pipeline"
)

// Payload kinds served per dataset.
const (
	KindRankPlot   = "rank_plot"
	KindSamplePlot = "sample_plot"
	KindCounts     = "counts"
	KindReport     = "report"
)

var (
	// ErrUnknownKind is returned for a payload kind outside the Kind constants.
	ErrUnknownKind = errors.New("unknown payload kind")
	// ErrFeatureNotFound is returned when a feature has no counts after filtering.
	ErrFeatureNotFound = errors.New("feature not found")
)

// LoadInputs reads every input file of a dataset. Files are read concurrently.
func LoadInputs(ds config.DatasetConfig) (pipeline.Inputs, error) {
	var in pipeline.Inputs
	var g errgroup.Group

	g.Go(func() error {
		format := ds.RanksFormat
		if format == "" {
			format = tsv.FormatAuto
		}
		f, err := tsv.LoadRanks(ds.Ranks, tsv.RankOptions{Format: format, DropIntercept: ds.DropsIntercept()})
		in.Ranks = f
		return err
	})
	g.Go(func() error {
		ab, err := biom.Load(ds.Table)
		in.Abundance = ab
		return err
	})
	g.Go(func() error {
		f, err := tsv.LoadMetadata(ds.SampleMetadata, tsv.SampleMetadataName)
		in.SampleMetadata = f
		return err
	})
	if ds.FeatureMetadata != "" {
		g.Go(func() error {
			f, err := tsv.LoadMetadata(ds.FeatureMetadata, tsv.FeatureMetadataName)
			in.FeatureMetadata = f
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return pipeline.Inputs{}, err
	}
	return in, nil
}

// DatasetServiceConfig contains dataset service configuration.
type DatasetServiceConfig struct {
	DatasetID string
	Dataset   config.DatasetConfig
	Cache     *cache.Manager
	// Metrics may be nil.
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// DatasetService runs the pipeline for one dataset and caches the encoded
// payloads per extreme feature count.
type DatasetService struct {
	id        string
	ds        config.DatasetConfig
	cache     *cache.Manager
	metrics   *metrics.Metrics
	log       zerolog.Logger
	processor *pipeline.Processor

	loadOnce sync.Once
	inputs   pipeline.Inputs
	loadErr  error

	flight singleflight.Group
}

// NewDatasetService creates a new dataset service. Inputs are read lazily.
func NewDatasetService(cfg DatasetServiceConfig) *DatasetService {
	log := cfg.Logger.With().Str("dataset", cfg.DatasetID).Logger()
	return &DatasetService{
		id:        cfg.DatasetID,
		ds:        cfg.Dataset,
		cache:     cfg.Cache,
		metrics:   cfg.Metrics,
		log:       log,
		processor: pipeline.NewProcessor(log),
	}
}

// ID returns the dataset ID.
func (s *DatasetService) ID() string {
	return s.id
}

// Name returns the display name of the dataset.
func (s *DatasetService) Name() string {
	if s.ds.Name != "" {
		return s.ds.Name
	}
	return s.id
}

// DefaultExtremeCount returns the configured extreme feature count, or nil.
func (s *DatasetService) DefaultExtremeCount() *int {
	return s.ds.ExtremeFeatureCount
}

// Load reads the dataset inputs once. Later calls return the first result.
func (s *DatasetService) Load() error {
	s.loadOnce.Do(func() {
		start := time.Now()
		s.inputs, s.loadErr = LoadInputs(s.ds)
		if s.loadErr != nil {
			s.loadErr = fmt.Errorf("dataset %s: %w", s.id, s.loadErr)
			return
		}
		s.log.Info().
			Int("ranked_features", len(s.inputs.Ranks.RowIDs)).
			Int("table_features", len(s.inputs.Abundance.Features())).
			Int("table_samples", len(s.inputs.Abundance.Samples())).
			Int("table_entries", s.inputs.Abundance.NonZero()).
			Dur("elapsed", time.Since(start)).
			Msg("loaded dataset inputs")
	})
	return s.loadErr
}

// Run executes the pipeline with the given extreme feature count. A nil k
// falls back to the dataset default.
func (s *DatasetService) Run(k *int) (*pipeline.Result, error) {
	if err := s.Load(); err != nil {
		return nil, err
	}
	if k == nil {
		k = s.ds.ExtremeFeatureCount
	}

	start := time.Now()
	res, err := s.processor.Process(s.inputs, pipeline.Options{
		ExtremeFeatureCount: k,
		StrictFeatures:      s.ds.StrictFeatures,
	})
	if s.metrics != nil {
		var report *pipeline.Report
		if res != nil {
			report = &res.Report
		}
		s.metrics.ObservePipeline(s.id, time.Since(start), report, err)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Bundle runs the pipeline and builds every payload.
func (s *DatasetService) Bundle(k *int) (*payload.Bundle, error) {
	res, err := s.Run(k)
	if err != nil {
		return nil, err
	}
	return payload.Build(res), nil
}

// Payload returns one encoded payload. Results are cached per kind and
// extreme feature count; concurrent misses share one pipeline run.
func (s *DatasetService) Payload(kind string, k *int) ([]byte, error) {
	if !validKind(kind) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if k == nil {
		k = s.ds.ExtremeFeatureCount
	}

	key := cache.PayloadKey(s.id, kind, k)
	if data, ok := s.cache.GetPayload(key); ok {
		s.cacheLookup(true)
		return data, nil
	}
	s.cacheLookup(false)

	v, err, _ := s.flight.Do(cache.PayloadKey(s.id, "*", k), func() (interface{}, error) {
		return s.encodeAll(k)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string][]byte)[kind], nil
}

func (s *DatasetService) encodeAll(k *int) (map[string][]byte, error) {
	b, err := s.Bundle(k)
	if err != nil {
		return nil, err
	}

	values := map[string]any{
		KindRankPlot:   b.RankPlot,
		KindSamplePlot: b.SamplePlot,
		KindCounts:     b.Counts,
		KindReport:     b.Report,
	}
	encoded := make(map[string][]byte, len(values))
	for kind, v := range values {
		data, err := payload.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
		}
		encoded[kind] = data
		// Oversized payloads are served uncached.
		if err := s.cache.SetPayload(cache.PayloadKey(s.id, kind, k), data); err != nil {
			s.log.Warn().Err(err).Str("kind", kind).Int("bytes", len(data)).Msg("payload not cached")
		}
	}
	return encoded, nil
}

// FeatureCounts returns the encoded sparse counts of one feature.
func (s *DatasetService) FeatureCounts(feature string, k *int) ([]byte, error) {
	if k == nil {
		k = s.ds.ExtremeFeatureCount
	}

	key := cache.FeatureCountsKey(s.id, k, feature)
	if data, ok := s.cache.GetQuery(key); ok {
		return data, nil
	}

	raw, err := s.Payload(KindCounts, k)
	if err != nil {
		return nil, err
	}
	var counts pipeline.Counts
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil, fmt.Errorf("failed to decode counts: %w", err)
	}
	row := counts.Feature(feature)
	if row == nil {
		return nil, fmt.Errorf("%w: %s", ErrFeatureNotFound, feature)
	}

	data, err := payload.Marshal(row)
	if err != nil {
		return nil, err
	}
	s.cache.SetQuery(key, data)
	return data, nil
}

func (s *DatasetService) cacheLookup(hit bool) {
	if s.metrics != nil {
		s.metrics.CacheLookup(hit)
	}
}

func validKind(kind string) bool {
	switch kind {
	case KindRankPlot, KindSamplePlot, KindCounts, KindReport:
		return true
	}
	return false
}
