package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/atlasmap-sc/rankratio/internal/api"
	"github.com/atlasmap-sc/rankratio/internal/cache"
	"github.com/atlasmap-sc/rankratio/internal/data/compress"
	"github.com/atlasmap-sc/rankratio/internal/metrics"
	"github.com/atlasmap-sc/rankratio/internal/runstore"
	"github.com/atlasmap-sc/rankratio/internal/service"
)

func (a *app) serveCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve plot payloads and asynchronous runs over HTTP",
		Long: `Start the HTTP server for the datasets listed in the configuration file.

Every dataset's inputs are read once at startup. Payloads are computed on
first request for each extreme feature count and cached. Runs submitted to
/api/runs execute on a worker pool and write payload files to disk.`,
		Example: `  rankratio serve --config config/server.yaml
  RANKRATIO_SERVER_PORT=9000 rankratio serve --config config/server.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			return a.runServe(cmd.Context())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "server port (overrides config)")
	return cmd
}

func (a *app) runServe(ctx context.Context) error {
	cfg := a.cfg
	log := a.log

	datasetIDs := cfg.Data.DatasetIDs()
	if len(datasetIDs) == 0 {
		return errors.New("no datasets configured; add data.datasets to the config file")
	}

	cacheManager, err := cache.NewManager(cache.Config{
		PayloadCacheSizeMB: cfg.Cache.PayloadSizeMB,
		PayloadTTL:         time.Duration(cfg.Cache.PayloadTTLMinutes) * time.Minute,
		QueryCacheSize:     cfg.Cache.QueryCacheSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheManager.Close()

	m := metrics.New()
	m.WatchCache(cacheManager.Stats)

	registry := api.NewDatasetRegistry(cfg.Data.DefaultDataset, datasetIDs, cfg.Server.Title)
	for _, id := range datasetIDs {
		registry.Register(id, service.NewDatasetService(service.DatasetServiceConfig{
			DatasetID: id,
			Dataset:   cfg.Data.Datasets[id],
			Cache:     cacheManager,
			Metrics:   m,
			Logger:    log,
		}))
	}

	log.Info().Int("datasets", len(datasetIDs)).Str("default", cfg.Data.DefaultDataset).Msg("loading datasets")
	if err := registry.Warm(ctx, runtime.NumCPU()); err != nil {
		return err
	}

	codec, err := compress.ParseCodec(cfg.Output.Compression)
	if err != nil {
		return err
	}
	store, err := runstore.NewStore(cfg.Runs.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	runs := api.NewRunManager(api.RunManagerConfig{
		MaxConcurrent: cfg.Runs.MaxConcurrent,
		RetentionDays: cfg.Runs.RetentionDays,
		OutputDir:     cfg.Runs.OutputDir,
		Codec:         codec,
	}, store, registry, m, log)
	runs.Start()
	defer runs.Stop()

	router := api.NewRouter(api.RouterConfig{
		Registry:    registry,
		CORSOrigins: cfg.Server.CORSOrigins,
		Runs:        runs,
		Metrics:     m,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
