package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atlasmap-sc/rankratio/internal/data/compress"
	"github.com/atlasmap-sc/rankratio/internal/metrics"
	"github.com/atlasmap-sc/rankratio/internal/payload"
	"github.com/atlasmap-sc/rankratio/internal/pipeline"
	"github.com/atlasmap-sc/rankratio/internal/runstore"
	"github.com/atlasmap-sc/rankratio/internal/table"
)

var (
	// ErrDatasetNotFound is returned for an unknown dataset ID.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrRunNotFound is returned for an unknown run ID.
	ErrRunNotFound = errors.New("run not found")
	// ErrQueueFull is returned when no more runs can be queued.
	ErrQueueFull = errors.New("run queue is full; try again later")
	// ErrStopped is returned after the manager has been stopped.
	ErrStopped = errors.New("run manager stopped")
)

// Run phases recorded while a run executes.
const (
	PhaseLoading    = "loading"
	PhaseProcessing = "processing"
	PhaseWriting    = "writing"
)

// RunManagerConfig contains configuration for the run manager.
type RunManagerConfig struct {
	MaxConcurrent int // Max concurrent runs (default 1)
	RetentionDays int // Days to keep finished runs (default 7)
	OutputDir     string
	Codec         compress.Codec
	CleanupPeriod time.Duration
	QueueSize     int
}

// RunManager executes pipeline runs asynchronously on a fixed worker pool
// and persists their state.
type RunManager struct {
	cfg      RunManagerConfig
	store    *runstore.Store
	registry *DatasetRegistry
	metrics  *metrics.Metrics
	log      zerolog.Logger

	queue    chan string // run IDs
	running  map[string]context.CancelFunc
	stopped  bool
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRunManager creates a run manager. metrics may be nil.
func NewRunManager(cfg RunManagerConfig, store *runstore.Store, registry *DatasetRegistry, m *metrics.Metrics, log zerolog.Logger) *RunManager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = time.Hour
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Codec == "" {
		cfg.Codec = compress.None
	}

	return &RunManager{
		cfg:      cfg,
		store:    store,
		registry: registry,
		metrics:  m,
		log:      log.With().Str("component", "runs").Logger(),
		queue:    make(chan string, cfg.QueueSize),
		running:  make(map[string]context.CancelFunc),
		stopCh:   make(chan struct{}),
	}
}

// Start recovers state left by a previous process, then starts the workers
// and the cleanup ticker.
func (m *RunManager) Start() {
	if n, err := m.store.MarkRunningAsFailed("server restarted"); err != nil {
		m.log.Error().Err(err).Msg("failed to mark running runs as failed")
	} else if n > 0 {
		m.log.Warn().Int64("runs", n).Msg("marked interrupted runs as failed")
	}

	queued, err := m.store.ListQueuedRuns()
	if err != nil {
		m.log.Error().Err(err).Msg("failed to list queued runs")
	}
	for _, run := range queued {
		select {
		case m.queue <- run.ID:
			m.log.Info().Str("run_id", run.ID).Msg("re-queued run")
		default:
			m.log.Warn().Str("run_id", run.ID).Msg("queue full, cannot re-queue run")
			m.store.UpdateRunStatus(run.ID, runstore.RunStatusFailed, ErrQueueFull.Error())
		}
	}
	m.reportDepth()

	for i := 0; i < m.cfg.MaxConcurrent; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	go m.cleaner()
}

// Stop cancels in-flight runs, waits for the workers and closes the store.
func (m *RunManager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		for _, cancel := range m.running {
			cancel()
		}
		close(m.queue)
		m.mu.Unlock()

		close(m.stopCh)
		m.wg.Wait()
		m.store.Close()
	})
}

func (m *RunManager) worker() {
	defer m.wg.Done()
	for runID := range m.queue {
		m.reportDepth()
		m.execute(runID)
	}
}

func (m *RunManager) execute(runID string) {
	run, err := m.store.GetRun(runID)
	if err != nil || run == nil {
		m.log.Error().Err(err).Str("run_id", runID).Msg("queued run disappeared")
		return
	}
	// Cancelled while queued.
	if run.Status != runstore.RunStatusQueued {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.running[runID] = cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.running, runID)
		m.mu.Unlock()
	}()

	if err := m.store.UpdateRunStarted(runID); err != nil {
		m.log.Error().Err(err).Str("run_id", runID).Msg("failed to mark run as started")
		return
	}

	log := m.log.With().Str("run_id", runID).Str("dataset", run.DatasetID).Logger()
	log.Info().Msg("run started")

	execErr := m.process(ctx, run)

	switch {
	case ctx.Err() != nil:
		msg := "cancelled by user"
		m.mu.Lock()
		if m.stopped {
			msg = "server shutting down"
		}
		m.mu.Unlock()
		os.RemoveAll(m.runDir(runID))
		m.store.UpdateRunStatus(runID, runstore.RunStatusCancelled, msg)
		log.Info().Msg("run cancelled")
	case execErr != nil:
		m.store.UpdateRunStatus(runID, runstore.RunStatusFailed, execErr.Error())
		log.Warn().Err(execErr).Msg("run failed")
	default:
		log.Info().Msg("run completed")
	}
}

// process runs the pipeline and writes the payload files. The pipeline
// itself is not interruptible; cancellation is checked between phases.
func (m *RunManager) process(ctx context.Context, run *runstore.Run) error {
	svc := m.registry.Get(run.DatasetID)
	if svc == nil {
		return fmt.Errorf("%w: %s", ErrDatasetNotFound, run.DatasetID)
	}

	m.store.UpdateRunPhase(run.ID, PhaseLoading)
	if err := svc.Load(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.store.UpdateRunPhase(run.ID, PhaseProcessing)
	bundle, err := svc.Bundle(run.Params.ExtremeFeatureCount)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.store.UpdateRunPhase(run.ID, PhaseWriting)
	files, err := payload.WriteDir(m.runDir(run.ID), bundle, m.cfg.Codec)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.store.CompleteRun(run.ID, &bundle.Report, files)
}

func (m *RunManager) runDir(runID string) string {
	return filepath.Join(m.cfg.OutputDir, runID)
}

func (m *RunManager) reportDepth() {
	if m.metrics != nil {
		m.metrics.SetQueueDepth(len(m.queue))
	}
}

func (m *RunManager) cleaner() {
	ticker := time.NewTicker(m.cfg.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *RunManager) cleanup() {
	ids, err := m.store.DeleteExpiredRuns(m.cfg.RetentionDays)
	if err != nil {
		m.log.Error().Err(err).Msg("cleanup failed")
		return
	}
	for _, id := range ids {
		if err := os.RemoveAll(m.runDir(id)); err != nil {
			m.log.Warn().Err(err).Str("run_id", id).Msg("failed to remove run output")
		}
	}
	if len(ids) > 0 {
		m.log.Info().Int("runs", len(ids)).Msg("cleaned up expired runs")
	}
}

// Submit validates the parameters, records a new run and enqueues it.
func (m *RunManager) Submit(params runstore.RunParams) (*runstore.Run, error) {
	if m.registry.Get(params.DatasetID) == nil {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, params.DatasetID)
	}
	if k := params.ExtremeFeatureCount; k != nil && *k < 1 {
		return nil, table.NewParameterError(pipeline.ExtremeCountParam, *k, "must be at least 1")
	}

	run := &runstore.Run{
		ID:        uuid.NewString(),
		DatasetID: params.DatasetID,
		Status:    runstore.RunStatusQueued,
		Params:    params,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, ErrStopped
	}
	if err := m.store.CreateRun(run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	select {
	case m.queue <- run.ID:
	default:
		m.store.UpdateRunStatus(run.ID, runstore.RunStatusFailed, ErrQueueFull.Error())
		return nil, ErrQueueFull
	}
	m.reportDepth()
	return run, nil
}

// Get returns a run by ID.
func (m *RunManager) Get(id string) (*runstore.Run, error) {
	run, err := m.store.GetRun(id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// List returns the runs of a dataset, newest first.
func (m *RunManager) List(datasetID string) ([]*runstore.Run, error) {
	if m.registry.Get(datasetID) == nil {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, datasetID)
	}
	runs, err := m.store.ListRunsByDataset(datasetID)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []*runstore.Run{}
	}
	return runs, nil
}

// Cancel cancels a queued or running run. It reports false when the run
// had already finished.
func (m *RunManager) Cancel(id string) (bool, error) {
	m.mu.Lock()
	cancel, ok := m.running[id]
	m.mu.Unlock()
	if ok {
		cancel()
		return true, nil
	}

	run, err := m.Get(id)
	if err != nil {
		return false, err
	}
	if run.Status == runstore.RunStatusQueued {
		if err := m.store.UpdateRunStatus(id, runstore.RunStatusCancelled, "cancelled before start"); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Delete removes a finished run and its output files.
func (m *RunManager) Delete(id string) error {
	run, err := m.Get(id)
	if err != nil {
		return err
	}
	if !run.Status.Finished() {
		return fmt.Errorf("run %s is %s; cancel it first", id, run.Status)
	}
	if err := os.RemoveAll(m.runDir(id)); err != nil {
		return fmt.Errorf("failed to remove run output: %w", err)
	}
	return m.store.DeleteRun(id)
}
