// Package api provides HTTP handlers for the rankratio server.
package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"github.com/atlasmap-sc/rankratio/internal/metrics"
	"github.com/atlasmap-sc/rankratio/internal/pipeline"
	"github.com/atlasmap-sc/rankratio/internal/runstore"
	"github.com/atlasmap-sc/rankratio/internal/service"
	"github.com/atlasmap-sc/rankratio/internal/table"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *DatasetRegistry
	CORSOrigins []string
	// Runs and Metrics may be nil; their endpoints then answer 501.
	Runs    *RunManager
	Metrics *metrics.Metrics
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	} else {
		r.Get("/metrics", notConfigured("metrics"))
	}

	r.Get("/api/datasets", datasetsHandler(cfg.Registry))

	// Asynchronous runs (not dataset-scoped)
	r.Route("/api/runs", func(r chi.Router) {
		r.Post("/", runSubmitHandler(cfg.Runs))
		r.Get("/", runListHandler(cfg.Runs))
		r.Get("/{run_id}", runStatusHandler(cfg.Runs))
		r.Delete("/{run_id}", runDeleteHandler(cfg.Runs))
	})

	// Dataset-scoped routes: /d/{dataset}/...
	r.Route("/d/{dataset}", func(r chi.Router) {
		r.Use(datasetMiddleware(cfg.Registry))

		r.Route("/api", func(r chi.Router) {
			r.Get("/rank_plot", payloadHandler(service.KindRankPlot))
			r.Get("/sample_plot", payloadHandler(service.KindSamplePlot))
			r.Get("/counts", payloadHandler(service.KindCounts))
			r.Get("/report", payloadHandler(service.KindReport))
			r.Get("/counts/{feature}", featureCountsHandler)
		})
	})

	return r
}

// Context key for dataset service
type ctxKey string

const datasetServiceKey ctxKey = "datasetService"

// datasetMiddleware resolves the dataset from URL and injects its service into context.
func datasetMiddleware(registry *DatasetRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			datasetID := chi.URLParam(r, "dataset")
			svc := registry.Get(datasetID)
			if svc == nil {
				writeError(w, r, ErrDatasetNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), datasetServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getDatasetService(r *http.Request) *service.DatasetService {
	svc, _ := r.Context().Value(datasetServiceKey).(*service.DatasetService)
	return svc
}

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, table.ErrValidation), errors.Is(err, table.ErrParameter):
		return http.StatusBadRequest
	case errors.Is(err, table.ErrMatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrDatasetNotFound), errors.Is(err, ErrRunNotFound),
		errors.Is(err, service.ErrFeatureNotFound), errors.Is(err, service.ErrUnknownKind):
		return http.StatusNotFound
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, statusFor(err))
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

func notConfigured(what string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, http.StatusNotImplemented)
		render.JSON(w, r, errorResponse{Error: what + " not configured"})
	}
}

// writeRawJSON writes an already encoded JSON payload.
func writeRawJSON(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func datasetsHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]interface{}{
			"default":  registry.DefaultDatasetID(),
			"datasets": registry.Datasets(),
			"title":    registry.Title(),
		})
	}
}

// extremeCountParam reads the optional extreme_feature_count query parameter.
func extremeCountParam(r *http.Request) (*int, error) {
	return pipeline.ParseExtremeCount(r.URL.Query().Get("extreme_feature_count"))
}

func payloadHandler(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := getDatasetService(r)
		k, err := extremeCountParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		data, err := svc.Payload(kind, k)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeRawJSON(w, data)
	}
}

func featureCountsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	feature := chi.URLParam(r, "feature")
	if decoded, err := url.PathUnescape(feature); err == nil {
		feature = decoded
	}
	feature = strings.TrimSpace(feature)

	k, err := extremeCountParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := svc.FeatureCounts(feature, k)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRawJSON(w, data)
}

// Run handlers

// runSubmitRequest is the body of POST /api/runs. The count is decoded as a
// number so that non-integral values are reported, not truncated.
type runSubmitRequest struct {
	DatasetID           string   `json:"dataset_id"`
	ExtremeFeatureCount *float64 `json:"extreme_feature_count"`

	params runstore.RunParams
}

// Bind implements render.Binder.
func (req *runSubmitRequest) Bind(r *http.Request) error {
	req.DatasetID = strings.TrimSpace(req.DatasetID)
	if req.DatasetID == "" {
		return table.NewParameterError("dataset_id", "", "is required")
	}
	req.params = runstore.RunParams{DatasetID: req.DatasetID}
	if req.ExtremeFeatureCount != nil {
		k, err := pipeline.CheckExtremeCount(*req.ExtremeFeatureCount)
		if err != nil {
			return err
		}
		req.params.ExtremeFeatureCount = &k
	}
	return nil
}

func runSubmitHandler(rm *RunManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rm == nil {
			notConfigured("run manager")(w, r)
			return
		}

		var req runSubmitRequest
		if err := render.Bind(r, &req); err != nil {
			if !errors.Is(err, table.ErrParameter) {
				err = table.NewParameterError("request body", "", err.Error())
			}
			writeError(w, r, err)
			return
		}

		run, err := rm.Submit(req.params)
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, run)
	}
}

func runListHandler(rm *RunManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rm == nil {
			notConfigured("run manager")(w, r)
			return
		}

		datasetID := strings.TrimSpace(r.URL.Query().Get("dataset"))
		if datasetID == "" {
			writeError(w, r, table.NewParameterError("dataset", "", "is required"))
			return
		}
		runs, err := rm.List(datasetID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.JSON(w, r, map[string]interface{}{
			"dataset_id": datasetID,
			"runs":       runs,
		})
	}
}

func runStatusHandler(rm *RunManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rm == nil {
			notConfigured("run manager")(w, r)
			return
		}

		run, err := rm.Get(chi.URLParam(r, "run_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.JSON(w, r, run)
	}
}

// runDeleteHandler cancels a queued or running run, or deletes a finished one.
func runDeleteHandler(rm *RunManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rm == nil {
			notConfigured("run manager")(w, r)
			return
		}

		runID := chi.URLParam(r, "run_id")
		run, err := rm.Get(runID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		if !run.Status.Finished() {
			cancelled, err := rm.Cancel(runID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			render.JSON(w, r, map[string]interface{}{
				"run_id":    runID,
				"cancelled": cancelled,
			})
			return
		}

		if err := rm.Delete(runID); err != nil {
			writeError(w, r, err)
			return
		}
		render.JSON(w, r, map[string]interface{}{
			"run_id":  runID,
			"deleted": true,
		})
	}
}
