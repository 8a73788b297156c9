// Package api exposes the HTTP boundary: media ingestion, deployment
// runs, and operational endpoints.
package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/adlaunch/adlaunch/internal/config"
	"github.com/adlaunch/adlaunch/internal/mediastore"
	"github.com/adlaunch/adlaunch/internal/middleware"
	"github.com/adlaunch/adlaunch/internal/observability"
	"github.com/adlaunch/adlaunch/internal/orchestrator"
)

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger       *zap.Logger
	Media        *mediastore.Store
	Orchestrator *orchestrator.Orchestrator
	Metrics      observability.MetricsRegistry
	Config       config.Config
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, media *mediastore.Store, orch *orchestrator.Orchestrator, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	return &Server{
		Logger:       logger,
		Media:        media,
		Orchestrator: orch,
		Metrics:      metrics,
		Config:       cfg,
	}
}

// Router wires every route, including the Prometheus endpoint.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger))
	r.HandleFunc("/api/assets", s.IngestAssetHandler).Methods("POST")
	r.HandleFunc("/api/assets/{id}", s.DeleteAssetHandler).Methods("DELETE")
	r.HandleFunc("/api/deploy", s.DeployHandler).Methods("POST")
	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())
	return r
}
