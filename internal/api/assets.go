package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/adlaunch/adlaunch/internal/mediastore"
	"github.com/adlaunch/adlaunch/internal/middleware"
)

// assetResponse is returned on successful ingestion.
type assetResponse struct {
	MediaHandle string `json:"media_handle"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
}

// IngestAssetHandler handles POST /api/assets multipart uploads. The
// file lands encrypted in the media store and only the opaque handle
// goes back to the caller.
func (s *Server) IngestAssetHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "assets"
	const method = "POST"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	r.Body = http.MaxBytesReader(w, r.Body, s.Config.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		logger.Warn("parse multipart", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("media")
	if err != nil {
		logger.Warn("missing media part", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "media file required", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	raw, err := io.ReadAll(file)
	if err != nil {
		logger.Error("read upload", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "read upload failed", http.StatusBadRequest)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	handle, err := s.Media.Ingest(raw, header.Filename, mimeType)
	if err != nil {
		logger.Error("ingest media", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "media ingestion failed", http.StatusInternalServerError)
		return
	}
	s.Metrics.SetTrackedAssets(s.Media.Count())

	logger.Info("media ingested",
		zap.String("handle", string(handle)),
		zap.Int("size", len(raw)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(assetResponse{
		MediaHandle: string(handle),
		Filename:    header.Filename,
		Size:        int64(len(raw)),
	})
	s.Metrics.IncrementRequests(endpoint, method, "201")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

// DeleteAssetHandler handles DELETE /api/assets/{id}: explicit early
// destruction before the TTL sweep gets there.
func (s *Server) DeleteAssetHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "assets"
	const method = "DELETE"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	handle := mediastore.Handle(mux.Vars(r)["id"])
	// Destroy is an idempotent no-op for unknown handles, so resolve
	// the handle first to give the caller a 404 instead of a 204.
	if _, err := s.Media.Metadata(handle); err != nil {
		if errors.Is(err, mediastore.ErrUnknownHandle) {
			s.Metrics.IncrementRequests(endpoint, method, "404")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "unknown media handle", http.StatusNotFound)
			return
		}
		logger.Error("resolve media handle", zap.String("handle", string(handle)), zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "media lookup failed", http.StatusInternalServerError)
		return
	}
	if err := s.Media.Destroy(handle); err != nil {
		logger.Error("destroy media", zap.String("handle", string(handle)), zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "media destruction failed", http.StatusInternalServerError)
		return
	}
	s.Metrics.SetTrackedAssets(s.Media.Count())

	w.WriteHeader(http.StatusNoContent)
	s.Metrics.IncrementRequests(endpoint, method, "204")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
