package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/adlaunch/adlaunch/internal/budget"
	"github.com/adlaunch/adlaunch/internal/middleware"
	"github.com/adlaunch/adlaunch/internal/models"
	"github.com/adlaunch/adlaunch/internal/orchestrator"
)

// deployRequest is the wire shape of POST /api/deploy. Credentials are
// accepted on the way in but never serialized back out.
type deployRequest struct {
	TotalDailyBudget int64                   `json:"total_daily_budget"`
	Objective        string                  `json:"objective"`
	Headline         string                  `json:"headline"`
	Body             string                  `json:"body"`
	DestinationURL   string                  `json:"destination_url"`
	MediaHandle      string                  `json:"media_handle"`
	RecommendedSplit []budget.Recommendation `json:"recommended_split"`
	Credentials      map[string]string       `json:"credentials"`
}

// DeployHandler handles POST /api/deploy: one request fans out to every
// credentialed platform and the full report comes back in the response.
func (s *Server) DeployHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "deploy"
	const method = "POST"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	var req deployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("decode deploy request", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	credentials := make(map[models.Platform]string, len(req.Credentials))
	for name, token := range req.Credentials {
		credentials[models.Platform(name)] = token
	}

	report, err := s.Orchestrator.Run(r.Context(), orchestrator.Request{
		TotalDailyBudget: req.TotalDailyBudget,
		Objective:        req.Objective,
		Headline:         req.Headline,
		Body:             req.Body,
		DestinationURL:   req.DestinationURL,
		MediaHandle:      req.MediaHandle,
		RecommendedSplit: req.RecommendedSplit,
		Credentials:      credentials,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, orchestrator.ErrDeployInProgress):
			status = http.StatusConflict
		case errors.Is(err, budget.ErrInvalidBudget):
			status = http.StatusBadRequest
		}
		logger.Warn("deployment rejected", zap.Int("status", status), zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, err.Error(), status)
		return
	}
	s.Metrics.SetTrackedAssets(s.Media.Count())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(report)
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
