package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/terra-clan/estimator/internal/finance"
	"github.com/terra-clan/estimator/internal/health"
	"github.com/terra-clan/estimator/internal/models"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// decodeJSON decodes a size-limited JSON body, answering 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	results := s.health.CheckAll(r.Context())
	if failing := health.Failing(results); len(failing) > 0 {
		for _, name := range failing {
			slog.Warn("dependency not ready", "dependency", name, "error", results[name])
		}
		respondError(w, http.StatusServiceUnavailable, "not_ready",
			"unavailable dependencies: "+strings.Join(failing, ", "))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ready",
		"dependencies": s.health.List(),
	})
}

// Finance handlers

func (s *Server) handleMonthlyPayment(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	principal, err := strconv.ParseFloat(q.Get("principal"), 64)
	if err != nil || principal < 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "principal must be a non-negative number")
		return
	}

	apr, err := strconv.ParseFloat(q.Get("apr"), 64)
	if err != nil || apr < 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "apr must be a non-negative number")
		return
	}

	months, err := strconv.Atoi(q.Get("months"))
	if err != nil || months <= 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "months must be a positive integer")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"principal":       principal,
		"apr":             apr,
		"months":          months,
		"monthly_payment": finance.MonthlyPayment(principal, apr, months),
	})
}

// Catalog handlers

func (s *Server) handleListColumns(w http.ResponseWriter, r *http.Request) {
	columns := s.board.Columns()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"columns": columns,
		"total":   len(columns),
	})
}

func (s *Server) handleGetBrand(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.catalog.Brand())
}

func (s *Server) handleListPromotions(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	active := r.URL.Query().Get("active") == "true"

	promotions := s.catalog.Promotions()
	list := make([]*models.Promotion, 0, len(promotions))
	for _, p := range promotions {
		if active && p.IsExpired(now) {
			continue
		}
		list = append(list, p)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"promotions": list,
		"total":      len(list),
	})
}

func (s *Server) handleListFinancingPlans(w http.ResponseWriter, r *http.Request) {
	plans := s.catalog.FinancingPlans()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"plans": plans,
		"total": len(plans),
	})
}
