package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/estimator/internal/board"
	"github.com/terra-clan/estimator/internal/models"
)

// respondBoardError maps board errors to HTTP responses
func respondBoardError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, board.ErrOpportunityNotFound):
		respondError(w, http.StatusNotFound, "opportunity_not_found", "opportunity not found")
	case errors.Is(err, board.ErrOptionNotFound):
		respondError(w, http.StatusNotFound, "option_not_found", "option not found")
	case errors.Is(err, board.ErrProjectNotFound):
		respondError(w, http.StatusNotFound, "project_not_found", "project not found")
	case errors.Is(err, board.ErrInvalidColumn):
		respondError(w, http.StatusBadRequest, "invalid_column", err.Error())
	case errors.Is(err, board.ErrInvalidOperator):
		respondError(w, http.StatusBadRequest, "invalid_operator", err.Error())
	case errors.Is(err, board.ErrPromotionNotFound):
		respondError(w, http.StatusBadRequest, "promotion_not_found", err.Error())
	case errors.Is(err, board.ErrFinancingPlanNotFound):
		respondError(w, http.StatusBadRequest, "financing_plan_not_found", err.Error())
	case errors.Is(err, board.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		slog.Error("failed to "+action, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	b, err := s.board.Board(r.Context())
	if err != nil {
		respondBoardError(w, err, "load board")
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// Opportunity handlers

func (s *Server) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	filters := models.OpportunityFilters{
		Column: models.ColumnID(r.URL.Query().Get("column_id")),
		Limit:  50,
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filters.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}

	list, err := s.board.ListOpportunities(r.Context(), filters)
	if err != nil {
		respondBoardError(w, err, "list opportunities")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"opportunities": list,
		"total":         len(list),
	})
}

func (s *Server) handleCreateOpportunity(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOpportunityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var createdBy string
	if user := UserFromContext(r.Context()); user != nil {
		createdBy = user.ID
	}

	o, err := s.board.CreateOpportunity(r.Context(), req, createdBy)
	if err != nil {
		respondBoardError(w, err, "create opportunity")
		return
	}

	respondJSON(w, http.StatusCreated, o)
}

func (s *Server) handleGetOpportunity(w http.ResponseWriter, r *http.Request) {
	o, err := s.board.GetOpportunity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondBoardError(w, err, "get opportunity")
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) handleUpdateOpportunity(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateOpportunityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := s.board.UpdateOpportunity(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondBoardError(w, err, "update opportunity")
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) handleDeleteOpportunity(w http.ResponseWriter, r *http.Request) {
	if err := s.board.DeleteOpportunity(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondBoardError(w, err, "delete opportunity")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "opportunity deleted",
	})
}

func (s *Server) handleMoveOpportunity(w http.ResponseWriter, r *http.Request) {
	var req models.MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := s.board.MoveOpportunity(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondBoardError(w, err, "move opportunity")
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Option handlers

func (s *Server) handleAddOption(w http.ResponseWriter, r *http.Request) {
	var req models.OptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	opt, err := s.board.AddOption(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondBoardError(w, err, "add option")
		return
	}
	respondJSON(w, http.StatusCreated, opt)
}

func (s *Server) handleUpdateOption(w http.ResponseWriter, r *http.Request) {
	var req models.OptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	opt, err := s.board.UpdateOption(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "optionId"), req)
	if err != nil {
		respondBoardError(w, err, "update option")
		return
	}
	respondJSON(w, http.StatusOK, opt)
}

func (s *Server) handleDeleteOption(w http.ResponseWriter, r *http.Request) {
	if err := s.board.DeleteOption(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "optionId")); err != nil {
		respondBoardError(w, err, "delete option")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "option deleted",
	})
}

// Project handlers

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.board.ListProjects(r.Context(), models.ColumnID(r.URL.Query().Get("column_id")))
	if err != nil {
		respondBoardError(w, err, "list projects")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"projects": list,
		"total":    len(list),
	})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.board.CreateProject(r.Context(), req)
	if err != nil {
		respondBoardError(w, err, "create project")
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleMoveProject(w http.ResponseWriter, r *http.Request) {
	var req models.MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.board.MoveProject(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondBoardError(w, err, "move project")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Realtime

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "event stream disabled")
		return
	}
	s.events.ServeWS(w, r)
}
