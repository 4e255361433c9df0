package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/estimator/internal/accounts"
	"github.com/terra-clan/estimator/internal/backend"
	"github.com/terra-clan/estimator/internal/models"
)

const refreshCookieMaxAge = 30 * 24 * time.Hour

// Auth handlers

func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cb := accounts.AuthCallback{
		Code:             q.Get("code"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		Next:             q.Get("next"),
	}
	if c, err := r.Cookie(VerifierCookie); err == nil {
		cb.Verifier = c.Value
	}

	result := s.accounts.CompleteAuthCallback(r.Context(), cb)

	if result.Session != nil {
		s.setSessionCookies(w, result.Session)
	}
	if cb.Verifier != "" {
		http.SetCookie(w, s.cookie(VerifierCookie, "", -1))
	}

	http.Redirect(w, r, result.Redirect, http.StatusFound)
}

func (s *Server) setSessionCookies(w http.ResponseWriter, session *models.Session) {
	maxAge := session.ExpiresIn
	if maxAge <= 0 {
		maxAge = int(time.Hour.Seconds())
	}
	http.SetCookie(w, s.cookie(AccessTokenCookie, session.AccessToken, maxAge))

	if session.RefreshToken != "" {
		http.SetCookie(w, s.cookie(RefreshTokenCookie, session.RefreshToken, int(refreshCookieMaxAge.Seconds())))
	}
}

func (s *Server) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req models.SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.accounts.SignUp(r.Context(), req)
	if err != nil {
		var apiErr *backend.APIError
		switch {
		case errors.Is(err, accounts.ErrValidation):
			respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
			respondError(w, http.StatusBadRequest, "signup_rejected", apiErr.Message)
		default:
			respondError(w, http.StatusInternalServerError, "internal_error", "sign-up failed")
		}
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

// Hover handlers

func (s *Server) handleHoverAuthorize(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	target, err := s.accounts.HoverAuthorizeURL(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to start hover authorization", "user_id", user.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to start hover authorization")
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleHoverCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cb := accounts.HoverCallback{
		Code:  q.Get("code"),
		Error: q.Get("error"),
		State: q.Get("state"),
	}

	http.Redirect(w, r, s.accounts.CompleteHoverAuthorization(r.Context(), cb), http.StatusFound)
}

func (s *Server) handleHoverStatus(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	status, err := s.accounts.HoverStatus(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to read hover status", "user_id", user.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to read hover status")
		return
	}

	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleHoverStudio(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.studio.DesignStudioURL(chi.URLParam(r, "jobId")), http.StatusFound)
}

// Team handlers

func (s *Server) handleListTeam(w http.ResponseWriter, r *http.Request) {
	members, err := s.accounts.TeamMembers(r.Context())
	if err != nil {
		slog.Error("failed to list team members", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list team members")
		return
	}

	respondJSON(w, http.StatusOK, members)
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req models.InviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	member, err := s.accounts.Invite(r.Context(), req)
	if err != nil {
		if errors.Is(err, accounts.ErrValidation) {
			respondError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "invite_failed", "failed to invite team member")
		return
	}

	respondJSON(w, http.StatusCreated, member)
}
