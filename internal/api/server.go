package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/estimator/internal/accounts"
	"github.com/terra-clan/estimator/internal/board"
	"github.com/terra-clan/estimator/internal/catalog"
	"github.com/terra-clan/estimator/internal/config"
	"github.com/terra-clan/estimator/internal/health"
	"github.com/terra-clan/estimator/internal/models"
)

// AccountFlows is implemented by accounts.Service
type AccountFlows interface {
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.User, error)
	CompleteAuthCallback(ctx context.Context, cb accounts.AuthCallback) accounts.AuthResult
	Invite(ctx context.Context, req models.InviteRequest) (*models.TeamMember, error)
	TeamMembers(ctx context.Context) ([]*models.TeamMember, error)
	HoverStatus(ctx context.Context, userID string) (*models.HoverStatus, error)
	HoverAuthorizeURL(ctx context.Context, userID string) (string, error)
	CompleteHoverAuthorization(ctx context.Context, cb accounts.HoverCallback) string
}

// UserVerifier resolves an access token to its user
type UserVerifier interface {
	GetUser(ctx context.Context, accessToken string) (*models.User, error)
}

// Uploader stores objects and returns their public URL
type Uploader interface {
	Upload(ctx context.Context, bucket, objectPath, contentType string, body io.Reader) (string, error)
}

// StudioLinker builds outbound design studio links
type StudioLinker interface {
	DesignStudioURL(jobID string) string
}

// EventStream serves the realtime board feed
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Dependencies groups the services the API is built on
type Dependencies struct {
	Board         board.Manager
	Accounts      AccountFlows
	Catalog       *catalog.Loader
	Users         UserVerifier
	Uploader      Uploader
	Studio        StudioLinker
	Events        EventStream
	Health        *health.Registry
	StorageBucket string
}

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	board          board.Manager
	accounts       AccountFlows
	catalog        *catalog.Loader
	uploader       Uploader
	studio         StudioLinker
	events         EventStream
	health         *health.Registry
	bucket         string
	secureCookies  bool
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	s := &Server{
		config:         cfg,
		board:          deps.Board,
		accounts:       deps.Accounts,
		catalog:        deps.Catalog,
		uploader:       deps.Uploader,
		studio:         deps.Studio,
		events:         deps.Events,
		health:         deps.Health,
		bucket:         deps.StorageBucket,
		secureCookies:  strings.HasPrefix(cfg.SiteURL, "https://"),
		authMiddleware: NewAuthMiddleware(deps.Users),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.Origins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// Browser redirect flows
		r.Get("/auth/callback", s.handleAuthCallback)
		r.Post("/auth/signup", s.handleSignUp)
		r.Get("/hover/callback", s.handleHoverCallback)
		r.With(s.authMiddleware.Authenticate).Get("/hover/authorize", s.handleHoverAuthorize)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware.Authenticate)

		// Long-lived, kept out of the request timeout
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/board", s.handleGetBoard)
			r.Get("/columns", s.handleListColumns)

			r.Route("/opportunities", func(r chi.Router) {
				r.Get("/", s.handleListOpportunities)
				r.Post("/", s.handleCreateOpportunity)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetOpportunity)
					r.Put("/", s.handleUpdateOpportunity)
					r.Delete("/", s.handleDeleteOpportunity)
					r.Post("/move", s.handleMoveOpportunity)

					r.Post("/options", s.handleAddOption)
					r.Put("/options/{optionId}", s.handleUpdateOption)
					r.Delete("/options/{optionId}", s.handleDeleteOption)
				})
			})

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", s.handleListProjects)
				r.Post("/", s.handleCreateProject)
				r.Post("/{id}/move", s.handleMoveProject)
			})

			r.Get("/finance/payment", s.handleMonthlyPayment)

			r.Route("/catalog", func(r chi.Router) {
				r.Get("/brand", s.handleGetBrand)
				r.Get("/promotions", s.handleListPromotions)
				r.Get("/financing", s.handleListFinancingPlans)
			})

			r.Post("/uploads", s.handleUpload)
			r.Get("/hover/status", s.handleHoverStatus)
			r.Get("/hover/studio/{jobId}", s.handleHoverStudio)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware.RequireRole(models.RoleAdmin))
				r.Get("/team", s.handleListTeam)
				r.Post("/invites", s.handleInvite)
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
