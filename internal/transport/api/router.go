package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/internal/providers/rag"
	"github.com/sandevgo/kaidesk/internal/service/feedback"
	"github.com/sandevgo/kaidesk/internal/service/orchestrator"
)

type Authenticator interface {
	Issue(ctx context.Context, subjectID, name string) (core.Session, string, error)
	Validate(token string) (core.Session, error)
	GrantStepUp(ctx context.Context, subjectID, secret string) error
}

type Chatter interface {
	Handle(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error)
}

type FeedbackService interface {
	Submit(ctx context.Context, fb core.Feedback) error
	Report(ctx context.Context) (feedback.Report, error)
}

type Library interface {
	Add(ctx context.Context, filename string, data []byte) (int, error)
	List() ([]rag.FileInfo, error)
	Delete(ctx context.Context, filename string) error
}

type Deps struct {
	Auth     Authenticator
	Chat     Chatter
	Feedback FeedbackService
	Library  Library
	// AdminKey guards /api/admin; empty disables those routes.
	AdminKey string
}

type handlers struct {
	auth     Authenticator
	chat     Chatter
	feedback FeedbackService
	library  Library
	adminKey string
}

// NewRouter wires the HTTP surface. ctx supplies the request logger.
func NewRouter(ctx context.Context, deps Deps) http.Handler {
	h := &handlers{
		auth:     deps.Auth,
		chat:     deps.Chat,
		feedback: deps.Feedback,
		library:  deps.Library,
		adminKey: deps.AdminKey,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(withBaseContext(ctx))
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": core.KaiVersion})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(h.optionalSession)

		api.Post("/login", h.handleLogin)
		api.Post("/logout", h.handleLogout)
		api.Post("/chat", h.handleChat)
		api.Post("/feedback", h.handleFeedback)
		api.With(requireSession).Post("/verify_step_up", h.handleVerifyStepUp)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(h.requireAdmin)
			admin.Post("/ingest", h.handleIngest)
			admin.Get("/files", h.handleListFiles)
			admin.Delete("/files", h.handleDeleteFile)
			admin.Get("/stats", h.handleStats)
		})
	})

	return r
}
