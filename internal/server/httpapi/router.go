// Package httpapi is the JSON/multipart HTTP API served to the admin client.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/tim-admin/internal/model"
	"github.com/and161185/tim-admin/internal/storage/images"
)

// Collection paths shared with the admin client.
const (
	PathServices     = "/our-services"
	PathReviews      = "/reviews"
	PathDistributors = "/distributors"
	PathProjects     = "/projects"
	PathTranslations = "/translations"
)

const defaultMaxUpload = 10 << 20

// Authenticator is the subset of service.AuthService the handlers need.
type Authenticator interface {
	Login(ctx context.Context, username, password, ip string) (model.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error
	ParseAccess(token string) (*model.Claims, error)
}

// Content groups the section services; nil sections are not mounted.
type Content struct {
	Services     ContentService[model.Service]
	Reviews      ContentService[model.Review]
	Distributors ContentService[model.Distributor]
	Projects     ContentService[model.Project]
	Translations ContentService[model.Translation]
}

type Options struct {
	Log     *zap.Logger
	Auth    Authenticator
	Content Content

	// ImagesDir is served under images.URLPrefix when set.
	ImagesDir      string
	MaxUploadBytes int64

	// RateLimitRPS <= 0 disables the per-IP limiter.
	RateLimitRPS   float64
	RateLimitBurst int

	// Registry receives the HTTP metrics and is exposed on /metrics.
	Registry *prometheus.Registry
	Health   func(context.Context) error
}

type handlers struct {
	auth      Authenticator
	log       *zap.Logger
	maxUpload int64
	ping      func(context.Context) error
}

// NewRouter builds the API handler.
func NewRouter(opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	h := &handlers{auth: opts.Auth, log: log, maxUpload: opts.MaxUploadBytes, ping: opts.Health}

	r := chi.NewRouter()
	r.Use(recoverer(log), requestID, logging(log), newMetrics(reg).instrument)
	if opts.RateLimitRPS > 0 {
		r.Use(newIPLimiter(opts.RateLimitRPS, opts.RateLimitBurst).middleware)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Message: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Message: "Method not allowed"})
	})

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if opts.ImagesDir != "" {
		fs := http.StripPrefix(images.URLPrefix, http.FileServer(http.Dir(opts.ImagesDir)))
		r.Method(http.MethodGet, images.URLPrefix+"/*", fs)
	}

	r.Post("/auth/login", h.login)
	r.Post("/auth/refresh", h.refresh)

	r.Group(func(r chi.Router) {
		r.Use(bearer(opts.Auth.ParseAccess, log))
		r.Post("/auth/change-password", h.changePassword)
		mountContent(r, PathServices, opts.Content.Services, h)
		mountContent(r, PathReviews, opts.Content.Reviews, h)
		mountContent(r, PathDistributors, opts.Content.Distributors, h)
		mountContent(r, PathProjects, opts.Content.Projects, h)
		mountContent(r, PathTranslations, opts.Content.Translations, h)
	})
	return r
}
