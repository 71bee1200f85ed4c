// Package web is the panel: a small JSON API over the owner's posts plus a
// single embedded page, authenticated by the per-user token handed out at
// registration.
package web

import (
	"context"
	_ "embed"
	"net/http"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"postbot/internal/model"
	"postbot/internal/storage"
)

//go:embed panel.html
var panelHTML []byte

// Jobs is the slice of the scheduler the panel needs: keeping registered
// triggers in sync with post mutations.
type Jobs interface {
	Register(p model.Post, tzName string)
	Unregister(postID int64)
}

type Config struct {
	Addr string
}

type Server struct {
	cfg   Config
	store *storage.Store
	jobs  Jobs
	log   zerolog.Logger
	srv   *http.Server
}

func NewServer(cfg Config, store *storage.Store, jobs Jobs, log zerolog.Logger) *Server {
	s := &Server{cfg: cfg, store: store, jobs: jobs, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(panelHTML)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(s.auth)
		api.Get("/posts", s.listPosts)
		api.Post("/posts/bulk", s.bulkPosts)
		api.Get("/posts/{id}", s.getPost)
		api.Put("/posts/{id}", s.updatePost)
		api.Delete("/posts/{id}", s.deletePost)
		api.Post("/posts/{id}/duplicate", s.duplicatePost)
		api.Get("/chats", s.listChats)
		api.Get("/templates", s.listTemplates)
		api.Post("/templates", s.createTemplate)
		api.Delete("/templates/{id}", s.deleteTemplate)
		api.Get("/stats", s.getStats)
		api.Get("/export", s.exportPosts)
		api.Post("/import", s.importPosts)
	})

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Start listens until Shutdown. http.ErrServerClosed is swallowed so a clean
// stop does not read as a failure.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("web panel listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type ctxKey int

const userKey ctxKey = 0

// auth resolves the caller's token (query param or bearer header) to a user id
// and rejects everything else with 401.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
		}
		userID, err := s.store.UserByToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, userID)))
	})
}

func userFrom(r *http.Request) int64 {
	id, _ := r.Context().Value(userKey).(int64)
	return id
}
