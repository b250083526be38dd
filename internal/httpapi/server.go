package httpapi

import (
	"context"
	"net/http"
	"strings"

	"securefiles/server/internal/accounts"
	"securefiles/server/internal/config"
	"securefiles/server/internal/files"
	"securefiles/server/internal/logging"
	"securefiles/server/internal/model"
	"securefiles/server/internal/obs"
	"securefiles/server/internal/session"
	"securefiles/server/internal/store"

	"github.com/gorilla/mux"
)

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Config   config.Config
	Users    store.UserStore
	Binder   *session.Binder
	Signer   *session.Signer
	Accounts *accounts.Service
	Files    *files.Service
	Log      logging.Logger
}

type Server struct {
	cfg      config.Config
	users    store.UserStore
	binder   *session.Binder
	signer   *session.Signer
	accounts *accounts.Service
	files    *files.Service
	log      logging.Logger
	router   *mux.Router
}

func NewServer(d Deps) *Server {
	s := &Server{
		cfg:      d.Config,
		users:    d.Users,
		binder:   d.Binder,
		signer:   d.Signer,
		accounts: d.Accounts,
		files:    d.Files,
		log:      d.Log.With("component", "http"),
		router:   mux.NewRouter().StrictSlash(true),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = s.recoverMiddleware(h)
	h = s.loggingMiddleware(h)
	h = requestIDMiddleware(h)
	h = obs.Instrument(h)
	return h
}

func (s *Server) secureCookies() bool {
	return strings.HasPrefix(s.cfg.BaseURL, "https://")
}

func (s *Server) registerRoutes() {
	r := s.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/login", s.handleRequestLink(model.RoleUnassigned)).Methods(http.MethodPost)
	r.HandleFunc("/request-magic-login", s.handleRequestLink(model.RoleUnassigned)).Methods(http.MethodPost)
	r.HandleFunc("/ops-login", s.handleRequestLink(model.RoleOperations)).Methods(http.MethodPost)
	r.HandleFunc("/client-login", s.handleRequestLink(model.RoleClient)).Methods(http.MethodPost)
	r.HandleFunc("/magic-login/{token}/", s.handleMagicLogin).Methods(http.MethodGet)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	r.HandleFunc("/api/signup", s.handleSignup).Methods(http.MethodPost)
	r.HandleFunc("/api/verify-email/{token}/", s.handleVerifyEmail).Methods(http.MethodGet)

	ops := s.requireRole(model.RoleOperations)
	client := s.requireRole(model.RoleClient)

	r.Handle("/dashboard-ops/", ops(http.HandlerFunc(s.handleDashboard))).Methods(http.MethodGet)
	r.Handle("/upload/", ops(http.HandlerFunc(s.handleUpload))).Methods(http.MethodPost)

	r.Handle("/dashboard-client/", client(http.HandlerFunc(s.handleDashboard))).Methods(http.MethodGet)
	r.Handle("/list/", client(http.HandlerFunc(s.handleListFiles))).Methods(http.MethodGet)
	r.Handle("/download-file/{id}/", client(http.HandlerFunc(s.handleDownloadLink))).Methods(http.MethodGet)
	r.Handle("/secure-download/{token}/", client(http.HandlerFunc(s.handleSecureDownload))).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(s.adminMiddleware)
	admin.HandleFunc("/users", s.handleAdminCreateUser).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id}/active", s.handleAdminSetActive).Methods(http.MethodPost)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.users.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.log.Error(r.Context(), "health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "unavailable", "store unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
