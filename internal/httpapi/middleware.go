package httpapi

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"

	"securefiles/server/internal/ids"
	"securefiles/server/internal/logging"
	"securefiles/server/internal/model"

	"github.com/gorilla/mux"
)

const (
	requestIDHeader = "X-Request-Id"
	sessionCookie   = "sf_session"
)

type contextKey string

const ctxUser contextKey = "user"

func userFromContext(ctx context.Context) (model.User, bool) {
	u, ok := ctx.Value(ctxUser).(model.User)
	return u, ok
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = ids.New()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs the route template, never the raw path: the raw
// path of a magic or download link is a credential.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		s.log.Info(r.Context(), "request",
			"method", r.Method,
			"route", s.routeName(r),
			"status", sw.code,
			"duration", time.Since(start).String(),
		)
	})
}

func (s *Server) routeName(r *http.Request) string {
	var match mux.RouteMatch
	if s.router.Match(r, &match) && match.Route != nil {
		if tpl, err := match.Route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error(r.Context(), "panic in handler", "panic", rec)
				writeError(w, http.StatusInternalServerError, "panic", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(auth, prefix))
	}
	return ""
}

// requireRole admits requests carrying a valid session of an active user
// with the given role. The user is reloaded so deactivation and role
// changes apply to existing sessions.
func (s *Server) requireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := sessionToken(r)
			if tok == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "login required")
				return
			}
			userID, _, err := s.signer.ParseSession(tok)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "login required")
				return
			}
			u, err := s.users.GetUserByID(r.Context(), userID)
			if err != nil || !u.Active {
				writeError(w, http.StatusUnauthorized, "unauthorized", "login required")
				return
			}
			if u.Role != role {
				writeError(w, http.StatusForbidden, "forbidden", "not allowed for this account")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUser, *u)))
		})
	}
}

// adminMiddleware checks X-Api-Key against the admin token. An empty admin
// token disables the admin API.
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	want := strings.TrimSpace(s.cfg.AdminToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimSpace(r.Header.Get("X-Api-Key"))
		if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For entry.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestContext(r *http.Request) model.RequestContext {
	return model.RequestContext{IP: clientIP(r), UserAgent: r.UserAgent()}
}
