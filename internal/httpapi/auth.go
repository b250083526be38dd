package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"securefiles/server/internal/delivery"
	"securefiles/server/internal/model"
	"securefiles/server/internal/session"
	"securefiles/server/internal/token"

	"github.com/gorilla/mux"
)

type linkRequest struct {
	Email string `json:"email"`
}

func readEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return strings.TrimSpace(r.PostFormValue("email")), true
	}
	var req linkRequest
	if !decodeJSON(w, r, &req) {
		return "", false
	}
	return strings.TrimSpace(req.Email), true
}

// handleRequestLink answers identically for known and unknown addresses.
// Only a transport failure for a real user is reported differently.
func (s *Server) handleRequestLink(class model.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, ok := readEmail(w, r)
		if !ok {
			return
		}
		if email == "" {
			writeError(w, http.StatusBadRequest, "email_required", "Please enter your email address.")
			return
		}

		res, err := s.binder.RequestLink(r.Context(), email, class, requestContext(r))
		switch {
		case errors.Is(err, delivery.ErrDeliveryFailed):
			writeError(w, http.StatusBadGateway, "delivery_failed", "Failed to send email. Please try again later.")
			return
		case err != nil:
			s.log.Error(r.Context(), "magic link request failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "failed to process request")
			return
		}

		s.log.Debug(r.Context(), "magic link request handled", "state", string(res.State))
		writeMessage(w, http.StatusOK, session.GenericLinkMessage)
	}
}

func (s *Server) handleMagicLogin(w http.ResponseWriter, r *http.Request) {
	tok := mux.Vars(r)["token"]

	sess, err := s.binder.Consume(r.Context(), tok)
	if err != nil {
		if !errors.Is(err, token.ErrNotFound) && !errors.Is(err, token.ErrExpired) && !errors.Is(err, token.ErrAlreadyUsed) {
			s.log.Error(r.Context(), "magic login failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "failed to process login")
			return
		}
		s.log.Info(r.Context(), "magic login rejected", "state", string(session.StateOf(err)))
		writeError(w, http.StatusUnauthorized, "invalid_link", session.GenericInvalidLinkMessage)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, sess.Landing, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
	writeMessage(w, http.StatusOK, "logged out")
}
