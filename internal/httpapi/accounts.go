package httpapi

import (
	"errors"
	"net/http"

	"securefiles/server/internal/accounts"
	"securefiles/server/internal/delivery"
	"securefiles/server/internal/model"
	"securefiles/server/internal/store"

	"github.com/gorilla/mux"
)

type signupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	_, err := s.accounts.Signup(r.Context(), req.Email, req.Username)
	switch {
	case errors.Is(err, accounts.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "invalid_email", "a valid email is required")
		return
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "email already registered")
		return
	case errors.Is(err, delivery.ErrDeliveryFailed):
		writeError(w, http.StatusBadGateway, "delivery_failed", "Failed to send email. Please try again later.")
		return
	case err != nil:
		s.log.Error(r.Context(), "signup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to create account")
		return
	}
	writeMessage(w, http.StatusCreated, "Verification email sent")
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	_, err := s.accounts.VerifyEmail(r.Context(), mux.Vars(r)["token"])
	switch {
	case errors.Is(err, accounts.ErrInvalidLink):
		writeError(w, http.StatusBadRequest, "invalid_link", "Invalid or expired token")
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "No user found for email")
		return
	case err != nil:
		s.log.Error(r.Context(), "verify email failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to verify email")
		return
	}
	writeMessage(w, http.StatusOK, "Email verified successfully")
}

type createUserRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	IsOps    bool   `json:"is_ops"`
	IsClient bool   `json:"is_client"`
}

func (r createUserRequest) role() model.Role {
	if r.Role != "" {
		return model.ParseRole(r.Role)
	}
	return model.RoleFromFlags(r.IsOps, r.IsClient)
}

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := s.accounts.Register(r.Context(), req.Email, req.Username, req.role())
	switch {
	case errors.Is(err, accounts.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "invalid_email", "a valid email is required")
		return
	case errors.Is(err, accounts.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, "invalid_role", "role must be operations or client")
		return
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "email already registered")
		return
	case err != nil:
		s.log.Error(r.Context(), "create user failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

func (s *Server) handleAdminSetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "active is required")
		return
	}

	u, err := s.accounts.SetActive(r.Context(), mux.Vars(r)["id"], *req.Active)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	if err != nil {
		s.log.Error(r.Context(), "set active failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
