package daemon

import (
	"errors"
	"net/http"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/auth"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/domain"
)

type registerRequest struct {
	Nombre   string `json:"nombre" validate:"required,notblank,max=120"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Rol      string `json:"rol" validate:"omitempty,oneof=estudiante profesor"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	user, err := s.auth.Register(r.Context(), auth.RegisterRequest{
		Nombre:   req.Nombre,
		Email:    req.Email,
		Password: req.Password,
		Rol:      req.Rol,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailExists):
			s.jsonError(w, http.StatusConflict, "email already registered", nil)
		case errors.Is(err, domain.ErrInvalidRole),
			errors.Is(err, domain.ErrInvalidEmail),
			errors.Is(err, domain.ErrInvalidPassword):
			s.jsonError(w, http.StatusBadRequest, "invalid registration", err)
		default:
			s.jsonError(w, http.StatusInternalServerError, "registration failed", err)
		}
		return
	}

	s.jsonResponse(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	grant, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.jsonError(w, http.StatusUnauthorized, "invalid email or password", nil)
			return
		}
		s.jsonError(w, http.StatusInternalServerError, "login failed", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, grant)
}

// handleRefresh exchanges a still-valid bearer token for a fresh one. 401
// means the token itself is unusable, 403 that the refresh chain is over.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		s.jsonError(w, http.StatusUnauthorized, "missing bearer token", nil)
		return
	}

	grant, err := s.auth.Refresh(r.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidToken):
			s.jsonError(w, http.StatusUnauthorized, "invalid token", nil)
		case errors.Is(err, auth.ErrRefreshExpired):
			s.jsonError(w, http.StatusForbidden, "refresh window elapsed", err)
		default:
			s.jsonError(w, http.StatusInternalServerError, "refresh failed", err)
		}
		return
	}

	s.jsonResponse(w, http.StatusOK, grant)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		s.jsonError(w, http.StatusUnauthorized, "missing bearer token", nil)
		return
	}

	user, err := s.auth.Me(r.Context(), raw)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			s.jsonError(w, http.StatusUnauthorized, "invalid token", nil)
			return
		}
		s.jsonError(w, http.StatusInternalServerError, "failed to load user", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, user)
}
