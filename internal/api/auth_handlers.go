package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/openlcs/gmlc/internal/api/middleware"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleLogin verifies the operator credentials and issues a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	userMatch := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.cfg.AdminUser)) == 1
	passMatch, err := CheckPassword(req.Password, s.cfg.AdminPasswordHash)
	if err != nil {
		slog.Error("checking operator password", "error", err)
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}
	if !userMatch || !passMatch {
		slog.Warn("failed operator login", "username", req.Username)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	secret, err := s.cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("decoding jwt secret", "error", err)
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	token, expiresAt, err := middleware.GenerateToken(secret, req.Username)
	if err != nil {
		slog.Error("signing operator token", "error", err)
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}
