package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/principal"
	"github.com/computor-platform/computor-api/internal/session"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	UserID       string `json:"user_id,omitempty"`
	TokenType    string `json:"token_type"`
}

// LoginAPI handles POST /auth/login, the password credential path of §4.1.
func (s *Server) LoginAPI(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.BadRequest("invalid request body: %v", err))
		return
	}

	u, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, apierr.Database(err, "look up user"))
		return
	}
	if u == nil || u.IsArchived || u.PasswordHash == "" || !principal.VerifyPassword(u.PasswordHash, req.Password) {
		writeError(w, r, apierr.Unauthorized("invalid username or password"))
		return
	}

	tokens, err := s.sessionStore.Login(r.Context(), u.ID, session.DeviceInfo{
		UserAgent: r.UserAgent(),
		IP:        r.RemoteAddr,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpResponseJSON(w, tokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
		UserID:       u.ID,
		TokenType:    "Bearer",
	}, http.StatusOK)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshAPI handles POST /auth/refresh: mints a new access token, reuses
// the refresh token until its own expiry per §4.3.
func (s *Server) RefreshAPI(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.BadRequest("invalid request body: %v", err))
		return
	}

	tokens, err := s.sessionStore.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpResponseJSON(w, tokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
		TokenType:    "Bearer",
	}, http.StatusOK)
}

type sessionResponse struct {
	ID          string `json:"id"`
	DeviceLabel string `json:"device_label,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	IP          string `json:"ip,omitempty"`
	ExpiresAt   string `json:"expires_at"`
	CreatedAt   string `json:"created_at"`
}

// GetSessionsAPI handles GET /auth/sessions: the device-binding listing
// promised by §3.1, scoped to the caller's own still-alive sessions.
func (s *Server) GetSessionsAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)

	sessions, err := s.sessionStore.ListSessions(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionResponse{
			ID:          sess.ID,
			DeviceLabel: sess.DeviceLabel,
			UserAgent:   sess.UserAgent,
			IP:          sess.IP,
			ExpiresAt:   sess.ExpiresAt.Format(time.RFC3339),
			CreatedAt:   sess.CreatedAt.Format(time.RFC3339),
		})
	}
	httpResponseJSON(w, out, http.StatusOK)
}

// LogoutAPI handles POST /auth/logout.
func (s *Server) LogoutAPI(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, r, apierr.Unauthorized("missing bearer credential"))
		return
	}

	s.principalCache.Invalidate(principal.CredentialKey(token))

	if err := s.sessionStore.Logout(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}

	httpResponse(w, "logged out", http.StatusOK)
}
