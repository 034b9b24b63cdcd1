package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/computor-platform/computor-api/internal/apierr"
)

// ListApiTokensAPI handles GET /api-tokens: the caller's own tokens.
func (s *Server) ListApiTokensAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)

	tokens, err := s.apitokenSvc.List(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpResponseJSON(w, tokens, http.StatusOK)
}

type createApiTokenRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type createApiTokenResponse struct {
	Token string `json:"token"`
	Row   any    `json:"api_token"`
}

// CreateApiTokenAPI handles POST /api-tokens.
func (s *Server) CreateApiTokenAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)

	var req createApiTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.BadRequest("invalid request body: %v", err))
		return
	}
	if req.Name == "" {
		writeError(w, r, apierr.BadRequest("name is required"))
		return
	}

	issued, err := s.apitokenSvc.Issue(r.Context(), p.UserID, req.Name, req.Scopes, req.ExpiresAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpResponseJSON(w, createApiTokenResponse{Token: issued.Token, Row: issued.Row}, http.StatusCreated)
}

// RevokeApiTokenAPI handles DELETE /api-tokens/{id}.
func (s *Server) RevokeApiTokenAPI(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromRequest(r)
	id := r.PathValue("id")

	owned, err := s.apitokenSvc.List(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	found := false
	tokenHash := ""
	for _, t := range owned {
		if t.ID == id {
			found = true
			tokenHash = t.TokenHash
			break
		}
	}
	if !found && !p.IsAdmin {
		writeError(w, r, apierr.Forbidden("not permitted to revoke this token"))
		return
	}

	if err := s.apitokenSvc.Revoke(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	if tokenHash != "" {
		s.principalCache.Invalidate(tokenHash)
	}
	httpResponseJSON(w, map[string]string{"status": "revoked"}, http.StatusOK)
}
