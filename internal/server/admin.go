package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	apicrypto "github.com/computor-platform/computor-api/internal/crypto"
)

type rotateKeyRequest struct {
	// EncryptionKey is the new encryption passphrase. If empty, encryption is
	// disabled and provider tokens are stored as plaintext.
	EncryptionKey string `json:"encryption_key"`
}

// RotateKeyAPI handles POST /admin/rotate-key. It re-encrypts every stored
// GitLab/provider token with a new key, under a distributed lock when
// clustering is enabled so two instances never rotate concurrently.
func (s *Server) RotateKeyAPI(w http.ResponseWriter, r *http.Request) {
	var req rotateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpResponse(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	var newKey []byte
	if req.EncryptionKey != "" {
		var err error
		newKey, err = apicrypto.DeriveKey(req.EncryptionKey)
		if err != nil {
			httpResponse(w, fmt.Sprintf("invalid encryption key: %v", err), http.StatusBadRequest)
			return
		}
	}

	if s.cluster != nil {
		if err := s.cluster.LockScheduler(r.Context()); err != nil {
			slog.Error("failed to acquire distributed lock for key rotation", "error", err)
			httpResponse(w, fmt.Sprintf("failed to acquire distributed lock: %v", err), http.StatusServiceUnavailable)
			return
		}
		defer func() {
			if err := s.cluster.UnlockScheduler(); err != nil {
				slog.Error("failed to release distributed lock", "error", err)
			}
		}()
	}

	if err := s.store.RotateEncryptionKey(r.Context(), newKey); err != nil {
		slog.Error("encryption key rotation failed", "error", err)
		httpResponse(w, fmt.Sprintf("key rotation failed: %v", err), http.StatusInternalServerError)
		return
	}

	httpResponse(w, "encryption key rotated successfully", http.StatusOK)
}
