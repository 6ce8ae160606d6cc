package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"wasmgate/internal/domain"
	"wasmgate/internal/repository"
	"wasmgate/internal/service/apikey"
	"wasmgate/internal/ws"
)

type keyResponse struct {
	ID         uuid.UUID  `json:"id"`
	TierID     uuid.UUID  `json:"tier_id"`
	Active     bool       `json:"active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toKeyResponse(c domain.Credential) keyResponse {
	return keyResponse{
		ID:         c.ID,
		TierID:     c.TierID,
		Active:     c.Active,
		ExpiresAt:  c.ExpiresAt,
		LastUsedAt: c.LastUsedAt,
		CreatedAt:  c.CreatedAt,
	}
}

// handleKeys serves POST (issue) and GET (list) on /admin/keys.
func (r *Router) handleKeys(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		r.handleIssueKey(w, req)
	case http.MethodGet:
		r.handleListKeys(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleIssueKey(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Tier      string     `json:"tier"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.Tier) == "" {
		writeError(w, http.StatusBadRequest, "tier is required")
		return
	}
	issued, err := r.keys.Issue(req.Context(), payload.Tier, payload.ExpiresAt)
	if err != nil {
		if errors.Is(err, apikey.ErrUnknownTier) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		r.logger.Error("key issuance failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not issue key")
		return
	}
	// The plaintext secret appears in this response and nowhere else.
	writeJSON(w, http.StatusCreated, map[string]any{
		"key":        issued.Secret,
		"credential": toKeyResponse(issued.Credential),
	})
}

func (r *Router) handleListKeys(w http.ResponseWriter, req *http.Request) {
	credentials, err := r.keys.List(req.Context())
	if err != nil {
		r.logger.Error("key listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list keys")
		return
	}
	out := make([]keyResponse, 0, len(credentials))
	for _, c := range credentials {
		out = append(out, toKeyResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": out})
}

// handleKeyByID serves DELETE /admin/keys/{id} (revoke).
func (r *Router) handleKeyByID(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	idText := strings.TrimPrefix(req.URL.Path, "/admin/keys/")
	id, err := uuid.Parse(idText)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}
	if err := r.keys.Revoke(req.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "key not found")
			return
		}
		r.logger.Error("key revocation failed", "key_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not revoke key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// handleUsageFeed upgrades to a websocket streaming usage records as they are
// accepted by the recorder. ?tenant=<uuid> narrows the feed to one tenant.
func (r *Router) handleUsageFeed(w http.ResponseWriter, req *http.Request) {
	topic := strings.TrimSpace(req.URL.Query().Get("tenant"))
	if topic == "" {
		topic = ws.BroadcastAll
	} else if _, err := uuid.Parse(topic); err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn)
	r.usageHub.Register(topic, client)
	defer r.usageHub.Unregister(topic, client)

	// Reads are discarded; the connection closing ends the subscription.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
