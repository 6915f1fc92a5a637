package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Rrens/chat-gateway/internal/api/response"
	"github.com/Rrens/chat-gateway/internal/security"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// TokenHandler issues connection tokens for the websocket endpoint
type TokenHandler struct {
	jwtManager *security.JWTManager
	validate   *validator.Validate
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(jwtManager *security.JWTManager) *TokenHandler {
	return &TokenHandler{
		jwtManager: jwtManager,
		validate:   validator.New(),
	}
}

type tokenRequest struct {
	ClientID string `json:"client_id" validate:"omitempty,max=128"`
}

// Issue handles POST /api/v1/token. The caller is already authenticated by
// a valid token, so this only renews or re-scopes it.
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}

	token, expiresAt, err := h.jwtManager.GenerateConnectionToken(clientID)
	if err != nil {
		response.InternalError(w, "failed to issue token")
		return
	}

	response.Created(w, map[string]any{
		"token":      token,
		"client_id":  clientID,
		"expires_at": expiresAt,
	})
}
