package auth

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/linkpulse/collector/internal/errors"
)

type TokenRequest struct {
	Secret string `json:"secret"`
}

type Handlers struct {
	authService *Service
}

func NewHandlers(authService *Service) *Handlers {
	return &Handlers{authService: authService}
}

// Token exchanges the shared API secret for a short-lived access token.
func (h *Handlers) Token(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid request body"))
		return
	}
	if req.Secret == "" {
		apperrors.WriteError(w, requestID, apperrors.ValidationError("secret is required"))
		return
	}

	resp, err := h.authService.IssueToken(req.Secret)
	if err != nil {
		apperrors.WriteError(w, requestID, apperrors.Unauthorized("invalid api secret"))
		return
	}

	apperrors.WriteJSON(w, requestID, http.StatusOK, resp)
}
