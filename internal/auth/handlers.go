package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// TokenHandlers serves admin token issuance and guards admin routes
type TokenHandlers struct {
	tokens    *TokenService
	validator *validator.Validate
}

// NewTokenHandlers creates a new token handlers instance
func NewTokenHandlers(tokens *TokenService) *TokenHandlers {
	return &TokenHandlers{
		tokens:    tokens,
		validator: validator.New(),
	}
}

// IssueToken exchanges the shared admin secret for a short-lived token
// POST /api/admin/token
func (h *TokenHandlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}

	// Validate input
	if err := h.validator.Struct(req); err != nil {
		h.sendValidationError(w, err)
		return
	}

	if !h.tokens.VerifySecret(req.Secret) {
		h.sendError(w, http.StatusUnauthorized, "InvalidCredentials", "Invalid admin secret")
		return
	}

	token, err := h.tokens.GenerateAdminToken()
	if err != nil {
		slog.Error("failed to issue admin token", "error", err)
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to generate token")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(TokenResponse{
		AccessToken: token,
		ExpiresAt:   time.Now().Add(h.tokens.TokenExpiration()),
		Role:        RoleAdmin,
	})
}

// Helper methods

func (h *TokenHandlers) sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   code,
		Message: message,
		Code:    code,
	})
}

func (h *TokenHandlers) sendValidationError(w http.ResponseWriter, err error) {
	var validationErrors []string
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			validationErrors = append(validationErrors, fmt.Sprintf("%s: %s", fe.Field(), getValidationMessage(fe)))
		}
	}

	h.sendError(w, http.StatusBadRequest, "ValidationError", strings.Join(validationErrors, "; "))
}

func getValidationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
