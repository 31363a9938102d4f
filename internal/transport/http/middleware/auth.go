package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dmflow/auth-service/internal/infra/logger"
	"github.com/dmflow/auth-service/internal/usecase"
)

const unauthorizedMessage = "Not authorized"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, message, kind string) ErrorResponse {
	return ErrorResponse{
		Message: message,
		Kind:    kind,
		TraceID: GetTraceID(c),
	}
}

// Authenticator resolves a bearer token to an account identifier.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// RequireAuth validates the Authorization header and stores the account id on the context.
// Requests without a valid bearer token never reach the handler.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, unauthorizedMessage, "missing_token"))
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, unauthorizedMessage, "invalid_authorization_header"))
			return
		}

		accountID, err := auth.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, unauthorizedMessage, "invalid_token"))
				return
			}
			logger.WithContext(c.Request.Context()).Error("authentication failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorResponse(c, "Server error", "internal"))
			return
		}

		c.Set(AccountIDKey, accountID)
		GetRequestContext(c).AccountID = accountID

		c.Next()
	}
}

// GetAuthenticatedAccountID retrieves the account ID set by RequireAuth.
func GetAuthenticatedAccountID(c *gin.Context) (string, bool) {
	accountID, exists := c.Get(AccountIDKey)
	if !exists {
		return "", false
	}

	if id, ok := accountID.(string); ok && id != "" {
		return id, true
	}

	return "", false
}
