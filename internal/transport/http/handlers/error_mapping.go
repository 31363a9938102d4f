package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dmflow/auth-service/internal/infra/logger"
	"github.com/dmflow/auth-service/internal/usecase"
)

const serverErrorMessage = "Server error"

// ErrorCase maps a sentinel error to an HTTP status code, response message and kind.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
	Kind    string
}

// authErrorCases lists every usecase failure the API reports to clients.
var authErrorCases = []ErrorCase{
	{Err: usecase.ErrDuplicateEmail, Status: http.StatusConflict, Message: "User already exists", Kind: "duplicate_email"},
	{Err: usecase.ErrAlreadyVerified, Status: http.StatusBadRequest, Message: "User is already verified", Kind: "already_verified"},
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "Invalid email or password", Kind: "invalid_credentials"},
	{Err: usecase.ErrNoChallenge, Status: http.StatusBadRequest, Message: "OTP not generated or expired", Kind: "otp_missing"},
	{Err: usecase.ErrChallengeExpired, Status: http.StatusBadRequest, Message: "OTP expired", Kind: "otp_expired"},
	{Err: usecase.ErrCodeMismatch, Status: http.StatusUnauthorized, Message: "Invalid OTP", Kind: "otp_invalid"},
	{Err: usecase.ErrTwoFactorNotEnabled, Status: http.StatusBadRequest, Message: "2FA is not enabled", Kind: "two_factor_not_enabled"},
	{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "User not found", Kind: "not_found"},
	{Err: usecase.ErrDeliveryFailed, Status: http.StatusInternalServerError, Message: "Failed to send OTP email", Kind: "delivery_failed"},
	{Err: usecase.ErrUnauthorized, Status: http.StatusUnauthorized, Message: "Not authorized", Kind: "unauthorized"},
}

// registrationErrorCases keeps the wording clients of verify-registration already rely on.
var registrationErrorCases = append([]ErrorCase{
	{Err: usecase.ErrNoChallenge, Status: http.StatusBadRequest, Message: "OTP not found or expired", Kind: "otp_missing"},
	{Err: usecase.ErrChallengeExpired, Status: http.StatusBadRequest, Message: "OTP has expired", Kind: "otp_expired"},
}, authErrorCases...)

// RespondWithMappedError resolves the provided error against known cases or falls back to a
// generic 500. Unmapped errors are logged and never echoed to the client.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			if cs.Status >= http.StatusInternalServerError {
				logger.WithContext(c.Request.Context()).Error("request failed", zap.Error(err))
			}
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message, cs.Kind))
			return
		}
	}

	logger.WithContext(c.Request.Context()).Error("unhandled error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, NewErrorResponse(c, serverErrorMessage, "internal"))
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, NewErrorResponse(c, message, "invalid_input"))
}
