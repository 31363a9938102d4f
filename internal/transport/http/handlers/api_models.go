package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmflow/auth-service/internal/core/domain"
	"github.com/dmflow/auth-service/internal/transport/http/middleware"
	"github.com/dmflow/auth-service/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse = middleware.ErrorResponse

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, message, kind string) ErrorResponse {
	return ErrorResponse{
		Message: message,
		Kind:    kind,
		TraceID: middleware.GetTraceID(c),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// ChallengeSentResponse is returned when a code has been emailed to the account.
type ChallengeSentResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

// VerificationRequiredResponse is returned when login is attempted on an unverified account.
type VerificationRequiredResponse struct {
	Message              string `json:"message"`
	Kind                 string `json:"kind"`
	RequiresVerification bool   `json:"requiresVerification"`
	Email                string `json:"email"`
	TraceID              string `json:"trace_id,omitempty"`
}

// ProfileResponse is the public view of an account together with a fresh session token.
type ProfileResponse struct {
	ID               string      `json:"_id"`
	Name             string      `json:"name"`
	Email            string      `json:"email"`
	Role             domain.Role `json:"role"`
	IsVerified       bool        `json:"isVerified"`
	TwoFactorEnabled bool        `json:"twoFactorEnabled"`
	Token            string      `json:"token"`
}

// VerifiedProfileResponse is the profile plus a confirmation message.
type VerifiedProfileResponse struct {
	ProfileResponse
	Message string `json:"message"`
}

// RegistrationRequest defines the account registration payload.
type RegistrationRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegistrationResponse contains registration results and next steps.
type RegistrationResponse struct {
	Message              string `json:"message"`
	Email                string `json:"email"`
	RequiresVerification bool   `json:"requiresVerification"`
}

// VerifyRegistrationRequest holds the registration verification payload.
type VerifyRegistrationRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// LoginRequest defines the payload for the login endpoint. OTP is only sent on the second step
// of a two-factor login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
}

// LoginOTPResponse is returned when a login requires a one-time code.
type LoginOTPResponse struct {
	Message     string `json:"message"`
	RequiresOTP bool   `json:"requiresOTP"`
	Email       string `json:"email"`
}

// OTPRequest carries a one-time code.
type OTPRequest struct {
	OTP string `json:"otp"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newProfileResponse(p usecase.Profile) ProfileResponse {
	return ProfileResponse{
		ID:               p.ID,
		Name:             p.Name,
		Email:            p.Email,
		Role:             p.Role,
		IsVerified:       p.IsVerified,
		TwoFactorEnabled: p.TwoFactorEnabled,
		Token:            p.Token,
	}
}
