package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dmflow/auth-service/internal/transport/http/middleware"
	"github.com/dmflow/auth-service/internal/usecase"
)

const (
	msgAccountCreated    = "Account created! Please verify your email with the OTP sent."
	msgAccountVerified   = "Account verified successfully"
	msgOTPSent           = "OTP sent to your email"
	msgTwoFactorEnabled  = "2FA enabled successfully"
	msgTwoFactorDisabled = "2FA disabled successfully"
	msgNotVerified       = "Account not verified"
)

// AuthHandler exposes the account endpoints mounted under /api/users.
type AuthHandler struct {
	auth *usecase.AuthService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes binds the public and bearer-protected account routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/register", h.register)
	r.POST("/verify-registration", h.verifyRegistration)
	r.POST("/login", h.login)

	protected := r.Group("")
	protected.Use(middleware.RequireAuth(h.auth))
	protected.GET("/profile", h.profile)
	protected.POST("/2fa/setup", h.setupTwoFactor)
	protected.POST("/2fa/verify", h.verifyTwoFactor)
	protected.POST("/2fa/disable", h.disableTwoFactor)
}

func (h *AuthHandler) register(c *gin.Context) {
	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid user data")
		return
	}

	switch {
	case strings.TrimSpace(req.Name) == "":
		respondBadRequest(c, "Name is required")
		return
	case strings.TrimSpace(req.Email) == "":
		respondBadRequest(c, "Email is required")
		return
	case req.Password == "":
		respondBadRequest(c, "Password is required")
		return
	}

	result, err := h.auth.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		RespondWithMappedError(c, err, authErrorCases)
		return
	}

	c.JSON(http.StatusCreated, RegistrationResponse{
		Message:              msgAccountCreated,
		Email:                result.Email,
		RequiresVerification: result.RequiresVerification,
	})
}

func (h *AuthHandler) verifyRegistration(c *gin.Context) {
	var req VerifyRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.OTP) == "" {
		respondBadRequest(c, "Email and OTP are required")
		return
	}

	profile, err := h.auth.VerifyRegistration(c.Request.Context(), req.Email, req.OTP)
	if err != nil {
		RespondWithMappedError(c, err, registrationErrorCases)
		return
	}

	c.JSON(http.StatusOK, VerifiedProfileResponse{
		ProfileResponse: newProfileResponse(profile),
		Message:         msgAccountVerified,
	})
}

func (h *AuthHandler) login(c *gin.Context) {
	// The password is checked by the core after the verification status, so an empty password
	// on an unverified account still reports requiresVerification.
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		respondBadRequest(c, "Email is required")
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, req.OTP)
	if err != nil {
		if errors.Is(err, usecase.ErrVerificationRequired) {
			c.JSON(http.StatusUnauthorized, VerificationRequiredResponse{
				Message:              msgNotVerified,
				Kind:                 "verification_required",
				RequiresVerification: true,
				Email:                result.Email,
				TraceID:              middleware.GetTraceID(c),
			})
			return
		}
		RespondWithMappedError(c, err, authErrorCases)
		return
	}

	if result.RequiresOTP {
		c.JSON(http.StatusOK, LoginOTPResponse{
			Message:     msgOTPSent,
			RequiresOTP: true,
			Email:       result.Email,
		})
		return
	}

	c.JSON(http.StatusOK, newProfileResponse(*result.Profile))
}

func (h *AuthHandler) profile(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		RespondWithMappedError(c, usecase.ErrUnauthorized, authErrorCases)
		return
	}

	profile, err := h.auth.GetProfile(c.Request.Context(), accountID)
	if err != nil {
		RespondWithMappedError(c, err, authErrorCases)
		return
	}

	c.JSON(http.StatusOK, newProfileResponse(profile))
}

func (h *AuthHandler) setupTwoFactor(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		RespondWithMappedError(c, usecase.ErrUnauthorized, authErrorCases)
		return
	}

	email, err := h.auth.SetupTwoFactor(c.Request.Context(), accountID)
	if err != nil {
		RespondWithMappedError(c, err, authErrorCases)
		return
	}

	c.JSON(http.StatusOK, ChallengeSentResponse{Message: msgOTPSent, Email: email})
}

func (h *AuthHandler) verifyTwoFactor(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		RespondWithMappedError(c, usecase.ErrUnauthorized, authErrorCases)
		return
	}

	var req OTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}

	if err := h.auth.VerifyTwoFactor(c.Request.Context(), accountID, req.OTP); err != nil {
		RespondWithMappedError(c, err, authErrorCases)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: msgTwoFactorEnabled})
}

func (h *AuthHandler) disableTwoFactor(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		RespondWithMappedError(c, usecase.ErrUnauthorized, authErrorCases)
		return
	}

	// The body is optional: an empty request asks for a code.
	var req OTPRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(c, "Invalid request body")
		return
	}

	result, err := h.auth.DisableTwoFactor(c.Request.Context(), accountID, req.OTP)
	if err != nil {
		RespondWithMappedError(c, err, authErrorCases)
		return
	}

	if result.ChallengeSent {
		c.JSON(http.StatusOK, ChallengeSentResponse{Message: msgOTPSent, Email: result.Email})
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: msgTwoFactorDisabled})
}
