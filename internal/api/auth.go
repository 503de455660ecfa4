package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"plantstation/internal/auth"
	"plantstation/internal/db"
	"plantstation/internal/models"
)

// Mailer dispatches account emails. Delivery failures surface to the caller;
// there is no queue or retry layer behind this interface.
type Mailer interface {
	SendActivationEmail(to, username, token string, ttl time.Duration) error
	SendPasswordResetEmail(to, username, token string, ttl time.Duration) error
}

type AuthHandler struct {
	users         *db.UserRepository
	refreshTokens *db.RefreshTokenRepository
	tokens        *auth.TokenService
	mailer        Mailer
	activationTTL time.Duration
	resetTTL      time.Duration
}

func NewAuthHandler(
	users *db.UserRepository,
	refreshTokens *db.RefreshTokenRepository,
	tokens *auth.TokenService,
	mailer Mailer,
	activationTTL time.Duration,
	resetTTL time.Duration,
) *AuthHandler {
	return &AuthHandler{
		users:         users,
		refreshTokens: refreshTokens,
		tokens:        tokens,
		mailer:        mailer,
		activationTTL: activationTTL,
		resetTTL:      resetTTL,
	}
}

// POST /api/v1/auth/register
type RegisterRequest struct {
	Email           string `json:"email" validate:"required,email,max=254"`
	Username        string `json:"username" validate:"required,min=2,max=30"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := sanitizeDisplayString(req.Username)
	if len(username) < 2 {
		badRequest(w, "username must be at least 2")
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("error hashing password", "error", err)
		internalError(w)
		return
	}

	user, err := h.users.Create(email, username, passwordHash)
	if errors.Is(err, db.ErrDuplicateEmail) {
		writeError(w, http.StatusConflict, ErrCodeDuplicateEmail,
			"Account with this email already exists. Try logging in or reset your password.")
		return
	}
	if errors.Is(err, db.ErrDuplicateUsername) {
		writeError(w, http.StatusConflict, ErrCodeDuplicateUsername,
			"Username is taken, please choose a different one.")
		return
	}
	if err != nil {
		slog.Error("error creating user", "error", err)
		internalError(w)
		return
	}

	token, err := h.tokens.IssueActionToken(user.ID, auth.PurposeActivate, h.activationTTL)
	if err != nil {
		slog.Error("error issuing activation token", "error", err, "user_id", user.ID)
		internalError(w)
		return
	}

	// The account stays pending when delivery fails; there is no automatic
	// retry and no resend endpoint, so the failure must reach the caller.
	if err := h.mailer.SendActivationEmail(user.Email, user.Username, token, h.activationTTL); err != nil {
		slog.Error("error sending activation email", "error", err, "user_id", user.ID)
		writeError(w, http.StatusBadGateway, ErrCodeEmailDeliveryFailed,
			"Could not send the activation email, please try again later")
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{
		Message: "Check your email to activate your account!",
	})
}

// GET /api/v1/auth/activate?token=<token>
func (h *AuthHandler) Activate(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		badRequest(w, "token is required")
		return
	}

	userID, err := h.tokens.VerifyActionToken(token, auth.PurposeActivate)
	if err != nil {
		writeTokenError(w, err, "register again to request a new activation link")
		return
	}

	// Idempotent: re-activating an already active account is harmless.
	if err := h.users.Activate(userID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, ErrCodeTokenInvalid, "That is an invalid or expired token")
			return
		}
		slog.Error("error activating user", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "Your account has been activated! You can now log in.",
	})
}

// POST /api/v1/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    string       `json:"expiresAt"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := h.users.FindByEmail(email)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials,
			"Login unsuccessful, please check email and password")
		return
	}
	if err != nil {
		slog.Error("error finding user", "error", err)
		internalError(w)
		return
	}

	// A pending account gets its own message, even on a wrong password. The
	// disclosure tradeoff is deliberate: without it users who never received
	// the activation email would only ever see a credentials error.
	if !user.Active {
		writeError(w, http.StatusForbidden, ErrCodeAccountInactive,
			"You need to activate your account first. Please check your email for the activation link.")
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials,
			"Login unsuccessful, please check email and password")
		return
	}

	now := time.Now().UTC()
	if err := h.users.UpdateLastLogin(user.ID, now); err != nil {
		slog.Error("error recording last login", "error", err, "user_id", user.ID)
		internalError(w)
		return
	}
	user.LastLogin = &now

	authResponse, err := h.generateAuthResponse(user)
	if err != nil {
		slog.Error("error issuing auth tokens", "error", err, "user_id", user.ID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, authResponse)
}

// POST /api/v1/auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	refreshToken, err := h.refreshTokens.FindByHash(auth.HashRefreshToken(req.RefreshToken))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, ErrCodeTokenInvalid, "Invalid refresh token")
		return
	}
	if err != nil {
		slog.Error("error finding refresh token", "error", err)
		internalError(w)
		return
	}

	if refreshToken.RevokedAt != nil {
		writeError(w, http.StatusUnauthorized, ErrCodeTokenInvalid, "Refresh token has been revoked")
		return
	}

	if time.Now().After(refreshToken.ExpiresAt) {
		writeError(w, http.StatusUnauthorized, ErrCodeTokenExpired, "Refresh token has expired")
		return
	}

	user, err := h.users.FindByID(refreshToken.UserID)
	if errors.Is(err, db.ErrNotFound) || (err == nil && !user.Active) {
		writeError(w, http.StatusUnauthorized, ErrCodeTokenInvalid, "Invalid refresh token")
		return
	}
	if err != nil {
		slog.Error("error finding user", "error", err)
		internalError(w)
		return
	}

	// Rotation: the old token is revoked before the new one is issued; the
	// conditional revoke is the gate against concurrent reuse.
	if err := h.refreshTokens.Revoke(refreshToken.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, ErrCodeTokenInvalid, "Refresh token has already been used")
			return
		}
		slog.Error("error rotating refresh token", "error", err)
		internalError(w)
		return
	}

	authResponse, err := h.generateAuthResponse(user)
	if err != nil {
		slog.Error("error issuing auth tokens", "error", err, "user_id", user.ID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{
		AccessToken:  authResponse.AccessToken,
		RefreshToken: authResponse.RefreshToken,
		ExpiresAt:    authResponse.ExpiresAt,
	})
}

// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == 0 {
		unauthorized(w, "User not found in context")
		return
	}

	if err := h.refreshTokens.RevokeAllForUser(userID); err != nil {
		slog.Error("error revoking refresh tokens", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// POST /api/v1/auth/password-reset/request
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := h.users.FindByEmail(email)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeUnknownEmail,
			"Email account not found. Please register first.")
		return
	}
	if err != nil {
		slog.Error("error finding user", "error", err)
		internalError(w)
		return
	}

	token, err := h.tokens.IssueActionToken(user.ID, auth.PurposeReset, h.resetTTL)
	if err != nil {
		slog.Error("error issuing reset token", "error", err, "user_id", user.ID)
		internalError(w)
		return
	}

	if err := h.mailer.SendPasswordResetEmail(user.Email, user.Username, token, h.resetTTL); err != nil {
		slog.Error("error sending reset email", "error", err, "user_id", user.ID)
		writeError(w, http.StatusBadGateway, ErrCodeEmailDeliveryFailed,
			"Could not send the password reset email, please try again later")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "An email has been sent with instructions to reset your password.",
	})
}

// POST /api/v1/auth/password-reset/confirm
type ResetPasswordRequest struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	userID, err := h.tokens.VerifyActionToken(req.Token, auth.PurposeReset)
	if err != nil {
		writeTokenError(w, err, "request a new password reset link")
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("error hashing password", "error", err)
		internalError(w)
		return
	}

	// The new hash replaces the old one unconditionally; there is no check
	// that the password actually changed.
	if err := h.users.UpdatePassword(userID, passwordHash); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, ErrCodeTokenInvalid, "That is an invalid or expired token")
			return
		}
		slog.Error("error updating password", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	// Sessions issued under the old password die with it.
	if err := h.refreshTokens.RevokeAllForUser(userID); err != nil {
		slog.Error("error revoking refresh tokens", "error", err, "user_id", userID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "Your password has been updated! You can now use it to log in.",
	})
}

func (h *AuthHandler) generateAuthResponse(user *models.User) (*AuthResponse, error) {
	tokenPair, refreshHash, err := h.tokens.GenerateTokenPair(user)
	if err != nil {
		return nil, err
	}

	if _, err := h.refreshTokens.Create(user.ID, refreshHash, h.tokens.RefreshTokenExpiry()); err != nil {
		return nil, err
	}

	return &AuthResponse{
		User:         user,
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    tokenPair.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// writeTokenError maps codec failures to the recoverable re-request flow.
func writeTokenError(w http.ResponseWriter, err error, recovery string) {
	if errors.Is(err, auth.ErrTokenExpired) {
		writeError(w, http.StatusUnauthorized, ErrCodeTokenExpired, "That link has expired, "+recovery)
		return
	}
	writeError(w, http.StatusUnauthorized, ErrCodeTokenInvalid, "That is an invalid or expired token")
}
