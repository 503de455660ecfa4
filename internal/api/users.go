package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"plantstation/internal/db"
)

type UserHandler struct {
	users *db.UserRepository
}

func NewUserHandler(users *db.UserRepository) *UserHandler {
	return &UserHandler{users: users}
}

// GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == 0 {
		unauthorized(w, "User not found in context")
		return
	}

	user, err := h.users.FindByID(userID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "User not found")
		return
	}
	if err != nil {
		slog.Error("error finding user", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// PATCH /api/v1/users/me
type UpdateProfileRequest struct {
	Email    *string `json:"email"`
	Username *string `json:"username"`
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == 0 {
		unauthorized(w, "User not found in context")
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid JSON body")
		return
	}

	user, err := h.users.FindByID(userID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, "User not found")
		return
	}
	if err != nil {
		slog.Error("error finding user", "error", err)
		internalError(w)
		return
	}

	email := user.Email
	if req.Email != nil {
		email = strings.ToLower(strings.TrimSpace(*req.Email))
		if err := requestValidator.Var(email, "required,email,max=254"); err != nil {
			badRequest(w, "invalid email format")
			return
		}
	}

	username := user.Username
	if req.Username != nil {
		username = sanitizeDisplayString(*req.Username)
		if len(username) < 2 || len(username) > 30 {
			badRequest(w, "username must be between 2 and 30 characters")
			return
		}
	}

	if email != user.Email || username != user.Username {
		err := h.users.UpdateProfile(userID, email, username)
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
		if errors.Is(err, db.ErrNotFound) {
			notFound(w, "User not found")
			return
		}
		if err != nil {
			slog.Error("error updating profile", "error", err, "user_id", userID)
			internalError(w)
			return
		}

		user.Email = email
		user.Username = username
	}

	writeJSON(w, http.StatusOK, user)
}
