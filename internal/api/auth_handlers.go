package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"reelsmith/internal/auth"
	"reelsmith/internal/db"
	"reelsmith/internal/models"
)

const minPasswordLength = 8

type signupResponse struct {
	User    models.User `json:"user"`
	Token   string      `json:"token,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Signup handles POST /api/signup. New accounts start unapproved and
// wait for an admin, except the very first account, which is bootstrapped
// as an approved admin.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		respondError(w, http.StatusBadRequest, "A valid email is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		respondError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	if _, err := h.db.GetUserByEmail(r.Context(), email); err == nil {
		respondError(w, http.StatusConflict, "Email is already registered")
		return
	} else if !errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusInternalServerError, "Failed to check email")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to process password")
		return
	}

	// The first account becomes the approved admin so the instance is usable
	// without manual database edits.
	count, err := h.db.CountUsers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
		IsApproved:   false,
	}
	if count == 0 {
		user.Role = models.RoleAdmin
		user.IsApproved = true
	}

	if err := h.db.CreateUser(r.Context(), user); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	resp := signupResponse{User: *user}
	if user.IsApproved {
		token, err := h.tokens.Sign(user)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to issue token")
			return
		}
		resp.Token = token
	} else {
		resp.Message = "Account created and pending admin approval"
	}

	h.log.Info().Str("email", email).Bool("approved", user.IsApproved).Msg("user signed up")
	respondJSON(w, http.StatusCreated, resp)
}

// Login handles POST /api/login. Unapproved accounts authenticate but
// are told to wait instead of receiving a token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := h.db.GetUserByEmail(r.Context(), email)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	if !user.IsApproved {
		respondError(w, http.StatusForbidden, "Account is pending approval")
		return
	}

	token, err := h.tokens.Sign(user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	respondJSON(w, http.StatusOK, models.LoginResponse{Token: token, User: *user})
}
