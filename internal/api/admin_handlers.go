package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"reelsmith/internal/db"
	"reelsmith/internal/models"
)

// ListUsers handles GET /api/admin/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.ListUsers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list users")
		return
	}
	if users == nil {
		users = []models.User{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// ApproveUser handles POST /api/admin/users/{id}/approve. The same endpoint
// revokes approval with {"approve": false}.
func (h *Handler) ApproveUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	var req models.ApproveUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.db.SetUserApproval(r.Context(), id, req.Approve); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "User not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to update user")
		return
	}

	h.log.Info().Str("user_id", id.String()).Bool("approved", req.Approve).Msg("user approval changed")
	w.WriteHeader(http.StatusNoContent)
}

// DeleteUser handles DELETE /api/admin/users/{id}. The caller cannot delete
// their own account; stored media is cleaned up best-effort first.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	if CurrentUser(r).ID == id {
		respondError(w, http.StatusBadRequest, "Cannot delete your own account")
		return
	}

	// Every job, not just the newest page: blobs of old jobs would otherwise
	// be orphaned by the cascade delete.
	jobs, err := h.db.ListUserJobs(r.Context(), id, 0)
	if err == nil {
		for i := range jobs {
			h.cleanupJobStorage(r, &jobs[i])
		}
	}

	if err := h.db.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "User not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to delete user")
		return
	}

	h.log.Info().Str("user_id", id.String()).Msg("user deleted")
	w.WriteHeader(http.StatusNoContent)
}
