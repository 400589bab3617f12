package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"reelsmith/internal/db"
	"reelsmith/internal/models"
)

const (
	maxUploadBytes = 20 << 20 // 20 MiB
	jobListLimit   = 50
)

// UploadJob handles POST /api/upload: a multipart photo upload plus the two
// prompts. The job is stored PENDING and the pipeline run is enqueued.
func (h *Handler) UploadJob(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart upload (max 20 MiB)")
		return
	}

	imagePrompt := strings.TrimSpace(r.FormValue("imagePrompt"))
	videoPrompt := strings.TrimSpace(r.FormValue("videoPrompt"))
	if imagePrompt == "" {
		respondError(w, http.StatusBadRequest, "imagePrompt is required")
		return
	}
	if videoPrompt == "" {
		respondError(w, http.StatusBadRequest, "videoPrompt is required")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read image")
		return
	}

	contentType := http.DetectContentType(data)
	switch contentType {
	case "image/jpeg", "image/png", "image/webp":
	default:
		respondError(w, http.StatusBadRequest, "Unsupported image type (jpeg, png, webp)")
		return
	}

	key := h.storage.GenerateUploadKey(h.uploadFolder, header.Filename)
	if err := h.storage.Upload(r.Context(), key, data, contentType); err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("upload to storage failed")
		respondError(w, http.StatusInternalServerError, "Failed to store image")
		return
	}

	job := &models.ContentJob{
		ID:               uuid.New(),
		UserID:           user.ID,
		OriginalImageKey: key,
		ImagePrompt:      imagePrompt,
		VideoPrompt:      videoPrompt,
		Status:           models.JobStatusPending,
		CurrentStage:     models.JobStageTransform,
		Cost:             decimal.Zero,
	}

	if err := h.db.CreateJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueProcessJob(r.Context(), job.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	h.log.Info().Str("job_id", job.ID.String()).Str("user_id", user.ID.String()).Msg("job created")
	respondJSON(w, http.StatusCreated, models.UploadResponse{JobID: job.ID, Status: job.Status})
}

// ListJobs handles GET /api/jobs, newest first.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)

	jobs, err := h.db.ListUserJobs(r.Context(), user.ID, jobListLimit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []models.ContentJob{}
	}

	respondJSON(w, http.StatusOK, models.ListJobsResponse{Jobs: jobs})
}

// GetJob handles GET /api/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// DeleteJob handles DELETE /api/jobs/{id}. Stored objects are removed
// best-effort before the row; variations cascade in the database.
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}

	h.cleanupJobStorage(r, job)

	if err := h.db.DeleteJob(r.Context(), job.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete job")
		return
	}

	h.log.Info().Str("job_id", job.ID.String()).Msg("job deleted")
	w.WriteHeader(http.StatusNoContent)
}

// RegenerateJob handles POST /api/jobs/{id}/regenerate: render one more
// variation from the job's transformed image and video prompt. The job row
// and its existing outputs are never touched; only the worker mutates jobs.
func (h *Handler) RegenerateJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}

	if job.TransformedImageURL == nil || *job.TransformedImageURL == "" {
		respondError(w, http.StatusBadRequest, "Job has no transformed image to regenerate from")
		return
	}
	if job.VideoPrompt == "" {
		respondError(w, http.StatusBadRequest, "Job has no video prompt")
		return
	}

	if err := h.queue.EnqueueGenerateVariations(r.Context(), job.ID, 1); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue regeneration")
		return
	}

	h.log.Info().Str("job_id", job.ID.String()).Msg("regeneration enqueued")
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobId": job.ID,
		"count": 1,
	})
}

// DownloadJob handles GET /api/download/{id} by redirecting to the final
// video URL.
func (h *Handler) DownloadJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}

	if job.Status != models.JobStatusCompleted || job.FinalVideoURL == nil || *job.FinalVideoURL == "" {
		respondError(w, http.StatusConflict, "Job is not completed yet")
		return
	}

	http.Redirect(w, r, *job.FinalVideoURL, http.StatusFound)
}

// GenerateVariations handles POST /api/jobs/{id}/generate-variations.
func (h *Handler) GenerateVariations(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}

	var req models.GenerateVariationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Count < 1 || req.Count > 4 {
		respondError(w, http.StatusBadRequest, "count must be between 1 and 4")
		return
	}

	if job.Status != models.JobStatusCompleted {
		respondError(w, http.StatusConflict, "Variations require a completed job")
		return
	}
	if job.TransformedImageURL == nil || *job.TransformedImageURL == "" {
		respondError(w, http.StatusBadRequest, "Job has no transformed image")
		return
	}

	if err := h.queue.EnqueueGenerateVariations(r.Context(), job.ID, req.Count); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue variations")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobId": job.ID,
		"count": req.Count,
	})
}

// ListVariations handles GET /api/jobs/{id}/variations.
func (h *Handler) ListVariations(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}

	variations, err := h.db.GetJobVariations(r.Context(), job.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list variations")
		return
	}
	if variations == nil {
		variations = []models.JobVariation{}
	}

	respondJSON(w, http.StatusOK, models.ListVariationsResponse{Variations: variations})
}

// SetVariationFavorite handles POST /api/jobs/{id}/variations/{variationId}/favorite.
func (h *Handler) SetVariationFavorite(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}

	variationID, err := uuid.Parse(chi.URLParam(r, "variationId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid variation id")
		return
	}

	var req models.FavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.db.SetVariationFavorite(r.Context(), variationID, job.ID, req.IsFavorite); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Variation not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to update variation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownedJob loads the job from the URL for the current user, writing the
// error response itself on failure. Jobs owned by other users look exactly
// like missing jobs.
func (h *Handler) ownedJob(w http.ResponseWriter, r *http.Request) (*models.ContentJob, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job id")
		return nil, false
	}

	job, err := h.db.GetJobForUser(r.Context(), id, CurrentUser(r).ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Job not found")
			return nil, false
		}
		respondError(w, http.StatusInternalServerError, "Failed to load job")
		return nil, false
	}
	return job, true
}

// cleanupJobStorage deletes every object the job put in our bucket. Failures
// are logged and ignored: the row delete must not be blocked by storage.
func (h *Handler) cleanupJobStorage(r *http.Request, job *models.ContentJob) {
	keys := []string{job.OriginalImageKey}
	for _, u := range []*string{job.TransformedImageURL, job.AnimatedVideoURL, job.FinalVideoURL} {
		if u == nil {
			continue
		}
		if key := h.storage.KeyFromURL(*u); key != "" {
			keys = append(keys, key)
		}
	}

	if variations, err := h.db.GetJobVariations(r.Context(), job.ID); err == nil {
		for _, v := range variations {
			if key := h.storage.KeyFromURL(v.VideoURL); key != "" {
				keys = append(keys, key)
			}
		}
	}

	for _, key := range keys {
		if err := h.storage.Delete(r.Context(), key); err != nil {
			h.log.Warn().Err(err).Str("key", key).Msg("storage cleanup failed")
		}
	}
}
