package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"reelsmith/internal/db"
	"reelsmith/internal/models"
)

const (
	minVideoDuration = 5
	maxVideoDuration = 10
)

// budgetCeiling resolves the user's spend ceiling: the manual override when
// an admin set one, the instance default otherwise.
func (h *Handler) budgetCeiling(user *models.User) decimal.Decimal {
	if user.ManualBudget != nil {
		return *user.ManualBudget
	}
	return h.defaultBudget
}

// GetBudget handles GET /api/budget. Budget is a read-side aggregate only;
// nothing blocks job creation when the ceiling is exceeded.
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)

	spent, err := h.db.SumUserCosts(r.Context(), user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to compute spend")
		return
	}

	ceiling := h.budgetCeiling(user)
	respondJSON(w, http.StatusOK, models.BudgetResponse{
		Ceiling:   ceiling,
		Spent:     spent,
		Remaining: ceiling.Sub(spent),
		IsManual:  user.ManualBudget != nil,
	})
}

// SetBudget handles POST /api/budget, pinning a manual ceiling for the
// current user.
func (h *Handler) SetBudget(w http.ResponseWriter, r *http.Request) {
	var req models.SetBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Ceiling.IsNegative() {
		respondError(w, http.StatusBadRequest, "ceiling must not be negative")
		return
	}

	user := CurrentUser(r)
	if err := h.db.SetUserManualBudget(r.Context(), user.ID, req.Ceiling); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to set budget")
		return
	}

	spent, err := h.db.SumUserCosts(r.Context(), user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to compute spend")
		return
	}

	respondJSON(w, http.StatusOK, models.BudgetResponse{
		Ceiling:   req.Ceiling,
		Spent:     spent,
		Remaining: req.Ceiling.Sub(spent),
		IsManual:  true,
	})
}

// ListModels handles GET /api/models.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.db.ListCatalogModels(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list models")
		return
	}
	if catalog == nil {
		catalog = []models.CatalogModel{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"models": catalog})
}

// Estimate handles POST /api/models/estimate: flat catalog prices for a planned run.
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	var req models.EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Variations < 0 || req.Variations > 4 {
		respondError(w, http.StatusBadRequest, "variations must be between 0 and 4")
		return
	}

	imageModel, err := h.catalogModel(r, req.ImageModel, models.ModelKindImage)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Unknown image model")
		return
	}
	videoModel, err := h.catalogModel(r, req.VideoModel, models.ModelKindVideo)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Unknown video model")
		return
	}

	breakdown := map[string]decimal.Decimal{
		"transform": imageModel.PricePerCall,
		"animate":   videoModel.PricePerCall,
	}
	total := imageModel.PricePerCall.Add(videoModel.PricePerCall)

	if req.Variations > 0 {
		variationCost := videoModel.PricePerCall.Mul(decimal.NewFromInt(int64(req.Variations)))
		breakdown["variations"] = variationCost
		total = total.Add(variationCost)
	}

	respondJSON(w, http.StatusOK, models.EstimateResponse{Total: total, Breakdown: breakdown})
}

// GetPreferences handles GET /api/models/preferences. Users without a saved row get
// the defaults.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	pref, err := h.db.GetModelPreference(r.Context(), CurrentUser(r).ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load preferences")
		return
	}
	respondJSON(w, http.StatusOK, pref)
}

// UpdatePreferences handles PUT /api/models/preferences. Only the provided fields
// change; each model slug must exist in the catalog with the right kind.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req models.UpdatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user := CurrentUser(r)
	pref, err := h.db.GetModelPreference(r.Context(), user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load preferences")
		return
	}

	if req.ImageModel != nil {
		if _, err := h.catalogModel(r, *req.ImageModel, models.ModelKindImage); err != nil {
			respondError(w, http.StatusBadRequest, "Unknown image model")
			return
		}
		pref.ImageModel = *req.ImageModel
	}
	if req.VideoModel != nil {
		if _, err := h.catalogModel(r, *req.VideoModel, models.ModelKindVideo); err != nil {
			respondError(w, http.StatusBadRequest, "Unknown video model")
			return
		}
		pref.VideoModel = *req.VideoModel
	}
	if req.VideoDuration != nil {
		if *req.VideoDuration < minVideoDuration || *req.VideoDuration > maxVideoDuration {
			respondError(w, http.StatusBadRequest, "video_duration must be between 5 and 10 seconds")
			return
		}
		pref.VideoDuration = *req.VideoDuration
	}

	pref.UserID = user.ID
	if err := h.db.UpsertModelPreference(r.Context(), pref); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save preferences")
		return
	}

	respondJSON(w, http.StatusOK, pref)
}

// catalogModel loads an active catalog entry and checks its kind.
func (h *Handler) catalogModel(r *http.Request, slug string, kind models.ModelKind) (*models.CatalogModel, error) {
	model, err := h.db.GetCatalogModel(r.Context(), slug)
	if err != nil {
		return nil, err
	}
	if model.Kind != kind {
		return nil, fmt.Errorf("model %s is not a %s model: %w", slug, kind, db.ErrNotFound)
	}
	return model, nil
}
