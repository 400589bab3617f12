package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"reelsmith/internal/auth"
	"reelsmith/internal/models"
)

// Store is the slice of the database the handlers need. *db.DB satisfies it.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CountUsers(ctx context.Context) (int, error)
	SetUserApproval(ctx context.Context, id uuid.UUID, approved bool) error
	SetUserManualBudget(ctx context.Context, id uuid.UUID, ceiling decimal.Decimal) error
	DeleteUser(ctx context.Context, id uuid.UUID) error

	CreateJob(ctx context.Context, job *models.ContentJob) error
	GetJobForUser(ctx context.Context, id, userID uuid.UUID) (*models.ContentJob, error)
	ListUserJobs(ctx context.Context, userID uuid.UUID, limit int) ([]models.ContentJob, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
	SumUserCosts(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)

	GetJobVariations(ctx context.Context, jobID uuid.UUID) ([]models.JobVariation, error)
	SetVariationFavorite(ctx context.Context, variationID, jobID uuid.UUID, favorite bool) error

	ListCatalogModels(ctx context.Context) ([]models.CatalogModel, error)
	GetCatalogModel(ctx context.Context, slug string) (*models.CatalogModel, error)
	GetModelPreference(ctx context.Context, userID uuid.UUID) (*models.ModelPreference, error)
	UpsertModelPreference(ctx context.Context, pref *models.ModelPreference) error
}

// TaskQueue enqueues background work. *queue.Queue satisfies it.
type TaskQueue interface {
	EnqueueProcessJob(ctx context.Context, jobID uuid.UUID) error
	EnqueueGenerateVariations(ctx context.Context, jobID uuid.UUID, count int) error
}

// ObjectStore is the slice of object storage the handlers need.
// *storage.Storage satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	GenerateUploadKey(folder, filename string) string
	KeyFromURL(url string) string
}

type Handler struct {
	db            Store
	queue         TaskQueue
	storage       ObjectStore
	tokens        *auth.TokenManager
	defaultBudget decimal.Decimal
	uploadFolder  string
	log           zerolog.Logger
}

func NewHandler(
	database Store,
	q TaskQueue,
	stor ObjectStore,
	tokens *auth.TokenManager,
	defaultBudget decimal.Decimal,
	uploadFolder string,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		db:            database,
		queue:         q,
		storage:       stor,
		tokens:        tokens,
		defaultBudget: defaultBudget,
		uploadFolder:  uploadFolder,
		log:           logger.With().Str("component", "api").Logger(),
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
