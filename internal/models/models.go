package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Enums

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

type JobStage string

const (
	JobStageTransform JobStage = "transform"
	JobStageAnimate   JobStage = "animate"
	JobStageFormat    JobStage = "format"
	JobStageCompleted JobStage = "completed"
)

// stageRank orders stages so callers can enforce forward-only progression.
var stageRank = map[JobStage]int{
	JobStageTransform: 0,
	JobStageAnimate:   1,
	JobStageFormat:    2,
	JobStageCompleted: 3,
}

// StageAtOrAfter reports whether stage a is the same as or later than b
// in the pipeline order.
func StageAtOrAfter(a, b JobStage) bool {
	return stageRank[a] >= stageRank[b]
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type ModelKind string

const (
	ModelKindImage ModelKind = "image"
	ModelKindVideo ModelKind = "video"
)

// Progress milestones for the pipeline, matching what the client's
// progress bar expects at each stage boundary.
const (
	ProgressStarted     = 10
	ProgressTransformed = 40
	ProgressAnimating   = 50
	ProgressAnimated    = 80
	ProgressFormatting  = 90
	ProgressDone        = 100
)

// Models

type User struct {
	ID           uuid.UUID        `json:"id"`
	Email        string           `json:"email"`
	PasswordHash string           `json:"-"`
	Role         Role             `json:"role"`
	IsApproved   bool             `json:"is_approved"`
	ManualBudget *decimal.Decimal `json:"manual_budget,omitempty"` // nil = default ceiling applies
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ContentJob is one user-submitted image-to-reel generation request,
// advanced through the pipeline by the worker (single writer per job).
type ContentJob struct {
	ID                  uuid.UUID       `json:"id"`
	UserID              uuid.UUID       `json:"user_id"`
	OriginalImageKey    string          `json:"original_image_key"` // object-storage key, not a public URL
	ImagePrompt         string          `json:"image_prompt"`
	VideoPrompt         string          `json:"video_prompt"`
	TransformedImageURL *string         `json:"transformed_image_url,omitempty"`
	AnimatedVideoURL    *string         `json:"animated_video_url,omitempty"`
	FinalVideoURL       *string         `json:"final_video_url,omitempty"`
	Status              JobStatus       `json:"status"`
	Progress            int             `json:"progress"` // 0-100, non-decreasing until terminal
	CurrentStage        JobStage        `json:"current_stage"`
	ErrorMessage        *string         `json:"error_message,omitempty"`
	Cost                decimal.Decimal `json:"cost"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
}

// JobVariation is an alternate video rendering derived from a job's
// already-transformed image and video prompt.
type JobVariation struct {
	ID           uuid.UUID       `json:"id"`
	JobID        uuid.UUID       `json:"job_id"`
	VideoURL     string          `json:"video_url"`
	ThumbnailURL *string         `json:"thumbnail_url,omitempty"`
	Cost         decimal.Decimal `json:"cost"`
	IsFavorite   bool            `json:"is_favorite"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CatalogModel is a static reference row describing a selectable generation model.
type CatalogModel struct {
	ID            uuid.UUID       `json:"id"`
	Slug          string          `json:"slug"`
	Name          string          `json:"name"`
	Kind          ModelKind       `json:"kind"`
	Provider      string          `json:"provider"`
	PricePerCall  decimal.Decimal `json:"price_per_call"`
	QualityRating int             `json:"quality_rating"` // 1-5
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ModelPreference is a per-user selection of image/video models.
type ModelPreference struct {
	UserID        uuid.UUID `json:"user_id"`
	ImageModel    string    `json:"image_model"`
	VideoModel    string    `json:"video_model"`
	VideoDuration int       `json:"video_duration"` // seconds
	UpdatedAt     time.Time `json:"updated_at"`
}

// DTOs for API requests and responses

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type UploadResponse struct {
	JobID  uuid.UUID `json:"jobId"`
	Status JobStatus `json:"status"`
}

type GenerateVariationsRequest struct {
	Count int `json:"count"` // 1-4
}

type FavoriteRequest struct {
	IsFavorite bool `json:"isFavorite"`
}

type BudgetResponse struct {
	Ceiling   decimal.Decimal `json:"ceiling"`
	Spent     decimal.Decimal `json:"spent"`
	Remaining decimal.Decimal `json:"remaining"`
	IsManual  bool            `json:"is_manual"`
}

type SetBudgetRequest struct {
	Ceiling decimal.Decimal `json:"ceiling"`
}

type EstimateRequest struct {
	ImageModel    string `json:"image_model"`
	VideoModel    string `json:"video_model"`
	VideoDuration int    `json:"video_duration,omitempty"`
	Variations    int    `json:"variations,omitempty"`
}

type EstimateResponse struct {
	Total     decimal.Decimal            `json:"total"`
	Breakdown map[string]decimal.Decimal `json:"breakdown"`
}

type UpdatePreferencesRequest struct {
	ImageModel    *string `json:"image_model,omitempty"`
	VideoModel    *string `json:"video_model,omitempty"`
	VideoDuration *int    `json:"video_duration,omitempty"`
}

type ApproveUserRequest struct {
	Approve bool `json:"approve"`
}

type ListJobsResponse struct {
	Jobs []ContentJob `json:"jobs"`
}

type ListVariationsResponse struct {
	Variations []JobVariation `json:"variations"`
}
