package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"reelsmith/internal/models"
)

func (db *DB) ListCatalogModels(ctx context.Context) ([]models.CatalogModel, error) {
	query := `
		SELECT id, slug, name, kind, provider, price_per_call, quality_rating, is_active, created_at
		FROM model_catalog
		WHERE is_active
		ORDER BY kind, quality_rating DESC, slug
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var catalog []models.CatalogModel
	for rows.Next() {
		var m models.CatalogModel
		var price string
		if err := rows.Scan(
			&m.ID, &m.Slug, &m.Name, &m.Kind, &m.Provider,
			&price, &m.QualityRating, &m.IsActive, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		if m.PricePerCall, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("failed to parse model price: %w", err)
		}
		catalog = append(catalog, m)
	}

	return catalog, rows.Err()
}

func (db *DB) GetCatalogModel(ctx context.Context, slug string) (*models.CatalogModel, error) {
	query := `
		SELECT id, slug, name, kind, provider, price_per_call, quality_rating, is_active, created_at
		FROM model_catalog
		WHERE slug = $1
	`

	m := &models.CatalogModel{}
	var price string
	err := db.QueryRowContext(ctx, query, slug).Scan(
		&m.ID, &m.Slug, &m.Name, &m.Kind, &m.Provider,
		&price, &m.QualityRating, &m.IsActive, &m.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("model %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	if m.PricePerCall, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("failed to parse model price: %w", err)
	}

	return m, nil
}

// GetModelPreference returns the user's saved selection, or defaults when
// they have never saved one.
func (db *DB) GetModelPreference(ctx context.Context, userID uuid.UUID) (*models.ModelPreference, error) {
	query := `
		SELECT user_id, image_model, video_model, video_duration, updated_at
		FROM model_preferences
		WHERE user_id = $1
	`

	pref := &models.ModelPreference{}
	err := db.QueryRowContext(ctx, query, userID).Scan(
		&pref.UserID, &pref.ImageModel, &pref.VideoModel, &pref.VideoDuration, &pref.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return &models.ModelPreference{
			UserID:        userID,
			ImageModel:    "fal-flux-pro",
			VideoModel:    "fal-kling-video",
			VideoDuration: 5,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}

	return pref, nil
}

func (db *DB) UpsertModelPreference(ctx context.Context, pref *models.ModelPreference) error {
	query := `
		INSERT INTO model_preferences (user_id, image_model, video_model, video_duration)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			image_model = EXCLUDED.image_model,
			video_model = EXCLUDED.video_model,
			video_duration = EXCLUDED.video_duration,
			updated_at = NOW()
		RETURNING updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		pref.UserID, pref.ImageModel, pref.VideoModel, pref.VideoDuration,
	).Scan(&pref.UpdatedAt)
}
