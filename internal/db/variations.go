package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"reelsmith/internal/models"
)

// CreateVariations inserts a batch inside one transaction, so a batch either
// lands completely or not at all.
func (db *DB) CreateVariations(ctx context.Context, variations []*models.JobVariation) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO job_variations (id, job_id, video_url, thumbnail_url, cost, is_favorite)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	for _, v := range variations {
		if err := tx.QueryRowContext(
			ctx, query,
			v.ID, v.JobID, v.VideoURL, v.ThumbnailURL, v.Cost, v.IsFavorite,
		).Scan(&v.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert variation: %w", err)
		}
	}

	return tx.Commit()
}

func (db *DB) GetJobVariations(ctx context.Context, jobID uuid.UUID) ([]models.JobVariation, error) {
	query := `
		SELECT id, job_id, video_url, thumbnail_url, cost, is_favorite, created_at
		FROM job_variations
		WHERE job_id = $1
		ORDER BY created_at
	`

	rows, err := db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query variations: %w", err)
	}
	defer rows.Close()

	var variations []models.JobVariation
	for rows.Next() {
		var v models.JobVariation
		var cost string
		if err := rows.Scan(
			&v.ID, &v.JobID, &v.VideoURL, &v.ThumbnailURL, &cost, &v.IsFavorite, &v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan variation: %w", err)
		}
		if v.Cost, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("failed to parse variation cost: %w", err)
		}
		variations = append(variations, v)
	}

	return variations, rows.Err()
}

// SetVariationFavorite toggles the favorite flag. The variation must belong
// to the given job so ownership checks done on the job carry over.
func (db *DB) SetVariationFavorite(ctx context.Context, variationID, jobID uuid.UUID, favorite bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE job_variations SET is_favorite = $1 WHERE id = $2 AND job_id = $3`,
		favorite, variationID, jobID)
	if err != nil {
		return fmt.Errorf("failed to update favorite: %w", err)
	}
	return requireRow(result, "variation")
}
