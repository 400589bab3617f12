package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"reelsmith/internal/models"
)

const jobSelect = `
	SELECT
		id, user_id, original_image_key, image_prompt, video_prompt,
		transformed_image_url, animated_video_url, final_video_url,
		status, progress, current_stage, error_message, cost,
		created_at, updated_at, completed_at
	FROM content_jobs
`

func (db *DB) CreateJob(ctx context.Context, job *models.ContentJob) error {
	query := `
		INSERT INTO content_jobs (
			id, user_id, original_image_key, image_prompt, video_prompt,
			status, progress, current_stage, cost
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		job.ID, job.UserID, job.OriginalImageKey, job.ImagePrompt, job.VideoPrompt,
		job.Status, job.Progress, job.CurrentStage, job.Cost,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.ContentJob, error) {
	return scanJob(db.QueryRowContext(ctx, jobSelect+` WHERE id = $1`, id))
}

// GetJobForUser fetches a job only if it belongs to the given user.
// A job owned by someone else is indistinguishable from a missing one.
func (db *DB) GetJobForUser(ctx context.Context, id, userID uuid.UUID) (*models.ContentJob, error) {
	return scanJob(db.QueryRowContext(ctx, jobSelect+` WHERE id = $1 AND user_id = $2`, id, userID))
}

func scanJob(row *sql.Row) (*models.ContentJob, error) {
	job := &models.ContentJob{}
	var cost string
	err := row.Scan(
		&job.ID, &job.UserID, &job.OriginalImageKey, &job.ImagePrompt, &job.VideoPrompt,
		&job.TransformedImageURL, &job.AnimatedVideoURL, &job.FinalVideoURL,
		&job.Status, &job.Progress, &job.CurrentStage, &job.ErrorMessage, &cost,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if job.Cost, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("failed to parse job cost: %w", err)
	}

	return job, nil
}

// ListUserJobs returns the user's most recent jobs, newest first. A limit of
// zero or less returns every job the user has.
func (db *DB) ListUserJobs(ctx context.Context, userID uuid.UUID, limit int) ([]models.ContentJob, error) {
	query := jobSelect + ` WHERE user_id = $1 ORDER BY created_at DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.ContentJob
	for rows.Next() {
		var job models.ContentJob
		var cost string
		if err := rows.Scan(
			&job.ID, &job.UserID, &job.OriginalImageKey, &job.ImagePrompt, &job.VideoPrompt,
			&job.TransformedImageURL, &job.AnimatedVideoURL, &job.FinalVideoURL,
			&job.Status, &job.Progress, &job.CurrentStage, &job.ErrorMessage, &cost,
			&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		if job.Cost, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("failed to parse job cost: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// AdvanceJob moves a job to a stage with the given progress. GREATEST keeps
// progress monotonic even if a requeued job replays an earlier stage boundary.
func (db *DB) AdvanceJob(ctx context.Context, id uuid.UUID, stage models.JobStage, progress int) error {
	query := `
		UPDATE content_jobs
		SET status = $1, current_stage = $2, progress = GREATEST(progress, $3), updated_at = NOW()
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, models.JobStatusProcessing, stage, progress, id)
	return err
}

func (db *DB) SetTransformedImage(ctx context.Context, id uuid.UUID, url string) error {
	query := `
		UPDATE content_jobs
		SET transformed_image_url = $1, progress = GREATEST(progress, $2), updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, url, models.ProgressTransformed, id)
	return err
}

func (db *DB) SetAnimatedVideo(ctx context.Context, id uuid.UUID, url string) error {
	query := `
		UPDATE content_jobs
		SET animated_video_url = $1, progress = GREATEST(progress, $2), updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, url, models.ProgressAnimated, id)
	return err
}

// CompleteJob marks the terminal success state: final URL, total cost,
// progress 100 and completed_at in one write.
func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID, finalURL string, cost decimal.Decimal) error {
	query := `
		UPDATE content_jobs
		SET status = $1, current_stage = $2, progress = $3,
		    final_video_url = $4, cost = $5, completed_at = NOW(), updated_at = NOW()
		WHERE id = $6
	`
	_, err := db.ExecContext(ctx, query,
		models.JobStatusCompleted, models.JobStageCompleted, models.ProgressDone, finalURL, cost, id)
	return err
}

func (db *DB) FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE content_jobs
		SET status = $1, progress = 0, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, models.JobStatusFailed, errorMessage, id)
	return err
}

// DeleteJob removes a job; variations cascade at the DB level. Storage
// cleanup is the caller's responsibility (best-effort, before this call).
func (db *DB) DeleteJob(ctx context.Context, id uuid.UUID) error {
	result, err := db.ExecContext(ctx, `DELETE FROM content_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return requireRow(result, "job")
}

// SumUserCosts totals everything the user has ever been charged:
// job costs plus variation costs across all their jobs.
func (db *DB) SumUserCosts(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT
			COALESCE(SUM(j.cost), 0) +
			COALESCE((
				SELECT SUM(v.cost)
				FROM job_variations v
				JOIN content_jobs cj ON cj.id = v.job_id
				WHERE cj.user_id = $1
			), 0)
		FROM content_jobs j
		WHERE j.user_id = $1
	`

	var total string
	if err := db.QueryRowContext(ctx, query, userID).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum costs: %w", err)
	}

	d, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse cost total: %w", err)
	}
	return d, nil
}

// ListStuckJobs returns PROCESSING jobs that have not been touched since the
// cutoff — candidates for re-enqueueing after a worker crash.
func (db *DB) ListStuckJobs(ctx context.Context, olderThan time.Duration) ([]models.ContentJob, error) {
	rows, err := db.QueryContext(ctx,
		jobSelect+` WHERE status = $1 AND updated_at < $2 ORDER BY updated_at`,
		models.JobStatusProcessing, time.Now().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.ContentJob
	for rows.Next() {
		var job models.ContentJob
		var cost string
		if err := rows.Scan(
			&job.ID, &job.UserID, &job.OriginalImageKey, &job.ImagePrompt, &job.VideoPrompt,
			&job.TransformedImageURL, &job.AnimatedVideoURL, &job.FinalVideoURL,
			&job.Status, &job.Progress, &job.CurrentStage, &job.ErrorMessage, &cost,
			&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		if job.Cost, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("failed to parse job cost: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}
