package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"reelsmith/internal/db"
	"reelsmith/internal/models"
	"reelsmith/internal/providers"
	"reelsmith/internal/queue"
	"reelsmith/internal/services"
)

const (
	dequeueTimeout = 5 * time.Second

	minVariations = 1
	maxVariations = 4
)

// Store is the slice of the database the worker needs. *db.DB satisfies it.
type Store interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.ContentJob, error)
	AdvanceJob(ctx context.Context, id uuid.UUID, stage models.JobStage, progress int) error
	SetTransformedImage(ctx context.Context, id uuid.UUID, url string) error
	SetAnimatedVideo(ctx context.Context, id uuid.UUID, url string) error
	CompleteJob(ctx context.Context, id uuid.UUID, finalURL string, cost decimal.Decimal) error
	FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error
	ListStuckJobs(ctx context.Context, olderThan time.Duration) ([]models.ContentJob, error)
	GetModelPreference(ctx context.Context, userID uuid.UUID) (*models.ModelPreference, error)
	CreateVariations(ctx context.Context, variations []*models.JobVariation) error
}

// Worker drains the Redis queues and drives jobs through the pipeline.
// Each content job has exactly one writer at a time: the worker goroutine
// that dequeued it.
type Worker struct {
	db         Store
	queue      *queue.Queue
	gen        *services.MediaGenerator
	stuckAfter time.Duration
	log        zerolog.Logger
}

func New(database Store, q *queue.Queue, gen *services.MediaGenerator, stuckAfter time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		db:         database,
		queue:      q,
		gen:        gen,
		stuckAfter: stuckAfter,
		log:        logger.With().Str("component", "worker").Logger(),
	}
}

// Start requeues jobs stranded by a previous crash, then runs concurrency
// goroutines per queue until the context is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	w.log.Info().Int("concurrency", concurrency).Str("provider", w.gen.ProviderName()).Msg("worker starting")

	if err := w.RequeueStuck(ctx); err != nil {
		w.log.Error().Err(err).Msg("stuck job recovery failed")
	}

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueProcessJob, w.handleProcessJob)
		go w.processQueue(ctx, queue.QueueGenerateVariations, w.handleGenerateVariations)
	}

	<-ctx.Done()
	w.log.Info().Msg("worker shutting down")
}

// RequeueStuck re-enqueues PROCESSING jobs whose queue entry was lost in a
// crash. The pipeline resumes from the last persisted stage URL, so replays
// never redo finished vendor calls.
func (w *Worker) RequeueStuck(ctx context.Context) error {
	stuck, err := w.db.ListStuckJobs(ctx, w.stuckAfter)
	if err != nil {
		return fmt.Errorf("failed to list stuck jobs: %w", err)
	}

	for _, job := range stuck {
		if err := w.queue.EnqueueProcessJob(ctx, job.ID); err != nil {
			return fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
		}
		w.log.Warn().
			Str("job_id", job.ID.String()).
			Str("stage", string(job.CurrentStage)).
			Time("last_update", job.UpdatedAt).
			Msg("requeued stuck job")
	}

	if len(stuck) > 0 {
		w.log.Info().Int("count", len(stuck)).Msg("stuck job recovery complete")
	}
	return nil
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Task) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			task, err := w.queue.Dequeue(ctx, queueName, dequeueTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.log.Error().Err(err).Str("queue", queueName).Msg("dequeue failed")
				continue
			}
			if task == nil {
				continue
			}

			w.log.Info().
				Str("task_id", task.ID.String()).
				Str("type", task.Type).
				Str("job_id", task.JobID.String()).
				Msg("task dequeued")

			if err := handler(ctx, task); err != nil {
				w.log.Error().Err(err).
					Str("task_id", task.ID.String()).
					Str("job_id", task.JobID.String()).
					Msg("task failed")
			} else {
				w.log.Info().
					Str("task_id", task.ID.String()).
					Str("job_id", task.JobID.String()).
					Msg("task completed")
			}
		}
	}
}

// handleProcessJob runs the full pipeline for one content job. Any stage
// error marks the job FAILED with the error message on the row.
func (w *Worker) handleProcessJob(ctx context.Context, task *queue.Task) error {
	job, err := w.db.GetJob(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// Deleted while queued; nothing to do.
			w.log.Warn().Str("job_id", task.JobID.String()).Msg("dropping task for missing job")
			return nil
		}
		return err
	}

	// Stages only move forward: a job that already reached COMPLETED never
	// re-enters the pipeline, even on a duplicate or stale delivery.
	if job.Status == models.JobStatusCompleted || models.StageAtOrAfter(job.CurrentStage, models.JobStageCompleted) {
		w.log.Info().Str("job_id", job.ID.String()).Msg("job already completed, dropping duplicate delivery")
		return nil
	}

	pref, err := w.db.GetModelPreference(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}

	if err := w.runPipeline(ctx, job, pref.VideoDuration); err != nil {
		if failErr := w.db.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.log.Error().Err(failErr).Str("job_id", job.ID.String()).Msg("failed to record job failure")
		}
		return err
	}
	return nil
}

// runPipeline advances a job through transform, animate, and format. Stages
// whose output URL is already on the row are skipped, which makes redelivery
// after a crash resume instead of restart.
func (w *Worker) runPipeline(ctx context.Context, job *models.ContentJob, durationSec int) error {
	log := w.log.With().Str("job_id", job.ID.String()).Logger()

	// Stage 1: transform
	var imageURL string
	if job.TransformedImageURL != nil && *job.TransformedImageURL != "" {
		imageURL = *job.TransformedImageURL
		log.Info().Msg("transform already done, resuming from checkpoint")
	} else {
		if err := w.db.AdvanceJob(ctx, job.ID, models.JobStageTransform, models.ProgressStarted); err != nil {
			return fmt.Errorf("failed to advance to transform: %w", err)
		}

		sourceURL := w.gen.ResolveSourceURL(ctx, job.OriginalImageKey)
		url, err := w.gen.Transform(ctx, sourceURL, job.ImagePrompt)
		if err != nil {
			return fmt.Errorf("transform stage: %w", err)
		}
		if err := w.db.SetTransformedImage(ctx, job.ID, url); err != nil {
			return fmt.Errorf("failed to save transformed image: %w", err)
		}
		imageURL = url
		log.Info().Msg("transform stage complete")
	}

	// Stage 2: animate
	var videoURL string
	if job.AnimatedVideoURL != nil && *job.AnimatedVideoURL != "" {
		videoURL = *job.AnimatedVideoURL
		log.Info().Msg("animation already done, resuming from checkpoint")
	} else {
		if err := w.db.AdvanceJob(ctx, job.ID, models.JobStageAnimate, models.ProgressAnimating); err != nil {
			return fmt.Errorf("failed to advance to animate: %w", err)
		}

		url, err := w.gen.Animate(ctx, imageURL, job.VideoPrompt, durationSec)
		if err != nil {
			return fmt.Errorf("animate stage: %w", err)
		}
		if err := w.db.SetAnimatedVideo(ctx, job.ID, url); err != nil {
			return fmt.Errorf("failed to save animated video: %w", err)
		}
		videoURL = url
		log.Info().Msg("animate stage complete")
	}

	// Stage 3: format
	if err := w.db.AdvanceJob(ctx, job.ID, models.JobStageFormat, models.ProgressFormatting); err != nil {
		return fmt.Errorf("failed to advance to format: %w", err)
	}

	finalURL, err := w.gen.Format(ctx, videoURL)
	if err != nil {
		return fmt.Errorf("format stage: %w", err)
	}

	if err := w.db.CompleteJob(ctx, job.ID, finalURL, w.gen.PipelineCost()); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	log.Info().Str("final_url", finalURL).Msg("pipeline complete")
	return nil
}

// handleGenerateVariations renders N alternate videos from a completed job's
// transformed image. The batch is all-or-nothing: every clip must succeed
// before any variation row is written.
func (w *Worker) handleGenerateVariations(ctx context.Context, task *queue.Task) error {
	job, err := w.db.GetJob(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			w.log.Warn().Str("job_id", task.JobID.String()).Msg("dropping variation task for missing job")
			return nil
		}
		return err
	}

	if job.TransformedImageURL == nil || *job.TransformedImageURL == "" {
		return fmt.Errorf("job %s has no transformed image, cannot generate variations", job.ID)
	}
	if job.VideoPrompt == "" {
		return fmt.Errorf("job %s has no video prompt, cannot generate variations", job.ID)
	}

	count := task.Count
	if count < minVariations {
		count = minVariations
	}
	if count > maxVariations {
		count = maxVariations
	}

	pref, err := w.db.GetModelPreference(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}

	urls := make([]string, count)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			url, err := w.gen.Animate(gctx, *job.TransformedImageURL, job.VideoPrompt, pref.VideoDuration)
			if err != nil {
				return fmt.Errorf("variation %d: %w", i+1, err)
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	perClip := w.gen.EstimateCost(providers.OpAnimate)
	variations := make([]*models.JobVariation, count)
	for i, url := range urls {
		variations[i] = &models.JobVariation{
			ID:       uuid.New(),
			JobID:    job.ID,
			VideoURL: url,
			Cost:     perClip,
		}
	}

	if err := w.db.CreateVariations(ctx, variations); err != nil {
		return fmt.Errorf("failed to save variations: %w", err)
	}

	w.log.Info().
		Str("job_id", job.ID.String()).
		Int("count", count).
		Msg("variation batch complete")
	return nil
}
