package services

import (
	"context"
	"fmt"
	"time"

	"circles-backend/internal/storage"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// defaultCleanupBatch bounds the circles purged per run so a single
// invocation stays short; the rest are picked up on the next tick.
const defaultCleanupBatch = 25

// CleanupService purges circles past their delete deadline on a fixed
// schedule. Runs are idempotent and safe under concurrent invocation:
// the cleaned_up flag is flipped in the same transaction as the
// metadata deletes, and the expiry query excludes flagged circles, so
// an already-purged circle is never reprocessed.
type CleanupService struct {
	circles   CircleStore
	blobs     storage.BlobStore
	publisher Publisher
	cron      *cron.Cron
	batchSize int
	now       func() time.Time
}

// NewCleanupService creates a new cleanup service. batchSize <= 0
// falls back to the default.
func NewCleanupService(circles CircleStore, blobs storage.BlobStore, publisher Publisher, batchSize int) *CleanupService {
	if batchSize <= 0 {
		batchSize = defaultCleanupBatch
	}
	return &CleanupService{
		circles:   circles,
		blobs:     blobs,
		publisher: publisher,
		cron:      cron.New(),
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Start schedules the cleanup on the given cron spec (e.g. "@every 1h")
// and starts the scheduler.
func (s *CleanupService) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			log.Error().Err(err).Msg("Scheduled cleanup run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", spec, err)
	}
	s.cron.Start()
	log.Info().Str("schedule", spec).Msg("Cleanup scheduler started")
	return nil
}

// Stop stops the scheduler. A run already in flight completes.
func (s *CleanupService) Stop() {
	s.cron.Stop()
	log.Info().Msg("Cleanup scheduler stopped")
}

// RunOnce purges one batch of expired circles and returns how many
// were fully purged. Per-circle failures are logged and skipped; the
// circle stays eligible and is retried on a later run.
func (s *CleanupService) RunOnce(ctx context.Context) (int, error) {
	expired, err := s.circles.ListExpired(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to query expired circles: %w", err)
	}

	purged := 0
	for _, circle := range expired {
		if err := s.purgeCircle(ctx, circle.ID); err != nil {
			log.Error().Err(err).Str("circle_id", circle.ID).Msg("Failed to purge circle")
			continue
		}
		purged++
	}

	if purged > 0 || len(expired) > 0 {
		log.Info().
			Int("matched", len(expired)).
			Int("purged", purged).
			Msg("Cleanup run finished")
	}
	return purged, nil
}

// purgeCircle deletes the circle's blobs best-effort, then its photo
// metadata and the cleaned_up flag in one atomic batch. Blob deletion
// of already-absent objects succeeds, so a retried purge converges.
func (s *CleanupService) purgeCircle(ctx context.Context, circleID string) error {
	if err := purgeBlobs(ctx, s.blobs, circleID); err != nil {
		return err
	}

	if err := s.circles.PurgeMetadata(ctx, circleID); err != nil {
		return err
	}

	if s.publisher != nil {
		s.publisher.Publish("photos:"+circleID, nil)
	}

	log.Info().Str("circle_id", circleID).Msg("Circle purged")
	return nil
}
