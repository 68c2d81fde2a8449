package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"circles-backend/internal/lifecycle"
	"circles-backend/internal/models"
	"circles-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	// maxUploadBytes bounds a single photo upload.
	maxUploadBytes = 10 << 20
	// displayURLTTL is how long a resolved display URL stays valid.
	displayURLTTL = time.Hour
)

// PhotoService handles photo ingestion and display-URL resolution.
type PhotoService struct {
	photos    PhotoStore
	circles   CircleStore
	blobs     storage.BlobStore
	publisher Publisher
	now       func() time.Time

	mu       sync.Mutex
	urlCache map[string]string // storage path -> resolved URL
}

// NewPhotoService creates a new photo service.
func NewPhotoService(photos PhotoStore, circles CircleStore, blobs storage.BlobStore, publisher Publisher) *PhotoService {
	return &PhotoService{
		photos:    photos,
		circles:   circles,
		blobs:     blobs,
		publisher: publisher,
		now:       time.Now,
		urlCache:  make(map[string]string),
	}
}

// Upload binds an image to a circle: blob write first, then the
// metadata record. A blob orphaned by a failed metadata write is
// acceptable because cleanup purges by storage prefix, not by
// metadata enumeration.
func (s *PhotoService) Upload(ctx context.Context, circleID, uploaderUID string, imageBytes []byte) (*models.Photo, error) {
	if len(imageBytes) == 0 {
		return nil, fmt.Errorf("image is empty: %w", models.ErrConflict)
	}
	if len(imageBytes) > maxUploadBytes {
		return nil, fmt.Errorf("image exceeds %d bytes: %w", maxUploadBytes, models.ErrConflict)
	}

	circle, err := s.circles.GetByID(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if !circle.IsMember(uploaderUID) {
		return nil, fmt.Errorf("not a member of this circle: %w", models.ErrForbidden)
	}

	now := s.now()
	if lifecycle.Evaluate(circle, now).Phase != lifecycle.PhaseOpen {
		return nil, fmt.Errorf("circle is closed: %w", models.ErrConflict)
	}

	photo := &models.Photo{
		ID:         uuid.New().String(),
		CircleID:   circleID,
		UploaderID: uploaderUID,
		CreatedAt:  now,
	}
	photo.StoragePath = fmt.Sprintf("circles/%s/%s.jpg", circleID, photo.ID)

	if err := s.blobs.Put(ctx, photo.StoragePath, imageBytes, "image/jpeg"); err != nil {
		return nil, fmt.Errorf("failed to upload blob: %w", err)
	}

	if err := s.photos.Create(ctx, photo); err != nil {
		return nil, fmt.Errorf("failed to create photo record: %w", err)
	}

	log.Info().
		Str("circle_id", circleID).
		Str("photo_id", photo.ID).
		Str("uploader_id", uploaderUID).
		Msg("Photo uploaded")

	s.publishPhotos(ctx, circleID)
	return photo, nil
}

// FanoutResult is the per-circle outcome of a multi-circle upload.
type FanoutResult struct {
	CircleID string
	Photo    *models.Photo
	Err      error
}

// UploadToCircles uploads one image to several circles concurrently.
// Each circle gets an independent ingestion call; partial failure is
// per-circle and must not be treated as total failure by the caller.
func (s *PhotoService) UploadToCircles(ctx context.Context, circleIDs []string, uploaderUID string, imageBytes []byte) []FanoutResult {
	results := make([]FanoutResult, len(circleIDs))

	var g errgroup.Group
	for i, circleID := range circleIDs {
		i, circleID := i, circleID
		g.Go(func() error {
			photo, err := s.Upload(ctx, circleID, uploaderUID, imageBytes)
			results[i] = FanoutResult{CircleID: circleID, Photo: photo, Err: err}
			return nil
		})
	}
	g.Wait()

	return results
}

// ListPhotos retrieves a circle's photos, ordered by creation time,
// for a member. Already-resolved display URLs are attached from the
// cache; unresolved paths stay empty for the caller to resolve lazily.
func (s *PhotoService) ListPhotos(ctx context.Context, circleID, requesterUID string) ([]*models.Photo, error) {
	circle, err := s.circles.GetByID(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if !circle.IsMember(requesterUID) {
		return nil, fmt.Errorf("not a member of this circle: %w", models.ErrForbidden)
	}

	photos, err := s.photos.ListByCircle(ctx, circleID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	for _, p := range photos {
		p.DisplayURL = s.urlCache[p.StoragePath]
	}
	s.mu.Unlock()
	return photos, nil
}

// ResolveURL resolves and caches the display URL for a storage path.
// A resolution failure leaves the URL unresolved; the caller shows a
// loading state and retries.
func (s *PhotoService) ResolveURL(ctx context.Context, storagePath string) (string, error) {
	s.mu.Lock()
	if url, ok := s.urlCache[storagePath]; ok {
		s.mu.Unlock()
		return url, nil
	}
	s.mu.Unlock()

	url, err := s.blobs.PresignGet(ctx, storagePath, displayURLTTL)
	if err != nil {
		return "", fmt.Errorf("failed to resolve display URL: %w", err)
	}

	s.mu.Lock()
	s.urlCache[storagePath] = url
	s.mu.Unlock()
	return url, nil
}

// publishPhotos pushes the circle's full photo list to live
// subscribers.
func (s *PhotoService) publishPhotos(ctx context.Context, circleID string) {
	if s.publisher == nil {
		return
	}
	photos, err := s.photos.ListByCircle(ctx, circleID)
	if err != nil {
		log.Error().Err(err).Str("circle_id", circleID).Msg("Failed to build photo snapshot")
		return
	}
	s.publisher.Publish("photos:"+circleID, photos)
}
