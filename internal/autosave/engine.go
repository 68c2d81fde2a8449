package autosave

import (
	"context"
	"fmt"
	"sync"

	"circles-backend/internal/models"
	"circles-backend/internal/storage"

	"github.com/rs/zerolog/log"
)

// maxDownloadBytes bounds a single photo download. Larger blobs fail
// closed instead of risking unbounded memory use; there is no separate
// time-based timeout, the caller's context carries that.
const maxDownloadBytes = 10 << 20

// GalleryWriter persists a downloaded photo into device-visible media
// storage. Writing the same photo twice yields a duplicate gallery
// entry at worst, never corruption, which is what makes the engine's
// at-least-once semantics safe.
type GalleryWriter interface {
	Write(ctx context.Context, circleID, photoID string, data []byte) error
}

type inflightKey struct {
	circleID string
	photoID  string
}

// Engine downloads each remote photo and saves it to the gallery at
// most once per device. Durable markers dedupe across restarts; an
// in-memory in-flight guard dedupes concurrent attempts within one
// process. The guard is keyed per (circle, photo) globally, not per
// view, so two simultaneously open views of the same circle cannot
// double-download.
//
// The guard is not durable: a restart mid-download loses it and the
// save is re-attempted. At-least-once, not exactly-once.
type Engine struct {
	markers MarkerStore
	blobs   storage.BlobStore
	gallery GalleryWriter

	mu       sync.Mutex
	inflight map[inflightKey]struct{}
}

// NewEngine creates a new auto-save engine.
func NewEngine(markers MarkerStore, blobs storage.BlobStore, gallery GalleryWriter) *Engine {
	return &Engine{
		markers:  markers,
		blobs:    blobs,
		gallery:  gallery,
		inflight: make(map[inflightKey]struct{}),
	}
}

// EnsureSaved downloads and saves one photo unless it is already
// saved or another task is mid-download for it. Returns nil on the
// already-saved and already-in-flight paths.
func (e *Engine) EnsureSaved(ctx context.Context, circleID string, photo *models.Photo) error {
	saved, err := e.markers.IsSaved(circleID, photo.ID)
	if err != nil {
		return err
	}
	if saved {
		return nil
	}

	key := inflightKey{circleID: circleID, photoID: photo.ID}
	e.mu.Lock()
	if _, busy := e.inflight[key]; busy {
		e.mu.Unlock()
		return nil
	}
	e.inflight[key] = struct{}{}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inflight, key)
		e.mu.Unlock()
	}()

	// Re-check under the guard: another task may have finished the
	// save between the first check and guard acquisition.
	saved, err = e.markers.IsSaved(circleID, photo.ID)
	if err != nil {
		return err
	}
	if saved {
		return nil
	}

	data, err := e.blobs.Get(ctx, photo.StoragePath, maxDownloadBytes)
	if err != nil {
		return fmt.Errorf("failed to download photo %s: %w", photo.ID, err)
	}

	if err := e.gallery.Write(ctx, circleID, photo.ID, data); err != nil {
		return fmt.Errorf("failed to save photo %s: %w", photo.ID, err)
	}

	if err := e.markers.MarkSaved(circleID, photo.ID); err != nil {
		return err
	}

	log.Debug().
		Str("circle_id", circleID).
		Str("photo_id", photo.ID).
		Msg("Photo saved to gallery")
	return nil
}

// SyncSnapshot applies one full photo-list snapshot for a circle:
// every photo not yet saved is downloaded. Per-photo failures are
// logged and skipped; the photo is retried on the next snapshot.
// No-op while the auto-save toggle is off.
func (e *Engine) SyncSnapshot(ctx context.Context, circleID string, photos []*models.Photo) {
	enabled, err := e.markers.AutoSaveEnabled()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read auto-save toggle")
		return
	}
	if !enabled {
		return
	}

	for _, photo := range photos {
		if err := e.EnsureSaved(ctx, circleID, photo); err != nil {
			log.Warn().
				Err(err).
				Str("circle_id", circleID).
				Str("photo_id", photo.ID).
				Msg("Auto-save failed, will retry on next snapshot")
		}
	}
}

// MarkUploaded proactively records the uploader's own photo as saved
// so the device never re-downloads what it just submitted.
func (e *Engine) MarkUploaded(circleID, photoID string) error {
	return e.markers.MarkSaved(circleID, photoID)
}
