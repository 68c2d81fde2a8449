package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"circles-backend/internal/middleware"
	"circles-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// maxUploadBody bounds the multipart request body.
const maxUploadBody = 12 << 20

// PhotoHandler handles photo-related HTTP requests
type PhotoHandler struct {
	photoService *services.PhotoService
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(photoService *services.PhotoService) *PhotoHandler {
	return &PhotoHandler{
		photoService: photoService,
	}
}

// ListPhotos handles GET /api/v1/circles/{circle_id}/photos
func (h *PhotoHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	circleID := chi.URLParam(r, "circle_id")

	photos, err := h.photoService.ListPhotos(ctx, circleID, userID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("circle_id", circleID).
			Msg("Failed to list photos")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"photos": photos, "total": len(photos)})
}

// UploadPhoto handles POST /api/v1/circles/{circle_id}/photos
func (h *PhotoHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	circleID := chi.URLParam(r, "circle_id")

	imageBytes, ok := readPhotoForm(w, r)
	if !ok {
		return
	}

	photo, err := h.photoService.Upload(ctx, circleID, userID, imageBytes)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("circle_id", circleID).
			Msg("Failed to upload photo")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("circle_id", circleID).
		Str("photo_id", photo.ID).
		Msg("Photo uploaded")

	respondJSON(w, http.StatusOK, photo)
}

// UploadFanout handles POST /api/v1/photos: one image uploaded to
// several circles at once. The response carries a per-circle outcome;
// a partial failure is not a total failure.
func (h *PhotoHandler) UploadFanout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	circleIDs := strings.Split(r.URL.Query().Get("circle_ids"), ",")
	if len(circleIDs) == 1 && circleIDs[0] == "" {
		respondError(w, "circle_ids is required", http.StatusBadRequest)
		return
	}

	imageBytes, ok := readPhotoForm(w, r)
	if !ok {
		return
	}

	results := h.photoService.UploadToCircles(ctx, circleIDs, userID, imageBytes)

	type fanoutEntry struct {
		CircleID string `json:"circle_id"`
		PhotoID  string `json:"photo_id,omitempty"`
		Error    string `json:"error,omitempty"`
	}
	entries := make([]fanoutEntry, 0, len(results))
	for _, res := range results {
		entry := fanoutEntry{CircleID: res.CircleID}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		} else {
			entry.PhotoID = res.Photo.ID
		}
		entries = append(entries, entry)
	}

	respondJSON(w, http.StatusOK, map[string]any{"results": entries})
}

// ResolveURLRequest represents the request body for URL resolution
type ResolveURLRequest struct {
	StoragePath string `json:"storage_path"`
}

// ResolveURL handles POST /api/v1/photos/resolve-url
func (h *PhotoHandler) ResolveURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ResolveURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.StoragePath == "" {
		respondError(w, "storage_path is required", http.StatusBadRequest)
		return
	}

	url, err := h.photoService.ResolveURL(ctx, req.StoragePath)
	if err != nil {
		log.Error().Err(err).Str("storage_path", req.StoragePath).Msg("Failed to resolve URL")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// readPhotoForm extracts the photo file from a multipart form. On
// failure it writes the error response and returns ok=false.
func readPhotoForm(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		respondError(w, "Invalid multipart body", http.StatusBadRequest)
		return nil, false
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		respondError(w, "photo file is required", http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()

	imageBytes, err := io.ReadAll(file)
	if err != nil {
		respondError(w, "failed to read photo", http.StatusBadRequest)
		return nil, false
	}
	return imageBytes, true
}
