package handlers

import (
	"encoding/json"
	"net/http"

	"circles-backend/internal/middleware"
	"circles-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// CircleHandler handles circle-related HTTP requests
type CircleHandler struct {
	circleService *services.CircleService
}

// NewCircleHandler creates a new circle handler
func NewCircleHandler(circleService *services.CircleService) *CircleHandler {
	return &CircleHandler{
		circleService: circleService,
	}
}

// CreateCircleRequest represents the request body for creating a circle
type CreateCircleRequest struct {
	Name         string `json:"name"`
	DurationDays int    `json:"duration_days"`
}

// CreateCircle handles POST /api/v1/circles
func (h *CircleHandler) CreateCircle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req CreateCircleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		respondError(w, "name is required", http.StatusBadRequest)
		return
	}
	if req.DurationDays < 1 {
		respondError(w, "duration_days must be at least 1", http.StatusBadRequest)
		return
	}

	circle, err := h.circleService.CreateCircle(ctx, req.Name, req.DurationDays, userID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("name", req.Name).
			Msg("Failed to create circle")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, circle)
}

// JoinRequest represents the request body for joining by invite code
type JoinRequest struct {
	InviteCode string `json:"invite_code"`
}

// Join handles POST /api/v1/circles/join
func (h *CircleHandler) Join(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.InviteCode) != 6 {
		respondError(w, "invite_code must be 6 characters", http.StatusBadRequest)
		return
	}

	circle, err := h.circleService.JoinByInviteCode(ctx, req.InviteCode, userID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("Failed to join circle")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, circle)
}

// ListCircles handles GET /api/v1/circles
func (h *CircleHandler) ListCircles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	circles, err := h.circleService.ListCircles(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list circles")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"circles": circles})
}

// GetCircle handles GET /api/v1/circles/{circle_id}
func (h *CircleHandler) GetCircle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	circleID := chi.URLParam(r, "circle_id")

	circle, err := h.circleService.GetCircle(ctx, circleID, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, circle)
}

// AddMemberRequest represents the request body for adding a member
type AddMemberRequest struct {
	Username string `json:"username"`
}

// AddMember handles POST /api/v1/circles/{circle_id}/members
func (h *CircleHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	circleID := chi.URLParam(r, "circle_id")

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" {
		respondError(w, "username is required", http.StatusBadRequest)
		return
	}

	if err := h.circleService.AddMember(ctx, circleID, req.Username, userID); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("circle_id", circleID).
			Msg("Failed to add member")
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// KickMember handles DELETE /api/v1/circles/{circle_id}/members/{member_id}
func (h *CircleHandler) KickMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	circleID := chi.URLParam(r, "circle_id")
	memberID := chi.URLParam(r, "member_id")

	if err := h.circleService.KickMember(ctx, circleID, memberID, userID); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("circle_id", circleID).
			Str("member_id", memberID).
			Msg("Failed to kick member")
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Leave handles POST /api/v1/circles/{circle_id}/leave
func (h *CircleHandler) Leave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	circleID := chi.URLParam(r, "circle_id")

	if err := h.circleService.Leave(ctx, circleID, userID); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateCircleRequest represents the request body for updating a circle
type UpdateCircleRequest struct {
	Name          string  `json:"name"`
	BackgroundURL *string `json:"background_url"`
}

// UpdateCircle handles PATCH /api/v1/circles/{circle_id}
func (h *CircleHandler) UpdateCircle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	circleID := chi.URLParam(r, "circle_id")

	var req UpdateCircleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.circleService.UpdateProfile(ctx, circleID, req.Name, req.BackgroundURL, userID); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteCircle handles DELETE /api/v1/circles/{circle_id}
func (h *CircleHandler) DeleteCircle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	circleID := chi.URLParam(r, "circle_id")

	if err := h.circleService.DeleteCircle(ctx, circleID, userID); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("circle_id", circleID).
			Msg("Failed to delete circle")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("circle_id", circleID).
		Msg("Circle deleted")

	w.WriteHeader(http.StatusNoContent)
}
