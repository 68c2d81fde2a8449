package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"circles-backend/internal/lifecycle"
	"circles-backend/internal/models"
	"circles-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	inviteCodeLength = 6
	// 32 symbols, ambiguous glyphs I/1/O/0 excluded.
	inviteCodeChars       = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	inviteCodeMaxAttempts = 10
)

// CircleService handles circle lifecycle, membership and invite
// resolution.
type CircleService struct {
	circles   CircleStore
	users     UserDirectory
	blobs     storage.BlobStore
	publisher Publisher
	notifier  PushNotifier
	now       func() time.Time
}

// NewCircleService creates a new circle service.
func NewCircleService(circles CircleStore, users UserDirectory, blobs storage.BlobStore, publisher Publisher, notifier PushNotifier) *CircleService {
	return &CircleService{
		circles:   circles,
		users:     users,
		blobs:     blobs,
		publisher: publisher,
		notifier:  notifier,
		now:       time.Now,
	}
}

// generateInviteCode generates a random invite code.
func generateInviteCode() string {
	code := make([]byte, inviteCodeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(inviteCodeChars))))
		code[i] = inviteCodeChars[n.Int64()]
	}
	return string(code)
}

// generateUniqueInviteCode generates an invite code not used by any
// existing circle, retrying on collision.
func (s *CircleService) generateUniqueInviteCode(ctx context.Context) (string, error) {
	for i := 0; i < inviteCodeMaxAttempts; i++ {
		code := generateInviteCode()
		exists, err := s.circles.InviteCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check invite code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique invite code after %d attempts", inviteCodeMaxAttempts)
}

// CreateCircle creates a circle owned by ownerUID with an open window
// of durationDays and the fixed 48h deletion grace after close.
func (s *CircleService) CreateCircle(ctx context.Context, name string, durationDays int, ownerUID string) (*models.Circle, error) {
	if name == "" {
		return nil, fmt.Errorf("circle name is required: %w", models.ErrConflict)
	}
	if durationDays < 1 {
		return nil, fmt.Errorf("duration must be at least one day: %w", models.ErrConflict)
	}

	code, err := s.generateUniqueInviteCode(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	closeAt := now.Add(time.Duration(durationDays) * 24 * time.Hour)
	circle := &models.Circle{
		ID:         uuid.New().String(),
		Name:       name,
		OwnerID:    ownerUID,
		InviteCode: code,
		Status:     models.CircleStatusOpen,
		Members:    []string{ownerUID},
		CreatedAt:  now,
		CloseAt:    closeAt,
		DeleteAt:   closeAt.Add(lifecycle.DeletionGrace),
		CleanedUp:  false,
	}

	if err := s.circles.Create(ctx, circle); err != nil {
		return nil, fmt.Errorf("failed to create circle: %w", err)
	}

	log.Info().
		Str("circle_id", circle.ID).
		Str("owner_id", ownerUID).
		Int("duration_days", durationDays).
		Msg("Circle created")

	s.publishCircles(ctx, ownerUID)
	return circle, nil
}

// JoinByInviteCode adds uid to the circle with the given invite code.
// Re-joining is a no-op, not an error.
func (s *CircleService) JoinByInviteCode(ctx context.Context, code, uid string) (*models.Circle, error) {
	circle, err := s.circles.GetByInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := s.circles.AddMember(ctx, circle.ID, uid, s.now()); err != nil {
		return nil, fmt.Errorf("failed to join circle: %w", err)
	}

	log.Info().
		Str("circle_id", circle.ID).
		Str("user_id", uid).
		Msg("User joined circle")

	s.publishCircles(ctx, uid)
	return s.circles.GetByID(ctx, circle.ID)
}

// AddMember resolves a username and adds that user to the circle.
// Owner-only. Users who have not enabled auto-accept are only addable
// by an owner they are friends with.
func (s *CircleService) AddMember(ctx context.Context, circleID, username, requesterUID string) error {
	circle, err := s.circles.GetByID(ctx, circleID)
	if err != nil {
		return err
	}
	if circle.OwnerID != requesterUID {
		return fmt.Errorf("only the owner may add members: %w", models.ErrForbidden)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}

	if !user.AutoAcceptInvites {
		friends, err := s.users.AreFriends(ctx, requesterUID, user.ID)
		if err != nil {
			return err
		}
		if !friends {
			return fmt.Errorf("user does not accept invites: %w", models.ErrForbidden)
		}
	}

	if err := s.circles.AddMember(ctx, circleID, user.ID, s.now()); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	s.publishCircles(ctx, user.ID)
	return nil
}

// KickMember removes a member from the circle. Owner-only; the owner
// cannot be kicked.
func (s *CircleService) KickMember(ctx context.Context, circleID, memberUID, requesterUID string) error {
	circle, err := s.circles.GetByID(ctx, circleID)
	if err != nil {
		return err
	}
	if circle.OwnerID != requesterUID {
		return fmt.Errorf("only the owner may kick members: %w", models.ErrForbidden)
	}
	if memberUID == circle.OwnerID {
		return fmt.Errorf("owner cannot be kicked: %w", models.ErrConflict)
	}

	if err := s.circles.RemoveMember(ctx, circleID, memberUID); err != nil {
		return fmt.Errorf("failed to kick member: %w", err)
	}

	log.Info().
		Str("circle_id", circleID).
		Str("member_id", memberUID).
		Msg("Member kicked")

	s.publishCircles(ctx, memberUID)
	return nil
}

// Leave removes uid from the circle. The owner leaving without
// transferring ownership or deleting has no defined behavior yet and
// is rejected.
func (s *CircleService) Leave(ctx context.Context, circleID, uid string) error {
	circle, err := s.circles.GetByID(ctx, circleID)
	if err != nil {
		return err
	}
	if circle.OwnerID == uid {
		return fmt.Errorf("owner cannot leave a circle: %w", models.ErrUnsupported)
	}

	if err := s.circles.RemoveMember(ctx, circleID, uid); err != nil {
		return fmt.Errorf("failed to leave circle: %w", err)
	}

	s.publishCircles(ctx, uid)
	return nil
}

// UpdateProfile renames a circle and updates its background. Owner-only.
func (s *CircleService) UpdateProfile(ctx context.Context, circleID, name string, backgroundURL *string, requesterUID string) error {
	circle, err := s.circles.GetByID(ctx, circleID)
	if err != nil {
		return err
	}
	if circle.OwnerID != requesterUID {
		return fmt.Errorf("only the owner may update the circle: %w", models.ErrForbidden)
	}
	if name == "" {
		name = circle.Name
	}

	if err := s.circles.UpdateProfile(ctx, circleID, name, backgroundURL); err != nil {
		return err
	}

	for _, member := range circle.Members {
		s.publishCircles(ctx, member)
	}
	return nil
}

// DeleteCircle removes a circle, its photo metadata and its blobs
// immediately. Owner-only. This is the synchronous, user-initiated
// counterpart of the scheduled cleanup and reaches the same end state.
func (s *CircleService) DeleteCircle(ctx context.Context, circleID, requesterUID string) error {
	circle, err := s.circles.GetByID(ctx, circleID)
	if err != nil {
		return err
	}
	if circle.OwnerID != requesterUID {
		return fmt.Errorf("only the owner may delete the circle: %w", models.ErrForbidden)
	}

	if err := purgeBlobs(ctx, s.blobs, circleID); err != nil {
		return err
	}

	if err := s.circles.Delete(ctx, circleID); err != nil {
		return err
	}

	log.Info().
		Str("circle_id", circleID).
		Str("owner_id", requesterUID).
		Msg("Circle deleted by owner")

	for _, member := range circle.Members {
		s.publishCircles(ctx, member)
		if s.notifier != nil && member != requesterUID {
			if user, err := s.users.GetByID(ctx, member); err == nil {
				s.notifier.CircleDeleted(ctx, user, circleID)
			}
		}
	}
	return nil
}

// GetCircle retrieves a circle for a member. Non-members are rejected.
func (s *CircleService) GetCircle(ctx context.Context, circleID, requesterUID string) (*models.Circle, error) {
	circle, err := s.circles.GetByID(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if !circle.IsMember(requesterUID) {
		return nil, fmt.Errorf("not a member of this circle: %w", models.ErrForbidden)
	}
	return circle, nil
}

// ListCircles retrieves the circles the user belongs to.
func (s *CircleService) ListCircles(ctx context.Context, uid string) ([]*models.Circle, error) {
	return s.circles.ListByMember(ctx, uid)
}

// publishCircles pushes the user's full circle list to live
// subscribers. Snapshot delivery is best-effort; failures to compute
// the list are logged and dropped, never surfaced to the mutation.
func (s *CircleService) publishCircles(ctx context.Context, uid string) {
	if s.publisher == nil {
		return
	}
	circles, err := s.circles.ListByMember(ctx, uid)
	if err != nil {
		log.Error().Err(err).Str("user_id", uid).Msg("Failed to build circle snapshot")
		return
	}
	s.publisher.Publish("circles:"+uid, circles)
}

// purgeBlobs deletes every blob under the circle's storage prefix.
// Individual delete failures are logged and skipped so one bad object
// cannot wedge the purge; listing failures are fatal to the caller.
func purgeBlobs(ctx context.Context, blobs storage.BlobStore, circleID string) error {
	prefix := fmt.Sprintf("circles/%s/", circleID)
	keys, err := blobs.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("failed to list circle blobs: %w", err)
	}
	for _, key := range keys {
		if err := blobs.Delete(ctx, key); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Failed to delete blob")
		}
	}
	return nil
}
