package services

import (
	"context"
	"fmt"
	"time"

	"circles-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// FriendService handles the friend-request lifecycle and the friend
// and block set mutations it drives. Requests move pending ->
// accepted/declined; both terminal transitions delete the record.
type FriendService struct {
	requests FriendRequestStore
	users    UserDirectory
	notifier PushNotifier
	now      func() time.Time
}

// NewFriendService creates a new friend service.
func NewFriendService(requests FriendRequestStore, users UserDirectory, notifier PushNotifier) *FriendService {
	return &FriendService{
		requests: requests,
		users:    users,
		notifier: notifier,
		now:      time.Now,
	}
}

// SendRequest creates a pending friend request from senderUID to the
// user named receiverUsername.
//
// A receiver who has blocked the sender produces the same ErrNotFound
// as a nonexistent username, so block status never leaks through this
// path.
func (s *FriendService) SendRequest(ctx context.Context, senderUID, receiverUsername string) (*models.FriendRequest, error) {
	receiver, err := s.users.GetByUsername(ctx, receiverUsername)
	if err != nil {
		return nil, err
	}

	if receiver.ID == senderUID {
		return nil, fmt.Errorf("cannot send a friend request to yourself: %w", models.ErrConflict)
	}

	blocked, err := s.users.HasBlocked(ctx, receiver.ID, senderUID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, fmt.Errorf("username %s: %w", receiverUsername, models.ErrNotFound)
	}

	blocked, err = s.users.HasBlocked(ctx, senderUID, receiver.ID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, fmt.Errorf("user is blocked: %w", models.ErrConflict)
	}

	friends, err := s.users.AreFriends(ctx, senderUID, receiver.ID)
	if err != nil {
		return nil, err
	}
	if friends {
		return nil, fmt.Errorf("already friends: %w", models.ErrConflict)
	}

	pending, err := s.requests.PendingBetween(ctx, senderUID, receiver.ID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, fmt.Errorf("a pending request already exists: %w", models.ErrConflict)
	}

	req := &models.FriendRequest{
		ID:         uuid.New().String(),
		SenderID:   senderUID,
		ReceiverID: receiver.ID,
		Status:     models.FriendRequestPending,
		CreatedAt:  s.now(),
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	log.Info().
		Str("request_id", req.ID).
		Str("sender_id", senderUID).
		Str("receiver_id", receiver.ID).
		Msg("Friend request sent")

	if s.notifier != nil {
		s.notifier.FriendRequestReceived(ctx, receiver, senderUID)
	}
	return req, nil
}

// Accept deletes the request and adds both users to each other's
// friend set atomically. Only the receiver may accept.
func (s *FriendService) Accept(ctx context.Context, requestID, uid string) error {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.ReceiverID != uid {
		return fmt.Errorf("only the receiver may accept: %w", models.ErrForbidden)
	}

	if err := s.requests.Accept(ctx, req, s.now()); err != nil {
		return err
	}

	log.Info().
		Str("request_id", requestID).
		Str("sender_id", req.SenderID).
		Str("receiver_id", req.ReceiverID).
		Msg("Friend request accepted")
	return nil
}

// Decline deletes the request without any friendship mutation. The
// receiver declines; the sender cancels. Either way the record is
// destroyed, not archived.
func (s *FriendService) Decline(ctx context.Context, requestID, uid string) error {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.ReceiverID != uid && req.SenderID != uid {
		return fmt.Errorf("not a party to this request: %w", models.ErrForbidden)
	}
	return s.requests.Delete(ctx, requestID)
}

// Block adds blockedUID to the blocker's block set, removes the
// friendship in both directions and deletes any pending request
// between the pair, all in one atomic batch.
func (s *FriendService) Block(ctx context.Context, blockerUID, blockedUID string) error {
	if blockerUID == blockedUID {
		return fmt.Errorf("cannot block yourself: %w", models.ErrConflict)
	}
	if _, err := s.users.GetByID(ctx, blockedUID); err != nil {
		return err
	}

	if err := s.users.Block(ctx, blockerUID, blockedUID, s.now()); err != nil {
		return err
	}

	log.Info().
		Str("blocker_id", blockerUID).
		Str("blocked_id", blockedUID).
		Msg("User blocked")
	return nil
}

// ListIncoming returns the pending requests addressed to the user.
func (s *FriendService) ListIncoming(ctx context.Context, uid string) ([]*models.FriendRequest, error) {
	return s.requests.ListIncoming(ctx, uid)
}

// ListFriends returns the user's friend IDs.
func (s *FriendService) ListFriends(ctx context.Context, uid string) ([]string, error) {
	return s.users.ListFriends(ctx, uid)
}
