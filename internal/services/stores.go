package services

import (
	"context"
	"time"

	"circles-backend/internal/models"
)

// Store interfaces implemented by internal/repository. Services accept
// these rather than concrete repositories so the engine can be
// exercised against in-memory fakes.

// CircleStore persists circles and their membership edges.
type CircleStore interface {
	Create(ctx context.Context, circle *models.Circle) error
	GetByID(ctx context.Context, id string) (*models.Circle, error)
	GetByInviteCode(ctx context.Context, code string) (*models.Circle, error)
	InviteCodeExists(ctx context.Context, code string) (bool, error)
	ListByMember(ctx context.Context, uid string) ([]*models.Circle, error)
	AddMember(ctx context.Context, circleID, uid string, joinedAt time.Time) error
	RemoveMember(ctx context.Context, circleID, uid string) error
	UpdateProfile(ctx context.Context, circleID, name string, backgroundURL *string) error
	Delete(ctx context.Context, circleID string) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Circle, error)
	PurgeMetadata(ctx context.Context, circleID string) error
}

// PhotoStore persists photo metadata records.
type PhotoStore interface {
	Create(ctx context.Context, photo *models.Photo) error
	GetByID(ctx context.Context, id string) (*models.Photo, error)
	ListByCircle(ctx context.Context, circleID string) ([]*models.Photo, error)
}

// UserDirectory resolves users and mutates friend and block sets.
type UserDirectory interface {
	Create(ctx context.Context, user *models.User) error
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error
	SetAutoAcceptInvites(ctx context.Context, userID string, enabled bool) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	AreFriends(ctx context.Context, uidA, uidB string) (bool, error)
	HasBlocked(ctx context.Context, blockerID, blockedID string) (bool, error)
	AddFriendship(ctx context.Context, uidA, uidB string, at time.Time) error
	Block(ctx context.Context, blockerID, blockedID string, at time.Time) error
	ListFriends(ctx context.Context, uid string) ([]string, error)
}

// FriendRequestStore persists pending friend requests.
type FriendRequestStore interface {
	Create(ctx context.Context, req *models.FriendRequest) error
	GetByID(ctx context.Context, id string) (*models.FriendRequest, error)
	PendingBetween(ctx context.Context, uidA, uidB string) (bool, error)
	Delete(ctx context.Context, id string) error
	Accept(ctx context.Context, req *models.FriendRequest, at time.Time) error
	ListIncoming(ctx context.Context, uid string) ([]*models.FriendRequest, error)
}

// Publisher delivers full-result-set snapshots to live subscribers.
// Implemented by watch.Hub; nil publishers are tolerated so services
// can run without a live mirror (tests, batch jobs).
type Publisher interface {
	Publish(topic string, data any)
}
