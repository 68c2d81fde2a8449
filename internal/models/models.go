package models

import "time"

// CircleStatus is the stored status flag of a circle. It is advisory:
// once closeAt has passed the circle is closed regardless of the flag.
type CircleStatus string

const (
	CircleStatusOpen   CircleStatus = "open"
	CircleStatusClosed CircleStatus = "closed"
)

// Circle represents a time-boxed shared photo album with a membership set.
type Circle struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	OwnerID       string       `json:"owner_id"`
	InviteCode    string       `json:"invite_code"`
	BackgroundURL *string      `json:"background_url,omitempty"`
	Status        CircleStatus `json:"status"`
	Members       []string     `json:"members"`
	CreatedAt     time.Time    `json:"created_at"`
	CloseAt       time.Time    `json:"close_at"`
	DeleteAt      time.Time    `json:"delete_at"`
	CleanedUp     bool         `json:"cleaned_up"`
}

// IsMember reports whether uid is in the circle's member set.
func (c *Circle) IsMember(uid string) bool {
	for _, m := range c.Members {
		if m == uid {
			return true
		}
	}
	return false
}

// Photo represents a photo uploaded to a circle. DisplayURL is resolved
// lazily from the storage path and may be empty while resolution is
// pending or has failed.
type Photo struct {
	ID          string    `json:"id"`
	CircleID    string    `json:"circle_id"`
	UploaderID  string    `json:"uploader_id"`
	StoragePath string    `json:"storage_path"`
	CreatedAt   time.Time `json:"created_at"`
	DisplayURL  string    `json:"display_url,omitempty"`
}

// User represents a user in the system.
type User struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	Phone             *string   `json:"phone,omitempty"`
	DisplayName       string    `json:"display_name"`
	PhotoURL          *string   `json:"photo_url,omitempty"`
	PushToken         *string   `json:"push_token,omitempty"`
	AutoAcceptInvites bool      `json:"auto_accept_invites"`
	CreatedAt         time.Time `json:"created_at"`
}

// FriendRequestStatus is the lifecycle state of a friend request.
// Accepted and declined requests are deleted, not archived, so only
// pending rows ever persist.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestDeclined FriendRequestStatus = "declined"
)

// FriendRequest represents a pending friend request between two users.
type FriendRequest struct {
	ID         string              `json:"id"`
	SenderID   string              `json:"sender_id"`
	ReceiverID string              `json:"receiver_id"`
	Status     FriendRequestStatus `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
}
