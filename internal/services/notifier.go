package services

import (
	"context"

	"circles-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
)

// PushNotifier delivers best-effort push notifications. Message text
// is composed client-side from the payload keys; the server only ships
// opaque event data.
type PushNotifier interface {
	FriendRequestReceived(ctx context.Context, receiver *models.User, senderUID string)
	CircleDeleted(ctx context.Context, member *models.User, circleID string)
}

// APNSNotifier pushes events over APNs. All sends are fire-and-forget:
// delivery failures are logged and never propagate to the operation
// that triggered them.
type APNSNotifier struct {
	client *apns2.Client
	topic  string
}

// NewAPNSNotifier creates a notifier from a provisioned APNs client.
func NewAPNSNotifier(client *apns2.Client, topic string) *APNSNotifier {
	return &APNSNotifier{client: client, topic: topic}
}

// FriendRequestReceived notifies the receiver of a new friend request.
func (n *APNSNotifier) FriendRequestReceived(ctx context.Context, receiver *models.User, senderUID string) {
	p := payload.NewPayload().
		ContentAvailable().
		Custom("event", "friend_request").
		Custom("sender_id", senderUID)
	n.push(ctx, receiver, p)
}

// CircleDeleted notifies a member that a circle they belonged to was
// deleted by its owner.
func (n *APNSNotifier) CircleDeleted(ctx context.Context, member *models.User, circleID string) {
	p := payload.NewPayload().
		ContentAvailable().
		Custom("event", "circle_deleted").
		Custom("circle_id", circleID)
	n.push(ctx, member, p)
}

func (n *APNSNotifier) push(ctx context.Context, user *models.User, p *payload.Payload) {
	if user.PushToken == nil || *user.PushToken == "" {
		return
	}

	notification := &apns2.Notification{
		DeviceToken: *user.PushToken,
		Topic:       n.topic,
		Payload:     p,
	}
	res, err := n.client.PushWithContext(ctx, notification)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to send push")
		return
	}
	if !res.Sent() {
		log.Warn().
			Str("user_id", user.ID).
			Str("reason", res.Reason).
			Msg("Push not delivered")
	}
}
