package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"circles-backend/internal/services"
	"circles-backend/internal/watch"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage represents an incoming WebSocket control message.
type WSMessage struct {
	Type     string `json:"type"`
	CircleID string `json:"circle_id,omitempty"`
}

// WebSocketHandler bridges hub topics to WebSocket clients. Each
// connected client is implicitly watching its own circle list; photo
// lists are watched and unwatched per circle as the client navigates.
type WebSocketHandler struct {
	hub           *watch.Hub
	userService   *services.UserService
	circleService *services.CircleService
	photoService  *services.PhotoService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *watch.Hub,
	userService *services.UserService,
	circleService *services.CircleService,
	photoService *services.PhotoService,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		userService:   userService,
		circleService: circleService,
		photoService:  photoService,
	}
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	userID, err := h.userService.ValidateJWT(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	// One writer goroutine owns the connection's write side; every
	// subscription forwards into outbound.
	outbound := make(chan watch.Snapshot, 16)
	var forwarders sync.WaitGroup

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for snap := range outbound {
			if err := conn.WriteJSON(snap); err != nil {
				log.Debug().Err(err).Str("user_id", userID).Msg("WebSocket write failed")
				return
			}
		}
	}()

	subscribe := func(topic string) func() {
		ch, cancel := h.hub.Subscribe(topic)
		forwarders.Add(1)
		go func() {
			defer forwarders.Done()
			for snap := range ch {
				select {
				case outbound <- snap:
				default:
					// Slow client: drop, a later snapshot supersedes.
				}
			}
		}()
		return cancel
	}

	// Every client watches its own circle list for its whole
	// connection lifetime.
	cancelCircles := subscribe("circles:" + userID)
	defer cancelCircles()

	h.sendInitialCircles(r.Context(), userID, outbound)

	photoWatches := make(map[string]func())
	defer func() {
		for _, cancel := range photoWatches {
			cancel()
		}
	}()

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to parse WebSocket message")
			continue
		}

		switch msg.Type {
		case "watch_photos":
			if msg.CircleID == "" || photoWatches[msg.CircleID] != nil {
				continue
			}
			// Membership gate before exposing the photo stream.
			if _, err := h.circleService.GetCircle(r.Context(), msg.CircleID, userID); err != nil {
				log.Warn().
					Err(err).
					Str("user_id", userID).
					Str("circle_id", msg.CircleID).
					Msg("Photo watch rejected")
				continue
			}
			photoWatches[msg.CircleID] = subscribe("photos:" + msg.CircleID)
			h.sendInitialPhotos(r.Context(), userID, msg.CircleID, outbound)
		case "unwatch_photos":
			if cancel, ok := photoWatches[msg.CircleID]; ok {
				cancel()
				delete(photoWatches, msg.CircleID)
			}
		default:
			log.Debug().Str("type", msg.Type).Msg("Unknown WebSocket message type")
		}
	}

	// Cancel all subscriptions, wait for forwarders, then release the
	// writer. Snapshots already in flight may still be delivered
	// before the forwarders observe the close; that is within the
	// subscription contract.
	cancelCircles()
	for _, cancel := range photoWatches {
		cancel()
	}
	photoWatches = map[string]func(){}
	forwarders.Wait()
	close(outbound)
	<-writerDone
}

// sendInitialCircles pushes the current circle list so a new
// connection does not wait for the next server-side change.
func (h *WebSocketHandler) sendInitialCircles(ctx context.Context, userID string, outbound chan<- watch.Snapshot) {
	circles, err := h.circleService.ListCircles(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load initial circles")
		return
	}
	select {
	case outbound <- watch.Snapshot{Topic: "circles:" + userID, Data: circles}:
	default:
	}
}

// sendInitialPhotos pushes the current photo list for a newly watched
// circle.
func (h *WebSocketHandler) sendInitialPhotos(ctx context.Context, userID, circleID string, outbound chan<- watch.Snapshot) {
	photos, err := h.photoService.ListPhotos(ctx, circleID, userID)
	if err != nil {
		log.Error().Err(err).Str("circle_id", circleID).Msg("Failed to load initial photos")
		return
	}
	select {
	case outbound <- watch.Snapshot{Topic: "photos:" + circleID, Data: photos}:
	default:
	}
}
