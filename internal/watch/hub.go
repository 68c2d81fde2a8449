// Package watch implements the live mirror of server state: a hub that
// delivers whole-result-set snapshots to subscribers, and a reducer
// that replaces client-observed state with each snapshot. There is no
// diffing anywhere; consumers must be idempotent under repeated
// identical snapshots.
package watch

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Snapshot is one full-result-set delivery for a topic. Data is the
// complete current result set, never a diff; nil means the set is now
// empty.
type Snapshot struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

// subscriberBuffer bounds how many undelivered snapshots a slow
// subscriber may hold. Overflow drops the newest delivery: snapshots
// are full replacements, so a subscriber that catches up on any later
// snapshot converges.
const subscriberBuffer = 8

type subscriber struct {
	ch chan Snapshot
}

// Hub fans snapshots out to per-topic subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

// NewHub creates a new hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers a watch on a topic. The returned cancel func
// tears the watch down and must be called when the topic is no longer
// observed. Cancellation has no ordering guarantee relative to
// in-flight deliveries: a snapshot published concurrently with cancel
// may still arrive on the channel, and consumers must tolerate that
// stray late delivery.
func (h *Hub) Subscribe(topic string) (<-chan Snapshot, func()) {
	sub := &subscriber{ch: make(chan Snapshot, subscriberBuffer)}

	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*subscriber]struct{})
	}
	h.subs[topic][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.subs[topic]; ok {
			if _, ok := subs[sub]; ok {
				delete(subs, sub)
				close(sub.ch)
				if len(subs) == 0 {
					delete(h.subs, topic)
				}
			}
		}
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers the full current result set for a topic to every
// subscriber. Slow subscribers have the delivery dropped rather than
// blocking the publisher; they converge on the next snapshot.
func (h *Hub) Publish(topic string, data any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[topic] {
		select {
		case sub.ch <- Snapshot{Topic: topic, Data: data}:
		default:
			log.Debug().Str("topic", topic).Msg("Dropped snapshot for slow subscriber")
		}
	}
}

// SubscriberCount reports how many watches are active on a topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// TopicKind splits a topic of the form "kind:id" into its parts.
func TopicKind(topic string) (kind, id string) {
	kind, id, _ = strings.Cut(topic, ":")
	return kind, id
}
