package watch

import (
	"context"
	"sync"

	"circles-backend/internal/models"
)

// Mirror is the client-observed circle store: an eventually-consistent
// replica of the user's circle list and of per-circle photo lists.
// Every applied snapshot fully replaces the corresponding slice; there
// is no merging, so applying the same snapshot twice is a no-op by
// construction.
//
// Reduction is single-threaded (one Run goroutine); the accessors may
// be called from any task.
type Mirror struct {
	mu      sync.RWMutex
	circles []*models.Circle
	photos  map[string][]*models.Photo
}

// NewMirror creates an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{photos: make(map[string][]*models.Photo)}
}

// Run consumes snapshots until the context is cancelled or the channel
// closes. Intended to be the only goroutine mutating the mirror.
func (m *Mirror) Run(ctx context.Context, snapshots <-chan Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			m.Apply(snap)
		}
	}
}

// Watch subscribes the mirror to the given hub topics and reduces them
// on a single goroutine until the context is cancelled. Subscriptions
// are torn down on exit.
func (m *Mirror) Watch(ctx context.Context, hub *Hub, topics ...string) {
	merged := make(chan Snapshot)
	var wg sync.WaitGroup

	for _, topic := range topics {
		ch, cancel := hub.Subscribe(topic)
		defer cancel()

		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case snap, ok := <-ch:
					if !ok {
						return
					}
					select {
					case merged <- snap:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(merged)
	}()

	m.Run(ctx, merged)
}

// Apply replaces the state addressed by the snapshot's topic with the
// snapshot's data. Unknown topics and unexpected payload types are
// ignored; a nil payload empties the set.
func (m *Mirror) Apply(snap Snapshot) {
	kind, id := TopicKind(snap.Topic)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case "circles":
		if snap.Data == nil {
			m.circles = nil
			return
		}
		if circles, ok := snap.Data.([]*models.Circle); ok {
			m.circles = circles
		}
	case "photos":
		if snap.Data == nil {
			delete(m.photos, id)
			return
		}
		if photos, ok := snap.Data.([]*models.Photo); ok {
			m.photos[id] = photos
		}
	}
}

// Circles returns the mirrored circle list.
func (m *Mirror) Circles() []*models.Circle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.circles
}

// Photos returns the mirrored photo list for a circle.
func (m *Mirror) Photos(circleID string) []*models.Photo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.photos[circleID]
}
