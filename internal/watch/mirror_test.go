package watch

import (
	"context"
	"testing"
	"time"

	"circles-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func circlesData(ids ...string) []*models.Circle {
	out := make([]*models.Circle, len(ids))
	for i, id := range ids {
		out[i] = &models.Circle{ID: id}
	}
	return out
}

func photosData(ids ...string) []*models.Photo {
	out := make([]*models.Photo, len(ids))
	for i, id := range ids {
		out[i] = &models.Photo{ID: id}
	}
	return out
}

func TestApplyReplacesWholeSet(t *testing.T) {
	m := NewMirror()

	m.Apply(Snapshot{Topic: "circles:u1", Data: circlesData("a", "b")})
	require.Len(t, m.Circles(), 2)

	// A later snapshot fully replaces the previous one, including
	// removals.
	m.Apply(Snapshot{Topic: "circles:u1", Data: circlesData("b")})
	got := m.Circles()
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestApplyIsIdempotent(t *testing.T) {
	m := NewMirror()
	snap := Snapshot{Topic: "photos:c1", Data: photosData("p1", "p2")}

	m.Apply(snap)
	m.Apply(snap)

	assert.Len(t, m.Photos("c1"), 2)
}

func TestApplyNilEmptiesSet(t *testing.T) {
	m := NewMirror()
	m.Apply(Snapshot{Topic: "photos:c1", Data: photosData("p1")})
	m.Apply(Snapshot{Topic: "circles:u1", Data: circlesData("a")})

	m.Apply(Snapshot{Topic: "photos:c1", Data: nil})
	assert.Empty(t, m.Photos("c1"))

	m.Apply(Snapshot{Topic: "circles:u1", Data: nil})
	assert.Empty(t, m.Circles())
}

func TestApplyKeepsPerCircleIsolation(t *testing.T) {
	m := NewMirror()
	m.Apply(Snapshot{Topic: "photos:c1", Data: photosData("p1")})
	m.Apply(Snapshot{Topic: "photos:c2", Data: photosData("p2", "p3")})

	assert.Len(t, m.Photos("c1"), 1)
	assert.Len(t, m.Photos("c2"), 2)

	m.Apply(Snapshot{Topic: "photos:c1", Data: nil})
	assert.Empty(t, m.Photos("c1"))
	assert.Len(t, m.Photos("c2"), 2)
}

func TestApplyIgnoresUnknownTopicsAndPayloads(t *testing.T) {
	m := NewMirror()
	m.Apply(Snapshot{Topic: "circles:u1", Data: circlesData("a")})

	m.Apply(Snapshot{Topic: "bogus:x", Data: "whatever"})
	m.Apply(Snapshot{Topic: "circles:u1", Data: 42})

	assert.Len(t, m.Circles(), 1)
}

func TestWatchReducesHubSnapshots(t *testing.T) {
	hub := NewHub()
	m := NewMirror()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Watch(ctx, hub, "circles:u1", "photos:c1")
	}()

	// Give the forwarders time to subscribe before publishing.
	require.Eventually(t, func() bool {
		return hub.SubscriberCount("circles:u1") == 1 && hub.SubscriberCount("photos:c1") == 1
	}, time.Second, time.Millisecond)

	hub.Publish("circles:u1", circlesData("a"))
	hub.Publish("photos:c1", photosData("p1"))

	require.Eventually(t, func() bool {
		return len(m.Circles()) == 1 && len(m.Photos("c1")) == 1
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}
