package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"circles-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryMarkers is an in-memory MarkerStore for engine tests.
type memoryMarkers struct {
	mu            sync.Mutex
	saved         map[string]bool
	autoSave      bool
	notifications bool
}

func newMemoryMarkers() *memoryMarkers {
	return &memoryMarkers{saved: make(map[string]bool), autoSave: true, notifications: true}
}

func (m *memoryMarkers) IsSaved(circleID, photoID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[circleID+":"+photoID], nil
}

func (m *memoryMarkers) MarkSaved(circleID, photoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[circleID+":"+photoID] = true
	return nil
}

func (m *memoryMarkers) AutoSaveEnabled() (bool, error) { return m.autoSave, nil }
func (m *memoryMarkers) SetAutoSaveEnabled(enabled bool) error {
	m.autoSave = enabled
	return nil
}
func (m *memoryMarkers) NotificationsEnabled() (bool, error) { return m.notifications, nil }
func (m *memoryMarkers) SetNotificationsEnabled(enabled bool) error {
	m.notifications = enabled
	return nil
}

// gateBlobs serves fixed bytes per key and can hold Get calls on a gate
// so tests can pin a download mid-flight.
type gateBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
	gate    chan struct{}
}

func newGateBlobs() *gateBlobs {
	return &gateBlobs{objects: make(map[string][]byte)}
}

func (b *gateBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *gateBlobs) Get(_ context.Context, key string, maxBytes int64) ([]byte, error) {
	b.mu.Lock()
	b.gets++
	gate := b.gate
	data, ok := b.objects[key]
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("object %s exceeds %d bytes", key, maxBytes)
	}
	return data, nil
}

func (b *gateBlobs) List(_ context.Context, _ string) ([]string, error) { return nil, nil }
func (b *gateBlobs) Delete(_ context.Context, _ string) error          { return nil }
func (b *gateBlobs) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blobs.test/" + key, nil
}

type recordingGallery struct {
	mu     sync.Mutex
	writes []string
	err    error
}

func (g *recordingGallery) Write(_ context.Context, circleID, photoID string, _ []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.writes = append(g.writes, circleID+":"+photoID)
	return nil
}

func (g *recordingGallery) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.writes)
}

func testPhoto(circleID, id string) *models.Photo {
	return &models.Photo{
		ID:          id,
		CircleID:    circleID,
		StoragePath: "circles/" + circleID + "/" + id + ".jpg",
	}
}

func TestEnsureSavedOnce(t *testing.T) {
	markers := newMemoryMarkers()
	blobs := newGateBlobs()
	gallery := &recordingGallery{}
	engine := NewEngine(markers, blobs, gallery)

	photo := testPhoto("c1", "p1")
	require.NoError(t, blobs.Put(context.Background(), photo.StoragePath, []byte("jpeg"), "image/jpeg"))

	require.NoError(t, engine.EnsureSaved(context.Background(), "c1", photo))
	assert.Equal(t, 1, gallery.count())

	saved, err := markers.IsSaved("c1", "p1")
	require.NoError(t, err)
	assert.True(t, saved)

	// A second call short-circuits on the marker.
	require.NoError(t, engine.EnsureSaved(context.Background(), "c1", photo))
	assert.Equal(t, 1, gallery.count())
	assert.Equal(t, 1, blobs.gets)
}

func TestEnsureSavedConcurrentDownloadsOnlyOnce(t *testing.T) {
	markers := newMemoryMarkers()
	blobs := newGateBlobs()
	gallery := &recordingGallery{}
	engine := NewEngine(markers, blobs, gallery)

	photo := testPhoto("c1", "p1")
	require.NoError(t, blobs.Put(context.Background(), photo.StoragePath, []byte("jpeg"), "image/jpeg"))

	gate := make(chan struct{})
	blobs.gate = gate

	done := make(chan error, 1)
	go func() { done <- engine.EnsureSaved(context.Background(), "c1", photo) }()

	// Wait for the first download to start, then race a second attempt
	// against it. The in-flight guard makes it a no-op.
	require.Eventually(t, func() bool {
		blobs.mu.Lock()
		defer blobs.mu.Unlock()
		return blobs.gets == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, engine.EnsureSaved(context.Background(), "c1", photo))
	assert.Zero(t, gallery.count())

	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, 1, gallery.count())
	assert.Equal(t, 1, blobs.gets)
}

func TestEnsureSavedOversizedFailsClosed(t *testing.T) {
	markers := newMemoryMarkers()
	blobs := newGateBlobs()
	gallery := &recordingGallery{}
	engine := NewEngine(markers, blobs, gallery)

	photo := testPhoto("c1", "big")
	require.NoError(t, blobs.Put(context.Background(), photo.StoragePath, make([]byte, maxDownloadBytes+1), "image/jpeg"))

	err := engine.EnsureSaved(context.Background(), "c1", photo)
	assert.Error(t, err)
	assert.Zero(t, gallery.count())

	saved, merr := markers.IsSaved("c1", "big")
	require.NoError(t, merr)
	assert.False(t, saved, "a failed save must stay retryable")
}

func TestEnsureSavedGalleryFailureLeavesNoMarker(t *testing.T) {
	markers := newMemoryMarkers()
	blobs := newGateBlobs()
	gallery := &recordingGallery{err: errors.New("media store unavailable")}
	engine := NewEngine(markers, blobs, gallery)

	photo := testPhoto("c1", "p1")
	require.NoError(t, blobs.Put(context.Background(), photo.StoragePath, []byte("jpeg"), "image/jpeg"))

	assert.Error(t, engine.EnsureSaved(context.Background(), "c1", photo))

	saved, err := markers.IsSaved("c1", "p1")
	require.NoError(t, err)
	assert.False(t, saved)
}

func TestSyncSnapshot(t *testing.T) {
	markers := newMemoryMarkers()
	blobs := newGateBlobs()
	gallery := &recordingGallery{}
	engine := NewEngine(markers, blobs, gallery)

	photos := []*models.Photo{testPhoto("c1", "p1"), testPhoto("c1", "p2"), testPhoto("c1", "p3")}
	for _, p := range photos[:2] {
		require.NoError(t, blobs.Put(context.Background(), p.StoragePath, []byte("jpeg"), "image/jpeg"))
	}
	// p3 has no blob and fails; the other two must still be saved.

	engine.SyncSnapshot(context.Background(), "c1", photos)
	assert.Equal(t, 2, gallery.count())

	// Re-delivering the same snapshot saves nothing new.
	engine.SyncSnapshot(context.Background(), "c1", photos[:2])
	assert.Equal(t, 2, gallery.count())
}

func TestSyncSnapshotDisabledToggle(t *testing.T) {
	markers := newMemoryMarkers()
	require.NoError(t, markers.SetAutoSaveEnabled(false))
	blobs := newGateBlobs()
	gallery := &recordingGallery{}
	engine := NewEngine(markers, blobs, gallery)

	photo := testPhoto("c1", "p1")
	require.NoError(t, blobs.Put(context.Background(), photo.StoragePath, []byte("jpeg"), "image/jpeg"))

	engine.SyncSnapshot(context.Background(), "c1", []*models.Photo{photo})
	assert.Zero(t, gallery.count())
	assert.Zero(t, blobs.gets)
}

func TestMarkUploadedSkipsDownload(t *testing.T) {
	markers := newMemoryMarkers()
	blobs := newGateBlobs()
	gallery := &recordingGallery{}
	engine := NewEngine(markers, blobs, gallery)

	photo := testPhoto("c1", "mine")
	require.NoError(t, blobs.Put(context.Background(), photo.StoragePath, []byte("jpeg"), "image/jpeg"))

	require.NoError(t, engine.MarkUploaded("c1", "mine"))
	engine.SyncSnapshot(context.Background(), "c1", []*models.Photo{photo})

	assert.Zero(t, gallery.count())
	assert.Zero(t, blobs.gets)
}
