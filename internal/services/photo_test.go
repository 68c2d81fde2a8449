package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"circles-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPhotoFixture(t *testing.T) (*PhotoService, *fakeCircleStore, *fakePhotoStore, *fakeBlobStore, *recordingPublisher) {
	t.Helper()
	circles := newFakeCircleStore()
	photos := newFakePhotoStore()
	blobs := newFakeBlobStore()
	pub := &recordingPublisher{}
	svc := NewPhotoService(photos, circles, blobs, pub)
	return svc, circles, photos, blobs, pub
}

func openCircle(t *testing.T, circles *fakeCircleStore, owner string, now time.Time) *models.Circle {
	t.Helper()
	create := NewCircleService(circles, newFakeUserDirectory(), newFakeBlobStore(), nil, nil)
	create.now = func() time.Time { return now }
	circle, err := create.CreateCircle(context.Background(), "trip", 2, owner)
	require.NoError(t, err)
	return circle
}

func TestUploadPhoto(t *testing.T) {
	svc, circles, photos, blobs, pub := newPhotoFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	circle := openCircle(t, circles, "owner", now)

	photo, err := svc.Upload(context.Background(), circle.ID, "owner", []byte("jpeg bytes"))
	require.NoError(t, err)

	assert.Equal(t, circle.ID, photo.CircleID)
	assert.Equal(t, "owner", photo.UploaderID)
	assert.Equal(t, "circles/"+circle.ID+"/"+photo.ID+".jpg", photo.StoragePath)

	stored, err := blobs.Get(context.Background(), photo.StoragePath, maxUploadBytes)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(stored, []byte("jpeg bytes")))

	list, err := photos.ListByCircle(context.Background(), circle.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Contains(t, pub.topics, "photos:"+circle.ID)
}

func TestUploadRejectsNonMember(t *testing.T) {
	svc, circles, _, _, _ := newPhotoFixture(t)
	now := time.Now()
	circle := openCircle(t, circles, "owner", now)

	_, err := svc.Upload(context.Background(), circle.ID, "stranger", []byte("x"))
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestUploadRejectsClosedCircle(t *testing.T) {
	svc, circles, _, blobs, _ := newPhotoFixture(t)
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	circle := openCircle(t, circles, "owner", created)

	// One second past closeAt the window is shut even though the stored
	// status flag still says open.
	svc.now = func() time.Time { return circle.CloseAt.Add(time.Second) }
	_, err := svc.Upload(context.Background(), circle.ID, "owner", []byte("x"))
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Zero(t, blobs.puts, "no blob may be written for a rejected upload")
}

func TestUploadSizeLimits(t *testing.T) {
	svc, circles, _, _, _ := newPhotoFixture(t)
	now := time.Now()
	circle := openCircle(t, circles, "owner", now)
	svc.now = func() time.Time { return now }

	_, err := svc.Upload(context.Background(), circle.ID, "owner", nil)
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = svc.Upload(context.Background(), circle.ID, "owner", make([]byte, maxUploadBytes+1))
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestUploadToCirclesPartialFailure(t *testing.T) {
	svc, circles, photos, _, _ := newPhotoFixture(t)
	now := time.Now()
	svc.now = func() time.Time { return now }
	good := openCircle(t, circles, "owner", now)
	bad := openCircle(t, circles, "owner", now)
	photos.createErr[bad.ID] = errors.New("metadata write failed")

	results := svc.UploadToCircles(context.Background(), []string{good.ID, bad.ID, "missing"}, "owner", []byte("x"))
	require.Len(t, results, 3)

	byCircle := make(map[string]FanoutResult, len(results))
	for _, r := range results {
		byCircle[r.CircleID] = r
	}

	assert.NoError(t, byCircle[good.ID].Err)
	assert.NotNil(t, byCircle[good.ID].Photo)
	assert.Error(t, byCircle[bad.ID].Err)
	assert.ErrorIs(t, byCircle["missing"].Err, models.ErrNotFound)

	// The failed circles must not stop the successful one.
	list, err := photos.ListByCircle(context.Background(), good.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListPhotosMembersOnly(t *testing.T) {
	svc, circles, _, _, _ := newPhotoFixture(t)
	now := time.Now()
	svc.now = func() time.Time { return now }
	circle := openCircle(t, circles, "owner", now)
	_, err := svc.Upload(context.Background(), circle.ID, "owner", []byte("x"))
	require.NoError(t, err)

	_, err = svc.ListPhotos(context.Background(), circle.ID, "stranger")
	assert.ErrorIs(t, err, models.ErrForbidden)

	list, err := svc.ListPhotos(context.Background(), circle.ID, "owner")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestResolveURLCaches(t *testing.T) {
	svc, circles, _, _, _ := newPhotoFixture(t)
	now := time.Now()
	svc.now = func() time.Time { return now }
	circle := openCircle(t, circles, "owner", now)
	photo, err := svc.Upload(context.Background(), circle.ID, "owner", []byte("x"))
	require.NoError(t, err)

	url, err := svc.ResolveURL(context.Background(), photo.StoragePath)
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	again, err := svc.ResolveURL(context.Background(), photo.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, url, again)

	// Listing attaches the cached URL.
	list, err := svc.ListPhotos(context.Background(), circle.ID, "owner")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, url, list[0].DisplayURL)
}
