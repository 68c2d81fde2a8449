package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"circles-backend/internal/models"
)

// In-memory fakes for the store and blob interfaces.

type fakeCircleStore struct {
	mu      sync.Mutex
	circles map[string]*models.Circle
	members map[string]map[string]bool
}

func newFakeCircleStore() *fakeCircleStore {
	return &fakeCircleStore{
		circles: make(map[string]*models.Circle),
		members: make(map[string]map[string]bool),
	}
}

func (s *fakeCircleStore) Create(_ context.Context, circle *models.Circle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *circle
	s.circles[c.ID] = &c
	s.members[c.ID] = map[string]bool{c.OwnerID: true}
	return nil
}

func (s *fakeCircleStore) get(id string) (*models.Circle, error) {
	c, ok := s.circles[id]
	if !ok {
		return nil, fmt.Errorf("circle %s: %w", id, models.ErrNotFound)
	}
	out := *c
	out.Members = nil
	for uid := range s.members[id] {
		out.Members = append(out.Members, uid)
	}
	return &out, nil
}

func (s *fakeCircleStore) GetByID(_ context.Context, id string) (*models.Circle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *fakeCircleStore) GetByInviteCode(_ context.Context, code string) (*models.Circle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.circles {
		if c.InviteCode == code {
			return s.get(id)
		}
	}
	return nil, fmt.Errorf("invite code: %w", models.ErrNotFound)
}

func (s *fakeCircleStore) InviteCodeExists(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.circles {
		if c.InviteCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeCircleStore) ListByMember(_ context.Context, uid string) ([]*models.Circle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Circle
	for id := range s.circles {
		if s.members[id][uid] {
			c, _ := s.get(id)
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeCircleStore) AddMember(_ context.Context, circleID, uid string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.circles[circleID]; !ok {
		return fmt.Errorf("circle %s: %w", circleID, models.ErrNotFound)
	}
	s.members[circleID][uid] = true
	return nil
}

func (s *fakeCircleStore) RemoveMember(_ context.Context, circleID, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[circleID], uid)
	return nil
}

func (s *fakeCircleStore) UpdateProfile(_ context.Context, circleID, name string, backgroundURL *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.circles[circleID]
	if !ok {
		return fmt.Errorf("circle %s: %w", circleID, models.ErrNotFound)
	}
	c.Name = name
	c.BackgroundURL = backgroundURL
	return nil
}

func (s *fakeCircleStore) Delete(_ context.Context, circleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.circles[circleID]; !ok {
		return fmt.Errorf("circle %s: %w", circleID, models.ErrNotFound)
	}
	delete(s.circles, circleID)
	delete(s.members, circleID)
	return nil
}

func (s *fakeCircleStore) ListExpired(_ context.Context, now time.Time, limit int) ([]*models.Circle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Circle
	for id, c := range s.circles {
		if len(out) >= limit {
			break
		}
		if !now.Before(c.DeleteAt) && !c.CleanedUp {
			circle, _ := s.get(id)
			out = append(out, circle)
		}
	}
	return out, nil
}

func (s *fakeCircleStore) PurgeMetadata(_ context.Context, circleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.circles[circleID]
	if !ok {
		return fmt.Errorf("circle %s: %w", circleID, models.ErrNotFound)
	}
	c.CleanedUp = true
	return nil
}

type fakePhotoStore struct {
	mu        sync.Mutex
	photos    map[string][]*models.Photo
	createErr map[string]error // circleID -> injected failure
	deletions int
}

func newFakePhotoStore() *fakePhotoStore {
	return &fakePhotoStore{
		photos:    make(map[string][]*models.Photo),
		createErr: make(map[string]error),
	}
}

func (s *fakePhotoStore) Create(_ context.Context, photo *models.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErr[photo.CircleID]; err != nil {
		return err
	}
	p := *photo
	s.photos[p.CircleID] = append(s.photos[p.CircleID], &p)
	return nil
}

func (s *fakePhotoStore) GetByID(_ context.Context, id string) (*models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.photos {
		for _, p := range list {
			if p.ID == id {
				out := *p
				return &out, nil
			}
		}
	}
	return nil, fmt.Errorf("photo %s: %w", id, models.ErrNotFound)
}

func (s *fakePhotoStore) ListByCircle(_ context.Context, circleID string) ([]*models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Photo, len(s.photos[circleID]))
	for i, p := range s.photos[circleID] {
		c := *p
		out[i] = &c
	}
	return out, nil
}

type fakeUserDirectory struct {
	mu      sync.Mutex
	users   map[string]*models.User
	friends map[string]map[string]bool
	blocks  map[string]map[string]bool

	// Set by newFakeRequestStore so Block can mirror the repository
	// transaction, which also drops pending requests between the pair.
	requests *fakeRequestStore
}

func newFakeUserDirectory() *fakeUserDirectory {
	return &fakeUserDirectory{
		users:   make(map[string]*models.User),
		friends: make(map[string]map[string]bool),
		blocks:  make(map[string]map[string]bool),
	}
}

func (d *fakeUserDirectory) addUser(id, username string) *models.User {
	u := &models.User{ID: id, Username: username, CreatedAt: time.Now()}
	d.users[id] = u
	return u
}

func (d *fakeUserDirectory) Create(_ context.Context, user *models.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := *user
	d.users[u.ID] = &u
	return nil
}

func (d *fakeUserDirectory) UpdatePushToken(_ context.Context, userID string, pushToken *string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[userID]; ok {
		u.PushToken = pushToken
	}
	return nil
}

func (d *fakeUserDirectory) SetAutoAcceptInvites(_ context.Context, userID string, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[userID]; ok {
		u.AutoAcceptInvites = enabled
	}
	return nil
}

func (d *fakeUserDirectory) GetByID(_ context.Context, id string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	out := *u
	return &out, nil
}

func (d *fakeUserDirectory) GetByUsername(_ context.Context, username string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, fmt.Errorf("username %s: %w", username, models.ErrNotFound)
}

func (d *fakeUserDirectory) AreFriends(_ context.Context, uidA, uidB string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.friends[uidA][uidB], nil
}

func (d *fakeUserDirectory) HasBlocked(_ context.Context, blockerID, blockedID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blocks[blockerID][blockedID], nil
}

func (d *fakeUserDirectory) addEdge(m map[string]map[string]bool, a, b string) {
	if m[a] == nil {
		m[a] = make(map[string]bool)
	}
	m[a][b] = true
}

func (d *fakeUserDirectory) AddFriendship(_ context.Context, uidA, uidB string, _ time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addEdge(d.friends, uidA, uidB)
	d.addEdge(d.friends, uidB, uidA)
	return nil
}

func (d *fakeUserDirectory) Block(_ context.Context, blockerID, blockedID string, _ time.Time) error {
	d.mu.Lock()
	d.addEdge(d.blocks, blockerID, blockedID)
	delete(d.friends[blockerID], blockedID)
	delete(d.friends[blockedID], blockerID)
	d.mu.Unlock()
	if d.requests != nil {
		d.requests.deleteBetween(blockerID, blockedID)
	}
	return nil
}

func (d *fakeUserDirectory) ListFriends(_ context.Context, uid string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for f := range d.friends[uid] {
		out = append(out, f)
	}
	return out, nil
}

type fakeRequestStore struct {
	mu       sync.Mutex
	requests map[string]*models.FriendRequest
	users    *fakeUserDirectory
}

func newFakeRequestStore(users *fakeUserDirectory) *fakeRequestStore {
	s := &fakeRequestStore{
		requests: make(map[string]*models.FriendRequest),
		users:    users,
	}
	users.requests = s
	return s
}

func (s *fakeRequestStore) deleteBetween(uidA, uidB string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.requests {
		if (r.SenderID == uidA && r.ReceiverID == uidB) || (r.SenderID == uidB && r.ReceiverID == uidA) {
			delete(s.requests, id)
		}
	}
}

func (s *fakeRequestStore) Create(_ context.Context, req *models.FriendRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *req
	s.requests[r.ID] = &r
	return nil
}

func (s *fakeRequestStore) GetByID(_ context.Context, id string) (*models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("friend request %s: %w", id, models.ErrNotFound)
	}
	out := *r
	return &out, nil
}

func (s *fakeRequestStore) PendingBetween(_ context.Context, uidA, uidB string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if (r.SenderID == uidA && r.ReceiverID == uidB) || (r.SenderID == uidB && r.ReceiverID == uidA) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeRequestStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[id]; !ok {
		return fmt.Errorf("friend request %s: %w", id, models.ErrNotFound)
	}
	delete(s.requests, id)
	return nil
}

func (s *fakeRequestStore) Accept(ctx context.Context, req *models.FriendRequest, at time.Time) error {
	s.mu.Lock()
	if _, ok := s.requests[req.ID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("friend request %s: %w", req.ID, models.ErrNotFound)
	}
	delete(s.requests, req.ID)
	s.mu.Unlock()
	return s.users.AddFriendship(ctx, req.SenderID, req.ReceiverID, at)
}

func (s *fakeRequestStore) ListIncoming(_ context.Context, uid string) ([]*models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.FriendRequest
	for _, r := range s.requests {
		if r.ReceiverID == uid {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *fakeRequestStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type fakeBlobStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	puts      int
	gets      int
	lists     int
	deletes   int
	deleteErr map[string]error // key -> injected failure
	listErr   error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects:   make(map[string][]byte),
		deleteErr: make(map[string]error),
	}
}

func (s *fakeBlobStore) Put(_ context.Context, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *fakeBlobStore) Get(_ context.Context, key string, maxBytes int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, models.ErrNotFound)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("object %s too large", key)
	}
	return append([]byte(nil), data...), nil
}

func (s *fakeBlobStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *fakeBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if err := s.deleteErr[key]; err != nil {
		return err
	}
	delete(s.objects, key)
	return nil
}

func (s *fakeBlobStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blobs.test/" + key, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(topic string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
}
