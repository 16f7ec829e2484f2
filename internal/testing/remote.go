package testing

import (
	"context"
	"errors"
	"strings"
	"sync"

	"greensitter/internal/models"
)

var (
	ErrFakeNotFound = errors.New("fake: not found")
	ErrFakeRemote   = errors.New("fake: remote failure")
	ErrFakeForeign  = errors.New("fake: blob of another bucket")
)

// Remote is an in-memory remote data service. Hooks, when set, decide the outcome of a call.
type Remote struct {
	mu sync.Mutex

	Users    map[string]models.User
	Rooms    []models.ChatRoom
	Messages map[string][]models.Message
	Posts    map[string]models.Post

	FetchMessagesHook func(chatRoomID string) error
	SaveMessageHook   func(chatRoomID string, m models.Message) error
	DeleteRoomHook    func(id string) error

	calls map[string]int
}

func NewRemote() *Remote {
	return &Remote{
		Users:    make(map[string]models.User),
		Messages: make(map[string][]models.Message),
		Posts:    make(map[string]models.Post),
		calls:    make(map[string]int),
	}
}

// Calls returns how many times the named method was called
func (r *Remote) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

func (r *Remote) called(method string) {
	r.mu.Lock()
	r.calls[method]++
	r.mu.Unlock()
}

func (r *Remote) AddUser(u models.User) {
	r.mu.Lock()
	r.Users[u.ID] = u
	r.mu.Unlock()
}

func (r *Remote) AddRooms(rooms ...models.ChatRoom) {
	r.mu.Lock()
	r.Rooms = append(r.Rooms, rooms...)
	r.mu.Unlock()
}

// Saved returns messages stored for a room
func (r *Remote) Saved(chatRoomID string) []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Message(nil), r.Messages[chatRoomID]...)
}

func (r *Remote) CreateUser(_ context.Context, u models.User) error {
	r.called("CreateUser")
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.Users[u.ID]; ok {
		return errors.New("fake: user exists")
	}
	r.Users[u.ID] = u
	return nil
}

func (r *Remote) FetchUser(_ context.Context, id string) (models.User, error) {
	r.called("FetchUser")
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.Users[id]
	if !ok {
		return models.User{}, ErrFakeNotFound
	}
	return u, nil
}

func (r *Remote) FetchChatRooms(_ context.Context, userID string) ([]models.ChatRoom, error) {
	r.called("FetchChatRooms")
	r.mu.Lock()
	defer r.mu.Unlock()

	var rooms []models.ChatRoom
	for _, room := range r.Rooms {
		if room.HasParticipant(userID) {
			rooms = append(rooms, room)
		}
	}
	return rooms, nil
}

func (r *Remote) FetchMessages(_ context.Context, chatRoomID string) ([]models.Message, error) {
	r.called("FetchMessages")
	if r.FetchMessagesHook != nil {
		if err := r.FetchMessagesHook(chatRoomID); err != nil {
			return nil, err
		}
	}
	return r.Saved(chatRoomID), nil
}

func (r *Remote) SaveMessage(_ context.Context, chatRoomID string, m models.Message) error {
	r.called("SaveMessage")
	if r.SaveMessageHook != nil {
		if err := r.SaveMessageHook(chatRoomID, m); err != nil {
			return err
		}
	}
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.Messages[chatRoomID] = append(r.Messages[chatRoomID], m)
	r.mu.Unlock()
	return nil
}

func (r *Remote) DeleteChatRoom(_ context.Context, id, _ string) error {
	r.called("DeleteChatRoom")
	if r.DeleteRoomHook != nil {
		if err := r.DeleteRoomHook(id); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, room := range r.Rooms {
		if room.ID == id {
			r.Rooms = append(r.Rooms[:i:i], r.Rooms[i+1:]...)
			return nil
		}
	}
	return ErrFakeNotFound
}

func (r *Remote) UpdateNotificationSetting(_ context.Context, chatRoomID string, userNotification, postUserNotification bool) error {
	r.called("UpdateNotificationSetting")
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.Rooms {
		if r.Rooms[i].ID == chatRoomID {
			r.Rooms[i].UserNotification = userNotification
			r.Rooms[i].PostUserNotification = postUserNotification
			return nil
		}
	}
	return ErrFakeNotFound
}

func (r *Remote) SavePost(_ context.Context, p models.Post) error {
	r.called("SavePost")
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.Posts[p.ID] = p
	r.mu.Unlock()
	return nil
}

func (r *Remote) FetchPost(_ context.Context, id string) (models.Post, error) {
	r.called("FetchPost")
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.Posts[id]
	if !ok {
		return models.Post{}, ErrFakeNotFound
	}
	return p, nil
}

func (r *Remote) FetchPosts(_ context.Context) ([]models.Post, error) {
	r.called("FetchPosts")
	r.mu.Lock()
	defer r.mu.Unlock()

	posts := make([]models.Post, 0, len(r.Posts))
	for _, p := range r.Posts {
		posts = append(posts, p)
	}
	return posts, nil
}

// Blobs is an in-memory blob store
type Blobs struct {
	mu     sync.Mutex
	prefix string
	data   map[string][]byte
	seq    int

	// FailUpload makes uploads of matching payloads fail
	FailUpload func(data []byte) bool
}

func NewBlobs(prefix string) *Blobs {
	return &Blobs{prefix: prefix, data: make(map[string][]byte)}
}

func (b *Blobs) Upload(_ context.Context, data []byte) (string, error) {
	if b.FailUpload != nil && b.FailUpload(data) {
		return "", ErrFakeRemote
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	path := b.prefix + "/" + RandString() + ".jpg"
	b.data[path] = append([]byte(nil), data...)
	return path, nil
}

func (b *Blobs) Download(_ context.Context, path string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.data[path]
	if !ok {
		return nil, ErrFakeNotFound
	}
	return append([]byte(nil), data...), nil
}

func (b *Blobs) Delete(_ context.Context, path string) error {
	if !strings.HasPrefix(path, b.prefix+"/") {
		return ErrFakeForeign
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.data[path]; !ok {
		return ErrFakeNotFound
	}
	delete(b.data, path)
	return nil
}

// Len returns the number of stored blobs
func (b *Blobs) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Uploads returns how many uploads succeeded
func (b *Blobs) Uploads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}
