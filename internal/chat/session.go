// Package chat keeps the chat state of a logged-in user in sync with the remote data service.
//
// Session operations never return remote failures. They are logged, and the cached state
// is left as it was or rolled back. Observers registered with Subscribe are fired after
// every change of the cached state.
package chat

import (
	"context"
	"sync"
	"time"

	"greensitter/internal/fanout"
	"greensitter/internal/models"

	"go.uber.org/zap"
)

// Remote is the document side of the remote data service
type Remote interface {
	FetchUser(ctx context.Context, id string) (models.User, error)
	FetchChatRooms(ctx context.Context, userID string) ([]models.ChatRoom, error)
	FetchMessages(ctx context.Context, chatRoomID string) ([]models.Message, error)
	SaveMessage(ctx context.Context, chatRoomID string, m models.Message) error
	DeleteChatRoom(ctx context.Context, id, userID string) error
	UpdateNotificationSetting(ctx context.Context, chatRoomID string, userNotification, postUserNotification bool) error
}

// Blobs is the binary side of the remote data service
type Blobs interface {
	Upload(ctx context.Context, data []byte) (string, error)
	Download(ctx context.Context, path string) ([]byte, error)
}

type Option interface {
	apply(*Session)
}

type optionFunc func(s *Session)

func (f optionFunc) apply(s *Session) { f(s) }

// Clock replaces time.Now for message timestamps
func Clock(now func() time.Time) Option {
	return optionFunc(func(s *Session) {
		s.now = now
	})
}

// BatchLimit bounds concurrent remote calls of image and message batches
func BatchLimit(n int) Option {
	return optionFunc(func(s *Session) {
		s.batchLimit = n
	})
}

// Session is the chat state of one user
type Session struct {
	logger     *zap.SugaredLogger
	userID     string
	remote     Remote
	blobs      Blobs
	cache      *MessageCache
	now        func() time.Time
	batchLimit int

	mu    sync.RWMutex
	user  *models.User
	rooms []models.ChatRoom

	obsMu     sync.Mutex
	observers map[int]func()
	nextObs   int

	closeMu sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// NewSession returns an empty session of userID. Nothing is loaded until asked for.
func NewSession(logger *zap.SugaredLogger, userID string, remote Remote, blobs Blobs, opts ...Option) *Session {
	s := &Session{
		logger:    logger.With("user_id", userID),
		userID:    userID,
		remote:    remote,
		blobs:     blobs,
		cache:     NewMessageCache(),
		now:       time.Now,
		observers: make(map[int]func()),
	}
	for _, o := range opts {
		o.apply(s)
	}
	return s
}

func (s *Session) UserID() string {
	return s.userID
}

// Subscribe registers fn to be called after every state change. The returned function unregisters it.
func (s *Session) Subscribe(fn func()) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Session) notify() {
	s.obsMu.Lock()
	fns := make([]func(), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// background runs f detached from the caller's cancellation.
// It reports false without running f once the session is closed.
func (s *Session) background(ctx context.Context, f func(ctx context.Context)) bool {
	ctx = context.WithoutCancel(ctx)

	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return false
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		f(ctx)
	}()
	return true
}

// Wait blocks until every background send has finished
func (s *Session) Wait() {
	s.pending.Wait()
}

// Close rejects new sends and waits for the running ones
func (s *Session) Close() {
	s.closeMu.Lock()
	s.closed = true
	s.closeMu.Unlock()

	s.pending.Wait()
}

func (s *Session) batchOptions(label string) []fanout.Option {
	return []fanout.Option{fanout.Label(label), fanout.Limit(s.batchLimit)}
}

// LoadUser fetches the profile of the session's user
func (s *Session) LoadUser(ctx context.Context) error {
	u, err := s.remote.FetchUser(ctx, s.userID)
	if err != nil {
		s.logger.Errorf("Cannot fetch user: %v", err)
		return err
	}

	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()

	s.notify()
	return nil
}

// User returns the loaded profile
func (s *Session) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

// Rooms returns a copy of the loaded room list
func (s *Session) Rooms() []models.ChatRoom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ChatRoom(nil), s.rooms...)
}

func (s *Session) HasChats() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms) > 0
}

// Room looks up a loaded room by id
func (s *Session) Room(roomID string) (models.ChatRoom, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rooms {
		if r.ID == roomID {
			return r, true
		}
	}
	return models.ChatRoom{}, false
}

// Messages returns the cached messages of a room
func (s *Session) Messages(roomID string) []models.Message {
	return s.cache.Messages(roomID)
}

type roomMessages struct {
	roomID   string
	messages []models.Message
}

// LoadChatRooms reloads the room list and then the messages of every room.
// It returns once all message loads have finished. Rooms whose messages failed to load
// are left out of the message cache.
func (s *Session) LoadChatRooms(ctx context.Context) {
	rooms, err := s.remote.FetchChatRooms(ctx, s.userID)
	if err != nil {
		s.logger.Errorf("Cannot fetch chat rooms: %v", err)
		return
	}

	s.mu.Lock()
	s.rooms = append([]models.ChatRoom(nil), rooms...)
	s.mu.Unlock()
	s.notify()

	loaded := fanout.Collect(ctx, s.logger, rooms, func(ctx context.Context, room models.ChatRoom) (roomMessages, error) {
		msgs, err := s.remote.FetchMessages(ctx, room.ID)
		if err != nil {
			return roomMessages{}, err
		}
		return roomMessages{roomID: room.ID, messages: msgs}, nil
	}, s.batchOptions("load messages")...)

	all := make(map[string][]models.Message, len(loaded))
	for _, rm := range loaded {
		all[rm.roomID] = rm.messages
	}
	s.cache.ReplaceAll(all)

	s.logger.Debugf("Loaded messages of %d/%d chat rooms", len(loaded), len(rooms))

	s.notify()
}

// LoadMessages reloads the messages of a single room
func (s *Session) LoadMessages(ctx context.Context, roomID string) {
	msgs, err := s.remote.FetchMessages(ctx, roomID)
	if err != nil {
		s.logger.Errorf("Cannot fetch messages of chat room (id: %s): %v", roomID, err)
		return
	}

	s.cache.Set(roomID, msgs)
	s.notify()
}

// DeleteChatRoom deletes the room at index of the room list
func (s *Session) DeleteChatRoom(ctx context.Context, index int) {
	s.mu.RLock()
	if index < 0 || index >= len(s.rooms) {
		n := len(s.rooms)
		s.mu.RUnlock()
		s.logger.Errorf("Cannot delete chat room: index %d out of range [0, %d)", index, n)
		return
	}
	room := s.rooms[index]
	s.mu.RUnlock()

	if err := s.remote.DeleteChatRoom(ctx, room.ID, s.userID); err != nil {
		s.logger.Errorf("Cannot delete chat room (id: %s): %v", room.ID, err)
		return
	}

	// the list may have changed while the remote call was running
	s.mu.Lock()
	for i, r := range s.rooms {
		if r.ID == room.ID {
			s.rooms = append(s.rooms[:i:i], s.rooms[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.cache.Drop(room.ID)

	s.notify()
}

// UpdateNotification stores notification flags of both participants of a room
func (s *Session) UpdateNotification(ctx context.Context, roomID string, userNotification, postUserNotification bool) {
	err := s.remote.UpdateNotificationSetting(ctx, roomID, userNotification, postUserNotification)
	if err != nil {
		s.logger.Errorf("Cannot update notification of chat room (id: %s): %v", roomID, err)
		return
	}

	s.mu.Lock()
	for i := range s.rooms {
		if s.rooms[i].ID == roomID {
			s.rooms[i].UserNotification = userNotification
			s.rooms[i].PostUserNotification = postUserNotification
		}
	}
	s.mu.Unlock()

	s.notify()
}

func (s *Session) roomForSend(roomID string) (models.ChatRoom, bool) {
	room, ok := s.Room(roomID)
	if !ok {
		s.logger.Errorf("Cannot send message: unknown chat room (id: %s)", roomID)
	}
	return room, ok
}

// SendText shows the message at once and saves it in the background.
// The message disappears again if the save fails.
func (s *Session) SendText(ctx context.Context, roomID, text string) (models.Message, bool) {
	if text == "" {
		s.logger.Errorf("Cannot send message: text is empty")
		return models.Message{}, false
	}

	room, ok := s.roomForSend(roomID)
	if !ok {
		return models.Message{}, false
	}

	m := models.NewTextMessage(s.userID, room.Receiver(s.userID), text, s.now())
	tentative := s.cache.Apply(roomID, m)
	s.notify()

	started := s.background(ctx, func(ctx context.Context) {
		if err := s.remote.SaveMessage(ctx, roomID, m); err != nil {
			s.logger.Errorf("Cannot save message (id: %s): %v", m.ID, err)
			tentative.Revert()
			s.notify()
			return
		}
		tentative.Commit()
	})
	if !started {
		s.logger.Errorf("Cannot send message (id: %s): session closed", m.ID)
		tentative.Revert()
		s.notify()
		return models.Message{}, false
	}

	return m, true
}

// UploadImages uploads images concurrently and returns the paths of the successful uploads
func (s *Session) UploadImages(ctx context.Context, images [][]byte) []string {
	return fanout.Collect(ctx, s.logger, images, s.blobs.Upload, s.batchOptions("upload images")...)
}

// ForeignImages returns the paths not referenced by an image message of the user's rooms.
// The rooms are reloaded once when the cache does not know every path.
func (s *Session) ForeignImages(ctx context.Context, paths []string) []string {
	missing := s.cache.MissingImages(paths)
	if len(missing) == 0 {
		return nil
	}

	s.LoadChatRooms(ctx)
	return s.cache.MissingImages(missing)
}

// LoadChatImages downloads images concurrently. Failed downloads are left out.
func (s *Session) LoadChatImages(ctx context.Context, paths []string) [][]byte {
	return fanout.Collect(ctx, s.logger, paths, s.blobs.Download, s.batchOptions("download images")...)
}

// SendImages uploads images and then saves a message referencing them, both in the background.
// Nothing is saved when no upload succeeded.
func (s *Session) SendImages(ctx context.Context, roomID string, images [][]byte) bool {
	if len(images) == 0 {
		s.logger.Errorf("Cannot send images: no image")
		return false
	}

	room, ok := s.roomForSend(roomID)
	if !ok {
		return false
	}

	return s.background(ctx, func(ctx context.Context) {
		paths := s.UploadImages(ctx, images)
		if len(paths) == 0 {
			s.logger.Errorf("Cannot send images to chat room (id: %s): all %d uploads failed", roomID, len(images))
			return
		}

		m := models.NewImageMessage(s.userID, room.Receiver(s.userID), paths, s.now())
		s.save(ctx, roomID, m)
	})
}

// SendPlan saves a plan message in the background
func (s *Session) SendPlan(ctx context.Context, roomID string, plan models.Plan) bool {
	room, ok := s.roomForSend(roomID)
	if !ok {
		return false
	}

	m := models.NewPlanMessage(s.userID, room.Receiver(s.userID), plan, s.now())
	return s.background(ctx, func(ctx context.Context) {
		s.save(ctx, roomID, m)
	})
}

// save stores m and appends it to the cache once confirmed
func (s *Session) save(ctx context.Context, roomID string, m models.Message) {
	if err := s.remote.SaveMessage(ctx, roomID, m); err != nil {
		s.logger.Errorf("Cannot save message (id: %s): %v", m.ID, err)
		return
	}

	s.cache.Append(roomID, m)
	s.notify()
}
