package chat

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"greensitter/internal/models"
	mytesting "greensitter/internal/testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const userID = "owner"

type fixture struct {
	remote  *mytesting.Remote
	blobs   *mytesting.Blobs
	session *Session
	rooms   []models.ChatRoom
	changes *int32
}

func bootstrap(t *testing.T, peers ...string) fixture {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	remote := mytesting.NewRemote()
	remote.AddUser(models.User{ID: userID, Nickname: "owner", Enabled: true})
	rooms := mytesting.ChatRooms(mytesting.BatchUserIDs(append([]string{userID}, peers...)))
	remote.AddRooms(rooms...)

	blobs := mytesting.NewBlobs("chat_images")
	s := NewSession(logger.Sugar(), userID, remote, blobs)

	var changes int32
	s.Subscribe(func() { atomic.AddInt32(&changes, 1) })

	return fixture{remote: remote, blobs: blobs, session: s, rooms: rooms, changes: &changes}
}

func (f fixture) changeCount() int32 {
	return atomic.LoadInt32(f.changes)
}

func TestLoadUser(t *testing.T) {
	f := bootstrap(t)

	require.NoError(t, f.session.LoadUser(context.Background()))
	u, ok := f.session.User()
	require.True(t, ok)
	require.Equal(t, "owner", u.Nickname)
	require.Equal(t, int32(1), f.changeCount())
}

func TestLoadUserUnknown(t *testing.T) {
	f := bootstrap(t)
	s := NewSession(zap.NewNop().Sugar(), "ghost", f.remote, f.blobs)

	require.Error(t, s.LoadUser(context.Background()))
	_, ok := s.User()
	require.False(t, ok)
}

func TestLoadChatRooms(t *testing.T) {
	f := bootstrap(t, "a", "b", "c")
	for _, room := range f.rooms {
		require.NoError(t, f.remote.SaveMessage(context.Background(), room.ID, models.NewTextMessage("a", userID, "hi", time.Now())))
	}

	f.session.LoadChatRooms(context.Background())

	require.True(t, f.session.HasChats())
	require.Len(t, f.session.Rooms(), 3)
	for _, room := range f.rooms {
		require.Len(t, f.session.Messages(room.ID), 1)
	}
	require.Equal(t, 3, f.remote.Calls("FetchMessages"))
	require.Equal(t, int32(2), f.changeCount())
}

func TestLoadChatRoomsPartialFailure(t *testing.T) {
	f := bootstrap(t, "a", "b", "c", "d")
	failing := f.rooms[1].ID
	f.remote.FetchMessagesHook = func(id string) error {
		if id == failing {
			return mytesting.ErrFakeRemote
		}
		return nil
	}

	f.session.LoadChatRooms(context.Background())

	require.Len(t, f.session.Rooms(), 4)
	require.Equal(t, 3, f.session.cache.Rooms())
	require.Nil(t, f.session.Messages(failing))
}

func TestLoadChatRoomsReplacesCache(t *testing.T) {
	f := bootstrap(t, "a")
	f.session.cache.Set("stale", []models.Message{textMessage("old")})

	f.session.LoadChatRooms(context.Background())

	require.Nil(t, f.session.Messages("stale"))
	require.NotNil(t, f.session.Messages(f.rooms[0].ID))
}

func TestDeleteChatRoomOutOfRange(t *testing.T) {
	f := bootstrap(t, "a", "b")
	f.session.LoadChatRooms(context.Background())
	before := f.session.Rooms()
	changes := f.changeCount()

	f.session.DeleteChatRoom(context.Background(), -1)
	f.session.DeleteChatRoom(context.Background(), 2)

	require.Equal(t, before, f.session.Rooms())
	require.Equal(t, 0, f.remote.Calls("DeleteChatRoom"))
	require.Equal(t, changes, f.changeCount())
}

func TestDeleteChatRoom(t *testing.T) {
	f := bootstrap(t, "a", "b")
	f.session.LoadChatRooms(context.Background())

	f.session.DeleteChatRoom(context.Background(), 0)

	rooms := f.session.Rooms()
	require.Len(t, rooms, 1)
	require.Equal(t, f.rooms[1].ID, rooms[0].ID)
	require.Nil(t, f.session.Messages(f.rooms[0].ID))
	require.Equal(t, 1, f.remote.Calls("DeleteChatRoom"))
}

func TestDeleteChatRoomRemoteFailure(t *testing.T) {
	f := bootstrap(t, "a", "b")
	f.session.LoadChatRooms(context.Background())
	f.remote.DeleteRoomHook = func(string) error { return mytesting.ErrFakeRemote }

	f.session.DeleteChatRoom(context.Background(), 1)

	require.Len(t, f.session.Rooms(), 2)
}

func TestUpdateNotification(t *testing.T) {
	f := bootstrap(t, "a")
	f.session.LoadChatRooms(context.Background())
	roomID := f.rooms[0].ID

	f.session.UpdateNotification(context.Background(), roomID, false, true)

	room, ok := f.session.Room(roomID)
	require.True(t, ok)
	require.False(t, room.UserNotification)
	require.True(t, room.PostUserNotification)
}

func TestSendTextOptimistic(t *testing.T) {
	f := bootstrap(t, "a")
	f.session.LoadChatRooms(context.Background())
	roomID := f.rooms[0].ID

	release := make(chan struct{})
	f.remote.SaveMessageHook = func(string, models.Message) error {
		<-release
		return nil
	}

	changes := f.changeCount()
	m, ok := f.session.SendText(context.Background(), roomID, "hello")
	require.True(t, ok)

	// visible before the remote save finished
	require.Equal(t, changes+1, f.changeCount())
	msgs := f.session.Messages(roomID)
	require.Len(t, msgs, 1)
	require.Equal(t, m.ID, msgs[0].ID)
	require.Equal(t, "a", m.ReceiverUserID)

	close(release)
	f.session.Wait()

	require.Len(t, f.session.Messages(roomID), 1)
	require.Len(t, f.remote.Saved(roomID), 1)
	require.Equal(t, changes+1, f.changeCount())
}

func TestSendTextRollback(t *testing.T) {
	f := bootstrap(t, "a")
	f.session.LoadChatRooms(context.Background())
	roomID := f.rooms[0].ID
	f.remote.SaveMessageHook = func(string, models.Message) error { return mytesting.ErrFakeRemote }

	changes := f.changeCount()
	_, ok := f.session.SendText(context.Background(), roomID, "hello")
	require.True(t, ok)
	f.session.Wait()

	require.Empty(t, f.session.Messages(roomID))
	require.Equal(t, changes+2, f.changeCount())
}

func TestSendTextInterleavedRollback(t *testing.T) {
	f := bootstrap(t, "a")
	f.session.LoadChatRooms(context.Background())
	roomID := f.rooms[0].ID

	var mu sync.Mutex
	failing := map[string]bool{}
	f.remote.SaveMessageHook = func(_ string, m models.Message) error {
		mu.Lock()
		defer mu.Unlock()
		if failing[*m.Text] {
			return mytesting.ErrFakeRemote
		}
		return nil
	}

	mu.Lock()
	failing["2"], failing["4"] = true, true
	mu.Unlock()

	for _, text := range []string{"1", "2", "3", "4", "5"} {
		_, ok := f.session.SendText(context.Background(), roomID, text)
		require.True(t, ok)
	}
	f.session.Wait()

	var texts []string
	for _, m := range f.session.Messages(roomID) {
		texts = append(texts, *m.Text)
	}
	require.Equal(t, []string{"1", "3", "5"}, texts)
}

func TestSendTextEmpty(t *testing.T) {
	f := bootstrap(t, "a")
	f.session.LoadChatRooms(context.Background())

	_, ok := f.session.SendText(context.Background(), f.rooms[0].ID, "")
	require.False(t, ok)
	require.Equal(t, 0, f.remote.Calls("SaveMessage"))
}

func TestSendTextUnknownRoom(t *testing.T) {
	f := bootstrap(t, "a")

	_, ok := f.session.SendText(context.Background(), "missing", "hello")
	require.False(t, ok)
}

func TestSendTextSurvivesCanceledContext(t *testing.T) {
	f := bootstrap(t, "a")
	f.session.LoadChatRooms(context.Background())
	roomID := f.rooms[0].ID

	ctx, cancel := context.WithCancel(context.Background())
	_, ok := f.session.SendText(ctx, roomID, "hello")
	cancel()
	require.True(t, ok)
	f.session.Wait()

	require.Len(t, f.remote.Saved(roomID), 1)
}

func TestSendImages(t *testing.T) {
	f := bootstrap(t, "a")
	f.session.LoadChatRooms(context.Background())
	roomID := f.rooms[0].ID

	images := mytesting.RandImages(4)
	failing := images[2]
	f.blobs.FailUpload = func(data []byte) bool { return bytes.Equal(data, failing) }

	require.True(t, f.session.SendImages(context.Background(), roomID, images))
	f.session.Wait()

	saved := f.remote.Saved(roomID)
	require.Len(t, saved, 1)
	require.Equal(t, models.MessageTypeImage, saved[0].MessageType)
	require.Len(t, saved[0].Image, 3)
	require.Nil(t, saved[0].Text)
	require.Len(t, f.session.Messages(roomID), 1)
}

func TestSendImagesAllUploadsFail(t *testing.T) {
	f := bootstrap(t, "a")
	f.session.LoadChatRooms(context.Background())
	roomID := f.rooms[0].ID
	f.blobs.FailUpload = func([]byte) bool { return true }

	require.True(t, f.session.SendImages(context.Background(), roomID, mytesting.RandImages(3)))
	f.session.Wait()

	require.Empty(t, f.remote.Saved(roomID))
	require.Equal(t, 0, f.remote.Calls("SaveMessage"))
}

func TestSendImagesNoImages(t *testing.T) {
	f := bootstrap(t, "a")
	f.session.LoadChatRooms(context.Background())

	require.False(t, f.session.SendImages(context.Background(), f.rooms[0].ID, nil))
}

func TestUploadImagesAllFail(t *testing.T) {
	f := bootstrap(t)
	f.blobs.FailUpload = func([]byte) bool { return true }

	paths := f.session.UploadImages(context.Background(), mytesting.RandImages(5))
	require.NotNil(t, paths)
	require.Empty(t, paths)
}

func TestLoadChatImages(t *testing.T) {
	f := bootstrap(t)
	images := mytesting.RandImages(3)
	paths := f.session.UploadImages(context.Background(), images)
	require.Len(t, paths, 3)

	loaded := f.session.LoadChatImages(context.Background(), append(paths, "chat_images/missing.jpg"))
	require.Len(t, loaded, 3)
	require.ElementsMatch(t, images, loaded)
}

func TestSendPlan(t *testing.T) {
	f := bootstrap(t, "a")
	f.session.LoadChatRooms(context.Background())
	roomID := f.rooms[0].ID

	p := models.Plan{ID: "plan", Enabled: true, PlanDate: time.Now()}
	require.True(t, f.session.SendPlan(context.Background(), roomID, p))
	f.session.Wait()

	msgs := f.session.Messages(roomID)
	require.Len(t, msgs, 1)
	require.Equal(t, models.MessageTypePlan, msgs[0].MessageType)
	require.Equal(t, "plan", msgs[0].Plan.ID)
}

func TestSendPlanFailure(t *testing.T) {
	f := bootstrap(t, "a")
	f.session.LoadChatRooms(context.Background())
	roomID := f.rooms[0].ID
	f.remote.SaveMessageHook = func(string, models.Message) error { return errors.New("offline") }

	require.True(t, f.session.SendPlan(context.Background(), roomID, models.Plan{ID: "plan"}))
	f.session.Wait()

	require.Empty(t, f.session.Messages(roomID))
}

func TestSubscribeCancel(t *testing.T) {
	f := bootstrap(t)
	var calls int32
	cancel := f.session.Subscribe(func() { atomic.AddInt32(&calls, 1) })

	require.NoError(t, f.session.LoadUser(context.Background()))
	cancel()
	require.NoError(t, f.session.LoadUser(context.Background()))

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSessionsGet(t *testing.T) {
	f := bootstrap(t)
	sessions := NewSessions(zap.NewNop().Sugar(), f.remote, f.blobs)

	s1, err := sessions.Get(context.Background(), userID)
	require.NoError(t, err)
	s2, err := sessions.Get(context.Background(), userID)
	require.NoError(t, err)
	require.Same(t, s1, s2)
	require.Equal(t, 1, f.remote.Calls("FetchUser"))

	_, err = sessions.Get(context.Background(), "ghost")
	require.Error(t, err)
	_, ok := sessions.Lookup("ghost")
	require.False(t, ok)

	sessions.Close()
}

func TestSessionsGetAfterClose(t *testing.T) {
	f := bootstrap(t)
	sessions := NewSessions(zap.NewNop().Sugar(), f.remote, f.blobs)

	_, err := sessions.Get(context.Background(), userID)
	require.NoError(t, err)

	sessions.Close()

	_, err = sessions.Get(context.Background(), userID)
	require.ErrorIs(t, err, ErrClosed)
}

func TestSendAfterClose(t *testing.T) {
	f := bootstrap(t, "a")
	f.session.LoadChatRooms(context.Background())
	roomID := f.rooms[0].ID

	f.session.Close()

	_, ok := f.session.SendText(context.Background(), roomID, "hello")
	require.False(t, ok)
	require.False(t, f.session.SendImages(context.Background(), roomID, mytesting.RandImages(1)))
	require.False(t, f.session.SendPlan(context.Background(), roomID, models.Plan{ID: "plan"}))

	require.Empty(t, f.session.Messages(roomID))
	require.Equal(t, 0, f.remote.Calls("SaveMessage"))
	require.Equal(t, 0, f.blobs.Len())
}

func TestCloseWaitsForConcurrentSends(t *testing.T) {
	f := bootstrap(t, "a")
	f.session.LoadChatRooms(context.Background())
	roomID := f.rooms[0].ID

	var wg sync.WaitGroup
	var sent int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := f.session.SendText(context.Background(), roomID, "hello"); ok {
				atomic.AddInt32(&sent, 1)
			}
		}()
	}
	f.session.Close()
	saved := f.remote.Calls("SaveMessage")
	wg.Wait()

	// sends accepted before Close have finished, later ones were rejected
	require.Equal(t, int(atomic.LoadInt32(&sent)), saved)
	require.Equal(t, saved, f.remote.Calls("SaveMessage"))
	require.Len(t, f.session.Messages(roomID), saved)
}

func TestForeignImages(t *testing.T) {
	f := bootstrap(t, "a")
	room := f.rooms[0]

	paths := f.session.UploadImages(context.Background(), mytesting.RandImages(2))
	require.Len(t, paths, 2)
	require.NoError(t, f.remote.SaveMessage(context.Background(), room.ID,
		models.NewImageMessage(room.UserID, userID, paths[:1], time.Now())))

	// rooms are loaded on demand
	require.Empty(t, f.session.ForeignImages(context.Background(), paths[:1]))
	require.Equal(t, 1, f.remote.Calls("FetchChatRooms"))

	require.Equal(t, paths[1:], f.session.ForeignImages(context.Background(), paths))
	require.Equal(t, 2, f.remote.Calls("FetchChatRooms"))
}
