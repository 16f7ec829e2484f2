package chat

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"greensitter/internal/models"

	"github.com/stretchr/testify/require"
)

func textMessage(text string) models.Message {
	return models.NewTextMessage("alice", "bob", text, time.Now())
}

func ids(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestApplyRevertRestoresRoom(t *testing.T) {
	c := NewMessageCache()
	c.Set("room", []models.Message{textMessage("1"), textMessage("2")})
	before := ids(c.Messages("room"))

	tentative := c.Apply("room", textMessage("3"))
	require.Equal(t, 3, c.Len("room"))

	require.True(t, tentative.Revert())
	require.Equal(t, before, ids(c.Messages("room")))
}

func TestRevertWithInterleavedSends(t *testing.T) {
	c := NewMessageCache()
	c.Set("room", []models.Message{textMessage("0")})

	first := c.Apply("room", textMessage("1"))
	second := c.Apply("room", textMessage("2"))
	third := c.Apply("room", textMessage("3"))

	require.True(t, second.Revert())
	first.Commit()
	require.True(t, third.Revert())

	msgs := c.Messages("room")
	require.Len(t, msgs, 2)
	require.Equal(t, "0", *msgs[0].Text)
	require.Equal(t, first.MessageID(), msgs[1].ID)
}

func TestRevertAfterCommitIsNoop(t *testing.T) {
	c := NewMessageCache()
	tentative := c.Apply("room", textMessage("1"))

	tentative.Commit()
	require.False(t, tentative.Revert())
	require.Equal(t, 1, c.Len("room"))
}

func TestRevertTwice(t *testing.T) {
	c := NewMessageCache()
	tentative := c.Apply("room", textMessage("1"))

	require.True(t, tentative.Revert())
	require.False(t, tentative.Revert())
	require.Equal(t, 0, c.Len("room"))
}

func TestRevertAfterReload(t *testing.T) {
	c := NewMessageCache()
	tentative := c.Apply("room", textMessage("1"))

	c.ReplaceAll(map[string][]models.Message{"other": {textMessage("x")}})

	require.False(t, tentative.Revert())
	require.Equal(t, 1, c.Rooms())
}

func TestConcurrentApplyRevert(t *testing.T) {
	c := NewMessageCache()
	c.Set("room", []models.Message{textMessage("base")})
	before := ids(c.Messages("room"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tentative := c.Apply("room", textMessage(strconv.Itoa(i)))
			tentative.Revert()
		}(i)
	}
	wg.Wait()

	require.Equal(t, before, ids(c.Messages("room")))
}

func TestMessagesReturnsCopy(t *testing.T) {
	c := NewMessageCache()
	c.Set("room", []models.Message{textMessage("1")})

	msgs := c.Messages("room")
	msgs[0].ID = "changed"

	require.NotEqual(t, "changed", c.Messages("room")[0].ID)
	require.Nil(t, c.Messages("unknown"))
}

func TestDrop(t *testing.T) {
	c := NewMessageCache()
	c.Set("room", []models.Message{textMessage("1")})
	c.Drop("room")

	require.Equal(t, 0, c.Rooms())
}

func TestMissingImages(t *testing.T) {
	c := NewMessageCache()
	c.Set("a", []models.Message{textMessage("1"), models.NewImageMessage("x", "y", []string{"chat_images/1.jpg"}, time.Now())})
	c.Set("b", []models.Message{models.NewImageMessage("x", "y", []string{"chat_images/2.jpg", "chat_images/3.jpg"}, time.Now())})

	require.Nil(t, c.MissingImages([]string{"chat_images/1.jpg", "chat_images/3.jpg"}))
	require.Equal(t, []string{"post_images/1.jpg"}, c.MissingImages([]string{"chat_images/2.jpg", "post_images/1.jpg"}))

	c.Drop("b")
	require.Equal(t, []string{"chat_images/2.jpg"}, c.MissingImages([]string{"chat_images/2.jpg"}))
}
