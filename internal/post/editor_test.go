package post

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"greensitter/internal/models"
	mytesting "greensitter/internal/testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func bootstrap(t *testing.T) (*Editor, *mytesting.Remote, *mytesting.Blobs) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	remote := mytesting.NewRemote()
	blobs := mytesting.NewBlobs("post_images")

	return NewEditor(logger.Sugar(), remote, blobs), remote, blobs
}

func draft() models.Post {
	return models.Post{
		UserID:    "owner",
		Nickname:  "owner",
		PostType:  models.PostTypeLookingForSitter,
		PostTitle: "monstera",
		PostBody:  "two weeks in august",
	}
}

func TestCreate(t *testing.T) {
	e, remote, _ := bootstrap(t)

	p, err := e.Create(context.Background(), draft(), mytesting.RandImages(2))
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	require.Len(t, p.PostImages, 2)
	require.Equal(t, models.PostStatusBeforeTrade, p.PostStatus)

	stored, err := remote.FetchPost(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, p.PostImages, stored.PostImages)
}

func TestCreateWithoutImages(t *testing.T) {
	e, _, _ := bootstrap(t)

	p, err := e.Create(context.Background(), draft(), nil)
	require.NoError(t, err)
	require.Nil(t, p.PostImages)
}

func TestUpdate(t *testing.T) {
	e, _, blobs := bootstrap(t)

	p, err := e.Create(context.Background(), draft(), mytesting.RandImages(3))
	require.NoError(t, err)
	removed := p.PostImages[1]

	updated, err := e.Update(context.Background(), p, []string{removed}, mytesting.RandImages(2))
	require.NoError(t, err)

	require.Len(t, updated.PostImages, 4)
	require.Equal(t, p.PostImages[0], updated.PostImages[0])
	require.Equal(t, p.PostImages[2], updated.PostImages[1])
	require.NotContains(t, updated.PostImages, removed)
	require.Equal(t, 4, blobs.Len())
	require.False(t, updated.UpdateDate.Before(p.UpdateDate))
}

func TestUpdatePartialFailures(t *testing.T) {
	e, _, blobs := bootstrap(t)

	p, err := e.Create(context.Background(), draft(), mytesting.RandImages(1))
	require.NoError(t, err)

	images := mytesting.RandImages(3)
	failing := images[0]
	blobs.FailUpload = func(data []byte) bool { return bytes.Equal(data, failing) }

	// a failed upload is left out, the rest still happens
	updated, err := e.Update(context.Background(), p, []string{"post_images/missing.jpg"}, images)
	require.NoError(t, err)
	require.Len(t, updated.PostImages, 3)
}

func TestUpdateKeepsImagesOfOtherPosts(t *testing.T) {
	e, remote, blobs := bootstrap(t)

	victim, err := e.Create(context.Background(), draft(), mytesting.RandImages(1))
	require.NoError(t, err)
	attacker, err := e.Create(context.Background(), draft(), nil)
	require.NoError(t, err)

	updated, err := e.Update(context.Background(), attacker, victim.PostImages, nil)
	require.NoError(t, err)
	require.Nil(t, updated.PostImages)
	require.Equal(t, 1, blobs.Len())

	_, err = blobs.Download(context.Background(), victim.PostImages[0])
	require.NoError(t, err)

	stored, err := remote.FetchPost(context.Background(), victim.ID)
	require.NoError(t, err)
	require.Equal(t, victim.PostImages, stored.PostImages)
}

type failingStore struct{}

var errSave = errors.New("save failed")

func (failingStore) SavePost(context.Context, models.Post) error { return errSave }

func TestUpdateFailedSaveKeepsImages(t *testing.T) {
	e, _, blobs := bootstrap(t)

	p, err := e.Create(context.Background(), draft(), mytesting.RandImages(2))
	require.NoError(t, err)

	e.store = failingStore{}
	_, err = e.Update(context.Background(), p, p.PostImages, nil)
	require.ErrorIs(t, err, errSave)
	require.Equal(t, 2, blobs.Len())

	for _, path := range p.PostImages {
		_, err := blobs.Download(context.Background(), path)
		require.NoError(t, err)
	}
}

func TestUpdateRemovesAllImages(t *testing.T) {
	e, remote, _ := bootstrap(t)

	p, err := e.Create(context.Background(), draft(), mytesting.RandImages(2))
	require.NoError(t, err)

	updated, err := e.Update(context.Background(), p, p.PostImages, nil)
	require.NoError(t, err)
	require.Nil(t, updated.PostImages)

	stored, err := remote.FetchPost(context.Background(), p.ID)
	require.NoError(t, err)
	require.NoError(t, stored.Validate())
}

func TestLoadImages(t *testing.T) {
	e, _, _ := bootstrap(t)
	images := mytesting.RandImages(2)

	p, err := e.Create(context.Background(), draft(), images)
	require.NoError(t, err)

	loaded := e.LoadImages(context.Background(), p.PostImages)
	require.ElementsMatch(t, images, loaded)
}
