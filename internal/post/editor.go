// Package post creates and edits marketplace posts together with their images.
package post

import (
	"context"
	"fmt"
	"time"

	"greensitter/internal/fanout"
	"greensitter/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Store interface {
	SavePost(ctx context.Context, p models.Post) error
}

type Blobs interface {
	Upload(ctx context.Context, data []byte) (string, error)
	Download(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}

// Editor writes posts and keeps their images in the blob store in step
type Editor struct {
	logger *zap.SugaredLogger
	store  Store
	blobs  Blobs
	now    func() time.Time
}

func NewEditor(logger *zap.SugaredLogger, store Store, blobs Blobs) *Editor {
	return &Editor{
		logger: logger,
		store:  store,
		blobs:  blobs,
		now:    time.Now,
	}
}

// Create uploads images and saves p as a new post before any trade
func (e *Editor) Create(ctx context.Context, p models.Post, images [][]byte) (models.Post, error) {
	now := e.now()
	p.ID = uuid.NewString()
	p.Enabled = true
	p.CreateDate = now
	p.UpdateDate = now
	p.PostStatus = models.PostStatusBeforeTrade
	p.PostImages = nonEmpty(e.upload(ctx, images))

	if err := e.store.SavePost(ctx, p); err != nil {
		return models.Post{}, fmt.Errorf("saving post: %w", err)
	}

	e.logger.Infof("Created post (id: %s) with %d images", p.ID, len(p.PostImages))

	return p, nil
}

// Update uploads new images, saves the post and then deletes the removed images.
// Only images of p can be removed, other paths are logged and skipped.
// Failed deletes and uploads are logged and skipped, only a failed save is returned.
func (e *Editor) Update(ctx context.Context, p models.Post, removed []string, images [][]byte) (models.Post, error) {
	owned := make(map[string]struct{}, len(p.PostImages))
	for _, path := range p.PostImages {
		owned[path] = struct{}{}
	}

	drop := make(map[string]struct{}, len(removed))
	for _, path := range removed {
		if _, ok := owned[path]; !ok {
			e.logger.Errorf("Cannot remove image %s: not an image of post (id: %s)", path, p.ID)
			continue
		}
		drop[path] = struct{}{}
	}

	uploaded := e.upload(ctx, images)

	paths := make([]string, 0, len(p.PostImages)+len(uploaded))
	dropped := make([]string, 0, len(drop))
	for _, path := range p.PostImages {
		if _, ok := drop[path]; ok {
			dropped = append(dropped, path)
			continue
		}
		paths = append(paths, path)
	}
	paths = append(paths, uploaded...)

	p.PostImages = nonEmpty(paths)
	p.UpdateDate = e.now()

	// the stored post must never point at deleted blobs
	if err := e.store.SavePost(ctx, p); err != nil {
		return models.Post{}, fmt.Errorf("saving post: %w", err)
	}

	deleted := fanout.Each(ctx, e.logger, dropped, e.blobs.Delete, fanout.Label("delete post images"))
	if deleted < len(dropped) {
		e.logger.Errorf("Deleted %d of %d images of post (id: %s)", deleted, len(dropped), p.ID)
	}

	return p, nil
}

// LoadImages downloads the images of a post. Failed downloads are left out.
func (e *Editor) LoadImages(ctx context.Context, paths []string) [][]byte {
	return fanout.Collect(ctx, e.logger, paths, e.blobs.Download, fanout.Label("download post images"))
}

func (e *Editor) upload(ctx context.Context, images [][]byte) []string {
	return fanout.Collect(ctx, e.logger, images, e.blobs.Upload, fanout.Label("upload post images"))
}

// a stored post has either no image list or a non-empty one
func nonEmpty(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	return paths
}
