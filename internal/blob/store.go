// Package blob stores image payloads in a Pebble database under slash separated paths.
package blob

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("blob not found")
	ErrEmpty    = errors.New("empty blob")
	ErrBadPath  = errors.New("malformed blob path")
	ErrForeign  = errors.New("blob belongs to another bucket")
)

// EnvConfig defines fields used for parsing from environment variables
type EnvConfig struct {
	DataDir string `env:"BLOB_DATA_DIR" envDefault:"./data/blobs"`
	Sync    bool   `env:"BLOB_SYNC" envDefault:"true"`
}

type Option interface {
	apply(*options)
}

type optionFunc func(o *options)

func (f optionFunc) apply(o *options) { f(o) }

type options struct {
	sync          bool
	pebbleOptions *pebble.Options
}

// WithEnvConfig applies sync policy from EnvConfig
func WithEnvConfig(cfg EnvConfig) Option {
	return optionFunc(func(o *options) {
		o.sync = cfg.Sync
	})
}

// NoSync lets Pebble coalesce WAL syncs instead of syncing every write
func NoSync() Option {
	return optionFunc(func(o *options) {
		o.sync = false
	})
}

// PebbleOptions overrides the options passed to pebble.Open
func PebbleOptions(po *pebble.Options) Option {
	return optionFunc(func(o *options) {
		o.pebbleOptions = po
	})
}

// Store wraps a Pebble database
type Store struct {
	logger    *zap.SugaredLogger
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
}

// Open creates or opens the database in dir
func Open(logger *zap.SugaredLogger, dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("blob: data dir is required")
	}

	o := options{sync: true}
	for _, opt := range opts {
		opt.apply(&o)
	}

	po := o.pebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	if !o.sync {
		po.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, err
	}

	writeOpts := pebble.NoSync
	if o.sync {
		writeOpts = pebble.Sync
	}

	return &Store{
		logger:    logger,
		db:        db,
		writeOpts: writeOpts,
	}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Bucket returns a view of the store that names new blobs under prefix
func (s *Store) Bucket(prefix string) *Bucket {
	return &Bucket{
		store:  s,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (s *Store) put(path string, data []byte) error {
	return s.db.Set([]byte(path), data, s.writeOpts)
}

func (s *Store) get(path string) ([]byte, error) {
	val, closer, err := s.db.Get([]byte(path))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	return append([]byte(nil), val...), nil
}

func (s *Store) delete(path string) error {
	// pebble deletes are blind, check existence to report missing blobs
	if _, err := s.get(path); err != nil {
		return err
	}
	return s.db.Delete([]byte(path), s.writeOpts)
}

// Bucket uploads blobs as "<prefix>/<uuid>.jpg"
type Bucket struct {
	store  *Store
	prefix string
}

// Upload stores data under a new path and returns that path
func (b *Bucket) Upload(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := b.prefix + "/" + uuid.NewString() + ".jpg"
	if err := b.store.put(path, data); err != nil {
		return "", err
	}

	b.store.logger.Debugf("Uploaded blob %s (%d bytes)", path, len(data))

	return path, nil
}

// Download returns a copy of the blob stored at path
func (b *Bucket) Download(ctx context.Context, path string) ([]byte, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.store.get(path)
}

// Delete removes the blob stored at path. A bucket only deletes blobs named under its own prefix.
func (b *Bucket) Delete(ctx context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	if !strings.HasPrefix(path, b.prefix+"/") {
		return ErrForeign
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := b.store.delete(path); err != nil {
		return err
	}

	b.store.logger.Debugf("Deleted blob %s", path)

	return nil
}

func validatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || !strings.Contains(path, "/") {
		return ErrBadPath
	}
	return nil
}
