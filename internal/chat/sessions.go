package chat

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrClosed = errors.New("sessions closed")

// Sessions keeps one Session per user
type Sessions struct {
	logger *zap.SugaredLogger
	remote Remote
	blobs  Blobs
	opts   []Option

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewSessions(logger *zap.SugaredLogger, remote Remote, blobs Blobs, opts ...Option) *Sessions {
	return &Sessions{
		logger:   logger,
		remote:   remote,
		blobs:    blobs,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session of userID, creating it and loading the user's profile on first use.
// Unknown users get no session.
func (r *Sessions) Get(ctx context.Context, userID string) (*Session, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	if s, ok := r.Lookup(userID); ok {
		return s, nil
	}

	s := NewSession(r.logger, userID, r.remote, r.blobs, r.opts...)
	if err := s.LoadUser(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	// another request may have created it meanwhile
	if existing, ok := r.sessions[userID]; ok {
		return existing, nil
	}
	r.sessions[userID] = s

	r.logger.Infof("Session of user (id: %s) created", userID)

	return s, nil
}

// Lookup returns an existing session without creating one
func (r *Sessions) Lookup(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	return s, ok
}

// Close stops every session from starting new sends and waits for the running ones.
// Get fails with ErrClosed afterwards.
func (r *Sessions) Close() {
	r.mu.Lock()
	r.closed = true
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
