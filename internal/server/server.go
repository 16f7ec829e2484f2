package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"greensitter/internal/chat"
	"greensitter/internal/post"

	"go.uber.org/zap"
)

// Server defines fields used in HTTP processing
type Server struct {
	logger        *zap.SugaredLogger
	httpServer    *http.Server
	h             *handler
	afterShutdown []func()
}

// NewServer returns new Server struct with provided zap.SugaredLogger, chat sessions, store and post editor
// JSON endpoints are wrapped with enforcePostJson and log middlewares, "/events" only with log
func NewServer(logger *zap.SugaredLogger, sessions *chat.Sessions, store Store, editor *post.Editor, opts ...Option) (*Server, error) {
	h := newHandler(logger, sessions, store, editor)

	cfg := &config{
		httpServer: &http.Server{},
		handlers: map[string]http.Handler{
			"/users/add":          http.HandlerFunc(h.createUser),
			"/users/get":          http.HandlerFunc(h.getUser),
			"/chats/get":          http.HandlerFunc(h.getChats),
			"/chats/delete":       http.HandlerFunc(h.deleteChat),
			"/chats/notification": http.HandlerFunc(h.updateNotification),
			"/messages/get":       http.HandlerFunc(h.getMessages),
			"/messages/add":       http.HandlerFunc(h.createMessage),
			"/messages/images":    http.HandlerFunc(h.createImageMessage),
			"/messages/plan":      http.HandlerFunc(h.createPlanMessage),
			"/images/get":         http.HandlerFunc(h.getImages),
			"/posts/add":          http.HandlerFunc(h.createPost),
			"/posts/update":       http.HandlerFunc(h.updatePost),
			"/posts/map":          http.HandlerFunc(h.postsMap),
		},
		streams: map[string]http.Handler{
			"/events": http.HandlerFunc(h.events),
		},
		maxBodySize: DefaultMaxBodySize,
	}

	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.maxBodySize <= 0 {
		return nil, fmt.Errorf("max body size must be positive, got %d", cfg.maxBodySize)
	}

	internalOpts := []Option{
		applyEnforcePostJson(),
		applyLog(logger.Desugar()),
		registerHandlers(),
	}

	for _, o := range internalOpts {
		o.apply(cfg)
	}

	cfg.httpServer.RegisterOnShutdown(h.closeStreams)

	return &Server{
		logger:        logger,
		httpServer:    cfg.httpServer,
		h:             h,
		afterShutdown: cfg.afterShutdown,
	}, nil
}

// Handler returns the root http.Handler of the server
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	for _, f := range s.afterShutdown {
		f()
	}

	return nil
}
