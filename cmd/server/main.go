package main

import (
	"context"
	"log"
	"time"

	"greensitter/internal/blob"
	"greensitter/internal/chat"
	"greensitter/internal/post"
	"greensitter/internal/server"
	"greensitter/internal/storage"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// sessionConfig tunes chat sessions
type sessionConfig struct {
	BatchLimit int `env:"CHAT_BATCH_LIMIT" envDefault:"16"`
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("zap.NewDevelopment: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Application is starting")

	// .env is optional, real environment variables take precedence
	if err := godotenv.Load(); err != nil {
		sugar.Infof("No .env file loaded: %v", err)
	}

	serverCfg := server.EnvConfig{}
	if err := env.Parse(&serverCfg); err != nil {
		sugar.Fatalf("Cannot parse server env config: %v", err)
	}

	storageCfg := storage.Config{}
	if err := env.Parse(&storageCfg); err != nil {
		sugar.Fatalf("Cannot parse storage env config: %v", err)
	}

	blobCfg := blob.EnvConfig{}
	if err := env.Parse(&blobCfg); err != nil {
		sugar.Fatalf("Cannot parse blob env config: %v", err)
	}

	sessionCfg := sessionConfig{}
	if err := env.Parse(&sessionCfg); err != nil {
		sugar.Fatalf("Cannot parse session env config: %v", err)
	}

	store, err := storage.New(context.Background(), sugar, storageCfg.DSN(),
		storage.ConnectionTimeout(30*time.Second),
		storage.MaxConns(int32(sessionCfg.BatchLimit)+4),
	)
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		sugar.Fatalf("Cannot migrate database: %v", err)
	}

	blobs, err := blob.Open(sugar, blobCfg.DataDir, blob.WithEnvConfig(blobCfg))
	if err != nil {
		sugar.Fatalf("Cannot open blob store: %v", err)
	}

	sessions := chat.NewSessions(sugar, store, blobs.Bucket("chat_images"), chat.BatchLimit(sessionCfg.BatchLimit))
	editor := post.NewEditor(sugar, store, blobs.Bucket("post_images"))

	serverOpts := []server.Option{
		server.WithEnvConfig(serverCfg),
		server.ReadTimeout(30 * time.Second),
		server.TimeoutHandler(time.Minute, "Request timed out"),
		server.RegisterAfterShutdown(func() {
			sugar.Info("Waiting for pending messages")
			sessions.Close()
		}),
		server.RegisterAfterShutdown(func() {
			sugar.Info("Closing store")
			store.Close()
			sugar.Info("Store is closed")
		}),
		server.RegisterAfterShutdown(func() {
			if err := blobs.Close(); err != nil {
				sugar.Errorf("Cannot close blob store: %v", err)
			}
		}),
	}

	srv, err := server.NewServer(sugar, sessions, store, editor, serverOpts...)
	if err != nil {
		sugar.Fatalf("Cannot create Server instance: %v", err)
	}

	if err := srv.Start(); err != nil {
		sugar.Fatalf("Cannot start http srv: %v", err)
	}
}
