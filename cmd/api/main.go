package main

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"chatsync/internal/auth"
	"chatsync/internal/config"
	"chatsync/internal/handler"
	"chatsync/internal/presence"
	"chatsync/internal/server"
	"chatsync/internal/storage"
	"chatsync/internal/store"
	"chatsync/internal/uploads"
	"chatsync/internal/websocket"
	"chatsync/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	l := logger.New(cfg.Server.Environment)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis backs presence and cross-node watch invalidation when enabled;
	// otherwise everything stays in-process and the server is single-node.
	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			l.Errorf("redis unreachable: %v", err)
			return
		}
	}

	var notifier store.Notifier
	var tracker presence.Tracker
	if redisClient != nil {
		notifier = store.NewRedisNotifier(redisClient)
		tracker = presence.NewRedisTracker(redisClient, 0, l)
	} else {
		notifier = store.NewMemoryNotifier()
		tracker = presence.NewMemory()
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		l.Errorf("connecting to postgres: %v", err)
		return
	}
	defer pool.Close()

	st := store.NewPostgres(pool, notifier, l)
	if err := st.EnsureSchema(ctx); err != nil {
		l.Errorf("ensuring schema: %v", err)
		return
	}

	var uploader uploads.MediaUploader
	if cfg.S3.Enabled {
		s3Client, err := storage.NewClient(ctx, storage.S3Config{
			Region:     cfg.S3.Region,
			Bucket:     cfg.S3.Bucket,
			AccessKey:  cfg.S3.AccessKey,
			SecretKey:  cfg.S3.SecretKey,
			Endpoint:   cfg.S3.Endpoint,
			PublicBase: cfg.S3.PublicBase,
		})
		if err != nil {
			l.Errorf("initializing s3: %v", err)
			return
		}
		uploader = s3Client
	} else {
		l.Warnf("S3 disabled, uploads are kept in memory")
		uploader = uploads.NewMemoryUploader()
	}

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	hub := websocket.NewHub()
	go hub.Run(ctx)
	bridge := websocket.NewBridge(st, tracker, hub, l)

	handlers := &server.Handlers{
		Auth:         handler.NewAuthHandler(authService, st),
		User:         handler.NewUserHandler(st),
		Conversation: handler.NewConversationHandler(st, l),
		Message:      handler.NewMessageHandler(st, l),
		Upload:       handler.NewUploadHandler(uploader),
		Presence:     handler.NewPresenceHandler(tracker),
		WS:           websocket.NewHandler(authService, hub, bridge, tracker, l),
	}

	srv := server.New(cfg, hub, l)
	srv.SetupRoutes(handlers, authService)

	if err := srv.Start(); err != nil {
		l.Errorf("server exited: %v", err)
	}
}
