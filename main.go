package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"secretsanta/server/internal/chat"
	"secretsanta/server/internal/config"
	"secretsanta/server/internal/database"
	"secretsanta/server/internal/encryption"
	"secretsanta/server/internal/handlers"
	"secretsanta/server/internal/logger"
	"secretsanta/server/internal/messages"
	"secretsanta/server/internal/middleware"
	"secretsanta/server/internal/models"
	"secretsanta/server/internal/pseudonym"
	"secretsanta/server/internal/repository"
	"secretsanta/server/internal/routes"
	"secretsanta/server/internal/storage"
	"secretsanta/server/internal/utils"
	ws "secretsanta/server/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog, err := logger.New(cfg.App.Env, cfg.Log.HashSalt)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer appLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLog); err != nil {
		appLog.Fatal("server stopped", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, appLog *logger.Logger) error {
	// Cipher keys
	keys, err := encryption.ParseKeys(cfg.Crypto.EncryptionKey, cfg.Crypto.HMACKey, cfg.Crypto.AllowWeakKeys)
	if err != nil {
		return err
	}
	if keys.Weak {
		appLog.Warn("chat keys were derived from short secrets; use 32 byte keys outside development")
	}
	engine, err := encryption.NewEngineFromKeys(keys)
	if err != nil {
		return err
	}

	// Persistence
	messageRepo, roomRepo, closeDB, err := openRepositories(ctx, cfg, appLog)
	if err != nil {
		return err
	}
	defer closeDB()

	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	tokens, err := utils.NewTokenManager(cfg.JWT.Secret, 24*time.Hour)
	if err != nil {
		return err
	}

	// Optional shared rate limiting
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			appLog.Warn("redis unreachable, rate limits fall open", "error", err)
		}
	}

	registry := pseudonym.NewRegistry(roomRepo)
	hub := ws.NewHub(registry, appLog)
	go hub.Run(ctx)

	store := messages.NewStore(messageRepo, engine, registry, appLog)
	service := chat.NewService(store, registry, blobs, hub, appLog)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:   "Secret Santa Chat API v1.0",
		BodyLimit: int(cfg.Upload.MaxSize) + 1024*1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowCredentials: true,
	}))

	// Setup routes
	h := handlers.New(service, hub, appLog, cfg.Upload.MaxSize)
	routes.SetupRoutes(app, h, tokens, middleware.SendRateLimiter(redisClient, appLog))

	go func() {
		<-ctx.Done()
		appLog.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			appLog.Error("shutdown failed", "error", err)
		}
	}()

	appLog.Info("server starting", "port", cfg.Server.Port, "database", cfg.Database.Driver, "storage", cfg.Storage.Backend)
	return app.Listen(":" + cfg.Server.Port)
}

// openRepositories returns the repositories for the configured driver and a
// func releasing their resources.
func openRepositories(ctx context.Context, cfg *config.Config, appLog *logger.Logger) (repository.MessageRepository, repository.RoomRepository, func(), error) {
	switch cfg.Database.Driver {
	case "memory":
		rooms := repository.NewMemoryRoomRepository()
		for _, seed := range cfg.Database.SeedRooms {
			room := &models.Room{ID: seed.ID, Name: seed.Name, Participants: seed.Participants, CreatedAt: time.Now().UTC()}
			if err := rooms.Create(ctx, room); err != nil {
				return nil, nil, nil, fmt.Errorf("seed room %s: %w", seed.ID, err)
			}
		}
		appLog.Warn("using in-memory storage; messages are lost on restart", "rooms", len(cfg.Database.SeedRooms))
		return repository.NewMemoryMessageRepository(), rooms, func() {}, nil

	default:
		pool, err := database.Connect(ctx, cfg.Database.URL, appLog)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return repository.NewPostgresMessageRepository(pool), repository.NewPostgresRoomRepository(pool), pool.Close, nil
	}
}
