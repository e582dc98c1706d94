package routes

import (
	"context"
	"fmt"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/saeid-a/ChatAppBack/internal/config"
	"github.com/saeid-a/ChatAppBack/internal/handlers"
	"github.com/saeid-a/ChatAppBack/internal/middleware"
	"github.com/saeid-a/ChatAppBack/internal/models"
	"github.com/saeid-a/ChatAppBack/internal/presence"
	"github.com/saeid-a/ChatAppBack/internal/repository"
	"github.com/saeid-a/ChatAppBack/internal/services"
	chatws "github.com/saeid-a/ChatAppBack/internal/websocket"
	"github.com/sirupsen/logrus"
)

type userStore interface {
	services.UserDirectory
	presence.Observer
	CreateUser(ctx context.Context, user *models.User) error
	GetByLogin(ctx context.Context, login string) (*models.User, error)
}

// RegisterRoutes builds the chat stack and mounts it on app. Background
// workers (the websocket hub, the Redis client) live until ctx is cancelled.
func RegisterRoutes(ctx context.Context, app *fiber.App, cfg *config.Config, db *pgxpool.Pool) error {
	var (
		backend services.ChatBackend
		users   userStore
	)
	if cfg.UseMemoryStore() {
		store := repository.NewMemoryStore()
		backend, users = store, store
		logrus.Warn("using in-memory store; data is lost on restart")
	} else {
		if db == nil {
			return fmt.Errorf("postgres store requires a database pool")
		}
		backend = repository.NewPostgresChatStore(db)
		users = repository.NewUserRepository(db)
	}

	observers := []presence.Observer{users}
	if cfg.RedisURL != "" {
		mirror, err := newRedisMirror(ctx, cfg)
		if err != nil {
			return err
		}
		observers = append(observers, mirror)
	}

	registry := presence.NewRegistry(observers...)
	chatService := services.NewChatService(backend, users, registry, cfg.ReconcileSettleDelay)
	userService := services.NewUserService(users, registry)
	resolver := services.NewTokenResolver(cfg.JWTSecret, users)

	hub := chatws.NewHub(chatService, userService, resolver)
	go hub.Run(ctx)

	authHandler := handlers.NewAuthHandler(users, cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	chatHandler := handlers.NewChatHandler(chatService, hub, resolver)
	userHandler := handlers.NewUserHandler(userService)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	// The websocket route authenticates itself so it can accept in-band
	// authentication; it must be mounted before the bearer-protected group.
	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	conversations := authProtected.Group("/conversations")
	conversations.Get("", chatHandler.ListConversations)
	conversations.Get("/:peerId/messages", chatHandler.GetMessages)
	conversations.Post("/:peerId/seen", chatHandler.MarkSeen)

	messages := authProtected.Group("/messages")
	messages.Post("", chatHandler.SendMessage)
	messages.Put("/:id/status", chatHandler.UpdateStatus)

	authProtected.Get("/unread", chatHandler.GetUnread)
	authProtected.Get("/presence", chatHandler.GetPresence)
	authProtected.Get("/users", userHandler.SearchUsers)
	authProtected.Get("/users/:id", userHandler.GetUser)
	authProtected.Get("/contacts", userHandler.ListContacts)

	return nil
}

func newRedisMirror(ctx context.Context, cfg *config.Config) (*presence.RedisMirror, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// The registry stays authoritative, so a missing mirror is not fatal.
		logrus.WithError(err).Warn("redis unreachable at startup; presence mirror will retry per write")
	} else {
		logrus.WithField("addr", opts.Addr).Info("presence mirror connected to redis")
	}

	go func() {
		<-ctx.Done()
		if err := client.Close(); err != nil {
			logrus.WithError(err).Warn("close redis client")
		}
	}()

	return presence.NewRedisMirror(client, cfg.PresenceTTL), nil
}
