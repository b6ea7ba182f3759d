package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"chatsync/internal/auth"
	"chatsync/internal/config"
	"chatsync/internal/handler"
	"chatsync/internal/middleware"
	"chatsync/internal/transport/httpdto"
	"chatsync/internal/websocket"
	"chatsync/pkg/logger"
)

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth         *handler.AuthHandler
	User         *handler.UserHandler
	Conversation *handler.ConversationHandler
	Message      *handler.MessageHandler
	Upload       *handler.UploadHandler
	Presence     *handler.PresenceHandler
	WS           *websocket.Handler
}

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
	hub        *websocket.Hub
}

func New(cfg *config.Config, hub *websocket.Hub, l *logger.Logger) *Server {
	switch cfg.Server.Mode {
	case ReleaseMode:
		gin.SetMode(gin.ReleaseMode)
	case TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
		hub:    hub,
	}
}

func (s *Server) SetupRoutes(handlers *Handlers, authService *auth.Service) {
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.CORS())
	s.engine.Use(middleware.Logging(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{
			"status":  "healthy",
			"clients": s.hub.ClientCount(),
		}))
	})

	s.engine.POST("/v1/auth/token", handlers.Auth.Token)
	s.engine.GET("/ws", handlers.WS.Connect)

	v1 := s.engine.Group("/v1", middleware.Auth(authService))
	{
		v1.GET("/users", handlers.User.List)

		v1.GET("/conversations", handlers.Conversation.List)
		v1.GET("/conversations/:id", handlers.Conversation.Get)
		v1.POST("/conversations/direct", handlers.Conversation.CreateDirect)
		v1.POST("/conversations/group", handlers.Conversation.CreateGroup)
		v1.POST("/conversations/:id/read", handlers.Conversation.MarkRead)

		v1.GET("/conversations/:id/messages", handlers.Message.List)
		v1.POST("/conversations/:id/messages", handlers.Message.Send)

		v1.POST("/uploads", handlers.Upload.Upload)

		v1.POST("/presence", handlers.Presence.Set)
		v1.GET("/presence/:id", handlers.Presence.Get)
		v1.POST("/typing", handlers.Presence.Typing)
	}
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.Server.Port)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	<-quit

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return nil
}
