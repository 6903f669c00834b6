package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/serverhost/internal/api/handlers"
	"github.com/TheGojiOG/serverhost/internal/api/middleware"
	"github.com/TheGojiOG/serverhost/internal/config"
	"github.com/TheGojiOG/serverhost/internal/console"
	"github.com/TheGojiOG/serverhost/internal/state"
	"github.com/TheGojiOG/serverhost/internal/websocket"
)

// SetupRouter configures and returns the HTTP router
func SetupRouter(
	cfg *config.Config,
	logger *slog.Logger,
	definitions handlers.DefinitionStore,
	servers handlers.ServerService,
	events *state.EventLog,
	history *console.CommandHistory,
	hub *websocket.Hub,
) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.Security.CORS))
	router.Use(middleware.RateLimit(cfg.Security.RateLimit))
	router.Use(middleware.SecurityHeaders())

	// Initialize handlers
	serverHandler := handlers.NewServerHandler(logger, definitions, servers, events)
	consoleHandler := handlers.NewConsoleHandler(logger, servers, history, cfg.Security.CORS.AllowedOrigins)
	statusHandler := handlers.NewStatusHandler(logger, hub, serverHandler, cfg.Security.CORS.AllowedOrigins)

	v1 := router.Group("/api/v1")
	{
		// Server routes
		srv := v1.Group("/servers")
		{
			srv.GET("", serverHandler.ListServers)
			srv.POST("", serverHandler.CreateServer)
			srv.GET(":id", serverHandler.GetServer)
			srv.PUT(":id", serverHandler.UpdateServer)
			srv.DELETE(":id", serverHandler.DeleteServer)
			srv.POST(":id/start", serverHandler.StartServer)
			srv.POST(":id/stop", serverHandler.StopServer)
			srv.POST(":id/restart", serverHandler.RestartServer)
			srv.POST(":id/command", serverHandler.ExecuteCommand)
			srv.GET(":id/events", serverHandler.GetServerEvents)
		}

		// Console routes
		v1.GET("/servers/:id/console", consoleHandler.HandleConsoleWebSocket)
		v1.GET("/servers/:id/console/history", consoleHandler.GetCommandHistory)
		v1.GET("/servers/:id/console/autocomplete", consoleHandler.GetAutocomplete)
	}

	// WebSocket routes
	router.GET("/ws/status", statusHandler.HandleStatusWebSocket)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
