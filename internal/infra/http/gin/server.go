package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"freightdesk/internal/domain/chat"
	"freightdesk/internal/infra/config"
	"freightdesk/internal/infra/obs"
	"freightdesk/internal/infra/realtime"
)

type Handlers struct {
	Chat     ChatHTTP
	Users    UsersHTTP
	Realtime RealtimeHTTP
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg.AllowedOrigins, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter wires middleware and routes.
func NewRouter(origins []string, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	router := gin.New()
	// multipart bodies above this spill to disk
	router.MaxMultipartMemory = chat.MaxAttachmentBytes + 1<<20
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(corsConfig(origins)))
	router.Use(PrincipalMiddleware())

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api")
	if h.Chat != nil {
		admin := api.Group("/admin/conversations")
		admin.GET("", h.Chat.ListConversations)
		admin.POST("", h.Chat.OpenConversation)
		admin.DELETE("", h.Chat.CleanupConversations)
		admin.GET("/:id", h.Chat.ListMessages)
		admin.POST("/:id", h.Chat.SendMessage)
		admin.POST("/:id/read", h.Chat.MarkRead)
	}
	if h.Users != nil {
		api.GET("/users/batch", h.Users.Batch)
	}
	if h.Realtime != nil {
		api.GET("/realtime", h.Realtime.Connect)
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", realtime.HeaderUserID, realtime.HeaderUserRole},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
