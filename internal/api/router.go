package api

import (
	"net/http"
	"time"

	"chypto_bot/internal/service"
	"chypto_bot/pkg/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const WebhookPath = "/webhook"

type RouterConfig struct {
	Updates       UpdateHandler
	WebhookSecret string
	Store         Pinger
	Accounts      service.AccountServiceI
	Auth          *auth.TelegramAuth
	BotUsername   string
}

// NewRouter serves the webhook when cfg.Updates is set, plus health, metrics and the
// mini-app account API.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{http.MethodHead, http.MethodGet}
	config.AllowHeaders = []string{"Authorization", "Content-Type"}
	config.MaxAge = 12 * time.Hour
	router.Use(cors.New(config))

	NewHealthRoutes(router, cfg.Store)
	if cfg.Updates != nil {
		NewWebhookRoutes(router, WebhookPath, cfg.Updates, cfg.WebhookSecret)
	}

	a := router.Group("/api/v1")
	NewAccountRoutes(a, cfg.Accounts, cfg.Auth, cfg.BotUsername)

	return router
}
