package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"chypto_bot/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

	maxUpdateSize = 1 << 20
)

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd tgbotapi.Update)
}

type webhookRoutes struct {
	h      UpdateHandler
	secret string
}

func NewWebhookRoutes(handler gin.IRoutes, path string, h UpdateHandler, secret string) {
	r := &webhookRoutes{h: h, secret: secret}
	handler.Any(path, r.ReceiveUpdate)
}

func (r *webhookRoutes) ReceiveUpdate(c *gin.Context) {
	log := logger.Logger()

	if c.Request.Method != http.MethodPost {
		c.Header("Allow", http.MethodPost)
		c.String(http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	if r.secret != "" {
		got := c.GetHeader(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(r.secret)) != 1 {
			log.Warn("webhook call with invalid secret token", zap.String("remote_addr", c.ClientIP()))
			c.String(http.StatusUnauthorized, "Unauthorized")
			return
		}
	}

	var upd tgbotapi.Update
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxUpdateSize)
	if err := json.NewDecoder(body).Decode(&upd); err != nil {
		log.Info("failed to decode update", zap.Error(err))
		c.String(http.StatusBadRequest, "Bad Request")
		return
	}

	// Telegram closing the connection must not abort a half-handled update.
	r.h.HandleUpdate(context.WithoutCancel(c.Request.Context()), upd)

	c.String(http.StatusOK, "OK")
}
