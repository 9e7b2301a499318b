package api

import (
	"context"
	"net/http"
	"time"

	"chypto_bot/internal/metrics"
	"chypto_bot/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const pingTimeout = 3 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type healthRoutes struct {
	store Pinger
}

func NewHealthRoutes(handler gin.IRoutes, store Pinger) {
	r := &healthRoutes{store: store}
	handler.GET("/healthz", r.Health)
	handler.GET("/metrics", gin.WrapH(metrics.Handler()))
}

func (r *healthRoutes) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	if err := r.store.Ping(ctx); err != nil {
		logger.Logger().Error("account store ping failed", zap.Error(err))
		writeJSON(c, http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}

	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func writeJSON(c *gin.Context, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Logger().Error("failed to encode response", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(status, "application/json; charset=utf-8", b)
}
