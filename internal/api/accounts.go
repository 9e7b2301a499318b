package api

import (
	"errors"
	"net/http"
	"time"

	"chypto_bot/internal/middleware"
	"chypto_bot/internal/service"
	"chypto_bot/pkg/auth"
	"chypto_bot/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type accountRoutes struct {
	as          service.AccountServiceI
	botUsername string
}

func NewAccountRoutes(handler *gin.RouterGroup, as service.AccountServiceI, a *auth.TelegramAuth, botUsername string) {
	r := &accountRoutes{as: as, botUsername: botUsername}
	h := handler.Group("/accounts")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.GET("/:id", middleware.SelfOnly("id"), r.GetAccount)
		h.GET("/:id/referrals", middleware.SelfOnly("id"), r.GetReferrals)
	}
}

type accountResponse struct {
	ID            string    `json:"id"`
	Balance       int64     `json:"balance"`
	ReferredBy    *string   `json:"referred_by"`
	Referrals     []string  `json:"referrals"`
	ReferralCount int       `json:"referral_count"`
	ReferralLink  string    `json:"referral_link"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r *accountRoutes) GetAccount(c *gin.Context) {
	log := logger.Logger()
	id := c.Param("id")

	account, err := r.as.GetAccount(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			writeJSON(c, http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		log.Error("failed to get account", zap.String("account_id", id), zap.Error(err))
		writeJSON(c, http.StatusInternalServerError, gin.H{"error": "failed to get account"})
		return
	}

	referrals := account.Referrals
	if referrals == nil {
		referrals = []string{}
	}

	writeJSON(c, http.StatusOK, accountResponse{
		ID:            account.ID,
		Balance:       account.Balance,
		ReferredBy:    account.ReferredBy,
		Referrals:     referrals,
		ReferralCount: len(referrals),
		ReferralLink:  service.ReferralLink(r.botUsername, account.ID),
		CreatedAt:     account.CreatedAt,
	})
}

type referralResponse struct {
	ID       string    `json:"id"`
	Balance  int64     `json:"balance"`
	JoinedAt time.Time `json:"joined_at"`
}

func (r *accountRoutes) GetReferrals(c *gin.Context) {
	log := logger.Logger()
	id := c.Param("id")

	referrals, err := r.as.GetReferrals(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			writeJSON(c, http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		log.Error("failed to get referrals", zap.String("account_id", id), zap.Error(err))
		writeJSON(c, http.StatusInternalServerError, gin.H{"error": "failed to get referrals"})
		return
	}

	out := make([]referralResponse, len(referrals))
	for i, ref := range referrals {
		out[i] = referralResponse{
			ID:       ref.ID,
			Balance:  ref.Balance,
			JoinedAt: ref.JoinedAt,
		}
	}

	writeJSON(c, http.StatusOK, out)
}
