package bot

import (
	"context"
	"errors"
	"strconv"
	"time"

	"chypto_bot/internal/dedup"
	"chypto_bot/internal/metrics"
	"chypto_bot/internal/model"
	"chypto_bot/internal/notify"
	"chypto_bot/internal/service"
	"chypto_bot/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultUpdateTimeout bounds the store and dedup calls made for one update.
const DefaultUpdateTimeout = 30 * time.Second

type Notifier interface {
	Notify(ctx context.Context, chatAddress string, kind model.MessageKind, params map[string]string)
}

type Handler struct {
	sender   notify.Sender
	ledger   service.LedgerServiceI
	notifier Notifier
	dedup    dedup.Deduplicator
	links    Links
	timeout  time.Duration
}

func NewHandler(sender notify.Sender, ledger service.LedgerServiceI, notifier Notifier, d dedup.Deduplicator, links Links, timeout time.Duration) *Handler {
	if d == nil {
		d = dedup.NewMemory(dedup.DefaultTTL)
	}
	if timeout <= 0 {
		timeout = DefaultUpdateTimeout
	}
	return &Handler{
		sender:   sender,
		ledger:   ledger,
		notifier: notifier,
		dedup:    d,
		links:    links.withDefaults(),
		timeout:  timeout,
	}
}

// HandleUpdate processes one update within the handler timeout. An expired deadline
// surfaces as a transient store error and the user is asked to try again.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	log := logger.Logger().With(
		zap.String("request_id", uuid.NewString()),
		zap.Int("update_id", upd.UpdateID))

	first, err := h.dedup.FirstSeen(ctx, strconv.Itoa(upd.UpdateID))
	if err != nil {
		// the ledger is idempotent, so a broken dedup store only risks repeated replies
		log.Warn("failed to check update delivery", zap.Error(err))
	} else if !first {
		log.Info("duplicate update dropped")
		metrics.Update("duplicate")
		return
	}

	msg := upd.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || !msg.IsCommand() || msg.Command() != "start" {
		metrics.Update("ignored")
		return
	}

	metrics.Update("start")
	h.handleStart(ctx, log, msg)
}

func (h *Handler) handleStart(ctx context.Context, log *zap.Logger, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := strconv.FormatInt(msg.From.ID, 10)
	chatAddress := strconv.FormatInt(chatID, 10)
	payload := msg.CommandArguments()

	log = log.With(zap.String("user_id", userID))

	h.send(log, tgbotapi.NewMessage(chatID, textPleaseWait))

	outcome, err := h.ledger.ProcessStart(ctx, userID, chatAddress, payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			log.Warn("rejected start command", zap.Error(err))
		case errors.Is(err, service.ErrInvariantViolation):
			log.Error("ledger invariant violated", zap.Error(err))
		default:
			log.Error("failed to process start command", zap.Error(err))
		}
		h.send(log, tgbotapi.NewMessage(chatID, textTryAgain))
		return
	}

	switch outcome.Kind {
	case model.OutcomeAlreadyReferred:
		h.send(log, tgbotapi.NewMessage(chatID, textAlreadyReferred))
		return
	case model.OutcomeInvalidReferrer:
		h.send(log, tgbotapi.NewMessage(chatID, textInvalidReferrer))
	case model.OutcomeReferralApplied:
		h.send(log, tgbotapi.NewMessage(chatID, textPointsReceived))
	}

	h.send(log, welcomeMessage(chatID, outcome.ReferralLink, h.links))

	if n := outcome.Notification; n != nil && h.notifier != nil {
		h.notifier.Notify(ctx, n.ChatAddress, n.Kind, n.Params)
	}
}

func (h *Handler) send(log *zap.Logger, c tgbotapi.Chattable) {
	if _, err := h.sender.Send(c); err != nil {
		log.Error("failed to send message", zap.Error(err))
	}
}
