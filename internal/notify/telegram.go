package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"chypto_bot/internal/metrics"
	"chypto_bot/internal/model"
	"chypto_bot/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the part of *tgbotapi.BotAPI used to deliver messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramNotifier struct {
	sender Sender
	wg     sync.WaitGroup
}

func NewTelegramNotifier(sender Sender) *TelegramNotifier {
	return &TelegramNotifier{sender: sender}
}

// Notify delivers in the background. Failures are logged and counted only; they
// never touch ledger state.
func (n *TelegramNotifier) Notify(_ context.Context, chatAddress string, kind model.MessageKind, params map[string]string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(chatAddress, kind, params)
	}()
}

// Wait blocks until all pending notifications finished.
func (n *TelegramNotifier) Wait() {
	n.wg.Wait()
}

func (n *TelegramNotifier) deliver(chatAddress string, kind model.MessageKind, params map[string]string) {
	log := logger.Logger().With(
		zap.String("chat_address", chatAddress),
		zap.String("kind", string(kind)))

	msg, err := NewMessage(chatAddress, kind, params)
	if err != nil {
		log.Error("failed to build notification", zap.Error(err))
		metrics.Notification("invalid")
		return
	}

	if _, err := n.sender.Send(msg); err != nil {
		log.Error("failed to deliver notification", zap.Error(err))
		metrics.Notification("failed")
		return
	}

	metrics.Notification("sent")
}

func NewMessage(chatAddress string, kind model.MessageKind, params map[string]string) (tgbotapi.MessageConfig, error) {
	chatID, err := ParseChatID(chatAddress)
	if err != nil {
		return tgbotapi.MessageConfig{}, err
	}

	switch kind {
	case model.MessageReferralUsed:
		text := "🎉 A Sign Up used your referral!"
		if reward := params["reward"]; reward != "" {
			text += fmt.Sprintf(" You earned %s points.", reward)
		}
		return tgbotapi.NewMessage(chatID, text), nil
	default:
		return tgbotapi.MessageConfig{}, fmt.Errorf("unknown message kind %q", kind)
	}
}

func ParseChatID(chatAddress string) (int64, error) {
	chatID, err := strconv.ParseInt(chatAddress, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat address %q: %w", chatAddress, err)
	}
	return chatID, nil
}
