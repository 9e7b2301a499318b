package bot

import (
	"context"
	"sync"

	"chypto_bot/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateSource is the long-polling part of *tgbotapi.BotAPI.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// RunPolling handles every update on its own goroutine and returns once ctx is done
// and in-flight updates finished.
func (h *Handler) RunPolling(ctx context.Context, source UpdateSource) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := source.GetUpdatesChan(updateConfig)
	logger.Logger().Info("Polling for updates")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.HandleUpdate(ctx, update)
			}()

		case <-ctx.Done():
			source.StopReceivingUpdates()
			return
		}
	}
}
