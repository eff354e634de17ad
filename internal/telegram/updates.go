package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// ErrPollRejected means the Bot API refused to deliver updates to the bot,
// usually because the token was revoked or another poller took over
var ErrPollRejected = errors.New("telegram rejected update polling")

var pollRetryDelay = 3 * time.Second

// pollUpdates long-polls getUpdates and passes every update to handle in
// arrival order. Transient failures are retried after pollRetryDelay;
// rejections end the loop with ErrPollRejected.
func pollUpdates(ctx context.Context, bot *tgbotapi.BotAPI, timeout int, handle func(tgbotapi.Update) error) error {
	cfg := newUpdateConfig(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := bot.GetUpdates(cfg)
		if err != nil {
			if pollRejected(err) {
				return fmt.Errorf("%w: %w", ErrPollRejected, err)
			}
			logrus.WithError(err).WithField("bot", bot.Self.UserName).
				Warnf("Failed to get updates, retrying in %s", pollRetryDelay)
			timer := time.NewTimer(pollRetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= cfg.Offset {
				cfg.Offset = update.UpdateID + 1
			}
			if err := handle(update); err != nil {
				return err
			}
		}
	}
}

func pollRejected(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict:
		return true
	default:
		return false
	}
}
