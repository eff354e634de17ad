package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-forwarder/internal/forwarder"
)

// Sink copies messages with the forwarding bot
type Sink struct {
	bot *tgbotapi.BotAPI
}

// NewSink creates a sink that copies through bot
func NewSink(bot *tgbotapi.BotAPI) *Sink {
	return &Sink{bot: bot}
}

// Copy sends a copy of the event's message to destination without a
// forward header
func (s *Sink) Copy(ctx context.Context, evt forwarder.Event, destination int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := tgbotapi.NewCopyMessage(destination, evt.ChatID, evt.MessageID)
	if _, err := s.bot.CopyMessage(cfg); err != nil {
		return translateError(err)
	}
	return nil
}

// translateError turns a "retry after" answer into a RateLimitedError
func translateError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return &forwarder.RateLimitedError{
			RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
			Err:        err,
		}
	}
	return fmt.Errorf("failed to copy message: %w", err)
}
