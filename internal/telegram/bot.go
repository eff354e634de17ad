// Package telegram connects the control and forwarding identities to the
// Telegram Bot API.
package telegram

import (
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Options configures Bot API access
type Options struct {
	// Endpoint is a format string taking the token and method name.
	// Empty means the public Bot API.
	Endpoint    string
	PollTimeout int
	Debug       bool
}

var loggerOnce sync.Once

// Connect authenticates token against the Bot API
func Connect(token string, opts Options) (*tgbotapi.BotAPI, error) {
	loggerOnce.Do(func() {
		if err := tgbotapi.SetLogger(logrus.StandardLogger()); err != nil {
			logrus.WithError(err).Warn("Failed to route Telegram client logs")
		}
	})

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate bot: %w", err)
	}
	bot.Debug = opts.Debug

	logrus.WithFields(logrus.Fields{
		"bot_id":   bot.Self.ID,
		"username": bot.Self.UserName,
	}).Info("Connected to Telegram")
	return bot, nil
}

func newUpdateConfig(timeout int) tgbotapi.UpdateConfig {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeout
	return u
}
