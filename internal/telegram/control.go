package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"telegram-forwarder/internal/command"
)

// ControlBot receives administrator commands and answers them
type ControlBot struct {
	bot         *tgbotapi.BotAPI
	dispatcher  *command.Dispatcher
	adminID     int64
	pollTimeout int
}

// NewControlBot creates the control bot
func NewControlBot(bot *tgbotapi.BotAPI, dispatcher *command.Dispatcher, adminID int64, pollTimeout int) *ControlBot {
	return &ControlBot{
		bot:         bot,
		dispatcher:  dispatcher,
		adminID:     adminID,
		pollTimeout: pollTimeout,
	}
}

// Run serves commands until ctx is cancelled or polling is rejected
func (c *ControlBot) Run(ctx context.Context) error {
	logrus.Info("Control bot is listening for commands")
	err := pollUpdates(ctx, c.bot, c.pollTimeout, func(update tgbotapi.Update) error {
		if update.Message != nil {
			c.handle(ctx, update.Message)
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *ControlBot) handle(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	cmd, ok := command.Parse(msg.Text, msg.From.ID)
	if !ok {
		return
	}

	reply, err := c.dispatcher.Execute(ctx, cmd)
	if errors.Is(err, command.ErrUnauthorized) || reply == "" {
		return
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, reply)
	out.ReplyToMessageID = msg.MessageID
	if _, err := c.bot.Send(out); err != nil {
		logrus.WithError(err).WithField("command", cmd.Name).Error("Failed to send command reply")
	}
}

// Notify sends text to the administrator's private chat
func (c *ControlBot) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.bot.Send(tgbotapi.NewMessage(c.adminID, text)); err != nil {
		return fmt.Errorf("failed to notify administrator: %w", err)
	}
	return nil
}
