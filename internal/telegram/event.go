package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-forwarder/internal/forwarder"
)

// inboundMessage returns the message an update carries for forwarding, or
// nil. Channel posts count; edits do not.
func inboundMessage(update tgbotapi.Update) *tgbotapi.Message {
	switch {
	case update.Message != nil:
		return update.Message
	case update.ChannelPost != nil:
		return update.ChannelPost
	default:
		return nil
	}
}

// eventFromMessage classifies msg for the forwarding engine
func eventFromMessage(msg *tgbotapi.Message) forwarder.Event {
	return forwarder.Event{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Service:   isServiceMessage(msg),
	}
}

// isServiceMessage reports platform notifications that carry no user content
func isServiceMessage(msg *tgbotapi.Message) bool {
	return len(msg.NewChatMembers) > 0 ||
		msg.LeftChatMember != nil ||
		msg.NewChatTitle != "" ||
		len(msg.NewChatPhoto) > 0 ||
		msg.DeleteChatPhoto ||
		msg.GroupChatCreated ||
		msg.SuperGroupChatCreated ||
		msg.ChannelChatCreated ||
		msg.MigrateToChatID != 0 ||
		msg.MigrateFromChatID != 0 ||
		msg.PinnedMessage != nil
}
