package routing

import "github.com/soyeahso/chatrelay/internal/domain"

// UserKey identifies the sender of msg across channels. Conversation state
// and progress are both keyed by it, so the same nick on IRC and the web
// channel are different users.
func UserKey(msg domain.InboundMessage) string {
	return msg.ChannelID + ":" + msg.From
}

// displayName is how the bot addresses the sender in replies.
func displayName(msg domain.InboundMessage) string {
	if msg.FromName != "" {
		return msg.FromName
	}
	return msg.From
}

// replyTarget determines where to send the response.
func replyTarget(msg domain.InboundMessage) string {
	if msg.ChatType == domain.ChatTypeDM {
		return msg.From
	}
	return msg.ChatID
}
