package domain

import "context"

// ChannelCapabilities describes what a channel implementation supports.
type ChannelCapabilities struct {
	ChatTypes []ChatType `json:"chatTypes"`
	Media     bool       `json:"media,omitempty"`
	Edit      bool       `json:"edit,omitempty"`
	Typing    bool       `json:"typing,omitempty"`

	// MaxMessageLen is the longest body one message may carry; 0 means no limit.
	MaxMessageLen int `json:"maxMessageLen,omitempty"`
}

// ChannelStatus reports the runtime state of a channel.
type ChannelStatus struct {
	ChannelID string `json:"channelId"`
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// MessageRef identifies a message the channel already delivered, so it
// can be edited later.
type MessageRef struct {
	ChannelID string `json:"channelId"`
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}

// Channel is the interface that all messaging channel implementations must satisfy.
type Channel interface {
	// ID returns the channel identifier (e.g., "irc", "web").
	ID() string

	// Capabilities returns what this channel supports.
	Capabilities() ChannelCapabilities

	// Start connects the channel and begins listening for messages.
	Start(ctx context.Context) error

	// Stop gracefully disconnects the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message and returns a handle to it.
	Send(ctx context.Context, msg OutboundMessage) (MessageRef, error)

	// Edit replaces the body of a previously sent message. Channels without
	// the Edit capability return ErrEditUnsupported.
	Edit(ctx context.Context, ref MessageRef, body string) error

	// Typing shows a short-lived typing indicator in a chat. Channels that
	// cannot show one return nil.
	Typing(ctx context.Context, chatID string) error

	// OnMessage registers a handler for inbound messages.
	OnMessage(handler func(msg InboundMessage))
}
