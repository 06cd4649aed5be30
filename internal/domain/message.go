// Package domain holds the message and channel types shared by the relay,
// the router and the platform adapters.
package domain

import (
	"errors"
	"time"
)

// ErrEditUnsupported is returned by channels that cannot edit sent messages.
var ErrEditUnsupported = errors.New("channel does not support edits")

// ChatType classifies the conversation context.
type ChatType string

const (
	ChatTypeDM    ChatType = "dm"
	ChatTypeGroup ChatType = "group"
)

// Attachment represents a file or media attachment on a message.
type Attachment struct {
	ID       string `json:"id,omitempty"`
	URL      string `json:"url,omitempty"`
	Path     string `json:"path,omitempty"` // local file, e.g. a GIF
	MimeType string `json:"mimeType,omitempty"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// InboundMessage is a message received from a channel.
type InboundMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	From      string    `json:"from"`
	FromName  string    `json:"fromName,omitempty"`
	ChatID    string    `json:"chatId"`
	ChatType  ChatType  `json:"chatType"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	ReplyToID string    `json:"replyToId,omitempty"`
	Raw       any       `json:"-"`
}

// OutboundMessage is a message to be sent via a channel.
type OutboundMessage struct {
	ChannelID string       `json:"channelId"`
	To        string       `json:"to"`
	Body      string       `json:"body"`
	ReplyToID string       `json:"replyToId,omitempty"`
	Media     []Attachment `json:"media,omitempty"`
}
