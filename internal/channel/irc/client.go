// Package irc implements the IRC messaging channel using the girc library.
package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/girc"
	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/domain"
	"github.com/soyeahso/chatrelay/internal/logging"
)

// maxLineBytes keeps each PRIVMSG well under the 512 byte protocol limit
// once the prefix is added by the server.
const maxLineBytes = 400

// capMessageTags gates client-only tags such as +typing.
const capMessageTags = "message-tags"

// Channel implements domain.Channel for IRC.
type Channel struct {
	cfg    config.IRCConfig
	client *girc.Client
	log    *logging.Logger

	mu      sync.RWMutex
	handler func(msg domain.InboundMessage)
	running bool
	lastErr string
}

// New creates an IRC channel from configuration.
func New(cfg config.IRCConfig, log *logging.Logger) *Channel {
	return &Channel{
		cfg: cfg,
		log: log.Sub("irc"),
	}
}

func (c *Channel) ID() string { return "irc" }

func (c *Channel) Capabilities() domain.ChannelCapabilities {
	return domain.ChannelCapabilities{
		ChatTypes:     []domain.ChatType{domain.ChatTypeDM, domain.ChatTypeGroup},
		Typing:        true,
		MaxMessageLen: maxLineBytes,
	}
}

func (c *Channel) OnMessage(handler func(msg domain.InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: "irc",
		Connected: c.connected(),
		Running:   c.running,
		LastError: c.lastErr,
	}
}

func (c *Channel) connected() bool {
	return c.client != nil && c.client.IsConnected()
}

// port returns the configured port or the protocol default.
func (c *Channel) port() int {
	switch {
	case c.cfg.Port != 0:
		return c.cfg.Port
	case c.cfg.UseTLS:
		return 6697
	default:
		return 6667
	}
}

func (c *Channel) gircConfig() girc.Config {
	cfg := girc.Config{
		Server:        c.cfg.Server,
		Port:          c.port(),
		Nick:          c.cfg.Nick,
		User:          c.cfg.Nick,
		Name:          "chatrelay",
		SSL:           c.cfg.UseTLS,
		Version:       "chatrelay",
		SupportedCaps: map[string][]string{capMessageTags: nil},
	}
	if c.cfg.UseTLS {
		cfg.TLSConfig = &tls.Config{ServerName: c.cfg.Server}
	}
	if c.cfg.SASL && c.cfg.Password != "" {
		cfg.SASL = &girc.SASLPlain{User: c.cfg.Nick, Pass: c.cfg.Password}
	} else if c.cfg.Password != "" {
		cfg.ServerPass = c.cfg.Password
	}
	return cfg
}

// Start connects to the IRC server and blocks until the connection ends
// or ctx is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	client := girc.New(c.gircConfig())
	c.registerHandlers(client)

	c.mu.Lock()
	c.client = client
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info().
		Str("server", c.cfg.Server).
		Int("port", c.port()).
		Str("nick", c.cfg.Nick).
		Strs("channels", c.cfg.Channels).
		Bool("tls", c.cfg.UseTLS).
		Msg("connecting to IRC")

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case err := <-errCh:
		c.mu.Lock()
		c.running = false
		if err != nil {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		<-errCh
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return nil
	}
}

// Stop gracefully disconnects from the IRC server.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected() {
		c.log.Info().Msg("disconnecting from IRC")
		c.client.Quit("chatrelay shutting down")
	}
	c.running = false
	return nil
}

// Send delivers a message to an IRC channel or user, one PRIVMSG per line.
// Attachments cannot be uploaded over IRC and are announced by file name.
func (c *Channel) Send(ctx context.Context, msg domain.OutboundMessage) (domain.MessageRef, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		return domain.MessageRef{}, fmt.Errorf("irc: not connected")
	}
	if msg.To == "" {
		return domain.MessageRef{}, fmt.Errorf("irc: no target specified")
	}

	lines := splitMessage(renderBody(msg), maxLineBytes)
	for _, line := range lines {
		client.Cmd.Message(msg.To, line)
	}

	c.log.Debug().
		Str("to", msg.To).
		Int("lines", len(lines)).
		Msg("sent IRC message")

	return domain.MessageRef{ChannelID: "irc", ChatID: msg.To, MessageID: uuid.New().String()}, nil
}

// Edit is not possible on IRC.
func (c *Channel) Edit(ctx context.Context, ref domain.MessageRef, body string) error {
	return domain.ErrEditUnsupported
}

// Typing sends an IRCv3 +typing client tag when the server negotiated
// message-tags, and does nothing otherwise.
func (c *Channel) Typing(ctx context.Context, chatID string) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil || !client.IsConnected() || !client.HasCapability(capMessageTags) {
		return nil
	}
	client.Send(typingEvent(chatID))
	return nil
}

func typingEvent(target string) *girc.Event {
	return &girc.Event{
		Command: "TAGMSG",
		Params:  []string{target},
		Tags:    girc.Tags{"+typing": "active"},
	}
}

func renderBody(msg domain.OutboundMessage) string {
	body := msg.Body
	for _, a := range msg.Media {
		name := a.Filename
		if a.URL != "" {
			name = a.URL
		}
		if name == "" {
			continue
		}
		if body != "" {
			body += "\n"
		}
		body += "[image: " + name + "]"
	}
	return body
}

// registerHandlers sets up all IRC event handlers.
func (c *Channel) registerHandlers(client *girc.Client) {
	client.Handlers.Add(girc.CONNECTED, c.onConnected)
	client.Handlers.Add(girc.PRIVMSG, c.onPrivmsg)
	client.Handlers.Add(girc.DISCONNECTED, c.onDisconnected)
}

func (c *Channel) onConnected(client *girc.Client, e girc.Event) {
	c.log.Info().
		Str("nick", client.GetNick()).
		Bool("messageTags", client.HasCapability(capMessageTags)).
		Msg("connected to IRC")

	for _, ch := range c.cfg.Channels {
		c.log.Info().Str("channel", ch).Msg("joining channel")
		client.Cmd.Join(ch)
	}
}

func (c *Channel) onPrivmsg(client *girc.Client, e girc.Event) {
	msg, ok := inboundFromEvent(e, client.GetNick())
	if !ok {
		return
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler != nil {
		handler(msg)
	}
}

// inboundFromEvent converts a PRIVMSG into an InboundMessage. Messages from
// the bot itself and CTCP requests other than ACTION are dropped.
func inboundFromEvent(e girc.Event, self string) (domain.InboundMessage, bool) {
	if e.Source == nil || len(e.Params) == 0 || strings.EqualFold(e.Source.Name, self) {
		return domain.InboundMessage{}, false
	}

	body := e.Last()
	if e.IsAction() {
		body = e.StripAction()
	} else if strings.HasPrefix(body, "\x01") {
		return domain.InboundMessage{}, false
	}

	msg := domain.InboundMessage{
		ID:        uuid.New().String(),
		ChannelID: "irc",
		From:      e.Source.Name,
		FromName:  e.Source.Name,
		ChatID:    e.Params[0],
		ChatType:  domain.ChatTypeGroup,
		Body:      body,
		Timestamp: time.Now(),
		Raw:       e,
	}
	if !e.IsFromChannel() {
		msg.ChatType = domain.ChatTypeDM
		msg.ChatID = e.Source.Name
	}
	return msg, true
}

func (c *Channel) onDisconnected(_ *girc.Client, e girc.Event) {
	c.log.Warn().Msg("disconnected from IRC")
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// splitMessage breaks text into PRIVMSG-sized lines. IRC has no embedded
// newlines, so each input line is sent separately; blank lines are dropped
// and long lines are cut at the last space that fits.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \r")
		for len(line) > maxLen {
			cut := strings.LastIndex(line[:maxLen], " ")
			if cut <= 0 {
				cut = maxLen
			}
			chunks = append(chunks, line[:cut])
			line = strings.TrimLeft(line[cut:], " ")
		}
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	return chunks
}
