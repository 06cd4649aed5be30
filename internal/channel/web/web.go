// Package web implements a browser chat channel: clients connect over a
// websocket, join a room, and exchange JSON frames with the relay.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/domain"
	"github.com/soyeahso/chatrelay/internal/logging"
)

const (
	channelID     = "web"
	maxFrameBytes = 64 * 1024
)

// Frame types exchanged over the socket.
const (
	FrameMessage = "message"
	FrameEdit    = "edit"
	FrameTyping  = "typing"
	FramePing    = "ping"
	FramePong    = "pong"
	FrameError   = "error"
)

// frame is the JSON envelope for every websocket message in both directions.
type frame struct {
	Type    string  `json:"type"`
	ID      string  `json:"id,omitempty"`
	Chat    string  `json:"chat,omitempty"`
	From    string  `json:"from,omitempty"`
	Name    string  `json:"name,omitempty"`
	Text    string  `json:"text,omitempty"`
	ReplyTo string  `json:"replyTo,omitempty"`
	Media   []media `json:"media,omitempty"`
	Error   string  `json:"error,omitempty"`
}

type media struct {
	Filename string `json:"filename"`
	URL      string `json:"url,omitempty"`
}

// Option configures a Channel.
type Option func(*Channel)

// WithRoles exposes the persona names on GET /roles.
func WithRoles(names func() []string) Option {
	return func(c *Channel) { c.roles = names }
}

// WithMediaRoot serves files beneath dir on /media/ so attachments
// under it can be linked from frames.
func WithMediaRoot(dir string) Option {
	return func(c *Channel) { c.mediaRoot = dir }
}

// Channel implements domain.Channel for websocket clients.
type Channel struct {
	cfg       config.WebConfig
	token     string
	log       *logging.Logger
	upgrader  websocket.Upgrader
	clients   *clientRegistry
	limiter   *failureLimiter
	roles     func() []string
	mediaRoot string

	mu      sync.RWMutex
	handler func(msg domain.InboundMessage)
	server  *http.Server
	addr    string
	running bool
	lastErr string
}

// New creates a web channel. The token falls back to CHATRELAY_WEB_TOKEN.
func New(cfg config.WebConfig, log *logging.Logger, opts ...Option) *Channel {
	c := &Channel{
		cfg:     cfg,
		token:   cfg.Token,
		log:     log.Sub("web"),
		limiter: newFailureLimiter(),
	}
	if c.token == "" {
		c.token = os.Getenv("CHATRELAY_WEB_TOKEN")
	}
	c.clients = newClientRegistry(c.log)
	c.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) ID() string { return channelID }

func (c *Channel) Capabilities() domain.ChannelCapabilities {
	return domain.ChannelCapabilities{
		ChatTypes: []domain.ChatType{domain.ChatTypeDM, domain.ChatTypeGroup},
		Media:     true,
		Edit:      true,
		Typing:    true,
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
		ChannelID: channelID,
		Connected: c.running,
		Running:   c.running,
		LastError: c.lastErr,
	}
}

// Addr returns the bound listen address once Start has begun serving.
func (c *Channel) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.addr
}

// Handler builds the HTTP routes: /health, /roles, /ws and optionally /media/.
func (c *Channel) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(c.log))
	r.Use(middleware.Recoverer)
	r.Use(cors(c.cfg.AllowedOrigins))

	r.Get("/health", c.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(requireToken(c.token, c.limiter, c.log))
		r.Get("/roles", c.handleRoles)
		r.Get("/ws", c.handleWebSocket)
		if c.mediaRoot != "" {
			r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(c.mediaRoot))))
		}
	})
	return r
}

// Start serves HTTP on the configured address and blocks until ctx is
// cancelled or the server fails.
func (c *Channel) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", c.cfg.Addr)
	if err != nil {
		c.setErr(err)
		return fmt.Errorf("web: listen on %s: %w", c.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	c.mu.Lock()
	c.server = srv
	c.addr = ln.Addr().String()
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	if c.token == "" {
		c.log.Warn().Msg("no token configured, the web channel accepts anyone")
	}
	c.log.Info().Str("addr", ln.Addr().String()).Msg("web channel listening")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		c.markStopped()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.setErr(err)
			return fmt.Errorf("web: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		c.shutdown()
		<-errCh
		return nil
	}
}

// Stop closes every client and shuts the server down.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.RLock()
	running := c.running
	c.mu.RUnlock()
	if !running {
		return nil
	}
	c.shutdown()
	return nil
}

func (c *Channel) shutdown() {
	c.mu.RLock()
	srv := c.server
	c.mu.RUnlock()

	c.log.Info().Msg("shutting down web channel")
	// Hijacked websocket connections are not closed by Shutdown.
	c.clients.closeAll()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			c.log.Warn().Err(err).Msg("web shutdown")
		}
	}
	c.markStopped()
}

func (c *Channel) markStopped() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func (c *Channel) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}

// Send delivers a message frame to every client in msg.To.
func (c *Channel) Send(ctx context.Context, msg domain.OutboundMessage) (domain.MessageRef, error) {
	if msg.To == "" {
		return domain.MessageRef{}, fmt.Errorf("web: no target specified")
	}
	id := uuid.New().String()
	n := c.clients.deliver(msg.To, frame{
		Type:    FrameMessage,
		ID:      id,
		Chat:    msg.To,
		Text:    msg.Body,
		ReplyTo: msg.ReplyToID,
		Media:   c.renderMedia(msg.Media),
	}, "")

	c.log.Debug().Str("to", msg.To).Int("clients", n).Msg("sent web message")
	return domain.MessageRef{ChannelID: channelID, ChatID: msg.To, MessageID: id}, nil
}

// Edit replaces the text of a message previously sent to ref.ChatID.
func (c *Channel) Edit(ctx context.Context, ref domain.MessageRef, body string) error {
	if ref.MessageID == "" {
		return fmt.Errorf("web: edit without message id")
	}
	c.clients.deliver(ref.ChatID, frame{Type: FrameEdit, ID: ref.MessageID, Chat: ref.ChatID, Text: body}, "")
	return nil
}

// Typing tells the chat's clients the bot is composing a reply.
func (c *Channel) Typing(ctx context.Context, chatID string) error {
	c.clients.deliver(chatID, frame{Type: FrameTyping, Chat: chatID}, "")
	return nil
}

func (c *Channel) renderMedia(items []domain.Attachment) []media {
	if len(items) == 0 {
		return nil
	}
	out := make([]media, 0, len(items))
	for _, a := range items {
		m := media{Filename: a.Filename, URL: a.URL}
		if m.Filename == "" {
			m.Filename = filepath.Base(a.Path)
		}
		if m.URL == "" && c.mediaRoot != "" && a.Path != "" {
			if rel, err := filepath.Rel(c.mediaRoot, a.Path); err == nil && !strings.HasPrefix(rel, "..") {
				m.URL = "/media/" + filepath.ToSlash(rel)
			}
		}
		out = append(out, m)
	}
	return out
}

func (c *Channel) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": c.clients.count(),
	})
}

func (c *Channel) handleRoles(w http.ResponseWriter, r *http.Request) {
	var names []string
	if c.roles != nil {
		names = c.roles()
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": names})
}

// handleWebSocket upgrades the request and runs the client's read loop.
// Query parameters: user (required), name, room. A client without a room
// is a direct conversation keyed by its user ID.
func (c *Channel) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user := strings.TrimSpace(q.Get("user"))
	if user == "" {
		http.Error(w, "user is required", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(q.Get("name"))
	room := strings.TrimSpace(q.Get("room"))

	chatType := domain.ChatTypeGroup
	chat := room
	if room == "" {
		chatType, chat = domain.ChatTypeDM, user
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	cl := newClient(conn, user, name, chat)
	c.clients.add(cl)
	defer func() {
		c.clients.remove(cl.id)
		cl.close()
	}()

	c.readLoop(cl, chatType)
}

func (c *Channel) readLoop(cl *client, chatType domain.ChatType) {
	for {
		var in frame
		if err := cl.conn.ReadJSON(&in); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				cl.send(frame{Type: FrameError, Error: "invalid frame"})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Str("connId", cl.id).Msg("websocket read")
			}
			return
		}

		switch in.Type {
		case FramePing:
			cl.send(frame{Type: FramePong})
		case FrameMessage:
			text := strings.TrimSpace(in.Text)
			if text == "" {
				continue
			}
			msg := domain.InboundMessage{
				ID:        uuid.New().String(),
				ChannelID: channelID,
				From:      cl.user,
				FromName:  cl.name,
				ChatID:    cl.chat,
				ChatType:  chatType,
				Body:      text,
				Timestamp: time.Now(),
			}
			// Other people in the room see the message too.
			if chatType == domain.ChatTypeGroup {
				c.clients.deliver(cl.chat, frame{Type: FrameMessage, ID: msg.ID, Chat: cl.chat, From: cl.user, Name: cl.name, Text: text}, cl.id)
			}
			c.dispatch(msg)
		default:
			cl.send(frame{Type: FrameError, Error: fmt.Sprintf("unknown frame type %q", in.Type)})
		}
	}
}

func (c *Channel) dispatch(msg domain.InboundMessage) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h != nil {
		h(msg)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
