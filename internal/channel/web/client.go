package web

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/chatrelay/internal/logging"
)

// errClientClosed is returned when writing to a connection that was closed.
var errClientClosed = errors.New("web: client closed")

const writeWait = 10 * time.Second

// client is one browser tab connected to a chat.
type client struct {
	id          string
	user        string
	name        string
	chat        string
	conn        *websocket.Conn
	connectedAt time.Time

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn, user, name, chat string) *client {
	return &client{
		id:          uuid.New().String(),
		user:        user,
		name:        name,
		chat:        chat,
		conn:        conn,
		connectedAt: time.Now(),
	}
}

// send writes one frame. Safe for concurrent use.
func (c *client) send(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}

func (c *client) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// clientRegistry tracks connected clients by connection ID.
type clientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*client
	log     *logging.Logger
}

func newClientRegistry(log *logging.Logger) *clientRegistry {
	return &clientRegistry{
		clients: make(map[string]*client),
		log:     log,
	}
}

func (r *clientRegistry) add(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.id] = c
	r.log.Info().Str("connId", c.id).Str("user", c.user).Str("chat", c.chat).Msg("client connected")
}

func (r *clientRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
	r.log.Info().Str("connId", id).Msg("client disconnected")
}

func (r *clientRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// deliver sends f to every client in chat except skip and returns how
// many clients received it.
func (r *clientRegistry) deliver(chat string, f frame, skip string) int {
	r.mu.RLock()
	targets := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		if c.chat == chat && c.id != skip {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	n := 0
	for _, c := range targets {
		if err := c.send(f); err != nil {
			r.log.Warn().Err(err).Str("connId", c.id).Msg("deliver failed")
			continue
		}
		n++
	}
	return n
}

func (r *clientRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.close()
		delete(r.clients, id)
	}
}
