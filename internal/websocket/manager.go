package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"garage-backend/internal/repository"
	"garage-backend/internal/services"
	"garage-backend/internal/watch"
	"garage-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 64
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
	staleAfter   = 90 * time.Second
)

// Manager tracks connected clients and the live queries each one holds.
type Manager struct {
	live       Subscriber
	log        *logger.Logger
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	upgrader   websocket.Upgrader
	done       chan struct{}
	stopOnce   sync.Once
}

// NewManager accepts connections whose Origin is in allowedOrigins. An empty
// list or "*" accepts any origin.
func NewManager(live Subscriber, allowedOrigins []string, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Discard()
	}
	return &Manager{
		live:       live,
		log:        log.WithField("component", "websocket"),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		done: make(chan struct{}),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func (m *Manager) Start() error {
	go m.run()
	m.log.Info("WebSocket manager started")
	return nil
}

// Stop releases every live query and closes every connection.
func (m *Manager) Stop() error {
	m.stopOnce.Do(func() {
		close(m.done)

		m.mutex.Lock()
		for id, client := range m.clients {
			delete(m.clients, id)
			m.release(client)
		}
		m.mutex.Unlock()

		m.log.Info("WebSocket manager stopped")
	})
	return nil
}

func (m *Manager) run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-m.register:
			m.mutex.Lock()
			m.clients[client.ID] = client
			m.mutex.Unlock()
			m.log.WithUserID(client.Actor.UserID).WithField("client_id", client.ID).Info("Client connected")
			go m.handleClient(client)

		case client := <-m.unregister:
			m.mutex.Lock()
			if _, ok := m.clients[client.ID]; ok {
				delete(m.clients, client.ID)
				m.release(client)
				m.log.WithField("client_id", client.ID).Info("Client disconnected")
			}
			m.mutex.Unlock()

		case <-ticker.C:
			m.healthCheck()

		case <-m.done:
			return
		}
	}
}

// RegisterClient takes ownership of conn and returns the new client id.
func (m *Manager) RegisterClient(conn *websocket.Conn, actor services.Actor) (string, error) {
	client := m.newClient(conn, actor, sendBuffer)

	select {
	case m.register <- client:
		return client.ID, nil
	case <-m.done:
		return "", errors.New("websocket manager stopped")
	}
}

// newClient builds a client whose queue overflow disconnects it.
func (m *Manager) newClient(conn *websocket.Conn, actor services.Actor, buffer int) *Client {
	client := &Client{
		ID:       uuid.NewString(),
		Conn:     conn,
		Actor:    actor,
		Send:     make(chan ServerMessage, buffer),
		LastPing: time.Now(),
		IsActive: true,
		subs:     make(map[services.View]*watch.Subscription),
	}
	client.onOverflow = func() {
		m.log.WithUserID(actor.UserID).WithField("client_id", client.ID).Warn("Client send queue full, disconnecting")
		m.drop(client)
	}
	return client
}

func (m *Manager) UnregisterClient(clientID string) error {
	m.mutex.RLock()
	client, exists := m.clients[clientID]
	m.mutex.RUnlock()

	if exists {
		m.drop(client)
	}
	return nil
}

func (m *Manager) drop(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

func (m *Manager) GetConnectedClients() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

func (m *Manager) GetClientStats() ClientStats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stats := ClientStats{TotalClients: len(m.clients)}
	for _, client := range m.clients {
		if client.active() {
			stats.ActiveClients++
		} else {
			stats.InactiveClients++
		}
		stats.Subscriptions += client.subscriptionCount()
	}
	return stats
}

func (m *Manager) GetUpgrader() *websocket.Upgrader {
	return &m.upgrader
}

// release cancels the client's live queries before closing its channel so no
// snapshot is delivered to a closed connection. Callers hold m.mutex.
func (m *Manager) release(client *Client) {
	client.cancelAll()
	client.close()
	if client.Conn != nil {
		client.Conn.Close()
	}
}

func (m *Manager) handleClient(client *Client) {
	defer m.drop(client)

	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		m.mutex.Lock()
		client.LastPing = time.Now()
		m.mutex.Unlock()
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go m.writeMessages(client)

	for {
		var msg ClientMessage
		if err := client.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.log.WithField("client_id", client.ID).WithError(err).Warn("WebSocket read failed")
			}
			return
		}

		switch msg.Type {
		case MessageTypeSubscribe:
			m.subscribe(client, msg.View, msg.Key)
		case MessageTypeUnsubscribe:
			client.unsubscribe(msg.View)
			client.send(ServerMessage{Type: MessageTypeUnsubscribed, View: msg.View})
		case MessageTypePing:
			client.send(ServerMessage{Type: MessageTypePong})
		default:
			client.send(ServerMessage{Type: MessageTypeError, Error: "unknown message type " + msg.Type})
		}
	}
}

// subscribe replaces the client's query for view. The previous query is
// cancelled before the new one is opened.
func (m *Manager) subscribe(client *Client, view services.View, key string) {
	if !view.IsValid() {
		client.send(ServerMessage{Type: MessageTypeError, View: view, Key: key, Error: services.ErrUnknownView.Error()})
		return
	}
	if view.NeedsKey() && key == "" {
		client.send(ServerMessage{Type: MessageTypeError, View: view, Error: "key is required for this view"})
		return
	}
	client.unsubscribe(view)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub, err := m.live.Subscribe(ctx, client.Actor, view, key, func(data interface{}, err error) {
		if err != nil {
			m.log.WithField("client_id", client.ID).WithField("view", view).WithError(err).Warn("Live query failed")
			client.send(ServerMessage{Type: MessageTypeError, View: view, Key: key, Error: publicError(err)})
			return
		}
		client.send(ServerMessage{Type: MessageTypeSnapshot, View: view, Key: key, Data: data})
	})
	if err != nil {
		client.send(ServerMessage{Type: MessageTypeError, View: view, Key: key, Error: publicError(err)})
		return
	}

	if !client.hold(view, sub) {
		sub.Cancel()
	}
}

// publicError hides storage details from clients.
func publicError(err error) string {
	for _, known := range []error{
		services.ErrForbidden,
		services.ErrRoleNotAllowed,
		services.ErrUnknownView,
		repository.ErrVehicleNotFound,
		repository.ErrUserNotFound,
		repository.ErrInvalidID,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "failed to load data"
}

func (m *Manager) writeMessages(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			if err := client.Conn.WriteJSON(msg); err != nil {
				m.log.WithField("client_id", client.ID).WithError(err).Warn("WebSocket write failed")
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// healthCheck drops clients that stopped answering pings.
func (m *Manager) healthCheck() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	for id, client := range m.clients {
		if now.Sub(client.LastPing) > staleAfter {
			m.log.WithField("client_id", id).Warn("Client timed out")
			delete(m.clients, id)
			m.release(client)
		}
	}
}

// send queues msg without blocking. A full queue means the client cannot
// keep up: its queue is closed, so the writer sends a close frame, and the
// client is disconnected. It resubscribes on reconnect and gets fresh
// snapshots; a dropped snapshot is never silently the last one it sees.
func (c *Client) send(msg ServerMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- msg:
	default:
		c.IsActive = false
		c.closed = true
		close(c.Send)
		if c.onOverflow != nil {
			// Runs outside the caller, which may be a live query delivery.
			go c.onOverflow()
		}
	}
}

func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// hold stores sub as the query for view. It reports false when the client
// is already closed.
func (c *Client) hold(view services.View, sub *watch.Subscription) bool {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if c.subs == nil {
		return false
	}
	if prev := c.subs[view]; prev != nil {
		prev.Cancel()
	}
	c.subs[view] = sub
	return true
}

func (c *Client) unsubscribe(view services.View) {
	c.subsMu.Lock()
	sub := c.subs[view]
	delete(c.subs, view)
	c.subsMu.Unlock()
	sub.Cancel()
}

func (c *Client) cancelAll() {
	c.subsMu.Lock()
	subs := c.subs
	c.subs = nil
	c.subsMu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

func (c *Client) subscriptionCount() int {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	return len(c.subs)
}

func (c *Client) active() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.IsActive
}
