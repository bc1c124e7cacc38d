package websocket

import (
	"context"
	"sync"
	"time"

	"garage-backend/internal/services"
	"garage-backend/internal/watch"

	"github.com/gorilla/websocket"
)

// Subscriber opens live queries on behalf of a connected client.
type Subscriber interface {
	Subscribe(ctx context.Context, actor services.Actor, view services.View, key string, deliver func(interface{}, error)) (*watch.Subscription, error)
}

// ClientMessage is what a client sends.
type ClientMessage struct {
	Type string        `json:"type"`
	View services.View `json:"view,omitempty"`
	Key  string        `json:"key,omitempty"`
}

// ServerMessage is what the server pushes to a client.
type ServerMessage struct {
	Type      string        `json:"type"`
	View      services.View `json:"view,omitempty"`
	Key       string        `json:"key,omitempty"`
	Data      interface{}   `json:"data,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Client is one connection and the live queries it holds, at most one per view.
type Client struct {
	ID       string
	Conn     *websocket.Conn
	Actor    services.Actor
	Send     chan ServerMessage
	LastPing time.Time
	IsActive bool

	subsMu sync.Mutex
	subs   map[services.View]*watch.Subscription

	sendMu     sync.Mutex
	closed     bool
	onOverflow func()
}

// WebSocketManager defines the contract for live-query connections.
type WebSocketManager interface {
	RegisterClient(conn *websocket.Conn, actor services.Actor) (string, error)
	UnregisterClient(clientID string) error
	GetConnectedClients() int
	Start() error
	Stop() error
	GetClientStats() ClientStats
}

type ClientStats struct {
	TotalClients    int `json:"totalClients"`
	ActiveClients   int `json:"activeClients"`
	InactiveClients int `json:"inactiveClients"`
	Subscriptions   int `json:"subscriptions"`
}

const (
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypeSnapshot     = "snapshot"
	MessageTypeUnsubscribed = "unsubscribed"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
)
