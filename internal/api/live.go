package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sanicball-project/sanicrelay/internal/events"
)

const liveWriteTimeout = 5 * time.Second

// LiveMessage is one relay event pushed to spectators.
type LiveMessage struct {
	Type    events.EventType `json:"type"`
	Time    time.Time        `json:"time"`
	Payload interface{}      `json:"payload,omitempty"`
}

// LiveFeed streams relay events to websocket spectators.
type LiveFeed struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]bool
	writeMu  sync.Mutex // one writer per connection at a time
	upgrader websocket.Upgrader
}

// NewLiveFeed creates an empty feed.
func NewLiveFeed() *LiveFeed {
	return &LiveFeed{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Subscribe forwards every event except dropped datagrams to the feed.
func (f *LiveFeed) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventAny, "api.live", func(ctx context.Context, e events.Event) error {
		if e.Type == events.EventDecodeError {
			return nil
		}
		f.Broadcast(LiveMessage{Type: e.Type, Time: e.Time, Payload: e.Payload})
		return nil
	})
}

// Handle upgrades the request and holds the connection until the spectator leaves.
func (f *LiveFeed) Handle(c *gin.Context) {
	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Msg("live feed upgrade failed")
		return
	}

	f.mu.Lock()
	f.clients[conn] = true
	f.mu.Unlock()
	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("live feed spectator connected")

	// Spectators never send anything; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	f.remove(conn)
}

// Broadcast sends msg to every spectator, dropping those that fail.
func (f *LiveFeed) Broadcast(msg LiveMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Str("type", string(msg.Type)).Msg("failed to encode live message")
		return
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(f.clients))
	for client := range f.clients {
		clients = append(clients, client)
	}
	f.mu.RUnlock()

	for _, client := range clients {
		client.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			f.remove(client)
		}
	}
}

func (f *LiveFeed) remove(conn *websocket.Conn) {
	f.mu.Lock()
	delete(f.clients, conn)
	f.mu.Unlock()
	conn.Close()
}

// ClientCount returns the number of connected spectators.
func (f *LiveFeed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// Close disconnects every spectator.
func (f *LiveFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for client := range f.clients {
		client.Close()
		delete(f.clients, client)
	}
}
