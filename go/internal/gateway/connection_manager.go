package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/mcdev12/arena/go/internal/workspace"
	"github.com/rs/zerolog/log"
)

// Streamer provides the update stream of a session workspace
type Streamer interface {
	Subscribe(ctx context.Context, key models.SessionKey) (*workspace.Subscription, error)
}

// ConnectionManager manages the countdown websocket connections
type ConnectionManager struct {
	streamer Streamer

	connections map[models.SessionKey]map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// Connection is one participant UI connected to its session stream
type Connection struct {
	ID      string
	Key     models.SessionKey
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	sub       *workspace.Subscription
	quit      chan struct{}
	closeOnce sync.Once

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for websocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default websocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  512,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new ConnectionManager
func NewConnectionManager(streamer Streamer, config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		streamer:    streamer,
		connections: make(map[models.SessionKey]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// UpgradeConnection subscribes to the workspace of key and upgrades the
// request to a websocket carrying its updates. Subscription errors are
// returned before anything is written to w.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, key models.SessionKey) error {
	sub, err := cm.streamer.Subscribe(r.Context(), key)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return nil
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Key:         key,
		Conn:        conn,
		Send:        make(chan []byte, 16),
		Manager:     cm,
		sub:         sub,
		quit:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}
	cm.registerConnection(connection)

	go connection.forward()
	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("session", key.String()).
		Msg("websocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.connections[conn.Key] == nil {
		cm.connections[conn.Key] = make(map[*Connection]bool)
	}
	cm.connections[conn.Key][conn] = true
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.connections[conn.Key]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			if len(connections) == 0 {
				delete(cm.connections, conn.Key)
			}
			log.Info().
				Str("connection_id", conn.ID).
				Str("session", conn.Key.String()).
				Msg("connection unregistered")
		}
	}
}

// Stats returns the number of open connections and sessions watched
func (cm *ConnectionManager) Stats() (connections int, sessions int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, conns := range cm.connections {
		connections += len(conns)
	}
	return connections, len(cm.connections)
}

// forward encodes workspace updates onto Send and closes Send after the
// final one.
func (c *Connection) forward() {
	defer close(c.Send)

	for u := range c.sub.C {
		data, err := json.Marshal(messageFor(u))
		if err != nil {
			log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal countdown message")
			continue
		}
		select {
		case c.Send <- data:
		case <-c.quit:
			return
		}
		if u.Final {
			return
		}
	}
}

// close releases the subscription and stops forward.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		c.sub.Close()
		c.Manager.unregisterConnection(c)
	})
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished"))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to write websocket message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump only keeps the read deadline alive; the client sends nothing
// the server acts on.
func (c *Connection) readPump() {
	defer func() {
		c.close()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
