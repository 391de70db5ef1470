// Package realtime broadcasts session lifecycle events to connected
// admin clients over a WebSocket, adapted from the teacher's
// WebSocketManager (register/unregister/broadcast channel loop) to carry
// models.Event instead of arbitrary typed payloads.
package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gridforge/hedgeengine/internal/models"
)

// Manager fans out session events to every connected admin WebSocket
// client. It implements models.EventSink so it can be composed into a
// session's event sink alongside the webhook emitter (spec §9).
type Manager struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan models.Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.Mutex
	upgrader   websocket.Upgrader
}

// NewManager creates a Manager. Call Run in a background goroutine
// before serving HandleWebSocket.
func NewManager() *Manager {
	return &Manager{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan models.Event, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run drives the register/unregister/broadcast loop until ctx is done
// is not applicable here; callers stop it by no longer writing to it and
// letting the process exit, matching the teacher's fire-and-forget Run.
func (m *Manager) Run() {
	for {
		select {
		case conn := <-m.register:
			m.mu.Lock()
			m.clients[conn] = true
			m.mu.Unlock()
			log.Info().Msg("admin websocket client connected")

		case conn := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[conn]; ok {
				delete(m.clients, conn)
				conn.Close()
				log.Info().Msg("admin websocket client disconnected")
			}
			m.mu.Unlock()

		case event := <-m.broadcast:
			m.mu.Lock()
			for conn := range m.clients {
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(event); err != nil {
					log.Error().Err(err).Msg("failed to write to admin websocket, closing connection")
					conn.Close()
					delete(m.clients, conn)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Emit implements models.EventSink: every session event is broadcast to
// every connected admin client. A full broadcast channel drops the event
// rather than blocking the session's tick loop.
func (m *Manager) Emit(e models.Event) {
	select {
	case m.broadcast <- e:
	default:
		log.Warn().Str("user_id", e.UserID).Msg("admin websocket broadcast channel full, dropping event")
	}
}

// HandleWebSocket upgrades the connection and registers it for broadcast.
func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade admin websocket")
		return
	}
	m.register <- conn

	go func() {
		defer func() { m.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Error().Err(err).Msg("admin websocket closed unexpectedly")
				}
				break
			}
		}
	}()
}
