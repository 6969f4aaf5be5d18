package ws

import (
	"log"
	"sync"
	"time"

	"xconfess-notify/internal/domain"

	"github.com/gorilla/websocket"
)

// Connection wraps a websocket.Conn with metadata. Writes go through
// WriteEvent so concurrent fan-out and per-connection echoes do not
// interleave frames.
type Connection struct {
	Conn   *websocket.Conn
	UserID string

	mu       sync.Mutex
	lastSeen time.Time
}

func (c *Connection) WriteEvent(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(domain.WSEvent{Event: event, Data: data})
}

// Touch records client liveness. Called from the reader goroutine; the
// heartbeat sweep reads through Seen, so both sides share c.mu.
func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *Connection) Seen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Manager tracks every authenticated live connection per user.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{} // userID -> set of connections
}

func NewManager() *Manager {
	return &Manager{
		connections: make(map[string]map[*Connection]struct{}),
	}
}

// Add registers an authenticated connection for a user.
func (m *Manager) Add(userID string, conn *websocket.Conn) *Connection {
	c := &Connection{Conn: conn, UserID: userID, lastSeen: time.Now()}

	m.mu.Lock()
	if _, ok := m.connections[userID]; !ok {
		m.connections[userID] = make(map[*Connection]struct{})
	}
	m.connections[userID][c] = struct{}{}
	total := len(m.connections[userID])
	m.mu.Unlock()

	log.Printf("[WS] connected: user=%s (total=%d)", userID, total)
	return c
}

// Remove disconnects and deregisters a connection. When the user's last
// connection closes, the fan-out group entry is removed.
func (m *Manager) Remove(c *Connection) {
	m.mu.Lock()
	if conns, ok := m.connections[c.UserID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(m.connections, c.UserID)
		}
	}
	m.mu.Unlock()

	if c.Conn != nil {
		_ = c.Conn.Close()
	}
	log.Printf("[WS] disconnected: user=%s", c.UserID)
}

// Send pushes one event to every live connection of a user. Best effort:
// a failed write evicts that connection, nothing is queued for offline
// users.
func (m *Manager) Send(userID, event string, data any) {
	m.mu.RLock()
	conns := make([]*Connection, 0, 4)
	for c := range m.connections[userID] {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if err := c.WriteEvent(event, data); err != nil {
			log.Printf("[WS] send to user=%s failed: %v", userID, err)
			m.Remove(c)
		}
	}
}

// IsOnline reports whether the user has at least one live connection.
// Informational only; never gates notification or job creation.
func (m *Manager) IsOnline(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns, ok := m.connections[userID]
	return ok && len(conns) > 0
}

// Heartbeat pings all connections periodically and evicts stale ones.
func (m *Manager) Heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		m.sweep(interval)
	}
}

// sweep runs one heartbeat pass: ping live connections, evict those not
// seen within two intervals.
func (m *Manager) sweep(interval time.Duration) {
	m.mu.RLock()
	var stale []*Connection
	for _, conns := range m.connections {
		for c := range conns {
			if time.Since(c.Seen()) > 2*interval {
				stale = append(stale, c)
				continue
			}
			if c.Conn != nil {
				_ = c.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
			}
		}
	}
	m.mu.RUnlock()

	for _, c := range stale {
		m.Remove(c)
	}
}
