// Package stream pushes live standings snapshots to websocket watchers.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/singletrack/race-control/internal/metrics"
	"github.com/singletrack/race-control/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer is per client; a watcher that falls this far behind is dropped
	sendBuffer = 16
)

// message is the wire envelope pushed to watchers
type message struct {
	Type      string                 `json:"type"`
	RaceID    uuid.UUID              `json:"race_id"`
	Standings *service.LiveStandings `json:"standings"`
	SentAt    time.Time              `json:"sent_at"`
}

type client struct {
	conn   *websocket.Conn
	raceID uuid.UUID
	send   chan []byte
}

// Hub fans standings snapshots out to the websocket watchers of each race.
// It implements service.StandingsPublisher.
type Hub struct {
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a new standings hub
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// BroadcastStandings pushes a standings snapshot to every watcher of the race.
// Watchers that cannot keep up are disconnected rather than allowed to block
// the finish-line path.
func (h *Hub) BroadcastStandings(raceID uuid.UUID, standings *service.LiveStandings) {
	payload, err := json.Marshal(message{
		Type:      "standings",
		RaceID:    raceID,
		Standings: standings,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode standings broadcast")
		return
	}

	h.mu.RLock()
	var stalled []*client
	for c := range h.clients {
		if c.raceID != raceID {
			continue
		}
		select {
		case c.send <- payload:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stalled {
		h.logger.WithField("race_id", raceID).Warn("Dropping slow standings watcher")
		h.remove(c)
	}
}

// ServeWS upgrades the request to a websocket subscription for one race.
// The race id comes from the race_id query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	raceID, err := uuid.Parse(r.URL.Query().Get("race_id"))
	if err != nil {
		http.Error(w, "invalid race_id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &client{
		conn:   conn,
		raceID: raceID,
		send:   make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.StandingsWatchers.Inc()

	h.logger.WithField("race_id", raceID).Debug("Standings watcher connected")

	go h.writePump(c)
	go h.readPump(c)
}

// Close disconnects every watcher
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}

// Watchers returns the current watcher count
func (h *Hub) Watchers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	if present {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if present {
		metrics.StandingsWatchers.Dec()
		c.conn.Close()
	}
}

// readPump drains inbound frames so pongs and close frames are processed
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(c)
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
