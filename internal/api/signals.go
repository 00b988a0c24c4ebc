package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"autotrader/internal/notification"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SignalHub pushes alerts to connected browsers over /ws/signals. It is a
// notification backend, so the trading service never knows about sockets.
type SignalHub struct {
	mu      sync.RWMutex
	clients map[*signalClient]bool
	seq     int64
	replay  *ReplayBuffer
}

// NewSignalHub creates a hub that keeps the last replay frames.
func NewSignalHub(replay int) *SignalHub {
	return &SignalHub{
		clients: make(map[*signalClient]bool),
		replay:  NewReplayBuffer(replay),
	}
}

type signalFrame struct {
	Seq   int64              `json:"seq"`
	TS    string             `json:"ts"`
	Alert notification.Alert `json:"alert"`
}

// Send stamps alert with the next seq and fans it out. Slow clients drop
// frames rather than block the sender.
func (h *SignalHub) Send(ctx context.Context, alert notification.Alert) error {
	h.mu.Lock()
	h.seq++
	frame, err := json.Marshal(signalFrame{
		Seq:   h.seq,
		TS:    time.Now().UTC().Format(time.RFC3339Nano),
		Alert: alert,
	})
	if err != nil {
		h.seq--
		h.mu.Unlock()
		return err
	}
	h.replay.Push(h.seq, frame)
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
		}
	}
	h.mu.Unlock()
	return nil
}

// ClientCount returns the number of connected clients.
func (h *SignalHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request. ?last_seq=N replays frames after N.
func (h *SignalHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[signals] ws upgrade error: %v", err)
		return
	}
	c := &signalClient{conn: conn, send: make(chan []byte, 64), hub: h}

	last, _ := strconv.ParseInt(r.URL.Query().Get("last_seq"), 10, 64)
	h.mu.Lock()
	if last > 0 {
		for _, e := range h.replay.Since(last) {
			select {
			case c.send <- e.Data:
			default:
			}
		}
	}
	h.clients[c] = true
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

func (h *SignalHub) remove(c *signalClient) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

type signalClient struct {
	conn *websocket.Conn
	send chan []byte
	hub  *SignalHub
}

func (c *signalClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services pongs and close frames. Clients send nothing.
func (c *signalClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		log.Println("[signals] ws client disconnected")
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
