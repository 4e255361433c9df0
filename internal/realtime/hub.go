package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/estimator/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// Hub fans board events out to websocket subscribers
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	closed  bool
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.send) })
}

// NewHub creates a hub accepting connections from allowedOrigins.
// "*" allows any origin; requests without an Origin header are always allowed.
func NewHub(allowedOrigins []string) *Hub {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		clients: make(map[*subscriber]struct{}),
	}
}

// Publish sends event to every subscriber. Subscribers whose buffer is full are dropped.
func (h *Hub) Publish(event models.BoardEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal board event", "type", event.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.clients {
		select {
		case s.send <- data:
		default:
			slog.Warn("dropping slow event subscriber", "remote_addr", s.conn.RemoteAddr().String())
			delete(h.clients, s)
			s.stop()
		}
	}
}

// Subscribers returns the number of connected subscribers
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams events until the peer goes away
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[s] = struct{}{}
	h.mu.Unlock()

	slog.Debug("event subscriber connected", "remote_addr", conn.RemoteAddr().String())

	go h.writeLoop(s)
	h.readLoop(s)
}

// readLoop discards inbound frames and unregisters the subscriber on error
func (h *Hub) readLoop(s *subscriber) {
	defer func() {
		h.remove(s)
		slog.Debug("event subscriber disconnected", "remote_addr", s.conn.RemoteAddr().String())
	}()

	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.clients, s)
	h.mu.Unlock()
	s.stop()
}

// Close disconnects every subscriber and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for s := range h.clients {
		delete(h.clients, s)
		s.stop()
	}
}
