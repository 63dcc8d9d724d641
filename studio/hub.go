package studio

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ProgressEvent is one status update pushed to subscribers of a generation.
type ProgressEvent struct {
	UUID    string `json:"uuid"`
	Status  string `json:"status"`
	Results int    `json:"results,omitempty"`
}

// subscriberConn wraps a websocket connection with a write mutex. gorilla
// allows at most one concurrent writer per connection, so every WriteJSON
// goes through the mutex.
type subscriberConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (sc *subscriberConn) send(event ProgressEvent) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.conn.WriteJSON(event)
}

// Hub fans generation progress out to websocket subscribers. Subscriptions
// are per generation UUID; the callback handler feeds it.
type Hub struct {
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	subscribers map[string]map[*subscriberConn]bool
}

func NewHub(allowedOrigins []string, logger *logrus.Logger) *Hub {
	allowAll := len(allowedOrigins) == 0
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originSet[o] = true
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowAll {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					// non-browser clients
					return true
				}
				return originSet[origin]
			},
		},
		subscribers: make(map[string]map[*subscriberConn]bool),
	}
}

// ServeWS upgrades the connection and subscribes it to one generation's
// events. The UUID comes from the last path segment or a uuid query param.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	uuid := r.URL.Query().Get("uuid")
	if uuid == "" {
		parts := strings.Split(strings.TrimRight(r.URL.Path, "/"), "/")
		uuid = parts[len(parts)-1]
	}
	if uuid == "" || uuid == "progress" {
		http.Error(w, "missing generation uuid", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("ws upgrade: %v", err)
		return
	}
	sc := &subscriberConn{conn: conn}

	h.mu.Lock()
	if h.subscribers[uuid] == nil {
		h.subscribers[uuid] = make(map[*subscriberConn]bool)
	}
	h.subscribers[uuid][sc] = true
	h.mu.Unlock()

	// the read loop exists to notice the peer going away
	go func() {
		defer h.drop(uuid, sc)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends an event to every subscriber of its generation.
func (h *Hub) Broadcast(event ProgressEvent) {
	if h == nil {
		return
	}
	h.mu.RLock()
	conns := make([]*subscriberConn, 0, len(h.subscribers[event.UUID]))
	for sc := range h.subscribers[event.UUID] {
		conns = append(conns, sc)
	}
	h.mu.RUnlock()

	for _, sc := range conns {
		if err := sc.send(event); err != nil {
			h.drop(event.UUID, sc)
		}
	}
}

func (h *Hub) drop(uuid string, sc *subscriberConn) {
	h.mu.Lock()
	if subs, ok := h.subscribers[uuid]; ok {
		delete(subs, sc)
		if len(subs) == 0 {
			delete(h.subscribers, uuid)
		}
	}
	h.mu.Unlock()
	sc.conn.Close()
}
