package fanout

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charleschow/live-scoring/internal/events"
	"github.com/charleschow/live-scoring/internal/telemetry"
)

const (
	clientSendBuf = 256
	writeDeadline = 5 * time.Second
	pongWait      = 30 * time.Second
	pingInterval  = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// FeedTypes are the bus events forwarded to feed clients.
var FeedTypes = []events.EventType{
	events.EventMatchSelected,
	events.EventScoreChanged,
	events.EventScoringEvent,
	events.EventSetCompleted,
	events.EventMatchCompleted,
	events.EventSoftError,
	events.EventChannelStatus,
}

type feedClient struct {
	matchID int64 // 0 = every match
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
}

// Server fans out bus events to connected operator WebSocket clients.
type Server struct {
	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

func NewServer(bus *events.Bus) *Server {
	s := &Server{
		clients: make(map[*feedClient]struct{}),
	}
	for _, t := range FeedTypes {
		bus.Subscribe(t, s.forward)
	}
	return s
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// forward is called on the publisher's goroutine. It serializes the event
// and enqueues it to matching clients' send channels (non-blocking).
func (s *Server) forward(evt events.Event) error {
	data, err := MarshalEvent(evt)
	if err != nil {
		telemetry.Warnf("fanout: marshal error: %v", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		// connection status is not tied to a match
		if c.matchID != 0 && evt.Type != events.EventChannelStatus && c.matchID != evt.MatchID {
			continue
		}
		select {
		case c.send <- data:
		default:
			telemetry.Metrics.FeedDropped.Inc()
			telemetry.Warnf("fanout: dropping message for slow client match=%d", c.matchID)
		}
	}
	return nil
}

// HandleWS is the HTTP handler for WebSocket upgrade requests. Clients may
// narrow the feed with ?match=<id>.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	var matchID int64
	if raw := r.URL.Query().Get("match"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			http.Error(w, "invalid ?match= query param", http.StatusBadRequest)
			return
		}
		matchID = id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		telemetry.Warnf("fanout: upgrade failed: %v", err)
		return
	}

	c := &feedClient{
		matchID: matchID,
		conn:    conn,
		send:    make(chan []byte, clientSendBuf),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	telemetry.Metrics.FeedClients.Set(float64(len(s.clients)))
	s.mu.Unlock()

	telemetry.Infof("fanout: client connected match=%d", matchID)

	go s.writePump(c)
	go s.readPump(c)
}

// writePump drains the client's send channel and writes to the WS connection.
// It owns the client lifecycle: on exit it removes the client from the map
// (so forward never sends to a stale channel) and closes the connection.
func (s *Server) writePump(c *feedClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.removeClient(c)
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				telemetry.Warnf("fanout: write error match=%d: %v", c.matchID, err)
				return
			}
		case <-c.done:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the connection alive by reading pongs / close frames.
// On exit it signals writePump via c.done (never closes c.send).
func (s *Server) readPump(c *feedClient) {
	defer close(c.done)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
	}
}

func (s *Server) removeClient(c *feedClient) {
	s.mu.Lock()
	delete(s.clients, c)
	telemetry.Metrics.FeedClients.Set(float64(len(s.clients)))
	s.mu.Unlock()
	telemetry.Infof("fanout: client disconnected match=%d", c.matchID)
}
