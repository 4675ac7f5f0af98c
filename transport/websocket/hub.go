package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wricardo/mediatracker/media/event"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// AllSessions subscribes a client to every session's records.
	AllSessions = ""

	// DefaultBuffer is the publish queue length used when NewHub gets zero.
	DefaultBuffer = 256

	// clientBuffer is how many encoded records a client may lag behind.
	clientBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the JSON frame sent to clients.
type Message struct {
	SessionID string        `json:"session_id"`
	Event     string        `json:"event"`
	Record    *event.Record `json:"record,omitempty"`
}

// Client is a WebSocket subscriber
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

type countRequest struct {
	sessionID string
	reply     chan int
}

// Hub fans outbound records out to subscribed clients. All subscriber state
// is owned by the Run goroutine.
type Hub struct {
	// Registered clients by session ID; AllSessions holds the firehose.
	subscribers map[string]map[*Client]bool

	// Records waiting to be sent
	publish chan event.Record

	// Subscription changes from ServeWS and readPump
	register   chan *Client
	unregister chan *Client

	count chan countRequest
	stop  chan struct{}
	once  sync.Once

	dropped atomic.Int64
}

// NewHub creates a hub whose publish queue holds buffer records.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subscribers: make(map[string]map[*Client]bool),
		publish:     make(chan event.Record, buffer),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		count:       make(chan countRequest),
		stop:        make(chan struct{}),
	}
}

// Run starts the hub's event loop. It returns after Close.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case rec := <-h.publish:
			h.broadcastRecord(rec)

		case req := <-h.count:
			req.reply <- len(h.subscribers[req.sessionID])

		case <-h.stop:
			for _, clients := range h.subscribers {
				for client := range clients {
					h.unregisterClient(client)
				}
			}
			return
		}
	}
}

// Close stops Run and disconnects every client.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.stop) })
}

// Publish queues rec for delivery. It never blocks: when the queue is full
// the record is dropped. Publish has the event.Dispatcher signature so it
// can be handed to the processor directly.
func (h *Hub) Publish(rec event.Record) {
	select {
	case h.publish <- rec:
	default:
		n := h.dropped.Add(1)
		log.Printf("WebSocket publish queue full, dropped record %s for session %s (total dropped: %d)",
			rec.RequestEventID, rec.SessionID, n)
	}
}

// Dropped returns how many records Publish has discarded.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// ClientCount returns the number of clients subscribed to sessionID. It
// must not be called before Run has started.
func (h *Hub) ClientCount(sessionID string) int {
	req := countRequest{sessionID: sessionID, reply: make(chan int, 1)}
	select {
	case h.count <- req:
		return <-req.reply
	case <-h.stop:
		return 0
	}
}

// ServeWS upgrades the request and subscribes the connection to sessionID,
// or to every session when sessionID is AllSessions.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, clientBuffer),
		sessionID: sessionID,
	}

	select {
	case h.register <- client:
	case <-h.stop:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// registerClient subscribes client to its session's records.
func (h *Hub) registerClient(client *Client) {
	if h.subscribers[client.sessionID] == nil {
		h.subscribers[client.sessionID] = make(map[*Client]bool)
	}
	h.subscribers[client.sessionID][client] = true

	log.Printf("Subscriber added for session %q (subscribers: %d)",
		client.sessionID, len(h.subscribers[client.sessionID]))
}

// unregisterClient drops the subscription and closes client.send once.
func (h *Hub) unregisterClient(client *Client) {
	if clients, ok := h.subscribers[client.sessionID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.send)

			if len(clients) == 0 {
				delete(h.subscribers, client.sessionID)
			}

			log.Printf("Subscriber removed from session %q (subscribers: %d)",
				client.sessionID, len(clients))
		}
	}
}

// broadcastRecord sends rec to the session's subscribers and to the
// firehose subscribers.
func (h *Hub) broadcastRecord(rec event.Record) {
	data, err := json.Marshal(&Message{
		SessionID: rec.SessionID,
		Event:     string(rec.Type),
		Record:    &rec,
	})
	if err != nil {
		log.Printf("Failed to marshal record %s: %v", rec.RequestEventID, err)
		return
	}

	h.sendTo(rec.SessionID, data)
	if rec.SessionID != AllSessions {
		h.sendTo(AllSessions, data)
	}
}

func (h *Hub) sendTo(sessionID string, data []byte) {
	for client := range h.subscribers[sessionID] {
		select {
		case client.send <- data:
		default:
			// Client's send channel is full, close it
			h.unregisterClient(client)
		}
	}
}

// readPump keeps the connection alive and unregisters on close
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Subscribers don't send anything; reads only drive pongs and close
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// writePump writes one record per frame and pings the peer on pingPeriod.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Unsubscribed by the hub
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
