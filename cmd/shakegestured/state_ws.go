package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"shakegestures/internal/gesture"
	"shakegestures/internal/metrics"
)

// ============================================================================
// Report stream: hub + per-client pumps + broadcaster
// ============================================================================
//
// Clients connect to /ws and receive:
//   - "state_init" once, with the current configuration and dispatcher state
//   - "gesture_dispatched" for every shake the dispatcher handled
//   - "config_changed" whenever the cached configuration changes
//
// Messages are JSON text frames with an envelope: {type, ts, data}.
// Slow clients are disconnected when their send buffer fills.
//
// ============================================================================

// wsStateInit is the JSON `data` payload for "state_init".
type wsStateInit struct {
	Config gesture.Configuration `json:"config"`
	State  string                `json:"state"`
}

// wsGestureData is the JSON `data` payload for "gesture_dispatched".
type wsGestureData struct {
	ID         string           `json:"id"`
	Action     gesture.ActionID `json:"action"`
	Outcome    gesture.Outcome  `json:"outcome"`
	GuardHeld  bool             `json:"guard_held"`
	Error      string           `json:"error,omitempty"`
	DurationMS float64          `json:"duration_ms"`
}

// wsConfigChangedData is the JSON `data` payload for "config_changed".
type wsConfigChangedData struct {
	Old gesture.Configuration `json:"old"`
	New gesture.Configuration `json:"new"`
}

// stateBroadcast is something worth telling report stream clients about.
type stateBroadcast interface {
	broadcastMarker()
}

type broadcastGesture struct {
	Report gesture.Report
}

type broadcastConfigChanged struct {
	Old, New gesture.Configuration
	At       time.Time
}

func (broadcastGesture) broadcastMarker()       {}
func (broadcastConfigChanged) broadcastMarker() {}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size. Zero means 32.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size. Zero means 128.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				metrics.WebSocketSlowClientsEvicted.Inc()
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
	metrics.WebSocketClients.Set(0)
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		safeCloseChan(c.send)

		metrics.WebSocketClients.Set(float64(n))
		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON WS frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// closeStatus extracts a websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump, what string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting ("+what+" error)", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", "write", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", "ping", err)
				return
			}
		}
	}
}

// readPump discards incoming messages to detect disconnects and handle
// control frames. It unregisters the client on read error.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", "read", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

// StateServer serves the report stream.
type StateServer struct {
	logger *slog.Logger
	hub    *Hub

	dispatcher *gesture.Dispatcher
}

// NewStateServer constructs the report stream components. Call Register on a
// router, start Hub().Run(ctx), and start RunBroadcaster.
func NewStateServer(logger *slog.Logger, dispatcher *gesture.Dispatcher, cfg HubConfig) *StateServer {
	return &StateServer{
		logger:     logger,
		hub:        NewHub(logger, cfg),
		dispatcher: dispatcher,
	}
}

func (s *StateServer) Hub() *Hub { return s.hub }

// Register registers the WS handler on r.
func (s *StateServer) Register(r *mux.Router, path string) {
	if r == nil {
		return
	}
	r.HandleFunc(path, s.handleStateWS).Methods(http.MethodGet)
}

var upgrader = websocket.Upgrader{
	// The daemon listens on loopback by default.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (s *StateServer) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Queue state_init before registering so it is the first frame.
	if msg, err := s.initMessage(); err == nil {
		client.send <- msg
	} else {
		s.logger.Warn("ws state_init marshal failed", "error", err)
	}

	s.hub.register <- client

	// The pumps must outlive the request context; net/http cancels it when
	// this handler returns. The hub owns the connection lifetime.
	go client.writePump(context.Background())
	go client.readPump()
}

func (s *StateServer) initMessage() ([]byte, error) {
	now := time.Now().UTC()
	payload := wsStateInit{
		State: gesture.StateIdle.String(),
	}
	if s.dispatcher != nil {
		payload.Config = s.dispatcher.Config()
		payload.State = s.dispatcher.State().String()
	}
	return json.Marshal(envelope{Type: "state_init", Ts: &now, Data: payload})
}

// ============================================================================
// Broadcaster
// ============================================================================

// publisher returns a non-blocking send into ch, suitable for dispatcher
// observers and config change callbacks.
func publisher(ch chan<- stateBroadcast) func(stateBroadcast) {
	return func(b stateBroadcast) {
		select {
		case ch <- b:
		default:
		}
	}
}

// RunBroadcaster marshals broadcasts from src and fans them out to all hub
// clients. Run it as a single goroutine.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan stateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case b, ok := <-src:
			if !ok {
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			typ, data, at, ok := convertBroadcast(b)
			if !ok {
				continue
			}
			if at.IsZero() {
				at = time.Now().UTC()
			}

			msg, err := json.Marshal(envelope{Type: typ, Ts: &at, Data: data})
			if err != nil {
				logger.Warn("ws broadcaster marshal failed", "error", err, "type", typ)
				continue
			}
			hub.BroadcastBytes(msg)
		}
	}
}

func convertBroadcast(b stateBroadcast) (typ string, data any, at time.Time, ok bool) {
	switch ev := b.(type) {
	case broadcastGesture:
		rep := ev.Report
		d := wsGestureData{
			ID:         rep.ID.String(),
			Action:     rep.Action,
			Outcome:    rep.Outcome,
			GuardHeld:  rep.GuardHeld,
			DurationMS: float64(rep.Duration) / float64(time.Millisecond),
		}
		if rep.Err != nil {
			d.Error = rep.Err.Error()
		}
		return "gesture_dispatched", d, rep.StartedAt.UTC(), true

	case broadcastConfigChanged:
		return "config_changed", wsConfigChangedData{Old: ev.Old, New: ev.New}, ev.At, true

	default:
		return "", nil, time.Time{}, false
	}
}
