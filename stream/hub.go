package stream

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/darkroomengineering/satus-sub000/fluid"
	"github.com/darkroomengineering/satus-sub000/input"
)

// Message types sent by clients.
const (
	MsgMove   = "move"   // Pointer position in client surface pixels
	MsgLeave  = "leave"  // Pointer left the surface or touch ended
	MsgResize = "resize" // Client surface size changed
)

// ClientMessage is the JSON a client sends.
type ClientMessage struct {
	Type   string  `json:"type"`
	X      float32 `json:"x,omitempty"`
	Y      float32 `json:"y,omitempty"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
}

// Hello is the JSON sent to a client once after it connects.
type Hello struct {
	Type            string `json:"type"`
	FrameResolution int    `json:"frameResolution"`
	Device          string `json:"device"`
}

// HubOptions configures a Hub.
type HubOptions struct {
	Sensitivity     float32 // Passed to each client's input.Capture
	Radius          float32
	FrameResolution int    // Advertised in Hello
	Device          string // Advertised in Hello
	Logger          *slog.Logger
}

// client is one connection. writeMu serializes writes, which gorilla
// connections require.
type client struct {
	writeMu sync.Mutex
	capture *input.Capture
}

// Hub tracks WebSocket clients. Each client gets its own input.Capture so
// strokes from different clients never share a baseline; the hub drains
// them all as one fluid.SplatSource.
type Hub struct {
	opts     HubOptions
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(opts HubOptions) *Hub {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{
		opts: opts,
		log:  opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*websocket.Conn]*client),
	}
}

// ServeHTTP upgrades the request and reads client messages until the
// connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	w0, h0 := surfaceSize(r)
	c := &client{capture: input.New(w0, h0, input.Options{
		Sensitivity: h.opts.Sensitivity,
		Radius:      h.opts.Radius,
		Logger:      h.log,
	})}

	// Hello goes out before registration so it is always the first message.
	if err := conn.WriteJSON(Hello{Type: "hello", FrameResolution: h.opts.FrameResolution, Device: h.opts.Device}); err != nil {
		h.log.Warn("stream hello failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	if !h.register(conn, c) {
		return
	}
	defer h.unregister(conn)

	h.log.Info("stream client connected", "remote", r.RemoteAddr, "clients", h.Clients())

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("stream read failed", "remote", r.RemoteAddr, "error", err)
			}
			break
		}
		h.handle(c, msg)
	}
	h.log.Info("stream client disconnected", "remote", r.RemoteAddr)
}

// surfaceSize reads the client's surface from the width and height query
// parameters. Without them the surface is 1×1, so clients send positions
// in normalized units.
func surfaceSize(r *http.Request) (int, int) {
	q := r.URL.Query()
	w, errW := strconv.Atoi(q.Get("width"))
	h, errH := strconv.Atoi(q.Get("height"))
	if errW != nil || errH != nil || w < 1 || h < 1 {
		return 1, 1
	}
	return w, h
}

func (h *Hub) handle(c *client, msg ClientMessage) {
	switch msg.Type {
	case MsgMove:
		c.capture.Move(msg.X, msg.Y)
	case MsgLeave:
		c.capture.Reset()
	case MsgResize:
		c.capture.SetSurface(msg.Width, msg.Height)
		c.capture.Reset()
	default:
		h.log.Debug("stream message ignored", "type", msg.Type)
	}
}

func (h *Hub) register(conn *websocket.Conn, c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[conn] = c
	return true
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	c, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		c.capture.Close()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DrainPendingSplats implements fluid.SplatSource over every client.
func (h *Hub) DrainPendingSplats() []fluid.Splat {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []fluid.Splat
	for _, c := range h.clients {
		out = append(out, c.capture.DrainPendingSplats()...)
	}
	return out
}

// Broadcast sends a binary message to every client and drops clients whose
// write fails. It returns the number of clients reached.
func (h *Hub) Broadcast(data []byte) int {
	h.mu.RLock()
	var failed []*websocket.Conn
	sent := 0
	for conn, c := range h.clients {
		c.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		err := conn.WriteMessage(websocket.BinaryMessage, data)
		c.writeMu.Unlock()
		if err != nil {
			h.log.Warn("stream write failed", "remote", conn.RemoteAddr().String(), "error", err)
			failed = append(failed, conn)
			continue
		}
		sent++
	}
	h.mu.RUnlock()

	for _, conn := range failed {
		conn.Close()
		h.unregister(conn)
	}
	return sent
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
