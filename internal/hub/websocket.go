package hub

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	DefaultIdleTimeout = 60 * time.Second
	maxMessageSize     = 512
	controlWriteWait   = 5 * time.Second
)

// wsConn adapts a gorilla connection to Conn. Writes are serialised by the
// hub; pings go through WriteControl, which may run concurrently with them.
type wsConn struct {
	id        string
	ws        *websocket.Conn
	closeOnce sync.Once
	done      chan struct{}
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		ws:   ws,
		done: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) WriteEvent(ctx context.Context, ev Event) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.ws.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	return c.ws.WriteJSON(ev)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(controlWriteWait))
		err = c.ws.Close()
	})
	return err
}

// WSHandler upgrades viewer requests and registers them with the hub. The
// handler blocks in the read pump for the life of the connection.
type WSHandler struct {
	hub         *Hub
	idleTimeout time.Duration
	upgrader    websocket.Upgrader
}

func NewWSHandler(h *Hub, idleTimeout time.Duration, allowedOrigins []string) *WSHandler {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &WSHandler{
		hub:         h,
		idleTimeout: idleTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := newWSConn(ws)
	if !h.hub.Register(conn) {
		conn.Close()
		return
	}
	h.prepare(conn)
	if !h.hub.Open(conn.id) {
		conn.Close()
		return
	}
	slog.Info("viewer connected", "conn_id", conn.id, "remote", r.RemoteAddr)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.pingLoop(conn)
	}()

	h.readPump(conn)

	h.hub.Unregister(conn.id)
	conn.Close()
	wg.Wait()
	slog.Info("viewer disconnected", "conn_id", conn.id)
}

// prepare arms the read limit, idle deadline and pong handler. The
// connection is not Open before this.
func (h *WSHandler) prepare(conn *wsConn) {
	ws := conn.ws
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.idleTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.idleTimeout))
	})
}

// readPump discards inbound messages and returns on read error, close
// frame or idle timeout.
func (h *WSHandler) readPump(conn *wsConn) {
	ws := conn.ws
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "conn_id", conn.id, "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.idleTimeout))
	}
}

func (h *WSHandler) pingLoop(conn *wsConn) {
	ticker := time.NewTicker(h.idleTimeout * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-conn.done:
			return
		case <-ticker.C:
			if err := conn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait)); err != nil {
				return
			}
		}
	}
}
