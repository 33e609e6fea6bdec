// Package hub keeps the set of live viewer connections and fans every new
// report out to them. Transports (WebSocket, gRPC) adapt their connections
// to Conn and register them here.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/disaster-response/internal/models"
	"github.com/mr1hm/disaster-response/internal/observability"
)

const DefaultWriteTimeout = 10 * time.Second

// ErrSkipped is returned by Conn.WriteEvent when the connection declined
// the event without failing. Skipped connections stay registered.
var ErrSkipped = errors.New("event skipped")

var errGone = fmt.Errorf("connection no longer open: %w", ErrSkipped)

type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Event is the wire envelope, {"event":"new_disaster","data":{...}}.
type Event struct {
	Event string        `json:"event"`
	Data  models.Report `json:"data"`
}

func NewDisasterEvent(r models.Report) Event {
	return Event{Event: models.EventNewDisaster, Data: r}
}

// Conn is a single live connection. Close must be safe to call more than
// once.
type Conn interface {
	ID() string
	WriteEvent(ctx context.Context, ev Event) error
	Close() error
}

type PublishResult struct {
	Delivered int
	Failed    int
	Skipped   int
}

type client struct {
	conn        Conn
	state       State // guarded by Hub.mu
	connectedAt time.Time

	// serialises writes so concurrent publishes never interleave frames
	writeMu sync.Mutex
}

type Hub struct {
	clients map[string]*client
	closed  bool
	mu      sync.RWMutex

	writeTimeout time.Duration
	clock        clockwork.Clock
	metrics      *observability.Metrics
}

type Option func(*Hub)

func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(h *Hub) {
		h.clock = c
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

func New(opts ...Option) *Hub {
	h := &Hub{
		clients:      make(map[string]*client),
		writeTimeout: DefaultWriteTimeout,
		clock:        clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a connection in Connecting. It receives nothing until the
// transport calls Open. It returns false if the ID is already registered or
// the hub is closed.
func (h *Hub) Register(conn Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	if _, ok := h.clients[conn.ID()]; ok {
		return false
	}

	h.clients[conn.ID()] = &client{
		conn:        conn,
		state:       StateConnecting,
		connectedAt: h.clock.Now(),
	}
	slog.Debug("connection registered", "conn_id", conn.ID())
	return true
}

// Open moves a Connecting connection to Open once its transport handshake
// has completed. It returns false for unknown IDs and for connections that
// are not Connecting.
func (h *Hub) Open(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[id]
	if !ok || c.state != StateConnecting {
		return false
	}
	c.state = StateOpen
	if h.metrics != nil {
		h.metrics.OpenConnections.Inc()
	}
	return true
}

// Unregister removes and closes a connection. Repeated calls return false.
func (h *Hub) Unregister(id string) bool {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		if c.state == StateOpen && h.metrics != nil {
			h.metrics.OpenConnections.Dec()
		}
		c.state = StateClosed
		delete(h.clients, id)
	}
	h.mu.Unlock()

	if !ok {
		return false
	}
	if err := c.conn.Close(); err != nil {
		slog.Debug("error closing connection", "conn_id", id, "error", err)
	}
	slog.Debug("connection unregistered", "conn_id", id, "connected_for", h.clock.Since(c.connectedAt))
	return true
}

// Publish writes the report to every connection that is Open when the call
// starts and returns once every write has settled. A connection whose write
// fails is unregistered; the others are unaffected.
func (h *Hub) Publish(ctx context.Context, r models.Report) PublishResult {
	start := time.Now()
	ev := NewDisasterEvent(r)

	h.mu.RLock()
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.state == StateOpen {
			snapshot = append(snapshot, c)
		}
	}
	h.mu.RUnlock()

	var (
		wg                         sync.WaitGroup
		delivered, failed, skipped atomic.Int64
	)
	for _, c := range snapshot {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := h.deliver(ctx, c, ev); {
			case errors.Is(err, ErrSkipped):
				skipped.Add(1)
			case err != nil:
				failed.Add(1)
				slog.Warn("dropping connection after failed write", "conn_id", c.conn.ID(), "error", err)
				h.drop(c)
			default:
				delivered.Add(1)
			}
		}()
	}
	wg.Wait()

	res := PublishResult{
		Delivered: int(delivered.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}
	if h.metrics != nil {
		h.metrics.EventsDelivered.Add(float64(res.Delivered))
		h.metrics.WriteFailures.Add(float64(res.Failed))
		h.metrics.PublishDuration.Observe(time.Since(start).Seconds())
	}
	return res
}

func (h *Hub) deliver(ctx context.Context, c *client, ev Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// Unregistered between the snapshot and now.
	if !h.isCurrent(c) {
		return errGone
	}

	wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return c.conn.WriteEvent(wctx, ev)
}

func (h *Hub) isCurrent(c *client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[c.conn.ID()] == c && c.state == StateOpen
}

// drop unregisters c unless its ID has since been reused by another
// connection.
func (h *Hub) drop(c *client) {
	if h.isCurrent(c) {
		h.Unregister(c.conn.ID())
	}
}

// Count reports the number of Open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.state == StateOpen {
			n++
		}
	}
	return n
}

// State reports StateClosed for IDs the hub does not hold.
func (h *Hub) State(id string) State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[id]; ok {
		return c.state
	}
	return StateClosed
}

// Close unregisters every connection and rejects new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Unregister(id)
	}
}
