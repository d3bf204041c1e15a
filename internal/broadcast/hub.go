package broadcast

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"torrentify/internal/domain"
	"torrentify/internal/telemetry"
)

// Conn is the transport side of one observer.
type Conn interface {
	Write(ctx context.Context, msg []byte) error
	Ping(ctx context.Context) error
	Close(reason string) error
}

type Config struct {
	HeartbeatInterval time.Duration
	QueueSize         int
	WriteTimeout      time.Duration
	// StrictSubscriptions stops observers without subscriptions from
	// receiving job-scoped events. Off by default: an observer that never
	// subscribed sees every job, which existing clients rely on.
	StrictSubscriptions bool
	Logger              *logrus.Logger
}

// ObserverInfo describes one connected observer.
type ObserverInfo struct {
	ID            string    `json:"id"`
	Alive         bool      `json:"isAlive"`
	Subscriptions []string  `json:"subscriptions"`
	ConnectedAt   time.Time `json:"connectedAt"`
}

// Hub fans events out to registered observers. Each observer has its own
// queue drained by a single writer, so events reach it in broadcast order.
type Hub struct {
	cfg     Config
	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id          string
	conn        Conn
	queue       chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	alive       atomic.Bool
	connectedAt time.Time

	mu   sync.Mutex
	subs map[string]struct{}
}

func NewHub(cfg Config) *Hub {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Hub{
		cfg:     cfg,
		clients: make(map[string]*client),
	}
}

// Register adds an observer, starts its writer and greets it.
func (h *Hub) Register(conn Conn) string {
	c := &client{
		id:          "client_" + uuid.NewString(),
		conn:        conn,
		queue:       make(chan []byte, h.cfg.QueueSize),
		done:        make(chan struct{}),
		connectedAt: time.Now().UTC(),
		subs:        make(map[string]struct{}),
	}
	c.alive.Store(true)

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	telemetry.ObserversConnected.Inc()

	go h.writeLoop(c)

	h.cfg.Logger.WithField("observer_id", c.id).Info("observer connected")
	h.Send(c.id, domain.Event{
		Type: domain.EventConnected,
		Data: domain.ConnectedData{
			ClientID:  c.id,
			Message:   "Connected to Torrentify event stream",
			Timestamp: time.Now().UTC(),
		},
	})
	return c.id
}

// Unregister removes an observer and closes its connection.
func (h *Hub) Unregister(id string) {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if ok {
		h.drop(c, "disconnected")
	}
}

func (h *Hub) Subscribe(id, jobID string) bool {
	c, ok := h.lookup(id)
	if !ok || jobID == "" {
		return false
	}
	c.mu.Lock()
	c.subs[jobID] = struct{}{}
	c.mu.Unlock()
	h.cfg.Logger.WithFields(logrus.Fields{"observer_id": id, "job_id": jobID}).Debug("subscribed")
	return true
}

func (h *Hub) Unsubscribe(id, jobID string) bool {
	c, ok := h.lookup(id)
	if !ok {
		return false
	}
	c.mu.Lock()
	delete(c.subs, jobID)
	c.mu.Unlock()
	h.cfg.Logger.WithFields(logrus.Fields{"observer_id": id, "job_id": jobID}).Debug("unsubscribed")
	return true
}

// MarkAlive records a liveness acknowledgment from the observer.
func (h *Hub) MarkAlive(id string) {
	if c, ok := h.lookup(id); ok {
		c.alive.Store(true)
	}
}

// Broadcast delivers ev to every interested observer. Events without a job
// id go to everyone.
func (h *Hub) Broadcast(ev domain.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.cfg.Logger.Errorf("encode event %s: %v", ev.Type, err)
		return
	}
	telemetry.EventsPublished.WithLabelValues(string(ev.Type)).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if ev.JobID != "" && !c.wants(ev.JobID, h.cfg.StrictSubscriptions) {
			continue
		}
		h.enqueue(c, msg)
	}
}

// Send delivers ev to a single observer regardless of subscriptions.
func (h *Hub) Send(id string, ev domain.Event) bool {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.cfg.Logger.Errorf("encode event %s: %v", ev.Type, err)
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	if !ok {
		return false
	}
	return h.enqueue(c, msg)
}

// Run probes observers every heartbeat interval and closes those that did
// not acknowledge the previous probe.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.heartbeat(ctx)
		}
	}
}

func (h *Hub) heartbeat(ctx context.Context) {
	for _, c := range h.snapshot() {
		if !c.alive.Swap(false) {
			h.cfg.Logger.WithField("observer_id", c.id).Warn("terminating unresponsive observer")
			h.drop(c, "heartbeat timeout")
			continue
		}
		go func(c *client) {
			pingCtx, cancel := context.WithTimeout(ctx, h.cfg.HeartbeatInterval)
			defer cancel()
			if err := c.conn.Ping(pingCtx); err == nil {
				c.alive.Store(true)
			}
		}(c)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Stats() []ObserverInfo {
	clients := h.snapshot()
	out := make([]ObserverInfo, 0, len(clients))
	for _, c := range clients {
		c.mu.Lock()
		subs := make([]string, 0, len(c.subs))
		for id := range c.subs {
			subs = append(subs, id)
		}
		c.mu.Unlock()
		sort.Strings(subs)
		out = append(out, ObserverInfo{
			ID:            c.id,
			Alive:         c.alive.Load(),
			Subscriptions: subs,
			ConnectedAt:   c.connectedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// Close disconnects every observer.
func (h *Hub) Close() {
	for _, c := range h.snapshot() {
		h.drop(c, "server shutting down")
	}
}

func (h *Hub) enqueue(c *client, msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.queue <- msg:
		return true
	default:
		telemetry.EventsDropped.Inc()
		h.cfg.Logger.WithField("observer_id", c.id).Warn("observer queue full, dropping event")
		return false
	}
}

func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.queue:
			ctx, cancel := context.WithTimeout(context.Background(), h.cfg.WriteTimeout)
			err := c.conn.Write(ctx, msg)
			cancel()
			if err != nil {
				h.cfg.Logger.WithField("observer_id", c.id).Warnf("deliver event: %v", err)
				h.drop(c, "write failed")
				return
			}
		}
	}
}

func (h *Hub) drop(c *client, reason string) {
	c.closeOnce.Do(func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		close(c.done)
		telemetry.ObserversConnected.Dec()
		if err := c.conn.Close(reason); err != nil {
			h.cfg.Logger.WithField("observer_id", c.id).Debugf("close observer: %v", err)
		}
		h.cfg.Logger.WithField("observer_id", c.id).Infof("observer removed: %s", reason)
	})
}

func (h *Hub) lookup(id string) (*client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

func (h *Hub) snapshot() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (c *client) wants(jobID string, strict bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subs) == 0 {
		return !strict
	}
	_, ok := c.subs[jobID]
	return ok
}
