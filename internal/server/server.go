package server

import (
	"context"
	"sync"

	"github.com/npezzotti/gochat-engine/internal/stats"
	"github.com/rs/zerolog"
)

const MetricActiveClients = "NumActiveClients"

// Hub owns the live websocket clients and feeds their events through the
// router. Events scoped to the same room are dispatched and delivered one at
// a time, so every client observes a room's messages in append order.
type Hub struct {
	log         zerolog.Logger
	router      *Router
	stats       stats.StatsProvider
	clients     map[string]*Client
	clientsLock sync.RWMutex
	roomLocks   *keyLock
	wg          sync.WaitGroup
	closed      bool
}

func NewHub(logger zerolog.Logger, router *Router, su stats.StatsProvider) *Hub {
	su.RegisterMetric(MetricActiveClients)

	return &Hub{
		log:       logger.With().Str("component", "hub").Logger(),
		router:    router,
		stats:     su,
		clients:   make(map[string]*Client),
		roomLocks: newKeyLock(),
	}
}

// Register adds c and opens its router session. It reports false once the
// hub is shutting down.
func (h *Hub) Register(c *Client) bool {
	h.clientsLock.Lock()
	if h.closed {
		h.clientsLock.Unlock()
		return false
	}

	h.clients[c.id] = c
	h.wg.Add(1)
	h.router.Open(c.id)
	h.clientsLock.Unlock()

	h.stats.Incr(MetricActiveClients)
	h.log.Debug().Str("conn_id", c.id).Msg("client registered")

	return true
}

// Unregister closes c's router session and delivers the resulting presence
// notices. Calling it twice is harmless.
func (h *Hub) Unregister(ctx context.Context, c *Client) {
	h.clientsLock.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
	}
	h.clientsLock.Unlock()

	if !ok {
		return
	}
	defer h.wg.Done()

	h.stats.Decr(MetricActiveClients)
	h.Deliver(h.router.Close(ctx, c.id))
	h.log.Debug().Str("conn_id", c.id).Msg("client unregistered")
}

// Handle dispatches one inbound event from c and delivers the outcome.
func (h *Hub) Handle(ctx context.Context, c *Client, msg *ClientMessage) {
	if key := msg.RoomId(); key != "" {
		h.roomLocks.Lock(key)
		defer h.roomLocks.Unlock(key)
	}

	h.Deliver(h.router.Dispatch(ctx, c.id, msg))
}

// Deliver queues each event on its target client. Unknown targets and full
// queues are skipped.
func (h *Hub) Deliver(deliveries []Delivery) {
	if len(deliveries) == 0 {
		return
	}

	h.clientsLock.RLock()
	defer h.clientsLock.RUnlock()

	for _, d := range deliveries {
		c, ok := h.clients[d.ConnectionId]
		if !ok {
			continue
		}
		c.queueMessage(d.Message)
	}
}

func (h *Hub) getClient(connId string) *Client {
	h.clientsLock.RLock()
	defer h.clientsLock.RUnlock()

	return h.clients[connId]
}

func (h *Hub) ClientCount() int {
	h.clientsLock.RLock()
	defer h.clientsLock.RUnlock()

	return len(h.clients)
}

// Shutdown stops every client and waits for them to unregister or for ctx
// to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Info().Msg("shutting down hub")

	h.clientsLock.Lock()
	h.closed = true
	for _, c := range h.clients {
		c.stopClient()
	}
	h.clientsLock.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
