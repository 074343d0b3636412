// Package hub is the relay engine. A Hub owns every live connection and the
// room registry, and processes all connection events on a single goroutine so
// each handler observes and mutates room state atomically.
package hub

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/neonchat/neonchat/internal/metrics"
	"github.com/neonchat/neonchat/internal/models"
	"github.com/neonchat/neonchat/internal/rooms"
)

var ErrHubStopped = errors.New("hub stopped")

const (
	defaultSendBuffer    = 256
	defaultMaxFrameBytes = 64 * 1024
	defaultFrameWindow   = 10 * time.Second
)

// Options configures a Hub.
type Options struct {
	AllowedOrigins []string      // Empty allows any origin
	MaxFrameBytes  int64         // Inbound frames above this size close the connection
	SweepInterval  time.Duration // Zero disables idle room eviction
	SendBuffer     int           // Per-client outbound queue length
	FrameLimit     int           // Chat and reaction frames per FrameWindow; zero disables
	FrameWindow    time.Duration
}

type inbound struct {
	client *Client
	frame  models.Frame
}

// Hub routes relay events between connections.
type Hub struct {
	registry *rooms.Registry
	logger   zerolog.Logger
	opts     Options
	now      func() time.Time

	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	stats      chan chan models.RoomStats
	done       chan struct{}
}

// New creates a hub around the given registry. Call Run before serving.
func New(registry *rooms.Registry, logger zerolog.Logger, opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = defaultMaxFrameBytes
	}
	if opts.FrameLimit > 0 && opts.FrameWindow <= 0 {
		opts.FrameWindow = defaultFrameWindow
	}
	return &Hub{
		registry:   registry,
		logger:     logger.With().Str("component", "hub").Logger(),
		opts:       opts,
		now:        time.Now,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		stats:      make(chan chan models.RoomStats),
		done:       make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	var sweep <-chan time.Time
	if h.opts.SweepInterval > 0 {
		ticker := time.NewTicker(h.opts.SweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	defer func() {
		close(h.done)
		for id, c := range h.clients {
			delete(h.clients, id)
			close(c.send)
		}
		metrics.WSConnections.Set(0)
		metrics.ActiveRooms.Set(0)
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Int("connections", len(h.clients)).Msg("hub stopping")
			return

		case c := <-h.register:
			h.clients[c.ID] = c
			metrics.WSConnections.Inc()
			h.logger.Debug().Str("conn", c.ID).Str("remote_addr", c.remoteAddr).Msg("connection opened")

		case c := <-h.unregister:
			if _, ok := h.clients[c.ID]; !ok {
				continue
			}
			if c.state == StateBound {
				h.closeSession(c, "disconnected")
			}
			delete(h.clients, c.ID)
			close(c.send)
			metrics.WSConnections.Dec()
			h.logger.Debug().Str("conn", c.ID).Msg("connection closed")

		case in := <-h.inbound:
			if _, ok := h.clients[in.client.ID]; !ok {
				continue
			}
			h.handle(in.client, in.frame)

		case reply := <-h.stats:
			s := h.registry.Stats()
			s.Connections = len(h.clients)
			reply <- s

		case now := <-sweep:
			evicted := h.registry.Sweep(now)
			if len(evicted) > 0 {
				metrics.RoomsEvicted.Add(float64(len(evicted)))
				h.logger.Info().Int("rooms", len(evicted)).Msg("evicted idle rooms")
			}
		}
	}
}

// Stats returns a snapshot of the relay state, computed on the hub goroutine.
func (h *Hub) Stats(ctx context.Context) (models.RoomStats, error) {
	reply := make(chan models.RoomStats, 1)
	select {
	case h.stats <- reply:
	case <-h.done:
		return models.RoomStats{}, ErrHubStopped
	case <-ctx.Done():
		return models.RoomStats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return models.RoomStats{}, ctx.Err()
	}
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) dispatch(c *Client, f models.Frame) {
	select {
	case h.inbound <- inbound{client: c, frame: f}:
	case <-h.done:
	}
}

// sendTo queues a frame for one client. A full queue drops the frame rather
// than stalling the hub.
func (h *Hub) sendTo(c *Client, event string, data interface{}) {
	frame, err := models.NewFrame(event, data)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("encode frame failed")
		return
	}
	h.enqueue(c, event, frame)
}

func (h *Hub) enqueue(c *Client, event string, frame []byte) {
	select {
	case c.send <- frame:
	default:
		metrics.DroppedFrames.Inc()
		h.logger.Warn().Str("conn", c.ID).Str("event", event).Msg("send buffer full, frame dropped")
	}
}

// toRoom sends a frame to every member of a room except skip (may be nil).
func (h *Hub) toRoom(code string, skip *Client, event string, data interface{}) {
	frame, err := models.NewFrame(event, data)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("encode frame failed")
		return
	}
	for _, id := range h.registry.Members(code) {
		c, ok := h.clients[id]
		if !ok || c == skip {
			continue
		}
		h.enqueue(c, event, frame)
	}
}

// broadcastCount sends the live membership cardinality to the whole room.
func (h *Hub) broadcastCount(code string) {
	h.toRoom(code, nil, models.EventUserCountUpdate, h.registry.Count(code))
	metrics.ActiveRooms.Set(float64(h.registry.Stats().ActiveRooms))
}
