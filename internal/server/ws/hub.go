// Package ws streams relayed signals to dashboard clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 4096
	sendBufferSize = 64

	defaultReplaySize = 20
)

// Frame types sent to clients.
const (
	FrameStatus = "relay_status"
	FrameSignal = "signal"
	FrameReplay = "replay"
	FrameFilter = "filter"
)

var errInvalidPayload = errors.New("ws: bus payload is not a signal event")

// frame is the envelope of every server message.
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// relayed is one signal event taken off the bus, with the fields clients
// filter on pulled out.
type relayed struct {
	symbol string
	kind   string
	raw    json.RawMessage
}

func decodeRelayed(data []byte) (relayed, error) {
	var head struct {
		Symbol string `json:"symbol"`
		Kind   string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return relayed{}, fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	if head.Symbol == "" {
		return relayed{}, errInvalidPayload
	}
	return relayed{
		symbol: strings.ToUpper(head.Symbol),
		kind:   strings.ToUpper(head.Kind),
		raw:    data,
	}, nil
}

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
	// Positions reports the number of open positions; may be nil.
	Positions func() int
	// AllowedOrigins restricts browser origins; empty allows any.
	AllowedOrigins []string
	// ReplaySize is how many recent signals a new client receives.
	ReplaySize int
}

// Hub fans relayed signals out to connected clients. Client membership,
// client filters and the replay buffer are owned by the Run goroutine.
type Hub struct {
	bus      domain.SignalBus
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mode      string
	startedAt time.Time
	positions func() int

	register   chan *client
	unregister chan *client
	filters    chan filterReq
	done       chan struct{}
	connected  atomic.Int64

	clients    map[*client]struct{}
	recent     []relayed
	replaySize int
}

// NewHub creates a Hub reading from bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	replay := cfg.ReplaySize
	if replay <= 0 {
		replay = defaultReplaySize
	}

	return &Hub{
		bus:    bus,
		logger: logger.With(slog.String("component", "ws")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		mode:       mode,
		startedAt:  startedAt,
		positions:  cfg.Positions,
		register:   make(chan *client),
		unregister: make(chan *client),
		filters:    make(chan filterReq),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
		replaySize: replay,
	}
}

// Run subscribes to the signal channel and serves clients until ctx is
// cancelled. It must be called once.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	msgs, err := h.bus.Subscribe(ctx, domain.ChannelSignals)
	if err != nil {
		return fmt.Errorf("ws: subscribe: %w", err)
	}
	h.logger.Info("streaming signals", slog.String("channel", domain.ChannelSignals))

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case c := <-h.register:
			h.add(c)

		case c := <-h.unregister:
			h.remove(c)

		case req := <-h.filters:
			h.applyFilter(req)

		case data, ok := <-msgs:
			if !ok {
				h.closeAll()
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("ws: signal subscription closed")
			}
			ev, err := decodeRelayed(data)
			if err != nil {
				h.logger.Warn("dropping bus message", slog.String("error", err.Error()))
				continue
			}
			h.remember(ev)
			h.fanout(ev)
		}
	}
}

// HandleWS upgrades the request and registers the client. The optional
// symbols and kinds query parameters (comma separated) set the initial
// filter.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn)
	c.setFilter(splitParam(r.URL.Query().Get("symbols")), splitParam(r.URL.Query().Get("kinds")))

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

func (h *Hub) add(c *client) {
	h.clients[c] = struct{}{}
	h.connected.Add(1)

	c.enqueue(h.statusFrame())
	for _, ev := range h.recent {
		if c.wants(ev) {
			c.enqueue(encodeFrame(FrameReplay, ev.raw))
		}
	}
	h.logger.Info("client connected", slog.Int("clients", len(h.clients)))
}

func (h *Hub) remove(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.connected.Add(-1)
	close(c.send)
	h.logger.Info("client disconnected", slog.Int("clients", len(h.clients)))
}

func (h *Hub) applyFilter(req filterReq) {
	if _, ok := h.clients[req.c]; !ok {
		return
	}
	c := req.c
	switch strings.ToLower(req.msg.Action) {
	case "filter":
		c.setFilter(req.msg.Symbols, req.msg.Kinds)
	case "clear":
		c.setFilter(nil, nil)
	default:
		return
	}
	ack, _ := json.Marshal(map[string]any{
		"symbols": sortedKeys(c.symbols),
		"kinds":   sortedKeys(c.kinds),
	})
	c.enqueue(encodeFrame(FrameFilter, ack))
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		h.remove(c)
	}
}

// remember keeps the last replaySize events.
func (h *Hub) remember(ev relayed) {
	h.recent = append(h.recent, ev)
	if over := len(h.recent) - h.replaySize; over > 0 {
		h.recent = append(h.recent[:0], h.recent[over:]...)
	}
}

// fanout delivers ev to every interested client. A client whose buffer is
// full is disconnected.
func (h *Hub) fanout(ev relayed) {
	msg := encodeFrame(FrameSignal, ev.raw)
	for c := range h.clients {
		if !c.wants(ev) {
			continue
		}
		if !c.enqueue(msg) {
			h.logger.Warn("disconnecting slow client", slog.String("symbol", ev.symbol))
			h.remove(c)
		}
	}
}

func (h *Hub) statusFrame() []byte {
	uptime := max(int64(time.Since(h.startedAt).Seconds()), 0)
	open := 0
	if h.positions != nil {
		open = h.positions()
	}
	payload, _ := json.Marshal(map[string]any{
		"mode":           h.mode,
		"uptime_seconds": uptime,
		"open_positions": open,
		"clients":        len(h.clients),
	})
	return encodeFrame(FrameStatus, payload)
}

func encodeFrame(kind string, payload json.RawMessage) []byte {
	b, _ := json.Marshal(frame{Type: kind, Payload: payload})
	return b
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(set) == 0 || origin == "" || set["*"] {
			return true
		}
		return set[origin]
	}
}

func splitParam(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
