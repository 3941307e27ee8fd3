package ws

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// client is one WebSocket connection. After registration, send and the
// filter sets are touched only by the hub's Run goroutine.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	symbols map[string]bool // empty means every symbol
	kinds   map[string]bool // empty means every kind
}

// filterMsg is what a client sends to change its filter:
//
//	{"action":"filter","symbols":["BTCUSDT"],"kinds":["TP1_HIT"]}
//	{"action":"clear"}
type filterMsg struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
	Kinds   []string `json:"kinds"`
}

type filterReq struct {
	c   *client
	msg filterMsg
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	return &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

func (c *client) setFilter(symbols, kinds []string) {
	c.symbols = upperSet(symbols)
	c.kinds = upperSet(kinds)
}

func (c *client) wants(ev relayed) bool {
	if len(c.symbols) > 0 && !c.symbols[ev.symbol] {
		return false
	}
	if len(c.kinds) > 0 && !c.kinds[ev.kind] {
		return false
	}
	return true
}

// enqueue reports false when the client's buffer is full.
func (c *client) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
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
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var msg filterMsg
		if json.Unmarshal(data, &msg) != nil || msg.Action == "" {
			continue
		}
		select {
		case c.hub.filters <- filterReq{c: c, msg: msg}:
		case <-c.hub.done:
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func upperSet(vals []string) map[string]bool {
	set := make(map[string]bool, len(vals))
	for _, v := range vals {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			set[v] = true
		}
	}
	return set
}
