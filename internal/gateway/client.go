package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 4096
)

// Client is one WebSocket peer with its outbound queue and stream filters.
type Client struct {
	conn   *websocket.Conn
	outbox chan []byte
	hub    *Hub

	subMu sync.RWMutex
	subs  map[string]*ClientSubscription // keyed by symbol
}

// replayLatest pushes the hub's latest-per-channel cache to a freshly
// connected client. A non-empty lastTS suppresses entries the client
// already saw before reconnecting.
func (c *Client) replayLatest(lastTS string) {
	var cutoff time.Time
	if lastTS != "" {
		if t, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = t
		}
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}
		frame, _ := json.Marshal(map[string]interface{}{
			"channel": channel,
			"data":    json.RawMessage(entry.Data),
			"ts":      entry.TS.Format(time.RFC3339Nano),
			"initial": true,
		})
		select {
		case c.outbox <- frame:
		default:
		}
	}
}

// writeLoop drains the outbox onto the socket. Queued frames are coalesced
// into one WebSocket message with newline separators, which cuts syscalls
// when a burst of channels updates at once.
func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.outbox:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(frame)
			for pending := len(c.outbox); pending > 0; pending-- {
				w.Write([]byte{'\n'})
				w.Write(<-c.outbox)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes inbound control messages until the socket errors out.
func (c *Client) readLoop() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(msg)
	}
}

// dispatch routes one inbound client message by its type field.
func (c *Client) dispatch(msg []byte) {
	var head struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	if json.Unmarshal(msg, &head) != nil {
		return
	}

	switch head.Type {
	case "SUBSCRIBE":
		var req SubscribeMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			SendError(c, "", "invalid SUBSCRIBE: "+err.Error())
			return
		}
		go c.handleSubscribe(req)

	case "UNSUBSCRIBE":
		var req UnsubscribeMsg
		if json.Unmarshal(msg, &req) == nil {
			c.handleUnsubscribe(req)
		}

	default:
		// Legacy app-level ping: echo the client timestamp back with ours.
		if head.Ping > 0 {
			pong, _ := json.Marshal(map[string]interface{}{
				"type":      "pong",
				"ping":      head.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			select {
			case c.outbox <- pong:
			default:
			}
		}
	}
}

func (c *Client) handleSubscribe(req SubscribeMsg) {
	if req.Symbol == "" {
		SendError(c, req.ReqID, "symbol is required")
		return
	}

	sub := &ClientSubscription{
		Symbol:  req.Symbol,
		Streams: normalizeStreams(req.Streams),
	}
	c.subMu.Lock()
	c.subs[sub.Symbol] = sub
	c.subMu.Unlock()

	log.Printf("[subscribe] client subscribed: symbol=%s streams=%v", req.Symbol, sub.Streams)

	limit := req.History
	if limit <= 0 {
		limit = 200
	}
	snap, err := BuildSnapshotFromRedis(context.Background(), c.hub.Rdb, sub, limit)
	if err != nil {
		SendError(c, req.ReqID, "snapshot build failed: "+err.Error())
		return
	}
	snap.ReqID = req.ReqID

	SendJSON(c, snap)
	log.Printf("[subscribe] sent snapshot: symbol=%s prices=%d indicators=%d regimes=%d",
		req.Symbol, len(snap.Prices), len(snap.Indicators), len(snap.Regimes))
}

func (c *Client) handleUnsubscribe(req UnsubscribeMsg) {
	c.subMu.Lock()
	delete(c.subs, req.Symbol)
	c.subMu.Unlock()

	log.Printf("[subscribe] client unsubscribed: symbol=%s", req.Symbol)
}

// wants reports whether this client should receive frames on the given
// PubSub channel. A client with no subscriptions gets everything, and
// non-data channels (metrics, config) are always delivered.
func (c *Client) wants(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if len(c.subs) == 0 {
		return true
	}

	stream, symbol, ok := splitChannel(channel)
	if !ok {
		return true
	}
	sub, subscribed := c.subs[symbol]
	if !subscribed {
		return false
	}
	for _, s := range sub.Streams {
		if s == stream {
			return true
		}
	}
	return false
}

// splitChannel breaks a data channel like "pub:ind:BTC-USD" into its
// stream and symbol parts. ok is false for anything else.
func splitChannel(channel string) (stream, symbol string, ok bool) {
	parts := strings.SplitN(channel, ":", 3)
	if len(parts) != 3 || parts[0] != "pub" || parts[2] == "" {
		return "", "", false
	}
	switch parts[1] {
	case "price", "ind", "regime", "decision":
		return parts[1], parts[2], true
	}
	return "", "", false
}

// normalizeStreams filters the requested stream names down to the known
// set; an empty or fully-invalid request means all streams.
func normalizeStreams(requested []string) []string {
	known := []string{"price", "ind", "regime", "decision"}
	if len(requested) == 0 {
		return known
	}
	var out []string
	for _, r := range requested {
		for _, k := range known {
			if r == k {
				out = append(out, r)
				break
			}
		}
	}
	if len(out) == 0 {
		return known
	}
	return out
}
