package gateway

import (
	"context"
	"encoding/json"
	"log"

	goredis "github.com/go-redis/redis/v8"
)

// ── WS protocol message types ──

// SubscribeMsg is the client → server SUBSCRIBE request.
type SubscribeMsg struct {
	Type    string   `json:"type"`    // "SUBSCRIBE"
	ReqID   string   `json:"reqId"`   // client-generated request ID
	Symbol  string   `json:"symbol"`  // e.g. "BTC-USD"
	Streams []string `json:"streams"` // subset of price/ind/regime/decision; empty = all
	History int      `json:"history"` // number of historical entries per stream
}

// UnsubscribeMsg is the client → server UNSUBSCRIBE request.
type UnsubscribeMsg struct {
	Type   string `json:"type"` // "UNSUBSCRIBE"
	ReqID  string `json:"reqId"`
	Symbol string `json:"symbol"`
}

// SnapshotResponse is the server → client SNAPSHOT with historical data.
type SnapshotResponse struct {
	Type       string            `json:"type"` // "SNAPSHOT"
	ReqID      string            `json:"reqId"`
	Symbol     string            `json:"symbol"`
	Prices     []json.RawMessage `json:"prices"`
	Indicators []json.RawMessage `json:"indicators"`
	Regimes    []json.RawMessage `json:"regimes"`
}

// ErrorResponse is the server → client ERROR message.
type ErrorResponse struct {
	Type  string `json:"type"` // "ERROR"
	ReqID string `json:"reqId,omitempty"`
	Error string `json:"error"`
}

// ClientSubscription holds one client's per-symbol stream selection.
type ClientSubscription struct {
	Symbol  string
	Streams []string
}

// BuildSnapshotFromRedis assembles the recent history of the subscribed
// streams from Redis so a late-joining client can render immediately
// instead of waiting for live updates. Decisions have no stream entry
// here: they are live-only.
func BuildSnapshotFromRedis(ctx context.Context, rdb *goredis.Client, sub *ClientSubscription, limit int) (*SnapshotResponse, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}

	snap := &SnapshotResponse{
		Type:       "SNAPSHOT",
		Symbol:     sub.Symbol,
		Prices:     []json.RawMessage{},
		Indicators: []json.RawMessage{},
		Regimes:    []json.RawMessage{},
	}

	for _, stream := range sub.Streams {
		var dst *[]json.RawMessage
		switch stream {
		case "price":
			dst = &snap.Prices
		case "ind":
			dst = &snap.Indicators
		case "regime":
			dst = &snap.Regimes
		default:
			continue
		}

		entries, err := readStreamTail(ctx, rdb, stream+":"+sub.Symbol, limit)
		if err != nil {
			// A missing stream must not sink the whole snapshot.
			log.Printf("[subscribe] stream read error for %s:%s: %v", stream, sub.Symbol, err)
			continue
		}
		*dst = append(*dst, entries...)
	}

	return snap, nil
}

// readStreamTail returns up to limit "data" payloads from the tail of a
// Redis stream, oldest first.
func readStreamTail(ctx context.Context, rdb *goredis.Client, key string, limit int) ([]json.RawMessage, error) {
	msgs, err := rdb.XRevRangeN(ctx, key, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, err
	}

	// XRevRange yields newest first; flip to chronological order.
	out := make([]json.RawMessage, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		if data, ok := msgs[i].Values["data"].(string); ok {
			out = append(out, json.RawMessage(data))
		}
	}
	return out, nil
}

// SendJSON marshals a message onto the client's outbox, dropping it if
// the outbox is full.
func SendJSON(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[subscribe] json marshal error: %v", err)
		return
	}
	select {
	case c.outbox <- data:
	default:
		log.Println("[subscribe] client send buffer full, dropping message")
	}
}

// SendError sends an error response to the client.
func SendError(c *Client, reqID, errMsg string) {
	SendJSON(c, ErrorResponse{
		Type:  "ERROR",
		ReqID: reqID,
		Error: errMsg,
	})
}
