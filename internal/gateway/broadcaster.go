package gateway

import (
	"encoding/json"
	"strconv"
	"time"
)

// Broadcaster turns raw PubSub payloads into sequenced envelopes and fans
// them out to subscribed clients.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast wraps data in an envelope and delivers it to every client
// subscribed to the channel. The envelope JSON is assembled by hand: this
// runs once per payload per channel and appending beats json.Marshal by
// an order of magnitude here.
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()
	b.recordLatency(now, data)

	h := b.hub
	h.mu.Lock()
	h.chanSeq[channel]++
	channelSeq := h.chanSeq[channel]
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	frame := appendEnvelope(nil, channel, data, now, seq, channelSeq)

	b.retain(channel, channelSeq, frame)
	h.fanout(frame, func(c *Client) bool { return c.wants(channel) })
}

// appendEnvelope appends the wire envelope for one payload to dst.
func appendEnvelope(dst []byte, channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	if dst == nil {
		dst = make([]byte, 0, len(channel)+len(data)+160)
	}
	dst = append(dst, `{"channel":"`...)
	dst = append(dst, channel...)
	dst = append(dst, `","data":`...)
	dst = append(dst, data...)
	dst = append(dst, `,"ts":"`...)
	dst = now.AppendFormat(dst, time.RFC3339Nano)
	dst = append(dst, `","seq":`...)
	dst = strconv.AppendInt(dst, seq, 10)
	dst = append(dst, `,"channel_seq":`...)
	dst = strconv.AppendInt(dst, channelSeq, 10)
	dst = append(dst, '}')
	return dst
}

// retain stores the envelope in the channel's replay buffer so a
// reconnecting client can backfill the gap via /api/missed.
func (b *Broadcaster) retain(channel string, channelSeq int64, frame []byte) {
	h := b.hub
	h.mu.Lock()
	rb := h.replay[channel]
	if rb == nil {
		rb = NewReplayBuffer(500)
		h.replay[channel] = rb
	}
	h.mu.Unlock()
	rb.Push(channelSeq, frame)
}

// recordLatency feeds the delivery-latency tracker from the payload's own
// source timestamp, when it carries one.
func (b *Broadcaster) recordLatency(now time.Time, data []byte) {
	if b.hub.Latency == nil {
		return
	}
	src := extractTS(data)
	if src.IsZero() {
		return
	}
	ms := float64(now.Sub(src).Microseconds()) / 1000.0
	if ms >= 0 {
		b.hub.Latency.Record(ms)
	}
}

// extractTS pulls a source timestamp out of a JSON payload. Price points
// carry "ts"; indicator snapshots and regime states carry "computed_at".
func extractTS(data []byte) time.Time {
	var partial struct {
		TS         time.Time `json:"ts"`
		ComputedAt time.Time `json:"computed_at"`
	}
	if json.Unmarshal(data, &partial) != nil {
		return time.Time{}
	}
	if !partial.TS.IsZero() {
		return partial.TS
	}
	return partial.ComputedAt
}
