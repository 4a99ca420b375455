package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"marketpulse/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// Hub owns the WebSocket client set and the shared per-channel state.
// The moving parts are split into focused components it composes:
// PubSubRouter (Redis subscriptions), Broadcaster (envelope construction
// and fan-out) and ConfigStore (risk config CRUD + broadcast).
type Hub struct {
	Rdb     *goredis.Client
	Symbols []string

	mu      sync.RWMutex
	conns   map[*Client]bool
	latest  map[string]latestEntry
	seq     int64            // global envelope counter
	chanSeq map[string]int64 // per-channel counters for gap detection
	replay  map[string]*ReplayBuffer

	riskConfig model.RiskConfig

	// End-to-end delivery latency samples
	Latency *LatencyTracker

	Router      *PubSubRouter
	Broadcaster *Broadcaster
	ConfigStore *ConfigStore
}

// latestEntry caches the most recent payload seen on a channel.
type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates a Hub serving the given symbols.
func NewHub(rdb *goredis.Client, symbols []string) *Hub {
	h := &Hub{
		Rdb:        rdb,
		Symbols:    symbols,
		conns:      make(map[*Client]bool),
		latest:     make(map[string]latestEntry),
		chanSeq:    make(map[string]int64),
		replay:     make(map[string]*ReplayBuffer),
		Latency:    NewLatencyTracker(10000),
		riskConfig: model.DefaultRiskConfig(),
	}
	h.Router = NewPubSubRouter(h)
	h.Broadcaster = NewBroadcaster(h)
	h.ConfigStore = NewConfigStore(h, rdb)

	// Pick up a previously persisted risk config, if any.
	h.ConfigStore.Load(context.Background())

	return h
}

// GetRiskConfig returns the active account risk configuration.
func (h *Hub) GetRiskConfig() model.RiskConfig {
	return h.ConfigStore.Get()
}

// SetRiskConfig stores, persists and broadcasts a new risk configuration.
func (h *Hub) SetRiskConfig(cfg model.RiskConfig) {
	h.ConfigStore.Set(cfg)
}

// Run starts the PubSub subscription loops and blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	go h.Router.RunPattern(ctx)
	h.Router.RunExplicit(ctx)
}

// buildChannels lists the explicit PubSub channels for the configured
// symbols. Only price channels are explicit; the derived streams (ind,
// regime, decision) arrive via the pattern subscription so symbols that
// appear after startup are covered without double delivery.
func (h *Hub) buildChannels() []string {
	var channels []string
	for _, sym := range h.Symbols {
		channels = append(channels, "pub:price:"+sym)
	}
	return channels
}

// fanout delivers one frame to every connected client passing the filter,
// dropping it for clients whose outbox is full. A nil filter means all.
func (h *Hub) fanout(frame []byte, filter func(*Client) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		if filter != nil && !filter(c) {
			continue
		}
		select {
		case c.outbox <- frame:
		default:
		}
	}
}

// HandleWSRequest registers an upgraded WebSocket connection as a client.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastTS string) {
	c := &Client{
		conn:   conn,
		outbox: make(chan []byte, 256),
		hub:    h,
		subs:   make(map[string]*ClientSubscription),
	}
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.conns[c] = true
	total := len(h.conns)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", total)

	go c.replayLatest(lastTS)
	go c.writeLoop()
	go c.readLoop()
}

// RemoveClient drops a client and closes its outbox.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	close(c.outbox)
}

// GetLatestAll returns a copy of the latest payload per channel.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(h.latest))
	for ch, entry := range h.latest {
		out[ch] = entry.Data
	}
	return out
}

// GetReplayRange returns buffered envelopes for a channel with sequence
// numbers in [fromSeq, toSeq]. Serves the /api/missed gap backfill.
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb := h.replay[channel]
	h.mu.RUnlock()
	if rb == nil {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	frames := make([][]byte, len(entries))
	for i, e := range entries {
		frames[i] = e.Data
	}
	return frames
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.chanSeq[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// StartMetricsBroadcast pushes a system metrics frame to every client on a
// fixed cadence. Blocks until ctx is done.
func (h *Hub) StartMetricsBroadcast(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.fanout(h.metricsFrame(ctx, start), nil)
		}
	}
}

// metricsFrame assembles one metrics envelope, merging host metrics with
// the engine's compute latency and the hub's delivery percentiles.
func (h *Hub) metricsFrame(ctx context.Context, start time.Time) []byte {
	m := CollectMetrics(start)
	if v, ok := ReadComputeLatency(ctx, h.Rdb); ok {
		m.ComputeMs = v
	}
	if h.Latency != nil {
		m.LatencyP50, m.LatencyP95, m.LatencyP99 = h.Latency.Percentiles()
	}
	frame, _ := json.Marshal(map[string]interface{}{
		"type":    "metrics",
		"metrics": m,
	})
	return frame
}
