package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"marketpulse/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// writeJSON applies CORS + content type and encodes v onto the response.
func writeJSON(w http.ResponseWriter, v interface{}) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, rdb *goredis.Client, ctx context.Context, processStart time.Time) {
	mux.HandleFunc("/ws", handleWS(hub))
	mux.HandleFunc("/api/latest", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, hub.GetLatestAll())
	})
	mux.HandleFunc("/api/symbols", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, hub.Symbols)
	})
	mux.HandleFunc("/api/config", handleConfig(hub))
	mux.HandleFunc("/api/metrics", handleMetrics(hub, rdb, processStart))
	mux.HandleFunc("/api/missed", handleMissed(hub))

	// Historical reads straight from the per-symbol Redis streams.
	mux.HandleFunc("/api/prices", handleHistory(rdb, ctx, "price:"))
	mux.HandleFunc("/api/indicators/history", handleHistory(rdb, ctx, "ind:"))
	mux.HandleFunc("/api/regimes/history", handleHistory(rdb, ctx, "regime:"))

	mux.HandleFunc("/health", handleHealth(hub, rdb, processStart))
}

// handleWS upgrades the connection and hands it to the hub.
func handleWS(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWSRequest(conn, r.URL.Query().Get("last_ts"))
	}
}

// handleConfig serves GET/POST /api/config for the account risk settings.
func handleConfig(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)

		case http.MethodPost:
			var req model.RiskConfig
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
				return
			}
			if req.Capital <= 0 || req.DailyStopLossPct <= 0 {
				http.Error(w, `{"error":"capital and daily_stop_loss_pct must be positive"}`, http.StatusBadRequest)
				return
			}
			hub.SetRiskConfig(req)
			log.Printf("[gateway] risk config updated: capital=%.2f stopLoss=%.2f%%",
				req.Capital, req.DailyStopLossPct)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})

		default:
			json.NewEncoder(w).Encode(hub.GetRiskConfig())
		}
	}
}

// handleMetrics serves a one-shot system metrics snapshot.
func handleMetrics(hub *Hub, rdb *goredis.Client, processStart time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := CollectMetrics(processStart)
		if v, ok := ReadComputeLatency(r.Context(), rdb); ok {
			m.ComputeMs = v
		}
		if hub.Latency != nil {
			m.LatencyP50, m.LatencyP95, m.LatencyP99 = hub.Latency.Percentiles()
		}
		writeJSON(w, m)
	}
}

// handleMissed serves gap backfill: the envelopes a client missed on one
// channel between two sequence numbers.
func handleMissed(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		q := r.URL.Query()
		channel := q.Get("channel")
		from, _ := strconv.ParseInt(q.Get("from"), 10, 64)
		to, _ := strconv.ParseInt(q.Get("to"), 10, 64)
		if channel == "" || from <= 0 {
			http.Error(w, `{"error":"channel and from are required"}`, http.StatusBadRequest)
			return
		}
		if to <= 0 {
			to = hub.GetChannelSeq(channel)
		}

		frames := hub.GetReplayRange(channel, from, to)
		resp := MissedResponse{
			Channel:    channel,
			From:       from,
			To:         to,
			CurrentSeq: hub.GetChannelSeq(channel),
			Messages:   make([]json.RawMessage, len(frames)),
		}
		for i, f := range frames {
			resp.Messages[i] = json.RawMessage(f)
		}
		json.NewEncoder(w).Encode(resp)
	}
}

// handleHistory serves the recent tail of the stream keyPrefix+symbol in
// chronological order. Errors and unknown symbols yield an empty array so
// dashboards can render without special-casing.
func handleHistory(rdb *goredis.Client, ctx context.Context, keyPrefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			writeJSON(w, []interface{}{})
			return
		}

		limit := 200
		if s := r.URL.Query().Get("limit"); s != "" {
			if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 1000 {
				limit = l
			}
		}

		entries, err := readStreamTail(ctx, rdb, keyPrefix+symbol, limit)
		if err != nil {
			writeJSON(w, []interface{}{})
			return
		}
		writeJSON(w, entries)
	}
}

// handleHealth reports liveness plus the Redis and client-count state.
func handleHealth(hub *Hub, rdb *goredis.Client, processStart time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redisOK := rdb.Ping(r.Context()).Err() == nil
		writeJSON(w, map[string]interface{}{
			"status":     "ok",
			"redis":      redisOK,
			"ws_clients": hub.ClientCount(),
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}
