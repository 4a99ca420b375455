// cmd/feedsim — Demo WebSocket price server.
// Broadcasts simulated price points for testing analysisd without real feed
// credentials.
//
// Price JSON shape is identical to model.PricePoint:
//
//	{"symbol":"BTC-USD","price":50123.5,"volume":0.42,"ts":"..."}
//
// Config (env vars):
//
//	FEEDSIM_ADDR         — listen address  (default: ":8082")
//	FEEDSIM_SYMBOLS      — comma-separated symbols (default: "BTC-USD,ETH-USD,SOL-USD")
//	FEEDSIM_INTERVAL_MS  — broadcast interval milliseconds (default: "1000")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"marketpulse/internal/model"

	"github.com/gorilla/websocket"
)

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol string
	Price  float64
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type client struct {
	ch      chan []byte
	mu      sync.Mutex
	symbols map[string]bool // nil = all symbols
}

func (c *client) wants(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.symbols == nil || c.symbols[symbol]
}

func (c *client) setSymbols(symbols []string) {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[s] = true
	}
	c.mu.Lock()
	c.symbols = set
	c.mu.Unlock()
}

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]*client)}
}

func (h *hub) register(conn *websocket.Conn) *client {
	c := &client{ch: make(chan []byte, 256)}
	h.mu.Lock()
	h.clients[conn] = c
	h.mu.Unlock()
	return c
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if c, ok := h.clients[conn]; ok {
		close(c.ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(symbol string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.wants(symbol) {
			continue
		}
		select {
		case c.ch <- msg:
		default: // slow client — drop point
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[feedsim] upgrade error: %v", err)
			return
		}
		log.Printf("[feedsim] client connected: %s", r.RemoteAddr)

		c := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[feedsim] client disconnected: %s", r.RemoteAddr)
		}()

		// Read pump: accept auth/subscribe frames; auth is a no-op here.
		go func() {
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var frame struct {
					Action  string   `json:"action"`
					Symbols []string `json:"symbols"`
				}
				if json.Unmarshal(msg, &frame) != nil {
					continue
				}
				if frame.Action == "subscribe" && len(frame.Symbols) > 0 {
					c.setSymbols(frame.Symbols)
					log.Printf("[feedsim] %s subscribed: %v", r.RemoteAddr, frame.Symbols)
				}
			}
		}()

		// Write pump: sends price JSON to this client.
		for msg := range c.ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Price generator ──────────────────────────────────────────────────────────

// walkPrice applies a tiny random walk (±0.1%) to simulate price movement.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	newPrice := price * (1 + pct)
	if newPrice < 0.01 {
		newPrice = 0.01
	}
	return newPrice
}

func runGenerator(h *hub, instruments []instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now().UTC()
		for i := range instruments {
			instruments[i].Price = walkPrice(instruments[i].Price)
			pt := model.PricePoint{
				Symbol: instruments[i].Symbol,
				Price:  instruments[i].Price,
				Volume: rand.Float64() * 10,
				TS:     now,
			}
			h.broadcast(pt.Symbol, pt.JSON())
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedsim] starting demo price server...")

	addr := envOrDefault("FEEDSIM_ADDR", ":8082")
	symbolsEnv := envOrDefault("FEEDSIM_SYMBOLS", "BTC-USD,ETH-USD,SOL-USD")
	intervalMs := envIntOrDefault("FEEDSIM_INTERVAL_MS", 1000)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[feedsim] no symbols configured via FEEDSIM_SYMBOLS")
	}
	log.Printf("[feedsim] instruments: %+v", instruments)
	log.Printf("[feedsim] broadcast interval: %dms", intervalMs)

	h := newHub()

	go runGenerator(h, instruments, intervalMs)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})

	log.Printf("[feedsim] ✅ listening on %s  (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[feedsim] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseInstruments(s string) []instrument {
	defaultPrices := map[string]float64{
		"BTC-USD": 50000,
		"ETH-USD": 3000,
		"SOL-USD": 150,
	}

	var result []instrument
	for _, part := range strings.Split(s, ",") {
		symbol := strings.TrimSpace(part)
		if symbol == "" {
			continue
		}
		price := defaultPrices[symbol]
		if price == 0 {
			price = 100
		}
		result = append(result, instrument{Symbol: symbol, Price: price})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
