// Package feed provides the WebSocket price-feed client. It connects to a
// JSON tick stream, optionally authenticates with an API key plus a fresh
// TOTP code, subscribes to the configured symbols, and pushes normalized
// model.PricePoint values into the pipeline channel.
//
// The expected JSON message format on the wire is identical to
// model.PricePoint:
//
//	{"symbol":"BTC-USD","price":50123.5,"volume":0.42,"ts":"..."}
//
// Feeds without authentication (e.g. cmd/feedsim) work with an empty
// APIKey; the auth frame is skipped entirely.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"marketpulse/internal/model"
)

// Config holds configuration for the feed client.
type Config struct {
	// URL of the price WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// APIKey enables the auth handshake when non-empty.
	APIKey string

	// TOTPSecret, when set, is used to generate a fresh one-time code for
	// each (re)connection. A stale code is the most common cause of auth
	// failures after long disconnects, so the code is never cached.
	TOTPSecret string

	// Symbols to subscribe after connecting.
	Symbols []string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// authFrame is the first message sent on an authenticated connection.
type authFrame struct {
	Action string `json:"action"`
	APIKey string `json:"api_key"`
	TOTP   string `json:"totp,omitempty"`
}

// subscribeFrame requests the symbol streams.
type subscribeFrame struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// Client connects to the feed and streams price points until cancelled.
type Client struct {
	cfg Config

	// Optional hook — called each time a reconnection happens.
	OnReconnect func()
}

// New creates a new Client. Returns an error if the URL is unparseable.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg}, nil
}

// Start connects to the feed and streams points into out.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
func (c *Client) Start(ctx context.Context, out chan<- model.PricePoint) error {
	delay := c.cfg.ReconnectDelay

	for {
		// Check context before each attempt
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := c.runOnce(ctx, out)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if c.OnReconnect != nil {
			c.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or ctx cancel.
func (c *Client) runOnce(ctx context.Context, out chan<- model.PricePoint) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[feed] connected to %s", c.cfg.URL)

	if err := c.login(conn); err != nil {
		return fmt.Errorf("feed: login: %w", err)
	}

	if len(c.cfg.Symbols) > 0 {
		sub := subscribeFrame{Action: "subscribe", Symbols: c.cfg.Symbols}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("feed: subscribe: %w", err)
		}
		log.Printf("[feed] subscribed to %d symbols", len(c.cfg.Symbols))
	}

	// Async context watcher — closes the connection when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// Check if it's a context cancellation
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var pt model.PricePoint
		if err := json.Unmarshal(raw, &pt); err != nil {
			log.Printf("[feed] parse error: %v (raw: %s)", err, raw)
			continue
		}

		if pt.Symbol == "" {
			log.Printf("[feed] skipping tick with empty symbol")
			continue
		}
		if pt.TS.IsZero() {
			pt.TS = time.Now().UTC()
		}

		select {
		case out <- pt:
		default:
			log.Println("[feed] out channel full, dropping tick")
		}
	}
}

// login sends the auth frame. A fresh TOTP code is generated per connection
// when a secret is configured.
func (c *Client) login(conn *websocket.Conn) error {
	if c.cfg.APIKey == "" {
		return nil
	}

	frame := authFrame{Action: "auth", APIKey: c.cfg.APIKey}
	if c.cfg.TOTPSecret != "" {
		code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
		if err != nil {
			return fmt.Errorf("generate totp: %w", err)
		}
		frame.TOTP = code
	}
	return conn.WriteJSON(frame)
}
