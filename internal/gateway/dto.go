package gateway

import "encoding/json"

// MissedResponse is the REST response type for /api/missed.
type MissedResponse struct {
	Channel    string            `json:"channel"`
	From       int64             `json:"from"`
	To         int64             `json:"to"`
	CurrentSeq int64             `json:"current_seq"`
	Messages   []json.RawMessage `json:"messages"`
}
