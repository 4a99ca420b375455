package gateway

import (
	"context"
	"log"

	goredis "github.com/go-redis/redis/v8"
)

// PubSubRouter feeds Redis PubSub traffic into the broadcaster.
type PubSubRouter struct {
	hub *Hub
}

// NewPubSubRouter creates a PubSubRouter backed by the given Hub.
func NewPubSubRouter(hub *Hub) *PubSubRouter {
	return &PubSubRouter{hub: hub}
}

// RunExplicit subscribes to the per-symbol price channels and routes
// their messages. Blocks until ctx is cancelled.
func (r *PubSubRouter) RunExplicit(ctx context.Context) {
	channels := r.hub.buildChannels()
	if len(channels) == 0 {
		log.Println("[gateway] WARNING: no explicit channels to subscribe to")
		return
	}

	sub := r.hub.Rdb.Subscribe(ctx, channels...)
	log.Printf("[gateway] subscribed to %d PubSub channels", len(channels))
	r.pump(ctx, sub)
}

// RunPattern subscribes to wildcard patterns for the derived streams so
// symbols that appear after startup still reach clients. Blocks until ctx
// is cancelled.
func (r *PubSubRouter) RunPattern(ctx context.Context) {
	sub := r.hub.Rdb.PSubscribe(ctx, "pub:ind:*", "pub:regime:*", "pub:decision:*")
	r.pump(ctx, sub)
}

// pump forwards messages from one subscription into the broadcaster until
// ctx is cancelled or the subscription closes.
func (r *PubSubRouter) pump(ctx context.Context, sub *goredis.PubSub) {
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.hub.Broadcaster.Broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}
