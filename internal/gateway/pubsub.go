package gateway

import (
	"context"
	"log/slog"

	storeredis "crossover-sim/internal/store/redis"

	goredis "github.com/go-redis/redis/v8"
)

// PubSubRouter relays runs published to Redis by any process into the hub.
type PubSubRouter struct {
	hub *Hub
	rdb *goredis.Client
	log *slog.Logger
}

// NewPubSubRouter creates a router from rdb to hub.
func NewPubSubRouter(hub *Hub, rdb *goredis.Client, log *slog.Logger) *PubSubRouter {
	if log == nil {
		log = slog.Default()
	}
	return &PubSubRouter{hub: hub, rdb: rdb, log: log.With("component", "pubsub")}
}

// Run subscribes to the run channel. Blocks until ctx is cancelled.
func (r *PubSubRouter) Run(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, storeredis.PubSubChannel)
	defer pubsub.Close()

	r.log.Info("subscribed", "channel", storeredis.PubSubChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.hub.Broadcast([]byte(msg.Payload))
		}
	}
}
