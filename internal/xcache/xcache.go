// Package xcache implements the optional cross-node zone-invalidation bus
// for multi-instance deployments: a node that accepts a publish broadcasts
// the key over Redis pub/sub so its peers drop their in-memory projection
// and re-hydrate from their own store on the next lookup.
package xcache

import (
	"context"
	"time"

	"github.com/pkarrdns/pkarrdns/internal/log"
	"github.com/pkarrdns/pkarrdns/internal/zkey"
	"github.com/pkarrdns/pkarrdns/internal/zone"
	"github.com/redis/go-redis/v9"
)

// InvalidationChannel is the pub/sub channel invalidation keys travel on.
const InvalidationChannel = "pkarr:invalidation"

var logger = log.PrefixedLog("xcache")

// Bus is a Redis-backed invalidation broadcaster and subscriber.
type Bus struct {
	client *redis.Client
}

// New connects to the Redis instance at addr.
func New(addr string) *Bus {
	return &Bus{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Ping verifies connectivity; called once at startup so a misconfigured
// bus fails fast instead of silently never invalidating.
func (b *Bus) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return b.client.Ping(pingCtx).Err()
}

// Invalidate publishes the z32 key to every subscribed peer.
func (b *Bus) Invalidate(key string) error {
	return b.client.Publish(context.Background(), InvalidationChannel, key).Err()
}

// Subscribe applies incoming invalidations to authority until ctx is
// cancelled. Keys that fail to parse are logged and skipped.
func (b *Bus) Subscribe(ctx context.Context, authority *zone.NodeAuthority) {
	pubsub := b.client.Subscribe(ctx, InvalidationChannel)
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				key, err := zkey.Parse(msg.Payload)
				if err != nil {
					logger.WithField("payload", msg.Payload).WithError(err).Warn("bad invalidation key")
					continue
				}
				authority.DropZone(key)
			}
		}
	}()
}

// Close releases the Redis connection.
func (b *Bus) Close() error { return b.client.Close() }
