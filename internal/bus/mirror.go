package bus

import (
	"context"
	"log/slog"

	"github.com/vitalstream/bioengine/internal/types"
)

// redisChanPrefix namespaces the Bus's passive mirror channels so they
// don't collide with any other use of the same Redis database.
const redisChanPrefix = "bus:"

// RedisPublisher is the minimal surface the Bus needs from the shared
// Redis client to mirror published messages. Satisfied by
// *db.RedisClient.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, msg any) error
}

// redisMirror publishes every Bus message to Redis as a best-effort,
// non-blocking side channel for out-of-process observers (e.g. a desktop
// shell running alongside the engine). It is never the primary delivery
// path — local clients are always served directly from the in-process
// fanout regardless of whether the mirror succeeds.
type redisMirror struct {
	pub RedisPublisher
}

func newRedisMirror(pub RedisPublisher) *redisMirror {
	return &redisMirror{pub: pub}
}

func (m *redisMirror) publish(channel types.Channel, env Envelope) {
	go func() {
		if err := m.pub.Publish(context.Background(), redisChanPrefix+string(channel), env); err != nil {
			slog.Warn("bus.mirror.publish_failed",
				"component", "bus", "event", "bus.mirror_error", "channel", channel, "error", err)
		}
	}()
}
