package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vitalstream/bioengine/internal/types"
)

// defaultSlowConsumerLagThreshold is the number of consecutive dropped messages
// on one channel after which a client is disconnected rather than having
// further messages silently dropped, per the Configuration default.
const defaultSlowConsumerLagThreshold = 50

// CommandHandler processes a client command frame. It is supplied by the
// Engine Coordinator; the Bus itself has no domain logic.
type CommandHandler func(ctx context.Context, client *Client, cmd Command) error

// Bus is the in-process WebSocket pub/sub registry. One Bus per server
// process; every client's send queue is bounded and independent so one
// slow reader cannot stall delivery to any other.
type Bus struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	lagThreshold int
	sendQueueLen int

	mirror *redisMirror

	onCommand CommandHandler
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithSlowConsumerLagThreshold overrides the default drop-then-disconnect
// threshold.
func WithSlowConsumerLagThreshold(n int) Option {
	return func(b *Bus) { b.lagThreshold = n }
}

// WithSendQueueLen overrides the default per-client send queue length
// (the Configuration key client_send_queue_len), applied to every client
// created through NewClientFor.
func WithSendQueueLen(n int) Option {
	return func(b *Bus) { b.sendQueueLen = n }
}

// WithRedisMirror attaches an optional, best-effort passive mirror: every
// published message is also published to the given publisher's
// "bus:<channel>" Redis channel for external, out-of-process observers.
// Mirror failures are logged and never affect in-process delivery.
func WithRedisMirror(pub RedisPublisher) Option {
	return func(b *Bus) { b.mirror = newRedisMirror(pub) }
}

// NewBus creates an empty Bus.
func NewBus(onCommand CommandHandler, opts ...Option) *Bus {
	b := &Bus{
		clients:      make(map[*Client]struct{}),
		lagThreshold: defaultSlowConsumerLagThreshold,
		sendQueueLen: defaultSendQueueLen,
		onCommand:    onCommand,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewClientFor creates a Client sized to this bus's configured send
// queue length, ready to be passed to Register.
func (b *Bus) NewClientFor(id string) *Client {
	return NewClient(id, b.sendQueueLen)
}

// Register adds a client to the bus. The client is responsible for
// calling Unregister when its connection closes.
func (b *Bus) Register(c *Client) {
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	slog.Info("bus.client_registered", "component", "bus", "event", "bus.register", "client", c.id)
}

// Unregister removes a client and closes its send queue.
func (b *Bus) Unregister(c *Client) {
	b.mu.Lock()
	_, ok := b.clients[c]
	delete(b.clients, c)
	b.mu.Unlock()
	if ok {
		close(c.send)
		slog.Info("bus.client_unregistered", "component", "bus", "event", "bus.unregister", "client", c.id)
	}
}

// ClientCount returns the number of currently-registered clients.
func (b *Bus) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish fans msgType/data out on channel to every client subscribed to
// it, and mirrors it to Redis if a mirror is configured. A client whose
// send queue is full has its oldest pending message on that same channel
// dropped to make room; once a client's drops on that channel reach the
// configured lag threshold it is disconnected.
func (b *Bus) Publish(channel types.Channel, msgType types.MessageType, data any) {
	env := dataEnvelope(msgType, channel, data)

	b.mu.RLock()
	targets := make([]*Client, 0, len(b.clients))
	for c := range b.clients {
		if c.subscribedTo(channel) {
			targets = append(targets, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range targets {
		b.deliver(c, channel, env)
	}

	if b.mirror != nil {
		b.mirror.publish(channel, env)
	}
}

// PublishEvent fans an "event" message out to every client regardless of
// channel subscriptions; lifecycle events are always visible.
func (b *Bus) PublishEvent(data any) {
	env := Envelope{Type: types.MessageEvent, Data: data}
	b.mu.RLock()
	targets := make([]*Client, 0, len(b.clients))
	for c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.RUnlock()
	for _, c := range targets {
		b.deliver(c, types.ChannelEvent, env)
	}
	if b.mirror != nil {
		b.mirror.publish(types.ChannelEvent, env)
	}
}

func (b *Bus) deliver(c *Client, channel types.Channel, env Envelope) {
	select {
	case c.send <- env:
		c.resetLag(channel)
		return
	default:
	}

	// Full: drop the oldest pending message on this same channel to make
	// room, per the back-pressure policy, rather than dropping the newest.
	if c.dropOldestOnChannel(channel) {
		select {
		case c.send <- env:
		default:
		}
	}

	lag := c.incrementLag(channel)
	slog.Warn("bus.slow_consumer_drop",
		"component", "bus", "event", "bus.drop", "client", c.id, "channel", channel, "lag", lag)

	if lag >= b.lagThreshold {
		slog.Warn("bus.slow_consumer_disconnect",
			"component", "bus", "event", "bus.disconnect_slow_consumer", "client", c.id, "channel", channel)
		c.forceClose()
	}
}

// HandleCommand dispatches an incoming client command to the registered
// CommandHandler, translating handler errors into an "error" envelope
// delivered to the originating client.
func (b *Bus) HandleCommand(ctx context.Context, c *Client, cmd Command) {
	switch cmd.Type {
	case types.CommandPing:
		c.sendDirect(pongEnvelope())
		return
	case types.CommandSubscribe:
		c.subscribe(cmd.Channels)
		c.sendDirect(subscriptionConfirmedEnvelope(c.subscriptions()))
		return
	case types.CommandUnsubscribe:
		c.unsubscribe(cmd.Channels)
		c.sendDirect(subscriptionConfirmedEnvelope(c.subscriptions()))
		return
	}

	if b.onCommand == nil {
		return
	}
	if err := b.onCommand(ctx, c, cmd); err != nil {
		code := types.ErrInvalidParameters
		if ee, ok := err.(*types.EngineError); ok {
			code = ee.Code
		}
		c.sendDirect(errorEnvelope(code, err.Error()))
	}
}
