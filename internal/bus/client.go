package bus

import (
	"sync"

	"github.com/vitalstream/bioengine/internal/types"
)

const defaultSendQueueLen = 128

// Client is one connected WebSocket subscriber. The bus package has no
// knowledge of the transport (gorilla/websocket) — that lives in
// conn.go, which owns the read/write pumps and constructs a Client.
type Client struct {
	id string

	mu   sync.Mutex
	subs map[types.Channel]struct{}
	lag  map[types.Channel]int

	send chan Envelope

	closeOnce sync.Once
	closeCh   chan struct{}
}

// NewClient creates a Client with no initial subscriptions and a send
// queue bounded at queueLen (the Configuration key client_send_queue_len).
func NewClient(id string, queueLen int) *Client {
	if queueLen <= 0 {
		queueLen = defaultSendQueueLen
	}
	return &Client{
		id:      id,
		subs:    make(map[types.Channel]struct{}),
		lag:     make(map[types.Channel]int),
		send:    make(chan Envelope, queueLen),
		closeCh: make(chan struct{}),
	}
}

// ID returns the client's connection identifier (used only for logging).
func (c *Client) ID() string { return c.id }

// Send returns the channel the client's write pump should drain.
func (c *Client) Send() <-chan Envelope { return c.send }

// Closed returns a channel closed when the bus has force-closed this
// client (slow-consumer disconnect).
func (c *Client) Closed() <-chan struct{} { return c.closeCh }

func (c *Client) subscribe(channels []types.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if ch.Valid() {
			c.subs[ch] = struct{}{}
		}
	}
}

func (c *Client) unsubscribe(channels []types.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.subs, ch)
		delete(c.lag, ch)
	}
}

func (c *Client) subscriptions() []types.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Channel, 0, len(c.subs))
	for ch := range c.subs {
		out = append(out, ch)
	}
	return out
}

func (c *Client) subscribedTo(ch types.Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[ch]
	return ok
}

func (c *Client) incrementLag(ch types.Channel) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lag[ch]++
	return c.lag[ch]
}

func (c *Client) resetLag(ch types.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lag, ch)
}

// dropOldestOnChannel removes one pending envelope for ch from the send
// queue to make room for a newer one, per the drop-oldest-same-channel
// back-pressure policy. Reports whether a slot was freed.
func (c *Client) dropOldestOnChannel(ch types.Channel) bool {
	pending := make([]Envelope, 0, len(c.send))
	n := len(c.send)
	dropped := false
	for i := 0; i < n; i++ {
		env := <-c.send
		if !dropped && env.Channel == ch {
			dropped = true
			continue
		}
		pending = append(pending, env)
	}
	for _, env := range pending {
		c.send <- env
	}
	return dropped
}

// sendDirect delivers a command-reply envelope (pong, subscription
// confirmation, error) outside of the channel-fanout path. Best-effort:
// if the queue is full the reply is dropped rather than blocking.
func (c *Client) sendDirect(env Envelope) {
	select {
	case c.send <- env:
	default:
	}
}

// Reply delivers env directly to this client, bypassing channel
// subscriptions. Used by the Coordinator's command handler to answer
// health_check and device-command requests on the same socket they
// arrived on.
func (c *Client) Reply(env Envelope) {
	c.sendDirect(env)
}

func (c *Client) forceClose() {
	c.closeOnce.Do(func() { close(c.closeCh) })
}
