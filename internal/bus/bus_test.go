package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalstream/bioengine/internal/types"
)

func TestSubscriptionIsolation(t *testing.T) {
	b := NewBus(nil)
	a := NewClient("a", 0)
	c := NewClient("c", 0)
	b.Register(a)
	b.Register(c)

	a.subscribe([]types.Channel{types.ChannelRawEEG})
	c.subscribe([]types.Channel{types.ChannelRawPPG})

	b.Publish(types.ChannelRawEEG, types.MessageRawData, "eeg-payload")

	select {
	case env := <-a.send:
		assert.Equal(t, types.ChannelRawEEG, env.Channel)
	case <-time.After(time.Second):
		t.Fatal("subscribed client did not receive message")
	}

	select {
	case env := <-c.send:
		t.Fatalf("unsubscribed client received message meant for another channel: %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewClientForUsesConfiguredSendQueueLen(t *testing.T) {
	b := NewBus(nil, WithSendQueueLen(4))
	c := b.NewClientFor("sized")
	assert.Equal(t, 4, cap(c.send))
}

func TestSlowConsumerDisconnectsAfterLagThreshold(t *testing.T) {
	b := NewBus(nil, WithSlowConsumerLagThreshold(3))
	c := NewClient("slow", 0)
	b.Register(c)
	c.subscribe([]types.Channel{types.ChannelRawEEG})

	// Fill the queue, then keep publishing without draining so every
	// delivery after the queue fills counts as a drop.
	for i := 0; i < defaultSendQueueLen+10; i++ {
		b.Publish(types.ChannelRawEEG, types.MessageRawData, i)
	}

	select {
	case <-c.Closed():
	case <-time.After(time.Second):
		t.Fatal("expected slow consumer to be disconnected")
	}
}

func TestHandleCommandPingRepliesWithPong(t *testing.T) {
	b := NewBus(nil)
	c := NewClient("pinger", 0)
	b.Register(c)

	b.HandleCommand(context.Background(), c, Command{Type: types.CommandPing})

	select {
	case env := <-c.send:
		assert.Equal(t, types.MessagePong, env.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a pong reply")
	}
}

func TestHandleCommandDomainErrorBecomesErrorEnvelope(t *testing.T) {
	b := NewBus(func(ctx context.Context, c *Client, cmd Command) error {
		return types.NewError(types.ErrDeviceBusy, "already connected")
	})
	c := NewClient("cmd", 0)
	b.Register(c)

	b.HandleCommand(context.Background(), c, Command{Type: types.CommandConnectDevice})

	select {
	case env := <-c.send:
		require.Equal(t, types.MessageError, env.Type)
		assert.Equal(t, types.ErrDeviceBusy, env.Error.Code)
	case <-time.After(time.Second):
		t.Fatal("expected an error reply")
	}
}

func TestReplyDeliversDirectlyWithoutSubscription(t *testing.T) {
	c := NewClient("direct", 0)

	c.Reply(HealthCheckEnvelope(map[string]string{"state": "connected"}))

	select {
	case env := <-c.send:
		assert.Equal(t, types.MessageHealthCheckResponse, env.Type)
	case <-time.After(time.Second):
		t.Fatal("expected the reply to arrive regardless of subscription")
	}
}

func TestErrorEnvelopeCarriesCode(t *testing.T) {
	env := ErrorEnvelope(types.ErrDeviceNotFound, "no such device")
	require.Equal(t, types.MessageError, env.Type)
	require.NotNil(t, env.Error)
	assert.Equal(t, types.ErrDeviceNotFound, env.Error.Code)
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	b := NewBus(nil)
	c := NewClient("x", 0)
	b.Register(c)
	b.Unregister(c)

	_, ok := <-c.send
	assert.False(t, ok)
}
