package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalstream/bioengine/internal/bus"
	"github.com/vitalstream/bioengine/internal/config"
	"github.com/vitalstream/bioengine/internal/types"
)

func newTestClient(t *testing.T, e *Engine) *bus.Client {
	t.Helper()
	b := bus.NewBus(e.HandleBusCommand)
	c := bus.NewClient("test", 0)
	b.Register(c)
	return c
}

func TestHandleBusCommandHealthCheckRepliesWithStatus(t *testing.T) {
	e := New(&config.Config{}, nil, nil, nil, nil, nil)
	c := newTestClient(t, e)

	require.NoError(t, e.HandleBusCommand(context.Background(), c, bus.Command{Type: types.CommandHealthCheck}))

	select {
	case env := <-c.Send():
		assert.Equal(t, types.MessageHealthCheckResponse, env.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a health_check_response reply")
	}
}

func TestHandleBusCommandConnectDeviceRequiresAddress(t *testing.T) {
	e := New(&config.Config{}, nil, nil, nil, nil, nil)
	c := newTestClient(t, e)

	err := e.HandleBusCommand(context.Background(), c, bus.Command{Type: types.CommandConnectDevice})
	require.Error(t, err)

	domainErr, ok := err.(*types.EngineError)
	require.True(t, ok, "expected a *types.EngineError, got %T", err)
	assert.Equal(t, types.ErrInvalidParameters, domainErr.Code)
}

func TestHandleBusCommandUnknownCommand(t *testing.T) {
	e := New(&config.Config{}, nil, nil, nil, nil, nil)
	c := newTestClient(t, e)

	err := e.HandleBusCommand(context.Background(), c, bus.Command{Type: types.CommandType("bogus")})
	require.Error(t, err)
}
