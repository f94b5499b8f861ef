package coordinator

import (
	"context"
	"time"

	"github.com/vitalstream/bioengine/internal/bus"
	"github.com/vitalstream/bioengine/internal/types"
)

// HandleBusCommand is the Bus's CommandHandler: it answers every client
// command that isn't handled inline by the Bus itself (subscribe,
// unsubscribe, ping) — health_check and the device/streaming commands
// forwarded from the WebSocket control channel, per §4.4.
func (e *Engine) HandleBusCommand(ctx context.Context, c *bus.Client, cmd bus.Command) error {
	switch cmd.Type {
	case types.CommandHealthCheck:
		c.Reply(bus.HealthCheckEnvelope(e.Status()))
		return nil

	case types.CommandScanDevices:
		duration := time.Duration(e.cfg.Device.ScanDefaultDurationS) * time.Second
		if cmd.Duration > 0 {
			duration = time.Duration(cmd.Duration * float64(time.Second))
		}
		devices, err := e.Scan(ctx, duration)
		if err != nil {
			return err
		}
		c.Reply(bus.HealthCheckEnvelope(devices))
		return nil

	case types.CommandConnectDevice:
		if cmd.Address == "" {
			return types.NewError(types.ErrInvalidParameters, "address is required")
		}
		// No direct reply: a successful connect is observed via the
		// device_connected event the Coordinator already broadcasts on
		// the event channel, same as any other subscriber.
		return e.Connect(ctx, cmd.Address, false)

	case types.CommandDisconnectDevice:
		return e.Disconnect(ctx)

	case types.CommandStartStreaming:
		return e.StartStreaming(ctx)

	case types.CommandStopStreaming:
		return e.StopStreaming(ctx)

	default:
		return types.NewError(types.ErrInvalidParameters, "unknown command: "+string(cmd.Type))
	}
}
