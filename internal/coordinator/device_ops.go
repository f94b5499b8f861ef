package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/vitalstream/bioengine/internal/db/devicestore"
	"github.com/vitalstream/bioengine/internal/device"
	"github.com/vitalstream/bioengine/internal/types"
)

// Scan discovers nearby candidate devices for up to duration.
func (e *Engine) Scan(ctx context.Context, duration time.Duration) ([]types.RegisteredDevice, error) {
	v, err := e.submit(ctx, func(ctx context.Context) (any, error) {
		return e.adapter.Scan(ctx, duration)
	})
	if err != nil {
		return nil, deviceErr(err)
	}
	return v.([]types.RegisteredDevice), nil
}

// Connect opens a session with the device at address. On success, and only
// when autoReconnect is set, the device is recorded in devicestore so a
// later auto-reconnect can target it without a fresh scan.
func (e *Engine) Connect(ctx context.Context, address string, autoReconnect bool) error {
	_, err := e.submit(ctx, func(ctx context.Context) (any, error) {
		if err := e.adapter.Connect(ctx, address); err != nil {
			return nil, err
		}
		// Only devices connected with auto_reconnect are worth
		// remembering — the registry exists solely to pick a default
		// reconnect target on the next startup.
		if autoReconnect {
			if err := devicestore.Upsert(e.conns, address, address, time.Now()); err != nil {
				slog.Warn("coordinator.connect.registry_write_failed",
					"component", "coordinator", "event", "connect.registry_write_failed", "address", address, "error", err)
			}
		}
		e.mu.Lock()
		e.deviceAddress = address
		e.mu.Unlock()
		return nil, nil
	})
	return deviceErr(err)
}

// Disconnect ends the current device session. If a recording is active it
// is sealed as failed, matching the unexpected-device-loss semantics
// (an explicit disconnect while recording is still an abrupt stream end
// from the recorder's point of view).
func (e *Engine) Disconnect(ctx context.Context) error {
	_, err := e.submit(ctx, func(ctx context.Context) (any, error) {
		if err := e.adapter.Disconnect(); err != nil {
			return nil, err
		}
		e.handleDeviceDisconnected(true)
		return nil, nil
	})
	return deviceErr(err)
}

// OnDeviceEvent is registered as the adapter's event callback. It runs on
// the adapter's internal goroutine, so it only ever enqueues work onto the
// command loop — it never blocks waiting for a reply.
func (e *Engine) OnDeviceEvent(ev device.Event) {
	switch ev.Kind {
	case device.EventConnected:
		e.submitAsync(func(ctx context.Context) (any, error) {
			e.mu.Lock()
			e.deviceState = DeviceConnected
			e.mu.Unlock()
			e.bus.PublishEvent(map[string]any{"kind": "device_connected"})
			return nil, nil
		})
	case device.EventDisconnected:
		e.submitAsync(func(ctx context.Context) (any, error) {
			e.handleDeviceDisconnected(ev.Reason == "")
			return nil, nil
		})
	case device.EventBatteryChanged, device.EventLeadOffChanged, device.EventGapDetected:
		e.bus.PublishEvent(map[string]any{"kind": string(ev.Kind), "sensor": ev.Sensor, "reason": ev.Reason})
	}
}

// handleDeviceDisconnected transitions device state to disconnected and,
// if a recording is active, seals it as failed, whether the disconnect
// was requested or not — a stream with no device feeding it is not a
// usable recording either way. An unexpected loss during a recording
// additionally degrades the engine state; an unexpected loss with no
// recording active leaves the engine state unchanged. Sealing is the same
// seal-as-failed scenario crash recovery handles, just caught live
// instead of on next startup.
func (e *Engine) handleDeviceDisconnected(expected bool) {
	e.mu.Lock()
	e.deviceState = DeviceDisconnected
	wasRecording := e.recording == RecordingActive
	e.mu.Unlock()

	if wasRecording {
		if !expected {
			e.mu.Lock()
			e.state = StateDegraded
			e.mu.Unlock()
		}
		if _, err := e.recorder.StopFailed("device disconnected while recording"); err != nil {
			slog.Error("coordinator.device_loss.seal_failed",
				"component", "coordinator", "event", "device_loss.seal_failed", "error", err)
		}
		e.mu.Lock()
		e.recording = RecordingNone
		e.sessionID = ""
		e.mu.Unlock()
	}

	e.mu.Lock()
	streaming := e.streaming == StreamingActive
	e.mu.Unlock()
	if streaming {
		e.stopStreamingLocked()
	}

	e.bus.PublishEvent(map[string]any{"kind": "device_disconnected", "expected": expected})
	slog.Info("coordinator.device_disconnected",
		"component", "coordinator", "event", "device_disconnected", "expected", expected)
}
