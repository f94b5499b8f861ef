// Package device implements the Device Adapter: the component that owns
// the wireless link to one physiological sensor unit, decodes raw sample
// frames, and surfaces lifecycle events.
package device

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vitalstream/bioengine/internal/types"
)

// State is the Device Adapter's own lifecycle state, independent of the
// Engine Coordinator's broader state machine.
type State string

const (
	StateIdle          State = "idle"
	StateScanning      State = "scanning"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
)

// EventKind is the closed set of notifications the Adapter surfaces to the
// Engine Coordinator.
type EventKind string

const (
	EventConnected        EventKind = "connected"
	EventDisconnected      EventKind = "disconnected"
	EventBatteryChanged    EventKind = "battery_changed"
	EventLeadOffChanged    EventKind = "leadoff_changed"
	EventGapDetected       EventKind = "gap_detected"
)

// Event is a lifecycle notification pushed to the Adapter's registered
// handler. Not every field is populated for every Kind.
type Event struct {
	Kind     EventKind
	Reason   string
	Sensor   types.SensorKind
	Expected uint64
	Observed uint64
}

// RawBatchSink receives decoded sample batches. The Engine Coordinator
// implements this over the active streaming session's ring buffers.
type RawBatchSink interface {
	OnRawBatch(batch types.RawBatch)
}

// ReconnectPolicy controls the adapter's response to an unexpected link
// loss.
type ReconnectPolicy struct {
	Enabled      bool
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultReconnectPolicy mirrors the Configuration default: auto-reconnect
// disabled unless explicitly requested, but if it is, retry a handful of
// times with exponential backoff.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:      false,
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2,
	}
}

// Adapter owns the link to one device for the lifetime of the engine.
type Adapter struct {
	link   Link
	policy ReconnectPolicy

	mu      sync.Mutex
	state   State
	address string
	session LinkSession
	sink    RawBatchSink
	cancel  context.CancelFunc

	onEvent func(Event)

	seqMu     sync.Mutex
	lastSeq   map[types.SensorKind]uint64
}

// New creates an Adapter bound to link, which may be a Simulator or (in a
// future build) a real BLE transport. onEvent is called from the adapter's
// internal goroutine — it must not block.
func New(link Link, policy ReconnectPolicy, onEvent func(Event)) *Adapter {
	return &Adapter{
		link:    link,
		policy:  policy,
		state:   StateIdle,
		onEvent: onEvent,
		lastSeq: make(map[types.SensorKind]uint64),
	}
}

// State returns the adapter's current lifecycle state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SetSink registers the destination for decoded raw batches. Call with nil
// to stop delivering (e.g. when streaming is stopped).
func (a *Adapter) SetSink(sink RawBatchSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink = sink
}

// Scan discovers nearby candidate devices for up to duration. A duration of
// 0 returns immediately with an empty list, per the Testable Properties.
func (a *Adapter) Scan(ctx context.Context, duration time.Duration) ([]types.RegisteredDevice, error) {
	if a.link == nil {
		return nil, types.NewError(types.ErrBluetoothError, "no wireless adapter available")
	}

	a.mu.Lock()
	if a.state != StateIdle {
		a.mu.Unlock()
		return nil, types.NewError(types.ErrDeviceBusy, "adapter busy, cannot scan")
	}
	a.state = StateScanning
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.state = StateIdle
		a.mu.Unlock()
	}()

	devices, err := a.link.Scan(ctx, duration)
	if err != nil {
		return nil, types.NewError(types.ErrBluetoothError, err.Error())
	}
	return devices, nil
}

// Connect opens a session with the device at address and starts decoding.
func (a *Adapter) Connect(ctx context.Context, address string) error {
	a.mu.Lock()
	if a.state == StateConnected || a.state == StateConnecting {
		a.mu.Unlock()
		return types.NewError(types.ErrDeviceBusy, "adapter already connected or connecting")
	}
	a.state = StateConnecting
	a.mu.Unlock()

	connectCtx, cancelConnect := context.WithTimeout(ctx, 30*time.Second)
	defer cancelConnect()

	session, err := a.link.Connect(connectCtx, address)
	if err != nil {
		a.mu.Lock()
		a.state = StateIdle
		a.mu.Unlock()
		if connectCtx.Err() != nil {
			return types.NewError(types.ErrConnectionTimeout, "connect timed out")
		}
		return types.NewError(types.ErrConnectionFailed, err.Error())
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.state = StateConnected
	a.address = address
	a.session = session
	a.cancel = cancel
	a.mu.Unlock()

	go a.pump(runCtx, session, address)

	return nil
}

// Disconnect ends the current session. Idempotent: calling it while already
// disconnected is a no-op returning success.
func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	if a.state != StateConnected {
		a.mu.Unlock()
		return nil
	}
	a.state = StateDisconnecting
	session := a.session
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if session != nil {
		session.Close()
	}
	return nil
}

// pump consumes frames and events from session until it closes, then
// decides whether to transition to idle or trigger a reconnect.
func (a *Adapter) pump(ctx context.Context, session LinkSession, address string) {
	frames := session.Frames()
	events := session.Events()

	var expectedDisconnect bool
	for frames != nil || events != nil {
		select {
		case <-ctx.Done():
			expectedDisconnect = true
		case f, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			a.deliver(f)
		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if e.Kind == EventDisconnected {
				expectedDisconnect = expectedDisconnect || ctx.Err() != nil
			}
			a.emit(e)
		}
		if ctx.Err() != nil && frames == nil && events == nil {
			break
		}
	}

	a.mu.Lock()
	wasExplicit := a.state == StateDisconnecting
	a.state = StateIdle
	a.session = nil
	a.cancel = nil
	a.mu.Unlock()

	if wasExplicit || expectedDisconnect {
		return
	}

	a.emit(Event{Kind: EventDisconnected, Reason: "unexpected_disconnect"})
	if a.policy.Enabled {
		go a.reconnect(address)
	}
}

func (a *Adapter) reconnect(address string) {
	delay := a.policy.InitialDelay
	for attempt := 1; attempt <= a.policy.MaxAttempts; attempt++ {
		time.Sleep(delay)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := a.Connect(ctx, address)
		cancel()
		if err == nil {
			slog.Info("device.adapter.reconnected",
				"component", "device", "event", "adapter.reconnect_success", "attempt", attempt)
			return
		}
		slog.Warn("device.adapter.reconnect_failed",
			"component", "device", "event", "adapter.reconnect_attempt", "attempt", attempt, "error", err)
		delay = time.Duration(float64(delay) * a.policy.Multiplier)
	}
	slog.Error("device.adapter.reconnect_exhausted",
		"component", "device", "event", "adapter.reconnect_exhausted", "attempts", a.policy.MaxAttempts)
}

// deliver applies gap detection against the frame's sequence number (if
// advertised), then hands the batch to the registered sink.
func (a *Adapter) deliver(f LinkFrame) {
	if f.HasSeq {
		a.seqMu.Lock()
		last, seen := a.lastSeq[f.Sensor]
		a.lastSeq[f.Sensor] = f.Seq
		a.seqMu.Unlock()
		if seen && f.Seq != last+1 {
			a.emit(Event{
				Kind: EventGapDetected, Sensor: f.Sensor,
				Expected: last + 1, Observed: f.Seq,
			})
		}
	}

	a.mu.Lock()
	sink := a.sink
	a.mu.Unlock()
	if sink == nil {
		return
	}

	batch := types.RawBatch{Sensor: f.Sensor, EEG: f.EEG, PPG: f.PPG, ACC: f.ACC, Battery: f.Battery}
	if batch.Len() > 0 {
		sink.OnRawBatch(batch)
	}
}

// emit dispatches either a device-level Event or a transport-level
// LinkEvent to the registered handler, normalizing both to Event.
func (a *Adapter) emit(e any) {
	if a.onEvent == nil {
		return
	}
	switch v := e.(type) {
	case Event:
		a.onEvent(v)
	case LinkEvent:
		a.onEvent(Event{Kind: EventKind(v.Kind), Reason: v.Reason})
	}
}
