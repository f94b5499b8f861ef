package device

import (
	"context"
	"time"

	"github.com/vitalstream/bioengine/internal/types"
)

// LinkFrame is one decoded burst of samples for a single sensor, as handed
// up from the wireless transport. Seq is the device-supplied frame sequence
// number (if the transport advertises one) used for gap detection.
type LinkFrame struct {
	Sensor  types.SensorKind
	Seq     uint64
	HasSeq  bool
	EEG     []types.EEGSample
	PPG     []types.PPGSample
	ACC     []types.ACCSample
	Battery []types.BatteryReading
}

// LinkEventKind is the closed set of lifecycle events a Link can surface.
type LinkEventKind string

const (
	LinkConnected          LinkEventKind = "connected"
	LinkDisconnected       LinkEventKind = "disconnected"
	LinkBatteryChanged     LinkEventKind = "battery_changed"
	LinkLeadOffChanged     LinkEventKind = "leadoff_changed"
)

// LinkEvent is a lifecycle notification pushed by an open LinkSession.
type LinkEvent struct {
	Kind   LinkEventKind
	Reason string
}

// Link abstracts the wireless transport to one physiological sensor unit.
// The production transport would speak to a BLE stack; this module ships a
// deterministic Simulator satisfying the same contract, since no real radio
// is available in this environment.
type Link interface {
	// Scan discovers nearby candidate devices for up to duration. A
	// duration of 0 returns immediately with an empty list.
	Scan(ctx context.Context, duration time.Duration) ([]types.RegisteredDevice, error)

	// Connect opens a session with the device at address. The context
	// bounds only the connect handshake, not the session lifetime.
	Connect(ctx context.Context, address string) (LinkSession, error)
}

// LinkSession is an open connection to one device.
type LinkSession interface {
	// Frames yields decoded sample batches in physical units. The channel
	// is closed when the session ends, for any reason.
	Frames() <-chan LinkFrame

	// Events yields lifecycle notifications. Closed alongside Frames.
	Events() <-chan LinkEvent

	// Close ends the session. Idempotent.
	Close() error
}
