package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vitalstream/bioengine/internal/bus"
	"github.com/vitalstream/bioengine/internal/config"
	"github.com/vitalstream/bioengine/internal/db"
	"github.com/vitalstream/bioengine/internal/device"
	"github.com/vitalstream/bioengine/internal/recorder"
	"github.com/vitalstream/bioengine/internal/types"
)

// cmdQueueLen bounds the engine's control-transition queue; commands are
// processed strictly in order by one goroutine, so effects become visible
// in-order per the Concurrency & Resource Model.
const cmdQueueLen = 32

// commandFunc is one serialized control transition.
type commandFunc func(ctx context.Context) (any, error)

type commandEnvelope struct {
	fn    commandFunc
	reply chan commandResult
}

type commandResult struct {
	value any
	err   error
}

// Engine holds the state machine and owns the Device Adapter, WebSocket
// Bus, and Session Recorder for the lifetime of the process.
type Engine struct {
	cfg      *config.Config
	adapter  *device.Adapter
	bus      *bus.Bus
	recorder *recorder.Recorder
	exporter *recorder.Exporter
	conns    *db.Connections

	cmdCh chan commandEnvelope

	mu            sync.Mutex
	state         State
	deviceState   DeviceState
	deviceAddress string
	streaming     StreamingState
	recording     RecordingState
	sessionID     string

	streamSet *streamSet

	lastMonitoring MonitoringMetrics

	cancelRun context.CancelFunc
}

// New builds an Engine in state "stopped". Call Init to bring it up.
func New(cfg *config.Config, adapter *device.Adapter, b *bus.Bus, rec *recorder.Recorder, exp *recorder.Exporter, conns *db.Connections) *Engine {
	return &Engine{
		cfg: cfg, adapter: adapter, bus: b, recorder: rec, exporter: exp, conns: conns,
		cmdCh:       make(chan commandEnvelope, cmdQueueLen),
		state:       StateStopped,
		deviceState: DeviceDisconnected,
		streaming:   StreamingIdle,
		recording:   RecordingNone,
	}
}

// Init transitions stopped -> initializing -> running: starts the command
// loop, the 1Hz monitoring ticker and the exporter's poll loop, and clears
// the adapter's raw-batch sink. The adapter's event callback is supplied
// when the adapter is built (device.New), not here.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateStopped {
		e.mu.Unlock()
		return fmt.Errorf("coordinator: Init called from state %s", e.state)
	}
	e.state = StateInitializing
	e.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancelRun = cancel

	e.adapter.SetSink(nil)

	go e.runCommandLoop(runCtx)
	go e.runMonitoring(runCtx)
	go e.exporter.Run(runCtx)

	e.mu.Lock()
	e.state = StateRunning
	e.mu.Unlock()

	slog.Info("coordinator.init", "component", "coordinator", "event", "init", "state", StateRunning)
	return nil
}

// Shutdown cancels the command loop and monitoring ticker. It does not
// tear down streaming/recording — callers should stop those explicitly
// first so sessions are sealed cleanly; Shutdown is the last step.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.state = StateStopping
	e.mu.Unlock()
	if e.cancelRun != nil {
		e.cancelRun()
	}
}

// Status returns a point-in-time snapshot of the engine's state machine.
func (e *Engine) Status() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := Snapshot{
		State: e.state, Device: e.deviceState, Streaming: e.streaming, Recording: e.recording,
		DeviceAddress: e.deviceAddress, SessionID: e.sessionID,
	}
	if e.streamSet != nil {
		snap.EEGStatus = string(e.streamSet.eeg.Status())
		snap.PPGStatus = string(e.streamSet.ppg.Status())
		snap.ACCStatus = string(e.streamSet.acc.Status())
		snap.BatteryStatus = string(e.streamSet.bat.Status())
	}
	return snap
}

// runCommandLoop is the single goroutine that serializes every control
// transition. It runs until ctx is cancelled.
func (e *Engine) runCommandLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ce := <-e.cmdCh:
			v, err := ce.fn(ctx)
			if ce.reply != nil {
				ce.reply <- commandResult{value: v, err: err}
			}
		}
	}
}

// submit enqueues fn on the command loop and blocks for its result.
func (e *Engine) submit(ctx context.Context, fn commandFunc) (any, error) {
	reply := make(chan commandResult, 1)
	select {
	case e.cmdCh <- commandEnvelope{fn: fn, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// submitAsync enqueues fn without waiting for a result. Used from the
// adapter's event callback, which must never block its own goroutine on
// a full round trip through the command loop.
func (e *Engine) submitAsync(fn commandFunc) {
	select {
	case e.cmdCh <- commandEnvelope{fn: fn}:
	default:
		slog.Warn("coordinator.command_queue_full",
			"component", "coordinator", "event", "command_queue_full")
	}
}

func deviceErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*types.EngineError); ok {
		return err
	}
	return types.NewError(types.ErrBluetoothError, err.Error())
}
