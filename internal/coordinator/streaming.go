package coordinator

import (
	"context"
	"time"

	"github.com/vitalstream/bioengine/internal/dsp"
	"github.com/vitalstream/bioengine/internal/metrics"
	"github.com/vitalstream/bioengine/internal/ringbuffer"
	"github.com/vitalstream/bioengine/internal/types"
)

// reportTickDuration builds a dsp pipeline's OnDuration callback, recording
// each tick's wall-clock duration against the named pipeline's histogram.
func reportTickDuration(pipeline string) func(time.Duration) {
	return func(d time.Duration) {
		metrics.PipelineTickDuration.WithLabelValues(pipeline).Observe(d.Seconds())
	}
}

// streamSet owns the ring buffers and DSP pipelines for one streaming
// session. It is created by StartStreaming and torn down by
// stopStreamingLocked; while it exists it is registered, wrapped in a
// rawBatchSink, as the Device Adapter's RawBatchSink.
type streamSet struct {
	eegBuf *ringbuffer.RingBuffer[types.EEGSample]
	ppgBuf *ringbuffer.RingBuffer[types.PPGSample]
	accBuf *ringbuffer.RingBuffer[types.ACCSample]
	batBuf *ringbuffer.RingBuffer[types.BatteryReading]

	eeg *dsp.EEGPipeline
	ppg *dsp.PPGPipeline
	acc *dsp.ACCPipeline
	bat *dsp.BatteryPipeline

	cancel context.CancelFunc
}

// OnRawBatch implements device.RawBatchSink. It only pushes decoded samples
// into the matching ring buffer; republishing on the raw channel and
// recording are done by rawBatchSink.
func (s *streamSet) OnRawBatch(batch types.RawBatch) {
	switch batch.Sensor {
	case types.SensorEEG:
		s.eegBuf.PushBatch(batch.EEG)
	case types.SensorPPG:
		s.ppgBuf.PushBatch(batch.PPG)
	case types.SensorACC:
		s.accBuf.PushBatch(batch.ACC)
	case types.SensorBattery:
		s.batBuf.PushBatch(batch.Battery)
	}
}

func rawChannelFor(sensor types.SensorKind) types.Channel {
	switch sensor {
	case types.SensorEEG:
		return types.ChannelRawEEG
	case types.SensorPPG:
		return types.ChannelRawPPG
	case types.SensorACC:
		return types.ChannelRawACC
	default:
		return types.ChannelBattery
	}
}

// isRecording reports whether a session is currently being captured,
// locking e.mu itself — safe to call from any goroutine.
func (e *Engine) isRecording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recording == RecordingActive
}

// recordRawBatch appends every sample of batch to the active session, a
// no-op when nothing is recording. Raw appends happen one sample at a
// time, matching the recorder's per-sample ndjson format.
func (e *Engine) recordRawBatch(batch types.RawBatch) {
	if !e.isRecording() {
		return
	}
	switch batch.Sensor {
	case types.SensorEEG:
		for _, s := range batch.EEG {
			e.recorder.Append(types.SensorEEG, types.DataRaw, s)
		}
	case types.SensorPPG:
		for _, s := range batch.PPG {
			e.recorder.Append(types.SensorPPG, types.DataRaw, s)
		}
	case types.SensorACC:
		for _, s := range batch.ACC {
			e.recorder.Append(types.SensorACC, types.DataRaw, s)
		}
	case types.SensorBattery:
		for _, s := range batch.Battery {
			e.recorder.Append(types.SensorBattery, types.DataBattery, s)
		}
	}
}

// rawBatchSink adapts a streamSet plus the engine's bus/recorder hooks into
// one device.RawBatchSink, keeping streamSet itself free of Engine
// back-references.
type rawBatchSink struct {
	set *streamSet
	e   *Engine
}

func (s rawBatchSink) OnRawBatch(b types.RawBatch) {
	s.set.OnRawBatch(b)
	s.e.bus.Publish(rawChannelFor(b.Sensor), types.MessageRawData, b)
	s.e.recordRawBatch(b)
}

// StartStreaming brings up ring buffers and DSP pipelines and registers
// them as the Device Adapter's sink. Requires the device to be connected;
// a second call while already streaming is rejected.
func (e *Engine) StartStreaming(ctx context.Context) error {
	_, err := e.submit(ctx, func(ctx context.Context) (any, error) {
		e.mu.Lock()
		deviceConnected := e.deviceState == DeviceConnected
		alreadyStreaming := e.streaming == StreamingActive
		e.mu.Unlock()
		if alreadyStreaming {
			return nil, types.NewError(types.ErrInvalidParameters, "streaming already active")
		}
		if !deviceConnected {
			return nil, types.NewError(types.ErrInvalidParameters, "no device connected")
		}

		rb := e.cfg.RingBuf
		tk := e.cfg.Tick
		set := &streamSet{
			eegBuf: ringbuffer.New[types.EEGSample](rb.CapacityEEG),
			ppgBuf: ringbuffer.New[types.PPGSample](rb.CapacityPPG),
			accBuf: ringbuffer.New[types.ACCSample](rb.CapacityACC),
			batBuf: ringbuffer.New[types.BatteryReading](rb.CapacityBattery),
		}
		set.eeg = dsp.NewEEGPipeline(set.eegBuf, types.SensorEEG.NominalRateHz(), e.cfg.Device.MainsHz, time.Duration(tk.EEGMs)*time.Millisecond)
		set.ppg = dsp.NewPPGPipeline(set.ppgBuf, types.SensorPPG.NominalRateHz(), time.Duration(tk.PPGMs)*time.Millisecond)
		set.acc = dsp.NewACCPipeline(set.accBuf, types.SensorACC.NominalRateHz(), time.Duration(tk.ACCMs)*time.Millisecond)
		set.bat = dsp.NewBatteryPipeline(set.batBuf, time.Duration(tk.BatMs)*time.Millisecond)

		set.eeg.Publish = func(w types.EEGWindow) { e.bus.Publish(types.ChannelProcessedEEG, types.MessageProcessedData, w) }
		set.eeg.Record = func(w types.EEGWindow) {
			if e.isRecording() {
				e.recorder.Append(types.SensorEEG, types.DataProcessed, w)
			}
		}
		set.eeg.OnDrop = func(n uint64) { e.publishDrop(types.SensorEEG, n) }
		set.eeg.OnDuration = reportTickDuration("eeg")

		set.ppg.Publish = func(w types.PPGWindow) { e.bus.Publish(types.ChannelProcessedPPG, types.MessageProcessedData, w) }
		set.ppg.Record = func(w types.PPGWindow) {
			if e.isRecording() {
				e.recorder.Append(types.SensorPPG, types.DataProcessed, w)
			}
		}
		set.ppg.OnDrop = func(n uint64) { e.publishDrop(types.SensorPPG, n) }
		set.ppg.OnDuration = reportTickDuration("ppg")

		set.acc.Publish = func(w types.ACCWindow) { e.bus.Publish(types.ChannelProcessedACC, types.MessageProcessedData, w) }
		set.acc.Record = func(w types.ACCWindow) {
			if e.isRecording() {
				e.recorder.Append(types.SensorACC, types.DataProcessed, w)
			}
		}
		set.acc.OnDrop = func(n uint64) { e.publishDrop(types.SensorACC, n) }
		set.acc.OnDuration = reportTickDuration("acc")

		set.bat.Publish = func(w types.BatteryWindow) { e.bus.Publish(types.ChannelBattery, types.MessageSensorData, w) }
		set.bat.OnDrop = func(n uint64) { e.publishDrop(types.SensorBattery, n) }
		set.bat.OnDuration = reportTickDuration("battery")

		runCtx, cancel := context.WithCancel(context.Background())
		set.cancel = cancel
		go set.eeg.Run(runCtx)
		go set.ppg.Run(runCtx)
		go set.acc.Run(runCtx)
		go set.bat.Run(runCtx)

		e.adapter.SetSink(rawBatchSink{set: set, e: e})

		e.mu.Lock()
		e.streamSet = set
		e.streaming = StreamingActive
		e.mu.Unlock()
		return nil, nil
	})
	return deviceErr(err)
}

// StopStreaming drains the running pipelines and disposes their ring
// buffers. Neither this method nor the REST/WS handlers that call it check
// for an active recording: a recording left active stays open, but no
// further samples reach the recorder.
func (e *Engine) StopStreaming(ctx context.Context) error {
	_, err := e.submit(ctx, func(ctx context.Context) (any, error) {
		e.stopStreamingLocked()
		return nil, nil
	})
	return deviceErr(err)
}

// stopStreamingLocked cancels the running pipelines and detaches the
// adapter's sink. Safe to call when streaming is already idle. Despite the
// name it does not itself hold e.mu for its duration — callers run on the
// single command-loop goroutine, so no other command interleaves; e.mu is
// still taken around each field mutation for visibility to concurrent
// Status() readers.
func (e *Engine) stopStreamingLocked() {
	e.mu.Lock()
	set := e.streamSet
	e.mu.Unlock()
	if set == nil {
		return
	}

	e.adapter.SetSink(nil)
	set.cancel()

	e.mu.Lock()
	e.streamSet = nil
	e.streaming = StreamingIdle
	e.mu.Unlock()
}

func (e *Engine) publishDrop(sensor types.SensorKind, n uint64) {
	e.bus.PublishEvent(map[string]any{"kind": "samples_dropped", "sensor": sensor, "count": n})
}
