package device

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vitalstream/bioengine/internal/types"
)

// Simulator is a deterministic, in-process stand-in for a real BLE sensor
// unit. It generates physiologically plausible EEG/PPG/ACC/battery
// waveforms on its own clock. It does not inject lead-off or sequence-gap
// conditions: nothing reads injectSeq. It satisfies Link/LinkSession so
// the rest of the engine cannot tell it apart from a real transport.
type Simulator struct {
	mu        sync.Mutex
	devices   []types.RegisteredDevice
	injectSeq map[string]bool // addresses marked for gaps; not read by the generator
}

// NewSimulator creates a Simulator advertising the given candidate devices.
func NewSimulator(devices ...types.RegisteredDevice) *Simulator {
	if len(devices) == 0 {
		devices = []types.RegisteredDevice{
			{Address: "AA:BB:CC:DD:EE:01", Name: "BioStrap-01", LastSeen: time.Time{}},
		}
	}
	return &Simulator{devices: devices, injectSeq: make(map[string]bool)}
}

// Scan implements Link.
func (s *Simulator) Scan(ctx context.Context, duration time.Duration) ([]types.RegisteredDevice, error) {
	if duration <= 0 {
		return nil, nil
	}
	select {
	case <-time.After(duration):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	out := make([]types.RegisteredDevice, len(s.devices))
	for i, d := range s.devices {
		d.LastSeen = now
		out[i] = d
	}
	return out, nil
}

// Connect implements Link.
func (s *Simulator) Connect(ctx context.Context, address string) (LinkSession, error) {
	s.mu.Lock()
	found := false
	for _, d := range s.devices {
		if d.Address == address {
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return nil, fmt.Errorf("simulator: unknown device %q", address)
	}

	session := newSimSession(address)
	go session.run()
	return session, nil
}

// simSession is the LinkSession returned by Simulator.Connect.
type simSession struct {
	address string
	frames  chan LinkFrame
	events  chan LinkEvent
	closeCh chan struct{}
	once    sync.Once

	t0       time.Time
	seqEEG   uint64
	seqPPG   uint64
	seqACC   uint64
	seqBat   uint64
}

func newSimSession(address string) *simSession {
	return &simSession{
		address: address,
		frames:  make(chan LinkFrame, 32),
		events:  make(chan LinkEvent, 8),
		closeCh: make(chan struct{}),
		t0:      time.Now(),
	}
}

func (s *simSession) Frames() <-chan LinkFrame { return s.frames }
func (s *simSession) Events() <-chan LinkEvent { return s.events }

func (s *simSession) Close() error {
	s.once.Do(func() { close(s.closeCh) })
	return nil
}

// run generates sample batches on four independent tickers, matching each
// sensor's nominal rate, until Close is called.
func (s *simSession) run() {
	defer close(s.frames)
	defer close(s.events)

	s.events <- LinkEvent{Kind: LinkConnected}

	eegTick := time.NewTicker(time.Second / 25) // 10 samples/batch @ 250Hz
	ppgTick := time.NewTicker(time.Second / 10)  // 5 samples/batch @ 50Hz
	accTick := time.NewTicker(time.Second / 6)   // 5 samples/batch @ ~30Hz
	batTick := time.NewTicker(time.Second)        // 10 samples/batch @ 10Hz
	defer eegTick.Stop()
	defer ppgTick.Stop()
	defer accTick.Stop()
	defer batTick.Stop()

	for {
		select {
		case <-s.closeCh:
			s.events <- LinkEvent{Kind: LinkDisconnected, Reason: "closed"}
			return
		case <-eegTick.C:
			s.emitEEG(10)
		case <-ppgTick.C:
			s.emitPPG(5)
		case <-accTick.C:
			s.emitACC(5)
		case <-batTick.C:
			s.emitBattery(10)
		}
	}
}

func (s *simSession) elapsed() float64 {
	return time.Since(s.t0).Seconds()
}

func (s *simSession) emitEEG(n int) {
	now := s.elapsed()
	samples := make([]types.EEGSample, n)
	for i := 0; i < n; i++ {
		t := now + float64(i)/250
		samples[i] = types.EEGSample{
			TS:    t,
			CH1uV: 20*math.Sin(2*math.Pi*10*t) + 5*math.Sin(2*math.Pi*40*t),
			CH2uV: 18*math.Sin(2*math.Pi*10*t+0.3) + 4*math.Sin(2*math.Pi*40*t),
		}
	}
	s.seqEEG++
	select {
	case s.frames <- LinkFrame{Sensor: types.SensorEEG, Seq: s.seqEEG, HasSeq: true, EEG: samples}:
	case <-s.closeCh:
	}
}

func (s *simSession) emitPPG(n int) {
	now := s.elapsed()
	samples := make([]types.PPGSample, n)
	for i := 0; i < n; i++ {
		t := now + float64(i)/50
		pulse := 2000 + 300*math.Sin(2*math.Pi*1.2*t)
		samples[i] = types.PPGSample{TS: t, Red: pulse, IR: pulse * 0.9}
	}
	s.seqPPG++
	select {
	case s.frames <- LinkFrame{Sensor: types.SensorPPG, Seq: s.seqPPG, HasSeq: true, PPG: samples}:
	case <-s.closeCh:
	}
}

func (s *simSession) emitACC(n int) {
	now := s.elapsed()
	samples := make([]types.ACCSample, n)
	for i := 0; i < n; i++ {
		t := now + float64(i)/30
		samples[i] = types.ACCSample{
			TS: t,
			X:  0.02 * math.Sin(2*math.Pi*0.5*t),
			Y:  0.02 * math.Cos(2*math.Pi*0.5*t),
			Z:  1.0, // resting gravity
		}
	}
	s.seqACC++
	select {
	case s.frames <- LinkFrame{Sensor: types.SensorACC, Seq: s.seqACC, HasSeq: true, ACC: samples}:
	case <-s.closeCh:
	}
}

func (s *simSession) emitBattery(n int) {
	now := s.elapsed()
	samples := make([]types.BatteryReading, n)
	for i := 0; i < n; i++ {
		samples[i] = types.BatteryReading{TS: now + float64(i)/10, Percent: 87}
	}
	s.seqBat++
	select {
	case s.frames <- LinkFrame{Sensor: types.SensorBattery, Seq: s.seqBat, HasSeq: true, Battery: samples}:
	case <-s.closeCh:
	}
}
