package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalstream/bioengine/internal/types"
)

type recordingSink struct {
	mu      sync.Mutex
	batches []types.RawBatch
}

func (r *recordingSink) OnRawBatch(b types.RawBatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestScanZeroDurationReturnsEmptyImmediately(t *testing.T) {
	a := New(NewSimulator(), DefaultReconnectPolicy(), nil)
	start := time.Now()
	devices, err := a.Scan(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, devices)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestConnectDeliversBatchesToSink(t *testing.T) {
	var events []Event
	var mu sync.Mutex
	a := New(NewSimulator(), DefaultReconnectPolicy(), func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	sink := &recordingSink{}
	a.SetSink(sink)

	require.NoError(t, a.Connect(context.Background(), "AA:BB:CC:DD:EE:01"))
	assert.Eventually(t, func() bool { return sink.count() > 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, StateConnected, a.State())

	mu.Lock()
	sawConnected := false
	for _, e := range events {
		if e.Kind == EventConnected {
			sawConnected = true
		}
	}
	mu.Unlock()
	assert.True(t, sawConnected)

	require.NoError(t, a.Disconnect())
	assert.Eventually(t, func() bool { return a.State() == StateIdle }, time.Second, 10*time.Millisecond)
}

func TestDisconnectWhileDisconnectedIsNoop(t *testing.T) {
	a := New(NewSimulator(), DefaultReconnectPolicy(), nil)
	assert.NoError(t, a.Disconnect())
	assert.Equal(t, StateIdle, a.State())
}

func TestConnectTwiceReturnsBusy(t *testing.T) {
	a := New(NewSimulator(), DefaultReconnectPolicy(), nil)
	require.NoError(t, a.Connect(context.Background(), "AA:BB:CC:DD:EE:01"))
	defer a.Disconnect()

	err := a.Connect(context.Background(), "AA:BB:CC:DD:EE:01")
	require.Error(t, err)
	engErr, ok := err.(*types.EngineError)
	require.True(t, ok)
	assert.Equal(t, types.ErrDeviceBusy, engErr.Code)
}

func TestEEGSamplesHaveStrictlyIncreasingTimestamps(t *testing.T) {
	a := New(NewSimulator(), DefaultReconnectPolicy(), nil)
	sink := &recordingSink{}
	a.SetSink(sink)
	require.NoError(t, a.Connect(context.Background(), "AA:BB:CC:DD:EE:01"))
	defer a.Disconnect()

	assert.Eventually(t, func() bool { return sink.count() >= 3 }, time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	var last float64
	seen := false
	for _, b := range sink.batches {
		if b.Sensor != types.SensorEEG {
			continue
		}
		for _, s := range b.EEG {
			if seen {
				assert.Greater(t, s.TS, last)
			}
			last = s.TS
			seen = true
		}
	}
	assert.True(t, seen, "expected at least one EEG batch")
}
