package dsp

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalstream/bioengine/internal/ringbuffer"
	"github.com/vitalstream/bioengine/internal/types"
)

func TestEEGFilterAttenuatesDC(t *testing.T) {
	f := NewEEGFilter(250, 60)
	in := make([]float64, 500)
	for i := range in {
		in[i] = 100 // pure DC offset, outside the 0.5-50Hz passband
	}
	out := make([]float64, len(in))
	f.Apply(in, out)
	assert.Less(t, abs(out[len(out)-1]), 1.0)
}

func TestClassifyActivityThresholds(t *testing.T) {
	assert.Equal(t, types.ActivityStationary, types.ClassifyActivity(50))
	assert.Equal(t, types.ActivitySitting, types.ClassifyActivity(400))
	assert.Equal(t, types.ActivityWalking, types.ClassifyActivity(800))
	assert.Equal(t, types.ActivityRunning, types.ClassifyActivity(1500))
}

func TestEEGSampleSQIDecaysWithAmplitude(t *testing.T) {
	assert.Equal(t, 1.0, eegSampleSQI(10))
	assert.Equal(t, 0.0, eegSampleSQI(400))
	mid := eegSampleSQI(200)
	assert.Greater(t, mid, 0.0)
	assert.Less(t, mid, 1.0)
}

func TestTickerDegradesAfterThreeFailures(t *testing.T) {
	var mu sync.Mutex
	var statuses []Status
	calls := 0
	tk := ticker{
		interval: time.Millisecond,
		name:     "test",
		tick: func() error {
			calls++
			return assert.AnError
		},
		onStatus: func(s Status) {
			mu.Lock()
			statuses = append(statuses, s)
			mu.Unlock()
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	tk.run(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, statuses)
	assert.Equal(t, StatusDegraded, statuses[0])
}

func TestTickerRecoversIsolatesPanic(t *testing.T) {
	tk := ticker{
		interval: time.Millisecond,
		name:     "test",
		tick: func() error {
			panic("boom")
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NotPanics(t, func() { tk.run(ctx) })
}

func TestEEGPipelineEmitsInsufficientQualityBelowMinSamples(t *testing.T) {
	rb := ringbuffer.New[types.EEGSample](16)
	rb.Push(types.EEGSample{TS: 0, CH1uV: 1, CH2uV: 1})

	p := NewEEGPipeline(rb, 250, 60, time.Hour)
	var got types.EEGWindow
	p.Publish = func(w types.EEGWindow) { got = w }
	require.NoError(t, p.tick())
	assert.Equal(t, types.SignalQualityInsufficient, got.SignalQuality)
}

func TestEEGPipelineEmitsInsufficientQualityOnZeroSamples(t *testing.T) {
	rb := ringbuffer.New[types.EEGSample](16)

	p := NewEEGPipeline(rb, 250, 60, time.Hour)
	published := false
	var got types.EEGWindow
	p.Publish = func(w types.EEGWindow) { published = true; got = w }
	require.NoError(t, p.tick())
	assert.True(t, published)
	assert.Equal(t, types.SignalQualityInsufficient, got.SignalQuality)
}

func TestPPGPipelineEmitsInsufficientQualityOnZeroSamples(t *testing.T) {
	rb := ringbuffer.New[types.PPGSample](16)

	p := NewPPGPipeline(rb, 50, time.Hour)
	published := false
	var got types.PPGWindow
	p.Publish = func(w types.PPGWindow) { published = true; got = w }
	require.NoError(t, p.tick())
	assert.True(t, published)
	assert.Equal(t, types.SignalQualityInsufficient, got.SignalQuality)
}

func TestACCPipelineEmitsInsufficientQualityOnZeroSamples(t *testing.T) {
	rb := ringbuffer.New[types.ACCSample](16)

	p := NewACCPipeline(rb, 30, time.Hour)
	published := false
	var got types.ACCWindow
	p.Publish = func(w types.ACCWindow) { published = true; got = w }
	require.NoError(t, p.tick())
	assert.True(t, published)
	assert.Equal(t, types.SignalQualityInsufficient, got.SignalQuality)
	assert.Equal(t, types.ActivityStationary, got.Activity)
}

func TestPPGPipelineDerivesBPMFromSyntheticPulse(t *testing.T) {
	rb := ringbuffer.New[types.PPGSample](4096)
	fs := 50.0
	for i := 0; i < 1000; i++ {
		tsec := float64(i) / fs
		rb.Push(types.PPGSample{TS: tsec, IR: 2000 + 300*math.Sin(2*math.Pi*1.2*tsec), Red: 1800})
	}

	p := NewPPGPipeline(rb, fs, time.Hour)
	var got types.PPGWindow
	p.Publish = func(w types.PPGWindow) { got = w }
	require.NoError(t, p.tick())
	if got.SignalQuality == types.SignalQualityGood {
		assert.InDelta(t, 72, got.HRV.BPM, 20)
	}
}

func TestBatteryPipelinePassesThroughLatestReading(t *testing.T) {
	rb := ringbuffer.New[types.BatteryReading](8)
	rb.Push(types.BatteryReading{TS: 1, Percent: 90})
	rb.Push(types.BatteryReading{TS: 2, Percent: 85})

	p := NewBatteryPipeline(rb, time.Hour)
	var got types.BatteryWindow
	p.Publish = func(w types.BatteryWindow) { got = w }
	require.NoError(t, p.tick())
	assert.Equal(t, 85.0, got.Percent)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
