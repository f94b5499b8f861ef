package dsp

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vitalstream/bioengine/internal/ringbuffer"
	"github.com/vitalstream/bioengine/internal/types"
)

// EEGSource supplies the raw samples a tick consumes.
type EEGSource interface {
	SnapshotSince(cursor ringbuffer.Cursor) (samples []types.EEGSample, next ringbuffer.Cursor, droppedDelta uint64)
}

// EEGPipeline runs the EEG snapshot->filter->SQI->derive->emit tick.
type EEGPipeline struct {
	source  EEGSource
	fs      float64
	mainsHz float64

	cursor  ringbuffer.Cursor
	filter1 *BandpassNotch
	filter2 *BandpassNotch

	Publish    func(types.EEGWindow)
	Record     func(types.EEGWindow)
	OnDrop     func(uint64)
	OnStatus   func(Status)
	OnDuration func(time.Duration)

	status atomic.Int32
	t      ticker
}

// NewEEGPipeline builds a pipeline reading from source at the given tick
// interval. mainsHz is the local mains frequency (50 or 60) for the notch
// filter.
func NewEEGPipeline(source EEGSource, fs, mainsHz float64, interval time.Duration) *EEGPipeline {
	p := &EEGPipeline{
		source:  source,
		fs:      fs,
		mainsHz: mainsHz,
		filter1: NewEEGFilter(fs, mainsHz),
		filter2: NewEEGFilter(fs, mainsHz),
	}
	p.t = ticker{interval: interval, tick: p.tick, name: "eeg", onStatus: p.setStatus, onDuration: p.reportDuration}
	return p
}

func (p *EEGPipeline) reportDuration(d time.Duration) {
	if p.OnDuration != nil {
		p.OnDuration(d)
	}
}

// Run starts the pipeline's tick loop; it returns when ctx is cancelled.
func (p *EEGPipeline) Run(ctx context.Context) { p.t.run(ctx) }

// Status returns the pipeline's current health, updated whenever the tick
// loop degrades or recovers.
func (p *EEGPipeline) Status() Status { return Status(statusNames[p.status.Load()]) }

func (p *EEGPipeline) setStatus(s Status) {
	p.status.Store(statusCode(s))
	if p.OnStatus != nil {
		p.OnStatus(s)
	}
}

func (p *EEGPipeline) tick() error {
	samples, next, dropped := p.source.SnapshotSince(p.cursor)
	p.cursor = next
	if dropped > 0 && p.OnDrop != nil {
		p.OnDrop(dropped)
	}
	if len(samples) == 0 {
		now := float64(time.Now().UnixNano()) / 1e9
		window := types.EEGWindow{
			WindowStart:   now,
			WindowEnd:     now,
			SignalQuality: types.SignalQualityInsufficient,
		}
		if p.Publish != nil {
			p.Publish(window)
		}
		if p.Record != nil {
			p.Record(window)
		}
		return nil
	}

	ch1 := make([]float64, len(samples))
	ch2 := make([]float64, len(samples))
	for i, s := range samples {
		ch1[i] = s.CH1uV
		ch2[i] = s.CH2uV
	}

	filtered1 := make([]float64, len(ch1))
	filtered2 := make([]float64, len(ch2))
	p.filter1.Apply(ch1, filtered1)
	p.filter2.Apply(ch2, filtered2)

	sqi1 := make([]float64, len(filtered1))
	sqi2 := make([]float64, len(filtered2))
	for i, v := range filtered1 {
		sqi1[i] = eegSampleSQI(v)
	}
	for i, v := range filtered2 {
		sqi2[i] = eegSampleSQI(v)
	}

	quality := types.SignalQualityGood
	const minSamples = 8
	var indices types.EEGIndices
	var bp1, bp2 types.BandPowers
	if len(filtered1) < minSamples {
		quality = types.SignalQualityInsufficient
	} else {
		raw1 := bandPower(filtered1, p.fs)
		raw2 := bandPower(filtered2, p.fs)
		bp1 = types.BandPowers{Delta: raw1[0], Theta: raw1[1], Alpha: raw1[2], Beta: raw1[3], Gamma: raw1[4]}
		bp2 = types.BandPowers{Delta: raw2[0], Theta: raw2[1], Alpha: raw2[2], Beta: raw2[3], Gamma: raw2[4]}
		indices = deriveEEGIndices(bp1, bp2)
	}

	window := types.EEGWindow{
		WindowStart:   samples[0].TS,
		WindowEnd:     samples[len(samples)-1].TS,
		FilteredCH1:   filtered1,
		FilteredCH2:   filtered2,
		SQICH1:        sqi1,
		SQICH2:        sqi2,
		BandPowersCH1: bp1,
		BandPowersCH2: bp2,
		Indices:       indices,
		SignalQuality: quality,
	}

	if p.Publish != nil {
		p.Publish(window)
	}
	if p.Record != nil {
		p.Record(window)
	}
	return nil
}

// deriveEEGIndices computes the Glossary formulas from averaged left/right
// band powers. alpha/theta/beta/gamma below are the mean of the two
// channels; hemispheric balance alone distinguishes left (ch1) from right
// (ch2).
func deriveEEGIndices(left, right types.BandPowers) types.EEGIndices {
	alpha := (left.Alpha + right.Alpha) / 2
	theta := (left.Theta + right.Theta) / 2
	beta := (left.Beta + right.Beta) / 2
	gamma := (left.Gamma + right.Gamma) / 2
	delta := (left.Delta + right.Delta) / 2

	safeDiv := func(n, d float64) float64 {
		if d == 0 {
			return 0
		}
		return n / d
	}

	return types.EEGIndices{
		Focus:              safeDiv(beta, alpha+theta),
		Relaxation:         safeDiv(alpha, alpha+beta),
		Stress:             safeDiv(beta+gamma, alpha+theta),
		HemisphericBalance: safeDiv(left.Alpha-right.Alpha, left.Alpha+right.Alpha),
		CognitiveLoad:      safeDiv(theta, alpha),
		EmotionalStability: safeDiv(alpha+theta, gamma),
		TotalPower:         delta + theta + alpha + beta + gamma,
	}
}
