package dsp

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/vitalstream/bioengine/internal/ringbuffer"
	"github.com/vitalstream/bioengine/internal/types"
)

// ACCSource supplies the raw samples a tick consumes.
type ACCSource interface {
	SnapshotSince(cursor ringbuffer.Cursor) (samples []types.ACCSample, next ringbuffer.Cursor, droppedDelta uint64)
}

// ACCPipeline runs the ACC snapshot->filter->derive->emit tick. ACC has no
// meaningful per-sample SQI (it is never clipped the way EEG/PPG are), so
// this pipeline folds quality straight into the activity classification.
type ACCPipeline struct {
	source ACCSource

	cursor  ringbuffer.Cursor
	filterX *ACCFilter
	filterY *ACCFilter
	filterZ *ACCFilter

	Publish    func(types.ACCWindow)
	Record     func(types.ACCWindow)
	OnDrop     func(uint64)
	OnStatus   func(Status)
	OnDuration func(time.Duration)

	status atomic.Int32
	t      ticker
}

func NewACCPipeline(source ACCSource, fs float64, interval time.Duration) *ACCPipeline {
	p := &ACCPipeline{
		source:  source,
		filterX: NewACCFilter(fs),
		filterY: NewACCFilter(fs),
		filterZ: NewACCFilter(fs),
	}
	p.t = ticker{interval: interval, tick: p.tick, name: "acc", onStatus: p.setStatus, onDuration: p.reportDuration}
	return p
}

func (p *ACCPipeline) reportDuration(d time.Duration) {
	if p.OnDuration != nil {
		p.OnDuration(d)
	}
}

func (p *ACCPipeline) Run(ctx context.Context) { p.t.run(ctx) }

// Status returns the pipeline's current health.
func (p *ACCPipeline) Status() Status { return Status(statusNames[p.status.Load()]) }

func (p *ACCPipeline) setStatus(s Status) {
	p.status.Store(statusCode(s))
	if p.OnStatus != nil {
		p.OnStatus(s)
	}
}

func (p *ACCPipeline) tick() error {
	samples, next, dropped := p.source.SnapshotSince(p.cursor)
	p.cursor = next
	if dropped > 0 && p.OnDrop != nil {
		p.OnDrop(dropped)
	}
	if len(samples) == 0 {
		now := float64(time.Now().UnixNano()) / 1e9
		window := types.ACCWindow{
			WindowStart:   now,
			WindowEnd:     now,
			Activity:      types.ClassifyActivity(0),
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

	x := make([]float64, len(samples))
	y := make([]float64, len(samples))
	z := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = s.X
		y[i] = s.Y
		z[i] = s.Z
	}

	fx := make([]float64, len(x))
	fy := make([]float64, len(y))
	fz := make([]float64, len(z))
	p.filterX.Apply(x, fx)
	p.filterY.Apply(y, fy)
	p.filterZ.Apply(z, fz)

	magnitudes := make([]float64, len(samples))
	// Magnitude uses the unfiltered (gravity-inclusive) signal scaled to
	// milli-g, matching the Glossary's activity thresholds.
	for i := range samples {
		magnitudes[i] = 1000 * math.Sqrt(x[i]*x[i]+y[i]*y[i]+z[i]*z[i])
	}

	avgMag := mean(magnitudes)
	stdMag := stddev(magnitudes, avgMag)
	maxMag := magnitudes[0]
	for _, m := range magnitudes {
		if m > maxMag {
			maxMag = m
		}
	}

	quality := types.SignalQualityGood
	if len(samples) < 3 {
		quality = types.SignalQualityInsufficient
	}

	window := types.ACCWindow{
		WindowStart:  samples[0].TS,
		WindowEnd:    samples[len(samples)-1].TS,
		DeltaX:       fx[len(fx)-1] - fx[0],
		DeltaY:       fy[len(fy)-1] - fy[0],
		DeltaZ:       fz[len(fz)-1] - fz[0],
		AvgMagnitude:  avgMag,
		StdMagnitude:  stdMag,
		MaxMagnitude:  maxMag,
		Activity:      types.ClassifyActivity(avgMag),
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
