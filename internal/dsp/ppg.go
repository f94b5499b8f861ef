package dsp

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/vitalstream/bioengine/internal/ringbuffer"
	"github.com/vitalstream/bioengine/internal/types"
)

// PPGSource supplies the raw samples a tick consumes.
type PPGSource interface {
	SnapshotSince(cursor ringbuffer.Cursor) (samples []types.PPGSample, next ringbuffer.Cursor, droppedDelta uint64)
}

// PPGPipeline runs the PPG snapshot->filter->SQI->derive->emit tick,
// carrying the previous tick's last peak timestamp across ticks so an RR
// interval can span a tick boundary.
type PPGPipeline struct {
	source PPGSource
	fs     float64

	cursor     ringbuffer.Cursor
	filter     *PPGFilter
	lastPeakTS float64
	havePeak   bool

	Publish    func(types.PPGWindow)
	Record     func(types.PPGWindow)
	OnDrop     func(uint64)
	OnStatus   func(Status)
	OnDuration func(time.Duration)

	status atomic.Int32
	t      ticker
}

func NewPPGPipeline(source PPGSource, fs float64, interval time.Duration) *PPGPipeline {
	p := &PPGPipeline{source: source, fs: fs, filter: NewPPGFilter(fs)}
	p.t = ticker{interval: interval, tick: p.tick, name: "ppg", onStatus: p.setStatus, onDuration: p.reportDuration}
	return p
}

func (p *PPGPipeline) reportDuration(d time.Duration) {
	if p.OnDuration != nil {
		p.OnDuration(d)
	}
}

func (p *PPGPipeline) Run(ctx context.Context) { p.t.run(ctx) }

// Status returns the pipeline's current health.
func (p *PPGPipeline) Status() Status { return Status(statusNames[p.status.Load()]) }

func (p *PPGPipeline) setStatus(s Status) {
	p.status.Store(statusCode(s))
	if p.OnStatus != nil {
		p.OnStatus(s)
	}
}

func (p *PPGPipeline) tick() error {
	samples, next, dropped := p.source.SnapshotSince(p.cursor)
	p.cursor = next
	if dropped > 0 && p.OnDrop != nil {
		p.OnDrop(dropped)
	}
	if len(samples) == 0 {
		now := float64(time.Now().UnixNano()) / 1e9
		window := types.PPGWindow{
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

	ir := make([]float64, len(samples))
	red := make([]float64, len(samples))
	ts := make([]float64, len(samples))
	for i, s := range samples {
		ir[i] = s.IR
		red[i] = s.Red
		ts[i] = s.TS
	}

	filtered := make([]float64, len(ir))
	p.filter.Apply(ir, filtered)

	m := mean(filtered)
	sd := stddev(filtered, m)
	sqi := make([]float64, len(filtered))
	for i, v := range filtered {
		sqi[i] = ppgSampleSQI(v, m, sd)
	}

	rrMs := p.detectRR(filtered, ts)

	quality := types.SignalQualityGood
	var hrv types.HRVIndices
	const minRR = 3
	if len(rrMs) < minRR {
		quality = types.SignalQualityInsufficient
	} else {
		hrv = deriveHRV(rrMs)
	}

	window := types.PPGWindow{
		WindowStart:   samples[0].TS,
		WindowEnd:     samples[len(samples)-1].TS,
		Filtered:      filtered,
		SQI:           sqi,
		HRV:           hrv,
		RedMean:       mean(red),
		IRMean:        mean(ir),
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

// detectRR finds local maxima above the window's mean (systolic peaks) and
// returns the inter-peak intervals in milliseconds, including the gap from
// the previous tick's last peak so RR sequences are not truncated at tick
// boundaries.
func (p *PPGPipeline) detectRR(filtered, ts []float64) []float64 {
	if len(filtered) < 3 {
		return nil
	}
	m := mean(filtered)
	var peaks []float64
	for i := 1; i < len(filtered)-1; i++ {
		if filtered[i] > m && filtered[i] >= filtered[i-1] && filtered[i] > filtered[i+1] {
			peaks = append(peaks, ts[i])
		}
	}

	var rr []float64
	if p.havePeak && len(peaks) > 0 {
		rr = append(rr, (peaks[0]-p.lastPeakTS)*1000)
	}
	for i := 1; i < len(peaks); i++ {
		rr = append(rr, (peaks[i]-peaks[i-1])*1000)
	}
	if len(peaks) > 0 {
		p.lastPeakTS = peaks[len(peaks)-1]
		p.havePeak = true
	}
	return rr
}

// deriveHRV computes the Glossary's time- and frequency-domain HRV
// indices from a sequence of RR intervals (ms). The LF/HF split uses the
// standard clinical bands (LF 0.04-0.15 Hz, HF 0.15-0.4 Hz) applied to the
// RR tachogram's own sample rate (1/mean(RR)).
func deriveHRV(rrMs []float64) types.HRVIndices {
	meanRR := mean(rrMs)
	bpm := 0.0
	if meanRR > 0 {
		bpm = 60000 / meanRR
	}
	sdnn := stddev(rrMs, meanRR)

	var diffs []float64
	for i := 1; i < len(rrMs); i++ {
		diffs = append(diffs, rrMs[i]-rrMs[i-1])
	}
	rmssd := 0.0
	pnn50 := 0.0
	sdsd := 0.0
	if len(diffs) > 0 {
		sumSq := 0.0
		over50 := 0
		for _, d := range diffs {
			sumSq += d * d
			if math.Abs(d) > 50 {
				over50++
			}
		}
		rmssd = math.Sqrt(sumSq / float64(len(diffs)))
		pnn50 = float64(over50) / float64(len(diffs))
		sdsd = stddev(diffs, mean(diffs))
	}

	fsTacho := 1.0
	if meanRR > 0 {
		fsTacho = 1000 / meanRR
	}
	lf := 0.0
	hf := 0.0
	if len(rrMs) >= 8 {
		lf = goertzelBandPower(rrMs, fsTacho, 0.04, 0.15)
		hf = goertzelBandPower(rrMs, fsTacho, 0.15, 0.4)
	}
	lfhf := 0.0
	if hf > 0 {
		lfhf = lf / hf
	}

	sd1 := math.Sqrt(0.5) * sdsd
	sd2 := math.Sqrt(math.Max(0, 2*sdnn*sdnn-0.5*sdsd*sdsd))

	return types.HRVIndices{
		BPM: bpm, SDNN: sdnn, RMSSD: rmssd, PNN50: pnn50, SDSD: sdsd,
		LF: lf, HF: hf, LFHF: lfhf, SD1: sd1, SD2: sd2,
	}
}

func goertzelBandPower(series []float64, fs, lo, hi float64) float64 {
	sum := 0.0
	count := 0
	step := (hi - lo) / 8
	if step <= 0 {
		step = 0.01
	}
	for f := lo; f < hi; f += step {
		sum += goertzelPower(series, fs, f)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
