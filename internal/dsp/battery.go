package dsp

import (
	"context"
	"time"

	"github.com/vitalstream/bioengine/internal/ringbuffer"
	"github.com/vitalstream/bioengine/internal/types"
)

// BatterySource supplies the raw readings a tick consumes.
type BatterySource interface {
	SnapshotSince(cursor ringbuffer.Cursor) (samples []types.BatteryReading, next ringbuffer.Cursor, droppedDelta uint64)
}

// BatteryPipeline passes through the latest battery reading on its own
// slow cadence; there is nothing to filter or score.
type BatteryPipeline struct {
	source BatterySource
	cursor ringbuffer.Cursor

	Publish    func(types.BatteryWindow)
	OnDrop     func(uint64)
	OnDuration func(time.Duration)

	t ticker
}

func NewBatteryPipeline(source BatterySource, interval time.Duration) *BatteryPipeline {
	p := &BatteryPipeline{source: source}
	p.t = ticker{interval: interval, tick: p.tick, name: "battery", onDuration: p.reportDuration}
	return p
}

func (p *BatteryPipeline) reportDuration(d time.Duration) {
	if p.OnDuration != nil {
		p.OnDuration(d)
	}
}

func (p *BatteryPipeline) Run(ctx context.Context) { p.t.run(ctx) }

// Status always reports ok: there is nothing in a pass-through tick that
// can put this pipeline in a degraded state.
func (p *BatteryPipeline) Status() Status { return StatusOK }

func (p *BatteryPipeline) tick() error {
	samples, next, dropped := p.source.SnapshotSince(p.cursor)
	p.cursor = next
	if dropped > 0 && p.OnDrop != nil {
		p.OnDrop(dropped)
	}
	if len(samples) == 0 {
		return nil
	}
	latest := samples[len(samples)-1]
	if p.Publish != nil {
		p.Publish(types.BatteryWindow{TS: latest.TS, Percent: latest.Percent})
	}
	return nil
}
