// Package dsp implements the per-sensor digital-signal-processing
// pipelines: snapshot -> filter -> SQI -> derive indices -> emit, run on a
// fixed wall-clock cadence independent of sample count.
package dsp

import (
	"context"
	"log/slog"
	"time"
)

// Status is a pipeline's health as observed by the Engine Coordinator.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
)

// degradeThreshold is the number of consecutive tick failures after which a
// pipeline is marked degraded, per the failure semantics in the spec.
const degradeThreshold = 3

// ticker drives a single pipeline's tick loop on interval, isolating panics
// and errors from one tick so they never stop subsequent ticks. onErr is
// called with each tick error (for pipeline_error telemetry); onStatus is
// called whenever the pipeline's Status changes.
type ticker struct {
	interval   time.Duration
	tick       func() error
	onErr      func(error)
	onStatus   func(Status)
	onDuration func(time.Duration)
	name       string
}

func (t *ticker) run(ctx context.Context) {
	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	consecutiveFailures := 0
	status := StatusOK

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			start := time.Now()
			err := t.safeTick()
			if t.onDuration != nil {
				t.onDuration(time.Since(start))
			}
			if err != nil {
				consecutiveFailures++
				slog.Error("dsp.pipeline.tick_error",
					"component", "dsp", "event", "pipeline.tick_error",
					"pipeline", t.name, "consecutive_failures", consecutiveFailures, "error", err)
				if t.onErr != nil {
					t.onErr(err)
				}
				if consecutiveFailures >= degradeThreshold && status != StatusDegraded {
					status = StatusDegraded
					if t.onStatus != nil {
						t.onStatus(status)
					}
				}
			} else {
				consecutiveFailures = 0
				if status != StatusOK {
					status = StatusOK
					if t.onStatus != nil {
						t.onStatus(status)
					}
				}
			}
		}
	}
}

// safeTick isolates a panicking tick function, converting it to an error so
// one bad tick never kills the pipeline's goroutine.
func (t *ticker) safeTick() (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dsp.pipeline.tick_panic",
				"component", "dsp", "event", "pipeline.tick_panic", "pipeline", t.name, "recovered", r)
			err = panicError{recovered: r}
		}
	}()
	return t.tick()
}

type panicError struct{ recovered any }

func (p panicError) Error() string { return "pipeline tick panicked" }

// statusNames/statusCode let a pipeline store its Status behind an
// atomic.Int32 (atomic.Value would require boxing the string), for a
// Status() getter that's safe to call from the coordinator's monitoring
// goroutine while the tick loop runs concurrently.
var statusNames = [...]Status{StatusOK, StatusDegraded}

func statusCode(s Status) int32 {
	for i, name := range statusNames {
		if name == s {
			return int32(i)
		}
	}
	return 0
}
