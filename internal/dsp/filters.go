package dsp

import "math"

// biquad is a single second-order IIR section in direct form II transposed,
// the standard building block for the Butterworth-style sections used
// below. State (z1, z2) persists across calls so a pipeline's scratch
// buffer carries filter memory between ticks without reallocating.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

func (f *biquad) step(x float64) float64 {
	y := f.b0*x + f.z1
	f.z1 = f.b1*x - f.a1*y + f.z2
	f.z2 = f.b2*x - f.a2*y
	return y
}

func (f *biquad) apply(in []float64, out []float64) {
	for i, x := range in {
		out[i] = f.step(x)
	}
}

// lowpassBiquad builds a Butterworth low-pass section at cutoff Hz, sampled
// at fs Hz.
func lowpassBiquad(cutoff, fs float64) biquad {
	omega := 2 * math.Pi * cutoff / fs
	alpha := math.Sin(omega) / math.Sqrt2
	cosw := math.Cos(omega)
	a0 := 1 + alpha
	return biquad{
		b0: (1 - cosw) / 2 / a0,
		b1: (1 - cosw) / a0,
		b2: (1 - cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

// highpassBiquad builds a Butterworth high-pass section at cutoff Hz.
func highpassBiquad(cutoff, fs float64) biquad {
	omega := 2 * math.Pi * cutoff / fs
	alpha := math.Sin(omega) / math.Sqrt2
	cosw := math.Cos(omega)
	a0 := 1 + alpha
	return biquad{
		b0: (1 + cosw) / 2 / a0,
		b1: -(1 + cosw) / a0,
		b2: (1 + cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

// notchBiquad builds a narrow-band notch filter at freq Hz (mains hum
// rejection), sampled at fs Hz.
func notchBiquad(freq, fs, q float64) biquad {
	omega := 2 * math.Pi * freq / fs
	alpha := math.Sin(omega) / (2 * q)
	cosw := math.Cos(omega)
	a0 := 1 + alpha
	return biquad{
		b0: 1 / a0,
		b1: -2 * cosw / a0,
		b2: 1 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

// BandpassNotch is the EEG chain: 0.5-50 Hz bandpass (high-pass then
// low-pass sections) followed by a 50/60 Hz notch, cascaded in two
// Butterworth stages per band edge for a steeper 4th-order rolloff.
type BandpassNotch struct {
	hp1, hp2 biquad
	lp1, lp2 biquad
	notch    biquad
}

// NewEEGFilter builds the filter chain described in §4.2: bandpass 0.5-50
// Hz, notch at mainsHz (50 or 60).
func NewEEGFilter(fs, mainsHz float64) *BandpassNotch {
	return &BandpassNotch{
		hp1:   highpassBiquad(0.5, fs),
		hp2:   highpassBiquad(0.5, fs),
		lp1:   lowpassBiquad(50, fs),
		lp2:   lowpassBiquad(50, fs),
		notch: notchBiquad(mainsHz, fs, 30),
	}
}

// Apply filters in into out (same length), mutating the filter's internal
// state so subsequent calls continue seamlessly.
func (f *BandpassNotch) Apply(in, out []float64) {
	scratch := make([]float64, len(in))
	f.hp1.apply(in, scratch)
	f.hp2.apply(scratch, out)
	f.lp1.apply(out, scratch)
	f.lp2.apply(scratch, out)
	f.notch.apply(out, scratch)
	copy(out, scratch)
}

// PPGFilter is the PPG chain: 0.5-8 Hz bandpass, 2nd order.
type PPGFilter struct {
	hp biquad
	lp biquad
}

func NewPPGFilter(fs float64) *PPGFilter {
	return &PPGFilter{hp: highpassBiquad(0.5, fs), lp: lowpassBiquad(8, fs)}
}

func (f *PPGFilter) Apply(in, out []float64) {
	scratch := make([]float64, len(in))
	f.hp.apply(in, scratch)
	f.lp.apply(scratch, out)
}

// ACCFilter is a second-order (biquad) high-pass used to remove the gravity
// component from each accelerometer axis.
type ACCFilter struct {
	hp biquad
}

func NewACCFilter(fs float64) *ACCFilter {
	return &ACCFilter{hp: highpassBiquad(0.3, fs)}
}

func (f *ACCFilter) Apply(in, out []float64) {
	f.hp.apply(in, out)
}
