package dsp

import "math"

// eegBands are the standard clinical EEG band edges in Hz.
var eegBands = [...][2]float64{
	{0.5, 4},  // delta
	{4, 8},    // theta
	{8, 13},   // alpha
	{13, 30},  // beta
	{30, 50},  // gamma
}

// bandPower estimates the power in each EEG band over window using the
// Goertzel algorithm, which is cheap enough to run per-tick per-channel
// without an FFT library: each band is swept in 1 Hz steps and the
// per-frequency magnitude-squared values are averaged.
func bandPower(window []float64, fs float64) [5]float64 {
	var out [5]float64
	n := len(window)
	if n == 0 {
		return out
	}
	for bi, edges := range eegBands {
		sum := 0.0
		count := 0
		for f := edges[0]; f < edges[1]; f += 1.0 {
			sum += goertzelPower(window, fs, f)
			count++
		}
		if count > 0 {
			out[bi] = sum / float64(count)
		}
	}
	return out
}

// goertzelPower returns the magnitude-squared of window's DFT coefficient
// at freq Hz, sampled at fs Hz.
func goertzelPower(window []float64, fs, freq float64) float64 {
	n := len(window)
	k := int(0.5 + float64(n)*freq/fs)
	omega := 2 * math.Pi * float64(k) / float64(n)
	coeff := 2 * math.Cos(omega)

	var s0, s1, s2 float64
	for _, x := range window {
		s0 = x + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	real := s1 - s2*math.Cos(omega)
	imag := s2 * math.Sin(omega)
	return (real*real + imag*imag) / float64(n)
}
