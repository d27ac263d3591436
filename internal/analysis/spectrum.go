package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// PowerSpectrum returns the magnitude of the one-sided spectrum of data after
// removing its mean and applying a Hann window. Bin k corresponds to
// k / (len(data) * dt).
func PowerSpectrum(data []float64) []float64 {
	if len(data) < 2 {
		return nil
	}

	x := make([]float64, len(data))
	mean := 0.0
	for _, v := range data {
		mean += v
	}
	mean /= float64(len(data))
	for i, v := range data {
		x[i] = v - mean
	}
	window.Apply(x, window.Hann)

	spec := fft.FFTReal(x)
	ps := make([]float64, len(spec)/2+1)
	for i := range ps {
		ps[i] = cmplx.Abs(spec[i])
	}
	return ps
}

// DominantFrequency returns the frequency in Hz of the strongest non-DC bin
// of data sampled every dt seconds, and its magnitude. NaN samples make the
// result meaningless, so they are rejected with a zero result.
func DominantFrequency(data []float64, dt float64) (float64, float64) {
	if !(dt > 0) {
		return 0, 0
	}
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0
		}
	}

	ps := PowerSpectrum(data)
	best, idx := 0.0, 0
	for i := 1; i < len(ps); i++ {
		if ps[i] > best {
			best, idx = ps[i], i
		}
	}
	return float64(idx) / (float64(len(data)) * dt), best
}
