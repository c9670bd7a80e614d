package tremor

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MinSpectrumSamples is the shortest series Spectrum will transform.
const MinSpectrumSamples = 4

// Band is an inclusive frequency range in Hz.
type Band struct {
	Min float64
	Max float64
}

// Contains reports whether f lies inside the band, edges included.
func (b Band) Contains(f float64) bool {
	return f >= b.Min && f <= b.Max
}

var (
	// TremorBand covers physiological and pathological tremor.
	TremorBand = Band{Min: 4.0, Max: 12.0}
	// RestingBand is the narrower range typical of resting tremor.
	RestingBand = Band{Min: 4.0, Max: 6.0}
)

// Spectrum returns the one-sided magnitude spectrum of samples.
//
// The input is Hann-windowed, transformed, and each magnitude divided by
// len(samples). Only the first len(samples)/2 bins (the non-negative
// frequencies) are kept; bin k is at k*sampleRate/len(samples) Hz. Fewer than
// MinSpectrumSamples samples yield two empty slices. samples is not modified.
func Spectrum(samples []float64, sampleRate float64) (freqs, mags []float64) {
	n := len(samples)
	if n < MinSpectrumSamples {
		return []float64{}, []float64{}
	}

	windowed := window.Hann(append([]float64(nil), samples...))

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, windowed)

	half := n / 2
	freqs = make([]float64, half)
	mags = make([]float64, half)
	for k := 0; k < half; k++ {
		freqs[k] = fft.Freq(k) * sampleRate
		mags[k] = cmplx.Abs(coeffs[k]) / float64(n)
	}
	return freqs, mags
}

// Detrend returns samples minus their least-squares straight line fitted
// against the sample index.
func Detrend(samples []float64) []float64 {
	out := make([]float64, len(samples))
	if len(samples) < 2 {
		return out
	}
	xs := make([]float64, len(samples))
	for i := range xs {
		xs[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(xs, samples, nil, false)
	for i, y := range samples {
		out[i] = y - (alpha + beta*xs[i])
	}
	return out
}

// peakInBand returns the frequency and magnitude of the strongest bin inside
// b. ok is false when no bin falls inside the band.
func peakInBand(freqs, mags []float64, b Band) (freq, mag float64, ok bool) {
	var inBand []int
	for i, f := range freqs {
		if b.Contains(f) {
			inBand = append(inBand, i)
		}
	}
	if len(inBand) == 0 {
		return 0, 0, false
	}
	bandMags := make([]float64, len(inBand))
	for i, idx := range inBand {
		bandMags[i] = mags[idx]
	}
	best := floats.MaxIdx(bandMags)
	return freqs[inBand[best]], bandMags[best], true
}
