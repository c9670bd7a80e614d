// Package tremor measures rhythmic wrist oscillation in the 4-12 Hz band
// from a landmark sequence using a Hann-windowed FFT.
package tremor

import (
	"math"

	"github.com/banshee-data/motion.report/internal/pose"
)

// DefaultSampleRate is the frame rate assumed when none is configured (Hz).
const DefaultSampleRate = 30.0

const (
	MinFrequencySamples = 10
	MinAmplitudeSamples = 5
	MinRestingSamples   = 10

	// RestingPresenceThreshold is the confidence above which resting
	// tremor is reported as present.
	RestingPresenceThreshold = 0.05
	// MaxExpectedAmplitude normalizes the tremor score.
	MaxExpectedAmplitude = 0.5
	// maxWristContribution caps each wrist's share of resting confidence.
	maxWristContribution = 0.5
)

// WristMetrics is the tremor measurement of a single wrist.
type WristMetrics struct {
	Frequency    float64
	HasFrequency bool
	Amplitude    float64
	HasAmplitude bool
}

// Metrics bundles the tremor measurements of one session.
type Metrics struct {
	Left              WristMetrics
	Right             WristMetrics
	RestingTremor     bool
	RestingConfidence float64
	Score             float64
}

// Analyzer holds tremor configuration. The zero value uses DefaultSampleRate.
type Analyzer struct {
	SampleRate float64
}

// NewAnalyzer returns an Analyzer for the given frame rate. Non-positive
// rates fall back to DefaultSampleRate.
func NewAnalyzer(sampleRate float64) Analyzer {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return Analyzer{SampleRate: sampleRate}
}

func (a Analyzer) sampleRate() float64 {
	if a.SampleRate <= 0 {
		return DefaultSampleRate
	}
	return a.SampleRate
}

// Resolution is the spectral bin width in Hz for n samples.
func (a Analyzer) Resolution(n int) float64 {
	if n == 0 {
		return 0
	}
	return a.sampleRate() / float64(n)
}

// Analyze measures both wrists, resting tremor and the overall score.
func (a Analyzer) Analyze(seq pose.Sequence) Metrics {
	m := Metrics{
		Left:  a.wrist(seq, pose.LeftWrist),
		Right: a.wrist(seq, pose.RightWrist),
	}
	m.RestingTremor, m.RestingConfidence = a.RestingTremor(seq)
	m.Score = scoreFromAmplitudes(m.Left.Amplitude, m.Right.Amplitude)
	return m
}

func (a Analyzer) wrist(seq pose.Sequence, l pose.Landmark) WristMetrics {
	var w WristMetrics
	w.Frequency, w.HasFrequency = a.Frequency(seq, l)
	w.Amplitude, w.HasAmplitude = a.Amplitude(seq, l)
	return w
}

// OscillationSequence returns the planar magnitude sqrt(x^2+y^2) of landmark
// l per frame. Frames that do not contain l are skipped.
func (a Analyzer) OscillationSequence(seq pose.Sequence, l pose.Landmark) []float64 {
	out := make([]float64, 0, len(seq))
	for _, f := range seq {
		p, ok := f.At(l)
		if !ok {
			continue
		}
		out = append(out, math.Hypot(p.X, p.Y))
	}
	return out
}

// Spectrum is the package-level Spectrum at the analyzer's sample rate.
func (a Analyzer) Spectrum(samples []float64) (freqs, mags []float64) {
	return Spectrum(samples, a.sampleRate())
}

// WristSpectrum is the detrended spectrum Frequency searches for landmark l.
// ok is false with fewer than MinFrequencySamples samples.
func (a Analyzer) WristSpectrum(seq pose.Sequence, l pose.Landmark) (freqs, mags []float64, ok bool) {
	return a.detrendedSpectrum(seq, l, MinFrequencySamples)
}

func (a Analyzer) detrendedSpectrum(seq pose.Sequence, l pose.Landmark, minSamples int) (freqs, mags []float64, ok bool) {
	osc := a.OscillationSequence(seq, l)
	if len(osc) < minSamples {
		return nil, nil, false
	}
	freqs, mags = a.Spectrum(Detrend(osc))
	if len(freqs) == 0 {
		return nil, nil, false
	}
	return freqs, mags, true
}

// Frequency returns the dominant frequency (Hz) of landmark l within
// TremorBand. ok is false with fewer than MinFrequencySamples samples or when
// no spectral bin falls inside the band.
func (a Analyzer) Frequency(seq pose.Sequence, l pose.Landmark) (float64, bool) {
	freqs, mags, ok := a.detrendedSpectrum(seq, l, MinFrequencySamples)
	if !ok {
		return 0, false
	}
	f, _, ok := peakInBand(freqs, mags, TremorBand)
	return f, ok
}

// Amplitude returns the largest spectral magnitude of landmark l within
// TremorBand. ok is false with fewer than MinAmplitudeSamples samples; when
// no bin falls inside the band the amplitude is 0 and ok is true.
func (a Analyzer) Amplitude(seq pose.Sequence, l pose.Landmark) (float64, bool) {
	freqs, mags, ok := a.detrendedSpectrum(seq, l, MinAmplitudeSamples)
	if !ok {
		return 0, false
	}
	_, mag, ok := peakInBand(freqs, mags, TremorBand)
	if !ok {
		return 0, true
	}
	return mag, true
}

// RestingTremor inspects both wrists in RestingBand. Each wrist contributes
// half its peak magnitude, at most 0.5, to a confidence in [0, 1]. Tremor
// is present when the confidence exceeds RestingPresenceThreshold.
func (a Analyzer) RestingTremor(seq pose.Sequence) (present bool, confidence float64) {
	left := a.OscillationSequence(seq, pose.LeftWrist)
	right := a.OscillationSequence(seq, pose.RightWrist)
	if len(left) < MinRestingSamples || len(right) < MinRestingSamples {
		return false, 0
	}

	for _, osc := range [][]float64{left, right} {
		freqs, mags := a.Spectrum(Detrend(osc))
		if _, mag, ok := peakInBand(freqs, mags, RestingBand); ok {
			confidence += math.Min(mag/2, maxWristContribution)
		}
	}
	confidence = clamp01(confidence)
	return confidence > RestingPresenceThreshold, confidence
}

// Score averages both wrist amplitudes (absent counts as 0) and normalizes
// by MaxExpectedAmplitude into [0, 1].
func (a Analyzer) Score(seq pose.Sequence) float64 {
	left, _ := a.Amplitude(seq, pose.LeftWrist)
	right, _ := a.Amplitude(seq, pose.RightWrist)
	return scoreFromAmplitudes(left, right)
}

func scoreFromAmplitudes(left, right float64) float64 {
	return clamp01((left + right) / 2 / MaxExpectedAmplitude)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
