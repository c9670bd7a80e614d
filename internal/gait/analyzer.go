package gait

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/motion.report/internal/pose"
)

// DefaultSampleRate is the frame rate assumed when none is configured (Hz).
const DefaultSampleRate = 30.0

// Observable thresholds of the gait contract.
const (
	MinCycleFrames       = 10  // frames (and valid ankle samples) needed to look for cycles
	PeakMinDistance      = 10  // samples between consecutive ankle-height peaks
	PeakMinHeight        = 0.1 // normalized y units
	MinStrideCycles      = 2
	MinCadenceSeconds    = 1.0
	MinSymmetryFrames    = 10
	MinBradykinesiaFrame = 5

	// NeutralScore is returned by Symmetry and BradykinesiaScore when there
	// is not enough data to say anything.
	NeutralScore = 0.5

	// ReferenceVelocity normalizes mean landmark velocity (units/s) in the
	// bradykinesia score.
	ReferenceVelocity = 0.5
)

// Cycle is one stride between two consecutive left-ankle height peaks.
// Start and End are frame indices into the analyzed sequence.
type Cycle struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Metrics bundles every gait measurement for one session.
type Metrics struct {
	Cycles            []Cycle
	StrideLength      float64
	HasStrideLength   bool
	Cadence           float64
	HasCadence        bool
	Symmetry          float64
	BradykinesiaScore float64
}

// Analyzer holds gait configuration. The zero value uses DefaultSampleRate.
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

// FrameDuration is the time between consecutive frames in seconds.
func (a Analyzer) FrameDuration() float64 {
	return 1.0 / a.sampleRate()
}

// Analyze computes all gait metrics. Cycles are detected once and shared.
func (a Analyzer) Analyze(seq pose.Sequence) Metrics {
	cycles := a.DetectCycles(seq)
	m := Metrics{
		Cycles:            cycles,
		Symmetry:          a.Symmetry(seq),
		BradykinesiaScore: a.BradykinesiaScore(seq),
	}
	m.StrideLength, m.HasStrideLength = a.strideLength(seq, cycles)
	m.Cadence, m.HasCadence = a.cadence(seq, cycles)
	return m
}

// DetectCycles segments the sequence into strides using peaks in the
// vertical position of the left ankle.
func (a Analyzer) DetectCycles(seq pose.Sequence) []Cycle {
	if len(seq) < MinCycleFrames {
		return nil
	}

	heights := make([]float64, 0, len(seq))
	frameIdx := make([]int, 0, len(seq))
	for i, f := range seq {
		p, ok := f.At(pose.LeftAnkle)
		if !ok {
			continue
		}
		heights = append(heights, p.Y)
		frameIdx = append(frameIdx, i)
	}
	if len(heights) < MinCycleFrames {
		return nil
	}

	peaks := FindPeaks(heights, PeakParams{
		MinDistance:  PeakMinDistance,
		MinHeight:    PeakMinHeight,
		HasMinHeight: true,
	})
	if len(peaks) < 2 {
		return nil
	}

	cycles := make([]Cycle, 0, len(peaks)-1)
	for i := 0; i < len(peaks)-1; i++ {
		cycles = append(cycles, Cycle{Start: frameIdx[peaks[i]], End: frameIdx[peaks[i+1]]})
	}
	return cycles
}

// StrideLength is the mean left-ankle displacement across cycles, in
// normalized units. ok is false with fewer than two cycles.
func (a Analyzer) StrideLength(seq pose.Sequence) (float64, bool) {
	return a.strideLength(seq, a.DetectCycles(seq))
}

func (a Analyzer) strideLength(seq pose.Sequence, cycles []Cycle) (float64, bool) {
	if len(cycles) < MinStrideCycles {
		return 0, false
	}

	strides := make([]float64, 0, len(cycles))
	for _, c := range cycles {
		if c.Start >= len(seq) || c.End >= len(seq) {
			continue
		}
		start, ok1 := seq[c.Start].At(pose.LeftAnkle)
		end, ok2 := seq[c.End].At(pose.LeftAnkle)
		if !ok1 || !ok2 {
			continue
		}
		strides = append(strides, pose.Distance3D(start, end))
	}
	if len(strides) == 0 {
		return 0, false
	}
	return stat.Mean(strides, nil), true
}

// Cadence is the cycle rate in cycles per minute. ok is false without any
// cycle or when the session is shorter than one second.
func (a Analyzer) Cadence(seq pose.Sequence) (float64, bool) {
	return a.cadence(seq, a.DetectCycles(seq))
}

func (a Analyzer) cadence(seq pose.Sequence, cycles []Cycle) (float64, bool) {
	if len(cycles) < 1 {
		return 0, false
	}
	duration := float64(len(seq)) * a.FrameDuration()
	if duration < MinCadenceSeconds {
		return 0, false
	}
	return float64(len(cycles)) / duration * 60, true
}

// Symmetry compares mean hip-to-ankle distance of both legs: 1 means
// identical, 0 means one leg has zero length.
func (a Analyzer) Symmetry(seq pose.Sequence) float64 {
	if len(seq) < MinSymmetryFrames {
		return NeutralScore
	}

	lefts := make([]float64, 0, len(seq))
	rights := make([]float64, 0, len(seq))
	for _, f := range seq {
		if !f.Has(pose.LeftHip, pose.LeftAnkle, pose.RightHip, pose.RightAnkle) {
			continue
		}
		lefts = append(lefts, pose.Distance3D(f[pose.LeftHip], f[pose.LeftAnkle]))
		rights = append(rights, pose.Distance3D(f[pose.RightHip], f[pose.RightAnkle]))
	}
	if len(lefts) == 0 {
		return NeutralScore
	}

	left := stat.Mean(lefts, nil)
	right := stat.Mean(rights, nil)
	longest := math.Max(left, right)
	if longest == 0 {
		return NeutralScore
	}
	return clamp01(1 - math.Abs(left-right)/longest)
}

// BradykinesiaScore maps mean whole-body landmark velocity to (0, 1]:
// a still subject scores 1, faster movement approaches 0.
func (a Analyzer) BradykinesiaScore(seq pose.Sequence) float64 {
	if len(seq) < MinBradykinesiaFrame {
		return NeutralScore
	}

	dt := a.FrameDuration()
	velocities := make([]float64, 0, len(seq)-1)
	var speeds []float64
	for i := 1; i < len(seq); i++ {
		prev, cur := seq[i-1], seq[i]
		points := min(len(prev), len(cur))
		if points == 0 {
			continue
		}
		speeds = speeds[:0]
		for j := 0; j < points; j++ {
			speeds = append(speeds, pose.Distance3D(prev[j], cur[j])/dt)
		}
		velocities = append(velocities, stat.Mean(speeds, nil))
	}
	if len(velocities) == 0 {
		return NeutralScore
	}

	mean := stat.Mean(velocities, nil)
	return clamp01(1 / (1 + mean/ReferenceVelocity))
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
