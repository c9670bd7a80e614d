package baseline

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Standard deviations assumed when a baseline carries no samples for a metric.
const (
	DefaultSymmetryStd     = 0.05
	DefaultBradykinesiaStd = 0.1
	DefaultStrideStd       = 0.05
)

const (
	// MaxDeviationScore caps DeviationScore.
	MaxDeviationScore = 10.0
	// MinTremorBaseline is the smallest baseline tremor amplitude mean that
	// still supports a relative-change comparison.
	MinTremorBaseline = 0.001
)

// DeviationScore measures how far current lies from b on a 0-10 scale. It is
// the mean of per-metric deviations: z-scores for symmetry, bradykinesia and
// stride length, and the relative change of tremor amplitude. Metrics with a
// zero standard deviation, or missing on either side, are skipped. The score
// is 0 when b is nil, uncalibrated, or no metric could be compared.
func (m *Manager) DeviationScore(current Features, b *Baseline) float64 {
	if b == nil || !b.IsCalibrated {
		return 0
	}

	var deviations []float64
	zscore := func(value float64, s Stats, fallbackStd float64) {
		std := s.Std
		if !s.HasValue() {
			std = fallbackStd
		}
		if std > 0 {
			deviations = append(deviations, math.Abs(value-s.Mean)/std)
		}
	}

	zscore(current.GaitSymmetry, b.GaitSymmetry, DefaultSymmetryStd)
	zscore(current.BradykinesiaScore, b.Bradykinesia, DefaultBradykinesiaStd)

	if current.StrideLength != nil && b.StrideLength.HasValue() {
		zscore(*current.StrideLength, b.StrideLength, DefaultStrideStd)
	}

	if current.TremorAmplitude != nil && b.TremorAmplitude.HasValue() && b.TremorAmplitude.Mean > MinTremorBaseline {
		mean := b.TremorAmplitude.Mean
		deviations = append(deviations, math.Abs(*current.TremorAmplitude-mean)/mean)
	}

	if len(deviations) == 0 {
		return 0
	}
	return math.Min(MaxDeviationScore, stat.Mean(deviations, nil))
}
