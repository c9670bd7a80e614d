package baseline

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/motion.report/internal/timeutil"
)

const (
	DefaultRequiredSessions   = 7
	DefaultDeviationThreshold = 2.5

	// LearningRate is the EMA weight given to a new session by UpdateBaseline.
	LearningRate = 0.1
)

// Stats summarizes one metric across the sessions that had a value for it.
// Count is zero when no session did, in which case Mean and Std are 0.
type Stats struct {
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Count int     `json:"count"`
}

// HasValue reports whether any session contributed to the statistics.
func (s Stats) HasValue() bool { return s.Count > 0 }

// Baseline is the statistical reference of one patient.
type Baseline struct {
	PatientID       string    `json:"patient_id,omitempty"`
	StrideLength    Stats     `json:"stride_length"`
	Cadence         Stats     `json:"cadence"`
	GaitSymmetry    Stats     `json:"gait_symmetry"`
	Bradykinesia    Stats     `json:"bradykinesia"`
	TremorFrequency Stats     `json:"tremor_frequency"`
	TremorAmplitude Stats     `json:"tremor_amplitude"`
	SessionCount    int       `json:"session_count"`
	IsCalibrated    bool      `json:"is_calibrated"`
	LastUpdated     time.Time `json:"last_updated"`
}

// Manager creates, scores against and updates baselines.
type Manager struct {
	RequiredSessions int
	// DeviationThreshold is reported alongside baselines but does not move
	// the risk thresholds.
	DeviationThreshold float64
	Clock              timeutil.Clock
}

// NewManager returns a Manager. Non-positive arguments select the defaults
// and a nil clock selects the wall clock.
func NewManager(requiredSessions int, deviationThreshold float64, clock timeutil.Clock) *Manager {
	if requiredSessions <= 0 {
		requiredSessions = DefaultRequiredSessions
	}
	if deviationThreshold <= 0 {
		deviationThreshold = DefaultDeviationThreshold
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Manager{
		RequiredSessions:   requiredSessions,
		DeviationThreshold: deviationThreshold,
		Clock:              clock,
	}
}

func (m *Manager) requiredSessions() int {
	if m.RequiredSessions <= 0 {
		return DefaultRequiredSessions
	}
	return m.RequiredSessions
}

func (m *Manager) now() time.Time {
	if m.Clock == nil {
		return timeutil.RealClock{}.Now()
	}
	return m.Clock.Now()
}

// CreateBaseline builds a calibrated baseline from the first RequiredSessions
// entries of sessions, in the order given. ok is false when there are fewer
// entries than that.
func (m *Manager) CreateBaseline(sessions []Features) (*Baseline, bool) {
	n := m.requiredSessions()
	if len(sessions) < n {
		return nil, false
	}
	window := sessions[:n]

	var stride, cadence, symmetry, brady, tremorFreq, tremorAmp []float64
	for _, s := range window {
		stride = appendOptional(stride, s.StrideLength)
		cadence = appendOptional(cadence, s.Cadence)
		symmetry = append(symmetry, s.GaitSymmetry)
		tremorFreq = appendOptional(tremorFreq, s.TremorFrequency)
		tremorAmp = appendOptional(tremorAmp, s.TremorAmplitude)
		brady = append(brady, s.BradykinesiaScore)
	}

	return &Baseline{
		StrideLength:    summarize(stride),
		Cadence:         summarize(cadence),
		GaitSymmetry:    summarize(symmetry),
		Bradykinesia:    summarize(brady),
		TremorFrequency: summarize(tremorFreq),
		TremorAmplitude: summarize(tremorAmp),
		SessionCount:    n,
		IsCalibrated:    true,
		LastUpdated:     m.now(),
	}, true
}

// UpdateBaseline folds one session into b with an exponential moving average
// and returns the updated copy. Only the symmetry and bradykinesia means, and
// the stride mean when both sides have one, move; standard deviations and the
// other metrics are left as they are. An uncalibrated or nil baseline is
// returned unchanged.
func (m *Manager) UpdateBaseline(b *Baseline, f Features) *Baseline {
	if b == nil || !b.IsCalibrated {
		return b
	}
	next := *b
	next.GaitSymmetry.Mean = ema(b.GaitSymmetry.Mean, f.GaitSymmetry)
	next.Bradykinesia.Mean = ema(b.Bradykinesia.Mean, f.BradykinesiaScore)
	if f.StrideLength != nil && b.StrideLength.HasValue() {
		next.StrideLength.Mean = ema(b.StrideLength.Mean, *f.StrideLength)
	}
	next.LastUpdated = m.now()
	return &next
}

func ema(old, sample float64) float64 {
	return (1-LearningRate)*old + LearningRate*sample
}

func appendOptional(dst []float64, v *float64) []float64 {
	if v == nil || math.IsNaN(*v) {
		return dst
	}
	return append(dst, *v)
}

// summarize returns the mean and population standard deviation of xs. The
// deviation is 0 with fewer than two samples.
func summarize(xs []float64) Stats {
	if len(xs) == 0 {
		return Stats{}
	}
	mean, variance := stat.PopMeanVariance(xs, nil)
	s := Stats{Mean: mean, Count: len(xs)}
	if len(xs) > 1 {
		s.Std = math.Sqrt(variance)
	}
	return s
}
