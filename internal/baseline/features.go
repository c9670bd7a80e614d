// Package baseline aggregates per-session motion features into a per-patient
// statistical baseline, scores how far a new session deviates from it and
// maps that score onto a risk level.
//
// Nothing in this package locks: callers must serialize create and update
// calls for the same patient.
package baseline

// Features is the feature vector of one session. Optional metrics are nil
// when the analyzers had too little data; nil means unavailable, not zero.
type Features struct {
	StrideLength          *float64 `json:"stride_length"`
	Cadence               *float64 `json:"cadence"`
	GaitSymmetry          float64  `json:"gait_symmetry"`
	TremorFrequency       *float64 `json:"tremor_frequency"`
	TremorAmplitude       *float64 `json:"tremor_amplitude"`
	BradykinesiaScore     float64  `json:"bradykinesia_score"`
	DeviationFromBaseline *float64 `json:"deviation_from_baseline,omitempty"`
}

// Optional converts an analyzer (value, ok) pair into an optional metric.
func Optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

// WithDeviation returns a copy of f carrying the deviation score.
func (f Features) WithDeviation(score float64) Features {
	f.DeviationFromBaseline = &score
	return f
}
