package session

import (
	"fmt"

	"github.com/banshee-data/motion.report/internal/baseline"
)

// Thresholds that trigger a metric-specific recommendation.
const (
	LowSymmetryThreshold     = 0.7
	BradykinesiaThreshold    = 0.6
	TremorAmplitudeThreshold = 0.3
)

const (
	RecommendSymmetry     = "Improve gait symmetry by consulting a physical therapist"
	RecommendBradykinesia = "Bradykinesia detected - consider medication review with your doctor"
	RecommendTremor       = "Tremor activity detected - may require assessment and adjustment of treatment"
	RecommendUrgent       = "Urgent: Consult with your healthcare provider immediately"
	RecommendFollowUp     = "Schedule follow-up consultation with your neurology team"
	RecommendContinue     = "Continue current treatment plan and regular monitoring"
)

// Recommendations lists the patient-facing advice for one session. The list
// is never empty.
func Recommendations(f baseline.Features, risk baseline.Classification) []string {
	var out []string
	if f.GaitSymmetry < LowSymmetryThreshold {
		out = append(out, RecommendSymmetry)
	}
	if f.BradykinesiaScore > BradykinesiaThreshold {
		out = append(out, RecommendBradykinesia)
	}
	if f.TremorAmplitude != nil && *f.TremorAmplitude > TremorAmplitudeThreshold {
		out = append(out, RecommendTremor)
	}
	switch risk.Level {
	case baseline.RiskHigh:
		out = append(out, RecommendUrgent)
	case baseline.RiskMedium:
		out = append(out, RecommendFollowUp)
	}
	if len(out) == 0 {
		out = append(out, RecommendContinue)
	}
	return out
}

// Summary is the one-line human-readable result of a session.
func Summary(durationSeconds float64, frameCount int, f baseline.Features, risk baseline.Classification) string {
	var amp float64
	if f.TremorAmplitude != nil {
		amp = *f.TremorAmplitude
	}
	return fmt.Sprintf(
		"Analysis Results: Video of %.1fs processed with %d frames. Gait Symmetry: %.2f%% | "+
			"Bradykinesia Score: %.2f/1.0 | Tremor Amplitude: %.3f | Overall Risk Level: %s",
		durationSeconds, frameCount, f.GaitSymmetry*100, f.BradykinesiaScore, amp, risk.Level,
	)
}
