package baseline

import "fmt"

// RiskLevel is the categorical outcome of a session assessment.
type RiskLevel string

const (
	RiskBaselineLearning RiskLevel = "BASELINE_LEARNING"
	RiskLow              RiskLevel = "LOW"
	RiskMedium           RiskLevel = "MEDIUM"
	RiskHigh             RiskLevel = "HIGH"
)

// Risk thresholds on the deviation score.
const (
	LowThreshold    = 1.5 // scores below are LOW
	MediumThreshold = 3.0 // scores below are MEDIUM, at or above HIGH

	mediumConfidence    = 0.7
	highConfidenceScale = 5.0
)

// LearningMessage is reported while no baseline exists.
const LearningMessage = "Establishing patient baseline. More data needed."

// Classification is the risk assessment of one session.
type Classification struct {
	Level         RiskLevel `json:"classification"`
	Score         float64   `json:"score"`
	Confidence    float64   `json:"confidence"`
	Message       string    `json:"message"`
	FlagForReview bool      `json:"flag_for_review"`
}

// ClassifyRisk maps a deviation score onto a risk level. Without a baseline
// the level is BASELINE_LEARNING with zero confidence.
func ClassifyRisk(score float64, baselineExists bool) Classification {
	if !baselineExists {
		return Classification{
			Level:   RiskBaselineLearning,
			Score:   score,
			Message: LearningMessage,
		}
	}

	var level RiskLevel
	var confidence float64
	switch {
	case score < LowThreshold:
		level = RiskLow
		confidence = 1 - score/LowThreshold
	case score < MediumThreshold:
		level = RiskMedium
		confidence = mediumConfidence
	default:
		level = RiskHigh
		confidence = score / highConfidenceScale
	}

	c := Classification{
		Level:      level,
		Score:      score,
		Confidence: clamp01(confidence),
		Message:    fmt.Sprintf("Neurological status: %s risk detected.", level),
	}
	c.FlagForReview = ShouldFlagForReview(c)
	return c
}

// ShouldFlagForReview reports whether a clinician should review the session.
func ShouldFlagForReview(c Classification) bool {
	return c.Level == RiskMedium || c.Level == RiskHigh
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
