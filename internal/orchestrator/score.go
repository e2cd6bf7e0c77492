package orchestrator

import (
	"math"

	"solana-launch-gate/internal/domain"
)

// Score weights.
const (
	riskWeight       = 40.0 // points at risk score 0
	riskSlope        = 0.4  // points lost per risk point
	liquidityCap     = 30.0
	liquiditySlope   = 0.3 // points per SOL
	authorityPoints  = 15.0
	burnHighPoints   = 10.0 // LP burn > 90%
	burnMediumPoints = 5.0  // LP burn > 50%
	fastPathPoints   = 5.0
)

// Priority thresholds.
const (
	highScore         = 80
	highLiquiditySOL  = 50.0
	mediumScore       = 70
	fastHighThreshold = 70
)

// Score computes the final score for an asset that passed the risk gate.
// The result is rounded and clamped to [0, 100].
func Score(report domain.SecurityReport, liquiditySOL float64, fastPath bool, socialBonus float64) int {
	s := math.Max(0, riskWeight-riskSlope*float64(report.RiskScore))
	s += math.Min(liquidityCap, liquiditySlope*math.Max(0, liquiditySOL))
	if report.Details.AuthoritiesRevoked() {
		s += authorityPoints
	}
	switch burn := report.Details.LPBurnPct; {
	case burn > 90:
		s += burnHighPoints
	case burn > 50:
		s += burnMediumPoints
	}
	if fastPath {
		s += fastPathPoints
	}
	s += socialBonus

	score := int(math.Round(s))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Priority classifies a scored asset.
func Priority(score int, liquiditySOL float64, fastPath bool) domain.Priority {
	switch {
	case fastPath && score >= fastHighThreshold,
		score >= highScore,
		liquiditySOL >= highLiquiditySOL && score >= mediumScore:
		return domain.PriorityHigh
	case score >= mediumScore:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

// Admit reports whether a scored asset clears the admission bar. Fast-path
// assets use the lower FastAcceptScore.
func (c Config) Admit(score int, fastPath bool) bool {
	if score >= c.AcceptScore {
		return true
	}
	return fastPath && score >= c.FastAcceptScore
}

// admissionBar is the lowest admitted score on the given path.
func (c Config) admissionBar(fastPath bool) int {
	if fastPath {
		return min(c.AcceptScore, c.FastAcceptScore)
	}
	return c.AcceptScore
}
