package security

import "github.com/r3e/taskgraph/pkg/graph"

// Assessment is the outcome of a risk-scoring pass over a request.
type Assessment struct {
	Score            float64         `json:"score"`
	Level            graph.RiskLevel `json:"level"`
	RequiresApproval bool            `json:"requires_approval"`
}

// RiskInputs carries the scope set and historical threat score that feed
// AssessRisk (spec.md §4.4).
type RiskInputs struct {
	RequestedScopes []string
	ThreatScore     float64
	Authenticated   bool
	MFAVerified     bool
}

// AssessRisk computes the additive risk score and maps it to a level.
func AssessRisk(in RiskInputs) Assessment {
	var score float64
	for _, scope := range in.RequestedScopes {
		switch scope {
		case "ADMIN":
			score += 0.3
		case "DELETE":
			score += 0.2
		case "EXECUTE":
			score += 0.15
		}
	}
	score += in.ThreatScore * 0.3
	if !in.Authenticated {
		score += 0.2
	} else if !in.MFAVerified {
		score += 0.1
	}

	var level graph.RiskLevel
	switch {
	case score >= 0.8:
		level = graph.RiskCritical
	case score >= 0.6:
		level = graph.RiskHigh
	case score >= 0.3:
		level = graph.RiskMedium
	default:
		level = graph.RiskLow
	}

	return Assessment{
		Score:            score,
		Level:            level,
		RequiresApproval: level == graph.RiskHigh || level == graph.RiskCritical,
	}
}
