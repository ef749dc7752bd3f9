package model

// ConsequenceTier grades the outcome of scoring a decision.
// Ordering: NONE < WARNING < CITATION < SERIOUS_INFRACTION.
type ConsequenceTier string

const (
	TierNone              ConsequenceTier = "NONE"
	TierWarning           ConsequenceTier = "WARNING"
	TierCitation          ConsequenceTier = "CITATION"
	TierSeriousInfraction ConsequenceTier = "SERIOUS_INFRACTION"
)

// Rank returns the tier's position in the severity ordering.
func (t ConsequenceTier) Rank() int {
	switch t {
	case TierWarning:
		return 1
	case TierCitation:
		return 2
	case TierSeriousInfraction:
		return 3
	default:
		return 0
	}
}

// MissedInfo describes one required check the operator skipped.
type MissedInfo struct {
	Category     CheckCategory `json:"category"`
	Description  string        `json:"description"`
	Reveals      string        `json:"reveals"`
	WhyItMatters string        `json:"why_it_matters"`
}

// Consequence is the graded outcome of a committed decision.
type Consequence struct {
	Tier            ConsequenceTier `json:"tier"`
	Severity        int             `json:"severity"`
	Message         string          `json:"message"`
	Missed          []MissedInfo    `json:"missed,omitempty"`
	InfractionCount int             `json:"infraction_count"`
}

// WarningType identifies a supervisor-warning pattern.
type WarningType string

const (
	WarnNoVerification   WarningType = "no_verification"
	WarnNoWarrantCheck   WarningType = "no_warrant_check"
	WarnNoHealthScan     WarningType = "no_health_scan"
	WarnEquipmentFailure WarningType = "equipment_failure"
)

// SupervisorWarning is raised when a risky approval pattern repeats
// within a shift.
type SupervisorWarning struct {
	Type    WarningType `json:"type"`
	Count   int         `json:"count"`
	Message string      `json:"message"`
}
