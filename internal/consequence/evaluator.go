// Package consequence scores a committed decision against the required
// checks and the subject's policy-correct outcome.
package consequence

import (
	"fmt"
	"strings"

	"github.com/nightshift-games/checkpoint/internal/directive"
	"github.com/nightshift-games/checkpoint/internal/ledger"
	"github.com/nightshift-games/checkpoint/internal/model"
)

const (
	// MissedCheckWeight is the severity added per skipped required
	// check, identical across categories.
	MissedCheckWeight = 25

	// DirectiveViolationWeight is the severity added when the decision
	// contradicts the subject's policy-correct outcome.
	DirectiveViolationWeight = 45

	// EscalationFactor inflates severity per prior infraction, so
	// repeated history makes even clean decisions look worse.
	EscalationFactor = 5

	// CitationThreshold and SeriousThreshold map total severity to
	// tiers: (0, 40) warning, [40, 75) citation, >= 75 serious.
	CitationThreshold = 40
	SeriousThreshold  = 75
)

// Evaluate scores a decision. It is pure and deterministic: identical
// inputs always produce identical output. It never fails — absent
// optional subject fields fall back to the shift resolver, and a
// data-free subject yields zero severity.
func Evaluate(subject model.Subject, decision model.Decision, led *ledger.Ledger, shift model.Shift, infractions int) model.Consequence {
	required := subject.RequiredChecks
	if required == nil {
		required = directive.Resolve(shift)
	}

	var missed []model.MissedInfo
	for _, cat := range required {
		if led != nil && led.Satisfied(cat) {
			continue
		}
		missed = append(missed, missedItem(cat, subject))
	}

	raw := len(missed) * MissedCheckWeight

	violated := decision != subject.IntendedOutcome && subject.IntendedOutcome != ""
	var message string
	if violated {
		raw += DirectiveViolationWeight
		missed = append(missed, violationItem(subject))
		message = violationMessage(subject.IntendedOutcome)
	}

	total := raw + infractions*EscalationFactor

	tier := tierFor(total)
	if message == "" {
		message = stockMessage(tier)
		if len(missed) > 0 && missed[0].Reveals != "" && !strings.Contains(message, missed[0].Reveals) {
			message = message + " " + missed[0].Reveals
		}
	}

	count := infractions
	if raw > 0 {
		count++
	}

	return model.Consequence{
		Tier:            tier,
		Severity:        total,
		Message:         message,
		Missed:          missed,
		InfractionCount: count,
	}
}

func tierFor(severity int) model.ConsequenceTier {
	switch {
	case severity <= 0:
		return model.TierNone
	case severity < CitationThreshold:
		return model.TierWarning
	case severity < SeriousThreshold:
		return model.TierCitation
	default:
		return model.TierSeriousInfraction
	}
}

func stockMessage(tier model.ConsequenceTier) string {
	switch tier {
	case model.TierWarning:
		return "Advisory notice issued. Review your verification procedure."
	case model.TierCitation:
		return "Citation issued for incomplete verification."
	case model.TierSeriousInfraction:
		return "Serious infraction recorded. Your supervisor has been notified."
	default:
		return "Decision processed. No issues found."
	}
}

func violationMessage(intended model.Decision) string {
	if intended == model.DecisionDeny {
		return "Directive violation: this subject should have been DENIED."
	}
	return "Directive violation: this subject should have been APPROVED."
}

// missedItem builds the missed-information entry for a skipped check,
// including what the check would have revealed about this subject.
func missedItem(cat model.CheckCategory, subject model.Subject) model.MissedInfo {
	switch cat {
	case model.CheckWarrant:
		return model.MissedInfo{
			Category:     cat,
			Description:  "Warrant database check not performed",
			Reveals:      fmt.Sprintf("Warrant record: %s.", orNone(subject.Warrants)),
			WhyItMatters: "The directive requires warrant verification before approval.",
		}
	case model.CheckTransit:
		return model.MissedInfo{
			Category:     cat,
			Description:  "Transit log not pulled",
			Reveals:      transitSummary(subject),
			WhyItMatters: "Undisclosed travel routes are a primary directive trigger.",
		}
	case model.CheckIncident:
		return model.MissedInfo{
			Category:     cat,
			Description:  "Incident history not reviewed",
			Reveals:      fmt.Sprintf("%d prior incident(s) on record.", subject.IncidentCount),
			WhyItMatters: "Repeat offenders require denial under the standing directive.",
		}
	case model.CheckDatabase:
		return model.MissedInfo{
			Category:     cat,
			Description:  "No database check of any kind performed",
			Reveals:      fmt.Sprintf("Warrant record: %s. %d prior incident(s) on record.", orNone(subject.Warrants), subject.IncidentCount),
			WhyItMatters: "At least one database channel must be consulted before deciding.",
		}
	case model.CheckIdentity:
		return model.MissedInfo{
			Category:     cat,
			Description:  "Identity scan skipped",
			Reveals:      fmt.Sprintf("Identity on file for %s.", subject.Name),
			WhyItMatters: "Unverified identity invalidates every downstream check.",
		}
	case model.CheckHealth:
		return model.MissedInfo{
			Category:     cat,
			Description:  "Health scan skipped",
			Reveals:      "Biometric health profile for the subject.",
			WhyItMatters: "Health clearance is mandatory at this station.",
		}
	default:
		return model.MissedInfo{
			Category:    cat,
			Description: fmt.Sprintf("Required check %s not performed", cat),
		}
	}
}

func violationItem(subject model.Subject) model.MissedInfo {
	return model.MissedInfo{
		Category:     model.CategoryDirective,
		Description:  "Decision contradicts the active directive",
		Reveals:      fmt.Sprintf("The directive-correct outcome for this subject was %s.", subject.IntendedOutcome),
		WhyItMatters: "Directive compliance outranks operator judgment.",
	}
}

func orNone(s string) string {
	if s == "" {
		return "NONE"
	}
	return s
}

func transitSummary(subject model.Subject) string {
	if len(subject.TravelHistory) == 0 {
		return "No logged travel segments."
	}
	return fmt.Sprintf("Logged travel: %s.", strings.Join(subject.TravelHistory, ", "))
}
