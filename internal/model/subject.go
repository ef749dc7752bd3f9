package model

// Decision is the operator's verdict on a subject.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionDeny    Decision = "DENY"
)

// CheckCategory identifies a class of gatherable evidence.
type CheckCategory string

const (
	CheckIdentity CheckCategory = "IDENTITY"
	CheckHealth   CheckCategory = "HEALTH"
	CheckWarrant  CheckCategory = "WARRANT"
	CheckTransit  CheckCategory = "TRANSIT"
	CheckIncident CheckCategory = "INCIDENT"

	// CheckDatabase is an umbrella requirement satisfied by any of
	// warrant, transit, or incident being gathered.
	CheckDatabase CheckCategory = "DATABASE"

	// CategoryDirective marks the missed-information item produced by a
	// directive violation. It is not a gatherable check.
	CategoryDirective CheckCategory = "DIRECTIVE"
)

// TapeCategories lists the timed, credit-consuming query categories.
var TapeCategories = []CheckCategory{CheckWarrant, CheckTransit, CheckIncident}

// ScanCategories lists the instantaneous scan categories.
var ScanCategories = []CheckCategory{CheckIdentity, CheckHealth}

// IsTape reports whether the category is a timed tape query.
func (c CheckCategory) IsTape() bool {
	return c == CheckWarrant || c == CheckTransit || c == CheckIncident
}

// EquipmentFailure identifies a booth instrument that is down for a subject.
type EquipmentFailure string

const (
	FailureBPMMonitor      EquipmentFailure = "BPM_MONITOR"
	FailureIdentityScanner EquipmentFailure = "IDENTITY_SCANNER"
	FailureHealthScanner   EquipmentFailure = "HEALTH_SCANNER"
	FailureTapeDeck        EquipmentFailure = "TAPE_DECK"
)

// Subject is one unit of work the operator evaluates. Ground-truth
// attributes are hidden from the operator until gathered; the
// policy-correct outcome is never shown.
type Subject struct {
	ID              string          `json:"id" yaml:"id"`
	Name            string          `json:"name" yaml:"name"`
	Warrants        string          `json:"warrants" yaml:"warrants"`
	IncidentCount   int             `json:"incident_count" yaml:"incident_count"`
	TravelHistory   []string        `json:"travel_history,omitempty" yaml:"travel_history,omitempty"`
	IntendedOutcome Decision        `json:"intended_outcome" yaml:"intended_outcome"`
	RequiredChecks  []CheckCategory `json:"required_checks,omitempty" yaml:"required_checks,omitempty"` // per-subject override of the shift resolver
	Notes           string          `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// RuleTag names a policy rule that maps to one or more required checks.
type RuleTag string

const (
	TagWarrantSweep      RuleTag = "warrant_sweep"
	TagTravelRestriction RuleTag = "travel_restriction"
	TagContrabandWatch   RuleTag = "contraband_watch"
	TagFullBackground    RuleTag = "full_background"
	TagDatabaseMandate   RuleTag = "database_mandate"
)

// Policy is the directive governing a shift: the base denial condition,
// stated exceptions shown to the operator, and hidden exceptions that
// only surface through consequences.
type Policy struct {
	Base             string   `json:"base" yaml:"base"`
	Exceptions       []string `json:"exceptions,omitempty" yaml:"exceptions,omitempty"`
	HiddenExceptions []string `json:"hidden_exceptions,omitempty" yaml:"hidden_exceptions,omitempty"`
}

// Shift is a contiguous batch of subjects governed by one policy.
type Shift struct {
	Index          int             `json:"index" yaml:"index"`
	Policy         Policy          `json:"policy" yaml:"policy"`
	RequiredChecks []CheckCategory `json:"required_checks,omitempty" yaml:"required_checks,omitempty"`
	RuleTags       []RuleTag       `json:"rule_tags,omitempty" yaml:"rule_tags,omitempty"`
	UnlockedChecks []CheckCategory `json:"unlocked_checks,omitempty" yaml:"unlocked_checks,omitempty"`
}
