package ledger

import (
	"github.com/nightshift-games/checkpoint/internal/model"
)

// MaxInterrogationQuestions caps the interrogation sub-record.
const MaxInterrogationQuestions = 3

// Extraction is the display snapshot recorded when a query completes.
type Extraction struct {
	Category   model.CheckCategory `json:"category"`
	Summary    string              `json:"summary"`
	CapturedMs int64               `json:"captured_ms"`
}

// Interrogation tracks questions asked of the current subject.
type Interrogation struct {
	QuestionsAsked int      `json:"questions_asked"`
	QuestionIDs    []string `json:"question_ids,omitempty"`
	Responses      []string `json:"responses,omitempty"`
	BPMReadings    []int    `json:"bpm_readings,omitempty"`
}

// Ledger is the per-subject record of gathered evidence, in-flight
// queries, and extraction snapshots. It is a value object owned by the
// progression controller; the controller and the investigation service
// are its only mutators.
type Ledger struct {
	IdentityScan    bool `json:"identity_scan"`
	HealthScan      bool `json:"health_scan"`
	WarrantCheck    bool `json:"warrant_check"`
	TransitLog      bool `json:"transit_log"`
	IncidentHistory bool `json:"incident_history"`

	Interrogation Interrogation `json:"interrogation"`

	ActiveServices map[model.CheckCategory]bool     `json:"active_services,omitempty"`
	LastExtracted  map[model.CheckCategory]Extraction `json:"last_extracted,omitempty"`
	Timestamps     map[model.CheckCategory]int64      `json:"timestamps,omitempty"`

	EquipmentFailures []model.EquipmentFailure `json:"equipment_failures,omitempty"`
	BPMAvailable      bool                     `json:"bpm_available"`
}

// New creates an empty ledger seeded with the subject's equipment
// failures. All evidence categories start false.
func New(failures []model.EquipmentFailure) *Ledger {
	l := &Ledger{
		ActiveServices:    map[model.CheckCategory]bool{},
		LastExtracted:     map[model.CheckCategory]Extraction{},
		Timestamps:        map[model.CheckCategory]int64{},
		EquipmentFailures: failures,
		BPMAvailable:      true,
	}
	for _, f := range failures {
		if f == model.FailureBPMMonitor {
			l.BPMAvailable = false
		}
	}
	return l
}

// HasFailure reports whether the given instrument is down for this subject.
func (l *Ledger) HasFailure(f model.EquipmentFailure) bool {
	for _, ef := range l.EquipmentFailures {
		if ef == f {
			return true
		}
	}
	return false
}

// Gathered reports whether the concrete category's completion flag is set.
func (l *Ledger) Gathered(cat model.CheckCategory) bool {
	switch cat {
	case model.CheckIdentity:
		return l.IdentityScan
	case model.CheckHealth:
		return l.HealthScan
	case model.CheckWarrant:
		return l.WarrantCheck
	case model.CheckTransit:
		return l.TransitLog
	case model.CheckIncident:
		return l.IncidentHistory
	default:
		return false
	}
}

// Satisfied reports whether a required check is met. DATABASE is an
// umbrella satisfied by any of warrant/transit/incident.
func (l *Ledger) Satisfied(cat model.CheckCategory) bool {
	if cat == model.CheckDatabase {
		return l.WarrantCheck || l.TransitLog || l.IncidentHistory
	}
	return l.Gathered(cat)
}

// AnyGathered reports whether any evidence category at all has been gathered.
func (l *Ledger) AnyGathered() bool {
	return l.IdentityScan || l.HealthScan || l.WarrantCheck || l.TransitLog || l.IncidentHistory
}

// RecordInterrogationAnswer appends a response and BPM reading and
// increments the question counter. Returns false (no-op) once the
// counter has reached MaxInterrogationQuestions.
func (l *Ledger) RecordInterrogationAnswer(questionID, response string, bpm int) bool {
	if l.Interrogation.QuestionsAsked >= MaxInterrogationQuestions {
		return false
	}
	l.Interrogation.QuestionIDs = append(l.Interrogation.QuestionIDs, questionID)
	l.Interrogation.Responses = append(l.Interrogation.Responses, response)
	l.Interrogation.BPMReadings = append(l.Interrogation.BPMReadings, bpm)
	l.Interrogation.QuestionsAsked++
	return true
}

// Clone returns a deep copy safe to hand to readers.
func (l *Ledger) Clone() *Ledger {
	c := *l
	c.ActiveServices = make(map[model.CheckCategory]bool, len(l.ActiveServices))
	for k, v := range l.ActiveServices {
		c.ActiveServices[k] = v
	}
	c.LastExtracted = make(map[model.CheckCategory]Extraction, len(l.LastExtracted))
	for k, v := range l.LastExtracted {
		c.LastExtracted[k] = v
	}
	c.Timestamps = make(map[model.CheckCategory]int64, len(l.Timestamps))
	for k, v := range l.Timestamps {
		c.Timestamps[k] = v
	}
	c.EquipmentFailures = append([]model.EquipmentFailure(nil), l.EquipmentFailures...)
	c.Interrogation.QuestionIDs = append([]string(nil), l.Interrogation.QuestionIDs...)
	c.Interrogation.Responses = append([]string(nil), l.Interrogation.Responses...)
	c.Interrogation.BPMReadings = append([]int(nil), l.Interrogation.BPMReadings...)
	return &c
}
