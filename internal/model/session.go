package model

import "time"

// DecisionRecord captures one committed decision for the history log.
type DecisionRecord struct {
	SubjectID    string          `json:"subject_id"`
	SubjectIndex int             `json:"subject_index"`
	Decision     Decision        `json:"decision"`
	Tier         ConsequenceTier `json:"tier"`
	Severity     int             `json:"severity"`
	Correct      bool            `json:"correct"`
	DecidedAt    time.Time       `json:"decided_at"`
}

// AlertRecord captures one supervisor warning for the append-only alert log.
type AlertRecord struct {
	SubjectID string      `json:"subject_id"`
	Type      WarningType `json:"type"`
	Count     int         `json:"count"`
	Message   string      `json:"message"`
	RaisedAt  time.Time   `json:"raised_at"`
}

// ShiftStats accumulates per-shift totals. Reset on shift rollover.
type ShiftStats struct {
	ShiftIndex int              `json:"shift_index"`
	Approved   int              `json:"approved"`
	Denied     int              `json:"denied"`
	Correct    int              `json:"correct"`
	Decisions  []DecisionRecord `json:"decisions,omitempty"`
}

// SessionSnapshot is the serializable session-level state handed to the
// persistence layer whenever it changes. The engine does not define the
// wire format, only this field set.
type SessionSnapshot struct {
	SubjectIndex  int                       `json:"subject_index"`
	DecisionTotal int                       `json:"decision_total"`
	CorrectTotal  int                       `json:"correct_total"`
	Accuracy      float64                   `json:"accuracy"`
	Infractions   int                       `json:"infractions"`
	ShiftStats    ShiftStats                `json:"shift_stats"`
	History       map[string]DecisionRecord `json:"history,omitempty"`
	Done          bool                      `json:"done"`
}
