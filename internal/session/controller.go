// Package session owns the per-run progression state machine: subject
// phases, shift rollover, cumulative scoring, and snapshot emission to
// the persistence layer. All mutable state lives here as values; the
// engine packages it calls are pure or scoped to one subject.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nightshift-games/checkpoint/internal/catalog"
	"github.com/nightshift-games/checkpoint/internal/consequence"
	"github.com/nightshift-games/checkpoint/internal/investigate"
	"github.com/nightshift-games/checkpoint/internal/ledger"
	"github.com/nightshift-games/checkpoint/internal/model"
	"github.com/nightshift-games/checkpoint/internal/pattern"
	"github.com/nightshift-games/checkpoint/internal/store"
)

// Phase is the operator-driven stage of the current subject encounter.
type Phase string

const (
	PhaseGreeting      Phase = "GREETING"
	PhaseCredentials   Phase = "CREDENTIALS"
	PhaseInvestigation Phase = "INVESTIGATION"
	PhaseDecided       Phase = "DECIDED"
)

// Options tunes controller behavior.
type Options struct {
	SessionID string
	// ResetInfractionsOnShift zeroes the cumulative infraction counter
	// at every shift rollover. Off by default: infractions follow the
	// operator across shifts.
	ResetInfractionsOnShift bool
}

// Controller drives one operator session over a catalog of subjects.
// It is the sole owner of the session's mutable state and the only
// writer besides the investigation service it creates per subject.
// Not safe for concurrent use; callers serialize access.
type Controller struct {
	cat  catalog.Catalog
	st   store.Store
	opts Options

	subjectIndex int
	phase        Phase
	done         bool

	led     *ledger.Ledger
	svc     *investigate.Service
	monitor *pattern.Monitor

	infractions   int
	decisionTotal int
	correctTotal  int
	shiftStats    model.ShiftStats
	history       map[string]model.DecisionRecord

	lastConsequence *model.Consequence
	lastWarning     *model.SupervisorWarning
}

// NewController builds a controller positioned at the first subject.
// The store may be nil for ephemeral sessions.
func NewController(cat catalog.Catalog, st store.Store, opts Options) (*Controller, error) {
	if cat == nil || cat.SubjectCount() == 0 {
		return nil, eris.New("session: empty catalog")
	}
	if opts.SessionID == "" {
		opts.SessionID = "default"
	}
	c := &Controller{
		cat:     cat,
		st:      st,
		opts:    opts,
		monitor: pattern.NewMonitor(),
		history: map[string]model.DecisionRecord{},
	}
	c.seedSubject()
	return c, nil
}

// seedSubject installs a fresh ledger and investigation service for the
// subject at the current index. Nothing carries over between subjects.
func (c *Controller) seedSubject() {
	subject, _ := c.cat.Subject(c.subjectIndex)
	failures := ledger.DetermineEquipmentFailures(subject.ID)
	c.led = ledger.New(failures)
	c.svc = investigate.NewService(c.led, extractFor(subject))
	c.phase = PhaseGreeting
	shift, _ := c.cat.ShiftFor(c.subjectIndex)
	c.shiftStats.ShiftIndex = shift.Index
}

// extractFor binds extraction snapshots to a subject's ground truth.
func extractFor(subject model.Subject) investigate.SnapshotFunc {
	return func(cat model.CheckCategory) string {
		switch cat {
		case model.CheckWarrant:
			if subject.Warrants == "" {
				return "Warrant record: NONE."
			}
			return fmt.Sprintf("Warrant record: %s.", subject.Warrants)
		case model.CheckTransit:
			if len(subject.TravelHistory) == 0 {
				return "No logged travel segments."
			}
			return fmt.Sprintf("Logged travel: %s.", strings.Join(subject.TravelHistory, ", "))
		case model.CheckIncident:
			return fmt.Sprintf("%d prior incident(s) on record.", subject.IncidentCount)
		case model.CheckIdentity:
			return fmt.Sprintf("Identity confirmed: %s.", subject.Name)
		case model.CheckHealth:
			return "Biometric profile within nominal range."
		default:
			return ""
		}
	}
}

// Proceed advances the pre-investigation phases. It is a no-op once the
// subject is in INVESTIGATION or later.
func (c *Controller) Proceed() Phase {
	switch c.phase {
	case PhaseGreeting:
		c.phase = PhaseCredentials
	case PhaseCredentials:
		c.phase = PhaseInvestigation
	}
	return c.phase
}

// StartQuery delegates to the investigation service during the
// investigation phase.
func (c *Controller) StartQuery(cat model.CheckCategory) investigate.StartOutcome {
	if c.phase != PhaseInvestigation {
		return investigate.StartOutcome{Reason: "not in investigation phase"}
	}
	return c.svc.StartQuery(cat)
}

// AbortQuery delegates to the investigation service.
func (c *Controller) AbortQuery(cat model.CheckCategory) investigate.AbortOutcome {
	if c.phase != PhaseInvestigation {
		return investigate.AbortOutcome{Reason: "not in investigation phase"}
	}
	return c.svc.AbortQuery(cat)
}

// Tick advances the current subject's tape queries.
func (c *Controller) Tick(deltaMs int64) {
	if c.phase == PhaseInvestigation {
		c.svc.Tick(deltaMs)
	}
}

// FinishScan signals completion of an in-progress scan.
func (c *Controller) FinishScan(cat model.CheckCategory) bool {
	if c.phase != PhaseInvestigation {
		return false
	}
	return c.svc.FinishScan(cat)
}

// RecordInterrogationAnswer records one question/response exchange.
// BPM readings are recorded as 0 when the monitor is down.
func (c *Controller) RecordInterrogationAnswer(questionID, response string, bpm int) bool {
	if c.phase != PhaseInvestigation || c.done {
		return false
	}
	if !c.led.BPMAvailable {
		bpm = 0
	}
	return c.led.RecordInterrogationAnswer(questionID, response, bpm)
}

// CommitDecision scores the operator's verdict, runs the pattern
// monitor, updates cumulative stats, and persists the decision record
// and refreshed snapshot. A subject can be decided exactly once.
func (c *Controller) CommitDecision(ctx context.Context, decision model.Decision) (model.Consequence, *model.SupervisorWarning, error) {
	if c.done {
		return model.Consequence{}, nil, eris.New("session: run already complete")
	}
	if c.phase == PhaseDecided {
		return model.Consequence{}, nil, eris.New("session: subject already decided")
	}

	subject, _ := c.cat.Subject(c.subjectIndex)
	shift, _ := c.cat.ShiftFor(c.subjectIndex)

	cons := consequence.Evaluate(subject, decision, c.led, shift, c.infractions)
	warning := c.monitor.Observe(decision, c.led)

	c.infractions = cons.InfractionCount
	c.lastConsequence = &cons
	c.lastWarning = warning
	c.phase = PhaseDecided

	correct := subject.IntendedOutcome == "" || decision == subject.IntendedOutcome
	rec := model.DecisionRecord{
		SubjectID:    subject.ID,
		SubjectIndex: c.subjectIndex,
		Decision:     decision,
		Tier:         cons.Tier,
		Severity:     cons.Severity,
		Correct:      correct,
		DecidedAt:    time.Now().UTC(),
	}

	c.decisionTotal++
	if correct {
		c.correctTotal++
		c.shiftStats.Correct++
	}
	if decision == model.DecisionApprove {
		c.shiftStats.Approved++
	} else {
		c.shiftStats.Denied++
	}
	c.shiftStats.Decisions = append(c.shiftStats.Decisions, rec)
	c.history[subject.ID] = rec

	zap.L().Info("session: decision committed",
		zap.String("subject", subject.ID),
		zap.String("decision", string(decision)),
		zap.String("tier", string(cons.Tier)),
		zap.Int("severity", cons.Severity),
	)

	if c.st != nil {
		if err := c.st.AppendDecision(ctx, c.opts.SessionID, rec); err != nil {
			return cons, warning, eris.Wrap(err, "session: append decision")
		}
		if warning != nil {
			alert := model.AlertRecord{
				SubjectID: subject.ID,
				Type:      warning.Type,
				Count:     warning.Count,
				Message:   warning.Message,
				RaisedAt:  rec.DecidedAt,
			}
			if err := c.st.AppendAlert(ctx, c.opts.SessionID, alert); err != nil {
				return cons, warning, eris.Wrap(err, "session: append alert")
			}
		}
		if err := c.st.SaveSnapshot(ctx, c.opts.SessionID, c.Snapshot()); err != nil {
			return cons, warning, eris.Wrap(err, "session: save snapshot")
		}
	}

	return cons, warning, nil
}

// Advance moves past a decided subject. The last subject of the last
// shift ends the run; crossing into a new shift resets the per-shift
// stats and the pattern monitor. The next subject always starts with a
// fresh ledger seeded only from its deterministic equipment failures.
func (c *Controller) Advance(ctx context.Context) error {
	if c.done {
		return eris.New("session: run already complete")
	}
	if c.phase != PhaseDecided {
		return eris.New("session: current subject not decided")
	}

	if c.subjectIndex == c.cat.SubjectCount()-1 {
		c.done = true
		zap.L().Info("session: run complete",
			zap.Int("decisions", c.decisionTotal),
			zap.Int("correct", c.correctTotal),
		)
		return c.persistSnapshot(ctx)
	}

	prevShift, _ := c.cat.ShiftFor(c.subjectIndex)
	c.subjectIndex++
	nextShift, _ := c.cat.ShiftFor(c.subjectIndex)

	if nextShift.Index != prevShift.Index {
		c.monitor.Reset()
		c.shiftStats = model.ShiftStats{ShiftIndex: nextShift.Index}
		if c.opts.ResetInfractionsOnShift {
			c.infractions = 0
		}
		zap.L().Info("session: shift rollover", zap.Int("shift", nextShift.Index))
	}

	c.seedSubject()
	return c.persistSnapshot(ctx)
}

func (c *Controller) persistSnapshot(ctx context.Context) error {
	if c.st == nil {
		return nil
	}
	return eris.Wrap(c.st.SaveSnapshot(ctx, c.opts.SessionID, c.Snapshot()), "session: save snapshot")
}

// Restore repositions the controller from the latest persisted
// snapshot, if any. The current subject restarts with a fresh ledger;
// in-flight investigation progress is not persisted by design.
func (c *Controller) Restore(ctx context.Context) error {
	if c.st == nil {
		return nil
	}
	snap, err := c.st.LatestSnapshot(ctx, c.opts.SessionID)
	if err != nil {
		return eris.Wrap(err, "session: load snapshot")
	}
	if snap == nil {
		return nil
	}
	if snap.SubjectIndex < 0 || snap.SubjectIndex >= c.cat.SubjectCount() {
		return eris.Errorf("session: snapshot index %d out of range", snap.SubjectIndex)
	}

	c.subjectIndex = snap.SubjectIndex
	c.decisionTotal = snap.DecisionTotal
	c.correctTotal = snap.CorrectTotal
	c.infractions = snap.Infractions
	c.done = snap.Done
	c.history = snap.History
	if c.history == nil {
		c.history = map[string]model.DecisionRecord{}
	}
	if !c.done {
		c.seedSubject()
	}
	c.shiftStats = snap.ShiftStats
	zap.L().Info("session: restored",
		zap.Int("subject_index", c.subjectIndex),
		zap.Bool("done", c.done),
	)
	return nil
}

// Snapshot returns the serializable session state.
func (c *Controller) Snapshot() model.SessionSnapshot {
	accuracy := 0.0
	if c.decisionTotal > 0 {
		accuracy = float64(c.correctTotal) / float64(c.decisionTotal)
	}
	history := make(map[string]model.DecisionRecord, len(c.history))
	for k, v := range c.history {
		history[k] = v
	}
	return model.SessionSnapshot{
		SubjectIndex:  c.subjectIndex,
		DecisionTotal: c.decisionTotal,
		CorrectTotal:  c.correctTotal,
		Accuracy:      accuracy,
		Infractions:   c.infractions,
		ShiftStats:    c.shiftStats,
		History:       history,
		Done:          c.done,
	}
}

// Phase returns the current subject's encounter phase.
func (c *Controller) Phase() Phase { return c.phase }

// Done reports whether the run has ended.
func (c *Controller) Done() bool { return c.done }

// SubjectIndex returns the current position in the subject sequence.
func (c *Controller) SubjectIndex() int { return c.subjectIndex }

// CurrentSubject returns the subject under evaluation.
func (c *Controller) CurrentSubject() (model.Subject, bool) {
	return c.cat.Subject(c.subjectIndex)
}

// CurrentShift returns the shift governing the current subject.
func (c *Controller) CurrentShift() (model.Shift, bool) {
	return c.cat.ShiftFor(c.subjectIndex)
}

// Ledger returns a defensive copy of the current subject's ledger.
func (c *Controller) Ledger() *ledger.Ledger { return c.led.Clone() }

// LastConsequence returns the most recent scored consequence, or nil.
func (c *Controller) LastConsequence() *model.Consequence { return c.lastConsequence }

// LastWarning returns the supervisor warning from the most recent
// decision, or nil if none fired.
func (c *Controller) LastWarning() *model.SupervisorWarning { return c.lastWarning }

// Infractions returns the cumulative infraction count.
func (c *Controller) Infractions() int { return c.infractions }

// CreditsRemaining exposes the current subject's unspent tape credits.
func (c *Controller) CreditsRemaining() int { return c.svc.CreditsRemaining() }

// SlotCount exposes the current subject's occupied memory slots.
func (c *Controller) SlotCount() int { return c.svc.SlotCount() }

// TapeState exposes a tape's lifecycle state for the current subject.
func (c *Controller) TapeState(cat model.CheckCategory) investigate.QueryState {
	return c.svc.TapeState(cat)
}

// NowPlaying exposes the currently playing tape, or nil.
func (c *Controller) NowPlaying() *model.CheckCategory { return c.svc.NowPlaying() }
