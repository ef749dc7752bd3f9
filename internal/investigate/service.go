package investigate

import (
	"go.uber.org/zap"

	"github.com/nightshift-games/checkpoint/internal/ledger"
	"github.com/nightshift-games/checkpoint/internal/model"
)

const (
	// MemorySlotCapacity bounds how many query categories may be
	// in-flight simultaneously, scans and tapes competing for the
	// same pool.
	MemorySlotCapacity = 3

	// TapeCreditPool is the per-subject investigation resource budget.
	// One credit is spent per tape category the first time it starts.
	TapeCreditPool = 2

	// TickIntervalMs is the suggested scheduler interval. The service
	// accepts any delta.
	TickIntervalMs = 250
)

// tapeDurations fixes each tape's total play time in milliseconds.
var tapeDurations = map[model.CheckCategory]int64{
	model.CheckWarrant:  12000,
	model.CheckTransit:  15000,
	model.CheckIncident: 18000,
}

// TapeDuration returns the fixed total duration for a tape category.
func TapeDuration(cat model.CheckCategory) int64 {
	return tapeDurations[cat]
}

// QueryState is the lifecycle state of a tape query.
type QueryState string

const (
	StateIdle     QueryState = "IDLE"
	StatePlaying  QueryState = "PLAYING"
	StateBuffered QueryState = "BUFFERED"
	StateComplete QueryState = "COMPLETE"
)

// SnapshotFunc produces the display summary recorded when a category's
// query completes. The controller supplies one bound to the current
// subject's ground truth.
type SnapshotFunc func(model.CheckCategory) string

type tapeUnit struct {
	state     QueryState
	elapsedMs int64
}

// Service enforces the memory-slot and tape-credit budgets for one
// subject and advances tape queries on ticks. It mutates the subject's
// ledger as queries complete; the progression controller is the only
// other ledger writer.
type Service struct {
	led     *ledger.Ledger
	extract SnapshotFunc

	tapes      map[model.CheckCategory]*tapeUnit
	nowPlaying *model.CheckCategory
	scans      map[model.CheckCategory]bool
	abortArmed map[model.CheckCategory]bool

	credits int
	clockMs int64
}

// NewService creates a fresh per-subject service with full pools.
func NewService(led *ledger.Ledger, extract SnapshotFunc) *Service {
	if extract == nil {
		extract = func(model.CheckCategory) string { return "" }
	}
	tapes := make(map[model.CheckCategory]*tapeUnit, len(model.TapeCategories))
	for _, cat := range model.TapeCategories {
		tapes[cat] = &tapeUnit{state: StateIdle}
	}
	return &Service{
		led:        led,
		extract:    extract,
		tapes:      tapes,
		scans:      map[model.CheckCategory]bool{},
		abortArmed: map[model.CheckCategory]bool{},
		credits:    TapeCreditPool,
	}
}

// StartOutcome reports why a start request was accepted or rejected.
// Rejections are no-ops, not errors; callers inspect Reason.
type StartOutcome struct {
	Started     bool   `json:"started"`
	Resumed     bool   `json:"resumed"`
	CreditSpent bool   `json:"credit_spent"`
	Reason      string `json:"reason,omitempty"`
}

// StartQuery starts or resumes a query for the category. Starting an
// idle category requires a free memory slot (and, for tapes, a credit);
// re-selecting an in-flight category is an idempotent slot reuse.
func (s *Service) StartQuery(cat model.CheckCategory) StartOutcome {
	switch {
	case isScan(cat):
		return s.startScan(cat)
	case cat.IsTape():
		return s.startTape(cat)
	default:
		return StartOutcome{Reason: "not a concrete query category"}
	}
}

func isScan(cat model.CheckCategory) bool {
	for _, c := range model.ScanCategories {
		if c == cat {
			return true
		}
	}
	return false
}

func (s *Service) startScan(cat model.CheckCategory) StartOutcome {
	if s.led.Gathered(cat) {
		return StartOutcome{Reason: "already complete"}
	}
	if s.scans[cat] {
		delete(s.abortArmed, cat)
		return StartOutcome{Started: true, Resumed: true}
	}
	if s.SlotCount() >= MemorySlotCapacity {
		return StartOutcome{Reason: "memory pool full"}
	}
	s.scans[cat] = true
	s.led.ActiveServices[cat] = true
	return StartOutcome{Started: true}
}

func (s *Service) startTape(cat model.CheckCategory) StartOutcome {
	t := s.tapes[cat]
	switch t.state {
	case StateComplete:
		return StartOutcome{Reason: "already complete"}
	case StatePlaying:
		delete(s.abortArmed, cat)
		return StartOutcome{Started: true, Resumed: true}
	case StateBuffered:
		s.demotePlaying()
		t.state = StatePlaying
		s.nowPlaying = &cat
		delete(s.abortArmed, cat)
		return StartOutcome{Started: true, Resumed: true}
	}

	// Idle: consumes a slot and a credit.
	if s.SlotCount() >= MemorySlotCapacity {
		return StartOutcome{Reason: "memory pool full"}
	}
	if s.credits <= 0 {
		return StartOutcome{Reason: "no investigation credits"}
	}
	s.credits--
	s.demotePlaying()
	t.state = StatePlaying
	t.elapsedMs = 0
	s.nowPlaying = &cat
	s.led.ActiveServices[cat] = true
	zap.L().Debug("investigate: tape started",
		zap.String("category", string(cat)),
		zap.Int("credits_remaining", s.credits),
	)
	return StartOutcome{Started: true, CreditSpent: true}
}

// demotePlaying freezes the currently playing tape, if any.
func (s *Service) demotePlaying() {
	if s.nowPlaying == nil {
		return
	}
	if t := s.tapes[*s.nowPlaying]; t != nil && t.state == StatePlaying {
		t.state = StateBuffered
	}
	s.nowPlaying = nil
}

// Tick advances the session clock and the PLAYING tape's elapsed time
// by deltaMs. Buffered tapes stay frozen. A tape reaching its full
// duration transitions to COMPLETE, the only trigger that flips the
// ledger flag and records an extraction snapshot.
func (s *Service) Tick(deltaMs int64) {
	if deltaMs <= 0 {
		return
	}
	s.clockMs += deltaMs

	if s.nowPlaying != nil {
		cat := *s.nowPlaying
		t := s.tapes[cat]
		t.elapsedMs += deltaMs
		if t.elapsedMs >= tapeDurations[cat] {
			s.completeTape(cat)
		}
	}
}

func (s *Service) completeTape(cat model.CheckCategory) {
	t := s.tapes[cat]
	if t.state == StateComplete {
		return
	}
	t.state = StateComplete
	delete(s.led.ActiveServices, cat)
	delete(s.abortArmed, cat)
	if s.nowPlaying != nil && *s.nowPlaying == cat {
		s.nowPlaying = nil
	}
	s.markGathered(cat)
	zap.L().Debug("investigate: tape complete", zap.String("category", string(cat)))
}

// FinishScan completes an in-progress identity or health scan. The
// scan's timing lives in the presentation layer; this is the signal
// that it finished. Returns false if no such scan is in progress.
func (s *Service) FinishScan(cat model.CheckCategory) bool {
	if !s.scans[cat] {
		return false
	}
	delete(s.scans, cat)
	delete(s.led.ActiveServices, cat)
	delete(s.abortArmed, cat)
	s.markGathered(cat)
	return true
}

// markGathered sets the completion flag, timestamp, and extraction
// snapshot exactly once per category.
func (s *Service) markGathered(cat model.CheckCategory) {
	if s.led.Gathered(cat) {
		return
	}
	tr := true
	p := ledger.Patch{
		Timestamps: map[model.CheckCategory]int64{cat: s.clockMs},
		LastExtracted: map[model.CheckCategory]ledger.Extraction{
			cat: {Category: cat, Summary: s.extract(cat), CapturedMs: s.clockMs},
		},
	}
	switch cat {
	case model.CheckIdentity:
		p.IdentityScan = &tr
	case model.CheckHealth:
		p.HealthScan = &tr
	case model.CheckWarrant:
		p.WarrantCheck = &tr
	case model.CheckTransit:
		p.TransitLog = &tr
	case model.CheckIncident:
		p.IncidentHistory = &tr
	}
	*s.led = *ledger.Apply(s.led, p)
}

// AbortOutcome reports the result of an abort request.
type AbortOutcome struct {
	Aborted      bool   `json:"aborted"`
	ConfirmArmed bool   `json:"confirm_armed"`
	Reason       string `json:"reason,omitempty"`
}

// AbortQuery discards an in-flight query via two-step confirmation: the
// first request arms a confirm flag, the second discards progress and
// frees the slot. Spent credits are not refunded; no completion flag or
// snapshot is ever produced. Completed queries cannot be aborted.
func (s *Service) AbortQuery(cat model.CheckCategory) AbortOutcome {
	inFlight := false
	switch {
	case isScan(cat):
		inFlight = s.scans[cat]
	case cat.IsTape():
		st := s.tapes[cat].state
		if st == StateComplete {
			return AbortOutcome{Reason: "already complete"}
		}
		inFlight = st == StatePlaying || st == StateBuffered
	default:
		return AbortOutcome{Reason: "not a concrete query category"}
	}
	if !inFlight {
		return AbortOutcome{Reason: "not in flight"}
	}

	if !s.abortArmed[cat] {
		s.abortArmed[cat] = true
		return AbortOutcome{ConfirmArmed: true}
	}

	delete(s.abortArmed, cat)
	delete(s.led.ActiveServices, cat)
	if cat.IsTape() {
		t := s.tapes[cat]
		t.state = StateIdle
		t.elapsedMs = 0
		if s.nowPlaying != nil && *s.nowPlaying == cat {
			s.nowPlaying = nil
		}
	} else {
		delete(s.scans, cat)
	}
	zap.L().Debug("investigate: query aborted", zap.String("category", string(cat)))
	return AbortOutcome{Aborted: true}
}

// TapeState returns the lifecycle state of a tape category.
func (s *Service) TapeState(cat model.CheckCategory) QueryState {
	if t, ok := s.tapes[cat]; ok {
		return t.state
	}
	return StateIdle
}

// Elapsed returns a tape's frozen or running elapsed time.
func (s *Service) Elapsed(cat model.CheckCategory) int64 {
	if t, ok := s.tapes[cat]; ok {
		return t.elapsedMs
	}
	return 0
}

// NowPlaying returns the currently playing tape category, or nil.
func (s *Service) NowPlaying() *model.CheckCategory {
	if s.nowPlaying == nil {
		return nil
	}
	cat := *s.nowPlaying
	return &cat
}

// CreditsRemaining returns the unspent investigation resources.
func (s *Service) CreditsRemaining() int { return s.credits }

// ClockMs returns the accumulated session clock for this subject.
func (s *Service) ClockMs() int64 { return s.clockMs }

// SlotCount returns the number of occupied memory slots.
func (s *Service) SlotCount() int { return len(s.led.ActiveServices) }
