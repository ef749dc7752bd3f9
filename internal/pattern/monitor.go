// Package pattern watches the stream of decisions within a shift and
// raises supervisor warnings when risky approval patterns repeat.
package pattern

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nightshift-games/checkpoint/internal/ledger"
	"github.com/nightshift-games/checkpoint/internal/model"
)

// WarnThreshold is the count at which a tracked condition starts firing.
const WarnThreshold = 2

// condition pairs a warning type with the ledger predicate that
// qualifies an approval for it. Order fixes warning precedence when
// several counters are over threshold at once.
var conditions = []struct {
	warn    model.WarningType
	holds   func(*ledger.Ledger) bool
	message string
}{
	{
		warn:    model.WarnNoVerification,
		holds:   func(l *ledger.Ledger) bool { return !l.AnyGathered() },
		message: "You are approving subjects without gathering any evidence at all.",
	},
	{
		warn:    model.WarnNoWarrantCheck,
		holds:   func(l *ledger.Ledger) bool { return !l.WarrantCheck },
		message: "You keep approving subjects without running the warrant check.",
	},
	{
		warn:    model.WarnNoHealthScan,
		holds:   func(l *ledger.Ledger) bool { return !l.HealthScan },
		message: "You keep approving subjects without a health scan.",
	},
}

// Monitor holds per-shift counters. It is reset exactly at shift
// rollover, never mid-shift.
type Monitor struct {
	counters       map[model.WarningType]int
	equipmentFired bool
}

// NewMonitor returns a monitor with all counters at zero.
func NewMonitor() *Monitor {
	return &Monitor{counters: map[model.WarningType]int{}}
}

// Observe inspects a committed decision. DENY decisions never increment
// any counter. Every approval advances each tracked counter whose
// condition holds; counters at threshold re-fire on every subsequent
// qualifying approval, without resetting. The equipment one-shot fires
// on the first approval with any instrument down and takes precedence
// over a threshold warning on that decision.
func (m *Monitor) Observe(decision model.Decision, led *ledger.Ledger) *model.SupervisorWarning {
	if decision != model.DecisionApprove || led == nil {
		return nil
	}

	var fired *model.SupervisorWarning
	for _, c := range conditions {
		if !c.holds(led) {
			continue
		}
		m.counters[c.warn]++
		if fired == nil && m.counters[c.warn] >= WarnThreshold {
			fired = &model.SupervisorWarning{
				Type:    c.warn,
				Count:   m.counters[c.warn],
				Message: fmt.Sprintf("%s (occurrence %d this shift)", c.message, m.counters[c.warn]),
			}
		}
	}

	if !m.equipmentFired && len(led.EquipmentFailures) > 0 {
		m.equipmentFired = true
		fired = &model.SupervisorWarning{
			Type:    model.WarnEquipmentFailure,
			Count:   1,
			Message: "You approved a subject while booth equipment was down. Flag failures before deciding.",
		}
	}
	if fired != nil {
		zap.L().Info("pattern: supervisor warning",
			zap.String("type", string(fired.Type)),
			zap.Int("count", fired.Count),
		)
	}
	return fired
}

// Count returns a counter's current value.
func (m *Monitor) Count(w model.WarningType) int { return m.counters[w] }

// Reset zeroes all counters and re-arms the equipment one-shot. Called
// only at shift boundaries.
func (m *Monitor) Reset() {
	m.counters = map[model.WarningType]int{}
	m.equipmentFired = false
}
