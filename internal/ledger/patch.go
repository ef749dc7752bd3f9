package ledger

import (
	"github.com/nightshift-games/checkpoint/internal/model"
)

// Patch is a partial ledger update with an explicit per-field merge
// strategy:
//
//   - completion flags: set-only (a true flag never reverts to false)
//   - Timestamps, LastExtracted: deep-merge by key; keys for other
//     categories already recorded are preserved
//   - ActiveServices: replaced wholesale when non-nil
//   - Interrogation: replaced when non-nil
type Patch struct {
	IdentityScan    *bool
	HealthScan      *bool
	WarrantCheck    *bool
	TransitLog      *bool
	IncidentHistory *bool

	ActiveServices map[model.CheckCategory]bool
	Timestamps     map[model.CheckCategory]int64
	LastExtracted  map[model.CheckCategory]Extraction
	Interrogation  *Interrogation
}

// Apply merges a patch into a copy of the ledger and returns the result.
// The input ledger is not modified.
func Apply(l *Ledger, p Patch) *Ledger {
	out := l.Clone()

	mergeFlag(&out.IdentityScan, p.IdentityScan)
	mergeFlag(&out.HealthScan, p.HealthScan)
	mergeFlag(&out.WarrantCheck, p.WarrantCheck)
	mergeFlag(&out.TransitLog, p.TransitLog)
	mergeFlag(&out.IncidentHistory, p.IncidentHistory)

	if p.ActiveServices != nil {
		out.ActiveServices = make(map[model.CheckCategory]bool, len(p.ActiveServices))
		for k, v := range p.ActiveServices {
			out.ActiveServices[k] = v
		}
	}
	for k, v := range p.Timestamps {
		out.Timestamps[k] = v
	}
	for k, v := range p.LastExtracted {
		out.LastExtracted[k] = v
	}
	if p.Interrogation != nil {
		out.Interrogation = *p.Interrogation
	}

	return out
}

// mergeFlag applies a set-only boolean update: once true, a completion
// flag never resets for the subject.
func mergeFlag(dst *bool, src *bool) {
	if src == nil {
		return
	}
	if *src {
		*dst = true
	}
}
