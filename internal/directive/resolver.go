// Package directive maps a shift's policy description to the concrete
// set of evidence checks it requires.
package directive

import (
	"github.com/nightshift-games/checkpoint/internal/model"
)

// tagChecks is the fixed rule-tag to required-checks table.
var tagChecks = map[model.RuleTag][]model.CheckCategory{
	model.TagWarrantSweep:      {model.CheckWarrant},
	model.TagTravelRestriction: {model.CheckTransit},
	model.TagContrabandWatch:   {model.CheckIncident},
	model.TagFullBackground:    {model.CheckWarrant, model.CheckIncident},
	model.TagDatabaseMandate:   {model.CheckDatabase},
}

// Resolve returns the deduplicated required-check set for a shift.
// Resolution order, first match wins: an explicit structured
// required-checks list is used verbatim; otherwise active rule tags are
// unioned through the fixed table; otherwise an unlocked database
// capability requires a generic DATABASE check; otherwise the set is
// empty. Unresolvable policies degrade to an empty set, never an error.
func Resolve(shift model.Shift) []model.CheckCategory {
	if shift.RequiredChecks != nil {
		return dedupe(shift.RequiredChecks)
	}

	if len(shift.RuleTags) > 0 {
		var union []model.CheckCategory
		for _, tag := range shift.RuleTags {
			union = append(union, tagChecks[tag]...)
		}
		return dedupe(union)
	}

	if hasDatabaseCapability(shift.UnlockedChecks) {
		return []model.CheckCategory{model.CheckDatabase}
	}

	return nil
}

// hasDatabaseCapability reports whether the coarse unlocked-checks set
// includes any database-backed category.
func hasDatabaseCapability(unlocked []model.CheckCategory) bool {
	for _, c := range unlocked {
		switch c {
		case model.CheckDatabase, model.CheckWarrant, model.CheckTransit, model.CheckIncident:
			return true
		}
	}
	return false
}

// dedupe preserves first-occurrence order.
func dedupe(in []model.CheckCategory) []model.CheckCategory {
	seen := make(map[model.CheckCategory]bool, len(in))
	out := make([]model.CheckCategory, 0, len(in))
	for _, c := range in {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
