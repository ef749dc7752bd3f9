package ledger

import (
	"hash/fnv"

	"github.com/nightshift-games/checkpoint/internal/model"
)

// equipmentCandidates pairs each instrument with the byte window of the
// subject hash that decides it. Separate windows keep the failure rolls
// independent of each other.
var equipmentCandidates = []struct {
	failure model.EquipmentFailure
	shift   uint
	modulo  uint64
}{
	{model.FailureBPMMonitor, 0, 6},
	{model.FailureIdentityScanner, 16, 9},
	{model.FailureHealthScanner, 32, 9},
	{model.FailureTapeDeck, 48, 11},
}

// DetermineEquipmentFailures derives the subject's equipment failures
// from a stable hash of the subject identifier. The same identifier
// always yields the same failures, in the same process and across
// processes. Never seeded from time or RNG.
func DetermineEquipmentFailures(subjectID string) []model.EquipmentFailure {
	h := fnv.New64a()
	h.Write([]byte(subjectID)) //nolint:errcheck
	sum := h.Sum64()

	var failures []model.EquipmentFailure
	for _, c := range equipmentCandidates {
		if (sum>>c.shift)%c.modulo == 0 {
			failures = append(failures, c.failure)
		}
	}
	return failures
}
