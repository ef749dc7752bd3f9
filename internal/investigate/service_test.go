package investigate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nightshift-games/checkpoint/internal/ledger"
	"github.com/nightshift-games/checkpoint/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newService() (*Service, *ledger.Ledger) {
	led := ledger.New(nil)
	svc := NewService(led, func(cat model.CheckCategory) string {
		return "extract:" + string(cat)
	})
	return svc, led
}

func TestStartTape_ConsumesSlotAndCredit(t *testing.T) {
	svc, led := newService()

	out := svc.StartQuery(model.CheckWarrant)
	assert.True(t, out.Started)
	assert.True(t, out.CreditSpent)
	assert.Equal(t, StatePlaying, svc.TapeState(model.CheckWarrant))
	assert.Equal(t, TapeCreditPool-1, svc.CreditsRemaining())
	assert.True(t, led.ActiveServices[model.CheckWarrant])
}

func TestStartTape_SecondDemotesFirstToBuffered(t *testing.T) {
	svc, _ := newService()
	svc.StartQuery(model.CheckWarrant)
	svc.Tick(1000)

	out := svc.StartQuery(model.CheckTransit)
	assert.True(t, out.Started)
	assert.Equal(t, StateBuffered, svc.TapeState(model.CheckWarrant))
	assert.Equal(t, StatePlaying, svc.TapeState(model.CheckTransit))
	require.NotNil(t, svc.NowPlaying())
	assert.Equal(t, model.CheckTransit, *svc.NowPlaying())
}

func TestResume_ContinuesFromFrozenElapsed(t *testing.T) {
	svc, _ := newService()
	svc.StartQuery(model.CheckWarrant)
	svc.Tick(5000)
	svc.StartQuery(model.CheckTransit)
	svc.Tick(2000) // only transit advances

	assert.Equal(t, int64(5000), svc.Elapsed(model.CheckWarrant))
	assert.Equal(t, int64(2000), svc.Elapsed(model.CheckTransit))

	out := svc.StartQuery(model.CheckWarrant)
	assert.True(t, out.Resumed)
	assert.False(t, out.CreditSpent, "resume never re-spends a credit")
	svc.Tick(1000)
	assert.Equal(t, int64(6000), svc.Elapsed(model.CheckWarrant))
}

func TestTick_CompletionSetsLedgerOnce(t *testing.T) {
	svc, led := newService()
	svc.StartQuery(model.CheckWarrant)
	svc.Tick(TapeDuration(model.CheckWarrant))

	assert.Equal(t, StateComplete, svc.TapeState(model.CheckWarrant))
	assert.True(t, led.WarrantCheck)
	assert.False(t, led.ActiveServices[model.CheckWarrant], "slot freed on completion")
	assert.Equal(t, "extract:WARRANT", led.LastExtracted[model.CheckWarrant].Summary)

	ts := led.Timestamps[model.CheckWarrant]
	assert.Equal(t, TapeDuration(model.CheckWarrant), ts)

	// Re-arriving at a completed state does not re-fire anything.
	credits := svc.CreditsRemaining()
	svc.Tick(1000)
	assert.Equal(t, ts, led.Timestamps[model.CheckWarrant])
	assert.Equal(t, credits, svc.CreditsRemaining())
	assert.True(t, led.WarrantCheck)
}

func TestStart_CompletedTapeRejected(t *testing.T) {
	svc, _ := newService()
	svc.StartQuery(model.CheckWarrant)
	svc.Tick(TapeDuration(model.CheckWarrant))

	out := svc.StartQuery(model.CheckWarrant)
	assert.False(t, out.Started)
	assert.Equal(t, "already complete", out.Reason)
	assert.False(t, out.CreditSpent)
}

func TestSlotConservation_FullPoolRejected(t *testing.T) {
	svc, led := newService()
	svc.StartQuery(model.CheckWarrant)
	svc.StartQuery(model.CheckTransit)
	svc.StartQuery(model.CheckIdentity)
	require.Equal(t, MemorySlotCapacity, svc.SlotCount())

	out := svc.StartQuery(model.CheckHealth)
	assert.False(t, out.Started)
	assert.Equal(t, "memory pool full", out.Reason)
	assert.Equal(t, MemorySlotCapacity, svc.SlotCount())
	assert.LessOrEqual(t, len(led.ActiveServices), MemorySlotCapacity)
}

func TestSlotReuse_SameCategorySucceedsWhenFull(t *testing.T) {
	svc, _ := newService()
	svc.StartQuery(model.CheckWarrant)
	svc.StartQuery(model.CheckTransit)
	svc.StartQuery(model.CheckIdentity)

	// Re-selecting an in-flight category reuses its slot.
	out := svc.StartQuery(model.CheckWarrant)
	assert.True(t, out.Started)
	assert.True(t, out.Resumed)
	assert.Equal(t, MemorySlotCapacity, svc.SlotCount())
}

func TestCreditPool_Exhaustion(t *testing.T) {
	svc, _ := newService()
	svc.StartQuery(model.CheckWarrant)
	svc.StartQuery(model.CheckTransit)
	require.Zero(t, svc.CreditsRemaining())

	out := svc.StartQuery(model.CheckIncident)
	assert.False(t, out.Started)
	assert.Equal(t, "no investigation credits", out.Reason)
}

func TestAbort_TwoStepConfirmation(t *testing.T) {
	svc, led := newService()
	svc.StartQuery(model.CheckWarrant)
	svc.Tick(3000)

	first := svc.AbortQuery(model.CheckWarrant)
	assert.False(t, first.Aborted)
	assert.True(t, first.ConfirmArmed)
	assert.Equal(t, StatePlaying, svc.TapeState(model.CheckWarrant))

	second := svc.AbortQuery(model.CheckWarrant)
	assert.True(t, second.Aborted)
	assert.Equal(t, StateIdle, svc.TapeState(model.CheckWarrant))
	assert.Zero(t, svc.Elapsed(model.CheckWarrant), "progress discarded")
	assert.False(t, led.ActiveServices[model.CheckWarrant], "slot freed")
	assert.False(t, led.WarrantCheck, "abort never completes")
	assert.Equal(t, TapeCreditPool-1, svc.CreditsRemaining(), "credit not refunded")
}

func TestAbort_RestartAfterAbortSpendsAnotherCredit(t *testing.T) {
	svc, _ := newService()
	svc.StartQuery(model.CheckWarrant)
	svc.AbortQuery(model.CheckWarrant)
	svc.AbortQuery(model.CheckWarrant)

	out := svc.StartQuery(model.CheckWarrant)
	assert.True(t, out.Started)
	assert.True(t, out.CreditSpent)
	assert.Zero(t, svc.Elapsed(model.CheckWarrant), "restart begins from zero")
}

func TestAbort_CompletedRejected(t *testing.T) {
	svc, _ := newService()
	svc.StartQuery(model.CheckWarrant)
	svc.Tick(TapeDuration(model.CheckWarrant))

	out := svc.AbortQuery(model.CheckWarrant)
	assert.False(t, out.Aborted)
	assert.Equal(t, "already complete", out.Reason)
}

func TestAbort_IdleRejected(t *testing.T) {
	svc, _ := newService()
	out := svc.AbortQuery(model.CheckTransit)
	assert.False(t, out.Aborted)
	assert.Equal(t, "not in flight", out.Reason)
}

func TestAbort_RestartDisarmsConfirm(t *testing.T) {
	svc, _ := newService()
	svc.StartQuery(model.CheckWarrant)
	svc.AbortQuery(model.CheckWarrant) // arms

	// Re-selecting the tape signals intent to continue; confirm resets.
	svc.StartQuery(model.CheckWarrant)
	out := svc.AbortQuery(model.CheckWarrant)
	assert.False(t, out.Aborted)
	assert.True(t, out.ConfirmArmed)
}

func TestScan_OccupiesSlotUntilFinished(t *testing.T) {
	svc, led := newService()
	out := svc.StartQuery(model.CheckIdentity)
	assert.True(t, out.Started)
	assert.False(t, out.CreditSpent, "scans never consume tape credits")
	assert.True(t, led.ActiveServices[model.CheckIdentity])

	require.True(t, svc.FinishScan(model.CheckIdentity))
	assert.True(t, led.IdentityScan)
	assert.False(t, led.ActiveServices[model.CheckIdentity])

	// Finishing again is a no-op.
	assert.False(t, svc.FinishScan(model.CheckIdentity))
}

func TestScan_RestartCompletedRejected(t *testing.T) {
	svc, _ := newService()
	svc.StartQuery(model.CheckHealth)
	svc.FinishScan(model.CheckHealth)

	out := svc.StartQuery(model.CheckHealth)
	assert.False(t, out.Started)
	assert.Equal(t, "already complete", out.Reason)
}

func TestStartQuery_DatabaseUmbrellaRejected(t *testing.T) {
	svc, _ := newService()
	out := svc.StartQuery(model.CheckDatabase)
	assert.False(t, out.Started)
	assert.Equal(t, "not a concrete query category", out.Reason)
}

func TestTick_OnlyPlayingAdvances(t *testing.T) {
	svc, _ := newService()
	svc.StartQuery(model.CheckWarrant)
	svc.StartQuery(model.CheckTransit)

	svc.Tick(4000)
	assert.Equal(t, int64(0), svc.Elapsed(model.CheckWarrant), "buffered tape frozen")
	assert.Equal(t, int64(4000), svc.Elapsed(model.CheckTransit))
}

func TestTick_NonPositiveDeltaIgnored(t *testing.T) {
	svc, _ := newService()
	svc.StartQuery(model.CheckWarrant)
	svc.Tick(0)
	svc.Tick(-100)
	assert.Zero(t, svc.Elapsed(model.CheckWarrant))
	assert.Zero(t, svc.ClockMs())
}

func TestTick_BufferedStaysFrozenUntilResumed(t *testing.T) {
	svc, led := newService()
	svc.StartQuery(model.CheckWarrant)
	svc.Tick(TapeDuration(model.CheckWarrant) - 1)

	// Demote at one ms short of the duration. Ticks never advance a
	// buffered tape, so it cannot complete while frozen.
	svc.StartQuery(model.CheckTransit)
	svc.Tick(10000)
	assert.Equal(t, StateBuffered, svc.TapeState(model.CheckWarrant))
	assert.Equal(t, TapeDuration(model.CheckWarrant)-1, svc.Elapsed(model.CheckWarrant))
	assert.False(t, led.WarrantCheck)

	// Resume and cross the duration.
	svc.StartQuery(model.CheckWarrant)
	svc.Tick(1)
	assert.Equal(t, StateComplete, svc.TapeState(model.CheckWarrant))
	assert.True(t, led.WarrantCheck)
}

func TestCompletion_TimestampUsesSessionClock(t *testing.T) {
	svc, led := newService()
	svc.Tick(2000) // idle time before starting
	svc.StartQuery(model.CheckWarrant)
	svc.Tick(TapeDuration(model.CheckWarrant))

	assert.Equal(t, 2000+TapeDuration(model.CheckWarrant), led.Timestamps[model.CheckWarrant])
}
