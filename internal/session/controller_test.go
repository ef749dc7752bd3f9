package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nightshift-games/checkpoint/internal/catalog"
	"github.com/nightshift-games/checkpoint/internal/investigate"
	"github.com/nightshift-games/checkpoint/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeStore records every persistence call in memory.
type fakeStore struct {
	snapshots []model.SessionSnapshot
	decisions []model.DecisionRecord
	alerts    []model.AlertRecord
}

func (f *fakeStore) SaveSnapshot(_ context.Context, _ string, snap model.SessionSnapshot) error {
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func (f *fakeStore) LatestSnapshot(_ context.Context, _ string) (*model.SessionSnapshot, error) {
	if len(f.snapshots) == 0 {
		return nil, nil
	}
	snap := f.snapshots[len(f.snapshots)-1]
	return &snap, nil
}

func (f *fakeStore) AppendDecision(_ context.Context, _ string, rec model.DecisionRecord) error {
	f.decisions = append(f.decisions, rec)
	return nil
}

func (f *fakeStore) ListDecisions(_ context.Context, _ string, _ int) ([]model.DecisionRecord, error) {
	return f.decisions, nil
}

func (f *fakeStore) AppendAlert(_ context.Context, _ string, rec model.AlertRecord) error {
	f.alerts = append(f.alerts, rec)
	return nil
}

func (f *fakeStore) ListAlerts(_ context.Context, _ string, _ int) ([]model.AlertRecord, error) {
	return f.alerts, nil
}

func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }

// Subject IDs chosen so the identifier hash yields no equipment
// failures, keeping the pattern monitor's output predictable.
// T-002 is the exception: its hash downs exactly the BPM monitor.
func testCatalog(t *testing.T) *catalog.Static {
	t.Helper()
	c, err := catalog.New(2,
		[]model.Shift{
			{RequiredChecks: []model.CheckCategory{}},
			{RequiredChecks: []model.CheckCategory{model.CheckWarrant}},
		},
		[]model.Subject{
			{ID: "T-001", Name: "One", IntendedOutcome: model.DecisionApprove},
			{ID: "T-003", Name: "Three", IntendedOutcome: model.DecisionApprove},
			{ID: "T-007", Name: "Seven", Warrants: "ACTIVE", IntendedOutcome: model.DecisionApprove},
			{ID: "T-012", Name: "Twelve", IntendedOutcome: model.DecisionDeny},
		},
	)
	require.NoError(t, err)
	return c
}

func toInvestigation(t *testing.T, c *Controller) {
	t.Helper()
	require.Equal(t, PhaseCredentials, c.Proceed())
	require.Equal(t, PhaseInvestigation, c.Proceed())
}

func TestPhaseProgression(t *testing.T) {
	c, err := NewController(testCatalog(t), nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, PhaseGreeting, c.Phase())
	out := c.StartQuery(model.CheckIdentity)
	assert.False(t, out.Started)
	assert.Equal(t, "not in investigation phase", out.Reason)

	toInvestigation(t, c)
	assert.Equal(t, PhaseInvestigation, c.Phase())
	// Proceed past INVESTIGATION is a no-op.
	assert.Equal(t, PhaseInvestigation, c.Proceed())
}

func TestCommitDecision_Clean(t *testing.T) {
	c, err := NewController(testCatalog(t), nil, Options{})
	require.NoError(t, err)
	toInvestigation(t, c)

	cons, warning, err := c.CommitDecision(context.Background(), model.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, model.TierNone, cons.Tier)
	assert.Equal(t, 0, cons.Severity)
	assert.Nil(t, warning) // counters at 1, below threshold
	assert.Equal(t, PhaseDecided, c.Phase())

	snap := c.Snapshot()
	assert.Equal(t, 1, snap.DecisionTotal)
	assert.Equal(t, 1, snap.CorrectTotal)
	assert.InDelta(t, 1.0, snap.Accuracy, 0.001)
	assert.True(t, snap.History["T-001"].Correct)
}

func TestCommitDecision_Twice(t *testing.T) {
	c, err := NewController(testCatalog(t), nil, Options{})
	require.NoError(t, err)
	toInvestigation(t, c)

	_, _, err = c.CommitDecision(context.Background(), model.DecisionApprove)
	require.NoError(t, err)
	_, _, err = c.CommitDecision(context.Background(), model.DecisionDeny)
	assert.Error(t, err)
}

func TestAdvance_RequiresDecision(t *testing.T) {
	c, err := NewController(testCatalog(t), nil, Options{})
	require.NoError(t, err)

	assert.Error(t, c.Advance(context.Background()))
}

func TestAdvance_FreshLedger(t *testing.T) {
	c, err := NewController(testCatalog(t), nil, Options{})
	require.NoError(t, err)
	toInvestigation(t, c)

	// Gather evidence and spend a credit before deciding.
	require.True(t, c.StartQuery(model.CheckIdentity).Started)
	require.True(t, c.FinishScan(model.CheckIdentity))
	require.True(t, c.StartQuery(model.CheckWarrant).Started)
	assert.Equal(t, investigate.TapeCreditPool-1, c.CreditsRemaining())

	_, _, err = c.CommitDecision(context.Background(), model.DecisionApprove)
	require.NoError(t, err)
	require.NoError(t, c.Advance(context.Background()))

	assert.Equal(t, 1, c.SubjectIndex())
	assert.Equal(t, PhaseGreeting, c.Phase())
	assert.False(t, c.Ledger().AnyGathered())
	assert.Equal(t, investigate.TapeCreditPool, c.CreditsRemaining())
	assert.Equal(t, 0, c.SlotCount())
}

func TestPatternWarning_SecondBareApproval(t *testing.T) {
	st := &fakeStore{}
	c, err := NewController(testCatalog(t), st, Options{SessionID: "s"})
	require.NoError(t, err)

	toInvestigation(t, c)
	_, warning, err := c.CommitDecision(context.Background(), model.DecisionApprove)
	require.NoError(t, err)
	assert.Nil(t, warning)
	require.NoError(t, c.Advance(context.Background()))

	toInvestigation(t, c)
	_, warning, err = c.CommitDecision(context.Background(), model.DecisionApprove)
	require.NoError(t, err)
	require.NotNil(t, warning)
	assert.Equal(t, model.WarnNoVerification, warning.Type)
	assert.Equal(t, 2, warning.Count)
	assert.Equal(t, warning, c.LastWarning())

	require.Len(t, st.alerts, 1)
	assert.Equal(t, "T-003", st.alerts[0].SubjectID)
	assert.Equal(t, model.WarnNoVerification, st.alerts[0].Type)
}

func TestShiftRollover_ResetsMonitorAndStats(t *testing.T) {
	c, err := NewController(testCatalog(t), nil, Options{})
	require.NoError(t, err)

	// Two bare approvals fill shift 0 and push counters to threshold.
	for i := 0; i < 2; i++ {
		toInvestigation(t, c)
		_, _, err := c.CommitDecision(context.Background(), model.DecisionApprove)
		require.NoError(t, err)
		require.NoError(t, c.Advance(context.Background()))
	}

	shift, ok := c.CurrentShift()
	require.True(t, ok)
	assert.Equal(t, 1, shift.Index)

	snap := c.Snapshot()
	assert.Equal(t, 1, snap.ShiftStats.ShiftIndex)
	assert.Zero(t, snap.ShiftStats.Approved)
	assert.Empty(t, snap.ShiftStats.Decisions)

	// First bare approval of the new shift: counters restarted, so no
	// warning fires even though shift 0 ended at threshold.
	toInvestigation(t, c)
	_, warning, err := c.CommitDecision(context.Background(), model.DecisionApprove)
	require.NoError(t, err)
	assert.Nil(t, warning)
}

func TestInfractions_PersistAcrossShiftByDefault(t *testing.T) {
	c, err := NewController(testCatalog(t), nil, Options{})
	require.NoError(t, err)

	// Directive violations on both shift-0 subjects.
	for i := 0; i < 2; i++ {
		toInvestigation(t, c)
		_, _, err := c.CommitDecision(context.Background(), model.DecisionDeny)
		require.NoError(t, err)
		require.NoError(t, c.Advance(context.Background()))
	}

	assert.Equal(t, 2, c.Infractions())
}

func TestInfractions_ResetOnShiftWhenConfigured(t *testing.T) {
	c, err := NewController(testCatalog(t), nil, Options{ResetInfractionsOnShift: true})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		toInvestigation(t, c)
		_, _, err := c.CommitDecision(context.Background(), model.DecisionDeny)
		require.NoError(t, err)
		require.NoError(t, c.Advance(context.Background()))
	}

	assert.Equal(t, 0, c.Infractions())
}

func TestEndOfRun(t *testing.T) {
	c, err := NewController(testCatalog(t), nil, Options{})
	require.NoError(t, err)

	decisions := []model.Decision{
		model.DecisionApprove, model.DecisionApprove,
		model.DecisionApprove, model.DecisionDeny,
	}
	for _, d := range decisions {
		toInvestigation(t, c)
		_, _, err := c.CommitDecision(context.Background(), d)
		require.NoError(t, err)
		require.NoError(t, c.Advance(context.Background()))
	}

	assert.True(t, c.Done())
	snap := c.Snapshot()
	assert.True(t, snap.Done)
	assert.Equal(t, 4, snap.DecisionTotal)

	_, _, err = c.CommitDecision(context.Background(), model.DecisionApprove)
	assert.Error(t, err)
	assert.Error(t, c.Advance(context.Background()))
}

func TestSnapshotPersisted(t *testing.T) {
	st := &fakeStore{}
	c, err := NewController(testCatalog(t), st, Options{SessionID: "s"})
	require.NoError(t, err)

	toInvestigation(t, c)
	_, _, err = c.CommitDecision(context.Background(), model.DecisionApprove)
	require.NoError(t, err)
	require.NoError(t, c.Advance(context.Background()))

	// One snapshot per state change: commit, then advance.
	assert.Len(t, st.snapshots, 2)
	assert.Len(t, st.decisions, 1)
	assert.Equal(t, 1, st.snapshots[1].SubjectIndex)
}

func TestRestore(t *testing.T) {
	st := &fakeStore{}
	st.snapshots = append(st.snapshots, model.SessionSnapshot{
		SubjectIndex:  2,
		DecisionTotal: 2,
		CorrectTotal:  1,
		Accuracy:      0.5,
		Infractions:   3,
		ShiftStats:    model.ShiftStats{ShiftIndex: 1},
		History: map[string]model.DecisionRecord{
			"T-001": {SubjectID: "T-001", Correct: true},
		},
	})

	c, err := NewController(testCatalog(t), st, Options{SessionID: "s"})
	require.NoError(t, err)
	require.NoError(t, c.Restore(context.Background()))

	assert.Equal(t, 2, c.SubjectIndex())
	assert.Equal(t, PhaseGreeting, c.Phase())
	assert.Equal(t, 3, c.Infractions())
	assert.False(t, c.Done())

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.DecisionTotal)
	assert.Equal(t, 1, snap.CorrectTotal)
	assert.Equal(t, 1, snap.ShiftStats.ShiftIndex)
	assert.True(t, snap.History["T-001"].Correct)

	// The restored subject starts from a clean ledger.
	assert.False(t, c.Ledger().AnyGathered())
}

func TestRestore_NoSnapshot(t *testing.T) {
	c, err := NewController(testCatalog(t), &fakeStore{}, Options{SessionID: "s"})
	require.NoError(t, err)

	require.NoError(t, c.Restore(context.Background()))
	assert.Equal(t, 0, c.SubjectIndex())
}

func TestInterrogationCap(t *testing.T) {
	c, err := NewController(testCatalog(t), nil, Options{})
	require.NoError(t, err)
	toInvestigation(t, c)

	for i := 0; i < 3; i++ {
		assert.True(t, c.RecordInterrogationAnswer("q", "a", 70+i))
	}
	assert.False(t, c.RecordInterrogationAnswer("q4", "a4", 90))
	assert.Equal(t, 3, c.Ledger().Interrogation.QuestionsAsked)
}

func TestInterrogation_BPMZeroWhenMonitorDown(t *testing.T) {
	// T-002's identifier hash downs the BPM monitor.
	cat, err := catalog.New(1,
		[]model.Shift{{RequiredChecks: []model.CheckCategory{}}},
		[]model.Subject{{ID: "T-002", Name: "Two", IntendedOutcome: model.DecisionApprove}},
	)
	require.NoError(t, err)

	c, err := NewController(cat, nil, Options{})
	require.NoError(t, err)
	toInvestigation(t, c)

	require.False(t, c.Ledger().BPMAvailable)
	require.True(t, c.RecordInterrogationAnswer("q1", "calm", 88))
	assert.Equal(t, []int{0}, c.Ledger().Interrogation.BPMReadings)
}
