package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightshift-games/checkpoint/internal/model"
)

func testShifts(n int) []model.Shift {
	shifts := make([]model.Shift, n)
	for i := range shifts {
		shifts[i] = model.Shift{RequiredChecks: []model.CheckCategory{model.CheckWarrant}}
	}
	return shifts
}

func testSubjects(n int) []model.Subject {
	subjects := make([]model.Subject, n)
	for i := range subjects {
		subjects[i] = model.Subject{
			ID:              "S-" + string(rune('A'+i)),
			Name:            "Subject " + string(rune('A'+i)),
			IntendedOutcome: model.DecisionApprove,
		}
	}
	return subjects
}

func TestNew_Validation(t *testing.T) {
	_, err := New(0, testShifts(1), testSubjects(1))
	assert.Error(t, err)

	_, err = New(2, nil, testSubjects(1))
	assert.Error(t, err)

	_, err = New(2, testShifts(1), nil)
	assert.Error(t, err)

	// 5 subjects do not fit 2 shifts of 2.
	_, err = New(2, testShifts(2), testSubjects(5))
	assert.Error(t, err)
}

func TestNew_DuplicateIDRejected(t *testing.T) {
	subjects := testSubjects(2)
	subjects[1].ID = subjects[0].ID
	_, err := New(2, testShifts(1), subjects)
	assert.Error(t, err)
}

func TestShiftFor_Bucketing(t *testing.T) {
	c, err := New(2, testShifts(3), testSubjects(6))
	require.NoError(t, err)

	for i, want := range []int{0, 0, 1, 1, 2, 2} {
		sh, ok := c.ShiftFor(i)
		require.True(t, ok)
		assert.Equal(t, want, sh.Index, "subject %d", i)
	}
}

func TestSubject_OutOfRange(t *testing.T) {
	c, err := New(2, testShifts(1), testSubjects(2))
	require.NoError(t, err)

	_, ok := c.Subject(-1)
	assert.False(t, ok)
	_, ok = c.Subject(2)
	assert.False(t, ok)
	_, ok = c.ShiftFor(99)
	assert.False(t, ok)
}

func TestParse_RoundTrip(t *testing.T) {
	raw := []byte(`
shift_size: 2
shifts:
  - policy:
      base: "Deny warrants."
    required_checks: [WARRANT, WARRANT]
subjects:
  - id: S-1
    name: "Ana"
    warrants: "NONE"
    intended_outcome: APPROVE
  - id: S-2
    name: "Bo"
    warrants: "ACTIVE"
    intended_outcome: DENY
`)
	c, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, 2, c.SubjectCount())
	s, ok := c.Subject(1)
	require.True(t, ok)
	assert.Equal(t, model.DecisionDeny, s.IntendedOutcome)

	sh, ok := c.ShiftFor(0)
	require.True(t, ok)
	assert.Equal(t, "Deny warrants.", sh.Policy.Base)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("shift_size: ["))
	assert.Error(t, err)
}

func TestNameNormalization(t *testing.T) {
	subjects := testSubjects(1)
	subjects[0].Name = "Zoe\u0308" // decomposed diaeresis
	c, err := New(1, testShifts(1), subjects)
	require.NoError(t, err)

	s, ok := c.Subject(0)
	require.True(t, ok)
	assert.Equal(t, "Zo\u00eb", s.Name)
}

func TestDefault_LoadsAndValidates(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 12, c.SubjectCount())
	assert.Equal(t, 3, c.ShiftCount())
	assert.Equal(t, 4, c.ShiftSize())

	// Every subject has a usable intended outcome.
	for i := 0; i < c.SubjectCount(); i++ {
		s, ok := c.Subject(i)
		require.True(t, ok)
		assert.Contains(t, []model.Decision{model.DecisionApprove, model.DecisionDeny}, s.IntendedOutcome, s.ID)
	}
}
