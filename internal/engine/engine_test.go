package engine_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secretsanta/internal/domain"
	"secretsanta/internal/engine"
)

func newEngine(seed int64, mode engine.RepairMode) engine.Engine {
	return engine.New(engine.Options{Rand: rand.New(rand.NewSource(seed)), Repair: mode})
}

func emails(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("p%02d@x", i)
	}
	return out
}

func requireValid(t *testing.T, names, result []string, prior map[string]string) {
	t.Helper()
	require.Len(t, result, len(names))
	require.ElementsMatch(t, names, result)
	for i := range names {
		require.NotEqual(t, names[i], result[i], "self assignment at %d", i)
		if last, ok := prior[names[i]]; ok {
			require.NotEqual(t, last, result[i], "prior repeat at %d", i)
		}
	}
	require.NoError(t, engine.Verify(names, result, prior))
}

func TestGenerateScenario(t *testing.T) {
	names := []string{"a@x", "b@x", "c@x", "d@x"}
	prior := map[string]string{"a@x": "b@x"}
	for _, mode := range []engine.RepairMode{engine.RepairSinglePass, engine.RepairFixedPoint} {
		e := newEngine(7, mode)
		for i := 0; i < 200; i++ {
			result, err := e.Generate(names, prior)
			require.NoError(t, err)
			requireValid(t, names, result, prior)
			assert.NotEqual(t, "b@x", result[0])
		}
	}
}

func TestGenerateEmptyPriorAlwaysSucceeds(t *testing.T) {
	e := newEngine(1, engine.RepairSinglePass)
	for n := 2; n <= 40; n++ {
		names := emails(n)
		for i := 0; i < 20; i++ {
			result, err := e.Generate(names, map[string]string{})
			require.NoError(t, err, "n=%d", n)
			requireValid(t, names, result, nil)
		}
	}
}

func TestGenerateTwoParticipantsSwap(t *testing.T) {
	e := newEngine(3, engine.RepairSinglePass)
	result, err := e.Generate([]string{"a@x", "b@x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b@x", "a@x"}, result)
}

func TestGenerateWithFullPriorRound(t *testing.T) {
	names := emails(12)
	prior := map[string]string{}
	for i, name := range names {
		prior[name] = names[(i+1)%len(names)]
	}
	for _, mode := range []engine.RepairMode{engine.RepairSinglePass, engine.RepairFixedPoint} {
		e := newEngine(11, mode)
		for i := 0; i < 50; i++ {
			result, err := e.Generate(names, prior)
			require.NoError(t, err)
			requireValid(t, names, result, prior)
		}
	}
}

func TestGenerateTooFewParticipantsDoesNotShuffle(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	e := engine.New(engine.Options{Rand: rng})
	for _, names := range [][]string{nil, {}, {"a@x"}} {
		_, err := e.Generate(names, nil)
		require.ErrorIs(t, err, engine.ErrTooFewParticipants)
	}
	untouched := rand.New(rand.NewSource(42))
	assert.Equal(t, untouched.Int63(), rng.Int63(), "generator must not advance")
}

func TestGenerateDuplicateNames(t *testing.T) {
	e := newEngine(1, engine.RepairSinglePass)
	_, err := e.Generate([]string{"a@x", "b@x", "a@x"}, nil)
	require.ErrorIs(t, err, engine.ErrDuplicateParticipant)
}

func TestGenerateExhaustion(t *testing.T) {
	cases := []struct {
		name  string
		names []string
		prior map[string]string
	}{
		{"three", []string{"a@x", "b@x", "c@x"}, map[string]string{"a@x": "b@x", "b@x": "a@x"}},
		{"two", []string{"a@x", "b@x"}, map[string]string{"a@x": "b@x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, mode := range []engine.RepairMode{engine.RepairSinglePass, engine.RepairFixedPoint} {
				e := newEngine(5, mode)
				result, err := e.Generate(tc.names, tc.prior)
				require.ErrorIs(t, err, engine.ErrNoValidAssignment)
				assert.Nil(t, result)
				assert.Contains(t, err.Error(), "after 100 attempts")
			}
		})
	}
}

func TestGenerateCustomAttemptBudget(t *testing.T) {
	e := engine.New(engine.Options{Rand: rand.New(rand.NewSource(9)), MaxAttempts: 7})
	participants := []domain.Participant{{Name: "A", Email: "a@x"}, {Name: "B", Email: "b@x"}}
	res, err := e.Assign(participants, []domain.PriorAssignment{{GiverEmail: "a@x", RecipientEmail: "b@x"}})
	require.ErrorIs(t, err, engine.ErrNoValidAssignment)
	assert.Equal(t, 7, res.Attempts)
}

func TestAssignJoinsByEmail(t *testing.T) {
	participants := []domain.Participant{
		{Name: "Ann", Email: "a@x"},
		{Name: "Bob", Email: "b@x"},
		{Name: "Cid", Email: "c@x"},
		{Name: "Dee", Email: "d@x"},
	}
	priors := []domain.PriorAssignment{
		{GiverEmail: "a@x", RecipientEmail: "b@x"},
		{GiverEmail: "c@x", RecipientEmail: ""},
	}
	e := newEngine(21, engine.RepairSinglePass)
	res, err := e.Assign(participants, priors)
	require.NoError(t, err)
	require.Len(t, res.Assignments, 4)
	assert.GreaterOrEqual(t, res.Attempts, 1)

	names := map[string]string{}
	for _, p := range participants {
		names[p.Email] = p.Name
	}
	var recipients []string
	for i, a := range res.Assignments {
		assert.Equal(t, participants[i].Email, a.GiverEmail)
		assert.Equal(t, names[a.GiverEmail], a.GiverName)
		assert.Equal(t, names[a.RecipientEmail], a.RecipientName)
		assert.NotEqual(t, a.GiverEmail, a.RecipientEmail)
		recipients = append(recipients, a.RecipientEmail)
	}
	assert.NotEqual(t, "b@x", res.Assignments[0].RecipientEmail)
	assert.ElementsMatch(t, []string{"a@x", "b@x", "c@x", "d@x"}, recipients)
}

func TestPriorMap(t *testing.T) {
	m := engine.PriorMap([]domain.PriorAssignment{
		{GiverEmail: "a@x", RecipientEmail: "b@x"},
		{GiverEmail: "", RecipientEmail: "c@x"},
		{GiverEmail: "d@x", RecipientEmail: ""},
		{GiverEmail: "a@x", RecipientEmail: "c@x"},
	})
	assert.Equal(t, map[string]string{"a@x": "c@x"}, m)
}

func TestParseRepairMode(t *testing.T) {
	m, err := engine.ParseRepairMode("")
	require.NoError(t, err)
	assert.Equal(t, engine.RepairSinglePass, m)
	m, err = engine.ParseRepairMode("Fixed-Point")
	require.NoError(t, err)
	assert.Equal(t, engine.RepairFixedPoint, m)
	_, err = engine.ParseRepairMode("loop")
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	names := []string{"a@x", "b@x", "c@x"}
	prior := map[string]string{"a@x": "b@x"}

	var verr *engine.ViolationError
	err := engine.Verify(names, []string{"a@x", "c@x", "b@x"}, prior)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, engine.ViolationSelf, verr.Kind)
	assert.Equal(t, 0, verr.Index)

	err = engine.Verify(names, []string{"b@x", "c@x", "a@x"}, prior)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, engine.ViolationPrior, verr.Kind)

	err = engine.Verify(names, []string{"c@x", "c@x", "a@x"}, prior)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, engine.ViolationNotPermutation, verr.Kind)

	err = engine.Verify(names, []string{"c@x", "a@x"}, prior)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, engine.ViolationNotPermutation, verr.Kind)

	assert.NoError(t, engine.Verify(names, []string{"c@x", "a@x", "b@x"}, prior))
}
