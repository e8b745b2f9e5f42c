package monitor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexuscortex/internal/kernel"
)

func advance(t *testing.T, s *kernel.SharedState, n kernel.Tick) {
	t.Helper()
	for s.Tick < n {
		if res := s.Reduce(kernel.TickDelta(s.Tick.Next())); !res.Applied {
			t.Fatalf("tick rejected: %s", res.Reject)
		}
	}
}

// apply runs one monitor step and folds its deltas back into state, the way
// the reactor does.
func apply(t *testing.T, m *Monitor, ctx *kernel.StepContext, s *kernel.SharedState) kernel.SidecarResult {
	t.Helper()
	res := m.Step(ctx, s)
	for _, d := range res.Deltas {
		if r := s.Reduce(d); !r.Applied {
			t.Fatalf("monitor delta rejected: %s", r.Reject)
		}
	}
	return res
}

func TestUnexpectedInterruptionBoostsSensitivity(t *testing.T) {
	m := New()
	s := kernel.NewSharedState()
	advance(t, s, 1)
	s.Reduce(kernel.OutputProposedDelta(kernel.Output{ID: kernel.OutputId{Tick: 1}}))

	ctx := &kernel.StepContext{
		Tick:            s.Tick,
		Inputs:          []kernel.InputEvent{{Content: kernel.TextContent("wait")}},
		JustInterrupted: true,
	}
	apply(t, m, ctx, s)

	assert.Contains(t, m.LastObservations(), UnexpectedInterruption)
	assert.InDelta(t, 0.15, s.Meta.InterruptionSensitivity, 1e-6)
}

func TestUserCorrectionWithinWindow(t *testing.T) {
	m := New()
	s := kernel.NewSharedState()
	advance(t, s, 1)

	id := kernel.OutputId{Tick: 1}
	s.Reduce(kernel.OutputProposedDelta(kernel.Output{ID: id, Content: "the meeting is at three"}))
	s.Reduce(kernel.OutputCommittedDelta(id, false))
	apply(t, m, &kernel.StepContext{Tick: s.Tick}, s)

	// User text 3 ticks later: inside the correction window.
	advance(t, s, 4)
	ctx := &kernel.StepContext{
		Tick:            s.Tick,
		Inputs:          []kernel.InputEvent{{Content: kernel.TextContent("no, four")}},
		JustInterrupted: true,
	}
	apply(t, m, ctx, s)

	assert.Contains(t, m.LastObservations(), UserCorrection)
	assert.InDelta(t, 0.20, s.Meta.ConfidencePenalty, 1e-6)
}

func TestUserCorrectionOutsideWindowIgnored(t *testing.T) {
	m := New()
	s := kernel.NewSharedState()
	advance(t, s, 1)

	id := kernel.OutputId{Tick: 1}
	s.Reduce(kernel.OutputProposedDelta(kernel.Output{ID: id, Content: "x"}))
	s.Reduce(kernel.OutputCommittedDelta(id, false))
	apply(t, m, &kernel.StepContext{Tick: s.Tick}, s)

	advance(t, s, 10)
	ctx := &kernel.StepContext{
		Tick:            s.Tick,
		Inputs:          []kernel.InputEvent{{Content: kernel.TextContent("unrelated")}},
		JustInterrupted: true,
	}
	apply(t, m, ctx, s)

	assert.NotContains(t, m.LastObservations(), UserCorrection)
}

func TestResponseTruncation(t *testing.T) {
	m := New()
	s := kernel.NewSharedState()
	advance(t, s, 1)

	id := kernel.OutputId{Tick: 1}
	s.Reduce(kernel.OutputProposedDelta(kernel.Output{ID: id, Content: "I was about to say"}))
	apply(t, m, &kernel.StepContext{Tick: s.Tick}, s)

	advance(t, s, 2)
	s.Reduce(kernel.OutputCanceledDelta(id))
	apply(t, m, &kernel.StepContext{Tick: s.Tick}, s)

	assert.Contains(t, m.LastObservations(), ResponseTruncation)
	assert.InDelta(t, 0.10, s.Meta.InterruptionSensitivity, 1e-6)
}

func TestStableAlignmentHealsAndDecays(t *testing.T) {
	m := New()
	s := kernel.NewSharedState()
	advance(t, s, 1)

	// Seed penalties, then hard-commit and let it stand.
	s.Reduce(kernel.MetaLatentUpdateDelta(kernel.MetaLatents{
		ConfidencePenalty:       0.5,
		InterruptionSensitivity: 0.5,
	}))
	id := kernel.OutputId{Tick: 1}
	s.Reduce(kernel.OutputProposedDelta(kernel.Output{ID: id, Content: "done"}))
	apply(t, m, &kernel.StepContext{Tick: s.Tick}, s)

	advance(t, s, 2)
	s.Reduce(kernel.OutputCommittedDelta(id, true))
	apply(t, m, &kernel.StepContext{Tick: s.Tick}, s)

	var aligned bool
	for s.Tick < 20 && !aligned {
		advance(t, s, s.Tick+1)
		apply(t, m, &kernel.StepContext{Tick: s.Tick}, s)
		for _, o := range m.LastObservations() {
			if o == StableAlignment {
				aligned = true
			}
		}
	}
	require.True(t, aligned, "hard commit never counted as aligned")
	assert.Less(t, float64(s.Meta.ConfidencePenalty), 0.5*math.Pow(0.98, 5),
		"alignment heals on top of decay")
}

func TestDecayWithoutObservations(t *testing.T) {
	m := New()
	s := kernel.NewSharedState()
	s.Reduce(kernel.MetaLatentUpdateDelta(kernel.MetaLatents{InterruptionSensitivity: 0.15}))

	// Thirty quiet ticks: 0.15 * 0.98^30 ~ 0.082.
	for i := 0; i < 30; i++ {
		advance(t, s, s.Tick+1)
		apply(t, m, &kernel.StepContext{Tick: s.Tick}, s)
	}
	assert.InDelta(t, 0.15*math.Pow(0.98, 30), float64(s.Meta.InterruptionSensitivity), 1e-3)
	assert.Empty(t, m.LastObservations())
}

func TestInterruptionClearsPendingAlignment(t *testing.T) {
	m := New()
	s := kernel.NewSharedState()
	advance(t, s, 1)

	id := kernel.OutputId{Tick: 1}
	s.Reduce(kernel.OutputProposedDelta(kernel.Output{ID: id, Content: "said"}))
	apply(t, m, &kernel.StepContext{Tick: s.Tick}, s)

	advance(t, s, 2)
	s.Reduce(kernel.OutputCommittedDelta(id, true))
	apply(t, m, &kernel.StepContext{Tick: s.Tick}, s)

	// Interrupted before the alignment window elapses.
	advance(t, s, 4)
	apply(t, m, &kernel.StepContext{Tick: s.Tick, JustInterrupted: true}, s)

	for i := 0; i < 10; i++ {
		advance(t, s, s.Tick+1)
		apply(t, m, &kernel.StepContext{Tick: s.Tick}, s)
		assert.NotContains(t, m.LastObservations(), StableAlignment)
	}
}
