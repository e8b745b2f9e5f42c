package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexuscortex/internal/telemetry"
)

func newTestReactor(sidecars ...Sidecar) (*Reactor, *SharedState) {
	r := NewReactor(sidecars, nil, DefaultGateTunables(), DefaultPresenceTunables())
	return r, NewSharedState()
}

func effectsOfKind(out StepOutcome, kind SideEffectKind) []SideEffect {
	var matched []SideEffect
	for _, e := range out.SideEffects {
		if e.Kind == kind {
			matched = append(matched, e)
		}
	}
	return matched
}

// stepUntilDispatch ticks until the reactor dispatches a plan on its own.
func stepUntilDispatch(t *testing.T, r *Reactor, s *SharedState) SideEffect {
	t.Helper()
	for i := 0; i < 20; i++ {
		out := r.TickStep(s, nil)
		if d := effectsOfKind(out, EffectDispatchPlan); len(d) > 0 {
			return d[0]
		}
	}
	t.Fatal("no dispatch within 20 idle ticks")
	return SideEffect{}
}

func TestQuiescentDispatch(t *testing.T) {
	r, s := newTestReactor()

	dispatch := stepUntilDispatch(t, r, s)
	assert.Equal(t, PlanningEpoch(1), dispatch.Epoch)
	require.NotNil(t, s.ActivePlan)
	assert.Equal(t, PlanningEpoch(1), s.ActivePlan.Epoch)

	// One plan in flight at a time: further idle ticks do not re-dispatch.
	for i := 0; i < 5; i++ {
		out := r.TickStep(s, nil)
		assert.Empty(t, effectsOfKind(out, EffectDispatchPlan))
	}
}

func TestInterruptionSupremacy(t *testing.T) {
	r, s := newTestReactor()
	stepUntilDispatch(t, r, s)

	// User text while a plan is in flight: abort the old epoch and
	// re-dispatch immediately with the interrupting input visible.
	out := r.TickStep(s, []Event{{Input: &InputEvent{Content: TextContent("actually, wait")}}})

	aborts := effectsOfKind(out, EffectAbortPlan)
	require.Len(t, aborts, 1)
	assert.Equal(t, PlanningEpoch(1), aborts[0].Epoch)

	dispatches := effectsOfKind(out, EffectDispatchPlan)
	require.Len(t, dispatches, 1)
	assert.Equal(t, PlanningEpoch(2), dispatches[0].Epoch)
	assert.Contains(t, dispatches[0].Snapshot.RecentInputs, "actually, wait")

	require.NotNil(t, s.ActivePlan)
	assert.Equal(t, PlanningEpoch(2), s.ActivePlan.Epoch)
}

func TestSupersededPlanRedispatchedWithoutInboxInput(t *testing.T) {
	r, s := newTestReactor()
	stepUntilDispatch(t, r, s)

	// The reducer's superseded mark alone drives the abort and re-dispatch;
	// the reactor does not depend on seeing the input arrive through its
	// own inbox.
	res := s.Reduce(InputReceivedDelta(InputEvent{Content: TextContent("hold on")}))
	require.True(t, res.Applied)
	require.True(t, s.ActivePlan.Superseded)

	out := r.TickStep(s, nil)
	aborts := effectsOfKind(out, EffectAbortPlan)
	require.Len(t, aborts, 1)
	assert.Equal(t, PlanningEpoch(1), aborts[0].Epoch)
	require.NotNil(t, s.ActivePlan)
	assert.Equal(t, PlanningEpoch(2), s.ActivePlan.Epoch)
	assert.False(t, s.ActivePlan.Superseded)
}

func TestStaleResultDiscarded(t *testing.T) {
	r, s := newTestReactor()
	stepUntilDispatch(t, r, s)

	// Supersede epoch 1, then deliver its late result.
	r.TickStep(s, []Event{{Input: &InputEvent{Content: TextContent("new thought")}}})

	intent := Intent{Kind: IntentBeginResponse, Confidence: 0.9}
	out := r.TickStep(s, []Event{{PlanResult: &PlanResult{Epoch: 1, Intent: &intent}}})

	assert.False(t, s.PendingOutputs(), "stale plan must not propose outputs")
	found := false
	for _, e := range effectsOfKind(out, EffectLog) {
		if e.Message == "stale plan discarded: epoch 1" {
			found = true
		}
	}
	assert.True(t, found, "expected stale discard log, got %+v", out.SideEffects)
}

func TestPlanToCommitFlow(t *testing.T) {
	r, s := newTestReactor()
	dispatch := stepUntilDispatch(t, r, s)

	intent := Intent{Kind: IntentBeginResponse, Confidence: 0.9}
	out := r.TickStep(s, []Event{{PlanResult: &PlanResult{Epoch: dispatch.Epoch, Intent: &intent}}})

	// The accepted intent speaks at schedule time and soft-commits through
	// the gate on the same tick (fresh draft stays below the hard floor).
	require.Len(t, effectsOfKind(out, EffectSpeak), 1)
	id := OutputId{Tick: s.Tick, Ordinal: 0}
	require.Contains(t, s.Outputs, id)
	assert.Equal(t, StatusSoftCommit, s.Outputs[id].Status)

	// Two more idle ticks age the output past the hard-commit floor.
	r.TickStep(s, nil)
	r.TickStep(s, nil)
	assert.Equal(t, StatusHardCommit, s.Outputs[id].Status)
}

func TestPlannerErrorSettlesQuietly(t *testing.T) {
	r, s := newTestReactor()
	dispatch := stepUntilDispatch(t, r, s)

	perr := &PlannerError{Kind: PlannerTimeout}
	out := r.TickStep(s, []Event{{PlanResult: &PlanResult{Epoch: dispatch.Epoch, Err: perr}}})

	// The failure settles the epoch; the still-quiescent kernel simply
	// tries again with a fresh one on the same tick.
	require.NotNil(t, s.ActivePlan)
	assert.Equal(t, PlanningEpoch(2), s.ActivePlan.Epoch)
	assert.False(t, s.PendingOutputs())
	logged := false
	for _, e := range effectsOfKind(out, EffectLog) {
		if e.Message == "plan failed: timeout" {
			logged = true
		}
	}
	assert.True(t, logged)
}

func TestDelayIntentArmsSelfWake(t *testing.T) {
	r, s := newTestReactor()
	dispatch := stepUntilDispatch(t, r, s)

	intent := Intent{Kind: IntentDelay, DelayTicks: 8}
	out := r.TickStep(s, []Event{{PlanResult: &PlanResult{Epoch: dispatch.Epoch, Intent: &intent}}})

	assert.Equal(t, uint64(8), out.NextWakeTicks)
	require.Len(t, effectsOfKind(out, EffectSelfWake), 1)

	// The delay holds autonomous dispatch for its whole window.
	for i := 0; i < 7; i++ {
		idle := r.TickStep(s, nil)
		assert.Empty(t, effectsOfKind(idle, EffectDispatchPlan), "tick %d inside delay window", i)
	}
	woken := r.TickStep(s, nil)
	assert.Len(t, effectsOfKind(woken, EffectDispatchPlan), 1, "dispatch resumes at wake")
}

func TestPresenceEmittedOnChangeOnly(t *testing.T) {
	r, s := newTestReactor()

	out := r.TickStep(s, nil)
	first := effectsOfKind(out, EffectEmitUI)
	require.Len(t, first, 1, "first tick announces presence")
	assert.Equal(t, PresenceDormant, first[0].UI.Presence)

	// Second idle tick: no change, no emission.
	out = r.TickStep(s, nil)
	assert.Empty(t, effectsOfKind(out, EffectEmitUI))

	// The autonomous dispatch flips presence to engaged.
	stepUntilDispatch(t, r, s)
	assert.Equal(t, PresenceEngaged, r.Presence())
}

func TestSuspendBlocksDispatchAndAttach(t *testing.T) {
	r, s := newTestReactor()

	r.TickStep(s, []Event{{Ui: &UiCommand{Kind: UiSuspend}}})
	for i := 0; i < 10; i++ {
		out := r.TickStep(s, nil)
		assert.Empty(t, effectsOfKind(out, EffectDispatchPlan), "suspended kernel must not plan")
	}
	assert.Equal(t, PresenceSuspended, r.Presence())

	out := r.TickStep(s, []Event{{Ui: &UiCommand{Kind: UiAttach}}})
	denied := false
	for _, e := range effectsOfKind(out, EffectEmitUI) {
		if e.UI.Kind == UIAccessDenied {
			denied = true
		}
	}
	assert.True(t, denied, "attach while suspended is denied")

	// Resume restores planning.
	r.TickStep(s, []Event{{Ui: &UiCommand{Kind: UiResume}}})
	stepUntilDispatch(t, r, s)
}

func TestAttachHydratesCommittedOutputs(t *testing.T) {
	r, s := newTestReactor()
	dispatch := stepUntilDispatch(t, r, s)

	intent := Intent{Kind: IntentAskClarification, Context: "which window?"}
	r.TickStep(s, []Event{{PlanResult: &PlanResult{Epoch: dispatch.Epoch, Intent: &intent}}})

	out := r.TickStep(s, []Event{{Ui: &UiCommand{Kind: UiAttach}}})
	var snapshot *UIEvent
	for _, e := range effectsOfKind(out, EffectEmitUI) {
		if e.UI.Kind == UIContextSnapshot {
			ev := e.UI
			snapshot = &ev
		}
	}
	require.NotNil(t, snapshot)
	require.NotEmpty(t, snapshot.Context)
	assert.Equal(t, "which window?", snapshot.Context[0].Content)
	assert.Equal(t, "assistant", snapshot.Context[0].Role)
}

// denySidecar drives uncertainty above the deny bound via a latent delta.
type denySidecar struct{}

func (denySidecar) Name() string { return "deny" }
func (denySidecar) Step(ctx *StepContext, s *SharedState) SidecarResult {
	return SidecarResult{Deltas: []StateDelta{
		LatentUpdateDelta("audio", LatentSlot{Confidence: 0.1, DecayRate: 0, Modality: ModalityAudio}),
	}}
}

func TestGateDenyCancelsDraft(t *testing.T) {
	r, s := newTestReactor(denySidecar{})
	dispatch := stepUntilDispatch(t, r, s)

	intent := Intent{Kind: IntentBeginResponse, Confidence: 0.9}
	r.TickStep(s, []Event{{PlanResult: &PlanResult{Epoch: dispatch.Epoch, Intent: &intent}}})

	// Uncertainty 0.9 >= 0.7: the draft is denied and canceled.
	id := OutputId{Tick: s.Tick, Ordinal: 0}
	require.Contains(t, s.Outputs, id)
	assert.Equal(t, StatusCanceled, s.Outputs[id].Status)
}

// goalSidecar is a minimal GoalBinder for wiring tests.
type goalSidecar struct{}

func (goalSidecar) Name() string { return "goals" }
func (goalSidecar) Step(ctx *StepContext, s *SharedState) SidecarResult {
	return SidecarResult{}
}
func (goalSidecar) BindGoal(s *SharedState, summary string, confidence float32) StateDelta {
	return IntentUpdateDelta(LongHorizonIntent{
		ID:             "g1",
		Summary:        summary,
		CreatedAt:      s.Tick,
		LastReinforced: s.Tick,
		Confidence:     confidence,
		Status:         IntentActive,
	})
}

func TestHoldGoalBindsLongHorizonIntent(t *testing.T) {
	r, s := newTestReactor(goalSidecar{})
	dispatch := stepUntilDispatch(t, r, s)

	intent := Intent{Kind: IntentHoldGoal, Context: "check back about the kettle", Confidence: 0.6}
	r.TickStep(s, []Event{{PlanResult: &PlanResult{Epoch: dispatch.Epoch, Intent: &intent}}})

	require.Contains(t, s.Intents, "g1")
	assert.Equal(t, "check back about the kettle", s.Intents["g1"].Summary)
	assert.Equal(t, IntentActive, s.Intents["g1"].Status)
	assert.False(t, s.PendingOutputs(), "holding a goal must not externalize")
}

func TestPlanTelemetryPhases(t *testing.T) {
	r, s := newTestReactor()
	r.recorder = telemetry.NewRecorder()
	dispatch := stepUntilDispatch(t, r, s)

	intent := Intent{Kind: IntentDoNothing}
	r.TickStep(s, []Event{{PlanResult: &PlanResult{Epoch: dispatch.Epoch, Intent: &intent}}})

	// Interrupt the follow-up dispatch, then deliver its stale result.
	r.TickStep(s, []Event{{Input: &InputEvent{Content: TextContent("one moment")}}})
	r.TickStep(s, []Event{{PlanResult: &PlanResult{Epoch: 2, Intent: &intent}}})

	snap := r.recorder.Snapshot()
	assert.Equal(t, uint64(1), snap.Plans.Resolved)
	assert.Equal(t, uint64(1), snap.Plans.Stale)
	assert.Equal(t, uint64(1), snap.Interruptions.Count)
}
