package kernel

import "fmt"

// Scheduler materializes planner intents into (delta, side effect) pairs.
// Pure projection: the decision stays a delta, the effect stays a value.
type Scheduler struct{}

// ScheduleResult is what one intent materializes into. Either field may be
// absent (DoNothing yields neither).
type ScheduleResult struct {
	Delta  *StateDelta
	Effect *SideEffect
}

// Schedule maps one intent to its delta and effect. OutputIds are
// deterministic: proposing tick plus the intent's ordinal within the tick.
func (Scheduler) Schedule(intent Intent, epoch PlanningEpoch, tick Tick, ordinal uint16) ScheduleResult {
	id := OutputId{Tick: tick, Ordinal: ordinal}

	switch intent.Kind {
	case IntentBeginResponse:
		out := Output{
			ID:          id,
			Content:     "",
			Status:      StatusDraft,
			ProposedAt:  tick,
			OriginEpoch: epoch,
		}
		delta := OutputProposedDelta(out)
		effect := SpeakEffect(id, out.Content)
		return ScheduleResult{Delta: &delta, Effect: &effect}

	case IntentDelay:
		effect := SelfWakeEffect(intent.DelayTicks)
		return ScheduleResult{Effect: &effect}

	case IntentAskClarification:
		out := Output{
			ID:          id,
			Content:     intent.Context,
			Status:      StatusDraft,
			ProposedAt:  tick,
			OriginEpoch: epoch,
		}
		delta := OutputProposedDelta(out)
		return ScheduleResult{Delta: &delta}

	case IntentReviseStatement:
		ref := intent.RefID
		out := Output{
			ID:          id,
			Content:     intent.Correction,
			Status:      StatusDraft,
			ProposedAt:  tick,
			OriginEpoch: epoch,
			RevisionOf:  &ref,
		}
		// Revising a HardCommit is a hard reject; the reducer enforces it.
		delta := OutputProposedDelta(out)
		return ScheduleResult{Delta: &delta}

	case IntentHoldGoal:
		// Bound upstream through the intent sidecar; nothing to externalize.
		return ScheduleResult{}

	case IntentDoNothing:
		return ScheduleResult{}

	default:
		effect := LogEffect(fmt.Sprintf("unknown intent kind %v", intent.Kind))
		return ScheduleResult{Effect: &effect}
	}
}
