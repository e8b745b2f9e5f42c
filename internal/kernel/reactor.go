package kernel

import (
	"fmt"
	"sort"

	"nexuscortex/internal/telemetry"
)

// =============================================================================
// REACTOR - THE PER-TICK STEP
// =============================================================================

// StepContext carries per-tick context into the sidecars.
type StepContext struct {
	Tick Tick
	// Inputs ingested this tick, in arrival order, after reduction.
	Inputs []InputEvent
	// JustInterrupted is set when any user text or speech-start input
	// arrived this tick. Interruption supremacy keys off this flag.
	JustInterrupted bool
	// Consents are the consent resolutions received this tick.
	Consents []UiCommand
}

// SidecarResult is what one sidecar contributes to the tick.
type SidecarResult struct {
	Deltas  []StateDelta
	Effects []SideEffect
}

// Sidecar is a per-tick observer: (context, state view) -> deltas. Sidecars
// never mutate state directly and never perform I/O.
type Sidecar interface {
	Name() string
	Step(ctx *StepContext, s *SharedState) SidecarResult
}

// ClaimSource exposes the memory subsystem's top claims for snapshots.
type ClaimSource interface {
	TopClaims(k int) []string
}

// GoalBinder turns a planner hold decision into the IntentUpdate delta that
// registers or reinforces a long-horizon goal. The intent sidecar
// implements it; intents still enter state only through the reducer.
type GoalBinder interface {
	BindGoal(s *SharedState, summary string, confidence float32) StateDelta
}

// StepOutcome is what one tick step produced.
type StepOutcome struct {
	SideEffects []SideEffect
	// NextWakeTicks is non-zero when a Delay intent armed a self-wake.
	NextWakeTicks uint64
}

// snapshotClaims bounds how many memory claims a planner snapshot carries.
const snapshotClaims = 8

// Reactor orchestrates the synchronous tick step. It owns no I/O handles;
// the driver executes whatever the step returns.
type Reactor struct {
	scheduler Scheduler
	sidecars  []Sidecar
	claims    ClaimSource
	binder    GoalBinder
	recorder  *telemetry.Recorder

	gateTun GateTunables
	presTun PresenceTunables

	nextEpoch       PlanningEpoch
	lastPresence    PresenceState
	presenceEmitted bool
	// holdUntil defers autonomous dispatch while a Delay intent sleeps.
	holdUntil Tick
}

// NewReactor builds a reactor with the given sidecars, run in order each
// tick. claims may be nil when no memory subsystem is attached. A sidecar
// implementing GoalBinder handles planner hold decisions.
func NewReactor(sidecars []Sidecar, claims ClaimSource, gate GateTunables, pres PresenceTunables) *Reactor {
	r := &Reactor{
		sidecars: sidecars,
		claims:   claims,
		gateTun:  gate,
		presTun:  pres,
	}
	for _, sc := range sidecars {
		if b, ok := sc.(GoalBinder); ok {
			r.binder = b
		}
	}
	return r
}

func (r *Reactor) record(ev telemetry.Event) {
	if r.recorder != nil {
		r.recorder.Record(ev)
	}
}

// TickStep advances the kernel by exactly one tick. Strictly synchronous:
// it must complete without yielding, suspending, or touching the network
// or disk. Events submitted during this tick become visible next tick.
func (r *Reactor) TickStep(s *SharedState, inbox []Event) StepOutcome {
	var out StepOutcome
	effects := func(es ...SideEffect) {
		out.SideEffects = append(out.SideEffects, es...)
	}

	// 1. Advance logical time.
	if res := s.Reduce(TickDelta(s.Tick.Next())); !res.Applied {
		// Duplicate tick reduction is an invariant violation, not a user
		// action; the driver aborts on it.
		effects(LogEffect("fatal: tick reduction rejected: " + res.Reject.String()))
		return out
	}

	ctx := &StepContext{Tick: s.Tick}
	var planResults []PlanResult

	// 2. Drain the inbox in arrival order.
	for _, ev := range inbox {
		switch {
		case ev.Input != nil:
			in := *ev.Input
			res := s.Reduce(InputReceivedDelta(in))
			if !res.Applied {
				effects(LogEffect(fmt.Sprintf("input rejected: %s", res.Reject)))
				continue
			}
			ctx.Inputs = append(ctx.Inputs, in)
			if in.IsInterrupting() {
				ctx.JustInterrupted = true
			}
			if in.Content.Kind == ContentVisual {
				v := in.Content.Visual
				s.Reduce(VisualStateUpdateDelta(v.Hash, visualStability(v.Distance)))
			}
		case ev.PlanResult != nil:
			planResults = append(planResults, *ev.PlanResult)
		case ev.Ui != nil:
			effects(r.handleUiCommand(s, ctx, *ev.Ui)...)
		}
	}

	// Interruption supremacy: the reducer marked the in-flight epoch
	// superseded when the interrupting input was reduced. A fresh dispatch
	// replaces it so the planner sees the interrupting input; the abort to
	// the client is best-effort.
	if ctx.JustInterrupted {
		r.holdUntil = 0
	}
	if s.ActivePlan != nil && s.ActivePlan.Superseded {
		r.record(telemetry.Event{
			Kind:               telemetry.Interruption,
			CancelLatencyTicks: s.Tick.Since(s.ActivePlan.StartedAt),
		})
		r.nextEpoch++
		epoch := r.nextEpoch
		if res := s.Reduce(PlanDispatchedDelta(epoch)); res.Applied {
			if res.CancelEpoch != nil {
				effects(AbortPlanEffect(*res.CancelEpoch))
			}
			effects(DispatchPlanEffect(epoch, ExtractSnapshot(s, epoch, r.topClaims())))
		}
	}

	// 3. Sidecars in fixed order: Monitor -> Intent -> Memory.
	for _, sc := range r.sidecars {
		result := sc.Step(ctx, s)
		for _, delta := range result.Deltas {
			if res := s.Reduce(delta); !res.Applied {
				effects(LogEffect(fmt.Sprintf("%s delta rejected: %s (%s)", sc.Name(), res.Reject, delta.Kind)))
			}
		}
		effects(result.Effects...)
	}

	// 4. Plan settlement. Stale epochs are discarded by the reducer.
	for _, pr := range planResults {
		effects(r.settlePlan(s, pr, &out)...)
	}

	// 5. Crystallizer gate over pending outputs.
	committing := r.runGate(s, effects)

	// 6. Planner dispatch when quiescent (and not sleeping off a Delay).
	if !committing && s.Tick >= r.holdUntil && s.Quiescent(r.gateTun.QuiescenceMinTicks) && !s.UserSuspended {
		r.nextEpoch++
		epoch := r.nextEpoch
		if res := s.Reduce(PlanDispatchedDelta(epoch)); res.Applied {
			snap := ExtractSnapshot(s, epoch, r.topClaims())
			effects(DispatchPlanEffect(epoch, snap))
		}
	}

	// 7. Presence projection, emitted only on change.
	presence := PresenceOf(s, r.presTun)
	if !r.presenceEmitted || presence != r.lastPresence {
		r.lastPresence = presence
		r.presenceEmitted = true
		effects(EmitUIEffect(UIEvent{Kind: UIPresenceUpdate, Presence: presence}))
	}

	return out
}

// Presence returns the last projected presence state.
func (r *Reactor) Presence() PresenceState { return r.lastPresence }

func (r *Reactor) topClaims() []string {
	if r.claims == nil {
		return nil
	}
	return r.claims.TopClaims(snapshotClaims)
}

// settlePlan reduces one planner completion and schedules the accepted
// intent. Errors settle as PlanAborted; state is otherwise unchanged.
func (r *Reactor) settlePlan(s *SharedState, pr PlanResult, out *StepOutcome) []SideEffect {
	var effects []SideEffect

	if pr.Err != nil {
		if res := s.Reduce(PlanAbortedDelta(pr.Epoch)); res.Applied {
			r.record(telemetry.Event{Kind: telemetry.PlanLifecycle, Epoch: uint64(pr.Epoch), Phase: "aborted"})
			effects = append(effects, LogEffect("plan failed: "+pr.Err.Kind.String()))
		}
		return effects
	}

	res := s.Reduce(PlanResolvedDelta(pr.Epoch, *pr.Intent))
	if !res.Applied {
		// Late result from a superseded epoch.
		r.record(telemetry.Event{Kind: telemetry.PlanLifecycle, Epoch: uint64(pr.Epoch), Phase: "stale"})
		return append(effects, LogEffect(fmt.Sprintf("stale plan discarded: epoch %d", pr.Epoch)))
	}
	r.record(telemetry.Event{Kind: telemetry.PlanLifecycle, Epoch: uint64(pr.Epoch), Phase: "resolved"})

	// Hold decisions bind a long-horizon goal instead of externalizing.
	if pr.Intent.Kind == IntentHoldGoal {
		if r.binder == nil {
			return append(effects, LogEffect("hold goal dropped: no intent sidecar"))
		}
		delta := r.binder.BindGoal(s, pr.Intent.Context, pr.Intent.Confidence)
		if dres := s.Reduce(delta); !dres.Applied {
			effects = append(effects, LogEffect(fmt.Sprintf("goal delta rejected: %s", dres.Reject)))
		}
		return effects
	}

	sched := r.scheduler.Schedule(*pr.Intent, pr.Epoch, s.Tick, 0)
	if sched.Delta != nil {
		if dres := s.Reduce(*sched.Delta); !dres.Applied {
			effects = append(effects, LogEffect(fmt.Sprintf("scheduled delta rejected: %s", dres.Reject)))
			return effects
		}
	}
	if sched.Effect != nil {
		if sched.Effect.Kind == EffectSelfWake {
			out.NextWakeTicks = sched.Effect.AfterTicks
			r.holdUntil = s.Tick + Tick(sched.Effect.AfterTicks)
		}
		effects = append(effects, *sched.Effect)
	}
	return effects
}

// runGate consults the crystallizer for every pending output, in id order
// for determinism. Returns true when any commit was emitted this tick.
func (r *Reactor) runGate(s *SharedState, effects func(...SideEffect)) bool {
	var pending []*Output
	for _, out := range s.Outputs {
		if out.Status == StatusDraft || out.Status == StatusSoftCommit {
			pending = append(pending, out)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].ID.Tick != pending[j].ID.Tick {
			return pending[i].ID.Tick < pending[j].ID.Tick
		}
		return pending[i].ID.Ordinal < pending[j].ID.Ordinal
	})

	presence := PresenceOf(s, r.presTun)
	committing := false

	for _, out := range pending {
		decision := CheckGate(GateViewFor(s, out, presence), r.gateTun)
		switch decision.Kind {
		case GateDeny:
			if res := s.Reduce(OutputCanceledDelta(out.ID)); res.Applied {
				effects(EmitUIEffect(UIEvent{Kind: UIOutputEvent, Output: out}))
			}
		case GateDelay:
			// Retry on a later tick; the cadence covers the delay.
		case GateAllowPartial:
			if out.Status != StatusDraft {
				continue
			}
			if res := s.Reduce(OutputCommittedDelta(out.ID, false)); res.Applied {
				committing = true
				effects(EmitUIEffect(UIEvent{Kind: UIOutputEvent, Output: out}))
			}
		case GateAllowHard:
			if res := s.Reduce(OutputCommittedDelta(out.ID, true)); res.Applied {
				committing = true
				effects(EmitUIEffect(UIEvent{Kind: UIOutputEvent, Output: out}))
			}
		}
	}
	return committing
}

// handleUiCommand applies control-plane commands. Suspend and Resume go
// through the reducer; mic state is a control field.
func (r *Reactor) handleUiCommand(s *SharedState, ctx *StepContext, cmd UiCommand) []SideEffect {
	switch cmd.Kind {
	case UiSuspend:
		s.Reduce(SuspendSetDelta(true))
		return nil
	case UiResume:
		s.Reduce(SuspendSetDelta(false))
		return nil
	case UiToggleMic:
		s.MicOn = cmd.MicOn
		return nil
	case UiConsentResolved:
		ctx.Consents = append(ctx.Consents, cmd)
		return nil
	case UiAttach:
		if s.UserSuspended {
			return []SideEffect{EmitUIEffect(UIEvent{Kind: UIAccessDenied})}
		}
		return []SideEffect{EmitUIEffect(UIEvent{Kind: UIContextSnapshot, Context: r.contextItems(s)})}
	default:
		return nil
	}
}

// contextItems builds the push-based hydration snapshot for UI attach:
// committed outputs plus the memory subsystem's strongest claims.
func (r *Reactor) contextItems(s *SharedState) []ContextItem {
	var outs []*Output
	for _, out := range s.Outputs {
		if out.Status == StatusSoftCommit || out.Status == StatusHardCommit {
			outs = append(outs, out)
		}
	}
	sort.Slice(outs, func(i, j int) bool {
		if outs[i].ID.Tick != outs[j].ID.Tick {
			return outs[i].ID.Tick < outs[j].ID.Tick
		}
		return outs[i].ID.Ordinal < outs[j].ID.Ordinal
	})

	items := make([]ContextItem, 0, len(outs))
	for _, out := range outs {
		items = append(items, ContextItem{Content: out.Content, Role: "assistant"})
	}
	for _, claim := range r.topClaims() {
		items = append(items, ContextItem{Content: claim, Role: "memory"})
	}
	return items
}

// visualStability maps a perceptual-hash Hamming distance to a stability
// score: identical frames are fully stable, 64 differing bits fully unstable.
func visualStability(distance uint32) float32 {
	if distance >= 64 {
		return 0
	}
	return 1 - float32(distance)/64
}
