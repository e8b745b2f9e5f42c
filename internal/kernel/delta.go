package kernel

import "fmt"

// =============================================================================
// STATE DELTAS - THE ONLY MUTATION VOCABULARY
// =============================================================================

// DeltaKind enumerates the closed set of permitted state transitions.
type DeltaKind int

const (
	DeltaTick DeltaKind = iota
	DeltaInputReceived
	DeltaOutputProposed
	DeltaOutputCommitted
	DeltaOutputCanceled
	DeltaTaskCanceled
	DeltaVisualStateUpdate
	DeltaLatentUpdate
	DeltaMetaLatentUpdate
	DeltaIntentUpdate
	DeltaPlanDispatched
	DeltaPlanResolved
	DeltaPlanAborted
	// DeltaSuspendSet carries the user's explicit Suspend/Resume toggle
	// into state so the presence projection can honor it.
	DeltaSuspendSet
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaTick:
		return "Tick"
	case DeltaInputReceived:
		return "InputReceived"
	case DeltaOutputProposed:
		return "OutputProposed"
	case DeltaOutputCommitted:
		return "OutputCommitted"
	case DeltaOutputCanceled:
		return "OutputCanceled"
	case DeltaTaskCanceled:
		return "TaskCanceled"
	case DeltaVisualStateUpdate:
		return "VisualStateUpdate"
	case DeltaLatentUpdate:
		return "LatentUpdate"
	case DeltaMetaLatentUpdate:
		return "MetaLatentUpdate"
	case DeltaIntentUpdate:
		return "IntentUpdate"
	case DeltaPlanDispatched:
		return "PlanDispatched"
	case DeltaPlanResolved:
		return "PlanResolved"
	case DeltaPlanAborted:
		return "PlanAborted"
	case DeltaSuspendSet:
		return "SuspendSet"
	default:
		return fmt.Sprintf("delta(%d)", int(k))
	}
}

// StateDelta is a typed value describing one permitted transition.
type StateDelta struct {
	Kind DeltaKind

	Tick      Tick              // DeltaTick
	Input     InputEvent        // DeltaInputReceived
	Output    Output            // DeltaOutputProposed
	OutputID  OutputId          // DeltaOutputCommitted / Canceled
	Hard      bool              // DeltaOutputCommitted
	TaskID    string            // DeltaTaskCanceled
	Hash      uint64            // DeltaVisualStateUpdate
	Stability float32           // DeltaVisualStateUpdate
	SlotKey   string            // DeltaLatentUpdate
	Slot      LatentSlot        // DeltaLatentUpdate
	Meta      MetaLatents       // DeltaMetaLatentUpdate
	Intent    LongHorizonIntent // DeltaIntentUpdate
	Epoch     PlanningEpoch     // DeltaPlanDispatched / Resolved / Aborted
	Plan      *Intent           // DeltaPlanResolved
	Suspended bool              // DeltaSuspendSet
}

// Delta constructors keep call sites exhaustive and greppable.

func TickDelta(n Tick) StateDelta          { return StateDelta{Kind: DeltaTick, Tick: n} }
func InputReceivedDelta(e InputEvent) StateDelta {
	return StateDelta{Kind: DeltaInputReceived, Input: e}
}
func OutputProposedDelta(out Output) StateDelta {
	return StateDelta{Kind: DeltaOutputProposed, Output: out}
}
func OutputCommittedDelta(id OutputId, hard bool) StateDelta {
	return StateDelta{Kind: DeltaOutputCommitted, OutputID: id, Hard: hard}
}
func OutputCanceledDelta(id OutputId) StateDelta {
	return StateDelta{Kind: DeltaOutputCanceled, OutputID: id}
}
func TaskCanceledDelta(id string) StateDelta {
	return StateDelta{Kind: DeltaTaskCanceled, TaskID: id}
}
func VisualStateUpdateDelta(hash uint64, stability float32) StateDelta {
	return StateDelta{Kind: DeltaVisualStateUpdate, Hash: hash, Stability: stability}
}
func LatentUpdateDelta(key string, slot LatentSlot) StateDelta {
	return StateDelta{Kind: DeltaLatentUpdate, SlotKey: key, Slot: slot}
}
func MetaLatentUpdateDelta(meta MetaLatents) StateDelta {
	return StateDelta{Kind: DeltaMetaLatentUpdate, Meta: meta}
}
func IntentUpdateDelta(it LongHorizonIntent) StateDelta {
	return StateDelta{Kind: DeltaIntentUpdate, Intent: it}
}
func PlanDispatchedDelta(epoch PlanningEpoch) StateDelta {
	return StateDelta{Kind: DeltaPlanDispatched, Epoch: epoch}
}
func PlanResolvedDelta(epoch PlanningEpoch, intent Intent) StateDelta {
	return StateDelta{Kind: DeltaPlanResolved, Epoch: epoch, Plan: &intent}
}
func PlanAbortedDelta(epoch PlanningEpoch) StateDelta {
	return StateDelta{Kind: DeltaPlanAborted, Epoch: epoch}
}
func SuspendSetDelta(suspended bool) StateDelta {
	return StateDelta{Kind: DeltaSuspendSet, Suspended: suspended}
}

// =============================================================================
// REDUCE OUTCOME
// =============================================================================

// RejectReason is the typed refusal of an illegal delta. The reducer never
// aborts; it reports and leaves state untouched.
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectNonMonotonicTick
	RejectDuplicateOutput
	RejectUnknownOutput
	RejectTerminalStatus
	RejectIllegalTransition
	RejectStaleEpoch
	RejectDuplicateInput
	RejectReviseHardCommit
)

func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "none"
	case RejectNonMonotonicTick:
		return "non_monotonic_tick"
	case RejectDuplicateOutput:
		return "duplicate_output"
	case RejectUnknownOutput:
		return "unknown_output"
	case RejectTerminalStatus:
		return "terminal_status"
	case RejectIllegalTransition:
		return "illegal_transition"
	case RejectStaleEpoch:
		return "stale_epoch"
	case RejectDuplicateInput:
		return "duplicate_input"
	case RejectReviseHardCommit:
		return "revise_hard_commit"
	default:
		return fmt.Sprintf("reject(%d)", int(r))
	}
}

// ReduceOutcome reports what a reduction did.
type ReduceOutcome struct {
	Applied bool
	Reject  RejectReason
	// CancelEpoch instructs the driver to abort a superseded planner
	// dispatch. Set when PlanDispatched replaces an in-flight plan.
	CancelEpoch *PlanningEpoch
}

func applied() ReduceOutcome              { return ReduceOutcome{Applied: true} }
func rejected(r RejectReason) ReduceOutcome { return ReduceOutcome{Reject: r} }

// =============================================================================
// REDUCE
// =============================================================================

// Per-modality latent parameters for input-driven slot refresh.
var latentDefaults = map[Modality]struct {
	confidence float32
	decay      float32
}{
	ModalityAudio:  {confidence: 0.9, decay: 0.1},
	ModalityVisual: {confidence: 0.8, decay: 0.01},
	ModalityText:   {confidence: 0.9, decay: 0.05},
}

// Reduce applies one delta to state. It is deterministic, performs no I/O,
// and either advances state along a legal transition or returns a typed
// rejection without mutation.
func (s *SharedState) Reduce(delta StateDelta) ReduceOutcome {
	switch delta.Kind {
	case DeltaTick:
		return s.reduceTick(delta.Tick)
	case DeltaInputReceived:
		return s.reduceInput(delta.Input)
	case DeltaOutputProposed:
		return s.reduceOutputProposed(delta.Output)
	case DeltaOutputCommitted:
		return s.reduceOutputCommitted(delta.OutputID, delta.Hard)
	case DeltaOutputCanceled:
		return s.reduceOutputCanceled(delta.OutputID)
	case DeltaTaskCanceled:
		s.canceledTasks[delta.TaskID] = struct{}{}
		return applied()
	case DeltaVisualStateUpdate:
		s.Visual = &VisualState{Hash: delta.Hash, Stability: delta.Stability, LastTick: s.Tick}
		return applied()
	case DeltaLatentUpdate:
		s.Latents.Slots[delta.SlotKey] = delta.Slot
		return applied()
	case DeltaMetaLatentUpdate:
		s.Meta = MetaLatents{
			ConfidencePenalty:       clamp01(delta.Meta.ConfidencePenalty),
			InterruptionSensitivity: clamp01(delta.Meta.InterruptionSensitivity),
		}
		return applied()
	case DeltaIntentUpdate:
		return s.reduceIntentUpdate(delta.Intent)
	case DeltaPlanDispatched:
		return s.reducePlanDispatched(delta.Epoch)
	case DeltaPlanResolved:
		return s.reducePlanResolved(delta.Epoch)
	case DeltaPlanAborted:
		return s.reducePlanAborted(delta.Epoch)
	case DeltaSuspendSet:
		s.UserSuspended = delta.Suspended
		return applied()
	default:
		return rejected(RejectIllegalTransition)
	}
}

func (s *SharedState) reduceTick(n Tick) ReduceOutcome {
	if n != s.Tick.Next() {
		return rejected(RejectNonMonotonicTick)
	}
	s.Tick = n

	// Per-tick physics: latent decay with pruning, visual stability fade,
	// turn-pressure dynamics.
	s.Latents.Decay()

	if s.Visual != nil {
		s.Visual.Stability = maxf(s.Visual.Stability-0.01, 0)
	}

	if s.UserSpeaking && s.PendingOutputs() {
		s.TurnPressure = minf(s.TurnPressure+0.1, 1)
	} else {
		s.TurnPressure = maxf(s.TurnPressure-0.01, 0)
	}
	return applied()
}

func (s *SharedState) reduceInput(e InputEvent) ReduceOutcome {
	if e.DedupKey != "" {
		if _, seen := s.dedupSeen[e.DedupKey]; seen {
			return rejected(RejectDuplicateInput)
		}
	}

	s.inputsRecent = append(s.inputsRecent, TimedInput{Tick: s.Tick, Event: e})
	if len(s.inputsRecent) > inputsRecentCap {
		evicted := s.inputsRecent[0]
		s.inputsRecent = s.inputsRecent[1:]
		if evicted.Event.DedupKey != "" {
			delete(s.dedupSeen, evicted.Event.DedupKey)
		}
	}
	if e.DedupKey != "" {
		s.dedupSeen[e.DedupKey] = struct{}{}
	}

	switch e.Content.Kind {
	case ContentText:
		s.LastUserInput = s.Tick
		s.HasUserInput = true
		s.refreshLatent(ModalityText)
	case ContentAudio:
		s.LastUserInput = s.Tick
		s.HasUserInput = true
		s.LastSignalInput = s.Tick
		s.HasSignalInput = true
		s.refreshLatent(ModalityAudio)
		switch e.Content.Audio {
		case SpeechStart:
			s.UserSpeaking = true
			s.LastSpeechStart = s.Tick
			s.Hesitation = false
		case SpeechEnd:
			s.UserSpeaking = false
			s.LastSpeechEnd = s.Tick
			// A short burst reads as hesitation, not a turn.
			if dur := s.Tick.Since(s.LastSpeechStart); dur > 0 && dur < 10 {
				s.Hesitation = true
			}
		}
	case ContentVisual:
		s.LastSignalInput = s.Tick
		s.HasSignalInput = true
		s.refreshLatent(ModalityVisual)
	}

	// The primary interruption trigger: user text or speech onset
	// supersedes the in-flight planning epoch.
	if e.IsInterrupting() && s.ActivePlan != nil {
		s.ActivePlan.Superseded = true
	}
	return applied()
}

func (s *SharedState) refreshLatent(m Modality) {
	def := latentDefaults[m]
	key := m.String()
	slot, ok := s.Latents.Slots[key]
	if !ok {
		slot = LatentSlot{
			CreatedAt: s.Tick,
			Modality:  m,
			DecayRate: def.decay,
		}
	}
	if def.confidence > slot.Confidence {
		slot.Confidence = def.confidence
	}
	s.Latents.Slots[key] = slot
}

func (s *SharedState) reduceOutputProposed(out Output) ReduceOutcome {
	if _, exists := s.Outputs[out.ID]; exists {
		return rejected(RejectDuplicateOutput)
	}
	if out.RevisionOf != nil {
		if ref, ok := s.Outputs[*out.RevisionOf]; ok && ref.Status == StatusHardCommit {
			return rejected(RejectReviseHardCommit)
		}
	}
	cp := out
	cp.Status = StatusDraft
	cp.ProposedAt = s.Tick
	s.Outputs[out.ID] = &cp
	return applied()
}

func (s *SharedState) reduceOutputCommitted(id OutputId, hard bool) ReduceOutcome {
	out, ok := s.Outputs[id]
	if !ok {
		return rejected(RejectUnknownOutput)
	}
	if out.Status.Terminal() {
		return rejected(RejectTerminalStatus)
	}
	next := StatusSoftCommit
	if hard {
		next = StatusHardCommit
	}
	if !out.Status.CanAdvanceTo(next) {
		return rejected(RejectIllegalTransition)
	}
	out.Status = next
	if !out.Committed {
		out.Committed = true
		out.CommittedAt = s.Tick
	}
	return applied()
}

func (s *SharedState) reduceOutputCanceled(id OutputId) ReduceOutcome {
	out, ok := s.Outputs[id]
	if !ok {
		return rejected(RejectUnknownOutput)
	}
	if !out.Status.CanAdvanceTo(StatusCanceled) {
		return rejected(RejectTerminalStatus)
	}
	out.Status = StatusCanceled
	return applied()
}

func (s *SharedState) reduceIntentUpdate(it LongHorizonIntent) ReduceOutcome {
	if existing, ok := s.Intents[it.ID]; ok && existing.Status == IntentDissolved {
		return rejected(RejectTerminalStatus)
	}
	if it.Status == IntentDissolved {
		// Dissolution removes the intent from the working set.
		delete(s.Intents, it.ID)
		return applied()
	}
	s.Intents[it.ID] = it
	return applied()
}

func (s *SharedState) reducePlanDispatched(epoch PlanningEpoch) ReduceOutcome {
	out := applied()
	if s.ActivePlan != nil {
		prev := s.ActivePlan.Epoch
		out.CancelEpoch = &prev
	}
	s.ActivePlan = &ActivePlan{Epoch: epoch, StartedAt: s.Tick}
	return out
}

func (s *SharedState) reducePlanResolved(epoch PlanningEpoch) ReduceOutcome {
	if s.ActivePlan == nil || s.ActivePlan.Epoch != epoch {
		return rejected(RejectStaleEpoch)
	}
	s.ActivePlan = nil
	return applied()
}

func (s *SharedState) reducePlanAborted(epoch PlanningEpoch) ReduceOutcome {
	if s.ActivePlan == nil || s.ActivePlan.Epoch != epoch {
		return rejected(RejectStaleEpoch)
	}
	s.ActivePlan = nil
	return applied()
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
