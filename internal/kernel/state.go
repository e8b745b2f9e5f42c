package kernel

// =============================================================================
// SHARED STATE - SINGLE SOURCE OF TRUTH
// =============================================================================
//
// SharedState is exclusively owned by the driver. Sidecars and the planner
// see it only through read access inside a tick or through value snapshots.
// All cognition-state mutation goes through Reduce; the control-plane flags
// (user suspend, mic) are set by the reactor while handling UiCommands.

// MetaLatents are the scalar metacognitive biases that modulate the
// crystallizer gate. Both values live in [0,1].
type MetaLatents struct {
	ConfidencePenalty       float32
	InterruptionSensitivity float32
}

// VisualState is the most recent perceptual-hash observation.
type VisualState struct {
	Hash      uint64
	Stability float32
	LastTick  Tick
}

// TimedInput is one entry of the bounded recent-input window.
type TimedInput struct {
	Tick  Tick
	Event InputEvent
}

// inputsRecentCap bounds the recent-input window.
const inputsRecentCap = 32

// SharedState is the single mutable root of the kernel.
type SharedState struct {
	Tick    Tick
	Latents LatentField
	Meta    MetaLatents

	inputsRecent []TimedInput
	dedupSeen    map[string]struct{}

	Outputs    map[OutputId]*Output
	ActivePlan *ActivePlan
	Intents    map[string]LongHorizonIntent
	Visual     *VisualState

	// Speech dynamics (original kernel physics).
	UserSpeaking    bool
	LastSpeechStart Tick
	LastSpeechEnd   Tick
	Hesitation      bool
	TurnPressure    float32

	// Last user activity, for quiescence and the gate.
	LastUserInput    Tick
	HasUserInput     bool
	LastSignalInput  Tick
	HasSignalInput   bool

	// Control plane, set by the reactor from UiCommands.
	UserSuspended bool
	MicOn         bool

	canceledTasks map[string]struct{}
}

// NewSharedState returns the zero cognitive state at tick 0.
func NewSharedState() *SharedState {
	return &SharedState{
		Latents:       NewLatentField(),
		dedupSeen:     make(map[string]struct{}),
		Outputs:       make(map[OutputId]*Output),
		Intents:       make(map[string]LongHorizonIntent),
		canceledTasks: make(map[string]struct{}),
	}
}

// InputsRecent returns the bounded recent-input window, oldest first.
func (s *SharedState) InputsRecent() []TimedInput {
	return s.inputsRecent
}

// TicksSinceUserInput returns the logical age of the last user input, or
// the current tick value when no user input has ever arrived.
func (s *SharedState) TicksSinceUserInput() uint64 {
	if !s.HasUserInput {
		return uint64(s.Tick)
	}
	return s.Tick.Since(s.LastUserInput)
}

// TicksSinceSignal returns the age of the last audio or visual signal.
func (s *SharedState) TicksSinceSignal() uint64 {
	if !s.HasSignalInput {
		return uint64(s.Tick)
	}
	return s.Tick.Since(s.LastSignalInput)
}

// PendingOutputs reports whether any output sits in Draft or SoftCommit.
func (s *SharedState) PendingOutputs() bool {
	for _, out := range s.Outputs {
		if out.Status == StatusDraft || out.Status == StatusSoftCommit {
			return true
		}
	}
	return false
}

// Quiescent reports whether the kernel is idle enough to think: no user
// input in the last minTicks ticks, no pending output, no in-flight plan.
func (s *SharedState) Quiescent(minTicks uint64) bool {
	if s.TicksSinceUserInput() < minTicks {
		return false
	}
	if s.PendingOutputs() {
		return false
	}
	return s.ActivePlan == nil
}

// ActiveIntentCount counts intents with status Active.
func (s *SharedState) ActiveIntentCount() int {
	n := 0
	for _, it := range s.Intents {
		if it.Status == IntentActive {
			n++
		}
	}
	return n
}

// TaskCanceled reports whether a task id has been canceled this session.
func (s *SharedState) TaskCanceled(id string) bool {
	_, ok := s.canceledTasks[id]
	return ok
}
