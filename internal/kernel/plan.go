package kernel

import "fmt"

// PlanningEpoch correlates a planner dispatch with its result. A result
// arriving with an epoch that no longer matches the active plan is stale
// and is discarded by the reducer; epoch comparison is the authoritative
// cancellation point.
type PlanningEpoch uint64

// IntentKind enumerates the planner's possible decisions.
type IntentKind int

const (
	IntentDoNothing IntentKind = iota
	IntentBeginResponse
	IntentDelay
	IntentAskClarification
	IntentReviseStatement
	IntentHoldGoal
)

func (k IntentKind) String() string {
	switch k {
	case IntentDoNothing:
		return "DoNothing"
	case IntentBeginResponse:
		return "BeginResponse"
	case IntentDelay:
		return "Delay"
	case IntentAskClarification:
		return "AskClarification"
	case IntentReviseStatement:
		return "ReviseStatement"
	case IntentHoldGoal:
		return "HoldGoal"
	default:
		return fmt.Sprintf("intent(%d)", int(k))
	}
}

// Intent is the planner's output: a single decision about what, if
// anything, the kernel should externalize.
type Intent struct {
	Kind       IntentKind
	Confidence float32  // BeginResponse / HoldGoal
	DelayTicks uint64   // Delay
	Context    string   // AskClarification / HoldGoal (the goal summary)
	RefID      OutputId // ReviseStatement
	Correction string   // ReviseStatement
}

// PlannerErrorKind classifies planner dispatch failures.
type PlannerErrorKind int

const (
	PlannerTimeout PlannerErrorKind = iota
	PlannerTransport
	PlannerMalformed
	PlannerAborted
)

func (k PlannerErrorKind) String() string {
	switch k {
	case PlannerTimeout:
		return "timeout"
	case PlannerTransport:
		return "transport"
	case PlannerMalformed:
		return "malformed"
	case PlannerAborted:
		return "aborted"
	default:
		return fmt.Sprintf("planner_error(%d)", int(k))
	}
}

// PlannerError is a typed dispatch failure. It never carries content.
type PlannerError struct {
	Kind PlannerErrorKind
	Err  error
}

func (e *PlannerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planner %s: %v", e.Kind, e.Err)
	}
	return "planner " + e.Kind.String()
}

func (e *PlannerError) Unwrap() error { return e.Err }

// PlanResult is the planner client's completion report, delivered through
// the inbox. Exactly one of Intent / Err is set.
type PlanResult struct {
	Epoch  PlanningEpoch
	Intent *Intent
	Err    *PlannerError
}

// ActivePlan tracks the single in-flight planner request.
type ActivePlan struct {
	Epoch     PlanningEpoch
	StartedAt Tick
	// Superseded is set when an interrupting input arrives after dispatch;
	// the reactor aborts the epoch on the same tick.
	Superseded bool
}

// StateSnapshot is the sanitized copy-on-read projection handed to the
// planner. It holds no pointers into live state.
type StateSnapshot struct {
	Epoch             PlanningEpoch
	Tick              Tick
	TicksSinceInput   uint64
	UserSpeaking      bool
	TurnPressure      float32
	ActiveOutputs     int
	GlobalUncertainty float32
	ConfidencePenalty float32
	InterruptionBias  float32
	VisualStability   float32
	RecentInputs      []string
	TopClaims         []string
	ActiveIntents     []IntentSummary
}

// IntentSummary is the planner-visible view of a long-horizon intent.
type IntentSummary struct {
	ID         string
	Summary    string
	Confidence float32
}
