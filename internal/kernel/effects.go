package kernel

import "fmt"

// =============================================================================
// SIDE EFFECTS
// =============================================================================
//
// Every effectful operation the step decides on is represented as a value
// returned to the driver. The reactor never performs I/O in-place.

// SideEffectKind enumerates the driver-executed effects.
type SideEffectKind int

const (
	EffectLog SideEffectKind = iota
	EffectSpeak
	EffectEmitUI
	EffectDispatchPlan
	EffectAbortPlan
	EffectSelfWake
	EffectAskConsent
)

func (k SideEffectKind) String() string {
	switch k {
	case EffectLog:
		return "log"
	case EffectSpeak:
		return "speak"
	case EffectEmitUI:
		return "emit_ui"
	case EffectDispatchPlan:
		return "dispatch_plan"
	case EffectAbortPlan:
		return "abort_plan"
	case EffectSelfWake:
		return "self_wake"
	case EffectAskConsent:
		return "ask_consent"
	default:
		return fmt.Sprintf("effect(%d)", int(k))
	}
}

// SideEffect is one deferred effect. The field group matching Kind is set.
type SideEffect struct {
	Kind SideEffectKind

	Message    string        // EffectLog
	OutputID   OutputId      // EffectSpeak
	Text       string        // EffectSpeak
	UI         UIEvent       // EffectEmitUI
	Epoch      PlanningEpoch // EffectDispatchPlan / EffectAbortPlan
	Snapshot   StateSnapshot // EffectDispatchPlan
	AfterTicks uint64        // EffectSelfWake
	ConsentKey string        // EffectAskConsent
}

func LogEffect(msg string) SideEffect {
	return SideEffect{Kind: EffectLog, Message: msg}
}

func SpeakEffect(id OutputId, text string) SideEffect {
	return SideEffect{Kind: EffectSpeak, OutputID: id, Text: text}
}

func EmitUIEffect(ev UIEvent) SideEffect {
	return SideEffect{Kind: EffectEmitUI, UI: ev}
}

func DispatchPlanEffect(epoch PlanningEpoch, snap StateSnapshot) SideEffect {
	return SideEffect{Kind: EffectDispatchPlan, Epoch: epoch, Snapshot: snap}
}

func AbortPlanEffect(epoch PlanningEpoch) SideEffect {
	return SideEffect{Kind: EffectAbortPlan, Epoch: epoch}
}

func SelfWakeEffect(afterTicks uint64) SideEffect {
	return SideEffect{Kind: EffectSelfWake, AfterTicks: afterTicks}
}

func AskConsentEffect(key string) SideEffect {
	return SideEffect{Kind: EffectAskConsent, ConsentKey: key}
}
