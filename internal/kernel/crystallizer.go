package kernel

// =============================================================================
// CRYSTALLIZER - OUTPUT COMMIT GATE
// =============================================================================

// GateDecisionKind classifies the gate's verdict for one Draft output.
type GateDecisionKind int

const (
	GateDeny GateDecisionKind = iota
	GateDelay
	GateAllowPartial
	GateAllowHard
)

func (k GateDecisionKind) String() string {
	switch k {
	case GateDeny:
		return "deny"
	case GateDelay:
		return "delay"
	case GateAllowPartial:
		return "allow_partial"
	case GateAllowHard:
		return "allow_hard"
	default:
		return "gate_decision"
	}
}

// GateDecision is the crystallizer's verdict. DelayMs is set for GateDelay.
type GateDecision struct {
	Kind    GateDecisionKind
	DelayMs uint64
}

// GateView is the sanitized slice of state the gate is allowed to read.
// Using a projection rather than *SharedState keeps the decision function
// honest about its inputs and trivially idempotent.
type GateView struct {
	GlobalUncertainty float32
	Meta              MetaLatents
	VisualStability   float32
	TicksSinceInput   uint64
	OutputAgeTicks    uint64
	Presence          PresenceState
}

// GateTunables are the crystallizer thresholds, env-configurable.
type GateTunables struct {
	QuiescenceMinTicks    uint64
	SoftCommitMinAgeTicks uint64
	TickMs                uint64
}

// DefaultGateTunables mirrors the configuration defaults.
func DefaultGateTunables() GateTunables {
	return GateTunables{
		QuiescenceMinTicks:    3,
		SoftCommitMinAgeTicks: 2,
		TickMs:                50,
	}
}

// Gate thresholds. The uncertainty bound is closed: exactly 0.7 denies.
const (
	denyUncertainty    = 0.7
	denyPenalty        = 0.6
	partialUncertainty = 0.4
)

// CheckGate decides whether a Draft output may crystallize. Pure and
// deterministic: identical view, identical decision. Never reads wall time.
func CheckGate(view GateView, tun GateTunables) GateDecision {
	if view.GlobalUncertainty >= denyUncertainty ||
		view.Meta.ConfidencePenalty > denyPenalty ||
		view.Presence == PresenceSuspended {
		return GateDecision{Kind: GateDeny}
	}

	if view.TicksSinceInput < tun.QuiescenceMinTicks {
		remaining := tun.QuiescenceMinTicks - view.TicksSinceInput
		return GateDecision{Kind: GateDelay, DelayMs: remaining * tun.TickMs}
	}

	if view.GlobalUncertainty > partialUncertainty ||
		view.OutputAgeTicks < tun.SoftCommitMinAgeTicks {
		return GateDecision{Kind: GateAllowPartial}
	}

	return GateDecision{Kind: GateAllowHard}
}

// GateViewFor builds the gate's input projection for one output.
func GateViewFor(s *SharedState, out *Output, presence PresenceState) GateView {
	var stability float32
	if s.Visual != nil {
		stability = s.Visual.Stability
	}
	return GateView{
		GlobalUncertainty: s.Latents.GlobalUncertainty(),
		Meta:              s.Meta,
		VisualStability:   stability,
		TicksSinceInput:   s.TicksSinceUserInput(),
		OutputAgeTicks:    s.Tick.Since(out.ProposedAt),
		Presence:          presence,
	}
}

// ExtractSnapshot builds the sanitized, copy-on-read projection handed to
// the planner. topClaims comes from the memory subsystem; the snapshot
// holds no pointers into live state.
func ExtractSnapshot(s *SharedState, epoch PlanningEpoch, topClaims []string) StateSnapshot {
	recent := make([]string, 0, len(s.inputsRecent))
	for _, ti := range s.inputsRecent {
		switch ti.Event.Content.Kind {
		case ContentText:
			recent = append(recent, ti.Event.Content.Text)
		case ContentAudio:
			if ti.Event.Content.Audio == SpeechStart {
				recent = append(recent, "[speech start]")
			} else {
				recent = append(recent, "[speech end]")
			}
		}
	}

	intents := make([]IntentSummary, 0, len(s.Intents))
	for _, it := range s.Intents {
		if it.Status != IntentActive {
			continue
		}
		intents = append(intents, IntentSummary{
			ID:         it.ID,
			Summary:    it.Summary,
			Confidence: it.Confidence,
		})
	}

	var stability float32
	if s.Visual != nil {
		stability = s.Visual.Stability
	}

	return StateSnapshot{
		Epoch:             epoch,
		Tick:              s.Tick,
		TicksSinceInput:   s.TicksSinceUserInput(),
		UserSpeaking:      s.UserSpeaking,
		TurnPressure:      s.TurnPressure,
		ActiveOutputs:     len(s.Outputs),
		GlobalUncertainty: s.Latents.GlobalUncertainty(),
		ConfidencePenalty: s.Meta.ConfidencePenalty,
		InterruptionBias:  s.Meta.InterruptionSensitivity,
		VisualStability:   stability,
		RecentInputs:      recent,
		TopClaims:         append([]string(nil), topClaims...),
		ActiveIntents:     intents,
	}
}
