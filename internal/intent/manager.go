// Package intent implements the long-horizon intent manager: per-tick
// confidence decay, suspension under interruption supremacy, dissolution
// below the confidence floor, and planner-path registration and
// reinforcement. The manager never raises intents on its own.
package intent

import (
	"math"

	"github.com/google/uuid"

	"nexuscortex/internal/kernel"
	"nexuscortex/internal/telemetry"
)

// Decay rates per status. Suspended intents fade faster.
const (
	activeLambda    = 0.01
	suspendedLambda = 0.03
)

// DefaultDissolutionThreshold is the confidence floor. Strictly below it
// an intent dissolves; exactly at it the intent survives.
const DefaultDissolutionThreshold = 0.1

// reinforceBoost is applied on planner-path reinforcement.
const reinforceBoost = 0.2

// Manager is the long-horizon intent sidecar. It also implements
// kernel.GoalBinder for planner hold decisions.
type Manager struct {
	dissolution float32
	recorder    *telemetry.Recorder
}

// NewManager builds a manager with the given dissolution threshold;
// non-positive values fall back to the default. recorder may be nil.
func NewManager(dissolution float32, recorder *telemetry.Recorder) *Manager {
	if dissolution <= 0 {
		dissolution = DefaultDissolutionThreshold
	}
	return &Manager{dissolution: dissolution, recorder: recorder}
}

func (m *Manager) Name() string { return "intent" }

// Step decays every live intent and enforces interruption supremacy.
func (m *Manager) Step(ctx *kernel.StepContext, s *kernel.SharedState) kernel.SidecarResult {
	var deltas []kernel.StateDelta

	for _, it := range s.Intents {
		next := it

		if ctx.JustInterrupted && next.Status == kernel.IntentActive {
			next.Status = kernel.IntentSuspended
			m.record(telemetry.Event{
				Kind:     telemetry.IntentLifecycle,
				IntentID: next.ID,
				From:     "active",
				To:       "suspended",
			})
		}

		lambda := activeLambda
		if next.Status == kernel.IntentSuspended {
			lambda = suspendedLambda
		}
		next.Confidence *= float32(math.Exp(-lambda))

		if next.Confidence < m.dissolution {
			m.record(telemetry.Event{
				Kind:     telemetry.IntentLifecycle,
				IntentID: next.ID,
				From:     next.Status.String(),
				To:       "dissolved",
			})
			next.Status = kernel.IntentDissolved
		}

		if next != it {
			deltas = append(deltas, kernel.IntentUpdateDelta(next))
		}
	}

	return kernel.SidecarResult{Deltas: deltas}
}

// BindGoal maps a planner hold decision to its IntentUpdate delta: an
// existing goal with the same summary is reinforced, anything else is
// registered fresh.
func (m *Manager) BindGoal(s *kernel.SharedState, summary string, confidence float32) kernel.StateDelta {
	for id, it := range s.Intents {
		if it.Summary != summary {
			continue
		}
		delta, ok := Reinforce(s, id, s.Tick)
		if !ok {
			break
		}
		if it.Status == kernel.IntentSuspended {
			m.record(telemetry.Event{
				Kind:          telemetry.IntentResumption,
				IntentID:      id,
				DurationTicks: s.Tick.Since(it.LastReinforced),
			})
		}
		return delta
	}
	return Register(summary, confidence, s.Tick)
}

func (m *Manager) record(ev telemetry.Event) {
	if m.recorder != nil {
		m.recorder.Record(ev)
	}
}

// Register creates the IntentUpdate delta for a new planner-path intent.
// Initial confidence starts humble.
func Register(summary string, confidence float32, tick kernel.Tick) kernel.StateDelta {
	if confidence <= 0 {
		confidence = 0.5
	}
	return kernel.IntentUpdateDelta(kernel.LongHorizonIntent{
		ID:             uuid.NewString(),
		Summary:        summary,
		CreatedAt:      tick,
		LastReinforced: tick,
		Confidence:     confidence,
		Status:         kernel.IntentActive,
	})
}

// Reinforce returns the delta refreshing an existing intent: confidence
// boosted and clamped, a Suspended intent revived to Active. Returns false
// when the id is unknown.
func Reinforce(s *kernel.SharedState, id string, tick kernel.Tick) (kernel.StateDelta, bool) {
	it, ok := s.Intents[id]
	if !ok {
		return kernel.StateDelta{}, false
	}
	it.Confidence += reinforceBoost
	if it.Confidence > 1 {
		it.Confidence = 1
	}
	it.LastReinforced = tick
	it.Status = kernel.IntentActive
	return kernel.IntentUpdateDelta(it), true
}
