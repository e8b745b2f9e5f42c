package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseView() GateView {
	return GateView{
		GlobalUncertainty: 0.2,
		TicksSinceInput:   10,
		OutputAgeTicks:    5,
		Presence:          PresenceEngaged,
	}
}

func TestGateDenyOnUncertaintyBoundary(t *testing.T) {
	tun := DefaultGateTunables()

	view := baseView()
	view.GlobalUncertainty = 0.7
	assert.Equal(t, GateDeny, CheckGate(view, tun).Kind,
		"uncertainty bound is closed: exactly 0.7 denies")

	view.GlobalUncertainty = 0.699
	assert.NotEqual(t, GateDeny, CheckGate(view, tun).Kind)
}

func TestGateDenyOnConfidencePenalty(t *testing.T) {
	tun := DefaultGateTunables()

	view := baseView()
	view.Meta.ConfidencePenalty = 0.6
	assert.NotEqual(t, GateDeny, CheckGate(view, tun).Kind,
		"penalty bound is open: exactly 0.6 passes")

	view.Meta.ConfidencePenalty = 0.61
	assert.Equal(t, GateDeny, CheckGate(view, tun).Kind)
}

func TestGateDenyWhenSuspended(t *testing.T) {
	view := baseView()
	view.Presence = PresenceSuspended
	assert.Equal(t, GateDeny, CheckGate(view, DefaultGateTunables()).Kind)
}

func TestGateDelayDuringActivity(t *testing.T) {
	tun := DefaultGateTunables()

	view := baseView()
	view.TicksSinceInput = 1
	decision := CheckGate(view, tun)
	assert.Equal(t, GateDelay, decision.Kind)
	assert.Equal(t, uint64(2*tun.TickMs), decision.DelayMs,
		"delay covers the remaining quiescence window")
}

func TestGateAllowPartial(t *testing.T) {
	tun := DefaultGateTunables()

	// Moderate uncertainty caps at a soft commit.
	view := baseView()
	view.GlobalUncertainty = 0.5
	assert.Equal(t, GateAllowPartial, CheckGate(view, tun).Kind)

	// So does a draft younger than the hard-commit age floor.
	view = baseView()
	view.OutputAgeTicks = 1
	assert.Equal(t, GateAllowPartial, CheckGate(view, tun).Kind)
}

func TestGateAllowHard(t *testing.T) {
	assert.Equal(t, GateAllowHard, CheckGate(baseView(), DefaultGateTunables()).Kind)
}

func TestGateIdempotent(t *testing.T) {
	view := baseView()
	tun := DefaultGateTunables()
	first := CheckGate(view, tun)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, CheckGate(view, tun))
	}
}

func TestExtractSnapshotCopies(t *testing.T) {
	s := NewSharedState()
	s.Reduce(TickDelta(1))
	s.Reduce(InputReceivedDelta(InputEvent{Content: TextContent("remember the kettle")}))
	s.Reduce(InputReceivedDelta(InputEvent{Content: AudioContent(SpeechStart)}))
	s.Reduce(IntentUpdateDelta(LongHorizonIntent{ID: "a", Summary: "kettle", Confidence: 0.6, Status: IntentActive}))
	s.Reduce(IntentUpdateDelta(LongHorizonIntent{ID: "b", Summary: "paused", Confidence: 0.6, Status: IntentSuspended}))

	claims := []string{"user stated remember the kettle"}
	snap := ExtractSnapshot(s, 3, claims)

	assert.Equal(t, PlanningEpoch(3), snap.Epoch)
	assert.Equal(t, []string{"remember the kettle", "[speech start]"}, snap.RecentInputs)
	assert.Len(t, snap.ActiveIntents, 1, "suspended intents stay out of the snapshot")
	assert.True(t, snap.UserSpeaking)

	// Mutating the source slice must not leak into the snapshot.
	claims[0] = "tampered"
	assert.Equal(t, "user stated remember the kettle", snap.TopClaims[0])
}
