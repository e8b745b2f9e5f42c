package kernel

// PresenceTunables holds the presence projection windows.
type PresenceTunables struct {
	AttentiveWindowTicks uint64
}

// DefaultPresenceTunables mirrors the configuration defaults.
func DefaultPresenceTunables() PresenceTunables {
	return PresenceTunables{AttentiveWindowTicks: 50}
}

// PresenceOf derives the presence state from SharedState. Presence is a
// projection, never stored independently: same state, same presence.
// Rules evaluate top to bottom.
func PresenceOf(s *SharedState, tun PresenceTunables) PresenceState {
	if s.UserSuspended {
		return PresenceSuspended
	}
	if s.PendingOutputs() || s.ActivePlan != nil {
		return PresenceEngaged
	}
	if s.MicOn || (s.HasSignalInput && s.TicksSinceSignal() < tun.AttentiveWindowTicks) {
		return PresenceAttentive
	}
	if s.ActiveIntentCount() > 0 {
		return PresenceQuietlyHolding
	}
	return PresenceDormant
}
