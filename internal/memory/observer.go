package memory

import (
	"strings"

	"nexuscortex/internal/kernel"
)

// =============================================================================
// OBSERVER - CLAIM SYNTHESIS
// =============================================================================
//
// The observer turns this tick's cognition into claim candidates. It reads
// the step context and state, never mutates either, and never stores raw
// payloads larger than the claim text itself.

const (
	// initialIntensity seeds a fresh candidate; reinforceIntensity is added
	// each time the same (subject, predicate) shows up again.
	initialIntensity   = 1.0
	reinforceIntensity = 0.5

	// stableLatentConfidence is the floor above which a latent slot is
	// considered evidence of sustained perception.
	stableLatentConfidence = 0.7
)

// observe synthesizes the claims suggested by this tick.
func observe(ctx *kernel.StepContext, s *kernel.SharedState) []Claim {
	var claims []Claim

	for _, in := range ctx.Inputs {
		switch in.Content.Kind {
		case kernel.ContentText:
			claims = append(claims, claimsFromText(in.Content.Text, s.Tick)...)
		case kernel.ContentAudio:
			if in.Content.Audio == kernel.SpeechEnd && s.Hesitation {
				claims = append(claims, Claim{
					Subject:   EntityUser,
					Predicate: "hesitated",
					Object:    BoolValue(true),
					Modality:  Observed,
					FirstSeen: s.Tick,
					Intensity: initialIntensity,
				})
			}
		}
	}

	for key, slot := range s.Latents.Slots {
		if slot.Confidence > stableLatentConfidence && slot.Modality != kernel.ModalityText {
			claims = append(claims, Claim{
				Subject:   EntitySystem,
				Predicate: "perceiving:" + key,
				Object:    TextValue(slot.Modality.String() + " signal stable"),
				Modality:  Observed,
				FirstSeen: s.Tick,
				Intensity: initialIntensity,
			})
		}
	}

	return claims
}

// claimsFromText extracts assertions from one user utterance. Deliberately
// shallow: a first-person statement becomes an Asserted claim about the
// user, everything else an Asserted topic claim keyed by the leading words.
func claimsFromText(text string, tick kernel.Tick) []Claim {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	lower := strings.ToLower(trimmed)
	subject := TopicEntity(topicKey(lower))
	predicate := "mentioned"
	if firstPerson(lower) {
		subject = EntityUser
		predicate = "stated"
	}

	return []Claim{{
		Subject:   subject,
		Predicate: predicate,
		Object:    TextValue(trimmed),
		Modality:  Asserted,
		FirstSeen: tick,
		Intensity: initialIntensity,
	}}
}

func firstPerson(lower string) bool {
	for _, prefix := range []string{"i ", "i'", "my ", "we ", "our "} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// topicKey keys a topic claim by its first few words so restatements of the
// same thought reinforce instead of fanning out.
func topicKey(lower string) string {
	fields := strings.Fields(lower)
	if len(fields) > 3 {
		fields = fields[:3]
	}
	return strings.Join(fields, "-")
}
