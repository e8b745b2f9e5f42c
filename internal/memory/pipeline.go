package memory

import (
	"fmt"
	"strconv"

	"nexuscortex/internal/kernel"
	"nexuscortex/internal/telemetry"
)

// =============================================================================
// CONSOLIDATION PIPELINE
// =============================================================================
//
// The pipeline is the memory sidecar: observe -> working set -> episodic ->
// semantic, with consent gating on durable personal claims. It owns all
// three tiers; nothing else reads or writes them. It runs on the driver
// goroutine, so the telemetry recorder stays single-writer.

// Promotion thresholds.
const (
	// Working -> episodic: survived this many ticks, or burned hot enough.
	promoteAgeTicks  = 5
	promoteIntensity = 3.0

	// Episodic -> semantic: strong, explicitly asserted, seen twice.
	semanticConfidence   = 0.9
	semanticOccurrences  = 2

	// Episodic reinforcement bump per repeat observation.
	episodicReinforce = 0.15

	// DefaultEpisodicTTL evicts episodic entries not seen for this long.
	DefaultEpisodicTTL = 10_000
)

// pendingConsent tracks one promotion awaiting a user decision.
type pendingConsent struct {
	key     uint64
	asked   bool
	granted bool
}

// Tunables configures the pipeline.
type Tunables struct {
	EpisodicTTLTicks uint64
	// RequireConsent gates semantic promotion of user-subject claims
	// behind an explicit user decision.
	RequireConsent bool
}

// DefaultTunables returns the stock pipeline configuration.
func DefaultTunables() Tunables {
	return Tunables{EpisodicTTLTicks: DefaultEpisodicTTL, RequireConsent: true}
}

// Pipeline implements kernel.Sidecar, kernel.ClaimSource and
// kernel.ConsentSink.
type Pipeline struct {
	working  map[uint64]Candidate
	episodic EpisodicStore
	semantic SemanticStore
	consent  map[string]*pendingConsent
	tun      Tunables
	recorder *telemetry.Recorder
}

// NewPipeline wires the three tiers. recorder may be nil.
func NewPipeline(episodic EpisodicStore, semantic SemanticStore, tun Tunables, recorder *telemetry.Recorder) *Pipeline {
	if tun.EpisodicTTLTicks == 0 {
		tun.EpisodicTTLTicks = DefaultEpisodicTTL
	}
	return &Pipeline{
		working:  make(map[uint64]Candidate),
		episodic: episodic,
		semantic: semantic,
		consent:  make(map[string]*pendingConsent),
		tun:      tun,
		recorder: recorder,
	}
}

func (p *Pipeline) Name() string { return "memory" }

// WorkingSet exposes the candidate buffer for tests and hydration.
func (p *Pipeline) WorkingSet() []Candidate {
	out := make([]Candidate, 0, len(p.working))
	for _, c := range p.working {
		out = append(out, c)
	}
	return out
}

// Step runs one consolidation pass: ingest this tick's claims, then sweep
// the tiers for promotions and evictions.
func (p *Pipeline) Step(ctx *kernel.StepContext, s *kernel.SharedState) kernel.SidecarResult {
	var result kernel.SidecarResult

	// Consent answers carried on the tick context. ResolveConsent is
	// idempotent, so the driver's inbox shortcut delivering the same answer
	// is harmless.
	for _, c := range ctx.Consents {
		p.ResolveConsent(c.ConsentKey, c.Consent)
	}

	for _, claim := range observe(ctx, s) {
		p.ingest(claim, s.Tick)
	}

	p.sweepWorking(s.Tick)
	result.Effects = append(result.Effects, p.sweepEpisodic(s.Tick)...)

	return result
}

// ingest folds one observed claim into the working set, or reinforces the
// episodic entry it already graduated into.
func (p *Pipeline) ingest(claim Claim, tick kernel.Tick) {
	key := claim.KeyHash()

	if cand, ok := p.working[key]; ok {
		cand.Intensity += reinforceIntensity
		cand.LastSeen = tick
		cand.Occurrences++
		cand.Claim.Object = claim.Object
		p.working[key] = cand
		p.record(telemetry.Event{Kind: telemetry.MemoryEvent, MemoryKind: "reinforced", MemoryID: consentKey(key)})
		return
	}

	if entry, ok := p.episodic.GetByKey(key); ok {
		entry.Occurrences++
		entry.LastSeen = tick
		entry.Confidence = clamp1(entry.Confidence + episodicReinforce)
		entry.Claim.Object = claim.Object
		p.episodic.Put(entry)
		p.record(telemetry.Event{Kind: telemetry.MemoryEvent, MemoryKind: "reinforced", MemoryID: consentKey(key)})
		return
	}

	p.working[key] = Candidate{
		Claim:       claim,
		Intensity:   claim.Intensity,
		FirstSeen:   tick,
		LastSeen:    tick,
		Occurrences: 1,
	}
	p.record(telemetry.Event{Kind: telemetry.MemoryEvent, MemoryKind: "candidate", MemoryID: consentKey(key)})
}

// sweepWorking promotes candidates that aged past the window or burned hot.
func (p *Pipeline) sweepWorking(tick kernel.Tick) {
	for key, cand := range p.working {
		age := tick.Since(cand.FirstSeen)
		if age <= promoteAgeTicks && cand.Intensity <= promoteIntensity {
			continue
		}
		delete(p.working, key)
		p.episodic.Put(EpisodicEntry{
			Claim:       cand.Claim,
			Confidence:  clamp1(cand.Intensity / promoteIntensity),
			FirstSeen:   cand.FirstSeen,
			LastSeen:    cand.LastSeen,
			Occurrences: cand.Occurrences,
		})
		p.record(telemetry.Event{Kind: telemetry.MemoryEvent, MemoryKind: "promoted", MemoryID: consentKey(key)})
	}
}

// sweepEpisodic evicts expired entries and promotes stable asserted claims
// into the semantic tier, pausing at the consent gate for personal claims.
func (p *Pipeline) sweepEpisodic(tick kernel.Tick) []kernel.SideEffect {
	var effects []kernel.SideEffect

	for _, entry := range p.episodic.All() {
		key := entry.Claim.KeyHash()

		if tick.Since(entry.LastSeen) > p.tun.EpisodicTTLTicks {
			p.episodic.Delete(key)
			p.record(telemetry.Event{Kind: telemetry.MemoryEvent, MemoryKind: "evicted", MemoryID: consentKey(key)})
			continue
		}

		if entry.Confidence <= semanticConfidence ||
			entry.Claim.Modality != Asserted ||
			entry.Occurrences < semanticOccurrences {
			continue
		}

		if p.tun.RequireConsent && entry.Claim.Subject == EntityUser {
			ck := consentKey(key)
			pending, ok := p.consent[ck]
			if !ok {
				p.consent[ck] = &pendingConsent{key: key, asked: true}
				effects = append(effects, kernel.AskConsentEffect(ck))
				continue
			}
			if !pending.granted {
				continue
			}
			delete(p.consent, ck)
		}

		effects = append(effects, p.promote(entry, tick)...)
	}

	return effects
}

// promote writes one episodic entry into the semantic store.
func (p *Pipeline) promote(entry EpisodicEntry, tick kernel.Tick) []kernel.SideEffect {
	key := entry.Claim.KeyHash()
	sem := SemanticEntry{
		ID:          consentKey(key),
		Claim:       entry.Claim,
		Confidence:  entry.Confidence,
		StableSince: tick,
		Occurrences: entry.Occurrences,
	}
	if err := p.semantic.Put(sem); err != nil {
		return []kernel.SideEffect{kernel.LogEffect(fmt.Sprintf("semantic store put failed: %v", err))}
	}
	p.episodic.Delete(key)
	p.record(telemetry.Event{Kind: telemetry.MemoryEvent, MemoryKind: "promoted", MemoryID: sem.ID})
	return []kernel.SideEffect{kernel.LogEffect("memory promoted: " + sem.ID)}
}

// ResolveConsent settles one consent prompt. Idempotent: resolving an
// unknown or already-settled key is a no-op.
func (p *Pipeline) ResolveConsent(key string, outcome kernel.ConsentOutcome) {
	pending, ok := p.consent[key]
	if !ok {
		return
	}
	switch outcome {
	case kernel.ConsentGranted:
		pending.granted = true
	case kernel.ConsentDeclined:
		// The claim never becomes durable; the episodic copy goes too.
		p.episodic.Delete(pending.key)
		delete(p.consent, key)
		p.record(telemetry.Event{Kind: telemetry.MemoryEvent, MemoryKind: "consent_declined", MemoryID: key})
	case kernel.ConsentIgnored:
		// Stays episodic for the session; we do not re-ask.
	}
}

// TopClaims returns up to k claim summaries, semantic tier first.
func (p *Pipeline) TopClaims(k int) []string {
	var out []string

	if entries, err := p.semantic.TopK(nil, k); err == nil {
		for _, e := range entries {
			out = append(out, e.Claim.Summary())
		}
	}
	for _, e := range p.episodic.All() {
		if len(out) >= k {
			break
		}
		out = append(out, e.Claim.Summary())
	}
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Recall ranks semantic memories against a free-text query.
func (p *Pipeline) Recall(query string, k int) ([]SemanticEntry, error) {
	return p.semantic.TopK(Embed(query), k)
}

func (p *Pipeline) record(ev telemetry.Event) {
	if p.recorder != nil {
		p.recorder.Record(ev)
	}
}

func consentKey(key uint64) string {
	return strconv.FormatUint(key, 16)
}

func clamp1(v float32) float32 {
	if v > 1 {
		return 1
	}
	return v
}
