// Package monitor implements the self-observation sidecar: it watches the
// stream of inputs and output transitions for evidence about how the
// system's externalizations land, and adjusts the meta-latents that bias
// the crystallization gate.
package monitor

import (
	"fmt"

	"nexuscortex/internal/kernel"
)

// Observation classifies one metacognitive event.
type Observation int

const (
	// UnexpectedInterruption: user input arrived while an output was in
	// Draft or SoftCommit.
	UnexpectedInterruption Observation = iota
	// UserCorrection: user text within correctionWindow ticks of a
	// SoftCommit.
	UserCorrection
	// ResponseTruncation: an output moved Draft -> Canceled with partial
	// content.
	ResponseTruncation
	// StableAlignment: a HardCommit survived alignmentWindow ticks with
	// no interruption.
	StableAlignment
)

func (o Observation) String() string {
	switch o {
	case UnexpectedInterruption:
		return "unexpected_interruption"
	case UserCorrection:
		return "user_correction"
	case ResponseTruncation:
		return "response_truncation"
	case StableAlignment:
		return "stable_alignment"
	default:
		return fmt.Sprintf("observation(%d)", int(o))
	}
}

const (
	correctionWindow = 4
	alignmentWindow  = 6

	interruptionBoost = 0.15
	correctionPenalty = 0.20
	truncationBoost   = 0.10
	healFactor        = 0.85
	decayFactor       = 0.98
)

// Monitor is a stateful sidecar: it remembers output statuses across ticks
// to detect transitions, and pending hard commits to detect alignment.
type Monitor struct {
	prevStatus  map[kernel.OutputId]kernel.OutputStatus
	prevContent map[kernel.OutputId]string
	pendingHard map[kernel.OutputId]kernel.Tick

	lastObservations []Observation
}

// New returns an empty monitor.
func New() *Monitor {
	return &Monitor{
		prevStatus:  make(map[kernel.OutputId]kernel.OutputStatus),
		prevContent: make(map[kernel.OutputId]string),
		pendingHard: make(map[kernel.OutputId]kernel.Tick),
	}
}

func (m *Monitor) Name() string { return "monitor" }

// LastObservations returns the observations from the most recent step.
func (m *Monitor) LastObservations() []Observation { return m.lastObservations }

// Step classifies this tick's observations and emits one MetaLatentUpdate.
// With no observations the meta-latents decay geometrically toward zero.
func (m *Monitor) Step(ctx *kernel.StepContext, s *kernel.SharedState) kernel.SidecarResult {
	obs := m.classify(ctx, s)
	m.lastObservations = obs

	meta := s.Meta
	if len(obs) == 0 {
		meta.ConfidencePenalty *= decayFactor
		meta.InterruptionSensitivity *= decayFactor
	} else {
		for _, o := range obs {
			switch o {
			case UnexpectedInterruption:
				meta.InterruptionSensitivity += interruptionBoost
			case UserCorrection:
				meta.ConfidencePenalty += correctionPenalty
			case ResponseTruncation:
				meta.InterruptionSensitivity += truncationBoost
			case StableAlignment:
				meta.ConfidencePenalty *= healFactor
				meta.InterruptionSensitivity *= healFactor
			}
		}
	}

	m.remember(s)

	var effects []kernel.SideEffect
	for _, o := range obs {
		effects = append(effects, kernel.LogEffect("self-observation: "+o.String()))
	}

	return kernel.SidecarResult{
		Deltas:  []kernel.StateDelta{kernel.MetaLatentUpdateDelta(meta)},
		Effects: effects,
	}
}

func (m *Monitor) classify(ctx *kernel.StepContext, s *kernel.SharedState) []Observation {
	var obs []Observation

	userText := false
	for _, in := range ctx.Inputs {
		if in.Content.Kind == kernel.ContentText {
			userText = true
		}
	}

	// Interruption while externalizing.
	if ctx.JustInterrupted && s.PendingOutputs() {
		obs = append(obs, UnexpectedInterruption)
		// An interrupted hard commit no longer counts as aligned.
		for id := range m.pendingHard {
			delete(m.pendingHard, id)
		}
	}

	// Correction shortly after a soft commit.
	if userText {
		for _, out := range s.Outputs {
			if out.Status == kernel.StatusSoftCommit && out.Committed &&
				s.Tick.Since(out.CommittedAt) <= correctionWindow {
				obs = append(obs, UserCorrection)
				break
			}
		}
	}

	// Transition scan against last tick's statuses.
	for id, prev := range m.prevStatus {
		out, ok := s.Outputs[id]
		if !ok {
			delete(m.prevStatus, id)
			delete(m.prevContent, id)
			continue
		}
		if prev == kernel.StatusDraft && out.Status == kernel.StatusCanceled &&
			m.prevContent[id] != "" {
			obs = append(obs, ResponseTruncation)
		}
		if prev != kernel.StatusHardCommit && out.Status == kernel.StatusHardCommit {
			m.pendingHard[id] = s.Tick
		}
	}

	// Hard commits that survived the alignment window uninterrupted.
	if ctx.JustInterrupted {
		for id := range m.pendingHard {
			delete(m.pendingHard, id)
		}
	} else {
		for id, at := range m.pendingHard {
			if s.Tick.Since(at) >= alignmentWindow {
				obs = append(obs, StableAlignment)
				delete(m.pendingHard, id)
			}
		}
	}

	return obs
}

func (m *Monitor) remember(s *kernel.SharedState) {
	for id, out := range s.Outputs {
		m.prevStatus[id] = out.Status
		m.prevContent[id] = out.Content
	}
}
