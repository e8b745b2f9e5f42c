package kernel

import "fmt"

// =============================================================================
// INPUT EVENTS
// =============================================================================

// Modality identifies which perceptual channel a signal arrived on.
type Modality int

const (
	ModalityAudio Modality = iota
	ModalityVisual
	ModalityText
)

func (m Modality) String() string {
	switch m {
	case ModalityAudio:
		return "audio"
	case ModalityVisual:
		return "visual"
	case ModalityText:
		return "text"
	default:
		return fmt.Sprintf("modality(%d)", int(m))
	}
}

// AudioSignal marks voice-activity boundaries reported by the audio adapter.
type AudioSignal int

const (
	SpeechStart AudioSignal = iota
	SpeechEnd
)

// VisualSignal carries a perceptual hash sample from the vision adapter.
// Distance is the Hamming distance to the previous sample.
type VisualSignal struct {
	Hash     uint64
	Distance uint32
}

// InputContent is the sum of payloads an InputEvent may carry. Exactly one
// branch is populated, selected by Kind.
type InputContentKind int

const (
	ContentText InputContentKind = iota
	ContentAudio
	ContentVisual
)

type InputContent struct {
	Kind   InputContentKind
	Text   string
	Audio  AudioSignal
	Visual VisualSignal
}

// TextContent builds a text payload.
func TextContent(s string) InputContent {
	return InputContent{Kind: ContentText, Text: s}
}

// AudioContent builds a voice-activity payload.
func AudioContent(sig AudioSignal) InputContent {
	return InputContent{Kind: ContentAudio, Audio: sig}
}

// VisualContent builds a perceptual-hash payload.
func VisualContent(hash uint64, distance uint32) InputContent {
	return InputContent{Kind: ContentVisual, Visual: VisualSignal{Hash: hash, Distance: distance}}
}

// InputEvent is an external observation entering the kernel.
// DedupKey is opt-in: when non-empty, a second event carrying the same key
// within the recent-input window is dropped by the reducer.
type InputEvent struct {
	Source   string
	Content  InputContent
	DedupKey string
}

// IsInterrupting reports whether this event invalidates in-flight planning:
// user text or the start of user speech.
func (e InputEvent) IsInterrupting() bool {
	switch e.Content.Kind {
	case ContentText:
		return true
	case ContentAudio:
		return e.Content.Audio == SpeechStart
	default:
		return false
	}
}

// =============================================================================
// OUTPUTS
// =============================================================================

// OutputId is deterministic: the tick the output was proposed on plus the
// ordinal of the intent that produced it within that tick.
type OutputId struct {
	Tick    Tick
	Ordinal uint16
}

func (id OutputId) String() string {
	return fmt.Sprintf("out-%d.%d", id.Tick, id.Ordinal)
}

// OutputStatus is the output lifecycle. Transitions may only advance along
// Draft -> SoftCommit -> HardCommit, or move to Canceled from a non-Hard
// state. HardCommit is terminal and irrevocable.
type OutputStatus int

const (
	StatusDraft OutputStatus = iota
	StatusSoftCommit
	StatusHardCommit
	StatusCanceled
)

func (s OutputStatus) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusSoftCommit:
		return "soft_commit"
	case StatusHardCommit:
		return "hard_commit"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further transition is legal from s.
func (s OutputStatus) Terminal() bool {
	return s == StatusHardCommit || s == StatusCanceled
}

// CanAdvanceTo reports whether the transition s -> next is legal.
func (s OutputStatus) CanAdvanceTo(next OutputStatus) bool {
	switch next {
	case StatusSoftCommit:
		return s == StatusDraft
	case StatusHardCommit:
		return s == StatusDraft || s == StatusSoftCommit
	case StatusCanceled:
		return s == StatusDraft || s == StatusSoftCommit
	default:
		return false
	}
}

// Output is a unit of externalized thought managed by the kernel.
type Output struct {
	ID          OutputId
	Content     string
	Status      OutputStatus
	ProposedAt  Tick
	CommittedAt Tick // zero until first commit
	Committed   bool
	OriginEpoch PlanningEpoch
	RevisionOf  *OutputId // set when this output revises a prior statement
}

// =============================================================================
// INBOX / OUTBOX
// =============================================================================

// UiCommandKind enumerates control-plane commands from the UI shell.
type UiCommandKind int

const (
	UiAttach UiCommandKind = iota
	UiSuspend
	UiResume
	UiToggleMic
	UiConsentResolved
)

// ConsentOutcome is the user's answer to a memory-consent prompt.
type ConsentOutcome int

const (
	ConsentGranted ConsentOutcome = iota
	ConsentDeclined
	ConsentIgnored
)

// UiCommand is a typed control message from the UI shell.
type UiCommand struct {
	Kind       UiCommandKind
	MicOn      bool           // UiToggleMic
	ConsentKey string         // UiConsentResolved
	Consent    ConsentOutcome // UiConsentResolved
}

// Event is an inbox message. Exactly one field group is populated.
type Event struct {
	Input      *InputEvent
	PlanResult *PlanResult
	Ui         *UiCommand
}

// PresenceState is the externally observable lifecycle projection.
type PresenceState int

const (
	PresenceDormant PresenceState = iota
	PresenceAttentive
	PresenceEngaged
	PresenceQuietlyHolding
	PresenceSuspended
)

func (p PresenceState) String() string {
	switch p {
	case PresenceDormant:
		return "dormant"
	case PresenceAttentive:
		return "attentive"
	case PresenceEngaged:
		return "engaged"
	case PresenceQuietlyHolding:
		return "quietly_holding"
	case PresenceSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("presence(%d)", int(p))
	}
}

// UIEventKind enumerates outbox messages for the UI shell.
type UIEventKind int

const (
	UIPresenceUpdate UIEventKind = iota
	UIOutputEvent
	UIContextSnapshot
	UIAskMemoryConsent
	UIAccessDenied
)

// ContextItem is one entry of a UI hydration snapshot.
type ContextItem struct {
	Content string
	Role    string
}

// UIEvent is an outbox message for the UI shell.
type UIEvent struct {
	Kind       UIEventKind
	Presence   PresenceState // UIPresenceUpdate
	Output     *Output       // UIOutputEvent
	Context    []ContextItem // UIContextSnapshot
	ConsentKey string        // UIAskMemoryConsent
}
