package kernel

import "fmt"

// IntentStatus is the long-horizon intent lifecycle. Dissolved is terminal.
type IntentStatus int

const (
	IntentActive IntentStatus = iota
	IntentSuspended
	IntentDissolved
)

func (s IntentStatus) String() string {
	switch s {
	case IntentActive:
		return "active"
	case IntentSuspended:
		return "suspended"
	case IntentDissolved:
		return "dissolved"
	default:
		return fmt.Sprintf("intent_status(%d)", int(s))
	}
}

// LongHorizonIntent is a goal the kernel holds across ticks. Intents enter
// state only via planner-path IntentUpdate deltas; sidecars decay and
// suspend them but never raise them.
type LongHorizonIntent struct {
	ID             string
	Summary        string
	CreatedAt      Tick
	LastReinforced Tick
	Confidence     float32
	Status         IntentStatus
}
