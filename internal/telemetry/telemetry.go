// Package telemetry records content-free operational events for the
// cognitive kernel. Allowed payloads are ids, ticks, durations, counts and
// enum names; text, audio, embeddings and anything derived from user
// content are forbidden by the presence contract.
package telemetry

// EventKind enumerates the recordable event families.
type EventKind int

const (
	PresenceTransition EventKind = iota
	SilencePeriod
	OutputLifecycle
	Interruption
	IntentLifecycle
	IntentResumption
	MemoryEvent
	PlanLifecycle
)

// Event is one telemetry record. Only the fields relevant to Kind are set;
// every field is content-free.
type Event struct {
	Kind EventKind

	From string // PresenceTransition / IntentLifecycle
	To   string // PresenceTransition / IntentLifecycle

	DurationTicks uint64 // SilencePeriod / IntentResumption

	OutputID     string // OutputLifecycle
	OutputStatus string // OutputLifecycle

	CancelLatencyTicks uint64 // Interruption

	IntentID string // IntentLifecycle / IntentResumption

	MemoryKind string // MemoryEvent: candidate/reinforced/promoted/evicted/consent_declined
	MemoryID   string // MemoryEvent

	Epoch uint64 // PlanLifecycle
	Phase string // PlanLifecycle: dispatched/resolved/aborted/stale
}

// maxEvents bounds the ring buffer.
const maxEvents = 10_000

// Recorder is a bounded in-memory event buffer. Single-writer: every
// record happens on the driver goroutine (the driver itself, the reactor,
// or a sidecar inside the tick step).
type Recorder struct {
	events []Event
	start  int
	count  int
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{events: make([]Event, maxEvents)}
}

// Record appends one event, evicting the oldest at capacity.
func (r *Recorder) Record(ev Event) {
	if r.count < maxEvents {
		r.events[(r.start+r.count)%maxEvents] = ev
		r.count++
		return
	}
	r.events[r.start] = ev
	r.start = (r.start + 1) % maxEvents
}

// Len returns the number of buffered events.
func (r *Recorder) Len() int { return r.count }

// Events returns the buffered events oldest-first.
func (r *Recorder) Events() []Event {
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.events[(r.start+i)%maxEvents])
	}
	return out
}

// Snapshot aggregates the buffer. Pure over the recorded events.
func (r *Recorder) Snapshot() Snapshot {
	return ComputeSnapshot(r.Events())
}

// Snapshot is the aggregate view of a recorder.
type Snapshot struct {
	Silence       SilenceStats
	Interruptions InterruptionStats
	Intents       IntentStats
	Memory        MemoryStats
	Plans         PlanStats
	PresenceMoves uint64
}

type SilenceStats struct {
	Periods    uint64
	TotalTicks uint64
	MaxTicks   uint64
	AvgTicks   float64
}

type InterruptionStats struct {
	Count          uint64
	TotalLatency   uint64
	AvgCancelTicks float64
}

type IntentStats struct {
	Suspended uint64
	Resumed   uint64
	Dissolved uint64
}

type MemoryStats struct {
	Candidates uint64
	Reinforced uint64
	Promoted   uint64
	Evicted    uint64
	Declined   uint64
}

type PlanStats struct {
	Dispatched uint64
	Resolved   uint64
	Aborted    uint64
	Stale      uint64
}

// ComputeSnapshot folds events into aggregate statistics.
func ComputeSnapshot(events []Event) Snapshot {
	var snap Snapshot
	for _, ev := range events {
		switch ev.Kind {
		case PresenceTransition:
			snap.PresenceMoves++
		case SilencePeriod:
			snap.Silence.Periods++
			snap.Silence.TotalTicks += ev.DurationTicks
			if ev.DurationTicks > snap.Silence.MaxTicks {
				snap.Silence.MaxTicks = ev.DurationTicks
			}
		case Interruption:
			snap.Interruptions.Count++
			snap.Interruptions.TotalLatency += ev.CancelLatencyTicks
		case IntentLifecycle:
			switch ev.To {
			case "suspended":
				snap.Intents.Suspended++
			case "dissolved":
				snap.Intents.Dissolved++
			}
		case IntentResumption:
			snap.Intents.Resumed++
		case MemoryEvent:
			switch ev.MemoryKind {
			case "candidate":
				snap.Memory.Candidates++
			case "reinforced":
				snap.Memory.Reinforced++
			case "promoted":
				snap.Memory.Promoted++
			case "evicted":
				snap.Memory.Evicted++
			case "consent_declined":
				snap.Memory.Declined++
			}
		case PlanLifecycle:
			switch ev.Phase {
			case "dispatched":
				snap.Plans.Dispatched++
			case "resolved":
				snap.Plans.Resolved++
			case "aborted":
				snap.Plans.Aborted++
			case "stale":
				snap.Plans.Stale++
			}
		}
	}
	if snap.Silence.Periods > 0 {
		snap.Silence.AvgTicks = float64(snap.Silence.TotalTicks) / float64(snap.Silence.Periods)
	}
	if snap.Interruptions.Count > 0 {
		snap.Interruptions.AvgCancelTicks = float64(snap.Interruptions.TotalLatency) / float64(snap.Interruptions.Count)
	}
	return snap
}

// SessionSummary is the shutdown aggregate.
type SessionSummary struct {
	DurationTicks uint64
	SilenceRatio  float64
	Interruptions uint64
	Resumed       uint64
	Promoted      uint64
}

// Summarize folds the buffer into a session summary.
func (r *Recorder) Summarize(durationTicks uint64) SessionSummary {
	snap := r.Snapshot()
	var ratio float64
	if durationTicks > 0 {
		ratio = float64(snap.Silence.TotalTicks) / float64(durationTicks)
	}
	return SessionSummary{
		DurationTicks: durationTicks,
		SilenceRatio:  ratio,
		Interruptions: snap.Interruptions.Count,
		Resumed:       snap.Intents.Resumed,
		Promoted:      snap.Memory.Promoted,
	}
}
