package telemetry

import "testing"

func TestRecorderRingBuffer(t *testing.T) {
	r := NewRecorder()

	for i := 0; i < maxEvents+50; i++ {
		r.Record(Event{Kind: SilencePeriod, DurationTicks: uint64(i)})
	}

	if r.Len() != maxEvents {
		t.Fatalf("len = %d, want %d", r.Len(), maxEvents)
	}
	events := r.Events()
	if got := events[0].DurationTicks; got != 50 {
		t.Fatalf("oldest = %d, want 50", got)
	}
	if got := events[len(events)-1].DurationTicks; got != maxEvents+49 {
		t.Fatalf("newest = %d, want %d", got, maxEvents+49)
	}
}

func TestComputeSnapshot(t *testing.T) {
	events := []Event{
		{Kind: PresenceTransition, To: "engaged"},
		{Kind: SilencePeriod, DurationTicks: 200},
		{Kind: SilencePeriod, DurationTicks: 400},
		{Kind: Interruption, CancelLatencyTicks: 2},
		{Kind: Interruption, CancelLatencyTicks: 4},
		{Kind: IntentLifecycle, To: "suspended"},
		{Kind: IntentLifecycle, To: "dissolved"},
		{Kind: IntentResumption, DurationTicks: 120},
		{Kind: MemoryEvent, MemoryKind: "candidate"},
		{Kind: MemoryEvent, MemoryKind: "promoted"},
		{Kind: MemoryEvent, MemoryKind: "consent_declined"},
		{Kind: PlanLifecycle, Phase: "dispatched"},
		{Kind: PlanLifecycle, Phase: "aborted"},
		{Kind: PlanLifecycle, Phase: "stale"},
	}

	snap := ComputeSnapshot(events)

	if snap.Silence.Periods != 2 || snap.Silence.TotalTicks != 600 || snap.Silence.MaxTicks != 400 {
		t.Fatalf("silence stats: %+v", snap.Silence)
	}
	if snap.Silence.AvgTicks != 300 {
		t.Fatalf("silence avg = %v", snap.Silence.AvgTicks)
	}
	if snap.Interruptions.Count != 2 || snap.Interruptions.AvgCancelTicks != 3 {
		t.Fatalf("interruption stats: %+v", snap.Interruptions)
	}
	if snap.Intents.Suspended != 1 || snap.Intents.Dissolved != 1 || snap.Intents.Resumed != 1 {
		t.Fatalf("intent stats: %+v", snap.Intents)
	}
	if snap.Memory.Candidates != 1 || snap.Memory.Promoted != 1 || snap.Memory.Declined != 1 {
		t.Fatalf("memory stats: %+v", snap.Memory)
	}
	if snap.Plans.Dispatched != 1 || snap.Plans.Aborted != 1 || snap.Plans.Stale != 1 {
		t.Fatalf("plan stats: %+v", snap.Plans)
	}
	if snap.PresenceMoves != 1 {
		t.Fatalf("presence moves = %d", snap.PresenceMoves)
	}
}

func TestSummarize(t *testing.T) {
	r := NewRecorder()
	r.Record(Event{Kind: SilencePeriod, DurationTicks: 500})
	r.Record(Event{Kind: Interruption})
	r.Record(Event{Kind: MemoryEvent, MemoryKind: "promoted"})

	sum := r.Summarize(1000)
	if sum.SilenceRatio != 0.5 {
		t.Fatalf("silence ratio = %v", sum.SilenceRatio)
	}
	if sum.Interruptions != 1 || sum.Promoted != 1 {
		t.Fatalf("summary: %+v", sum)
	}

	empty := NewRecorder().Summarize(0)
	if empty.SilenceRatio != 0 {
		t.Fatalf("zero-duration ratio = %v", empty.SilenceRatio)
	}
}
