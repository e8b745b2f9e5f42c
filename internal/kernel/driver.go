package kernel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"nexuscortex/internal/telemetry"
)

// =============================================================================
// DRIVER - THE ASYNC EDGE OF THE CORE
// =============================================================================
//
// The driver is the single owner of SharedState. It enforces the tick
// cadence, drains the inbox, runs the synchronous step, and executes the
// returned side effects. No other task ever touches the state.

// PlanDispatcher launches and aborts planner requests. Implementations run
// on the async side and deliver completions through the inbox.
type PlanDispatcher interface {
	Dispatch(snap StateSnapshot, epoch PlanningEpoch)
	Abort(epoch PlanningEpoch)
}

// Realizer externalizes committed speech. Implementations must not block.
type Realizer interface {
	Speak(id OutputId, text string)
}

// ConsentSink receives consent resolutions routed from the inbox.
type ConsentSink interface {
	ResolveConsent(key string, outcome ConsentOutcome)
}

// inboxCapacity bounds the event queue; adapters drop on overflow rather
// than block capture threads.
const inboxCapacity = 256

// Driver runs the reactor at a fixed cadence.
type Driver struct {
	state    *SharedState
	reactor  *Reactor
	inbox    chan Event
	outbox   chan UIEvent
	planner  PlanDispatcher
	realizer Realizer
	consent  ConsentSink
	recorder *telemetry.Recorder
	log      *zap.Logger
	interval time.Duration

	lastCommitTick Tick
}

// DriverConfig wires a driver. Planner, Realizer and Consent may be nil.
type DriverConfig struct {
	Reactor  *Reactor
	State    *SharedState
	Planner  PlanDispatcher
	Realizer Realizer
	Consent  ConsentSink
	Recorder *telemetry.Recorder
	Logger   *zap.Logger
	Interval time.Duration
	// Outbox receives UI events; nil means events are dropped.
	Outbox chan UIEvent
}

// NewDriver builds a driver from config, applying defaults.
func NewDriver(cfg DriverConfig) *Driver {
	if cfg.State == nil {
		cfg.State = NewSharedState()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = telemetry.NewRecorder()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickInterval
	}
	if cfg.Reactor != nil {
		cfg.Reactor.recorder = cfg.Recorder
	}
	return &Driver{
		state:    cfg.State,
		reactor:  cfg.Reactor,
		inbox:    make(chan Event, inboxCapacity),
		outbox:   cfg.Outbox,
		planner:  cfg.Planner,
		realizer: cfg.Realizer,
		consent:  cfg.Consent,
		recorder: cfg.Recorder,
		log:      cfg.Logger,
		interval: cfg.Interval,
	}
}

// Submit queues an event for the next tick. Non-blocking: when the inbox
// is full the event is dropped and counted, never awaited. Capture
// degradation is silence, not back-pressure.
func (d *Driver) Submit(ev Event) bool {
	select {
	case d.inbox <- ev:
		return true
	default:
		d.log.Warn("inbox full, event dropped")
		return false
	}
}

// SetPlanner attaches the planner client after construction. The client
// needs Submit to deliver results, so the wiring is two-phase.
func (d *Driver) SetPlanner(p PlanDispatcher) { d.planner = p }

// State exposes the shared state for tests and the step loop. Callers
// outside the driver goroutine must not retain it.
func (d *Driver) State() *SharedState { return d.state }

// Recorder exposes the telemetry recorder.
func (d *Driver) Recorder() *telemetry.Recorder { return d.recorder }

// Run drives the tick cadence until ctx is canceled. On exit it logs the
// session summary. Returns a non-nil error only on a fatal invariant
// violation.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.log.Info("reactor pipeline started",
		zap.Duration("tick_interval", d.interval))

	for {
		select {
		case <-ctx.Done():
			summary := d.recorder.Summarize(uint64(d.state.Tick))
			d.log.Info("session summary",
				zap.Uint64("duration_ticks", summary.DurationTicks),
				zap.Float64("silence_ratio", summary.SilenceRatio),
				zap.Uint64("interruptions", summary.Interruptions),
				zap.Uint64("resumed_intents", summary.Resumed),
				zap.Uint64("memory_promotions", summary.Promoted))
			return nil
		case <-ticker.C:
			if err := d.Step(); err != nil {
				return err
			}
		}
	}
}

// Step executes exactly one tick: drain, step, effects. Exposed so tests
// and replay harnesses can drive the kernel without wall time.
func (d *Driver) Step() error {
	events := d.drain()
	outcome := d.reactor.TickStep(d.state, events)
	for _, effect := range outcome.SideEffects {
		if err := d.execute(effect); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) drain() []Event {
	var events []Event
	for {
		select {
		case ev := <-d.inbox:
			if ev.Ui != nil && ev.Ui.Kind == UiConsentResolved && d.consent != nil {
				d.consent.ResolveConsent(ev.Ui.ConsentKey, ev.Ui.Consent)
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

// execute performs one side effect. Fatal log effects abort the driver;
// everything else is best-effort.
func (d *Driver) execute(effect SideEffect) error {
	switch effect.Kind {
	case EffectLog:
		if strings.HasPrefix(effect.Message, "fatal:") {
			d.log.Error(effect.Message)
			return fmt.Errorf("kernel invariant violation: %s", effect.Message)
		}
		d.log.Debug(effect.Message, zap.Uint64("tick", uint64(d.state.Tick)))
	case EffectSpeak:
		if d.realizer != nil {
			d.realizer.Speak(effect.OutputID, effect.Text)
		}
	case EffectEmitUI:
		d.recordUI(effect.UI)
		if d.outbox != nil {
			select {
			case d.outbox <- effect.UI:
			default:
				// A slow UI never stalls the kernel.
			}
		}
	case EffectDispatchPlan:
		d.recorder.Record(telemetry.Event{
			Kind: telemetry.PlanLifecycle, Epoch: uint64(effect.Epoch), Phase: "dispatched",
		})
		if d.planner != nil {
			d.planner.Dispatch(effect.Snapshot, effect.Epoch)
		}
	case EffectAbortPlan:
		d.recorder.Record(telemetry.Event{
			Kind: telemetry.PlanLifecycle, Epoch: uint64(effect.Epoch), Phase: "aborted",
		})
		if d.planner != nil {
			d.planner.Abort(effect.Epoch)
		}
	case EffectSelfWake:
		d.log.Debug("self-wake armed", zap.Uint64("after_ticks", effect.AfterTicks))
	case EffectAskConsent:
		d.recordUI(UIEvent{Kind: UIAskMemoryConsent, ConsentKey: effect.ConsentKey})
		if d.outbox != nil {
			select {
			case d.outbox <- UIEvent{Kind: UIAskMemoryConsent, ConsentKey: effect.ConsentKey}:
			default:
			}
		}
	}
	return nil
}

func (d *Driver) recordUI(ev UIEvent) {
	switch ev.Kind {
	case UIPresenceUpdate:
		d.recorder.Record(telemetry.Event{
			Kind: telemetry.PresenceTransition, To: ev.Presence.String(),
		})
	case UIOutputEvent:
		if ev.Output == nil {
			return
		}
		d.recorder.Record(telemetry.Event{
			Kind:         telemetry.OutputLifecycle,
			OutputID:     ev.Output.ID.String(),
			OutputStatus: ev.Output.Status.String(),
		})
		if ev.Output.Status == StatusSoftCommit || ev.Output.Status == StatusHardCommit {
			if d.lastCommitTick > 0 {
				if gap := d.state.Tick.Since(d.lastCommitTick); gap > 100 {
					d.recorder.Record(telemetry.Event{
						Kind: telemetry.SilencePeriod, DurationTicks: gap,
					})
				}
			}
			d.lastCommitTick = d.state.Tick
		}
	}
}
