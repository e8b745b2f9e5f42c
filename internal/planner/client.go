// Package planner implements the async planner client: it renders state
// snapshots into prompts for a local llama.cpp-compatible completion
// server, parses the replies into intents, and delivers epoch-tagged
// results back through the kernel inbox. Cancellation is best-effort; the
// reducer's epoch check is the authoritative discard.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"nexuscortex/internal/kernel"
)

// DefaultTimeout bounds one planner round trip.
const DefaultTimeout = 200 * time.Millisecond

// Submitter delivers a completion into the kernel inbox. Matches
// kernel.Driver.Submit.
type Submitter func(ev kernel.Event) bool

// Options configures a client.
type Options struct {
	// BaseURL of the completion server, e.g. "http://localhost:8080".
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
	// HTTPClient may be overridden for tests.
	HTTPClient *http.Client
}

// Client dispatches planner requests. One request per epoch; Abort cancels
// a specific epoch's context.
type Client struct {
	base    string
	timeout time.Duration
	http    *http.Client
	submit  Submitter
	log     *zap.Logger

	mu      sync.Mutex
	cancels map[kernel.PlanningEpoch]context.CancelFunc
}

// NewClient builds a planner client delivering results through submit.
func NewClient(opts Options, submit Submitter) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		http:    opts.HTTPClient,
		submit:  submit,
		log:     opts.Logger.Named("planner"),
		cancels: make(map[kernel.PlanningEpoch]context.CancelFunc),
	}
}

// Dispatch launches one planning request for the given epoch. Returns
// immediately; the result arrives through the submitter.
func (c *Client) Dispatch(snap kernel.StateSnapshot, epoch kernel.PlanningEpoch) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)

	c.mu.Lock()
	c.cancels[epoch] = cancel
	c.mu.Unlock()

	go func() {
		defer c.release(epoch)

		intent, perr := c.complete(ctx, snap)
		result := kernel.PlanResult{Epoch: epoch}
		if perr != nil {
			result.Err = perr
			c.log.Debug("plan failed",
				zap.Uint64("epoch", uint64(epoch)),
				zap.String("kind", perr.Kind.String()))
		} else {
			result.Intent = intent
		}
		c.submit(kernel.Event{PlanResult: &result})
	}()
}

// Abort cancels the in-flight request for epoch, if any. Idempotent.
func (c *Client) Abort(epoch kernel.PlanningEpoch) {
	c.mu.Lock()
	cancel, ok := c.cancels[epoch]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

func (c *Client) release(epoch kernel.PlanningEpoch) {
	c.mu.Lock()
	if cancel, ok := c.cancels[epoch]; ok {
		cancel()
		delete(c.cancels, epoch)
	}
	c.mu.Unlock()
}

// completionRequest is the llama.cpp /completion payload.
type completionRequest struct {
	Prompt      string  `json:"prompt"`
	NPredict    int     `json:"n_predict"`
	Temperature float64 `json:"temperature"`
	CachePrompt bool    `json:"cache_prompt"`
}

type completionResponse struct {
	Content string `json:"content"`
}

// decision is the JSON shape the model is asked to emit.
type decision struct {
	Action     string  `json:"action"`
	Confidence float32 `json:"confidence"`
	DelayTicks uint64  `json:"delay_ticks"`
	Context    string  `json:"context"`
	Ref        string  `json:"ref"`
	Correction string  `json:"correction"`
}

func (c *Client) complete(ctx context.Context, snap kernel.StateSnapshot) (*kernel.Intent, *kernel.PlannerError) {
	body, err := json.Marshal(completionRequest{
		Prompt:      buildPrompt(snap),
		NPredict:    128,
		Temperature: 0.2,
		CachePrompt: true,
	})
	if err != nil {
		return nil, &kernel.PlannerError{Kind: kernel.PlannerMalformed, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/completion", bytes.NewReader(body))
	if err != nil {
		return nil, &kernel.PlannerError{Kind: kernel.PlannerTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &kernel.PlannerError{
			Kind: kernel.PlannerTransport,
			Err:  fmt.Errorf("completion server returned %d", resp.StatusCode),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}

	var completion completionResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		return nil, &kernel.PlannerError{Kind: kernel.PlannerMalformed, Err: err}
	}

	return parseDecision(completion.Content)
}

// classifyTransport separates deadline, abort and plain transport failures.
func classifyTransport(ctx context.Context, err error) *kernel.PlannerError {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &kernel.PlannerError{Kind: kernel.PlannerTimeout, Err: err}
	case errors.Is(ctx.Err(), context.Canceled):
		return &kernel.PlannerError{Kind: kernel.PlannerAborted, Err: err}
	default:
		return &kernel.PlannerError{Kind: kernel.PlannerTransport, Err: err}
	}
}

// parseDecision maps the model's JSON decision to a kernel intent.
// Unparseable or unknown decisions are Malformed, never silently DoNothing.
func parseDecision(content string) (*kernel.Intent, *kernel.PlannerError) {
	jsonBody := extractJSON(content)
	if jsonBody == "" {
		return nil, &kernel.PlannerError{
			Kind: kernel.PlannerMalformed,
			Err:  errors.New("no JSON object in completion"),
		}
	}

	var d decision
	if err := json.Unmarshal([]byte(jsonBody), &d); err != nil {
		return nil, &kernel.PlannerError{Kind: kernel.PlannerMalformed, Err: err}
	}

	intent := kernel.Intent{Confidence: d.Confidence}
	switch strings.ToLower(strings.TrimSpace(d.Action)) {
	case "do_nothing", "nothing", "":
		intent.Kind = kernel.IntentDoNothing
	case "begin_response", "respond":
		intent.Kind = kernel.IntentBeginResponse
	case "delay", "wait":
		intent.Kind = kernel.IntentDelay
		intent.DelayTicks = d.DelayTicks
		if intent.DelayTicks == 0 {
			intent.DelayTicks = 1
		}
	case "ask_clarification", "clarify":
		intent.Kind = kernel.IntentAskClarification
		intent.Context = d.Context
	case "hold_intent", "hold":
		if strings.TrimSpace(d.Context) == "" {
			return nil, &kernel.PlannerError{
				Kind: kernel.PlannerMalformed,
				Err:  errors.New("hold_intent without a goal summary"),
			}
		}
		intent.Kind = kernel.IntentHoldGoal
		intent.Context = d.Context
	case "revise_statement", "revise":
		ref, ok := parseOutputId(d.Ref)
		if !ok {
			return nil, &kernel.PlannerError{
				Kind: kernel.PlannerMalformed,
				Err:  fmt.Errorf("bad revision ref %q", d.Ref),
			}
		}
		intent.Kind = kernel.IntentReviseStatement
		intent.RefID = ref
		intent.Correction = d.Correction
	default:
		return nil, &kernel.PlannerError{
			Kind: kernel.PlannerMalformed,
			Err:  fmt.Errorf("unknown action %q", d.Action),
		}
	}
	return &intent, nil
}

// extractJSON pulls the first balanced top-level JSON object out of model
// chatter. Models wrap JSON in prose more often than not.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// parseOutputId parses the "out-<tick>.<ordinal>" form.
func parseOutputId(s string) (kernel.OutputId, bool) {
	var tick uint64
	var ordinal uint16
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "out-%d.%d", &tick, &ordinal); err != nil {
		return kernel.OutputId{}, false
	}
	return kernel.OutputId{Tick: kernel.Tick(tick), Ordinal: ordinal}, true
}

// buildPrompt renders a snapshot into the planning prompt. Content-light:
// recent inputs and claims are included verbatim, everything else is
// numeric state.
func buildPrompt(snap kernel.StateSnapshot) string {
	var b strings.Builder
	b.WriteString("You are the deliberative planner of a quiet ambient companion.\n")
	b.WriteString("Decide the single next cognitive act. Respond with one JSON object:\n")
	b.WriteString(`{"action": "do_nothing|begin_response|delay|ask_clarification|revise_statement|hold_intent", "confidence": 0.0-1.0, "delay_ticks": n, "context": "...", "ref": "out-t.o", "correction": "..."}`)
	b.WriteString("\nPrefer do_nothing; speak only when it clearly helps.\n")
	b.WriteString("hold_intent keeps a standing goal named in context without speaking.\n\n")

	fmt.Fprintf(&b, "tick=%d ticks_since_input=%d user_speaking=%t turn_pressure=%.2f\n",
		snap.Tick, snap.TicksSinceInput, snap.UserSpeaking, snap.TurnPressure)
	fmt.Fprintf(&b, "uncertainty=%.2f confidence_penalty=%.2f interruption_bias=%.2f visual_stability=%.2f\n",
		snap.GlobalUncertainty, snap.ConfidencePenalty, snap.InterruptionBias, snap.VisualStability)
	fmt.Fprintf(&b, "active_outputs=%d\n", snap.ActiveOutputs)

	if len(snap.RecentInputs) > 0 {
		b.WriteString("\nRecent inputs:\n")
		for _, in := range snap.RecentInputs {
			b.WriteString("- " + in + "\n")
		}
	}
	if len(snap.TopClaims) > 0 {
		b.WriteString("\nKnown about this session:\n")
		for _, claim := range snap.TopClaims {
			b.WriteString("- " + claim + "\n")
		}
	}
	if len(snap.ActiveIntents) > 0 {
		b.WriteString("\nStanding intents:\n")
		for _, it := range snap.ActiveIntents {
			fmt.Fprintf(&b, "- [%s] %s (%.2f)\n", it.ID, it.Summary, it.Confidence)
		}
	}

	b.WriteString("\nDecision:\n")
	return b.String()
}
