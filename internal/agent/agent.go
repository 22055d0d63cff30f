package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/stellarlinkco/coachd/internal/provider"
	"github.com/stellarlinkco/coachd/internal/store"
	"github.com/stellarlinkco/coachd/internal/tools"
)

// State of the turn loop. The iteration counter is data, not recursion, so
// the bound is a testable property.
type State string

const (
	StateStart         State = "start"
	StateIssuing       State = "issuing_request"
	StateAwaitingTools State = "awaiting_tool_results"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// ErrLoopBoundExceeded marks a turn that hit the iteration cap without a
// terminal answer. Fatal to the turn; the caller serves a degraded reply.
var ErrLoopBoundExceeded = errors.New("agent loop bound exceeded")

// Completer is the provider surface the loop consumes.
type Completer interface {
	Complete(ctx context.Context, tier provider.Tier, req provider.Request) (*provider.Response, error)
	CostUSD(tier provider.Tier, usage provider.Usage) float64
}

// ToolRunner executes one batch of requested tool calls.
type ToolRunner interface {
	Execute(ctx context.Context, userID string, calls []provider.ToolCall) []tools.Outcome
}

// Turn is one fully-prepared loop input: routed tier, assembled system
// prompt and memory, and the tool catalog (empty for tool-less tiers).
type Turn struct {
	UserID   string
	Tier     provider.Tier
	System   string
	Messages []provider.Message
	Tools    []provider.ToolDefinition
}

// Result is the loop outcome. ToolRecords audit every executed call in
// request order across iterations.
type Result struct {
	State       State
	Reply       string
	Iterations  int
	Usage       provider.Usage
	CostUSD     float64
	ToolRecords []store.ToolCallRecord
}

// Loop drives START -> {ISSUING_REQUEST <-> AWAITING_TOOL_RESULTS} -> DONE|FAILED.
type Loop struct {
	router        Completer
	runner        ToolRunner
	maxIterations int
	logger        *log.Logger
}

func NewLoop(router Completer, runner ToolRunner, maxIterations int) *Loop {
	if maxIterations <= 0 {
		maxIterations = 1
	}
	return &Loop{
		router:        router,
		runner:        runner,
		maxIterations: maxIterations,
		logger:        log.New(log.Writer(), "[agent] ", log.LstdFlags),
	}
}

// Run executes one turn. A provider error is returned as-is and is fatal to
// the turn; tool errors are fed back to the model as tool output and never
// surface here. Hitting the bound returns ErrLoopBoundExceeded together with
// the partial Result for auditing.
func (l *Loop) Run(ctx context.Context, turn Turn) (*Result, error) {
	result := &Result{State: StateStart}
	messages := append([]provider.Message{}, turn.Messages...)

	for result.Iterations < l.maxIterations {
		result.Iterations++
		result.State = StateIssuing

		resp, err := l.router.Complete(ctx, turn.Tier, provider.Request{
			System:   turn.System,
			Messages: messages,
			Tools:    turn.Tools,
		})
		if err != nil {
			result.State = StateFailed
			return result, err
		}
		result.Usage.InputTokens += resp.Usage.InputTokens
		result.Usage.OutputTokens += resp.Usage.OutputTokens
		result.CostUSD += l.router.CostUSD(turn.Tier, resp.Usage)

		if !resp.HasToolCalls() {
			result.State = StateDone
			result.Reply = resp.Message.Content
			return result, nil
		}

		result.State = StateAwaitingTools
		outcomes := l.runner.Execute(ctx, turn.UserID, resp.Message.ToolCalls)

		// All results feed back as one follow-up request.
		messages = append(messages, resp.Message)
		toolMsg := provider.Message{Role: provider.RoleTool}
		for _, o := range outcomes {
			call := o.Call
			call.Result = o.Result
			toolMsg.ToolCalls = append(toolMsg.ToolCalls, call)
			result.ToolRecords = append(result.ToolRecords, store.ToolCallRecord{
				Name:       o.Call.Name,
				Params:     encodeParams(o.Call.Arguments),
				Result:     o.Result,
				IsError:    o.IsError,
				DurationMs: o.Duration.Milliseconds(),
			})
		}
		messages = append(messages, toolMsg)
	}

	l.logger.Printf("turn for %s hit iteration bound %d", turn.UserID, l.maxIterations)
	result.State = StateFailed
	return result, ErrLoopBoundExceeded
}

func encodeParams(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// actionVerbs feed the slow-path heuristic: several of them in one message
// usually means a multi-tool turn.
var actionVerbs = []string{
	"log", "track", "compare", "plan", "calculate", "summarize", "summarise",
	"analyze", "analyse", "check", "review", "update", "adjust", "search",
}

// LikelySlow predicts whether a turn will run long enough to warrant an
// immediate acknowledgment message. Best-effort in both directions; it never
// affects the loop itself.
func LikelySlow(message string) bool {
	if len(message) > 280 {
		return true
	}
	words := strings.Fields(strings.ToLower(message))
	seen := make(map[string]bool)
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:")
		for _, v := range actionVerbs {
			if w == v {
				seen[v] = true
			}
		}
	}
	return len(seen) >= 2
}

// AckMessage is the persona-consistent placeholder emitted on the slow path.
func AckMessage(language string) string {
	acks := map[string]string{
		"en": "On it, give me a moment to pull that together.",
		"es": "Voy con ello, dame un momento.",
		"de": "Bin dran, gib mir einen Moment.",
		"fr": "Je m'en occupe, un instant.",
		"pt": "Estou nisso, dá-me um momento.",
	}
	if msg, ok := acks[language]; ok {
		return msg
	}
	return acks["en"]
}
