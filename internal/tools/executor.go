package tools

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stellarlinkco/coachd/internal/provider"
)

// Outcome is the executed form of one requested tool call. IsError outcomes
// are fed back to the model as tool output, never raised to the caller.
type Outcome struct {
	Call     provider.ToolCall
	Result   string
	IsError  bool
	Duration time.Duration
}

// Executor runs the tool calls requested in one provider turn. Read-only
// calls fan out concurrently under a bounded limit; mutating calls then run
// sequentially in the order the model requested them.
type Executor struct {
	registry    *Registry
	concurrency int
	timeout     time.Duration
	logger      *log.Logger
}

func NewExecutor(registry *Registry, concurrency int, timeout time.Duration) *Executor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Executor{
		registry:    registry,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      log.New(log.Writer(), "[tools] ", log.LstdFlags),
	}
}

// Execute runs all calls and returns outcomes in the original request order.
// Execution is detached from the caller's cancellation: a client disconnect
// mid-turn must not abort tool calls halfway through, especially mutating
// ones. The per-call timeout is the only bound.
func (e *Executor) Execute(ctx context.Context, userID string, calls []provider.ToolCall) []Outcome {
	ctx = context.WithoutCancel(ctx)
	outcomes := make([]Outcome, len(calls))
	var mutating []int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, call := range calls {
		tool, ok := e.registry.Get(call.Name)
		if !ok {
			outcomes[i] = Outcome{Call: call, Result: fmt.Sprintf(`{"error":"unknown tool %q"}`, call.Name), IsError: true}
			continue
		}
		if !tool.ReadOnly() {
			mutating = append(mutating, i)
			continue
		}

		i, call, tool := i, call, tool
		g.Go(func() error {
			outcomes[i] = e.run(gctx, tool, userID, call)
			return nil
		})
	}
	// Workers never return errors; Wait is just the barrier.
	_ = g.Wait()

	for _, i := range mutating {
		tool, _ := e.registry.Get(calls[i].Name)
		outcomes[i] = e.run(ctx, tool, userID, calls[i])
	}
	return outcomes
}

func (e *Executor) run(ctx context.Context, tool Tool, userID string, call provider.ToolCall) Outcome {
	params, err := SanitizeParams(call.Arguments)
	if err != nil {
		return Outcome{Call: call, Result: fmt.Sprintf(`{"error":%q}`, err.Error()), IsError: true}
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := tool.Execute(callCtx, userID, params)
	elapsed := time.Since(start)
	if err != nil {
		e.logger.Printf("tool %s failed after %s: %v", call.Name, elapsed.Round(time.Millisecond), err)
		return Outcome{Call: call, Result: fmt.Sprintf(`{"error":%q}`, err.Error()), IsError: true, Duration: elapsed}
	}
	return Outcome{Call: call, Result: result, Duration: elapsed}
}
