package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stellarlinkco/coachd/internal/provider"
	"github.com/stellarlinkco/coachd/internal/tools"
)

// scriptedRouter plays back a fixed sequence of responses.
type scriptedRouter struct {
	responses []*provider.Response
	err       error
	calls     int
}

func (s *scriptedRouter) Complete(ctx context.Context, tier provider.Tier, req provider.Request) (*provider.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

func (s *scriptedRouter) CostUSD(tier provider.Tier, usage provider.Usage) float64 {
	return float64(usage.InputTokens+usage.OutputTokens) / 1e6
}

type recordingRunner struct {
	batches [][]provider.ToolCall
}

func (r *recordingRunner) Execute(ctx context.Context, userID string, calls []provider.ToolCall) []tools.Outcome {
	r.batches = append(r.batches, calls)
	outcomes := make([]tools.Outcome, len(calls))
	for i, c := range calls {
		outcomes[i] = tools.Outcome{Call: c, Result: `{"ok":true}`}
	}
	return outcomes
}

func textResponse(content string) *provider.Response {
	return &provider.Response{
		Message: provider.Message{Role: provider.RoleAssistant, Content: content},
		Usage:   provider.Usage{InputTokens: 100, OutputTokens: 50},
	}
}

func toolResponse(names ...string) *provider.Response {
	msg := provider.Message{Role: provider.RoleAssistant}
	for i, n := range names {
		msg.ToolCalls = append(msg.ToolCalls, provider.ToolCall{ID: string(rune('a' + i)), Name: n})
	}
	return &provider.Response{Message: msg, Usage: provider.Usage{InputTokens: 100, OutputTokens: 20}}
}

func TestRunDirectAnswer(t *testing.T) {
	router := &scriptedRouter{responses: []*provider.Response{textResponse("eat more protein")}}
	loop := NewLoop(router, &recordingRunner{}, 5)

	res, err := loop.Run(context.Background(), Turn{UserID: "u1", Tier: provider.TierStandard})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateDone || res.Reply != "eat more protein" {
		t.Fatalf("result = %+v", res)
	}
	if res.Iterations != 1 {
		t.Fatalf("iterations = %d", res.Iterations)
	}
	if res.CostUSD == 0 {
		t.Fatal("cost not accumulated")
	}
}

func TestRunToolRoundTrip(t *testing.T) {
	router := &scriptedRouter{responses: []*provider.Response{
		toolResponse("get_recent_meals", "get_profile"),
		textResponse("you averaged 1900 kcal"),
	}}
	runner := &recordingRunner{}
	loop := NewLoop(router, runner, 5)

	res, err := loop.Run(context.Background(), Turn{UserID: "u1", Tier: provider.TierPremium})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != StateDone || res.Iterations != 2 {
		t.Fatalf("result = %+v", res)
	}
	if len(runner.batches) != 1 || len(runner.batches[0]) != 2 {
		t.Fatalf("batches = %+v", runner.batches)
	}
	if len(res.ToolRecords) != 2 {
		t.Fatalf("tool records = %d", len(res.ToolRecords))
	}
	if res.ToolRecords[0].Name != "get_recent_meals" {
		t.Fatalf("record order: %+v", res.ToolRecords)
	}
}

func TestRunBoundExceeded(t *testing.T) {
	// Provider asks for tools forever.
	router := &scriptedRouter{responses: []*provider.Response{toolResponse("get_profile")}}
	runner := &recordingRunner{}
	loop := NewLoop(router, runner, 3)

	res, err := loop.Run(context.Background(), Turn{UserID: "u1", Tier: provider.TierPremium})
	if !errors.Is(err, ErrLoopBoundExceeded) {
		t.Fatalf("err = %v, want ErrLoopBoundExceeded", err)
	}
	if res.State != StateFailed {
		t.Fatalf("state = %q, want failed", res.State)
	}
	if res.Iterations != 3 || router.calls != 3 {
		t.Fatalf("iterations = %d, provider calls = %d, want 3/3", res.Iterations, router.calls)
	}
}

func TestRunProviderError(t *testing.T) {
	router := &scriptedRouter{err: provider.ErrUnavailable}
	loop := NewLoop(router, &recordingRunner{}, 5)

	res, err := loop.Run(context.Background(), Turn{UserID: "u1", Tier: provider.TierStandard})
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if res.State != StateFailed {
		t.Fatalf("state = %q", res.State)
	}
}

func TestLikelySlow(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"log my lunch and compare it to yesterday", true},
		{"plan my week and update my goal", true},
		{strings.Repeat("long message ", 30), true},
		{"what should I eat?", false},
		{"log my lunch", false},
	}
	for _, tc := range cases {
		if got := LikelySlow(tc.in); got != tc.want {
			t.Errorf("LikelySlow(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestAckMessageLocalization(t *testing.T) {
	if AckMessage("es") == AckMessage("en") {
		t.Fatal("expected localized ack")
	}
	if AckMessage("tlh") != AckMessage("en") {
		t.Fatal("unknown language should fall back to English")
	}
}
