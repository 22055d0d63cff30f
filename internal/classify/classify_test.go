package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stellarlinkco/coachd/internal/provider"
)

type scriptedRouter struct {
	replies []string
	err     error
	calls   int
}

func (s *scriptedRouter) Complete(ctx context.Context, tier provider.Tier, req provider.Request) (*provider.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return &provider.Response{Message: provider.Message{Role: provider.RoleAssistant, Content: reply}}, nil
}

func TestClassifyLog(t *testing.T) {
	r := &scriptedRouter{replies: []string{
		`{"is_log": true, "log_type": "meal", "confidence": 0.93, "has_question": false}`,
	}}
	c := New(r)

	res := c.Classify(context.Background(), "I ate 2 scoops of whey protein")
	if !res.IsLog || res.LogType != "meal" {
		t.Fatalf("result = %+v", res)
	}
	if res.Confidence < 0.9 {
		t.Fatalf("confidence = %v", res.Confidence)
	}
}

func TestClassifySalvagesWrappedJSON(t *testing.T) {
	r := &scriptedRouter{replies: []string{
		"Sure, here is the label:\n```json\n{\"is_log\": true, \"log_type\": \"activity\", \"confidence\": 0.8, \"has_question\": true}\n```",
	}}
	c := New(r)

	res := c.Classify(context.Background(), "ran 5k, good pace?")
	if !res.IsLog || res.LogType != "activity" || !res.HasQuestion {
		t.Fatalf("result = %+v", res)
	}
}

func TestClassifyFailureFallsBackToChat(t *testing.T) {
	c := New(&scriptedRouter{err: errors.New("down")})

	res := c.Classify(context.Background(), "how much protein do I need?")
	if res.IsLog {
		t.Fatal("failed classification must fall back to chat")
	}
	if !res.HasQuestion {
		t.Fatal("question mark heuristic should survive the fallback")
	}
}

func TestClassifyUnknownLogType(t *testing.T) {
	r := &scriptedRouter{replies: []string{
		`{"is_log": true, "log_type": "mood", "confidence": 0.7}`,
	}}
	res := New(r).Classify(context.Background(), "feeling great today")
	if res.IsLog {
		t.Fatal("unknown log_type must fall back to chat")
	}
}

func TestAnalyzeGreetingSkipsProvider(t *testing.T) {
	r := &scriptedRouter{}
	c := New(r)

	res := c.Analyze(context.Background(), "good morning!")
	if res.Tier != ComplexityTrivial {
		t.Fatalf("tier = %q, want trivial", res.Tier)
	}
	if r.calls != 0 {
		t.Fatalf("greeting pre-check made %d provider calls", r.calls)
	}
}

func TestAnalyzeTiers(t *testing.T) {
	r := &scriptedRouter{replies: []string{
		`{"tier": "complex", "confidence": 0.85, "reasoning": "needs logged data"}`,
	}}
	res := New(r).Analyze(context.Background(), "am I on track for my protein goal this week?")
	if res.Tier != ComplexityComplex || res.Reasoning == "" {
		t.Fatalf("result = %+v", res)
	}
}

func TestAnalyzeFailureAssumesComplex(t *testing.T) {
	res := New(&scriptedRouter{err: errors.New("down")}).Analyze(context.Background(), "plan my meals")
	if res.Tier != ComplexityComplex {
		t.Fatalf("tier = %q, want complex", res.Tier)
	}

	res = New(&scriptedRouter{replies: []string{"not json at all"}}).Analyze(context.Background(), "plan my meals")
	if res.Tier != ComplexityComplex {
		t.Fatalf("unparseable tier = %q, want complex", res.Tier)
	}
}

func TestIsPureGreeting(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"hi", true},
		{"Hello!", true},
		{"good morning", true},
		{"hola", true},
		{"hi, what did I eat today?", false},
		{"hello can you help me plan", false},
	}
	for _, tc := range cases {
		if got := IsPureGreeting(tc.in); got != tc.want {
			t.Errorf("IsPureGreeting(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
