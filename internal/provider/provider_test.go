package provider

import (
	"context"
	"errors"
	"testing"
)

type stubClient struct {
	name  string
	calls int
	fn    func(req Request) (*Response, error)
}

func (s *stubClient) Complete(ctx context.Context, req Request) (*Response, error) {
	s.calls++
	return s.fn(req)
}

func (s *stubClient) Name() string { return s.name }

func TestRouterRetriesOnce(t *testing.T) {
	fast := &stubClient{name: "fast", fn: func(req Request) (*Response, error) {
		return nil, errors.New("transient")
	}}
	r := NewRouterWithClients(map[Tier]Client{TierFast: fast})

	_, err := r.Complete(context.Background(), TierFast, Request{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if fast.calls != 2 {
		t.Fatalf("calls = %d, want 2", fast.calls)
	}
}

func TestRouterUnknownTier(t *testing.T) {
	r := NewRouterWithClients(map[Tier]Client{})
	_, err := r.Complete(context.Background(), TierPremium, Request{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestRouterRecoversOnRetry(t *testing.T) {
	attempts := 0
	fast := &stubClient{name: "fast", fn: func(req Request) (*Response, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("transient")
		}
		return &Response{Message: Message{Role: RoleAssistant, Content: "ok"}}, nil
	}}
	r := NewRouterWithClients(map[Tier]Client{TierFast: fast})

	resp, err := r.Complete(context.Background(), TierFast, Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Message.Content != "ok" {
		t.Fatalf("content = %q", resp.Message.Content)
	}
}

func TestTierAdapter(t *testing.T) {
	fast := &stubClient{name: "fast", fn: func(req Request) (*Response, error) {
		return &Response{Message: Message{Role: RoleAssistant, Content: "hi"}}, nil
	}}
	r := NewRouterWithClients(map[Tier]Client{TierFast: fast})

	client := r.Tier(TierFast)
	if client.Name() != string(TierFast) {
		t.Fatalf("name = %q", client.Name())
	}
	resp, err := client.Complete(context.Background(), Request{})
	if err != nil || resp.Message.Content != "hi" {
		t.Fatalf("resp = %+v, %v", resp, err)
	}
}

func TestCostUSD(t *testing.T) {
	r := &Router{rates: map[Tier]costRate{
		TierPremium: {inPerMTok: 3.0, outPerMTok: 15.0},
	}}

	got := r.CostUSD(TierPremium, Usage{InputTokens: 1_000_000, OutputTokens: 100_000})
	if got != 3.0+1.5 {
		t.Fatalf("cost = %v", got)
	}
	if r.CostUSD(TierCanned, Usage{InputTokens: 100}) != 0 {
		t.Fatalf("canned tier must cost nothing")
	}
}
