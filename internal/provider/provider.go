package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stellarlinkco/coachd/internal/config"
)

// Tier is a cost/latency/capability class of language-model provider.
type Tier string

const (
	// TierCanned marks turns answered without any provider call.
	TierCanned Tier = "canned"
	// TierFast is the cheap low-latency tier used for classification,
	// extraction and compression. It is never given a tool catalog.
	TierFast Tier = "fast"
	// TierStandard handles simple chat without tool access.
	TierStandard Tier = "standard"
	// TierPremium handles complex chat with the full tool catalog.
	TierPremium Tier = "premium"
)

var ErrUnavailable = errors.New("provider unavailable")

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the ordered message list sent to a provider.
// Role is user|assistant|system|tool; tool messages carry the results of the
// calls listed in ToolCalls.
type Message struct {
	Role      string
	Content   string
	ToolCalls []ToolCall
}

// ToolCall is a provider-requested tool invocation, or (with Result set) the
// outcome fed back on the follow-up request.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	Result    string
}

// ToolDefinition is the declarative schema a provider consumes for
// call-formatting. Parameters is a JSON-Schema-shaped object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature *float64
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is either a final text answer (no ToolCalls) or one or more
// tool-invocation requests.
type Response struct {
	Message    Message
	Usage      Usage
	StopReason string
}

// HasToolCalls reports whether the provider requested tool execution.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.Message.ToolCalls) > 0
}

// Client is the uniform contract over one provider tier.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// Router resolves a tier to its client and accounts per-tier cost.
type Router struct {
	clients map[Tier]Client
	rates   map[Tier]costRate
	timeout time.Duration
}

type costRate struct {
	inPerMTok  float64
	outPerMTok float64
}

// NewRouter builds tier clients from config. The standard tier reuses the
// fast client when no dedicated standard provider is configured.
func NewRouter(cfg *config.Config) (*Router, error) {
	fast, err := newClient(cfg.Providers.Fast)
	if err != nil {
		return nil, fmt.Errorf("fast tier: %w", err)
	}
	premium, err := newClient(cfg.Providers.Premium)
	if err != nil {
		return nil, fmt.Errorf("premium tier: %w", err)
	}

	standard := fast
	standardCfg := cfg.Providers.Fast
	if cfg.Providers.Standard != nil {
		standardCfg = *cfg.Providers.Standard
		standard, err = newClient(standardCfg)
		if err != nil {
			return nil, fmt.Errorf("standard tier: %w", err)
		}
	}

	r := &Router{
		clients: map[Tier]Client{
			TierFast:     fast,
			TierStandard: standard,
			TierPremium:  premium,
		},
		rates: map[Tier]costRate{
			TierFast:     {cfg.Providers.Fast.InputCostPerMTok, cfg.Providers.Fast.OutputCostPerMTok},
			TierStandard: {standardCfg.InputCostPerMTok, standardCfg.OutputCostPerMTok},
			TierPremium:  {cfg.Providers.Premium.InputCostPerMTok, cfg.Providers.Premium.OutputCostPerMTok},
		},
		timeout: time.Duration(cfg.Orchestrator.ProviderTimeoutSec) * time.Second,
	}
	return r, nil
}

// NewRouterWithClients wires pre-built clients; used by tests and by callers
// that need a custom tier topology.
func NewRouterWithClients(clients map[Tier]Client) *Router {
	return &Router{clients: clients, rates: map[Tier]costRate{}}
}

func newClient(pc config.ProviderConfig) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(pc.Type)) {
	case "anthropic":
		return NewAnthropic(pc)
	case "openai", "":
		return NewOpenAI(pc)
	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}
}

// Complete issues one request against the given tier with a per-call timeout
// and a single bounded retry with exponential backoff. Anything still failing
// after the retry surfaces as ErrUnavailable.
func (r *Router) Complete(ctx context.Context, tier Tier, req Request) (*Response, error) {
	client, ok := r.clients[tier]
	if !ok || client == nil {
		return nil, fmt.Errorf("%w: no client for tier %s", ErrUnavailable, tier)
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	operation := func() (*Response, error) {
		resp, err := client.Complete(callCtx, req)
		if err != nil {
			if callCtx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return resp, nil
	}

	resp, err := backoff.Retry(callCtx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, client.Name(), err)
	}
	return resp, nil
}

// Tier adapts one routed tier to the plain Client contract, for components
// that always talk to the same tier.
func (r *Router) Tier(t Tier) Client {
	return tierClient{router: r, tier: t}
}

type tierClient struct {
	router *Router
	tier   Tier
}

func (c tierClient) Complete(ctx context.Context, req Request) (*Response, error) {
	return c.router.Complete(ctx, c.tier, req)
}

func (c tierClient) Name() string { return string(c.tier) }

// CostUSD converts usage into dollars for the tier. Zero for unknown tiers
// and for the canned tier.
func (r *Router) CostUSD(tier Tier, usage Usage) float64 {
	rate, ok := r.rates[tier]
	if !ok {
		return 0
	}
	return float64(usage.InputTokens)*rate.inPerMTok/1e6 +
		float64(usage.OutputTokens)*rate.outPerMTok/1e6
}
