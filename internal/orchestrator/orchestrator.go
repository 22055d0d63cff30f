package orchestrator

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/stellarlinkco/coachd/internal/agent"
	"github.com/stellarlinkco/coachd/internal/canned"
	"github.com/stellarlinkco/coachd/internal/classify"
	"github.com/stellarlinkco/coachd/internal/config"
	"github.com/stellarlinkco/coachd/internal/guard"
	"github.com/stellarlinkco/coachd/internal/lang"
	"github.com/stellarlinkco/coachd/internal/logpipe"
	"github.com/stellarlinkco/coachd/internal/memory"
	"github.com/stellarlinkco/coachd/internal/provider"
	"github.com/stellarlinkco/coachd/internal/store"
	"github.com/stellarlinkco/coachd/internal/tools"
)

// Router is the tiered provider surface the orchestrator routes through.
// *provider.Router satisfies it.
type Router interface {
	Complete(ctx context.Context, tier provider.Tier, req provider.Request) (*provider.Response, error)
	CostUSD(tier provider.Tier, usage provider.Usage) float64
}

// AckFunc receives slow-path acknowledgment messages for immediate delivery
// to the user while the turn keeps running.
type AckFunc func(conversationID, text string)

// TurnResult is the caller-facing outcome of one processed message.
type TurnResult struct {
	ConversationID string          `json:"conversation_id"`
	Reply          string          `json:"reply"`
	Classification classify.Result `json:"-"`
	IsLog          bool            `json:"is_log"`
	ComplexityTier string          `json:"complexity_tier,omitempty"`
	PendingLogID   string          `json:"pending_log_id,omitempty"`
	TierUsed       provider.Tier   `json:"tier_used"`
	CostUSD        float64         `json:"cost_usd"`
	LatencyMs      int64           `json:"latency_ms"`
}

// Orchestrator wires the whole turn pipeline: guards, language, canned
// matching, classification, memory, the agent loop and the log pipeline.
type Orchestrator struct {
	cfg         *config.Config
	st          *store.Store
	router      Router
	input       *guard.InputGuard
	resolver    *lang.Resolver
	assembler   *memory.Assembler
	registry    *tools.Registry
	transformer *logpipe.Transformer
	ack         AckFunc
	logger      *log.Logger
}

func New(cfg *config.Config, st *store.Store, router Router, ack AckFunc) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		st:          st,
		router:      router,
		input:       guard.NewInputGuard(cfg.Guard),
		resolver:    lang.NewResolver(st, time.Duration(cfg.Orchestrator.LanguageCacheTTLSec)*time.Second, cfg.Orchestrator.DefaultLanguage),
		assembler:   memory.NewAssembler(st, cfg.Memory.WorkingSetSize, cfg.Memory.TokenBudget),
		registry:    tools.NewCatalog(st),
		transformer: logpipe.NewTransformer(st),
		ack:         ack,
		logger:      log.New(log.Writer(), "[orchestrator] ", log.LstdFlags),
	}
}

// ProcessMessage runs one conversational turn end to end. Guard rejections
// (guard.ErrRateLimited, guard.ErrMessageTooLong) surface as errors before
// any provider call; everything past the guard degrades into a user-visible
// reply instead of failing the turn.
func (o *Orchestrator) ProcessMessage(ctx context.Context, userID, conversationID, text string) (*TurnResult, error) {
	start := time.Now()

	verdict, err := o.input.Check(userID, text)
	if err != nil {
		return nil, err
	}

	conv, err := o.st.EnsureConversation(userID, conversationID)
	if err != nil {
		return nil, err
	}

	language := o.resolver.Resolve(userID, text)
	if conv.Language == "" {
		if err := o.st.SetConversationLanguage(conv.ID, language); err != nil {
			o.logger.Printf("pin conversation language: %v", err)
		}
	}

	result := &TurnResult{ConversationID: conv.ID}

	if reply, ok := canned.Match(language, text); ok {
		if err := o.persistExchange(conv.ID, text, store.Message{
			ConversationID: conv.ID, Role: provider.RoleAssistant, Content: reply,
			Provider: string(provider.TierCanned),
		}, nil); err != nil {
			return nil, err
		}
		result.Reply = reply
		result.TierUsed = provider.TierCanned
		result.LatencyMs = time.Since(start).Milliseconds()
		return result, nil
	}

	// Everything below may call providers; route through a per-turn meter so
	// the result carries the real cost of classification, extraction and the
	// loop combined.
	metered := &meteredRouter{inner: o.router}
	classifier := classify.New(metered)

	if _, err := o.st.AppendMessage(store.Message{
		ConversationID: conv.ID, Role: provider.RoleUser, Content: text,
	}); err != nil {
		return nil, err
	}

	cls := classifier.Classify(ctx, text)
	result.Classification = cls
	result.IsLog = cls.IsLog

	var reply string
	var records []store.ToolCallRecord
	if cls.IsLog {
		reply = o.runLogTurn(ctx, metered, conv.ID, userID, language, text, cls, result)
		result.TierUsed = provider.TierFast
	} else {
		reply, records = o.runChatTurn(ctx, metered, conv.ID, userID, language, text, cls, verdict, result)
	}

	outputGuard := guard.NewOutputGuard(o.cfg.Guard, LeakageMarkers(), &routerClient{router: metered, tier: provider.TierFast})
	reply = outputGuard.Finalize(ctx, reply, language, verdict)

	result.Reply = reply
	result.CostUSD = metered.Total()
	result.LatencyMs = time.Since(start).Milliseconds()

	assistant := store.Message{
		ConversationID: conv.ID, Role: provider.RoleAssistant, Content: reply,
		Provider: string(result.TierUsed), Model: o.modelFor(result.TierUsed), CostUSD: result.CostUSD,
	}
	if err := o.persistExchange(conv.ID, "", assistant, records); err != nil {
		return nil, err
	}
	return result, nil
}

// runLogTurn drives LOG-classified messages through the extraction pipeline
// and renders the confirmation preview. Dual-intent messages get their
// question answered best-effort in the same reply.
func (o *Orchestrator) runLogTurn(ctx context.Context, metered *meteredRouter, conversationID, userID, language, text string, cls classify.Result, result *TurnResult) string {
	pipeline := logpipe.NewPipeline(o.st, logpipe.NewExtractor(metered), o.transformer)
	pending, prov, err := pipeline.Begin(ctx, userID, conversationID, cls.LogType, text)
	if err != nil {
		o.logger.Printf("log extraction failed for %s: %v", conversationID, err)
		return localized(extractionFailedReplies, language)
	}
	result.PendingLogID = pending.ID

	reply := previewReply(language, cls.LogType, prov)
	if cls.HasQuestion {
		if answer := o.quickAnswer(ctx, metered, language, text); answer != "" {
			reply += "\n\n" + answer
		} else {
			reply += "\n" + questionNote(language)
		}
	}
	return reply
}

// runChatTurn routes CHAT messages by complexity and drives the agent loop.
func (o *Orchestrator) runChatTurn(ctx context.Context, metered *meteredRouter, conversationID, userID, language, text string, cls classify.Result, verdict guard.Verdict, result *TurnResult) (string, []store.ToolCallRecord) {
	classifier := classify.New(metered)
	cpx := classifier.Analyze(ctx, text)
	result.ComplexityTier = cpx.Tier

	if cpx.Tier == classify.ComplexityTrivial {
		result.TierUsed = provider.TierCanned
		return localized(trivialReplies, language), nil
	}

	tier := provider.TierStandard
	var catalog []provider.ToolDefinition
	registry := o.registry
	if cpx.Tier == classify.ComplexityComplex {
		tier = provider.TierPremium
		registry = o.registry.Clone()
		if err := registry.Register(tools.NewSearchHistory(o.st, conversationID, o.cfg.Memory.WorkingSetSize)); err != nil {
			o.logger.Printf("register search_history: %v", err)
		}
		catalog = registry.Definitions()

		if o.cfg.Orchestrator.SlowAckEnabled && agent.LikelySlow(text) {
			o.emitAck(conversationID, language)
		}
	}
	result.TierUsed = tier

	var profile *store.Profile
	if p, err := o.st.Profile(userID); err == nil {
		profile = p
	}

	memCtx, err := o.assembler.Assemble(conversationID, text)
	if err != nil {
		o.logger.Printf("memory assembly failed for %s: %v", conversationID, err)
		memCtx = &memory.Context{}
	}
	messages := buildMessages(memCtx, text)

	executor := tools.NewExecutor(registry, o.cfg.Orchestrator.ToolConcurrency,
		time.Duration(o.cfg.Orchestrator.ToolTimeoutSec)*time.Second)
	loop := agent.NewLoop(metered, executor, o.cfg.Orchestrator.MaxToolIterations)

	res, err := loop.Run(ctx, agent.Turn{
		UserID:   userID,
		Tier:     tier,
		System:   buildSystemPrompt(language, verdict.Suspicious, profile),
		Messages: messages,
		Tools:    catalog,
	})
	switch {
	case err == nil:
		return res.Reply, res.ToolRecords
	case errors.Is(err, agent.ErrLoopBoundExceeded):
		o.logger.Printf("turn for %s failed at loop bound", conversationID)
		return localized(partialReplies, language), res.ToolRecords
	case errors.Is(err, provider.ErrUnavailable):
		o.logger.Printf("provider unavailable for %s: %v", conversationID, err)
		return localized(unavailableReplies, language), res.ToolRecords
	default:
		o.logger.Printf("turn for %s failed: %v", conversationID, err)
		return localized(unavailableReplies, language), res.ToolRecords
	}
}

// ConfirmPendingLog resolves and applies a pending entry. Idempotent.
// Confirmation never calls a provider, so no extractor is wired.
func (o *Orchestrator) ConfirmPendingLog(ctx context.Context, userID, pendingID string, edits logpipe.Edits) (*logpipe.Outcome, error) {
	pipeline := logpipe.NewPipeline(o.st, nil, o.transformer)
	return pipeline.Confirm(ctx, userID, pendingID, edits)
}

// CancelPendingLog marks a pending entry cancelled.
func (o *Orchestrator) CancelPendingLog(ctx context.Context, userID, pendingID, reason string) (*logpipe.Outcome, error) {
	pipeline := logpipe.NewPipeline(o.st, nil, o.transformer)
	return pipeline.Cancel(ctx, userID, pendingID, reason)
}

func (o *Orchestrator) emitAck(conversationID, language string) {
	text := agent.AckMessage(language)
	if _, err := o.st.AppendMessage(store.Message{
		ConversationID: conversationID, Role: provider.RoleAssistant,
		Content: text, EphemeralAck: true,
	}); err != nil {
		o.logger.Printf("persist ack: %v", err)
	}
	if o.ack != nil {
		o.ack(conversationID, text)
	}
}

// quickAnswer gives a one-shot short answer for the question half of a
// dual-intent message. Best-effort: any failure returns "".
func (o *Orchestrator) quickAnswer(ctx context.Context, metered *meteredRouter, language, text string) string {
	resp, err := metered.Complete(ctx, provider.TierStandard, provider.Request{
		System: "You are a nutrition and fitness coach. The user reported data that is being logged separately; answer only the question in their message, in two sentences or fewer, in language \"" + language + "\".",
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: text},
		},
		MaxTokens: 256,
	})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(resp.Message.Content)
}

// persistExchange appends the user message (when given) and the assistant
// turn, then refreshes the denormalized conversation metadata.
func (o *Orchestrator) persistExchange(conversationID, userText string, assistant store.Message, records []store.ToolCallRecord) error {
	if userText != "" {
		if _, err := o.st.AppendMessage(store.Message{
			ConversationID: conversationID, Role: provider.RoleUser, Content: userText,
		}); err != nil {
			return err
		}
	}
	if _, err := o.st.AppendTurn(assistant, records); err != nil {
		return err
	}
	if err := o.st.UpdateConversationMeta(conversationID, assistant.Content); err != nil {
		o.logger.Printf("update conversation meta: %v", err)
	}
	return nil
}

func (o *Orchestrator) modelFor(tier provider.Tier) string {
	switch tier {
	case provider.TierFast:
		return o.cfg.Providers.Fast.Model
	case provider.TierStandard:
		return o.cfg.StandardProvider().Model
	case provider.TierPremium:
		return o.cfg.Providers.Premium.Model
	}
	return ""
}

// meteredRouter accumulates the dollar cost of every provider call made
// during one turn, regardless of which component issued it.
type meteredRouter struct {
	inner Router
	mu    sync.Mutex
	total float64
}

func (m *meteredRouter) Complete(ctx context.Context, tier provider.Tier, req provider.Request) (*provider.Response, error) {
	resp, err := m.inner.Complete(ctx, tier, req)
	if resp != nil {
		m.mu.Lock()
		m.total += m.inner.CostUSD(tier, resp.Usage)
		m.mu.Unlock()
	}
	return resp, err
}

func (m *meteredRouter) CostUSD(tier provider.Tier, usage provider.Usage) float64 {
	return m.inner.CostUSD(tier, usage)
}

func (m *meteredRouter) Total() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// routerClient adapts the metered router to the plain Client contract for
// the output guard's compression pass.
type routerClient struct {
	router Router
	tier   provider.Tier
}

func (c *routerClient) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	return c.router.Complete(ctx, c.tier, req)
}

func (c *routerClient) Name() string { return string(c.tier) }
