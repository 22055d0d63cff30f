package classify

import (
	"context"
	"log"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stellarlinkco/coachd/internal/provider"
	"github.com/stellarlinkco/coachd/internal/store"
)

// Complexity tiers for CHAT-labeled messages.
const (
	ComplexityTrivial = "trivial"
	ComplexitySimple  = "simple"
	ComplexityComplex = "complex"
)

// Result labels one message as conversation or data-log.
type Result struct {
	IsLog       bool
	LogType     string
	Confidence  float64
	HasQuestion bool
}

// Complexity scores a CHAT message for tier routing.
type Complexity struct {
	Tier       string
	Confidence float64
	Reasoning  string
}

// Completer is the tier-routed provider surface the classifier consumes.
type Completer interface {
	Complete(ctx context.Context, tier provider.Tier, req provider.Request) (*provider.Response, error)
}

type Classifier struct {
	router Completer
	logger *log.Logger
}

func New(router Completer) *Classifier {
	return &Classifier{
		router: router,
		logger: log.New(log.Writer(), "[classify] ", log.LstdFlags),
	}
}

var greetingRe = regexp.MustCompile(`(?i)^\s*(hi+|hey+|hello+|yo|sup|hola|hallo|salut|bonjour|oi|ciao|good\s+(morning|afternoon|evening|night)|guten\s+morgen|buenos\s+d[ií]as)[\s!.,]*$`)

// IsPureGreeting is the pure pre-check that short-circuits trivially-routable
// messages before any paid classification call.
func IsPureGreeting(message string) bool {
	if strings.ContainsAny(message, "?¿") {
		return false
	}
	return greetingRe.MatchString(message)
}

var zero float64

const classifySystem = `You label fitness-coaching messages. Decide whether the user is reporting data to be logged (a meal eaten, an activity done, or a body measurement) or just conversing.
Respond with only a JSON object, no prose:
{"is_log": bool, "log_type": "meal"|"activity"|"measurement"|null, "confidence": 0..1, "has_question": bool}
A message that both reports data and asks a question is a log with has_question true.`

// Classify labels one message. It never fails the turn: a provider error or
// unparseable output falls back to CHAT, the safest routing.
func (c *Classifier) Classify(ctx context.Context, message string) Result {
	resp, err := c.router.Complete(ctx, provider.TierFast, provider.Request{
		System:      classifySystem,
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: message}},
		MaxTokens:   128,
		Temperature: &zero,
	})
	if err != nil {
		c.logger.Printf("classification failed, treating as chat: %v", err)
		return Result{HasQuestion: strings.ContainsAny(message, "?¿")}
	}

	parsed := salvageJSON(resp.Message.Content)
	if !parsed.Exists() {
		c.logger.Printf("classification output unparseable, treating as chat: %q", resp.Message.Content)
		return Result{HasQuestion: strings.ContainsAny(message, "?¿")}
	}

	result := Result{
		IsLog:       parsed.Get("is_log").Bool(),
		LogType:     parsed.Get("log_type").String(),
		Confidence:  parsed.Get("confidence").Float(),
		HasQuestion: parsed.Get("has_question").Bool(),
	}
	if result.IsLog && !validLogType(result.LogType) {
		c.logger.Printf("classification produced unknown log_type %q, treating as chat", result.LogType)
		result.IsLog = false
		result.LogType = ""
	}
	return result
}

const complexitySystem = `You route fitness-coaching chat messages to a model tier.
trivial: pure pleasantry or one-liner needing no knowledge.
simple: direct question answerable from general knowledge, no user data needed.
complex: needs the user's logged data, multi-step reasoning, or planning.
Respond with only a JSON object, no prose:
{"tier": "trivial"|"simple"|"complex", "confidence": 0..1, "reasoning": string}`

// Analyze scores a CHAT message. Failure falls back to complex: over-serving
// a message is a cost bug, under-serving it is a quality bug.
func (c *Classifier) Analyze(ctx context.Context, message string) Complexity {
	if IsPureGreeting(message) {
		return Complexity{Tier: ComplexityTrivial, Confidence: 1, Reasoning: "pure greeting"}
	}

	resp, err := c.router.Complete(ctx, provider.TierFast, provider.Request{
		System:      complexitySystem,
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: message}},
		MaxTokens:   128,
		Temperature: &zero,
	})
	if err != nil {
		c.logger.Printf("complexity analysis failed, assuming complex: %v", err)
		return Complexity{Tier: ComplexityComplex, Reasoning: "analysis unavailable"}
	}

	parsed := salvageJSON(resp.Message.Content)
	tier := parsed.Get("tier").String()
	switch tier {
	case ComplexityTrivial, ComplexitySimple, ComplexityComplex:
	default:
		c.logger.Printf("complexity output unparseable, assuming complex: %q", resp.Message.Content)
		return Complexity{Tier: ComplexityComplex, Reasoning: "analysis unparseable"}
	}
	return Complexity{
		Tier:       tier,
		Confidence: parsed.Get("confidence").Float(),
		Reasoning:  parsed.Get("reasoning").String(),
	}
}

func validLogType(t string) bool {
	switch t {
	case store.LogTypeMeal, store.LogTypeActivity, store.LogTypeMeasurement:
		return true
	}
	return false
}

// salvageJSON extracts the first JSON object from model output that may be
// wrapped in prose or code fences.
func salvageJSON(content string) gjson.Result {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return gjson.Result{}
	}
	candidate := content[start : end+1]
	if !gjson.Valid(candidate) {
		return gjson.Result{}
	}
	return gjson.Parse(candidate)
}
