package guard

import (
	"context"
	"log"
	"strconv"
	"strings"

	"github.com/stellarlinkco/coachd/internal/config"
	"github.com/stellarlinkco/coachd/internal/provider"
)

// fallbackReplies are served when a draft reply leaks internal instructions.
// Keyed by ISO 639-1 code; unknown languages fall back to English.
var fallbackReplies = map[string]string{
	"en": "Sorry, I couldn't put together a proper answer there. Could you rephrase that?",
	"es": "Perdona, no pude armar una buena respuesta. ¿Puedes reformularlo?",
	"de": "Entschuldigung, da ist mir keine brauchbare Antwort gelungen. Kannst du das anders formulieren?",
	"fr": "Désolé, je n'ai pas réussi à formuler une bonne réponse. Peux-tu reformuler ?",
	"pt": "Desculpa, não consegui montar uma boa resposta. Podes reformular?",
	"it": "Scusa, non sono riuscito a dare una risposta adeguata. Puoi riformulare?",
	"ru": "Извини, не получилось составить нормальный ответ. Можешь переформулировать?",
}

// builtin leakage markers that should never reach a user regardless of how
// the system prompt is assembled.
var builtinMarkers = []string{
	"input_schema",
	"tool_choice",
	"<<SYS>>",
	"<|im_start|>",
	"[INST]",
}

// strictMarkers only apply on turns the input guard flagged as suspicious.
// They would cause false rejections on benign turns (a user may legitimately
// ask what a system prompt is), but on a flagged turn any reply discussing
// the prompt machinery is treated as a leak.
var strictMarkers = []string{
	"system prompt",
	"initial prompt",
	"my instructions",
	"developer mode",
}

// OutputGuard is the last stage before a reply leaves the orchestrator: it
// swaps leaked-instruction replies for a localized fallback and compresses
// rambling ones through the fast tier.
type OutputGuard struct {
	wordLimit int
	lineLimit int
	markers   []string
	fast      provider.Client
	logger    *log.Logger
}

// NewOutputGuard builds the guard. markers are fragments of the internal
// prompts whose presence in a reply indicates leakage; fast may be nil, in
// which case over-long replies pass through uncompressed.
func NewOutputGuard(cfg config.GuardConfig, markers []string, fast provider.Client) *OutputGuard {
	all := make([]string, 0, len(builtinMarkers)+len(markers))
	all = append(all, builtinMarkers...)
	for _, m := range markers {
		if strings.TrimSpace(m) != "" {
			all = append(all, m)
		}
	}
	return &OutputGuard{
		wordLimit: cfg.BrevityWordLimit,
		lineLimit: cfg.BrevityLineLimit,
		markers:   all,
		fast:      fast,
		logger:    log.New(log.Writer(), "[guard] ", log.LstdFlags),
	}
}

// Finalize returns the reply that should actually be sent. It never returns
// an error to the caller: a failed compression degrades to the original
// reply, and a leaked reply degrades to the fallback. A suspicious verdict
// widens the leak check to the strict markers and the matched injection
// fragments themselves.
func (g *OutputGuard) Finalize(ctx context.Context, reply, language string, verdict Verdict) string {
	markers := g.markers
	if verdict.Suspicious {
		markers = append(append(append([]string{}, markers...), strictMarkers...), verdict.Matches...)
	}
	if leaksAny(reply, markers) {
		g.logger.Printf("reply leaked internal instructions, serving fallback")
		return FallbackReply(language)
	}
	if g.tooLong(reply) {
		return g.compress(ctx, reply, language, markers)
	}
	return reply
}

func FallbackReply(language string) string {
	if msg, ok := fallbackReplies[language]; ok {
		return msg
	}
	return fallbackReplies["en"]
}

func leaksAny(reply string, markers []string) bool {
	lower := strings.ToLower(reply)
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

func (g *OutputGuard) tooLong(reply string) bool {
	if len(strings.Fields(reply)) > g.wordLimit {
		return true
	}
	return strings.Count(reply, "\n")+1 > g.lineLimit
}

func (g *OutputGuard) compress(ctx context.Context, reply, language string, markers []string) string {
	if g.fast == nil {
		return reply
	}

	req := provider.Request{
		System: "You shorten coaching replies. Rewrite the given reply so it keeps every concrete number, food name and recommendation but drops filler. Stay under " +
			strconv.Itoa(g.wordLimit) + " words. Answer in the same language as the reply. Return only the rewritten reply.",
		Messages:  []provider.Message{{Role: provider.RoleUser, Content: reply}},
		MaxTokens: 1024,
	}
	resp, err := g.fast.Complete(ctx, req)
	if err != nil || strings.TrimSpace(resp.Message.Content) == "" {
		g.logger.Printf("brevity compression failed, keeping original: %v", err)
		return reply
	}

	compressed := strings.TrimSpace(resp.Message.Content)
	// A compressor that leaks is still a leak.
	if leaksAny(compressed, markers) {
		return FallbackReply(language)
	}
	return compressed
}
