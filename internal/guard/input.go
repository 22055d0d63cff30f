package guard

import (
	"errors"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/stellarlinkco/coachd/internal/config"
)

var (
	ErrMessageTooLong = errors.New("message exceeds maximum length")
	ErrRateLimited    = errors.New("rate limit exceeded")
)

// suspicionPattern flags input that tries to steer the model rather than the
// coach. A match never rejects the message; it only hardens the downstream
// prompt and tags the turn for review.
type suspicionPattern struct {
	name string
	re   *regexp.Regexp
}

var suspicionPatterns = []suspicionPattern{
	{"instruction_override", regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`)},
	{"prompt_probe", regexp.MustCompile(`(?i)(reveal|show|print|repeat|display)\b.{0,40}\b(system\s+prompt|instructions|initial\s+prompt)`)},
	{"role_hijack", regexp.MustCompile(`(?i)you\s+are\s+(now|no\s+longer)\s`)},
	{"persona_switch", regexp.MustCompile(`(?i)\b(jailbreak|developer\s+mode|dan\s+mode)\b`)},
	{"delimiter_injection", regexp.MustCompile(`(?i)(<\|[a-z_]+\|>|\[/?(INST|SYS)\]|<<SYS>>)`)},
	{"tool_spoof", regexp.MustCompile(`(?i)"?tool_calls?"?\s*[:=]`)},
}

// Verdict is the advisory portion of an input check. Rejections are
// communicated through the error return instead. Matches carries the exact
// matched fragments so the output guard can catch a reply echoing them.
type Verdict struct {
	Suspicious bool
	Patterns   []string
	Matches    []string
}

// InputGuard rejects oversized or over-frequent messages and flags
// injection-shaped content before any model sees it.
type InputGuard struct {
	maxChars int
	limiter  *rateLimiter
	logger   *log.Logger
}

func NewInputGuard(cfg config.GuardConfig) *InputGuard {
	return &InputGuard{
		maxChars: cfg.MaxMessageChars,
		limiter:  newRateLimiter(cfg.RateLimitPerMin, time.Minute),
		logger:   log.New(log.Writer(), "[guard] ", log.LstdFlags),
	}
}

// Check validates one inbound message. The length check runs before the rate
// limiter so an oversized message does not consume the user's quota.
func (g *InputGuard) Check(userID, message string) (Verdict, error) {
	if len(message) > g.maxChars {
		return Verdict{}, ErrMessageTooLong
	}
	if !g.limiter.allow(userID) {
		return Verdict{}, ErrRateLimited
	}

	var matched, fragments []string
	for _, p := range suspicionPatterns {
		if frag := p.re.FindString(message); frag != "" {
			matched = append(matched, p.name)
			fragments = append(fragments, frag)
		}
	}
	if len(matched) > 0 {
		g.logger.Printf("suspicious input from %s: %s", userID, strings.Join(matched, ","))
	}
	return Verdict{Suspicious: len(matched) > 0, Patterns: matched, Matches: fragments}, nil
}

// rateLimiter is a per-user sliding window. State is in-memory only: a
// restart resets all windows, which is acceptable for an abuse brake.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	history map[string][]time.Time
	now     func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		history: make(map[string][]time.Time),
		now:     time.Now,
	}
}

func (r *rateLimiter) allow(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	kept := r.history[userID][:0]
	for _, t := range r.history[userID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= r.limit {
		r.history[userID] = kept
		return false
	}
	r.history[userID] = append(kept, now)
	return true
}
