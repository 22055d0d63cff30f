package memory

import (
	"log"
	"strings"

	"github.com/stellarlinkco/coachd/internal/store"
)

// Context is the per-turn memory assembled for the model. ImportantSet holds
// durable facts recalled from older history; WorkingSet holds the recent
// window. Both are ordered oldest first. Rebuilt every turn, never persisted.
type Context struct {
	ImportantSet  []store.Message
	WorkingSet    []store.Message
	TokenEstimate int
}

// MessageStore is the slice of persistence the assembler reads from.
type MessageStore interface {
	RecentMessages(conversationID string, limit int) ([]store.Message, error)
	SearchMessagesByTerms(conversationID string, terms []string, excludeRecent int) ([]store.Message, error)
}

// salienceVocabulary is the fixed term set whose presence in the current
// message triggers recall of older history. Durable-fact territory: medical,
// dietary, injury, goal and strong-preference language.
var salienceVocabulary = []string{
	"allergy", "allergic", "allergies", "intolerant", "intolerance",
	"injury", "injured", "pain", "hurts", "surgery", "doctor", "medication",
	"diabetes", "diabetic", "pregnant", "pregnancy",
	"vegetarian", "vegan", "kosher", "halal", "gluten", "lactose",
	"knee", "back", "shoulder", "wrist", "ankle",
	"goal", "target", "deadline", "marathon", "competition",
	"hate", "love", "prefer", "avoid", "never", "always",
}

// Assembler builds the 3-tier memory context. Tier 1 is the recent working
// set and is a hard floor: it is included in full even when it alone blows
// the budget. Tier 2 recalls salient older messages under whatever budget
// remains. Tier 3 (deep history search) is not auto-injected; the model
// reaches it through a tool.
type Assembler struct {
	messages   MessageStore
	workingSet int
	budget     int
	logger     *log.Logger
}

func NewAssembler(messages MessageStore, workingSet, budget int) *Assembler {
	return &Assembler{
		messages:   messages,
		workingSet: workingSet,
		budget:     budget,
		logger:     log.New(log.Writer(), "[memory] ", log.LstdFlags),
	}
}

// Assemble builds the context for one turn. currentMessage is the inbound
// user message; only its own salience decides whether Tier 2 runs at all.
func (a *Assembler) Assemble(conversationID, currentMessage string) (*Context, error) {
	working, err := a.messages.RecentMessages(conversationID, a.workingSet)
	if err != nil {
		return nil, err
	}

	ctx := &Context{WorkingSet: working}
	for _, m := range working {
		ctx.TokenEstimate += EstimateTokens(m.Content)
	}

	if !IsSalient(currentMessage) {
		return ctx, nil
	}

	matches, err := a.messages.SearchMessagesByTerms(conversationID, salienceVocabulary, a.workingSet)
	if err != nil {
		// Recall is an enhancement; the working set alone is still a valid
		// context for the turn.
		a.logger.Printf("salience recall failed for %s: %v", conversationID, err)
		return ctx, nil
	}

	for _, m := range matches {
		cost := EstimateTokens(m.Content)
		if ctx.TokenEstimate+cost > a.budget {
			break
		}
		ctx.ImportantSet = append(ctx.ImportantSet, m)
		ctx.TokenEstimate += cost
	}
	return ctx, nil
}

// IsSalient reports whether the message touches the salience vocabulary.
func IsSalient(message string) bool {
	lower := strings.ToLower(message)
	for _, term := range salienceVocabulary {
		if containsWord(lower, term) {
			return true
		}
	}
	return false
}

// containsWord matches term at word boundaries so "goal" does not fire on
// "goalkeeper-adjacent" substrings inside other words.
func containsWord(text, term string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], term)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(term)
		beforeOK := start == 0 || !isWordRune(text[start-1])
		afterOK := end == len(text) || !isWordRune(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// EstimateTokens approximates token count as characters over four. It only
// gates inclusion decisions, not provider limits, so precision is not needed.
func EstimateTokens(s string) int {
	return len(s) / 4
}
