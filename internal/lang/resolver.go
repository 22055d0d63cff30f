package lang

import (
	"log"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/stellarlinkco/coachd/internal/store"
)

// ProfileStore is the slice of the persistence layer the resolver needs.
type ProfileStore interface {
	Profile(userID string) (*store.Profile, error)
	SetProfileLanguage(userID, language string) error
}

type cacheEntry struct {
	language string
	expires  time.Time
}

// Resolver decides which language a reply should be written in. Resolution
// order: in-process cache, stored profile preference, detection on the
// current message, configured default. The cache is read-through with a TTL
// so a profile edit from another channel shows up within one TTL.
type Resolver struct {
	profiles    ProfileStore
	ttl         time.Duration
	defaultLang string
	logger      *log.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

func NewResolver(profiles ProfileStore, ttl time.Duration, defaultLang string) *Resolver {
	if defaultLang == "" {
		defaultLang = "en"
	}
	return &Resolver{
		profiles:    profiles,
		ttl:         ttl,
		defaultLang: defaultLang,
		logger:      log.New(log.Writer(), "[lang] ", log.LstdFlags),
		cache:       make(map[string]cacheEntry),
		now:         time.Now,
	}
}

// Resolve returns the reply language for one turn.
func (r *Resolver) Resolve(userID, message string) string {
	r.mu.Lock()
	if entry, ok := r.cache[userID]; ok && r.now().Before(entry.expires) {
		r.mu.Unlock()
		return entry.language
	}
	r.mu.Unlock()

	if p, err := r.profiles.Profile(userID); err == nil && p.Language != "" {
		r.put(userID, p.Language)
		return p.Language
	}

	if detected := Detect(message); detected != "" {
		// Detection is per-turn evidence, not a durable preference, so it is
		// cached but not written back to the profile.
		r.put(userID, detected)
		return detected
	}

	return r.defaultLang
}

// Pin records an explicit language preference and makes it visible to the
// next turn immediately.
func (r *Resolver) Pin(userID, language string) error {
	if err := r.profiles.SetProfileLanguage(userID, language); err != nil {
		return err
	}
	r.put(userID, language)
	return nil
}

func (r *Resolver) put(userID, language string) {
	r.mu.Lock()
	r.cache[userID] = cacheEntry{language: language, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()
}

// stopwords per language, lowercase. Function words only: they are frequent,
// short and rarely borrowed across these languages.
var stopwords = map[string][]string{
	"en": {"the", "and", "what", "how", "my", "is", "are", "was", "for", "with", "today", "ate"},
	"es": {"el", "la", "los", "las", "que", "como", "mi", "es", "para", "con", "hoy", "comí"},
	"de": {"der", "die", "das", "und", "was", "wie", "mein", "ist", "für", "mit", "heute", "ich"},
	"fr": {"le", "la", "les", "et", "que", "comment", "mon", "est", "pour", "avec", "aujourd'hui", "je"},
	"pt": {"o", "os", "as", "que", "como", "meu", "é", "para", "com", "hoje", "comi", "não"},
	"it": {"il", "lo", "gli", "che", "come", "mio", "è", "per", "con", "oggi", "ho", "mangiato"},
}

// Detect guesses the message language, returning "" when the evidence is too
// thin to beat the profile or default. Script ranges settle non-Latin text;
// Latin text is scored by stopword hits and needs a strict winner with at
// least two hits.
func Detect(message string) string {
	var cyrillic, han, kana, hangul int
	for _, r := range message {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Han, r):
			han++
		case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			kana++
		case unicode.Is(unicode.Hangul, r):
			hangul++
		}
	}
	switch {
	case kana > 2:
		return "ja"
	case hangul > 2:
		return "ko"
	case han > 2:
		return "zh"
	case cyrillic > 2:
		return "ru"
	}

	words := strings.Fields(strings.ToLower(message))
	if len(words) < 2 {
		return ""
	}
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[strings.Trim(w, ".,!?¿¡;:\"'()")] = true
	}

	best, bestScore, runnerUp := "", 0, 0
	for lang, list := range stopwords {
		score := 0
		for _, sw := range list {
			if seen[sw] {
				score++
			}
		}
		if score > bestScore {
			best, runnerUp, bestScore = lang, bestScore, score
		} else if score > runnerUp {
			runnerUp = score
		}
	}
	if bestScore >= 2 && bestScore > runnerUp {
		return best
	}
	return ""
}
