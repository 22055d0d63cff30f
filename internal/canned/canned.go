package canned

import "strings"

// maxMatchLen bounds the normalized input: anything longer than a short
// pleasantry carries real content and must reach a model.
const maxMatchLen = 48

// domainKeywords disqualify a message from canned handling even when it
// starts like a pleasantry. "hi, what did I eat today" must not get "hi!".
var domainKeywords = []string{
	// en
	"eat", "ate", "food", "meal", "calorie", "protein", "carb", "fat",
	"weight", "log", "goal", "workout", "run", "ran", "gym", "diet", "snack",
	// es
	"comer", "comí", "comida", "caloría", "peso", "meta", "entrenamiento",
	// de
	"essen", "gegessen", "kalorien", "gewicht", "ziel", "training",
	// fr
	"manger", "mangé", "repas", "poids", "objectif",
	// pt
	"comi", "refeição", "caloria", "treino",
}

// replies holds the curated response table keyed by language then by
// normalized message. Only languages with a curated set participate; others
// always go to a model.
var replies = map[string]map[string]string{
	"en": {
		"hi":           "Hey! How can I help today?",
		"hello":        "Hey! How can I help today?",
		"hey":          "Hey! How can I help today?",
		"good morning": "Good morning! Ready when you are.",
		"thanks":       "Anytime!",
		"thank you":    "Anytime!",
		"ok":           "👍",
		"okay":         "👍",
		"bye":          "Take care! Talk soon.",
		"goodbye":      "Take care! Talk soon.",
		"good night":   "Good night! Rest well.",
	},
	"es": {
		"hola":        "¡Hola! ¿En qué te ayudo hoy?",
		"buenos dias": "¡Buenos días! Cuando quieras.",
		"gracias":     "¡Con gusto!",
		"ok":          "👍",
		"vale":        "👍",
		"adios":       "¡Cuídate! Hasta pronto.",
	},
	"de": {
		"hallo":        "Hallo! Wie kann ich heute helfen?",
		"hi":           "Hallo! Wie kann ich heute helfen?",
		"guten morgen": "Guten Morgen! Leg einfach los.",
		"danke":        "Gern geschehen!",
		"ok":           "👍",
		"tschuss":      "Mach's gut! Bis bald.",
	},
	"fr": {
		"salut":   "Salut ! Comment puis-je aider ?",
		"bonjour": "Bonjour ! Quand tu veux.",
		"merci":   "Avec plaisir !",
		"ok":      "👍",
		"au revoir": "Prends soin de toi ! À bientôt.",
	},
	"pt": {
		"oi":       "Oi! Como posso ajudar hoje?",
		"ola":      "Olá! Como posso ajudar hoje?",
		"obrigado": "De nada!",
		"obrigada": "De nada!",
		"ok":       "👍",
		"tchau":    "Cuida-te! Até já.",
	},
}

// Match returns the canned reply for a pleasantry, or ("", false) when the
// message needs a model. Disqualifiers run before the table lookup: a
// question mark, a domain keyword or excess length all mean real content.
func Match(language, message string) (string, bool) {
	if strings.ContainsAny(message, "?¿") {
		return "", false
	}

	normalized := normalize(message)
	if normalized == "" || len(normalized) > maxMatchLen {
		return "", false
	}
	for _, w := range strings.Fields(normalized) {
		for _, kw := range domainKeywords {
			if w == kw {
				return "", false
			}
		}
	}

	table, ok := replies[language]
	if !ok {
		table = replies["en"]
	}
	reply, ok := table[normalized]
	return reply, ok
}

// normalize lowercases, strips punctuation and accents-adjacent marks, and
// collapses whitespace so "Hello!!" and "hello" hit the same key.
func normalize(message string) string {
	lower := strings.ToLower(strings.TrimSpace(message))
	var b strings.Builder
	for _, r := range lower {
		switch r {
		case '!', '.', ',', ';', ':', '\'', '"', '¡', '…', '-', '~':
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
