package orchestrator

import (
	"fmt"
	"strings"

	"github.com/stellarlinkco/coachd/internal/logpipe"
	"github.com/stellarlinkco/coachd/internal/store"
)

// User-visible failure and filler text, keyed by language. Short, in the
// user's resolved language, and never exposing internal detail.

var trivialReplies = map[string]string{
	"en": "Here for you. Anything on your mind?",
	"es": "Aquí estoy, ¿qué tienes en mente?",
	"de": "Bin da. Was liegt an?",
	"fr": "Je suis là. Qu'est-ce qui t'amène ?",
	"pt": "Estou aqui. O que tens em mente?",
}

var unavailableReplies = map[string]string{
	"en": "I'm having trouble reaching my coaching brain right now. Please try again in a minute.",
	"es": "Ahora mismo no consigo conectar. Inténtalo de nuevo en un minuto.",
	"de": "Ich komme gerade nicht durch. Versuch es in einer Minute nochmal.",
	"fr": "Je n'arrive pas à me connecter pour l'instant. Réessaie dans une minute.",
	"pt": "Não estou a conseguir ligar agora. Tenta outra vez daqui a um minuto.",
}

var partialReplies = map[string]string{
	"en": "That took more digging than I could finish in one go. Could you ask me in smaller steps?",
	"es": "Eso me llevó más de lo que pude terminar de una vez. ¿Puedes pedírmelo por partes?",
	"de": "Das war mehr, als ich in einem Durchgang schaffe. Frag mich bitte in kleineren Schritten.",
	"fr": "Cela demandait plus que je ne pouvais faire d'un coup. Peux-tu demander étape par étape ?",
	"pt": "Isso foi mais do que consegui de uma vez. Podes pedir por partes?",
}

var extractionFailedReplies = map[string]string{
	"en": "I couldn't quite make out what to log there. Could you say it again with the amounts?",
	"es": "No entendí bien qué registrar. ¿Puedes repetirlo con las cantidades?",
	"de": "Ich konnte nicht erkennen, was ich eintragen soll. Sag es nochmal mit Mengen.",
	"fr": "Je n'ai pas bien compris quoi enregistrer. Peux-tu répéter avec les quantités ?",
	"pt": "Não percebi bem o que registar. Podes repetir com as quantidades?",
}

var previewTemplates = map[string]struct {
	lead, confirm, alsoQuestion string
}{
	"en": {"Got it, here's what I'll log:", "Shall I save it?", "I'll answer your question right after you confirm."},
	"es": {"Entendido, esto es lo que registraré:", "¿Lo guardo?", "Respondo tu pregunta en cuanto confirmes."},
	"de": {"Alles klar, das trage ich ein:", "Soll ich es speichern?", "Deine Frage beantworte ich direkt nach der Bestätigung."},
	"fr": {"Compris, voici ce que j'enregistre :", "Je le sauvegarde ?", "Je réponds à ta question dès que tu confirmes."},
	"pt": {"Entendido, é isto que vou registar:", "Guardo?", "Respondo à tua pergunta assim que confirmares."},
}

func localized(table map[string]string, language string) string {
	if msg, ok := table[language]; ok {
		return msg
	}
	return table["en"]
}

// previewReply renders the pending-log preview the user confirms or rejects.
func previewReply(language, logType string, prov *logpipe.Provisional) string {
	t, ok := previewTemplates[language]
	if !ok {
		t = previewTemplates["en"]
	}

	lines := []string{t.lead}
	for _, item := range prov.Items {
		lines = append(lines, "• "+describeItem(logType, item))
	}
	lines = append(lines, t.confirm)
	return strings.Join(lines, "\n")
}

// questionNote is the fallback line when a dual-intent message's question
// could not be answered inline.
func questionNote(language string) string {
	t, ok := previewTemplates[language]
	if !ok {
		t = previewTemplates["en"]
	}
	return t.alsoQuestion
}

func describeItem(logType string, item logpipe.ProvisionalItem) string {
	switch logType {
	case store.LogTypeActivity:
		return fmt.Sprintf("%s, %s min", item.Name, trimFloat(item.DurationMin))
	case store.LogTypeMeasurement:
		return fmt.Sprintf("%s: %s %s", item.Metric, trimFloat(item.Value), item.Unit)
	default:
		unit := item.Unit
		if unit == "" {
			unit = "serving"
		}
		return fmt.Sprintf("%s %s %s", trimFloat(item.Quantity), unit, item.Name)
	}
}

func trimFloat(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.1f", v), "0"), ".")
}
