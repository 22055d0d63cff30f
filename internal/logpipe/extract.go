package logpipe

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/stellarlinkco/coachd/internal/provider"
	"github.com/stellarlinkco/coachd/internal/store"
)

// ProvisionalItem is one extracted mention. Values come from an unverified
// natural-language parse: names are unresolved, numbers are trusted only as
// quantities, and any nutrition guess the extractor makes is ignored at
// confirmation time.
type ProvisionalItem struct {
	Name        string  `json:"name,omitempty"`
	Quantity    float64 `json:"quantity,omitempty"`
	Unit        string  `json:"unit,omitempty"`
	DurationMin float64 `json:"duration_min,omitempty"`
	Metric      string  `json:"metric,omitempty"`
	Value       float64 `json:"value,omitempty"`
	Calories    float64 `json:"calories,omitempty"`
}

// Provisional is the structured_data payload of a pending log entry.
type Provisional struct {
	Items []ProvisionalItem `json:"items"`
}

// Completer is the provider surface extraction uses.
type Completer interface {
	Complete(ctx context.Context, tier provider.Tier, req provider.Request) (*provider.Response, error)
}

// Extractor turns free text into provisional structured data via one
// fast-tier call per message.
type Extractor struct {
	router Completer
	logger *log.Logger
}

func NewExtractor(router Completer) *Extractor {
	return &Extractor{
		router: router,
		logger: log.New(log.Writer(), "[logpipe] ", log.LstdFlags),
	}
}

var extractionPrompts = map[string]string{
	store.LogTypeMeal: `Extract the foods the user reports eating. Respond with only JSON:
{"items":[{"name":"food name as mentioned","quantity":number,"unit":"g"|"scoop"|"serving"|"piece"|"cup"|""}]}
quantity defaults to 1 when unstated. Do not resolve names or compute nutrition.`,
	store.LogTypeActivity: `Extract the physical activities the user reports doing. Respond with only JSON:
{"items":[{"name":"activity name as mentioned","duration_min":number}]}
duration_min defaults to 30 when unstated.`,
	store.LogTypeMeasurement: `Extract the body measurements the user reports. Respond with only JSON:
{"items":[{"metric":"weight"|"waist"|"body_fat"|"other","value":number,"unit":"kg"|"lb"|"cm"|"%"|""}]}`,
}

var zero float64

// Extract parses one message for the given log type.
func (e *Extractor) Extract(ctx context.Context, logType, message string) (*Provisional, error) {
	system, ok := extractionPrompts[logType]
	if !ok {
		return nil, fmt.Errorf("unknown log type %q", logType)
	}

	resp, err := e.router.Complete(ctx, provider.TierFast, provider.Request{
		System:      system,
		Messages:    []provider.Message{{Role: provider.RoleUser, Content: message}},
		MaxTokens:   512,
		Temperature: &zero,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	var prov Provisional
	raw := salvageObject(resp.Message.Content)
	if raw == "" {
		return nil, fmt.Errorf("extraction output unparseable: %q", resp.Message.Content)
	}
	if err := json.Unmarshal([]byte(raw), &prov); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	if len(prov.Items) == 0 {
		return nil, fmt.Errorf("extraction found no items")
	}

	for i := range prov.Items {
		item := &prov.Items[i]
		if item.Quantity == 0 && logType == store.LogTypeMeal {
			item.Quantity = 1
		}
		if item.DurationMin == 0 && logType == store.LogTypeActivity {
			item.DurationMin = 30
		}
		item.Name = strings.TrimSpace(item.Name)
	}
	return &prov, nil
}

func salvageObject(content string) string {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
