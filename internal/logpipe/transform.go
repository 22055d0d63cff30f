package logpipe

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/stellarlinkco/coachd/internal/store"
)

// ItemError identifies one mention that could not be resolved.
type ItemError struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ResolutionError is the itemized all-or-nothing failure of a transform.
// When any item fails, nothing is applied.
type ResolutionError struct {
	Items []ItemError
}

func (e *ResolutionError) Error() string {
	parts := make([]string, len(e.Items))
	for i, item := range e.Items {
		parts[i] = fmt.Sprintf("%q: %s", item.Name, item.Reason)
	}
	return "could not resolve: " + strings.Join(parts, "; ")
}

// Mutation is one canonical write the transformer produced. Exactly one of
// the three payloads is set, matching the log type.
type Mutation struct {
	Meal        *store.MealLog
	Activity    *store.ActivityLog
	Measurement *store.Measurement
}

// Catalog is the canonical-entity surface the transformer resolves against.
type Catalog interface {
	Foods() ([]store.Food, error)
	Activities() ([]store.Activity, error)
	Profile(userID string) (*store.Profile, error)
}

// Transformer converts confirmed provisional items into canonical mutations.
// Every derived value is recomputed from catalog data; nothing numeric in
// the provisional payload is trusted except quantities and durations.
type Transformer struct {
	catalog Catalog
}

func NewTransformer(catalog Catalog) *Transformer {
	return &Transformer{catalog: catalog}
}

// defaultWeightKg is used for activity calorie estimates when the user has
// no recorded weight.
const defaultWeightKg = 70

// Transform resolves all items of one pending entry. All-or-nothing: any
// unresolved item fails the whole call with an itemized error and no
// mutations are returned.
func (t *Transformer) Transform(userID, logType string, items []ProvisionalItem) ([]Mutation, error) {
	switch logType {
	case store.LogTypeMeal:
		return t.transformMeals(userID, items)
	case store.LogTypeActivity:
		return t.transformActivities(userID, items)
	case store.LogTypeMeasurement:
		return t.transformMeasurements(userID, items)
	default:
		return nil, fmt.Errorf("unknown log type %q", logType)
	}
}

func (t *Transformer) transformMeals(userID string, items []ProvisionalItem) ([]Mutation, error) {
	foods, err := t.catalog.Foods()
	if err != nil {
		return nil, fmt.Errorf("load food catalog: %w", err)
	}
	names := make([]string, len(foods))
	for i, f := range foods {
		names[i] = f.Name
	}

	var mutations []Mutation
	var resErr ResolutionError
	for i, item := range items {
		idx, reason := resolveName(item.Name, names)
		if idx < 0 {
			resErr.Items = append(resErr.Items, ItemError{Index: i, Name: item.Name, Reason: reason})
			continue
		}
		food := foods[idx]

		grams := gramsFor(item, food)
		if grams <= 0 {
			resErr.Items = append(resErr.Items, ItemError{Index: i, Name: item.Name, Reason: "quantity must be positive"})
			continue
		}

		factor := grams / 100
		mutations = append(mutations, Mutation{Meal: &store.MealLog{
			UserID:   userID,
			FoodID:   food.ID,
			Grams:    grams,
			Calories: round1(food.CaloriesPer100g * factor),
			ProteinG: round1(food.ProteinPer100g * factor),
			CarbsG:   round1(food.CarbsPer100g * factor),
			FatG:     round1(food.FatPer100g * factor),
		}})
	}
	if len(resErr.Items) > 0 {
		return nil, &resErr
	}
	return mutations, nil
}

func (t *Transformer) transformActivities(userID string, items []ProvisionalItem) ([]Mutation, error) {
	activities, err := t.catalog.Activities()
	if err != nil {
		return nil, fmt.Errorf("load activity catalog: %w", err)
	}
	names := make([]string, len(activities))
	for i, a := range activities {
		names[i] = a.Name
	}

	weight := float64(defaultWeightKg)
	if p, err := t.catalog.Profile(userID); err == nil && p.WeightKg > 0 {
		weight = p.WeightKg
	}

	var mutations []Mutation
	var resErr ResolutionError
	for i, item := range items {
		idx, reason := resolveName(item.Name, names)
		if idx < 0 {
			resErr.Items = append(resErr.Items, ItemError{Index: i, Name: item.Name, Reason: reason})
			continue
		}
		if item.DurationMin <= 0 {
			resErr.Items = append(resErr.Items, ItemError{Index: i, Name: item.Name, Reason: "duration must be positive"})
			continue
		}
		activity := activities[idx]

		// kcal = MET * weight(kg) * hours
		burned := round1(activity.MET * weight * item.DurationMin / 60)
		mutations = append(mutations, Mutation{Activity: &store.ActivityLog{
			UserID:         userID,
			ActivityID:     activity.ID,
			DurationMin:    item.DurationMin,
			CaloriesBurned: burned,
		}})
	}
	if len(resErr.Items) > 0 {
		return nil, &resErr
	}
	return mutations, nil
}

func (t *Transformer) transformMeasurements(userID string, items []ProvisionalItem) ([]Mutation, error) {
	var mutations []Mutation
	var resErr ResolutionError
	for i, item := range items {
		metric := strings.ToLower(strings.TrimSpace(item.Metric))
		if metric == "" {
			resErr.Items = append(resErr.Items, ItemError{Index: i, Name: item.Metric, Reason: "metric is required"})
			continue
		}
		if item.Value <= 0 {
			resErr.Items = append(resErr.Items, ItemError{Index: i, Name: metric, Reason: "value must be positive"})
			continue
		}
		value, unit := item.Value, strings.ToLower(item.Unit)
		if metric == "weight" && (unit == "lb" || unit == "lbs") {
			value, unit = round1(value*0.4536), "kg"
		}
		mutations = append(mutations, Mutation{Measurement: &store.Measurement{
			UserID: userID,
			Metric: metric,
			Value:  value,
			Unit:   unit,
		}})
	}
	if len(resErr.Items) > 0 {
		return nil, &resErr
	}
	return mutations, nil
}

// resolveName matches a mention against catalog names: exact, then unique
// prefix, then fuzzy with an unambiguous winner. Returns the index or -1
// with a reason.
func resolveName(mention string, names []string) (int, string) {
	needle := strings.ToLower(strings.TrimSpace(mention))
	if needle == "" {
		return -1, "empty name"
	}

	for i, n := range names {
		if strings.ToLower(n) == needle {
			return i, ""
		}
	}

	prefixIdx := -1
	for i, n := range names {
		if strings.HasPrefix(strings.ToLower(n), needle) {
			if prefixIdx >= 0 {
				return -1, "ambiguous name"
			}
			prefixIdx = i
		}
	}
	if prefixIdx >= 0 {
		return prefixIdx, ""
	}

	matches := fuzzy.Find(needle, names)
	if len(matches) == 0 {
		return -1, "unknown name"
	}
	if len(matches) > 1 && matches[0].Score == matches[1].Score {
		return -1, "ambiguous name"
	}
	return matches[0].Index, ""
}

// gramsFor converts quantity language into grams. Explicit gram units take
// the quantity as-is; everything else is serving-mode and multiplies by the
// entity's serving weight.
func gramsFor(item ProvisionalItem, food store.Food) float64 {
	switch strings.ToLower(strings.TrimSpace(item.Unit)) {
	case "g", "gram", "grams", "gr":
		return item.Quantity
	case "kg":
		return item.Quantity * 1000
	case "oz":
		return round1(item.Quantity * 28.35)
	default:
		// scoop, serving, piece, cup, "": all serving-mode
		return item.Quantity * food.ServingGrams
	}
}

func round1(v float64) float64 {
	if v < 0 {
		return float64(int(v*10-0.5)) / 10
	}
	return float64(int(v*10+0.5)) / 10
}
