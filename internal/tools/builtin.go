package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stellarlinkco/coachd/internal/store"
)

// NewCatalog registers the standard tool set over the store. search_history
// is not part of the static catalog; it is bound per turn because it needs
// the conversation id.
func NewCatalog(st *store.Store) *Registry {
	r := NewRegistry()
	for _, t := range []Tool{
		&recentMealsTool{st},
		&nutritionSummaryTool{st},
		&searchFoodTool{st},
		&activityHistoryTool{st},
		&profileTool{st},
		&mealDetailsTool{st},
		&updateGoalTool{st},
	} {
		// Names are compile-time constants; duplicates are a programmer error.
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

func marshalResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}

type recentMealsTool struct{ st *store.Store }

func (t *recentMealsTool) Name() string { return "get_recent_meals" }
func (t *recentMealsTool) Description() string {
	return "List the user's most recently logged meals with their nutrition values."
}
func (t *recentMealsTool) Schema() map[string]any {
	return objectSchema(map[string]any{
		"limit": map[string]any{"type": "integer", "description": "max meals to return, default 10"},
	})
}
func (t *recentMealsTool) ReadOnly() bool { return true }
func (t *recentMealsTool) Execute(ctx context.Context, userID string, params map[string]any) (string, error) {
	meals, err := t.st.RecentMeals(userID, intParam(params, "limit", 10))
	if err != nil {
		return "", err
	}
	return marshalResult(map[string]any{"meals": meals})
}

type nutritionSummaryTool struct{ st *store.Store }

func (t *nutritionSummaryTool) Name() string { return "get_nutrition_summary" }
func (t *nutritionSummaryTool) Description() string {
	return "Total calories and macros the user has logged for one day."
}
func (t *nutritionSummaryTool) Schema() map[string]any {
	return objectSchema(map[string]any{
		"date": map[string]any{"type": "string", "description": "UTC date YYYY-MM-DD, default today"},
	})
}
func (t *nutritionSummaryTool) ReadOnly() bool { return true }
func (t *nutritionSummaryTool) Execute(ctx context.Context, userID string, params map[string]any) (string, error) {
	date := stringParam(params, "date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	summary, err := t.st.DailyNutrition(userID, date)
	if err != nil {
		return "", err
	}
	return marshalResult(summary)
}

type searchFoodTool struct{ st *store.Store }

func (t *searchFoodTool) Name() string { return "search_food" }
func (t *searchFoodTool) Description() string {
	return "Search the food catalog by name and return nutrition per 100g plus serving size."
}
func (t *searchFoodTool) Schema() map[string]any {
	return objectSchema(map[string]any{
		"query": map[string]any{"type": "string", "description": "food name or fragment"},
	}, "query")
}
func (t *searchFoodTool) ReadOnly() bool { return true }
func (t *searchFoodTool) Execute(ctx context.Context, userID string, params map[string]any) (string, error) {
	query := stringParam(params, "query")
	if strings.TrimSpace(query) == "" {
		return "", errors.New("query is required")
	}
	foods, err := t.st.SearchFoods(query, 10)
	if err != nil {
		return "", err
	}
	return marshalResult(map[string]any{"foods": foods})
}

type activityHistoryTool struct{ st *store.Store }

func (t *activityHistoryTool) Name() string { return "get_activity_history" }
func (t *activityHistoryTool) Description() string {
	return "List the user's most recently logged activities with duration and calories burned."
}
func (t *activityHistoryTool) Schema() map[string]any {
	return objectSchema(map[string]any{
		"limit": map[string]any{"type": "integer", "description": "max entries to return, default 10"},
	})
}
func (t *activityHistoryTool) ReadOnly() bool { return true }
func (t *activityHistoryTool) Execute(ctx context.Context, userID string, params map[string]any) (string, error) {
	history, err := t.st.ActivityHistory(userID, intParam(params, "limit", 10))
	if err != nil {
		return "", err
	}
	return marshalResult(map[string]any{"activities": history})
}

type profileTool struct{ st *store.Store }

func (t *profileTool) Name() string { return "get_profile" }
func (t *profileTool) Description() string {
	return "The user's profile: goals, weight, timezone and preferred language."
}
func (t *profileTool) Schema() map[string]any {
	return objectSchema(map[string]any{})
}
func (t *profileTool) ReadOnly() bool { return true }
func (t *profileTool) Execute(ctx context.Context, userID string, params map[string]any) (string, error) {
	p, err := t.st.Profile(userID)
	if errors.Is(err, store.ErrNotFound) {
		return marshalResult(map[string]any{"profile": nil, "note": "no profile yet"})
	}
	if err != nil {
		return "", err
	}
	return marshalResult(map[string]any{"profile": p})
}

type mealDetailsTool struct{ st *store.Store }

func (t *mealDetailsTool) Name() string { return "get_meal" }
func (t *mealDetailsTool) Description() string {
	return "Look up one logged meal by its id."
}
func (t *mealDetailsTool) Schema() map[string]any {
	return objectSchema(map[string]any{
		"id": map[string]any{"type": "string", "description": "meal log id"},
	}, "id")
}
func (t *mealDetailsTool) ReadOnly() bool { return true }
func (t *mealDetailsTool) Execute(ctx context.Context, userID string, params map[string]any) (string, error) {
	// User scoping happens in the store query: another user's meal id reads
	// as not found, never as their data.
	meal, err := t.st.MealLogByID(userID, stringParam(params, "id"))
	if errors.Is(err, store.ErrNotFound) {
		return "", errors.New("meal not found")
	}
	if err != nil {
		return "", err
	}
	return marshalResult(meal)
}

type updateGoalTool struct{ st *store.Store }

func (t *updateGoalTool) Name() string { return "update_goal" }
func (t *updateGoalTool) Description() string {
	return "Set the user's daily calorie and protein targets. Use only when the user explicitly asks to change their goal."
}
func (t *updateGoalTool) Schema() map[string]any {
	return objectSchema(map[string]any{
		"calories":  map[string]any{"type": "number", "description": "daily calorie target"},
		"protein_g": map[string]any{"type": "number", "description": "daily protein target in grams"},
		"note":      map[string]any{"type": "string", "description": "short free-text goal description"},
	}, "calories", "protein_g")
}
func (t *updateGoalTool) ReadOnly() bool { return false }
func (t *updateGoalTool) Execute(ctx context.Context, userID string, params map[string]any) (string, error) {
	calories, ok := floatParam(params, "calories")
	if !ok || calories <= 0 {
		return "", errors.New("calories must be a positive number")
	}
	protein, ok := floatParam(params, "protein_g")
	if !ok || protein < 0 {
		return "", errors.New("protein_g must be a non-negative number")
	}
	if err := t.st.UpdateGoal(userID, calories, protein, stringParam(params, "note")); err != nil {
		return "", err
	}
	return marshalResult(map[string]any{"status": "updated", "calories": calories, "protein_g": protein})
}

// searchHistoryTool is the deep-history tier of memory, exposed as a tool so
// the model pulls old context only when it decides it needs it. Bound per
// turn to one conversation.
type searchHistoryTool struct {
	st             *store.Store
	conversationID string
	excludeRecent  int
}

func NewSearchHistory(st *store.Store, conversationID string, excludeRecent int) Tool {
	return &searchHistoryTool{st: st, conversationID: conversationID, excludeRecent: excludeRecent}
}

func (t *searchHistoryTool) Name() string { return "search_history" }
func (t *searchHistoryTool) Description() string {
	return "Search earlier messages of this conversation for specific terms. Use when the user refers to something discussed before."
}
func (t *searchHistoryTool) Schema() map[string]any {
	return objectSchema(map[string]any{
		"query": map[string]any{"type": "string", "description": "search terms, space separated"},
	}, "query")
}
func (t *searchHistoryTool) ReadOnly() bool { return true }
func (t *searchHistoryTool) Execute(ctx context.Context, userID string, params map[string]any) (string, error) {
	terms := strings.Fields(stringParam(params, "query"))
	if len(terms) == 0 {
		return "", errors.New("query is required")
	}
	msgs, err := t.st.SearchMessagesByTerms(t.conversationID, terms, t.excludeRecent)
	if err != nil {
		return "", err
	}
	type hit struct {
		Role    string `json:"role"`
		Content string `json:"content"`
		At      string `json:"at"`
	}
	hits := make([]hit, 0, len(msgs))
	for _, m := range msgs {
		hits = append(hits, hit{Role: m.Role, Content: m.Content, At: m.CreatedAt})
	}
	return marshalResult(map[string]any{"matches": hits})
}
