package tools

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stellarlinkco/coachd/internal/provider"
	"github.com/stellarlinkco/coachd/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "coach.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSanitizeParams(t *testing.T) {
	params := map[string]any{
		"query": "whey\x00 protein\x1b",
		"limit": 5.0,
		"nested": map[string]any{
			"note": "keep\nnewlines",
		},
	}
	out, err := SanitizeParams(params)
	if err != nil {
		t.Fatalf("SanitizeParams: %v", err)
	}
	if out["query"] != "whey protein" {
		t.Fatalf("query = %q", out["query"])
	}
	if out["nested"].(map[string]any)["note"] != "keep\nnewlines" {
		t.Fatal("newline stripped")
	}

	_, err = SanitizeParams(map[string]any{"q": "x'; DROP TABLE foods; --"})
	if err == nil {
		t.Fatal("injection-shaped value accepted")
	}
}

type fakeTool struct {
	name     string
	readOnly bool
	delay    time.Duration
	err      error
	running  atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (f *fakeTool) Name() string           { return f.name }
func (f *fakeTool) Description() string    { return "fake" }
func (f *fakeTool) Schema() map[string]any { return objectSchema(map[string]any{}) }
func (f *fakeTool) ReadOnly() bool         { return f.readOnly }
func (f *fakeTool) Execute(ctx context.Context, userID string, params map[string]any) (string, error) {
	f.calls.Add(1)
	cur := f.running.Add(1)
	for {
		peak := f.peak.Load()
		if cur <= peak || f.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			f.running.Add(-1)
			return "", ctx.Err()
		}
	}
	f.running.Add(-1)
	if f.err != nil {
		return "", f.err
	}
	return `{"ok":true}`, nil
}

func TestExecutorOrderAndErrors(t *testing.T) {
	r := NewRegistry()
	read := &fakeTool{name: "read_a", readOnly: true}
	failing := &fakeTool{name: "read_b", readOnly: true, err: errors.New("backend down")}
	mut := &fakeTool{name: "write_a"}
	for _, tool := range []Tool{read, failing, mut} {
		if err := r.Register(tool); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	e := NewExecutor(r, 5, time.Second)
	calls := []provider.ToolCall{
		{ID: "1", Name: "read_a"},
		{ID: "2", Name: "write_a"},
		{ID: "3", Name: "read_b"},
		{ID: "4", Name: "missing"},
	}
	outcomes := e.Execute(context.Background(), "u1", calls)

	if len(outcomes) != 4 {
		t.Fatalf("outcomes = %d", len(outcomes))
	}
	for i, o := range outcomes {
		if o.Call.ID != calls[i].ID {
			t.Fatalf("outcome %d out of order: %+v", i, o)
		}
	}
	if outcomes[0].IsError {
		t.Fatalf("read_a errored: %s", outcomes[0].Result)
	}
	if !outcomes[2].IsError || !strings.Contains(outcomes[2].Result, "backend down") {
		t.Fatalf("read_b outcome = %+v", outcomes[2])
	}
	if !outcomes[3].IsError || !strings.Contains(outcomes[3].Result, "unknown tool") {
		t.Fatalf("missing tool outcome = %+v", outcomes[3])
	}
	if mut.calls.Load() != 1 {
		t.Fatal("mutating tool not executed")
	}
}

func TestExecutorMutationsSequential(t *testing.T) {
	r := NewRegistry()
	mut := &fakeTool{name: "write_a", delay: 10 * time.Millisecond}
	if err := r.Register(mut); err != nil {
		t.Fatalf("Register: %v", err)
	}

	e := NewExecutor(r, 5, time.Second)
	calls := []provider.ToolCall{
		{ID: "1", Name: "write_a"},
		{ID: "2", Name: "write_a"},
		{ID: "3", Name: "write_a"},
	}
	e.Execute(context.Background(), "u1", calls)

	if peak := mut.peak.Load(); peak != 1 {
		t.Fatalf("mutating tool peak concurrency = %d, want 1", peak)
	}
}

func TestExecutorSurvivesCallerDisconnect(t *testing.T) {
	r := NewRegistry()
	read := &fakeTool{name: "read_a", readOnly: true, delay: 10 * time.Millisecond}
	mut := &fakeTool{name: "write_a", delay: 10 * time.Millisecond}
	for _, tool := range []Tool{read, mut} {
		if err := r.Register(tool); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewExecutor(r, 5, time.Second)
	outcomes := e.Execute(ctx, "u1", []provider.ToolCall{
		{ID: "1", Name: "read_a"},
		{ID: "2", Name: "write_a"},
	})
	for _, o := range outcomes {
		if o.IsError {
			t.Fatalf("in-flight call aborted by disconnect: %+v", o)
		}
	}
	if mut.calls.Load() != 1 {
		t.Fatal("mutating tool did not run to completion")
	}
}

func TestExecutorTimeout(t *testing.T) {
	r := NewRegistry()
	slow := &fakeTool{name: "slow", readOnly: true, delay: 200 * time.Millisecond}
	if err := r.Register(slow); err != nil {
		t.Fatalf("Register: %v", err)
	}

	e := NewExecutor(r, 5, 20*time.Millisecond)
	outcomes := e.Execute(context.Background(), "u1", []provider.ToolCall{{ID: "1", Name: "slow"}})
	if !outcomes[0].IsError {
		t.Fatal("timed-out tool should report an error outcome")
	}
}

func TestSearchFoodTool(t *testing.T) {
	st := newTestStore(t)
	r := NewCatalog(st)
	tool, ok := r.Get("search_food")
	if !ok {
		t.Fatal("search_food not registered")
	}

	result, err := tool.Execute(context.Background(), "u1", map[string]any{"query": "whey"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gjson.Get(result, "foods.0.Name").String() != "whey protein" {
		t.Fatalf("result = %s", result)
	}

	if _, err := tool.Execute(context.Background(), "u1", map[string]any{}); err == nil {
		t.Fatal("missing query accepted")
	}
}

func TestMealToolCrossUserScoping(t *testing.T) {
	st := newTestStore(t)
	foods, _ := st.SearchFoods("whey", 1)
	id, err := st.ApplyMealMutation(store.MealLog{UserID: "alice", FoodID: foods[0].ID, Grams: 60, Calories: 240, ProteinG: 48})
	if err != nil {
		t.Fatalf("ApplyMealMutation: %v", err)
	}

	tool, _ := NewCatalog(st).Get("get_meal")
	if _, err := tool.Execute(context.Background(), "alice", map[string]any{"id": id}); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := tool.Execute(context.Background(), "mallory", map[string]any{"id": id}); err == nil {
		t.Fatal("cross-user meal read succeeded")
	}
}

func TestUpdateGoalTool(t *testing.T) {
	st := newTestStore(t)
	tool, _ := NewCatalog(st).Get("update_goal")
	if tool.ReadOnly() {
		t.Fatal("update_goal must be mutating")
	}

	_, err := tool.Execute(context.Background(), "u1", map[string]any{"calories": 2400.0, "protein_g": 180.0, "note": "bulk"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	p, err := st.Profile("u1")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.GoalCalories != 2400 || p.GoalProteinG != 180 {
		t.Fatalf("profile = %+v", p)
	}

	if _, err := tool.Execute(context.Background(), "u1", map[string]any{"calories": -5.0, "protein_g": 100.0}); err == nil {
		t.Fatal("negative calories accepted")
	}
}

func TestSearchHistoryTool(t *testing.T) {
	st := newTestStore(t)
	conv, _ := st.EnsureConversation("u1", "")
	history := []string{
		"my knee injury flared up",
		"random chat",
		"more random chat",
	}
	for _, c := range history {
		if _, err := st.AppendMessage(store.Message{ConversationID: conv.ID, Role: "user", Content: c}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	tool := NewSearchHistory(st, conv.ID, 1)
	result, err := tool.Execute(context.Background(), "u1", map[string]any{"query": "knee injury"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gjson.Get(result, "matches.#").Int() != 1 {
		t.Fatalf("result = %s", result)
	}
}
