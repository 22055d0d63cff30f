package memory

import (
	"errors"
	"strings"
	"testing"

	"github.com/stellarlinkco/coachd/internal/store"
)

type fakeMessages struct {
	recent      []store.Message
	matches     []store.Message
	searchErr   error
	searchCalls int
}

func (f *fakeMessages) RecentMessages(conversationID string, limit int) ([]store.Message, error) {
	if len(f.recent) > limit {
		return f.recent[len(f.recent)-limit:], nil
	}
	return f.recent, nil
}

func (f *fakeMessages) SearchMessagesByTerms(conversationID string, terms []string, excludeRecent int) ([]store.Message, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.matches, nil
}

func msgs(contents ...string) []store.Message {
	out := make([]store.Message, len(contents))
	for i, c := range contents {
		out[i] = store.Message{Role: "user", Content: c}
	}
	return out
}

func TestAssembleWorkingSetFloor(t *testing.T) {
	fm := &fakeMessages{recent: msgs("one", "two", "three")}
	// Budget of 1 token cannot hold the working set; it is included anyway.
	a := NewAssembler(fm, 10, 1)

	ctx, err := a.Assemble("c1", "nothing salient here")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(ctx.WorkingSet) != 3 {
		t.Fatalf("working set = %d, want 3", len(ctx.WorkingSet))
	}
	if ctx.WorkingSet[0].Content != "one" || ctx.WorkingSet[2].Content != "three" {
		t.Fatal("working set out of order")
	}
}

func TestAssembleTierTwoRequiresCurrentMessageSalience(t *testing.T) {
	// Salience terms live only in history; the current message is mundane.
	fm := &fakeMessages{
		recent:  msgs("I have a peanut allergy", "noted"),
		matches: msgs("old allergy mention"),
	}
	a := NewAssembler(fm, 10, 3000)

	ctx, err := a.Assemble("c1", "what should I have for lunch")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(ctx.ImportantSet) != 0 {
		t.Fatal("tier 2 fired without current-message salience")
	}
	if fm.searchCalls != 0 {
		t.Fatal("salience search ran for a non-salient message")
	}
}

func TestAssembleTierTwoRecall(t *testing.T) {
	fm := &fakeMessages{
		recent:  msgs("recent chatter"),
		matches: msgs("I'm allergic to peanuts", "my knee injury from 2024"),
	}
	a := NewAssembler(fm, 10, 3000)

	ctx, err := a.Assemble("c1", "is peanut butter ok with my allergy?")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(ctx.ImportantSet) != 2 {
		t.Fatalf("important set = %d, want 2", len(ctx.ImportantSet))
	}
	if ctx.ImportantSet[0].Content != "I'm allergic to peanuts" {
		t.Fatal("important set order changed")
	}
}

func TestAssembleBudgetStopsTierTwo(t *testing.T) {
	long := strings.Repeat("x", 400) // 100 tokens each
	fm := &fakeMessages{
		recent:  msgs("short"),
		matches: msgs(long, long, long),
	}
	// Budget fits the working set plus roughly two recalled messages.
	a := NewAssembler(fm, 10, 210)

	ctx, err := a.Assemble("c1", "remember my allergy")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(ctx.ImportantSet) != 2 {
		t.Fatalf("important set = %d, want 2", len(ctx.ImportantSet))
	}
	if ctx.TokenEstimate > 210 {
		t.Fatalf("estimate %d exceeds budget", ctx.TokenEstimate)
	}
}

func TestAssembleRecallFailureDegrades(t *testing.T) {
	fm := &fakeMessages{
		recent:    msgs("recent"),
		searchErr: errors.New("fts broke"),
	}
	a := NewAssembler(fm, 10, 3000)

	ctx, err := a.Assemble("c1", "my allergy question")
	if err != nil {
		t.Fatalf("Assemble should degrade, got %v", err)
	}
	if len(ctx.WorkingSet) != 1 || len(ctx.ImportantSet) != 0 {
		t.Fatalf("ctx = %+v", ctx)
	}
}

func TestIsSalient(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"I'm allergic to shellfish", true},
		{"my knee hurts after runs", true},
		{"training for a marathon", true},
		{"what's a good breakfast", false},
		{"goals", false}, // word-boundary: "goals" is not the term "goal"
	}
	for _, tc := range cases {
		if got := IsSalient(tc.in); got != tc.want {
			t.Errorf("IsSalient(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
