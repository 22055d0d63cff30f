package canned

import "testing"

func TestMatchPleasantries(t *testing.T) {
	cases := []struct {
		lang, in string
		wantHit  bool
	}{
		{"en", "hi", true},
		{"en", "Hello!!", true},
		{"en", "  Good Morning  ", true},
		{"en", "thanks", true},
		{"es", "hola", true},
		{"es", "¡Gracias!", true},
		{"de", "Guten Morgen", true},
		{"en", "tell me about protein", false},
		{"en", "what's up?", false},
	}
	for _, tc := range cases {
		_, hit := Match(tc.lang, tc.in)
		if hit != tc.wantHit {
			t.Errorf("Match(%s, %q) hit = %v, want %v", tc.lang, tc.in, hit, tc.wantHit)
		}
	}
}

func TestMatchDisqualifiers(t *testing.T) {
	// Greeting followed by a real question must not short-circuit.
	if _, hit := Match("en", "hi, what did I eat today?"); hit {
		t.Fatal("question disqualifier failed")
	}
	// Domain keyword without a question mark.
	if _, hit := Match("en", "hello I ate eggs"); hit {
		t.Fatal("domain keyword disqualifier failed")
	}
	// Over-length input never matches even if it starts with a greeting.
	long := "hello hello hello hello hello hello hello hello hello hello"
	if _, hit := Match("en", long); hit {
		t.Fatal("length disqualifier failed")
	}
}

func TestMatchUnknownLanguageFallsBackToEnglish(t *testing.T) {
	reply, hit := Match("sv", "hello")
	if !hit || reply == "" {
		t.Fatal("expected english table fallback for unknown language")
	}
}

func TestNormalize(t *testing.T) {
	if got := normalize("  Hello!!  "); got != "hello" {
		t.Fatalf("normalize = %q", got)
	}
	if got := normalize("Good   Morning."); got != "good morning" {
		t.Fatalf("normalize = %q", got)
	}
}
