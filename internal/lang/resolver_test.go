package lang

import (
	"testing"
	"time"

	"github.com/stellarlinkco/coachd/internal/store"
)

type fakeProfiles struct {
	profiles map[string]*store.Profile
	reads    int
}

func (f *fakeProfiles) Profile(userID string) (*store.Profile, error) {
	f.reads++
	if p, ok := f.profiles[userID]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeProfiles) SetProfileLanguage(userID, language string) error {
	if f.profiles == nil {
		f.profiles = make(map[string]*store.Profile)
	}
	f.profiles[userID] = &store.Profile{UserID: userID, Language: language}
	return nil
}

func TestResolveProfilePreference(t *testing.T) {
	fp := &fakeProfiles{profiles: map[string]*store.Profile{
		"u1": {UserID: "u1", Language: "de"},
	}}
	r := NewResolver(fp, time.Minute, "en")

	if got := r.Resolve("u1", "hello there my friend"); got != "de" {
		t.Fatalf("got %q, want de", got)
	}

	// Second resolve within TTL hits the cache, not the store.
	reads := fp.reads
	if got := r.Resolve("u1", "hello"); got != "de" {
		t.Fatalf("got %q, want de", got)
	}
	if fp.reads != reads {
		t.Fatalf("cache miss: store reads went %d -> %d", reads, fp.reads)
	}
}

func TestResolveCacheExpiry(t *testing.T) {
	fp := &fakeProfiles{profiles: map[string]*store.Profile{
		"u1": {UserID: "u1", Language: "de"},
	}}
	r := NewResolver(fp, time.Minute, "en")
	clock := time.Now()
	r.now = func() time.Time { return clock }

	r.Resolve("u1", "hello")
	fp.profiles["u1"].Language = "fr"

	// Still cached.
	if got := r.Resolve("u1", "hello"); got != "de" {
		t.Fatalf("got %q, want cached de", got)
	}

	clock = clock.Add(2 * time.Minute)
	if got := r.Resolve("u1", "hello"); got != "fr" {
		t.Fatalf("got %q, want refreshed fr", got)
	}
}

func TestResolveDetectionFallback(t *testing.T) {
	r := NewResolver(&fakeProfiles{}, time.Minute, "en")

	if got := r.Resolve("u1", "¿que puedo comer hoy para la cena?"); got != "es" {
		t.Fatalf("got %q, want es", got)
	}
	// Thin evidence falls back to the default.
	if got := r.Resolve("u2", "ok"); got != "en" {
		t.Fatalf("got %q, want en default", got)
	}
}

func TestPinUpdatesStoreAndCache(t *testing.T) {
	fp := &fakeProfiles{}
	r := NewResolver(fp, time.Minute, "en")

	if err := r.Pin("u1", "pt"); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if fp.profiles["u1"].Language != "pt" {
		t.Fatal("preference not persisted")
	}
	if got := r.Resolve("u1", "whatever text here"); got != "pt" {
		t.Fatalf("got %q, want pinned pt", got)
	}
}

func TestDetect(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"what did I eat today", "en"},
		{"что мне съесть на ужин", "ru"},
		{"今天我吃了什么东西", "zh"},
		{"ich habe heute nur brot und eier gegessen", "de"},
		{"hm", ""},
		{"pizza", ""},
	}
	for _, tc := range cases {
		if got := Detect(tc.in); got != tc.want {
			t.Errorf("Detect(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
