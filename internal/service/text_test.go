package service

import (
	"strings"
	"testing"
)

func TestDetectOrdinal(t *testing.T) {
	tests := []struct {
		text string
		want int
		ok   bool
	}{
		{"what is my second code?", 2, true},
		{"my first car", 1, true},
		{"the 3rd option", 3, true},
		{"the 10th item", 10, true},
		{"no ordinal here", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := detectOrdinal(tt.text)
		if ok != tt.ok || got != tt.want {
			t.Errorf("detectOrdinal(%q) = (%d, %v), want (%d, %v)", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestOrdinalSubject(t *testing.T) {
	if got := ordinalSubject("what is my second code?"); got != "code" {
		t.Errorf("subject = %q, want code", got)
	}
	if got := ordinalSubject("my first car was red"); got != "car" {
		t.Errorf("subject = %q, want car", got)
	}
	if got := ordinalSubject("nothing ordinal"); got != "" {
		t.Errorf("subject = %q, want empty", got)
	}
}

func TestHasTemporalMarker(t *testing.T) {
	temporal := []string{
		"meeting at 2pm",
		"appointment on Monday",
		"deadline next week",
		"left in 2020",
		"dinner tomorrow",
	}
	for _, s := range temporal {
		if !hasTemporalMarker(s) {
			t.Errorf("hasTemporalMarker(%q) = false, want true", s)
		}
	}

	plain := []string{
		"likes espresso",
		"Alex is my doctor",
		"favorite color is blue",
	}
	for _, s := range plain {
		if hasTemporalMarker(s) {
			t.Errorf("hasTemporalMarker(%q) = true, want false", s)
		}
	}
}

func TestDetectYearDurationAndAnchor(t *testing.T) {
	n, ok := detectYearDuration("worked there 5 years before leaving")
	if !ok || n != 5 {
		t.Fatalf("detectYearDuration = (%d, %v)", n, ok)
	}

	// A shorter-unit duration earlier in the text must not mask the
	// year-denominated one.
	n, ok = detectYearDuration("3 weeks of onboarding, then 5 years on the team")
	if !ok || n != 5 {
		t.Fatalf("detectYearDuration = (%d, %v), want (5, true)", n, ok)
	}

	y, ok := detectAnchorYear("left the company in 2020")
	if !ok || y != 2020 {
		t.Fatalf("detectAnchorYear = (%d, %v)", y, ok)
	}

	if _, ok := detectYearDuration("stayed for 6 months"); ok {
		t.Error("months are not a year duration")
	}
	if _, ok := detectYearDuration("no duration"); ok {
		t.Error("expected no duration")
	}
	if _, ok := detectAnchorYear("no year"); ok {
		t.Error("expected no year")
	}
}

func TestProperNames(t *testing.T) {
	names := properNames("Alex is my doctor and José is my marketer")
	if len(names) != 2 {
		t.Fatalf("names = %v, want 2 entries", names)
	}
	if names[0] != "Alex" || names[1] != "José" {
		t.Errorf("names = %v", names)
	}

	if got := properNames("What should I do tomorrow?"); len(got) != 0 {
		t.Errorf("expected no names in question words, got %v", got)
	}
}

func TestFoldDiacritics(t *testing.T) {
	if got := foldDiacritics("José Müller"); got != "Jose Muller" {
		t.Errorf("foldDiacritics = %q", got)
	}
	if !hasDiacritics("José") {
		t.Error("expected diacritics in José")
	}
	if hasDiacritics("Jose") {
		t.Error("expected no diacritics in Jose")
	}
}

func TestNumericAnchors(t *testing.T) {
	anchors := numericAnchors("the plan costs $49.99 and runs for 12 months")
	if len(anchors) != 2 {
		t.Fatalf("anchors = %v, want 2", anchors)
	}
	if anchors[0] != "$49.99" {
		t.Errorf("anchors[0] = %q", anchors[0])
	}
	if anchors[1] != "12 months" {
		t.Errorf("anchors[1] = %q", anchors[1])
	}
}

func TestKeywordScore(t *testing.T) {
	terms := extractKeywords("favorite coffee drink")
	if got := keywordScore(terms, "my favorite drink is coffee"); got != 1.0 {
		t.Errorf("full match score = %v, want 1.0", got)
	}
	if got := keywordScore(terms, "nothing relevant at all"); got != 0 {
		t.Errorf("no match score = %v, want 0", got)
	}

	// Morphological variants: "meetings" matches "meeting".
	if got := keywordScore(extractKeywords("upcoming meetings"), "meeting with the team"); got == 0 {
		t.Error("expected stem match for meetings/meeting")
	}
}

func TestImportanceScore(t *testing.T) {
	base := importanceScore("likes walking", false)
	health := importanceScore("allergic to peanuts", false)
	explicit := importanceScore("likes walking", true)

	if health <= base {
		t.Errorf("health %v should exceed base %v", health, base)
	}
	if explicit <= base {
		t.Errorf("explicit %v should exceed base %v", explicit, base)
	}
	if health > 1.0 || explicit > 1.0 {
		t.Error("scores must stay within [0,1]")
	}
}

func TestCapInput(t *testing.T) {
	long := strings.Repeat("a", maxAnalyzedLen*2)
	if got := len(capInput(long)); got != maxAnalyzedLen {
		t.Errorf("capInput length = %d, want %d", got, maxAnalyzedLen)
	}
}
