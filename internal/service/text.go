package service

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxAnalyzedLen caps input length before regex matching so adversarial
// input cannot trigger catastrophic backtracking.
const maxAnalyzedLen = 8192

func capInput(s string) string {
	if len(s) > maxAnalyzedLen {
		return s[:maxAnalyzedLen]
	}
	return s
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "have": true,
	"has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true, "may": true,
	"might": true, "shall": true, "can": true, "to": true, "of": true,
	"in": true, "for": true, "on": true, "with": true, "at": true,
	"by": true, "from": true, "as": true, "into": true, "through": true,
	"and": true, "or": true, "but": true, "not": true, "no": true,
	"if": true, "then": true, "else": true, "when": true, "up": true,
	"out": true, "that": true, "this": true, "it": true, "its": true,
	"my": true, "me": true, "what": true, "who": true, "how": true,
	"your": true, "you": true, "about": true, "tell": true,
}

// extractKeywords splits text into lowercase words, filtering out short and
// common words. Used for routing, keyword scoring and the topic fallback.
func extractKeywords(text string) []string {
	words := strings.Fields(strings.ToLower(capInput(text)))
	var keywords []string
	seen := make(map[string]bool)
	for _, w := range words {
		// Strip non-alphanumeric edges.
		w = strings.Trim(w, ".,;:!?\"'()[]{}#/*-+=>< ")
		if len(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}

// stem reduces a word to a crude morphological root by stripping common
// suffixes until none apply, so "meetings" and "meeting" collapse to the
// same root. Good enough for retrieval-side matching.
func stem(w string) string {
	for {
		stripped := w
		for _, suffix := range []string{"ing", "ies", "es", "ed", "s"} {
			if strings.HasSuffix(w, suffix) && len(w)-len(suffix) >= 3 {
				stripped = w[:len(w)-len(suffix)]
				break
			}
		}
		if stripped == w {
			return w
		}
		w = stripped
	}
}

// keywordScore returns the normalized [0,1] share of query terms found in
// content, counting morphological variants as matches.
func keywordScore(queryTerms []string, content string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	contentWords := strings.Fields(strings.ToLower(capInput(content)))
	stems := make(map[string]bool, len(contentWords))
	for _, w := range contentWords {
		w = strings.Trim(w, ".,;:!?\"'()[]{} ")
		if w != "" {
			stems[stem(w)] = true
		}
	}

	matched := 0
	for _, term := range queryTerms {
		if stems[stem(term)] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

// --- Ordinals ---

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

var ordinalRe = regexp.MustCompile(`(?i)\b(first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth|(\d{1,2})(?:st|nd|rd|th))\b`)

// detectOrdinal returns the ordinal position referenced in text, if any.
func detectOrdinal(text string) (int, bool) {
	m := ordinalRe.FindStringSubmatch(capInput(text))
	if m == nil {
		return 0, false
	}
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil || n < 1 {
			return 0, false
		}
		return n, true
	}
	if n, ok := ordinalWords[strings.ToLower(m[1])]; ok {
		return n, true
	}
	return 0, false
}

// ordinalSubject returns the noun following the ordinal in text, e.g.
// "code" for "my second code".
func ordinalSubject(text string) string {
	loc := ordinalRe.FindStringIndex(capInput(text))
	if loc == nil {
		return ""
	}
	rest := strings.Fields(text[loc[1]:])
	for _, w := range rest {
		w = strings.ToLower(strings.Trim(w, ".,;:!?\"' "))
		if w == "" || stopWords[w] {
			continue
		}
		return stem(w)
	}
	return ""
}

// --- Temporal markers ---

var temporalRe = regexp.MustCompile(`(?i)\b(\d{1,2}(:\d{2})?\s*(am|pm)|monday|tuesday|wednesday|thursday|friday|saturday|sunday|today|tonight|tomorrow|yesterday|next\s+(week|month|year)|last\s+(week|month|year)|january|february|march|april|may|june|july|august|september|october|november|december|(19|20)\d{2}|meeting|appointment|schedule[ds]?|deadline|due)\b`)

// hasTemporalMarker reports whether text contains a time, date or schedule
// reference. Both sides must be temporal for supersession to fire.
func hasTemporalMarker(text string) bool {
	return temporalRe.MatchString(capInput(text))
}

var durationRe = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(year|month|week|day)s?\b`)
var anchorYearRe = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)

// detectYearDuration returns the first year-denominated duration in
// text. Shorter-unit durations appearing earlier are skipped, so
// "3 weeks of onboarding, then 5 years on the team" yields 5.
func detectYearDuration(text string) (int, bool) {
	for _, m := range durationRe.FindAllStringSubmatch(capInput(text), -1) {
		if !strings.EqualFold(m[2], "year") {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

// detectAnchorYear returns the first four-digit year in text.
func detectAnchorYear(text string) (int, bool) {
	m := anchorYearRe.FindStringSubmatch(capInput(text))
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return y, true
}

// --- Proper names ---

var properNameRe = regexp.MustCompile(`\b\p{Lu}[\p{Ll}\p{M}]{2,}\b`)

var commonCapitalized = map[string]bool{
	"The": true, "This": true, "That": true, "What": true, "When": true,
	"Where": true, "Who": true, "How": true, "Why": true, "Does": true,
	"Did": true, "Can": true, "Will": true, "Should": true, "Please": true,
	"Remember": true, "Monday": true, "Tuesday": true, "Wednesday": true,
	"Thursday": true, "Friday": true, "Saturday": true, "Sunday": true,
	"January": true, "February": true, "March": true, "April": true,
	"May": true, "June": true, "July": true, "August": true,
	"September": true, "October": true, "November": true, "December": true,
}

// properNames returns detected proper names in text. Used for the
// entity-ambiguity boost so same-named entities all survive ranking.
func properNames(text string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range properNameRe.FindAllString(capInput(text), -1) {
		if commonCapitalized[m] || seen[m] {
			continue
		}
		seen[m] = true
		names = append(names, m)
	}
	return names
}

// mentionsName reports whether content contains name, tolerating a
// diacritic-normalized rendering on either side.
func mentionsName(content, name string) bool {
	lc := strings.ToLower(content)
	ln := strings.ToLower(name)
	if strings.Contains(lc, ln) {
		return true
	}
	return strings.Contains(foldDiacritics(lc), foldDiacritics(ln))
}

// --- Diacritics ---

var diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldDiacritics strips combining marks, mapping "José" to "Jose".
func foldDiacritics(s string) string {
	out, _, err := transform.String(diacriticFolder, s)
	if err != nil {
		return s
	}
	return out
}

// hasDiacritics reports whether s contains any combining marks.
func hasDiacritics(s string) bool {
	return foldDiacritics(s) != s
}

// --- Numeric anchors ---

var numericAnchorRe = regexp.MustCompile(`(?i)(\$\s?\d+(?:[.,]\d+)?|\d+(?:[.,]\d+)?\s?(?:%|usd|eur|dollars?|euros?)|\d+(?:[.,]\d+)?\s?(?:years?|months?|weeks?|days?|hours?|minutes?))`)

// numericAnchors returns price/duration style values found in text.
func numericAnchors(text string) []string {
	var anchors []string
	seen := make(map[string]bool)
	for _, m := range numericAnchorRe.FindAllString(capInput(text), -1) {
		m = strings.TrimSpace(m)
		if seen[m] {
			continue
		}
		seen[m] = true
		anchors = append(anchors, m)
	}
	return anchors
}

// --- Importance ---

var healthSafetyRe = regexp.MustCompile(`(?i)\b(allerg(y|ies|ic)|medication|diagnos(is|ed)|emergency|blood|doctor|surgery|asthma|diabet(es|ic)|epilep(sy|tic))\b`)
var explicitPhrasingRe = regexp.MustCompile(`(?i)\b(remember th(is|at)|don'?t forget|make sure to remember|note th(is|at) down|exactly)\b`)

// importanceScore precomputes a [0,1] importance for content at storage
// time from health/safety signals, explicit phrasing and named-entity
// density. Stored as the record's baseline relevance score.
func importanceScore(content string, explicit bool) float64 {
	score := 0.5
	if explicit || explicitPhrasingRe.MatchString(capInput(content)) {
		score += 0.3
	}
	if healthSafetyRe.MatchString(capInput(content)) {
		score += 0.4
	}

	words := len(strings.Fields(content))
	if words > 0 {
		density := float64(len(properNames(content))) / float64(words)
		score += density * 0.5
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
