package service

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Strob0t/MemCore/internal/config"
	"github.com/Strob0t/MemCore/internal/domain/answer"
)

// stepFunc is one deterministic correction. It returns the possibly
// patched draft, whether a correction fired, and a human-readable reason.
type stepFunc func(query, context, draft string) (string, bool, string, error)

type step struct {
	name    string
	enabled bool
	fn      stepFunc
}

// ValidatorChain runs a fixed sequence of deterministic checks on the
// LLM's draft answer. A later step never undoes an earlier one, and a
// failing step never aborts the chain.
type ValidatorChain struct {
	steps []step
}

// NewValidatorChain creates the chain with the configured step toggles.
func NewValidatorChain(cfg *config.Validators) *ValidatorChain {
	return &ValidatorChain{
		steps: []step{
			{name: "ordinal", enabled: cfg.Ordinal, fn: ordinalStep},
			{name: "temporal", enabled: cfg.Temporal, fn: temporalStep},
			{name: "characters", enabled: cfg.Characters, fn: charactersStep},
			{name: "numeric", enabled: cfg.Numeric, fn: numericStep},
		},
	}
}

// Validate runs the chain. Telemetry is emitted for every step whether
// or not a correction fired.
func (v *ValidatorChain) Validate(in answer.Input) answer.Result {
	draft := in.Draft
	telemetry := make([]answer.StepResult, 0, len(v.steps))

	for _, s := range v.steps {
		if !s.enabled {
			telemetry = append(telemetry, answer.StepResult{Step: s.name, Reason: "disabled"})
			continue
		}

		patched, applied, reason, err := s.fn(in.Query, in.Context, draft)
		sr := answer.StepResult{Step: s.name, Applied: applied, Reason: reason}
		if err != nil {
			// Internal step failure: log, leave the draft untouched by
			// this step, continue the chain.
			sr.Error = err.Error()
			slog.Warn("validator step failed", "step", s.name, "error", err)
		} else if applied {
			draft = patched
		}
		telemetry = append(telemetry, sr)
	}

	return answer.Result{FinalAnswer: draft, Telemetry: telemetry}
}

// --- Ordinal correctness ---

// ordinalStep resolves "my second X" queries against the facts in
// context. It must catch both a missing correct value and a present
// wrong one: checking "is the right answer present" alone lets a draft
// that also contains the wrong sibling value through.
func ordinalStep(query, context, draft string) (string, bool, string, error) {
	queryOrdinal, ok := detectOrdinal(query)
	if !ok {
		return draft, false, "no ordinal in query", nil
	}
	subject := ordinalSubject(query)
	if subject == "" {
		return draft, false, "no subject after ordinal", nil
	}

	values := ordinalValues(context, subject)
	correct, ok := values[queryOrdinal]
	if !ok {
		return draft, false, "no matching fact in context", nil
	}

	// Replace any wrong sibling value present in the draft.
	for ord, val := range values {
		if ord == queryOrdinal || val == correct {
			continue
		}
		if containsWord(draft, val) {
			patched := replaceWord(draft, val, correct)
			if !containsWord(patched, correct) {
				patched = patched + " " + correct
			}
			return patched, true, fmt.Sprintf("replaced %s with %s", val, correct), nil
		}
	}

	if !containsWord(draft, correct) {
		return draft + " " + correct, true, fmt.Sprintf("injected missing value %s", correct), nil
	}
	return draft, false, "draft already correct", nil
}

// ordinalValueRe captures "my <ordinal> <subject> is <VALUE>" style facts.
var ordinalValueRe = regexp.MustCompile(`(?i)\b(first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth|\d{1,2}(?:st|nd|rd|th))\s+(\S+)\s+(?:is|was|=|:)\s*([^\s.,;]+)`)

// ordinalValues extracts ordinal → value for facts about subject.
func ordinalValues(context, subject string) map[int]string {
	values := make(map[int]string)
	for _, m := range ordinalValueRe.FindAllStringSubmatch(capInput(context), -1) {
		ord, ok := detectOrdinal(m[1])
		if !ok {
			continue
		}
		noun := stem(strings.ToLower(strings.Trim(m[2], ".,;:!?\"'")))
		if noun != subject {
			continue
		}
		values[ord] = strings.Trim(m[3], ".,;:!?\"'")
	}
	return values
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// onWordBoundaries reports whether the match at text[i:i+n] stands
// alone: no word rune inside the match touches a word rune outside it.
// Unlike regexp's \b this accepts values with non-word edges such as
// "$50", where \b inverts and demands an adjacent word character.
func onWordBoundaries(text string, i, n int) bool {
	if i > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:i])
		first, _ := utf8.DecodeRuneInString(text[i:])
		if isWordRune(prev) && isWordRune(first) {
			return false
		}
	}
	if i+n < len(text) {
		last, _ := utf8.DecodeLastRuneInString(text[:i+n])
		next, _ := utf8.DecodeRuneInString(text[i+n:])
		if isWordRune(last) && isWordRune(next) {
			return false
		}
	}
	return true
}

// findWord returns the byte offset of the first case-insensitive
// whole-word occurrence of word in text, or -1.
func findWord(text, word string) int {
	if word == "" {
		return -1
	}
	for i := 0; i+len(word) <= len(text); i++ {
		if strings.EqualFold(text[i:i+len(word)], word) && onWordBoundaries(text, i, len(word)) {
			return i
		}
	}
	return -1
}

func containsWord(text, word string) bool {
	return findWord(text, word) >= 0
}

// replaceWord substitutes every whole-word occurrence of old with new.
// The replacement is spliced in literally, so values like "$60" survive
// intact instead of being expanded as a regexp group reference.
func replaceWord(text, old, new string) string {
	var sb strings.Builder
	rest := text
	for {
		i := findWord(rest, old)
		if i < 0 {
			sb.WriteString(rest)
			return sb.String()
		}
		sb.WriteString(rest[:i])
		sb.WriteString(new)
		rest = rest[i+len(old):]
	}
}

// --- Temporal arithmetic ---

var whenQueryRe = regexp.MustCompile(`(?i)\b(when|since when|what year|how long ago)\b`)

// temporalStep computes anchor − duration when the query asks "when" and
// the context holds both a duration and an anchor year. The result is
// injected only if the draft omits it.
func temporalStep(query, context, draft string) (string, bool, string, error) {
	if !whenQueryRe.MatchString(capInput(query)) {
		return draft, false, "not a when-query", nil
	}

	amount, ok := detectYearDuration(context)
	if !ok {
		return draft, false, "no year duration in context", nil
	}
	anchor, ok := detectAnchorYear(context)
	if !ok {
		return draft, false, "no anchor year in context", nil
	}

	start := anchor - amount
	result := fmt.Sprintf("%d", start)
	if strings.Contains(draft, result) {
		return draft, false, "draft already contains computed year", nil
	}
	return draft + " " + result, true, fmt.Sprintf("computed %d - %d years = %s", anchor, amount, result), nil
}

// --- Character preservation ---

// charactersStep restores diacritics the draft normalized away. Context
// is the source of truth for name spelling.
func charactersStep(_, context, draft string) (string, bool, string, error) {
	patched := draft
	var restored []string
	for _, name := range properNames(context) {
		if !hasDiacritics(name) {
			continue
		}
		folded := foldDiacritics(name)
		if containsWord(patched, folded) && !strings.Contains(patched, name) {
			patched = replaceWord(patched, folded, name)
			restored = append(restored, name)
		}
	}
	if len(restored) == 0 {
		return draft, false, "no normalized names found", nil
	}
	return patched, true, "restored " + strings.Join(restored, ", "), nil
}

// --- Numeric anchor preservation ---

// numericStep injects price/duration anchors the draft dropped, limited
// to anchors that sit near query terms in the context.
func numericStep(query, context, draft string) (string, bool, string, error) {
	terms := extractKeywords(query)
	if len(terms) == 0 {
		return draft, false, "no query terms", nil
	}

	var missing []string
	for _, line := range strings.Split(capInput(context), "\n") {
		if keywordScore(terms, line) == 0 {
			continue
		}
		for _, anchor := range numericAnchors(line) {
			if !strings.Contains(draft, anchor) {
				missing = append(missing, anchor)
			}
		}
	}
	if len(missing) == 0 {
		return draft, false, "no missing anchors", nil
	}
	return draft + " (" + strings.Join(missing, ", ") + ")", true,
		"injected " + strings.Join(missing, ", "), nil
}
