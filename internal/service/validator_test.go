package service

import (
	"strings"
	"testing"

	"github.com/Strob0t/MemCore/internal/config"
	"github.com/Strob0t/MemCore/internal/domain/answer"
)

func newTestChain() *ValidatorChain {
	cfg := config.Defaults()
	return NewValidatorChain(&cfg.Validators)
}

func TestValidatorOrdinalReplacesWrongValue(t *testing.T) {
	chain := newTestChain()

	res := chain.Validate(answer.Input{
		Query:   "what is my second code?",
		Context: "My first code is CHARLIE. My second code is DELTA.",
		Draft:   "Your code is CHARLIE.",
	})

	if !strings.Contains(res.FinalAnswer, "DELTA") {
		t.Errorf("final = %q, want DELTA injected", res.FinalAnswer)
	}
	if strings.Contains(res.FinalAnswer, "CHARLIE") {
		t.Errorf("final = %q, wrong value must be replaced", res.FinalAnswer)
	}
	if res.Corrections() == 0 {
		t.Error("expected at least one correction")
	}
}

func TestValidatorOrdinalInjectsMissingValue(t *testing.T) {
	chain := newTestChain()

	res := chain.Validate(answer.Input{
		Query:   "what is my second code?",
		Context: "My first code is CHARLIE. My second code is DELTA.",
		Draft:   "I am not sure.",
	})

	if !strings.Contains(res.FinalAnswer, "DELTA") {
		t.Errorf("final = %q, want DELTA injected", res.FinalAnswer)
	}
}

func TestValidatorOrdinalBothValuesPresent(t *testing.T) {
	chain := newTestChain()

	// Right answer present AND wrong answer present: the wrong one must go.
	res := chain.Validate(answer.Input{
		Query:   "what is my second code?",
		Context: "My first code is CHARLIE. My second code is DELTA.",
		Draft:   "It could be CHARLIE or DELTA.",
	})

	if strings.Contains(res.FinalAnswer, "CHARLIE") {
		t.Errorf("final = %q, wrong sibling value must be removed", res.FinalAnswer)
	}
	if !strings.Contains(res.FinalAnswer, "DELTA") {
		t.Errorf("final = %q, correct value must remain", res.FinalAnswer)
	}
}

func TestOrdinalStepHandlesPriceValues(t *testing.T) {
	// Dollar values sit on non-word edges, where regexp \b matching
	// silently fails. The wrong sibling price must still be swapped out.
	patched, applied, _, err := ordinalStep(
		"what is my second price?",
		"My first price is $50. My second price is $60.",
		"Your second price is $50.")
	if err != nil {
		t.Fatalf("ordinalStep: %v", err)
	}
	if !applied {
		t.Fatal("expected a correction")
	}
	if patched != "Your second price is $60." {
		t.Errorf("patched = %q, want the wrong price replaced in place", patched)
	}
}

func TestWordHelpersNonWordEdges(t *testing.T) {
	if !containsWord("the price is $50.", "$50") {
		t.Error("whole-word match must find $50 next to punctuation")
	}
	if containsWord("the price is $500", "$50") {
		t.Error("$50 must not match inside $500")
	}
	if containsWord("the discount is 50%", "$50") {
		t.Error("$50 must not match bare 50")
	}
	if got := replaceWord("the code is DELTA", "DELTA", "$60"); got != "the code is $60" {
		t.Errorf("replaceWord = %q, replacement must be literal", got)
	}
	if got := replaceWord("it was $50, yes $50.", "$50", "$60"); got != "it was $60, yes $60." {
		t.Errorf("replaceWord = %q, want every occurrence replaced", got)
	}
}

func TestValidatorTemporalArithmetic(t *testing.T) {
	chain := newTestChain()

	res := chain.Validate(answer.Input{
		Query:   "since when did he work there?",
		Context: "He worked there 5 years. He left in 2020.",
		Draft:   "He worked there for a while.",
	})

	if !strings.Contains(res.FinalAnswer, "2015") {
		t.Errorf("final = %q, want 2015 injected", res.FinalAnswer)
	}
}

func TestValidatorTemporalIgnoresShorterDurations(t *testing.T) {
	chain := newTestChain()

	res := chain.Validate(answer.Input{
		Query:   "since when did he work there?",
		Context: "He spent 3 weeks onboarding. He worked there 5 years. He left in 2020.",
		Draft:   "He worked there for a while.",
	})

	if !strings.Contains(res.FinalAnswer, "2015") {
		t.Errorf("final = %q, the weeks duration must not mask the years one", res.FinalAnswer)
	}
}

func TestValidatorTemporalSkipsWhenPresent(t *testing.T) {
	chain := newTestChain()

	res := chain.Validate(answer.Input{
		Query:   "since when did he work there?",
		Context: "He worked there 5 years. He left in 2020.",
		Draft:   "He started in 2015.",
	})

	for _, step := range res.Telemetry {
		if step.Step == "temporal" && step.Applied {
			t.Error("temporal step must not fire when the draft already has the year")
		}
	}
}

func TestValidatorRestoresDiacritics(t *testing.T) {
	chain := newTestChain()

	res := chain.Validate(answer.Input{
		Query:   "who is my accountant?",
		Context: "José handles my accounting.",
		Draft:   "Your accountant is Jose.",
	})

	if !strings.Contains(res.FinalAnswer, "José") {
		t.Errorf("final = %q, want diacritics restored", res.FinalAnswer)
	}
	if strings.Contains(res.FinalAnswer, "Jose.") {
		t.Errorf("final = %q, normalized form should be replaced", res.FinalAnswer)
	}
}

func TestValidatorInjectsNumericAnchors(t *testing.T) {
	chain := newTestChain()

	res := chain.Validate(answer.Input{
		Query:   "what does the premium plan cost?",
		Context: "The premium plan costs $49.99 per month.",
		Draft:   "The premium plan is our paid tier.",
	})

	if !strings.Contains(res.FinalAnswer, "$49.99") {
		t.Errorf("final = %q, want price injected", res.FinalAnswer)
	}
}

func TestValidatorDisabledStepsSkip(t *testing.T) {
	cfg := config.Defaults()
	cfg.Validators.Ordinal = false
	chain := NewValidatorChain(&cfg.Validators)

	res := chain.Validate(answer.Input{
		Query:   "what is my second code?",
		Context: "My first code is CHARLIE. My second code is DELTA.",
		Draft:   "Your code is CHARLIE.",
	})

	for _, step := range res.Telemetry {
		if step.Step == "ordinal" && step.Applied {
			t.Error("disabled step must not fire")
		}
	}
}

func TestValidatorTelemetryAlwaysEmitted(t *testing.T) {
	chain := newTestChain()

	res := chain.Validate(answer.Input{
		Query:   "hello",
		Context: "",
		Draft:   "hi",
	})

	if len(res.Telemetry) != 4 {
		t.Fatalf("telemetry entries = %d, want 4", len(res.Telemetry))
	}
	for _, step := range res.Telemetry {
		if step.Applied {
			t.Errorf("step %s applied on empty context", step.Step)
		}
	}
}
