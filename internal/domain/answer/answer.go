// Package answer provides the domain model for the correctness validator
// chain: the draft-answer input and the per-step telemetry it produces.
package answer

import (
	"fmt"

	"github.com/Strob0t/MemCore/internal/domain"
)

// Input carries one draft answer through the validator chain.
type Input struct {
	Query   string `json:"query"`
	Context string `json:"context"`
	Draft   string `json:"draft"`
}

// Validate checks that an Input has all required fields.
func (in *Input) Validate() error {
	if in.Query == "" {
		return fmt.Errorf("query is required: %w", domain.ErrValidation)
	}
	if in.Draft == "" {
		return fmt.Errorf("draft is required: %w", domain.ErrValidation)
	}
	return nil
}

// StepResult is the telemetry emitted by one validator step. It is
// produced whether or not a correction fired.
type StepResult struct {
	Step    string `json:"step"`
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"` // internal step failure, chain continued
}

// Result is the validator chain's final output.
type Result struct {
	FinalAnswer string       `json:"final_answer"`
	Telemetry   []StepResult `json:"telemetry"`
}

// Corrections counts the steps that applied a correction.
func (r *Result) Corrections() int {
	n := 0
	for _, s := range r.Telemetry {
		if s.Applied {
			n++
		}
	}
	return n
}
