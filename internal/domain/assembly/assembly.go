// Package assembly provides the domain model for context assembly:
// per-source token budgets, opaque document and vault inputs, and the
// budget-compliance result handed back to the caller.
package assembly

// Source names one contributor to the assembled context.
type Source string

const (
	SourceMemory    Source = "memory"
	SourceDocuments Source = "documents"
	SourceVault     Source = "vault"
)

// Budgets holds the per-source and combined token ceilings.
type Budgets struct {
	Memory    int `json:"memory"`
	Documents int `json:"documents"`
	Vault     int `json:"vault"`
	Total     int `json:"total"`
}

// Document is an uploaded-document text supplied by an external provider.
// The core treats it as an opaque string with a label.
type Document struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// VaultSection is one section of the business-rules corpus, labeled with
// its folder and title so relevance scoring can favor structural matches.
type VaultSection struct {
	Folder  string `json:"folder,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// Result is the ephemeral outcome of one assembly call. It is consumed
// immediately by the caller and never persisted.
type Result struct {
	Context         string          `json:"context"`
	PerSourceTokens map[Source]int  `json:"per_source_tokens"`
	Truncated       map[Source]bool `json:"truncated"`
	Compliant       bool            `json:"compliant"`
}

// EstimateTokens approximates the token count of text as ceil(len/4).
// Used everywhere a precise tokenizer is unavailable.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
