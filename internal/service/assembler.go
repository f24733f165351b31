package service

import (
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Strob0t/MemCore/internal/config"
	"github.com/Strob0t/MemCore/internal/domain/assembly"
	"github.com/Strob0t/MemCore/internal/domain/memory"
)

// Vault section scoring. Folder and title matches dominate, structural
// heuristics come next, plain keyword hits fill in.
const (
	vaultFolderScore  = 100
	vaultTitleScore   = 80
	vaultHeaderScore  = 30
	vaultPricingScore = 25
	vaultFounderScore = 20
	vaultKeywordScore = 5
)

// Assembler merges ranked memory, document text and vault text into a
// single bounded context under per-source and combined token ceilings.
type Assembler struct {
	budgets assembly.Budgets
}

// NewAssembler creates an Assembler with the configured budgets.
func NewAssembler(cfg *config.Budgets) *Assembler {
	return &Assembler{
		budgets: assembly.Budgets{
			Memory:    cfg.MemoryTokens,
			Documents: cfg.DocumentTokens,
			Vault:     cfg.VaultTokens,
			Total:     cfg.TotalTokens,
		},
	}
}

// Assemble builds the final context. The order is fixed: memory, then
// documents, then vault, then budget enforcement. Missing optional
// sources are skipped, never waited on.
func (a *Assembler) Assemble(query string, ranked []memory.Candidate, docs []assembly.Document, vault []assembly.VaultSection) assembly.Result {
	res := assembly.Result{
		PerSourceTokens: make(map[assembly.Source]int, 3),
		Truncated:       make(map[assembly.Source]bool, 3),
	}

	memText, memTrunc := a.buildMemory(ranked)
	docText, docTrunc := a.buildDocuments(docs)
	vaultText, vaultTrunc := a.buildVault(query, vault)

	// Combined ceiling: trim the lowest-priority source first. The
	// ceiling covers the emitted string, section headers included, so
	// the totals are taken over the framed sections.
	for total := framedTokens(memText, docText, vaultText); total > a.budgets.Total; {
		over := total - a.budgets.Total
		switch {
		case vaultText != "":
			vaultText = trimTokens(vaultText, over)
			vaultTrunc = true
		case docText != "":
			docText = trimTokens(docText, over)
			docTrunc = true
		default:
			memText = trimTokens(memText, over)
			memTrunc = true
		}
		total = framedTokens(memText, docText, vaultText)
	}

	res.Context = frameSection("Memory", memText) +
		frameSection("Documents", docText) +
		frameSection("Knowledge", vaultText)

	res.PerSourceTokens[assembly.SourceMemory] = assembly.EstimateTokens(memText)
	res.PerSourceTokens[assembly.SourceDocuments] = assembly.EstimateTokens(docText)
	res.PerSourceTokens[assembly.SourceVault] = assembly.EstimateTokens(vaultText)
	res.Truncated[assembly.SourceMemory] = memTrunc
	res.Truncated[assembly.SourceDocuments] = docTrunc
	res.Truncated[assembly.SourceVault] = vaultTrunc
	res.Compliant = !memTrunc && !docTrunc && !vaultTrunc

	if !res.Compliant {
		slog.Info("context truncated",
			"memory", memTrunc, "documents", docTrunc, "vault", vaultTrunc)
	}
	return res
}

// buildMemory packs ranked facts in order until the memory budget fills.
func (a *Assembler) buildMemory(ranked []memory.Candidate) (string, bool) {
	var sb strings.Builder
	used := 0
	truncated := false
	for i := range ranked {
		line := "- " + ranked[i].Content + "\n"
		t := assembly.EstimateTokens(line)
		if used+t > a.budgets.Memory {
			truncated = true
			break
		}
		sb.WriteString(line)
		used += t
	}
	return sb.String(), truncated
}

// buildDocuments concatenates documents in order, head-truncating the one
// that crosses the budget.
func (a *Assembler) buildDocuments(docs []assembly.Document) (string, bool) {
	var sb strings.Builder
	used := 0
	truncated := false
	for _, d := range docs {
		if d.Content == "" {
			continue
		}
		section := "## " + d.Name + "\n" + d.Content + "\n"
		t := assembly.EstimateTokens(section)
		if used+t > a.budgets.Documents {
			remaining := a.budgets.Documents - used
			if remaining > 0 {
				sb.WriteString(trimTokens(section, t-remaining))
			}
			truncated = true
			break
		}
		sb.WriteString(section)
		used += t
	}
	return sb.String(), truncated
}

// buildVault selects the most query-relevant sections first, filling the
// vault budget with the highest-scoring ones rather than the first N
// characters. Without query keywords it degrades to head-truncation.
func (a *Assembler) buildVault(query string, vault []assembly.VaultSection) (string, bool) {
	if len(vault) == 0 {
		return "", false
	}

	terms := extractKeywords(query)
	if len(terms) == 0 {
		return headTruncateVault(vault, a.budgets.Vault)
	}

	type scored struct {
		idx   int
		score int
	}
	scoredSections := make([]scored, 0, len(vault))
	for i := range vault {
		scoredSections = append(scoredSections, scored{idx: i, score: scoreVaultSection(&vault[i], terms)})
	}
	sort.SliceStable(scoredSections, func(i, j int) bool {
		return scoredSections[i].score > scoredSections[j].score
	})

	var sb strings.Builder
	used := 0
	truncated := false
	for _, s := range scoredSections {
		sec := &vault[s.idx]
		text := vaultSectionText(sec)
		t := assembly.EstimateTokens(text)
		if used+t > a.budgets.Vault {
			truncated = true
			continue
		}
		sb.WriteString(text)
		used += t
	}
	return sb.String(), truncated
}

// scoreVaultSection ranks one section against the query terms.
func scoreVaultSection(sec *assembly.VaultSection, terms []string) int {
	score := 0
	folder := strings.ToLower(sec.Folder)
	title := strings.ToLower(sec.Title)
	content := strings.ToLower(capInput(sec.Content))

	for _, term := range terms {
		if folder != "" && strings.Contains(folder, term) {
			score += vaultFolderScore
		}
		if title != "" && strings.Contains(title, term) {
			score += vaultTitleScore
		}
		score += vaultKeywordScore * strings.Count(content, term)
	}

	// Structural heuristics independent of the query.
	if strings.Contains(content, "# ") || strings.Contains(content, "## ") {
		score += vaultHeaderScore
	}
	if strings.Contains(content, "$") || strings.Contains(content, "price") || strings.Contains(content, "pricing") {
		score += vaultPricingScore
	}
	if strings.Contains(content, "founder") || strings.Contains(content, "ceo") {
		score += vaultFounderScore
	}
	return score
}

func vaultSectionText(sec *assembly.VaultSection) string {
	var sb strings.Builder
	if sec.Folder != "" || sec.Title != "" {
		sb.WriteString("### " + strings.TrimSpace(sec.Folder+" / "+sec.Title) + "\n")
	}
	sb.WriteString(sec.Content)
	sb.WriteString("\n")
	return sb.String()
}

// headTruncateVault is the fallback when section scoring has no signal.
func headTruncateVault(vault []assembly.VaultSection, budget int) (string, bool) {
	var sb strings.Builder
	used := 0
	truncated := false
	for i := range vault {
		text := vaultSectionText(&vault[i])
		t := assembly.EstimateTokens(text)
		if used+t > budget {
			remaining := budget - used
			if remaining > 0 {
				sb.WriteString(trimTokens(text, t-remaining))
			}
			truncated = true
			break
		}
		sb.WriteString(text)
		used += t
	}
	return sb.String(), truncated
}

// trimTokens removes roughly overTokens worth of text from the tail.
// The cut backs up to a rune boundary so multi-byte characters are
// never split.
func trimTokens(text string, overTokens int) string {
	if overTokens <= 0 {
		return text
	}
	cut := len(text) - overTokens*4
	if cut <= 0 {
		return ""
	}
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// frameSection wraps a non-empty section body with its header line.
func frameSection(header, text string) string {
	if text == "" {
		return ""
	}
	return "# " + header + "\n" + text + "\n"
}

func framedTokens(memText, docText, vaultText string) int {
	return assembly.EstimateTokens(frameSection("Memory", memText)) +
		assembly.EstimateTokens(frameSection("Documents", docText)) +
		assembly.EstimateTokens(frameSection("Knowledge", vaultText))
}
