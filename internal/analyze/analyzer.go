// Package analyze turns document batches into partial drafts. Batches are
// processed strictly one at a time so drafting stays within provider rate
// limits, and a batch that cannot be analyzed degrades to a placeholder
// draft instead of sinking the whole run.
package analyze

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"dossierforge/internal/batch"
	"dossierforge/internal/llm"
	"dossierforge/internal/retry"
)

const analysisSystemPrompt = `You are a regulatory-writing analyst. You will receive a set of source documents for a product dossier. Produce a structured partial draft covering exactly those documents: summarize findings, flag data gaps, and preserve every quantitative result verbatim. Output plain prose sections, no preamble.`

// PartialDraft is the analysis result for one batch.
type PartialDraft struct {
	BatchIndex    int
	Content       string
	DocumentCount int

	// Placeholder marks drafts that stand in for a batch whose analysis
	// could not be completed.
	Placeholder bool
}

// Analyzer drafts partial analyses batch by batch.
type Analyzer struct {
	client llm.Client
	exec   *retry.Executor
	policy retry.ReductionPolicy

	// docCharLimit bounds how much of a single document body is embedded
	// in a prompt before reduction even starts.
	docCharLimit int

	log *zap.Logger
}

// New creates an Analyzer. docCharLimit <= 0 disables per-document
// truncation.
func New(client llm.Client, exec *retry.Executor, policy retry.ReductionPolicy, docCharLimit int, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{
		client:       client,
		exec:         exec,
		policy:       policy,
		docCharLimit: docCharLimit,
		log:          log,
	}
}

// AnalyzeAll processes batches sequentially, in order. Every batch yields
// a draft; failed batches yield placeholders. The error return is reserved
// for context cancellation.
func (a *Analyzer) AnalyzeAll(ctx context.Context, batches []batch.Batch) ([]PartialDraft, error) {
	drafts := make([]PartialDraft, 0, len(batches))
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return drafts, err
		}
		drafts = append(drafts, a.analyzeBatch(ctx, b))
	}
	return drafts, nil
}

// analyzeBatch drafts one batch, shrinking the prompt on context overflow.
func (a *Analyzer) analyzeBatch(ctx context.Context, b batch.Batch) PartialDraft {
	prompt := a.buildPrompt(b)
	a.log.Info("Analyzing batch",
		zap.Int("batch", b.Index),
		zap.Int("documents", len(b.Documents)),
		zap.Int("prompt_chars", len(prompt)))

	out := retry.DoWithContextReduction(ctx, a.exec, a.policy, func(ctx context.Context, factor float64) (string, error) {
		return a.client.Complete(ctx, analysisSystemPrompt, llm.UserMessage(reduce(prompt, factor)))
	})
	if !out.Success {
		a.log.Warn("Batch analysis failed, emitting placeholder",
			zap.Int("batch", b.Index),
			zap.Int("attempts", out.Attempts),
			zap.String("reason", out.Classification.Message))
		return placeholderDraft(b, out.Classification.Message)
	}

	return PartialDraft{
		BatchIndex:    b.Index,
		Content:       out.Value,
		DocumentCount: len(b.Documents),
	}
}

// buildPrompt assembles the analysis prompt for a batch, truncating any
// single document that exceeds the per-document ceiling.
func (a *Analyzer) buildPrompt(b batch.Batch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze the following %d source documents for the dossier.\n", len(b.Documents))
	for i, doc := range b.Documents {
		body := doc.Body
		truncated := false
		if a.docCharLimit > 0 && len(body) > a.docCharLimit {
			body = body[:a.docCharLimit]
			truncated = true
		}
		fmt.Fprintf(&sb, "\n=== Document %d: %s (id=%s, role=%s) ===\n", i+1, doc.RelativePath, doc.ID, doc.Role)
		if truncated {
			sb.WriteString("[truncated]\n")
		}
		sb.WriteString(body)
		sb.WriteString("\n")
	}
	return sb.String()
}

// reduce returns the leading fraction of the prompt. Factor 1.0 returns
// it unchanged.
func reduce(prompt string, factor float64) string {
	if factor >= 1.0 {
		return prompt
	}
	n := int(float64(len(prompt)) * factor)
	if n < 0 {
		n = 0
	}
	return prompt[:n]
}

// placeholderDraft stands in for a batch whose analysis was abandoned. It
// names every document so the synthesis stage can acknowledge the gap.
func placeholderDraft(b batch.Batch, reason string) PartialDraft {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[ANALYSIS UNAVAILABLE] Batch %d could not be analyzed: %s.\n", b.Index, reason)
	sb.WriteString("Documents in this batch:\n")
	for _, doc := range b.Documents {
		fmt.Fprintf(&sb, "- %s (%s)\n", doc.ID, doc.RelativePath)
	}
	return PartialDraft{
		BatchIndex:    b.Index,
		Content:       sb.String(),
		DocumentCount: len(b.Documents),
		Placeholder:   true,
	}
}
