// Package synthesize merges partial drafts and supplemental data into the
// final document source. Unlike batch analysis, synthesis has no degraded
// mode: without a merged document there is nothing to compile, so an
// exhausted synthesis fails the run.
package synthesize

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"dossierforge/internal/analyze"
	"dossierforge/internal/llm"
	"dossierforge/internal/retry"
	"dossierforge/internal/supplement"
)

const synthesisSystemPrompt = `You are a regulatory-writing lead. Merge the partial analyses below into one coherent LaTeX document for a product dossier. Resolve overlaps, keep every quantitative result, and mark sections backed by unavailable analyses as data gaps. Output a complete compilable LaTeX document and nothing else.`

// Synthesizer produces the final document from accumulated drafts.
type Synthesizer struct {
	client llm.Client
	exec   *retry.Executor
	policy retry.ReductionPolicy
	log    *zap.Logger
}

// New creates a Synthesizer.
func New(client llm.Client, exec *retry.Executor, policy retry.ReductionPolicy, log *zap.Logger) *Synthesizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synthesizer{client: client, exec: exec, policy: policy, log: log}
}

// Synthesize merges drafts and supplemental data into the final document
// source. Drafts are assembled in batch order regardless of input order.
func (s *Synthesizer) Synthesize(ctx context.Context, subject string, drafts []analyze.PartialDraft, sup *supplement.Result) (string, error) {
	if len(drafts) == 0 {
		return "", fmt.Errorf("no partial drafts to synthesize")
	}

	prompt := buildPrompt(subject, drafts, sup)
	s.log.Info("Synthesizing final document",
		zap.String("subject", subject),
		zap.Int("drafts", len(drafts)),
		zap.Int("prompt_chars", len(prompt)))

	out := retry.DoWithContextReduction(ctx, s.exec, s.policy, func(ctx context.Context, factor float64) (string, error) {
		return s.client.Complete(ctx, synthesisSystemPrompt, llm.UserMessage(reduce(prompt, factor)))
	})
	if !out.Success {
		return "", fmt.Errorf("synthesis failed after %d attempts: %s", out.Attempts, out.Classification.Message)
	}
	return out.Value, nil
}

func buildPrompt(subject string, drafts []analyze.PartialDraft, sup *supplement.Result) string {
	ordered := make([]analyze.PartialDraft, len(drafts))
	copy(ordered, drafts)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].BatchIndex < ordered[j].BatchIndex
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Subject: %s\n", subject)
	for _, d := range ordered {
		fmt.Fprintf(&sb, "\n=== Partial analysis %d (%d documents) ===\n", d.BatchIndex, d.DocumentCount)
		sb.WriteString(d.Content)
		sb.WriteString("\n")
	}
	if sup != nil {
		writeSection(&sb, "Literature", sup.Literature)
		writeSection(&sb, "Study registry", sup.StudyRegistry)
		writeSection(&sb, "Prior assessments", sup.PriorAssessments)
		writeSection(&sb, "Terminology", sup.Terminology)
		writeSection(&sb, "Regulatory guidance", sup.Guidance)
		if len(sup.Errors) > 0 {
			sb.WriteString("\n=== Unavailable supplemental data ===\n")
			for _, e := range sup.Errors {
				fmt.Fprintf(&sb, "- %s\n", e)
			}
		}
	}
	return sb.String()
}

func writeSection(sb *strings.Builder, title, body string) {
	if body == "" {
		return
	}
	fmt.Fprintf(sb, "\n=== %s ===\n", title)
	sb.WriteString(body)
	sb.WriteString("\n")
}

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
