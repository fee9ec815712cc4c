// Package compileloop drives document source to a compiled artifact
// through a bounded compile, diagnose, repair cycle. A loop that fails to
// converge still returns its best candidate so the run produces usable
// text even without an artifact.
package compileloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"

	"dossierforge/internal/llm"
	"dossierforge/internal/retry"
)

const repairSystemPrompt = `You are a LaTeX repair specialist. You will receive a LaTeX document and compiler diagnostics. Return the corrected, complete document and nothing else. Change only what the diagnostics require.`

// DefaultMaxAttempts bounds the compile-repair cycle.
const DefaultMaxAttempts = 3

// Compiler turns document source into an artifact. A failed compilation
// returns a non-nil error alongside whatever diagnostics were extracted.
type Compiler interface {
	Compile(ctx context.Context, source string) (artifactPath string, diagnostics []string, err error)
}

// Result is the loop's outcome. Document is always set; ArtifactPath is
// empty when the loop did not converge.
type Result struct {
	Document     string
	ArtifactPath string
	Converged    bool
	Attempts     int
}

// Loop runs the compile-repair cycle.
type Loop struct {
	client      llm.Client
	exec        *retry.Executor
	policy      retry.ReductionPolicy
	compiler    Compiler
	maxAttempts int
	log         *zap.Logger
	differ      *diffmatchpatch.DiffMatchPatch
}

// New creates a Loop. maxAttempts < 1 falls back to DefaultMaxAttempts.
func New(client llm.Client, exec *retry.Executor, policy retry.ReductionPolicy, compiler Compiler, maxAttempts int, log *zap.Logger) *Loop {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		client:      client,
		exec:        exec,
		policy:      policy,
		compiler:    compiler,
		maxAttempts: maxAttempts,
		log:         log,
		differ:      diffmatchpatch.New(),
	}
}

// Run compiles the source, repairing between attempts. The error return
// is reserved for context cancellation; compilation failure is reported
// through Result.Converged.
func (l *Loop) Run(ctx context.Context, source string) (Result, error) {
	candidate := StripFences(source)

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Document: candidate, Attempts: attempt - 1}, err
		}

		artifact, diagnostics, err := l.compiler.Compile(ctx, candidate)
		if err == nil {
			l.log.Info("Compilation succeeded",
				zap.Int("attempt", attempt),
				zap.String("artifact", artifact))
			return Result{
				Document:     candidate,
				ArtifactPath: artifact,
				Converged:    true,
				Attempts:     attempt,
			}, nil
		}
		l.log.Warn("Compilation failed",
			zap.Int("attempt", attempt),
			zap.Int("diagnostics", len(diagnostics)),
			zap.Error(err))

		if attempt == l.maxAttempts {
			break
		}
		candidate = l.repair(ctx, candidate, diagnostics)
	}

	l.log.Warn("Compile loop exhausted without an artifact",
		zap.Int("attempts", l.maxAttempts))
	return Result{Document: candidate, Attempts: l.maxAttempts}, nil
}

// repair asks the model for a corrected document. A failed repair keeps
// the current candidate so the next compile attempt is not fed garbage.
func (l *Loop) repair(ctx context.Context, candidate string, diagnostics []string) string {
	prompt := buildRepairPrompt(candidate, diagnostics)

	out := retry.DoWithContextReduction(ctx, l.exec, l.policy, func(ctx context.Context, factor float64) (string, error) {
		return l.client.Complete(ctx, repairSystemPrompt, llm.UserMessage(reduce(prompt, factor)))
	})
	if !out.Success {
		l.log.Warn("Repair failed, keeping previous candidate",
			zap.Int("attempts", out.Attempts),
			zap.String("reason", out.Classification.Message))
		return candidate
	}

	repaired := StripFences(out.Value)
	if repaired == "" {
		l.log.Warn("Repair returned an empty document, keeping previous candidate")
		return candidate
	}
	l.traceRepair(candidate, repaired)
	return repaired
}

// traceRepair logs a summary of what the repair changed.
func (l *Loop) traceRepair(before, after string) {
	if !l.log.Core().Enabled(zap.DebugLevel) {
		return
	}
	diffs := l.differ.DiffMain(before, after, false)
	inserted, deleted := 0, 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			inserted += len(d.Text)
		case diffmatchpatch.DiffDelete:
			deleted += len(d.Text)
		}
	}
	l.log.Debug("Repair applied",
		zap.Int("chars_inserted", inserted),
		zap.Int("chars_deleted", deleted))
}

// buildRepairPrompt pairs the document with its diagnostics. When the
// compiler produced none, structural screening fills the gap, and failing
// that the model is asked for a general pass.
func buildRepairPrompt(candidate string, diagnostics []string) string {
	if len(diagnostics) == 0 {
		diagnostics = StructuralIssues(candidate)
	}

	var sb strings.Builder
	sb.WriteString("The following LaTeX document failed to compile.\n\n")
	if len(diagnostics) == 0 {
		sb.WriteString("The compiler reported no specific errors. Find and fix any issue that would prevent compilation.\n")
	} else {
		sb.WriteString("Compiler diagnostics:\n")
		for _, d := range diagnostics {
			fmt.Fprintf(&sb, "- %s\n", d)
		}
	}
	sb.WriteString("\nDocument:\n")
	sb.WriteString(candidate)
	return sb.String()
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

// StripFences removes a Markdown code fence wrapping, which models often
// add around document output despite instructions.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	// Drop the opening fence with its optional language tag.
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
