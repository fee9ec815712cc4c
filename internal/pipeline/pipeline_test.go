package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"dossierforge/internal/config"
	"dossierforge/internal/llm"
	"dossierforge/internal/supplement"
)

// stageClient answers by stage, inferred from the system prompt, and
// counts calls per stage.
type stageClient struct {
	analysisCalls  int
	synthesisCalls int
	repairCalls    int

	analysisErr  error
	synthesisErr error
	repairReply  string
}

func (c *stageClient) Complete(_ context.Context, systemPrompt string, _ []llm.Message) (string, error) {
	switch {
	case strings.Contains(systemPrompt, "analyst"):
		c.analysisCalls++
		if c.analysisErr != nil {
			return "", c.analysisErr
		}
		return fmt.Sprintf("partial draft %d", c.analysisCalls), nil
	case strings.Contains(systemPrompt, "writing lead"):
		c.synthesisCalls++
		if c.synthesisErr != nil {
			return "", c.synthesisErr
		}
		return "\\documentclass{article}\\begin{document}merged\\end{document}", nil
	default:
		c.repairCalls++
		if c.repairReply != "" {
			return c.repairReply, nil
		}
		return "\\documentclass{article}\\begin{document}repaired\\end{document}", nil
	}
}

// okCompiler succeeds after a configurable number of failures.
type okCompiler struct {
	failures int
	calls    int
}

func (c *okCompiler) Compile(_ context.Context, _ string) (string, []string, error) {
	c.calls++
	if c.calls <= c.failures {
		return "", []string{"Undefined control sequence (l.3)"}, errors.New("pdflatex failed")
	}
	return "/tmp/dossier/document.pdf", nil, nil
}

type fixedChannel struct {
	name  string
	value string
	err   error
}

func (f *fixedChannel) Name() string { return f.name }

func (f *fixedChannel) Fetch(context.Context, string) (string, error) {
	return f.value, f.err
}

// writeManifest lays out a manifest plus document files, each docChars
// characters long.
func writeManifest(t *testing.T, count, docChars int) string {
	t.Helper()
	dir := t.TempDir()
	var sb strings.Builder
	sb.WriteString("documents:\n")
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("doc%d.txt", i)
		body := strings.Repeat("a", docChars)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		fmt.Fprintf(&sb, "  - id: doc-%d\n    path: %s\n    role: reference\n", i, name)
	}
	manifestPath := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(manifestPath, []byte(sb.String()), 0644); err != nil {
		t.Fatal(err)
	}
	return manifestPath
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Pipeline.CostCeiling = 25
	cfg.Pipeline.CharsPerUnit = 4
	return cfg
}

func allChannels() []supplement.Channel {
	return []supplement.Channel{
		&fixedChannel{name: supplement.ChannelLiterature, value: "lit"},
		&fixedChannel{name: supplement.ChannelStudyRegistry, value: "reg"},
		&fixedChannel{name: supplement.ChannelPriorAssessments, value: "prior"},
		&fixedChannel{name: supplement.ChannelTerminology, value: "terms"},
		&fixedChannel{name: supplement.ChannelGuidance, value: "guide"},
	}
}

func TestRun_EndToEnd(t *testing.T) {
	client := &stageClient{}
	compiler := &okCompiler{}
	p := New(testConfig(), client, allChannels(), compiler, zap.NewNop())

	// Seven 40-char documents cost 10 units each against a ceiling of 25,
	// which partitions into four batches.
	manifest := writeManifest(t, 7, 40)
	result, err := p.Run(context.Background(), manifest, "compound-17")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if client.analysisCalls != 4 {
		t.Fatalf("expected 4 batch analyses, got %d", client.analysisCalls)
	}
	if client.synthesisCalls != 1 {
		t.Fatalf("expected 1 synthesis, got %d", client.synthesisCalls)
	}
	if !result.Converged || result.ArtifactPath == "" {
		t.Fatalf("expected a compiled artifact, got %+v", result)
	}
	if result.RunID == "" {
		t.Fatal("run must carry an identifier")
	}
	if result.PlaceholderBatches != 0 || len(result.SupplementalErrors) != 0 {
		t.Fatalf("clean run must have no degradations, got %+v", result)
	}
}

func TestRun_SupplementalFailureDoesNotAbort(t *testing.T) {
	channels := allChannels()
	channels[2] = &fixedChannel{name: supplement.ChannelPriorAssessments, err: errors.New("upstream unavailable")}
	p := New(testConfig(), &stageClient{}, channels, &okCompiler{}, zap.NewNop())

	result, err := p.Run(context.Background(), writeManifest(t, 2, 40), "compound-17")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.SupplementalErrors) != 1 {
		t.Fatalf("expected 1 supplemental error, got %v", result.SupplementalErrors)
	}
	if !result.Converged {
		t.Fatal("run must still produce an artifact")
	}
}

func TestRun_AnalysisFailureDegradesToPlaceholder(t *testing.T) {
	client := &stageClient{analysisErr: errors.New("token limit exceeded")}
	p := New(testConfig(), client, allChannels(), &okCompiler{}, zap.NewNop())

	result, err := p.Run(context.Background(), writeManifest(t, 2, 40), "compound-17")
	if err != nil {
		t.Fatalf("analysis failure must not abort the run: %v", err)
	}
	if result.PlaceholderBatches != 1 {
		t.Fatalf("expected 1 placeholder batch, got %d", result.PlaceholderBatches)
	}
	if !result.Converged {
		t.Fatal("run must still compile the synthesized document")
	}
}

func TestRun_SynthesisFailureAbortsRun(t *testing.T) {
	client := &stageClient{synthesisErr: errors.New("malformed request payload")}
	p := New(testConfig(), client, allChannels(), &okCompiler{}, zap.NewNop())

	if _, err := p.Run(context.Background(), writeManifest(t, 1, 40), "compound-17"); err == nil {
		t.Fatal("expected run to fail when synthesis fails")
	}
}

func TestRun_NonConvergenceStillReturnsDocument(t *testing.T) {
	client := &stageClient{}
	compiler := &okCompiler{failures: 100}
	p := New(testConfig(), client, allChannels(), compiler, zap.NewNop())

	result, err := p.Run(context.Background(), writeManifest(t, 1, 40), "compound-17")
	if err != nil {
		t.Fatalf("non-convergence must not be an error: %v", err)
	}
	if result.Converged || result.ArtifactPath != "" {
		t.Fatalf("expected no artifact, got %+v", result)
	}
	if result.Document == "" {
		t.Fatal("result must carry the best document text")
	}
	if compiler.calls != testConfig().Compile.MaxAttempts {
		t.Fatalf("expected %d compile attempts, got %d", testConfig().Compile.MaxAttempts, compiler.calls)
	}
}

func TestRun_MissingManifestFails(t *testing.T) {
	p := New(testConfig(), &stageClient{}, allChannels(), &okCompiler{}, zap.NewNop())
	if _, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"), "x"); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestRun_EmptyManifestFails(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(manifest, []byte("documents: []\n"), 0644); err != nil {
		t.Fatal(err)
	}
	p := New(testConfig(), &stageClient{}, allChannels(), &okCompiler{}, zap.NewNop())
	if _, err := p.Run(context.Background(), manifest, "x"); err == nil {
		t.Fatal("expected error for empty manifest")
	}
}
