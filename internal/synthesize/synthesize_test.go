package synthesize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"dossierforge/internal/analyze"
	"dossierforge/internal/llm"
	"dossierforge/internal/retry"
	"dossierforge/internal/supplement"
)

type scriptedClient struct {
	prompts []string
	reply   string
	err     error
}

func (c *scriptedClient) Complete(_ context.Context, _ string, messages []llm.Message) (string, error) {
	c.prompts = append(c.prompts, messages[len(messages)-1].Content)
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func testSynthesizer(client llm.Client) *Synthesizer {
	exec := retry.NewExecutor(zap.NewNop())
	return New(client, exec, retry.DefaultReductionPolicy(), zap.NewNop())
}

func TestSynthesize_OrdersDraftsByBatchIndex(t *testing.T) {
	client := &scriptedClient{reply: "\\documentclass{article}"}
	s := testSynthesizer(client)

	drafts := []analyze.PartialDraft{
		{BatchIndex: 2, Content: "charlie section"},
		{BatchIndex: 0, Content: "alpha section"},
		{BatchIndex: 1, Content: "bravo section"},
	}
	doc, err := s.Synthesize(context.Background(), "compound-17", drafts, nil)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if doc != "\\documentclass{article}" {
		t.Fatalf("unexpected document %q", doc)
	}

	prompt := client.prompts[0]
	a := strings.Index(prompt, "alpha section")
	b := strings.Index(prompt, "bravo section")
	c := strings.Index(prompt, "charlie section")
	if a < 0 || b < 0 || c < 0 {
		t.Fatalf("prompt missing draft content: %s", prompt)
	}
	if !(a < b && b < c) {
		t.Fatalf("drafts out of batch order in prompt: a=%d b=%d c=%d", a, b, c)
	}
}

func TestSynthesize_IncludesSupplementalDataAndGaps(t *testing.T) {
	client := &scriptedClient{reply: "doc"}
	s := testSynthesizer(client)

	sup := &supplement.Result{
		Literature:  "three recent reviews",
		Terminology: "preferred terms list",
		Errors:      []string{"guidance: upstream unavailable"},
	}
	drafts := []analyze.PartialDraft{{BatchIndex: 0, Content: "findings"}}
	if _, err := s.Synthesize(context.Background(), "compound-17", drafts, sup); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	prompt := client.prompts[0]
	if !strings.Contains(prompt, "three recent reviews") || !strings.Contains(prompt, "preferred terms list") {
		t.Fatal("supplemental data missing from prompt")
	}
	if !strings.Contains(prompt, "guidance: upstream unavailable") {
		t.Fatal("failed channels must be declared to the model")
	}
	if strings.Contains(prompt, "Study registry") {
		t.Fatal("empty supplemental fields must not add sections")
	}
}

func TestSynthesize_ErrorsWithoutDrafts(t *testing.T) {
	s := testSynthesizer(&scriptedClient{reply: "doc"})
	if _, err := s.Synthesize(context.Background(), "compound-17", nil, nil); err == nil {
		t.Fatal("expected error for zero drafts")
	}
}

func TestSynthesize_ExhaustionIsHardFailure(t *testing.T) {
	client := &scriptedClient{err: errors.New("maximum context length exceeded")}
	s := testSynthesizer(client)

	drafts := []analyze.PartialDraft{{BatchIndex: 0, Content: "findings"}}
	_, err := s.Synthesize(context.Background(), "compound-17", drafts, nil)
	if err == nil {
		t.Fatal("expected hard failure when synthesis cannot complete")
	}
	if !strings.Contains(err.Error(), "synthesis failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSynthesize_ShrinksPromptOnOverflow(t *testing.T) {
	var calls int
	client := &flakyClient{failFirst: 1, reply: "doc", calls: &calls}
	s := testSynthesizer(client)

	drafts := []analyze.PartialDraft{{BatchIndex: 0, Content: strings.Repeat("z", 400)}}
	if _, err := s.Synthesize(context.Background(), "compound-17", drafts, nil); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(client.prompts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(client.prompts))
	}
	want := int(float64(len(client.prompts[0])) * 0.75)
	if len(client.prompts[1]) != want {
		t.Fatalf("second prompt is %d chars, want %d", len(client.prompts[1]), want)
	}
}

type flakyClient struct {
	prompts   []string
	failFirst int
	reply     string
	calls     *int
}

func (c *flakyClient) Complete(_ context.Context, _ string, messages []llm.Message) (string, error) {
	c.prompts = append(c.prompts, messages[len(messages)-1].Content)
	*c.calls++
	if *c.calls <= c.failFirst {
		return "", errors.New("prompt exceeds maximum context window")
	}
	return c.reply, nil
}
