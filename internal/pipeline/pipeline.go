// Package pipeline wires the generation stages end to end: load, batch,
// analyze, fetch, synthesize, compile. Stage failures degrade wherever a
// degraded output is still useful; only a failed synthesis aborts a run.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dossierforge/internal/analyze"
	"dossierforge/internal/batch"
	"dossierforge/internal/compileloop"
	"dossierforge/internal/config"
	"dossierforge/internal/document"
	"dossierforge/internal/estimate"
	"dossierforge/internal/llm"
	"dossierforge/internal/logging"
	"dossierforge/internal/retry"
	"dossierforge/internal/supplement"
	"dossierforge/internal/synthesize"
)

// RunResult is the outcome of one generation run.
type RunResult struct {
	RunID        string
	Document     string
	ArtifactPath string
	Converged    bool

	// PlaceholderBatches counts batches that degraded to placeholder
	// drafts during analysis.
	PlaceholderBatches int

	// SupplementalErrors lists side channels that failed.
	SupplementalErrors []string
}

// Pipeline executes generation runs.
type Pipeline struct {
	cfg      *config.Config
	loader   *document.Loader
	analyzer *analyze.Analyzer
	fetcher  *supplement.Fetcher
	synth    *synthesize.Synthesizer
	loop     *compileloop.Loop
	log      *zap.Logger
}

// New assembles a pipeline from its external dependencies. The compiler
// and channels are injected so runs can be exercised without pdflatex or
// live endpoints.
func New(cfg *config.Config, client llm.Client, channels []supplement.Channel, compiler compileloop.Compiler, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	exec := retry.NewExecutor(logging.Stage(log, logging.StageRetry))

	retryPolicy := retry.Policy{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		BaseDelay:   cfg.Pipeline.BaseDelay,
		MaxDelay:    cfg.Pipeline.MaxDelay,
	}
	reduction := retry.ReductionPolicy{
		MaxReductions: cfg.Pipeline.MaxReductions,
		Step:          cfg.Pipeline.ReductionStep,
		Retry:         retryPolicy,
	}
	supplementPolicy := retry.Policy{
		MaxAttempts: cfg.Supplement.MaxAttempts,
		BaseDelay:   retryPolicy.BaseDelay,
		MaxDelay:    retryPolicy.MaxDelay,
	}

	estimator := estimate.New(cfg.Pipeline.CharsPerUnit)
	return &Pipeline{
		cfg:      cfg,
		loader:   document.NewLoader(estimator, logging.Stage(log, logging.StageBatch)),
		analyzer: analyze.New(client, exec, reduction, cfg.Pipeline.DocCharLimit, logging.Stage(log, logging.StageLLM)),
		fetcher:  supplement.NewFetcher(channels, exec, supplementPolicy, logging.Stage(log, logging.StageFetch)),
		synth:    synthesize.New(client, exec, reduction, logging.Stage(log, logging.StageSynth)),
		loop:     compileloop.New(client, exec, reduction, compiler, cfg.Compile.MaxAttempts, logging.Stage(log, logging.StageCompile)),
		log:      logging.Stage(log, logging.StagePipeline),
	}
}

// Run executes one generation run over the manifest. The subject key
// drives supplemental fetching and names the dossier in prompts.
func (p *Pipeline) Run(ctx context.Context, manifestPath, subject string) (*RunResult, error) {
	runID := uuid.NewString()
	log := p.log.With(zap.String("run_id", runID))
	log.Info("Run started",
		zap.String("manifest", manifestPath),
		zap.String("subject", subject))

	docs, err := p.loader.LoadAll(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	batches := batch.Partition(docs, p.cfg.Pipeline.CostCeiling)
	if len(batches) == 0 {
		return nil, fmt.Errorf("manifest %s produced no documents", manifestPath)
	}
	log.Info("Documents batched",
		zap.Int("documents", len(docs)),
		zap.Int("batches", len(batches)))

	drafts, err := p.analyzer.AnalyzeAll(ctx, batches)
	if err != nil {
		return nil, fmt.Errorf("analysis interrupted: %w", err)
	}
	placeholders := 0
	for _, d := range drafts {
		if d.Placeholder {
			placeholders++
		}
	}

	sup, err := p.fetcher.FetchAll(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("supplemental fetch interrupted: %w", err)
	}

	doc, err := p.synth.Synthesize(ctx, subject, drafts, sup)
	if err != nil {
		return nil, err
	}

	compiled, err := p.loop.Run(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("compilation interrupted: %w", err)
	}
	if !compiled.Converged {
		log.Warn("Run finished without a compiled artifact",
			zap.Int("compile_attempts", compiled.Attempts))
	} else {
		log.Info("Run finished",
			zap.String("artifact", compiled.ArtifactPath),
			zap.Int("compile_attempts", compiled.Attempts))
	}

	return &RunResult{
		RunID:              runID,
		Document:           compiled.Document,
		ArtifactPath:       compiled.ArtifactPath,
		Converged:          compiled.Converged,
		PlaceholderBatches: placeholders,
		SupplementalErrors: sup.Errors,
	}, nil
}
