// Package supplement gathers side-channel data for a dossier subject.
// Channels are independent and fetched concurrently; a failing channel
// records an error in the result instead of failing the fetch, so the
// pipeline always proceeds with whatever data arrived.
package supplement

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dossierforge/internal/retry"
)

// Channel names. Each maps to a dedicated field on Result.
const (
	ChannelLiterature       = "literature"
	ChannelStudyRegistry    = "study_registry"
	ChannelPriorAssessments = "prior_assessments"
	ChannelTerminology      = "terminology"
	ChannelGuidance         = "guidance"
)

// Channel fetches one kind of supplemental data for a subject.
type Channel interface {
	Name() string
	Fetch(ctx context.Context, subjectKey string) (string, error)
}

// Result holds whatever the channels produced. Fields for failed channels
// stay empty; the failure is recorded in Errors.
type Result struct {
	Literature       string
	StudyRegistry    string
	PriorAssessments string
	Terminology      string
	Guidance         string

	// Errors holds one entry per failed channel, prefixed with the
	// channel name.
	Errors []string
}

// Populated returns how many channel fields carry data.
func (r *Result) Populated() int {
	n := 0
	for _, v := range []string{r.Literature, r.StudyRegistry, r.PriorAssessments, r.Terminology, r.Guidance} {
		if v != "" {
			n++
		}
	}
	return n
}

// Fetcher runs all channels concurrently with a shared retry budget.
type Fetcher struct {
	channels []Channel
	exec     *retry.Executor
	policy   retry.Policy
	log      *zap.Logger
}

// NewFetcher creates a Fetcher over the given channels.
func NewFetcher(channels []Channel, exec *retry.Executor, policy retry.Policy, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{channels: channels, exec: exec, policy: policy, log: log}
}

// FetchAll queries every channel concurrently and returns the combined
// result. It never returns an error from a channel failure; the error
// return is reserved for a cancelled context.
func (f *Fetcher) FetchAll(ctx context.Context, subjectKey string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, ch := range f.channels {
		ch := ch
		g.Go(func() error {
			out := retry.Do(gctx, f.exec, f.policy, func(ctx context.Context) (string, error) {
				return ch.Fetch(ctx, subjectKey)
			})

			mu.Lock()
			defer mu.Unlock()
			if !out.Success {
				f.log.Warn("Supplemental channel failed",
					zap.String("channel", ch.Name()),
					zap.Int("attempts", out.Attempts),
					zap.String("reason", out.Classification.Message))
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", ch.Name(), out.Classification.Message))
				return nil
			}
			result.set(ch.Name(), out.Value)
			return nil
		})
	}

	// Workers never return errors, so Wait only propagates ctx failure.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	f.log.Info("Supplemental fetch complete",
		zap.Int("populated", result.Populated()),
		zap.Int("failed", len(result.Errors)))
	return result, nil
}

// set routes a channel's payload to its result field. Unknown names are
// recorded as errors so a misconfigured channel is visible, not silent.
func (r *Result) set(name, value string) {
	switch name {
	case ChannelLiterature:
		r.Literature = value
	case ChannelStudyRegistry:
		r.StudyRegistry = value
	case ChannelPriorAssessments:
		r.PriorAssessments = value
	case ChannelTerminology:
		r.Terminology = value
	case ChannelGuidance:
		r.Guidance = value
	default:
		r.Errors = append(r.Errors, fmt.Sprintf("%s: unknown channel", name))
	}
}
