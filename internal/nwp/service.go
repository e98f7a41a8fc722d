package nwp

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// SummaryStore is the contract retrieval summaries are persisted through.
type SummaryStore interface {
	SaveSummary(s Summary)
}

// Options configures one retrieval Service.
type Options struct {
	Client  *http.Client // shared outbound client; nil uses http.DefaultClient
	OutDir  string
	Workers int
	Backoff BackoffConfig
}

// Service orchestrates one retrieval pass across providers: resolve the
// latest run, plan tasks, download, summarize. Providers are fully
// independent, so they are fetched concurrently; a slow or absent provider
// never stalls the others.
type Service struct {
	registry Registry
	store    SummaryStore
	opts     Options
	log      zerolog.Logger
}

// NewService creates a retrieval service. store may be nil when the caller
// does not need summaries persisted.
func NewService(registry Registry, store SummaryStore, opts Options, log zerolog.Logger) *Service {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Service{
		registry: registry,
		store:    store,
		opts:     opts,
		log:      log.With().Str("component", "service").Logger(),
	}
}

// FetchAll performs one retrieval pass for the given providers and returns
// one summary per provider, ordered by provider name. Failures are local:
// a provider with no available run, or with failed tasks, is reported in its
// summary while the rest of the pass proceeds.
func (s *Service) FetchAll(ctx context.Context, providers []Provider, req Request) []Summary {
	invocationID := uuid.NewString()
	s.log.Info().Str("invocation", invocationID).Int("providers", len(providers)).Msg("starting retrieval pass")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		summaries []Summary
	)

	for _, provider := range providers {
		provider := provider
		wg.Add(1)
		go func() {
			defer wg.Done()

			summary := s.fetchProvider(ctx, provider, req)
			summary.InvocationID = invocationID

			if s.store != nil {
				s.store.SaveSummary(summary)
			}

			mu.Lock()
			summaries = append(summaries, summary)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Provider < summaries[j].Provider })
	return summaries
}

// fetchProvider runs the resolve → plan → download pipeline for a single
// provider. The run resolved here is used for every planning decision in
// this invocation; run hours are never mixed within one batch.
func (s *Service) fetchProvider(ctx context.Context, provider Provider, req Request) (summary Summary) {
	summary = Summary{Provider: provider, Started: time.Now().UTC()}
	defer func() {
		summary.Finished = time.Now().UTC()
		if summary.Errors != nil {
			summary.ErrorText = summary.Errors.Error()
		}
	}()

	spec, err := s.registry.Lookup(provider)
	if err != nil {
		summary.Errors = multierror.Append(summary.Errors, err)
		return summary
	}

	transport := NewTransport(s.opts.Client, string(provider), s.opts.Backoff, s.log)
	prober := NewListingProber(transport, s.log)
	resolver := NewResolver(spec, prober, s.log)
	planner := NewPlanner(spec, prober, s.opts.OutDir, s.log)
	downloader := NewDownloader(transport, s.opts.Workers, s.log)

	run, ok := resolver.ResolveLatestRun(ctx, time.Now().UTC())
	if !ok {
		// Normal outcome when a provider is behind schedule.
		s.log.Warn().Str("provider", string(provider)).Msg("no run available, skipping provider")
		return summary
	}
	summary.Run = &run

	tasks, skipped := planner.PlanTasks(ctx, run, req)
	summary.Planned = len(tasks)
	summary.Skipped = skipped

	results := downloader.Run(ctx, tasks)
	for _, res := range results {
		if res.OK() {
			summary.Succeeded++
			summary.Files = append(summary.Files, res.Task.Dest)
			continue
		}
		summary.Failed++
		summary.Errors = multierror.Append(summary.Errors,
			fmt.Errorf("%s: %w", res.Task.Dest, res.Err))
	}
	sort.Strings(summary.Files)

	s.log.Info().
		Str("provider", string(provider)).
		Str("run", run.String()).
		Int("planned", summary.Planned).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg("provider pass complete")
	return summary
}
