package match

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/marku123123/petpals-new/store"
)

// ReportSource lists the active reports a pass works on.
type ReportSource interface {
	ListActiveReports(ctx context.Context, category store.Category) ([]*store.Report, error)
}

// ImageFetcher retrieves one report's photo with scoped cleanup.
type ImageFetcher interface {
	Fetch(ctx context.Context, report *store.Report) (*FetchedImage, error)
	ResourceCount() int64
}

// Engine orchestrates a matching pass: list active reports, fingerprint them
// with bounded concurrency, then compare all pairs sequentially. Passes are
// tagged with a monotonic sequence number; a pass that finishes after a
// younger one has already published its results is discarded.
type Engine struct {
	source      ReportSource
	fetcher     ImageFetcher
	extractor   *Extractor
	matcher     *Matcher
	concurrency int64
	metrics     *Metrics

	seq atomic.Uint64

	mu        sync.Mutex
	latest    []Candidate
	latestSeq uint64
}

// NewEngine wires a matching engine. metrics may be nil. An extractor without
// an embedding backend is accepted: passes then run in the degraded hash-only
// mode and match exact duplicates.
func NewEngine(source ReportSource, fetcher ImageFetcher, extractor *Extractor, matcher *Matcher, concurrency int, metrics *Metrics) (*Engine, error) {
	if source == nil || fetcher == nil || extractor == nil || matcher == nil {
		return nil, errors.New("engine requires source, fetcher, extractor and matcher")
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Engine{
		source:      source,
		fetcher:     fetcher,
		extractor:   extractor,
		matcher:     matcher,
		concurrency: int64(concurrency),
		metrics:     metrics,
	}, nil
}

// RunPass executes one full matching pass and returns its candidates.
// Per-report failures never fail the pass; only a failure to list the report
// set does. A superseded pass returns its candidates but does not publish
// them.
func (e *Engine) RunPass(ctx context.Context) ([]Candidate, error) {
	seq := e.seq.Add(1)
	start := time.Now()

	reports, err := e.listEligible(ctx)
	if err != nil {
		e.metrics.observePass("failed", time.Since(start).Seconds())
		return nil, err
	}

	fingerprints := e.fingerprintAll(ctx, reports)

	// The pairwise phase starts only after every fingerprint task settled.
	candidates := e.matcher.Match(fingerprints)

	e.mu.Lock()
	published := seq > e.latestSeq
	if published {
		e.latest = candidates
		e.latestSeq = seq
	}
	e.mu.Unlock()

	if !published {
		slog.Info("discarding superseded matching pass", "seq", seq)
		e.metrics.observePass("superseded", time.Since(start).Seconds())
		return candidates, nil
	}

	e.metrics.observePass("completed", time.Since(start).Seconds())
	e.metrics.setCandidates(len(candidates))
	slog.Info("matching pass completed",
		"seq", seq,
		"reports", len(reports),
		"fingerprints", len(fingerprints),
		"candidates", len(candidates),
		"elapsed", time.Since(start),
	)
	return candidates, nil
}

// RunPassAsync triggers a pass in the background, typically from a
// report-mutation event. Errors are logged, not returned; the sequence
// numbering makes overlapping passes safe.
func (e *Engine) RunPassAsync(ctx context.Context) {
	go func() {
		if _, err := e.RunPass(ctx); err != nil {
			slog.Error("background matching pass failed", "error", err)
		}
	}()
}

// Metrics returns the engine's metrics sink. The sink's methods are
// nil-safe, so callers need no guard.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Latest returns the candidates of the most recent published pass and its
// sequence number.
func (e *Engine) Latest() ([]Candidate, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	candidates := make([]Candidate, len(e.latest))
	copy(candidates, e.latest)
	return candidates, e.latestSeq
}

// ResourceCount returns the number of live scoped resources (spooled images
// plus decoded pixels). Zero between passes.
func (e *Engine) ResourceCount() int64 {
	return e.fetcher.ResourceCount() + e.extractor.ResourceCount()
}

func (e *Engine) listEligible(ctx context.Context) ([]*store.Report, error) {
	lost, err := e.source.ListActiveReports(ctx, store.CategoryLost)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list lost reports")
	}
	found, err := e.source.ListActiveReports(ctx, store.CategoryFound)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list found reports")
	}

	eligible := make([]*store.Report, 0, len(lost)+len(found))
	for _, report := range append(lost, found...) {
		if report.EligibleForMatching() {
			eligible = append(eligible, report)
		} else {
			slog.Debug("skipping report for matching", "petId", report.PetID, "reunited", report.Reunited)
		}
	}
	return eligible, nil
}

// fingerprintAll fans fingerprint tasks out over the eligible reports and
// fans their results back in. Each task owns its fetched image and releases
// it before returning, on every path.
func (e *Engine) fingerprintAll(ctx context.Context, reports []*store.Report) []*Fingerprint {
	var (
		mu           sync.Mutex
		fingerprints = make([]*Fingerprint, 0, len(reports))
	)

	sem := semaphore.NewWeighted(e.concurrency)
	g, ctx := errgroup.WithContext(ctx)
	for _, report := range reports {
		report := report
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil //nolint:nilerr // pass cancelled; nothing to record
			}
			defer sem.Release(1)

			fetched, err := e.fetcher.Fetch(ctx, report)
			if err != nil {
				e.metrics.observeFailure("fetch")
				slog.Warn("failed to fetch report image", "petId", report.PetID, "error", err)
				return nil
			}
			defer fetched.Release()

			fingerprint, err := e.extractor.Extract(ctx, report, fetched)
			if err != nil {
				e.metrics.observeFailure(failureStage(err))
				slog.Warn("failed to fingerprint report image", "petId", report.PetID, "error", err)
			}
			if fingerprint == nil {
				return nil
			}

			mu.Lock()
			fingerprints = append(fingerprints, fingerprint)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Stable pairwise order regardless of task completion order.
	sort.Slice(fingerprints, func(i, j int) bool {
		return fingerprints[i].Report.PetID < fingerprints[j].Report.PetID
	})
	return fingerprints
}
