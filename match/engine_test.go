package match

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/marku123123/petpals-new/store"
)

type fakeSource struct {
	mu    sync.Mutex
	lost  []*store.Report
	found []*store.Report
}

func (f *fakeSource) ListActiveReports(_ context.Context, category store.Category) ([]*store.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if category == store.CategoryLost {
		return f.lost, nil
	}
	return f.found, nil
}

func (f *fakeSource) set(lost, found []*store.Report) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lost, f.found = lost, found
}

type failingSource struct{}

func (failingSource) ListActiveReports(context.Context, store.Category) ([]*store.Report, error) {
	return nil, errors.New("db is down")
}

// imageServer serves the same PNG for every path. Paths containing "slow"
// block until the gate channel is closed. Paths are counted per request.
func imageServer(t *testing.T, gate chan struct{}) (*httptest.Server, func(path string) int) {
	t.Helper()
	data := encodePNG(t)

	var mu sync.Mutex
	hits := map[string]int{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()

		if gate != nil && strings.Contains(r.URL.Path, "slow") && r.Method == http.MethodGet {
			<-gate
		}
		w.Header().Set("Content-Type", "image/png")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	count := func(path string) int {
		mu.Lock()
		defer mu.Unlock()
		return hits[path]
	}
	return srv, count
}

func reportWithImage(petID, ownerID int32, category store.Category, path string) *store.Report {
	return &store.Report{PetID: petID, OwnerID: ownerID, Category: category, ImagePath: &path}
}

func newTestEngine(t *testing.T, source ReportSource, baseURL string, embedder ImageEmbedder) *Engine {
	t.Helper()
	fetcher := NewFetcher(baseURL, t.TempDir(), 0)
	extractor := NewExtractor(embedder, nil, "test-model")
	matcher := NewMatcher(DefaultThreshold, HistogramScorer{})
	engine, err := NewEngine(source, fetcher, extractor, matcher, 2, nil)
	require.NoError(t, err)
	return engine
}

func TestEngineRunPass(t *testing.T) {
	srv, _ := imageServer(t, nil)
	source := &fakeSource{
		lost:  []*store.Report{reportWithImage(1, 10, store.CategoryLost, "/uploads/lostDogs/a.png")},
		found: []*store.Report{reportWithImage(2, 20, store.CategoryFound, "/uploads/foundDogs/b.png")},
	}

	engine := newTestEngine(t, source, srv.URL, &stubEmbedder{embedding: []float32{1, 0}})

	candidates, err := engine.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	// The server serves identical bytes for both paths, so the hash path fires.
	require.Equal(t, float64(100), candidates[0].SimilarityPercentage)

	latest, seq := engine.Latest()
	require.Equal(t, candidates, latest)
	require.Equal(t, uint64(1), seq)
	require.Equal(t, int64(0), engine.ResourceCount(), "all scoped resources must be released after the pass")
}

func TestEngineSkipsIneligibleReports(t *testing.T) {
	srv, hits := imageServer(t, nil)

	reunited := reportWithImage(3, 30, store.CategoryLost, "/uploads/lostDogs/reunited.png")
	reunited.Reunited = true
	unsupported := reportWithImage(4, 40, store.CategoryFound, "/uploads/foundDogs/clip.gif")

	source := &fakeSource{
		lost:  []*store.Report{reunited},
		found: []*store.Report{unsupported, {PetID: 5, OwnerID: 50, Category: store.CategoryFound}},
	}
	engine := newTestEngine(t, source, srv.URL, &stubEmbedder{embedding: []float32{1, 0}})

	candidates, err := engine.RunPass(context.Background())
	require.NoError(t, err)
	require.Empty(t, candidates)
	require.Zero(t, hits("/uploads/lostDogs/reunited.png"), "reunited reports must never be fetched")
	require.Zero(t, hits("/uploads/foundDogs/clip.gif"), "unsupported image formats must never be fetched")
}

func TestEngineHashPathSurvivesEmbedderOutage(t *testing.T) {
	srv, _ := imageServer(t, nil)
	source := &fakeSource{
		lost:  []*store.Report{reportWithImage(1, 10, store.CategoryLost, "/uploads/lostDogs/a.png")},
		found: []*store.Report{reportWithImage(2, 20, store.CategoryFound, "/uploads/foundDogs/b.png")},
	}

	engine := newTestEngine(t, source, srv.URL, &stubEmbedder{err: errors.New("model is down")})

	candidates, err := engine.RunPass(context.Background())
	require.NoError(t, err, "per-report embedding failures never fail the pass")
	require.Len(t, candidates, 1, "identical bytes must match even without embeddings")
	require.Equal(t, float64(100), candidates[0].SimilarityPercentage)
	require.Equal(t, int64(0), engine.ResourceCount())
}

func TestEngineFailsWhenListingFails(t *testing.T) {
	srv, _ := imageServer(t, nil)
	engine := newTestEngine(t, failingSource{}, srv.URL, &stubEmbedder{embedding: []float32{1}})

	_, err := engine.RunPass(context.Background())
	require.Error(t, err)
}

func TestEngineDiscardsSupersededPass(t *testing.T) {
	gate := make(chan struct{})
	srv, _ := imageServer(t, gate)

	source := &fakeSource{
		lost:  []*store.Report{reportWithImage(1, 10, store.CategoryLost, "/uploads/lostDogs/slow-a.png")},
		found: []*store.Report{reportWithImage(2, 20, store.CategoryFound, "/uploads/foundDogs/slow-b.png")},
	}
	engine := newTestEngine(t, source, srv.URL, &stubEmbedder{embedding: []float32{1, 0}})

	staleDone := make(chan []Candidate, 1)
	go func() {
		candidates, err := engine.RunPass(context.Background())
		if err != nil {
			staleDone <- nil
			return
		}
		staleDone <- candidates
	}()

	// Give the stale pass time to list its report set and block on the gate.
	time.Sleep(100 * time.Millisecond)

	// The report set changes under the stale pass: pets 1 and 2 are replaced
	// by pets 3 and 4, and a fresh pass completes first.
	source.set(
		[]*store.Report{reportWithImage(3, 30, store.CategoryLost, "/uploads/lostDogs/c.png")},
		[]*store.Report{reportWithImage(4, 40, store.CategoryFound, "/uploads/foundDogs/d.png")},
	)
	fresh, err := engine.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	require.Equal(t, int32(3), fresh[0].PetID1)

	close(gate)
	stale := <-staleDone
	require.Len(t, stale, 1, "the stale pass still computes its result")
	require.Equal(t, int32(1), stale[0].PetID1)

	// Only the fresh pass is visible; the stale one was discarded.
	latest, seq := engine.Latest()
	require.Equal(t, fresh, latest)
	require.Equal(t, uint64(2), seq)
	require.Equal(t, int64(0), engine.ResourceCount())
}

func TestEngineRunsWithoutEmbeddingBackend(t *testing.T) {
	srv, _ := imageServer(t, nil)
	source := &fakeSource{
		lost:  []*store.Report{reportWithImage(1, 10, store.CategoryLost, "/uploads/lostDogs/a.png")},
		found: []*store.Report{reportWithImage(2, 20, store.CategoryFound, "/uploads/foundDogs/b.png")},
	}

	// No embedder at all: the engine runs in the degraded mode and the exact
	// duplicate path still produces candidates.
	engine := newTestEngine(t, source, srv.URL, nil)

	candidates, err := engine.RunPass(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, float64(100), candidates[0].SimilarityPercentage)
	require.Equal(t, int64(0), engine.ResourceCount())
}

func TestNewEngineValidation(t *testing.T) {
	fetcher := NewFetcher("http://localhost:0", t.TempDir(), 0)
	matcher := NewMatcher(DefaultThreshold, HistogramScorer{})

	_, err := NewEngine(nil, fetcher, NewExtractor(&stubEmbedder{}, nil, "m"), matcher, 2, nil)
	require.Error(t, err)

	// A missing embedding backend is a degraded configuration, not an error.
	engine, err := NewEngine(&fakeSource{}, fetcher, NewExtractor(nil, nil, "m"), matcher, 2, nil)
	require.NoError(t, err)
	require.NotNil(t, engine)
}
