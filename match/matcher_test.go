package match

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marku123123/petpals-new/store"
)

func lostReport(petID, ownerID int32) *store.Report {
	return &store.Report{PetID: petID, OwnerID: ownerID, Category: store.CategoryLost}
}

func foundReport(petID, ownerID int32) *store.Report {
	return &store.Report{PetID: petID, OwnerID: ownerID, Category: store.CategoryFound}
}

func TestMatcherExcludesSameOwner(t *testing.T) {
	m := NewMatcher(DefaultThreshold, HistogramScorer{})
	fingerprints := []*Fingerprint{
		{Report: lostReport(1, 10), ContentHash: "aaa"},
		{Report: foundReport(2, 10), ContentHash: "aaa"},
	}

	candidates := m.Match(fingerprints)
	require.Empty(t, candidates, "identical images of the same owner must never pair")
}

func TestMatcherExcludesSameCategory(t *testing.T) {
	m := NewMatcher(DefaultThreshold, HistogramScorer{})
	fingerprints := []*Fingerprint{
		{Report: lostReport(1, 10), ContentHash: "aaa"},
		{Report: lostReport(2, 20), ContentHash: "aaa"},
		{Report: foundReport(3, 30), ContentHash: "bbb"},
		{Report: foundReport(4, 40), ContentHash: "bbb"},
	}

	candidates := m.Match(fingerprints)
	require.Empty(t, candidates, "two lost or two found reports must never pair")
}

func TestMatcherExactDuplicate(t *testing.T) {
	m := NewMatcher(DefaultThreshold, HistogramScorer{})
	// No embeddings at all: the hash path must still fire.
	fingerprints := []*Fingerprint{
		{Report: lostReport(1, 10), ContentHash: "samehash"},
		{Report: foundReport(2, 20), ContentHash: "samehash"},
	}

	candidates := m.Match(fingerprints)
	require.Len(t, candidates, 1)
	require.Equal(t, int32(1), candidates[0].PetID1)
	require.Equal(t, int32(2), candidates[0].PetID2)
	require.Equal(t, float64(100), candidates[0].SimilarityPercentage)
	require.Equal(t, float64(100), candidates[0].ColorSimilarity)
}

func TestMatcherThresholdBoundary(t *testing.T) {
	m := NewMatcher(80, HistogramScorer{})

	// cos((1,0),(0.8,0.6)) = 0.8, exactly on the boundary.
	atBoundary := []*Fingerprint{
		{Report: lostReport(1, 10), ContentHash: "a", Embedding: []float32{1, 0}},
		{Report: foundReport(2, 20), ContentHash: "b", Embedding: []float32{0.8, 0.6}},
	}
	candidates := m.Match(atBoundary)
	require.Len(t, candidates, 1, "the threshold is inclusive")
	require.Equal(t, float64(80), candidates[0].SimilarityPercentage)

	// cos((1,0),(0.79,...)) = 0.79, just below.
	belowBoundary := []*Fingerprint{
		{Report: lostReport(1, 10), ContentHash: "a", Embedding: []float32{1, 0}},
		{Report: foundReport(2, 20), ContentHash: "b", Embedding: []float32{0.79, 0.6131883}},
	}
	require.Empty(t, m.Match(belowBoundary))
}

func TestMatcherIsolatesExclusions(t *testing.T) {
	m := NewMatcher(DefaultThreshold, HistogramScorer{})
	// A/B share bytes across owners and categories; C/D share bytes but also
	// an owner. Exactly one candidate must come out.
	fingerprints := []*Fingerprint{
		{Report: lostReport(1, 10), ContentHash: "imgX"},
		{Report: foundReport(2, 20), ContentHash: "imgX"},
		{Report: lostReport(3, 30), ContentHash: "imgY"},
		{Report: foundReport(4, 30), ContentHash: "imgY"},
	}

	candidates := m.Match(fingerprints)
	require.Len(t, candidates, 1)
	require.Equal(t, int32(1), candidates[0].PetID1)
	require.Equal(t, int32(2), candidates[0].PetID2)
}

func TestMatcherSkipsPairsWithoutEmbeddings(t *testing.T) {
	m := NewMatcher(DefaultThreshold, HistogramScorer{})
	fingerprints := []*Fingerprint{
		{Report: lostReport(1, 10), ContentHash: "a", Embedding: []float32{1, 0}},
		{Report: foundReport(2, 20), ContentHash: "b"},
	}
	require.Empty(t, m.Match(fingerprints), "different hashes with a missing embedding cannot match")
}

func TestMatcherEmitsPairsInLoopOrder(t *testing.T) {
	m := NewMatcher(DefaultThreshold, HistogramScorer{})
	fingerprints := []*Fingerprint{
		{Report: lostReport(1, 10), ContentHash: "x"},
		{Report: lostReport(2, 20), ContentHash: "x"},
		{Report: foundReport(3, 30), ContentHash: "x"},
		{Report: foundReport(4, 40), ContentHash: "x"},
	}

	candidates := m.Match(fingerprints)
	require.Len(t, candidates, 4)
	expected := [][2]int32{{1, 3}, {1, 4}, {2, 3}, {2, 4}}
	for i, pair := range expected {
		require.Equal(t, pair[0], candidates[i].PetID1)
		require.Equal(t, pair[1], candidates[i].PetID2)
	}
}

func TestCosineSimilarity(t *testing.T) {
	require.Equal(t, float64(1), cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}))
	require.Equal(t, float64(0), cosineSimilarity([]float32{1, 0}, []float32{0, 1}))
	// Opposed vectors clamp to zero instead of going negative.
	require.Equal(t, float64(0), cosineSimilarity([]float32{1, 0}, []float32{-1, 0}))
	require.Equal(t, float64(0), cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}), "mismatched dimensions score zero")
	require.Equal(t, float64(0), cosineSimilarity([]float32{0, 0}, []float32{1, 2}), "zero vector scores zero")
}

func TestSummarize(t *testing.T) {
	candidates := []Candidate{
		{PetID1: 3, PetID2: 9, SimilarityPercentage: 100},
		{PetID1: 3, PetID2: 7, SimilarityPercentage: 85},
		{PetID1: 5, PetID2: 8, SimilarityPercentage: 81},
	}

	summaries := Summarize(candidates)
	require.Equal(t, []string{
		"Pet ID #3 matched with #7, #9",
		"Pet ID #5 matched with #8",
	}, summaries)
}

func TestSummarizeEmpty(t *testing.T) {
	require.Empty(t, Summarize(nil))
}
