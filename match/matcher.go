package match

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/marku123123/petpals-new/store"
)

// DefaultThreshold is the similarity percentage a pair must reach on the
// embedding path to become a candidate. The boundary is inclusive.
const DefaultThreshold = 80.0

// Candidate is a proposed pairing between a lost and a found report.
// Candidates are never persisted; they are recomputed on every pass.
type Candidate struct {
	PetID1               int32   `json:"petId1"`
	PetID2               int32   `json:"petId2"`
	SimilarityPercentage float64 `json:"similarityPercentage"`
	ColorSimilarity      float64 `json:"colorSimilarity"`
}

// Matcher classifies fingerprint pairs. The pairwise loop is pure in-memory
// computation and runs strictly after all fingerprinting has settled.
type Matcher struct {
	Threshold float64
	Scorer    ColorScorer
}

func NewMatcher(threshold float64, scorer ColorScorer) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if scorer == nil {
		scorer = HistogramScorer{}
	}
	return &Matcher{Threshold: threshold, Scorer: scorer}
}

// Match walks every unordered fingerprint pair and emits candidates in loop
// order (ascending i, then ascending j). A pair is eligible only when the
// owners differ and the reports span both categories; an eligible pair is an
// exact match on equal content hashes and a similarity match when the
// embedding score reaches the threshold.
func (m *Matcher) Match(fingerprints []*Fingerprint) []Candidate {
	candidates := []Candidate{}
	for i := 0; i < len(fingerprints); i++ {
		for j := i + 1; j < len(fingerprints); j++ {
			a, b := fingerprints[i], fingerprints[j]
			if !pairEligible(a.Report, b.Report) {
				continue
			}

			if a.ContentHash == b.ContentHash {
				candidates = append(candidates, Candidate{
					PetID1:               a.Report.PetID,
					PetID2:               b.Report.PetID,
					SimilarityPercentage: 100,
					ColorSimilarity:      round2(m.Scorer.Score(a, b)),
				})
				continue
			}

			if a.Embedding == nil || b.Embedding == nil {
				continue
			}
			percentage := round2(cosineSimilarity(a.Embedding, b.Embedding) * 100)
			if percentage >= m.Threshold {
				candidates = append(candidates, Candidate{
					PetID1:               a.Report.PetID,
					PetID2:               b.Report.PetID,
					SimilarityPercentage: percentage,
					ColorSimilarity:      round2(m.Scorer.Score(a, b)),
				})
			}
		}
	}
	return candidates
}

func pairEligible(a, b *store.Report) bool {
	if a.OwnerID == b.OwnerID {
		return false
	}
	// Exactly one Lost and one Found.
	return a.Category != b.Category &&
		(a.Category == store.CategoryLost || b.Category == store.CategoryLost) &&
		(a.Category == store.CategoryFound || b.Category == store.CategoryFound)
}

// cosineSimilarity returns the cosine of the angle between two vectors,
// clamped to [0,1]. Mismatched or zero vectors score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if similarity < 0 {
		return 0
	}
	if similarity > 1 {
		return 1
	}
	return similarity
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Summarize groups candidates by pet id into human-readable lines of the
// form "Pet ID #3 matched with #7, #9".
func Summarize(candidates []Candidate) []string {
	matched := map[int32][]int32{}
	order := []int32{}
	for _, c := range candidates {
		if _, ok := matched[c.PetID1]; !ok {
			order = append(order, c.PetID1)
		}
		matched[c.PetID1] = append(matched[c.PetID1], c.PetID2)
	}

	summaries := make([]string, 0, len(order))
	for _, petID := range order {
		others := matched[petID]
		sort.Slice(others, func(i, j int) bool { return others[i] < others[j] })
		parts := make([]string, len(others))
		for i, other := range others {
			parts[i] = fmt.Sprintf("#%d", other)
		}
		summaries = append(summaries, fmt.Sprintf("Pet ID #%d matched with %s", petID, strings.Join(parts, ", ")))
	}
	return summaries
}
