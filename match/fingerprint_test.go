package match

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/marku123123/petpals-new/store"
)

type stubEmbedder struct {
	embedding []float32
	err       error
	calls     int
}

func (s *stubEmbedder) EmbedImage(_ context.Context, _ []byte, _ string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.embedding, nil
}

func (s *stubEmbedder) Dimensions() int { return len(s.embedding) }

type fakeCache struct {
	stored *store.ReportFingerprint
	hit    *store.ReportFingerprint
}

func (f *fakeCache) GetReportFingerprint(_ context.Context, find *store.FindReportFingerprint) (*store.ReportFingerprint, error) {
	if f.hit != nil && f.hit.PetID == find.PetID && f.hit.ContentHash == find.ContentHash {
		return f.hit, nil
	}
	return nil, nil
}

func (f *fakeCache) UpsertReportFingerprint(_ context.Context, upsert *store.ReportFingerprint) (*store.ReportFingerprint, error) {
	f.stored = upsert
	return upsert, nil
}

func TestExtract(t *testing.T) {
	embedder := &stubEmbedder{embedding: []float32{0.1, 0.2, 0.3}}
	extractor := NewExtractor(embedder, nil, "test-model")

	data := encodePNG(t)
	fingerprint, err := extractor.Extract(context.Background(), lostReport(1, 10), &FetchedImage{Bytes: data, ContentType: "image/png"})
	require.NoError(t, err)

	sum := md5.Sum(data)
	require.Equal(t, hex.EncodeToString(sum[:]), fingerprint.ContentHash)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, fingerprint.Embedding)
	require.NotNil(t, fingerprint.ColorHist)
	require.Equal(t, 1, embedder.calls)
	require.Equal(t, int64(0), extractor.ResourceCount(), "decoded pixels must be released before Extract returns")
}

func TestExtractWithoutEmbedder(t *testing.T) {
	extractor := NewExtractor(nil, nil, "")

	fingerprint, err := extractor.Extract(context.Background(), lostReport(1, 10), &FetchedImage{Bytes: encodePNG(t), ContentType: "image/png"})
	require.NoError(t, err, "a missing embedding backend is not a per-report failure")
	require.NotEmpty(t, fingerprint.ContentHash)
	require.NotNil(t, fingerprint.ColorHist)
	require.Nil(t, fingerprint.Embedding)
	require.Equal(t, int64(0), extractor.ResourceCount())
}

func TestExtractFailureStages(t *testing.T) {
	embedder := &stubEmbedder{err: errors.New("model is down")}
	extractor := NewExtractor(embedder, nil, "test-model")

	_, err := extractor.Extract(context.Background(), lostReport(1, 10), &FetchedImage{Bytes: []byte("not pixels"), ContentType: "image/png"})
	require.Error(t, err)
	require.Equal(t, "decode", failureStage(err))

	_, err = extractor.Extract(context.Background(), lostReport(1, 10), &FetchedImage{Bytes: encodePNG(t), ContentType: "image/png"})
	require.Error(t, err)
	require.Equal(t, "embed", failureStage(err))
}

func TestExtractKeepsHashWhenEmbeddingFails(t *testing.T) {
	embedder := &stubEmbedder{err: errors.New("model is down")}
	extractor := NewExtractor(embedder, nil, "test-model")

	fingerprint, err := extractor.Extract(context.Background(), lostReport(1, 10), &FetchedImage{Bytes: encodePNG(t), ContentType: "image/png"})
	require.Error(t, err)
	require.NotNil(t, fingerprint, "a failed embedding still yields a hash-only fingerprint")
	require.NotEmpty(t, fingerprint.ContentHash)
	require.Nil(t, fingerprint.Embedding)
	require.Equal(t, int64(0), extractor.ResourceCount())
}

func TestExtractKeepsHashWhenDecodeFails(t *testing.T) {
	embedder := &stubEmbedder{embedding: []float32{1}}
	extractor := NewExtractor(embedder, nil, "test-model")

	fingerprint, err := extractor.Extract(context.Background(), lostReport(1, 10), &FetchedImage{Bytes: []byte("not pixels"), ContentType: "image/png"})
	require.Error(t, err)
	require.NotNil(t, fingerprint)
	require.NotEmpty(t, fingerprint.ContentHash)
	require.Nil(t, fingerprint.Embedding)
	require.Equal(t, 0, embedder.calls, "undecodable bytes must not reach the embedder")
}

func TestExtractRejectsEmptyBytes(t *testing.T) {
	extractor := NewExtractor(&stubEmbedder{}, nil, "test-model")
	fingerprint, err := extractor.Extract(context.Background(), lostReport(1, 10), &FetchedImage{ContentType: "image/png"})
	require.Error(t, err)
	require.Nil(t, fingerprint)
}

func TestExtractCacheHitSkipsEmbedding(t *testing.T) {
	data := encodePNG(t)
	sum := md5.Sum(data)
	hash := hex.EncodeToString(sum[:])

	embedder := &stubEmbedder{embedding: []float32{9, 9}}
	cache := &fakeCache{hit: &store.ReportFingerprint{
		PetID:       1,
		ContentHash: hash,
		Embedding:   []float32{0.5, 0.5},
		Model:       "test-model",
	}}
	extractor := NewExtractor(embedder, cache, "test-model")

	fingerprint, err := extractor.Extract(context.Background(), lostReport(1, 10), &FetchedImage{Bytes: data, ContentType: "image/png"})
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, 0.5}, fingerprint.Embedding)
	require.Equal(t, 0, embedder.calls)
}

func TestExtractCacheMissOnModelChange(t *testing.T) {
	data := encodePNG(t)
	sum := md5.Sum(data)
	hash := hex.EncodeToString(sum[:])

	embedder := &stubEmbedder{embedding: []float32{9, 9}}
	cache := &fakeCache{hit: &store.ReportFingerprint{
		PetID:       1,
		ContentHash: hash,
		Embedding:   []float32{0.5, 0.5},
		Model:       "old-model",
	}}
	extractor := NewExtractor(embedder, cache, "test-model")

	fingerprint, err := extractor.Extract(context.Background(), lostReport(1, 10), &FetchedImage{Bytes: data, ContentType: "image/png"})
	require.NoError(t, err)
	require.Equal(t, []float32{9, 9}, fingerprint.Embedding)
	require.Equal(t, 1, embedder.calls)
	require.NotNil(t, cache.stored, "fresh embedding must be written back to the cache")
	require.Equal(t, "test-model", cache.stored.Model)
}
