package match

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"image"
	"image/png"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/marku123123/petpals-new/store"
)

// embedInputSize is the square resolution the embedding model expects.
const embedInputSize = 224

// Fingerprint is the derived, ephemeral comparable representation of one
// report's photo. It lives for a single matching pass.
//
// ContentHash is always present once the bytes were fetched. Embedding and
// ColorHist are nil when decoding or the embedding call failed; such a
// report still participates in the exact-duplicate path, which needs only
// the hash.
type Fingerprint struct {
	Report      *store.Report
	ContentHash string
	Embedding   []float32
	ColorHist   []float64
}

// FingerprintCache persists embeddings keyed by (pet id, content hash) so
// unchanged images skip the embedding call on later passes. A nil cache
// means every pass recomputes everything.
type FingerprintCache interface {
	GetReportFingerprint(ctx context.Context, find *store.FindReportFingerprint) (*store.ReportFingerprint, error)
	UpsertReportFingerprint(ctx context.Context, upsert *store.ReportFingerprint) (*store.ReportFingerprint, error)
}

// extractError tags a per-report fingerprint failure with the pipeline stage
// it occurred in, so failures can be counted per stage.
type extractError struct {
	stage string
	err   error
}

func (e *extractError) Error() string { return e.err.Error() }
func (e *extractError) Unwrap() error { return e.err }

// failureStage classifies a fingerprint error by pipeline stage. Untagged
// errors count against the embedding stage.
func failureStage(err error) string {
	var xerr *extractError
	if errors.As(err, &xerr) {
		return xerr.stage
	}
	return "embed"
}

// Extractor computes fingerprints from fetched images. A nil embedder is a
// valid degraded configuration: fingerprints then stay hash-only and passes
// match exact duplicates only.
type Extractor struct {
	embedder ImageEmbedder
	cache    FingerprintCache
	model    string
	tracker  *resourceTracker
}

func NewExtractor(embedder ImageEmbedder, cache FingerprintCache, model string) *Extractor {
	return &Extractor{
		embedder: embedder,
		cache:    cache,
		model:    model,
		tracker:  &resourceTracker{},
	}
}

// Extract hashes the raw bytes, decodes and downsamples the pixels, and runs
// the embedding model. It always returns a fingerprint when the hash could
// be computed; a non-nil error alongside it means the decode or embedding
// stage failed and the fingerprint carries the hash only. With no embedder
// configured the hash-only fingerprint is returned without an error.
//
// The decoded pixels are scoped to this call: they are released before
// Extract returns on every path.
func (e *Extractor) Extract(ctx context.Context, report *store.Report, fetched *FetchedImage) (*Fingerprint, error) {
	if len(fetched.Bytes) == 0 {
		return nil, errors.New("no image bytes to fingerprint")
	}

	sum := md5.Sum(fetched.Bytes)
	fingerprint := &Fingerprint{
		Report:      report,
		ContentHash: hex.EncodeToString(sum[:]),
	}

	img, err := DecodeImage(fetched.Bytes, fetched.ContentType)
	if err != nil {
		return fingerprint, &extractError{stage: "decode", err: errors.Wrapf(err, "decode failed for pet %d", report.PetID)}
	}
	e.tracker.acquire()
	defer func() {
		img = nil
		e.tracker.release()
	}()

	fingerprint.ColorHist = colorHistogram(img)

	if cached := e.lookupCache(ctx, report.PetID, fingerprint.ContentHash); cached != nil {
		fingerprint.Embedding = cached
		return fingerprint, nil
	}

	// Without an embedding backend the fingerprint stays hash-only. This is
	// the expected degraded mode, not a failure.
	if e.embedder == nil {
		return fingerprint, nil
	}

	prepared, err := e.prepare(img)
	if err != nil {
		return fingerprint, &extractError{stage: "embed", err: errors.Wrapf(err, "prepare failed for pet %d", report.PetID)}
	}

	embedding, err := e.embedder.EmbedImage(ctx, prepared, "image/png")
	if err != nil {
		return fingerprint, &extractError{stage: "embed", err: errors.Wrapf(err, "embedding failed for pet %d", report.PetID)}
	}

	fingerprint.Embedding = embedding
	e.storeCache(ctx, report.PetID, fingerprint.ContentHash, embedding)
	return fingerprint, nil
}

func (e *Extractor) lookupCache(ctx context.Context, petID int32, contentHash string) []float32 {
	if e.cache == nil {
		return nil
	}
	cached, err := e.cache.GetReportFingerprint(ctx, &store.FindReportFingerprint{
		PetID:       petID,
		ContentHash: contentHash,
	})
	if err != nil {
		slog.Warn("fingerprint cache lookup failed", "petId", petID, "error", err)
		return nil
	}
	if cached == nil || len(cached.Embedding) == 0 || cached.Model != e.model {
		return nil
	}
	return cached.Embedding
}

func (e *Extractor) storeCache(ctx context.Context, petID int32, contentHash string, embedding []float32) {
	if e.cache == nil {
		return
	}
	now := time.Now().Unix()
	if _, err := e.cache.UpsertReportFingerprint(ctx, &store.ReportFingerprint{
		PetID:       petID,
		ContentHash: contentHash,
		Embedding:   embedding,
		Model:       e.model,
		CreatedTs:   now,
		UpdatedTs:   now,
	}); err != nil {
		slog.Warn("fingerprint cache store failed", "petId", petID, "error", err)
	}
}

// prepare downsamples to the model's input resolution with nearest-neighbor
// sampling and re-encodes losslessly for transport.
func (e *Extractor) prepare(img image.Image) ([]byte, error) {
	resized := imaging.Resize(img, embedInputSize, embedInputSize, imaging.NearestNeighbor)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return nil, errors.Wrap(err, "failed to encode prepared image")
	}
	return buf.Bytes(), nil
}

// ResourceCount returns the number of decoded images currently held.
func (e *Extractor) ResourceCount() int64 {
	return e.tracker.count()
}
