package store

// ReportFingerprint is an optional persisted cache entry for a report's
// derived visual fingerprint. The matching engine recomputes fingerprints on
// every pass by default; the cache trades that simplicity for fewer embedding
// calls and is invalidated whenever the image bytes (and so the content hash)
// change.
type ReportFingerprint struct {
	ID          int32
	PetID       int32
	ContentHash string
	Embedding   []float32
	Model       string
	CreatedTs   int64
	UpdatedTs   int64
}

// FindReportFingerprint looks a cache entry up by report and hash.
type FindReportFingerprint struct {
	PetID       int32
	ContentHash string
}
