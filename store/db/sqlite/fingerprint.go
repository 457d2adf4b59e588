package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/marku123123/petpals-new/store"
)

// Embeddings are stored as BLOBs of little-endian float32; similarity is
// computed in the application layer, so no vector extension is needed.

func float32SliceToBLOB(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}

func blobToFloat32Slice(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, errors.Errorf("invalid embedding blob length: %d", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4 : i*4+4]))
	}
	return vec, nil
}

func (d *DB) UpsertReportFingerprint(ctx context.Context, upsert *store.ReportFingerprint) (*store.ReportFingerprint, error) {
	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM report_fingerprint WHERE pet_id = ? AND content_hash <> ?`,
		upsert.PetID, upsert.ContentHash,
	); err != nil {
		return nil, errors.Wrap(err, "failed to drop stale fingerprints")
	}

	stmt := `
		INSERT INTO report_fingerprint (pet_id, content_hash, embedding, model, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (pet_id, content_hash)
		DO UPDATE SET
			embedding = excluded.embedding,
			model = excluded.model,
			updated_ts = excluded.updated_ts
		RETURNING id, created_ts, updated_ts
	`

	err := d.db.QueryRowContext(ctx, stmt,
		upsert.PetID,
		upsert.ContentHash,
		float32SliceToBLOB(upsert.Embedding),
		upsert.Model,
		upsert.CreatedTs,
		upsert.UpdatedTs,
	).Scan(&upsert.ID, &upsert.CreatedTs, &upsert.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert report fingerprint")
	}

	return upsert, nil
}

func (d *DB) GetReportFingerprint(ctx context.Context, find *store.FindReportFingerprint) (*store.ReportFingerprint, error) {
	query := `
		SELECT id, pet_id, content_hash, embedding, model, created_ts, updated_ts
		FROM report_fingerprint
		WHERE pet_id = ? AND content_hash = ?`

	fingerprint := &store.ReportFingerprint{}
	var blob []byte
	err := d.db.QueryRowContext(ctx, query, find.PetID, find.ContentHash).Scan(
		&fingerprint.ID,
		&fingerprint.PetID,
		&fingerprint.ContentHash,
		&blob,
		&fingerprint.Model,
		&fingerprint.CreatedTs,
		&fingerprint.UpdatedTs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get report fingerprint")
	}

	if len(blob) > 0 {
		vec, err := blobToFloat32Slice(blob)
		if err != nil {
			return nil, err
		}
		fingerprint.Embedding = vec
	}
	return fingerprint, nil
}

func (d *DB) DeleteReportFingerprint(ctx context.Context, petID int32) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM report_fingerprint WHERE pet_id = ?`, petID); err != nil {
		return errors.Wrap(err, "failed to delete report fingerprint")
	}
	return nil
}
