package postgres

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/marku123123/petpals-new/store"
)

// UpsertReportFingerprint inserts or refreshes a cached fingerprint for a
// report. The (pet_id, content_hash) key means a changed image invalidates
// the old row naturally: the new hash gets its own entry and the stale one is
// removed first.
func (d *DB) UpsertReportFingerprint(ctx context.Context, upsert *store.ReportFingerprint) (*store.ReportFingerprint, error) {
	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM report_fingerprint WHERE pet_id = `+placeholder(1)+` AND content_hash <> `+placeholder(2),
		upsert.PetID, upsert.ContentHash,
	); err != nil {
		return nil, errors.Wrap(err, "failed to drop stale fingerprints")
	}

	stmt := `
		INSERT INTO report_fingerprint (pet_id, content_hash, embedding, model, created_ts, updated_ts)
		VALUES (` + placeholders(6) + `)
		ON CONFLICT (pet_id, content_hash)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id, created_ts, updated_ts
	`

	vector := pgvector.NewVector(upsert.Embedding)
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.PetID,
		upsert.ContentHash,
		vector,
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
		WHERE pet_id = ` + placeholder(1) + ` AND content_hash = ` + placeholder(2)

	fingerprint := &store.ReportFingerprint{}
	var vector pgvector.Vector
	err := d.db.QueryRowContext(ctx, query, find.PetID, find.ContentHash).Scan(
		&fingerprint.ID,
		&fingerprint.PetID,
		&fingerprint.ContentHash,
		&vector,
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

	fingerprint.Embedding = vector.Slice()
	return fingerprint, nil
}

func (d *DB) DeleteReportFingerprint(ctx context.Context, petID int32) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM report_fingerprint WHERE pet_id = `+placeholder(1), petID); err != nil {
		return errors.Wrap(err, "failed to delete report fingerprint")
	}
	return nil
}
