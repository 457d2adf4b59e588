package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/marku123123/petpals-new/store"
)

const reportFields = "id, uid, pet_id, category, owner_id, name, breed, size, gender, location, details, image_path, reunited, archived, created_ts"

func (d *DB) CreateReport(ctx context.Context, create *store.Report) (*store.Report, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	// Allocate the next pet id atomically with the insert.
	if err := tx.QueryRowContext(ctx,
		`UPDATE pet_id_counter SET next_pet_id = next_pet_id + 1 WHERE id = 1 RETURNING next_pet_id`,
	).Scan(&create.PetID); err != nil {
		return nil, errors.Wrap(err, "failed to allocate pet id")
	}

	fields := []string{"uid", "pet_id", "category", "owner_id", "name", "breed", "size", "gender", "location", "details", "image_path", "reunited", "archived", "created_ts"}
	args := []any{create.UID, create.PetID, create.Category, create.OwnerID, create.Name, create.Breed, create.Size, create.Gender, create.Location, create.Details, create.ImagePath, create.Reunited, create.Archived, create.CreatedTs}
	stmt := `INSERT INTO report (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create report")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit tx")
	}
	return create, nil
}

func (d *DB) ListReports(ctx context.Context, find *store.FindReport) ([]*store.Report, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.PetID != nil {
		where, args = append(where, "pet_id = "+placeholder(len(args)+1)), append(args, *find.PetID)
	}
	if find.Category != nil {
		where, args = append(where, "category = "+placeholder(len(args)+1)), append(args, *find.Category)
	}
	if find.OwnerID != nil {
		where, args = append(where, "owner_id = "+placeholder(len(args)+1)), append(args, *find.OwnerID)
	}
	if find.Reunited != nil {
		where, args = append(where, "reunited = "+placeholder(len(args)+1)), append(args, *find.Reunited)
	}
	if find.Archived != nil {
		where, args = append(where, "archived = "+placeholder(len(args)+1)), append(args, *find.Archived)
	}

	query := `SELECT ` + reportFields + ` FROM report
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC`
	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reports")
	}
	defer rows.Close()

	list := make([]*store.Report, 0)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, report)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate reports")
	}
	return list, nil
}

func (d *DB) UpdateReport(ctx context.Context, update *store.UpdateReport) (*store.Report, error) {
	set, args := []string{}, []any{}

	if update.Name != nil {
		set, args = append(set, "name = "+placeholder(len(args)+1)), append(args, *update.Name)
	}
	if update.Breed != nil {
		set, args = append(set, "breed = "+placeholder(len(args)+1)), append(args, *update.Breed)
	}
	if update.Size != nil {
		set, args = append(set, "size = "+placeholder(len(args)+1)), append(args, *update.Size)
	}
	if update.Gender != nil {
		set, args = append(set, "gender = "+placeholder(len(args)+1)), append(args, *update.Gender)
	}
	if update.Location != nil {
		set, args = append(set, "location = "+placeholder(len(args)+1)), append(args, *update.Location)
	}
	if update.Details != nil {
		set, args = append(set, "details = "+placeholder(len(args)+1)), append(args, *update.Details)
	}
	if update.ImagePath != nil {
		set, args = append(set, "image_path = "+placeholder(len(args)+1)), append(args, *update.ImagePath)
	}
	if update.Archived != nil {
		set, args = append(set, "archived = "+placeholder(len(args)+1)), append(args, *update.Archived)
	}

	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	args = append(args, update.PetID)
	stmt := `UPDATE report SET ` + strings.Join(set, ", ") + ` WHERE pet_id = ` + placeholder(len(args)) + ` RETURNING ` + reportFields
	report, err := scanReport(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrReportNotFound
		}
		return nil, errors.Wrap(err, "failed to update report")
	}
	return report, nil
}

func (d *DB) DeleteReport(ctx context.Context, delete *store.DeleteReport) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM report WHERE pet_id = `+placeholder(1), delete.PetID)
	if err != nil {
		return errors.Wrap(err, "failed to delete report")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return store.ErrReportNotFound
	}
	return nil
}

func (d *DB) MarkReunited(ctx context.Context, petID int32) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	if err := markReunitedTx(ctx, tx, petID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE stats SET reunited_count = reunited_count + 1 WHERE id = 1`); err != nil {
		return errors.Wrap(err, "failed to bump reunited count")
	}
	return errors.Wrap(tx.Commit(), "failed to commit tx")
}

func (d *DB) MarkPairReunited(ctx context.Context, petID1, petID2 int32) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	// Both sides flip or neither does; the rollback on any error guarantees
	// no half-reunited pair is left behind.
	if err := markReunitedTx(ctx, tx, petID1); err != nil {
		return err
	}
	if err := markReunitedTx(ctx, tx, petID2); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE stats SET reunited_count = reunited_count + 1 WHERE id = 1`); err != nil {
		return errors.Wrap(err, "failed to bump reunited count")
	}
	return errors.Wrap(tx.Commit(), "failed to commit tx")
}

func markReunitedTx(ctx context.Context, tx *sql.Tx, petID int32) error {
	var reunited bool
	err := tx.QueryRowContext(ctx, `SELECT reunited FROM report WHERE pet_id = `+placeholder(1), petID).Scan(&reunited)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrReportNotFound
	}
	if err != nil {
		return errors.Wrap(err, "failed to load report")
	}
	if reunited {
		return store.ErrAlreadyReunited
	}
	if _, err := tx.ExecContext(ctx, `UPDATE report SET reunited = TRUE WHERE pet_id = `+placeholder(1), petID); err != nil {
		return errors.Wrap(err, "failed to mark report reunited")
	}
	return nil
}

func (d *DB) GetReunitedCount(ctx context.Context) (int32, error) {
	var count int32
	if err := d.db.QueryRowContext(ctx, `SELECT reunited_count FROM stats WHERE id = 1`).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to get reunited count")
	}
	return count, nil
}

func (d *DB) CountNewReports(ctx context.Context, sinceTs int64) (int32, error) {
	var count int32
	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM report WHERE created_ts >= `+placeholder(1)+` AND archived = FALSE`, sinceTs,
	).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count new reports")
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*store.Report, error) {
	report := &store.Report{}
	var imagePath sql.NullString
	if err := row.Scan(
		&report.ID,
		&report.UID,
		&report.PetID,
		&report.Category,
		&report.OwnerID,
		&report.Name,
		&report.Breed,
		&report.Size,
		&report.Gender,
		&report.Location,
		&report.Details,
		&imagePath,
		&report.Reunited,
		&report.Archived,
		&report.CreatedTs,
	); err != nil {
		return nil, err
	}
	if imagePath.Valid {
		report.ImagePath = &imagePath.String
	}
	return report, nil
}
