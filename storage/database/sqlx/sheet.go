package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/attenx/attenx/core/sheet"
)

type sheetRepository struct {
	db *sqlx.DB
}

var _ sheet.Repository = (*sheetRepository)(nil) // interface compliance check

func NewSheetRepository(db *sqlx.DB) *sheetRepository {
	return &sheetRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to the domain's notFound error.
func trapNoRowsErr(err, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo sheetRepository) CreateSheet(ctx context.Context, sht sheet.Sheet) (sheet.Sheet, error) {
	const q = `
		INSERT INTO attendance_sheet (
			sheet_id, original_filename, file_path, file_size, file_type,
			upload_date, shift_type, department, uploaded_by, status,
			created_at, updated_at
		) VALUES (
			:sheet_id, :original_filename, :file_path, :file_size, :file_type,
			:upload_date, :shift_type, :department, :uploaded_by, :status,
			:created_at, :updated_at
		) RETURNING id`

	rows, err := repo.db.NamedQueryContext(ctx, q, sht)
	if err != nil {
		return sheet.Sheet{}, errors.Wrap(err, "inserting sheet")
	}
	defer func() { _ = rows.Close() }()
	if rows.Next() {
		if err = rows.Scan(&sht.ID); err != nil {
			return sheet.Sheet{}, errors.Wrap(err, "scanning inserted sheet id")
		}
	}
	if err = rows.Err(); err != nil {
		return sheet.Sheet{}, errors.Wrap(err, "inserting sheet")
	}
	return sht, nil
}

func (repo sheetRepository) GetSheetByID(ctx context.Context, id int) (sheet.Sheet, error) {
	const q = `SELECT * FROM attendance_sheet WHERE id = $1`

	var sht sheet.Sheet
	if err := repo.db.GetContext(ctx, &sht, q, id); err != nil {
		return sheet.Sheet{}, trapNoRowsErr(err, sheet.ErrNotFound, "finding sheet by ID")
	}
	return sht, nil
}

func (repo sheetRepository) MarkSheetProcessing(ctx context.Context, id int, startedAt time.Time) error {
	const q = `
		UPDATE attendance_sheet
		SET status = $1, processed_at = $2, updated_at = $2
		WHERE id = $3`

	res, err := repo.db.ExecContext(ctx, q, sheet.StatusProcessing, startedAt.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "marking sheet processing")
	}
	return repo.trapNoMatch(res)
}

func (repo sheetRepository) SetSheetStatus(ctx context.Context, id int, status string) error {
	const q = `UPDATE attendance_sheet SET status = $1, updated_at = $2 WHERE id = $3`

	res, err := repo.db.ExecContext(ctx, q, status, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "updating sheet status")
	}
	return repo.trapNoMatch(res)
}

func (repo sheetRepository) CompleteSheet(ctx context.Context, id int, totalSignatures, anomaliesCount int) error {
	const q = `
		UPDATE attendance_sheet
		SET status = $1, total_signatures = $2, anomalies_count = $3, updated_at = $4
		WHERE id = $5`

	res, err := repo.db.ExecContext(ctx, q, sheet.StatusCompleted, totalSignatures, anomaliesCount, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "completing sheet")
	}
	return repo.trapNoMatch(res)
}

func (repo sheetRepository) CreateSignature(ctx context.Context, sig sheet.Signature) (sheet.Signature, error) {
	const q = `
		INSERT INTO signature (
			sheet_id, employee_id, employee_name, confidence_score,
			position_x, position_y, width, height, is_verified
		) VALUES (
			:sheet_id, :employee_id, :employee_name, :confidence_score,
			:position_x, :position_y, :width, :height, :is_verified
		) RETURNING id`

	rows, err := repo.db.NamedQueryContext(ctx, q, sig)
	if err != nil {
		return sheet.Signature{}, errors.Wrap(err, "inserting signature")
	}
	defer func() { _ = rows.Close() }()
	if rows.Next() {
		if err = rows.Scan(&sig.ID); err != nil {
			return sheet.Signature{}, errors.Wrap(err, "scanning inserted signature id")
		}
	}
	if err = rows.Err(); err != nil {
		return sheet.Signature{}, errors.Wrap(err, "inserting signature")
	}
	return sig, nil
}

func (repo sheetRepository) QuerySheetSignatures(ctx context.Context, sheetID int) ([]sheet.Signature, error) {
	const q = `SELECT * FROM signature WHERE sheet_id = $1 ORDER BY id`

	sigs := make([]sheet.Signature, 0)
	if err := repo.db.SelectContext(ctx, &sigs, q, sheetID); err != nil {
		return nil, errors.Wrap(err, "querying sheet signatures")
	}
	return sigs, nil
}

func (repo sheetRepository) trapNoMatch(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "checking affected rows")
	}
	if n == 0 {
		return sheet.ErrNotFound
	}
	return nil
}
