package sqlxrepos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/attenx/attenx/core"
	"github.com/attenx/attenx/core/anomaly"
)

type anomalyRepository struct {
	db *sqlx.DB
}

var _ anomaly.Repository = (*anomalyRepository)(nil) // interface compliance check

func NewAnomalyRepository(db *sqlx.DB) *anomalyRepository {
	return &anomalyRepository{db: db}
}

// anomalyRow flattens an anomaly plus its joined sheet summary for scanning.
type anomalyRow struct {
	anomaly.Anomaly   `json:"-"`
	anomaly.SheetInfo `json:"-"`
}

func (r anomalyRow) domain() anomaly.Anomaly {
	an := r.Anomaly
	info := r.SheetInfo
	an.Sheet = &info
	return an
}

// buildAnomalyFilter translates the typed filter into WHERE conditions with
// bind parameters. Caller input never reaches the query text.
func buildAnomalyFilter(filter *anomaly.QueryFilter) (string, []interface{}) {
	if filter == nil || filter.IsEmpty() {
		return "", nil
	}

	conds := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	if filter.Status != "" {
		conds = append(conds, "a.status = ?")
		args = append(args, filter.Status)
	}
	if filter.Severity != "" {
		conds = append(conds, "a.severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.EmployeeID != "" {
		conds = append(conds, "a.employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.SheetID != "" {
		conds = append(conds, "s.sheet_id = ?")
		args = append(args, filter.SheetID)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (repo anomalyRepository) CreateAnomaly(ctx context.Context, an anomaly.Anomaly) (anomaly.Anomaly, error) {
	const q = `
		INSERT INTO anomaly (
			signature_id, sheet_id, employee_id, anomaly_type, severity,
			description, confidence_score, status, created_at, updated_at
		) VALUES (
			:signature_id, :sheet_id, :employee_id, :anomaly_type, :severity,
			:description, :confidence_score, :status, :created_at, :updated_at
		) RETURNING id`

	rows, err := repo.db.NamedQueryContext(ctx, q, an)
	if err != nil {
		return anomaly.Anomaly{}, errors.Wrap(err, "inserting anomaly")
	}
	defer func() { _ = rows.Close() }()
	if rows.Next() {
		if err = rows.Scan(&an.ID); err != nil {
			return anomaly.Anomaly{}, errors.Wrap(err, "scanning inserted anomaly id")
		}
	}
	if err = rows.Err(); err != nil {
		return anomaly.Anomaly{}, errors.Wrap(err, "inserting anomaly")
	}
	return an, nil
}

func (repo anomalyRepository) GetAnomalyByID(ctx context.Context, id int) (anomaly.Anomaly, error) {
	const q = `
		SELECT a.*,
		       sig.employee_name AS employee_name,
		       s.sheet_id AS sheet_uid,
		       s.original_filename AS sheet_filename,
		       s.upload_date AS sheet_upload_date,
		       s.shift_type AS sheet_shift_type
		FROM anomaly a
		JOIN attendance_sheet s ON a.sheet_id = s.id
		LEFT JOIN signature sig ON a.signature_id = sig.id
		WHERE a.id = $1`

	var row anomalyRow
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return anomaly.Anomaly{}, trapNoRowsErr(err, anomaly.ErrNotFound, "finding anomaly by ID")
	}
	return row.domain(), nil
}

func (repo anomalyRepository) QueryAnomalies(
	ctx context.Context,
	filter *anomaly.QueryFilter,
	ordering core.DBOrdering,
	pg anomaly.Pagination,
) ([]anomaly.Anomaly, int, error) {
	where, args := buildAnomalyFilter(filter)

	countQ := repo.db.Rebind("SELECT COUNT(*) FROM anomaly a JOIN attendance_sheet s ON a.sheet_id = s.id" + where)
	var total int
	if err := repo.db.GetContext(ctx, &total, countQ, args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting anomalies")
	}

	// ordering.Field comes from the service's allow-list
	q := repo.db.Rebind(fmt.Sprintf(`
		SELECT a.*,
		       sig.employee_name AS employee_name,
		       s.sheet_id AS sheet_uid,
		       s.original_filename AS sheet_filename,
		       s.upload_date AS sheet_upload_date,
		       s.shift_type AS sheet_shift_type
		FROM anomaly a
		JOIN attendance_sheet s ON a.sheet_id = s.id
		LEFT JOIN signature sig ON a.signature_id = sig.id
		%s
		ORDER BY a.%s, a.id
		LIMIT ? OFFSET ?`, where, ordering))
	args = append(args, pg.Limit, pg.Offset())

	var rows []anomalyRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying anomalies")
	}

	items := make([]anomaly.Anomaly, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.domain())
	}
	return items, total, nil
}

func (repo anomalyRepository) UpdateAnomalyStatus(
	ctx context.Context,
	id int,
	status string,
	notes null.String,
	reviewer anomaly.Reviewer,
	reviewedAt time.Time,
) (anomaly.Anomaly, error) {
	const q = `
		UPDATE anomaly
		SET status = $1, resolution_notes = $2, reviewed_by = $3,
		    reviewer_name = $4, reviewed_at = $5, updated_at = $5
		WHERE id = $6
		RETURNING *`

	var an anomaly.Anomaly
	err := repo.db.GetContext(ctx, &an, q, status, notes, reviewer.ID, reviewer.Name, reviewedAt.UTC(), id)
	if err != nil {
		return anomaly.Anomaly{}, trapNoRowsErr(err, anomaly.ErrNotFound, "updating anomaly status")
	}
	return an, nil
}

func (repo anomalyRepository) CountAnomalies(ctx context.Context, since null.Time) (anomaly.Stats, error) {
	stats := anomaly.Stats{
		BySeverity: make(map[string]int),
		ByStatus:   make(map[string]int),
		ByType:     make(map[string]int),
	}

	var where string
	var args []interface{}
	if since.Valid {
		where = " WHERE created_at >= $1"
		args = append(args, since.Time)
	}

	if err := repo.db.GetContext(ctx, &stats.Total, "SELECT COUNT(*) FROM anomaly"+where, args...); err != nil {
		return anomaly.Stats{}, errors.Wrap(err, "counting anomalies")
	}

	groups := []struct {
		column string
		dest   map[string]int
	}{
		{"severity", stats.BySeverity},
		{"status", stats.ByStatus},
		{"anomaly_type", stats.ByType},
	}
	for _, grp := range groups {
		q := fmt.Sprintf("SELECT %s AS label, COUNT(*) AS count FROM anomaly%s GROUP BY %s", grp.column, where, grp.column)
		var rows []groupCount
		if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
			return anomaly.Stats{}, errors.Wrapf(err, "grouping anomalies by %s", grp.column)
		}
		for _, row := range rows {
			grp.dest[row.Label] = row.Count
		}
	}
	return stats, nil
}

type groupCount struct {
	Label string `db:"label"`
	Count int    `db:"count"`
}
