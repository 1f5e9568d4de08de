package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/w9en/qsolog/internal/errors"
	"github.com/w9en/qsolog/internal/qso"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrUniqueConstraint is returned when an insert reuses an existing id.
var ErrUniqueConstraint = &errors.LogError{
	Code:    errors.ErrConflict,
	Status:  409,
	Message: "unique constraint violation",
}

const columns = `id, call, name, date, time, band, mode, report, prop_mode, satellite,
	grid, county, state, country, cq_zone, freq, remarks, my_grid`

// Insert stores a new contact. The id is taken from r.
func Insert(ctx context.Context, q Querier, r *qso.Record) error {
	query := `INSERT INTO logbook (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		r.ID, r.Callsign, r.Name, r.Date, r.Time, r.Band, r.Mode, r.Report,
		r.PropMode, r.Satellite, r.Grid, r.County, r.State, r.Country,
		r.CQZone, r.Freq, r.Remarks, r.MyGrid,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewStoreUnavailable(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE or PRIMARY KEY violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

// UpdateByID replaces every column of the row identified by r.ID.
func UpdateByID(ctx context.Context, q Querier, r *qso.Record) error {
	query := `
		UPDATE logbook
		SET call = ?, name = ?, date = ?, time = ?, band = ?, mode = ?, report = ?,
			prop_mode = ?, satellite = ?, grid = ?, county = ?, state = ?, country = ?,
			cq_zone = ?, freq = ?, remarks = ?, my_grid = ?
		WHERE id = ?
	`

	result, err := q.ExecContext(ctx, query,
		r.Callsign, r.Name, r.Date, r.Time, r.Band, r.Mode, r.Report,
		r.PropMode, r.Satellite, r.Grid, r.County, r.State, r.Country,
		r.CQZone, r.Freq, r.Remarks, r.MyGrid,
		r.ID,
	)
	if err != nil {
		return errors.NewStoreUnavailable(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewStoreUnavailable(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(r.ID)
	}
	return nil
}

// GetByID retrieves a contact by id.
func GetByID(ctx context.Context, q Querier, id int64) (*qso.Record, error) {
	row := q.QueryRowContext(ctx, `SELECT `+columns+` FROM logbook WHERE id = ?`, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewStoreUnavailable(err)
	}
	return r, nil
}

// DeleteByID removes a contact.
func DeleteByID(ctx context.Context, q Querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM logbook WHERE id = ?`, id)
	if err != nil {
		return errors.NewStoreUnavailable(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewStoreUnavailable(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// LastID returns the highest id in the logbook, or 0 when it is empty.
func LastID(ctx context.Context, q Querier) (int64, error) {
	var id int64
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM logbook`).Scan(&id); err != nil {
		return 0, errors.NewStoreUnavailable(err)
	}
	return id, nil
}

// Count returns the number of contacts.
func Count(ctx context.Context, q Querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM logbook`).Scan(&n); err != nil {
		return 0, errors.NewStoreUnavailable(err)
	}
	return n, nil
}

// Recent returns up to limit contacts, newest date first; ties by id descending.
func Recent(ctx context.Context, q Querier, limit int) ([]*qso.Record, error) {
	query := `SELECT ` + columns + ` FROM logbook ORDER BY date DESC, id DESC LIMIT ?`
	return queryRecords(ctx, q, query, limit)
}

// FindByCallsign returns up to limit contacts with an exact callsign match,
// ordered like Recent.
func FindByCallsign(ctx context.Context, q Querier, call string, limit int) ([]*qso.Record, error) {
	query := `SELECT ` + columns + ` FROM logbook WHERE call = ? ORDER BY date DESC, id DESC LIMIT ?`
	return queryRecords(ctx, q, query, call, limit)
}

// ListAll returns every contact in ascending id order.
func ListAll(ctx context.Context, q Querier) ([]*qso.Record, error) {
	return queryRecords(ctx, q, `SELECT `+columns+` FROM logbook ORDER BY id ASC`)
}

func queryRecords(ctx context.Context, q Querier, query string, args ...any) ([]*qso.Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStoreUnavailable(err)
	}
	defer rows.Close()

	records := []*qso.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, errors.NewStoreUnavailable(err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreUnavailable(err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRecord scans a single row into a Record, in column order.
func scanRecord(row scanner) (*qso.Record, error) {
	var r qso.Record
	err := row.Scan(
		&r.ID, &r.Callsign, &r.Name, &r.Date, &r.Time, &r.Band, &r.Mode, &r.Report,
		&r.PropMode, &r.Satellite, &r.Grid, &r.County, &r.State, &r.Country,
		&r.CQZone, &r.Freq, &r.Remarks, &r.MyGrid,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
