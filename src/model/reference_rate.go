package model

import (
	"database/sql"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// ReferenceRate is a central-bank rate effective over [StartDate, EndDate].
// A nil EndDate means the rate is still in force.
type ReferenceRate struct {
	ID        int64           `json:"id"`
	Value     decimal.Decimal `json:"value"`
	StartDate civil.Date      `json:"start_date"`
	EndDate   *civil.Date     `json:"end_date"`
}

// IsOpen reports whether the rate has no expiry date.
func (r ReferenceRate) IsOpen() bool { return r.EndDate == nil }

func (r *ReferenceRate) CreateReferenceRate(db DBTX) error {
	var endDate sql.NullString
	if r.EndDate != nil {
		endDate = sql.NullString{String: r.EndDate.String(), Valid: true}
	}
	res, err := db.Exec(`INSERT INTO reference_rates (value, start_date, end_date) VALUES (?, ?, ?)`,
		r.Value, r.StartDate.String(), endDate)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

func scanReferenceRate(row interface{ Scan(dest ...any) error }) (*ReferenceRate, error) {
	var r ReferenceRate
	var start string
	var end sql.NullString
	if err := row.Scan(&r.ID, &r.Value, &start, &end); err != nil {
		return nil, err
	}
	d, err := parseDate(start)
	if err != nil {
		return nil, err
	}
	r.StartDate = d
	if end.Valid && end.String != "" {
		e, err := parseDate(end.String)
		if err != nil {
			return nil, err
		}
		r.EndDate = &e
	}
	return &r, nil
}

func queryReferenceRates(db DBTX, query string, args ...any) ([]ReferenceRate, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying reference rates: %w", err)
	}
	defer rows.Close()

	var rates []ReferenceRate
	for rows.Next() {
		r, err := scanReferenceRate(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning reference rate row: %w", err)
		}
		rates = append(rates, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over reference rate rows: %w", err)
	}
	return rates, nil
}

// ListReferenceRates returns the full rate history ordered by start date.
func ListReferenceRates(db DBTX) ([]ReferenceRate, error) {
	return queryReferenceRates(db, `SELECT id, value, start_date, end_date FROM reference_rates ORDER BY start_date ASC`)
}

// ListReferenceRatesUpTo returns every rate that became effective on or before end.
func ListReferenceRatesUpTo(db DBTX, end civil.Date) ([]ReferenceRate, error) {
	return queryReferenceRates(db,
		`SELECT id, value, start_date, end_date FROM reference_rates WHERE start_date <= ? ORDER BY start_date ASC`,
		end.String())
}

// GetApplicableReferenceRate returns the most recently effective rate as of d,
// or nil when no rate had started by then.
func GetApplicableReferenceRate(db DBTX, d civil.Date) (*ReferenceRate, error) {
	r, err := scanReferenceRate(db.QueryRow(
		`SELECT id, value, start_date, end_date FROM reference_rates WHERE start_date <= ? ORDER BY start_date DESC LIMIT 1`,
		d.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// CloseOpenReferenceRate sets the end date of the currently open rate, if any.
func CloseOpenReferenceRate(db DBTX, end civil.Date) (int64, error) {
	res, err := db.Exec(`UPDATE reference_rates SET end_date = ? WHERE end_date IS NULL AND start_date <= ?`,
		end.String(), end.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAllReferenceRates clears the rate history before a full re-import.
func DeleteAllReferenceRates(db DBTX) error {
	_, err := db.Exec(`DELETE FROM reference_rates`)
	return err
}
