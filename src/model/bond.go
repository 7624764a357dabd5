package model

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Bond holds the immutable terms of an issuance.
type Bond struct {
	ID                  int64           `json:"id"`
	Series              string          `json:"series"`
	NominalValue        decimal.Decimal `json:"nominal_value"`
	MaturityPeriod      int             `json:"maturity_period"`
	InitialInterestRate decimal.Decimal `json:"initial_interest_rate"`
	FirstInterestPeriod int             `json:"first_interest_period"`
	ReferenceRateMargin decimal.Decimal `json:"reference_rate_margin"`
	CreatedAt           time.Time       `json:"created_at"`
}

// ErrBondNotFound is returned when no bond matches a lookup.
var ErrBondNotFound = errors.New("bond not found")

// parseDate converts a stored TEXT date back to a civil.Date.
func parseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	return d, nil
}

func (b *Bond) CreateBond(db DBTX) error {
	b.CreatedAt = time.Now()
	res, err := db.Exec(`
	INSERT INTO bonds (series, nominal_value, maturity_period, initial_interest_rate, first_interest_period, reference_rate_margin, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.Series, b.NominalValue, b.MaturityPeriod, b.InitialInterestRate,
		b.FirstInterestPeriod, b.ReferenceRateMargin, b.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = id
	return nil
}

const bondColumns = `id, series, nominal_value, maturity_period, initial_interest_rate, first_interest_period, reference_rate_margin, created_at`

func scanBond(row interface{ Scan(dest ...any) error }) (*Bond, error) {
	var b Bond
	err := row.Scan(&b.ID, &b.Series, &b.NominalValue, &b.MaturityPeriod,
		&b.InitialInterestRate, &b.FirstInterestPeriod, &b.ReferenceRateMargin, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBondNotFound
		}
		return nil, err
	}
	return &b, nil
}

func GetBondByID(db DBTX, id int64) (*Bond, error) {
	return scanBond(db.QueryRow(`SELECT `+bondColumns+` FROM bonds WHERE id = ?`, id))
}

func GetBondBySeries(db DBTX, series string) (*Bond, error) {
	return scanBond(db.QueryRow(`SELECT `+bondColumns+` FROM bonds WHERE series = ?`, series))
}

func ListBonds(db DBTX) ([]Bond, error) {
	rows, err := db.Query(`SELECT ` + bondColumns + ` FROM bonds ORDER BY series ASC`)
	if err != nil {
		return nil, fmt.Errorf("error querying bonds: %w", err)
	}
	defer rows.Close()

	var bonds []Bond
	for rows.Next() {
		b, err := scanBond(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning bond row: %w", err)
		}
		bonds = append(bonds, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over bond rows: %w", err)
	}
	return bonds, nil
}
