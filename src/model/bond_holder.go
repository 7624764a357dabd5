package model

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// BondHolder is a user's position in a bond.
type BondHolder struct {
	ID           int64      `json:"id"`
	BondID       int64      `json:"bond_id"`
	UserID       int64      `json:"user_id"`
	Quantity     int64      `json:"quantity"`
	PurchaseDate civil.Date `json:"purchase_date"`
	LastUpdate   time.Time  `json:"last_update"`
}

var ErrBondHolderNotFound = errors.New("bond holder not found")

func (h *BondHolder) CreateBondHolder(db DBTX) error {
	h.LastUpdate = time.Now()
	res, err := db.Exec(`
	INSERT INTO bond_holders (bond_id, user_id, quantity, purchase_date, last_update)
	VALUES (?, ?, ?, ?, ?)`,
		h.BondID, h.UserID, h.Quantity, h.PurchaseDate.String(), h.LastUpdate,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	h.ID = id
	return nil
}

const bondHolderColumns = `id, bond_id, user_id, quantity, purchase_date, last_update`

func scanBondHolder(row interface{ Scan(dest ...any) error }) (*BondHolder, error) {
	var h BondHolder
	var purchaseDate string
	if err := row.Scan(&h.ID, &h.BondID, &h.UserID, &h.Quantity, &purchaseDate, &h.LastUpdate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBondHolderNotFound
		}
		return nil, err
	}
	d, err := parseDate(purchaseDate)
	if err != nil {
		return nil, err
	}
	h.PurchaseDate = d
	return &h, nil
}

func GetBondHolderByID(db DBTX, id int64) (*BondHolder, error) {
	return scanBondHolder(db.QueryRow(`SELECT `+bondHolderColumns+` FROM bond_holders WHERE id = ?`, id))
}

// ListBondHoldersByUser returns the user's positions ordered by purchase date.
func ListBondHoldersByUser(db DBTX, userID int64) ([]BondHolder, error) {
	rows, err := db.Query(`SELECT `+bondHolderColumns+` FROM bond_holders WHERE user_id = ? ORDER BY purchase_date ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying bond holders for userID %d: %w", userID, err)
	}
	defer rows.Close()

	var holders []BondHolder
	for rows.Next() {
		h, err := scanBondHolder(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning bond holder row for userID %d: %w", userID, err)
		}
		holders = append(holders, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over bond holder rows for userID %d: %w", userID, err)
	}
	return holders, nil
}

func CountBondHoldersByUser(db DBTX, userID int64) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM bond_holders WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}

func (h *BondHolder) UpdateQuantity(db DBTX, quantity int64) error {
	now := time.Now()
	res, err := db.Exec(`UPDATE bond_holders SET quantity = ?, last_update = ? WHERE id = ?`, quantity, now, h.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBondHolderNotFound
	}
	h.Quantity = quantity
	h.LastUpdate = now
	return nil
}

func DeleteBondHolder(db DBTX, id int64) error {
	res, err := db.Exec(`DELETE FROM bond_holders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBondHolderNotFound
	}
	return nil
}
