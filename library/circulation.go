package library

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CheckoutBook records a loan of one copy of isbn to memberID. The whole
// check runs in one transaction so two checkouts of the last copy cannot
// both succeed. Title, author and cover are snapshotted from the catalog so
// the ledger survives later catalog edits.
func (d *Database) CheckoutBook(memberID int64, isbn string) (*Checkout, error) {
	return d.checkoutBookAt(memberID, isbn, time.Now().UTC())
}

func (d *Database) checkoutBookAt(memberID int64, isbn string, now time.Time) (*Checkout, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		title, author, cover string
		copiesTotal          int
	)
	err = tx.QueryRow(`SELECT title,author,cover_url,copies_total FROM books WHERE isbn=?`, isbn).
		Scan(&title, &author, &cover, &copiesTotal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book %s: %w", isbn, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM members WHERE id=?)`, memberID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("member %d: %w", memberID, ErrNotFound)
	}

	// One active loan per member per title.
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM checkouts WHERE member_id=? AND isbn=? AND returned=0)`, memberID, isbn).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("member %d already has %s checked out", memberID, isbn)
	}

	var active int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM checkouts WHERE isbn=? AND returned=0`, isbn).Scan(&active); err != nil {
		return nil, err
	}
	if AvailableCopies(copiesTotal, active) == 0 {
		return nil, fmt.Errorf("book %s: %w", isbn, ErrNoCopies)
	}

	due := now.Add(d.loanPeriod)
	res, err := tx.Exec(`INSERT INTO checkouts(member_id,isbn,title,author,cover_url,checkout_date,due_date) VALUES(?,?,?,?,?,?,?)`,
		memberID, isbn, title, author, cover, now, due)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &Checkout{
		ID:           id,
		MemberID:     memberID,
		ISBN:         isbn,
		Title:        title,
		Author:       author,
		CoverURL:     cover,
		CheckoutDate: now,
		DueDate:      due,
	}, nil
}

// ReturnBook marks the member's active loan of isbn as returned. The row is
// kept: recommendation scoring reads the full history, so returns never
// delete it.
func (d *Database) ReturnBook(memberID int64, isbn string) error {
	return d.returnBookAt(memberID, isbn, time.Now().UTC())
}

func (d *Database) returnBookAt(memberID int64, isbn string, now time.Time) error {
	res, err := d.db.Exec(`UPDATE checkouts SET returned=1, return_date=? WHERE member_id=? AND isbn=? AND returned=0`,
		now, memberID, isbn)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no active loan of %s for member %d: %w", isbn, memberID, ErrNotFound)
	}
	return nil
}

// DeleteCheckout physically removes a ledger row. Administrator-only; the
// role check lives in the manager.
func (d *Database) DeleteCheckout(id int64) error {
	res, err := d.db.Exec(`DELETE FROM checkouts WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("checkout %d: %w", id, ErrNotFound)
	}
	return nil
}

// ActiveLoanCount counts outstanding loans of one title.
func (d *Database) ActiveLoanCount(isbn string) (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM checkouts WHERE isbn=? AND returned=0`, isbn).Scan(&n)
	return n, err
}

// CheckoutCounts returns the all-time checkout count per ISBN across all
// members, returned or not. This is the global popularity signal.
func (d *Database) CheckoutCounts() (map[string]int, error) {
	rows, err := d.db.Query(`SELECT isbn, COUNT(*) FROM checkouts GROUP BY isbn`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var isbn string
		var n int
		if err := rows.Scan(&isbn, &n); err != nil {
			return nil, err
		}
		counts[isbn] = n
	}
	return counts, rows.Err()
}

const checkoutColumns = `id,member_id,isbn,title,author,cover_url,checkout_date,due_date,returned,return_date`

func scanCheckout(row interface{ Scan(...any) error }) (*Checkout, error) {
	var c Checkout
	var returned sql.NullTime
	if err := row.Scan(&c.ID, &c.MemberID, &c.ISBN, &c.Title, &c.Author, &c.CoverURL,
		&c.CheckoutDate, &c.DueDate, &c.Returned, &returned); err != nil {
		return nil, err
	}
	if returned.Valid {
		c.ReturnDate = returned.Time
	}
	return &c, nil
}

// GetCheckout fetches one ledger row by id.
func (d *Database) GetCheckout(id int64) (*Checkout, error) {
	c, err := scanCheckout(d.db.QueryRow(`SELECT `+checkoutColumns+` FROM checkouts WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkout %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// MemberCheckouts returns a member's full loan history, newest first.
// An unknown member yields an empty history, not an error: the cold-start
// case is normal for the recommendation engine.
func (d *Database) MemberCheckouts(memberID int64) ([]*Checkout, error) {
	return d.queryCheckouts(`SELECT `+checkoutColumns+` FROM checkouts WHERE member_id=? ORDER BY checkout_date DESC`, memberID)
}

// ActiveCheckouts returns every outstanding loan, oldest first.
func (d *Database) ActiveCheckouts() ([]*Checkout, error) {
	return d.queryCheckouts(`SELECT ` + checkoutColumns + ` FROM checkouts WHERE returned=0 ORDER BY checkout_date`)
}

func (d *Database) queryCheckouts(query string, args ...any) ([]*Checkout, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checkouts []*Checkout
	for rows.Next() {
		c, err := scanCheckout(rows)
		if err != nil {
			return nil, err
		}
		checkouts = append(checkouts, c)
	}
	return checkouts, rows.Err()
}
