package library

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// resetTokenTTL bounds how long a password-reset token stays usable.
const resetTokenTTL = time.Hour

func hashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// AuthenticateMember verifies a member's password.
func (d *Database) AuthenticateMember(id int64, password string) error {
	m, err := d.GetMember(id)
	if err != nil {
		return err
	}
	if m.PasswordHash == "" {
		return fmt.Errorf("member %d has no password set", id)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
		return fmt.Errorf("invalid password for member %d", id)
	}
	return nil
}

// CreateResetToken issues a one-hour password-reset token for the member.
func (d *Database) CreateResetToken(memberID int64) (string, error) {
	return d.createResetTokenAt(memberID, time.Now().UTC())
}

func (d *Database) createResetTokenAt(memberID int64, now time.Time) (string, error) {
	if _, err := d.GetMember(memberID); err != nil {
		return "", err
	}
	token := uuid.NewString()
	_, err := d.db.Exec(`INSERT INTO reset_tokens(token,member_id,expires_at) VALUES(?,?,?)`,
		token, memberID, now.Add(resetTokenTTL))
	if err != nil {
		return "", err
	}
	return token, nil
}

// RedeemResetToken sets a new password for the member the token belongs to.
// Tokens are single-use; expired or unknown tokens fail with ErrNotFound.
func (d *Database) RedeemResetToken(token, newPassword string) error {
	return d.redeemResetTokenAt(token, newPassword, time.Now().UTC())
}

func (d *Database) redeemResetTokenAt(token, newPassword string, now time.Time) error {
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var memberID int64
	var expiresAt time.Time
	err = tx.QueryRow(`SELECT member_id, expires_at FROM reset_tokens WHERE token=?`, token).
		Scan(&memberID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reset token: %w", ErrNotFound)
	}
	if err != nil {
		return err
	}
	// Spend the token even when expired; a stale token is useless either way.
	if _, err := tx.Exec(`DELETE FROM reset_tokens WHERE token=?`, token); err != nil {
		return err
	}
	if now.After(expiresAt) {
		if err := tx.Commit(); err != nil {
			return err
		}
		return fmt.Errorf("reset token expired: %w", ErrNotFound)
	}
	if _, err := tx.Exec(`UPDATE members SET password_hash=? WHERE id=?`, hash, memberID); err != nil {
		return err
	}
	return tx.Commit()
}
