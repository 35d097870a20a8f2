package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LibraryManager is the façade the CLI talks to. It owns the store and the
// enrichment client and gates administrator-only operations. Every gated
// call takes the acting member explicitly; there is no ambient "current
// user" state.
type LibraryManager struct {
	db       *Database
	enricher *Enricher
	log      zerolog.Logger
}

// NewLibraryManager opens (or creates) the SQLite database named by cfg and
// wires the enrichment client.
func NewLibraryManager(cfg *Config, logger zerolog.Logger) (*LibraryManager, error) {
	db, err := NewDatabase(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	db.SetLoanPeriod(cfg.LoanPeriod)
	return &LibraryManager{
		db:       db,
		enricher: NewEnricher(cfg.GoogleBooksURL),
		log:      logger,
	}, nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

func (lm *LibraryManager) requireAdmin(actorID int64) error {
	actor, err := lm.db.GetMember(actorID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return fmt.Errorf("member %d: %w", actorID, ErrNotAuthorized)
	}
	return nil
}

// ------------------ Catalog ------------------

// ObserveBook merges an externally-observed title into the catalog.
func (lm *LibraryManager) ObserveBook(b *Book) error { return lm.db.ObserveBook(b) }

func (lm *LibraryManager) GetBook(isbn string) (*Book, error) { return lm.db.GetBook(isbn) }
func (lm *LibraryManager) GetAllBooks() ([]*Book, error)      { return lm.db.GetAllBooks() }

// GetAvailability reports how many copies of a title are on the shelf now.
func (lm *LibraryManager) GetAvailability(isbn string) (int, error) {
	return lm.db.GetAvailability(isbn)
}

// SetCopiesTotal changes the owned-copy count. Administrator-only.
func (lm *LibraryManager) SetCopiesTotal(actorID int64, isbn string, copies int) error {
	if err := lm.requireAdmin(actorID); err != nil {
		return err
	}
	if err := lm.db.SetCopiesTotal(isbn, copies); err != nil {
		return err
	}
	lm.log.Info().Str("isbn", isbn).Int("copies", copies).Int64("actor", actorID).Msg("copies updated")
	return nil
}

// Search answers from the local catalog and the enrichment service. Remote
// hits are folded into the catalog before being returned; a remote failure
// degrades to local-only results, never an error.
func (lm *LibraryManager) Search(ctx context.Context, query string) ([]*Book, error) {
	local, err := lm.db.SearchBooks(query)
	if err != nil {
		return nil, err
	}

	remote, err := lm.enricher.Search(ctx, query)
	if err != nil {
		lm.log.Warn().Err(err).Str("query", query).Msg("enrichment search failed, serving local results")
		return local, nil
	}

	seen := make(map[string]bool, len(local))
	for _, b := range local {
		seen[b.ISBN] = true
	}
	results := local
	for _, b := range remote {
		if err := lm.db.ObserveBook(b); err != nil {
			return nil, err
		}
		if !seen[b.ISBN] && b.ISBN != NoISBN {
			seen[b.ISBN] = true
			results = append(results, b)
		}
	}
	return results, nil
}

// Lookup resolves one ISBN, preferring fresh enrichment data and falling
// back to whatever the catalog already knows.
func (lm *LibraryManager) Lookup(ctx context.Context, isbn string) (*Book, error) {
	remote, err := lm.enricher.Lookup(ctx, isbn)
	if err != nil {
		lm.log.Warn().Err(err).Str("isbn", isbn).Msg("enrichment lookup failed, trying local catalog")
	} else if remote != nil {
		if err := lm.db.ObserveBook(remote); err != nil {
			return nil, err
		}
	}
	return lm.db.GetBook(isbn)
}

// ------------------ Circulation ------------------

// Checkout loans one copy of isbn to the member. Unknown titles are resolved
// through the enrichment client first, so a checkout can introduce a title
// to the catalog the same way a search does.
func (lm *LibraryManager) Checkout(ctx context.Context, memberID int64, isbn string) (*Checkout, error) {
	if _, err := lm.db.GetBook(isbn); errors.Is(err, ErrNotFound) {
		remote, lookupErr := lm.enricher.Lookup(ctx, isbn)
		if lookupErr != nil {
			lm.log.Warn().Err(lookupErr).Str("isbn", isbn).Msg("enrichment lookup failed during checkout")
		} else if remote != nil {
			if err := lm.db.ObserveBook(remote); err != nil {
				return nil, err
			}
		}
	} else if err != nil {
		return nil, err
	}

	c, err := lm.db.CheckoutBook(memberID, isbn)
	if err != nil {
		return nil, err
	}
	lm.log.Info().Str("isbn", isbn).Int64("member", memberID).Time("due", c.DueDate).Msg("checked out")
	return c, nil
}

// Return marks the member's active loan as returned.
func (lm *LibraryManager) Return(memberID int64, isbn string) error {
	if err := lm.db.ReturnBook(memberID, isbn); err != nil {
		return err
	}
	lm.log.Info().Str("isbn", isbn).Int64("member", memberID).Msg("returned")
	return nil
}

// RemoveCheckout hard-deletes a ledger row. Administrator-only; removing a
// row also removes it from the history the recommendation engine sees.
func (lm *LibraryManager) RemoveCheckout(actorID, checkoutID int64) error {
	if err := lm.requireAdmin(actorID); err != nil {
		return err
	}
	if err := lm.db.DeleteCheckout(checkoutID); err != nil {
		return err
	}
	lm.log.Info().Int64("checkout", checkoutID).Int64("actor", actorID).Msg("checkout removed")
	return nil
}

// MemberCheckouts returns the member's full loan history.
func (lm *LibraryManager) MemberCheckouts(memberID int64) ([]*Checkout, error) {
	return lm.db.MemberCheckouts(memberID)
}

// ActiveCheckouts lists all outstanding loans. Administrator-only.
func (lm *LibraryManager) ActiveCheckouts(actorID int64) ([]*Checkout, error) {
	if err := lm.requireAdmin(actorID); err != nil {
		return nil, err
	}
	return lm.db.ActiveCheckouts()
}

// ------------------ Recommendations ------------------

// Recommend produces up to ten titles the member has not borrowed, or the
// global popularity list when the member has no usable history.
func (lm *LibraryManager) Recommend(memberID int64) (*Recommendations, error) {
	recs, err := lm.db.Recommend(memberID)
	if err != nil {
		return nil, err
	}
	lm.log.Debug().Int64("member", memberID).Str("mode", string(recs.Mode)).Int("count", len(recs.Books)).Msg("recommendations computed")
	return recs, nil
}

// ------------------ Members ------------------

// AddMember registers a member with a bcrypt-hashed password. The very first
// member bootstraps the system and is always an admin; after that, only
// admins may create accounts.
func (lm *LibraryManager) AddMember(actorID int64, name, role, password string) (int64, error) {
	count, err := lm.db.CountMembers()
	if err != nil {
		return 0, err
	}
	if count == 0 {
		role = RoleAdmin
	} else if err := lm.requireAdmin(actorID); err != nil {
		return 0, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return 0, err
	}
	id, err := lm.db.AddMember(name, role, hash)
	if err != nil {
		return 0, err
	}
	lm.log.Info().Int64("member", id).Str("role", role).Msg("member added")
	return id, nil
}

func (lm *LibraryManager) GetMember(id int64) (*Member, error) { return lm.db.GetMember(id) }
func (lm *LibraryManager) GetAllMembers() ([]*Member, error)   { return lm.db.GetAllMembers() }

// AuthenticateMember verifies a member's password.
func (lm *LibraryManager) AuthenticateMember(id int64, password string) error {
	return lm.db.AuthenticateMember(id, password)
}

// ResetMemberPassword sets a new password directly. Administrator-only; the
// self-service path goes through reset tokens instead.
func (lm *LibraryManager) ResetMemberPassword(actorID, memberID int64, newPassword string) error {
	if err := lm.requireAdmin(actorID); err != nil {
		return err
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	return lm.db.UpdateMemberPassword(memberID, hash)
}

// RequestPasswordReset issues a single-use reset token for the member.
func (lm *LibraryManager) RequestPasswordReset(memberID int64) (string, error) {
	return lm.db.CreateResetToken(memberID)
}

// RedeemPasswordReset consumes a reset token and sets the new password.
func (lm *LibraryManager) RedeemPasswordReset(token, newPassword string) error {
	return lm.db.RedeemResetToken(token, newPassword)
}

// ------------------ Reading sessions ------------------

func (lm *LibraryManager) StartReading(memberID int64, isbn string) (*ReadingSession, error) {
	return lm.db.StartReading(memberID, isbn)
}

func (lm *LibraryManager) PauseReading(sessionID int64) error { return lm.db.PauseReading(sessionID) }

func (lm *LibraryManager) ResumeReading(sessionID int64) error {
	return lm.db.ResumeReading(sessionID)
}

func (lm *LibraryManager) MemberReadingSessions(memberID int64) ([]*ReadingSession, error) {
	return lm.db.MemberReadingSessions(memberID)
}

// ------------------ Utilities ------------------

// PrettyBook formats a catalog entry for list output.
func PrettyBook(b *Book, available int) string {
	return fmt.Sprintf("%-15s %-35s %-25s %d/%d", b.ISBN, truncate(b.Title, 35), truncate(b.Author, 25), available, b.CopiesTotal)
}

// PrettyCheckout formats a ledger row for list output.
func PrettyCheckout(c *Checkout) string {
	status := "due " + c.DueDate.Format(time.DateOnly)
	if c.Returned {
		status = "returned " + c.ReturnDate.Format(time.DateOnly)
	}
	return fmt.Sprintf("%-5d %-15s %-35s %s", c.ID, c.ISBN, truncate(c.Title, 35), status)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
