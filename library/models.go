package library

import (
	"errors"
	"time"
)

// Sentinel errors returned by the store and manager. Callers match with
// errors.Is; anything else is an I/O failure from the underlying database.
var (
	ErrNotFound      = errors.New("not found")
	ErrNoCopies      = errors.New("no copies available")
	ErrNotAuthorized = errors.New("not authorized")
)

// NoISBN is the placeholder some metadata sources emit when a volume has no
// usable identifier. ObserveBook silently ignores records carrying it.
const NoISBN = "N/A"

// Book is a catalog entry keyed by ISBN. CopiesTotal is the number of
// physical copies the library owns; how many are on the shelf right now is
// derived from the checkout ledger on every read, never stored.
type Book struct {
	ISBN        string    `json:"isbn"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	CoverURL    string    `json:"cover_url,omitempty"`
	Description string    `json:"description,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	CopiesTotal int       `json:"copies_total"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Checkout is one loan of one title to one member. Title, author and cover
// are snapshotted at checkout time so history survives catalog edits.
// DueDate is fixed at creation and never recomputed.
type Checkout struct {
	ID           int64     `json:"id"`
	MemberID     int64     `json:"member_id"`
	ISBN         string    `json:"isbn"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	CoverURL     string    `json:"cover_url,omitempty"`
	CheckoutDate time.Time `json:"checkout_date"`
	DueDate      time.Time `json:"due_date"`
	Returned     bool      `json:"returned"`
	ReturnDate   time.Time `json:"return_date,omitempty"`
}

// Member roles. Admins manage accounts, copy counts and the checkout ledger.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Member represents a registered library member.
type Member struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"` // Don't serialize password hash
}

// IsAdmin reports whether the member may perform administrative operations.
func (m *Member) IsAdmin() bool { return m.Role == RoleAdmin }

// ReadingSession is a per-member stopwatch for one title. Elapsed accumulates
// across pauses; while Running the live total is Elapsed plus the time since
// StartedAt.
type ReadingSession struct {
	ID        int64         `json:"id"`
	MemberID  int64         `json:"member_id"`
	ISBN      string        `json:"isbn"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Running   bool          `json:"running"`
}

// Total returns the accumulated reading time as of now.
func (s *ReadingSession) Total(now time.Time) time.Duration {
	if s.Running {
		return s.Elapsed + now.Sub(s.StartedAt)
	}
	return s.Elapsed
}
