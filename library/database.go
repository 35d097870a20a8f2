package library

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultLoanPeriod is how long a checkout lasts. The due date is computed
// once at checkout time and never recomputed afterwards.
const DefaultLoanPeriod = 7 * 24 * time.Hour

// Database provides high-level helpers around a SQLite connection.
type Database struct {
	db         *sql.DB
	loanPeriod time.Duration

	observeBookStmt *sql.Stmt
	addMemberStmt   *sql.Stmt
}

// NewDatabase opens (or creates) the SQLite database at dbPath, applies schema
// migrations, and prepares common statements.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// Enable busy_timeout and foreign keys.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	database := &Database{db: db, loanPeriod: DefaultLoanPeriod}
	if err := database.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return database, nil
}

// SetLoanPeriod overrides the default checkout duration. Only affects
// checkouts created after the call.
func (d *Database) SetLoanPeriod(p time.Duration) {
	if p > 0 {
		d.loanPeriod = p
	}
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	if d.observeBookStmt != nil {
		d.observeBookStmt.Close()
	}
	if d.addMemberStmt != nil {
		d.addMemberStmt.Close()
	}
	return d.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS members (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'student',
            password_hash TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            isbn TEXT PRIMARY KEY,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            cover_url TEXT NOT NULL DEFAULT '',
            description TEXT NOT NULL DEFAULT '',
            categories TEXT NOT NULL DEFAULT '',
            copies_total INTEGER NOT NULL DEFAULT 1 CHECK(copies_total >= 1),
            updated_at DATETIME NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS checkouts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            member_id INTEGER NOT NULL REFERENCES members(id),
            isbn TEXT NOT NULL,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            cover_url TEXT NOT NULL DEFAULT '',
            checkout_date DATETIME NOT NULL,
            due_date DATETIME NOT NULL,
            returned BOOLEAN NOT NULL DEFAULT 0,
            return_date DATETIME
        );`,
		`CREATE INDEX IF NOT EXISTS idx_checkouts_isbn ON checkouts(isbn);`,
		`CREATE INDEX IF NOT EXISTS idx_checkouts_member ON checkouts(member_id);`,
		`CREATE TABLE IF NOT EXISTS reading_sessions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            member_id INTEGER NOT NULL REFERENCES members(id),
            isbn TEXT NOT NULL,
            started_at DATETIME NOT NULL,
            elapsed_seconds INTEGER NOT NULL DEFAULT 0,
            running BOOLEAN NOT NULL DEFAULT 1
        );`,
		`CREATE TABLE IF NOT EXISTS reset_tokens (
            token TEXT PRIMARY KEY,
            member_id INTEGER NOT NULL REFERENCES members(id),
            expires_at DATETIME NOT NULL
        );`,
		// FTS5 virtual table over catalog metadata
		`CREATE VIRTUAL TABLE IF NOT EXISTS books_fts USING fts5(
            title, author, description, content='books', content_rowid='rowid'
        );`,
		// Triggers to keep FTS in sync
		`CREATE TRIGGER IF NOT EXISTS trg_books_ai AFTER INSERT ON books BEGIN
            INSERT INTO books_fts(rowid,title,author,description) VALUES(new.rowid,new.title,new.author,new.description);
        END;`,
		`CREATE TRIGGER IF NOT EXISTS trg_books_ad AFTER DELETE ON books BEGIN
            INSERT INTO books_fts(books_fts, rowid, title, author, description) VALUES('delete',old.rowid,old.title,old.author,old.description);
        END;`,
		`CREATE TRIGGER IF NOT EXISTS trg_books_au AFTER UPDATE ON books BEGIN
            INSERT INTO books_fts(books_fts, rowid, title, author, description) VALUES('delete',old.rowid,old.title,old.author,old.description);
            INSERT INTO books_fts(rowid,title,author,description) VALUES(new.rowid,new.title,new.author,new.description);
        END;`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	// Catalog upsert: title/author/cover always take the latest observation;
	// description/categories keep the stored value when the incoming one is
	// empty; copies_total is set on first insert only.
	if d.observeBookStmt, err = d.db.Prepare(`
        INSERT INTO books(isbn,title,author,cover_url,description,categories,copies_total,updated_at)
        VALUES(?,?,?,?,?,?,?,?)
        ON CONFLICT(isbn) DO UPDATE SET
            title=excluded.title,
            author=excluded.author,
            cover_url=excluded.cover_url,
            description=CASE WHEN excluded.description <> '' THEN excluded.description ELSE books.description END,
            categories=CASE WHEN excluded.categories <> '' THEN excluded.categories ELSE books.categories END,
            updated_at=excluded.updated_at`); err != nil {
		return err
	}
	if d.addMemberStmt, err = d.db.Prepare(`INSERT INTO members(name,role,password_hash) VALUES(?,?,?)`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// ObserveBook idempotently merges an externally-observed title into the
// catalog. Records without a usable ISBN are silently ignored, not an error:
// opportunistic population must never fail the operation that triggered it.
func (d *Database) ObserveBook(b *Book) error {
	return d.observeBookAt(b, time.Now().UTC())
}

func (d *Database) observeBookAt(b *Book, now time.Time) error {
	isbn := strings.TrimSpace(b.ISBN)
	if isbn == "" || isbn == NoISBN {
		return nil
	}
	copies := b.CopiesTotal
	if copies < 1 {
		copies = 1
	}
	_, err := d.observeBookStmt.Exec(
		isbn, b.Title, b.Author, b.CoverURL, b.Description,
		joinCategories(b.Categories), copies, now,
	)
	if err != nil {
		return fmt.Errorf("observe book %s: %w", isbn, err)
	}
	return nil
}

// SetCopiesTotal changes how many physical copies the library owns.
func (d *Database) SetCopiesTotal(isbn string, copies int) error {
	if copies < 1 {
		return fmt.Errorf("copies must be at least 1, got %d", copies)
	}
	res, err := d.db.Exec(`UPDATE books SET copies_total=?, updated_at=? WHERE isbn=?`, copies, time.Now().UTC(), isbn)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("book %s: %w", isbn, ErrNotFound)
	}
	return nil
}

const bookColumns = `isbn,title,author,cover_url,description,categories,copies_total,updated_at`

func scanBook(row interface{ Scan(...any) error }) (*Book, error) {
	var b Book
	var categories string
	if err := row.Scan(&b.ISBN, &b.Title, &b.Author, &b.CoverURL, &b.Description,
		&categories, &b.CopiesTotal, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Categories = splitCategories(categories)
	return &b, nil
}

// GetBook fetches a single catalog entry by ISBN.
func (d *Database) GetBook(isbn string) (*Book, error) {
	b, err := scanBook(d.db.QueryRow(`SELECT `+bookColumns+` FROM books WHERE isbn=?`, isbn))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book %s: %w", isbn, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetAllBooks returns the whole catalog ordered by title.
func (d *Database) GetAllBooks() ([]*Book, error) {
	rows, err := d.db.Query(`SELECT ` + bookColumns + ` FROM books ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// SearchBooks leverages FTS5 over title, author and description.
func (d *Database) SearchBooks(q string) ([]*Book, error) {
	if strings.TrimSpace(q) == "" {
		return []*Book{}, nil
	}
	rows, err := d.db.Query(`
        SELECT b.isbn, b.title, b.author, b.cover_url, b.description, b.categories, b.copies_total, b.updated_at
        FROM books_fts fts
        JOIN books b ON b.rowid = fts.rowid
        WHERE books_fts MATCH ?
        ORDER BY rank;`, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, b)
	}
	return results, rows.Err()
}

func joinCategories(cats []string) string {
	trimmed := make([]string, 0, len(cats))
	for _, c := range cats {
		if c = strings.TrimSpace(c); c != "" {
			trimmed = append(trimmed, c)
		}
	}
	return strings.Join(trimmed, "|")
}

func splitCategories(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "|")
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

// AddMember inserts a member with an already-hashed password.
func (d *Database) AddMember(name, role, passwordHash string) (int64, error) {
	if role != RoleStudent && role != RoleAdmin {
		return 0, fmt.Errorf("unknown role %q", role)
	}
	res, err := d.addMemberStmt.Exec(name, role, passwordHash)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetMember fetches a single member.
func (d *Database) GetMember(id int64) (*Member, error) {
	var m Member
	err := d.db.QueryRow(`SELECT id,name,role,password_hash FROM members WHERE id=?`, id).
		Scan(&m.ID, &m.Name, &m.Role, &m.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("member %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetAllMembers returns all members.
func (d *Database) GetAllMembers() ([]*Member, error) {
	rows, err := d.db.Query(`SELECT id,name,role,password_hash FROM members ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []*Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Role, &m.PasswordHash); err != nil {
			return nil, err
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}

// CountMembers reports how many members are registered.
func (d *Database) CountMembers() (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM members`).Scan(&n)
	return n, err
}

// UpdateMemberPassword replaces a member's password hash.
func (d *Database) UpdateMemberPassword(id int64, passwordHash string) error {
	res, err := d.db.Exec(`UPDATE members SET password_hash=? WHERE id=?`, passwordHash, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("member %d: %w", id, ErrNotFound)
	}
	return nil
}
