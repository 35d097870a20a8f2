package library

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Reading sessions are a per-member stopwatch: elapsed time accumulates in
// whole seconds across pauses. They feed nothing in the availability or
// recommendation core.

// StartReading opens a running session for the member and title. A member
// has at most one open session per title.
func (d *Database) StartReading(memberID int64, isbn string) (*ReadingSession, error) {
	return d.startReadingAt(memberID, isbn, time.Now().UTC())
}

func (d *Database) startReadingAt(memberID int64, isbn string, now time.Time) (*ReadingSession, error) {
	if _, err := d.GetMember(memberID); err != nil {
		return nil, err
	}
	if _, err := d.GetBook(isbn); err != nil {
		return nil, err
	}

	var exists bool
	if err := d.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM reading_sessions WHERE member_id=? AND isbn=? AND running=1)`,
		memberID, isbn).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("member %d is already reading %s", memberID, isbn)
	}

	res, err := d.db.Exec(`INSERT INTO reading_sessions(member_id,isbn,started_at) VALUES(?,?,?)`,
		memberID, isbn, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &ReadingSession{ID: id, MemberID: memberID, ISBN: isbn, StartedAt: now, Running: true}, nil
}

// PauseReading stops the clock on a running session, folding the running
// stretch into the accumulated total.
func (d *Database) PauseReading(sessionID int64) error {
	return d.pauseReadingAt(sessionID, time.Now().UTC())
}

func (d *Database) pauseReadingAt(sessionID int64, now time.Time) error {
	s, err := d.GetReadingSession(sessionID)
	if err != nil {
		return err
	}
	if !s.Running {
		return fmt.Errorf("reading session %d is not running", sessionID)
	}
	elapsed := int64(s.Total(now) / time.Second)
	_, err = d.db.Exec(`UPDATE reading_sessions SET elapsed_seconds=?, running=0 WHERE id=?`, elapsed, sessionID)
	return err
}

// ResumeReading restarts the clock on a paused session.
func (d *Database) ResumeReading(sessionID int64) error {
	return d.resumeReadingAt(sessionID, time.Now().UTC())
}

func (d *Database) resumeReadingAt(sessionID int64, now time.Time) error {
	s, err := d.GetReadingSession(sessionID)
	if err != nil {
		return err
	}
	if s.Running {
		return fmt.Errorf("reading session %d is already running", sessionID)
	}
	_, err = d.db.Exec(`UPDATE reading_sessions SET started_at=?, running=1 WHERE id=?`, now, sessionID)
	return err
}

func scanReadingSession(row interface{ Scan(...any) error }) (*ReadingSession, error) {
	var s ReadingSession
	var elapsedSeconds int64
	if err := row.Scan(&s.ID, &s.MemberID, &s.ISBN, &s.StartedAt, &elapsedSeconds, &s.Running); err != nil {
		return nil, err
	}
	s.Elapsed = time.Duration(elapsedSeconds) * time.Second
	return &s, nil
}

// GetReadingSession fetches one session.
func (d *Database) GetReadingSession(id int64) (*ReadingSession, error) {
	s, err := scanReadingSession(d.db.QueryRow(
		`SELECT id,member_id,isbn,started_at,elapsed_seconds,running FROM reading_sessions WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reading session %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// MemberReadingSessions lists a member's sessions, newest first.
func (d *Database) MemberReadingSessions(memberID int64) ([]*ReadingSession, error) {
	rows, err := d.db.Query(
		`SELECT id,member_id,isbn,started_at,elapsed_seconds,running FROM reading_sessions WHERE member_id=? ORDER BY started_at DESC`,
		memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*ReadingSession
	for rows.Next() {
		s, err := scanReadingSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
