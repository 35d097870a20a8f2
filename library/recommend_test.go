package library

import (
	"fmt"
	"testing"
	"time"
)

func TestScoreWeights(t *testing.T) {
	tests := []struct {
		name string
		sig  Signals
		want int
	}{
		{"nothing", Signals{}, 0},
		{"author match", Signals{AuthorMatch: true}, 30},
		{"topic overlap", Signals{TopicOverlap: true}, 15},
		{"author wins over topic, never both", Signals{AuthorMatch: true, TopicOverlap: true}, 30},
		{"available", Signals{Available: true}, 10},
		{"popularity added unconditionally", Signals{Popularity: 7}, 7},
		{"everything", Signals{AuthorMatch: true, TopicOverlap: true, Available: true, Popularity: 4}, 44},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sig.Score(); got != tt.want {
				t.Errorf("Score(%+v) = %d, want %d", tt.sig, got, tt.want)
			}
		})
	}
}

// pumpCheckouts runs n checkout/return cycles so a title accumulates global
// popularity without leaving anything outstanding.
func pumpCheckouts(t *testing.T, db *Database, memberID int64, isbn string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := db.CheckoutBook(memberID, isbn); err != nil {
			t.Fatalf("pump checkout %s: %v", isbn, err)
		}
		if err := db.ReturnBook(memberID, isbn); err != nil {
			t.Fatalf("pump return %s: %v", isbn, err)
		}
	}
}

func TestRecommendExcludesBorrowed(t *testing.T) {
	db := tempDB(t)
	seedBook(t, db, "300", "Book A", "Author A", 1)
	seedBook(t, db, "301", "Book B", "Author B", 1)
	seedBook(t, db, "302", "Book C", "Author C", 1)
	memberID := seedMember(t, db, "Alice")

	// One returned loan and one still active: both must be excluded.
	if _, err := db.CheckoutBook(memberID, "300"); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if err := db.ReturnBook(memberID, "300"); err != nil {
		t.Fatalf("return: %v", err)
	}
	if _, err := db.CheckoutBook(memberID, "301"); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	recs, err := db.Recommend(memberID)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if recs.Mode != ModePersonalized {
		t.Fatalf("want personalized mode, got %s", recs.Mode)
	}
	if len(recs.Books) != 1 || recs.Books[0].ISBN != "302" {
		t.Fatalf("want only 302, got %+v", recs.Books)
	}
}

// A returned loan by "Jane Doe" should rank her other title above an
// otherwise-equal stranger, thanks to the author-match bonus.
func TestRecommendAuthorMatch(t *testing.T) {
	db := tempDB(t)
	seedBook(t, db, "310", "Title X", "Jane Doe", 1)
	seedBook(t, db, "311", "Title Y", "jane doe", 1) // case-insensitive match
	seedBook(t, db, "312", "Title Z", "Someone Else", 1)
	memberID := seedMember(t, db, "U")

	if _, err := db.CheckoutBook(memberID, "310"); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if err := db.ReturnBook(memberID, "310"); err != nil {
		t.Fatalf("return: %v", err)
	}

	recs, err := db.Recommend(memberID)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if recs.Mode != ModePersonalized {
		t.Fatalf("want personalized mode, got %s", recs.Mode)
	}
	if len(recs.Books) != 2 {
		t.Fatalf("want 2 recommendations, got %d", len(recs.Books))
	}
	if recs.Books[0].ISBN != "311" || recs.Books[1].ISBN != "312" {
		t.Fatalf("want [Y, Z], got [%s, %s]", recs.Books[0].ISBN, recs.Books[1].ISBN)
	}
}

func TestRecommendTopicOverlap(t *testing.T) {
	db := tempDB(t)
	seedBook(t, db, "320", "Dragons", "A. Writer", 1)
	seedBook(t, db, "321", "A Field Guide to Dragons", "B. Writer", 1)
	seedBook(t, db, "322", "Cooking for Beginners", "C. Writer", 1)
	// Same title as the loan, different edition: exact matches never count
	// as topical overlap.
	seedBook(t, db, "323", "Dragons", "D. Writer", 1)
	memberID := seedMember(t, db, "U")

	if _, err := db.CheckoutBook(memberID, "320"); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if err := db.ReturnBook(memberID, "320"); err != nil {
		t.Fatalf("return: %v", err)
	}

	recs, err := db.Recommend(memberID)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if recs.Books[0].ISBN != "321" {
		t.Fatalf("want the overlapping title first, got %s", recs.Books[0].ISBN)
	}
}

func TestRecommendMatchesDescriptionText(t *testing.T) {
	db := tempDB(t)
	seedBook(t, db, "330", "Owls", "N. Aturalist", 1)
	if err := db.ObserveBook(&Book{
		ISBN: "331", Title: "Night Birds", Author: "Someone",
		Description: "A study of owls and other nocturnal hunters.",
	}); err != nil {
		t.Fatalf("observe: %v", err)
	}
	seedBook(t, db, "332", "Deep Sea Fish", "M. Arine", 1)
	memberID := seedMember(t, db, "U")

	if _, err := db.CheckoutBook(memberID, "330"); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	recs, err := db.Recommend(memberID)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if recs.Books[0].ISBN != "331" {
		t.Fatalf("description overlap should rank 331 first, got %s", recs.Books[0].ISBN)
	}
}

// Zero loan history — including a member ID the store has never seen — is
// the cold-start case: popular mode, ordered by global checkout count.
func TestRecommendColdStart(t *testing.T) {
	db := tempDB(t)
	seedBook(t, db, "340", "P", "Author P", 1)
	seedBook(t, db, "341", "Q", "Author Q", 1)
	seedBook(t, db, "342", "R", "Author R", 1)
	reader := seedMember(t, db, "Busy Reader")
	newcomer := seedMember(t, db, "Newcomer")

	pumpCheckouts(t, db, reader, "340", 5)
	pumpCheckouts(t, db, reader, "341", 2)

	for _, memberID := range []int64{newcomer, 99999} {
		recs, err := db.Recommend(memberID)
		if err != nil {
			t.Fatalf("recommend for %d: %v", memberID, err)
		}
		if recs.Mode != ModePopular {
			t.Fatalf("want popular mode for %d, got %s", memberID, recs.Mode)
		}
		if len(recs.Books) != 3 {
			t.Fatalf("want 3 books, got %d", len(recs.Books))
		}
		got := []string{recs.Books[0].ISBN, recs.Books[1].ISBN, recs.Books[2].ISBN}
		if got[0] != "340" || got[1] != "341" || got[2] != "342" {
			t.Fatalf("want [P, Q, R] = [340, 341, 342], got %v", got)
		}
	}
}

func TestRecommendAllBorrowedFallsBack(t *testing.T) {
	db := tempDB(t)
	seedBook(t, db, "350", "One", "A", 1)
	seedBook(t, db, "351", "Two", "B", 1)
	memberID := seedMember(t, db, "Completist")

	pumpCheckouts(t, db, memberID, "350", 1)
	pumpCheckouts(t, db, memberID, "351", 1)

	recs, err := db.Recommend(memberID)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if recs.Mode != ModePopular {
		t.Fatalf("want popular fallback, got %s", recs.Mode)
	}
	if len(recs.Books) != 2 {
		t.Fatalf("want the whole catalog in the popular list, got %d", len(recs.Books))
	}
}

func TestRecommendTruncatesToTen(t *testing.T) {
	db := tempDB(t)
	for i := 0; i < 12; i++ {
		seedBook(t, db, fmt.Sprintf("36%02d", i), fmt.Sprintf("Candidate %d", i), fmt.Sprintf("Author %d", i), 1)
	}
	seedBook(t, db, "3699", "The One They Read", "Historic Author", 1)
	memberID := seedMember(t, db, "Alice")
	pumpCheckouts(t, db, memberID, "3699", 1)

	recs, err := db.Recommend(memberID)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if recs.Mode != ModePersonalized {
		t.Fatalf("want personalized mode, got %s", recs.Mode)
	}
	if len(recs.Books) != maxRecommendations {
		t.Fatalf("want %d books, got %d", maxRecommendations, len(recs.Books))
	}
	for _, b := range recs.Books {
		if b.ISBN == "3699" {
			t.Fatalf("borrowed title leaked into recommendations")
		}
	}
}

func TestRecommendTieBreaksOnUpdatedAt(t *testing.T) {
	db := tempDB(t)
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	if err := db.observeBookAt(&Book{ISBN: "370", Title: "Older Entry", Author: "A"}, t0); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if err := db.observeBookAt(&Book{ISBN: "371", Title: "Newer Entry", Author: "B"}, t0.Add(time.Hour)); err != nil {
		t.Fatalf("observe: %v", err)
	}
	seedBook(t, db, "372", "Read Already", "C", 1)
	memberID := seedMember(t, db, "Alice")
	pumpCheckouts(t, db, memberID, "372", 1)

	recs, err := db.Recommend(memberID)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	// Both candidates score the same (+10 available); the fresher catalog
	// entry wins the tie.
	if recs.Books[0].ISBN != "371" || recs.Books[1].ISBN != "370" {
		t.Fatalf("want [371, 370], got [%s, %s]", recs.Books[0].ISBN, recs.Books[1].ISBN)
	}
}

func TestRecommendScoresDescending(t *testing.T) {
	db := tempDB(t)
	seedBook(t, db, "380", "Low", "A", 1)
	seedBook(t, db, "381", "Mid", "B", 1)
	seedBook(t, db, "382", "High", "C", 1)
	seedBook(t, db, "383", "History", "D", 1)
	reader := seedMember(t, db, "Busy Reader")
	memberID := seedMember(t, db, "Alice")

	pumpCheckouts(t, db, reader, "382", 3)
	pumpCheckouts(t, db, reader, "381", 1)
	pumpCheckouts(t, db, memberID, "383", 1)

	recs, err := db.Recommend(memberID)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	want := []string{"382", "381", "380"}
	if len(recs.Books) != len(want) {
		t.Fatalf("want %d books, got %d", len(want), len(recs.Books))
	}
	for i, isbn := range want {
		if recs.Books[i].ISBN != isbn {
			t.Fatalf("position %d: want %s, got %s", i, isbn, recs.Books[i].ISBN)
		}
	}
}
