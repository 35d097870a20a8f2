package library

import (
	"sort"
	"strings"
)

// Scoring weights. Author overlap and topical overlap are mutually
// exclusive, author match winning; availability and popularity always add.
const (
	authorMatchBonus  = 30
	topicOverlapBonus = 15
	availableBonus    = 10

	maxRecommendations = 10
)

// RecommendationMode tells the caller which list it got, so the UI can
// adjust its explanation text.
type RecommendationMode string

const (
	ModePersonalized RecommendationMode = "personalized"
	ModePopular      RecommendationMode = "popular"
)

// Signals are the inputs to the score of one candidate title. Keeping them
// explicit makes the weights testable and tunable independently of the
// store queries that produce them.
type Signals struct {
	AuthorMatch  bool
	TopicOverlap bool
	Available    bool
	Popularity   int
}

// Score combines the signals into a single rank value.
func (s Signals) Score() int {
	score := s.Popularity
	switch {
	case s.AuthorMatch:
		score += authorMatchBonus
	case s.TopicOverlap:
		score += topicOverlapBonus
	}
	if s.Available {
		score += availableBonus
	}
	return score
}

// Recommendations is a ranked list of at most ten titles.
type Recommendations struct {
	Mode  RecommendationMode `json:"mode"`
	Books []*Book            `json:"books"`
}

// Recommend ranks catalog titles the member has never borrowed. Members with
// history get an overlap-scored list; everyone else (including unknown
// member IDs — cold start, not an error) falls back to global popularity.
func (d *Database) Recommend(memberID int64) (*Recommendations, error) {
	books, err := d.GetAllBooks()
	if err != nil {
		return nil, err
	}
	history, err := d.MemberCheckouts(memberID)
	if err != nil {
		return nil, err
	}
	counts, err := d.CheckoutCounts()
	if err != nil {
		return nil, err
	}

	// Zero history is the cold-start case: nothing to score against, so the
	// popularity list answers directly.
	if len(history) == 0 {
		return &Recommendations{Mode: ModePopular, Books: popularBooks(books, counts)}, nil
	}

	borrowed := make(map[string]bool, len(history))
	for _, c := range history {
		borrowed[c.ISBN] = true
	}

	type scored struct {
		book  *Book
		score int
	}
	var candidates []scored
	for _, b := range books {
		if borrowed[b.ISBN] {
			continue
		}
		active, err := d.ActiveLoanCount(b.ISBN)
		if err != nil {
			return nil, err
		}
		sig := Signals{
			AuthorMatch:  anyAuthorMatch(history, b),
			TopicOverlap: anyTopicOverlap(history, b),
			Available:    AvailableCopies(b.CopiesTotal, active) > 0,
			Popularity:   counts[b.ISBN],
		}
		candidates = append(candidates, scored{book: b, score: sig.Score()})
	}

	// Everything in the catalog already borrowed: fall back to popularity.
	if len(candidates) == 0 {
		return &Recommendations{Mode: ModePopular, Books: popularBooks(books, counts)}, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].book.UpdatedAt.After(candidates[j].book.UpdatedAt)
	})
	if len(candidates) > maxRecommendations {
		candidates = candidates[:maxRecommendations]
	}

	result := &Recommendations{Mode: ModePersonalized, Books: make([]*Book, len(candidates))}
	for i, c := range candidates {
		result.Books[i] = c.book
	}
	return result, nil
}

// anyAuthorMatch reports whether any historical loan shares the candidate's
// author, compared case-insensitively.
func anyAuthorMatch(history []*Checkout, candidate *Book) bool {
	author := strings.ToLower(strings.TrimSpace(candidate.Author))
	if author == "" {
		return false
	}
	for _, c := range history {
		if strings.ToLower(strings.TrimSpace(c.Author)) == author {
			return true
		}
	}
	return false
}

// anyTopicOverlap reports whether any historical loan title — excluding
// exact title matches — appears inside the candidate's title or description.
// A coarse topical-overlap heuristic, nothing more.
func anyTopicOverlap(history []*Checkout, candidate *Book) bool {
	candTitle := strings.ToLower(candidate.Title)
	candDesc := strings.ToLower(candidate.Description)
	for _, c := range history {
		loanTitle := strings.ToLower(strings.TrimSpace(c.Title))
		if loanTitle == "" || loanTitle == candTitle {
			continue
		}
		if strings.Contains(candTitle, loanTitle) || strings.Contains(candDesc, loanTitle) {
			return true
		}
	}
	return false
}

// popularBooks orders the whole catalog by all-time checkout count, newest
// catalog entry first on ties, truncated to the usual limit.
func popularBooks(books []*Book, counts map[string]int) []*Book {
	ranked := make([]*Book, len(books))
	copy(ranked, books)
	sort.SliceStable(ranked, func(i, j int) bool {
		if counts[ranked[i].ISBN] != counts[ranked[j].ISBN] {
			return counts[ranked[i].ISBN] > counts[ranked[j].ISBN]
		}
		return ranked[i].UpdatedAt.After(ranked[j].UpdatedAt)
	})
	if len(ranked) > maxRecommendations {
		ranked = ranked[:maxRecommendations]
	}
	return ranked
}
