package library

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const volumesPayload = `{
  "totalItems": 3,
  "items": [
    {
      "volumeInfo": {
        "title": "The Hobbit",
        "subtitle": "There and Back Again",
        "authors": ["J.R.R. Tolkien"],
        "description": "Bilbo Baggins goes on an adventure.",
        "categories": ["Fiction", "Fantasy"],
        "industryIdentifiers": [
          {"type": "ISBN_10", "identifier": "0261102214"},
          {"type": "ISBN_13", "identifier": "9780261102217"}
        ]
      }
    },
    {
      "volumeInfo": {
        "title": "Untitled Pamphlet",
        "authors": ["Anonymous"],
        "industryIdentifiers": [{"type": "OTHER", "identifier": "B000"}]
      }
    },
    {
      "volumeInfo": {
        "subtitle": "No title at all"
      }
    }
  ]
}`

func fakeVolumesServer(t *testing.T, handler http.HandlerFunc) *Enricher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewEnricher(srv.URL)
}

func TestEnricherSearch(t *testing.T) {
	var gotQuery string
	e := fakeVolumesServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(volumesPayload))
	})

	books, err := e.Search(context.Background(), "hobbit")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotQuery != "hobbit" {
		t.Fatalf("query sent upstream: want %q, got %q", "hobbit", gotQuery)
	}
	// The no-ISBN pamphlet and the titleless volume are dropped.
	if len(books) != 1 {
		t.Fatalf("want 1 book, got %d", len(books))
	}

	b := books[0]
	if b.ISBN != "0261102214" {
		t.Fatalf("isbn: got %q", b.ISBN)
	}
	if b.Title != "The Hobbit: There and Back Again" {
		t.Fatalf("title with subtitle: got %q", b.Title)
	}
	if b.Author != "J.R.R. Tolkien" {
		t.Fatalf("author: got %q", b.Author)
	}
	if len(b.Categories) != 2 {
		t.Fatalf("categories: got %v", b.Categories)
	}
	if b.CoverURL != "https://covers.openlibrary.org/b/isbn/0261102214-M.jpg" {
		t.Fatalf("cover url: got %q", b.CoverURL)
	}
	if b.CopiesTotal != 1 {
		t.Fatalf("copies default: got %d", b.CopiesTotal)
	}
}

func TestEnricherSearchBlankQuery(t *testing.T) {
	e := fakeVolumesServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("blank query must not hit the network")
	})
	books, err := e.Search(context.Background(), "   ")
	if err != nil || books != nil {
		t.Fatalf("want nil, nil for blank query, got %v, %v", books, err)
	}
}

func TestEnricherLookup(t *testing.T) {
	e := fakeVolumesServer(t, func(w http.ResponseWriter, r *http.Request) {
		if q := r.URL.Query().Get("q"); q != "isbn:9780261102217" {
			t.Errorf("lookup query: got %q", q)
		}
		w.Write([]byte(volumesPayload))
	})

	b, err := e.Lookup(context.Background(), "978-0-261-10221-7")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if b == nil || b.Title != "The Hobbit: There and Back Again" {
		t.Fatalf("unexpected book: %+v", b)
	}
}

func TestEnricherLookupMiss(t *testing.T) {
	e := fakeVolumesServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalItems":0}`))
	})

	b, err := e.Lookup(context.Background(), "0000000000")
	if err != nil {
		t.Fatalf("miss must not be an error: %v", err)
	}
	if b != nil {
		t.Fatalf("want nil book on miss, got %+v", b)
	}
}

func TestEnricherLookupFallsBackToQueryISBN(t *testing.T) {
	// The volume carries no usable identifier; the ISBN we asked about is
	// authoritative.
	e := fakeVolumesServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalItems":1,"items":[{"volumeInfo":{"title":"Obscure Zine","authors":["Zinester"]}}]}`))
	})

	b, err := e.Lookup(context.Background(), "9991112223")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if b.ISBN != "9991112223" {
		t.Fatalf("want query isbn, got %q", b.ISBN)
	}
}

func TestEnricherUpstreamFailure(t *testing.T) {
	e := fakeVolumesServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	if _, err := e.Search(context.Background(), "anything"); err == nil {
		t.Fatalf("expected error on non-200 response")
	}
	if _, err := e.Lookup(context.Background(), "123"); err == nil {
		t.Fatalf("expected error on non-200 response")
	}
}
