package library

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// DefaultGoogleBooksURL is the volumes endpoint of the Google Books API.
const DefaultGoogleBooksURL = "https://www.googleapis.com/books/v1/volumes"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Enricher resolves free-text queries or ISBNs to title metadata from the
// Google Books API. Callers treat any failure as "no enrichment data": the
// availability and recommendation paths run purely on local data and must
// never depend on this collaborator.
type Enricher struct {
	baseURL string
	client  *http.Client
}

// NewEnricher builds a client for the given volumes endpoint (tests point it
// at a local fake). The timeout is short so a slow upstream doesn't hang an
// interactive command.
func NewEnricher(baseURL string) *Enricher {
	if baseURL == "" {
		baseURL = DefaultGoogleBooksURL
	}
	return &Enricher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// volumesResponse is the response from GET /volumes?q=...
type volumesResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo volumeInfo `json:"volumeInfo"`
	} `json:"items"`
}

type volumeInfo struct {
	Title         string   `json:"title"`
	Subtitle      string   `json:"subtitle"`
	Authors       []string `json:"authors"`
	Description   string   `json:"description"`
	Categories    []string `json:"categories"`
	PublishedDate string   `json:"publishedDate"`
	ImageLinks    struct {
		Thumbnail string `json:"thumbnail"`
	} `json:"imageLinks"`
	IndustryIdentifiers []struct {
		Type       string `json:"type"`
		Identifier string `json:"identifier"`
	} `json:"industryIdentifiers"`
}

// Search resolves a free-text query to catalog-shaped records. Volumes
// without a usable ISBN are skipped; ObserveBook would ignore them anyway.
func (e *Enricher) Search(ctx context.Context, query string) ([]*Book, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	resp, err := e.volumes(ctx, query)
	if err != nil {
		return nil, err
	}
	var books []*Book
	for i := range resp.Items {
		if b := volumeToBook(&resp.Items[i].VolumeInfo); b != nil && b.ISBN != NoISBN {
			books = append(books, b)
		}
	}
	return books, nil
}

// Lookup resolves a single ISBN. Returns nil, nil when no volume matches,
// so callers can distinguish "unknown title" from a transport failure.
func (e *Enricher) Lookup(ctx context.Context, isbn string) (*Book, error) {
	isbn = strings.ReplaceAll(strings.TrimSpace(isbn), "-", "")
	if isbn == "" {
		return nil, fmt.Errorf("isbn is required")
	}
	resp, err := e.volumes(ctx, "isbn:"+isbn)
	if err != nil {
		return nil, err
	}
	if resp.TotalItems == 0 || len(resp.Items) == 0 {
		return nil, nil
	}
	b := volumeToBook(&resp.Items[0].VolumeInfo)
	if b == nil {
		return nil, nil
	}
	// The query ISBN is authoritative when the volume carries none.
	if b.ISBN == NoISBN {
		b.ISBN = isbn
		b.CoverURL = openLibraryCoverURL(isbn, "M")
	}
	return b, nil
}

func (e *Enricher) volumes(ctx context.Context, query string) (*volumesResponse, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("maxResults", "20")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google books returned %d", resp.StatusCode)
	}
	var data volumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode volumes response: %w", err)
	}
	return &data, nil
}

func volumeToBook(vi *volumeInfo) *Book {
	if strings.TrimSpace(vi.Title) == "" {
		return nil
	}
	b := &Book{
		ISBN:        NoISBN,
		Title:       vi.Title,
		Author:      strings.Join(vi.Authors, ", "),
		Description: strings.TrimSpace(vi.Description),
		Categories:  vi.Categories,
		CopiesTotal: 1,
	}
	if vi.Subtitle != "" {
		b.Title = b.Title + ": " + vi.Subtitle
	}
	for _, id := range vi.IndustryIdentifiers {
		if id.Type == "ISBN_13" || id.Type == "ISBN_10" {
			b.ISBN = id.Identifier
			break
		}
	}
	// Open Library covers by ISBN; Google Books image URLs often require a captcha.
	if b.ISBN != NoISBN {
		b.CoverURL = openLibraryCoverURL(b.ISBN, "M")
	} else if vi.ImageLinks.Thumbnail != "" {
		b.CoverURL = vi.ImageLinks.Thumbnail
	}
	return b
}

// openLibraryCoverURL returns a direct cover image URL by ISBN.
// Size: S (small), M (medium), L (large).
func openLibraryCoverURL(isbn, size string) string {
	clean := strings.ReplaceAll(strings.TrimSpace(isbn), "-", "")
	if clean == "" {
		return ""
	}
	return "https://covers.openlibrary.org/b/isbn/" + url.PathEscape(clean) + "-" + size + ".jpg"
}
