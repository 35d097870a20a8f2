// Command import_books seeds the catalog from a file of ISBNs (one per
// line, '#' comments allowed) by resolving each through the Google Books
// API. Lines may carry an optional copy count after the ISBN:
//
//	9780140328721 3
//
// It talks to the store directly: seeding happens before any member
// accounts exist, so the manager's role gates don't apply.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"classroom-library/library"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <isbn-list-file>\n", os.Args[0])
		os.Exit(1)
	}

	cfg := library.LoadConfig()

	db, err := library.NewDatabase(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	enricher := library.NewEnricher(cfg.GoogleBooksURL)

	f, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading ISBN list: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	ctx := context.Background()
	successCount := 0
	errorCount := 0

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		isbn := fields[0]
		copies := 1
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
				copies = n
			}
		}

		fmt.Printf("Importing %s... ", isbn)
		book, err := enricher.Lookup(ctx, isbn)
		if err != nil {
			fmt.Printf("ERROR - %v\n", err)
			errorCount++
			continue
		}
		if book == nil {
			fmt.Println("SKIPPED - no volume found")
			continue
		}
		if err := db.ObserveBook(book); err != nil {
			fmt.Printf("ERROR - %v\n", err)
			errorCount++
			continue
		}
		if copies > 1 {
			if err := db.SetCopiesTotal(book.ISBN, copies); err != nil {
				fmt.Printf("ERROR - %v\n", err)
				errorCount++
				continue
			}
		}
		fmt.Printf("SUCCESS (%s by %s, %d copies)\n", book.Title, book.Author, copies)
		successCount++
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading ISBN list: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Successfully imported: %d books\n", successCount)
	fmt.Printf("Errors: %d\n", errorCount)

	if successCount > 0 {
		fmt.Println("\nCatalog:")
		books, err := db.GetAllBooks()
		if err != nil {
			fmt.Printf("Error retrieving books: %v\n", err)
			return
		}
		for _, b := range books {
			available, err := db.GetAvailability(b.ISBN)
			if err != nil {
				available = 0
			}
			fmt.Println(library.PrettyBook(b, available))
		}
	}
}
