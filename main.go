package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"classroom-library/library"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	// .env is optional; the environment wins over it either way.
	_ = godotenv.Load()

	cfg := library.LoadConfig()
	logger := newLogger(cfg.LogLevel)

	if err := newRootCmd(cfg, logger).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func newRootCmd(cfg *library.Config, logger zerolog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:          "classroom-library",
		Short:        "Classroom book-checkout and recommendation tool",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cfg, logger)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "shell",
		Short: "Interactive shell (same as running with no arguments)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cfg, logger)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "availability <isbn>",
		Short: "Show how many copies of a title are on the shelf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := library.NewLibraryManager(cfg, logger)
			if err != nil {
				return err
			}
			defer mgr.Close()
			n, err := mgr.GetAvailability(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d available\n", args[0], n)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "recommend <member-id>",
		Short: "Rank unread titles for a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid member ID: %s", args[0])
			}
			mgr, err := library.NewLibraryManager(cfg, logger)
			if err != nil {
				return err
			}
			defer mgr.Close()
			recs, err := mgr.Recommend(memberID)
			if err != nil {
				return err
			}
			printRecommendations(mgr, recs)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalog and Google Books",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := library.NewLibraryManager(cfg, logger)
			if err != nil {
				return err
			}
			defer mgr.Close()
			books, err := mgr.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			printBooks(mgr, books)
			return nil
		},
	})

	return root
}

// ---------------------------------------------------------------------------
// Interactive shell
// ---------------------------------------------------------------------------

// session is the shell's logged-in member, passed explicitly into every
// manager call that needs an actor.
type session struct {
	member *library.Member
}

func runShell(cfg *library.Config, logger zerolog.Logger) error {
	mgr, err := library.NewLibraryManager(cfg, logger)
	if err != nil {
		return err
	}
	defer mgr.Close()

	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("Welcome to the Classroom Library!")

	sess, err := login(scanner, mgr)
	if err != nil {
		return err
	}
	fmt.Printf("Hello, %s (%s)!\n", sess.member.Name, sess.member.Role)

	fmt.Println("Available commands:")
	fmt.Println("  Catalog: search, list books, availability")
	fmt.Println("  Circulation: checkout, return, my checkouts")
	fmt.Println("  Recommendations: recommend")
	fmt.Println("  Reading: start reading, pause reading, resume reading, reading log")
	if sess.member.IsAdmin() {
		fmt.Println("  Admin: add member, list members, set copies, remove checkout, active checkouts, reset password")
	}
	fmt.Println("  System: exit")

	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		cmd := strings.TrimSpace(scanner.Text())

		switch cmd {
		case "search":
			handleSearch(scanner, mgr)
		case "list books":
			handleListBooks(mgr)
		case "availability":
			handleAvailability(scanner, mgr)
		case "checkout":
			handleCheckout(scanner, mgr, sess)
		case "return":
			handleReturn(scanner, mgr, sess)
		case "my checkouts":
			handleMyCheckouts(mgr, sess)
		case "recommend":
			handleRecommend(mgr, sess)
		case "start reading":
			handleStartReading(scanner, mgr, sess)
		case "pause reading":
			handlePauseReading(scanner, mgr)
		case "resume reading":
			handleResumeReading(scanner, mgr)
		case "reading log":
			handleReadingLog(mgr, sess)
		case "add member":
			handleAddMember(scanner, mgr, sess)
		case "list members":
			handleListMembers(mgr)
		case "set copies":
			handleSetCopies(scanner, mgr, sess)
		case "remove checkout":
			handleRemoveCheckout(scanner, mgr, sess)
		case "active checkouts":
			handleActiveCheckouts(mgr, sess)
		case "reset password":
			handleResetPassword(scanner, mgr, sess)
		case "exit":
			fmt.Println("Goodbye!")
			return nil
		default:
			fmt.Println("Unknown command. Type one of the available commands listed above.")
		}
	}
	return nil
}

// readPassword securely reads a password with masking.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(string(bytePassword)), nil
}

// login authenticates an existing member, or bootstraps the first admin
// account on a fresh database.
func login(sc *bufio.Scanner, mgr *library.LibraryManager) (*session, error) {
	members, err := mgr.GetAllMembers()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		fmt.Println("No members yet — let's create the first (admin) account.")
		fmt.Print("Name: ")
		if !sc.Scan() {
			return nil, fmt.Errorf("input closed")
		}
		name := strings.TrimSpace(sc.Text())
		password, err := readPassword("Password: ")
		if err != nil {
			return nil, err
		}
		id, err := mgr.AddMember(0, name, library.RoleAdmin, password)
		if err != nil {
			return nil, err
		}
		member, err := mgr.GetMember(id)
		if err != nil {
			return nil, err
		}
		return &session{member: member}, nil
	}

	fmt.Print("Member ID: ")
	if !sc.Scan() {
		return nil, fmt.Errorf("input closed")
	}
	memberID, err := strconv.ParseInt(strings.TrimSpace(sc.Text()), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid member ID")
	}
	password, err := readPassword("Password: ")
	if err != nil {
		return nil, err
	}
	if err := mgr.AuthenticateMember(memberID, password); err != nil {
		return nil, err
	}
	member, err := mgr.GetMember(memberID)
	if err != nil {
		return nil, err
	}
	return &session{member: member}, nil
}

func promptLine(sc *bufio.Scanner, prompt string) (string, bool) {
	fmt.Print(prompt)
	if !sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sc.Text()), true
}

func promptInt64(sc *bufio.Scanner, prompt string) (int64, bool) {
	s, ok := promptLine(sc, prompt)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fmt.Printf("Invalid number: %s\n", s)
		return 0, false
	}
	return n, true
}

func handleSearch(sc *bufio.Scanner, mgr *library.LibraryManager) {
	query, ok := promptLine(sc, "Query: ")
	if !ok || query == "" {
		return
	}
	books, err := mgr.Search(context.Background(), query)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(books) == 0 {
		fmt.Printf("No books found matching '%s'.\n", query)
		return
	}
	printBooks(mgr, books)
}

func handleListBooks(mgr *library.LibraryManager) {
	books, err := mgr.GetAllBooks()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(books) == 0 {
		fmt.Println("No books in the catalog yet. Try 'search' to add some.")
		return
	}
	printBooks(mgr, books)
}

func printBooks(mgr *library.LibraryManager, books []*library.Book) {
	fmt.Printf("%-15s %-35s %-25s %s\n", "ISBN", "Title", "Author", "Available")
	fmt.Println(strings.Repeat("-", 90))
	for _, b := range books {
		available, err := mgr.GetAvailability(b.ISBN)
		if err != nil {
			available = 0
		}
		fmt.Println(library.PrettyBook(b, available))
	}
}

func handleAvailability(sc *bufio.Scanner, mgr *library.LibraryManager) {
	isbn, ok := promptLine(sc, "ISBN: ")
	if !ok || isbn == "" {
		return
	}
	n, err := mgr.GetAvailability(isbn)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("%s: %d available\n", isbn, n)
}

func handleCheckout(sc *bufio.Scanner, mgr *library.LibraryManager, sess *session) {
	isbn, ok := promptLine(sc, "ISBN: ")
	if !ok || isbn == "" {
		return
	}
	c, err := mgr.Checkout(context.Background(), sess.member.ID, isbn)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Checked out '%s' — due %s.\n", c.Title, c.DueDate.Format(time.DateOnly))
}

func handleReturn(sc *bufio.Scanner, mgr *library.LibraryManager, sess *session) {
	isbn, ok := promptLine(sc, "ISBN: ")
	if !ok || isbn == "" {
		return
	}
	if err := mgr.Return(sess.member.ID, isbn); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("Returned. Thanks!")
}

func handleMyCheckouts(mgr *library.LibraryManager, sess *session) {
	checkouts, err := mgr.MemberCheckouts(sess.member.ID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(checkouts) == 0 {
		fmt.Println("You have no checkouts yet.")
		return
	}
	for _, c := range checkouts {
		fmt.Println(library.PrettyCheckout(c))
	}
}

func handleRecommend(mgr *library.LibraryManager, sess *session) {
	recs, err := mgr.Recommend(sess.member.ID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	printRecommendations(mgr, recs)
}

func printRecommendations(mgr *library.LibraryManager, recs *library.Recommendations) {
	if len(recs.Books) == 0 {
		fmt.Println("Nothing to recommend yet — the catalog is empty.")
		return
	}
	if recs.Mode == library.ModePersonalized {
		fmt.Println("Based on your reading history, you might enjoy:")
	} else {
		fmt.Println("Popular with other readers:")
	}
	printBooks(mgr, recs.Books)
}

func handleStartReading(sc *bufio.Scanner, mgr *library.LibraryManager, sess *session) {
	isbn, ok := promptLine(sc, "ISBN: ")
	if !ok || isbn == "" {
		return
	}
	s, err := mgr.StartReading(sess.member.ID, isbn)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Reading session %d started. Happy reading!\n", s.ID)
}

func handlePauseReading(sc *bufio.Scanner, mgr *library.LibraryManager) {
	id, ok := promptInt64(sc, "Session ID: ")
	if !ok {
		return
	}
	if err := mgr.PauseReading(id); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("Paused.")
}

func handleResumeReading(sc *bufio.Scanner, mgr *library.LibraryManager) {
	id, ok := promptInt64(sc, "Session ID: ")
	if !ok {
		return
	}
	if err := mgr.ResumeReading(id); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("Resumed.")
}

func handleReadingLog(mgr *library.LibraryManager, sess *session) {
	sessions, err := mgr.MemberReadingSessions(sess.member.ID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(sessions) == 0 {
		fmt.Println("No reading sessions yet.")
		return
	}
	now := time.Now().UTC()
	for _, s := range sessions {
		state := "paused"
		if s.Running {
			state = "running"
		}
		fmt.Printf("%-5d %-15s %-10s %s\n", s.ID, s.ISBN, state, s.Total(now).Round(time.Second))
	}
}

func handleAddMember(sc *bufio.Scanner, mgr *library.LibraryManager, sess *session) {
	name, ok := promptLine(sc, "Name: ")
	if !ok || name == "" {
		return
	}
	role, ok := promptLine(sc, "Role (student/admin) [student]: ")
	if !ok {
		return
	}
	if role == "" {
		role = library.RoleStudent
	}
	password, err := readPassword(fmt.Sprintf("Enter password for %s: ", name))
	if err != nil {
		fmt.Printf("Error reading password: %v\n", err)
		return
	}
	id, err := mgr.AddMember(sess.member.ID, name, role, password)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Added member '%s' with ID %d\n", name, id)
}

func handleListMembers(mgr *library.LibraryManager) {
	members, err := mgr.GetAllMembers()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(members) == 0 {
		fmt.Println("No members registered.")
		return
	}
	fmt.Printf("%-5s %-30s %-10s\n", "ID", "Name", "Role")
	fmt.Println(strings.Repeat("-", 50))
	for _, m := range members {
		fmt.Printf("%-5d %-30s %-10s\n", m.ID, m.Name, m.Role)
	}
}

func handleSetCopies(sc *bufio.Scanner, mgr *library.LibraryManager, sess *session) {
	isbn, ok := promptLine(sc, "ISBN: ")
	if !ok || isbn == "" {
		return
	}
	n, ok := promptInt64(sc, "Total copies: ")
	if !ok {
		return
	}
	if err := mgr.SetCopiesTotal(sess.member.ID, isbn, int(n)); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("Updated.")
}

func handleRemoveCheckout(sc *bufio.Scanner, mgr *library.LibraryManager, sess *session) {
	id, ok := promptInt64(sc, "Checkout ID: ")
	if !ok {
		return
	}
	if err := mgr.RemoveCheckout(sess.member.ID, id); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("Removed. Note: this also removes it from recommendation history.")
}

func handleActiveCheckouts(mgr *library.LibraryManager, sess *session) {
	checkouts, err := mgr.ActiveCheckouts(sess.member.ID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(checkouts) == 0 {
		fmt.Println("No outstanding loans.")
		return
	}
	for _, c := range checkouts {
		fmt.Printf("%s (member %d)\n", library.PrettyCheckout(c), c.MemberID)
	}
}

func handleResetPassword(sc *bufio.Scanner, mgr *library.LibraryManager, sess *session) {
	memberID, ok := promptInt64(sc, "Member ID: ")
	if !ok {
		return
	}
	member, err := mgr.GetMember(memberID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	newPassword, err := readPassword(fmt.Sprintf("Enter new password for %s (ID: %d): ", member.Name, memberID))
	if err != nil {
		fmt.Printf("Error reading password: %v\n", err)
		return
	}
	if err := mgr.ResetMemberPassword(sess.member.ID, memberID, newPassword); err != nil {
		fmt.Printf("Error resetting password: %v\n", err)
		return
	}
	fmt.Printf("Password successfully reset for %s (ID: %d)\n", member.Name, memberID)
}
