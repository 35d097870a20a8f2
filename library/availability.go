package library

// AvailableCopies derives how many copies of a title are on the shelf:
// total owned minus outstanding loans, floored at zero. Over-booked ledgers
// (more active loans than copies, e.g. after an admin lowers copies_total)
// clamp instead of going negative.
func AvailableCopies(total, active int) int {
	if available := total - active; available > 0 {
		return available
	}
	return 0
}

// GetAvailability computes the current available-copy count for one title.
// It is recomputed from the ledger on every call; loans change too often for
// a cached value to stay honest.
func (d *Database) GetAvailability(isbn string) (int, error) {
	book, err := d.GetBook(isbn)
	if err != nil {
		return 0, err
	}
	active, err := d.ActiveLoanCount(isbn)
	if err != nil {
		return 0, err
	}
	return AvailableCopies(book.CopiesTotal, active), nil
}
