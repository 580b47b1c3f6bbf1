package domain

import "time"

// Loan links a book copy to a borrower. ReturnedAt is nil while the loan is
// open and is set exactly once on return; closed loans stay in the ledger.
type Loan struct {
	ID         string
	BookID     string
	UserID     string
	BorrowedAt time.Time
	DueDate    time.Time
	ReturnedAt *time.Time
}

// Open reports whether the loan has not been returned yet.
func (l Loan) Open() bool {
	return l.ReturnedAt == nil
}

// LoanWithBook is the read-side projection used for loan listings.
type LoanWithBook struct {
	Loan
	BookTitle      string
	BookAuthor     string
	BookCoverImage string
	BookISBN       string
}

type LoanStatusFilter string

const (
	LoanStatusAll      LoanStatusFilter = "all"
	LoanStatusActive   LoanStatusFilter = "active"
	LoanStatusReturned LoanStatusFilter = "returned"
)
