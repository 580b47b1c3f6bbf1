package domain

// BorrowerRank is one row of the top-borrowers ranking: a user plus their
// all-time loan count.
type BorrowerRank struct {
	UserID      string
	Name        string
	Email       string
	Image       string
	BorrowCount int
}

// MonthCount is a count-by-group row keyed by calendar month and year.
type MonthCount struct {
	Month int
	Year  int
	Count int
}

// MonthActivity is one calendar-month bucket of borrow/return activity.
type MonthActivity struct {
	Label   string
	Borrows int
	Returns int
}

// Report is the composed dashboard aggregate.
type Report struct {
	ActiveBorrowers int
	OverdueBorrows  int
	TopBorrowers    []BorrowerRank
	Activity        []MonthActivity
}
