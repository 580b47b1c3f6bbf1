package app

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/openshelf/circulation/internal/clock"
	"github.com/openshelf/circulation/internal/domain"
)

func TestCirculationService_CreateLoan(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	dueDate := now.Add(14 * 24 * time.Hour)

	makeSvc := func(books []domain.Book, users []string, loans []domain.Loan) (*CirculationService, *fakeLedger) {
		ledger := newFakeLedger(books, users, loans)
		svc := NewCirculationService(ledger, clock.NewFixed(now))
		return svc, ledger
	}

	t.Run("creates loan and flips availability", func(t *testing.T) {
		svc, ledger := makeSvc(
			[]domain.Book{{ID: "book-1", Available: true}},
			[]string{"user-1"},
			nil,
		)

		loan, err := svc.CreateLoan(context.Background(), CreateLoanInput{
			UserID:  "user-1",
			BookID:  "book-1",
			DueDate: dueDate,
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if loan.ID == "" {
			t.Fatalf("expected loan ID to be set")
		}
		if !loan.BorrowedAt.Equal(now) {
			t.Fatalf("expected borrowed_at %v, got %v", now, loan.BorrowedAt)
		}
		if !loan.DueDate.Equal(dueDate) {
			t.Fatalf("expected due_date %v, got %v", dueDate, loan.DueDate)
		}
		if loan.ReturnedAt != nil {
			t.Fatalf("expected open loan, got returned_at %v", loan.ReturnedAt)
		}
		if ledger.books["book-1"].Available {
			t.Fatalf("expected book to be unavailable after borrow")
		}
		ledger.assertConsistent(t)
	})

	t.Run("due date in the past is accepted as given", func(t *testing.T) {
		svc, _ := makeSvc(
			[]domain.Book{{ID: "book-1", Available: true}},
			[]string{"user-1"},
			nil,
		)

		loan, err := svc.CreateLoan(context.Background(), CreateLoanInput{
			UserID:  "user-1",
			BookID:  "book-1",
			DueDate: now.Add(-24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !loan.DueDate.Equal(now.Add(-24 * time.Hour)) {
			t.Fatalf("expected due date to be stored unchanged, got %v", loan.DueDate)
		}
	})

	t.Run("conflict when book unavailable", func(t *testing.T) {
		svc, ledger := makeSvc(
			[]domain.Book{{ID: "book-1", Available: false}},
			[]string{"user-1", "user-2"},
			[]domain.Loan{{ID: "loan-1", BookID: "book-1", UserID: "user-2", BorrowedAt: now.Add(-time.Hour), DueDate: dueDate}},
		)

		_, err := svc.CreateLoan(context.Background(), CreateLoanInput{
			UserID:  "user-1",
			BookID:  "book-1",
			DueDate: dueDate,
		})
		if err != domain.ErrBookUnavailable {
			t.Fatalf("expected ErrBookUnavailable, got %v", err)
		}
		if len(ledger.loans) != 1 {
			t.Fatalf("expected loans unchanged on conflict, got %d", len(ledger.loans))
		}
		ledger.assertConsistent(t)
	})

	t.Run("book not found", func(t *testing.T) {
		svc, _ := makeSvc(nil, []string{"user-1"}, nil)

		_, err := svc.CreateLoan(context.Background(), CreateLoanInput{
			UserID:  "user-1",
			BookID:  "missing",
			DueDate: dueDate,
		})
		if err != domain.ErrBookNotFound {
			t.Fatalf("expected ErrBookNotFound, got %v", err)
		}
	})

	t.Run("user not found", func(t *testing.T) {
		svc, ledger := makeSvc(
			[]domain.Book{{ID: "book-1", Available: true}},
			nil,
			nil,
		)

		_, err := svc.CreateLoan(context.Background(), CreateLoanInput{
			UserID:  "missing",
			BookID:  "book-1",
			DueDate: dueDate,
		})
		if err != domain.ErrUserNotFound {
			t.Fatalf("expected ErrUserNotFound, got %v", err)
		}
		if !ledger.books["book-1"].Available {
			t.Fatalf("expected availability untouched on failure")
		}
	})
}

func TestCirculationService_CloseLoan(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	borrowedAt := now.Add(-7 * 24 * time.Hour)

	t.Run("closes loan and frees the book", func(t *testing.T) {
		ledger := newFakeLedger(
			[]domain.Book{{ID: "book-1", Available: false}},
			[]string{"user-1"},
			[]domain.Loan{{ID: "loan-1", BookID: "book-1", UserID: "user-1", BorrowedAt: borrowedAt, DueDate: now.Add(24 * time.Hour)}},
		)
		svc := NewCirculationService(ledger, clock.NewFixed(now))

		loan, err := svc.CloseLoan(context.Background(), CloseLoanInput{UserID: "user-1", LoanID: "loan-1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if loan.ReturnedAt == nil || !loan.ReturnedAt.Equal(now) {
			t.Fatalf("expected returned_at %v, got %v", now, loan.ReturnedAt)
		}
		if !ledger.books["book-1"].Available {
			t.Fatalf("expected book to be available after return")
		}
		ledger.assertConsistent(t)
	})

	t.Run("second close fails with not found", func(t *testing.T) {
		ledger := newFakeLedger(
			[]domain.Book{{ID: "book-1", Available: false}},
			[]string{"user-1"},
			[]domain.Loan{{ID: "loan-1", BookID: "book-1", UserID: "user-1", BorrowedAt: borrowedAt, DueDate: now.Add(24 * time.Hour)}},
		)
		svc := NewCirculationService(ledger, clock.NewFixed(now))

		if _, err := svc.CloseLoan(context.Background(), CloseLoanInput{UserID: "user-1", LoanID: "loan-1"}); err != nil {
			t.Fatalf("first close: %v", err)
		}
		_, err := svc.CloseLoan(context.Background(), CloseLoanInput{UserID: "user-1", LoanID: "loan-1"})
		if err != domain.ErrLoanNotFound {
			t.Fatalf("expected ErrLoanNotFound on second close, got %v", err)
		}
		if !ledger.books["book-1"].Available {
			t.Fatalf("expected book to stay available after failed double return")
		}
	})

	t.Run("wrong borrower fails with not found", func(t *testing.T) {
		ledger := newFakeLedger(
			[]domain.Book{{ID: "book-1", Available: false}},
			[]string{"user-1", "user-2"},
			[]domain.Loan{{ID: "loan-1", BookID: "book-1", UserID: "user-1", BorrowedAt: borrowedAt, DueDate: now.Add(24 * time.Hour)}},
		)
		svc := NewCirculationService(ledger, clock.NewFixed(now))

		_, err := svc.CloseLoan(context.Background(), CloseLoanInput{UserID: "user-2", LoanID: "loan-1"})
		if err != domain.ErrLoanNotFound {
			t.Fatalf("expected ErrLoanNotFound, got %v", err)
		}
		if ledger.books["book-1"].Available {
			t.Fatalf("expected book to stay unavailable")
		}
	})
}

// Availability must equal open-loan existence after any accepted sequence of
// borrow and return calls.
func TestCirculationService_FlagConsistency(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	ledger := newFakeLedger(
		[]domain.Book{
			{ID: "book-1", Available: true},
			{ID: "book-2", Available: true},
			{ID: "book-3", Available: true},
		},
		[]string{"user-1", "user-2"},
		nil,
	)
	svc := NewCirculationService(ledger, clk)
	ctx := context.Background()

	steps := []struct {
		borrow bool
		user   string
		book   string
	}{
		{borrow: true, user: "user-1", book: "book-1"},
		{borrow: true, user: "user-2", book: "book-2"},
		{borrow: true, user: "user-2", book: "book-1"}, // conflict, rejected
		{borrow: false, user: "user-1", book: "book-1"},
		{borrow: true, user: "user-2", book: "book-1"},
		{borrow: true, user: "user-1", book: "book-3"},
		{borrow: false, user: "user-2", book: "book-2"},
	}

	loanIDs := make(map[string]string) // user|book -> open loan id
	for i, step := range steps {
		clk.Advance(time.Minute)
		if step.borrow {
			loan, err := svc.CreateLoan(ctx, CreateLoanInput{
				UserID:  step.user,
				BookID:  step.book,
				DueDate: clk.Now().Add(14 * 24 * time.Hour),
			})
			if err == nil {
				loanIDs[step.user+"|"+step.book] = loan.ID
			} else if err != domain.ErrBookUnavailable {
				t.Fatalf("step %d: unexpected error %v", i, err)
			}
		} else {
			id := loanIDs[step.user+"|"+step.book]
			if _, err := svc.CloseLoan(ctx, CloseLoanInput{UserID: step.user, LoanID: id}); err != nil {
				t.Fatalf("step %d: close: %v", i, err)
			}
		}
		ledger.assertConsistent(t)
	}
}

// Concurrent borrows of the same copy: exactly one wins, the rest observe the
// conflict. The fake serializes WithTx with a mutex the way the row lock does.
func TestCirculationService_ConcurrentBorrowMutualExclusion(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	ledger := newFakeLedger(
		[]domain.Book{{ID: "book-1", Available: true}},
		[]string{"user-0", "user-1", "user-2", "user-3", "user-4", "user-5", "user-6", "user-7"},
		nil,
	)
	svc := NewCirculationService(ledger, clock.NewFixed(now))

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateLoan(context.Background(), CreateLoanInput{
				UserID:  "user-" + string(rune('0'+i)),
				BookID:  "book-1",
				DueDate: now.Add(24 * time.Hour),
			})
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for i, err := range errs {
		switch err {
		case nil:
			successes++
		case domain.ErrBookUnavailable:
			conflicts++
		default:
			t.Fatalf("caller %d: unexpected error %v", i, err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly 1 successful borrow, got %d", successes)
	}
	if conflicts != callers-1 {
		t.Fatalf("expected %d conflicts, got %d", callers-1, conflicts)
	}
	ledger.assertConsistent(t)
}

func TestCirculationService_ListLoans(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	returned := now.Add(-12 * time.Hour)

	loans := make([]domain.Loan, 0, 25)
	for i := 0; i < 25; i++ {
		loan := domain.Loan{
			ID:         "loan-" + string(rune('a'+i)),
			BookID:     "book-1",
			UserID:     "user-1",
			BorrowedAt: now.Add(-time.Duration(i) * time.Hour),
			DueDate:    now.Add(14 * 24 * time.Hour),
		}
		if i%2 == 1 {
			loan.ReturnedAt = &returned
		}
		loans = append(loans, loan)
	}
	ledger := newFakeLedger([]domain.Book{{ID: "book-1"}}, []string{"user-1"}, loans)
	svc := NewCirculationService(ledger, clock.NewFixed(now))
	ctx := context.Background()

	t.Run("newest first", func(t *testing.T) {
		got, err := svc.ListLoans(ctx, ListLoansInput{UserID: "user-1", Limit: 10})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(got) != 10 {
			t.Fatalf("expected 10 loans, got %d", len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i].BorrowedAt.After(got[i-1].BorrowedAt) {
				t.Fatalf("expected borrowed_at descending at index %d", i)
			}
		}
	})

	t.Run("zero limit is an empty page, not the default", func(t *testing.T) {
		got, err := svc.ListLoans(ctx, ListLoansInput{UserID: "user-1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected empty page for limit 0, got %d loans", len(got))
		}
	})

	t.Run("page equals slice of full sorted result", func(t *testing.T) {
		full, err := svc.ListLoans(ctx, ListLoansInput{UserID: "user-1", Limit: 100})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		page, err := svc.ListLoans(ctx, ListLoansInput{UserID: "user-1", Limit: 7, Offset: 5})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(page) != 7 {
			t.Fatalf("expected 7 loans, got %d", len(page))
		}
		for i, loan := range page {
			if loan.ID != full[5+i].ID {
				t.Fatalf("page[%d] = %s, want %s", i, loan.ID, full[5+i].ID)
			}
		}
	})

	t.Run("status filters partition the ledger", func(t *testing.T) {
		active, err := svc.ListLoans(ctx, ListLoansInput{UserID: "user-1", Status: domain.LoanStatusActive, Limit: 100})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		returnedLoans, err := svc.ListLoans(ctx, ListLoansInput{UserID: "user-1", Status: domain.LoanStatusReturned, Limit: 100})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(active)+len(returnedLoans) != 25 {
			t.Fatalf("expected filters to partition 25 loans, got %d + %d", len(active), len(returnedLoans))
		}
		for _, loan := range active {
			if loan.ReturnedAt != nil {
				t.Fatalf("active filter returned closed loan %s", loan.ID)
			}
		}
		for _, loan := range returnedLoans {
			if loan.ReturnedAt == nil {
				t.Fatalf("returned filter returned open loan %s", loan.ID)
			}
		}
	})

	t.Run("unknown borrower", func(t *testing.T) {
		_, err := svc.ListLoans(ctx, ListLoansInput{UserID: "missing"})
		if err != domain.ErrUserNotFound {
			t.Fatalf("expected ErrUserNotFound, got %v", err)
		}
	})
}

// fakeLedger implements CirculationRepository in memory. WithTx serializes
// callers with a mutex, standing in for the per-row lock.
type fakeLedger struct {
	mu    sync.Mutex
	books map[string]*domain.Book
	users map[string]struct{}
	loans []domain.Loan
}

func newFakeLedger(books []domain.Book, users []string, loans []domain.Loan) *fakeLedger {
	f := &fakeLedger{
		books: make(map[string]*domain.Book, len(books)),
		users: make(map[string]struct{}, len(users)),
		loans: append([]domain.Loan{}, loans...),
	}
	for i := range books {
		b := books[i]
		f.books[b.ID] = &b
	}
	for _, u := range users {
		f.users[u] = struct{}{}
	}
	return f
}

func (f *fakeLedger) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx)
}

func (f *fakeLedger) GetBookForUpdate(_ context.Context, bookID string) (domain.Book, error) {
	book, ok := f.books[bookID]
	if !ok {
		return domain.Book{}, domain.ErrBookNotFound
	}
	return *book, nil
}

func (f *fakeLedger) UserExists(_ context.Context, userID string) (bool, error) {
	_, ok := f.users[userID]
	return ok, nil
}

func (f *fakeLedger) CreateLoan(_ context.Context, loan domain.Loan) error {
	f.loans = append(f.loans, loan)
	return nil
}

func (f *fakeLedger) GetOpenLoanForUpdate(_ context.Context, loanID, userID string) (domain.Loan, error) {
	for _, loan := range f.loans {
		if loan.ID == loanID && loan.UserID == userID && loan.Open() {
			return loan, nil
		}
	}
	return domain.Loan{}, domain.ErrLoanNotFound
}

func (f *fakeLedger) MarkLoanReturned(_ context.Context, loanID string, returnedAt time.Time) error {
	for i := range f.loans {
		if f.loans[i].ID == loanID && f.loans[i].Open() {
			at := returnedAt
			f.loans[i].ReturnedAt = &at
			return nil
		}
	}
	return domain.ErrLoanNotFound
}

func (f *fakeLedger) SetBookAvailability(_ context.Context, bookID string, available bool) error {
	book, ok := f.books[bookID]
	if !ok {
		return domain.ErrBookNotFound
	}
	book.Available = available
	return nil
}

func (f *fakeLedger) ListLoansByUser(_ context.Context, userID string, status domain.LoanStatusFilter, limit, offset int) ([]domain.LoanWithBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	matched := make([]domain.Loan, 0, len(f.loans))
	for _, loan := range f.loans {
		if loan.UserID != userID {
			continue
		}
		if status == domain.LoanStatusActive && !loan.Open() {
			continue
		}
		if status == domain.LoanStatusReturned && loan.Open() {
			continue
		}
		matched = append(matched, loan)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].BorrowedAt.After(matched[j].BorrowedAt)
	})

	if offset >= len(matched) {
		return []domain.LoanWithBook{}, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}

	out := make([]domain.LoanWithBook, 0, len(matched))
	for _, loan := range matched {
		out = append(out, domain.LoanWithBook{Loan: loan, BookTitle: "Title"})
	}
	return out, nil
}

// assertConsistent checks the availability invariant: a book is unavailable
// iff exactly one open loan references it.
func (f *fakeLedger) assertConsistent(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	openByBook := make(map[string]int)
	for _, loan := range f.loans {
		if loan.Open() {
			openByBook[loan.BookID]++
		}
	}
	for id, count := range openByBook {
		if count > 1 {
			t.Fatalf("book %s has %d simultaneously open loans", id, count)
		}
	}
	for id, book := range f.books {
		open := openByBook[id] > 0
		if book.Available == open {
			t.Fatalf("book %s: available=%v with %d open loans", id, book.Available, openByBook[id])
		}
	}
}
