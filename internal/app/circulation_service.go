package app

import (
	"context"
	"time"

	"github.com/openshelf/circulation/internal/clock"
	"github.com/openshelf/circulation/internal/domain"
	"github.com/openshelf/circulation/internal/obs"
)

type CirculationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetBookForUpdate(ctx context.Context, bookID string) (domain.Book, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	CreateLoan(ctx context.Context, loan domain.Loan) error
	GetOpenLoanForUpdate(ctx context.Context, loanID, userID string) (domain.Loan, error)
	MarkLoanReturned(ctx context.Context, loanID string, returnedAt time.Time) error
	SetBookAvailability(ctx context.Context, bookID string, available bool) error
	ListLoansByUser(ctx context.Context, userID string, status domain.LoanStatusFilter, limit, offset int) ([]domain.LoanWithBook, error)
}

// CirculationService owns the write path for loan state and book availability.
// Both writes of an operation happen inside one transaction, with the book row
// locked, so the availability flag can never drift from open-loan existence.
type CirculationService struct {
	repo    CirculationRepository
	clock   clock.Clock
	metrics *obs.Metrics
}

func NewCirculationService(repo CirculationRepository, clk clock.Clock, opts ...CirculationServiceOption) *CirculationService {
	svc := &CirculationService{
		repo:  repo,
		clock: clk,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CirculationServiceOption func(*CirculationService)

// WithMetrics wires operation counters and latency histograms.
func WithMetrics(m *obs.Metrics) CirculationServiceOption {
	return func(s *CirculationService) {
		s.metrics = m
	}
}

type CreateLoanInput struct {
	UserID  string
	BookID  string
	DueDate time.Time
}

func (s *CirculationService) CreateLoan(ctx context.Context, in CreateLoanInput) (domain.Loan, error) {
	start := time.Now()
	now := s.clock.Now()
	var result domain.Loan

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		exists, err := s.repo.UserExists(txCtx, in.UserID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrUserNotFound
		}

		book, err := s.repo.GetBookForUpdate(txCtx, in.BookID)
		if err != nil {
			return err
		}
		if !book.Available {
			return domain.ErrBookUnavailable
		}

		loan := domain.Loan{
			ID:         newUUID(),
			BookID:     in.BookID,
			UserID:     in.UserID,
			BorrowedAt: now,
			DueDate:    in.DueDate,
		}

		if err := s.repo.CreateLoan(txCtx, loan); err != nil {
			return err
		}
		if err := s.repo.SetBookAvailability(txCtx, in.BookID, false); err != nil {
			return err
		}

		result = loan
		return nil
	})

	s.metrics.ObserveBorrow(borrowResult(err), latencyMS(start))
	if err != nil {
		return domain.Loan{}, err
	}
	return result, nil
}

type CloseLoanInput struct {
	UserID string
	LoanID string
}

func (s *CirculationService) CloseLoan(ctx context.Context, in CloseLoanInput) (domain.Loan, error) {
	start := time.Now()
	now := s.clock.Now()
	var result domain.Loan

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		// Absent, owned by someone else, or already returned all read the
		// same to the caller: no matching open loan.
		loan, err := s.repo.GetOpenLoanForUpdate(txCtx, in.LoanID, in.UserID)
		if err != nil {
			return err
		}

		if err := s.repo.MarkLoanReturned(txCtx, loan.ID, now); err != nil {
			return err
		}
		if err := s.repo.SetBookAvailability(txCtx, loan.BookID, true); err != nil {
			return err
		}

		loan.ReturnedAt = &now
		result = loan
		return nil
	})

	s.metrics.ObserveReturn(returnResult(err), latencyMS(start))
	if err != nil {
		return domain.Loan{}, err
	}
	return result, nil
}

type ListLoansInput struct {
	UserID string
	Status domain.LoanStatusFilter
	Limit  int
	Offset int
}

// ListLoans returns one page of the borrower's loans, newest first. Limit is
// taken literally: zero means an empty page. The transport layer supplies the
// default when the caller left the parameter out.
func (s *CirculationService) ListLoans(ctx context.Context, in ListLoansInput) ([]domain.LoanWithBook, error) {
	if in.Limit < 0 {
		in.Limit = 0
	}
	if in.Offset < 0 {
		in.Offset = 0
	}
	if in.Status == "" {
		in.Status = domain.LoanStatusAll
	}

	exists, err := s.repo.UserExists(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrUserNotFound
	}

	if in.Limit == 0 {
		return []domain.LoanWithBook{}, nil
	}
	return s.repo.ListLoansByUser(ctx, in.UserID, in.Status, in.Limit, in.Offset)
}

func borrowResult(err error) string {
	switch err {
	case nil:
		return "success"
	case domain.ErrBookUnavailable:
		return "conflict"
	case domain.ErrBookNotFound, domain.ErrUserNotFound, domain.ErrInvalidID:
		return "not_found"
	default:
		return "error"
	}
}

func returnResult(err error) string {
	switch err {
	case nil:
		return "success"
	case domain.ErrLoanNotFound, domain.ErrInvalidID:
		return "not_found"
	default:
		return "error"
	}
}

func latencyMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
