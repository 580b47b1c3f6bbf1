package app

import (
	"context"
	"time"

	"github.com/openshelf/circulation/internal/clock"
	"github.com/openshelf/circulation/internal/domain"
)

type AnalyticsRepository interface {
	CountOpenLoansSince(ctx context.Context, since time.Time) (int, error)
	CountOverdueLoans(ctx context.Context, now time.Time) (int, error)
	TopBorrowers(ctx context.Context, limit int) ([]domain.BorrowerRank, error)
	CountLoansByMonth(ctx context.Context, since time.Time) ([]domain.MonthCount, error)
	CountReturnsByMonth(ctx context.Context, since time.Time) ([]domain.MonthCount, error)
}

// AnalyticsService derives dashboard aggregates from the loan ledger. Reads
// only; each aggregate is computed independently, so a report may mix
// instants across its counts.
type AnalyticsService struct {
	repo  AnalyticsRepository
	clock clock.Clock

	activityWindow time.Duration
	topLimit       int
	monthsBack     int
}

const (
	defaultActivityWindow = 30 * 24 * time.Hour
	defaultTopLimit       = 5
	defaultMonthsBack     = 6
)

func NewAnalyticsService(repo AnalyticsRepository, clk clock.Clock, opts ...AnalyticsServiceOption) *AnalyticsService {
	svc := &AnalyticsService{
		repo:           repo,
		clock:          clk,
		activityWindow: defaultActivityWindow,
		topLimit:       defaultTopLimit,
		monthsBack:     defaultMonthsBack,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type AnalyticsServiceOption func(*AnalyticsService)

// WithActivityWindow overrides the trailing window for the active-borrower count.
func WithActivityWindow(d time.Duration) AnalyticsServiceOption {
	return func(s *AnalyticsService) {
		if d > 0 {
			s.activityWindow = d
		}
	}
}

// WithTopBorrowers overrides how many borrowers the ranking returns.
func WithTopBorrowers(n int) AnalyticsServiceOption {
	return func(s *AnalyticsService) {
		if n > 0 {
			s.topLimit = n
		}
	}
}

// WithMonthsBack overrides how many calendar-month buckets the activity series spans.
func WithMonthsBack(n int) AnalyticsServiceOption {
	return func(s *AnalyticsService) {
		if n > 0 {
			s.monthsBack = n
		}
	}
}

// ActiveBorrowers counts open loans borrowed within the trailing window.
// It measures recent activity, not all currently-open loans.
func (s *AnalyticsService) ActiveBorrowers(ctx context.Context) (int, error) {
	since := s.clock.Now().Add(-s.activityWindow)
	return s.repo.CountOpenLoansSince(ctx, since)
}

// OverdueLoans counts open loans whose due date has passed.
func (s *AnalyticsService) OverdueLoans(ctx context.Context) (int, error) {
	return s.repo.CountOverdueLoans(ctx, s.clock.Now())
}

// TopBorrowers ranks borrowers by all-time loan count, descending. Ties keep
// the store's natural order.
func (s *AnalyticsService) TopBorrowers(ctx context.Context) ([]domain.BorrowerRank, error) {
	return s.repo.TopBorrowers(ctx, s.topLimit)
}

// MonthlyActivity builds consecutive calendar-month buckets ending at the
// current month, oldest first. Buckets are keyed by (month, year), so "six
// months before January" correctly lands in July of the previous year via
// time.Date month normalization. Empty months report zero.
func (s *AnalyticsService) MonthlyActivity(ctx context.Context) ([]domain.MonthActivity, error) {
	now := s.clock.Now()

	type monthKey struct {
		month int
		year  int
	}

	starts := make([]time.Time, 0, s.monthsBack)
	for i := s.monthsBack - 1; i >= 0; i-- {
		starts = append(starts, time.Date(now.Year(), now.Month()-time.Month(i), 1, 0, 0, 0, 0, time.UTC))
	}
	since := starts[0]

	borrowRows, err := s.repo.CountLoansByMonth(ctx, since)
	if err != nil {
		return nil, err
	}
	returnRows, err := s.repo.CountReturnsByMonth(ctx, since)
	if err != nil {
		return nil, err
	}

	borrowed := make(map[monthKey]int, len(borrowRows))
	for _, row := range borrowRows {
		borrowed[monthKey{row.Month, row.Year}] = row.Count
	}
	returned := make(map[monthKey]int, len(returnRows))
	for _, row := range returnRows {
		returned[monthKey{row.Month, row.Year}] = row.Count
	}

	activity := make([]domain.MonthActivity, 0, len(starts))
	for _, start := range starts {
		key := monthKey{int(start.Month()), start.Year()}
		activity = append(activity, domain.MonthActivity{
			Label:   start.Format("Jan"),
			Borrows: borrowed[key],
			Returns: returned[key],
		})
	}
	return activity, nil
}

// Report composes all four aggregates. All-or-nothing: the first failing
// query aborts the whole report.
func (s *AnalyticsService) Report(ctx context.Context) (domain.Report, error) {
	active, err := s.ActiveBorrowers(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	overdue, err := s.OverdueLoans(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	top, err := s.TopBorrowers(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	activity, err := s.MonthlyActivity(ctx)
	if err != nil {
		return domain.Report{}, err
	}

	return domain.Report{
		ActiveBorrowers: active,
		OverdueBorrows:  overdue,
		TopBorrowers:    top,
		Activity:        activity,
	}, nil
}
