package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openshelf/circulation/internal/domain"
)

// AnalyticsRepository serves the read-only aggregation queries. It never
// joins the circulation write path and needs no transactions.
type AnalyticsRepository struct {
	pool *pgxpool.Pool
}

func NewAnalyticsRepository(pool *pgxpool.Pool) *AnalyticsRepository {
	return &AnalyticsRepository{pool: pool}
}

func (r *AnalyticsRepository) CountOpenLoansSince(ctx context.Context, since time.Time) (int, error) {
	const query = `
SELECT COUNT(*)
FROM loans
WHERE returned_at IS NULL AND borrowed_at > $1`

	var total int
	if err := r.pool.QueryRow(ctx, query, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("count open loans: %w", err)
	}
	return total, nil
}

func (r *AnalyticsRepository) CountOverdueLoans(ctx context.Context, now time.Time) (int, error) {
	const query = `
SELECT COUNT(*)
FROM loans
WHERE returned_at IS NULL AND due_date < $1`

	var total int
	if err := r.pool.QueryRow(ctx, query, now).Scan(&total); err != nil {
		return 0, fmt.Errorf("count overdue loans: %w", err)
	}
	return total, nil
}

func (r *AnalyticsRepository) TopBorrowers(ctx context.Context, limit int) ([]domain.BorrowerRank, error) {
	stmt := goqu.Dialect(dialectPostgres).
		From(goqu.T("users").As("u")).
		LeftJoin(goqu.T("loans").As("l"), goqu.On(goqu.I("u.id").Eq(goqu.I("l.user_id")))).
		Select(
			goqu.I("u.id"), goqu.I("u.name"), goqu.I("u.email"), goqu.I("u.image"),
			goqu.COUNT(goqu.I("l.id")).As("borrow_count"),
		).
		GroupBy(goqu.I("u.id"), goqu.I("u.name"), goqu.I("u.email"), goqu.I("u.image")).
		Order(goqu.COUNT(goqu.I("l.id")).Desc()).
		Limit(uint(limit))

	query, args, err := stmt.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build top borrowers query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("top borrowers: %w", err)
	}
	defer rows.Close()

	ranks := make([]domain.BorrowerRank, 0, limit)
	for rows.Next() {
		var rank domain.BorrowerRank
		if err := rows.Scan(&rank.UserID, &rank.Name, &rank.Email, &rank.Image, &rank.BorrowCount); err != nil {
			return nil, fmt.Errorf("scan borrower rank: %w", err)
		}
		ranks = append(ranks, rank)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top borrowers: %w", err)
	}
	return ranks, nil
}

func (r *AnalyticsRepository) CountLoansByMonth(ctx context.Context, since time.Time) ([]domain.MonthCount, error) {
	return r.countByMonth(ctx, "borrowed_at", goqu.I("borrowed_at").Gte(since))
}

func (r *AnalyticsRepository) CountReturnsByMonth(ctx context.Context, since time.Time) ([]domain.MonthCount, error) {
	return r.countByMonth(ctx, "returned_at",
		goqu.I("returned_at").IsNotNull(),
		goqu.I("returned_at").Gte(since),
	)
}

func (r *AnalyticsRepository) countByMonth(ctx context.Context, column string, conditions ...goqu.Expression) ([]domain.MonthCount, error) {
	monthExpr := goqu.L(fmt.Sprintf("EXTRACT(MONTH FROM %s)::int", column))
	yearExpr := goqu.L(fmt.Sprintf("EXTRACT(YEAR FROM %s)::int", column))

	stmt := goqu.Dialect(dialectPostgres).
		From("loans").
		Select(monthExpr.As("month"), yearExpr.As("year"), goqu.COUNT(goqu.Star()).As("count")).
		Where(conditions...).
		GroupBy(monthExpr, yearExpr)

	query, args, err := stmt.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build count by month query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count by month: %w", err)
	}
	defer rows.Close()

	return scanMonthCounts(rows)
}

func scanMonthCounts(rows pgx.Rows) ([]domain.MonthCount, error) {
	counts := make([]domain.MonthCount, 0)
	for rows.Next() {
		var mc domain.MonthCount
		if err := rows.Scan(&mc.Month, &mc.Year, &mc.Count); err != nil {
			return nil, fmt.Errorf("scan month count: %w", err)
		}
		counts = append(counts, mc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count by month: %w", err)
	}
	return counts, nil
}
