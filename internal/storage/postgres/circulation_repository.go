package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openshelf/circulation/internal/domain"
)

const dialectPostgres = "postgres"

type CirculationRepository struct {
	pool *pgxpool.Pool
}

func NewCirculationRepository(pool *pgxpool.Pool) *CirculationRepository {
	return &CirculationRepository{pool: pool}
}

func (r *CirculationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *CirculationRepository) GetBookForUpdate(ctx context.Context, bookID string) (domain.Book, error) {
	const query = `
SELECT id, title, author, isbn, cover_image, available, created_at
FROM books
WHERE id = $1
FOR UPDATE`

	var b domain.Book
	err := r.queryRow(ctx, query, bookID).
		Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.CoverImage, &b.Available, &b.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Book{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Book{}, domain.ErrBookNotFound
		}
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

func (r *CirculationRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`

	var exists bool
	if err := r.queryRow(ctx, query, userID).Scan(&exists); err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("user exists: %w", err)
	}
	return exists, nil
}

func (r *CirculationRepository) CreateLoan(ctx context.Context, loan domain.Loan) error {
	const stmt = `
INSERT INTO loans (id, book_id, user_id, borrowed_at, due_date, returned_at)
VALUES ($1, $2, $3, $4, $5, NULL)`

	_, err := r.exec(ctx, stmt,
		loan.ID,
		loan.BookID,
		loan.UserID,
		loan.BorrowedAt,
		loan.DueDate,
	)
	if err != nil {
		// The partial unique index on open loans backs the one-open-loan-per-copy
		// invariant even if a caller bypasses the row lock.
		if isUniqueViolation(err) {
			return domain.ErrBookUnavailable
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create loan: %w", err)
	}
	return nil
}

func (r *CirculationRepository) GetOpenLoanForUpdate(ctx context.Context, loanID, userID string) (domain.Loan, error) {
	const query = `
SELECT id, book_id, user_id, borrowed_at, due_date, returned_at
FROM loans
WHERE id = $1 AND user_id = $2 AND returned_at IS NULL
FOR UPDATE`

	var l domain.Loan
	err := r.queryRow(ctx, query, loanID, userID).
		Scan(&l.ID, &l.BookID, &l.UserID, &l.BorrowedAt, &l.DueDate, &l.ReturnedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Loan{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Loan{}, domain.ErrLoanNotFound
		}
		return domain.Loan{}, fmt.Errorf("get open loan: %w", err)
	}
	return l, nil
}

func (r *CirculationRepository) MarkLoanReturned(ctx context.Context, loanID string, returnedAt time.Time) error {
	const stmt = `UPDATE loans SET returned_at = $2 WHERE id = $1 AND returned_at IS NULL`

	tag, err := r.exec(ctx, stmt, loanID, returnedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("mark loan returned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLoanNotFound
	}
	return nil
}

func (r *CirculationRepository) SetBookAvailability(ctx context.Context, bookID string, available bool) error {
	const stmt = `UPDATE books SET available = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, bookID, available)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("set book availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookNotFound
	}
	return nil
}

func (r *CirculationRepository) ListLoansByUser(ctx context.Context, userID string, status domain.LoanStatusFilter, limit, offset int) ([]domain.LoanWithBook, error) {
	// The status filter and pagination vary per call, so this one is built
	// with goqu instead of const SQL.
	stmt := goqu.Dialect(dialectPostgres).
		From(goqu.T("loans").As("l")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("l.book_id").Eq(goqu.I("b.id")))).
		Select(
			goqu.I("l.id"), goqu.I("l.book_id"), goqu.I("l.user_id"),
			goqu.I("l.borrowed_at"), goqu.I("l.due_date"), goqu.I("l.returned_at"),
			goqu.I("b.title"), goqu.I("b.author"), goqu.I("b.cover_image"), goqu.I("b.isbn"),
		).
		Where(goqu.I("l.user_id").Eq(userID)).
		Order(goqu.I("l.borrowed_at").Desc()).
		Limit(uint(limit)).
		Offset(uint(offset))

	switch status {
	case domain.LoanStatusActive:
		stmt = stmt.Where(goqu.I("l.returned_at").IsNull())
	case domain.LoanStatusReturned:
		stmt = stmt.Where(goqu.I("l.returned_at").IsNotNull())
	}

	query, args, err := stmt.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list loans query: %w", err)
	}

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	loans := make([]domain.LoanWithBook, 0)
	for rows.Next() {
		var l domain.LoanWithBook
		if err := rows.Scan(
			&l.ID, &l.BookID, &l.UserID,
			&l.BorrowedAt, &l.DueDate, &l.ReturnedAt,
			&l.BookTitle, &l.BookAuthor, &l.BookCoverImage, &l.BookISBN,
		); err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return loans, nil
}

func (r *CirculationRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *CirculationRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *CirculationRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
