package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openshelf/circulation/internal/domain"
)

type RequestRepository struct {
	pool *pgxpool.Pool
}

func NewRequestRepository(pool *pgxpool.Pool) *RequestRepository {
	return &RequestRepository{pool: pool}
}

func (r *RequestRepository) DeleteRequest(ctx context.Context, id string) (domain.BookRequest, error) {
	const stmt = `
DELETE FROM book_requests
WHERE id = $1
RETURNING id, user_id, title, author, created_at`

	var req domain.BookRequest
	err := r.pool.QueryRow(ctx, stmt, id).
		Scan(&req.ID, &req.UserID, &req.Title, &req.Author, &req.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.BookRequest{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.BookRequest{}, domain.ErrRequestNotFound
		}
		return domain.BookRequest{}, fmt.Errorf("delete request: %w", err)
	}
	return req, nil
}
