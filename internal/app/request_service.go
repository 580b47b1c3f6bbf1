package app

import (
	"context"

	"github.com/openshelf/circulation/internal/domain"
)

type RequestRepository interface {
	DeleteRequest(ctx context.Context, id string) (domain.BookRequest, error)
}

// RequestService removes book requests. Delete-returning keeps the
// existence check and the delete in one statement.
type RequestService struct {
	repo RequestRepository
}

func NewRequestService(repo RequestRepository) *RequestService {
	return &RequestService{repo: repo}
}

func (s *RequestService) DeleteRequest(ctx context.Context, id string) (domain.BookRequest, error) {
	if id == "" {
		return domain.BookRequest{}, domain.ErrInvalidID
	}
	return s.repo.DeleteRequest(ctx, id)
}
