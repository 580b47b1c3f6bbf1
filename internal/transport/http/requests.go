package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/openshelf/circulation/internal/domain"
)

// RequestDeleter is the minimal interface needed for request removal.
type RequestDeleter interface {
	DeleteRequest(ctx context.Context, id string) (domain.BookRequest, error)
}

// HandleDeleteRequest removes a book request (librarian only).
func HandleDeleteRequest(svc RequestDeleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}
		if !requireLibrarian(w, r) {
			return
		}

		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/requests/"), "/")
		if id == "" || strings.Contains(id, "/") {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		req, err := svc.DeleteRequest(r.Context(), id)
		if err != nil {
			switch err {
			case domain.ErrRequestNotFound:
				writeError(w, http.StatusNotFound, codeRequestNotFound, err.Error())
			case domain.ErrInvalidID:
				writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		writeJSON(w, http.StatusOK, requestResponse{
			ID:        req.ID,
			UserID:    req.UserID,
			Title:     req.Title,
			Author:    req.Author,
			CreatedAt: req.CreatedAt,
		})
	}
}

type requestResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}
