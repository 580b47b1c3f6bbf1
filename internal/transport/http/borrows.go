package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openshelf/circulation/internal/app"
	"github.com/openshelf/circulation/internal/domain"
)

// BorrowService is the minimal interface needed for the borrow endpoints.
type BorrowService interface {
	CreateLoan(ctx context.Context, in app.CreateLoanInput) (domain.Loan, error)
	CloseLoan(ctx context.Context, in app.CloseLoanInput) (domain.Loan, error)
	ListLoans(ctx context.Context, in app.ListLoansInput) ([]domain.LoanWithBook, error)
}

// HandleUserBorrows routes /users/{id}/borrows: list (GET), borrow (POST)
// and return (PATCH).
func HandleUserBorrows(svc BorrowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseUserBorrowsPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch r.Method {
		case http.MethodGet:
			handleListBorrows(svc, userID, w, r)
		case http.MethodPost:
			handleCreateBorrow(svc, userID, w, r)
		case http.MethodPatch:
			handleReturnBorrow(svc, userID, w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

func handleListBorrows(svc BorrowService, userID string, w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
		return
	}
	// Regular users can only list their own borrows.
	if !session.IsLibrarian() && session.UserID != userID {
		writeError(w, http.StatusForbidden, codeForbidden, "forbidden")
		return
	}

	query := r.URL.Query()

	status := domain.LoanStatusAll
	switch query.Get("status") {
	case "":
	case string(domain.LoanStatusActive):
		status = domain.LoanStatusActive
	case string(domain.LoanStatusReturned):
		status = domain.LoanStatusReturned
	default:
		writeError(w, http.StatusBadRequest, codeInvalidStatus, "status must be active or returned")
		return
	}

	limit, err := parseNonNegative(query.Get("limit"), defaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidPagination, "limit must be a non-negative integer")
		return
	}
	offset, err := parseNonNegative(query.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidPagination, "offset must be a non-negative integer")
		return
	}

	loans, err := svc.ListLoans(r.Context(), app.ListLoansInput{
		UserID: userID,
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeBorrowError(w, err)
		return
	}

	resp := make([]borrowResponse, 0, len(loans))
	for _, loan := range loans {
		resp = append(resp, newBorrowResponse(loan))
	}
	writeJSON(w, http.StatusOK, resp)
}

func handleCreateBorrow(svc BorrowService, userID string, w http.ResponseWriter, r *http.Request) {
	// Only librarians hand out copies.
	if !requireLibrarian(w, r) {
		return
	}

	var req createBorrowRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	if req.BookID == "" || req.DueDate == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "book_id and due_date are required")
		return
	}

	// Accepted as given; no "must be in the future" policy.
	dueDate, err := time.Parse(time.RFC3339, req.DueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidDueDate, "invalid due_date format")
		return
	}

	loan, err := svc.CreateLoan(r.Context(), app.CreateLoanInput{
		UserID:  userID,
		BookID:  req.BookID,
		DueDate: dueDate,
	})
	if err != nil {
		writeBorrowError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newLoanResponse(loan))
}

func handleReturnBorrow(svc BorrowService, userID string, w http.ResponseWriter, r *http.Request) {
	if !requireLibrarian(w, r) {
		return
	}

	var req returnBorrowRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	if req.BorrowID == "" {
		writeError(w, http.StatusBadRequest, codeMissingField, "borrow_id is required")
		return
	}

	loan, err := svc.CloseLoan(r.Context(), app.CloseLoanInput{
		UserID: userID,
		LoanID: req.BorrowID,
	})
	if err != nil {
		writeBorrowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newLoanResponse(loan))
}

// writeBorrowError maps circulation errors to statuses. An unavailable copy
// is reported as 404 like an absent one; the code field tells them apart.
func writeBorrowError(w http.ResponseWriter, err error) {
	switch err {
	case domain.ErrUserNotFound:
		writeError(w, http.StatusNotFound, codeUserNotFound, err.Error())
	case domain.ErrBookNotFound:
		writeError(w, http.StatusNotFound, codeBookNotFound, err.Error())
	case domain.ErrBookUnavailable:
		writeError(w, http.StatusNotFound, codeBookNotAvailable, err.Error())
	case domain.ErrLoanNotFound:
		writeError(w, http.StatusNotFound, codeBorrowNotFound, err.Error())
	case domain.ErrInvalidID:
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func parseUserBorrowsPath(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/users/")
	if !ok {
		return "", false
	}
	userID, ok := strings.CutSuffix(rest, "/borrows")
	if !ok || userID == "" || strings.Contains(userID, "/") {
		return "", false
	}
	return userID, true
}

// defaultListLimit applies only when the limit parameter is absent. An
// explicit limit=0 stays 0 and yields an empty page.
const defaultListLimit = 10

func parseNonNegative(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

type createBorrowRequest struct {
	BookID  string `json:"book_id"`
	DueDate string `json:"due_date"`
}

type returnBorrowRequest struct {
	BorrowID string `json:"borrow_id"`
}

type loanResponse struct {
	ID         string     `json:"id"`
	BookID     string     `json:"book_id"`
	UserID     string     `json:"user_id"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	DueDate    time.Time  `json:"due_date"`
	ReturnedAt *time.Time `json:"returned_at"`
}

func newLoanResponse(loan domain.Loan) loanResponse {
	return loanResponse{
		ID:         loan.ID,
		BookID:     loan.BookID,
		UserID:     loan.UserID,
		BorrowedAt: loan.BorrowedAt,
		DueDate:    loan.DueDate,
		ReturnedAt: loan.ReturnedAt,
	}
}

type borrowResponse struct {
	loanResponse
	Book bookSummary `json:"book"`
}

type bookSummary struct {
	Title      string `json:"title"`
	Author     string `json:"author"`
	CoverImage string `json:"cover_image"`
	ISBN       string `json:"isbn"`
}

func newBorrowResponse(loan domain.LoanWithBook) borrowResponse {
	return borrowResponse{
		loanResponse: newLoanResponse(loan.Loan),
		Book: bookSummary{
			Title:      loan.BookTitle,
			Author:     loan.BookAuthor,
			CoverImage: loan.BookCoverImage,
			ISBN:       loan.BookISBN,
		},
	}
}
