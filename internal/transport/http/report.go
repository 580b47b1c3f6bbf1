package http

import (
	"context"
	"net/http"

	"github.com/openshelf/circulation/internal/domain"
)

// Reporter is the minimal interface needed for the dashboard report.
type Reporter interface {
	Report(ctx context.Context) (domain.Report, error)
}

// HandleActivityReport returns the composed dashboard aggregate. Any
// constituent query failing fails the whole report.
func HandleActivityReport(svc Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}
		if _, ok := sessionFrom(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
			return
		}

		report, err := svc.Report(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, newReportResponse(report))
	}
}

// Field names follow the dashboard's existing contract.
type reportResponse struct {
	ActiveBorrowers int                `json:"activeBorrowers"`
	OverdueBorrows  int                `json:"overdueBorrows"`
	TopBorrowers    []borrowerRankJSON `json:"topBorrowers"`
	Activity        []monthJSON        `json:"activity"`
}

type borrowerRankJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Image       string `json:"image"`
	BorrowCount int    `json:"borrowCount"`
}

type monthJSON struct {
	Date    string `json:"date"`
	Borrows int    `json:"borrows"`
	Returns int    `json:"returns"`
}

func newReportResponse(report domain.Report) reportResponse {
	top := make([]borrowerRankJSON, 0, len(report.TopBorrowers))
	for _, rank := range report.TopBorrowers {
		top = append(top, borrowerRankJSON{
			ID:          rank.UserID,
			Name:        rank.Name,
			Email:       rank.Email,
			Image:       rank.Image,
			BorrowCount: rank.BorrowCount,
		})
	}
	activity := make([]monthJSON, 0, len(report.Activity))
	for _, month := range report.Activity {
		activity = append(activity, monthJSON{
			Date:    month.Label,
			Borrows: month.Borrows,
			Returns: month.Returns,
		})
	}
	return reportResponse{
		ActiveBorrowers: report.ActiveBorrowers,
		OverdueBorrows:  report.OverdueBorrows,
		TopBorrowers:    top,
		Activity:        activity,
	}
}
