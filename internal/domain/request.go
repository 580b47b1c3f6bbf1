package domain

import "time"

// BookRequest is a reader's request for a title the library does not stock.
type BookRequest struct {
	ID        string
	UserID    string
	Title     string
	Author    string
	CreatedAt time.Time
}
