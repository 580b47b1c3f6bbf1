package domain

import "time"

// Book is a lendable copy in the catalog. Available is false exactly while an
// open loan references the copy; only the circulation service writes it.
type Book struct {
	ID         string
	Title      string
	Author     string
	ISBN       string
	CoverImage string
	Available  bool
	CreatedAt  time.Time
}
