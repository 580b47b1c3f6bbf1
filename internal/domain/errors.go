package domain

import "errors"

var (
	ErrBookNotFound       = errors.New("book not found")
	ErrBookUnavailable    = errors.New("book not available")
	ErrUserNotFound       = errors.New("user not found")
	ErrLoanNotFound       = errors.New("borrow not found or already returned")
	ErrRequestNotFound    = errors.New("request not found")
	ErrInvalidID          = errors.New("invalid id")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
