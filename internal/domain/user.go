package domain

const RoleLibrarian = "LIBRARIAN"

// User is a borrower. Owned by the auth/user boundary, referenced by loans.
type User struct {
	ID           string
	Name         string
	Email        string
	Image        string
	PasswordHash string
	Role         string
}
