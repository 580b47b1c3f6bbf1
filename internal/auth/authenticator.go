package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/openshelf/circulation/internal/domain"
)

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
}

// Authenticator exchanges credentials for a bearer token.
type Authenticator struct {
	users  UserStore
	tokens *TokenManager
}

func NewAuthenticator(users UserStore, tokens *TokenManager) *Authenticator {
	return &Authenticator{users: users, tokens: tokens}
}

// Login verifies the password against the stored bcrypt hash and issues a
// token. Unknown email and wrong password are indistinguishable to the caller.
func (a *Authenticator) Login(ctx context.Context, email, password string) (string, error) {
	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		if err == domain.ErrUserNotFound {
			return "", domain.ErrInvalidCredentials
		}
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", domain.ErrInvalidCredentials
	}
	return a.tokens.Issue(user)
}

// HashPassword produces a bcrypt hash for seeding and user creation.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
