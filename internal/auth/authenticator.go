// Package auth validates the credential presented when a connection is
// opened and resolves it to an account.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/npezzotti/duochat/internal/database"
	"github.com/npezzotti/duochat/internal/types"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownUser  = errors.New("unknown user")
)

type AccountFinder interface {
	GetAccountById(ctx context.Context, id string) (database.User, error)
}

type Authenticator struct {
	signingKey []byte
	accounts   AccountFinder
}

func NewAuthenticator(signingKey []byte, accounts AccountFinder) *Authenticator {
	return &Authenticator{
		signingKey: signingKey,
		accounts:   accounts,
	}
}

// Authenticate resolves token to the user it was issued for. Errors wrap
// ErrMissingToken, ErrInvalidToken or ErrUnknownUser; any other error comes
// from the account lookup.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (types.User, error) {
	if token == "" {
		return types.User{}, ErrMissingToken
	}

	userId, err := ParseToken(token, a.signingKey)
	if err != nil {
		return types.User{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	account, err := a.accounts.GetAccountById(ctx, userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, fmt.Errorf("%w: %s", ErrUnknownUser, userId)
		}
		return types.User{}, fmt.Errorf("get account: %w", err)
	}

	return types.User{
		Id:           account.Id,
		Username:     account.Username,
		EmailAddress: account.EmailAddress,
		CreatedAt:    account.CreatedAt,
		UpdatedAt:    account.UpdatedAt,
	}, nil
}
