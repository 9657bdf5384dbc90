package database

import (
	"context"
	"time"
)

type ChatRepository interface {
	Ping() error
	CreateAccount(ctx context.Context, params CreateAccountParams) (User, error)
	GetAccountById(ctx context.Context, id string) (User, error)
	GetAccountByEmail(ctx context.Context, email string) (User, error)
	PresenceStore
}

// PresenceStore is an external user-record store for last-seen state.
type PresenceStore interface {
	UpdatePresence(ctx context.Context, userId string, online bool, lastSeen time.Time) error
	LastSeen(ctx context.Context, userId string) (time.Time, bool, error)
}
