package database

import (
	"database/sql"
	"time"
)

type User struct {
	Id           string
	Username     string
	EmailAddress string
	PasswordHash string
	IsOnline     bool
	LastSeen     sql.NullTime
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateAccountParams struct {
	Id           string
	Username     string
	EmailAddress string
	PasswordHash string
}
