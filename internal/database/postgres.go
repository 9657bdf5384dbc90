package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type PgChatRepository struct {
	conn *sql.DB
}

func NewPgChatRepository(dsn string) (*PgChatRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgChatRepository{conn: db}, nil
}

func (db *PgChatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *PgChatRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgChatRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"INSERT INTO accounts (id, username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, username, email, created_at, updated_at",
		params.Id,
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgChatRepository) GetAccountById(ctx context.Context, id string) (User, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"SELECT id, username, email, is_online, last_seen, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.IsOnline,
		&u.LastSeen,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgChatRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

// UpdatePresence records the online flag and last-seen time of an account.
func (db *PgChatRepository) UpdatePresence(ctx context.Context, userId string, online bool, lastSeen time.Time) error {
	res, err := db.conn.ExecContext(
		ctx,
		"UPDATE accounts SET is_online = $2, last_seen = $3, updated_at = $4 WHERE id = $1",
		userId,
		online,
		lastSeen.UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// LastSeen returns the stored last-seen time, or false if the account has
// never connected.
func (db *PgChatRepository) LastSeen(ctx context.Context, userId string) (time.Time, bool, error) {
	var lastSeen sql.NullTime
	err := db.conn.QueryRowContext(ctx, "SELECT last_seen FROM accounts WHERE id = $1", userId).Scan(&lastSeen)
	if err != nil {
		return time.Time{}, false, err
	}

	return lastSeen.Time, lastSeen.Valid, nil
}
