package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crsongirkar/YT-Platform/internal/auth"
	"github.com/crsongirkar/YT-Platform/internal/db"
)

// PostgresSessionStore keeps refresh token digests in the sessions table.
type PostgresSessionStore struct {
	pool db.Pool
}

func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// Save upserts the session keyed by its token digest.
func (s *PostgresSessionStore) Save(ctx context.Context, session auth.Session) error {
	return s.exec(ctx, "save session", func(conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, `
            INSERT INTO sessions (token_hash, user_id, expires_at)
            VALUES ($1, $2, $3)
            ON CONFLICT (token_hash)
            DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at
        `, session.TokenHash, session.UserID, session.ExpiresAt.UTC())
		return err
	})
}

func (s *PostgresSessionStore) Find(ctx context.Context, tokenHash string) (auth.Session, error) {
	var session auth.Session
	err := s.exec(ctx, "find session", func(conn *pgxpool.Conn) error {
		var expiresAt time.Time
		err := conn.QueryRow(ctx, `
            SELECT token_hash, user_id, expires_at
            FROM sessions
            WHERE token_hash = $1
        `, tokenHash).Scan(&session.TokenHash, &session.UserID, &expiresAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.ErrSessionNotFound
		}
		session.ExpiresAt = expiresAt.UTC()
		return err
	})
	if err != nil {
		return auth.Session{}, err
	}
	return session, nil
}

// Delete removes the session. Deleting a session that no longer exists reports
// auth.ErrSessionNotFound, which is how a refresh token rotated twice is detected.
func (s *PostgresSessionStore) Delete(ctx context.Context, tokenHash string) error {
	return s.exec(ctx, "delete session", func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return auth.ErrSessionNotFound
		}
		return nil
	})
}

// DeleteExpired removes sessions that expired before cutoff and returns how many were dropped.
func (s *PostgresSessionStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.exec(ctx, "purge sessions", func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff.UTC())
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()
		return nil
	})
	return removed, err
}

// exec runs fn on a pooled connection, wrapping unexpected failures with op. Sentinel auth
// errors pass through unwrapped.
func (s *PostgresSessionStore) exec(ctx context.Context, op string, fn func(conn *pgxpool.Conn) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := fn(conn); err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
