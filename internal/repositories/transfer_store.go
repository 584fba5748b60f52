package repositories

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/crdb"
	"github.com/jackc/pgx/v5"

	"github.com/crsongirkar/YT-Platform/internal/db"
	"github.com/crsongirkar/YT-Platform/internal/models"
	"github.com/crsongirkar/YT-Platform/internal/wallet"
)

const (
	defaultTransferRetries = 20
	transferBaseBackoff    = 5 * time.Millisecond
	transferMaxBackoff     = 250 * time.Millisecond
)

// PostgresTransferStore runs wallet transactions against PostgreSQL or CockroachDB. Every
// attempt is a fresh SERIALIZABLE transaction, re-run from the start when the database reports a
// serialization failure (SQLSTATE 40001) during a statement or at COMMIT.
type PostgresTransferStore struct {
	pool       db.Pool
	maxRetries int
}

// TransferStoreOption customises a PostgresTransferStore.
type TransferStoreOption func(*PostgresTransferStore)

// WithMaxRetries bounds how many times a transaction is re-run after a serialization failure.
func WithMaxRetries(retries int) TransferStoreOption {
	return func(s *PostgresTransferStore) {
		if retries >= 0 {
			s.maxRetries = retries
		}
	}
}

// NewPostgresTransferStore constructs a transfer store backed by the provided pool.
func NewPostgresTransferStore(pool db.Pool, opts ...TransferStoreOption) *PostgresTransferStore {
	s := &PostgresTransferStore{pool: pool, maxRetries: defaultTransferRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithinTx implements wallet.Store. It reports success only after COMMIT succeeded; a COMMIT
// that fails for any reason other than a serialization failure is returned to the caller.
func (s *PostgresTransferStore) WithinTx(ctx context.Context, fn func(tx wallet.Tx) error) error {
	attempt := 0
	// crdb.WithMaxRetries treats zero as unlimited, so a single attempt is run directly.
	if s.maxRetries == 0 {
		return s.runOnce(ctx, fn)
	}
	return crdb.ExecuteCtx(crdb.WithMaxRetries(ctx, s.maxRetries), func(ctx context.Context, _ ...interface{}) error {
		if err := sleepContext(ctx, transferBackoff(attempt)); err != nil {
			return err
		}
		attempt++
		return s.runOnce(ctx, fn)
	})
}

func (s *PostgresTransferStore) runOnce(ctx context.Context, fn func(tx wallet.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transfer transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(&pgTransferTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transfer transaction: %w", err)
	}
	return nil
}

// transferBackoff doubles from transferBaseBackoff on each retry, capped at transferMaxBackoff,
// with up to half of the delay added as jitter so contending transactions spread out.
func transferBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	backoff := transferBaseBackoff << (attempt - 1)
	if backoff <= 0 || backoff > transferMaxBackoff {
		backoff = transferMaxBackoff
	}
	return backoff + rand.N(backoff/2+1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type pgTransferTx struct {
	tx pgx.Tx
}

func (t *pgTransferTx) Video(ctx context.Context, videoID string) (models.Video, error) {
	return t.video(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, videoID)
}

func (t *pgTransferTx) VideoForUpdate(ctx context.Context, videoID string) (models.Video, error) {
	return t.video(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1 FOR UPDATE`, videoID)
}

func (t *pgTransferTx) video(ctx context.Context, sql, videoID string) (models.Video, error) {
	video, err := scanVideo(t.tx.QueryRow(ctx, sql, videoID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, wallet.ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video %s: %w", videoID, err)
	}
	return video, nil
}

func (t *pgTransferTx) AccountForUpdate(ctx context.Context, accountID string) (models.User, error) {
	row := t.tx.QueryRow(ctx, `
        SELECT id, email, display_name, balance, created_at, updated_at
        FROM users
        WHERE id = $1
        FOR UPDATE
    `, accountID)

	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.Balance, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, wallet.ErrNotFound
		}
		return models.User{}, fmt.Errorf("select account %s: %w", accountID, err)
	}
	return user, nil
}

func (t *pgTransferTx) IsEntitled(ctx context.Context, videoID, accountID string) (bool, error) {
	var exists bool
	if err := t.tx.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM video_entitlements WHERE video_id = $1 AND user_id = $2
        )
    `, videoID, accountID).Scan(&exists); err != nil {
		return false, fmt.Errorf("select entitlement: %w", err)
	}
	return exists, nil
}

func (t *pgTransferTx) GrantEntitlement(ctx context.Context, videoID, accountID string, grantedAt time.Time) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO video_entitlements (video_id, user_id, granted_at)
        VALUES ($1, $2, $3)
    `, videoID, accountID, grantedAt)
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return wallet.ErrConflict
		case pgForeignKeyViolation:
			return wallet.ErrNotFound
		}
		return fmt.Errorf("insert entitlement: %w", err)
	}
	return nil
}

func (t *pgTransferTx) AdjustBalance(ctx context.Context, accountID string, delta int64) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx, `
        UPDATE users
        SET balance = balance + $2, updated_at = NOW()
        WHERE id = $1
        RETURNING balance
    `, accountID, delta).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, wallet.ErrNotFound
		}
		if pgErrorCode(err) == pgCheckViolation {
			return 0, wallet.ErrInsufficientFunds
		}
		return 0, fmt.Errorf("adjust balance of %s: %w", accountID, err)
	}
	return balance, nil
}

func (t *pgTransferTx) InsertPurchase(ctx context.Context, purchase models.Purchase) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO purchases (id, buyer_id, video_id, amount, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, purchase.ID, purchase.BuyerID, purchase.VideoID, purchase.Amount, purchase.CreatedAt)
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return wallet.ErrConflict
		}
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

func (t *pgTransferTx) InsertGift(ctx context.Context, gift models.Gift) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO gifts (id, sender_id, receiver_id, video_id, amount, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, gift.ID, gift.SenderID, gift.ReceiverID, gift.VideoID, gift.Amount, gift.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert gift: %w", err)
	}
	return nil
}
