package wallet

import (
	"context"
	"time"

	"github.com/crsongirkar/YT-Platform/internal/models"
)

// Store opens isolated transactions over balances, entitlements and the transfer ledger.
//
// WithinTx commits when fn returns nil and rolls back otherwise. Implementations may run fn
// more than once when the database reports a serialization conflict, so fn must derive all of
// its decisions from reads made through the supplied Tx.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and writes available inside a transfer transaction. Lookups of missing
// rows return ErrNotFound.
type Tx interface {
	// Video reads a video without locking it.
	Video(ctx context.Context, videoID string) (models.Video, error)
	// VideoForUpdate reads a video and holds its row lock until the transaction ends.
	VideoForUpdate(ctx context.Context, videoID string) (models.Video, error)
	// AccountForUpdate reads an account and holds its row lock until the transaction ends.
	AccountForUpdate(ctx context.Context, accountID string) (models.User, error)
	IsEntitled(ctx context.Context, videoID, accountID string) (bool, error)
	// GrantEntitlement returns ErrConflict when the account already holds the entitlement.
	GrantEntitlement(ctx context.Context, videoID, accountID string, grantedAt time.Time) error
	// AdjustBalance applies delta and returns the resulting balance. It returns
	// ErrInsufficientFunds instead of committing a negative balance.
	AdjustBalance(ctx context.Context, accountID string, delta int64) (int64, error)
	InsertPurchase(ctx context.Context, purchase models.Purchase) error
	InsertGift(ctx context.Context, gift models.Gift) error
}
