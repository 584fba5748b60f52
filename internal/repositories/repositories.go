package repositories

import (
	"context"

	"github.com/crsongirkar/YT-Platform/internal/auth"
	"github.com/crsongirkar/YT-Platform/internal/models"
	"github.com/crsongirkar/YT-Platform/internal/wallet"
)

// UserRepository stores accounts and their balances.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	Update(ctx context.Context, user models.User) error
}

// VideoRepository exposes uploaded videos and the entitlements granted on them.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	List(ctx context.Context, limit, offset int) ([]models.Video, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Video, error)
	IncrementViews(ctx context.Context, id string) error
	IsEntitled(ctx context.Context, videoID, accountID string) (bool, error)
}

// LedgerRepository reads the append-only purchase and gift history.
type LedgerRepository interface {
	PurchasesByBuyer(ctx context.Context, buyerID string) ([]models.PurchaseEntry, error)
	GiftsReceived(ctx context.Context, receiverID string) ([]models.GiftEntry, error)
}

var (
	_ UserRepository    = (*PostgresUserRepository)(nil)
	_ VideoRepository   = (*PostgresVideoRepository)(nil)
	_ LedgerRepository  = (*PostgresLedgerRepository)(nil)
	_ auth.SessionStore = (*PostgresSessionStore)(nil)
	_ wallet.Store      = (*PostgresTransferStore)(nil)
)
