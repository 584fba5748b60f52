package handlers

import (
	"context"
	"io"

	"github.com/crsongirkar/YT-Platform/internal/access"
	"github.com/crsongirkar/YT-Platform/internal/models"
	"github.com/crsongirkar/YT-Platform/internal/storage"
	"github.com/crsongirkar/YT-Platform/internal/wallet"
)

// UserStore captures the persistence operations required by the auth and account handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
}

// SessionManager issues, rotates and revokes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string)
}

// VideoStore captures persistence for uploaded videos.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	List(ctx context.Context, limit, offset int) ([]models.Video, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Video, error)
	IncrementViews(ctx context.Context, id string) error
}

// LedgerStore reads an account's transfer history.
type LedgerStore interface {
	PurchasesByBuyer(ctx context.Context, buyerID string) ([]models.PurchaseEntry, error)
	GiftsReceived(ctx context.Context, receiverID string) ([]models.GiftEntry, error)
}

// ObjectStorage persists uploaded video files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, r io.Reader, opts storage.SaveOptions) (string, error)
	Delete(ctx context.Context, key string) error
}

// AccessResolver decides whether an account may play a video.
type AccessResolver interface {
	Resolve(ctx context.Context, accountID, videoID string) (access.Access, error)
	ResolveVideo(ctx context.Context, accountID string, video models.Video) (access.Access, error)
}

// TransferEngine moves balance between accounts for purchases and gifts.
type TransferEngine interface {
	Purchase(ctx context.Context, buyerID, videoID string) (wallet.PurchaseResult, error)
	Gift(ctx context.Context, senderID, videoID string, amount int64) (wallet.GiftResult, error)
}
