package models

import "time"

// User represents an account within the platform, including its wallet balance.
type User struct {
	ID          string
	Email       string
	Password    string
	DisplayName string
	Balance     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Video content classes.
const (
	VideoTypeShort = "short"
	VideoTypeLong  = "long"
)

// Video is an uploaded asset owned by a creator account.
type Video struct {
	ID           string
	OwnerID      string
	Title        string
	Description  string
	VideoType    string
	Price        int64
	VideoURL     string
	StoragePath  string
	ThumbnailURL string
	ViewCount    int64
	CreatedAt    time.Time
}

// IsPaid reports whether viewers must hold an entitlement to play the video.
// Short-form videos are always free regardless of the stored price.
func (v Video) IsPaid() bool {
	return v.VideoType == VideoTypeLong && v.Price > 0
}

// Purchase is the ledger record of a completed video purchase. Amount is the
// price charged at the time of purchase.
type Purchase struct {
	ID        string
	BuyerID   string
	VideoID   string
	Amount    int64
	CreatedAt time.Time
}

// Gift is the ledger record of a tip sent from a viewer to a video's creator.
type Gift struct {
	ID         string
	SenderID   string
	ReceiverID string
	VideoID    string
	Amount     int64
	CreatedAt  time.Time
}

// PurchaseEntry joins a purchase with the title of the purchased video.
type PurchaseEntry struct {
	Purchase
	VideoTitle string
	VideoType  string
}

// GiftEntry joins a received gift with its sender and video details.
type GiftEntry struct {
	Gift
	SenderName string
	VideoTitle string
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
