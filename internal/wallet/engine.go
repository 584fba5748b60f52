package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crsongirkar/YT-Platform/internal/events"
	"github.com/crsongirkar/YT-Platform/internal/logging"
	"github.com/crsongirkar/YT-Platform/internal/models"
)

// ReferenceMinter derives the playable reference handed to a viewer entitled to a video.
type ReferenceMinter interface {
	Reference(ctx context.Context, video models.Video) (string, error)
}

// Notifier receives events for transfers that have been committed.
type Notifier interface {
	Enqueue(ctx context.Context, event events.Event) error
}

// PurchaseResult is returned by a successful purchase. AccessURL is empty when the reference
// could not be minted after commit; the purchase itself stands.
type PurchaseResult struct {
	NewBalance int64
	AccessURL  string
	Purchase   models.Purchase
}

// GiftResult is returned by a successful gift.
type GiftResult struct {
	NewBalance int64
	Gift       models.Gift
}

// Engine executes purchases and gifts as single atomic transactions.
type Engine struct {
	store    Store
	minter   ReferenceMinter
	notifier Notifier
	now      func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithNotifier publishes committed transfers to n.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithNowFunc overrides the clock used to timestamp ledger records.
func WithNowFunc(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine constructs an Engine over the provided store.
func NewEngine(store Store, minter ReferenceMinter, opts ...Option) *Engine {
	if store == nil {
		panic("wallet: store must not be nil")
	}
	e := &Engine{
		store:  store,
		minter: minter,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Purchase debits the buyer by the video's price, entitles the buyer to the video and records
// the purchase, all in one transaction.
func (e *Engine) Purchase(ctx context.Context, buyerID, videoID string) (PurchaseResult, error) {
	ctx, span := logging.StartSpan(ctx, "wallet.purchase")
	defer span.End()
	logger := logging.FromContext(ctx).With(slog.String("buyerId", buyerID), slog.String("videoId", videoID))

	if strings.TrimSpace(buyerID) == "" || strings.TrimSpace(videoID) == "" {
		return PurchaseResult{}, newError(ErrInvalidArgument, "buyer and video are required")
	}

	var (
		result PurchaseResult
		video  models.Video
	)
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		result = PurchaseResult{}

		v, err := tx.VideoForUpdate(ctx, videoID)
		if err != nil {
			return lookupError(err, "video not found")
		}
		if !v.IsPaid() {
			return newError(ErrInvalidOperation, "this video is free, nothing to purchase")
		}
		if v.OwnerID == buyerID {
			return newError(ErrConflict, "you already own this video")
		}

		owned, err := tx.IsEntitled(ctx, v.ID, buyerID)
		if err != nil {
			return err
		}
		if owned {
			return newError(ErrConflict, "you already own this video")
		}

		buyer, err := tx.AccountForUpdate(ctx, buyerID)
		if err != nil {
			return lookupError(err, "account not found")
		}
		if buyer.Balance < v.Price {
			return newError(ErrInsufficientFunds, "insufficient balance")
		}

		balance, err := tx.AdjustBalance(ctx, buyerID, -v.Price)
		if err != nil {
			return err
		}

		now := e.now()
		if err := tx.GrantEntitlement(ctx, v.ID, buyerID, now); err != nil {
			return err
		}

		purchase := models.Purchase{
			ID:        uuid.NewString(),
			BuyerID:   buyerID,
			VideoID:   v.ID,
			Amount:    v.Price,
			CreatedAt: now,
		}
		if err := tx.InsertPurchase(ctx, purchase); err != nil {
			return err
		}

		video = v
		result.NewBalance = balance
		result.Purchase = purchase
		return nil
	})
	if err != nil {
		err = classify(logger, "purchase", err)
		span.SetError(err)
		return PurchaseResult{}, err
	}

	logger.Info("video purchased", slog.Int64("amount", result.Purchase.Amount), slog.Int64("newBalance", result.NewBalance))

	if e.minter != nil {
		url, err := e.minter.Reference(ctx, video)
		if err != nil {
			logger.Warn("mint access reference after purchase", "error", err)
		} else {
			result.AccessURL = url
		}
	}

	e.notify(ctx, logger, events.Event{
		Type:           events.TypePurchaseCompleted,
		RecordID:       result.Purchase.ID,
		VideoID:        video.ID,
		ActorID:        buyerID,
		CounterpartyID: video.OwnerID,
		Amount:         result.Purchase.Amount,
		OccurredAt:     result.Purchase.CreatedAt,
	})

	return result, nil
}

// Gift moves amount from the sender to the creator of the video in one transaction.
func (e *Engine) Gift(ctx context.Context, senderID, videoID string, amount int64) (GiftResult, error) {
	ctx, span := logging.StartSpan(ctx, "wallet.gift")
	defer span.End()
	logger := logging.FromContext(ctx).With(slog.String("senderId", senderID), slog.String("videoId", videoID))

	if amount <= 0 {
		return GiftResult{}, newError(ErrInvalidArgument, "invalid gift amount")
	}
	if strings.TrimSpace(senderID) == "" || strings.TrimSpace(videoID) == "" {
		return GiftResult{}, newError(ErrInvalidArgument, "sender and video are required")
	}

	var result GiftResult
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		result = GiftResult{}

		v, err := tx.Video(ctx, videoID)
		if err != nil {
			return lookupError(err, "video not found")
		}
		if v.OwnerID == senderID {
			return newError(ErrInvalidOperation, "you cannot gift yourself")
		}

		accounts, err := lockAccounts(ctx, tx, senderID, v.OwnerID)
		if err != nil {
			return err
		}
		sender := accounts[senderID]
		if sender.Balance < amount {
			return newError(ErrInsufficientFunds, "insufficient balance")
		}

		balance, err := tx.AdjustBalance(ctx, senderID, -amount)
		if err != nil {
			return err
		}
		if _, err := tx.AdjustBalance(ctx, v.OwnerID, amount); err != nil {
			return err
		}

		gift := models.Gift{
			ID:         uuid.NewString(),
			SenderID:   senderID,
			ReceiverID: v.OwnerID,
			VideoID:    v.ID,
			Amount:     amount,
			CreatedAt:  e.now(),
		}
		if err := tx.InsertGift(ctx, gift); err != nil {
			return err
		}

		result.NewBalance = balance
		result.Gift = gift
		return nil
	})
	if err != nil {
		err = classify(logger, "gift", err)
		span.SetError(err)
		return GiftResult{}, err
	}

	logger.Info("gift sent", slog.String("receiverId", result.Gift.ReceiverID), slog.Int64("amount", amount), slog.Int64("newBalance", result.NewBalance))

	e.notify(ctx, logger, events.Event{
		Type:           events.TypeGiftSent,
		RecordID:       result.Gift.ID,
		VideoID:        result.Gift.VideoID,
		ActorID:        senderID,
		CounterpartyID: result.Gift.ReceiverID,
		Amount:         amount,
		OccurredAt:     result.Gift.CreatedAt,
	})

	return result, nil
}

// lockAccounts locks every account in ascending id order so that concurrent transfers between
// the same pair of accounts cannot deadlock.
func lockAccounts(ctx context.Context, tx Tx, ids ...string) (map[string]models.User, error) {
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)

	accounts := make(map[string]models.User, len(ordered))
	for _, id := range ordered {
		if _, ok := accounts[id]; ok {
			continue
		}
		account, err := tx.AccountForUpdate(ctx, id)
		if err != nil {
			return nil, lookupError(err, "account not found")
		}
		accounts[id] = account
	}
	return accounts, nil
}

func (e *Engine) notify(ctx context.Context, logger *slog.Logger, event events.Event) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Enqueue(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn("enqueue transfer event", "type", event.Type, "error", err)
	}
}

func lookupError(err error, message string) error {
	if errors.Is(err, ErrNotFound) {
		return newError(ErrNotFound, message)
	}
	return err
}

// classify turns a failed transaction into a wallet error. Domain failures raised inside the
// transaction pass through; store-level sentinels get a display message; anything else is an
// infrastructure failure with an unknown outcome.
func classify(logger *slog.Logger, op string, err error) error {
	var werr *Error
	if errors.As(err, &werr) {
		logger.Info(op+" rejected", "reason", werr.Message)
		return werr
	}

	switch {
	case errors.Is(err, ErrConflict):
		return &Error{Kind: ErrConflict, Message: "you already own this video", Err: err}
	case errors.Is(err, ErrInsufficientFunds):
		return &Error{Kind: ErrInsufficientFunds, Message: "insufficient balance", Err: err}
	case errors.Is(err, ErrNotFound):
		return &Error{Kind: ErrNotFound, Message: "record not found", Err: err}
	}

	logger.Error(op+" transaction failed", "error", err)
	return &Error{Kind: ErrInfrastructure, Message: fmt.Sprintf("%s could not be confirmed", op), Err: err}
}
