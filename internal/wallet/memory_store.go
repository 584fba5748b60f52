package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/crsongirkar/YT-Platform/internal/models"
)

// MemoryStore implements Store for tests and local development. Transactions run one at a
// time and stage their writes, so a failed transaction leaves no trace.
type MemoryStore struct {
	mu           sync.Mutex
	accounts     map[string]models.User
	videos       map[string]models.Video
	entitlements map[entitlementKey]time.Time
	purchases    []models.Purchase
	gifts        []models.Gift
}

type entitlementKey struct {
	videoID   string
	accountID string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]models.User),
		videos:       make(map[string]models.Video),
		entitlements: make(map[entitlementKey]time.Time),
	}
}

// PutAccount inserts or replaces an account.
func (s *MemoryStore) PutAccount(account models.User) {
	s.mu.Lock()
	s.accounts[account.ID] = account
	s.mu.Unlock()
}

// PutVideo inserts or replaces a video.
func (s *MemoryStore) PutVideo(video models.Video) {
	s.mu.Lock()
	s.videos[video.ID] = video
	s.mu.Unlock()
}

// Balance returns the committed balance of an account.
func (s *MemoryStore) Balance(accountID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	return account.Balance, ok
}

// Purchases returns a copy of the committed purchase records.
func (s *MemoryStore) Purchases() []models.Purchase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Purchase(nil), s.purchases...)
}

// Gifts returns a copy of the committed gift records.
func (s *MemoryStore) Gifts() []models.Gift {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Gift(nil), s.gifts...)
}

// FindByID returns a committed video.
func (s *MemoryStore) FindByID(_ context.Context, videoID string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[videoID]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	return video, nil
}

// IsEntitled reports whether a committed entitlement exists.
func (s *MemoryStore) IsEntitled(_ context.Context, videoID, accountID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entitlements[entitlementKey{videoID: videoID, accountID: accountID}]
	return ok, nil
}

// WithinTx runs fn while holding the store lock and applies its writes only when it succeeds.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{
		store:        s,
		balances:     make(map[string]int64),
		entitlements: make(map[entitlementKey]time.Time),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for id, balance := range tx.balances {
		account := s.accounts[id]
		account.Balance = balance
		account.UpdatedAt = time.Now().UTC()
		s.accounts[id] = account
	}
	for key, at := range tx.entitlements {
		s.entitlements[key] = at
	}
	s.purchases = append(s.purchases, tx.purchases...)
	s.gifts = append(s.gifts, tx.gifts...)
	return nil
}

type memoryTx struct {
	store        *MemoryStore
	balances     map[string]int64
	entitlements map[entitlementKey]time.Time
	purchases    []models.Purchase
	gifts        []models.Gift
}

func (t *memoryTx) Video(_ context.Context, videoID string) (models.Video, error) {
	video, ok := t.store.videos[videoID]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	return video, nil
}

func (t *memoryTx) VideoForUpdate(ctx context.Context, videoID string) (models.Video, error) {
	return t.Video(ctx, videoID)
}

func (t *memoryTx) AccountForUpdate(_ context.Context, accountID string) (models.User, error) {
	account, ok := t.store.accounts[accountID]
	if !ok {
		return models.User{}, ErrNotFound
	}
	if balance, staged := t.balances[accountID]; staged {
		account.Balance = balance
	}
	return account, nil
}

func (t *memoryTx) IsEntitled(_ context.Context, videoID, accountID string) (bool, error) {
	key := entitlementKey{videoID: videoID, accountID: accountID}
	if _, ok := t.entitlements[key]; ok {
		return true, nil
	}
	_, ok := t.store.entitlements[key]
	return ok, nil
}

func (t *memoryTx) GrantEntitlement(ctx context.Context, videoID, accountID string, grantedAt time.Time) error {
	owned, err := t.IsEntitled(ctx, videoID, accountID)
	if err != nil {
		return err
	}
	if owned {
		return ErrConflict
	}
	t.entitlements[entitlementKey{videoID: videoID, accountID: accountID}] = grantedAt
	return nil
}

func (t *memoryTx) AdjustBalance(ctx context.Context, accountID string, delta int64) (int64, error) {
	account, err := t.AccountForUpdate(ctx, accountID)
	if err != nil {
		return 0, err
	}
	next := account.Balance + delta
	if next < 0 {
		return 0, ErrInsufficientFunds
	}
	t.balances[accountID] = next
	return next, nil
}

func (t *memoryTx) InsertPurchase(_ context.Context, purchase models.Purchase) error {
	t.purchases = append(t.purchases, purchase)
	return nil
}

func (t *memoryTx) InsertGift(_ context.Context, gift models.Gift) error {
	t.gifts = append(t.gifts, gift)
	return nil
}

var _ Store = (*MemoryStore)(nil)
