package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/crsongirkar/YT-Platform/internal/events"
	"github.com/crsongirkar/YT-Platform/internal/models"
)

type minterStub struct {
	url   string
	err   error
	calls int
}

func (m *minterStub) Reference(_ context.Context, video models.Video) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	if m.url != "" {
		return m.url, nil
	}
	return "https://signed.example.com/" + video.ID, nil
}

type notifierStub struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (n *notifierStub) Enqueue(_ context.Context, event events.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

type failingStore struct {
	err error
}

func (s failingStore) WithinTx(context.Context, func(tx Tx) error) error {
	return s.err
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *MemoryStore {
	store := NewMemoryStore()
	store.PutAccount(models.User{ID: "alice", Balance: 500})
	store.PutAccount(models.User{ID: "bob", Balance: 500})
	store.PutAccount(models.User{ID: "carol", Balance: 50})
	store.PutVideo(models.Video{ID: "movie", OwnerID: "bob", VideoType: models.VideoTypeLong, Price: 200, StoragePath: "long/movie.mp4"})
	store.PutVideo(models.Video{ID: "free", OwnerID: "bob", VideoType: models.VideoTypeLong, Price: 0})
	store.PutVideo(models.Video{ID: "clip", OwnerID: "bob", VideoType: models.VideoTypeShort, Price: 100})
	store.PutVideo(models.Video{ID: "orphan", OwnerID: "ghost", VideoType: models.VideoTypeLong, Price: 10})
	return store
}

func newTestEngine(store Store, opts ...Option) *Engine {
	opts = append([]Option{WithNowFunc(func() time.Time { return fixedNow })}, opts...)
	return NewEngine(store, &minterStub{}, opts...)
}

func requireKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v got %v", kind, err)
	}
}

func TestPurchaseSuccess(t *testing.T) {
	store := newTestStore()
	notifier := &notifierStub{}
	engine := newTestEngine(store, WithNotifier(notifier))

	result, err := engine.Purchase(context.Background(), "alice", "movie")
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if result.NewBalance != 300 {
		t.Fatalf("expected balance 300 got %d", result.NewBalance)
	}
	if result.AccessURL != "https://signed.example.com/movie" {
		t.Fatalf("unexpected access url %q", result.AccessURL)
	}
	if result.Purchase.Amount != 200 || result.Purchase.BuyerID != "alice" || !result.Purchase.CreatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected purchase record %+v", result.Purchase)
	}

	if balance, _ := store.Balance("alice"); balance != 300 {
		t.Fatalf("expected stored balance 300 got %d", balance)
	}
	if balance, _ := store.Balance("bob"); balance != 500 {
		t.Fatalf("purchase must not credit the creator, got %d", balance)
	}
	owned, _ := store.IsEntitled(context.Background(), "movie", "alice")
	if !owned {
		t.Fatal("expected entitlement after purchase")
	}
	if got := len(store.Purchases()); got != 1 {
		t.Fatalf("expected 1 purchase record got %d", got)
	}

	if len(notifier.events) != 1 {
		t.Fatalf("expected 1 event got %d", len(notifier.events))
	}
	event := notifier.events[0]
	if event.Type != events.TypePurchaseCompleted || event.RecordID != result.Purchase.ID || event.CounterpartyID != "bob" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestPurchaseRejections(t *testing.T) {
	tests := []struct {
		name    string
		buyer   string
		video   string
		kind    error
		message string
	}{
		{name: "missing video", buyer: "alice", video: "nope", kind: ErrNotFound, message: "video not found"},
		{name: "missing buyer", buyer: "nobody", video: "movie", kind: ErrNotFound, message: "account not found"},
		{name: "free video", buyer: "alice", video: "free", kind: ErrInvalidOperation, message: "this video is free, nothing to purchase"},
		{name: "short video", buyer: "alice", video: "clip", kind: ErrInvalidOperation, message: "this video is free, nothing to purchase"},
		{name: "own video", buyer: "bob", video: "movie", kind: ErrConflict, message: "you already own this video"},
		{name: "insufficient balance", buyer: "carol", video: "movie", kind: ErrInsufficientFunds, message: "insufficient balance"},
		{name: "empty ids", buyer: "", video: "movie", kind: ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			engine := newTestEngine(store)

			_, err := engine.Purchase(context.Background(), tt.buyer, tt.video)
			requireKind(t, err, tt.kind)
			if tt.message != "" && Message(err, "") != tt.message {
				t.Fatalf("expected message %q got %q", tt.message, Message(err, ""))
			}

			for _, id := range []string{"alice", "bob", "carol"} {
				balance, _ := store.Balance(id)
				want := int64(500)
				if id == "carol" {
					want = 50
				}
				if balance != want {
					t.Fatalf("balance of %s changed to %d", id, balance)
				}
			}
			if len(store.Purchases()) != 0 {
				t.Fatal("rejected purchase must not be recorded")
			}
		})
	}
}

func TestPurchaseTwiceConflicts(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store)

	if _, err := engine.Purchase(context.Background(), "alice", "movie"); err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	_, err := engine.Purchase(context.Background(), "alice", "movie")
	requireKind(t, err, ErrConflict)

	if balance, _ := store.Balance("alice"); balance != 300 {
		t.Fatalf("expected single debit, balance %d", balance)
	}
}

func TestConcurrentDuplicatePurchasesDebitOnce(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.Purchase(context.Background(), "alice", "movie")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || conflicts != attempts-1 {
		t.Fatalf("expected 1 success and %d conflicts got %d and %d", attempts-1, successes, conflicts)
	}
	if balance, _ := store.Balance("alice"); balance != 300 {
		t.Fatalf("expected balance 300 got %d", balance)
	}
	if got := len(store.Purchases()); got != 1 {
		t.Fatalf("expected one purchase record got %d", got)
	}
}

func TestPurchaseSucceedsWhenMintingFails(t *testing.T) {
	store := newTestStore()
	minter := &minterStub{err: errors.New("presign unavailable")}
	engine := NewEngine(store, minter)

	result, err := engine.Purchase(context.Background(), "alice", "movie")
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if result.AccessURL != "" {
		t.Fatalf("expected empty access url got %q", result.AccessURL)
	}
	owned, _ := store.IsEntitled(context.Background(), "movie", "alice")
	if !owned {
		t.Fatal("entitlement must survive a minting failure")
	}
}

func TestGiftSuccess(t *testing.T) {
	store := newTestStore()
	notifier := &notifierStub{err: events.ErrQueueFull}
	engine := newTestEngine(store, WithNotifier(notifier))

	result, err := engine.Gift(context.Background(), "alice", "movie", 100)
	if err != nil {
		t.Fatalf("gift: %v", err)
	}
	if result.NewBalance != 400 {
		t.Fatalf("expected sender balance 400 got %d", result.NewBalance)
	}
	if result.Gift.ReceiverID != "bob" || result.Gift.Amount != 100 {
		t.Fatalf("unexpected gift record %+v", result.Gift)
	}
	if balance, _ := store.Balance("bob"); balance != 600 {
		t.Fatalf("expected receiver balance 600 got %d", balance)
	}
	if got := len(store.Gifts()); got != 1 {
		t.Fatalf("expected 1 gift record got %d", got)
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != events.TypeGiftSent {
		t.Fatalf("expected gift event got %+v", notifier.events)
	}
}

func TestGiftOnFreeVideoIsAllowed(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store)

	if _, err := engine.Gift(context.Background(), "alice", "clip", 25); err != nil {
		t.Fatalf("gift on short video: %v", err)
	}
	if balance, _ := store.Balance("bob"); balance != 525 {
		t.Fatalf("expected receiver balance 525 got %d", balance)
	}
}

func TestGiftRejections(t *testing.T) {
	tests := []struct {
		name   string
		sender string
		video  string
		amount int64
		kind   error
	}{
		{name: "zero amount", sender: "alice", video: "movie", amount: 0, kind: ErrInvalidArgument},
		{name: "negative amount", sender: "alice", video: "movie", amount: -5, kind: ErrInvalidArgument},
		{name: "missing video", sender: "alice", video: "nope", amount: 10, kind: ErrNotFound},
		{name: "self gift", sender: "bob", video: "movie", amount: 10, kind: ErrInvalidOperation},
		{name: "insufficient balance", sender: "carol", video: "movie", amount: 51, kind: ErrInsufficientFunds},
		{name: "missing sender", sender: "nobody", video: "movie", amount: 10, kind: ErrNotFound},
		{name: "missing receiver", sender: "alice", video: "orphan", amount: 10, kind: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			engine := newTestEngine(store)

			_, err := engine.Gift(context.Background(), tt.sender, tt.video, tt.amount)
			requireKind(t, err, tt.kind)

			if balance, _ := store.Balance("alice"); balance != 500 {
				t.Fatalf("sender balance changed to %d", balance)
			}
			if balance, _ := store.Balance("bob"); balance != 500 {
				t.Fatalf("receiver balance changed to %d", balance)
			}
			if len(store.Gifts()) != 0 {
				t.Fatal("rejected gift must not be recorded")
			}
		})
	}
}

func TestConcurrentGiftsConserveBalance(t *testing.T) {
	store := newTestStore()
	store.PutVideo(models.Video{ID: "alice-video", OwnerID: "alice", VideoType: models.VideoTypeShort})
	engine := newTestEngine(store)

	const rounds = 20
	var wg sync.WaitGroup
	wg.Add(rounds * 2)
	for i := 0; i < rounds; i++ {
		go func() {
			defer wg.Done()
			_, _ = engine.Gift(context.Background(), "alice", "movie", 30)
		}()
		go func() {
			defer wg.Done()
			_, _ = engine.Gift(context.Background(), "bob", "alice-video", 45)
		}()
	}
	wg.Wait()

	alice, _ := store.Balance("alice")
	bob, _ := store.Balance("bob")
	if alice < 0 || bob < 0 {
		t.Fatalf("negative balance: alice=%d bob=%d", alice, bob)
	}
	if alice+bob != 1000 {
		t.Fatalf("expected total 1000 got %d", alice+bob)
	}
}

func TestGiftCannotOverdraw(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store)

	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		go func() {
			defer wg.Done()
			_, _ = engine.Gift(context.Background(), "carol", "movie", 20)
		}()
	}
	wg.Wait()

	carol, _ := store.Balance("carol")
	if carol != 10 {
		t.Fatalf("expected two gifts to succeed leaving 10 got %d", carol)
	}
	if got := len(store.Gifts()); got != 2 {
		t.Fatalf("expected 2 gift records got %d", got)
	}
}

func TestStoreFailuresAreClassified(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{name: "connection failure", err: errors.New("connection reset by peer"), kind: ErrInfrastructure},
		{name: "cancelled", err: context.Canceled, kind: ErrInfrastructure},
		{name: "unique violation", err: ErrConflict, kind: ErrConflict},
		{name: "check violation", err: ErrInsufficientFunds, kind: ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(failingStore{err: tt.err})

			_, err := engine.Purchase(context.Background(), "alice", "movie")
			requireKind(t, err, tt.kind)

			_, err = engine.Gift(context.Background(), "alice", "movie", 10)
			requireKind(t, err, tt.kind)
		})
	}
}

func TestInfrastructureErrorKeepsCause(t *testing.T) {
	cause := errors.New("commit ambiguous")
	engine := newTestEngine(failingStore{err: cause})

	_, err := engine.Purchase(context.Background(), "alice", "movie")
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be wrapped got %v", err)
	}
	if Message(err, "") != "purchase could not be confirmed" {
		t.Fatalf("unexpected message %q", Message(err, ""))
	}
}

func TestCancelledContextLeavesNoTrace(t *testing.T) {
	store := newTestStore()
	engine := newTestEngine(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Purchase(ctx, "alice", "movie")
	requireKind(t, err, ErrInfrastructure)

	if balance, _ := store.Balance("alice"); balance != 500 {
		t.Fatalf("expected untouched balance got %d", balance)
	}
}
