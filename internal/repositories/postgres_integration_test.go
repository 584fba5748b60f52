package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crsongirkar/YT-Platform/internal/auth"
	"github.com/crsongirkar/YT-Platform/internal/models"
	"github.com/crsongirkar/YT-Platform/internal/wallet"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_CreateFindAndUpdate(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)

	user := models.User{
		ID:          uuid.NewString(),
		Email:       "alice@example.com",
		Password:    "secret-hash",
		DisplayName: "Alice",
		Balance:     500,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	dup := user
	dup.ID = uuid.NewString()
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict when creating duplicate email, got %v", err)
	}

	fetched, err := repo.FindByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if fetched.ID != user.ID || fetched.DisplayName != "Alice" || fetched.Balance != 500 {
		t.Fatalf("unexpected user fetched: %+v", fetched)
	}

	byID, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if byID.Email != user.Email {
		t.Fatalf("unexpected user fetched by id: %+v", byID)
	}

	updated := user
	updated.Email = "updated@example.com"
	updated.DisplayName = "Alice B"
	updated.Balance = 99999
	updated.UpdatedAt = time.Now().UTC().Add(time.Minute)

	if err := repo.Update(ctx, updated); err != nil {
		t.Fatalf("update user: %v", err)
	}

	fetched, err = repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find updated user: %v", err)
	}
	if fetched.Email != updated.Email || fetched.DisplayName != updated.DisplayName {
		t.Fatalf("expected updated fields to persist, got %+v", fetched)
	}
	if fetched.Balance != 500 {
		t.Fatalf("profile update must not touch the balance, got %d", fetched.Balance)
	}

	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}

	missing := models.User{ID: uuid.NewString(), Email: "missing@example.com", UpdatedAt: time.Now().UTC()}
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing user, got %v", err)
	}
}

func TestPostgresSessionStore_SaveFindAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	user := createTestUser(t, "owner@example.com", 0)

	store := NewPostgresSessionStore(testPool)
	expires := time.Now().UTC().Add(24 * time.Hour)
	session := auth.Session{
		TokenHash: auth.HashRefreshToken(uuid.NewString()),
		UserID:    user.ID,
		ExpiresAt: expires,
	}

	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := store.Find(ctx, session.TokenHash)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if loaded.UserID != session.UserID || !timesClose(loaded.ExpiresAt, expires.UTC(), time.Millisecond) {
		t.Fatalf("unexpected session loaded: %+v", loaded)
	}

	updated := session
	updated.ExpiresAt = expires.Add(48 * time.Hour)
	if err := store.Save(ctx, updated); err != nil {
		t.Fatalf("update session: %v", err)
	}

	loaded, err = store.Find(ctx, session.TokenHash)
	if err != nil {
		t.Fatalf("find session after update: %v", err)
	}
	if !timesClose(loaded.ExpiresAt, updated.ExpiresAt.UTC(), time.Millisecond) {
		t.Fatalf("expected updated expiry, got %v", loaded.ExpiresAt)
	}

	if err := store.Delete(ctx, session.TokenHash); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.Find(ctx, session.TokenHash); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, session.TokenHash); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound deleting twice, got %v", err)
	}
}

func TestPostgresSessionStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	user := createTestUser(t, "sessions@example.com", 0)
	store := NewPostgresSessionStore(testPool)
	now := time.Now().UTC()

	stale := auth.Session{TokenHash: auth.HashRefreshToken("stale"), UserID: user.ID, ExpiresAt: now.Add(-time.Hour)}
	live := auth.Session{TokenHash: auth.HashRefreshToken("live"), UserID: user.ID, ExpiresAt: now.Add(time.Hour)}
	for _, session := range []auth.Session{stale, live} {
		if err := store.Save(ctx, session); err != nil {
			t.Fatalf("save session: %v", err)
		}
	}

	removed, err := store.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 session removed, got %d", removed)
	}
	if _, err := store.Find(ctx, live.TokenHash); err != nil {
		t.Fatalf("expected live session to remain: %v", err)
	}
}

func TestPostgresVideoRepository_CreateListAndViews(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresVideoRepository(testPool)
	creator := createTestUser(t, "creator@example.com", 0)
	other := createTestUser(t, "other@example.com", 0)

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	short := models.Video{ID: uuid.NewString(), OwnerID: creator.ID, Title: "Short", VideoType: models.VideoTypeShort, Price: 300, VideoURL: "https://cdn.example.com/short.mp4", CreatedAt: base}
	long := models.Video{ID: uuid.NewString(), OwnerID: creator.ID, Title: "Long", VideoType: models.VideoTypeLong, Price: 200, StoragePath: "long/a.mp4", CreatedAt: base.Add(time.Minute)}
	foreign := models.Video{ID: uuid.NewString(), OwnerID: other.ID, Title: "Other", VideoType: models.VideoTypeLong, VideoURL: "https://videos.example.com/x", CreatedAt: base.Add(2 * time.Minute)}

	for _, v := range []models.Video{short, long, foreign} {
		if err := repo.Create(ctx, v); err != nil {
			t.Fatalf("create video %s: %v", v.Title, err)
		}
	}

	orphan := models.Video{ID: uuid.NewString(), OwnerID: uuid.NewString(), Title: "Orphan", VideoType: models.VideoTypeShort, CreatedAt: base}
	if err := repo.Create(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown owner, got %v", err)
	}

	stored, err := repo.FindByID(ctx, short.ID)
	if err != nil {
		t.Fatalf("find short: %v", err)
	}
	if stored.Price != 0 {
		t.Fatalf("short videos must be stored free, got price %d", stored.Price)
	}

	page, err := repo.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list videos: %v", err)
	}
	if len(page) != 2 || page[0].ID != foreign.ID || page[1].ID != long.ID {
		t.Fatalf("unexpected first page: %+v", page)
	}

	page, err = repo.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(page) != 1 || page[0].ID != short.ID {
		t.Fatalf("unexpected second page: %+v", page)
	}

	owned, err := repo.ListByOwner(ctx, creator.ID)
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	if len(owned) != 2 {
		t.Fatalf("expected 2 videos for creator, got %d", len(owned))
	}

	if err := repo.IncrementViews(ctx, long.ID); err != nil {
		t.Fatalf("increment views: %v", err)
	}
	stored, err = repo.FindByID(ctx, long.ID)
	if err != nil {
		t.Fatalf("find long: %v", err)
	}
	if stored.ViewCount != 1 {
		t.Fatalf("expected view count 1, got %d", stored.ViewCount)
	}

	if err := repo.IncrementViews(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound incrementing unknown video, got %v", err)
	}
	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown video, got %v", err)
	}
}

func TestPostgresTransferStore_PurchaseAndGift(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	buyer := createTestUser(t, "buyer@example.com", 500)
	creator := createTestUser(t, "creator@example.com", 500)
	video := createTestVideo(t, creator.ID, 200)
	pricey := createTestVideo(t, creator.ID, 1000)

	videos := NewPostgresVideoRepository(testPool)
	ledger := NewPostgresLedgerRepository(testPool)
	engine := wallet.NewEngine(NewPostgresTransferStore(testPool), nil)

	result, err := engine.Purchase(ctx, buyer.ID, video.ID)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if result.NewBalance != 300 {
		t.Fatalf("expected balance 300, got %d", result.NewBalance)
	}

	entitled, err := videos.IsEntitled(ctx, video.ID, buyer.ID)
	if err != nil {
		t.Fatalf("is entitled: %v", err)
	}
	if !entitled {
		t.Fatal("expected entitlement after purchase")
	}

	if _, err := engine.Purchase(ctx, buyer.ID, video.ID); !errors.Is(err, wallet.ErrConflict) {
		t.Fatalf("expected conflict on repeat purchase, got %v", err)
	}

	if _, err := engine.Gift(ctx, buyer.ID, video.ID, 100); err != nil {
		t.Fatalf("gift: %v", err)
	}
	if _, err := engine.Gift(ctx, creator.ID, video.ID, 10); !errors.Is(err, wallet.ErrInvalidOperation) {
		t.Fatalf("expected invalid operation on self gift, got %v", err)
	}
	if _, err := engine.Purchase(ctx, buyer.ID, pricey.ID); !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := engine.Purchase(ctx, buyer.ID, uuid.NewString()); !errors.Is(err, wallet.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	requireBalance(t, buyer.ID, 200)
	requireBalance(t, creator.ID, 600)

	purchases, err := ledger.PurchasesByBuyer(ctx, buyer.ID)
	if err != nil {
		t.Fatalf("purchases by buyer: %v", err)
	}
	if len(purchases) != 1 || purchases[0].Amount != 200 || purchases[0].VideoTitle != video.Title {
		t.Fatalf("unexpected purchases: %+v", purchases)
	}

	gifts, err := ledger.GiftsReceived(ctx, creator.ID)
	if err != nil {
		t.Fatalf("gifts received: %v", err)
	}
	if len(gifts) != 1 || gifts[0].Amount != 100 || gifts[0].SenderName != buyer.DisplayName {
		t.Fatalf("unexpected gifts: %+v", gifts)
	}
}

func TestPostgresTransferStore_ConcurrentPurchasesDebitOnce(t *testing.T) {
	resetDatabase(t)
	checkConcurrentPurchasesDebitOnce(t, testPool)
}

func TestPostgresTransferStore_ConcurrentGiftsConserveBalance(t *testing.T) {
	resetDatabase(t)
	checkConcurrentGiftsConserveBalance(t, testPool)
}

// TestPostgresTransferStore_ConcurrencyOnPostgreSQL runs the concurrency checks against a real
// PostgreSQL server, whose SERIALIZABLE implementation reports conflicts differently from
// CockroachDB. Set YTP_TEST_POSTGRES_URL to a disposable database to enable it.
func TestPostgresTransferStore_ConcurrencyOnPostgreSQL(t *testing.T) {
	url := os.Getenv("YTP_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("YTP_TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()
	if err := applyMigrations(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	t.Run("purchases", func(t *testing.T) {
		resetDatabaseIn(t, pool)
		checkConcurrentPurchasesDebitOnce(t, pool)
	})
	t.Run("gifts", func(t *testing.T) {
		resetDatabaseIn(t, pool)
		checkConcurrentGiftsConserveBalance(t, pool)
	})
}

// checkConcurrentPurchasesDebitOnce races purchases of one video by one buyer. Exactly one must
// win and every loser must see the conflict, never an infrastructure failure.
func checkConcurrentPurchasesDebitOnce(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	buyer := createUserIn(t, pool, "buyer@example.com", 500)
	creator := createUserIn(t, pool, "creator@example.com", 0)
	video := createVideoIn(t, pool, creator.ID, 200)

	engine := wallet.NewEngine(NewPostgresTransferStore(pool), nil)

	const attempts = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.Purchase(ctx, buyer.ID, video.ID)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, wallet.ErrConflict) {
				t.Errorf("unexpected purchase error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful purchase, got %d", successes)
	}
	if got := loadBalanceIn(t, pool, buyer.ID); got != 300 {
		t.Fatalf("expected buyer balance 300, got %d", got)
	}
}

// checkConcurrentGiftsConserveBalance races gifts in both directions between two accounts.
func checkConcurrentGiftsConserveBalance(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	alice := createUserIn(t, pool, "alice@example.com", 300)
	bob := createUserIn(t, pool, "bob@example.com", 300)
	aliceVideo := createVideoIn(t, pool, alice.ID, 0)
	bobVideo := createVideoIn(t, pool, bob.ID, 0)

	engine := wallet.NewEngine(NewPostgresTransferStore(pool), nil)

	const rounds = 5
	var wg sync.WaitGroup
	wg.Add(rounds * 2)
	for i := 0; i < rounds; i++ {
		go func() {
			defer wg.Done()
			if _, err := engine.Gift(ctx, alice.ID, bobVideo.ID, 70); err != nil && !errors.Is(err, wallet.ErrInsufficientFunds) {
				t.Errorf("gift alice->bob: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := engine.Gift(ctx, bob.ID, aliceVideo.ID, 40); err != nil && !errors.Is(err, wallet.ErrInsufficientFunds) {
				t.Errorf("gift bob->alice: %v", err)
			}
		}()
	}
	wg.Wait()

	a := loadBalanceIn(t, pool, alice.ID)
	b := loadBalanceIn(t, pool, bob.ID)
	if a < 0 || b < 0 {
		t.Fatalf("negative balance: alice=%d bob=%d", a, b)
	}
	if a+b != 600 {
		t.Fatalf("expected total 600, got %d", a+b)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	resetDatabaseIn(t, testPool)
}

func resetDatabaseIn(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE gifts, purchases, video_entitlements, videos, sessions, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, email string, balance int64) models.User {
	t.Helper()
	return createUserIn(t, testPool, email, balance)
}

func createUserIn(t *testing.T, pool *pgxpool.Pool, email string, balance int64) models.User {
	t.Helper()
	user := models.User{
		ID:          uuid.NewString(),
		Email:       email,
		Password:    "password-hash",
		DisplayName: email,
		Balance:     balance,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := NewPostgresUserRepository(pool).Create(context.Background(), user); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func createTestVideo(t *testing.T, ownerID string, price int64) models.Video {
	t.Helper()
	return createVideoIn(t, testPool, ownerID, price)
}

func createVideoIn(t *testing.T, pool *pgxpool.Pool, ownerID string, price int64) models.Video {
	t.Helper()
	video := models.Video{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       "video " + uuid.NewString()[:8],
		VideoType:   models.VideoTypeLong,
		Price:       price,
		StoragePath: "long/" + uuid.NewString() + ".mp4",
		CreatedAt:   time.Now().UTC(),
	}
	if err := NewPostgresVideoRepository(pool).Create(context.Background(), video); err != nil {
		t.Fatalf("create test video: %v", err)
	}
	return video
}

func loadBalance(t *testing.T, userID string) int64 {
	t.Helper()
	return loadBalanceIn(t, testPool, userID)
}

func loadBalanceIn(t *testing.T, pool *pgxpool.Pool, userID string) int64 {
	t.Helper()
	user, err := NewPostgresUserRepository(pool).FindByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("load user %s: %v", userID, err)
	}
	return user.Balance
}

func requireBalance(t *testing.T, userID string, want int64) {
	t.Helper()
	if got := loadBalance(t, userID); got != want {
		t.Fatalf("expected balance %d for %s, got %d", want, userID, got)
	}
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}
