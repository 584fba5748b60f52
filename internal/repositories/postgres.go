package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/crsongirkar/YT-Platform/internal/db"
	"github.com/crsongirkar/YT-Platform/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record together with its opening balance.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, email, password_hash, display_name, balance, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, user.ID, user.Email, user.Password, user.DisplayName, user.Balance, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "email", email)
}

// FindByID fetches a user by identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, "id", id)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, column, value string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	// column is one of the two literals passed by FindByEmail and FindByID.
	row := conn.QueryRow(ctx, `
        SELECT id, email, password_hash, display_name, balance, created_at, updated_at
        FROM users
        WHERE `+column+` = $1
    `, value)

	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.Password, &user.DisplayName, &user.Balance, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by %s: %w", column, err)
	}

	return user, nil
}

// Update modifies the profile fields of an existing user. Balances only change through the
// transfer store.
func (r *PostgresUserRepository) Update(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET email = $2, password_hash = $3, display_name = $4, updated_at = $5
        WHERE id = $1
    `, user.ID, user.Email, user.Password, user.DisplayName, user.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

const videoColumns = `id, owner_id, title, description, video_type, price, video_url, storage_path, thumbnail_url, view_count, created_at`

func scanVideo(row pgx.Row) (models.Video, error) {
	var v models.Video
	err := row.Scan(&v.ID, &v.OwnerID, &v.Title, &v.Description, &v.VideoType, &v.Price, &v.VideoURL, &v.StoragePath, &v.ThumbnailURL, &v.ViewCount, &v.CreatedAt)
	return v, err
}

// Create stores a new video record. Short-form videos are always stored with a zero price.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if video.VideoType == models.VideoTypeShort {
		video.Price = 0
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (`+videoColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, video.ID, video.OwnerID, video.Title, video.Description, video.VideoType, video.Price, video.VideoURL, video.StoragePath, video.ThumbnailURL, video.ViewCount, video.CreatedAt)
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return ErrConflict
		case pgForeignKeyViolation:
			return ErrNotFound
		}
		return fmt.Errorf("insert video: %w", err)
	}

	return nil
}

// FindByID loads a single video.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	video, err := scanVideo(conn.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}
	return video, nil
}

// List returns one page of videos, newest first.
func (r *PostgresVideoRepository) List(ctx context.Context, limit, offset int) ([]models.Video, error) {
	return r.query(ctx, "list videos", `
        SELECT `+videoColumns+`
        FROM videos
        ORDER BY created_at DESC, id
        LIMIT $1 OFFSET $2
    `, limit, offset)
}

// ListByOwner returns every video uploaded by ownerID, newest first.
func (r *PostgresVideoRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Video, error) {
	return r.query(ctx, "list videos by owner", `
        SELECT `+videoColumns+`
        FROM videos
        WHERE owner_id = $1
        ORDER BY created_at DESC, id
    `, ownerID)
}

func (r *PostgresVideoRepository) query(ctx context.Context, op, sql string, args ...any) ([]models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	return videos, nil
}

// IncrementViews bumps the view counter of a video.
func (r *PostgresVideoRepository) IncrementViews(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `UPDATE videos SET view_count = view_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment video views: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// IsEntitled reports whether accountID holds an entitlement to videoID.
func (r *PostgresVideoRepository) IsEntitled(ctx context.Context, videoID, accountID string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	if err := conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM video_entitlements WHERE video_id = $1 AND user_id = $2
        )
    `, videoID, accountID).Scan(&exists); err != nil {
		return false, fmt.Errorf("select entitlement: %w", err)
	}

	return exists, nil
}

// PostgresLedgerRepository reads purchase and gift history.
type PostgresLedgerRepository struct {
	pool db.Pool
}

// NewPostgresLedgerRepository constructs a ledger reader backed by PostgreSQL.
func NewPostgresLedgerRepository(pool db.Pool) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{pool: pool}
}

// PurchasesByBuyer lists the purchases made by buyerID, newest first.
func (r *PostgresLedgerRepository) PurchasesByBuyer(ctx context.Context, buyerID string) ([]models.PurchaseEntry, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT p.id, p.buyer_id, p.video_id, p.amount, p.created_at, v.title, v.video_type
        FROM purchases p
        JOIN videos v ON v.id = p.video_id
        WHERE p.buyer_id = $1
        ORDER BY p.created_at DESC
    `, buyerID)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	var entries []models.PurchaseEntry
	for rows.Next() {
		var e models.PurchaseEntry
		if err := rows.Scan(&e.ID, &e.BuyerID, &e.VideoID, &e.Amount, &e.CreatedAt, &e.VideoTitle, &e.VideoType); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}

	return entries, nil
}

// GiftsReceived lists the gifts received by receiverID, newest first.
func (r *PostgresLedgerRepository) GiftsReceived(ctx context.Context, receiverID string) ([]models.GiftEntry, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT g.id, g.sender_id, g.receiver_id, g.video_id, g.amount, g.created_at, u.display_name, v.title
        FROM gifts g
        JOIN users u ON u.id = g.sender_id
        JOIN videos v ON v.id = g.video_id
        WHERE g.receiver_id = $1
        ORDER BY g.created_at DESC
    `, receiverID)
	if err != nil {
		return nil, fmt.Errorf("query gifts: %w", err)
	}
	defer rows.Close()

	var entries []models.GiftEntry
	for rows.Next() {
		var e models.GiftEntry
		if err := rows.Scan(&e.ID, &e.SenderID, &e.ReceiverID, &e.VideoID, &e.Amount, &e.CreatedAt, &e.SenderName, &e.VideoTitle); err != nil {
			return nil, fmt.Errorf("scan gift: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gifts: %w", err)
	}

	return entries, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ VideoRepository = (*PostgresVideoRepository)(nil)
var _ LedgerRepository = (*PostgresLedgerRepository)(nil)
