package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crsongirkar/YT-Platform/internal/models"
	"github.com/crsongirkar/YT-Platform/internal/repositories"
	"github.com/crsongirkar/YT-Platform/internal/wallet"
)

// DefaultSignedURLTTL is the validity window of minted playback URLs.
const DefaultSignedURLTTL = 24 * time.Hour

// ErrVideoNotFound indicates the requested video does not exist.
var ErrVideoNotFound = errors.New("video not found")

// VideoReader loads videos and entitlements. FindByID reports unknown videos with
// repositories.ErrNotFound (PostgreSQL) or wallet.ErrNotFound (wallet.MemoryStore).
type VideoReader interface {
	FindByID(ctx context.Context, videoID string) (models.Video, error)
	IsEntitled(ctx context.Context, videoID, accountID string) (bool, error)
}

// URLSigner mints a time-limited reference to a stored object.
type URLSigner interface {
	SignURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// Access is the outcome of resolving a video for a viewer. URL is empty when the viewer is
// not entitled to play the video.
type Access struct {
	Video    models.Video
	URL      string
	Entitled bool
}

// Resolver decides whether a viewer may play a video and produces the reference to play it.
// It never mutates balances or entitlements.
type Resolver struct {
	videos VideoReader
	signer URLSigner
	ttl    time.Duration
}

// NewResolver constructs a Resolver. A non-positive ttl selects DefaultSignedURLTTL.
func NewResolver(videos VideoReader, signer URLSigner, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	return &Resolver{videos: videos, signer: signer, ttl: ttl}
}

// Resolve loads the video and resolves it for accountID.
func (r *Resolver) Resolve(ctx context.Context, accountID, videoID string) (Access, error) {
	video, err := r.videos.FindByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) || errors.Is(err, wallet.ErrNotFound) {
			return Access{}, ErrVideoNotFound
		}
		return Access{}, fmt.Errorf("load video %s: %w", videoID, err)
	}
	return r.ResolveVideo(ctx, accountID, video)
}

// ResolveVideo resolves an already loaded video for accountID.
func (r *Resolver) ResolveVideo(ctx context.Context, accountID string, video models.Video) (Access, error) {
	if !video.IsPaid() {
		if video.VideoURL != "" {
			return Access{Video: video, URL: video.VideoURL, Entitled: true}, nil
		}
		// Free long-form uploads are stored privately and still need a signed URL.
		url, err := r.Reference(ctx, video)
		if err != nil {
			return Access{}, err
		}
		return Access{Video: video, URL: url, Entitled: true}, nil
	}

	entitled := video.OwnerID == accountID
	if !entitled {
		owned, err := r.videos.IsEntitled(ctx, video.ID, accountID)
		if err != nil {
			return Access{}, fmt.Errorf("check entitlement for video %s: %w", video.ID, err)
		}
		entitled = owned
	}

	if !entitled {
		return Access{Video: video, Entitled: false}, nil
	}

	url, err := r.Reference(ctx, video)
	if err != nil {
		return Access{}, err
	}
	return Access{Video: video, URL: url, Entitled: true}, nil
}

// Reference returns the playable reference for a viewer already known to be entitled. Stored
// objects get a freshly signed URL; externally hosted videos return their URL unchanged.
func (r *Resolver) Reference(ctx context.Context, video models.Video) (string, error) {
	if video.StoragePath == "" {
		return video.VideoURL, nil
	}
	if r.signer == nil {
		return "", fmt.Errorf("sign video %s: no signer configured", video.ID)
	}
	url, err := r.signer.SignURL(ctx, video.StoragePath, r.ttl)
	if err != nil {
		return "", fmt.Errorf("sign video %s: %w", video.ID, err)
	}
	return url, nil
}
