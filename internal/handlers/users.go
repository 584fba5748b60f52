package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/crsongirkar/YT-Platform/internal/auth"
	"github.com/crsongirkar/YT-Platform/internal/logging"
	"github.com/crsongirkar/YT-Platform/internal/models"
	"github.com/crsongirkar/YT-Platform/internal/repositories"
)

// UserHandler serves the authenticated account's profile and history.
type UserHandler struct {
	Users  UserStore
	Videos VideoStore
	Ledger LedgerStore
}

// Me handles GET /api/v1/users/me.
func (h UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	accountID, ok := auth.AccountIDFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}
	if h.Users == nil {
		logger.Error("user store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "account service unavailable")
		return
	}

	user, err := h.Users.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "account not found")
			return
		}
		logger.Error("load account", "error", err, "userId", accountID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to load account")
		return
	}

	respondJSON(ctx, w, http.StatusOK, newAccountResponse(user))
}

// MyVideos handles GET /api/v1/users/me/videos.
func (h UserHandler) MyVideos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	accountID, ok := auth.AccountIDFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}
	if h.Videos == nil {
		logger.Error("video store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "video service unavailable")
		return
	}

	videos, err := h.Videos.ListByOwner(ctx, accountID)
	if err != nil {
		logger.Error("list owned videos", "error", err, "userId", accountID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to load videos")
		return
	}

	views := make([]videoView, 0, len(videos))
	for _, video := range videos {
		// Owners are entitled to everything they uploaded; the listing omits playback URLs
		// so private objects are only signed on demand.
		views = append(views, videoView{
			ID:          video.ID,
			OwnerID:     video.OwnerID,
			Title:       video.Title,
			Description: video.Description,
			VideoType:   video.VideoType,
			Price:       video.Price,
			Thumbnail:   video.ThumbnailURL,
			ViewCount:   video.ViewCount,
			Purchased:   true,
			CreatedAt:   video.CreatedAt,
		})
	}

	respondJSON(ctx, w, http.StatusOK, map[string][]videoView{"videos": views})
}

// Purchases handles GET /api/v1/users/me/purchases.
func (h UserHandler) Purchases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	accountID, ok := auth.AccountIDFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}
	if h.Ledger == nil {
		logger.Error("ledger store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "history unavailable")
		return
	}

	entries, err := h.Ledger.PurchasesByBuyer(ctx, accountID)
	if err != nil {
		logger.Error("list purchases", "error", err, "userId", accountID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to load purchases")
		return
	}

	views := make([]purchaseEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, purchaseEntryView{
			ID:         entry.ID,
			VideoID:    entry.VideoID,
			VideoTitle: entry.VideoTitle,
			VideoType:  entry.VideoType,
			Amount:     entry.Amount,
			CreatedAt:  entry.CreatedAt,
		})
	}

	respondJSON(ctx, w, http.StatusOK, map[string][]purchaseEntryView{"purchases": views})
}

// Gifts handles GET /api/v1/users/me/gifts and lists gifts received by the account.
func (h UserHandler) Gifts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	accountID, ok := auth.AccountIDFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}
	if h.Ledger == nil {
		logger.Error("ledger store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "history unavailable")
		return
	}

	entries, err := h.Ledger.GiftsReceived(ctx, accountID)
	if err != nil {
		logger.Error("list gifts", "error", err, "userId", accountID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to load gifts")
		return
	}

	views := make([]giftEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, giftEntryView{
			ID:         entry.ID,
			SenderID:   entry.SenderID,
			SenderName: entry.SenderName,
			VideoID:    entry.VideoID,
			VideoTitle: entry.VideoTitle,
			Amount:     entry.Amount,
			CreatedAt:  entry.CreatedAt,
		})
	}

	respondJSON(ctx, w, http.StatusOK, map[string][]giftEntryView{"gifts": views})
}

type accountResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Balance     int64     `json:"balance"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newAccountResponse(user models.User) accountResponse {
	return accountResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Balance:     user.Balance,
		CreatedAt:   user.CreatedAt,
	}
}

type purchaseEntryView struct {
	ID         string    `json:"id"`
	VideoID    string    `json:"videoId"`
	VideoTitle string    `json:"videoTitle"`
	VideoType  string    `json:"videoType"`
	Amount     int64     `json:"amount"`
	CreatedAt  time.Time `json:"createdAt"`
}

type giftEntryView struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	VideoID    string    `json:"videoId"`
	VideoTitle string    `json:"videoTitle"`
	Amount     int64     `json:"amount"`
	CreatedAt  time.Time `json:"createdAt"`
}
